package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/duet/pkg/ingest"
	"github.com/m-mizutani/duet/pkg/utils/logging"
)

func ingestCommand() *cli.Command {
	var cfg config

	flags := append(globalFlags(&cfg), llmFlags(&cfg)...)
	flags = append(flags, storeFlags(&cfg)...)

	return &cli.Command{
		Name:  "ingest",
		Usage: "Load a dataset into the tabular store and vector index",
		Description: "With the default sqlite and memory backends the stores are " +
			"process-local, so a standalone ingest run only persists data when a " +
			"remote backend (e.g. --vector-backend firestore) is selected. For " +
			"local runs, pass --data to ask or serve instead; they load the " +
			"dataset at startup.",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := cfg.applyScenarioFile(); err != nil {
				return err
			}
			if cfg.dataPath == "" {
				return goerr.New("data path is required")
			}

			logging.SetDefault(logging.New(cfg.logLevel, c.Root().ErrWriter))

			dataset, err := ingest.LoadFile(cfg.dataPath)
			if err != nil {
				return err
			}

			gemini, err := cfg.newGemini(ctx)
			if err != nil {
				return err
			}

			store, err := cfg.newTabularStore(ctx)
			if err != nil {
				return err
			}
			if err := store.Load(ctx, dataset.Table, dataset.Columns, dataset.Rows); err != nil {
				return goerr.Wrap(err, "failed to load tabular data")
			}

			index, err := cfg.newVectorIndex(ctx, gemini)
			if err != nil {
				return err
			}
			if err := index.Upsert(ctx, dataset.Chunks); err != nil {
				return goerr.Wrap(err, "failed to upsert chunks")
			}

			count, err := index.Count(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to count indexed chunks")
			}

			fmt.Fprintf(c.Root().Writer, "Loaded table %q: %d columns, %d rows\n",
				dataset.Table, len(dataset.Columns), len(dataset.Rows))
			fmt.Fprintf(c.Root().Writer, "Indexed %d chunks (%d total in index)\n",
				len(dataset.Chunks), count)

			return nil
		},
	}
}
