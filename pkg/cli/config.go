package cli

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/m-mizutani/duet/pkg/adapter"
	"github.com/m-mizutani/duet/pkg/guard"
	"github.com/m-mizutani/duet/pkg/ingest"
	"github.com/m-mizutani/duet/pkg/memory"
	"github.com/m-mizutani/duet/pkg/usecase/orchestrate"
	"github.com/m-mizutani/duet/pkg/usecase/retrieve"
	"github.com/m-mizutani/duet/pkg/usecase/sqlquery"
	"github.com/m-mizutani/duet/pkg/utils/logging"
)

// config holds configuration shared across commands.
type config struct {
	logLevel string

	// Scenario
	scenario     string
	scenarioFile string
	dataPath     string

	// Gemini
	geminiProject   string
	geminiLocation  string
	generativeModel string
	embeddingModel  string

	// Tabular store backend: "sqlite" or "bigquery"
	tabularBackend  string
	bigqueryProject string
	bigqueryDataset string
	bigqueryTable   string

	// Vector index backend: "memory" or "firestore"
	vectorBackend       string
	firestoreProject    string
	firestoreDatabase   string
	firestoreCollection string

	// Tuning
	maxRounds    int64
	batchSize    int64
	historyTurns int64
}

// scenarioConfig is the optional YAML scenario file.
type scenarioConfig struct {
	Scenario     string `yaml:"scenario"`
	DataPath     string `yaml:"data_path"`
	MaxRounds    int64  `yaml:"max_rounds"`
	BatchSize    int64  `yaml:"batch_size"`
	HistoryTurns int64  `yaml:"history_turns"`
}

func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("DUET_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "scenario",
			Usage:       "Business scenario label used in prompts",
			Sources:     cli.EnvVars("DUET_SCENARIO"),
			Destination: &cfg.scenario,
		},
		&cli.StringFlag{
			Name:        "scenario-file",
			Usage:       "YAML scenario configuration file",
			Sources:     cli.EnvVars("DUET_SCENARIO_FILE"),
			Destination: &cfg.scenarioFile,
		},
		&cli.StringFlag{
			Name:        "data",
			Aliases:     []string{"d"},
			Usage:       "Path to the unified JSON dataset",
			Sources:     cli.EnvVars("DUET_DATA_PATH"),
			Destination: &cfg.dataPath,
		},
		&cli.StringFlag{
			Name:        "tabular-backend",
			Usage:       "Tabular store backend (sqlite, bigquery)",
			Value:       "sqlite",
			Sources:     cli.EnvVars("DUET_TABULAR_BACKEND"),
			Destination: &cfg.tabularBackend,
		},
		&cli.StringFlag{
			Name:        "vector-backend",
			Usage:       "Vector index backend (memory, firestore)",
			Value:       "memory",
			Sources:     cli.EnvVars("DUET_VECTOR_BACKEND"),
			Destination: &cfg.vectorBackend,
		},
		&cli.IntFlag{
			Name:        "max-rounds",
			Usage:       "Maximum retrieval rounds per search",
			Value:       retrieve.DefaultMaxRounds,
			Sources:     cli.EnvVars("DUET_MAX_ROUNDS"),
			Destination: &cfg.maxRounds,
		},
		&cli.IntFlag{
			Name:        "batch-size",
			Usage:       "Chunks consumed per retrieval round",
			Value:       retrieve.DefaultBatchSize,
			Sources:     cli.EnvVars("DUET_BATCH_SIZE"),
			Destination: &cfg.batchSize,
		},
		&cli.IntFlag{
			Name:        "history-turns",
			Usage:       "Conversation turns retained per session",
			Value:       5,
			Sources:     cli.EnvVars("DUET_HISTORY_TURNS"),
			Destination: &cfg.historyTurns,
		},
	}
}

func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "generative-model",
			Usage:       "Generative model name",
			Sources:     cli.EnvVars("DUET_GENERATIVE_MODEL"),
			Destination: &cfg.generativeModel,
		},
		&cli.StringFlag{
			Name:        "embedding-model",
			Usage:       "Embedding model name",
			Sources:     cli.EnvVars("DUET_EMBEDDING_MODEL"),
			Destination: &cfg.embeddingModel,
		},
	}
}

func storeFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "bigquery-project",
			Usage:       "Google Cloud project ID for the BigQuery backend",
			Sources:     cli.EnvVars("DUET_BIGQUERY_PROJECT"),
			Destination: &cfg.bigqueryProject,
		},
		&cli.StringFlag{
			Name:        "bigquery-dataset",
			Usage:       "BigQuery dataset ID",
			Sources:     cli.EnvVars("DUET_BIGQUERY_DATASET"),
			Destination: &cfg.bigqueryDataset,
		},
		&cli.StringFlag{
			Name:        "bigquery-table",
			Usage:       "BigQuery table name",
			Sources:     cli.EnvVars("DUET_BIGQUERY_TABLE"),
			Destination: &cfg.bigqueryTable,
		},
		&cli.StringFlag{
			Name:        "firestore-project",
			Usage:       "Google Cloud project ID for the Firestore backend",
			Sources:     cli.EnvVars("DUET_FIRESTORE_PROJECT"),
			Destination: &cfg.firestoreProject,
		},
		&cli.StringFlag{
			Name:        "firestore-database",
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("DUET_FIRESTORE_DATABASE"),
			Destination: &cfg.firestoreDatabase,
		},
		&cli.StringFlag{
			Name:        "firestore-collection",
			Usage:       "Firestore collection holding chunk embeddings",
			Value:       "chunks",
			Sources:     cli.EnvVars("DUET_FIRESTORE_COLLECTION"),
			Destination: &cfg.firestoreCollection,
		},
	}
}

// applyScenarioFile merges the YAML scenario file into unset flags.
func (cfg *config) applyScenarioFile() error {
	if cfg.scenarioFile == "" {
		return nil
	}

	data, err := os.ReadFile(cfg.scenarioFile)
	if err != nil {
		return goerr.Wrap(err, "failed to read scenario file", goerr.V("path", cfg.scenarioFile))
	}

	var sc scenarioConfig
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return goerr.Wrap(err, "failed to parse scenario file", goerr.V("path", cfg.scenarioFile))
	}

	if cfg.scenario == "" {
		cfg.scenario = sc.Scenario
	}
	if cfg.dataPath == "" {
		cfg.dataPath = sc.DataPath
	}
	if sc.MaxRounds > 0 {
		cfg.maxRounds = sc.MaxRounds
	}
	if sc.BatchSize > 0 {
		cfg.batchSize = sc.BatchSize
	}
	if sc.HistoryTurns > 0 {
		cfg.historyTurns = sc.HistoryTurns
	}

	return nil
}

func (cfg *config) newGemini(ctx context.Context) (adapter.Gemini, error) {
	if cfg.geminiProject == "" {
		return nil, goerr.New("gemini-project is required")
	}

	var opts []adapter.GeminiOption
	if cfg.generativeModel != "" {
		opts = append(opts, adapter.WithGenerativeModel(cfg.generativeModel))
	}
	if cfg.embeddingModel != "" {
		opts = append(opts, adapter.WithEmbeddingModel(cfg.embeddingModel))
	}

	gemini, err := adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create gemini adapter")
	}
	return gemini, nil
}

func (cfg *config) newTabularStore(ctx context.Context) (adapter.TabularStore, error) {
	switch cfg.tabularBackend {
	case "sqlite", "":
		store, err := adapter.NewSQLite()
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create sqlite store")
		}
		return store, nil

	case "bigquery":
		if cfg.bigqueryProject == "" || cfg.bigqueryDataset == "" || cfg.bigqueryTable == "" {
			return nil, goerr.New("bigquery-project, bigquery-dataset and bigquery-table are required")
		}
		store, err := adapter.NewBigQuery(ctx, cfg.bigqueryProject, cfg.bigqueryDataset, cfg.bigqueryTable)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create bigquery store")
		}
		return store, nil

	default:
		return nil, goerr.New("unknown tabular backend", goerr.V("backend", cfg.tabularBackend))
	}
}

func (cfg *config) newVectorIndex(ctx context.Context, gemini adapter.Gemini) (adapter.VectorIndex, error) {
	switch cfg.vectorBackend {
	case "memory", "":
		return adapter.NewMemoryIndex(gemini), nil

	case "firestore":
		if cfg.firestoreProject == "" {
			return nil, goerr.New("firestore-project is required")
		}
		index, err := adapter.NewFirestoreIndex(ctx, cfg.firestoreProject, cfg.firestoreDatabase,
			gemini, adapter.WithCollection(cfg.firestoreCollection))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create firestore index")
		}
		return index, nil

	default:
		return nil, goerr.New("unknown vector backend", goerr.V("backend", cfg.vectorBackend))
	}
}

// newOrchestrator wires the full core: adapters, stores, guard, resolver,
// controller, session registry. When a data path is configured the dataset
// is loaded into both stores first.
func (cfg *config) newOrchestrator(ctx context.Context) (*orchestrate.Orchestrator, error) {
	if err := cfg.applyScenarioFile(); err != nil {
		return nil, err
	}

	logging.SetDefault(logging.New(cfg.logLevel, os.Stderr))

	gemini, err := cfg.newGemini(ctx)
	if err != nil {
		return nil, err
	}

	store, err := cfg.newTabularStore(ctx)
	if err != nil {
		return nil, err
	}

	index, err := cfg.newVectorIndex(ctx, gemini)
	if err != nil {
		return nil, err
	}

	if cfg.dataPath != "" {
		if err := loadDataset(ctx, cfg.dataPath, store, index); err != nil {
			return nil, err
		}
	}

	g, err := guard.New(ctx)
	if err != nil {
		return nil, err
	}

	resolver := sqlquery.New(gemini, store, sqlquery.WithGuard(g))
	controller := retrieve.New(gemini, index,
		retrieve.WithMaxRounds(int(cfg.maxRounds)),
		retrieve.WithBatchSize(int(cfg.batchSize)),
	)
	sessions := memory.New(memory.WithWindow(int(cfg.historyTurns)))

	return orchestrate.New(gemini, sessions, resolver, controller,
		orchestrate.WithScenario(cfg.scenario)), nil
}

func loadDataset(ctx context.Context, path string, store adapter.TabularStore, index adapter.VectorIndex) error {
	dataset, err := ingest.LoadFile(path)
	if err != nil {
		return err
	}

	if err := store.Load(ctx, dataset.Table, dataset.Columns, dataset.Rows); err != nil {
		return goerr.Wrap(err, "failed to load tabular data")
	}

	if err := index.Upsert(ctx, dataset.Chunks); err != nil {
		return goerr.Wrap(err, "failed to upsert chunks")
	}

	logging.From(ctx).Info("dataset loaded",
		"table", dataset.Table,
		"rows", len(dataset.Rows),
		"chunks", len(dataset.Chunks),
	)

	return nil
}
