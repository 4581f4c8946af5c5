package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/duet/pkg/model"
)

func askCommand() *cli.Command {
	var (
		cfg       config
		question  string
		sessionID string
		verbose   bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "question",
			Aliases:     []string{"q"},
			Usage:       "Ask a single question and exit",
			Destination: &question,
		},
		&cli.StringFlag{
			Name:        "session",
			Usage:       "Session ID to continue a conversation",
			Sources:     cli.EnvVars("DUET_SESSION_ID"),
			Destination: &sessionID,
		},
		&cli.BoolFlag{
			Name:        "verbose",
			Aliases:     []string{"v"},
			Usage:       "Print phase timings and sources",
			Destination: &verbose,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, storeFlags(&cfg)...)

	return &cli.Command{
		Name:  "ask",
		Usage: "Ask questions interactively or one-shot",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			orchestrator, err := cfg.newOrchestrator(ctx)
			if err != nil {
				return err
			}

			if sessionID == "" {
				sessionID = uuid.NewString()
			}

			if question != "" {
				return askOnce(ctx, c.Root().Writer, orchestrator, sessionID, question, verbose)
			}

			return askLoop(ctx, c.Root().Writer, orchestrator, sessionID, verbose)
		},
	}
}

type chatter interface {
	Chat(ctx context.Context, input *model.ChatInput) (*model.ChatOutput, error)
}

func askOnce(ctx context.Context, w io.Writer, orchestrator chatter, sessionID, question string, verbose bool) error {
	sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	sp.Suffix = " thinking..."
	sp.Start()

	output, err := orchestrator.Chat(ctx, &model.ChatInput{
		Question:  question,
		SessionID: sessionID,
	})
	sp.Stop()
	if err != nil {
		return goerr.Wrap(err, "failed to answer question")
	}

	printOutput(w, output, verbose)
	return nil
}

func askLoop(ctx context.Context, w io.Writer, orchestrator chatter, sessionID string, verbose bool) error {
	rl, err := readline.New("duet> ")
	if err != nil {
		return goerr.Wrap(err, "failed to initialize prompt")
	}
	defer rl.Close()

	fmt.Fprintf(w, "Session %s. Type 'exit' to quit.\n", sessionID)

	for {
		line, err := rl.Readline()
		if err != nil {
			// Ctrl-C on an empty line or Ctrl-D ends the session.
			if err == readline.ErrInterrupt || err == io.EOF {
				break
			}
			return goerr.Wrap(err, "failed to read input")
		}

		question := strings.TrimSpace(line)
		if question == "" {
			continue
		}
		if question == "exit" || question == "quit" {
			break
		}

		if err := askOnce(ctx, w, orchestrator, sessionID, question, verbose); err != nil {
			return err
		}
	}

	fmt.Fprintf(w, "\nSession ended\n")
	return nil
}

func printOutput(w io.Writer, output *model.ChatOutput, verbose bool) {
	fmt.Fprintf(w, "%s\n", output.Answer)

	if !verbose {
		return
	}

	if output.SQLQuery != "" {
		fmt.Fprintf(w, "\n[sql] %s\n", output.SQLQuery)
	}
	for _, src := range output.Sources {
		fmt.Fprintf(w, "[source %s] %s\n", src.ChunkID, firstLine(src.Content))
	}
	if total, ok := output.Timing["total_ms"]; ok {
		fmt.Fprintf(w, "[timing] total %.2fms\n", total)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
