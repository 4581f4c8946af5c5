package cli

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/duet/pkg/model"
	"github.com/m-mizutani/duet/pkg/utils/logging"
)

func serveCommand() *cli.Command {
	var (
		cfg  config
		addr string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Listen address",
			Value:       ":8080",
			Sources:     cli.EnvVars("DUET_ADDR"),
			Destination: &addr,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, storeFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP chat API",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			orchestrator, err := cfg.newOrchestrator(ctx)
			if err != nil {
				return err
			}

			app := newServer(ctx, orchestrator)

			logging.From(ctx).Info("starting server", "addr", addr)
			return app.Listen(addr)
		},
	}
}

type chatRequest struct {
	Question    string `json:"question"`
	SessionID   string `json:"session_id"`
	GroundTruth string `json:"ground_truth,omitempty"`
}

type chatResponse struct {
	Answer    string             `json:"answer"`
	Sources   []*model.Source    `json:"sources,omitempty"`
	SQLQuery  string             `json:"sql_query,omitempty"`
	RawResult string             `json:"raw_result,omitempty"`
	Timing    map[string]float64 `json:"timing,omitempty"`
	SessionID string             `json:"session_id"`
}

func newServer(baseCtx context.Context, orchestrator chatter) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Post("/chat", func(c *fiber.Ctx) error {
		var req chatRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid request body",
			})
		}
		if req.Question == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "question is required",
			})
		}
		if req.SessionID == "" {
			req.SessionID = "default"
		}

		// Chat returns an error only for infrastructure faults; an
		// unanswerable question comes back as a normal answer.
		output, err := orchestrator.Chat(baseCtx, &model.ChatInput{
			Question:    req.Question,
			SessionID:   req.SessionID,
			GroundTruth: req.GroundTruth,
		})
		if err != nil {
			logging.From(baseCtx).Error("chat failed", "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "internal error",
			})
		}

		return c.JSON(&chatResponse{
			Answer:    output.Answer,
			Sources:   output.Sources,
			SQLQuery:  output.SQLQuery,
			RawResult: output.RawResult,
			Timing:    output.Timing,
			SessionID: req.SessionID,
		})
	})

	return app
}
