package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/skyroast/skyroast/internal/api"
	"github.com/skyroast/skyroast/internal/bluesky"
	"github.com/skyroast/skyroast/internal/config"
	"github.com/skyroast/skyroast/internal/database"
	"github.com/skyroast/skyroast/internal/jobqueue"
	"github.com/skyroast/skyroast/internal/llm"
	"github.com/skyroast/skyroast/internal/store"
)

// ServeCommand returns the CLI command for starting the API server together
// with the background extraction workers.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the Skyroast API server and background workers",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides config)",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if p := c.Int("port"); p != 0 {
		cfg.Server.Port = p
	}

	db, err := database.NewDB(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	posts := store.NewPostStore(db)
	comments := store.NewCommentStore(db)

	generator, err := llm.New(llm.Config{
		APIKey:  cfg.AI.APIKey,
		BaseURL: cfg.AI.BaseURL,
		Model:   cfg.AI.Model,
	})
	if err != nil {
		return fmt.Errorf("failed to set up language model client: %w", err)
	}

	queueCfg := jobqueue.DefaultQueueConfig()
	if cfg.Queue.MaxWorkers > 0 {
		queueCfg.MaxWorkers = cfg.Queue.MaxWorkers
	}

	extractor := bluesky.NewClient(cfg.Bluesky.AppViewURL)
	queue, err := jobqueue.NewJobQueue(cfg.Database.URL, extractor, posts, queueCfg)
	if err != nil {
		return fmt.Errorf("failed to set up job queue: %w", err)
	}

	ctx := context.Background()
	if err := queue.Start(ctx); err != nil {
		return fmt.Errorf("failed to start job queue: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := queue.Stop(stopCtx); err != nil {
			log.Error().Err(err).Msg("job queue shutdown failed")
		}
	}()

	log.Info().Int("port", cfg.Server.Port).Msg("starting skyroast API server")
	server := api.NewServer(cfg.Server.Port, posts, comments, generator, queue)
	return server.Start()
}
