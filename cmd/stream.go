package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/skyroast/skyroast/internal/config"
	"github.com/skyroast/skyroast/internal/streamclient"
)

// StreamCommand returns the CLI command that consumes a comment stream for a
// post and renders the reply token by token.
func StreamCommand() *cli.Command {
	return &cli.Command{
		Name:      "stream",
		Usage:     "Stream the AI comment for a submitted post",
		ArgsUsage: "<postId>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "base-url",
				Usage: "Stream server base URL (skips derivation)",
			},
			&cli.StringFlag{
				Name:  "api-url",
				Usage: "API base URL the stream URL is derived from",
				Value: "http://localhost:8787",
			},
		},
		Action: runStream,
	}
}

func runStream(c *cli.Context) error {
	postID := c.Args().First()
	if postID == "" {
		return fmt.Errorf("a post id is required")
	}

	base := c.String("base-url")
	if base == "" {
		derived, err := config.DeriveStreamBaseURL(c.String("api-url"))
		if err != nil {
			return fmt.Errorf("failed to derive stream base URL: %w", err)
		}
		base = derived
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumer := streamclient.NewConsumer(base)
	defer consumer.Close()

	consumer.Start(ctx, postID)

	printed := 0
	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case snap, ok := <-consumer.Updates():
			if !ok {
				return nil
			}
			if len(snap.Text) > printed {
				fmt.Print(snap.Text[printed:])
				printed = len(snap.Text)
			}
			if snap.Status == streamclient.StatusComplete {
				fmt.Printf("\nsaved comment %s\n", snap.CommentID)
				return nil
			}
			if snap.Status == streamclient.StatusError {
				fmt.Println()
				return snap.Err
			}
		}
	}
}
