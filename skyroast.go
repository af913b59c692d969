package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/skyroast/skyroast/cmd"
	"github.com/skyroast/skyroast/internal/logging"
)

const (
	version = "0.1.0"
)

func main() {
	app := &cli.App{
		Name:    "skyroast",
		Usage:   "Streams AI roast comments for Bluesky posts",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				Value:   "skyroast.toml",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (trace, debug, info, warn, error)",
				Value: "info",
			},
		},
		Before: func(c *cli.Context) error {
			logging.Setup(c.String("log-level"))
			return nil
		},
		Commands: []*cli.Command{
			cmd.ServeCommand(),
			cmd.StreamCommand(),
			cmd.ConfigCommand(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
