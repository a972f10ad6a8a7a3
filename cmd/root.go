package cmd

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:  "chirp",
		Usage: "An in-memory follow feed with a Bluesky ingester",
		Description: `Chirp keeps per-user post histories and a follow graph in memory
		and answers "the most recent posts from me and the accounts I follow".

		Posts and follows can be written over the HTTP API, or ingested from
		the Bluesky Jetstream firehose.

		Flags can generally be set via environment variables, e.g.:

		--config => CHIRP_CONFIG=chirp.toml
		--port => CHIRP_PORT=8080
		`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (trace, debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"CHIRP_LOG_LEVEL"},
			},
		},
		Before: func(ctx *cli.Context) error {
			level, err := log.ParseLevel(ctx.String("log-level"))
			if err != nil {
				return fmt.Errorf("invalid log level: %w", err)
			}
			log.SetLevel(level)
			return nil
		},
		Commands: []*cli.Command{
			serveCmd(),
			subscribeCmd(),
			demoCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}
