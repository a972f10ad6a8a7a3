package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"chirp/config"
	"chirp/feeds"
	"chirp/firehose"
	"chirp/models"
	"chirp/server"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the chirp feed API",
		Description: `Starts the chirp HTTP server on the configured port.

With --firehose the server also subscribes to Bluesky Jetstream and
applies every post and follow to the served store, so feeds can be read
for real accounts by DID.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to TOML config file",
				EnvVars: []string{"CHIRP_CONFIG"},
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on, overrides the config file",
				EnvVars: []string{"CHIRP_PORT"},
			},
			&cli.BoolFlag{
				Name:    "firehose",
				Usage:   "Ingest posts and follows from Bluesky Jetstream",
				EnvVars: []string{"CHIRP_FIREHOSE"},
			},
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := config.LoadConfig(ctx.String("config"))
			if err != nil {
				return err
			}
			if ctx.IsSet("port") {
				cfg.Server.Port = ctx.Int("port")
			}

			opts, err := cfg.FeedOptions()
			if err != nil {
				return err
			}
			store := feeds.NewSyncStore[string, string](opts...)
			bc := server.NewBroadcaster(store.IsFollowing)

			app := server.Server(&server.ServerConfig{
				Store:       store,
				Broadcaster: bc,
			})

			sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt)
			defer stop()

			var wg sync.WaitGroup

			if ctx.Bool("firehose") {
				events := make(chan interface{}, cfg.Firehose.QueueSize)

				wg.Add(2)
				go func() {
					defer wg.Done()
					log.Info("Subscribing to firehose...")
					if err := firehose.Subscribe(sigCtx, store, events, firehoseConfig(cfg)); err != nil {
						log.Errorf("Firehose stopped: %v", err)
						stop()
					}
				}()
				go func() {
					defer wg.Done()
					forwardPosts(sigCtx, events, bc)
				}()
			}

			go func() {
				<-sigCtx.Done()
				log.Info("Gracefully shutting down...")
				bc.Shutdown()
				if err := app.ShutdownWithTimeout(60 * time.Second); err != nil {
					log.Errorf("Server shutdown: %v", err)
				}
			}()

			log.WithFields(log.Fields{
				"port":     cfg.Server.Port,
				"strategy": cfg.Feed.Strategy,
				"size":     cfg.Feed.Size,
			}).Info("Starting server...")
			err = app.Listen(fmt.Sprintf(":%d", cfg.Server.Port))

			// Listen returns at once on startup errors, make sure the firehose goes too
			stop()
			wg.Wait()

			log.Info("Done!")
			return err
		},
	}
}

func firehoseConfig(cfg *config.TomlConfig) firehose.FirehoseConfig {
	return firehose.FirehoseConfig{
		JetstreamHosts:    cfg.Firehose.Hosts,
		JetstreamCompress: cfg.Firehose.Compress,
		UserAgent:         cfg.Firehose.UserAgent,
		Workers:           cfg.Firehose.Workers,
		QueueSize:         cfg.Firehose.QueueSize,
	}
}

// forwardPosts passes new posts from the firehose on to SSE clients
func forwardPosts(ctx context.Context, events <-chan interface{}, bc *server.Broadcaster) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			if post, ok := event.(models.CreatePostEvent); ok {
				bc.BroadcastCreatePost(post)
			}
		}
	}
}
