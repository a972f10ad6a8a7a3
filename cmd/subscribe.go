package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"chirp/config"
	"chirp/feeds"
	"chirp/firehose"
	"chirp/models"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func subscribeCmd() *cli.Command {
	return &cli.Command{
		Name:  "subscribe",
		Usage: "Log posts and follows from the firehose to the command line",
		Description: `Subscribe to Bluesky Jetstream, apply every post and follow to a
local feed store and log each applied change to the command line.

Returns each change as a JSON object on a single line. Use a tool like jq
to process the output.

With --user the feed of that DID is printed every --interval as well.

Prints all other log messages to stderr.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to TOML config file",
				EnvVars: []string{"CHIRP_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "user",
				Usage: "DID whose feed is printed periodically",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "How often the --user feed is printed",
				Value: 30 * time.Second,
			},
		},
		Action: func(ctx *cli.Context) error {
			// Disable logging to stdout
			log.SetOutput(os.Stderr)

			cfg, err := config.LoadConfig(ctx.String("config"))
			if err != nil {
				return err
			}
			opts, err := cfg.FeedOptions()
			if err != nil {
				return err
			}
			store := feeds.NewSyncStore[string, string](opts...)

			sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt)
			defer stop()

			events := make(chan interface{}, cfg.Firehose.QueueSize)
			go printEvents(sigCtx, events)

			if user := ctx.String("user"); user != "" {
				go printFeed(sigCtx, store, user, ctx.Duration("interval"))
			}

			log.Info("Subscribing to firehose...")
			err = firehose.Subscribe(sigCtx, store, events, firehoseConfig(cfg))
			log.WithFields(log.Fields{
				"posts": store.Len(),
			}).Info("Stopping subscription")
			return err
		},
	}
}

func printEvents(ctx context.Context, events <-chan interface{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			switch event := event.(type) {
			case models.CreatePostEvent:
				printStdout("post", event)
			case models.FollowEvent:
				printStdout("follow", event)
			case models.UnfollowEvent:
				printStdout("unfollow", event)
			}
		}
	}
}

func printFeed(ctx context.Context, store feeds.Service[string, string], user string, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			posts := store.RecentPosts(user, store.FeedSize())
			feed := models.FeedResponse{Feed: make([]models.FeedItem, 0, len(posts))}
			for _, p := range posts {
				feed.Feed = append(feed.Feed, models.FeedItem{Seq: p.Seq, Item: p.Item})
			}
			printStdout("feed", feed)
		}
	}
}

// printStdout writes a single line {"type": kind, "data": value}
func printStdout(kind string, value interface{}) {
	line, err := json.Marshal(map[string]interface{}{
		"type": kind,
		"data": value,
	})
	if err == nil {
		fmt.Println(string(line))
	}
}
