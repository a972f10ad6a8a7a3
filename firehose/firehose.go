package firehose

import (
	"context"
	"errors"

	"chirp/feeds"

	log "github.com/sirupsen/logrus"
)

// FirehoseConfig holds configuration for the firehose processing
type FirehoseConfig struct {
	JetstreamHosts    []string
	JetstreamCompress bool
	UserAgent         string
	Workers           int
	QueueSize         int
	// Cursor is a time_us to resume from, zero starts at the live tail
	Cursor int64
}

// Subscribe streams posts and follows from Jetstream into store until ctx
// is cancelled. Applied changes are sent to events when it is not nil.
func Subscribe(ctx context.Context, store feeds.Service[string, string], events chan<- interface{}, config FirehoseConfig) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client, err := NewJetstreamClient(JetstreamConfig{
		Hosts:             config.JetstreamHosts,
		Compress:          config.JetstreamCompress,
		UserAgent:         config.UserAgent,
		WantedCollections: []string{PostCollection, FollowCollection},
		Cursor:            config.Cursor,
	})
	if err != nil {
		return err
	}

	processor := NewProcessor(ctx, store, events)
	pp, err := NewParallelProcessor(ctx, config.Workers, config.QueueSize, config.JetstreamCompress, processor, client.Seen)
	if err != nil {
		return err
	}

	pp.start()
	defer func() {
		// Unblocks workers waiting on events before waiting for them
		cancel()
		pp.stop()
	}()

	err = client.Run(ctx, pp.Queue())
	if errors.Is(err, context.Canceled) {
		log.WithFields(log.Fields{
			"cursor": client.Cursor(),
		}).Info("Firehose subscription stopped")
		return nil
	}
	return err
}
