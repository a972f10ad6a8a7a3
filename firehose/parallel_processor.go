package firehose

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"

	jetstream_models "github.com/bluesky-social/jetstream/pkg/models"
	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var eventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "chirp_firehose_events_total",
	Help: "Jetstream events handled by the processor, by result",
}, []string{"result"})

// ParallelProcessor decodes raw messages and applies them on a pool of
// workers. Events are sharded by repository DID so each account's commits
// are applied in the order Jetstream sent them.
type ParallelProcessor struct {
	maxWorkers  int
	workerQueue chan *RawMessage
	shards      []chan *jetstream_models.Event
	processor   *Processor
	decoder     *zstd.Decoder
	seen        func(timeUS int64)
	lastSeen    int64
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewParallelProcessor sets up the pool. seen is called with the time_us of
// every decoded event and may be nil.
func NewParallelProcessor(ctx context.Context, maxWorkers int, maxQueueSize int, compress bool, processor *Processor, seen func(int64)) (*ParallelProcessor, error) {
	if maxWorkers < 1 {
		return nil, fmt.Errorf("need at least one worker, got %d", maxWorkers)
	}
	if maxQueueSize < 0 {
		return nil, fmt.Errorf("queue size must not be negative, got %d", maxQueueSize)
	}

	ctx, cancel := context.WithCancel(ctx)

	pp := &ParallelProcessor{
		maxWorkers:  maxWorkers,
		workerQueue: make(chan *RawMessage, maxQueueSize),
		shards:      make([]chan *jetstream_models.Event, maxWorkers),
		processor:   processor,
		seen:        seen,
		ctx:         ctx,
		cancel:      cancel,
	}

	for i := range pp.shards {
		pp.shards[i] = make(chan *jetstream_models.Event, maxQueueSize/maxWorkers+1)
	}

	if compress {
		decoder, err := zstd.NewReader(nil, zstd.WithDecoderDicts(jetstream_models.ZSTDDictionary))
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		pp.decoder = decoder
	}

	return pp, nil
}

// Queue is where the Jetstream client delivers messages
func (pp *ParallelProcessor) Queue() chan<- *RawMessage {
	return pp.workerQueue
}

func (pp *ParallelProcessor) start() {
	pp.wg.Add(pp.maxWorkers + 1)
	go pp.dispatch()
	for i, shard := range pp.shards {
		go pp.startWorker(i, shard)
	}
}

// stop cancels the pool and waits for every goroutine to exit
func (pp *ParallelProcessor) stop() {
	pp.cancel()
	pp.wg.Wait()
	if pp.decoder != nil {
		pp.decoder.Close()
	}
}

func (pp *ParallelProcessor) dispatch() {
	defer pp.wg.Done()

	for {
		select {
		case <-pp.ctx.Done():
			return
		case msg := <-pp.workerQueue:
			event, err := pp.decode(msg)
			if err != nil {
				eventsProcessed.WithLabelValues("decode_error").Inc()
				log.Errorf("Dispatcher: %v", err)
				continue
			}

			// Replayed after a reconnect
			if event.TimeUS != 0 && event.TimeUS <= pp.lastSeen {
				eventsProcessed.WithLabelValues("replayed").Inc()
				continue
			}
			if event.TimeUS > pp.lastSeen {
				pp.lastSeen = event.TimeUS
			}
			if pp.seen != nil {
				pp.seen(event.TimeUS)
			}

			select {
			case pp.shards[pp.shardFor(event.Did)] <- event:
			case <-pp.ctx.Done():
				return
			}
		}
	}
}

func (pp *ParallelProcessor) shardFor(did string) int {
	h := fnv.New32a()
	h.Write([]byte(did))
	return int(h.Sum32() % uint32(len(pp.shards)))
}

// decode decompresses the message if needed and parses the event envelope
func (pp *ParallelProcessor) decode(msg *RawMessage) (*jetstream_models.Event, error) {
	data := msg.Data
	if pp.decoder != nil {
		var err error
		data, err = pp.decoder.DecodeAll(msg.Data, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress message: %w", err)
		}
	}

	var event jetstream_models.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return &event, nil
}

func (pp *ParallelProcessor) startWorker(id int, shard chan *jetstream_models.Event) {
	defer pp.wg.Done()

	for {
		select {
		case <-pp.ctx.Done():
			log.Debugf("Worker %d: Shutting down", id)
			return
		case event := <-shard:
			if err := pp.processor.Apply(event); err != nil {
				eventsProcessed.WithLabelValues("error").Inc()
				log.Errorf("Worker %d: Error processing event: %v", id, err)
				continue
			}
			eventsProcessed.WithLabelValues("ok").Inc()
		}
	}
}
