package firehose

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var (
	wsConnectionAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chirp_jetstream_connection_attempts_total",
		Help: "The total number of connection attempts to the Jetstream websocket",
	})

	wsConnectionErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chirp_jetstream_connection_errors_total",
		Help: "The total number of connection errors encountered",
	})

	wsCurrentConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chirp_jetstream_current_connections",
		Help: "The current number of active Jetstream websocket connections",
	})

	wsConnectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chirp_jetstream_connection_duration_seconds",
		Help:    "Duration of Jetstream websocket connections",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10), // Start at 1s, double each bucket
	})

	wsMessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chirp_jetstream_messages_received_total",
		Help: "The total number of websocket messages read from Jetstream",
	})

	wsHostSwitches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chirp_jetstream_host_switches_total",
		Help: "Number of times the connection switched to a different host",
	}, []string{"from_host", "to_host"})
)

const (
	wsReadBufferSize  = 1024 * 1024 // 1MB
	wsWriteBufferSize = 1024        // 1KB
	wsReadTimeout     = 60 * time.Second
	wsWriteTimeout    = 10 * time.Second
	wsPingInterval    = 30 * time.Second

	// Replay a little on reconnect, hosts do not share exact timestamps.
	// Replayed events are dropped by the dispatcher.
	cursorRewind = 2 * time.Second
)

// JetstreamConfig holds configuration for the Jetstream connection
type JetstreamConfig struct {
	// Hosts is a list of Jetstream endpoints to try in order
	// e.g. ["wss://jetstream1.us-east.bsky.network", "wss://jetstream2.us-east.bsky.network"]
	Hosts             []string
	WantedCollections []string
	WantedDids        []string
	Cursor            int64
	Compress          bool
	UserAgent         string
}

// RawMessage represents an unparsed message from the websocket
type RawMessage struct {
	MessageType int    // websocket.TextMessage or websocket.BinaryMessage
	Data        []byte // Raw message data
}

// JetstreamClient keeps a websocket to one of the configured hosts open,
// reconnecting and resuming from the last processed event when it drops.
type JetstreamClient struct {
	config  JetstreamConfig
	dialer  websocket.Dialer
	hostIdx int
	cursor  atomic.Int64
}

func NewJetstreamClient(config JetstreamConfig) (*JetstreamClient, error) {
	if len(config.Hosts) == 0 {
		return nil, fmt.Errorf("no hosts provided in config")
	}

	c := &JetstreamClient{
		config: config,
		dialer: websocket.Dialer{
			ReadBufferSize:   wsReadBufferSize,
			WriteBufferSize:  wsWriteBufferSize,
			HandshakeTimeout: 45 * time.Second,
			NetDialContext: (&net.Dialer{
				Timeout:   45 * time.Second,
				KeepAlive: 45 * time.Second,
			}).DialContext,
		},
	}
	c.cursor.Store(config.Cursor)
	return c, nil
}

// Seen records the time_us of a processed event. Reconnects resume from the
// newest one.
func (c *JetstreamClient) Seen(timeUS int64) {
	for {
		cur := c.cursor.Load()
		if timeUS <= cur || c.cursor.CompareAndSwap(cur, timeUS) {
			return
		}
	}
}

// Cursor returns the newest time_us passed to Seen
func (c *JetstreamClient) Cursor() int64 {
	return c.cursor.Load()
}

// subscribeURL builds the subscribe URL for host
func (c *JetstreamClient) subscribeURL(host string) (string, error) {
	u, err := url.Parse(fmt.Sprintf("%s/subscribe", host))
	if err != nil {
		return "", fmt.Errorf("failed to parse URL: %w", err)
	}

	q := u.Query()
	for _, collection := range c.config.WantedCollections {
		q.Add("wantedCollections", collection)
	}
	for _, did := range c.config.WantedDids {
		q.Add("wantedDids", did)
	}
	if cursor := c.cursor.Load(); cursor != 0 {
		q.Set("cursor", fmt.Sprintf("%d", cursor-cursorRewind.Microseconds()))
	}
	if c.config.Compress {
		q.Set("compress", "true")
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// connect dials hosts in turn until one answers or ctx is done
func (c *JetstreamClient) connect(ctx context.Context) (*websocket.Conn, error) {
	// Set up exponential backoff for reconnection attempts
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.Multiplier = 1.5
	b.MaxElapsedTime = 0 // Never stop retrying

	headers := http.Header{}
	if c.config.UserAgent != "" {
		headers.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.Compress {
		headers.Set("Accept-Encoding", "zstd")
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		host := c.config.Hosts[c.hostIdx]
		target, err := c.subscribeURL(host)
		if err != nil {
			return nil, err
		}

		wsConnectionAttempts.Inc()
		conn, _, err := c.dialer.DialContext(ctx, target, headers)
		if err == nil {
			log.WithFields(log.Fields{
				"host":   host,
				"cursor": c.cursor.Load(),
			}).Info("Connected to Jetstream")
			return conn, nil
		}

		wsConnectionErrors.Inc()
		log.Errorf("Error connecting to Jetstream host %s: %s", host, err)

		// Try the next host, waiting only once every host has failed
		next := (c.hostIdx + 1) % len(c.config.Hosts)
		if next != c.hostIdx {
			wsHostSwitches.WithLabelValues(host, c.config.Hosts[next]).Inc()
			log.Infof("Switching from host %s to %s", host, c.config.Hosts[next])
			c.hostIdx = next
			if next != 0 {
				continue
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.NextBackOff()):
		}
	}
}

// Run reads messages into queue until ctx is cancelled, reconnecting when
// the connection drops.
func (c *JetstreamClient) Run(ctx context.Context, queue chan<- *RawMessage) error {
	log.WithFields(log.Fields{
		"hosts":       c.config.Hosts,
		"collections": c.config.WantedCollections,
	}).Info("Subscribing to Jetstream")

	for {
		conn, err := c.connect(ctx)
		if err != nil {
			return err
		}

		err = c.read(ctx, conn, queue)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warnf("Jetstream connection lost, reconnecting: %v", err)
	}
}

// read pumps one connection until it fails
func (c *JetstreamClient) read(ctx context.Context, conn *websocket.Conn, queue chan<- *RawMessage) error {
	wsCurrentConnections.Inc()
	connStart := time.Now()

	connCtx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		conn.Close()
		wsCurrentConnections.Dec()
		wsConnectionDuration.Observe(time.Since(connStart).Seconds())
	}()

	setupConnectionHandlers(conn)
	go managePingPong(connCtx, conn)

	// Unblock ReadMessage when the caller gives up
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Errorf("Unexpected websocket close: %v", err)
			}
			wsConnectionErrors.Inc()
			return err
		}
		wsMessagesReceived.Inc()
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		select {
		case queue <- &RawMessage{MessageType: messageType, Data: message}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// setupConnectionHandlers configures the websocket connection handlers
func setupConnectionHandlers(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

	conn.SetCloseHandler(func(code int, text string) error {
		log.Infof("WebSocket connection closed with code %d: %s", code, text)
		return nil
	})

	conn.SetPingHandler(func(appData string) error {
		log.Debug("Received ping from server")
		if err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(wsWriteTimeout)); err != nil {
			return err
		}
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	conn.SetPongHandler(func(appData string) error {
		log.Debug("Received pong from server")
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})
}

// managePingPong sends keepalive pings until ctx is done or a ping fails
func managePingPong(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Debug("Sending ping to check connection")
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(wsWriteTimeout)); err != nil {
				log.Warn("Ping failed, closing connection for restart: ", err)
				wsConnectionErrors.Inc()
				conn.Close()
				return
			}
		}
	}
}
