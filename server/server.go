package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"chirp/feeds"
	"chirp/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

const maxFeedLimit = 100

var (
	postsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chirp_posts_created_total",
		Help: "The total number of posts created through the HTTP API",
	})

	followChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chirp_follow_changes_total",
		Help: "The total number of follow and unfollow requests",
	}, []string{"op"})

	feedQueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chirp_feed_query_duration_seconds",
		Help:    "Time spent selecting the newest posts for a feed",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10), // Start at 10µs
	})
)

type ServerConfig struct {
	// The store answering feed queries
	Store feeds.Service[string, string]

	// Broadcaster passing new posts to SSE clients
	Broadcaster *Broadcaster
}

// Returns a fiber.App instance serving the chirp HTTP API
func Server(config *ServerConfig) *fiber.App {
	store := config.Store
	bc := config.Broadcaster

	// Ids from params end up in the store, so they must outlive the request
	app := fiber.New(fiber.Config{
		Immutable:             true,
		DisableStartupMessage: true,
	})

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		log.WithFields(log.Fields{
			"method":  c.Method(),
			"route":   c.Route().Path,
			"status":  c.Response().StatusCode(),
			"latency": time.Since(start),
		}).Info("Request")
		return err
	})

	app.Use(requestid.New(requestid.ConfigDefault))
	app.Use(compress.New())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Post("/users/:user/posts", func(c *fiber.Ctx) error {
		user := c.Params("user")

		var req models.CreatePostRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).SendString("Invalid request body")
		}
		if req.Item == "" {
			return c.Status(fiber.StatusBadRequest).SendString("Missing item")
		}

		post := store.Post(user, req.Item)
		postsCreated.Inc()

		evt := models.CreatePostEvent{Author: user, Seq: post.Seq, Item: post.Item}
		if bc != nil {
			bc.BroadcastCreatePost(evt)
		}

		return c.Status(fiber.StatusCreated).JSON(models.FeedItem{Seq: post.Seq, Item: post.Item})
	})

	app.Put("/users/:user/following/:followee", func(c *fiber.Ctx) error {
		store.Follow(c.Params("user"), c.Params("followee"))
		followChanges.WithLabelValues("follow").Inc()
		return c.SendStatus(fiber.StatusNoContent)
	})

	app.Delete("/users/:user/following/:followee", func(c *fiber.Ctx) error {
		store.Unfollow(c.Params("user"), c.Params("followee"))
		followChanges.WithLabelValues("unfollow").Inc()
		return c.SendStatus(fiber.StatusNoContent)
	})

	app.Get("/users/:user/following", func(c *fiber.Ctx) error {
		following := store.Followees(c.Params("user"))
		sort.Strings(following)
		return c.JSON(models.FollowingResponse{Following: following})
	})

	app.Get("/users/:user/feed", func(c *fiber.Ctx) error {
		user := c.Params("user")
		limit := parseLimit(c.Query("limit"), store.FeedSize())

		start := time.Now()
		posts := store.RecentPosts(user, limit)
		feedQueryDuration.Observe(time.Since(start).Seconds())

		log.WithFields(log.Fields{
			"user":  user,
			"limit": limit,
			"count": len(posts),
		}).Debug("Generated feed")

		return c.JSON(models.FeedResponse{
			Feed: lo.Map(posts, func(p feeds.Post[string], _ int) models.FeedItem {
				return models.FeedItem{Seq: p.Seq, Item: p.Item}
			}),
		})
	})

	app.Delete("/users/:user/feed/sse", func(c *fiber.Ctx) error {
		if bc == nil {
			return c.SendStatus(fiber.StatusNotFound)
		}
		bc.RemoveClient(c.Query("key", ""))
		return c.Status(fiber.StatusOK).SendString("OK")
	})

	app.Get("/users/:user/feed/sse", func(c *fiber.Ctx) error {
		if bc == nil {
			return c.SendStatus(fiber.StatusNotFound)
		}

		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("Transfer-Encoding", "chunked")

		user := c.Params("user")

		key := uuid.New().String()
		posts := make(chan models.CreatePostEvent, 10)
		bc.AddClient(key, user, posts)

		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			aliveChan := time.NewTicker(5 * time.Second)
			defer aliveChan.Stop()
			defer func() {
				log.Infof("Cleaning up SSE stream for client: %s", key)
				bc.RemoveClient(key)
			}()

			fmt.Fprintf(w, "event: init\ndata: %s\n\n", key)
			if err := w.Flush(); err != nil {
				log.Errorf("Failed to send init event: %v", err)
				return
			}

			for {
				select {
				case <-aliveChan.C:
					if _, err := fmt.Fprintf(w, "event: ping\ndata: \n\n"); err != nil {
						log.Warnf("Failed to send ping to client %s: %v", key, err)
						return
					}
					if err := w.Flush(); err != nil {
						log.Warnf("Failed to flush ping for client %s: %v", key, err)
						return
					}

				case post, ok := <-posts:
					if !ok {
						log.Debugf("Post channel closed for client %s", key)
						return
					}
					jsonPost, err := json.Marshal(post)
					if err != nil {
						log.Errorf("Error marshalling post for client %s: %v", key, err)
						continue
					}
					if _, err := fmt.Fprintf(w, "event: create-post\ndata: %s\n\n", jsonPost); err != nil {
						log.Warnf("Failed to send create-post event to client %s: %v", key, err)
						return
					}
					if err := w.Flush(); err != nil {
						log.Warnf("Failed to flush create-post event for client %s: %v", key, err)
						return
					}
				}
			}
		}))

		return nil
	})

	return app
}

// parseLimit falls back to def for missing or out of range values
func parseLimit(raw string, def int) int {
	if raw == "" {
		return def
	}
	limit, err := strconv.ParseInt(raw, 0, 32)
	if err != nil || limit < 1 || limit > maxFeedLimit {
		return def
	}
	return int(limit)
}
