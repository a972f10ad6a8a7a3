package server

import (
	"sync"

	"chirp/models"

	log "github.com/sirupsen/logrus"
)

type sseClient struct {
	user  string
	posts chan models.CreatePostEvent
}

// Broadcaster fans out new posts to the SSE clients whose feed they belong to.
type Broadcaster struct {
	sync.RWMutex
	clients map[string]*sseClient
	// follows reports whether follower currently follows followee
	follows func(follower, followee string) bool
}

func NewBroadcaster(follows func(follower, followee string) bool) *Broadcaster {
	return &Broadcaster{
		clients: make(map[string]*sseClient),
		follows: follows,
	}
}

// BroadcastCreatePost sends the post to every client viewing the author's
// feed or the feed of one of the author's followers.
func (b *Broadcaster) BroadcastCreatePost(post models.CreatePostEvent) {
	b.RLock()
	defer b.RUnlock()

	for key, client := range b.clients {
		if client.user != post.Author && !b.follows(client.user, post.Author) {
			continue
		}
		select {
		case client.posts <- post: // Non-blocking send
		default:
			log.Warnf("Client channel full, skipping post for client: %v", key)
		}
	}
}

// AddClient registers a client watching user's feed
func (b *Broadcaster) AddClient(key string, user string, posts chan models.CreatePostEvent) {
	b.Lock()
	defer b.Unlock()
	b.clients[key] = &sseClient{user: user, posts: posts}
	log.WithFields(log.Fields{
		"key":   key,
		"user":  user,
		"count": len(b.clients),
	}).Info("Adding client to broadcaster")
}

// RemoveClient closes and forgets the client. Unknown keys are ignored.
func (b *Broadcaster) RemoveClient(key string) {
	b.Lock()
	defer b.Unlock()

	client, ok := b.clients[key]
	if !ok {
		return
	}
	close(client.posts)
	delete(b.clients, key)

	log.WithFields(log.Fields{
		"key":   key,
		"count": len(b.clients),
	}).Info("Removed client from broadcaster")
}

// Clients returns the number of connected clients
func (b *Broadcaster) Clients() int {
	b.RLock()
	defer b.RUnlock()
	return len(b.clients)
}

func (b *Broadcaster) Shutdown() {
	log.Info("Shutting down broadcaster")
	b.Lock()
	defer b.Unlock()
	for key, client := range b.clients {
		close(client.posts)
		delete(b.clients, key)
	}
}
