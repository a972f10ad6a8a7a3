package firehose

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"chirp/feeds"
	"chirp/models"

	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/atproto/syntax"
	jetstream_models "github.com/bluesky-social/jetstream/pkg/models"
	log "github.com/sirupsen/logrus"
)

const (
	PostCollection   = "app.bsky.feed.post"
	FollowCollection = "app.bsky.graph.follow"
)

// followIndex remembers which account a follow record points at. Jetstream
// delete commits carry no record, only the record key. An account may hold
// several follow records for the same subject, so live records are counted
// per follower and subject.
type followIndex struct {
	mu       sync.Mutex
	subjects map[string]string
	records  map[string]int
}

func newFollowIndex() *followIndex {
	return &followIndex{
		subjects: make(map[string]string),
		records:  make(map[string]int),
	}
}

// put registers a record and returns the number of live records from did to
// subject.
func (f *followIndex) put(did, rkey, subject string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := did + "/" + rkey
	if old, ok := f.subjects[key]; ok {
		if old == subject {
			return f.records[did+"/"+old]
		}
		f.release(did, old)
	}
	f.subjects[key] = subject
	f.records[did+"/"+subject]++
	return f.records[did+"/"+subject]
}

// take forgets a record and returns its subject along with the number of
// records from did to that subject still live.
func (f *followIndex) take(did, rkey string) (string, int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := did + "/" + rkey
	subject, ok := f.subjects[key]
	if !ok {
		return "", 0, false
	}
	delete(f.subjects, key)
	return subject, f.release(did, subject), true
}

func (f *followIndex) release(did, subject string) int {
	key := did + "/" + subject
	n := f.records[key] - 1
	if n <= 0 {
		delete(f.records, key)
		return 0
	}
	f.records[key] = n
	return n
}

// Processor applies Jetstream commits to a feed store. Applied changes are
// also sent to events when it is not nil.
type Processor struct {
	context context.Context
	store   feeds.Service[string, string]
	events  chan<- interface{}
	follows *followIndex
}

func NewProcessor(ctx context.Context, store feeds.Service[string, string], events chan<- interface{}) *Processor {
	return &Processor{
		context: ctx,
		store:   store,
		events:  events,
		follows: newFollowIndex(),
	}
}

// Apply handles a single event. Events other than post creation and follow
// creation or deletion are ignored; posts are never removed from the store.
func (p *Processor) Apply(event *jetstream_models.Event) error {
	if event.Kind != jetstream_models.EventKindCommit || event.Commit == nil {
		return nil
	}

	did, err := syntax.ParseDID(event.Did)
	if err != nil {
		return fmt.Errorf("invalid did %q: %w", event.Did, err)
	}
	commit := event.Commit

	switch {
	case commit.Collection == PostCollection && commit.Operation == jetstream_models.CommitOperationCreate:
		return p.createPost(did, commit)
	case commit.Collection == FollowCollection && commit.Operation == jetstream_models.CommitOperationCreate:
		return p.createFollow(did, commit)
	case commit.Collection == FollowCollection && commit.Operation == jetstream_models.CommitOperationDelete:
		p.deleteFollow(did, commit)
	}
	return nil
}

func (p *Processor) createPost(did syntax.DID, commit *jetstream_models.Commit) error {
	uri, err := syntax.ParseATURI(fmt.Sprintf("at://%s/%s/%s", did, PostCollection, commit.RKey))
	if err != nil {
		return fmt.Errorf("invalid post uri: %w", err)
	}

	post := p.store.Post(did.String(), uri.String())

	log.WithFields(log.Fields{
		"author": did,
		"uri":    uri,
		"seq":    post.Seq,
	}).Debug("Adding post to feed store")

	p.emit(models.CreatePostEvent{Author: did.String(), Seq: post.Seq, Item: post.Item})
	return nil
}

func (p *Processor) createFollow(did syntax.DID, commit *jetstream_models.Commit) error {
	var record bsky.GraphFollow
	if err := json.Unmarshal(commit.Record, &record); err != nil {
		return fmt.Errorf("failed to unmarshal follow: %w", err)
	}

	subject, err := syntax.ParseDID(record.Subject)
	if err != nil {
		return fmt.Errorf("invalid follow subject %q: %w", record.Subject, err)
	}

	if subject == did {
		// The store ignores self follows, so there is nothing to remember
		return nil
	}

	if p.follows.put(did.String(), commit.RKey, subject.String()) > 1 {
		// Already following through another record
		return nil
	}
	p.store.Follow(did.String(), subject.String())

	log.WithFields(log.Fields{
		"follower": did,
		"followee": subject,
	}).Debug("Follow")

	p.emit(models.FollowEvent{Follower: did.String(), Followee: subject.String()})
	return nil
}

func (p *Processor) deleteFollow(did syntax.DID, commit *jetstream_models.Commit) {
	subject, remaining, ok := p.follows.take(did.String(), commit.RKey)
	if !ok {
		// Created before we started listening
		return
	}
	if remaining > 0 {
		log.WithFields(log.Fields{
			"follower":  did,
			"followee":  subject,
			"remaining": remaining,
		}).Debug("Follow record deleted, still following")
		return
	}

	p.store.Unfollow(did.String(), subject)

	log.WithFields(log.Fields{
		"follower": did,
		"followee": subject,
	}).Debug("Unfollow")

	p.emit(models.UnfollowEvent{Follower: did.String(), Followee: subject})
}

func (p *Processor) emit(event interface{}) {
	if p.events == nil {
		return
	}
	select {
	case p.events <- event:
	case <-p.context.Done():
	}
}
