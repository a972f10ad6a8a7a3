package firehose_test

import (
	"context"
	"encoding/json"
	"testing"

	"chirp/feeds"
	"chirp/firehose"
	"chirp/models"

	jetstream_models "github.com/bluesky-social/jetstream/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = "did:plc:alice"
	bob   = "did:plc:bob"
)

func commit(did, operation, collection, rkey string, record any) *jetstream_models.Event {
	var raw json.RawMessage
	if record != nil {
		raw, _ = json.Marshal(record)
	}
	return &jetstream_models.Event{
		Did:    did,
		TimeUS: 1,
		Kind:   jetstream_models.EventKindCommit,
		Commit: &jetstream_models.Commit{
			Operation:  operation,
			Collection: collection,
			RKey:       rkey,
			Record:     raw,
		},
	}
}

func createPost(did, rkey string) *jetstream_models.Event {
	return commit(did, jetstream_models.CommitOperationCreate, firehose.PostCollection, rkey, map[string]any{
		"$type":     firehose.PostCollection,
		"text":      "hello",
		"createdAt": "2024-12-01T10:00:00Z",
	})
}

func createFollow(did, rkey, subject string) *jetstream_models.Event {
	return commit(did, jetstream_models.CommitOperationCreate, firehose.FollowCollection, rkey, map[string]any{
		"$type":     firehose.FollowCollection,
		"subject":   subject,
		"createdAt": "2024-12-01T10:00:00Z",
	})
}

func deleteFollow(did, rkey string) *jetstream_models.Event {
	return commit(did, jetstream_models.CommitOperationDelete, firehose.FollowCollection, rkey, nil)
}

func newProcessor(t *testing.T) (*firehose.Processor, *feeds.SyncStore[string, string]) {
	t.Helper()
	store := feeds.NewSyncStore[string, string]()
	return firehose.NewProcessor(context.Background(), store, nil), store
}

func TestApplyPostCreate(t *testing.T) {
	p, store := newProcessor(t)

	require.NoError(t, p.Apply(createPost(alice, "3kpost1")))
	require.NoError(t, p.Apply(createPost(alice, "3kpost2")))

	assert.Equal(t, []string{
		"at://did:plc:alice/app.bsky.feed.post/3kpost2",
		"at://did:plc:alice/app.bsky.feed.post/3kpost1",
	}, store.Feed(alice))
}

func TestApplyFollowLifecycle(t *testing.T) {
	p, store := newProcessor(t)

	require.NoError(t, p.Apply(createFollow(alice, "3kfollow", bob)))
	assert.True(t, store.IsFollowing(alice, bob))

	require.NoError(t, p.Apply(createPost(bob, "3kpost1")))
	assert.Equal(t, []string{"at://did:plc:bob/app.bsky.feed.post/3kpost1"}, store.Feed(alice))

	require.NoError(t, p.Apply(deleteFollow(alice, "3kfollow")))
	assert.False(t, store.IsFollowing(alice, bob))
	assert.Empty(t, store.Feed(alice))
}

func TestApplyUnknownFollowDeleteIsIgnored(t *testing.T) {
	p, store := newProcessor(t)
	store.Follow(alice, bob)

	require.NoError(t, p.Apply(deleteFollow(alice, "3kunknown")))
	assert.True(t, store.IsFollowing(alice, bob))
}

func TestApplyDuplicateFollowRecords(t *testing.T) {
	p, store := newProcessor(t)

	require.NoError(t, p.Apply(createFollow(alice, "3kfollow1", bob)))
	require.NoError(t, p.Apply(createFollow(alice, "3kfollow2", bob)))

	require.NoError(t, p.Apply(deleteFollow(alice, "3kfollow1")))
	assert.True(t, store.IsFollowing(alice, bob), "second record still stands")

	require.NoError(t, p.Apply(deleteFollow(alice, "3kfollow2")))
	assert.False(t, store.IsFollowing(alice, bob))

	// Following again after both records are gone works as usual
	require.NoError(t, p.Apply(createFollow(alice, "3kfollow3", bob)))
	assert.True(t, store.IsFollowing(alice, bob))
}

func TestApplySelfFollowIsIgnored(t *testing.T) {
	store := feeds.NewSyncStore[string, string]()
	events := make(chan interface{}, 2)
	p := firehose.NewProcessor(context.Background(), store, events)

	require.NoError(t, p.Apply(createFollow(alice, "3kself", alice)))
	require.NoError(t, p.Apply(deleteFollow(alice, "3kself")))

	assert.Empty(t, store.Followees(alice))
	assert.Empty(t, events)
}

func TestApplyIgnoredEvents(t *testing.T) {
	tests := []struct {
		name  string
		event *jetstream_models.Event
	}{
		{
			name:  "post delete",
			event: commit(alice, jetstream_models.CommitOperationDelete, firehose.PostCollection, "3kpost1", nil),
		},
		{
			name:  "post update",
			event: commit(alice, jetstream_models.CommitOperationUpdate, firehose.PostCollection, "3kpost1", map[string]any{"text": "x"}),
		},
		{
			name:  "like",
			event: commit(alice, jetstream_models.CommitOperationCreate, "app.bsky.feed.like", "3klike", map[string]any{}),
		},
		{
			name:  "identity event",
			event: &jetstream_models.Event{Did: alice, Kind: "identity"},
		},
		{
			name:  "commit kind without commit",
			event: &jetstream_models.Event{Did: alice, Kind: jetstream_models.EventKindCommit},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, store := newProcessor(t)
			require.NoError(t, p.Apply(tt.event))
			assert.Equal(t, 0, store.Len())
			assert.Empty(t, store.Followees(alice))
		})
	}
}

func TestApplyErrors(t *testing.T) {
	tests := []struct {
		name  string
		event *jetstream_models.Event
	}{
		{name: "invalid author did", event: createPost("not-a-did", "3kpost1")},
		{name: "invalid follow subject", event: createFollow(alice, "3kfollow", "bob")},
		{
			name: "malformed follow record",
			event: func() *jetstream_models.Event {
				e := createFollow(alice, "3kfollow", bob)
				e.Commit.Record = json.RawMessage(`{"subject":`)
				return e
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, store := newProcessor(t)
			assert.Error(t, p.Apply(tt.event))
			assert.Equal(t, 0, store.Len())
			assert.Empty(t, store.Followees(alice))
		})
	}
}

func TestApplyEmitsEvents(t *testing.T) {
	store := feeds.NewSyncStore[string, string]()
	events := make(chan interface{}, 5)
	p := firehose.NewProcessor(context.Background(), store, events)

	require.NoError(t, p.Apply(createFollow(alice, "3kfollow", bob)))
	require.NoError(t, p.Apply(createFollow(alice, "3kagain", bob)))
	require.NoError(t, p.Apply(createPost(bob, "3kpost1")))
	require.NoError(t, p.Apply(deleteFollow(alice, "3kagain")))
	require.NoError(t, p.Apply(deleteFollow(alice, "3kfollow")))

	assert.Equal(t, models.FollowEvent{Follower: alice, Followee: bob}, <-events)
	assert.Equal(t, models.CreatePostEvent{
		Author: bob,
		Seq:    1,
		Item:   "at://did:plc:bob/app.bsky.feed.post/3kpost1",
	}, <-events)
	assert.Equal(t, models.UnfollowEvent{Follower: alice, Followee: bob}, <-events)
	assert.Empty(t, events)
}
