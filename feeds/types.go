// Package feeds keeps per-user post histories and a follow graph and answers
// "most recent items from self and followees" queries.
package feeds

import "fmt"

// DefaultFeedSize is the number of items returned by Feed.
const DefaultFeedSize = 10

// Post is a single entry in a user's history. Seq is assigned by the Store
// and orders posts across all users.
type Post[I any] struct {
	Seq  uint64
	Item I
}

// Service is the method set shared by Store and SyncStore.
type Service[U comparable, I any] interface {
	Post(user U, item I) Post[I]
	Follow(follower, followee U)
	Unfollow(follower, followee U)
	IsFollowing(follower, followee U) bool
	Followees(user U) []U
	Feed(user U) []I
	RecentFeed(user U, k int) []I
	RecentPosts(user U, k int) []Post[I]
	FeedSize() int
}

// Strategy selects how RecentFeed picks the newest posts.
type Strategy string

const (
	// StrategyHeap offers every post of every source to a bounded min-heap.
	StrategyHeap Strategy = "heap"
	// StrategyMerge walks each source backwards from its newest post.
	StrategyMerge Strategy = "merge"
)

// ParseStrategy returns the strategy named s. The empty string selects
// StrategyHeap.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyHeap:
		return StrategyHeap, nil
	case StrategyMerge:
		return StrategyMerge, nil
	}
	return "", fmt.Errorf("unknown feed strategy %q", s)
}

type options struct {
	feedSize     int
	strategy     Strategy
	historyLimit int
}

// Option configures a Store.
type Option func(*options)

// WithFeedSize sets the number of items returned by Feed. Values below one
// are ignored.
func WithFeedSize(k int) Option {
	return func(o *options) {
		if k > 0 {
			o.feedSize = k
		}
	}
}

// WithStrategy sets the selection strategy.
func WithStrategy(s Strategy) Option {
	return func(o *options) {
		o.strategy = s
	}
}

// WithHistoryLimit caps each user's history at the newest n posts. Zero keeps
// everything. Queries for k <= n items return the same result with or without
// the cap.
func WithHistoryLimit(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.historyLimit = n
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		feedSize: DefaultFeedSize,
		strategy: StrategyHeap,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
