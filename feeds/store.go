package feeds

import (
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

// Store owns post histories and the follow graph. It is not safe for
// concurrent use; see SyncStore.
type Store[U comparable, I any] struct {
	seq       uint64
	posts     map[U][]Post[I]
	followees map[U]map[U]struct{}
	opts      options
}

// NewStore returns an empty Store.
func NewStore[U comparable, I any](opts ...Option) *Store[U, I] {
	return &Store[U, I]{
		posts:     make(map[U][]Post[I]),
		followees: make(map[U]map[U]struct{}),
		opts:      newOptions(opts),
	}
}

// Post appends item to the user's history and returns the stored post.
func (s *Store[U, I]) Post(user U, item I) Post[I] {
	s.seq++
	post := Post[I]{Seq: s.seq, Item: item}

	history := append(s.posts[user], post)
	if limit := s.opts.historyLimit; limit > 0 && len(history) > limit {
		// Copy so the dropped prefix can be collected.
		history = append(make([]Post[I], 0, limit), history[len(history)-limit:]...)
	}
	s.posts[user] = history

	log.WithFields(log.Fields{
		"user": user,
		"seq":  post.Seq,
	}).Debug("Stored post")

	return post
}

// Follow adds a directed edge from follower to followee. Following yourself
// does nothing, your own posts are always part of your feed.
func (s *Store[U, I]) Follow(follower, followee U) {
	if follower == followee {
		return
	}

	set, ok := s.followees[follower]
	if !ok {
		set = make(map[U]struct{})
		s.followees[follower] = set
	}
	set[followee] = struct{}{}

	log.WithFields(log.Fields{
		"follower": follower,
		"followee": followee,
	}).Debug("Follow")
}

// Unfollow removes the edge from follower to followee if there is one.
func (s *Store[U, I]) Unfollow(follower, followee U) {
	set, ok := s.followees[follower]
	if !ok {
		return
	}

	delete(set, followee)
	if len(set) == 0 {
		delete(s.followees, follower)
	}

	log.WithFields(log.Fields{
		"follower": follower,
		"followee": followee,
	}).Debug("Unfollow")
}

func (s *Store[U, I]) IsFollowing(follower, followee U) bool {
	_, ok := s.followees[follower][followee]
	return ok
}

// Followees returns the users followed by user in no particular order.
func (s *Store[U, I]) Followees(user U) []U {
	return lo.Keys(s.followees[user])
}

// History returns a copy of the user's posts, oldest first.
func (s *Store[U, I]) History(user U) []Post[I] {
	history := s.posts[user]
	out := make([]Post[I], len(history))
	copy(out, history)
	return out
}

// Len returns the number of posts currently held.
func (s *Store[U, I]) Len() int {
	return lo.SumBy(lo.Values(s.posts), func(history []Post[I]) int {
		return len(history)
	})
}

func (s *Store[U, I]) FeedSize() int {
	return s.opts.feedSize
}

// Feed returns the newest FeedSize items from the user and their followees.
func (s *Store[U, I]) Feed(user U) []I {
	return s.RecentFeed(user, s.opts.feedSize)
}

// RecentFeed returns the items of the k newest posts made by user or anyone
// user follows, newest first.
func (s *Store[U, I]) RecentFeed(user U, k int) []I {
	return lo.Map(s.RecentPosts(user, k), func(p Post[I], _ int) I {
		return p.Item
	})
}

// RecentPosts is RecentFeed keeping the sequence numbers.
func (s *Store[U, I]) RecentPosts(user U, k int) []Post[I] {
	if k <= 0 {
		return []Post[I]{}
	}

	sources := s.sources(user)

	switch s.opts.strategy {
	case StrategyMerge:
		return mergeNewest(sources, k)
	default:
		return selectNewest(sources, k)
	}
}

// sources returns the histories of user and everyone user follows.
func (s *Store[U, I]) sources(user U) [][]Post[I] {
	sources := make([][]Post[I], 0, len(s.followees[user])+1)
	if history := s.posts[user]; len(history) > 0 {
		sources = append(sources, history)
	}
	for followee := range s.followees[user] {
		if history := s.posts[followee]; len(history) > 0 {
			sources = append(sources, history)
		}
	}
	return sources
}

var _ Service[int, int] = (*Store[int, int])(nil)
