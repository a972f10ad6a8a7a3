package feeds

import "sync"

// SyncStore guards a Store with a single RWMutex so it can be shared by
// HTTP handlers and firehose workers.
type SyncStore[U comparable, I any] struct {
	mu    sync.RWMutex
	store *Store[U, I]
}

func NewSyncStore[U comparable, I any](opts ...Option) *SyncStore[U, I] {
	return &SyncStore[U, I]{store: NewStore[U, I](opts...)}
}

func (s *SyncStore[U, I]) Post(user U, item I) Post[I] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Post(user, item)
}

func (s *SyncStore[U, I]) Follow(follower, followee U) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Follow(follower, followee)
}

func (s *SyncStore[U, I]) Unfollow(follower, followee U) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Unfollow(follower, followee)
}

func (s *SyncStore[U, I]) IsFollowing(follower, followee U) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.IsFollowing(follower, followee)
}

func (s *SyncStore[U, I]) Followees(user U) []U {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Followees(user)
}

func (s *SyncStore[U, I]) History(user U) []Post[I] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.History(user)
}

func (s *SyncStore[U, I]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Len()
}

func (s *SyncStore[U, I]) FeedSize() int {
	return s.store.FeedSize()
}

func (s *SyncStore[U, I]) Feed(user U) []I {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Feed(user)
}

func (s *SyncStore[U, I]) RecentFeed(user U, k int) []I {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.RecentFeed(user, k)
}

func (s *SyncStore[U, I]) RecentPosts(user U, k int) []Post[I] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.RecentPosts(user, k)
}

var _ Service[string, string] = (*SyncStore[string, string])(nil)
