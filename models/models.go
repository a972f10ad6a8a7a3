package models

// FeedItem is a single entry of a feed response
type FeedItem struct {
	Seq  uint64 `json:"seq"`
	Item string `json:"item"`
}

type FeedResponse struct {
	Feed []FeedItem `json:"feed"`
}

type FollowingResponse struct {
	Following []string `json:"following"`
}

// CreatePostRequest is the body of POST /users/:user/posts
type CreatePostRequest struct {
	Item string `json:"item"`
}

// CreatePostEvent fired when a post is stored
type CreatePostEvent struct {
	Author string `json:"author"`
	Seq    uint64 `json:"seq"`
	Item   string `json:"item"`
}

// FollowEvent fired when a follow edge is added
type FollowEvent struct {
	Follower string `json:"follower"`
	Followee string `json:"followee"`
}

// UnfollowEvent fired when a follow edge is removed
type UnfollowEvent struct {
	Follower string `json:"follower"`
	Followee string `json:"followee"`
}
