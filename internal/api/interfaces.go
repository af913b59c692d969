package api

import (
	"context"

	"github.com/skyroast/skyroast/pkg/models"
)

// PostStore is the post persistence surface the handlers need.
type PostStore interface {
	CreatePost(ctx context.Context, originURL string) (*models.Post, bool, error)
	GetPostByID(ctx context.Context, id string) (*models.Post, error)
	GetPosts(ctx context.Context, count int) ([]*models.Post, error)
}

// CommentStore is the comment persistence surface the handlers need.
type CommentStore interface {
	AddComment(ctx context.Context, postID, content string) (string, error)
	GetCommentByID(ctx context.Context, id string) (*models.Comment, error)
}

// CommentGenerator produces reaction comments from extracted post content,
// either as one completion or as an incremental stream of deltas.
type CommentGenerator interface {
	StreamReply(ctx context.Context, content *models.PostContent, onDelta func(ctx context.Context, chunk []byte) error) (string, error)
	GenerateReply(ctx context.Context, content *models.PostContent) (string, error)
}

// ExtractEnqueuer schedules the asynchronous content-population job for a
// freshly created post.
type ExtractEnqueuer interface {
	EnqueueExtract(ctx context.Context, postID, postURL string) error
}
