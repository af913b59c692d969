package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/skyroast/skyroast/pkg/models"
)

// CommentStore handles database operations for generated comments.
type CommentStore struct {
	db *sql.DB
}

// NewCommentStore creates a new comment store.
func NewCommentStore(db *sql.DB) *CommentStore {
	return &CommentStore{db: db}
}

// AddComment inserts a finished comment for a post and returns its id. The
// store only ever records final text; streaming state never touches it.
func (s *CommentStore) AddComment(ctx context.Context, postID, content string) (string, error) {
	id := uuid.NewString()

	query := `
		INSERT INTO comments (id, post_id, content)
		VALUES ($1, $2, $3)
	`
	if _, err := s.db.ExecContext(ctx, query, id, postID, content); err != nil {
		return "", fmt.Errorf("failed to insert comment: %w", err)
	}
	return id, nil
}

// GetCommentByID retrieves a comment by its id.
func (s *CommentStore) GetCommentByID(ctx context.Context, id string) (*models.Comment, error) {
	query := `
		SELECT id, post_id, content, created_at
		FROM comments
		WHERE id = $1
	`
	var comment models.Comment
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&comment.ID, &comment.PostID, &comment.Content, &comment.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan comment: %w", err)
	}
	return &comment, nil
}
