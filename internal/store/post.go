package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/skyroast/skyroast/pkg/models"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrContentAlreadySet is returned when content is written to a post that
// already has content. Content is immutable once set; hitting this indicates a
// logic fault in the caller, not a recoverable condition.
var ErrContentAlreadySet = errors.New("post already has content")

// PostStore handles database operations for posts.
type PostStore struct {
	db *sql.DB
}

// NewPostStore creates a new post store.
func NewPostStore(db *sql.DB) *PostStore {
	return &PostStore{db: db}
}

// CreatePost inserts a pending post for the given origin URL. Submission is
// idempotent by URL: when a post with that URL already exists, the existing
// post is returned with created=false and nothing is written.
func (s *PostStore) CreatePost(ctx context.Context, originURL string) (*models.Post, bool, error) {
	id := uuid.NewString()

	query := `
		INSERT INTO posts (id, origin_url)
		VALUES ($1, $2)
		ON CONFLICT (origin_url) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query, id, originURL)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert post: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read insert result: %w", err)
	}
	if rows == 0 {
		existing, err := s.GetPostByURL(ctx, originURL)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	post, err := s.GetPostByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return post, true, nil
}

// GetPostByID retrieves a post by its id.
func (s *PostStore) GetPostByID(ctx context.Context, id string) (*models.Post, error) {
	query := `
		SELECT id, origin_url, content, created_at
		FROM posts
		WHERE id = $1
	`
	return s.scanPost(s.db.QueryRowContext(ctx, query, id))
}

// GetPostByURL retrieves a post by its origin URL.
func (s *PostStore) GetPostByURL(ctx context.Context, originURL string) (*models.Post, error) {
	query := `
		SELECT id, origin_url, content, created_at
		FROM posts
		WHERE origin_url = $1
	`
	return s.scanPost(s.db.QueryRowContext(ctx, query, originURL))
}

// GetPosts retrieves the most recent count posts, ordered oldest to newest.
func (s *PostStore) GetPosts(ctx context.Context, count int) ([]*models.Post, error) {
	if count <= 0 {
		count = 20
	}

	query := `
		SELECT id, origin_url, content, created_at
		FROM posts
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, count)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := s.scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate posts: %w", err)
	}

	// Newest-first from the query, oldest-first for the caller.
	for i, j := 0, len(posts)-1; i < j; i, j = i+1, j-1 {
		posts[i], posts[j] = posts[j], posts[i]
	}
	return posts, nil
}

// SetContent writes the extracted content onto a pending post. Content is set
// at most once: a second attempt fails with ErrContentAlreadySet.
func (s *PostStore) SetContent(ctx context.Context, id string, content *models.PostContent) error {
	payload, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("failed to marshal content: %w", err)
	}

	query := `
		UPDATE posts
		SET content = $2
		WHERE id = $1 AND content IS NULL
	`
	res, err := s.db.ExecContext(ctx, query, id, payload)
	if err != nil {
		return fmt.Errorf("failed to update post content: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if rows == 0 {
		if _, err := s.GetPostByID(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", ErrContentAlreadySet, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostStore) scanPost(row rowScanner) (*models.Post, error) {
	var post models.Post
	var content []byte

	err := row.Scan(&post.ID, &post.OriginURL, &content, &post.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan post: %w", err)
	}

	if len(content) > 0 {
		var pc models.PostContent
		if err := json.Unmarshal(content, &pc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal post content: %w", err)
		}
		post.Content = &pc
	}
	return &post, nil
}
