// Package jobqueue provides a River-based job queue for populating post
// content asynchronously after submission. Exactly one extraction job is
// enqueued per created post; the job patches the post's content exactly once.
package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/zerolog/log"

	"github.com/skyroast/skyroast/internal/bluesky"
	"github.com/skyroast/skyroast/internal/store"
	"github.com/skyroast/skyroast/pkg/models"
)

// ExtractPostContentArgs represents the arguments for a content extraction job.
type ExtractPostContentArgs struct {
	PostID  string `json:"post_id"`
	PostURL string `json:"post_url"`
}

// Kind returns the job kind for River.
func (ExtractPostContentArgs) Kind() string {
	return "extract_post_content"
}

// ContentExtractor resolves a post URL into normalized content.
type ContentExtractor interface {
	Extract(ctx context.Context, rawURL string) (*bluesky.ExtractedPost, error)
}

// ContentPatcher writes extracted content onto a pending post.
type ContentPatcher interface {
	SetContent(ctx context.Context, id string, content *models.PostContent) error
}

// ExtractPostContentWorker handles content extraction jobs.
type ExtractPostContentWorker struct {
	river.WorkerDefaults[ExtractPostContentArgs]
	extractor ContentExtractor
	posts     ContentPatcher
	config    *QueueConfig
}

// Timeout bounds a single extraction attempt.
func (w *ExtractPostContentWorker) Timeout(*river.Job[ExtractPostContentArgs]) time.Duration {
	return w.config.JobTimeout
}

// Work extracts the post's content and patches it onto the stored post.
func (w *ExtractPostContentWorker) Work(ctx context.Context, job *river.Job[ExtractPostContentArgs]) error {
	args := job.Args

	extracted, err := w.extractor.Extract(ctx, args.PostURL)
	if err != nil {
		// Malformed URLs will never extract; retrying is pointless.
		if errors.Is(err, bluesky.ErrInvalidPostURL) {
			return river.JobCancel(err)
		}
		return fmt.Errorf("extract %s: %w", args.PostURL, err)
	}

	var imageURLs []string
	for _, img := range extracted.Images {
		imageURLs = append(imageURLs, img.URL)
	}

	content := &models.PostContent{
		Type:     models.PostContentBluesky,
		DID:      extracted.URI,
		Text:     extracted.Text,
		ImageURL: imageURLs,
	}

	if err := w.posts.SetContent(ctx, args.PostID, content); err != nil {
		// Content is immutable once set. A second patch attempt means a logic
		// fault upstream (duplicate job), not something a retry can fix.
		if errors.Is(err, store.ErrContentAlreadySet) {
			log.Error().Str("post_id", args.PostID).Msg("duplicate content patch attempt cancelled")
			return river.JobCancel(err)
		}
		return fmt.Errorf("set content for post %s: %w", args.PostID, err)
	}

	log.Info().
		Str("post_id", args.PostID).
		Str("uri", extracted.URI).
		Int("images", len(imageURLs)).
		Msg("post content populated")
	return nil
}

// JobQueue manages the River job queue.
type JobQueue struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
	config *QueueConfig
}

// NewJobQueue creates a new job queue instance with its own pgx pool.
func NewJobQueue(databaseURL string, extractor ContentExtractor, posts ContentPatcher, config *QueueConfig) (*JobQueue, error) {
	if config == nil {
		config = DefaultQueueConfig()
	}

	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &ExtractPostContentWorker{extractor: extractor, posts: posts, config: config})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues:  config.RiverQueueConfig(),
		Workers: workers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return &JobQueue{
		client: client,
		pool:   pool,
		config: config,
	}, nil
}

// Start starts the job queue workers.
func (jq *JobQueue) Start(ctx context.Context) error {
	return jq.client.Start(ctx)
}

// Stop stops the job queue workers and releases the pool.
func (jq *JobQueue) Stop(ctx context.Context) error {
	err := jq.client.Stop(ctx)
	jq.pool.Close()
	return err
}

// EnqueueExtract queues a content extraction job for a freshly created post.
func (jq *JobQueue) EnqueueExtract(ctx context.Context, postID, postURL string) error {
	args := ExtractPostContentArgs{
		PostID:  postID,
		PostURL: postURL,
	}

	_, err := jq.client.Insert(ctx, args, &river.InsertOpts{MaxAttempts: jq.config.MaxAttempts})
	if err != nil {
		return fmt.Errorf("failed to queue extraction job: %w", err)
	}
	return nil
}
