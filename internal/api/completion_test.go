package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyroast/skyroast/internal/store"
	"github.com/skyroast/skyroast/pkg/models"
)

type fakePostStore struct {
	byID   map[string]*models.Post
	byURL  map[string]*models.Post
	nextID int
}

func newFakePostStore(posts ...*models.Post) *fakePostStore {
	f := &fakePostStore{byID: map[string]*models.Post{}, byURL: map[string]*models.Post{}}
	for _, p := range posts {
		f.byID[p.ID] = p
		f.byURL[p.OriginURL] = p
	}
	return f
}

func (f *fakePostStore) CreatePost(ctx context.Context, originURL string) (*models.Post, bool, error) {
	if p, ok := f.byURL[originURL]; ok {
		return p, false, nil
	}
	f.nextID++
	p := &models.Post{ID: fmt.Sprintf("post-%d", f.nextID), OriginURL: originURL, CreatedAt: time.Now()}
	f.byID[p.ID] = p
	f.byURL[originURL] = p
	return p, true, nil
}

func (f *fakePostStore) GetPostByID(ctx context.Context, id string) (*models.Post, error) {
	if p, ok := f.byID[id]; ok {
		return p, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakePostStore) GetPosts(ctx context.Context, count int) ([]*models.Post, error) {
	var out []*models.Post
	for _, p := range f.byID {
		out = append(out, p)
	}
	return out, nil
}

type fakeCommentStore struct {
	comments map[string]*models.Comment
	added    []*models.Comment
	addErr   error
	nextID   int
}

func newFakeCommentStore() *fakeCommentStore {
	return &fakeCommentStore{comments: map[string]*models.Comment{}}
}

func (f *fakeCommentStore) AddComment(ctx context.Context, postID, content string) (string, error) {
	if f.addErr != nil {
		return "", f.addErr
	}
	f.nextID++
	c := &models.Comment{ID: fmt.Sprintf("comment-%d", f.nextID), PostID: postID, Content: content, CreatedAt: time.Now()}
	f.comments[c.ID] = c
	f.added = append(f.added, c)
	return c.ID, nil
}

func (f *fakeCommentStore) GetCommentByID(ctx context.Context, id string) (*models.Comment, error) {
	if c, ok := f.comments[id]; ok {
		return c, nil
	}
	return nil, store.ErrNotFound
}

// fakeGenerator replays chunks through onDelta, then either fails or returns
// the accumulated text.
type fakeGenerator struct {
	chunks      []string
	err         error
	streamCalls int
	single      string
	singleErr   error
}

func (f *fakeGenerator) StreamReply(ctx context.Context, content *models.PostContent, onDelta func(ctx context.Context, chunk []byte) error) (string, error) {
	f.streamCalls++
	var sb strings.Builder
	for _, ch := range f.chunks {
		if ch == "" {
			continue
		}
		sb.WriteString(ch)
		if onDelta != nil {
			if err := onDelta(ctx, []byte(ch)); err != nil {
				return "", err
			}
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return sb.String(), nil
}

func (f *fakeGenerator) GenerateReply(ctx context.Context, content *models.PostContent) (string, error) {
	return f.single, f.singleErr
}

type fakeEnqueuer struct {
	enqueued []string
	err      error
}

func (f *fakeEnqueuer) EnqueueExtract(ctx context.Context, postID, postURL string) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, postID)
	return nil
}

type sseEvent struct {
	name string
	data string
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	for _, frame := range strings.Split(body, "\n\n") {
		frame = strings.TrimSpace(frame)
		if frame == "" {
			continue
		}
		var ev sseEvent
		for _, line := range strings.Split(frame, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.data = strings.TrimPrefix(line, "data: ")
			default:
				t.Fatalf("unexpected SSE line: %q", line)
			}
		}
		events = append(events, ev)
	}
	return events
}

func readyPost() *models.Post {
	return &models.Post{
		ID:        "post-ready",
		OriginURL: "https://bsky.app/profile/alice.example/post/abc123",
		Content: &models.PostContent{
			Type: models.PostContentBluesky,
			DID:  "at://did:plc:xyz/app.bsky.feed.post/abc123",
			Text: "hello",
		},
		CreatedAt: time.Now(),
	}
}

func streamRequest(s *Server, postID string) *httptest.ResponseRecorder {
	target := "/comment/completion"
	if postID != "" {
		target += "?postId=" + postID
	}
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestStreamCommentCompletion(t *testing.T) {
	t.Run("MissingPostID", func(t *testing.T) {
		gen := &fakeGenerator{}
		s := NewServer(0, newFakePostStore(), newFakeCommentStore(), gen, &fakeEnqueuer{})

		rec := streamRequest(s, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Missing postId", rec.Body.String())
		assert.Zero(t, gen.streamCalls, "no model stream may be opened")
	})

	t.Run("UnknownPost", func(t *testing.T) {
		gen := &fakeGenerator{}
		s := NewServer(0, newFakePostStore(), newFakeCommentStore(), gen, &fakeEnqueuer{})

		rec := streamRequest(s, "nope")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Zero(t, gen.streamCalls)
	})

	t.Run("PendingContent", func(t *testing.T) {
		pending := &models.Post{ID: "post-pending", OriginURL: "https://bsky.app/profile/a/post/b"}
		gen := &fakeGenerator{}
		s := NewServer(0, newFakePostStore(pending), newFakeCommentStore(), gen, &fakeEnqueuer{})

		rec := streamRequest(s, "post-pending")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Zero(t, gen.streamCalls, "no model stream for unready content")
	})

	t.Run("EmptyContent", func(t *testing.T) {
		empty := readyPost()
		empty.ID = "post-empty"
		empty.Content.Text = ""
		empty.Content.ImageURL = nil
		s := NewServer(0, newFakePostStore(empty), newFakeCommentStore(), &fakeGenerator{}, &fakeEnqueuer{})

		rec := streamRequest(s, "post-empty")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("HappyPath", func(t *testing.T) {
		gen := &fakeGenerator{chunks: []string{"He", "llo", "", " there"}}
		comments := newFakeCommentStore()
		s := NewServer(0, newFakePostStore(readyPost()), comments, gen, &fakeEnqueuer{})

		rec := streamRequest(s, "post-ready")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
		assert.Equal(t, "no-cache, no-transform", rec.Header().Get("Cache-Control"))
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

		events := parseSSE(t, rec.Body.String())
		require.GreaterOrEqual(t, len(events), 3)

		assert.Equal(t, "start", events[0].name)
		assert.JSONEq(t, `{"status":"started"}`, events[0].data)

		var accumulated string
		for _, ev := range events[1 : len(events)-1] {
			assert.Empty(t, ev.name, "delta frames are unnamed")
			var payload struct {
				Delta string `json:"delta"`
			}
			require.NoError(t, json.Unmarshal([]byte(ev.data), &payload))
			assert.NotEmpty(t, payload.Delta, "empty deltas are never forwarded")
			accumulated += payload.Delta
		}
		assert.Equal(t, "Hello there", accumulated)

		terminal := events[len(events)-1]
		assert.Equal(t, "complete", terminal.name)

		require.Len(t, comments.added, 1, "exactly one comment persisted")
		assert.Equal(t, "post-ready", comments.added[0].PostID)
		assert.Equal(t, accumulated, comments.added[0].Content,
			"concatenated deltas must equal the persisted text")

		var payload struct {
			CommentID string `json:"commentId"`
		}
		require.NoError(t, json.Unmarshal([]byte(terminal.data), &payload))
		assert.Equal(t, comments.added[0].ID, payload.CommentID)
	})

	t.Run("ModelFailureMidStream", func(t *testing.T) {
		gen := &fakeGenerator{chunks: []string{"so", " close"}, err: errors.New("model exploded")}
		comments := newFakeCommentStore()
		s := NewServer(0, newFakePostStore(readyPost()), comments, gen, &fakeEnqueuer{})

		rec := streamRequest(s, "post-ready")
		require.Equal(t, http.StatusOK, rec.Code)

		events := parseSSE(t, rec.Body.String())
		require.Len(t, events, 4, "start, two deltas, terminal error")
		assert.Equal(t, "start", events[0].name)
		assert.Empty(t, events[1].name)
		assert.Empty(t, events[2].name)

		terminal := events[len(events)-1]
		assert.Equal(t, "error", terminal.name)
		var payload struct {
			Message string `json:"message"`
		}
		require.NoError(t, json.Unmarshal([]byte(terminal.data), &payload))
		assert.NotEmpty(t, payload.Message)

		assert.Empty(t, comments.added, "no comment may be persisted on the error path")
	})

	t.Run("PersistenceFailure", func(t *testing.T) {
		gen := &fakeGenerator{chunks: []string{"text"}}
		comments := newFakeCommentStore()
		comments.addErr = errors.New("db down")
		s := NewServer(0, newFakePostStore(readyPost()), comments, gen, &fakeEnqueuer{})

		rec := streamRequest(s, "post-ready")
		events := parseSSE(t, rec.Body.String())
		terminal := events[len(events)-1]
		assert.Equal(t, "error", terminal.name)
	})

	t.Run("EmptyModelOutputStillCompletes", func(t *testing.T) {
		gen := &fakeGenerator{chunks: nil}
		comments := newFakeCommentStore()
		s := NewServer(0, newFakePostStore(readyPost()), comments, gen, &fakeEnqueuer{})

		rec := streamRequest(s, "post-ready")
		events := parseSSE(t, rec.Body.String())
		require.Len(t, events, 2, "start then complete, no deltas")
		assert.Equal(t, "start", events[0].name)
		assert.Equal(t, "complete", events[1].name)

		require.Len(t, comments.added, 1)
		assert.Equal(t, "", comments.added[0].Content)
	})
}
