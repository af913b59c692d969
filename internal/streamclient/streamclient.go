// Package streamclient consumes a comment-completion SSE stream and exposes
// its progress as a small state machine, suitable for driving a terminal
// renderer or any other live view.
package streamclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Status is the consumer's lifecycle state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusStreaming Status = "streaming"
	StatusComplete  Status = "complete"
	StatusError     Status = "error"
)

// Snapshot is a point-in-time copy of the consumer state. Text always holds
// the full accumulated reply so far, so observers that miss intermediate
// updates still converge on the final text.
type Snapshot struct {
	Status    Status
	PostID    string
	Message   string
	Text      string
	CommentID string
	Err       error
}

// Terminal reports whether the session has finished, successfully or not.
func (s Snapshot) Terminal() bool {
	return s.Status == StatusComplete || s.Status == StatusError
}

// Consumer owns at most one live SSE connection at a time. Starting a new
// session or resetting tears down the previous connection first.
type Consumer struct {
	baseURL    string
	httpClient *http.Client

	mu      sync.Mutex
	snap    Snapshot
	cancel  context.CancelFunc
	done    chan struct{}
	updates chan Snapshot
}

// NewConsumer builds a consumer for a stream server base URL such as
// "http://localhost:8788".
func NewConsumer(baseURL string) *Consumer {
	return &Consumer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 0},
		snap:       Snapshot{Status: StatusIdle},
		updates:    make(chan Snapshot, 64),
	}
}

// Updates delivers snapshots as the session progresses. Sends never block;
// slow observers may miss intermediate snapshots but each snapshot carries
// the full accumulated state.
func (c *Consumer) Updates() <-chan Snapshot {
	return c.updates
}

// Snapshot returns the current state.
func (c *Consumer) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Start opens a streaming session for the given post. If a session for the
// same post is already live it is left alone; any other in-flight session is
// cancelled first.
func (c *Consumer) Start(ctx context.Context, postID string) {
	c.mu.Lock()
	if c.snap.Status == StatusStreaming && c.snap.PostID == postID {
		c.mu.Unlock()
		return
	}
	prev := c.teardownLocked()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.snap = Snapshot{Status: StatusStreaming, PostID: postID}
	c.publishLocked()
	c.mu.Unlock()

	go func() {
		defer close(done)
		if prev != nil {
			<-prev
		}
		c.run(ctx, postID)
	}()
}

// Reset cancels any in-flight session and returns the consumer to idle.
func (c *Consumer) Reset() {
	c.mu.Lock()
	prev := c.teardownLocked()
	c.snap = Snapshot{Status: StatusIdle}
	c.publishLocked()
	c.mu.Unlock()
	if prev != nil {
		<-prev
	}
}

// Close tears down the consumer. It must be called once the consumer is no
// longer needed; the updates channel is closed after any live session ends.
func (c *Consumer) Close() {
	c.mu.Lock()
	prev := c.teardownLocked()
	c.mu.Unlock()
	if prev != nil {
		<-prev
	}
	close(c.updates)
}

// teardownLocked cancels the live session, if any, and hands its done channel
// to the caller. The swap happens entirely under c.mu, so racing callers each
// take ownership of exactly one session's handle and no goroutine is ever
// orphaned; the caller waits on the returned channel after releasing the lock.
func (c *Consumer) teardownLocked() chan struct{} {
	if c.cancel == nil {
		return nil
	}
	c.cancel()
	done := c.done
	c.cancel = nil
	c.done = nil
	return done
}

func (c *Consumer) run(ctx context.Context, postID string) {
	url := fmt.Sprintf("%s/comment/completion?postId=%s", c.baseURL, postID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.fail(postID, fmt.Errorf("failed to build stream request: %w", err))
		return
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.fail(postID, fmt.Errorf("failed to open stream: %w", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.fail(postID, fmt.Errorf("stream rejected (%d): %s", resp.StatusCode, strings.TrimSpace(string(body))))
		return
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventName, data string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data != "" {
				if terminal := c.dispatch(postID, eventName, data); terminal {
					return
				}
			}
			eventName, data = "", ""
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}

	if ctx.Err() != nil {
		return
	}
	if err := scanner.Err(); err != nil {
		c.fail(postID, fmt.Errorf("stream read failed: %w", err))
		return
	}
	c.fail(postID, fmt.Errorf("stream ended without a terminal event"))
}

// dispatch applies one SSE frame to the state. It returns true once a
// terminal frame has been handled.
func (c *Consumer) dispatch(postID, event, data string) bool {
	switch event {
	case "start":
		var payload struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal([]byte(data), &payload); err == nil {
			c.update(postID, func(s *Snapshot) { s.Message = payload.Status })
		}
		return false
	case "":
		var payload struct {
			Delta string `json:"delta"`
		}
		if err := json.Unmarshal([]byte(data), &payload); err == nil && payload.Delta != "" {
			c.update(postID, func(s *Snapshot) { s.Text += payload.Delta })
		}
		return false
	case "complete":
		var payload struct {
			CommentID string `json:"commentId"`
		}
		_ = json.Unmarshal([]byte(data), &payload)
		c.update(postID, func(s *Snapshot) {
			s.Status = StatusComplete
			s.CommentID = payload.CommentID
		})
		return true
	case "error":
		var payload struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal([]byte(data), &payload)
		c.fail(postID, fmt.Errorf("stream error: %s", payload.Message))
		return true
	default:
		return false
	}
}

func (c *Consumer) fail(postID string, err error) {
	c.update(postID, func(s *Snapshot) {
		s.Status = StatusError
		s.Err = err
		s.Message = err.Error()
	})
}

// update mutates the snapshot if the session is still current. A session
// that was reset or replaced can no longer touch the state.
func (c *Consumer) update(postID string, fn func(*Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap.PostID != postID || c.snap.Terminal() {
		return
	}
	fn(&c.snap)
	c.publishLocked()
}

// publishLocked delivers the latest snapshot, dropping the oldest queued one
// when the channel is full. The newest snapshot always lands, so terminal
// states cannot be lost to a slow observer.
func (c *Consumer) publishLocked() {
	for {
		select {
		case c.updates <- c.snap:
			return
		default:
		}
		select {
		case <-c.updates:
		default:
		}
	}
}

// Wait blocks until the current session reaches a terminal state, the
// context ends, or the poll deadline passes without a live session.
func (c *Consumer) Wait(ctx context.Context) (Snapshot, error) {
	for {
		c.mu.Lock()
		snap := c.snap
		done := c.done
		c.mu.Unlock()
		if snap.Terminal() {
			return snap, nil
		}
		if done == nil {
			return snap, fmt.Errorf("no session in flight")
		}
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-done:
			c.mu.Lock()
			snap = c.snap
			c.mu.Unlock()
			if snap.Terminal() {
				return snap, nil
			}
			return snap, fmt.Errorf("session ended before a terminal state")
		case <-time.After(50 * time.Millisecond):
		}
	}
}
