package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/skyroast/skyroast/internal/store"
)

// errClientGone marks a failed write to the event stream: the client closed
// the connection. It ends the session quietly rather than as an application
// error.
var errClientGone = errors.New("client connection closed")

// eventWriter frames server-sent events onto a live response. Delta frames
// are unnamed; start/complete/error carry an event name.
type eventWriter struct {
	resp *echo.Response
}

func (w *eventWriter) send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	if event != "" {
		if _, err := fmt.Fprintf(w.resp, "event: %s\n", event); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w.resp, "data: %s\n\n", data); err != nil {
		return err
	}
	w.resp.Flush()
	return nil
}

// streamCommentCompletion drives one comment-generation session over SSE.
//
// Validation happens before the stream opens, with conventional status/body
// responses. Once the start event is out, every failure surfaces as an
// in-band error event on the same connection so the client can tell a model
// or storage failure from a network disconnect.
//
// Nothing gates two concurrent sessions for the same post; each one persists
// its own comment. Callers are expected to gate re-invocation.
func (s *Server) streamCommentCompletion(c echo.Context) error {
	postID := c.QueryParam("postId")
	if postID == "" {
		return c.String(http.StatusBadRequest, "Missing postId")
	}

	ctx := c.Request().Context()

	post, err := s.posts.GetPostByID(ctx, postID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.String(http.StatusNotFound, "Post not found")
		}
		log.Error().Err(err).Str("post_id", postID).Msg("failed to load post")
		return c.String(http.StatusInternalServerError, "failed to load post")
	}

	if !post.Content.IsReady() {
		return c.String(http.StatusUnprocessableEntity, "Post content not found or unsupported type")
	}

	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set(echo.HeaderAccessControlAllowOrigin, "*")
	c.Response().WriteHeader(http.StatusOK)

	w := &eventWriter{resp: c.Response()}

	// Signal acceptance before any model output exists so the client can
	// distinguish "generation beginning" from network latency.
	if err := w.send("start", map[string]string{"status": "started"}); err != nil {
		return nil
	}

	fullText, err := s.generator.StreamReply(ctx, post.Content, func(ctx context.Context, chunk []byte) error {
		if err := w.send("", map[string]string{"delta": string(chunk)}); err != nil {
			return errClientGone
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errClientGone) || ctx.Err() != nil {
			log.Debug().Str("post_id", postID).Msg("stream session ended by client")
			return nil
		}
		log.Error().Err(err).Str("post_id", postID).Msg("comment stream failed")
		_ = w.send("error", map[string]string{"message": err.Error()})
		return nil
	}

	// Persistence happens only after the model stream drains; the error path
	// above never writes a comment.
	commentID, err := s.comments.AddComment(ctx, post.ID, fullText)
	if err != nil {
		log.Error().Err(err).Str("post_id", postID).Msg("failed to persist comment")
		_ = w.send("error", map[string]string{"message": "failed to persist comment"})
		return nil
	}

	_ = w.send("complete", map[string]string{"commentId": commentID})
	return nil
}
