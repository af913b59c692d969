package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/skyroast/skyroast/internal/store"
)

func (s *Server) getCommentByID(c echo.Context) error {
	comment, err := s.comments.GetCommentByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "comment not found"})
		}
		log.Error().Err(err).Msg("failed to get comment")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get comment"})
	}
	return c.JSON(http.StatusOK, comment)
}

// generateComment is the non-streaming generation path: one completion,
// persisted and returned as a whole.
func (s *Server) generateComment(c echo.Context) error {
	ctx := c.Request().Context()

	post, err := s.posts.GetPostByID(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "post not found"})
		}
		log.Error().Err(err).Msg("failed to get post")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get post"})
	}

	if !post.Content.IsReady() {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": "Post content not found or unsupported type"})
	}

	text, err := s.generator.GenerateReply(ctx, post.Content)
	if err != nil {
		log.Error().Err(err).Str("post_id", post.ID).Msg("comment generation failed")
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}

	commentID, err := s.comments.AddComment(ctx, post.ID, text)
	if err != nil {
		log.Error().Err(err).Str("post_id", post.ID).Msg("failed to persist comment")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to persist comment"})
	}

	return c.JSON(http.StatusOK, map[string]string{"commentId": commentID})
}
