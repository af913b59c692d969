package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/skyroast/skyroast/internal/store"
	"github.com/skyroast/skyroast/pkg/models"
)

type submitPostRequest struct {
	PostURL string `json:"postUrl"`
}

// submitPost creates a pending post for the submitted URL and schedules
// exactly one content-population job. Submission is idempotent by URL: a
// repeat returns the existing post, scheduling extraction only if the post is
// still waiting for content.
func (s *Server) submitPost(c echo.Context) error {
	var req submitPostRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	postURL := strings.TrimSpace(req.PostURL)
	if postURL == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "postUrl is required"})
	}

	ctx := c.Request().Context()
	post, created, err := s.posts.CreatePost(ctx, postURL)
	if err != nil {
		log.Error().Err(err).Str("url", postURL).Msg("failed to create post")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to create post"})
	}

	if !created {
		// A prior submission may have created the row but lost its extraction
		// job (enqueue failure, crash). Re-scheduling is harmless: content is
		// written once and a duplicate patch attempt cancels itself.
		if post.Content == nil {
			if err := s.jobs.EnqueueExtract(ctx, post.ID, post.OriginURL); err != nil {
				log.Error().Err(err).Str("post_id", post.ID).Msg("failed to re-enqueue extraction job")
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to schedule content extraction"})
			}
		}
		return c.JSON(http.StatusOK, map[string]any{
			"message": "exists",
			"post":    post,
		})
	}

	if err := s.jobs.EnqueueExtract(ctx, post.ID, postURL); err != nil {
		log.Error().Err(err).Str("post_id", post.ID).Msg("failed to enqueue extraction job")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to schedule content extraction"})
	}

	return c.JSON(http.StatusCreated, map[string]any{
		"message": "created",
		"postId":  post.ID,
	})
}

// getPosts returns the most recent posts, oldest to newest.
func (s *Server) getPosts(c echo.Context) error {
	count := 20
	if raw := c.QueryParam("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "count must be a positive integer"})
		}
		count = n
	}

	posts, err := s.posts.GetPosts(c.Request().Context(), count)
	if err != nil {
		log.Error().Err(err).Msg("failed to list posts")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list posts"})
	}
	if posts == nil {
		posts = []*models.Post{}
	}
	return c.JSON(http.StatusOK, posts)
}

func (s *Server) getPostByID(c echo.Context) error {
	post, err := s.posts.GetPostByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "post not found"})
		}
		log.Error().Err(err).Msg("failed to get post")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get post"})
	}
	return c.JSON(http.StatusOK, post)
}
