package bluesky

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const defaultAppView = "https://public.api.bsky.app"

// ErrPostNotFound is returned when the referenced post cannot be retrieved
// (deleted, private, or absent from the AppView results).
var ErrPostNotFound = errors.New("post not found (it may have been deleted or is not visible)")

// UpstreamError carries a non-success response from the AppView API.
type UpstreamError struct {
	Op     string
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s failed (%d): %s", e.Op, e.Status, e.Body)
}

// Client is a minimal read-only client for the public Bluesky AppView API.
// The handle-resolution and post-view endpoints it uses require no
// authentication.
type Client struct {
	appview    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a new AppView client. If appview is empty, it defaults to
// https://public.api.bsky.app.
func NewClient(appview string) *Client {
	if appview == "" {
		appview = defaultAppView
	}
	return &Client{
		appview: appview,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		// The public AppView rate-limits unauthenticated callers; stay well
		// under its ceiling.
		limiter: rate.NewLimiter(rate.Limit(8), 16),
	}
}

// ResolveHandle maps a human-readable handle to its canonical DID. Actors
// already in DID form are returned as-is without a network call.
func (c *Client) ResolveHandle(ctx context.Context, actor string) (string, error) {
	if isDID(actor) {
		return actor, nil
	}

	var resp struct {
		DID string `json:"did"`
	}
	err := c.get(ctx, "resolveHandle",
		"/xrpc/com.atproto.identity.resolveHandle?handle="+url.QueryEscape(actor), &resp)
	if err != nil {
		return "", err
	}
	if resp.DID == "" {
		return "", &UpstreamError{Op: "resolveHandle", Status: http.StatusOK, Body: "missing did in response"}
	}
	return resp.DID, nil
}

// getPostView fetches a single post view by its at:// URI.
func (c *Client) getPostView(ctx context.Context, atURI string) (*postView, error) {
	var resp struct {
		Posts []postView `json:"posts"`
	}
	err := c.get(ctx, "getPosts",
		"/xrpc/app.bsky.feed.getPosts?uris="+url.QueryEscape(atURI), &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Posts) == 0 {
		return nil, ErrPostNotFound
	}
	return &resp.Posts[0], nil
}

// get performs one AppView call. Failures propagate on the first attempt;
// retry policy belongs to the caller (the extraction worker's job attempts).
func (c *Client) get(ctx context.Context, op, path string, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.appview+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	log.Debug().Str("op", op).Str("url", c.appview+path).Msg("AppView request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &UpstreamError{Op: op, Status: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func isDID(actor string) bool {
	return len(actor) > 4 && actor[:4] == "did:"
}
