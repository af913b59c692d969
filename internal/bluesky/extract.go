package bluesky

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidPostURL is returned for URLs that do not match the supported
// https://bsky.app/profile/{actor}/post/{rkey} shape.
var ErrInvalidPostURL = errors.New("invalid post URL: only bsky.app post links are supported")

// ExtractedPost is the normalized content of a Bluesky post. Images is always
// non-nil, possibly empty. Quote is expanded exactly one level deep; a quote
// inside the quoted post is left unexpanded with only its URI set.
type ExtractedPost struct {
	URI       string         `json:"uri"`
	Text      string         `json:"text"`
	CreatedAt string         `json:"createdAt,omitempty"`
	Author    *Author        `json:"author,omitempty"`
	Images    []Image        `json:"images"`
	External  *External      `json:"external,omitempty"`
	Video     *Video         `json:"video,omitempty"`
	Quote     *ExtractedPost `json:"quote,omitempty"`
}

// Author describes the post's author.
type Author struct {
	Handle      string `json:"handle,omitempty"`
	DID         string `json:"did,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// Image is a single attached image.
type Image struct {
	URL   string `json:"url"`
	Thumb string `json:"thumb,omitempty"`
	Alt   string `json:"alt,omitempty"`
}

// External is an attached link card.
type External struct {
	URI         string `json:"uri,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Thumb       string `json:"thumb,omitempty"`
}

// Video describes an attached video as the AppView presents it.
type Video struct {
	Thumbnail string `json:"thumbnail,omitempty"`
	Playlist  string `json:"playlist,omitempty"`
	CID       string `json:"cid,omitempty"`
	Alt       string `json:"alt,omitempty"`
}

// ParsePostURL splits a bsky.app post URL into its actor and record key.
func ParsePostURL(raw string) (actor, rkey string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidPostURL, raw)
	}

	var parts []string
	for _, p := range strings.Split(u.Path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}

	// Expect: /profile/{actor}/post/{rkey}
	if u.Hostname() != "bsky.app" || len(parts) != 4 || parts[0] != "profile" || parts[2] != "post" {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidPostURL, raw)
	}

	actor, rkey = parts[1], parts[3]
	if actor == "" || rkey == "" {
		return "", "", fmt.Errorf("%w: missing actor or rkey in %s", ErrInvalidPostURL, raw)
	}
	return actor, rkey, nil
}

// Extract resolves a public bsky.app post URL into normalized content. It
// performs one to three outbound calls (handle resolution, post fetch, and an
// optional quote fetch) and does not retry; failures propagate to the caller.
func (c *Client) Extract(ctx context.Context, rawURL string) (*ExtractedPost, error) {
	actor, rkey, err := ParsePostURL(rawURL)
	if err != nil {
		return nil, err
	}

	did, err := c.ResolveHandle(ctx, actor)
	if err != nil {
		return nil, err
	}

	atURI := fmt.Sprintf("at://%s/app.bsky.feed.post/%s", did, rkey)
	view, err := c.getPostView(ctx, atURI)
	if err != nil {
		return nil, err
	}

	post := flattenPost(view)
	if err := c.expandQuote(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

// expandQuote performs exactly one additional fetch+flatten pass on a quote
// reference. Deeper quotes stay unexpanded to avoid unbounded recursion.
func (c *Client) expandQuote(ctx context.Context, post *ExtractedPost) error {
	if post.Quote == nil || post.Quote.URI == "" {
		return nil
	}
	quoted, err := c.getPostView(ctx, post.Quote.URI)
	if err != nil {
		return fmt.Errorf("expand quote %s: %w", post.Quote.URI, err)
	}
	post.Quote = flattenPost(quoted)
	return nil
}

// postView mirrors the subset of the AppView post view we consume. The embed
// stays raw because its shape depends on a type tag.
type postView struct {
	URI    string `json:"uri"`
	Author *struct {
		DID         string `json:"did"`
		Handle      string `json:"handle"`
		DisplayName string `json:"displayName"`
	} `json:"author"`
	Record struct {
		Text      string `json:"text"`
		CreatedAt string `json:"createdAt"`
	} `json:"record"`
	IndexedAt string          `json:"indexedAt"`
	Embed     json.RawMessage `json:"embed"`
}

func flattenPost(view *postView) *ExtractedPost {
	post := &ExtractedPost{
		URI:       view.URI,
		Text:      view.Record.Text,
		CreatedAt: view.Record.CreatedAt,
		Images:    []Image{},
	}
	if post.CreatedAt == "" {
		post.CreatedAt = view.IndexedAt
	}
	if view.Author != nil {
		post.Author = &Author{
			Handle:      view.Author.Handle,
			DID:         view.Author.DID,
			DisplayName: view.Author.DisplayName,
		}
	}

	h := harvestEmbed(view.Embed)
	if len(h.images) > 0 {
		post.Images = h.images
	}
	post.External = h.external
	post.Video = h.video
	if h.quoteURI != "" {
		post.Quote = &ExtractedPost{URI: h.quoteURI, Images: []Image{}}
	}
	return post
}

// embedView is a defensive union over the embed shapes the AppView serves.
// Only the fields matching the declared $type are meaningful.
type embedView struct {
	Type     string          `json:"$type"`
	Images   []imageView     `json:"images"`
	External *External       `json:"external"`
	Media    json.RawMessage `json:"media"`
	Record   json.RawMessage `json:"record"`
	View     json.RawMessage `json:"view"`

	// video view fields
	Thumbnail string `json:"thumbnail"`
	Playlist  string `json:"playlist"`
	CID       string `json:"cid"`
	Alt       string `json:"alt"`
}

type imageView struct {
	Thumb    string `json:"thumb"`
	Fullsize string `json:"fullsize"`
	Image    string `json:"image"`
	Alt      string `json:"alt"`
}

type harvest struct {
	images   []Image
	external *External
	video    *Video
	quoteURI string
}

// harvestEmbed dispatches on the embed's declared type tag. Embed shapes are
// mutually exclusive per post, except recordWithMedia which carries both a
// media sub-embed and a quote reference.
func harvestEmbed(raw json.RawMessage) harvest {
	var out harvest
	if len(raw) == 0 {
		return out
	}

	var e embedView
	if err := json.Unmarshal(raw, &e); err != nil || e.Type == "" {
		return out
	}

	// Some responses nest the useful payload one level down under "view".
	var nested embedView
	if len(e.View) > 0 {
		_ = json.Unmarshal(e.View, &nested)
	}

	switch {
	case strings.Contains(e.Type, "app.bsky.embed.recordWithMedia"):
		media := e.Media
		if len(media) == 0 {
			media = nested.Media
		}
		sub := harvestEmbed(media)
		out.images = sub.images
		out.external = sub.external
		out.video = sub.video

		record := e.Record
		if len(record) == 0 {
			record = nested.Record
		}
		out.quoteURI = recordURI(record)

	case strings.Contains(e.Type, "app.bsky.embed.images"):
		imgs := e.Images
		if len(imgs) == 0 {
			imgs = nested.Images
		}
		for _, img := range imgs {
			u := img.Fullsize
			if u == "" {
				u = img.Image
			}
			out.images = append(out.images, Image{URL: u, Thumb: img.Thumb, Alt: img.Alt})
		}

	case strings.Contains(e.Type, "app.bsky.embed.external"):
		ex := e.External
		if ex == nil {
			ex = nested.External
		}
		if ex != nil {
			out.external = &External{
				URI:         ex.URI,
				Title:       ex.Title,
				Description: ex.Description,
				Thumb:       ex.Thumb,
			}
		}

	case strings.Contains(e.Type, "app.bsky.embed.video"):
		v := e
		if len(e.View) > 0 && (nested.Thumbnail != "" || nested.Playlist != "" || nested.CID != "") {
			v = nested
		}
		out.video = &Video{Thumbnail: v.Thumbnail, Playlist: v.Playlist, CID: v.CID, Alt: v.Alt}

	case strings.Contains(e.Type, "app.bsky.embed.record"):
		record := e.Record
		if len(record) == 0 {
			record = nested.Record
		}
		out.quoteURI = recordURI(record)
	}

	return out
}

// recordURI digs the quoted post's at:// URI out of a record embed. The view
// form carries the URI directly; some shapes nest it one level deeper.
func recordURI(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var ref struct {
		URI    string `json:"uri"`
		Record struct {
			URI string `json:"uri"`
		} `json:"record"`
	}
	if err := json.Unmarshal(raw, &ref); err != nil {
		return ""
	}
	if ref.URI != "" {
		return ref.URI
	}
	return ref.Record.URI
}
