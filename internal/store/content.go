package store

import (
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ContentKind tags the variant held by Content.
type ContentKind string

const (
	ContentText  ContentKind = "text"
	ContentMedia ContentKind = "media"
)

// DefaultMediaType is used when a media hint cannot be resolved.
const DefaultMediaType = "application/octet-stream"

// Content is either plain text or a link to an uploaded asset.
type Content struct {
	Kind      ContentKind `json:"kind"`
	Text      string      `json:"text,omitempty"`
	URL       string      `json:"url,omitempty"`
	MediaType string      `json:"mime_hint,omitempty"`
}

// TextContent builds a text variant.
func TextContent(text string) Content {
	return Content{Kind: ContentText, Text: text}
}

// MediaContent builds a media variant. An empty hint is inferred from the
// URL's file extension.
func MediaContent(rawURL, hint string) Content {
	return Content{Kind: ContentMedia, URL: rawURL, MediaType: normalizeMediaType(rawURL, hint)}
}

// Empty reports whether the content carries nothing to deliver.
func (c Content) Empty() bool {
	switch c.Kind {
	case ContentText:
		return strings.TrimSpace(c.Text) == ""
	case ContentMedia:
		return c.URL == ""
	default:
		return true
	}
}

// Body returns the single string persisted for the variant.
func (c Content) Body() string {
	if c.Kind == ContentMedia {
		return c.URL
	}
	return c.Text
}

func normalizeMediaType(rawURL, hint string) string {
	if hint == "" {
		hint = mime.TypeByExtension(strings.ToLower(path.Ext(urlPath(rawURL))))
	}
	if hint == "" {
		return DefaultMediaType
	}
	base, _, err := mime.ParseMediaType(hint)
	if err != nil {
		return DefaultMediaType
	}
	if known := mimetype.Lookup(base); known != nil {
		return known.String()
	}
	return base
}

func urlPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Path
}
