// Package render converts post Markdown to sanitized HTML for public
// responses.
package render

import (
	"bytes"
	"fmt"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// htmlSanitizer strips dangerous elements (scripts, event handlers) from the
// rendered HTML while keeping the safe tags users expect in post bodies.
var htmlSanitizer = bluemonday.UGCPolicy()

// markdown is the shared converter. GFM gives tables and strikethrough;
// unsafe raw HTML is allowed through goldmark because bluemonday sanitizes
// the output afterwards.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithUnsafe()),
)

// Markdown converts a Markdown post body into sanitized HTML.
func Markdown(body string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(body), &buf); err != nil {
		return "", fmt.Errorf("converting markdown: %w", err)
	}
	return htmlSanitizer.Sanitize(buf.String()), nil
}
