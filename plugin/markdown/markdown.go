// Package markdown renders agent card bodies to HTML.
// Card bodies are produced by the answer synthesizer as GitHub-flavored
// markdown; the rendered HTML rides along on cards for clients without their
// own renderer. Raw HTML in the source is dropped by goldmark's default
// policy, so a misbehaving provider cannot inject markup.
package markdown

import (
	"bytes"
	"strings"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Renderer converts markdown to HTML. Safe for concurrent use.
type Renderer struct {
	md goldmark.Markdown
}

// NewRenderer creates a renderer with GFM tables, strikethrough, and
// autolinks enabled. Hard wraps are kept because synthesized answers use
// single newlines between lines of a card body.
func NewRenderer() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
	}
}

// Render converts a markdown body to HTML. A blank body renders to the
// empty string rather than an empty paragraph.
func (r *Renderer) Render(body string) (string, error) {
	if strings.TrimSpace(body) == "" {
		return "", nil
	}

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(body), &buf); err != nil {
		return "", errors.Wrap(err, "failed to render markdown")
	}
	return buf.String(), nil
}

var defaultRenderer = NewRenderer()

// Render converts markdown to HTML using the shared renderer.
func Render(body string) (string, error) {
	return defaultRenderer.Render(body)
}
