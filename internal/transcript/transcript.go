// ABOUTME: Standalone HTML transcript export of a conversation snapshot.
// ABOUTME: Message bodies are rendered as Markdown with raw HTML suppressed.

// Package transcript writes a conversation snapshot as a single HTML page.
package transcript

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"iter"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/2389/coven-chat/internal/messages"
)

//go:embed templates/*.html
var templateFS embed.FS

var page = template.Must(template.ParseFS(templateFS, "templates/transcript.html"))

// markdown leaves html.WithUnsafe off, so raw HTML in a message is
// replaced with a comment instead of being emitted.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// Options tweak a rendered transcript.
type Options struct {
	// SelfID marks the viewer's own messages.
	SelfID string
	// Now stamps the export time. If nil, time.Now is used.
	Now func() time.Time
}

type entry struct {
	ID        string
	Sender    string
	Own       bool
	Timestamp time.Time
	Content   template.HTML
}

// Render writes an HTML page titled title with every message in seq, in
// order.
func Render(w io.Writer, title string, seq iter.Seq[messages.Message], opts Options) error {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	var entries []entry
	for m := range seq {
		body, err := Markdown(m.Content)
		if err != nil {
			return fmt.Errorf("rendering message %s: %w", m.ID, err)
		}
		sender := m.SenderName
		if sender == "" {
			sender = m.SenderID
		}
		entries = append(entries, entry{
			ID:        m.ID,
			Sender:    sender,
			Own:       opts.SelfID != "" && m.SenderID == opts.SelfID,
			Timestamp: m.Timestamp.UTC(),
			Content:   body,
		})
	}

	data := struct {
		Title    string
		Exported time.Time
		Entries  []entry
	}{
		Title:    title,
		Exported: now().UTC(),
		Entries:  entries,
	}
	if err := page.Execute(w, data); err != nil {
		return fmt.Errorf("executing transcript template: %w", err)
	}
	return nil
}

// Markdown converts one message body to HTML.
func Markdown(content string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(content), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil //nolint:gosec // goldmark output with unsafe rendering disabled
}
