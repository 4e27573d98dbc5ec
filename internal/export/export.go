// ABOUTME: Writes conversation transcripts to local markdown files.
// ABOUTME: Optionally renders an HTML preview of each transcript via goldmark.

package export

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Message is one turn of an exported conversation.
type Message struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is the unit of export handed over by the desktop process.
type Conversation struct {
	Title    string    `json:"title"`
	Project  string    `json:"project,omitempty"`
	Messages []Message `json:"messages"`
}

// Writer exports transcripts into a directory.
type Writer struct {
	dir    string
	html   bool
	md     goldmark.Markdown
	logger *slog.Logger
}

// NewWriter creates an exporter rooted at dir. When html is true each
// transcript also gets an HTML rendering next to the markdown file.
func NewWriter(dir string, html bool, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		dir:    dir,
		html:   html,
		md:     goldmark.New(goldmark.WithExtensions(extension.GFM)),
		logger: logger.With("component", "export"),
	}
}

// Export writes the conversation and returns the paths of the files written.
func (w *Writer) Export(conv Conversation) ([]string, error) {
	if conv.Title == "" {
		return nil, fmt.Errorf("conversation title is required")
	}
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}

	base := fmt.Sprintf("%s-%s", slugify(conv.Title), time.Now().Format("20060102-150405"))
	markdown := renderMarkdown(conv)

	mdPath := filepath.Join(w.dir, base+".md")
	if err := os.WriteFile(mdPath, []byte(markdown), 0644); err != nil {
		return nil, fmt.Errorf("writing markdown transcript: %w", err)
	}
	files := []string{mdPath}

	if w.html {
		htmlPath := filepath.Join(w.dir, base+".html")
		rendered, err := w.renderHTML(conv.Title, markdown)
		if err != nil {
			return files, fmt.Errorf("rendering HTML transcript: %w", err)
		}
		if err := os.WriteFile(htmlPath, rendered, 0644); err != nil {
			return files, fmt.Errorf("writing HTML transcript: %w", err)
		}
		files = append(files, htmlPath)
	}

	w.logger.Info("transcript exported", "title", conv.Title, "files", len(files))
	return files, nil
}

// renderMarkdown builds the transcript document.
func renderMarkdown(conv Conversation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", conv.Title)
	if conv.Project != "" {
		fmt.Fprintf(&b, "Project: `%s`\n\n", conv.Project)
	}
	for _, msg := range conv.Messages {
		role := msg.Role
		if role == "" {
			role = "unknown"
		}
		if msg.Timestamp.IsZero() {
			fmt.Fprintf(&b, "## %s\n\n", role)
		} else {
			fmt.Fprintf(&b, "## %s (%s)\n\n", role, msg.Timestamp.Format("2006-01-02 15:04:05"))
		}
		b.WriteString(strings.TrimRight(msg.Text, "\n"))
		b.WriteString("\n\n")
	}
	return b.String()
}

// renderHTML converts the markdown transcript into a standalone HTML page.
func (w *Writer) renderHTML(title, markdown string) ([]byte, error) {
	var body bytes.Buffer
	if err := w.md.Convert([]byte(markdown), &body); err != nil {
		return nil, err
	}

	var page bytes.Buffer
	fmt.Fprintf(&page, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body>\n", title)
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")
	return page.Bytes(), nil
}

// slugify reduces a title to a filesystem-safe slug.
func slugify(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteRune('-')
			lastDash = true
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "conversation"
	}
	if len(slug) > 60 {
		slug = slug[:60]
	}
	return slug
}
