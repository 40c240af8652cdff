// Package text is the opaque rich-text transform used at the boundary between
// the origin's plain markup and the mirror's HTML fields. The reverse
// direction is lossy; callers must not assume byte-identical round trips.
package text

import (
	"fmt"
	"strings"

	htmltomd "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/gomarkdown/markdown"
)

// Transform converts between the origin's plain markup and the mirror's rich
// text.
type Transform interface {
	ToRichText(plainMarkup string) (string, error)
	ToPlainMarkup(richText string) (string, error)
}

// MarkdownHTML converts GitHub-style markdown to HTML and back.
type MarkdownHTML struct {
	converter *htmltomd.Converter
}

// NewMarkdownHTML builds the default transform.
func NewMarkdownHTML() *MarkdownHTML {
	return &MarkdownHTML{converter: htmltomd.NewConverter("", true, nil)}
}

func (m *MarkdownHTML) ToRichText(plainMarkup string) (string, error) {
	if plainMarkup == "" {
		return "", nil
	}
	html := markdown.ToHTML([]byte(plainMarkup), nil, nil)
	return strings.TrimSpace(string(html)), nil
}

func (m *MarkdownHTML) ToPlainMarkup(richText string) (string, error) {
	if richText == "" {
		return "", nil
	}
	md, err := m.converter.ConvertString(richText)
	if err != nil {
		return "", fmt.Errorf("failed to convert rich text: %w", err)
	}
	return md, nil
}
