// ABOUTME: Markdown-to-plain-text extraction for last-message previews
// ABOUTME: Walks the goldmark AST collecting text, skipping code blocks

package convlist

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var previewParser = goldmark.New()

// PreviewText renders message markdown down to a single plain-text line
// suitable for a sidebar row. Code blocks are skipped; inline formatting is
// stripped; the result is truncated to maxLen runes.
func PreviewText(markdown string, maxLen int) string {
	src := []byte(markdown)
	doc := previewParser.Parser().Parse(text.NewReader(src))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			b.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.AutoLink:
			b.Write(node.URL(src))
		default:
			if n.Type() == ast.TypeBlock && b.Len() > 0 {
				b.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})

	flat := strings.Join(strings.Fields(b.String()), " ")
	return truncateRunes(flat, maxLen)
}

// truncateRunes shortens a string to maxLen runes, adding an ellipsis if
// truncated.
func truncateRunes(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
