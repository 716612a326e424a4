package extract

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var blankRuns = regexp.MustCompile(`\n{3,}`)

// extractMarkdown renders the markdown AST as plain text. Block elements
// are separated by blank lines so paragraph structure survives chunking.
func extractMarkdown(data []byte) (string, error) {
	source := data
	doc := goldmark.New().Parser().Parse(text.NewReader(source))
	var sb strings.Builder
	err := ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		switch n := node.(type) {
		case *ast.Text:
			if entering {
				sb.Write(n.Segment.Value(source))
				if n.HardLineBreak() || n.SoftLineBreak() {
					sb.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				sb.Write(n.Value)
			}
		case *ast.AutoLink:
			if entering {
				sb.Write(n.URL(source))
			}
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML, *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					line := lines.At(i)
					sb.Write(line.Value(source))
				}
				sb.WriteString("\n\n")
			}
			return ast.WalkSkipChildren, nil
		case *ast.TextBlock:
			if !entering {
				sb.WriteByte('\n')
			}
		case *ast.Paragraph, *ast.Heading, *ast.ThematicBreak, *ast.List, *ast.Blockquote:
			if !entering {
				sb.WriteString("\n\n")
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}
	out := blankRuns.ReplaceAllString(sb.String(), "\n\n")
	return strings.TrimSpace(out), nil
}
