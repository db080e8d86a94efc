package workspace

import (
	"strings"
)

const (
	typeParagraph = "paragraph"
	typeHeading1  = "heading_1"
	typeHeading2  = "heading_2"
	typeHeading3  = "heading_3"
	typeBulleted  = "bulleted_list_item"
	typeNumbered  = "numbered_list_item"
	typeToDo      = "to_do"
	typeCode      = "code"
	typeQuote     = "quote"
)

// formatters renders one block to markdown-like text. Types missing from the
// table render empty.
var formatters = map[string]func(b Block) string{
	typeParagraph: func(b Block) string { return b.Text },
	typeHeading1:  func(b Block) string { return "# " + b.Text },
	typeHeading2:  func(b Block) string { return "## " + b.Text },
	typeHeading3:  func(b Block) string { return "### " + b.Text },
	typeBulleted:  func(b Block) string { return indent(b) + "- " + b.Text },
	typeNumbered:  func(b Block) string { return indent(b) + "1. " + b.Text },
	typeToDo: func(b Block) string {
		if b.Checked {
			return indent(b) + "- [x] " + b.Text
		}
		return indent(b) + "- [ ] " + b.Text
	},
	typeCode:  func(b Block) string { return "```" + b.Language + "\n" + b.Text + "\n```" },
	typeQuote: func(b Block) string { return "> " + b.Text },
}

func indent(b Block) string {
	return strings.Repeat("  ", b.Depth)
}

func RenderBlock(b Block) string {
	f, ok := formatters[b.Type]
	if !ok || strings.TrimSpace(b.Text) == "" {
		return ""
	}
	return f(b)
}

// Render joins the non-empty rendered blocks, in order, with blank lines.
func Render(blocks []Block) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if s := RenderBlock(b); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}
