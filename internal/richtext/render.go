package richtext

import (
	"html/template"
	"sort"
	"strings"
	"unicode/utf16"

	"github.com/dgallion1/spacetraveling/internal/content"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

var policy = newPolicy()

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}

// RenderHTML renders body blocks as sanitised HTML. Consecutive list items
// are grouped into a single list.
func RenderHTML(blocks []content.TextBlock) template.HTML {
	var b strings.Builder
	openList := ""
	for _, block := range blocks {
		list := listTag(block.Type)
		if list != openList {
			if openList != "" {
				b.WriteString("</" + openList + ">")
			}
			if list != "" {
				b.WriteString("<" + list + ">")
			}
			openList = list
		}

		tag := blockTag(block.Type)
		b.WriteString("<" + tag + ">")
		if tag == "pre" {
			b.WriteString(html.EscapeString(block.Text))
		} else {
			b.WriteString(renderSpans(block.Text, block.Spans))
		}
		b.WriteString("</" + tag + ">")
	}
	if openList != "" {
		b.WriteString("</" + openList + ">")
	}
	return template.HTML(policy.Sanitize(b.String()))
}

func listTag(blockType string) string {
	switch blockType {
	case "list-item":
		return "ul"
	case "o-list-item":
		return "ol"
	}
	return ""
}

func blockTag(blockType string) string {
	switch blockType {
	case "heading1", "heading2", "heading3", "heading4", "heading5", "heading6":
		return "h" + strings.TrimPrefix(blockType, "heading")
	case "list-item", "o-list-item":
		return "li"
	case "preformatted":
		return "pre"
	}
	return "p"
}

// renderSpans applies span annotations to text. Offsets count UTF-16 code
// units, as the CMS computes them. Crossing spans are clipped to the
// enclosing span.
func renderSpans(text string, spans []content.Span) string {
	if len(spans) == 0 {
		return html.EscapeString(text)
	}
	units := utf16.Encode([]rune(text))

	sorted := make([]content.Span, 0, len(spans))
	for _, s := range spans {
		if s.Start < 0 || s.End > len(units) || s.Start >= s.End {
			continue
		}
		sorted = append(sorted, s)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End > sorted[j].End
	})

	var b strings.Builder
	var stack []content.Span
	pos := 0
	emit := func(end int) {
		if end > pos {
			b.WriteString(html.EscapeString(string(utf16.Decode(units[pos:end]))))
			pos = end
		}
	}
	closeUntil := func(at int) {
		for len(stack) > 0 && stack[len(stack)-1].End <= at {
			top := stack[len(stack)-1]
			emit(top.End)
			b.WriteString(closeTag(top))
			stack = stack[:len(stack)-1]
		}
	}

	for _, s := range sorted {
		closeUntil(s.Start)
		if len(stack) > 0 && s.End > stack[len(stack)-1].End {
			s.End = stack[len(stack)-1].End
		}
		emit(s.Start)
		b.WriteString(openTag(s))
		stack = append(stack, s)
	}
	closeUntil(len(units))
	emit(len(units))
	return b.String()
}

func openTag(s content.Span) string {
	switch s.Type {
	case "strong":
		return "<strong>"
	case "em":
		return "<em>"
	case "hyperlink":
		if s.Data != nil && s.Data.URL != "" {
			return `<a href="` + html.EscapeString(s.Data.URL) + `">`
		}
		return "<a>"
	}
	return "<span>"
}

func closeTag(s content.Span) string {
	switch s.Type {
	case "strong":
		return "</strong>"
	case "em":
		return "</em>"
	case "hyperlink":
		return "</a>"
	}
	return "</span>"
}
