package parser

import (
	"bytes"
	"io"
	"strings"

	"github.com/dgallion1/spacetraveling/internal/content"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// MarkdownParser handles Markdown files using goldmark.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(r io.Reader, filename string) (*Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	meta, src, err := splitFrontMatter(raw)
	if err != nil {
		return nil, err
	}

	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))

	out := &Document{Meta: meta, Title: meta.Title}
	var b sectionBuilder

	n := doc.FirstChild()
	// A leading h1 is the post title when front matter does not name one.
	if h, ok := n.(*ast.Heading); ok && h.Level == 1 && out.Title == "" {
		out.Title = inlineText(h, src)
		n = n.NextSibling()
	}
	if out.Title == "" {
		out.Title = baseTitle(filename)
	}

	for ; n != nil; n = n.NextSibling() {
		markdownBlock(&b, n, src)
	}
	out.Sections = b.result()
	return out, nil
}

func markdownBlock(b *sectionBuilder, n ast.Node, src []byte) {
	switch node := n.(type) {
	case *ast.Heading:
		b.heading(inlineText(node, src))
	case *ast.Paragraph, *ast.TextBlock:
		text, spans := markdownInline(node, src)
		b.block("paragraph", text, spans)
	case *ast.List:
		markdownList(b, node, src)
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		b.block("preformatted", codeText(node, src), nil)
	case *ast.Blockquote:
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			markdownBlock(b, c, src)
		}
	}
}

// markdownList flattens nested lists into consecutive list items.
func markdownList(b *sectionBuilder, list *ast.List, src []byte) {
	blockType := "list-item"
	if list.IsOrdered() {
		blockType = "o-list-item"
	}
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			if nested, ok := c.(*ast.List); ok {
				markdownList(b, nested, src)
				continue
			}
			text, spans := markdownInline(c, src)
			b.block(blockType, text, spans)
		}
	}
}

func markdownInline(n ast.Node, src []byte) (string, []content.Span) {
	var w inlineWriter
	walkMarkdownInline(&w, n, src)
	return w.finish()
}

func walkMarkdownInline(w *inlineWriter, n ast.Node, src []byte) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch node := c.(type) {
		case *ast.Text:
			if node.IsRaw() {
				w.write(string(node.Segment.Value(src)))
			} else {
				w.write(literal(node.Segment.Value(src)))
			}
			switch {
			case node.HardLineBreak():
				w.newline()
			case node.SoftLineBreak():
				w.write(" ")
			}
		case *ast.String:
			w.write(string(node.Value))
		case *ast.CodeSpan:
			w.write(codeSpanText(node, src))
		case *ast.Emphasis:
			start := w.units
			walkMarkdownInline(w, node, src)
			if node.Level >= 2 {
				w.span(start, "strong", "")
			} else {
				w.span(start, "em", "")
			}
		case *ast.Link:
			start := w.units
			walkMarkdownInline(w, node, src)
			w.span(start, "hyperlink", string(node.Destination))
		case *ast.AutoLink:
			start := w.units
			w.write(string(node.Label(src)))
			w.span(start, "hyperlink", string(node.URL(src)))
		case *ast.RawHTML:
			// dropped
		default:
			walkMarkdownInline(w, c, src)
		}
	}
}

// literal decodes backslash escapes and character references, as the
// goldmark HTML writer does before escaping.
func literal(b []byte) string {
	b = util.UnescapePunctuations(append([]byte(nil), b...))
	b = util.ResolveNumericReferences(b)
	b = util.ResolveEntityNames(b)
	return string(b)
}

// codeSpanText is the verbatim content of a code span. Line endings inside
// the span read as spaces.
func codeSpanText(n *ast.CodeSpan, src []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
		case *ast.String:
			b.Write(t.Value)
		}
	}
	return strings.ReplaceAll(b.String(), "\n", " ")
}

func inlineText(n ast.Node, src []byte) string {
	text, _ := markdownInline(n, src)
	return text
}

func codeText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		buf.Write(line.Value(src))
	}
	return strings.TrimRight(buf.String(), "\n")
}
