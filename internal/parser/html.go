package parser

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/spacetraveling/internal/content"
	"golang.org/x/net/html"
)

// HTMLParser handles HTML files.
type HTMLParser struct{}

func (p *HTMLParser) Parse(r io.Reader, filename string) (*Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	meta, src, err := splitFrontMatter(raw)
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	out := &Document{Meta: meta, Title: meta.Title}
	if out.Title == "" {
		out.Title = findTitle(doc)
	}
	if out.Title == "" {
		out.Title = baseTitle(filename)
	}

	var b sectionBuilder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if headingLevel(n.Data) > 0 {
				b.heading(textContent(n))
				return
			}

			switch n.Data {
			case "script", "style", "nav", "footer", "header", "head":
				return
			case "p", "blockquote", "td":
				text, spans := htmlInline(n)
				b.block("paragraph", text, spans)
				return
			case "pre":
				b.block("preformatted", strings.TrimRight(rawText(n), "\n"), nil)
				return
			case "li":
				blockType := "list-item"
				if n.Parent != nil && n.Parent.Type == html.ElementNode && n.Parent.Data == "ol" {
					blockType = "o-list-item"
				}
				text, spans := htmlInline(n)
				b.block(blockType, text, spans)
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					if c.Type == html.ElementNode && (c.Data == "ul" || c.Data == "ol") {
						walk(c)
					}
				}
				return
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	if body := findBody(doc); body != nil {
		walk(body)
	} else {
		walk(doc)
	}
	out.Sections = b.result()
	return out, nil
}

func htmlInline(n *html.Node) (string, []content.Span) {
	w := inlineWriter{collapse: true}
	walkHTMLInline(&w, n)
	return w.finish()
}

func walkHTMLInline(w *inlineWriter, n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			w.write(c.Data)
		case html.ElementNode:
			switch c.Data {
			case "script", "style", "ul", "ol":
				// nested lists are not inline content
			case "br":
				w.newline()
			case "strong", "b":
				start := w.units
				walkHTMLInline(w, c)
				w.span(start, "strong", "")
			case "em", "i":
				start := w.units
				walkHTMLInline(w, c)
				w.span(start, "em", "")
			case "a":
				start := w.units
				walkHTMLInline(w, c)
				if href := attr(c, "href"); href != "" {
					w.span(start, "hyperlink", href)
				}
			default:
				walkHTMLInline(w, c)
			}
		}
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func headingLevel(tag string) int {
	switch tag {
	case "h1":
		return 1
	case "h2":
		return 2
	case "h3":
		return 3
	case "h4":
		return 4
	case "h5":
		return 5
	case "h6":
		return 6
	}
	return 0
}

// rawText concatenates descendant text without trimming.
func rawText(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return buf.String()
}

func textContent(n *html.Node) string {
	text, _ := htmlInline(n)
	return text
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		return strings.TrimSpace(rawText(n))
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}
