package parser

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dgallion1/spacetraveling/internal/content"
	"gopkg.in/yaml.v3"
)

// Parser converts raw file bytes into a Document.
type Parser interface {
	Parse(r io.Reader, filename string) (*Document, error)
}

// FrontMatter is the optional YAML header of markdown and HTML files.
type FrontMatter struct {
	UID      string `yaml:"uid"`
	Title    string `yaml:"title"`
	Subtitle string `yaml:"subtitle"`
	Author   string `yaml:"author"`
	Banner   string `yaml:"banner"`
	Date     string `yaml:"date"`
	Updated  string `yaml:"updated"`
}

// Document is a parsed content file.
type Document struct {
	Meta     FrontMatter
	Title    string
	Sections []content.Section
}

// SupportedExtensions lists file extensions the local content source can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".pdf":
		return &PDFParser{FallbackPdftotext: true}, nil
	case ".docx":
		return &DOCXParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

func baseTitle(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

var fence = []byte("---")

// splitFrontMatter separates a leading "---" delimited YAML block from the
// rest of src. Files without one are returned unchanged.
func splitFrontMatter(src []byte) (FrontMatter, []byte, error) {
	var meta FrontMatter
	body := bytes.TrimPrefix(src, []byte("\ufeff"))
	if !bytes.HasPrefix(body, fence) {
		return meta, src, nil
	}
	first, rest, ok := bytes.Cut(body, []byte("\n"))
	if !ok || len(bytes.TrimSpace(first)) != len(fence) {
		return meta, src, nil
	}

	var header []byte
	for len(rest) > 0 {
		line, tail, _ := bytes.Cut(rest, []byte("\n"))
		if bytes.Equal(bytes.TrimSpace(line), fence) {
			if err := yaml.Unmarshal(header, &meta); err != nil {
				return FrontMatter{}, nil, fmt.Errorf("parse front matter: %w", err)
			}
			return meta, tail, nil
		}
		header = append(header, line...)
		header = append(header, '\n')
		rest = tail
	}
	// No closing fence: treat the whole file as body.
	return FrontMatter{}, src, nil
}

// sectionBuilder groups blocks under the most recent heading. Blocks seen
// before any heading go into a section with an empty heading.
type sectionBuilder struct {
	sections []content.Section
}

func (b *sectionBuilder) heading(text string) {
	b.sections = append(b.sections, content.Section{Heading: text, Body: []content.TextBlock{}})
}

func (b *sectionBuilder) block(blockType, text string, spans []content.Span) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if len(b.sections) == 0 {
		b.heading("")
	}
	if spans == nil {
		spans = []content.Span{}
	}
	last := &b.sections[len(b.sections)-1]
	last.Body = append(last.Body, content.TextBlock{Type: blockType, Text: text, Spans: spans})
}

func (b *sectionBuilder) result() []content.Section {
	if b.sections == nil {
		return []content.Section{}
	}
	return b.sections
}
