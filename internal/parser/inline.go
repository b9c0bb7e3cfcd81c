package parser

import (
	"strings"

	"github.com/dgallion1/spacetraveling/internal/content"
)

// inlineWriter accumulates block text and the spans over it. Offsets are
// UTF-16 code units, matching what the CMS delivers.
type inlineWriter struct {
	b     strings.Builder
	units int
	spans []content.Span

	// collapse folds runs of whitespace into one space, as HTML rendering does.
	collapse  bool
	lastSpace bool
}

func (w *inlineWriter) write(s string) {
	for _, r := range s {
		if w.collapse && (r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f') {
			if w.lastSpace || w.units == 0 {
				continue
			}
			r = ' '
			w.lastSpace = true
		} else {
			w.lastSpace = false
		}
		w.b.WriteRune(r)
		if r >= 0x10000 {
			w.units += 2
		} else {
			w.units++
		}
	}
}

// newline writes a hard break, which survives collapsing.
func (w *inlineWriter) newline() {
	if w.units == 0 {
		return
	}
	w.b.WriteByte('\n')
	w.units++
	w.lastSpace = true
}

func (w *inlineWriter) span(start int, typ, url string) {
	if w.units <= start {
		return
	}
	s := content.Span{Start: start, End: w.units, Type: typ}
	if url != "" {
		s.Data = &content.SpanData{URL: url}
	}
	w.spans = append(w.spans, s)
}

// finish returns the text with trailing whitespace removed and spans clipped
// to the trimmed length.
func (w *inlineWriter) finish() (string, []content.Span) {
	text := w.b.String()
	trimmed := strings.TrimRight(text, " \t\r\n\f")
	units := w.units - (len(text) - len(trimmed))

	spans := make([]content.Span, 0, len(w.spans))
	for _, s := range w.spans {
		if s.End > units {
			s.End = units
		}
		if s.Start < s.End {
			spans = append(spans, s)
		}
	}
	return trimmed, spans
}
