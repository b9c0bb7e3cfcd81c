// Package richtext converts CMS rich-text blocks to plain text and HTML.
package richtext

import (
	"strings"

	"github.com/dgallion1/spacetraveling/internal/content"
)

// Converter renders a list of body blocks down to plain text.
type Converter interface {
	AsText(blocks []content.TextBlock) (string, error)
}

// blockSeparator joins consecutive blocks, matching the CMS helper default.
const blockSeparator = " "

// Plain joins block texts as-is. CMS block text is already literal; styling
// lives in spans and is ignored. The separator is only written once some text
// has accumulated, so leading empty blocks add nothing.
type Plain struct{}

func (Plain) AsText(blocks []content.TextBlock) (string, error) {
	var b strings.Builder
	for _, blk := range blocks {
		if b.Len() > 0 {
			b.WriteString(blockSeparator)
		}
		b.WriteString(blk.Text)
	}
	return b.String(), nil
}
