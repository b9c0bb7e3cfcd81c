package site

import (
	"fmt"
	"strings"
	"time"

	"github.com/dgallion1/spacetraveling/internal/content"
	"github.com/goodsign/monday"
)

// FormatDate renders t as "dd MMM yyyy" with Brazilian Portuguese month
// abbreviations, e.g. "25 mar 2021".
func FormatDate(t time.Time, loc *time.Location) string {
	return strings.ToLower(monday.Format(t.In(loc), "02 Jan 2006", monday.LocalePtBR))
}

// FormatEdited renders the edit notice, e.g. "*editado em 25 mar 2021, às 19:25".
// Hours run 01 to 24, so midnight is "24:00".
func FormatEdited(t time.Time, loc *time.Location) string {
	t = t.In(loc)
	hour := t.Hour()
	if hour == 0 {
		hour = 24
	}
	return fmt.Sprintf("*editado em %s, às %02d:%02d", FormatDate(t, loc), hour, t.Minute())
}

// formatTimestamp returns "" for a missing or unparseable timestamp.
func formatTimestamp(ts *content.Timestamp, loc *time.Location, f func(time.Time, *time.Location) string) string {
	if ts == nil {
		return ""
	}
	t, err := ts.Time()
	if err != nil {
		return ""
	}
	return f(t, loc)
}
