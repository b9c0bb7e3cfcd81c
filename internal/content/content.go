package content

import (
	"fmt"
	"time"
)

// Timestamp is a publication date exactly as the source delivered it.
type Timestamp string

// timestampLayouts covers the CMS format plus the forms people write in
// front matter. Times without a zone are UTC.
var timestampLayouts = []string{
	"2006-01-02T15:04:05-0700",
	time.RFC3339Nano,
	"2006-01-02",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999 -0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// Time parses the timestamp.
func (t Timestamp) Time() (time.Time, error) {
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, string(t)); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", string(t))
}

// NewTimestamp formats tm the way the CMS does.
func NewTimestamp(tm time.Time) *Timestamp {
	ts := Timestamp(tm.UTC().Format("2006-01-02T15:04:05-0700"))
	return &ts
}

// Span is a styling annotation over a range of a TextBlock's text.
type Span struct {
	Start int       `json:"start"`
	End   int       `json:"end"`
	Type  string    `json:"type"` // strong, em, hyperlink
	Data  *SpanData `json:"data,omitempty"`
}

// SpanData carries span-specific payload, currently only hyperlink targets.
type SpanData struct {
	URL string `json:"url,omitempty"`
}

// TextBlock is a single rich-text block as delivered by the CMS.
type TextBlock struct {
	Type  string `json:"type"` // paragraph, heading1..heading6, list-item, o-list-item, preformatted
	Text  string `json:"text"`
	Spans []Span `json:"spans"`
}

// Section is a heading followed by its body blocks.
type Section struct {
	Heading string      `json:"heading"`
	Body    []TextBlock `json:"body"`
}

// Banner is the post's header image.
type Banner struct {
	URL string `json:"url"`
}

// PostData holds the custom fields of a post document.
type PostData struct {
	Title    string    `json:"title"`
	Subtitle string    `json:"subtitle"`
	Author   string    `json:"author"`
	Banner   Banner    `json:"banner"`
	Content  []Section `json:"content"`
}

// Post is a full article as returned by a content source.
type Post struct {
	ID                   string     `json:"id"`
	UID                  string     `json:"uid"`
	Type                 string     `json:"type"`
	FirstPublicationDate *Timestamp `json:"first_publication_date"`
	LastPublicationDate  *Timestamp `json:"last_publication_date"`
	Data                 PostData   `json:"data"`
}

// Document returns the post body in the shape the reading-time estimator consumes.
func (p *Post) Document() []Section {
	return p.Data.Content
}

// SummaryData is the subset of PostData shown in listings.
type SummaryData struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	Author   string `json:"author"`
}

// Summary is the listing projection of a Post.
type Summary struct {
	UID                  string      `json:"uid"`
	FirstPublicationDate *Timestamp  `json:"first_publication_date"`
	Data                 SummaryData `json:"data"`
}

// Project copies the listing fields of p verbatim.
func Project(p Post) Summary {
	return Summary{
		UID:                  p.UID,
		FirstPublicationDate: p.FirstPublicationDate,
		Data: SummaryData{
			Title:    p.Data.Title,
			Subtitle: p.Data.Subtitle,
			Author:   p.Data.Author,
		},
	}
}

// Cursor addresses the next page of a paginated query. Empty means no more pages.
type Cursor string

// PageResult is one page of a paginated query.
type PageResult struct {
	Results  []Post `json:"results"`
	NextPage Cursor `json:"next_page"`
}

// SidePost links to a neighbouring post.
type SidePost struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

// Neighbors locates the post with the given document id inside recent (newest
// first) and returns the older post as previous and the newer one as next.
// Both are nil when id is not in recent.
func Neighbors(recent []Post, id string) (previous, next *SidePost) {
	idx := -1
	for i := range recent {
		if recent[i].ID == id {
			idx = i
		}
	}
	if idx == -1 {
		return nil, nil
	}
	if idx < len(recent)-1 {
		p := recent[idx+1]
		previous = &SidePost{Slug: p.UID, Title: p.Data.Title}
	}
	if idx != 0 {
		n := recent[idx-1]
		next = &SidePost{Slug: n.UID, Title: n.Data.Title}
	}
	return previous, next
}
