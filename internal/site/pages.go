package site

import (
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/dgallion1/spacetraveling/internal/content"
	"github.com/dgallion1/spacetraveling/internal/pagination"
	"github.com/dgallion1/spacetraveling/internal/readingtime"
	"github.com/dgallion1/spacetraveling/internal/richtext"
)

// Builder assembles page view models from a Source.
type Builder struct {
	src       Source
	estimator *readingtime.Estimator
	loc       *time.Location

	homePageSize      int
	sidePostsPageSize int
}

type BuilderOptions struct {
	HomePageSize      int
	SidePostsPageSize int
	Location          *time.Location
}

func NewBuilder(src Source, est *readingtime.Estimator, opts BuilderOptions) *Builder {
	b := &Builder{
		src:               src,
		estimator:         est,
		loc:               opts.Location,
		homePageSize:      opts.HomePageSize,
		sidePostsPageSize: opts.SidePostsPageSize,
	}
	if b.loc == nil {
		b.loc = time.UTC
	}
	if b.homePageSize <= 0 {
		b.homePageSize = 1
	}
	if b.sidePostsPageSize <= 0 {
		b.sidePostsPageSize = 4
	}
	if b.estimator == nil {
		b.estimator = readingtime.New(richtext.Plain{})
	}
	return b
}

// Source returns the underlying post source.
func (b *Builder) Source() Source {
	return b.src
}

// HomeState loads the first page of the listing.
func (b *Builder) HomeState(ctx context.Context) (pagination.State, error) {
	page, err := b.src.Query(ctx, QueryOptions{PageSize: b.homePageSize})
	if err != nil {
		return pagination.State{}, fmt.Errorf("query home page: %w", err)
	}
	return pagination.NewState(page), nil
}

// SummaryView is one listing entry, ready for display.
type SummaryView struct {
	UID      string `json:"uid"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	Author   string `json:"author"`
	Date     string `json:"date"`
}

// HomePage is the listing view model.
type HomePage struct {
	Posts   []SummaryView
	HasMore bool
}

func (b *Builder) HomePage(s pagination.State) HomePage {
	views := make([]SummaryView, 0, len(s.Summaries))
	for _, sm := range s.Summaries {
		views = append(views, SummaryView{
			UID:      sm.UID,
			Title:    sm.Data.Title,
			Subtitle: sm.Data.Subtitle,
			Author:   sm.Data.Author,
			Date:     formatTimestamp(sm.FirstPublicationDate, b.loc, FormatDate),
		})
	}
	return HomePage{Posts: views, HasMore: s.HasMore()}
}

// SectionView is a post section with its body rendered as HTML.
type SectionView struct {
	Heading string
	Body    template.HTML
}

// PostPage is the article view model.
type PostPage struct {
	UID         string
	Title       string
	Author      string
	BannerURL   string
	Date        string
	EditedAt    string
	ReadingTime string
	Sections    []SectionView
	Previous    *content.SidePost
	Next        *content.SidePost
}

// PostPage loads the post with the given uid. It returns ErrNotFound for an
// unknown uid.
func (b *Builder) PostPage(ctx context.Context, uid string) (*PostPage, error) {
	post, err := b.src.GetByUID(ctx, PostType, uid)
	if err != nil {
		return nil, err
	}

	readingTime, err := b.estimator.Estimate(post.Document())
	if err != nil {
		return nil, fmt.Errorf("estimate reading time for %s: %w", uid, err)
	}

	recent, err := b.src.Query(ctx, QueryOptions{PageSize: b.sidePostsPageSize})
	if err != nil {
		return nil, fmt.Errorf("query side posts: %w", err)
	}
	previous, next := content.Neighbors(recent.Results, post.ID)

	sections := make([]SectionView, 0, len(post.Data.Content))
	for _, sec := range post.Data.Content {
		sections = append(sections, SectionView{
			Heading: sec.Heading,
			Body:    richtext.RenderHTML(sec.Body),
		})
	}

	return &PostPage{
		UID:         post.UID,
		Title:       post.Data.Title,
		Author:      post.Data.Author,
		BannerURL:   post.Data.Banner.URL,
		Date:        formatTimestamp(post.FirstPublicationDate, b.loc, FormatDate),
		EditedAt:    formatTimestamp(post.LastPublicationDate, b.loc, FormatEdited),
		ReadingTime: readingTime,
		Sections:    sections,
		Previous:    previous,
		Next:        next,
	}, nil
}
