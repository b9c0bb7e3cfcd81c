package site

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/spacetraveling/internal/content"
)

// memSource pages through a fixed slice of posts; cursors are page numbers.
type memSource struct {
	posts   []content.Post
	queries int
}

func (m *memSource) page(n, size int) content.PageResult {
	start := min((n-1)*size, len(m.posts))
	end := min(start+size, len(m.posts))
	res := content.PageResult{Results: m.posts[start:end]}
	if end < len(m.posts) {
		res.NextPage = content.Cursor(fmt.Sprintf("%d/%d", n+1, size))
	}
	return res
}

func (m *memSource) Query(ctx context.Context, opts QueryOptions) (content.PageResult, error) {
	m.queries++
	return m.page(max(opts.Page, 1), opts.PageSize), nil
}

func (m *memSource) FetchPage(ctx context.Context, c content.Cursor) (content.PageResult, error) {
	n, size, _ := strings.Cut(string(c), "/")
	pn, _ := strconv.Atoi(n)
	ps, _ := strconv.Atoi(size)
	return m.page(pn, ps), nil
}

func (m *memSource) GetByUID(ctx context.Context, docType, uid string) (*content.Post, error) {
	for i := range m.posts {
		if m.posts[i].UID == uid {
			return &m.posts[i], nil
		}
	}
	return nil, ErrNotFound
}

func ts(s string) *content.Timestamp {
	t := content.Timestamp(s)
	return &t
}

func samplePosts() []content.Post {
	mk := func(n int, date string) content.Post {
		return content.Post{
			ID:                   fmt.Sprintf("id-%d", n),
			UID:                  fmt.Sprintf("post-%d", n),
			FirstPublicationDate: ts(date),
			Data: content.PostData{
				Title:    fmt.Sprintf("Post %d", n),
				Subtitle: "sub",
				Author:   "Joseph",
				Content: []content.Section{{
					Heading: "Intro",
					Body:    []content.TextBlock{{Type: "paragraph", Text: "Hello world"}},
				}},
			},
		}
	}
	return []content.Post{
		mk(5, "2021-03-25T19:25:28+0000"),
		mk(4, "2021-03-20T10:00:00+0000"),
		mk(3, "2021-03-15T10:00:00+0000"),
		mk(2, "2021-03-10T10:00:00+0000"),
		mk(1, "2021-03-05T10:00:00+0000"),
	}
}

var brt = time.FixedZone("BRT", -3*3600)

func TestFormatDate(t *testing.T) {
	tests := []struct {
		in   time.Time
		loc  *time.Location
		want string
	}{
		{time.Date(2021, 3, 25, 19, 25, 0, 0, time.UTC), time.UTC, "25 mar 2021"},
		{time.Date(2021, 2, 3, 0, 0, 0, 0, time.UTC), time.UTC, "03 fev 2021"},
		{time.Date(2021, 1, 1, 1, 0, 0, 0, time.UTC), brt, "31 dez 2020"},
	}
	for _, tt := range tests {
		if got := FormatDate(tt.in, tt.loc); got != tt.want {
			t.Errorf("FormatDate(%v): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestFormatDate_AllMonths(t *testing.T) {
	want := []string{"jan", "fev", "mar", "abr", "mai", "jun", "jul", "ago", "set", "out", "nov", "dez"}
	for i, m := range want {
		got := FormatDate(time.Date(2021, time.Month(i+1), 15, 12, 0, 0, 0, time.UTC), time.UTC)
		if got != "15 "+m+" 2021" {
			t.Errorf("month %d: expected %q, got %q", i+1, "15 "+m+" 2021", got)
		}
	}
}

func TestFormatEdited(t *testing.T) {
	got := FormatEdited(time.Date(2021, 3, 25, 22, 25, 0, 0, time.UTC), brt)
	if got != "*editado em 25 mar 2021, às 19:25" {
		t.Errorf("unexpected %q", got)
	}
	midnight := FormatEdited(time.Date(2021, 8, 9, 0, 5, 0, 0, time.UTC), time.UTC)
	if midnight != "*editado em 09 ago 2021, às 24:05" {
		t.Errorf("expected 24-hour clock for midnight, got %q", midnight)
	}
}

func TestAllPosts(t *testing.T) {
	src := &memSource{posts: samplePosts()}
	posts, err := AllPosts(context.Background(), src, 2)
	if err != nil {
		t.Fatalf("AllPosts: %v", err)
	}
	if len(posts) != 5 || posts[0].UID != "post-5" || posts[4].UID != "post-1" {
		t.Errorf("unexpected posts %d", len(posts))
	}
}

func TestBuilder_Home(t *testing.T) {
	src := &memSource{posts: samplePosts()}
	b := NewBuilder(src, nil, BuilderOptions{HomePageSize: 2, Location: time.UTC})

	state, err := b.HomeState(context.Background())
	if err != nil {
		t.Fatalf("HomeState: %v", err)
	}
	page := b.HomePage(state)
	if len(page.Posts) != 2 || !page.HasMore {
		t.Fatalf("expected 2 posts and more, got %+v", page)
	}
	first := page.Posts[0]
	if first.UID != "post-5" || first.Date != "25 mar 2021" || first.Author != "Joseph" {
		t.Errorf("unexpected first entry %+v", first)
	}
}

func TestBuilder_PostPage(t *testing.T) {
	posts := samplePosts()
	posts[1].LastPublicationDate = ts("2021-03-26T03:10:00+0000")
	src := &memSource{posts: posts}
	b := NewBuilder(src, nil, BuilderOptions{SidePostsPageSize: 4, Location: brt})

	page, err := b.PostPage(context.Background(), "post-4")
	if err != nil {
		t.Fatalf("PostPage: %v", err)
	}
	if page.ReadingTime != "1 min" {
		t.Errorf("expected %q, got %q", "1 min", page.ReadingTime)
	}
	if page.Date != "20 mar 2021" {
		t.Errorf("expected date %q, got %q", "20 mar 2021", page.Date)
	}
	if page.EditedAt != "*editado em 26 mar 2021, às 24:10" {
		t.Errorf("unexpected edit notice %q", page.EditedAt)
	}
	if page.Previous == nil || page.Previous.Slug != "post-3" {
		t.Errorf("expected previous post-3, got %+v", page.Previous)
	}
	if page.Next == nil || page.Next.Slug != "post-5" || page.Next.Title != "Post 5" {
		t.Errorf("expected next post-5, got %+v", page.Next)
	}
	if len(page.Sections) != 1 || !strings.Contains(string(page.Sections[0].Body), "<p>Hello world</p>") {
		t.Errorf("unexpected sections %+v", page.Sections)
	}
}

func TestBuilder_PostPageOutsideSideWindow(t *testing.T) {
	src := &memSource{posts: samplePosts()}
	b := NewBuilder(src, nil, BuilderOptions{SidePostsPageSize: 4})

	page, err := b.PostPage(context.Background(), "post-1")
	if err != nil {
		t.Fatalf("PostPage: %v", err)
	}
	if page.Previous != nil || page.Next != nil {
		t.Errorf("expected no neighbours outside the window, got %+v %+v", page.Previous, page.Next)
	}
	if page.EditedAt != "" {
		t.Errorf("expected no edit notice, got %q", page.EditedAt)
	}
}

func TestBuilder_PostPageNotFound(t *testing.T) {
	b := NewBuilder(&memSource{posts: samplePosts()}, nil, BuilderOptions{})
	if _, err := b.PostPage(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
