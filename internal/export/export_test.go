package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dgallion1/spacetraveling/internal/cms"
	"github.com/dgallion1/spacetraveling/internal/config"
	"github.com/dgallion1/spacetraveling/internal/content"
	"github.com/dgallion1/spacetraveling/internal/site"
	"github.com/dgallion1/spacetraveling/internal/web"
)

// fakeSource serves posts from memory. Cursors are page numbers. failures
// maps a uid to the errors GetByUID returns before it succeeds.
type fakeSource struct {
	mu       sync.Mutex
	posts    []content.Post
	failures map[string][]error
	calls    map[string]int
}

func newFakeSource(n int) *fakeSource {
	f := &fakeSource{failures: map[string][]error{}, calls: map[string]int{}}
	for i := n; i >= 1; i-- {
		ts := content.Timestamp(fmt.Sprintf("2021-03-%02dT10:00:00+0000", i))
		f.posts = append(f.posts, content.Post{
			ID:                   fmt.Sprintf("id-%d", i),
			UID:                  fmt.Sprintf("post-%d", i),
			FirstPublicationDate: &ts,
			Data: content.PostData{
				Title:  fmt.Sprintf("Post %d", i),
				Author: "Joseph",
				Content: []content.Section{{
					Heading: "Intro",
					Body:    []content.TextBlock{{Type: "paragraph", Text: "Hello world"}},
				}},
			},
		})
	}
	return f
}

func (f *fakeSource) page(n, size int) content.PageResult {
	start := min((n-1)*size, len(f.posts))
	end := min(start+size, len(f.posts))
	res := content.PageResult{Results: f.posts[start:end]}
	if end < len(f.posts) {
		res.NextPage = content.Cursor(fmt.Sprintf("%d/%d", n+1, size))
	}
	return res
}

func (f *fakeSource) Query(ctx context.Context, opts site.QueryOptions) (content.PageResult, error) {
	return f.page(max(opts.Page, 1), opts.PageSize), nil
}

func (f *fakeSource) FetchPage(ctx context.Context, c content.Cursor) (content.PageResult, error) {
	n, size, _ := strings.Cut(string(c), "/")
	pn, _ := strconv.Atoi(n)
	ps, _ := strconv.Atoi(size)
	return f.page(pn, ps), nil
}

func (f *fakeSource) GetByUID(ctx context.Context, docType, uid string) (*content.Post, error) {
	f.mu.Lock()
	f.calls[uid]++
	if errs := f.failures[uid]; len(errs) > 0 {
		f.failures[uid] = errs[1:]
		f.mu.Unlock()
		return nil, errs[0]
	}
	f.mu.Unlock()
	for i := range f.posts {
		if f.posts[i].UID == uid {
			return &f.posts[i], nil
		}
	}
	return nil, site.ErrNotFound
}

func newExporter(src site.Source, workers int) *Exporter {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	builder := site.NewBuilder(src, nil, site.BuilderOptions{Location: time.UTC})
	render := web.NewRenderer(config.Config{SiteTitle: "SpaceTraveling"})
	e := New(builder, render, log, workers)
	e.backoff = func(int) time.Duration { return 0 }
	return e
}

func readManifest(t *testing.T, dir string) Manifest {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	return m
}

func TestExporter_WritesEveryPage(t *testing.T) {
	src := newFakeSource(5)
	out := t.TempDir()

	m, err := newExporter(src, 3).Run(context.Background(), out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if m.Posts != 5 || len(m.Paths) != 6 {
		t.Fatalf("expected 5 posts and 6 paths, got %d and %v", m.Posts, m.Paths)
	}

	for i := 1; i <= 5; i++ {
		path := filepath.Join(out, "post", fmt.Sprintf("post-%d", i), "index.html")
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("expected %s: %v", path, err)
		}
		if !strings.Contains(string(data), fmt.Sprintf("Post %d", i)) {
			t.Errorf("%s does not contain its title", path)
		}
	}

	f, err := os.Open(filepath.Join(out, "index.html"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		t.Fatal(err)
	}
	if n := doc.Find("a.post").Length(); n != 5 {
		t.Errorf("expected the full listing of 5 posts, got %d", n)
	}
	if doc.Find("button.load-more").Length() != 0 {
		t.Error("expected no load more button in a static export")
	}

	onDisk := readManifest(t, out)
	if onDisk.Posts != 5 || onDisk.Paths[0] != "/" || onDisk.Paths[1] != "/post/post-1" {
		t.Errorf("unexpected manifest %+v", onDisk)
	}
}

func TestExporter_RetriesTransientErrors(t *testing.T) {
	src := newFakeSource(2)
	src.failures["post-1"] = []error{
		&cms.RetryableError{StatusCode: 503, Message: "busy"},
		&cms.RetryableError{StatusCode: 429, Message: "slow down"},
	}

	if _, err := newExporter(src, 1).Run(context.Background(), t.TempDir()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := src.calls["post-1"]; got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestExporter_ReportsFailedPosts(t *testing.T) {
	src := newFakeSource(3)
	src.failures["post-2"] = []error{errors.New("boom")}
	src.failures["post-3"] = []error{
		&cms.RetryableError{StatusCode: 500},
		&cms.RetryableError{StatusCode: 500},
		&cms.RetryableError{StatusCode: 500},
		&cms.RetryableError{StatusCode: 500},
	}
	out := t.TempDir()

	m, err := newExporter(src, 2).Run(context.Background(), out)
	if err == nil {
		t.Fatal("expected an error for failed posts")
	}
	if !strings.Contains(err.Error(), "post-2") || !strings.Contains(err.Error(), "post-3") {
		t.Errorf("expected both failures in error, got %v", err)
	}
	if src.calls["post-2"] != 1 {
		t.Errorf("expected no retry for a permanent error, got %d calls", src.calls["post-2"])
	}
	if src.calls["post-3"] != MaxRetries {
		t.Errorf("expected %d attempts, got %d", MaxRetries, src.calls["post-3"])
	}
	if len(m.Failed) != 2 || m.Failed[0] != "post-2" || m.Failed[1] != "post-3" {
		t.Errorf("unexpected failed list %v", m.Failed)
	}
	if _, err := os.Stat(filepath.Join(out, "post", "post-1", "index.html")); err != nil {
		t.Errorf("expected the healthy post to be exported: %v", err)
	}
	if got := readManifest(t, out).Failed; len(got) != 2 {
		t.Errorf("expected failures in manifest, got %v", got)
	}
}

func TestExporter_RejectsUnsafeUID(t *testing.T) {
	src := newFakeSource(1)
	src.posts[0].UID = "../escape"
	out := t.TempDir()

	m, err := newExporter(src, 1).Run(context.Background(), out)
	if err == nil {
		t.Fatal("expected an error for an unsafe uid")
	}
	if len(m.Failed) != 1 {
		t.Errorf("expected one failure, got %v", m.Failed)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(out), "escape")); err == nil {
		t.Error("export escaped the output directory")
	}
}

func TestBackoff(t *testing.T) {
	for attempt, base := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		got := Backoff(attempt)
		if got < base || got >= base+base/2 {
			t.Errorf("attempt %d: expected [%v, %v), got %v", attempt, base, base+base/2, got)
		}
	}
	if got := Backoff(10); got < 30*time.Second || got >= 45*time.Second {
		t.Errorf("expected backoff capped at 30s plus jitter, got %v", got)
	}
}
