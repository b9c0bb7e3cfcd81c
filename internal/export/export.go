// Package export renders the whole site to static HTML files.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgallion1/spacetraveling/internal/content"
	"github.com/dgallion1/spacetraveling/internal/pagination"
	"github.com/dgallion1/spacetraveling/internal/site"
)

// listPageSize is the page size used to walk the full listing.
const listPageSize = 100

// Renderer turns view models into HTML documents.
type Renderer interface {
	Home(site.HomePage) ([]byte, error)
	Post(*site.PostPage) ([]byte, error)
}

// Manifest describes one export run. It is written to manifest.json.
type Manifest struct {
	GeneratedAt time.Time `json:"generated_at"`
	Posts       int       `json:"posts"`
	Paths       []string  `json:"paths"`
	Failed      []string  `json:"failed,omitempty"`
}

// Exporter writes the home page and every post page under a directory.
type Exporter struct {
	builder *site.Builder
	render  Renderer
	log     *slog.Logger
	workers int

	// backoff is replaceable so tests do not sleep.
	backoff func(int) time.Duration
}

func New(builder *site.Builder, render Renderer, log *slog.Logger, workers int) *Exporter {
	if workers <= 0 {
		workers = 1
	}
	return &Exporter{
		builder: builder,
		render:  render,
		log:     log,
		workers: workers,
		backoff: Backoff,
	}
}

// Run exports the site into outDir. Posts that fail to render are listed in
// the manifest and reported in the returned error; the rest are still written.
func (e *Exporter) Run(ctx context.Context, outDir string) (*Manifest, error) {
	start := time.Now()
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	posts, err := withRetry(ctx, e.log, e.backoff, "listing", func(ctx context.Context) ([]content.Post, error) {
		return site.AllPosts(ctx, e.builder.Source(), listPageSize)
	})
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	e.log.Info("exporting site", "posts", len(posts), "workers", e.workers, "out", outDir)

	if err := e.writeHome(outDir, posts); err != nil {
		return nil, err
	}

	m := &Manifest{Posts: len(posts), Paths: []string{"/"}}
	var (
		mu   sync.Mutex
		errs []error
	)

	uids := make(chan string)
	var wg sync.WaitGroup
	for range e.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for uid := range uids {
				err := e.writePost(ctx, outDir, uid)
				mu.Lock()
				if err != nil {
					e.log.Error("export post failed", "uid", uid, "error", err)
					m.Failed = append(m.Failed, uid)
					errs = append(errs, fmt.Errorf("post %s: %w", uid, err))
				} else {
					m.Paths = append(m.Paths, "/post/"+uid)
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for _, p := range posts {
		select {
		case uids <- p.UID:
		case <-ctx.Done():
			break feed
		}
	}
	close(uids)
	wg.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	sort.Strings(m.Paths)
	sort.Strings(m.Failed)
	m.GeneratedAt = time.Now().UTC()
	if err := writeManifest(outDir, m); err != nil {
		return nil, err
	}

	e.log.Info("export complete",
		"pages", len(m.Paths),
		"failed", len(m.Failed),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return m, errors.Join(errs...)
}

// writeHome renders the full listing. A static site has no server to
// accumulate pages for, so the load more button is never shown.
func (e *Exporter) writeHome(outDir string, posts []content.Post) error {
	state := pagination.State{Summaries: make([]content.Summary, 0, len(posts))}
	for _, p := range posts {
		state.Summaries = append(state.Summaries, content.Project(p))
	}
	body, err := e.render.Home(e.builder.HomePage(state))
	if err != nil {
		return fmt.Errorf("render home: %w", err)
	}
	return writeFile(filepath.Join(outDir, "index.html"), body)
}

func (e *Exporter) writePost(ctx context.Context, outDir, uid string) error {
	if !safeUID(uid) {
		return fmt.Errorf("unsafe uid %q", uid)
	}
	view, err := withRetry(ctx, e.log, e.backoff, uid, func(ctx context.Context) (*site.PostPage, error) {
		return e.builder.PostPage(ctx, uid)
	})
	if err != nil {
		return err
	}
	body, err := e.render.Post(view)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	return writeFile(filepath.Join(outDir, "post", uid, "index.html"), body)
}

// safeUID rejects uids that would escape the post directory.
func safeUID(uid string) bool {
	return uid != "" && uid != "." && uid != ".." && !strings.ContainsAny(uid, `/\`)
}

func writeManifest(outDir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return writeFile(filepath.Join(outDir, "manifest.json"), data)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
