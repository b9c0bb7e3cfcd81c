// Package localcms serves posts from a directory of content files.
package localcms

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgallion1/spacetraveling/internal/content"
	"github.com/dgallion1/spacetraveling/internal/parser"
	"github.com/dgallion1/spacetraveling/internal/site"
	"github.com/google/uuid"
)

// DefaultPageSize applies when a query does not ask for one.
const DefaultPageSize = 20

var (
	ErrBadCursor   = site.ErrBadCursor
	ErrUnsupported = errors.New("unsupported content file")
	ErrTooLarge    = errors.New("content file too large")
)

type entry struct {
	modTime time.Time
	size    int64
	post    *content.Post // nil when the file failed to parse
}

// Source implements site.Source over a directory. Files are re-read when
// their size or modification time changes.
type Source struct {
	dir string
	log *slog.Logger

	mu    sync.Mutex
	cache map[string]entry
}

// New creates the directory if needed.
func New(dir string, log *slog.Logger) (*Source, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create content dir: %w", err)
	}
	return &Source{dir: dir, log: log, cache: make(map[string]entry)}, nil
}

// Posts returns every post, newest first, ties broken by uid.
func (s *Source) Posts(ctx context.Context) ([]content.Post, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read content dir: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(entries))
	for _, de := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := de.Name()
		if de.IsDir() || strings.HasPrefix(name, ".") || !parser.IsSupportedExtension(name) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		seen[name] = true
		if e, ok := s.cache[name]; ok && e.modTime.Equal(info.ModTime()) && e.size == info.Size() {
			continue
		}

		post, err := s.load(name, info.ModTime())
		if err != nil {
			s.log.Warn("skipping content file", "file", name, "error", err)
		}
		s.cache[name] = entry{modTime: info.ModTime(), size: info.Size(), post: post}
	}
	for name := range s.cache {
		if !seen[name] {
			delete(s.cache, name)
		}
	}

	posts := make([]content.Post, 0, len(s.cache))
	uids := make(map[string]string, len(s.cache))
	names := make([]string, 0, len(s.cache))
	for name := range s.cache {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		p := s.cache[name].post
		if p == nil {
			continue
		}
		if other, dup := uids[p.UID]; dup {
			s.log.Warn("duplicate uid, skipping file", "file", name, "uid", p.UID, "kept", other)
			continue
		}
		uids[p.UID] = name
		posts = append(posts, *p)
	}
	slices.SortStableFunc(posts, comparePosts)
	return posts, nil
}

func comparePosts(a, b content.Post) int {
	ta, tb := publishedAt(a), publishedAt(b)
	if c := tb.Compare(ta); c != 0 {
		return c
	}
	return cmp.Compare(a.UID, b.UID)
}

func publishedAt(p content.Post) time.Time {
	if p.FirstPublicationDate == nil {
		return time.Time{}
	}
	t, _ := p.FirstPublicationDate.Time()
	return t
}

func (s *Source) load(name string, modTime time.Time) (*content.Post, error) {
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return buildPost(f, name, modTime)
}

func buildPost(r io.Reader, name string, modTime time.Time) (*content.Post, error) {
	p, err := parser.ForFile(name)
	if err != nil {
		return nil, err
	}
	doc, err := p.Parse(r, name)
	if err != nil {
		return nil, err
	}

	uid := doc.Meta.UID
	if uid == "" {
		uid = parser.SlugForFile(name)
	}
	if uid == "" {
		return nil, fmt.Errorf("cannot derive uid from %q", name)
	}

	first := content.NewTimestamp(modTime)
	if doc.Meta.Date != "" {
		t, err := content.Timestamp(doc.Meta.Date).Time()
		if err != nil {
			return nil, fmt.Errorf("front matter date: %w", err)
		}
		first = content.NewTimestamp(t)
	}
	var last *content.Timestamp
	if doc.Meta.Updated != "" {
		t, err := content.Timestamp(doc.Meta.Updated).Time()
		if err != nil {
			return nil, fmt.Errorf("front matter updated: %w", err)
		}
		last = content.NewTimestamp(t)
	}

	return &content.Post{
		ID:                   uuid.NewSHA1(uuid.NameSpaceURL, []byte("file:"+name)).String(),
		UID:                  uid,
		Type:                 site.PostType,
		FirstPublicationDate: first,
		LastPublicationDate:  last,
		Data: content.PostData{
			Title:    doc.Title,
			Subtitle: doc.Meta.Subtitle,
			Author:   doc.Meta.Author,
			Banner:   content.Banner{URL: doc.Meta.Banner},
			Content:  doc.Sections,
		},
	}, nil
}

// Query returns one page of the listing.
func (s *Source) Query(ctx context.Context, opts site.QueryOptions) (content.PageResult, error) {
	posts, err := s.Posts(ctx)
	if err != nil {
		return content.PageResult{}, err
	}

	size := opts.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	page := max(opts.Page, 1)

	start := min((page-1)*size, len(posts))
	end := min(start+size, len(posts))
	res := content.PageResult{Results: posts[start:end:end]}
	if end < len(posts) {
		res.NextPage = pageCursor(page+1, size)
	}
	return res, nil
}

// FetchPage resolves a cursor produced by Query.
func (s *Source) FetchPage(ctx context.Context, cursor content.Cursor) (content.PageResult, error) {
	page, size, err := parseCursor(cursor)
	if err != nil {
		return content.PageResult{}, err
	}
	return s.Query(ctx, site.QueryOptions{Page: page, PageSize: size})
}

// GetByUID returns the post with the given uid.
func (s *Source) GetByUID(ctx context.Context, docType, uid string) (*content.Post, error) {
	if docType != site.PostType {
		return nil, site.ErrNotFound
	}
	posts, err := s.Posts(ctx)
	if err != nil {
		return nil, err
	}
	for i := range posts {
		if posts[i].UID == uid {
			return &posts[i], nil
		}
	}
	return nil, site.ErrNotFound
}

func pageCursor(page, size int) content.Cursor {
	v := url.Values{}
	v.Set("page", strconv.Itoa(page))
	v.Set("pageSize", strconv.Itoa(size))
	return content.Cursor(v.Encode())
}

func parseCursor(c content.Cursor) (page, size int, err error) {
	v, err := url.ParseQuery(string(c))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrBadCursor, err)
	}
	page, err = strconv.Atoi(v.Get("page"))
	if err != nil || page < 1 {
		return 0, 0, fmt.Errorf("%w: page %q", ErrBadCursor, v.Get("page"))
	}
	size = DefaultPageSize
	if raw := v.Get("pageSize"); raw != "" {
		size, err = strconv.Atoi(raw)
		if err != nil || size < 1 {
			return 0, 0, fmt.Errorf("%w: pageSize %q", ErrBadCursor, raw)
		}
	}
	return page, size, nil
}

// Save validates and stores an uploaded file, replacing any file with the
// same name. It returns the resulting post.
func (s *Source) Save(filename string, r io.Reader, maxBytes int64) (*content.Post, error) {
	name := filepath.Base(filepath.Clean("/" + filename))
	if name == "/" || strings.HasPrefix(name, ".") || !parser.IsSupportedExtension(name) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, filename)
	}

	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, ErrTooLarge
	}

	post, err := buildPost(bytes.NewReader(data), name, time.Now())
	if err != nil {
		return nil, fmt.Errorf("parse upload: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("store upload: %w", err)
	}

	s.mu.Lock()
	delete(s.cache, name)
	s.mu.Unlock()

	s.log.Info("content stored", "file", name, "uid", post.UID)
	return post, nil
}
