package site

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgallion1/spacetraveling/internal/content"
)

var (
	// ErrNotFound is returned when a requested post does not exist.
	ErrNotFound = errors.New("post not found")
	// ErrBadCursor is returned when a cursor was not produced by the source.
	ErrBadCursor = errors.New("malformed cursor")
)

// PostType is the CMS document type for blog posts.
const PostType = "post"

// QueryOptions controls a listing query.
type QueryOptions struct {
	PageSize int
	Page     int // 1-based; 0 means the first page
}

// Source is a paginated store of posts.
type Source interface {
	Query(ctx context.Context, opts QueryOptions) (content.PageResult, error)
	FetchPage(ctx context.Context, cursor content.Cursor) (content.PageResult, error)
	GetByUID(ctx context.Context, docType, uid string) (*content.Post, error)
}

// maxWalkPages bounds AllPosts against a source that never stops paging.
const maxWalkPages = 10000

// AllPosts walks every page of the listing, newest first.
func AllPosts(ctx context.Context, src Source, pageSize int) ([]content.Post, error) {
	page, err := src.Query(ctx, QueryOptions{PageSize: pageSize})
	if err != nil {
		return nil, fmt.Errorf("query first page: %w", err)
	}
	posts := append([]content.Post(nil), page.Results...)
	for n := 1; page.NextPage != ""; n++ {
		if n >= maxWalkPages {
			return nil, fmt.Errorf("listing exceeded %d pages", maxWalkPages)
		}
		page, err = src.FetchPage(ctx, page.NextPage)
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", n+1, err)
		}
		posts = append(posts, page.Results...)
	}
	return posts, nil
}
