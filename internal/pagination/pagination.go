// Package pagination accumulates cursor-paginated post listings.
package pagination

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgallion1/spacetraveling/internal/content"
)

var (
	// ErrNoMorePages is returned when a load is requested without a cursor.
	ErrNoMorePages = errors.New("no more pages")
	// ErrBusy is returned by TryLoadMore while another load is in flight.
	ErrBusy = errors.New("load already in progress")
)

// Fetcher retrieves the page addressed by a cursor.
type Fetcher interface {
	FetchPage(ctx context.Context, cursor content.Cursor) (content.PageResult, error)
}

// State is an accumulated listing and the cursor of the page after it.
type State struct {
	Summaries []content.Summary `json:"results"`
	Next      content.Cursor    `json:"next_page"`
}

// NewState builds the initial state from the first page.
func NewState(first content.PageResult) State {
	return Merge(State{}, first)
}

// HasMore reports whether another page can be loaded.
func (s State) HasMore() bool {
	return s.Next != ""
}

// Clone returns a copy that shares no backing array with s.
func (s State) Clone() State {
	out := State{Next: s.Next}
	if s.Summaries != nil {
		out.Summaries = append([]content.Summary(nil), s.Summaries...)
	}
	return out
}

// Merge appends the projected page results to state and adopts the page's
// cursor. The input state is never modified.
func Merge(state State, page content.PageResult) State {
	merged := make([]content.Summary, 0, len(state.Summaries)+len(page.Results))
	merged = append(merged, state.Summaries...)
	for _, p := range page.Results {
		merged = append(merged, content.Project(p))
	}
	return State{Summaries: merged, Next: page.NextPage}
}

// LoadMore fetches the page after state and merges it. On any error the
// returned State is zero and state is left as it was.
func LoadMore(ctx context.Context, f Fetcher, state State) (State, error) {
	if !state.HasMore() {
		return State{}, ErrNoMorePages
	}
	page, err := f.FetchPage(ctx, state.Next)
	if err != nil {
		return State{}, fmt.Errorf("fetch page: %w", err)
	}
	return Merge(state, page), nil
}
