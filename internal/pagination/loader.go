package pagination

import (
	"context"
	"sync"
)

// Loader owns one listing state and applies loads to it one at a time.
// A second LoadMore waits for the first to finish and then continues from
// the cursor the first one left behind, so no page is lost or duplicated.
type Loader struct {
	fetcher Fetcher
	sem     chan struct{}

	mu    sync.Mutex
	state State
}

// NewLoader returns a Loader starting from initial.
func NewLoader(f Fetcher, initial State) *Loader {
	return &Loader{
		fetcher: f,
		sem:     make(chan struct{}, 1),
		state:   initial.Clone(),
	}
}

// State returns a copy of the current state.
func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Clone()
}

// HasMore reports whether the current state has a next cursor.
func (l *Loader) HasMore() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.HasMore()
}

// LoadMore waits for any in-flight load, then loads the next page.
func (l *Loader) LoadMore(ctx context.Context) (State, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
	defer func() { <-l.sem }()
	return l.load(ctx)
}

// TryLoadMore loads the next page unless a load is already running, in
// which case it returns ErrBusy without waiting.
func (l *Loader) TryLoadMore(ctx context.Context) (State, error) {
	select {
	case l.sem <- struct{}{}:
	default:
		return State{}, ErrBusy
	}
	defer func() { <-l.sem }()
	return l.load(ctx)
}

// load runs with the semaphore held.
func (l *Loader) load(ctx context.Context) (State, error) {
	current := l.State()
	next, err := LoadMore(ctx, l.fetcher, current)
	if err != nil {
		return State{}, err
	}

	l.mu.Lock()
	l.state = next
	l.mu.Unlock()
	return next.Clone(), nil
}
