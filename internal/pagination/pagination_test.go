package pagination

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/spacetraveling/internal/content"
)

func post(uid string) content.Post {
	return content.Post{UID: uid, Data: content.PostData{Title: "Title " + uid}}
}

func uids(s State) []string {
	out := make([]string, len(s.Summaries))
	for i, sm := range s.Summaries {
		out[i] = sm.UID
	}
	return out
}

// pageFetcher serves fixed pages keyed by cursor and counts calls.
type pageFetcher struct {
	mu    sync.Mutex
	pages map[content.Cursor]content.PageResult
	calls int
	err   error
}

func (f *pageFetcher) FetchPage(ctx context.Context, c content.Cursor) (content.PageResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return content.PageResult{}, f.err
	}
	page, ok := f.pages[c]
	if !ok {
		return content.PageResult{}, errors.New("unknown cursor " + string(c))
	}
	return page, nil
}

func TestMerge_PreservesOrder(t *testing.T) {
	state := NewState(content.PageResult{
		Results:  []content.Post{post("a"), post("b"), post("c")},
		NextPage: "cursor-2",
	})
	page := content.PageResult{
		Results:  []content.Post{post("d"), post("e")},
		NextPage: "cursor-3",
	}

	merged := Merge(state, page)

	want := []string{"a", "b", "c", "d", "e"}
	if got := uids(merged); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if merged.Next != "cursor-3" {
		t.Errorf("expected next cursor %q, got %q", "cursor-3", merged.Next)
	}
	if got := uids(state); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("input state was modified: %v", got)
	}
}

func TestMerge_DoesNotAliasInput(t *testing.T) {
	base := make([]content.Summary, 1, 8)
	base[0] = content.Project(post("a"))
	state := State{Summaries: base, Next: "x"}

	merged := Merge(state, content.PageResult{Results: []content.Post{post("b")}})
	merged.Summaries[0].UID = "changed"

	if state.Summaries[0].UID != "a" {
		t.Errorf("expected input to be untouched, got %q", state.Summaries[0].UID)
	}
	if base[:2][1].UID != "" {
		t.Errorf("merge wrote into the input's spare capacity")
	}
}

func TestMerge_EmptyNextEndsPagination(t *testing.T) {
	merged := Merge(State{Next: "c"}, content.PageResult{Results: []content.Post{post("z")}})
	if merged.HasMore() {
		t.Error("expected no more pages after empty next_page")
	}
}

func TestLoadMore_EmptyCursorRejected(t *testing.T) {
	f := &pageFetcher{}
	_, err := LoadMore(context.Background(), f, State{Summaries: []content.Summary{content.Project(post("a"))}})
	if !errors.Is(err, ErrNoMorePages) {
		t.Fatalf("expected ErrNoMorePages, got %v", err)
	}
	if f.calls != 0 {
		t.Errorf("expected no fetch, got %d calls", f.calls)
	}
}

func TestLoadMore_FailureLeavesStateUntouched(t *testing.T) {
	boom := errors.New("network down")
	f := &pageFetcher{err: boom}
	state := NewState(content.PageResult{Results: []content.Post{post("a")}, NextPage: "p2"})
	before := state.Clone()

	got, err := LoadMore(context.Background(), f, state)
	if !errors.Is(err, boom) {
		t.Fatalf("expected transport error to surface, got %v", err)
	}
	if !reflect.DeepEqual(got, State{}) {
		t.Errorf("expected zero state on failure, got %+v", got)
	}
	if !reflect.DeepEqual(state, before) {
		t.Errorf("expected state unchanged, before %+v after %+v", before, state)
	}
}

func TestLoadMore_Success(t *testing.T) {
	f := &pageFetcher{pages: map[content.Cursor]content.PageResult{
		"p2": {Results: []content.Post{post("b")}, NextPage: ""},
	}}
	state := NewState(content.PageResult{Results: []content.Post{post("a")}, NextPage: "p2"})

	got, err := LoadMore(context.Background(), f, state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []string{"a", "b"}; !reflect.DeepEqual(uids(got), want) {
		t.Errorf("expected %v, got %v", want, uids(got))
	}
	if got.HasMore() {
		t.Error("expected end of data")
	}
}

func TestLoader_SequentialLoads(t *testing.T) {
	f := &pageFetcher{pages: map[content.Cursor]content.PageResult{
		"p2": {Results: []content.Post{post("b")}, NextPage: "p3"},
		"p3": {Results: []content.Post{post("c")}},
	}}
	l := NewLoader(f, NewState(content.PageResult{Results: []content.Post{post("a")}, NextPage: "p2"}))

	if _, err := l.LoadMore(context.Background()); err != nil {
		t.Fatalf("first load: %v", err)
	}
	if _, err := l.LoadMore(context.Background()); err != nil {
		t.Fatalf("second load: %v", err)
	}
	if _, err := l.LoadMore(context.Background()); !errors.Is(err, ErrNoMorePages) {
		t.Fatalf("expected ErrNoMorePages on third load, got %v", err)
	}
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(uids(l.State()), want) {
		t.Errorf("expected %v, got %v", want, uids(l.State()))
	}
}

// gatedFetcher blocks the first fetch until released.
type gatedFetcher struct {
	pageFetcher
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedFetcher) FetchPage(ctx context.Context, c content.Cursor) (content.PageResult, error) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.started)
		<-g.release
	}
	return g.pageFetcher.FetchPage(ctx, c)
}

func TestLoader_ConcurrentLoadsKeepAllItems(t *testing.T) {
	g := &gatedFetcher{
		pageFetcher: pageFetcher{pages: map[content.Cursor]content.PageResult{
			"p2": {Results: []content.Post{post("c"), post("d")}, NextPage: "p3"},
			"p3": {Results: []content.Post{post("e")}, NextPage: ""},
		}},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	l := NewLoader(g, NewState(content.PageResult{Results: []content.Post{post("a"), post("b")}, NextPage: "p2"}))

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := l.LoadMore(context.Background())
		errs <- err
	}()
	<-g.started

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := l.LoadMore(context.Background())
		errs <- err
	}()

	// Give the second call time to queue behind the first.
	time.Sleep(20 * time.Millisecond)
	close(g.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("unexpected load error: %v", err)
		}
	}
	want := []string{"a", "b", "c", "d", "e"}
	if got := uids(l.State()); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if g.calls != 2 {
		t.Errorf("expected 2 fetches, got %d", g.calls)
	}
}

func TestLoader_TryLoadMoreBusy(t *testing.T) {
	g := &gatedFetcher{
		pageFetcher: pageFetcher{pages: map[content.Cursor]content.PageResult{
			"p2": {Results: []content.Post{post("b")}},
		}},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	l := NewLoader(g, NewState(content.PageResult{Results: []content.Post{post("a")}, NextPage: "p2"}))

	done := make(chan error, 1)
	go func() {
		_, err := l.TryLoadMore(context.Background())
		done <- err
	}()
	<-g.started

	if _, err := l.TryLoadMore(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy while a load is in flight, got %v", err)
	}

	close(g.release)
	if err := <-done; err != nil {
		t.Fatalf("first load failed: %v", err)
	}
	if want := []string{"a", "b"}; !reflect.DeepEqual(uids(l.State()), want) {
		t.Errorf("expected %v, got %v", want, uids(l.State()))
	}
}

func TestLoader_FailureKeepsState(t *testing.T) {
	f := &pageFetcher{err: errors.New("timeout")}
	initial := NewState(content.PageResult{Results: []content.Post{post("a")}, NextPage: "p2"})
	l := NewLoader(f, initial)

	if _, err := l.LoadMore(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if !reflect.DeepEqual(l.State(), initial) {
		t.Errorf("expected state unchanged, got %+v", l.State())
	}
	if !l.HasMore() {
		t.Error("expected cursor to survive a failed load")
	}
}

func TestLoader_WaitHonoursContext(t *testing.T) {
	g := &gatedFetcher{
		pageFetcher: pageFetcher{pages: map[content.Cursor]content.PageResult{
			"p2": {Results: []content.Post{post("b")}},
		}},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	l := NewLoader(g, State{Next: "p2"})

	go l.LoadMore(context.Background())
	<-g.started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.LoadMore(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	close(g.release)
}
