package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// pagedFixture serves pages[token] and records every token it was asked for.
type pagedFixture struct {
	pages  map[string][]Entry
	next   map[string]string
	fail   map[string]error
	tokens []string
}

func (p *pagedFixture) fetch(_ context.Context, token string) ([]Entry, string, error) {
	p.tokens = append(p.tokens, token)
	if err := p.fail[token]; err != nil {
		return nil, "", err
	}
	return p.pages[token], p.next[token], nil
}

func threePages() *pagedFixture {
	return &pagedFixture{
		pages: map[string][]Entry{
			"":   {{ID: "1", Name: "a"}, {ID: "2", Name: "b"}},
			"t1": {{ID: "3", Name: "c"}},
			"t2": {{ID: "4", Name: "d"}, {ID: "5", Name: "e"}},
		},
		next: map[string]string{"": "t1", "t1": "t2"},
	}
}

// ---------------------------------------------------------------------------
// DrainPages
// ---------------------------------------------------------------------------

func TestDrainPages_ConcatenatesInOrder(t *testing.T) {
	f := threePages()
	got, err := DrainPages(context.Background(), f.fetch)
	if err != nil {
		t.Fatalf("DrainPages() error: %v", err)
	}

	var ids string
	for _, e := range got {
		ids += e.ID
	}
	if ids != "12345" {
		t.Errorf("DrainPages() ids = %q, want 12345", ids)
	}
	if fmt.Sprint(f.tokens) != "[ t1 t2]" {
		t.Errorf("tokens requested = %q, want first page then t1, t2", f.tokens)
	}
}

func TestDrainPages_SinglePage(t *testing.T) {
	f := &pagedFixture{pages: map[string][]Entry{"": {{ID: "only"}}}}
	got, err := DrainPages(context.Background(), f.fetch)
	if err != nil || len(got) != 1 {
		t.Fatalf("DrainPages() = %v, %v; want one entry", got, err)
	}
	if len(f.tokens) != 1 {
		t.Errorf("fetched %d pages, want 1", len(f.tokens))
	}
}

func TestDrainPages_FailureMidListingReturnsNoPartialResult(t *testing.T) {
	f := threePages()
	f.fail = map[string]error{"t2": errors.New("connection reset")}

	got, err := DrainPages(context.Background(), f.fetch)
	if got != nil {
		t.Errorf("DrainPages() returned partial result %v", got)
	}
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("DrainPages() error = %v, want ErrBackendUnavailable", err)
	}
}

func TestDrainPages_KeepsExistingKind(t *testing.T) {
	f := threePages()
	f.fail = map[string]error{"t1": NewError("drive", "list", "", ErrAuthExpired, errors.New("401"))}

	_, err := DrainPages(context.Background(), f.fetch)
	if !errors.Is(err, ErrAuthExpired) {
		t.Errorf("DrainPages() error = %v, want ErrAuthExpired", err)
	}
	if errors.Is(err, ErrBackendUnavailable) {
		t.Error("auth failure was re-labelled as unavailable")
	}
}

func TestDrainPages_RepeatedTokenStops(t *testing.T) {
	f := &pagedFixture{
		pages: map[string][]Entry{"": {{ID: "1"}}, "loop": {{ID: "2"}}},
		next:  map[string]string{"": "loop", "loop": "loop"},
	}
	_, err := DrainPages(context.Background(), f.fetch)
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("DrainPages() error = %v, want ErrBackendUnavailable", err)
	}
	if len(f.tokens) != 2 {
		t.Errorf("fetched %d pages, want 2", len(f.tokens))
	}
}

func TestDrainPages_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := threePages()
	_, err := DrainPages(ctx, f.fetch)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("DrainPages() error = %v, want context.Canceled", err)
	}
	if len(f.tokens) != 0 {
		t.Errorf("fetched %d pages after cancellation", len(f.tokens))
	}
}

// ---------------------------------------------------------------------------
// Pages
// ---------------------------------------------------------------------------

func TestPages_EarlyBreakStopsFetching(t *testing.T) {
	f := threePages()
	for e, err := range Pages(context.Background(), f.fetch) {
		if err != nil {
			t.Fatal(err)
		}
		if e.ID == "1" {
			break
		}
	}
	if len(f.tokens) != 1 {
		t.Errorf("fetched %d pages, want 1 after early break", len(f.tokens))
	}
}
