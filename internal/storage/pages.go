package storage

import (
	"context"
	"fmt"
	"iter"
)

// PageFunc fetches one page of a paginated listing. token is empty for the first
// page; an empty next token marks the final page.
type PageFunc[T any] func(ctx context.Context, token string) (items []T, next string, err error)

// Pages turns a paginated listing into one logical sequence. Entries are yielded
// in page order, each exactly once. A failed page yields its error (wrapped as
// ErrBackendUnavailable unless it already carries a kind) and ends the sequence.
func Pages[T any](ctx context.Context, fetch PageFunc[T]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		token := ""
		for page := 0; ; page++ {
			if err := ctx.Err(); err != nil {
				yield(zero, err)
				return
			}

			items, next, err := fetch(ctx, token)
			if err != nil {
				yield(zero, Wrap("listing", "page", fmt.Sprintf("#%d", page), ErrBackendUnavailable, err))
				return
			}

			for _, item := range items {
				if !yield(item, nil) {
					return
				}
			}

			if next == "" {
				return
			}
			if next == token {
				yield(zero, NewError("listing", "page", fmt.Sprintf("#%d", page), ErrBackendUnavailable,
					fmt.Errorf("next page token %q repeats the current token", next)))
				return
			}
			token = next
		}
	}
}

// DrainPages collects every entry of a paginated listing. A failure on any page
// fails the whole listing; a partial result is never returned.
func DrainPages[T any](ctx context.Context, fetch PageFunc[T]) ([]T, error) {
	var all []T
	for item, err := range Pages(ctx, fetch) {
		if err != nil {
			return nil, err
		}
		all = append(all, item)
	}
	return all, nil
}
