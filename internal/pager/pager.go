// Package pager drives sequential offset pagination with a per-page
// timeout and a hard page cap.
package pager

import (
	"context"
	"fmt"
	"time"
)

const (
	DefaultPageSize    = 100
	DefaultMaxPages    = 20
	DefaultPageTimeout = 30 * time.Second
)

// Page is one chunk of a listing. HasMore signals the backend expects
// another page; token-based APIs set it from their continuation token.
type Page[T any] struct {
	Items   []T
	HasMore bool
}

// PageFunc fetches one page. Offset-based APIs use both arguments;
// token-based APIs capture their cursor in the closure and treat offset
// as informational.
type PageFunc[T any] func(ctx context.Context, offset, limit int32) (Page[T], error)

// Options bound a paginated fetch.
type Options struct {
	PageSize    int32
	MaxPages    int
	PageTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.MaxPages <= 0 {
		o.MaxPages = DefaultMaxPages
	}
	if o.PageTimeout <= 0 {
		o.PageTimeout = DefaultPageTimeout
	}
	return o
}

// Fetch pulls pages starting at offset 0 until a page comes back short,
// the backend reports no more data, or MaxPages is reached. Pages are
// fetched strictly one at a time. A page that errors or exceeds
// PageTimeout fails the whole fetch; accumulated items are discarded so
// callers never see a partial listing as success.
func Fetch[T any](ctx context.Context, fn PageFunc[T], opts Options) ([]T, error) {
	opts = opts.withDefaults()

	var items []T
	var offset int32
	for n := 0; n < opts.MaxPages; n++ {
		page, err := fetchPage(ctx, fn, offset, opts.PageSize, opts.PageTimeout)
		if err != nil {
			return nil, fmt.Errorf("page %d (offset %d): %w", n, offset, err)
		}

		items = append(items, page.Items...)

		if int32(len(page.Items)) < opts.PageSize || !page.HasMore {
			break
		}
		offset += opts.PageSize
	}
	return items, nil
}

// fetchPage runs fn against a page deadline. The fn runs in its own
// goroutine so a backend that ignores context cancellation still cannot
// stall the fetch past the timeout.
func fetchPage[T any](ctx context.Context, fn PageFunc[T], offset, limit int32, timeout time.Duration) (Page[T], error) {
	pageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		page Page[T]
		err  error
	}
	done := make(chan result, 1)
	go func() {
		page, err := fn(pageCtx, offset, limit)
		done <- result{page: page, err: err}
	}()

	select {
	case r := <-done:
		return r.page, r.err
	case <-pageCtx.Done():
		return Page[T]{}, pageCtx.Err()
	}
}
