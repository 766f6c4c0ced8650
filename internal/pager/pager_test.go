package pager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slicedSource pages over a fixed item list like an offset-based API.
func slicedSource(items []string, calls *[]int32) PageFunc[string] {
	return func(_ context.Context, offset, limit int32) (Page[string], error) {
		*calls = append(*calls, offset)

		if int(offset) >= len(items) {
			return Page[string]{}, nil
		}
		end := int(offset + limit)
		if end > len(items) {
			end = len(items)
		}
		window := items[offset:end]
		return Page[string]{Items: window, HasMore: end < len(items)}, nil
	}
}

func TestFetch(t *testing.T) {
	t.Run("collects all pages in order", func(t *testing.T) {
		items := []string{"a", "b", "c", "d", "e"}
		var calls []int32

		got, err := Fetch(context.Background(), slicedSource(items, &calls), Options{
			PageSize: 2,
			MaxPages: 10,
		})

		require.NoError(t, err)
		assert.Equal(t, items, got)
		assert.Equal(t, []int32{0, 2, 4}, calls)
	})

	t.Run("exact multiple stops on no-more signal", func(t *testing.T) {
		items := []string{"a", "b", "c", "d"}
		var calls []int32

		got, err := Fetch(context.Background(), slicedSource(items, &calls), Options{
			PageSize: 2,
			MaxPages: 10,
		})

		require.NoError(t, err)
		assert.Equal(t, items, got)
		assert.Equal(t, []int32{0, 2}, calls)
	})

	t.Run("stops at max pages", func(t *testing.T) {
		pages := 0
		endless := func(_ context.Context, _, limit int32) (Page[string], error) {
			pages++
			items := make([]string, limit)
			return Page[string]{Items: items, HasMore: true}, nil
		}

		got, err := Fetch(context.Background(), endless, Options{
			PageSize: 3,
			MaxPages: 4,
		})

		require.NoError(t, err)
		assert.Len(t, got, 12)
		assert.Equal(t, 4, pages)
	})

	t.Run("page timeout fails the whole fetch", func(t *testing.T) {
		slow := func(ctx context.Context, offset, _ int32) (Page[string], error) {
			if offset == 0 {
				return Page[string]{Items: []string{"a", "b"}, HasMore: true}, nil
			}
			<-ctx.Done()
			return Page[string]{}, ctx.Err()
		}

		got, err := Fetch(context.Background(), slow, Options{
			PageSize:    2,
			MaxPages:    10,
			PageTimeout: 20 * time.Millisecond,
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Nil(t, got)
	})

	t.Run("timeout bounds a backend that ignores cancellation", func(t *testing.T) {
		stuck := func(_ context.Context, _, _ int32) (Page[string], error) {
			time.Sleep(500 * time.Millisecond)
			return Page[string]{}, nil
		}

		start := time.Now()
		_, err := Fetch(context.Background(), stuck, Options{
			PageSize:    2,
			MaxPages:    1,
			PageTimeout: 20 * time.Millisecond,
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 400*time.Millisecond)
	})

	t.Run("backend error propagates", func(t *testing.T) {
		boom := errors.New("access denied")
		failing := func(_ context.Context, _, _ int32) (Page[string], error) {
			return Page[string]{}, boom
		}

		got, err := Fetch(context.Background(), failing, Options{PageSize: 2})

		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.Nil(t, got)
	})

	t.Run("canceled context fails fetch", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		blocked := func(ctx context.Context, _, _ int32) (Page[string], error) {
			<-ctx.Done()
			return Page[string]{}, ctx.Err()
		}

		_, err := Fetch(ctx, blocked, Options{PageSize: 2})

		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("empty source", func(t *testing.T) {
		var calls []int32

		got, err := Fetch(context.Background(), slicedSource(nil, &calls), Options{PageSize: 2})

		require.NoError(t, err)
		assert.Empty(t, got)
		assert.Equal(t, []int32{0}, calls)
	})
}

func TestOptionsDefaults(t *testing.T) {
	opts := Options{}.withDefaults()

	assert.Equal(t, int32(DefaultPageSize), opts.PageSize)
	assert.Equal(t, DefaultMaxPages, opts.MaxPages)
	assert.Equal(t, DefaultPageTimeout, opts.PageTimeout)
}
