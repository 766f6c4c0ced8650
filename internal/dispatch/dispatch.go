// Package dispatch fans scanner units out across regions with bounded
// concurrency and claim-once semantics.
package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yairfalse/leima/internal/scan"
	"github.com/yairfalse/leima/pkg/record"
)

const (
	DefaultMaxRegionConcurrency = 4
	DefaultUnitTimeout          = 2 * time.Minute
)

// Options bound a dispatch run.
type Options struct {
	MaxRegionConcurrency int
	UnitTimeout          time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxRegionConcurrency <= 0 {
		o.MaxRegionConcurrency = DefaultMaxRegionConcurrency
	}
	if o.UnitTimeout <= 0 {
		o.UnitTimeout = DefaultUnitTimeout
	}
	return o
}

// ForEach drains items with a bounded worker pool. Workers claim items
// through a shared atomic cursor, so every item is processed exactly
// once no matter how many workers race. Returns once all claimed items
// have been processed.
func ForEach[T any](ctx context.Context, items []T, workers int, fn func(ctx context.Context, item T)) {
	if len(items) == 0 {
		return
	}
	if workers > len(items) {
		workers = len(items)
	}
	if workers < 1 {
		workers = 1
	}

	var cursor atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if ctx.Err() != nil {
					return
				}
				i := cursor.Add(1) - 1
				if int(i) >= len(items) {
					return
				}
				fn(ctx, items[i])
			}
		}()
	}
	wg.Wait()
}

// Run scans every region in the set with the selected units. A worker
// claims a region, runs all units for it concurrently, and moves on only
// after every unit has settled. Unit failures are carried in the result,
// never propagated; the dispatch phase itself always completes.
func Run(ctx context.Context, regionSet []string, units []scan.Unit, opts Options) []record.UnitResult {
	opts = opts.withDefaults()

	var mu sync.Mutex
	var results []record.UnitResult

	ForEach(ctx, regionSet, opts.MaxRegionConcurrency, func(ctx context.Context, region string) {
		regionResults := scanRegion(ctx, region, units, opts.UnitTimeout)
		mu.Lock()
		results = append(results, regionResults...)
		mu.Unlock()
	})

	return results
}

// scanRegion runs all units for one region concurrently and waits for
// every invocation to settle.
func scanRegion(ctx context.Context, region string, units []scan.Unit, timeout time.Duration) []record.UnitResult {
	results := make([]record.UnitResult, len(units))

	var wg sync.WaitGroup
	for i, u := range units {
		wg.Add(1)
		go func(i int, u scan.Unit) {
			defer wg.Done()
			results[i] = runUnit(ctx, u, region, timeout)
		}(i, u)
	}
	wg.Wait()

	return results
}

// runUnit invokes one unit against a deadline. The unit runs in its own
// goroutine so an invocation settles as a timeout even when the unit
// ignores context cancellation.
func runUnit(ctx context.Context, u scan.Unit, region string, timeout time.Duration) record.UnitResult {
	start := time.Now()
	unitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		records []record.ScanRecord
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		records, err := u.Scan(unitCtx, region)
		done <- outcome{records: records, err: err}
	}()

	result := record.UnitResult{Scanner: u.Key(), Region: region}
	select {
	case o := <-done:
		result.Records, result.Err = o.records, o.err
	case <-unitCtx.Done():
		result.Err = unitCtx.Err()
	}
	result.Duration = time.Since(start)

	if result.Err != nil {
		// A failed unit contributes zero records.
		result.Records = nil
		log.Warn().
			Err(result.Err).
			Str("scanner", u.Key()).
			Str("region", region).
			Msg("scan failed")
		return result
	}

	log.Debug().
		Str("scanner", u.Key()).
		Str("region", region).
		Int("untagged", len(result.Records)).
		Dur("duration", result.Duration).
		Msg("scan complete")
	return result
}
