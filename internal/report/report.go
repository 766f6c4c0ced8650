// Package report aggregates scan records into a deterministic sequence.
package report

import (
	"sort"
	"sync"

	"github.com/yairfalse/leima/pkg/record"
)

// Collector gathers records from concurrently running scanners.
type Collector struct {
	mu      sync.Mutex
	records []record.ScanRecord
}

func NewCollector() *Collector {
	return &Collector{}
}

// Add appends records. Safe for concurrent use.
func (c *Collector) Add(records ...record.ScanRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, records...)
}

// AddResults folds in unit results, skipping failed invocations.
func (c *Collector) AddResults(results []record.UnitResult) {
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		c.Add(r.Records...)
	}
}

// Len returns the number of collected records.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Sorted returns a copy of the collected records ordered by
// (region, service, id), comparing each field lexicographically. The
// order exists for stable report diffs across runs, not for business
// meaning. Duplicates are preserved as-is.
func (c *Collector) Sorted() []record.ScanRecord {
	c.mu.Lock()
	out := make([]record.ScanRecord, len(c.records))
	copy(out, c.records)
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Region != b.Region {
			return a.Region < b.Region
		}
		if a.Service != b.Service {
			return a.Service < b.Service
		}
		return a.ID < b.ID
	})
	return out
}
