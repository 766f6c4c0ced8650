// Package scan defines the scanner unit contract and its registry.
package scan

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/yairfalse/leima/pkg/record"
)

// Unit is one tag-audit scanner. Keep it simple: Key + Scan. That's it.
//
// A unit lists one resource kind in one region, keeps the untagged items,
// and maps them to records. Units are read-only and idempotent; the
// dispatcher invokes each selected unit at most once per region per run.
type Unit interface {
	// Key returns the stable registry identifier (e.g., "ec2", "rds").
	Key() string

	// Scan lists the unit's resource kind in one region and returns a
	// record per untagged resource. Account-global units return records
	// only for their home region, stamped with the global sentinel.
	Scan(ctx context.Context, region string) ([]record.ScanRecord, error)
}

// Registry holds registered units.
var (
	registry = make(map[string]Unit)
	mu       sync.RWMutex
)

// Register adds a unit to the registry, replacing any previous unit
// with the same key.
func Register(u Unit) {
	mu.Lock()
	defer mu.Unlock()
	registry[u.Key()] = u
}

// Get returns a unit by key.
func Get(key string) (Unit, bool) {
	mu.RLock()
	defer mu.RUnlock()
	u, ok := registry[key]
	return u, ok
}

// Keys returns all registered keys in sorted order.
func Keys() []string {
	mu.RLock()
	defer mu.RUnlock()
	keys := make([]string, 0, len(registry))
	for key := range registry {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Select resolves a requested key subset to units in sorted key order.
// An empty request selects every registered unit. Unknown keys are
// logged and skipped rather than failing the run.
func Select(keys []string) []Unit {
	if len(keys) == 0 {
		keys = Keys()
	}

	mu.RLock()
	defer mu.RUnlock()

	seen := make(map[string]bool, len(keys))
	units := make([]Unit, 0, len(keys))
	for _, key := range keys {
		if seen[key] {
			continue
		}
		seen[key] = true

		u, ok := registry[key]
		if !ok {
			log.Warn().Str("scanner", key).Msg("unknown scanner key, skipping")
			continue
		}
		units = append(units, u)
	}

	sort.Slice(units, func(i, j int) bool { return units[i].Key() < units[j].Key() })
	return units
}

// Clear removes all units from the registry. Used for testing.
func Clear() {
	mu.Lock()
	defer mu.Unlock()
	registry = make(map[string]Unit)
}
