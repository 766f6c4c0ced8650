// Package record defines the output model for Leima scans.
package record

import "time"

// ScanRecord is one untagged resource in the final report.
// Every record passed the no-tags check at observation time; tag state
// may change before the report is consumed.
type ScanRecord struct {
	Service string `json:"service"` // Scanner registry key (e.g., "ec2", "rds")
	ID      string `json:"id"`      // Best-effort identifier (e.g., "i-abc123")
	Region  string `json:"region"`  // Region code, or "global" for account-global kinds
}

// GlobalRegion is the sentinel region stamped on account-global resources.
const GlobalRegion = "global"

// UnitResult holds the outcome of one scanner unit invocation for one region.
// Failures are carried as data; the dispatcher never lets them propagate.
type UnitResult struct {
	Scanner  string
	Region   string
	Records  []ScanRecord
	Duration time.Duration
	Err      error
}

// Summary is the structured value a run always returns to its caller.
type Summary struct {
	ScannedRegions int `json:"scanned_regions"`
	UntaggedCount  int `json:"untagged_count"`
}
