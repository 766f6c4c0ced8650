// Package audit orchestrates one untagged-resource scan run: region
// resolution, the regional dispatch, the account-global pass, aggregation,
// and the tolerant report export.
package audit

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yairfalse/leima/internal/dispatch"
	"github.com/yairfalse/leima/internal/export"
	"github.com/yairfalse/leima/internal/regions"
	"github.com/yairfalse/leima/internal/report"
	"github.com/yairfalse/leima/internal/scan"
	"github.com/yairfalse/leima/pkg/record"
	"github.com/yairfalse/leima/telemetry"
)

// GlobalScanner audits account-global resources beside the region loop.
type GlobalScanner interface {
	Key() string
	Scan(ctx context.Context) ([]record.ScanRecord, error)
}

// Runner wires one scan run end to end. Optional collaborators may stay
// nil: no Global means no account-global pass, no Exporter means the
// report is not shipped anywhere.
type Runner struct {
	RegionClient   regions.DescribeRegionsAPI
	RegionOverride []string
	Scanners       []string
	Global         GlobalScanner
	Exporter       export.Exporter
	Dispatch       dispatch.Options
	Logger         *telemetry.Logger
}

// Run executes the scan and returns the run summary. Region resolution is
// the only fatal step; everything after it degrades to fewer records, so
// a summary always comes back once the region set is known.
func (r *Runner) Run(ctx context.Context) (record.Summary, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "leima.scan")
	defer span.End()

	logger := r.logger()

	regionSet, err := regions.Resolve(ctx, r.RegionClient, r.RegionOverride)
	if err != nil {
		return record.Summary{}, fmt.Errorf("resolve regions: %w", err)
	}
	telemetry.RecordRegionsScanned(ctx, int64(len(regionSet)))

	units := scan.Select(r.Scanners)
	logger.LogSpanStart(ctx, "leima.scan",
		attribute.Int("regions", len(regionSet)),
		attribute.Int("scanners", len(units)),
	)

	collector := report.NewCollector()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		results := dispatch.Run(ctx, regionSet, units, r.Dispatch)
		recordOutcomes(ctx, results)
		collector.AddResults(results)
	}()

	if r.Global != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.scanGlobal(ctx, collector, logger)
		}()
	}
	wg.Wait()

	records := collector.Sorted()
	telemetry.RecordUntaggedFound(ctx, int64(len(records)))

	r.export(ctx, records, logger)

	logger.LogSpanEnd(ctx, "leima.scan", nil)
	return record.Summary{
		ScannedRegions: len(regionSet),
		UntaggedCount:  len(records),
	}, nil
}

// scanGlobal runs the account-global pass. Its failure costs only its own
// records, mirroring per-unit isolation in the dispatcher.
func (r *Runner) scanGlobal(ctx context.Context, collector *report.Collector, logger *telemetry.Logger) {
	records, err := r.Global.Scan(ctx)
	if err != nil {
		telemetry.RecordScannerFailure(ctx, r.Global.Key(), record.GlobalRegion)
		logger.WithContext(ctx).Warn().
			Err(err).
			Str("scanner", r.Global.Key()).
			Msg("global scan failed")
		return
	}
	collector.Add(records...)
}

// export ships the report. A failed export is logged and counted, never
// returned: the summary must survive a broken destination.
func (r *Runner) export(ctx context.Context, records []record.ScanRecord, logger *telemetry.Logger) {
	if r.Exporter == nil {
		return
	}
	if err := r.Exporter.Export(ctx, records); err != nil {
		telemetry.RecordExportFailure(ctx)
		logger.WithContext(ctx).Warn().Err(err).Msg("report export failed")
	}
}

func (r *Runner) logger() *telemetry.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return telemetry.NewLogger("leima")
}

func recordOutcomes(ctx context.Context, results []record.UnitResult) {
	for _, res := range results {
		telemetry.RecordScanDuration(ctx, res.Scanner, res.Region, res.Duration)
		if res.Err != nil {
			telemetry.RecordScannerFailure(ctx, res.Scanner, res.Region)
		}
	}
}
