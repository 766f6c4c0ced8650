package audit

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/leima/internal/export"
	"github.com/yairfalse/leima/internal/scan"
	"github.com/yairfalse/leima/pkg/record"
	"github.com/yairfalse/leima/telemetry"
)

type stubUnit struct {
	key string
	fn  func(ctx context.Context, region string) ([]record.ScanRecord, error)
}

func (u *stubUnit) Key() string { return u.key }

func (u *stubUnit) Scan(ctx context.Context, region string) ([]record.ScanRecord, error) {
	return u.fn(ctx, region)
}

type stubGlobal struct {
	records []record.ScanRecord
	err     error
}

func (g *stubGlobal) Key() string { return "s3" }

func (g *stubGlobal) Scan(context.Context) ([]record.ScanRecord, error) {
	return g.records, g.err
}

type captureExporter struct {
	mu      sync.Mutex
	records []record.ScanRecord
	calls   int
	err     error
}

func (e *captureExporter) Export(_ context.Context, records []record.ScanRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.records = append([]record.ScanRecord(nil), records...)
	return e.err
}

func (e *captureExporter) Close() error { return nil }

type mockRegionClient struct {
	DescribeRegionsFunc func(ctx context.Context, params *ec2.DescribeRegionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error)
}

func (m *mockRegionClient) DescribeRegions(ctx context.Context, params *ec2.DescribeRegionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error) {
	return m.DescribeRegionsFunc(ctx, params, optFns...)
}

func registerStub(t *testing.T, key string, fn func(ctx context.Context, region string) ([]record.ScanRecord, error)) {
	t.Helper()
	scan.Register(&stubUnit{key: key, fn: fn})
	t.Cleanup(scan.Clear)
}

func quietLogger() *telemetry.Logger {
	return &telemetry.Logger{Logger: zerolog.New(io.Discard)}
}

func TestRunner_Run(t *testing.T) {
	ids := map[string]string{"r1": "i1", "r2": "i2"}
	registerStub(t, "X", func(_ context.Context, region string) ([]record.ScanRecord, error) {
		return []record.ScanRecord{{Service: "X", ID: ids[region], Region: region}}, nil
	})

	exporter := &captureExporter{}
	runner := &Runner{
		RegionOverride: []string{"r1,r2"},
		Scanners:       []string{"X"},
		Exporter:       exporter,
		Logger:         quietLogger(),
	}

	summary, err := runner.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, record.Summary{ScannedRegions: 2, UntaggedCount: 2}, summary)

	assert.Equal(t, 1, exporter.calls)
	assert.Equal(t, []record.ScanRecord{
		{Service: "X", ID: "i1", Region: "r1"},
		{Service: "X", ID: "i2", Region: "r2"},
	}, exporter.records)

	body, err := export.Body(exporter.records)
	require.NoError(t, err)
	assert.Equal(t, "region,service,id\nr1,X,i1\nr2,X,i2\n", string(body))
}

func TestRunner_Run_ExporterFailureTolerated(t *testing.T) {
	registerStub(t, "X", func(_ context.Context, region string) ([]record.ScanRecord, error) {
		return []record.ScanRecord{{Service: "X", ID: "i-" + region, Region: region}}, nil
	})

	exporter := &captureExporter{err: errors.New("bucket gone")}
	runner := &Runner{
		RegionOverride: []string{"r1,r2"},
		Exporter:       exporter,
		Logger:         quietLogger(),
	}

	summary, err := runner.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, record.Summary{ScannedRegions: 2, UntaggedCount: 2}, summary)
	assert.Equal(t, 1, exporter.calls)
}

func TestRunner_Run_RegionResolutionFailure(t *testing.T) {
	mock := &mockRegionClient{
		DescribeRegionsFunc: func(_ context.Context, _ *ec2.DescribeRegionsInput, _ ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error) {
			return nil, errors.New("access denied")
		},
	}

	runner := &Runner{
		RegionClient: mock,
		Logger:       quietLogger(),
	}

	summary, err := runner.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve regions")
	assert.Zero(t, summary)
}

func TestRunner_Run_GlobalRecordsMerged(t *testing.T) {
	registerStub(t, "X", func(_ context.Context, region string) ([]record.ScanRecord, error) {
		return []record.ScanRecord{{Service: "X", ID: "i1", Region: region}}, nil
	})

	global := &stubGlobal{
		records: []record.ScanRecord{{Service: "s3", ID: "b1", Region: record.GlobalRegion}},
	}
	exporter := &captureExporter{}
	runner := &Runner{
		RegionOverride: []string{"r1"},
		Global:         global,
		Exporter:       exporter,
		Logger:         quietLogger(),
	}

	summary, err := runner.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, record.Summary{ScannedRegions: 1, UntaggedCount: 2}, summary)

	// "global" sorts before "r1", so the bucket record leads the report.
	require.Len(t, exporter.records, 2)
	assert.Equal(t, record.ScanRecord{Service: "s3", ID: "b1", Region: record.GlobalRegion}, exporter.records[0])
	assert.Equal(t, record.ScanRecord{Service: "X", ID: "i1", Region: "r1"}, exporter.records[1])
}

func TestRunner_Run_GlobalFailureTolerated(t *testing.T) {
	registerStub(t, "X", func(_ context.Context, region string) ([]record.ScanRecord, error) {
		return []record.ScanRecord{{Service: "X", ID: "i1", Region: region}}, nil
	})

	runner := &Runner{
		RegionOverride: []string{"r1"},
		Global:         &stubGlobal{err: errors.New("list buckets denied")},
		Logger:         quietLogger(),
	}

	summary, err := runner.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, record.Summary{ScannedRegions: 1, UntaggedCount: 1}, summary)
}

func TestRunner_Run_UnitFailureIsolated(t *testing.T) {
	registerStub(t, "bad", func(_ context.Context, _ string) ([]record.ScanRecord, error) {
		return nil, errors.New("throttled")
	})
	registerStub(t, "X", func(_ context.Context, region string) ([]record.ScanRecord, error) {
		return []record.ScanRecord{{Service: "X", ID: "i-" + region, Region: region}}, nil
	})

	runner := &Runner{
		RegionOverride: []string{"r1", "r2"},
		Logger:         quietLogger(),
	}

	summary, err := runner.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, record.Summary{ScannedRegions: 2, UntaggedCount: 2}, summary)
}

func TestRunner_Run_ScannerSubset(t *testing.T) {
	registerStub(t, "X", func(_ context.Context, region string) ([]record.ScanRecord, error) {
		return []record.ScanRecord{{Service: "X", ID: "i1", Region: region}}, nil
	})
	registerStub(t, "Y", func(_ context.Context, region string) ([]record.ScanRecord, error) {
		return []record.ScanRecord{{Service: "Y", ID: "i2", Region: region}}, nil
	})

	exporter := &captureExporter{}
	runner := &Runner{
		RegionOverride: []string{"r1"},
		Scanners:       []string{"X"},
		Exporter:       exporter,
		Logger:         quietLogger(),
	}

	summary, err := runner.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, record.Summary{ScannedRegions: 1, UntaggedCount: 1}, summary)
	require.Len(t, exporter.records, 1)
	assert.Equal(t, "X", exporter.records[0].Service)
}

func TestRunner_Run_NoUnitsNoGlobal(t *testing.T) {
	t.Cleanup(scan.Clear)
	scan.Clear()

	runner := &Runner{
		RegionOverride: []string{"r1", "r2", "r3"},
		Logger:         quietLogger(),
	}

	summary, err := runner.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, record.Summary{ScannedRegions: 3, UntaggedCount: 0}, summary)
}
