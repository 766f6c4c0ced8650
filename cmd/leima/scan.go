package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yairfalse/leima/internal/audit"
	"github.com/yairfalse/leima/internal/config"
	"github.com/yairfalse/leima/internal/dispatch"
	"github.com/yairfalse/leima/internal/export"
	"github.com/yairfalse/leima/internal/pager"
	"github.com/yairfalse/leima/internal/regions"
	awsscan "github.com/yairfalse/leima/internal/scan/aws"
	"github.com/yairfalse/leima/telemetry"
)

var (
	scanRegions      []string
	scanScanners     []string
	scanProfile      string
	scanConcurrency  int
	scanUnitTimeout  time.Duration
	scanPageTimeout  time.Duration
	scanMaxPages     int
	scanSkipBuckets  bool
	scanExportBucket string
	scanExportRegion string
	scanExportPrefix string
	scanExportFile   string
	scanMetricsAddr  string
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the account for untagged resources",
	Long: `Scan every selected region with every selected scanner, collect the
resources whose tag set is empty, and write one CSV report ordered by
(region, service, id).

A failing scanner or region never aborts the run; it only costs the
records it would have found. The run summary is printed to stdout as
JSON when the scan completes.`,
	Example: `  leima scan                                   # every region, every scanner
  leima scan --regions us-east-1,eu-west-1     # region subset
  leima scan --scanners ec2,rds,lambda         # scanner subset
  leima scan --export-bucket audit-reports --export-region us-east-1
  leima scan --export-file ./untagged.csv      # local report only`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringSliceVar(&scanRegions, "regions", nil, "Regions to scan (default: every enabled region)")
	scanCmd.Flags().StringSliceVar(&scanScanners, "scanners", nil, "Scanner keys to run (default: all)")
	scanCmd.Flags().StringVar(&scanProfile, "profile", "", "AWS shared config profile")
	scanCmd.Flags().IntVar(&scanConcurrency, "concurrency", 0, "Max regions scanned in parallel")
	scanCmd.Flags().DurationVar(&scanUnitTimeout, "unit-timeout", 0, "Timeout per scanner invocation")
	scanCmd.Flags().DurationVar(&scanPageTimeout, "page-timeout", 0, "Timeout per listing page")
	scanCmd.Flags().IntVar(&scanMaxPages, "max-pages", 0, "Page ceiling per listing")
	scanCmd.Flags().BoolVar(&scanSkipBuckets, "skip-buckets", false, "Skip the account-global bucket scan")
	scanCmd.Flags().StringVar(&scanExportBucket, "export-bucket", "", "S3 bucket for the CSV report")
	scanCmd.Flags().StringVar(&scanExportRegion, "export-region", "", "Region of the export bucket")
	scanCmd.Flags().StringVar(&scanExportPrefix, "export-prefix", "", "Key prefix for the CSV report")
	scanCmd.Flags().StringVar(&scanExportFile, "export-file", "", "Local path for the CSV report")
	scanCmd.Flags().StringVar(&scanMetricsAddr, "metrics", ":9090", "Metrics server address (empty disables)")
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mergeFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	applyLogLevel(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdown, err := telemetry.InitOTEL(ctx, telemetry.Config{
		ServiceName:    cfg.OTEL.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.OTEL.Environment,
		OTELEndpoint:   cfg.OTEL.Endpoint,
		Insecure:       cfg.OTEL.Insecure,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdown(flushCtx); err != nil {
			log.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	runID := uuid.NewString()
	log.Logger = log.Logger.With().Str("run_id", runID).Logger()

	startMetricsServer(scanMetricsAddr)

	factory, err := awsscan.NewFactory(ctx, awsscan.Options{
		Profile:         cfg.AWS.Profile,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		SessionToken:    cfg.AWS.SessionToken,
		BaseEndpoint:    cfg.AWS.BaseEndpoint,
	})
	if err != nil {
		return fmt.Errorf("build aws clients: %w", err)
	}

	logIdentity(ctx, factory)

	awsscan.NewScanners(factory, pager.Options{
		PageSize:    cfg.Scan.PageSize,
		MaxPages:    cfg.Scan.MaxPages,
		PageTimeout: cfg.Scan.PageTimeout,
	}).RegisterAll()

	exporter := buildExporter(cfg, factory)
	if exporter != nil {
		defer func() { _ = exporter.Close() }()
	}

	runner := &audit.Runner{
		RegionClient:   factory.EC2(regions.ControlPlaneRegion),
		RegionOverride: cfg.AWS.Regions,
		Scanners:       cfg.Scan.Scanners,
		Global:         buildGlobalScanner(ctx, cfg, factory),
		Exporter:       exporter,
		Dispatch: dispatch.Options{
			MaxRegionConcurrency: cfg.Scan.MaxRegionConcurrency,
			UnitTimeout:          cfg.Scan.UnitTimeout,
		},
		Logger: &telemetry.Logger{Logger: log.Logger},
	}

	log.Info().
		Strs("regions", cfg.AWS.Regions).
		Strs("scanners", cfg.Scan.Scanners).
		Bool("buckets", !cfg.Buckets.Disabled).
		Msg("leima scan starting")

	summary, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	log.Info().
		Int("scanned_regions", summary.ScannedRegions).
		Int("untagged", summary.UntaggedCount).
		Msg("scan complete")

	return json.NewEncoder(os.Stdout).Encode(summary)
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

// mergeFlags lets explicitly set flags override file values.
func mergeFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("regions") {
		cfg.AWS.Regions = scanRegions
	}
	if flags.Changed("scanners") {
		cfg.Scan.Scanners = scanScanners
	}
	if flags.Changed("profile") {
		cfg.AWS.Profile = scanProfile
	}
	if flags.Changed("concurrency") {
		cfg.Scan.MaxRegionConcurrency = scanConcurrency
	}
	if flags.Changed("unit-timeout") {
		cfg.Scan.UnitTimeout = scanUnitTimeout
	}
	if flags.Changed("page-timeout") {
		cfg.Scan.PageTimeout = scanPageTimeout
	}
	if flags.Changed("max-pages") {
		cfg.Scan.MaxPages = scanMaxPages
	}
	if flags.Changed("skip-buckets") {
		cfg.Buckets.Disabled = scanSkipBuckets
	}
	if flags.Changed("export-bucket") {
		cfg.Export.Bucket = scanExportBucket
	}
	if flags.Changed("export-region") {
		cfg.Export.Region = scanExportRegion
	}
	if flags.Changed("export-prefix") {
		cfg.Export.Prefix = scanExportPrefix
	}
	if flags.Changed("export-file") {
		cfg.Export.File = scanExportFile
	}
}

// applyLogLevel honors the config level unless --debug already forced one.
func applyLogLevel(cfg *config.Config) {
	if debug {
		return
	}
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Log.Level).Msg("unknown log level, keeping info")
		return
	}
	zerolog.SetGlobalLevel(level)
}

// startMetricsServer serves the Prometheus registry for the duration of
// the run.
func startMetricsServer(addr string) {
	if addr == "" {
		return
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(telemetry.PrometheusRegistry, promhttp.HandlerOpts{}))
		log.Info().Str("addr", addr).Msg("starting metrics server")
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()
}

// logIdentity logs the caller identity at scan start. Failure is warn-only:
// region-scoped credentials can still scan even when STS is blocked.
func logIdentity(ctx context.Context, factory *awsscan.Factory) {
	account, arn, err := factory.VerifyIdentity(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("caller identity check failed")
		return
	}
	log.Info().Str("account", account).Str("arn", arn).Msg("verified caller identity")
}

// buildExporter assembles the configured report destinations.
func buildExporter(cfg *config.Config, factory *awsscan.Factory) export.Exporter {
	var exporters []export.Exporter
	if cfg.Export.Bucket != "" {
		client := s3.NewFromConfig(factory.ConfigFor(cfg.Export.Region))
		exporters = append(exporters, export.NewS3Exporter(client, cfg.Export.Bucket, cfg.Export.Prefix))
	}
	if cfg.Export.File != "" {
		exporters = append(exporters, export.NewFileExporter(cfg.Export.File))
	}

	switch len(exporters) {
	case 0:
		return nil
	case 1:
		return exporters[0]
	default:
		return export.NewMultiExporter(exporters...)
	}
}

// buildGlobalScanner wires the account-global bucket audit. A dedicated
// bucket profile that fails to load skips the global pass instead of
// failing the run.
func buildGlobalScanner(ctx context.Context, cfg *config.Config, factory *awsscan.Factory) audit.GlobalScanner {
	if cfg.Buckets.Disabled {
		return nil
	}

	clients := factory
	if cfg.Buckets.Profile != "" {
		bucketFactory, err := awsscan.NewFactory(ctx, awsscan.Options{Profile: cfg.Buckets.Profile})
		if err != nil {
			log.Warn().Err(err).
				Str("profile", cfg.Buckets.Profile).
				Msg("bucket profile unavailable, skipping global bucket scan")
			return nil
		}
		clients = bucketFactory
	}

	return awsscan.NewBucketScanner(clients, cfg.Buckets.Concurrency, cfg.Scan.PageTimeout)
}
