package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_refiner_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_refiner_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_refiner_http_request_bytes",
			Help:    "Request body sizes, which are dominated by uploads",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_refiner_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_refiner_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_refiner_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_refiner_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// Conversion metrics
var (
	ConversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_refiner_conversions_total",
			Help: "Asset conversions by target format and outcome",
		},
		[]string{"format", "status"}, // status: success, unsupported, open_failed, encode_failed, no_codec
	)

	ConversionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_refiner_conversion_duration_seconds",
			Help:    "Wall time to produce every variant of one asset",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"format"},
	)

	VariantsWrittenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_refiner_variants_written_total",
			Help: "Derivative files committed to storage",
		},
		[]string{"kind"}, // primary, additional, thumbnail
	)

	ConversionRollbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_refiner_conversion_rollbacks_total",
			Help: "Conversions whose partial output was removed",
		},
	)

	CodecInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_refiner_codec_info",
			Help: "Active image codec and whether it can encode each target format (1 = yes)",
		},
		[]string{"codec", "format"},
	)
)

// Batch driver metrics
var (
	BatchPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_refiner_batch_pages_total",
			Help: "Batch pages processed",
		},
		[]string{"result"}, // processed, complete, error
	)

	BatchAssetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_refiner_batch_assets_total",
			Help: "Assets visited by the batch driver by outcome",
		},
		[]string{"outcome"}, // converted, current, skipped, failed
	)

	BatchPageDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_refiner_batch_page_duration_seconds",
			Help:    "Time to process one batch page",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)
)

// Sweeper metrics
var (
	SweepRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_refiner_sweep_runs_total",
			Help: "Reconciliation sweeps by outcome",
		},
		[]string{"status"},
	)

	SweepFilesDeletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_refiner_sweep_files_deleted_total",
			Help: "Orphaned files removed by the sweeper",
		},
		[]string{"kind"}, // legacy, alternate
	)

	SweepFilesFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_refiner_sweep_files_failed_total",
			Help: "Orphaned files the sweeper could not remove",
		},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_refiner_sweep_duration_seconds",
			Help:    "Duration of a full reconciliation sweep",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		},
	)

	SweepActiveFiles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_refiner_sweep_active_files",
			Help: "Size of the active file set computed by the last sweep",
		},
	)
)

// Metadata metrics
var (
	MetadataSyncTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_refiner_metadata_sync_total",
			Help: "Metadata synchronizations by outcome",
		},
		[]string{"status"},
	)

	ThumbnailBackfillTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_refiner_thumbnail_backfill_total",
			Help: "Missing thumbnails regenerated during metadata sync",
		},
		[]string{"status"},
	)
)

// Deletion metrics
var (
	DeleteOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_refiner_delete_outcomes_total",
			Help: "Bounded-retry deletions by outcome",
		},
		[]string{"status"}, // deleted, missing, write_denied, exhausted
	)

	DeleteAttemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_refiner_delete_attempts_total",
			Help: "Individual unlink attempts made by the bounded-retry deleter",
		},
	)

	PermissionRemediationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_refiner_permission_remediations_total",
			Help: "chmod remediation attempts before deletion",
		},
		[]string{"status"},
	)
)

// Filesystem retry metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_refiner_filesystem_retry_attempts_total",
			Help: "Filesystem operation retries after stale NFS handles",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_refiner_filesystem_retry_success_total",
			Help: "Filesystem operations that succeeded after retrying",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_refiner_filesystem_retry_failures_total",
			Help: "Filesystem operations that failed after all retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_refiner_filesystem_stale_errors_total",
			Help: "ESTALE errors observed",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_refiner_filesystem_retry_duration_seconds",
			Help:    "Total time spent in retried filesystem operations",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		},
		[]string{"operation", "volume"},
	)
)

// PDF and export metrics
var (
	PDFCompressionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_refiner_pdf_compressions_total",
			Help: "PDF compression attempts by level and outcome",
		},
		[]string{"level", "status"}, // status: compressed, skipped, error
	)

	PDFBytesSavedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_refiner_pdf_bytes_saved_total",
			Help: "Bytes removed from storage by PDF compression",
		},
	)

	ExportFilesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_refiner_export_files_total",
			Help: "Files written into export archives",
		},
	)

	ExportBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_refiner_export_bytes_total",
			Help: "Uncompressed bytes written into export archives",
		},
	)
)

// Catalog state metrics (published by the Collector)
var (
	CatalogAssets = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_refiner_catalog_assets",
			Help: "Catalog assets by conversion state",
		},
		[]string{"state"}, // total, converted, legacy, remaining, excluded
	)

	JournalEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_refiner_journal_entries",
			Help: "Entries currently held in the activity journal",
		},
	)

	ConversionComplete = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_refiner_conversion_complete",
			Help: "1 when the last batch run reached an empty page",
		},
	)
)

// Upload watcher metrics
var (
	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_refiner_watcher_events_total",
			Help: "Filesystem events observed in the uploads tree",
		},
		[]string{"op"},
	)

	WatcherErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_refiner_watcher_errors_total",
			Help: "Errors raised by the uploads watcher",
		},
	)

	ImportedAssetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_refiner_imported_assets_total",
			Help: "Files registered in the catalog by the importer",
		},
		[]string{"source"}, // scan, watch, upload
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_refiner_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the configured limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_refiner_memory_paused",
			Help: "1 while processing is paused for memory pressure",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_refiner_memory_gc_pauses_total",
			Help: "Times processing paused and forced a GC",
		},
	)
)
