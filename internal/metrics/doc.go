// Package metrics provides Prometheus instrumentation for the media refiner.
//
// All metrics are prefixed with "media_refiner_" and registered through
// promauto at package init. They fall into these groups:
//
//   - HTTP: request counts, latency and in-flight gauge (middleware.Metrics)
//   - Database: query counts and latency per catalog operation
//   - Conversion: per-format outcomes, duration, variants written, rollbacks
//     and the active codec's capabilities
//   - Batch: pages processed and per-asset outcomes
//   - Sweeper: orphan deletions by kind, failures, active set size, duration
//   - Metadata: sync outcomes and thumbnail backfills
//   - Deletion: bounded-retry outcomes, unlink attempts, chmod remediations
//   - Filesystem: ESTALE retry counters labelled by volume
//   - PDF and export: compression outcomes, bytes saved, archive volume
//   - Catalog: gauges refreshed by the Collector from a StatsProvider
//   - Watcher and memory: upload watcher events and memory backpressure
//
// The filesystem package does not import this package; it reports through
// the Observer returned by NewFilesystemObserver.
package metrics
