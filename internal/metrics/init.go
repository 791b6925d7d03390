package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	formats := []string{"webp", "avif"}

	for _, f := range formats {
		for _, s := range []string{"success", "unsupported", "open_failed", "encode_failed", "no_codec"} {
			ConversionsTotal.WithLabelValues(f, s)
		}
		ConversionDuration.WithLabelValues(f)
	}

	for _, kind := range []string{"primary", "additional", "thumbnail"} {
		VariantsWrittenTotal.WithLabelValues(kind)
	}

	for _, r := range []string{"processed", "complete", "error"} {
		BatchPagesTotal.WithLabelValues(r)
	}
	for _, o := range []string{"converted", "current", "skipped", "failed"} {
		BatchAssetsTotal.WithLabelValues(o)
	}

	for _, s := range []string{"success", "error"} {
		SweepRunsTotal.WithLabelValues(s)
		MetadataSyncTotal.WithLabelValues(s)
		ThumbnailBackfillTotal.WithLabelValues(s)
	}
	for _, k := range []string{"legacy", "alternate"} {
		SweepFilesDeletedTotal.WithLabelValues(k)
	}

	for _, s := range []string{"deleted", "missing", "write_denied", "exhausted"} {
		DeleteOutcomesTotal.WithLabelValues(s)
	}
	PermissionRemediationsTotal.WithLabelValues("success")
	PermissionRemediationsTotal.WithLabelValues("failed")

	volumes := []string{"uploads", "database", "unknown"}
	for _, op := range []string{"stat", "open"} {
		for _, vol := range volumes {
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
			FilesystemRetryDuration.WithLabelValues(op, vol)
		}
	}

	for _, level := range []string{"screen", "ebook", "printer"} {
		for _, s := range []string{"compressed", "skipped", "error"} {
			PDFCompressionsTotal.WithLabelValues(level, s)
		}
	}

	for _, state := range []string{"total", "converted", "legacy", "remaining", "excluded"} {
		CatalogAssets.WithLabelValues(state)
	}

	for _, op := range []string{"create", "write", "remove", "rename", "chmod"} {
		WatcherEventsTotal.WithLabelValues(op)
	}
	for _, src := range []string{"scan", "watch", "upload"} {
		ImportedAssetsTotal.WithLabelValues(src)
	}

	for _, op := range []string{"create_asset", "get_asset", "put_asset", "attach_primary",
		"list_candidates", "list_assets", "delete_asset", "count_by_mime", "append_log"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}
}
