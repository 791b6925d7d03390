package metrics

import "media-refiner/internal/filesystem"

// filesystemObserver implements filesystem.Observer on top of the counters in
// metrics.go.
type filesystemObserver struct{}

// NewFilesystemObserver returns the observer to install with
// filesystem.SetObserver at startup.
func NewFilesystemObserver() filesystem.Observer {
	return &filesystemObserver{}
}

func (o *filesystemObserver) ObserveRetryAttempt(op, volume string) {
	FilesystemRetryAttempts.WithLabelValues(op, volume).Inc()
}

func (o *filesystemObserver) ObserveRetrySuccess(op, volume string) {
	FilesystemRetrySuccess.WithLabelValues(op, volume).Inc()
}

func (o *filesystemObserver) ObserveRetryFailure(op, volume string) {
	FilesystemRetryFailures.WithLabelValues(op, volume).Inc()
}

func (o *filesystemObserver) ObserveRetryDuration(op, volume string, seconds float64) {
	FilesystemRetryDuration.WithLabelValues(op, volume).Observe(seconds)
}

func (o *filesystemObserver) ObserveStaleError(op, volume string) {
	FilesystemStaleErrors.WithLabelValues(op, volume).Inc()
}

func (o *filesystemObserver) ObserveDelete(status string, attempts int) {
	DeleteOutcomesTotal.WithLabelValues(status).Inc()
	DeleteAttemptsTotal.Add(float64(attempts))
}

func (o *filesystemObserver) ObserveRemediation(ok bool) {
	status := "success"
	if !ok {
		status = "failed"
	}
	PermissionRemediationsTotal.WithLabelValues(status).Inc()
}
