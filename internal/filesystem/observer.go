package filesystem

// Observer records filesystem metrics. The metrics package provides the
// implementation so this package stays free of Prometheus imports.
type Observer interface {
	ObserveRetryAttempt(op, volume string)
	ObserveRetrySuccess(op, volume string)
	ObserveRetryFailure(op, volume string)
	ObserveRetryDuration(op, volume string, seconds float64)
	ObserveStaleError(op, volume string)

	// ObserveDelete records the final status of a bounded-retry deletion
	// ("deleted", "missing", "write_denied", "exhausted") and how many
	// unlink attempts it took.
	ObserveDelete(status string, attempts int)
	// ObserveRemediation records one chmod remediation attempt.
	ObserveRemediation(ok bool)
}

// nopObserver is used until SetObserver is called, which keeps tests free of
// metric setup.
type nopObserver struct{}

func (nopObserver) ObserveRetryAttempt(string, string)           {}
func (nopObserver) ObserveRetrySuccess(string, string)           {}
func (nopObserver) ObserveRetryFailure(string, string)           {}
func (nopObserver) ObserveRetryDuration(string, string, float64) {}
func (nopObserver) ObserveStaleError(string, string)             {}
func (nopObserver) ObserveDelete(string, int)                    {}
func (nopObserver) ObserveRemediation(bool)                      {}

var defaultObserver Observer = nopObserver{}

// SetObserver installs the package-level observer. A nil observer restores
// the no-op default.
func SetObserver(o Observer) {
	if o == nil {
		defaultObserver = nopObserver{}
		return
	}
	defaultObserver = o
}

func observe() Observer {
	return defaultObserver
}
