package filesystem

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"media-refiner/internal/logging"
)

var (
	// ErrWriteDenied is returned when a file stays read-only after chmod
	// remediation was attempted twice.
	ErrWriteDenied = errors.New("file is not writable")
	// ErrDeleteExhausted is returned when every unlink attempt failed.
	ErrDeleteExhausted = errors.New("delete attempts exhausted")
)

// DeleteConfig bounds a Deleter.
type DeleteConfig struct {
	MaxAttempts int
	Backoff     time.Duration
	// Mode is applied when a file is found not writable.
	Mode os.FileMode
}

// DefaultDeleteConfig returns five attempts one second apart with 0644
// remediation.
func DefaultDeleteConfig() DeleteConfig {
	return DeleteConfig{
		MaxAttempts: 5,
		Backoff:     time.Second,
		Mode:        0o644,
	}
}

// Deleter removes files with bounded retry and permission remediation.
// Failures are logged and returned; they are never fatal to the caller.
type Deleter struct {
	cfg DeleteConfig

	writable func(path string) bool
	chmod    func(path string, mode os.FileMode) error
	remove   func(path string) error
	sleep    func(time.Duration)
}

// NewDeleter creates a Deleter. Zero fields in cfg take their defaults.
func NewDeleter(cfg DeleteConfig) *Deleter {
	def := DefaultDeleteConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Backoff < 0 {
		cfg.Backoff = def.Backoff
	}
	if cfg.Mode == 0 {
		cfg.Mode = def.Mode
	}
	return &Deleter{
		cfg:      cfg,
		writable: Writable,
		chmod:    os.Chmod,
		remove:   os.Remove,
		sleep:    time.Sleep,
	}
}

// Config returns the effective configuration.
func (d *Deleter) Config() DeleteConfig {
	return d.cfg
}

// Delete removes path. A file that does not exist is treated as deleted.
//
// Each attempt first checks write access. A read-only file is chmod'ed to
// the configured mode; if it is still not writable after a second
// remediation the deletion is abandoned with ErrWriteDenied.
func (d *Deleter) Delete(path string) error {
	if _, err := os.Lstat(path); errors.Is(err, os.ErrNotExist) {
		observe().ObserveDelete("missing", 0)
		return nil
	}

	remediations := 0
	attempts := 0
	var lastErr error

	for attempts < d.cfg.MaxAttempts {
		if !d.writable(path) {
			if remediations >= 2 {
				logging.Error("Cannot make %s writable after retry - skipping deletion", path)
				observe().ObserveDelete("write_denied", attempts)
				return fmt.Errorf("%s: %w", path, ErrWriteDenied)
			}
			remediations++
			err := d.chmod(path, d.cfg.Mode)
			observe().ObserveRemediation(err == nil && d.writable(path))
			if err != nil {
				logging.Debug("chmod %o on %s failed: %v", d.cfg.Mode, path, err)
			}
			continue
		}

		attempts++
		lastErr = d.remove(path)
		if lastErr == nil || errors.Is(lastErr, os.ErrNotExist) {
			observe().ObserveDelete("deleted", attempts)
			return nil
		}

		logging.Debug("Delete attempt %d/%d for %s failed: %v", attempts, d.cfg.MaxAttempts, path, lastErr)
		if attempts < d.cfg.MaxAttempts {
			d.sleep(d.cfg.Backoff)
		}
	}

	logging.Error("Failed to delete %s after %d retries: %v", path, d.cfg.MaxAttempts, lastErr)
	observe().ObserveDelete("exhausted", attempts)
	return fmt.Errorf("%s: %w: %v", path, ErrDeleteExhausted, lastErr)
}

// Writable reports whether the current process may write to path.
func Writable(path string) bool {
	return unix.Access(path, unix.W_OK) == nil
}

// DirWritable reports whether dir exists and accepts new files.
func DirWritable(dir string) bool {
	info, err := StatWithRetry(dir, DefaultRetryConfig())
	if err != nil || !info.IsDir() {
		return false
	}
	return unix.Access(dir, unix.W_OK|unix.X_OK) == nil
}
