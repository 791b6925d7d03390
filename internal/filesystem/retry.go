package filesystem

import (
	"errors"
	"os"
	"syscall"
	"time"

	"media-refiner/internal/logging"
)

// RetryConfig configures retry behavior for NFS stale file handle errors.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// VolumeResolver labels metrics by volume. Nil uses the package default.
	VolumeResolver *VolumeResolver
}

// DefaultRetryConfig returns 3 retries with a 50ms to 500ms backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

func (c RetryConfig) volume(path string) string {
	if c.VolumeResolver != nil {
		return c.VolumeResolver.Resolve(path)
	}
	return defaultResolver.Resolve(path)
}

// isNFSStaleError reports whether err is ESTALE (errno 116).
func isNFSStaleError(err error) bool {
	if err == nil {
		return false
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ESTALE
	}
	return false
}

// withRetry runs fn, retrying with exponential backoff while it fails with
// ESTALE. Any other error is returned immediately.
func withRetry[T any](op, path string, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var (
		result  T
		err     error
		backoff = cfg.InitialBackoff
		volume  = cfg.volume(path)
		start   = time.Now()
		retried bool
	)

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err = fn()
		if err == nil {
			if retried {
				logging.Info("%s succeeded for %s after %d retries", op, path, attempt)
				observe().ObserveRetrySuccess(op, volume)
				observe().ObserveRetryDuration(op, volume, time.Since(start).Seconds())
			}
			return result, nil
		}

		if !isNFSStaleError(err) {
			return result, err
		}

		observe().ObserveStaleError(op, volume)
		if attempt == cfg.MaxRetries {
			break
		}

		retried = true
		observe().ObserveRetryAttempt(op, volume)
		logging.Debug("Stale file handle on %s %s, retry %d/%d in %v", op, path, attempt+1, cfg.MaxRetries, backoff)
		time.Sleep(backoff)

		backoff *= 2
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	logging.Warn("%s failed for %s after %d retries: %v", op, path, cfg.MaxRetries, err)
	observe().ObserveRetryFailure(op, volume)
	observe().ObserveRetryDuration(op, volume, time.Since(start).Seconds())
	return result, err
}

// StatWithRetry wraps os.Stat with ESTALE retry.
func StatWithRetry(path string, cfg RetryConfig) (os.FileInfo, error) {
	return withRetry("stat", path, cfg, func() (os.FileInfo, error) {
		return os.Stat(path)
	})
}

// OpenWithRetry wraps os.Open with ESTALE retry.
func OpenWithRetry(path string, cfg RetryConfig) (*os.File, error) {
	return withRetry("open", path, cfg, func() (*os.File, error) {
		return os.Open(path)
	})
}

// Exists reports whether path names an existing regular file.
func Exists(path string) bool {
	info, err := StatWithRetry(path, DefaultRetryConfig())
	return err == nil && info.Mode().IsRegular()
}
