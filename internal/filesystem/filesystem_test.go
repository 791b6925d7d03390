package filesystem

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Retry
// =============================================================================

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 50*time.Millisecond, cfg.InitialBackoff)
	assert.Equal(t, 500*time.Millisecond, cfg.MaxBackoff)
}

func TestIsNFSStaleError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"estale", syscall.ESTALE, true},
		{"wrapped estale", &os.PathError{Op: "stat", Path: "/x", Err: syscall.ESTALE}, true},
		{"enoent", syscall.ENOENT, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isNFSStaleError(tt.err))
		})
	}
}

func TestWithRetryRecoversFromStaleHandle(t *testing.T) {
	calls := 0
	cfg := RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

	got, err := withRetry("stat", "/uploads/a.jpg", cfg, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, syscall.ESTALE
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestWithRetryGivesUp(t *testing.T) {
	calls := 0
	cfg := RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

	_, err := withRetry("open", "/uploads/a.jpg", cfg, func() (int, error) {
		calls++
		return 0, syscall.ESTALE
	})

	assert.ErrorIs(t, err, syscall.ESTALE)
	assert.Equal(t, 3, calls)
}

func TestWithRetryDoesNotRetryOtherErrors(t *testing.T) {
	calls := 0
	_, err := withRetry("stat", "/x", DefaultRetryConfig(), func() (int, error) {
		calls++
		return 0, os.ErrNotExist
	})
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, 1, calls)
}

func TestStatAndOpenWithRetry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jpg")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	info, err := StatWithRetry(path, DefaultRetryConfig())
	require.NoError(t, err)
	assert.Equal(t, int64(4), info.Size())

	f, err := OpenWithRetry(path, DefaultRetryConfig())
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = StatWithRetry(filepath.Join(dir, "missing.jpg"), DefaultRetryConfig())
	assert.True(t, os.IsNotExist(err))
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.webp")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	assert.True(t, Exists(path))
	assert.False(t, Exists(dir))
	assert.False(t, Exists(filepath.Join(dir, "b.webp")))
}

// =============================================================================
// VolumeResolver
// =============================================================================

func TestVolumeResolverLongestPrefix(t *testing.T) {
	vr := NewVolumeResolver(map[string]string{
		"uploads": "/srv/uploads",
		"cache":   "/srv/uploads/cache",
	})

	assert.Equal(t, "uploads", vr.Resolve("/srv/uploads/2024/01/a.jpg"))
	assert.Equal(t, "cache", vr.Resolve("/srv/uploads/cache/a.jpg"))
	assert.Equal(t, "uploads", vr.Resolve("/srv/uploads"))
	assert.Equal(t, "unknown", vr.Resolve("/srv/uploads-old/a.jpg"))
	assert.Equal(t, "unknown", vr.Resolve("/etc/passwd"))
}

func TestNilVolumeResolver(t *testing.T) {
	var vr *VolumeResolver
	assert.Equal(t, "unknown", vr.Resolve("/anything"))
}

// =============================================================================
// Deleter
// =============================================================================

type recordingObserver struct {
	nopObserver
	mu           sync.Mutex
	deletes      []string
	remediations []bool
}

func (r *recordingObserver) ObserveDelete(status string, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes = append(r.deletes, status)
}

func (r *recordingObserver) ObserveRemediation(ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remediations = append(r.remediations, ok)
}

func withObserver(t *testing.T) *recordingObserver {
	t.Helper()
	obs := &recordingObserver{}
	SetObserver(obs)
	t.Cleanup(func() { SetObserver(nil) })
	return obs
}

func newTestDeleter() (*Deleter, *[]time.Duration) {
	d := NewDeleter(DeleteConfig{MaxAttempts: 5, Backoff: time.Second})
	slept := &[]time.Duration{}
	d.sleep = func(dur time.Duration) { *slept = append(*slept, dur) }
	return d, slept
}

func touch(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "photo.jpg")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	return path
}

func TestNewDeleterDefaults(t *testing.T) {
	d := NewDeleter(DeleteConfig{})
	assert.Equal(t, DefaultDeleteConfig(), d.Config())
}

func TestDeleteRemovesFile(t *testing.T) {
	obs := withObserver(t)
	path := touch(t)
	d, slept := newTestDeleter()

	require.NoError(t, d.Delete(path))

	assert.NoFileExists(t, path)
	assert.Empty(t, *slept)
	assert.Equal(t, []string{"deleted"}, obs.deletes)
}

func TestDeleteMissingFileIsNoop(t *testing.T) {
	obs := withObserver(t)
	d, _ := newTestDeleter()

	assert.NoError(t, d.Delete(filepath.Join(t.TempDir(), "gone.jpg")))
	assert.Equal(t, []string{"missing"}, obs.deletes)
}

func TestDeleteRetriesWithFixedBackoff(t *testing.T) {
	path := touch(t)
	d, slept := newTestDeleter()

	calls := 0
	d.remove = func(p string) error {
		calls++
		if calls < 3 {
			return errors.New("device busy")
		}
		return os.Remove(p)
	}

	require.NoError(t, d.Delete(path))
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, *slept)
}

func TestDeleteExhausted(t *testing.T) {
	obs := withObserver(t)
	path := touch(t)
	d, slept := newTestDeleter()

	calls := 0
	d.remove = func(string) error {
		calls++
		return errors.New("device busy")
	}

	err := d.Delete(path)
	assert.ErrorIs(t, err, ErrDeleteExhausted)
	assert.Equal(t, 5, calls)
	assert.Len(t, *slept, 4)
	assert.FileExists(t, path)
	assert.Equal(t, []string{"exhausted"}, obs.deletes)
}

func TestDeleteRemediatesPermissions(t *testing.T) {
	obs := withObserver(t)
	path := touch(t)
	d, _ := newTestDeleter()

	writable := false
	var modes []os.FileMode
	d.writable = func(string) bool { return writable }
	d.chmod = func(_ string, mode os.FileMode) error {
		modes = append(modes, mode)
		writable = true
		return nil
	}

	require.NoError(t, d.Delete(path))
	assert.Equal(t, []os.FileMode{0o644}, modes)
	assert.Equal(t, []bool{true}, obs.remediations)
	assert.NoFileExists(t, path)
}

func TestDeleteAbortsAfterTwoFailedRemediations(t *testing.T) {
	obs := withObserver(t)
	path := touch(t)
	d, _ := newTestDeleter()

	chmods := 0
	removes := 0
	d.writable = func(string) bool { return false }
	d.chmod = func(string, os.FileMode) error {
		chmods++
		return nil
	}
	d.remove = func(string) error {
		removes++
		return nil
	}

	err := d.Delete(path)
	assert.ErrorIs(t, err, ErrWriteDenied)
	assert.Equal(t, 2, chmods)
	assert.Zero(t, removes)
	assert.Equal(t, []bool{false, false}, obs.remediations)
	assert.Equal(t, []string{"write_denied"}, obs.deletes)
}

func TestDirWritable(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, DirWritable(dir))
	assert.False(t, DirWritable(filepath.Join(dir, "missing")))

	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	assert.False(t, DirWritable(file))
}
