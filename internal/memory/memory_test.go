package memory

import (
	"os"
	"path/filepath"
	"runtime/debug"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMonitor(limit int64) (*Monitor, *atomic.Uint64) {
	var alloc atomic.Uint64
	m := NewMonitor(Config{LimitBytes: limit, ResumeRatio: 0.5, PauseRatio: 0.8, CheckInterval: time.Hour})
	m.readAlloc = alloc.Load
	return m, &alloc
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Less(t, cfg.ResumeRatio, cfg.PauseRatio)
	assert.Positive(t, cfg.CheckInterval)
}

func TestMonitorPausesAndResumes(t *testing.T) {
	m, alloc := newTestMonitor(1000)

	alloc.Store(900)
	m.sample()
	require.True(t, m.IsPaused())

	released := make(chan bool, 1)
	go func() { released <- m.WaitIfPaused() }()

	select {
	case <-released:
		t.Fatal("WaitIfPaused returned while paused")
	case <-time.After(50 * time.Millisecond):
	}

	// between the ratios nothing changes
	alloc.Store(600)
	m.sample()
	assert.True(t, m.IsPaused())

	alloc.Store(100)
	m.sample()
	assert.False(t, m.IsPaused())

	select {
	case ok := <-released:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("WaitIfPaused did not return after resume")
	}
}

func TestMonitorStopReleasesWaiters(t *testing.T) {
	m, alloc := newTestMonitor(1000)
	alloc.Store(950)
	m.sample()

	released := make(chan bool, 1)
	go func() { released <- m.WaitIfPaused() }()

	m.Stop()
	m.Stop()

	select {
	case ok := <-released:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("WaitIfPaused did not return after Stop")
	}
}

func TestMonitorStoppedWhileRunning(t *testing.T) {
	m, _ := newTestMonitor(1000)
	assert.True(t, m.WaitIfPaused())

	m.Stop()
	assert.False(t, m.WaitIfPaused())
}

func TestMonitorStats(t *testing.T) {
	m, alloc := newTestMonitor(2000)
	alloc.Store(500)
	m.sample()

	current, limit, usage := m.Stats()
	assert.Equal(t, int64(500), current)
	assert.Equal(t, int64(2000), limit)
	assert.InDelta(t, 0.25, usage, 1e-9)
}

func TestMonitorWithoutLimit(t *testing.T) {
	previous := debug.SetMemoryLimit(-1)
	debug.SetMemoryLimit(1<<63 - 1)
	defer debug.SetMemoryLimit(previous)

	m, alloc := newTestMonitor(0)
	alloc.Store(1 << 40)
	m.Start()
	m.sample()
	defer m.Stop()

	assert.False(t, m.IsPaused())
	assert.True(t, m.WaitIfPaused())
	_, limit, usage := m.Stats()
	assert.Zero(t, limit)
	assert.Zero(t, usage)
}

func withCgroupFile(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memory.max")
	if content != "" {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	previous := cgroupMemoryMax
	cgroupMemoryMax = path
	t.Cleanup(func() { cgroupMemoryMax = previous })
}

func TestConfigureFromEnv(t *testing.T) {
	previous := debug.SetMemoryLimit(-1)
	defer debug.SetMemoryLimit(previous)
	withCgroupFile(t, "")

	tests := []struct {
		name       string
		limit      string
		ratio      string
		configured bool
		goMemLimit int64
	}{
		{"unset", "", "", false, 0},
		{"default ratio", "1073741824", "", true, 912680550},
		{"custom ratio", "1073741824", "0.5", true, 536870912},
		{"ratio out of range", "1073741824", "1.5", true, 912680550},
		{"bad ratio", "1073741824", "half", true, 912680550},
		{"bad limit", "lots", "", false, 0},
		{"negative limit", "-5", "", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GOMEMLIMIT", "")
			t.Setenv("MEMORY_LIMIT", tt.limit)
			t.Setenv("MEMORY_RATIO", tt.ratio)

			result := ConfigureFromEnv()
			assert.Equal(t, tt.configured, result.Configured)
			assert.Equal(t, tt.goMemLimit, result.GoMemLimit)
			if tt.configured {
				assert.Equal(t, SourceMemoryLimit, result.Source)
				assert.Equal(t, tt.goMemLimit, debug.SetMemoryLimit(-1))
			} else {
				assert.Equal(t, SourceNone, result.Source)
			}
		})
	}
}

func TestConfigureFromCgroup(t *testing.T) {
	previous := debug.SetMemoryLimit(-1)
	defer debug.SetMemoryLimit(previous)
	t.Setenv("GOMEMLIMIT", "")
	t.Setenv("MEMORY_LIMIT", "")
	t.Setenv("MEMORY_RATIO", "0.5")

	withCgroupFile(t, "2147483648\n")
	result := ConfigureFromEnv()
	assert.True(t, result.Configured)
	assert.Equal(t, SourceCgroup, result.Source)
	assert.Equal(t, int64(2147483648), result.ContainerLimit)
	assert.Equal(t, int64(1073741824), result.GoMemLimit)

	withCgroupFile(t, "max\n")
	result = ConfigureFromEnv()
	assert.False(t, result.Configured)
	assert.Equal(t, SourceNone, result.Source)
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1 << 20, "1.0 MiB"},
		{3 << 30, "3.0 GiB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatBytes(tt.in))
	}
}
