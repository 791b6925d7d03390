package memory

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"media-refiner/internal/logging"
	"media-refiner/internal/metrics"
)

// Config holds the backpressure thresholds.
type Config struct {
	// LimitBytes is the soft limit; 0 uses GOMEMLIMIT, and no limit
	// disables backpressure.
	LimitBytes int64

	// ResumeRatio is the usage below which a paused monitor resumes.
	ResumeRatio float64

	// PauseRatio is the usage at or above which conversions pause.
	PauseRatio float64

	// CheckInterval is how often usage is sampled.
	CheckInterval time.Duration
}

// DefaultConfig returns the thresholds used by the server.
func DefaultConfig() Config {
	return Config{
		ResumeRatio:   0.7,
		PauseRatio:    0.85,
		CheckInterval: 5 * time.Second,
	}
}

// Monitor samples heap usage and blocks callers of WaitIfPaused while usage
// is critical. The batch driver and the sweeper call it between assets.
type Monitor struct {
	config Config
	limit  int64

	mu       sync.RWMutex
	current  uint64
	paused   bool
	resumed  chan struct{}
	stopOnce sync.Once
	stop     chan struct{}

	// readAlloc is replaced in tests.
	readAlloc func() uint64
}

// NewMonitor creates a monitor. It does not sample until Start.
func NewMonitor(config Config) *Monitor {
	limit := config.LimitBytes
	if limit == 0 {
		if goMemLimit := debug.SetMemoryLimit(-1); goMemLimit > 0 && goMemLimit < 1<<62 {
			limit = goMemLimit
			logging.Info("Memory monitor using GOMEMLIMIT: %s", formatBytes(limit))
		}
	}
	if limit == 0 {
		logging.Warn("Memory monitor: no memory limit configured, backpressure disabled")
	}

	return &Monitor{
		config:    config,
		limit:     limit,
		resumed:   make(chan struct{}),
		stop:      make(chan struct{}),
		readAlloc: heapAlloc,
	}
}

func heapAlloc() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.Alloc
}

// Start begins sampling. Without a limit it does nothing.
func (m *Monitor) Start() {
	if m.limit == 0 {
		return
	}
	go m.loop()
}

// Stop ends sampling and releases every WaitIfPaused caller with false.
// It is safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sample()
		case <-m.stop:
			return
		}
	}
}

func (m *Monitor) sample() {
	alloc := m.readAlloc()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = alloc
	if m.limit <= 0 {
		return
	}
	usage := float64(alloc) / float64(m.limit)
	metrics.MemoryUsageRatio.Set(usage)

	switch {
	case usage >= m.config.PauseRatio && !m.paused:
		logging.Warn("Memory critical (%.1f%% of limit), pausing conversions", usage*100)
		m.paused = true
		metrics.MemoryPaused.Set(1)
		metrics.MemoryGCPauses.Inc()
		go runtime.GC()
	case usage < m.config.ResumeRatio && m.paused:
		logging.Info("Memory recovered (%.1f%% of limit), resuming conversions", usage*100)
		m.paused = false
		metrics.MemoryPaused.Set(0)
		close(m.resumed)
		m.resumed = make(chan struct{})
	}
}

// WaitIfPaused blocks while usage is critical. It returns false once the
// monitor has been stopped, which callers treat as a shutdown request.
func (m *Monitor) WaitIfPaused() bool {
	select {
	case <-m.stop:
		return false
	default:
	}

	m.mu.RLock()
	if !m.paused {
		m.mu.RUnlock()
		return true
	}
	resumed := m.resumed
	m.mu.RUnlock()

	select {
	case <-resumed:
		return true
	case <-m.stop:
		return false
	}
}

// IsPaused reports whether conversions are currently held back.
func (m *Monitor) IsPaused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paused
}

// Stats returns the last sampled heap size, the limit and their ratio.
func (m *Monitor) Stats() (current, limit int64, usage float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	current = int64(min(m.current, uint64(1<<63-1)))
	if m.limit > 0 {
		usage = float64(m.current) / float64(m.limit)
	}
	return current, m.limit, usage
}
