package metrics

import (
	"context"
	"time"

	"media-refiner/internal/logging"
)

// StatsProvider supplies the catalog snapshot published by the Collector.
type StatsProvider interface {
	CollectStats(ctx context.Context) (Stats, error)
}

// Stats is a point-in-time view of conversion progress.
type Stats struct {
	Total          int
	Converted      int
	Legacy         int
	Remaining      int
	Excluded       int
	JournalEntries int
	Complete       bool

	// DBConnections is the catalog pool's open connection count.
	DBConnections int
}

// Collector periodically collects and updates metrics
type Collector struct {
	provider StatsProvider
	interval time.Duration
	stopChan chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		provider: provider,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.provider == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := c.provider.CollectStats(ctx)
	if err != nil {
		logging.Warn("Metrics collection failed: %v", err)
		return
	}
	Publish(stats)

	logging.Debug("Metrics collected: total=%d converted=%d legacy=%d remaining=%d excluded=%d",
		stats.Total, stats.Converted, stats.Legacy, stats.Remaining, stats.Excluded)
}

// Publish writes a snapshot into the catalog gauges.
func Publish(stats Stats) {
	CatalogAssets.WithLabelValues("total").Set(float64(stats.Total))
	CatalogAssets.WithLabelValues("converted").Set(float64(stats.Converted))
	CatalogAssets.WithLabelValues("legacy").Set(float64(stats.Legacy))
	CatalogAssets.WithLabelValues("remaining").Set(float64(stats.Remaining))
	CatalogAssets.WithLabelValues("excluded").Set(float64(stats.Excluded))
	JournalEntries.Set(float64(stats.JournalEntries))
	DBConnectionsOpen.Set(float64(stats.DBConnections))
	if stats.Complete {
		ConversionComplete.Set(1)
	} else {
		ConversionComplete.Set(0)
	}
}
