package metrics

import (
	"context"
	"sync"
	"time"

	"media-catalog/internal/logging"
)

// collectTimeout bounds one round of catalog queries.
const collectTimeout = 10 * time.Second

// StatsProvider supplies catalog counts for the periodic gauges.
type StatsProvider interface {
	CollectStats(ctx context.Context) (Stats, error)
}

// Stats is one snapshot of the catalog.
type Stats struct {
	ItemsByCategory map[string]int
	// StatesByOperation maps operation -> status -> row count.
	StatesByOperation map[string]map[string]int
	OpenConnections   int
}

// Collector refreshes the catalog gauges from a StatsProvider on an interval.
// Series that drop out of a snapshot are set to zero rather than left at
// their last value.
type Collector struct {
	provider StatsProvider
	interval time.Duration

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	lastItems  map[string]bool
	lastStates map[[2]string]bool
}

func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		provider:   provider,
		interval:   interval,
		done:       make(chan struct{}),
		lastItems:  make(map[string]bool),
		lastStates: make(map[[2]string]bool),
	}
}

// Start collects once and then every interval until Stop.
func (c *Collector) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.run(ctx)
}

// Stop ends the loop and waits for an in-flight collection to return.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		if c.cancel == nil {
			close(c.done)
			return
		}
		c.cancel()
		<-c.done
	})
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		c.collect(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Collector) collect(ctx context.Context) {
	if c.provider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, collectTimeout)
	defer cancel()

	stats, err := c.provider.CollectStats(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logging.Warn("Metrics collection failed: %v", err)
		}
		return
	}

	items := make(map[string]bool, len(stats.ItemsByCategory))
	for category, n := range stats.ItemsByCategory {
		CatalogItemsTotal.WithLabelValues(category).Set(float64(n))
		items[category] = true
	}
	for category := range c.lastItems {
		if !items[category] {
			CatalogItemsTotal.WithLabelValues(category).Set(0)
		}
	}
	c.lastItems = items

	states := make(map[[2]string]bool)
	for op, byStatus := range stats.StatesByOperation {
		for status, n := range byStatus {
			ProcessingStatesTotal.WithLabelValues(op, status).Set(float64(n))
			states[[2]string{op, status}] = true
		}
	}
	for key := range c.lastStates {
		if !states[key] {
			ProcessingStatesTotal.WithLabelValues(key[0], key[1]).Set(0)
		}
	}
	c.lastStates = states

	DBConnectionsOpen.Set(float64(stats.OpenConnections))
	logging.Debug("Metrics collected: %d categories, %d ledger series", len(items), len(states))
}
