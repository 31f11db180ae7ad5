package database

import (
	"context"

	"media-catalog/internal/metrics"
)

// CollectStats implements metrics.StatsProvider.
func (d *Database) CollectStats(ctx context.Context) (metrics.Stats, error) {
	stats := metrics.Stats{
		StatesByOperation: make(map[string]map[string]int),
		OpenConnections:   d.db.Stats().OpenConnections,
	}

	d.mu.RLock()
	byCategory, err := d.itemsByCategoryNoLock(ctx)
	d.mu.RUnlock()
	if err != nil {
		return stats, err
	}
	stats.ItemsByCategory = byCategory

	for _, op := range OperationTypes {
		counts, err := d.CountStates(ctx, op)
		if err != nil {
			return stats, err
		}
		byStatus := make(map[string]int, len(counts))
		for s, n := range counts {
			byStatus[string(s)] = n
		}
		stats.StatesByOperation[string(op)] = byStatus
	}

	return stats, nil
}
