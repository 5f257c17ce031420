package store

import (
	"context"
	"fmt"

	"github.com/cloudx-io/confidentialbid/core"
	"github.com/cloudx-io/confidentialbid/metrics"
)

// UpdateMetrics refreshes the per-status auction gauges.
func UpdateMetrics(ctx context.Context, s Store) error {
	auctions, err := s.ListAuctions(ctx)
	if err != nil {
		return fmt.Errorf("list auctions: %w", err)
	}

	counts := map[core.AuctionStatus]int{}
	for _, a := range auctions {
		counts[a.Status]++
	}

	for _, status := range []core.AuctionStatus{core.StatusOpen, core.StatusClosed, core.StatusSettled, core.StatusCancelled} {
		metrics.AuctionsByStatus.WithLabelValues(status.String()).Set(float64(counts[status]))
	}

	return nil
}
