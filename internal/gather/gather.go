// Package gather acquires daily bar data from upstream market-data providers
// and persists it through the bar store. The backtest engine itself never
// talks to a provider; it only reads what a gatherer has written.
package gather

import (
	"context"
	"time"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run executes one gathering pass and returns when it is done or the
	// context is cancelled.
	Run(ctx context.Context) error
}

// DateRange bounds a gathering pass, inclusive on both ends.
type DateRange struct {
	Start time.Time
	End   time.Time
}
