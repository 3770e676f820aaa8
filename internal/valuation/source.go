package valuation

import (
	"context"
	"time"

	"lpValuer/internal/model"
)

// MarketSource supplies historical bars and tick snapshots.
// Ranges are [from, to); bars come back sorted ascending.
type MarketSource interface {
	PoolHourBars(ctx context.Context, poolID string, from, to time.Time) ([]model.Bar, error)
	PoolDayBars(ctx context.Context, poolID string, from, to time.Time) ([]model.Bar, error)
	TokenHourBars(ctx context.Context, tokenID string, from, to time.Time) ([]model.Bar, error)
	Ticks(ctx context.Context, poolID string) ([]model.TickRecord, error)
}

// PoolSource resolves pool facts by id.
type PoolSource interface {
	Pool(ctx context.Context, id string) (model.Pool, error)
}
