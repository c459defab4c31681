// Package cache memoizes solved hedges keyed by their exact inputs.
// Implementations include Redis (shared across instances) and in-memory
// (single instance, tests).
package cache

import (
	"context"
	"fmt"
	"math"

	"github.com/aegis/hedge-engine/internal/model"
)

// Cache stores solver results. A miss is reported as (nil, false, nil);
// errors are reserved for backend failures.
type Cache interface {
	// Get returns the cached result for key.
	Get(ctx context.Context, key string) (*model.HedgeResult, bool, error)

	// Set stores res under key.
	Set(ctx context.Context, key string, res *model.HedgeResult) error

	// Name identifies the backend in metrics and logs.
	Name() string
}

// Key derives a cache key from the exact bit patterns of the inputs, so two
// requests share an entry only if the solver would see identical values.
func Key(p model.PortfolioParameters) string {
	return fmt.Sprintf("hedge:%016x:%016x:%016x:%016x:%016x",
		math.Float64bits(p.PortfolioValue),
		math.Float64bits(p.CurrentBeta),
		math.Float64bits(p.TargetBeta),
		math.Float64bits(p.IndexPrice),
		math.Float64bits(p.ContractMultiplier),
	)
}
