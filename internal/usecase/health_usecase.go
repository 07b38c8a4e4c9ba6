package usecase

import (
	"context"
	"maps"
	"slices"
	"time"
)

const healthCheckTimeout = 2 * time.Second

type HealthUsecase interface {
	// Check probes every dependency and reports "up" or "down" per name.
	Check(ctx context.Context) (map[string]string, bool)
}

type healthUsecase struct {
	checks map[string]func(context.Context) error
}

func NewHealthUsecase(checks map[string]func(context.Context) error) HealthUsecase {
	return &healthUsecase{checks: maps.Clone(checks)}
}

func (u *healthUsecase) Check(ctx context.Context) (map[string]string, bool) {
	status := make(map[string]string, len(u.checks))
	healthy := true
	for _, name := range slices.Sorted(maps.Keys(u.checks)) {
		cctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		err := u.checks[name](cctx)
		cancel()
		if err != nil {
			healthy = false
			status[name] = "down"
			continue
		}
		status[name] = "up"
	}
	return status, healthy
}
