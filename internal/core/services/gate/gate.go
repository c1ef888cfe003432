// Package gate decides whether location updates may be requested, based on
// the granted permissions and on which platform sources are switched on.
package gate

import (
	"context"

	"github.com/lcalzada-xor/geotrack/internal/core/domain"
	"github.com/lcalzada-xor/geotrack/internal/core/ports"
)

// Allowed evaluates policy against the checker's coarse and fine grants.
func Allowed(checker ports.PermissionChecker, policy domain.PermissionPolicy) bool {
	if checker == nil {
		return false
	}
	return policy.Allows(
		checker.Granted(domain.PermissionCoarse),
		checker.Granted(domain.PermissionFine),
	)
}

// LocationEnabled reports whether GPS or network positioning is switched on.
func LocationEnabled(manager ports.LocationManager) bool {
	if manager == nil {
		return false
	}
	return manager.IsProviderEnabled(domain.SourceGPS) ||
		manager.IsProviderEnabled(domain.SourceNetwork)
}

// Actions are the three outcomes of Handle. Nil actions are skipped.
type Actions struct {
	OnReady      func(ctx context.Context)
	OnNotEnabled func(ctx context.Context)
	OnNotGranted func(ctx context.Context)
}

// Outcome names the branch Handle took.
type Outcome string

const (
	Ready      Outcome = "ready"
	NotEnabled Outcome = "not_enabled"
	NotGranted Outcome = "not_granted"
)

// Handle runs exactly one of the actions: not granted first, then location
// disabled, otherwise ready.
func Handle(ctx context.Context, checker ports.PermissionChecker, manager ports.LocationManager, policy domain.PermissionPolicy, actions Actions) Outcome {
	switch {
	case !Allowed(checker, policy):
		run(ctx, actions.OnNotGranted)
		return NotGranted
	case !LocationEnabled(manager):
		run(ctx, actions.OnNotEnabled)
		return NotEnabled
	default:
		run(ctx, actions.OnReady)
		return Ready
	}
}

func run(ctx context.Context, fn func(context.Context)) {
	if fn != nil {
		fn(ctx)
	}
}
