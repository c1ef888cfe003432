package ports

import (
	"context"
	"time"

	"github.com/lcalzada-xor/geotrack/internal/core/domain"
)

// PermissionChecker answers whether a location permission is granted.
type PermissionChecker interface {
	Granted(p domain.Permission) bool
}

// LocationListener receives single fixes from a platform source (network or GPS).
type LocationListener interface {
	OnLocationChanged(sample domain.Sample)
}

// LocationManager is the platform service behind the network and GPS sources.
type LocationManager interface {
	IsProviderEnabled(source domain.Source) bool
	// RequestLocationUpdates starts delivery to l. Registering the same
	// listener again replaces its previous registration.
	RequestLocationUpdates(source domain.Source, interval time.Duration, minDistance float64, l LocationListener) error
	// RemoveUpdates cancels every registration of l. Unknown listeners are ignored.
	RemoveUpdates(l LocationListener)
}

// LocationCallback receives batched results from the fused provider.
// A nil result may be delivered and must be tolerated.
type LocationCallback interface {
	OnLocationResult(result *domain.Result)
}

// FusedLocationClient is the platform-optimized provider.
type FusedLocationClient interface {
	RequestLocationUpdates(req domain.Request, cb LocationCallback) error
	// RemoveLocationUpdates cancels delivery to cb. Unknown callbacks are ignored.
	RemoveLocationUpdates(cb LocationCallback)
	// CurrentLocation requests a single fresh fix. It returns a nil sample
	// when none could be obtained.
	CurrentLocation(ctx context.Context, priority domain.Priority) (*domain.Sample, error)
}

// Notifier surfaces a short transient message to the user.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

// Platform bundles the host collaborators a provider talks to. Providers that
// only use the fused source may leave Manager nil.
type Platform struct {
	Permissions PermissionChecker
	Manager     LocationManager
	Fused       FusedLocationClient
	Notifier    Notifier
}
