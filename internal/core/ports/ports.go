package ports

import (
	"context"

	"github.com/lcalzada-xor/geotrack/internal/core/domain"
)

// Observer is notified of every sample received by the observer-based provider.
type Observer interface {
	OnLocationUpdate(sample domain.Sample)
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(sample domain.Sample)

// OnLocationUpdate calls f(sample).
func (f ObserverFunc) OnLocationUpdate(sample domain.Sample) { f(sample) }

// LocationService is the lifecycle surface shared by both provider flavours.
type LocationService interface {
	// StartLocationUpdates subscribes according to the permission policy.
	// Denied permissions are not an error: the user is notified and the
	// report says so.
	StartLocationUpdates(ctx context.Context) (domain.StartReport, error)
	// StopLocationUpdates cancels every subscription. Safe to call at any time.
	StopLocationUpdates(ctx context.Context)
	// Shutdown stops updates and releases platform handles.
	Shutdown(ctx context.Context) error
	Status() domain.Status
}

// EventPublisher fans provider lifecycle events out to interested parties.
type EventPublisher interface {
	Publish(event domain.Event)
}
