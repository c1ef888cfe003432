package simulated

import (
	"context"
	"fmt"
	"time"

	"github.com/lcalzada-xor/geotrack/internal/core/domain"
	"github.com/lcalzada-xor/geotrack/internal/core/ports"
	"github.com/lcalzada-xor/geotrack/internal/geo"
)

// LocationManager implements ports.LocationManager on top of a Device.
type LocationManager struct {
	device *Device
}

var _ ports.LocationManager = (*LocationManager)(nil)

// IsProviderEnabled reports whether the network or GPS source is on.
func (m *LocationManager) IsProviderEnabled(source domain.Source) bool {
	m.device.mu.Lock()
	defer m.device.mu.Unlock()
	return m.device.enabled[source]
}

// RequestLocationUpdates registers l for source. A listener that is already
// registered is moved to the new source and parameters.
func (m *LocationManager) RequestLocationUpdates(source domain.Source, interval time.Duration, minDistance float64, l ports.LocationListener) error {
	if source != domain.SourceNetwork && source != domain.SourceGPS {
		return fmt.Errorf("location manager does not serve %q", source)
	}
	if l == nil {
		return fmt.Errorf("nil listener")
	}

	d := m.device
	d.mu.Lock()
	defer d.mu.Unlock()

	sub, ctx, err := d.newSubscription(source, interval, minDistance, domain.Request{})
	if err != nil {
		return err
	}
	if old, ok := d.listeners[l]; ok {
		old.cancel()
	}
	d.listeners[l] = sub
	logSubscription("added", sub)

	if d.drive {
		d.wg.Add(1)
		go d.driveListener(ctx, sub, l)
	}
	return nil
}

// RemoveUpdates cancels the registration of l, if any.
func (m *LocationManager) RemoveUpdates(l ports.LocationListener) {
	if l == nil {
		return
	}
	d := m.device
	d.mu.Lock()
	defer d.mu.Unlock()

	if sub, ok := d.listeners[l]; ok {
		sub.cancel()
		delete(d.listeners, l)
		logSubscription("removed", sub)
	}
}

// Close drops every network and GPS registration.
func (m *LocationManager) Close() error {
	d := m.device
	d.mu.Lock()
	defer d.mu.Unlock()
	for l, sub := range d.listeners {
		sub.cancel()
		delete(d.listeners, l)
	}
	return nil
}

func (d *Device) driveListener(ctx context.Context, sub *subscription, l ports.LocationListener) {
	defer d.wg.Done()

	ticker := time.NewTicker(sub.interval)
	defer ticker.Stop()

	var last *geo.Location
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.mu.Lock()
			enabled := d.enabled[sub.source]
			d.mu.Unlock()
			if !enabled {
				continue
			}

			loc := d.position.GetLocation()
			if last != nil && geo.Distance(*last, loc) < sub.minDistance {
				continue
			}
			last = &loc
			l.OnLocationChanged(d.sample(sub.source, loc))
		}
	}
}
