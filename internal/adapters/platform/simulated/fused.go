package simulated

import (
	"context"
	"fmt"
	"time"

	"github.com/lcalzada-xor/geotrack/internal/core/domain"
	"github.com/lcalzada-xor/geotrack/internal/core/ports"
	"github.com/lcalzada-xor/geotrack/internal/geo"
)

// FusedClient implements ports.FusedLocationClient on top of a Device.
type FusedClient struct {
	device *Device
}

var _ ports.FusedLocationClient = (*FusedClient)(nil)

// RequestLocationUpdates registers cb with req. Registering the same
// callback again replaces the previous request.
func (f *FusedClient) RequestLocationUpdates(req domain.Request, cb ports.LocationCallback) error {
	if cb == nil {
		return fmt.Errorf("nil callback")
	}
	if err := req.Validate(); err != nil {
		return err
	}

	d := f.device
	d.mu.Lock()
	defer d.mu.Unlock()

	sub, ctx, err := d.newSubscription(domain.SourceFused, req.Interval, req.MinDisplacement, req)
	if err != nil {
		return err
	}
	if old, ok := d.callbacks[cb]; ok {
		old.cancel()
	}
	d.callbacks[cb] = sub
	logSubscription("added", sub)

	if d.drive {
		d.wg.Add(1)
		go d.driveCallback(ctx, sub, cb)
	}
	return nil
}

// RemoveLocationUpdates cancels the registration of cb, if any.
func (f *FusedClient) RemoveLocationUpdates(cb ports.LocationCallback) {
	if cb == nil {
		return
	}
	d := f.device
	d.mu.Lock()
	defer d.mu.Unlock()

	if sub, ok := d.callbacks[cb]; ok {
		sub.cancel()
		delete(d.callbacks, cb)
		logSubscription("removed", sub)
	}
}

// CurrentLocation returns a single fix from the device position.
func (f *FusedClient) CurrentLocation(ctx context.Context, priority domain.Priority) (*domain.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !priority.IsValid() {
		return nil, fmt.Errorf("%w: unknown priority %q", domain.ErrInvalidRequest, priority)
	}

	d := f.device
	d.mu.Lock()
	noFix := d.noFix
	d.mu.Unlock()
	if noFix {
		return nil, nil
	}

	s := d.sample(domain.SourceFused, d.position.GetLocation())
	return &s, nil
}

// Close drops every fused registration.
func (f *FusedClient) Close() error {
	d := f.device
	d.mu.Lock()
	defer d.mu.Unlock()
	for cb, sub := range d.callbacks {
		sub.cancel()
		delete(d.callbacks, cb)
	}
	return nil
}

// driveCallback samples the position every interval and flushes the pending
// batch once the oldest sample has waited MaxWait.
func (d *Device) driveCallback(ctx context.Context, sub *subscription, cb ports.LocationCallback) {
	defer d.wg.Done()

	ticker := time.NewTicker(sub.request.Interval)
	defer ticker.Stop()

	var (
		last    *geo.Location
		pending []domain.Sample
		oldest  time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			loc := d.position.GetLocation()
			if last == nil || geo.Distance(*last, loc) >= sub.request.MinDisplacement {
				last = &loc
				if len(pending) == 0 {
					oldest = d.now()
				}
				pending = append(pending, d.sample(domain.SourceFused, loc))
			}
			if len(pending) == 0 {
				continue
			}
			if sub.request.MaxWait == 0 || d.now().Sub(oldest) >= sub.request.MaxWait-sub.request.Interval {
				cb.OnLocationResult(&domain.Result{Samples: pending})
				pending = nil
			}
		}
	}
}
