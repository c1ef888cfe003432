// Package simulated implements the host platform ports in memory. It is used
// for mock mode and by tests, which can either let subscriptions tick on
// their own or push samples through Emit and EmitResult.
package simulated

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lcalzada-xor/geotrack/internal/core/domain"
	"github.com/lcalzada-xor/geotrack/internal/core/ports"
	"github.com/lcalzada-xor/geotrack/internal/geo"
)

// Options configures a Device.
type Options struct {
	Coarse         bool
	Fine           bool
	NetworkEnabled bool
	GPSEnabled     bool
	// Drive starts a ticker per subscription that emits positions read from
	// Position. Without it samples only arrive through Emit/EmitResult.
	Drive    bool
	Position geo.Provider
}

// Device is an in-memory positioning platform.
type Device struct {
	mu        sync.Mutex
	grants    map[domain.Permission]bool
	enabled   map[domain.Source]bool
	failures  map[domain.Source]error
	listeners map[ports.LocationListener]*subscription
	callbacks map[ports.LocationCallback]*subscription
	noFix     bool
	closed    bool

	drive    bool
	position geo.Provider
	now      func() time.Time
	wg       sync.WaitGroup
}

type subscription struct {
	id          string
	source      domain.Source
	interval    time.Duration
	minDistance float64
	request     domain.Request
	cancel      context.CancelFunc
}

// NewDevice creates a simulated device.
func NewDevice(opts Options) *Device {
	position := opts.Position
	if position == nil {
		position = geo.NewStaticProvider(0, 0)
	}
	return &Device{
		grants: map[domain.Permission]bool{
			domain.PermissionCoarse: opts.Coarse,
			domain.PermissionFine:   opts.Fine,
		},
		enabled: map[domain.Source]bool{
			domain.SourceNetwork: opts.NetworkEnabled,
			domain.SourceGPS:     opts.GPSEnabled,
			domain.SourceFused:   true,
		},
		failures:  make(map[domain.Source]error),
		listeners: make(map[ports.LocationListener]*subscription),
		callbacks: make(map[ports.LocationCallback]*subscription),
		drive:     opts.Drive,
		position:  position,
		now:       time.Now,
	}
}

// Granted implements ports.PermissionChecker.
func (d *Device) Granted(p domain.Permission) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.grants[p]
}

// SetGranted changes a permission grant.
func (d *Device) SetGranted(p domain.Permission, granted bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.grants[p] = granted
}

// SetEnabled switches a network or GPS source on or off.
func (d *Device) SetEnabled(source domain.Source, enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled[source] = enabled
}

// FailSubscriptions makes subsequent subscription requests for source fail
// with err. A nil err clears the failure.
func (d *Device) FailSubscriptions(source domain.Source, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.failures, source)
		return
	}
	d.failures[source] = err
}

// SetNoFix makes CurrentLocation report that no fix is available.
func (d *Device) SetNoFix(noFix bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.noFix = noFix
}

// Manager returns the network/GPS view of the device.
func (d *Device) Manager() *LocationManager {
	return &LocationManager{device: d}
}

// Fused returns the fused provider view of the device.
func (d *Device) Fused() *FusedClient {
	return &FusedClient{device: d}
}

// Active returns the number of live subscriptions for source.
func (d *Device) Active(source domain.Source) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for _, s := range d.listeners {
		if s.source == source {
			n++
		}
	}
	for _, s := range d.callbacks {
		if s.source == source {
			n++
		}
	}
	return n
}

// ActiveCount returns the number of live subscriptions over all sources.
func (d *Device) ActiveCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.listeners) + len(d.callbacks)
}

// Emit delivers sample to every subscriber of source. Fused subscribers get
// it wrapped in a single-sample result. It returns the number of receivers.
func (d *Device) Emit(source domain.Source, sample domain.Sample) int {
	sample.Source = source
	if sample.Time.IsZero() {
		sample.Time = d.now()
	}
	if source == domain.SourceFused {
		return d.EmitResult(&domain.Result{Samples: []domain.Sample{sample}})
	}

	d.mu.Lock()
	var targets []ports.LocationListener
	for l, s := range d.listeners {
		if s.source == source {
			targets = append(targets, l)
		}
	}
	d.mu.Unlock()

	for _, l := range targets {
		l.OnLocationChanged(sample)
	}
	return len(targets)
}

// EmitResult delivers result, which may be nil, to every fused subscriber.
func (d *Device) EmitResult(result *domain.Result) int {
	d.mu.Lock()
	targets := make([]ports.LocationCallback, 0, len(d.callbacks))
	for cb := range d.callbacks {
		targets = append(targets, cb)
	}
	d.mu.Unlock()

	for _, cb := range targets {
		cb.OnLocationResult(result)
	}
	return len(targets)
}

// Close cancels every subscription and waits for driving goroutines to exit.
func (d *Device) Close() error {
	d.mu.Lock()
	d.closed = true
	for l, s := range d.listeners {
		s.cancel()
		delete(d.listeners, l)
	}
	for cb, s := range d.callbacks {
		s.cancel()
		delete(d.callbacks, cb)
	}
	d.mu.Unlock()

	d.wg.Wait()
	return nil
}

// newSubscription must be called with d.mu held.
func (d *Device) newSubscription(source domain.Source, interval time.Duration, minDistance float64, req domain.Request) (*subscription, context.Context, error) {
	if d.closed {
		return nil, nil, fmt.Errorf("%s subscription rejected: %w", source, domain.ErrClosed)
	}
	if err, ok := d.failures[source]; ok {
		return nil, nil, fmt.Errorf("%s subscription rejected: %w", source, err)
	}
	if interval <= 0 {
		return nil, nil, fmt.Errorf("%s subscription rejected: %w", source, domain.ErrInvalidRequest)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &subscription{
		id:          uuid.New().String(),
		source:      source,
		interval:    interval,
		minDistance: minDistance,
		request:     req,
		cancel:      cancel,
	}, ctx, nil
}

func (d *Device) sample(source domain.Source, loc geo.Location) domain.Sample {
	accuracy := 5.0
	switch source {
	case domain.SourceNetwork:
		accuracy = 40
	case domain.SourceFused:
		accuracy = 3
	}
	return domain.Sample{
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Accuracy:  accuracy,
		Source:    source,
		Time:      d.now(),
	}
}

func logSubscription(action string, s *subscription) {
	slog.Debug("simulated subscription "+action,
		"id", s.id,
		"source", s.source,
		"interval", s.interval,
		"min_distance", s.minDistance,
	)
}
