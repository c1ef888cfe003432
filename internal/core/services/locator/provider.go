// Package locator implements the observer-based location provider. It
// subscribes to the network, GPS and fused sources and forwards every sample
// to a single observer.
package locator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/lcalzada-xor/geotrack/internal/core/domain"
	"github.com/lcalzada-xor/geotrack/internal/core/ports"
	"github.com/lcalzada-xor/geotrack/internal/core/services/gate"
	"github.com/lcalzada-xor/geotrack/internal/core/services/lifecycle"
)

const tracerName = "locator"

// DefaultStreamBuffer is the channel size used by Updates.
const DefaultStreamBuffer = 32

// Option customises a Provider.
type Option func(*Provider)

// WithRequest overrides the shared request. Interval and MinDisplacement are
// also used for the network and GPS sources.
func WithRequest(req domain.Request) Option {
	return func(p *Provider) { p.request = req }
}

// WithPolicy overrides the permission policy (RequireAny by default).
func WithPolicy(policy domain.PermissionPolicy) Option {
	return func(p *Provider) { p.policy = policy }
}

// WithAudit records lifecycle actions through svc.
func WithAudit(svc ports.AuditService) Option {
	return func(p *Provider) { p.recorder.Audit = svc }
}

// WithEvents publishes lifecycle events to pub.
func WithEvents(pub ports.EventPublisher) Option {
	return func(p *Provider) { p.recorder.Events = pub }
}

// WithStreamBuffer sets the channel size used by Updates.
func WithStreamBuffer(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.streamBuffer = n
		}
	}
}

// Provider is the observer-based location provider.
type Provider struct {
	platform     ports.Platform
	observer     ports.Observer
	request      domain.Request
	policy       domain.PermissionPolicy
	streamBuffer int
	recorder     lifecycle.Recorder
	counters     lifecycle.Counters

	network *sourceListener
	gps     *sourceListener
	fused   *fusedCallback

	mu        sync.Mutex
	active    map[domain.Source]bool
	granted   bool
	closed    bool
	lastStart time.Time

	// subscriptions are held by an explicit start and by every open stream;
	// they are cancelled once neither remains.
	started  bool
	streams  int
	streamWG sync.WaitGroup
	done     chan struct{}

	// deliverMu serializes observer calls, whichever source they come from.
	deliverMu sync.Mutex

	sinkMu   sync.RWMutex
	sinks    map[uint64]chan domain.Sample
	nextSink uint64
}

var _ ports.LocationService = (*Provider)(nil)

// New builds a provider. The platform must supply permissions, a location
// manager, a fused client and a notifier.
func New(platform ports.Platform, observer ports.Observer, opts ...Option) (*Provider, error) {
	if platform.Permissions == nil || platform.Manager == nil || platform.Fused == nil || platform.Notifier == nil {
		return nil, fmt.Errorf("locator: incomplete platform")
	}
	if observer == nil {
		return nil, fmt.Errorf("locator: observer is required")
	}

	p := &Provider{
		platform:     platform,
		observer:     observer,
		request:      domain.ObserverRequest(),
		policy:       domain.RequireAny,
		streamBuffer: DefaultStreamBuffer,
		recorder:     lifecycle.Recorder{Mode: domain.ModeObserver},
		active:       make(map[domain.Source]bool),
		sinks:        make(map[uint64]chan domain.Sample),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.request.Validate(); err != nil {
		return nil, fmt.Errorf("locator: %w", err)
	}

	p.network = &sourceListener{provider: p, source: domain.SourceNetwork}
	p.gps = &sourceListener{provider: p, source: domain.SourceGPS}
	p.fused = &fusedCallback{provider: p}
	return p, nil
}

// StartLocationUpdates checks permissions and subscribes to every enabled
// source. When permissions are missing the user is notified once and the
// report has PermissionGranted=false; this is not an error. Sources the
// platform rejects are listed in the returned error while the others stay
// subscribed.
//
// A denied start leaves earlier subscriptions in place, so Status may report
// PermissionGranted=false while Running is still true.
func (p *Provider) StartLocationUpdates(ctx context.Context) (domain.StartReport, error) {
	return p.start(ctx, false)
}

// start subscribes every enabled source. A stream holder is counted only when
// at least one source was subscribed.
func (p *Provider) start(ctx context.Context, stream bool) (domain.StartReport, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "StartLocationUpdates")
	defer span.End()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return domain.StartReport{}, domain.ErrClosed
	}

	if !gate.Allowed(p.platform.Permissions, p.policy) {
		p.granted = false
		p.mu.Unlock()
		span.SetAttributes(attribute.Bool("permission.granted", false))
		p.recorder.Denied(ctx, p.platform.Notifier, p.policy)
		return domain.StartReport{}, nil
	}

	p.granted = true
	removed := p.removeAllLocked()

	report := domain.StartReport{PermissionGranted: true}
	var (
		errs    []error
		entries []lifecycle.Entry
	)

	for _, l := range []*sourceListener{p.network, p.gps} {
		if !p.platform.Manager.IsProviderEnabled(l.source) {
			report.Skipped = append(report.Skipped, l.source)
			entries = append(entries, lifecycle.Entry{
				Action: domain.ActionSourceSkipped,
				Event:  domain.EventSourceSkipped,
				Source: l.source,
				Detail: "provider disabled",
			})
			continue
		}
		err := p.platform.Manager.RequestLocationUpdates(l.source, p.request.Interval, p.request.MinDisplacement, l)
		if err != nil {
			errs = append(errs, p.failedLocked(l.source, err, &entries))
			continue
		}
		p.activateLocked(l.source)
		report.Subscribed = append(report.Subscribed, l.source)
	}

	if err := p.platform.Fused.RequestLocationUpdates(p.request, p.fused); err != nil {
		errs = append(errs, p.failedLocked(domain.SourceFused, err, &entries))
	} else {
		p.activateLocked(domain.SourceFused)
		report.Subscribed = append(report.Subscribed, domain.SourceFused)
	}

	p.lastStart = time.Now()
	if stream {
		if len(report.Subscribed) > 0 {
			p.holdStreamLocked()
		}
	} else {
		p.started = true
	}
	p.mu.Unlock()

	// a restart replaces earlier subscriptions; only report the ones that vanished
	for _, src := range removed {
		if !slices.Contains(report.Subscribed, src) {
			entries = append(entries, unsubscribed(src))
		}
	}
	for _, src := range report.Subscribed {
		entries = append(entries, lifecycle.Entry{
			Action: domain.ActionStart,
			Event:  domain.EventSubscribed,
			Source: src,
		})
	}
	p.recorder.Record(ctx, entries...)

	span.SetAttributes(
		attribute.Bool("permission.granted", true),
		attribute.Int("sources.subscribed", len(report.Subscribed)),
	)
	slog.Info("location updates started",
		"mode", domain.ModeObserver,
		"subscribed", report.Subscribed,
		"skipped", report.Skipped,
	)

	err := errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
	}
	return report, err
}

// StopLocationUpdates cancels all three subscriptions. It is a no-op when
// nothing was started. While streams from Updates are still open the
// subscriptions stay until the last of them ends.
func (p *Provider) StopLocationUpdates(ctx context.Context) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "StopLocationUpdates")
	defer span.End()

	p.mu.Lock()
	p.started = false
	if p.streams > 0 {
		p.mu.Unlock()
		slog.Info("location updates held by open streams", "mode", domain.ModeObserver)
		return
	}
	removed := p.removeAllLocked()
	p.mu.Unlock()

	p.recordStop(ctx, removed)
}

func (p *Provider) recordStop(ctx context.Context, removed []domain.Source) {
	if len(removed) == 0 {
		return
	}
	entries := make([]lifecycle.Entry, 0, len(removed))
	for _, src := range removed {
		entries = append(entries, unsubscribed(src))
	}
	p.recorder.Record(ctx, entries...)
	slog.Info("location updates stopped", "mode", domain.ModeObserver, "sources", removed)
}

// Shutdown stops updates, closes open streams and releases the platform
// handles. Further starts fail with domain.ErrClosed.
func (p *Provider) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.started = false
	removed := p.removeAllLocked()
	p.mu.Unlock()

	close(p.done)
	p.closeSinks()
	p.streamWG.Wait()

	var errs []error
	for _, h := range []any{p.platform.Manager, p.platform.Fused} {
		if c, ok := h.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}

	entries := make([]lifecycle.Entry, 0, len(removed)+1)
	for _, src := range removed {
		entries = append(entries, unsubscribed(src))
	}
	entries = append(entries, lifecycle.Entry{Action: domain.ActionShutdown, Event: domain.EventShutdown})
	p.recorder.Record(ctx, entries...)

	return errors.Join(errs...)
}

// Status returns an operational snapshot.
func (p *Provider) Status() domain.Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	return domain.Status{
		Mode:              domain.ModeObserver,
		Policy:            p.policy,
		Request:           p.request,
		Running:           len(p.active) > 0,
		Closed:            p.closed,
		ActiveSources:     p.activeSourcesLocked(),
		Delivered:         p.counters.Snapshot(),
		PermissionGranted: p.granted,
		LastStart:         p.lastStart,
	}
}

// removeAllLocked cancels the three subscriptions unconditionally and
// returns the sources that were active.
func (p *Provider) removeAllLocked() []domain.Source {
	p.platform.Manager.RemoveUpdates(p.network)
	p.platform.Manager.RemoveUpdates(p.gps)
	p.platform.Fused.RemoveLocationUpdates(p.fused)

	removed := p.activeSourcesLocked()
	for _, src := range removed {
		p.recorder.SetActive(src, false)
	}
	clear(p.active)
	return removed
}

func (p *Provider) activateLocked(source domain.Source) {
	p.active[source] = true
	p.recorder.SetActive(source, true)
}

func (p *Provider) failedLocked(source domain.Source, err error, entries *[]lifecycle.Entry) error {
	p.recorder.Failed(source)
	slog.Error("location subscription failed", "source", source, "error", err)
	*entries = append(*entries, lifecycle.Entry{
		Action: domain.ActionSourceFailed,
		Event:  domain.EventSourceFailed,
		Source: source,
		Detail: err.Error(),
	})
	return fmt.Errorf("subscribe %s: %w", source, err)
}

func (p *Provider) activeSourcesLocked() []domain.Source {
	var out []domain.Source
	for _, src := range domain.AllSources() {
		if p.active[src] {
			out = append(out, src)
		}
	}
	return out
}

// deliver forwards one sample to the observer and any open streams.
func (p *Provider) deliver(sample domain.Sample) {
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()

	p.counters.Add(domain.ModeObserver, sample.Source)
	slog.Debug("location update", "source", sample.Source, "accuracy", sample.Accuracy)
	p.observer.OnLocationUpdate(sample)
	p.fanOut(sample)
}

func unsubscribed(src domain.Source) lifecycle.Entry {
	return lifecycle.Entry{
		Action: domain.ActionStop,
		Event:  domain.EventUnsubscribed,
		Source: src,
	}
}

// sourceListener adapts the network and GPS sources to the provider.
type sourceListener struct {
	provider *Provider
	source   domain.Source
}

func (l *sourceListener) OnLocationChanged(sample domain.Sample) {
	sample.Source = l.source
	l.provider.deliver(sample)
}

// fusedCallback forwards the newest sample of each fused batch.
type fusedCallback struct {
	provider *Provider
}

func (c *fusedCallback) OnLocationResult(result *domain.Result) {
	last := result.Last()
	if last == nil {
		return
	}
	last.Source = domain.SourceFused
	c.provider.deliver(*last)
}
