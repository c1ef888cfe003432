// Package poller implements the poll-based location provider. It subscribes
// to the fused source only and keeps the newest coordinates for synchronous
// reads.
package poller

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/lcalzada-xor/geotrack/internal/core/domain"
	"github.com/lcalzada-xor/geotrack/internal/core/ports"
	"github.com/lcalzada-xor/geotrack/internal/core/services/gate"
	"github.com/lcalzada-xor/geotrack/internal/core/services/lifecycle"
)

const tracerName = "poller"

// Option customises a Poller.
type Option func(*Poller)

// WithPolicy overrides the permission policy (RequireBoth by default).
func WithPolicy(policy domain.PermissionPolicy) Option {
	return func(p *Poller) { p.policy = policy }
}

// WithAudit records lifecycle actions through svc.
func WithAudit(svc ports.AuditService) Option {
	return func(p *Poller) { p.recorder.Audit = svc }
}

// WithEvents publishes lifecycle events to pub.
func WithEvents(pub ports.EventPublisher) Option {
	return func(p *Poller) { p.recorder.Events = pub }
}

// Poller is the poll-based location provider.
type Poller struct {
	platform ports.Platform
	request  domain.Request
	policy   domain.PermissionPolicy
	recorder lifecycle.Recorder
	counters lifecycle.Counters
	callback *cacheCallback

	latest atomic.Pointer[domain.Coordinates]

	mu        sync.Mutex
	active    bool
	granted   bool
	closed    bool
	lastStart time.Time
}

var _ ports.LocationService = (*Poller)(nil)

// New builds a poller. Only the permission checker, the fused client and the
// notifier of platform are used; the request is always domain.PollRequest.
func New(platform ports.Platform, opts ...Option) (*Poller, error) {
	if platform.Permissions == nil || platform.Fused == nil || platform.Notifier == nil {
		return nil, fmt.Errorf("poller: incomplete platform")
	}

	p := &Poller{
		platform: platform,
		request:  domain.PollRequest(),
		policy:   domain.RequireBoth,
		recorder: lifecycle.Recorder{Mode: domain.ModePoll},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.callback = &cacheCallback{poller: p}
	return p, nil
}

// StartLocationUpdates checks permissions and subscribes to the fused
// source. Missing permissions notify the user once and yield a report with
// PermissionGranted=false and no error. A denied restart keeps an earlier
// subscription, so Status can show Running alongside PermissionGranted=false.
func (p *Poller) StartLocationUpdates(ctx context.Context) (domain.StartReport, error) {
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

	// re-registering the same callback replaces the earlier request
	p.platform.Fused.RemoveLocationUpdates(p.callback)
	wasActive := p.active
	p.active = false

	report := domain.StartReport{PermissionGranted: true}
	var entry lifecycle.Entry
	err := p.platform.Fused.RequestLocationUpdates(p.request, p.callback)
	if err != nil {
		p.recorder.Failed(domain.SourceFused)
		p.recorder.SetActive(domain.SourceFused, false)
		err = fmt.Errorf("subscribe %s: %w", domain.SourceFused, err)
		entry = lifecycle.Entry{
			Action: domain.ActionSourceFailed,
			Event:  domain.EventSourceFailed,
			Source: domain.SourceFused,
			Detail: err.Error(),
		}
	} else {
		p.active = true
		p.recorder.SetActive(domain.SourceFused, true)
		report.Subscribed = []domain.Source{domain.SourceFused}
		entry = lifecycle.Entry{
			Action: domain.ActionStart,
			Event:  domain.EventSubscribed,
			Source: domain.SourceFused,
		}
	}
	p.lastStart = time.Now()
	p.mu.Unlock()

	entries := []lifecycle.Entry{entry}
	if wasActive && err != nil {
		entries = append([]lifecycle.Entry{unsubscribed()}, entries...)
	}
	p.recorder.Record(ctx, entries...)

	if err != nil {
		span.RecordError(err)
		slog.Error("location subscription failed", "mode", domain.ModePoll, "error", err)
		return report, err
	}
	slog.Info("location updates started", "mode", domain.ModePoll, "interval", p.request.Interval)
	return report, nil
}

// StopLocationUpdates cancels the fused subscription. The cached coordinates
// are kept. It is a no-op when nothing was started.
func (p *Poller) StopLocationUpdates(ctx context.Context) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "StopLocationUpdates")
	defer span.End()

	if p.removeAll() {
		p.recorder.Record(ctx, unsubscribed())
		slog.Info("location updates stopped", "mode", domain.ModePoll)
	}
}

// Shutdown stops updates and releases the fused client. Further starts fail
// with domain.ErrClosed.
func (p *Poller) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	var entries []lifecycle.Entry
	if p.removeAll() {
		entries = append(entries, unsubscribed())
	}
	entries = append(entries, lifecycle.Entry{Action: domain.ActionShutdown, Event: domain.EventShutdown})

	var err error
	if c, ok := p.platform.Fused.(io.Closer); ok {
		err = c.Close()
	}
	p.recorder.Record(ctx, entries...)
	return err
}

// Latitude returns the cached latitude, 0 before the first delivery.
func (p *Poller) Latitude() float64 {
	return p.Coordinates().Latitude
}

// Longitude returns the cached longitude, 0 before the first delivery.
func (p *Poller) Longitude() float64 {
	return p.Coordinates().Longitude
}

// Coordinates returns both cached values from the same delivery.
func (p *Poller) Coordinates() domain.Coordinates {
	if c := p.latest.Load(); c != nil {
		return *c
	}
	return domain.Coordinates{}
}

// Status returns an operational snapshot.
func (p *Poller) Status() domain.Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	var sources []domain.Source
	if p.active {
		sources = []domain.Source{domain.SourceFused}
	}
	return domain.Status{
		Mode:              domain.ModePoll,
		Policy:            p.policy,
		Request:           p.request,
		Running:           p.active,
		Closed:            p.closed,
		ActiveSources:     sources,
		Delivered:         p.counters.Snapshot(),
		PermissionGranted: p.granted,
		LastStart:         p.lastStart,
	}
}

// removeAll drops the fused subscription and reports whether it was active.
func (p *Poller) removeAll() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.platform.Fused.RemoveLocationUpdates(p.callback)
	was := p.active
	p.active = false
	if was {
		p.recorder.SetActive(domain.SourceFused, false)
	}
	return was
}

func (p *Poller) store(sample domain.Sample) {
	c := sample.Coordinates()
	p.latest.Store(&c)
	p.counters.Add(domain.ModePoll, domain.SourceFused)
}

func unsubscribed() lifecycle.Entry {
	return lifecycle.Entry{
		Action: domain.ActionStop,
		Event:  domain.EventUnsubscribed,
		Source: domain.SourceFused,
	}
}

// cacheCallback writes every sample of a batch to the cache in order.
type cacheCallback struct {
	poller *Poller
}

func (c *cacheCallback) OnLocationResult(result *domain.Result) {
	if result == nil {
		return
	}
	for _, s := range result.Samples {
		c.poller.store(s)
	}
	if n := len(result.Samples); n > 0 {
		slog.Debug("location cache updated", "samples", n)
	}
}
