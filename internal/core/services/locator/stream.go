package locator

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"

	"github.com/lcalzada-xor/geotrack/internal/core/domain"
	"github.com/lcalzada-xor/geotrack/internal/core/services/gate"
	"github.com/lcalzada-xor/geotrack/internal/core/services/lifecycle"
	"github.com/lcalzada-xor/geotrack/internal/telemetry"
)

// Updates streams every sample on the returned channel until ctx is done or
// the provider shuts down, then closes the channel. Subscriptions are started
// only when none are active, and they are cancelled when the last stream ends
// unless StartLocationUpdates holds them. A consumer that falls behind loses
// samples instead of stalling delivery.
func (p *Provider) Updates(ctx context.Context) (<-chan domain.Sample, error) {
	ch := make(chan domain.Sample, p.streamBuffer)
	id := p.addSink(ch)

	if !p.joinActive() {
		report, err := p.start(ctx, true)
		switch {
		case err != nil && len(report.Subscribed) == 0:
			p.removeSink(id)
			return nil, err
		case !report.PermissionGranted:
			p.removeSink(id)
			return nil, domain.ErrPermissionDenied
		case err != nil:
			slog.Warn("location stream started with missing sources", "error", err)
		}
	}

	go func() {
		defer p.streamWG.Done()
		select {
		case <-ctx.Done():
		case <-p.done:
		}
		p.removeSink(id)
		p.releaseStream(context.WithoutCancel(ctx))
	}()
	return ch, nil
}

// joinActive counts a new stream against subscriptions that are already
// running. It reports false when a fresh start is needed.
func (p *Provider) joinActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || len(p.active) == 0 || !gate.Allowed(p.platform.Permissions, p.policy) {
		return false
	}
	p.holdStreamLocked()
	return true
}

// holdStreamLocked must run under mu so that Shutdown never waits on a
// group that is still growing.
func (p *Provider) holdStreamLocked() {
	p.streams++
	p.streamWG.Add(1)
}

func (p *Provider) releaseStream(ctx context.Context) {
	p.mu.Lock()
	if p.streams > 0 {
		p.streams--
	}
	if p.streams > 0 || p.started || p.closed {
		p.mu.Unlock()
		return
	}
	removed := p.removeAllLocked()
	p.mu.Unlock()

	p.recordStop(ctx, removed)
}

// CurrentLocation asks the fused source for a single high-accuracy fix. It
// applies the same permission policy as StartLocationUpdates.
func (p *Provider) CurrentLocation(ctx context.Context) (domain.Sample, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "CurrentLocation")
	defer span.End()

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return domain.Sample{}, domain.ErrClosed
	}

	if !gate.Allowed(p.platform.Permissions, p.policy) {
		p.recorder.Denied(ctx, p.platform.Notifier, p.policy)
		return domain.Sample{}, domain.ErrPermissionDenied
	}

	sample, err := p.platform.Fused.CurrentLocation(ctx, domain.PriorityHighAccuracy)
	if err != nil {
		span.RecordError(err)
		return domain.Sample{}, fmt.Errorf("current location: %w", err)
	}
	if sample == nil {
		return domain.Sample{}, domain.ErrNoLocation
	}
	sample.Source = domain.SourceFused

	p.recorder.Record(ctx, lifecycle.Entry{
		Action: domain.ActionCurrentLocation,
		Source: domain.SourceFused,
	})
	return *sample, nil
}

func (p *Provider) addSink(ch chan domain.Sample) uint64 {
	p.sinkMu.Lock()
	defer p.sinkMu.Unlock()
	p.nextSink++
	p.sinks[p.nextSink] = ch
	return p.nextSink
}

// removeSink closes the sink channel; fanOut never sends on a removed sink
// because both hold sinkMu.
func (p *Provider) removeSink(id uint64) {
	p.sinkMu.Lock()
	defer p.sinkMu.Unlock()
	if ch, ok := p.sinks[id]; ok {
		close(ch)
		delete(p.sinks, id)
	}
}

func (p *Provider) closeSinks() {
	p.sinkMu.Lock()
	defer p.sinkMu.Unlock()
	for id, ch := range p.sinks {
		close(ch)
		delete(p.sinks, id)
	}
}

func (p *Provider) fanOut(sample domain.Sample) {
	p.sinkMu.RLock()
	defer p.sinkMu.RUnlock()
	for _, ch := range p.sinks {
		select {
		case ch <- sample:
		default:
			telemetry.SamplesDropped.WithLabelValues(string(domain.ModeObserver), "stream_full").Inc()
		}
	}
}
