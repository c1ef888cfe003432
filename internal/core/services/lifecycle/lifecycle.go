// Package lifecycle holds the bookkeeping shared by the location providers:
// audit entries, operator events, metrics and delivery counters.
package lifecycle

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lcalzada-xor/geotrack/internal/core/domain"
	"github.com/lcalzada-xor/geotrack/internal/core/ports"
	"github.com/lcalzada-xor/geotrack/internal/telemetry"
)

// Entry is one lifecycle fact to be recorded.
type Entry struct {
	Action domain.AuditAction
	Event  domain.EventType // empty for audit-only entries
	Source domain.Source
	Detail string
}

// Recorder writes lifecycle entries to the audit trail and the event
// publisher. Both sinks are optional.
type Recorder struct {
	Mode   domain.Mode
	Audit  ports.AuditService
	Events ports.EventPublisher
}

// Record flushes entries in order. Audit failures are logged, never returned.
func (r *Recorder) Record(ctx context.Context, entries ...Entry) {
	for _, e := range entries {
		target := string(r.Mode)
		if e.Source != "" {
			target = string(e.Source)
		}
		if r.Audit != nil {
			if err := r.Audit.Log(ctx, e.Action, target, e.Detail); err != nil {
				slog.Warn("audit log failed", "action", e.Action, "error", err)
			}
		}
		if r.Events != nil && e.Event != "" {
			r.Events.Publish(domain.Event{
				ID:     uuid.New().String(),
				Type:   e.Event,
				Mode:   r.Mode,
				Source: e.Source,
				Detail: e.Detail,
				Time:   time.Now().UTC(),
			})
		}
	}
}

// Denied notifies the user that permissions are missing and records it.
func (r *Recorder) Denied(ctx context.Context, notifier ports.Notifier, policy domain.PermissionPolicy) {
	telemetry.PermissionDenials.WithLabelValues(string(r.Mode), string(policy)).Inc()
	slog.Warn("location permission missing", "mode", r.Mode, "policy", policy)
	if notifier != nil {
		notifier.Notify(ctx, domain.PermissionDeniedMessage)
	}
	r.Record(ctx, Entry{
		Action: domain.ActionPermissionDenied,
		Event:  domain.EventPermissionDenied,
		Detail: "policy=" + string(policy),
	})
}

// SetActive moves the active-subscription gauge for source.
func (r *Recorder) SetActive(source domain.Source, active bool) {
	v := 0.0
	if active {
		v = 1
	}
	telemetry.SubscriptionsActive.WithLabelValues(string(r.Mode), string(source)).Set(v)
}

// Failed counts a rejected subscription request.
func (r *Recorder) Failed(source domain.Source) {
	telemetry.SubscriptionErrors.WithLabelValues(string(r.Mode), string(source)).Inc()
}

// Counters tracks samples delivered per source without locking.
type Counters struct {
	network atomic.Int64
	gps     atomic.Int64
	fused   atomic.Int64
}

// Add counts one delivered sample for source and reports it to Prometheus.
func (c *Counters) Add(mode domain.Mode, source domain.Source) {
	switch source {
	case domain.SourceNetwork:
		c.network.Add(1)
	case domain.SourceGPS:
		c.gps.Add(1)
	case domain.SourceFused:
		c.fused.Add(1)
	default:
		return
	}
	telemetry.SamplesDelivered.WithLabelValues(string(mode), string(source)).Inc()
}

// Snapshot returns the current counts keyed by source.
func (c *Counters) Snapshot() map[domain.Source]int64 {
	return map[domain.Source]int64{
		domain.SourceNetwork: c.network.Load(),
		domain.SourceGPS:     c.gps.Load(),
		domain.SourceFused:   c.fused.Load(),
	}
}
