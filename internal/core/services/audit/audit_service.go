package audit

import (
	"context"

	"github.com/lcalzada-xor/geotrack/internal/core/domain"
	"github.com/lcalzada-xor/geotrack/internal/core/ports"
)

// SystemActor is recorded when no actor is attached to the context.
const SystemActor = "system"

// Actor identifies who triggered an audited action.
type Actor struct {
	ID       string
	Username string
}

type actorKey struct{}

// WithActor attaches actor to ctx for later Log calls.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor attached to ctx, or the system actor.
func ActorFrom(ctx context.Context) Actor {
	if a, ok := ctx.Value(actorKey{}).(Actor); ok && (a.ID != "" || a.Username != "") {
		return a
	}
	return Actor{ID: SystemActor, Username: SystemActor}
}

type AuditService struct {
	repo ports.AuditRepository
}

var _ ports.AuditService = (*AuditService)(nil)

func NewAuditService(repo ports.AuditRepository) *AuditService {
	return &AuditService{repo: repo}
}

func (s *AuditService) Log(ctx context.Context, action domain.AuditAction, target, details string) error {
	actor := ActorFrom(ctx)

	// Use Domain Factory to ensure business rules
	entry, err := domain.NewAuditLog(actor.ID, actor.Username, action, target, details)
	if err != nil {
		return err
	}

	return s.repo.SaveAuditLog(ctx, *entry)
}

func (s *AuditService) GetLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	return s.repo.ListAuditLogs(ctx, limit)
}
