package storage

import (
	"context"

	"github.com/lcalzada-xor/geotrack/internal/core/domain"
	"github.com/lcalzada-xor/geotrack/internal/core/ports"
)

// Ensure compliance
var _ ports.AuditRepository = (*SQLiteAdapter)(nil)

// SaveAuditLog inserts one audit entry.
func (a *SQLiteAdapter) SaveAuditLog(ctx context.Context, log domain.AuditLog) error {
	model := toModel(log)
	return a.db.WithContext(ctx).Create(&model).Error
}

// ListAuditLogs returns the newest entries first. A non-positive limit
// returns everything.
func (a *SQLiteAdapter) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	query := a.db.WithContext(ctx).Order("timestamp desc, id desc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var models []AuditLogModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	logs := make([]domain.AuditLog, len(models))
	for i, m := range models {
		logs[i] = toDomain(m)
	}
	return logs, nil
}
