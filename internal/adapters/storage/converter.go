package storage

import (
	"github.com/lcalzada-xor/geotrack/internal/core/domain"
)

// toModel converts an audit entry to its database model.
func toModel(l domain.AuditLog) AuditLogModel {
	return AuditLogModel{
		ID:        l.ID,
		UserID:    l.UserID,
		Username:  l.Username,
		Action:    string(l.Action),
		Target:    l.Target,
		Details:   l.Details,
		Timestamp: l.Timestamp,
	}
}

// toDomain converts a database model to a domain entity.
func toDomain(m AuditLogModel) domain.AuditLog {
	return domain.AuditLog{
		ID:        m.ID,
		UserID:    m.UserID,
		Username:  m.Username,
		Action:    domain.AuditAction(m.Action),
		Target:    m.Target,
		Details:   m.Details,
		Timestamp: m.Timestamp.UTC(),
	}
}
