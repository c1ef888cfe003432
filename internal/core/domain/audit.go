package domain

import (
	"time"
)

// AuditAction represents a type-safe action identifier for the audit log.
type AuditAction string

// Provider lifecycle actions
const (
	ActionStart            AuditAction = "UPDATES_STARTED"
	ActionStop             AuditAction = "UPDATES_STOPPED"
	ActionPermissionDenied AuditAction = "PERMISSION_DENIED"
	ActionSourceSkipped    AuditAction = "SOURCE_SKIPPED"
	ActionSourceFailed     AuditAction = "SOURCE_FAILED"
	ActionShutdown         AuditAction = "SHUTDOWN"
	ActionCurrentLocation  AuditAction = "CURRENT_LOCATION"
	ActionInfo             AuditAction = "INFO"
)

// AuditLog is a record of a provider lifecycle action. It never holds
// coordinates.
type AuditLog struct {
	ID        uint        `json:"id"`
	UserID    string      `json:"user_id"`
	Username  string      `json:"username"`
	Action    AuditAction `json:"action"`
	Target    string      `json:"target"` // source or mode affected
	Details   string      `json:"details"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewAuditLog is the designated factory for creating valid AuditLog entities.
func NewAuditLog(userID, username string, action AuditAction, target, details string) (*AuditLog, error) {
	if userID == "" && username == "" {
		return nil, ErrMissingUser
	}

	if !isValidAction(action) {
		return nil, ErrInvalidAction
	}

	return &AuditLog{
		UserID:    userID,
		Username:  username,
		Action:    action,
		Target:    target,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}, nil
}

func isValidAction(action AuditAction) bool {
	switch action {
	case ActionStart, ActionStop, ActionPermissionDenied, ActionSourceSkipped,
		ActionSourceFailed, ActionShutdown, ActionCurrentLocation, ActionInfo:
		return true
	}
	return false
}
