// Package mock provides testify mocks for the core ports.
package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/lcalzada-xor/geotrack/internal/core/domain"
	"github.com/lcalzada-xor/geotrack/internal/core/ports"
)

// MockNotifier is a mock of ports.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, message string) {
	m.Called(ctx, message)
}

// MockObserver is a mock of ports.Observer
type MockObserver struct {
	mock.Mock
}

func (m *MockObserver) OnLocationUpdate(sample domain.Sample) {
	m.Called(sample)
}

// MockAuditService is a mock of ports.AuditService
type MockAuditService struct {
	mock.Mock
}

func (m *MockAuditService) Log(ctx context.Context, action domain.AuditAction, target, details string) error {
	args := m.Called(ctx, action, target, details)
	return args.Error(0)
}

func (m *MockAuditService) GetLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]domain.AuditLog), args.Error(1)
}

// MockEventPublisher is a mock of ports.EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event domain.Event) {
	m.Called(event)
}

// MockLocationService is a mock of ports.LocationService
type MockLocationService struct {
	mock.Mock
}

func (m *MockLocationService) StartLocationUpdates(ctx context.Context) (domain.StartReport, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.StartReport), args.Error(1)
}

func (m *MockLocationService) StopLocationUpdates(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockLocationService) Shutdown(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockLocationService) Status() domain.Status {
	args := m.Called()
	return args.Get(0).(domain.Status)
}

// MockPermissionChecker is a mock of ports.PermissionChecker
type MockPermissionChecker struct {
	mock.Mock
}

func (m *MockPermissionChecker) Granted(p domain.Permission) bool {
	args := m.Called(p)
	return args.Bool(0)
}

// Ensure interface compliance
var (
	_ ports.Notifier          = (*MockNotifier)(nil)
	_ ports.Observer          = (*MockObserver)(nil)
	_ ports.AuditService      = (*MockAuditService)(nil)
	_ ports.EventPublisher    = (*MockEventPublisher)(nil)
	_ ports.LocationService   = (*MockLocationService)(nil)
	_ ports.PermissionChecker = (*MockPermissionChecker)(nil)
)
