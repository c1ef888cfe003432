package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/geotrack/internal/core/domain"
	"github.com/lcalzada-xor/geotrack/internal/core/services/audit"
	mocks "github.com/lcalzada-xor/geotrack/internal/mock"
)

func TestLocationHandler_HandleStart(t *testing.T) {
	tests := []struct {
		name           string
		report         domain.StartReport
		err            error
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "all sources",
			report:         domain.StartReport{PermissionGranted: true, Subscribed: domain.AllSources()},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "permission denied",
			report:         domain.StartReport{},
			expectedStatus: http.StatusForbidden,
			expectedError:  "location permission denied",
		},
		{
			name:           "partial failure",
			report:         domain.StartReport{PermissionGranted: true, Subscribed: []domain.Source{domain.SourceFused}},
			err:            errors.New("subscribe gps: boom"),
			expectedStatus: http.StatusOK,
			expectedError:  "subscribe gps: boom",
		},
		{
			name:           "nothing subscribed",
			report:         domain.StartReport{PermissionGranted: true},
			err:            errors.New("subscribe fused: boom"),
			expectedStatus: http.StatusBadGateway,
			expectedError:  "subscribe fused: boom",
		},
		{
			name:           "closed",
			err:            domain.ErrClosed,
			expectedStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mocks.MockLocationService)
			svc.On("StartLocationUpdates", mock.Anything).Return(tt.report, tt.err)
			h := NewLocationHandler(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/location/start", nil)
			rr := httptest.NewRecorder()
			h.HandleStart(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			if tt.err == domain.ErrClosed {
				return
			}
			var body map[string]any
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, tt.report.PermissionGranted, body["permission_granted"])
			if tt.expectedError != "" {
				assert.Equal(t, tt.expectedError, body["error"])
			} else {
				assert.NotContains(t, body, "error")
			}
		})
	}
}

func TestLocationHandler_StartRecordsOperator(t *testing.T) {
	svc := new(mocks.MockLocationService)
	svc.On("StartLocationUpdates", mock.Anything).Return(domain.StartReport{PermissionGranted: true}, nil)
	h := NewLocationHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/location/start", nil)
	req.Header.Set(OperatorHeader, "alice")
	rr := httptest.NewRecorder()
	h.HandleStart(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	ctx := svc.Calls[0].Arguments.Get(0).(context.Context)
	assert.Equal(t, audit.Actor{ID: "alice", Username: "alice"}, audit.ActorFrom(ctx))
}

func TestLocationHandler_MethodNotAllowed(t *testing.T) {
	h := NewLocationHandler(new(mocks.MockLocationService))

	for _, fn := range []http.HandlerFunc{h.HandleStart, h.HandleStop} {
		rr := httptest.NewRecorder()
		fn(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	}
}

func TestLocationHandler_HandleStop(t *testing.T) {
	svc := new(mocks.MockLocationService)
	svc.On("StopLocationUpdates", mock.Anything).Return()
	h := NewLocationHandler(svc)

	rr := httptest.NewRecorder()
	h.HandleStop(rr, httptest.NewRequest(http.MethodPost, "/api/location/stop", nil))

	assert.Equal(t, http.StatusNoContent, rr.Code)
	svc.AssertNumberOfCalls(t, "StopLocationUpdates", 1)
}

func TestLocationHandler_HandleStatus(t *testing.T) {
	svc := new(mocks.MockLocationService)
	svc.On("Status").Return(domain.Status{
		Mode:          domain.ModePoll,
		Policy:        domain.RequireBoth,
		Running:       true,
		ActiveSources: []domain.Source{domain.SourceFused},
		Delivered:     map[domain.Source]int64{domain.SourceFused: 4},
	})
	h := NewLocationHandler(svc)

	rr := httptest.NewRecorder()
	h.HandleStatus(rr, httptest.NewRequest(http.MethodGet, "/api/location/status", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	var status domain.Status
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, domain.ModePoll, status.Mode)
	assert.True(t, status.Running)
	assert.NotContains(t, rr.Body.String(), "latitude")
}

func TestLocationHandler_HandleSource(t *testing.T) {
	svc := new(mocks.MockLocationService)
	svc.On("Status").Return(domain.Status{
		ActiveSources: []domain.Source{domain.SourceGPS},
		Delivered:     map[domain.Source]int64{domain.SourceGPS: 7},
	})
	h := NewLocationHandler(svc)
	r := mux.NewRouter()
	r.HandleFunc("/api/location/sources/{source}", h.HandleSource)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/location/sources/gps", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, true, body["active"])
	assert.Equal(t, float64(7), body["delivered"])

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/location/sources/wifi", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAuditHandler_HandleGetLogs(t *testing.T) {
	svc := new(mocks.MockAuditService)
	logs := []domain.AuditLog{{ID: 1, Action: domain.ActionStart, Target: "gps"}}
	svc.On("GetLogs", mock.Anything, 100).Return(logs, nil)
	svc.On("GetLogs", mock.Anything, 5).Return(logs, nil)
	svc.On("GetLogs", mock.Anything, 1000).Return([]domain.AuditLog{}, nil)
	h := NewAuditHandler(svc)

	for _, target := range []string{"/api/audit-logs", "/api/audit-logs?limit=5", "/api/audit-logs?limit=50000"} {
		rr := httptest.NewRecorder()
		h.HandleGetLogs(rr, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusOK, rr.Code, target)
	}
	svc.AssertExpectations(t)

	rr := httptest.NewRecorder()
	h.HandleGetLogs(rr, httptest.NewRequest(http.MethodGet, "/api/audit-logs?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	h.HandleGetLogs(rr, httptest.NewRequest(http.MethodPost, "/api/audit-logs", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestAuditHandler_Error(t *testing.T) {
	svc := new(mocks.MockAuditService)
	svc.On("GetLogs", mock.Anything, 100).Return([]domain.AuditLog(nil), errors.New("db locked"))
	h := NewAuditHandler(svc)

	rr := httptest.NewRecorder()
	h.HandleGetLogs(rr, httptest.NewRequest(http.MethodGet, "/api/audit-logs", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
