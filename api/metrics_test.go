package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsCollector_RecordCollapsesObjectIDs(t *testing.T) {
	mc := NewMetricsCollector()

	mc.Record("GET", "/api/v1/booking/608cafe595eb9dc05379b7f4", http.StatusOK, 10*time.Millisecond)
	mc.Record("GET", "/api/v1/booking/700dbfe695eb9dc05379b7aa", http.StatusNotFound, 30*time.Millisecond)

	routes := mc.Routes()
	if assert.Len(t, routes, 1, "requests for different ids aggregate under one route") {
		rm := routes[0]
		assert.Equal(t, "/api/v1/booking/{id}", rm.Path)
		assert.Equal(t, int64(2), rm.Count)
		assert.Equal(t, int64(1), rm.ErrorCount)
		assert.Equal(t, 10*time.Millisecond, rm.MinTime)
		assert.Equal(t, 30*time.Millisecond, rm.MaxTime)
		assert.Equal(t, 20*time.Millisecond, rm.AvgTime)
	}
}

func TestMetricsMiddleware(t *testing.T) {
	mc := NewMetricsCollector()

	handler := MetricsMiddleware(mc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest("GET", "/health", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusTeapot, rr.Code)

	routes := mc.Routes()
	if assert.Len(t, routes, 1) {
		assert.Equal(t, "/health", routes[0].Path)
		assert.Equal(t, int64(1), routes[0].ErrorCount)
	}
}
