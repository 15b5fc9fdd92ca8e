package api

import (
	"net/http"
	"regexp"
	"sync"
	"time"
)

// RouteMetrics aggregates request metrics for a single method+path pair
type RouteMetrics struct {
	Method      string        `json:"method"`
	Path        string        `json:"path"`
	Count       int64         `json:"count"`
	ErrorCount  int64         `json:"errorCount"`
	TotalTime   time.Duration `json:"totalTime"`
	AvgTime     time.Duration `json:"avgTime"`
	MinTime     time.Duration `json:"minTime"`
	MaxTime     time.Duration `json:"maxTime"`
	LastRequest time.Time     `json:"lastRequest"`
}

// MetricsCollector collects and aggregates request metrics in process
type MetricsCollector struct {
	mu           sync.RWMutex
	routeMetrics map[string]*RouteMetrics
}

var objectIDPattern = regexp.MustCompile(`[0-9a-f]{24}`)

// NewMetricsCollector creates an empty collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		routeMetrics: make(map[string]*RouteMetrics),
	}
}

// Record adds one observation for the given route
func (mc *MetricsCollector) Record(method, path string, status int, duration time.Duration) {
	// Collapse document ids so each route aggregates as one entry
	path = objectIDPattern.ReplaceAllString(path, "{id}")
	key := method + " " + path

	mc.mu.Lock()
	defer mc.mu.Unlock()

	rm, ok := mc.routeMetrics[key]
	if !ok {
		rm = &RouteMetrics{Method: method, Path: path, MinTime: duration}
		mc.routeMetrics[key] = rm
	}

	rm.Count++
	if status >= http.StatusBadRequest {
		rm.ErrorCount++
	}
	rm.TotalTime += duration
	rm.AvgTime = rm.TotalTime / time.Duration(rm.Count)
	if duration < rm.MinTime {
		rm.MinTime = duration
	}
	if duration > rm.MaxTime {
		rm.MaxTime = duration
	}
	rm.LastRequest = time.Now()
}

// Routes returns a snapshot of all aggregated route metrics
func (mc *MetricsCollector) Routes() []*RouteMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	out := make([]*RouteMetrics, 0, len(mc.routeMetrics))
	for _, rm := range mc.routeMetrics {
		cp := *rm
		out = append(out, &cp)
	}
	return out
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// MetricsMiddleware records per-route timings into the collector
func MetricsMiddleware(mc *MetricsCollector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			mc.Record(r.Method, r.URL.Path, rec.status, time.Since(start))
		})
	}
}
