package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// Metrics stores application metrics
type Metrics struct {
	RequestsTotal      uint64
	RequestsInProgress uint64
	RequestsSuccess    uint64
	RequestsFailed     uint64
	ScansTotal         uint64
	ScansRunning       uint64
	ScansFailed        uint64
	ScansTimedOut      uint64
	StartTime          time.Time
}

var globalMetrics = &Metrics{
	StartTime: time.Now(),
}

func IncrementRequests() { atomic.AddUint64(&globalMetrics.RequestsTotal, 1) }
func IncrementInProgress() { atomic.AddUint64(&globalMetrics.RequestsInProgress, 1) }
func DecrementInProgress() { atomic.AddUint64(&globalMetrics.RequestsInProgress, ^uint64(0)) }
func IncrementSuccess() { atomic.AddUint64(&globalMetrics.RequestsSuccess, 1) }
func IncrementFailed() { atomic.AddUint64(&globalMetrics.RequestsFailed, 1) }
func IncrementScans() { atomic.AddUint64(&globalMetrics.ScansTotal, 1) }
func IncrementScansRunning() { atomic.AddUint64(&globalMetrics.ScansRunning, 1) }
func DecrementScansRunning() { atomic.AddUint64(&globalMetrics.ScansRunning, ^uint64(0)) }
func IncrementScansFailed() { atomic.AddUint64(&globalMetrics.ScansFailed, 1) }
func IncrementScansTimedOut() { atomic.AddUint64(&globalMetrics.ScansTimedOut, 1) }

// GetMetrics returns current metrics
func GetMetrics() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"requests_total":       atomic.LoadUint64(&globalMetrics.RequestsTotal),
		"requests_in_progress": atomic.LoadUint64(&globalMetrics.RequestsInProgress),
		"requests_success":     atomic.LoadUint64(&globalMetrics.RequestsSuccess),
		"requests_failed":      atomic.LoadUint64(&globalMetrics.RequestsFailed),
		"scans_total":          atomic.LoadUint64(&globalMetrics.ScansTotal),
		"scans_running":        atomic.LoadUint64(&globalMetrics.ScansRunning),
		"scans_failed":         atomic.LoadUint64(&globalMetrics.ScansFailed),
		"scans_timed_out":      atomic.LoadUint64(&globalMetrics.ScansTimedOut),
		"uptime_seconds":       time.Since(globalMetrics.StartTime).Seconds(),
		"memory": map[string]interface{}{
			"alloc_bytes":       m.Alloc,
			"total_alloc_bytes": m.TotalAlloc,
			"sys_bytes":         m.Sys,
			"num_gc":            m.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}

// MetricsMiddleware tracks request metrics
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		IncrementRequests()
		IncrementInProgress()
		defer DecrementInProgress()

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		// 202 counts as success: the scan ran, indexing is just slow
		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			IncrementSuccess()
		} else {
			IncrementFailed()
		}
	})
}

// MetricsHandler returns metrics as JSON
func MetricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(GetMetrics())
}
