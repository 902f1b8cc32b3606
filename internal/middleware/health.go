package middleware

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"time"
)

const (
	checkTimeout = 2 * time.Second
	probeTimeout = 5 * time.Second
)

// HealthChecker is one dependency probed by /health.
type HealthChecker interface {
	Check(ctx context.Context) error
}

// DatabaseHealthChecker pings the scan history database.
type DatabaseHealthChecker struct {
	DB *sql.DB
}

func (d *DatabaseHealthChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	return d.DB.PingContext(ctx)
}

// ExecutableChecker reports whether a binary the scan lifecycle shells out to
// (sonar-scanner, docker, git) resolves on this host.
type ExecutableChecker struct {
	Path string
}

func (e *ExecutableChecker) Check(ctx context.Context) error {
	if _, err := exec.LookPath(e.Path); err != nil {
		return fmt.Errorf("executable %s: %w", e.Path, err)
	}
	return nil
}

// WritableDirChecker creates and removes a scratch file in every dir, the
// same thing a workspace or upload does first.
type WritableDirChecker struct {
	Dirs []string
}

func (c *WritableDirChecker) Check(ctx context.Context) error {
	for _, dir := range c.Dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("workspace dir %s: %w", dir, err)
		}
		f, err := os.CreateTemp(dir, ".healthcheck-*")
		if err != nil {
			return fmt.Errorf("workspace dir %s not writable: %w", dir, err)
		}
		name := f.Name()
		f.Close()
		if err := os.Remove(name); err != nil {
			return fmt.Errorf("workspace dir %s: %w", dir, err)
		}
	}
	return nil
}

type healthReport struct {
	Status string                 `json:"status"`
	Time   time.Time              `json:"time"`
	Checks map[string]checkResult `json:"checks"`
}

type checkResult struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// HealthHandler probes every checker concurrently. Any failure turns the
// whole report "degraded" with a 503.
func HealthHandler(checkers map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		defer cancel()

		rep := healthReport{
			Status: "ok",
			Time:   time.Now().UTC(),
			Checks: make(map[string]checkResult, len(checkers)),
		}
		var (
			mu sync.Mutex
			wg sync.WaitGroup
		)
		for name, checker := range checkers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				start := time.Now()
				err := checker.Check(ctx)
				res := checkResult{Status: "ok", LatencyMS: time.Since(start).Milliseconds()}
				if err != nil {
					res.Status = "failing"
					res.Error = err.Error()
				}
				mu.Lock()
				rep.Checks[name] = res
				mu.Unlock()
			}()
		}
		wg.Wait()

		status := http.StatusOK
		for _, res := range rep.Checks {
			if res.Status != "ok" {
				rep.Status = "degraded"
				status = http.StatusServiceUnavailable
				break
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(rep)
	}
}

// LivenessHandler answers as long as the process serves HTTP.
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"alive"}` + "\n"))
}
