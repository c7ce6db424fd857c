package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/textdispatch/internal/pkg/httputil"
)

// HealthStatus represents the overall health of the system.
type HealthStatus struct {
	Status  string                    `json:"status"` // "healthy", "degraded", "unhealthy"
	Version string                    `json:"version"`
	Uptime  string                    `json:"uptime"`
	Checks  map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck represents the health of a single component.
type ComponentCheck struct {
	Status  string `json:"status"` // "up", "down", "degraded", "not_configured"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// Probe checks one dependency. A nil Ping reports "not_configured". A
// critical probe that is down makes the service unhealthy.
type Probe struct {
	Name     string
	Ping     func(ctx context.Context) error
	Critical bool
	Timeout  time.Duration
	Slow     time.Duration
}

// DatabaseProbe pings PostgreSQL.
func DatabaseProbe(db *sql.DB) Probe {
	p := Probe{Name: "database", Timeout: 3 * time.Second, Slow: time.Second}
	if db != nil {
		p.Ping = db.PingContext
	}
	return p
}

// RedisProbe pings Redis.
func RedisProbe(client *redis.Client) Probe {
	p := Probe{Name: "redis", Timeout: 2 * time.Second, Slow: 500 * time.Millisecond}
	if client != nil {
		p.Ping = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	return p
}

// HealthChecker runs dependency probes for the health endpoints.
type HealthChecker struct {
	probes    []Probe
	startTime time.Time
}

func NewHealthChecker(probes ...Probe) *HealthChecker {
	return &HealthChecker{probes: probes, startTime: time.Now()}
}

const healthVersion = "1.0.0"

// HandleHealth returns the health of every component. Always 200; the body
// carries the status.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	httputil.OK(w, HealthStatus{
		Status:  hc.overall(checks),
		Version: healthVersion,
		Uptime:  formatUptime(time.Since(hc.startTime)),
		Checks:  checks,
	})
}

// HandleLiveness always returns 200 while the process is running.
//
//	GET /health/live
func (hc *HealthChecker) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]interface{}{
		"status": "alive",
		"uptime": formatUptime(time.Since(hc.startTime)),
	})
}

// HandleReadiness returns 503 when a critical dependency is down.
//
//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	overall := hc.overall(checks)

	ready := overall != "unhealthy"
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	httputil.JSON(w, status, map[string]interface{}{
		"ready":  ready,
		"status": overall,
		"checks": checks,
	})
}

func (hc *HealthChecker) runAllChecks(ctx context.Context) map[string]ComponentCheck {
	type result struct {
		name  string
		check ComponentCheck
	}
	ch := make(chan result, len(hc.probes))
	for _, p := range hc.probes {
		go func(p Probe) { ch <- result{p.Name, runProbe(ctx, p)} }(p)
	}

	checks := make(map[string]ComponentCheck, len(hc.probes))
	for range hc.probes {
		r := <-ch
		checks[r.name] = r.check
	}
	return checks
}

func runProbe(ctx context.Context, p Probe) ComponentCheck {
	if p.Ping == nil {
		return ComponentCheck{Status: "not_configured"}
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := p.Ping(pingCtx)
	latency := time.Since(start)

	if err != nil {
		return ComponentCheck{
			Status:  "down",
			Latency: latency.String(),
			Message: fmt.Sprintf("ping failed: %v", err),
		}
	}
	if p.Slow > 0 && latency > p.Slow {
		return ComponentCheck{
			Status:  "degraded",
			Latency: latency.String(),
			Message: fmt.Sprintf("slow response (%s)", latency),
		}
	}
	return ComponentCheck{Status: "up", Latency: latency.String(), Message: "connected"}
}

// overall derives the aggregate status:
//   - "unhealthy" if a critical probe is down
//   - "degraded"  if any probe is degraded or down
//   - "healthy"   otherwise
func (hc *HealthChecker) overall(checks map[string]ComponentCheck) string {
	names := make([]string, 0, len(hc.probes))
	critical := make(map[string]bool, len(hc.probes))
	for _, p := range hc.probes {
		names = append(names, p.Name)
		critical[p.Name] = p.Critical
	}
	sort.Strings(names)

	status := "healthy"
	for _, name := range names {
		switch checks[name].Status {
		case "down":
			if critical[name] {
				return "unhealthy"
			}
			status = "degraded"
		case "degraded":
			status = "degraded"
		}
	}
	return status
}

// formatUptime produces a human-readable uptime string like "3d 4h 12m 5s".
func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
