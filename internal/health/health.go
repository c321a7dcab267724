// Package health provides health checking and HTTP endpoints for scheduled mode.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/audit"
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/monitoring"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check represents a health check result
type Check struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
}

// Checker performs health checks
type Checker struct {
	backend    monitoring.Backend
	namespace  string
	metricName string
	audit      *audit.Logger
	logger     *zap.Logger
	now        func() time.Time

	mu      sync.RWMutex
	lastRun time.Time
	lastErr error
}

// New creates a health checker that checks backend with a single-page metric listing
func New(backend monitoring.Backend, namespace, metricName string, logger *zap.Logger) *Checker {
	return &Checker{
		backend:    backend,
		namespace:  namespace,
		metricName: metricName,
		logger:     logger.Named("health"),
		now:        time.Now,
	}
}

// WithAudit lets /health report the latest alarm writes from auditLogger
func (c *Checker) WithAudit(auditLogger *audit.Logger) *Checker {
	c.audit = auditLogger
	return c
}

// RecentWrites returns up to limit audited alarm writes, newest first
func (c *Checker) RecentWrites(limit int) []audit.Entry {
	if c.audit == nil || !c.audit.IsEnabled() {
		return nil
	}
	return c.audit.GetRecentEntries(limit)
}

// RecordRun stores the outcome of the latest reconciliation
func (c *Checker) RecordRun(finished time.Time, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastRun = finished
	c.lastErr = err
}

// CheckAll performs all health checks
func (c *Checker) CheckAll(ctx context.Context) (Status, []Check) {
	checks := []Check{
		c.checkLastRun(),
		c.checkBackendConnectivity(ctx),
	}

	// Determine overall status
	overallStatus := StatusHealthy
	for _, check := range checks {
		if check.Status == StatusUnhealthy {
			overallStatus = StatusUnhealthy
			break
		} else if check.Status == StatusDegraded && overallStatus == StatusHealthy {
			overallStatus = StatusDegraded
		}
	}

	return overallStatus, checks
}

// checkLastRun reports the outcome of the most recent reconciliation
func (c *Checker) checkLastRun() Check {
	check := Check{
		Name:      "last_run",
		Timestamp: c.now(),
	}

	c.mu.RLock()
	lastRun, lastErr := c.lastRun, c.lastErr
	c.mu.RUnlock()

	switch {
	case lastRun.IsZero():
		check.Status = StatusDegraded
		check.Message = "No run has completed yet"
	case lastErr != nil:
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("Last run at %s failed: %v", lastRun.UTC().Format(time.RFC3339), lastErr)
	default:
		check.Status = StatusHealthy
		check.Message = fmt.Sprintf("Last run succeeded at %s", lastRun.UTC().Format(time.RFC3339))
	}

	return check
}

// checkBackendConnectivity verifies the monitoring API answers
func (c *Checker) checkBackendConnectivity(ctx context.Context) Check {
	start := c.now()
	check := Check{
		Name:      "backend_connectivity",
		Timestamp: start,
	}

	// Use a short timeout for health checks
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := c.backend.ListMetrics(checkCtx, c.namespace, c.metricName, "")
	check.Duration = c.now().Sub(start)

	if err != nil {
		// Degraded if the API is merely slow
		if check.Duration > 3*time.Second {
			check.Status = StatusDegraded
			check.Message = "API responding slowly"
		} else {
			check.Status = StatusUnhealthy
			check.Message = fmt.Sprintf("API unreachable: %v", err)
		}
		c.logger.Warn("Health check failed: backend connectivity",
			zap.Error(err),
			zap.Duration("duration", check.Duration),
		)
	} else {
		check.Status = StatusHealthy
		check.Message = "API reachable"
		c.logger.Debug("Health check passed: backend connectivity",
			zap.Duration("duration", check.Duration),
		)
	}

	return check
}
