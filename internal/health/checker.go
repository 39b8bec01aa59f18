package health

import (
	"fmt"
	"sync"
	"time"

	"github.com/inetanalyzer/agent/internal/metrics"
)

const defaultRunStale = 15 * time.Minute

const (
	categoryRunPending  = "RUN_PENDING"
	categoryRunStale    = "RUN_STALE"
	categoryRunError    = "RUN_ERROR"
	categoryConfigError = "CONFIG_ERROR"
)

const (
	severityInfo     = "info"
	severityWarning  = "warning"
	severityCritical = "critical"
)

// ReadinessObserver receives every readiness evaluation.
type ReadinessObserver interface {
	ObserveReadiness(ready bool, categories []metrics.ReadinessCategory)
}

// Checker evaluates readiness of a periodically running agent.
type Checker struct {
	metrics    ReadinessObserver
	staleAfter time.Duration

	mu             sync.RWMutex
	lastRunSuccess time.Time
	runErr         string
	lastRunError   time.Time
	configErr      string
}

// NewChecker constructs a readiness checker. A run older than staleAfter
// makes the agent not ready.
func NewChecker(observer ReadinessObserver, staleAfter time.Duration) *Checker {
	if staleAfter <= 0 {
		staleAfter = defaultRunStale
	}
	return &Checker{
		metrics:    observer,
		staleAfter: staleAfter,
	}
}

// ObserveRun records the outcome of a measurement run.
func (c *Checker) ObserveRun(ts time.Time, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.runErr = err.Error()
		c.lastRunError = ts
		return
	}
	c.lastRunSuccess = ts
	c.runErr = ""
	c.lastRunError = time.Time{}
}

// ObserveConfigFetch records whether the configuration document could be retrieved.
func (c *Checker) ObserveConfigFetch(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.configErr = err.Error()
		return
	}
	c.configErr = ""
}

// Ready evaluates all readiness conditions and returns the overall status and reasons for failure.
func (c *Checker) Ready(now time.Time) (bool, []string) {
	reasons := make([]string, 0, 3)
	categories := make([]metrics.ReadinessCategory, 0, 3)
	appendCategory := func(name, severity string) {
		categories = append(categories, metrics.ReadinessCategory{
			Name:     name,
			Severity: severity,
		})
	}

	c.mu.RLock()
	lastSuccess := c.lastRunSuccess
	runErr := c.runErr
	lastErr := c.lastRunError
	configErr := c.configErr
	staleAfter := c.staleAfter
	c.mu.RUnlock()

	if lastSuccess.IsZero() {
		reasons = append(reasons, "no run completed yet")
		appendCategory(categoryRunPending, severityInfo)
	} else if now.Sub(lastSuccess) > staleAfter {
		reasons = append(reasons, fmt.Sprintf("last successful run stale (%s)", now.Sub(lastSuccess).Round(time.Second)))
		appendCategory(categoryRunStale, severityWarning)
	}

	if runErr != "" && now.Sub(lastErr) <= staleAfter {
		reasons = append(reasons, fmt.Sprintf("run failing: %s", runErr))
		appendCategory(categoryRunError, severityCritical)
	}

	if configErr != "" {
		reasons = append(reasons, fmt.Sprintf("configuration unavailable: %s", configErr))
		appendCategory(categoryConfigError, severityCritical)
	}

	ready := len(reasons) == 0
	if c.metrics != nil {
		c.metrics.ObserveReadiness(ready, categories)
	}
	if !ready {
		return false, reasons
	}
	return true, nil
}
