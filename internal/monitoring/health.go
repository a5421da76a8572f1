// Package monitoring evaluates readiness probes for the events backend.
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

const defaultProbeTimeout = 2 * time.Second

// ProbeStatus encodes the outcome of a health probe.
type ProbeStatus string

const (
	StatusUp       ProbeStatus = "up"
	StatusDown     ProbeStatus = "down"
	StatusDegraded ProbeStatus = "degraded"
)

// ProbeResult captures a single dependency check outcome.
type ProbeResult struct {
	Component string        `json:"component"`
	Status    ProbeStatus   `json:"status"`
	Details   string        `json:"details,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// HealthReport aggregates probe results. Status is the worst status of any check.
type HealthReport struct {
	Status ProbeStatus   `json:"status"`
	Checks []ProbeResult `json:"checks"`
}

// Healthy reports whether every check is up.
func (r HealthReport) Healthy() bool {
	return r.Status == StatusUp
}

// Check is one named probe. Run returns details for an up result, or an error.
type Check struct {
	Name string
	Run  func(ctx context.Context) (string, error)
}

// HealthManager runs registered checks concurrently, each under its own timeout.
type HealthManager struct {
	checks  []Check
	timeout time.Duration
}

// NewHealthManager constructs a manager. A non-positive timeout uses 2s per probe.
func NewHealthManager(timeout time.Duration) *HealthManager {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &HealthManager{timeout: timeout}
}

// Register appends a probe. Unnamed probes are ignored.
func (m *HealthManager) Register(checks ...Check) {
	for _, check := range checks {
		if check.Name == "" || check.Run == nil {
			continue
		}
		m.checks = append(m.checks, check)
	}
}

// Evaluate runs every check. Results keep registration order.
func (m *HealthManager) Evaluate(ctx context.Context) HealthReport {
	results := make([]ProbeResult, len(m.checks))

	var g errgroup.Group
	for i, check := range m.checks {
		g.Go(func() error {
			results[i] = m.run(ctx, check)
			return nil
		})
	}
	_ = g.Wait()

	report := HealthReport{Status: StatusUp, Checks: results}
	for _, r := range results {
		switch r.Status {
		case StatusDown:
			report.Status = StatusDown
		case StatusDegraded:
			if report.Status != StatusDown {
				report.Status = StatusDegraded
			}
		}
	}
	return report
}

func (m *HealthManager) run(ctx context.Context, check Check) (result ProbeResult) {
	start := time.Now()
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			result = ProbeResult{Status: StatusDown, Details: fmt.Sprint(rec)}
		}
		result.Component = check.Name
		result.Duration = time.Since(start)
	}()

	details, err := check.Run(probeCtx)
	return ResultFromError(details, err)
}

// ResultFromError maps a probe error to a status. Timeouts degrade; other errors are down.
func ResultFromError(details string, err error) ProbeResult {
	if err == nil {
		return ProbeResult{Status: StatusUp, Details: details}
	}
	status := StatusDown
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		status = StatusDegraded
	}
	return ProbeResult{Status: status, Details: err.Error()}
}
