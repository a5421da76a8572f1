// Package security audits the server configuration for settings that weaken access control.
package security

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jaemin-s/eventsync/internal/app"
)

// minSecretLength is the shortest HS256 secret that is not flagged.
const minSecretLength = 32

// CheckStatus captures the outcome of a security audit check.
type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

// Check contains the result of a single audit verification.
type Check struct {
	ID          string      `json:"id"`
	Status      CheckStatus `json:"status"`
	Message     string      `json:"message"`
	Remediation string      `json:"remediation,omitempty"`
}

// Result aggregates all checks with a status summary.
type Result struct {
	CheckedAt time.Time      `json:"checked_at"`
	Checks    []Check        `json:"checks"`
	Summary   map[string]int `json:"summary"`
}

// Findings returns the checks that did not pass.
func (r Result) Findings() []Check {
	var out []Check
	for _, c := range r.Checks {
		if c.Status != StatusPass {
			out = append(out, c)
		}
	}
	return out
}

// Auditor evaluates a loaded configuration.
type Auditor struct {
	cfg       *app.Config
	generated map[string]bool
	now       func() time.Time
}

// NewAuditor builds an auditor. generated lists the runtime secrets that were created at startup.
func NewAuditor(cfg *app.Config, generated map[string]bool) *Auditor {
	return &Auditor{cfg: cfg, generated: generated, now: time.Now}
}

// WithClock overrides the clock used in results (primarily for testing).
func (a *Auditor) WithClock(clock func() time.Time) {
	if clock != nil {
		a.now = clock
	}
}

// Run executes all audit checks.
func (a *Auditor) Run() Result {
	checks := []Check{
		a.checkJWTSecret(),
		a.checkWriteAuth(),
		a.checkStreamAuth(),
		a.checkCORS(),
		a.checkSeed(),
	}

	summary := map[string]int{
		string(StatusPass): 0,
		string(StatusWarn): 0,
		string(StatusFail): 0,
	}
	for _, check := range checks {
		summary[string(check.Status)]++
	}

	return Result{CheckedAt: a.now().UTC(), Checks: checks, Summary: summary}
}

func (a *Auditor) checkJWTSecret() Check {
	const id = "jwt_secret"
	secret := strings.TrimSpace(a.cfg.Auth.JWT.Secret)
	switch {
	case secret == "":
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     "JWT secret is not configured",
			Remediation: "Set auth.jwt.secret or EVENTSYNC_AUTH_JWT_SECRET.",
		}
	case a.generated["auth.jwt.secret"]:
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "JWT secret was generated at startup; issued tokens stop working after a restart",
			Remediation: "Persist a secret in auth.jwt.secret.",
		}
	case len(secret) < minSecretLength:
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("JWT secret is %d characters, shorter than %d", len(secret), minSecretLength),
			Remediation: "Use a longer random secret.",
		}
	}
	return Check{ID: id, Status: StatusPass, Message: "JWT secret configured"}
}

func (a *Auditor) checkWriteAuth() Check {
	if a.cfg.Auth.RequireWrites {
		return Check{ID: "write_auth", Status: StatusPass, Message: "Writes require the events:write scope"}
	}
	return Check{
		ID:          "write_auth",
		Status:      StatusWarn,
		Message:     "Anyone who can reach the API may create, update and delete events",
		Remediation: "Enable auth.require_writes.",
	}
}

func (a *Auditor) checkStreamAuth() Check {
	if !a.cfg.Realtime.Enabled || a.cfg.Realtime.RequireAuth {
		return Check{ID: "stream_auth", Status: StatusPass, Message: "Change stream is disabled or authenticated"}
	}
	return Check{
		ID:          "stream_auth",
		Status:      StatusWarn,
		Message:     "Change stream accepts anonymous subscribers",
		Remediation: "Enable realtime.require_auth.",
	}
}

func (a *Auditor) checkCORS() Check {
	if slices.Contains(a.cfg.Server.CORSOrigins, "*") {
		return Check{
			ID:          "cors_origins",
			Status:      StatusWarn,
			Message:     "CORS allows every origin",
			Remediation: "List the browser origins in server.cors_origins.",
		}
	}
	return Check{ID: "cors_origins", Status: StatusPass, Message: "CORS origins restricted"}
}

func (a *Auditor) checkSeed() Check {
	driver := strings.ToLower(strings.TrimSpace(a.cfg.Database.Driver))
	if a.cfg.Database.Seed && driver != "" && driver != "sqlite" {
		return Check{
			ID:          "sample_data",
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Sample events are seeded into the %s database", driver),
			Remediation: "Disable database.seed outside development.",
		}
	}
	return Check{ID: "sample_data", Status: StatusPass, Message: "No sample data seeded into a hosted database"}
}
