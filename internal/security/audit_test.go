package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jaemin-s/eventsync/internal/app"
)

func hardenedConfig() *app.Config {
	return &app.Config{
		Server:   app.ServerConfig{CORSOrigins: []string{"https://events.example.com"}},
		Database: app.DatabaseConfig{Driver: "postgres"},
		Auth: app.AuthConfig{
			JWT:           app.JWTSettings{Secret: "0123456789abcdef0123456789abcdef"},
			RequireWrites: true,
		},
		Realtime: app.RealtimeConfig{Enabled: true, RequireAuth: true},
	}
}

func TestAuditPassesHardenedConfig(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	auditor := NewAuditor(hardenedConfig(), nil)
	auditor.WithClock(func() time.Time { return fixed })

	result := auditor.Run()
	require.Equal(t, fixed.UTC(), result.CheckedAt)
	require.Empty(t, result.Findings())
	require.Equal(t, 5, result.Summary[string(StatusPass)])
}

func TestAuditFlagsPermissiveConfig(t *testing.T) {
	cfg := hardenedConfig()
	cfg.Auth.JWT.Secret = "short"
	cfg.Auth.RequireWrites = false
	cfg.Realtime.RequireAuth = false
	cfg.Server.CORSOrigins = []string{"*"}
	cfg.Database.Seed = true

	result := NewAuditor(cfg, nil).Run()
	findings := result.Findings()
	require.Len(t, findings, 5)
	require.Equal(t, 5, result.Summary[string(StatusWarn)])

	ids := make([]string, 0, len(findings))
	for _, f := range findings {
		ids = append(ids, f.ID)
	}
	require.Equal(t, []string{"jwt_secret", "write_auth", "stream_auth", "cors_origins", "sample_data"}, ids)
}

func TestAuditJWTSecretStates(t *testing.T) {
	cfg := hardenedConfig()

	generated := NewAuditor(cfg, map[string]bool{"auth.jwt.secret": true}).checkJWTSecret()
	require.Equal(t, StatusWarn, generated.Status)
	require.Contains(t, generated.Message, "generated at startup")

	cfg.Auth.JWT.Secret = ""
	require.Equal(t, StatusFail, NewAuditor(cfg, nil).checkJWTSecret().Status)
}

func TestAuditIgnoresSeedOnSQLite(t *testing.T) {
	cfg := hardenedConfig()
	cfg.Database.Driver = "sqlite"
	cfg.Database.Seed = true
	require.Equal(t, StatusPass, NewAuditor(cfg, nil).checkSeed().Status)
}
