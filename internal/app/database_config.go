package app

import (
	"strings"

	"github.com/jaemin-s/eventsync/internal/database"
)

// ConnectionConfig converts DatabaseConfig into database.Open parameters.
func (c DatabaseConfig) ConnectionConfig() database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(c.Driver)),
		Path:   strings.TrimSpace(c.Path),
		DSN:    strings.TrimSpace(c.DSN),
		Pool: database.PoolConfig{
			MaxOpenConns:    c.Pool.MaxOpenConns,
			MaxIdleConns:    c.Pool.MaxIdleConns,
			ConnMaxLifetime: c.Pool.ConnMaxLifetime,
		},
	}

	var hosted DBAuthConfig
	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
		return dbCfg
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		hosted = c.Postgres
	case "mysql":
		hosted = c.MySQL
	default:
		// unsupported drivers surface from database.Open
		return dbCfg
	}

	dbCfg.Host = strings.TrimSpace(hosted.Host)
	dbCfg.Port = hosted.Port
	dbCfg.Name = strings.TrimSpace(hosted.Database)
	dbCfg.User = strings.TrimSpace(hosted.Username)
	dbCfg.Password = strings.TrimSpace(hosted.Password)
	return dbCfg
}

// PersistConnectionConfig is the SQLite database holding the client's persisted snapshots.
func (c PersistConfig) PersistConnectionConfig() database.Config {
	return database.Config{Driver: "sqlite", Path: strings.TrimSpace(c.Path)}
}
