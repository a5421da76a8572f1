package database

import (
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type dialect struct {
	name      string
	dsn       func(Config) (string, error)
	open      func(dsn string) gorm.Dialector
	afterOpen func(*sql.DB) error
}

var dialects = map[string]dialect{
	"sqlite": {
		name:      "sqlite",
		dsn:       sqliteDSN,
		open:      sqlite.Open,
		afterOpen: enableForeignKeys,
	},
	"postgres": {
		name: "postgres",
		dsn:  buildPostgresDSN,
		open: postgres.Open,
	},
	"postgresql": {
		name: "postgres",
		dsn:  buildPostgresDSN,
		open: postgres.Open,
	},
	"mysql": {
		name: "mysql",
		dsn:  buildMySQLDSN,
		open: mysql.Open,
	},
}

func sqliteDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}

	path := strings.TrimSpace(cfg.Path)
	if path == "" || strings.EqualFold(path, ":memory:") {
		return "file::memory:?cache=shared&_foreign_keys=1", nil
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("sqlite: create %s: %w", dir, err)
		}
	}
	return "file:" + filepath.ToSlash(path) + "?_foreign_keys=1&_journal_mode=WAL", nil
}

func enableForeignKeys(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return err
	}
	return nil
}

// hosted fills in credentials shared by the network databases.
func hosted(cfg Config, kind, defaultHost string, defaultPort int) (host string, port int, err error) {
	if cfg.User == "" || cfg.Name == "" {
		return "", 0, fmt.Errorf("%s configuration requires user and database name", kind)
	}
	host, port = cfg.Host, cfg.Port
	if host == "" {
		host = defaultHost
	}
	if port == 0 {
		port = defaultPort
	}
	return host, port, nil
}

// withDefaults merges user options over defaults and returns them as sorted key=value pairs.
func withDefaults(defaults, options map[string]string) []string {
	merged := maps.Clone(defaults)
	maps.Copy(merged, options)

	pairs := make([]string, 0, len(merged))
	for _, key := range slices.Sorted(maps.Keys(merged)) {
		pairs = append(pairs, key+"="+merged[key])
	}
	return pairs
}

func buildPostgresDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	host, port, err := hosted(cfg, "postgres", "localhost", 5432)
	if err != nil {
		return "", err
	}

	params := []string{"host=" + host, "port=" + strconv.Itoa(port), "user=" + cfg.User, "dbname=" + cfg.Name}
	if cfg.Password != "" {
		params = append(params, "password="+cfg.Password)
	}
	params = append(params, withDefaults(map[string]string{"sslmode": "disable"}, cfg.Options)...)
	return strings.Join(params, " "), nil
}

func buildMySQLDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	host, port, err := hosted(cfg, "mysql", "127.0.0.1", 3306)
	if err != nil {
		return "", err
	}

	user := cfg.User
	if cfg.Password != "" {
		user += ":" + cfg.Password
	}
	query := withDefaults(map[string]string{"charset": "utf8mb4", "parseTime": "True", "loc": "Local"}, cfg.Options)
	return fmt.Sprintf("%s@tcp(%s:%d)/%s?%s", user, host, port, cfg.Name, strings.Join(query, "&")), nil
}
