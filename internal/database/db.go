package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jaemin-s/eventsync/pkg/logger"
)

const slowQueryThreshold = 500 * time.Millisecond

// Config contains database connection options.
type Config struct {
	Driver   string
	Path     string // SQLite database path when Driver == sqlite
	DSN      string // Optional DSN override
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	Options  map[string]string
	Pool     PoolConfig
}

// PoolConfig limits the sql.DB connection pool. Zero values keep database/sql defaults.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open initialises a gorm.DB using the provided configuration.
func Open(cfg Config) (*gorm.DB, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if name == "" {
		name = "sqlite"
	}

	d, ok := dialects[name]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	dsn, err := d.dsn(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(d.open(dsn), &gorm.Config{
		Logger:         queryLogger(),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.name, err)
	}

	if err := configure(db, d, cfg.Pool); err != nil {
		return nil, err
	}
	return db, nil
}

func configure(db *gorm.DB, d dialect, pool PoolConfig) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if d.afterOpen != nil {
		return d.afterOpen(sqlDB)
	}
	return nil
}

// queryLogger reports slow queries and driver errors through the module logger.
func queryLogger() gormlogger.Interface {
	return gormlogger.New(
		zap.NewStdLog(logger.WithModule("gorm")),
		gormlogger.Config{
			SlowThreshold:             slowQueryThreshold,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)
}

// AutoMigrateAndSeed migrates the schema and inserts the sample events into an empty table.
func AutoMigrateAndSeed(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}

	if err := AutoMigrate(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	if err := SeedData(db); err != nil {
		return fmt.Errorf("seed data: %w", err)
	}

	return nil
}

// Ping checks the underlying connection.
func Ping(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
