package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jaemin-s/eventsync/cmd/eventctl/commands"
	"github.com/jaemin-s/eventsync/internal/app"
	"github.com/jaemin-s/eventsync/internal/auth"
	"github.com/jaemin-s/eventsync/internal/cache"
	"github.com/jaemin-s/eventsync/internal/database"
	"github.com/jaemin-s/eventsync/internal/models"
	"github.com/jaemin-s/eventsync/internal/refresher"
	"github.com/jaemin-s/eventsync/pkg/events"
	"github.com/jaemin-s/eventsync/pkg/eventsync"
	"github.com/jaemin-s/eventsync/pkg/gateway"
	"github.com/jaemin-s/eventsync/pkg/logger"
	"github.com/jaemin-s/eventsync/pkg/mutation"
	"github.com/jaemin-s/eventsync/pkg/querycache"
)

// persistPrefix namespaces eventctl snapshots inside the shared cache table.
const persistPrefix = "eventctl:"

// application connects commands to a real eventsync server.
type application struct{}

var _ commands.Application = application{}

func (application) Connect(ctx context.Context, opts commands.ConnectOptions) (commands.Client, func(), error) {
	cfg, err := loadClientConfig(opts)
	if err != nil {
		return nil, nil, err
	}
	s, closeFn, err := connect(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return s, closeFn, nil
}

func (application) MintToken(opts commands.ConnectOptions, req commands.TokenRequest) (string, error) {
	cfg, err := loadClientConfig(opts)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		return "", errors.New("auth.jwt.secret must be configured to mint tokens")
	}

	jwt, err := auth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return "", err
	}
	return jwt.GenerateAccessToken(auth.AccessTokenInput{
		UserID: strings.TrimSpace(req.UserID),
		Name:   req.Name,
		Scopes: req.Scopes,
		TTL:    req.TTL,
	})
}

func loadClientConfig(opts commands.ConnectOptions) (*app.Config, error) {
	cfg, err := app.LoadConfigFrom(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if v := strings.TrimSpace(opts.BaseURL); v != "" {
		cfg.Client.BaseURL = v
	}
	if v := strings.TrimSpace(opts.Token); v != "" {
		cfg.Client.Token = v
	}

	// console output belongs to the command; logs stay quiet unless raised in config
	level := cfg.Server.LogLevel
	if level == "" || strings.EqualFold(level, "info") {
		level = "warn"
	}
	if err := app.ConfigureLogging(level, "console"); err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}
	return cfg, nil
}

// session is one connected client with its optional snapshot database.
type session struct {
	*eventsync.Client
	store     *querycache.Store
	snapshots *cache.DatabaseStore
	db        *gorm.DB
	cfg       app.ClientConfig
	log       *zap.Logger
}

func connect(ctx context.Context, cfg *app.Config) (*session, func(), error) {
	if strings.TrimSpace(cfg.Client.BaseURL) == "" {
		return nil, nil, errors.New("client.base_url must be configured")
	}

	gw, err := gateway.New(cfg.Client.BaseURL, cfg.Client.GatewayOptions()...)
	if err != nil {
		return nil, nil, err
	}

	s := &session{cfg: cfg.Client, log: logger.WithModule("eventctl")}

	storeOpts := cfg.Client.StoreOptions()
	if cfg.Client.Persist.Enabled {
		db, err := database.Open(cfg.Client.Persist.PersistConnectionConfig())
		if err != nil {
			return nil, nil, fmt.Errorf("open snapshot database: %w", err)
		}
		if err := db.AutoMigrate(&models.CacheEntry{}); err != nil {
			closeDB(db)
			return nil, nil, fmt.Errorf("migrate snapshot database: %w", err)
		}
		s.db = db
		s.snapshots = cache.NewDatabaseStore(db)
		storeOpts = append(storeOpts, querycache.WithPersister(
			cache.NewPersister(s.snapshots, persistPrefix), eventsync.Codec{}, cfg.Client.Persist.TTL))
	}

	s.store = querycache.New(storeOpts...)
	coord := mutation.New(s.store, cfg.Client.MutationOptions()...)
	s.Client = eventsync.New(events.NewAPI(gw), s.store, coord)

	if s.snapshots != nil {
		if n, err := s.Hydrate(ctx); err != nil {
			s.log.Warn("hydrate from snapshots failed", zap.Error(err))
		} else {
			s.log.Debug("hydrated cache", zap.Int("entries", n))
		}
	}

	return s, s.close, nil
}

// Follow keeps the cache current while watching: live changes from the server plus a
// scheduled refresh for anything the stream missed.
func (s *session) Follow(ctx context.Context, onChange func(eventsync.ChangeMessage)) error {
	var purger refresher.Purger
	if s.snapshots != nil {
		purger = s.snapshots
	}
	r := refresher.New(s.Client, purger, refresher.WithRefreshSchedule(s.cfg.RefreshSchedule))
	if err := r.Start(); err != nil {
		return fmt.Errorf("schedule refresh: %w", err)
	}
	defer r.Stop()

	liveOpts := []eventsync.LiveOption{eventsync.WithChangeHook(onChange)}
	if header := s.authHeader(); header != nil {
		liveOpts = append(liveOpts, eventsync.WithHeader(header))
	}
	return s.Listen(ctx, s.cfg.LiveURL(), liveOpts...)
}

func (s *session) authHeader() http.Header {
	token := strings.TrimSpace(s.cfg.Token)
	if token == "" {
		return nil
	}
	return http.Header{"Authorization": {"Bearer " + token}}
}

func (s *session) close() {
	s.store.Close()
	if s.db != nil {
		closeDB(s.db)
	}
}

func closeDB(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	_ = sqlDB.Close()
}
