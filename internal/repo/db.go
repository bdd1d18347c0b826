package repo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/widget-chat-backend/internal/config"
	"github.com/tbourn/widget-chat-backend/internal/domain"
)

func gormConfig() *gorm.Config {
	zl := log.With().Str("component", "gorm").Logger()
	return &gorm.Config{
		DisableAutomaticPing: true,
		TranslateError:       true,
		Logger: logger.New(&zl, logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}
}

// OpenSQLite opens (or creates) a SQLite database and applies PRAGMAs.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	// PRAGMAs go in the DSN so every pooled connection gets them.
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + "_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)" +
		"&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, err
	}

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

// OpenPostgres opens a Postgres pool. No connection is made until the first
// query or Ping.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	return db, nil
}

// AutoMigrate creates or updates all tables and indexes.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Account{},
		&domain.ChatSession{},
		&domain.SessionMessage{},
		&domain.MessageLog{},
		&domain.SubscriptionRecord{},
		&domain.Idempotency{},
	)
}

// Open makes one bounded attempt at the configured durable backend. When it
// fails and fallback is enabled, an in-memory store marked degraded is
// returned instead. The choice is final for the process lifetime.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	st, err := openDurable(ctx, cfg)
	if err == nil {
		log.Info().Str("backend", st.Backend().Kind).Msg("storage ready")
		return st, nil
	}
	if !cfg.Fallback {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	log.Warn().Err(err).Str("driver", cfg.Driver).
		Msg("durable storage unavailable, continuing with in-memory store; data will not survive a restart")
	return NewMemoryStore(MemoryOptions{
		MessageLogCap: cfg.MessageLogCap,
		Degraded:      true,
		Reason:        err.Error(),
	}), nil
}

func openDurable(ctx context.Context, cfg config.StorageConfig) (*GormStore, error) {
	var (
		db   *gorm.DB
		kind string
		err  error
	)
	switch cfg.Driver {
	case KindPostgres:
		kind = KindPostgres
		db, err = OpenPostgres(cfg.DatabaseURL)
	default:
		kind = KindSQLite
		db, err = OpenSQLite(cfg.DBPath)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", kind, err)
	}

	closeOnErr := func(e error) (*GormStore, error) {
		if sqlDB, derr := db.DB(); derr == nil {
			_ = sqlDB.Close()
		}
		return nil, e
	}

	sqlDB, err := db.DB()
	if err != nil {
		return closeOnErr(err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return closeOnErr(fmt.Errorf("ping %s: %w", kind, err))
	}
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return closeOnErr(fmt.Errorf("tracing plugin: %w", err))
	}
	if err := AutoMigrate(db.WithContext(ctx)); err != nil {
		return closeOnErr(fmt.Errorf("migrate %s: %w", kind, err))
	}
	return NewGormStore(db, kind), nil
}
