package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/activity-report-api/internal/translator"
	"github.com/noah-isme/activity-report-api/pkg/config"
	"github.com/noah-isme/activity-report-api/pkg/database"
	"github.com/noah-isme/activity-report-api/pkg/kv"
)

// Backend bundles the repositories of the storage backend chosen at start.
type Backend struct {
	Kind          config.Backend
	Activities    ActivityRepository
	Notifications NotificationRepository
	Audit         AuditRepository
	Admins        AdminDirectory
	// Preferences holds small documents that need no relational integrity.
	Preferences kv.Store
	// DB is set for relational backends only.
	DB *sqlx.DB

	closers []func() error
}

// Ping checks that the backend is reachable.
func (b *Backend) Ping(ctx context.Context) error {
	if b.DB != nil {
		return b.DB.PingContext(ctx)
	}
	_, err := b.Preferences.List(ctx, "ping:")
	return err
}

// Close releases connections in reverse order of opening.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Open resolves cfg.Storage.Backend once and wires the matching repositories.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger, observer kv.Observer) (*Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	kind := cfg.Storage.Backend

	switch kind {
	case config.BackendFile:
		store, err := kv.NewFileStore(cfg.Storage.FileDir)
		if err != nil {
			return nil, fmt.Errorf("open file store: %w", err)
		}
		return NewKVBackend(kind, kv.Instrument(store, string(kind), observer), cfg.Storage.AdminEmails, logger), nil

	case config.BackendRedis:
		client, err := database.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		store := kv.NewRedisStore(client, cfg.Redis.KeyPrefix)
		b := NewKVBackend(kind, kv.Instrument(store, string(kind), observer), cfg.Storage.AdminEmails, logger)
		b.closers = append(b.closers, client.Close)
		return b, nil

	case config.BackendPostgres, config.BackendSQLite:
		var db *sqlx.DB
		var err error
		if kind == config.BackendPostgres {
			db, err = database.NewPostgres(ctx, cfg.Database)
		} else {
			db, err = database.NewSQLite(ctx, cfg.Database)
		}
		if err != nil {
			return nil, fmt.Errorf("connect %s: %w", kind, err)
		}
		if cfg.Database.AutoMigrate {
			if err := ApplySchema(ctx, db); err != nil {
				_ = db.Close()
				return nil, err
			}
			logger.Info("schema applied", zap.String("backend", string(kind)))
		}
		prefs := kv.Instrument(kv.NewSQLStore(db), string(kind), observer)
		return NewSQLBackend(kind, db, translator.New(db, logger), prefs), nil

	default:
		return nil, fmt.Errorf("unsupported storage backend %q", kind)
	}
}

// NewKVBackend wires the document repositories over store.
func NewKVBackend(kind config.Backend, store kv.Store, adminEmails []string, logger *zap.Logger) *Backend {
	return &Backend{
		Kind:          kind,
		Activities:    NewActivityKVRepository(store, logger),
		Notifications: NewNotificationKVRepository(store),
		Audit:         NewAuditKVRepository(store),
		Admins:        NewStaticAdminDirectory(adminEmails),
		Preferences:   store,
	}
}

// NewSQLBackend wires the relational repositories over db.
func NewSQLBackend(kind config.Backend, db *sqlx.DB, tr *translator.Translator, prefs kv.Store) *Backend {
	return &Backend{
		Kind:          kind,
		Activities:    NewActivitySQLRepository(db, tr),
		Notifications: NewNotificationSQLRepository(db),
		Audit:         NewAuditSQLRepository(db),
		Admins:        NewAdminSQLDirectory(db),
		Preferences:   prefs,
		DB:            db,
		closers:       []func() error{db.Close},
	}
}
