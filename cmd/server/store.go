package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rl1809/scrap-lifecycle/internal/adapter/storage"
	"github.com/rl1809/scrap-lifecycle/internal/config"
	"github.com/rl1809/scrap-lifecycle/internal/port"
)

const driverMemory = "memory"

// openStore connects the configured database, migrating it first when
// auto_migrate is set. The memory driver keeps everything in process.
func openStore(ctx context.Context, cfg config.Config, log *slog.Logger, migrate bool) (port.Store, error) {
	if cfg.Database.Driver == driverMemory {
		log.Warn("using in-memory store, data is lost on exit")
		return storage.NewMemoryAdapter(nil), nil
	}

	dialect, err := storage.ParseDialect(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}

	db, err := storage.Open(ctx, storage.DBConfig{
		Dialect:         dialect,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	log.Info("connected to database", "driver", dialect)

	if migrate {
		if err := storage.Migrate(ctx, db, dialect, log); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate %s: %w", dialect, err)
		}
		log.Info("migrations applied")
	}

	return storage.NewSQLAdapter(db, dialect, nil), nil
}
