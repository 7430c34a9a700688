package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "intentd/pkg/logx"
)

// Store is the archive API used by the app.
type Store interface {
	Append(ctx context.Context, recs ...TaskRecord) error
	// Recent returns up to limit records, most recently archived first.
	Recent(ctx context.Context, limit int) ([]TaskRecord, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("driver", driver))

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(ctx, cfg, log)
	case "postgres", "postgresql", "pgx":
		return openPostgres(ctx, cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// stamped fills ArchivedAt on records that lack it.
func stamped(recs []TaskRecord) []TaskRecord {
	now := time.Now().UTC()
	out := make([]TaskRecord, len(recs))
	for i, r := range recs {
		if r.ArchivedAt.IsZero() {
			r.ArchivedAt = now
		}
		out[i] = r
	}
	return out
}
