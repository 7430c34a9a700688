package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	logx "intentd/pkg/logx"
)

type pgStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for postgres driver")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &pgStore{pool: pool, log: log}
	if err := s.ensureTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *pgStore) ensureTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS task_archive (
			seq          BIGSERIAL PRIMARY KEY,
			id           TEXT NOT NULL UNIQUE,
			status       TEXT NOT NULL,
			domain       TEXT NOT NULL,
			category     TEXT NOT NULL,
			action       TEXT NOT NULL,
			parameters   JSONB NOT NULL DEFAULT '{}',
			priority     TEXT NOT NULL,
			risk         TEXT NOT NULL,
			retry_count  INTEGER NOT NULL DEFAULT 0,
			max_retries  INTEGER NOT NULL DEFAULT 0,
			err          TEXT NOT NULL DEFAULT '',
			created_at   TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ NOT NULL,
			archived_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("create task_archive: %w", err)
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_task_archive_status ON task_archive(status)`)
	return err
}

func (s *pgStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *pgStore) Append(ctx context.Context, recs ...TaskRecord) error {
	if len(recs) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, r := range stamped(recs) {
		params, err := json.Marshal(orEmpty(r.Parameters))
		if err != nil {
			return fmt.Errorf("marshal parameters for %s: %w", r.ID, err)
		}
		b.Queue(`
			INSERT INTO task_archive (id, status, domain, category, action, parameters, priority, risk, retry_count, max_retries, err, created_at, completed_at, archived_at)
			VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (id) DO NOTHING`,
			r.ID, r.Status, r.Domain, r.Category, r.Action, string(params), r.Priority, r.Risk,
			r.RetryCount, r.MaxRetries, r.Error, r.CreatedAt, r.CompletedAt, r.ArchivedAt)
	}
	if err := s.pool.SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("archive tasks: %w", err)
	}
	return nil
}

func (s *pgStore) Recent(ctx context.Context, limit int) ([]TaskRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, status, domain, category, action, parameters, priority, risk, retry_count, max_retries, err, created_at, completed_at, archived_at
		FROM task_archive ORDER BY seq DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list archive: %w", err)
	}
	defer rows.Close()

	var out []TaskRecord
	for rows.Next() {
		var r TaskRecord
		var params []byte
		if err := rows.Scan(&r.ID, &r.Status, &r.Domain, &r.Category, &r.Action, &params, &r.Priority, &r.Risk,
			&r.RetryCount, &r.MaxRetries, &r.Error, &r.CreatedAt, &r.CompletedAt, &r.ArchivedAt); err != nil {
			return nil, fmt.Errorf("scan archive row: %w", err)
		}
		if err := json.Unmarshal(params, &r.Parameters); err != nil {
			r.Parameters = map[string]any{}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
