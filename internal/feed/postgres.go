package feed

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// PostgresSink appends every record to the edit_log audit table. The table is
// never read by the server.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// DialPostgres connects to url, verifies the connection and applies the
// embedded migrations.
func DialPostgres(ctx context.Context, url string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("feed: create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("feed: connect to postgres: %w", err)
	}
	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresSink{pool: pool}, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("feed: goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("feed: migrate: %w", err)
	}
	return nil
}

const insertRecord = `
INSERT INTO edit_log (id, session_id, version, position, insert_text, delete_len, applied_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

func (s *PostgresSink) Name() string { return "postgres" }

// Write inserts rec into edit_log.
func (s *PostgresSink) Write(ctx context.Context, rec Record) error {
	var deleteLen *int64
	if rec.Edit.Delete != nil {
		n := int64(*rec.Edit.Delete)
		deleteLen = &n
	}
	_, err := s.pool.Exec(ctx, insertRecord,
		rec.ID,
		rec.SessionID,
		int64(rec.Edit.Version),
		int64(rec.Edit.Position),
		rec.Edit.Insert,
		deleteLen,
		rec.AppliedAt,
	)
	if err != nil {
		return fmt.Errorf("feed: insert edit_log: %w", err)
	}
	return nil
}

func (s *PostgresSink) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}
