package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"contentflow/internal/util"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	schemaVersion   = 1
	dimPlaceholder  = "{{EMBED_DIM}}"
	pgUniqueViolate = "23505"
)

type DB struct {
	Pool *pgxpool.Pool
}

func NewDB(ctx context.Context, dsn string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &DB{Pool: pool}, nil
}

func (d *DB) Close() {
	if d != nil && d.Pool != nil {
		d.Pool.Close()
	}
}

func (d *DB) Ping(ctx context.Context) error {
	return d.Pool.Ping(ctx)
}

// Bootstrap applies the embedded schema once per version over a plain
// connection. It must run before NewDB on a fresh database because pool
// connections register the vector type on connect.
func Bootstrap(ctx context.Context, dsn string, embedDim int) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect postgres for bootstrap: %w", err)
	}
	defer conn.Close(context.Background())

	var applied bool
	err = conn.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'contentflow_meta')`).Scan(&applied)
	if err != nil {
		return fmt.Errorf("schema meta check: %w", err)
	}
	if applied {
		if err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM contentflow_meta WHERE version = $1)`, schemaVersion).Scan(&applied); err != nil {
			return fmt.Errorf("schema version check: %w", err)
		}
	}
	if applied {
		return nil
	}

	script, err := renderSchema(embedDim)
	if err != nil {
		return err
	}
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if _, err := tx.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	if _, err := tx.Exec(ctx, script); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func renderSchema(embedDim int) (string, error) {
	if embedDim <= 0 {
		return "", fmt.Errorf("embedding dimension must be positive, got %d", embedDim)
	}
	raw, err := migrationsFS.ReadFile("migrations/001_init.sql")
	if err != nil {
		return "", fmt.Errorf("read schema: %w", err)
	}
	return strings.ReplaceAll(string(raw), dimPlaceholder, strconv.Itoa(embedDim)), nil
}

// mapWriteErr turns unique violations into util.ErrDuplicateContent, the race
// breaker behind the dedup pre-checks.
func mapWriteErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolate {
		return fmt.Errorf("%s: %s: %w", op, pgErr.ConstraintName, util.ErrDuplicateContent)
	}
	return fmt.Errorf("%s: %w", op, err)
}
