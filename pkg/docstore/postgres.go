package docstore

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// PostgresConfig holds connection settings for the Postgres-backed store.
type PostgresConfig struct {
	ConnectionURL  string        `env:"POSTGRES_URL,required"`
	ConnectTimeout time.Duration `env:"POSTGRES_CONNECT_TIMEOUT" envDefault:"10s"`
	MaxConns       int32         `env:"POSTGRES_MAX_CONNS" envDefault:"10"`
}

// PostgresStore persists documents as JSONB rows. A batch commits inside one
// SQL transaction, so partial application is impossible.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and runs pending schema migrations.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionURL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := migrate(pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func migrate(pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Healthcheck returns a probe function suitable for readiness endpoints.
func (s *PostgresStore) Healthcheck() func(context.Context) error {
	return func(ctx context.Context) error {
		return s.pool.Ping(ctx)
	}
}

func (s *PostgresStore) Get(ctx context.Context, collection, key string) (Document, error) {
	if collection == "" || key == "" {
		return nil, ErrInvalidKey
	}
	return getDoc(ctx, s.pool, collection, key, false)
}

func getDoc(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}, collection, key string, forUpdate bool,
) (Document, error) {
	query := `SELECT doc FROM documents WHERE collection = $1 AND key = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var raw []byte
	if err := q.QueryRow(ctx, query, collection, key).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("postgres get %s/%s: %w", collection, key, err)
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("postgres decode %s/%s: %w", collection, key, err)
	}
	return doc, nil
}

const upsertQuery = `
	INSERT INTO documents (collection, key, doc, updated_at)
	VALUES ($1, $2, $3, now())
	ON CONFLICT (collection, key) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`

func (s *PostgresStore) Set(ctx context.Context, collection, key string, doc Document) error {
	if collection == "" || key == "" {
		return ErrInvalidKey
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("postgres encode %s/%s: %w", collection, key, err)
	}
	if _, err := s.pool.Exec(ctx, upsertQuery, collection, key, raw); err != nil {
		return fmt.Errorf("postgres set %s/%s: %w", collection, key, err)
	}
	return nil
}

func (s *PostgresStore) Merge(ctx context.Context, collection, key string, doc Document) error {
	if collection == "" || key == "" {
		return ErrInvalidKey
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := mergeInTx(ctx, tx, collection, key, doc); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func mergeInTx(ctx context.Context, tx pgx.Tx, collection, key string, doc Document) error {
	existing, err := getDoc(ctx, tx, collection, key, true)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	merged := mergeDocs(existing, doc)
	raw, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("postgres encode %s/%s: %w", collection, key, err)
	}
	if _, err := tx.Exec(ctx, upsertQuery, collection, key, raw); err != nil {
		return fmt.Errorf("postgres merge %s/%s: %w", collection, key, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, collection, key string) error {
	if collection == "" || key == "" {
		return ErrInvalidKey
	}

	_, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND key = $2`, collection, key)
	if err != nil {
		return fmt.Errorf("postgres delete %s/%s: %w", collection, key, err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, collection string, doc Document) (string, error) {
	if collection == "" {
		return "", ErrInvalidKey
	}

	id := uuid.New().String()
	if err := s.Set(ctx, collection, id, doc); err != nil {
		return "", err
	}
	return id, nil
}

func (s *PostgresStore) Find(ctx context.Context, collection string, filter map[string]any, limit int) ([]Document, error) {
	rawFilter, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("postgres encode filter: %w", err)
	}

	query := `SELECT doc FROM documents WHERE collection = $1 AND doc @> $2::jsonb`
	args := []any{collection, rawFilter}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres find %s: %w", collection, err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("postgres scan %s: %w", collection, err)
		}
		var doc Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("postgres decode %s: %w", collection, err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Batch() Batch {
	return &postgresBatch{store: s}
}

type postgresBatch struct {
	store *PostgresStore
	ops   []op
}

func (b *postgresBatch) Set(collection, key string, doc Document) Batch {
	b.ops = append(b.ops, op{kind: opSet, collection: collection, key: key, doc: doc})
	return b
}

func (b *postgresBatch) Merge(collection, key string, doc Document) Batch {
	b.ops = append(b.ops, op{kind: opMerge, collection: collection, key: key, doc: doc})
	return b
}

func (b *postgresBatch) Append(collection string, doc Document) Batch {
	b.ops = append(b.ops, op{kind: opAppend, collection: collection, doc: doc})
	return b
}

func (b *postgresBatch) Commit(ctx context.Context) error {
	if len(b.ops) == 0 {
		return ErrBatchEmpty
	}

	tx, err := b.store.pool.Begin(ctx)
	if err != nil {
		return errors.Join(ErrCommitFailed, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, o := range b.ops {
		switch o.kind {
		case opSet:
			raw, err := json.Marshal(o.doc)
			if err != nil {
				return errors.Join(ErrCommitFailed, err)
			}
			if _, err := tx.Exec(ctx, upsertQuery, o.collection, o.key, raw); err != nil {
				return errors.Join(ErrCommitFailed, err)
			}
		case opMerge:
			if err := mergeInTx(ctx, tx, o.collection, o.key, o.doc); err != nil {
				return errors.Join(ErrCommitFailed, err)
			}
		case opAppend:
			raw, err := json.Marshal(o.doc)
			if err != nil {
				return errors.Join(ErrCommitFailed, err)
			}
			if _, err := tx.Exec(ctx, upsertQuery, o.collection, uuid.New().String(), raw); err != nil {
				return errors.Join(ErrCommitFailed, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Join(ErrCommitFailed, err)
	}
	return nil
}
