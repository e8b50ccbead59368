package kv

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Postgres struct {
	DB *pgxpool.Pool
}

func NewPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, err
	}
	s := &Postgres{DB: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Postgres) EnsureSchema(ctx context.Context) error {
	q := `CREATE TABLE IF NOT EXISTS console_kv (
          key        text PRIMARY KEY,
          value      text NOT NULL,
          updated_at timestamptz NOT NULL
          )`
	_, err := s.DB.Exec(ctx, q)
	return err
}

func (s *Postgres) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := s.DB.QueryRow(ctx, `SELECT value FROM console_kv WHERE key=$1`, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return v, err
}

func (s *Postgres) Set(ctx context.Context, key, value string) error {
	q := `INSERT INTO console_kv (key, value, updated_at) VALUES ($1, $2, $3)
          ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=EXCLUDED.updated_at`
	_, err := s.DB.Exec(ctx, q, key, value, time.Now().UTC())
	return err
}

func (s *Postgres) Delete(ctx context.Context, key string) error {
	_, err := s.DB.Exec(ctx, `DELETE FROM console_kv WHERE key=$1`, key)
	return err
}

func (s *Postgres) Close() { s.DB.Close() }
