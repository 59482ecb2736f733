// Package pg implementa store.Repository sobre PostgreSQL (pgx/v5).
package pg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vetchium/idcore/internal/domain"
	"github.com/vetchium/idcore/internal/store"
)

// querier es el subconjunto común de *pgxpool.Pool y pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implementa store.Repository.
type Store struct {
	pool *pgxpool.Pool
	q    querier
}

// New crea un Store sobre un pool existente.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, q: pool}
}

// Connect abre un pool con el DSN dado y lo verifica.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return New(pool), nil
}

// Close cierra el pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Ping(ctx context.Context) error {
	if s.pool != nil {
		return s.pool.Ping(ctx)
	}
	return nil
}

// Atomically corre fn dentro de una transacción SERIALIZABLE. Un error
// de serialización se propaga tal cual: el core nunca reintenta solo.
func (s *Store) Atomically(ctx context.Context, fn func(store.Repository) error) error {
	if s.pool == nil {
		// Ya dentro de una tx: pgx no soporta anidar sin savepoints y
		// ningún engine lo necesita.
		return fn(s)
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&Store{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) Tenants() store.TenantRepo       { return &tenants{q: s.q} }
func (s *Store) Principals() store.PrincipalRepo { return &principals{q: s.q} }
func (s *Store) Challenges() store.ChallengeRepo { return &challenges{q: s.q} }
func (s *Store) Sessions() store.SessionRepo     { return &sessions{q: s.q} }
func (s *Store) Tokens() store.TokenRepo         { return &tokens{q: s.q} }
func (s *Store) Domains() store.DomainRepo       { return &domains{q: s.q} }

// mapErr traduce errores de driver a la taxonomía de domain.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
		return domain.ErrConflict
	}
	return err
}
