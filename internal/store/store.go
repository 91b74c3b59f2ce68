// Package store is the Postgres implementation of core.Repository.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/edvin/timeoff/internal/core"
)

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads and writes requests, groups, replies and users. A Store
// obtained inside InTx runs every statement on that transaction.
type Store struct {
	db DB
	tx pgx.Tx
}

var _ core.Repository = (*Store)(nil)

func New(db DB) *Store {
	return &Store{db: db}
}

func (s *Store) q() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// InTx runs fn in a transaction and commits when it returns nil. Nested
// calls join the outer transaction.
func (s *Store) InTx(ctx context.Context, fn func(tx core.Repository) error) error {
	if s.tx != nil {
		return fn(s)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&Store{db: s.db, tx: tx}); err != nil {
		if rErr := tx.Rollback(ctx); rErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// mapError translates driver errors into the core error taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case "time_off_requests_user_day":
			return fmt.Errorf("%w: a request already exists for that day", core.ErrValidation)
		case "users_email_key":
			return fmt.Errorf("%w: email already registered", core.ErrValidation)
		}
		return fmt.Errorf("%w: %s", core.ErrValidation, pgErr.Detail)
	}
	return err
}
