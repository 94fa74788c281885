package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/model"
)

// PgxConn is the subset of a pgx pool the Postgres backend uses.
type PgxConn interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

// PostgresBackend keeps each tenant as one jsonb row. Mutations lock the
// row with SELECT ... FOR UPDATE for the duration of the transaction.
type PostgresBackend struct {
	pool PgxConn
}

func NewPostgresBackend(pool PgxConn) *PostgresBackend {
	return &PostgresBackend{pool: pool}
}

func (b *PostgresBackend) List(ctx context.Context) ([]model.Tenant, error) {
	rows, err := b.pool.Query(ctx, `SELECT doc FROM tenants ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Tenant{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		t, err := decodeTenant(raw)
		if err != nil {
			return nil, fmt.Errorf("decode tenant: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (b *PostgresBackend) Get(ctx context.Context, id string) (model.Tenant, error) {
	var raw []byte
	err := b.pool.QueryRow(ctx, `SELECT doc FROM tenants WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Tenant{}, ErrNotFound
	}
	if err != nil {
		return model.Tenant{}, err
	}
	return decodeTenant(raw)
}

func (b *PostgresBackend) Insert(ctx context.Context, t model.Tenant) error {
	doc, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode tenant: %w", err)
	}
	_, err = b.pool.Exec(ctx, `
		INSERT INTO tenants (id, doc)
		VALUES ($1, $2::jsonb)
	`, t.ID, string(doc))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrExists
	}
	return err
}

func (b *PostgresBackend) Mutate(ctx context.Context, id string, fn MutateFunc) (model.Tenant, error) {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return model.Tenant{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var raw []byte
	err = tx.QueryRow(ctx, `SELECT doc FROM tenants WHERE id = $1 FOR UPDATE`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Tenant{}, ErrNotFound
	}
	if err != nil {
		return model.Tenant{}, err
	}
	t, err := decodeTenant(raw)
	if err != nil {
		return model.Tenant{}, fmt.Errorf("decode tenant: %w", err)
	}
	if err := fn(&t); err != nil {
		return model.Tenant{}, err
	}
	doc, err := json.Marshal(t)
	if err != nil {
		return model.Tenant{}, fmt.Errorf("encode tenant: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE tenants
		SET doc = $2::jsonb,
			updated_at = now()
		WHERE id = $1
	`, id, string(doc)); err != nil {
		return model.Tenant{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Tenant{}, err
	}
	return t, nil
}

func (b *PostgresBackend) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := b.pool.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (b *PostgresBackend) Ping(ctx context.Context) error {
	return b.pool.Ping(ctx)
}
