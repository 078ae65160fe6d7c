package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orderflow/orderflow/internal/order/domain"
	"github.com/orderflow/orderflow/pkg/outbox"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) CreateWithOutbox(ctx context.Context, o domain.Order, rec outbox.Record) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx, `INSERT INTO orders (id, user_id, amount, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		o.ID, o.UserID, o.Amount, o.Status, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}
	if err := outbox.InsertTx(ctx, tx, rec); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Order, error) {
	var o domain.Order
	err := r.pool.QueryRow(ctx, `SELECT id, user_id, amount, status, created_at, updated_at FROM orders WHERE id=$1`, id).
		Scan(&o.ID, &o.UserID, &o.Amount, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, err
	}
	return o, nil
}

// Confirm is a conditional transition: the WHERE clause serializes
// concurrent confirm/cancel per order at the row level.
func (r *Repository) Confirm(ctx context.Context, id string) (bool, error) {
	ct, err := r.pool.Exec(ctx, `UPDATE orders SET status=$2, updated_at=$3 WHERE id=$1 AND status=$4`,
		id, domain.StatusConfirmed, time.Now().UTC(), domain.StatusPending)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() > 0 {
		return true, nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id=$1)`, id).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, domain.ErrNotFound
	}
	return false, nil
}

func (r *Repository) Cancel(ctx context.Context, id string, event func(o domain.Order) (outbox.Record, error)) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var o domain.Order
	err = tx.QueryRow(ctx, `SELECT id, user_id, amount, status, created_at, updated_at FROM orders WHERE id=$1 FOR UPDATE`, id).
		Scan(&o.ID, &o.UserID, &o.Amount, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, domain.ErrNotFound
		}
		return false, err
	}

	switch o.Status {
	case domain.StatusCanceled:
		return false, nil
	case domain.StatusConfirmed:
		return false, domain.ErrAlreadyFinalized
	}

	_, err = tx.Exec(ctx, `UPDATE orders SET status=$2, updated_at=$3 WHERE id=$1`,
		id, domain.StatusCanceled, time.Now().UTC())
	if err != nil {
		return false, err
	}

	rec, err := event(o)
	if err != nil {
		return false, err
	}
	if err := outbox.InsertTx(ctx, tx, rec); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}
