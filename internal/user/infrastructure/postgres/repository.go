package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orderflow/orderflow/internal/user/domain"
	"github.com/orderflow/orderflow/pkg/outbox"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) Create(ctx context.Context, u domain.User) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO users (id, username, balance, created_at) VALUES ($1,$2,$3,$4)`,
		u.ID, u.Username, u.Balance, u.CreatedAt)
	return err
}

func (r *Repository) Get(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	err := r.pool.QueryRow(ctx, `SELECT id, username, balance, created_at FROM users WHERE id=$1`, id).
		Scan(&u.ID, &u.Username, &u.Balance, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, err
	}
	return u, nil
}

// ReserveCredit runs the whole check-and-debit as one transaction. The
// user row lock serializes concurrent reservations per user; the hold row
// keyed by order id absorbs redelivered events.
func (r *Repository) ReserveCredit(ctx context.Context, res domain.Reservation, event func(outcome domain.ReserveOutcome) (outbox.Record, error)) (domain.ReserveOutcome, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var exists bool
	err = tx.QueryRow(ctx, `SELECT true FROM users WHERE id=$1 FOR UPDATE`, res.UserID).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrNotFound
		}
		return "", err
	}

	outcome := domain.OutcomeReserved

	ct, err := tx.Exec(ctx, `INSERT INTO reservations (order_id, user_id, amount, status, created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (order_id) DO NOTHING`,
		res.OrderID, res.UserID, res.Amount, domain.HoldHeld, res.CreatedAt)
	if err != nil {
		return "", err
	}

	if ct.RowsAffected() == 0 {
		// Redelivered event: the hold already exists. Re-resolve to the
		// outcome the hold's status records; downstream treats a late
		// failure event as a no-op when the order is already terminal.
		var status domain.ReservationStatus
		if err := tx.QueryRow(ctx, `SELECT status FROM reservations WHERE order_id=$1`, res.OrderID).Scan(&status); err != nil {
			return "", err
		}
		switch status {
		case domain.HoldHeld:
			outcome = domain.OutcomeDuplicate
		case domain.HoldReleased:
			outcome = domain.OutcomeReleased
		default:
			outcome = domain.OutcomeInsufficient
		}
	} else {
		debit, err := tx.Exec(ctx, `UPDATE users SET balance = balance - $2 WHERE id=$1 AND balance >= $2`,
			res.UserID, res.Amount)
		if err != nil {
			return "", err
		}
		if debit.RowsAffected() == 0 {
			outcome = domain.OutcomeInsufficient
			_, err = tx.Exec(ctx, `UPDATE reservations SET status=$2 WHERE order_id=$1`, res.OrderID, domain.HoldRefused)
			if err != nil {
				return "", err
			}
		}
	}

	rec, err := event(outcome)
	if err != nil {
		return "", err
	}
	if err := outbox.InsertTx(ctx, tx, rec); err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return outcome, nil
}

func (r *Repository) ReleaseCredit(ctx context.Context, orderID string) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var userID string
	var amount int64
	err = tx.QueryRow(ctx, `UPDATE reservations SET status=$2 WHERE order_id=$1 AND status=$3 RETURNING user_id, amount`,
		orderID, domain.HoldReleased, domain.HoldHeld).
		Scan(&userID, &amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	_, err = tx.Exec(ctx, `UPDATE users SET balance = balance + $2 WHERE id=$1`, userID, amount)
	if err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

func (r *Repository) EnqueueEvent(ctx context.Context, rec outbox.Record) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := outbox.InsertTx(ctx, tx, rec); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
