package integration

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/orderflow/internal/events"
	orderapp "github.com/orderflow/orderflow/internal/order/application"
	orderdomain "github.com/orderflow/orderflow/internal/order/domain"
	orderpg "github.com/orderflow/orderflow/internal/order/infrastructure/postgres"
	userapp "github.com/orderflow/orderflow/internal/user/application"
	userpg "github.com/orderflow/orderflow/internal/user/infrastructure/postgres"
	"github.com/orderflow/orderflow/pkg/db"
	"github.com/orderflow/orderflow/pkg/idempotency"
	"github.com/orderflow/orderflow/pkg/outbox"
)

func TestSagaAgainstBackingServices(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}

	ctx := context.Background()
	env, err := Setup(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { env.Teardown(context.Background()) })

	require.NoError(t, db.Migrate(env.PGURL, "../../migrations"))

	pool, err := db.NewPool(ctx, env.PGURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	log := slog.New(slog.DiscardHandler)
	orderSvc := orderapp.NewService(log, orderpg.NewRepository(log, pool))
	userSvc := userapp.NewService(log, userpg.NewRepository(log, pool))
	store := outbox.NewPGStore(log, pool)

	u, err := userSvc.CreateUser(ctx, "alice", 1000)
	require.NoError(t, err)

	// Create commits the order row and the OrderCreated outbox row in one
	// transaction; the relay's lock query must see exactly that row.
	o, err := orderSvc.CreateOrder(ctx, u.ID, 400, "")
	require.NoError(t, err)

	batch, err := store.LockBatch(ctx, "test-relay", 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, events.TopicOrderCreated, batch[0].Topic)
	assert.Equal(t, o.ID, batch[0].AggregateID)

	// A second relay instance must not pick up leased rows.
	other, err := store.LockBatch(ctx, "other-relay", 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, store.MarkSent(ctx, []int64{batch[0].ID}))

	// Reservation leg: debit sticks, CreditReserved queued.
	require.NoError(t, userSvc.ReserveCredit(ctx, o.ID, u.ID, 400, ""))
	gotUser, err := userSvc.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(600), gotUser.Balance)

	batch, err = store.LockBatch(ctx, "test-relay", 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, events.TopicCreditReserved, batch[0].Topic)
	require.NoError(t, store.MarkSent(ctx, []int64{batch[0].ID}))

	// Redelivered OrderCreated must not debit twice.
	require.NoError(t, userSvc.ReserveCredit(ctx, o.ID, u.ID, 400, ""))
	gotUser, err = userSvc.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(600), gotUser.Balance)

	require.NoError(t, orderSvc.ConfirmOrder(ctx, o.ID))
	gotOrder, err := orderSvc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusConfirmed, gotOrder.Status)
}

func TestCompensationAgainstPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}

	ctx := context.Background()
	env, err := Setup(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { env.Teardown(context.Background()) })

	require.NoError(t, db.Migrate(env.PGURL, "../../migrations"))

	pool, err := db.NewPool(ctx, env.PGURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	log := slog.New(slog.DiscardHandler)
	orderSvc := orderapp.NewService(log, orderpg.NewRepository(log, pool))
	userSvc := userapp.NewService(log, userpg.NewRepository(log, pool))

	u, err := userSvc.CreateUser(ctx, "bob", 500)
	require.NoError(t, err)
	o, err := orderSvc.CreateOrder(ctx, u.ID, 300, "")
	require.NoError(t, err)

	require.NoError(t, userSvc.ReserveCredit(ctx, o.ID, u.ID, 300, ""))
	require.NoError(t, orderSvc.CancelOrder(ctx, o.ID, ""))
	require.NoError(t, userSvc.ReleaseCredit(ctx, o.ID))

	gotUser, err := userSvc.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), gotUser.Balance)

	// Duplicate OrderCanceled: the inactive hold blocks a second credit.
	require.NoError(t, userSvc.ReleaseCredit(ctx, o.ID))
	gotUser, err = userSvc.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), gotUser.Balance)
}

func TestIdempotencyStoreAgainstRedis(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}

	ctx := context.Background()
	env, err := Setup(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { env.Teardown(context.Background()) })

	rdb := redis.NewClient(&redis.Options{Addr: env.RedisAddr})
	t.Cleanup(func() { _ = rdb.Close() })

	store := idempotency.NewStore(rdb, time.Minute)
	key := store.EventKey("17")

	// Checking is read-only; only an explicit mark flips the answer.
	seen, err := store.Seen(ctx, key)
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = store.Seen(ctx, key)
	require.NoError(t, err)
	assert.False(t, seen, "an unresolved event must stay unmarked across checks")

	require.NoError(t, store.Mark(ctx, key))

	seen, err = store.Seen(ctx, key)
	require.NoError(t, err)
	assert.True(t, seen)
}
