package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrder(t *testing.T) {
	o, err := NewOrder("user-1", 500)
	require.NoError(t, err)

	assert.NotEmpty(t, o.ID)
	assert.Equal(t, "user-1", o.UserID)
	assert.Equal(t, int64(500), o.Amount)
	assert.Equal(t, StatusPending, o.Status)
	assert.False(t, o.CreatedAt.IsZero())
}

func TestNewOrderRejectsNonPositiveAmount(t *testing.T) {
	for _, amount := range []int64{0, -1, -500} {
		_, err := NewOrder("user-1", amount)
		assert.ErrorIs(t, err, ErrInvalidAmount, "amount %d", amount)
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusConfirmed.Terminal())
	assert.True(t, StatusCanceled.Terminal())
}
