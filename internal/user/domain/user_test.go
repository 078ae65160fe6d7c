package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUser(t *testing.T) {
	u, err := NewUser("alice", 1000)
	require.NoError(t, err)

	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, int64(1000), u.Balance)
}

func TestNewUserAllowsZeroBalance(t *testing.T) {
	u, err := NewUser("bob", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), u.Balance)
}

func TestNewUserRejectsNegativeBalance(t *testing.T) {
	_, err := NewUser("eve", -1)
	assert.ErrorIs(t, err, ErrNegativeBalance)
}
