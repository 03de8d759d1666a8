package service

import (
	"context"
	"testing"

	"github.com/pokerjest/acms/internal/db"
	"github.com/pokerjest/acms/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService(t *testing.T) {
	conn, err := db.Open(":memory:")
	require.NoError(t, err)
	svc := NewAuthService(conn, logger.Nop())
	ctx := context.Background()

	require.NoError(t, svc.EnsureAdmin(ctx, "admin", "admin"))
	// second call is a no-op
	require.NoError(t, svc.EnsureAdmin(ctx, "root", "secret"))

	user, err := svc.Login(ctx, "admin", "admin")
	require.NoError(t, err)
	assert.Equal(t, "admin", user.Username)

	_, err = svc.Login(ctx, "root", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "admin", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	assert.ErrorIs(t, svc.ChangePassword(ctx, user.ID, "admin", "123"), ErrWeakPassword)
	assert.ErrorIs(t, svc.ChangePassword(ctx, user.ID, "nope", "new-password"), ErrInvalidCredentials)
	require.NoError(t, svc.ChangePassword(ctx, user.ID, "admin", "new-password"))

	_, err = svc.Login(ctx, "admin", "new-password")
	assert.NoError(t, err)
}
