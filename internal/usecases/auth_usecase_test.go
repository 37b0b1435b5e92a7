package usecases

import (
	"context"
	"testing"
	"time"

	"chatdesk/internal/entities"
	"chatdesk/internal/repository/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "0123456789abcdef-jwt"

func TestEnsureAdminAndLogin(t *testing.T) {
	ctx := context.Background()
	auth := NewAuthUsecase(memstore.New(), testJWTSecret)

	require.NoError(t, auth.EnsureAdmin(ctx, "root", "hunter22"))
	require.NoError(t, auth.EnsureAdmin(ctx, "root", "ignored"), "second call is a no-op")

	_, err := auth.Login(ctx, "root", "wrong")
	assert.ErrorIs(t, err, entities.ErrInvalidCredentials)
	_, err = auth.Login(ctx, "nobody", "hunter22")
	assert.ErrorIs(t, err, entities.ErrInvalidCredentials)

	token, err := auth.Login(ctx, "root", "hunter22")
	require.NoError(t, err)
	claims, err := auth.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, entities.RoleAdmin, claims.Role)
	assert.Empty(t, claims.TenantID)
}

func TestAgentTokenCarriesTenant(t *testing.T) {
	ctx := context.Background()
	auth := NewAuthUsecase(memstore.New(), testJWTSecret)

	_, err := auth.CreateOperator(ctx, "alice", "pa55word", entities.RoleAgent, "tenant-1")
	require.NoError(t, err)
	_, err = auth.CreateOperator(ctx, "alice", "other", entities.RoleAgent, "tenant-2")
	assert.ErrorIs(t, err, entities.ErrConflict)

	token, err := auth.Login(ctx, "alice", "pa55word")
	require.NoError(t, err)
	claims, err := auth.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, entities.RoleAgent, claims.Role)
	assert.Equal(t, "tenant-1", claims.TenantID)
}

func TestParseTokenRejectsForeignAndExpired(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	auth := NewAuthUsecase(store, testJWTSecret)
	require.NoError(t, auth.EnsureAdmin(ctx, "root", "hunter22"))

	other := NewAuthUsecase(store, "another-secret-value-xx")
	foreign, err := other.Login(ctx, "root", "hunter22")
	require.NoError(t, err)
	_, err = auth.ParseToken(foreign)
	assert.ErrorIs(t, err, entities.ErrInvalidCredentials)

	token, err := auth.Login(ctx, "root", "hunter22")
	require.NoError(t, err)
	auth.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	_, err = auth.ParseToken(token)
	assert.ErrorIs(t, err, entities.ErrInvalidCredentials)

	_, err = auth.ParseToken("not-a-token")
	assert.ErrorIs(t, err, entities.ErrInvalidCredentials)
}
