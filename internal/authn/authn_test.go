package authn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedrun-hub/obstacle-engine/internal/apierr"
	"github.com/speedrun-hub/obstacle-engine/internal/model"
)

func TestVerifier_SignAndVerify(t *testing.T) {
	v := NewVerifier("test-signing-key")
	want := &Claims{PlayerID: 7, Login: "player7", Role: model.RolePlayer, ExpiresAt: time.Now().Add(time.Hour).Unix()}

	token, err := v.Sign(want)
	require.NoError(t, err)

	got, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, want.PlayerID, got.PlayerID)
	assert.Equal(t, want.Login, got.Login)
	assert.Equal(t, want.Role, got.Role)
}

func TestVerifier_RejectsExpiredToken(t *testing.T) {
	v := NewVerifier("test-signing-key")
	token, err := v.Sign(&Claims{PlayerID: 1, ExpiresAt: time.Now().Add(-time.Hour).Unix()})
	require.NoError(t, err)

	_, err = v.Verify(token)
	require.Error(t, err)
	e, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindUnauthorized, e.Kind)
}

func TestVerifier_RejectsWrongKey(t *testing.T) {
	signed, err := NewVerifier("key-a").Sign(&Claims{PlayerID: 1, ExpiresAt: time.Now().Add(time.Hour).Unix()})
	require.NoError(t, err)

	_, err = NewVerifier("key-b").Verify(signed)
	require.Error(t, err)
}

func TestRequireRole(t *testing.T) {
	assert.NoError(t, RequireRole(&Claims{Role: model.RoleAdmin}, model.RoleMod))
	assert.NoError(t, RequireRole(&Claims{Role: model.RoleMod}, model.RoleMod))
	assert.Error(t, RequireRole(&Claims{Role: model.RolePlayer}, model.RoleMod))
}
