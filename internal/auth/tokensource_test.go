package auth

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAppTokenSource(t *testing.T) {
	fx := &fakeExchanger{clientCredsGrant: &TokenGrant{AccessToken: "app-1", ExpiresIn: 1800}}
	src := AppTokenSource(NewAppTokenCache(fx), "product.compact")

	tok, err := src.Token()
	require.NoError(t, err)
	require.Equal(t, "app-1", tok.AccessToken)
	require.Equal(t, "Bearer", tok.TokenType)
	require.Equal(t, "product.compact", fx.lastScope)
}

func TestUserTokenSourceAuthRequired(t *testing.T) {
	fx := &fakeExchanger{}
	store, err := NewFileStore(filepath.Join(t.TempDir(), "tokens.json"))
	require.NoError(t, err)
	src := UserTokenSource(NewUserTokenManager(store, fx))

	_, err = src.Token()
	require.ErrorIs(t, err, ErrAuthRequired)

	writeCredential(t, store, &Credential{
		AccessToken: "user-1",
		ExpiresAt:   time.Now().Add(time.Hour).UnixMilli(),
	})

	tok, err := src.Token()
	require.NoError(t, err)
	require.Equal(t, "user-1", tok.AccessToken)
	require.Equal(t, "Bearer", tok.TokenType)
}
