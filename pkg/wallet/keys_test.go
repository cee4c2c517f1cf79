package wallet

import (
	"path/filepath"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateFileKeySet_GeneratesAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet-keys.json")

	ks, err := LoadOrCreateFileKeySet(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	pub := ks.PublicKeyHex()
	require.NotEmpty(t, pub)

	claims := SessionClaims{AppKey: "app", Username: "alice"}
	token, err := ks.Sign(claims)
	require.NoError(t, err)
	require.NotEmpty(t, token)
}

func TestLoadOrCreateFileKeySet_ReloadsSameKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet-keys.json")

	first, err := LoadOrCreateFileKeySet(path)
	require.NoError(t, err)
	claims := SessionClaims{AppKey: "app", Username: "alice"}
	token, err := first.Sign(claims)
	require.NoError(t, err)

	second, err := LoadOrCreateFileKeySet(path)
	require.NoError(t, err)
	require.Equal(t, first.PublicKeyHex(), second.PublicKeyHex())

	parsed, err := jwt.ParseWithClaims(token, &SessionClaims{}, second.KeyFunc())
	require.NoError(t, err)
	require.True(t, parsed.Valid)
}
