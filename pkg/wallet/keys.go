package wallet

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims are the JWT claims issued at login (§4.9).
type SessionClaims struct {
	jwt.RegisteredClaims
	AppKey       string `json:"appKey"`
	Username     string `json:"username"`
	PrincipalPub string `json:"principalPub"`
}

// KeySet signs and verifies session JWTs, supporting rotation without
// downtime (old kids stay verifiable until evicted).
type KeySet interface {
	Sign(claims SessionClaims) (string, error)
	KeyFunc() jwt.Keyfunc
	PublicKeyHex() string
}

// InMemoryKeySet holds the wallet's own signing keys. Grounded on
// identity.KeySet's rotation scheme: one active kid, a bounded map of
// past keys kept verifiable.
type InMemoryKeySet struct {
	mu         sync.RWMutex
	currentKID string
	keys       map[string]ed25519.PrivateKey
}

// NewInMemoryKeySet generates an initial signing keypair.
func NewInMemoryKeySet() (*InMemoryKeySet, error) {
	ks := &InMemoryKeySet{keys: map[string]ed25519.PrivateKey{}}
	if err := ks.Rotate(); err != nil {
		return nil, err
	}
	return ks, nil
}

// Rotate generates a new active signing key; previously issued tokens
// remain verifiable until the bounded key history evicts them.
func (ks *InMemoryKeySet) Rotate() error {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("wallet: key generation failed: %w", err)
	}
	kid := fmt.Sprintf("wallet-key-%d", time.Now().UnixNano())

	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.keys[kid] = priv
	ks.currentKID = kid
	if len(ks.keys) > 10 {
		for k := range ks.keys {
			if k != kid {
				delete(ks.keys, k)
				break
			}
		}
	}
	return nil
}

func (ks *InMemoryKeySet) Sign(claims SessionClaims) (string, error) {
	ks.mu.RLock()
	kid := ks.currentKID
	priv := ks.keys[kid]
	ks.mu.RUnlock()
	if priv == nil {
		return "", fmt.Errorf("wallet: no active signing key")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	token.Header["kid"] = kid
	return token.SignedString(priv)
}

func (ks *InMemoryKeySet) KeyFunc() jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("wallet: unexpected signing method %v", token.Header["alg"])
		}
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("wallet: missing kid")
		}
		ks.mu.RLock()
		defer ks.mu.RUnlock()
		priv, ok := ks.keys[kid]
		if !ok {
			return nil, fmt.Errorf("wallet: unknown kid %q", kid)
		}
		return priv.Public(), nil
	}
}

// PublicKeyHex returns the active key's public half, hex-encoded, for
// /server-keys.
func (ks *InMemoryKeySet) PublicKeyHex() string {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	priv := ks.keys[ks.currentKID]
	if priv == nil {
		return ""
	}
	return hexEncode(priv.Public().(ed25519.PublicKey))
}

// fileKeystore is the on-disk JSON form of a persisted InMemoryKeySet.
type fileKeystore struct {
	CurrentKID string            `json:"currentKid"`
	Keys       map[string]string `json:"keys"` // kid -> base64 ed25519 private key
}

// LoadOrCreateFileKeySet loads a signing keyset from path, generating
// and persisting a fresh one if the file does not exist. Unlike
// NewInMemoryKeySet, the signing key survives a restart, so session
// tokens issued before a restart stay verifiable afterward. Grounded
// on kms.NewLocalKMS's load-or-generate-then-persist shape, adapted
// from a versioned AES keystore to the wallet's kid-keyed ed25519 set.
func LoadOrCreateFileKeySet(path string) (*InMemoryKeySet, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		ks, err := NewInMemoryKeySet()
		if err != nil {
			return nil, err
		}
		if err := persistFileKeySet(path, ks); err != nil {
			return nil, err
		}
		return ks, nil
	}
	if err != nil {
		return nil, fmt.Errorf("wallet: read keystore: %w", err)
	}

	var store fileKeystore
	if err := json.Unmarshal(data, &store); err != nil {
		return nil, fmt.Errorf("wallet: parse keystore: %w", err)
	}
	ks := &InMemoryKeySet{keys: map[string]ed25519.PrivateKey{}, currentKID: store.CurrentKID}
	for kid, encoded := range store.Keys {
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("wallet: decode key %q: %w", kid, err)
		}
		if len(raw) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("wallet: key %q has invalid length %d", kid, len(raw))
		}
		ks.keys[kid] = ed25519.PrivateKey(raw)
	}
	if _, ok := ks.keys[ks.currentKID]; !ok {
		return nil, fmt.Errorf("wallet: current kid %q not in keystore", ks.currentKID)
	}
	return ks, nil
}

func persistFileKeySet(path string, ks *InMemoryKeySet) error {
	ks.mu.RLock()
	store := fileKeystore{CurrentKID: ks.currentKID, Keys: make(map[string]string, len(ks.keys))}
	for kid, priv := range ks.keys {
		store.Keys[kid] = base64.StdEncoding.EncodeToString(priv)
	}
	ks.mu.RUnlock()

	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf("wallet: marshal keystore: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("wallet: create keystore dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("wallet: write keystore: %w", err)
	}
	return nil
}
