package wallet

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"

	"github.com/bandeira-tech/b3nd-sdk/pkg/canonicalize"
)

func hexEncode(b []byte) string { return hex.EncodeToString(b) }

func hexDecode(s string) ([]byte, error) { return hex.DecodeString(s) }

// generateSigningKeypair returns a principal's long-term Ed25519 identity.
func generateSigningKeypair() (pub ed25519.PublicKey, priv ed25519.PrivateKey, err error) {
	return ed25519.GenerateKey(rand.Reader)
}

// generateEncryptionKeypair returns a principal's long-term X25519
// encryption keypair.
func generateEncryptionKeypair() (pub, priv [32]byte, err error) {
	if _, err = rand.Read(priv[:]); err != nil {
		return pub, priv, err
	}
	pubSlice, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return pub, priv, err
	}
	copy(pub[:], pubSlice)
	return pub, priv, nil
}

// canonicalSignedPayload reproduces pkg/schema's canonicalSignedPayload:
// the URI concatenated with the canonical serialization of the payload.
// Writes the wallet produces must sign exactly this so they validate
// against schema.PubkeyScopedMutable without modification.
func canonicalSignedPayload(uri string, payload interface{}) ([]byte, error) {
	b, err := canonicalize.Bytes(payload)
	if err != nil {
		return nil, err
	}
	return append([]byte(uri), b...), nil
}

// signEnvelope wraps payload as {auth:[{pubkey,signature}], payload} with
// a signature from priv over (uri, payload) (§4.9 Signed writes).
func signEnvelope(priv ed25519.PrivateKey, uri string, payload interface{}) (map[string]interface{}, error) {
	bytes, err := canonicalSignedPayload(uri, payload)
	if err != nil {
		return nil, err
	}
	sig := ed25519.Sign(priv, bytes)
	pub := priv.Public().(ed25519.PublicKey)
	return map[string]interface{}{
		"auth": []map[string]interface{}{
			{"pubkey": hexEncode(pub), "signature": hexEncode(sig)},
		},
		"payload": payload,
	}, nil
}

// deriveSymmetricKey turns a raw X25519 shared secret into a chacha20poly1305
// key via SHA-256, rather than using the shared secret bytes directly.
func deriveSymmetricKey(shared []byte) []byte {
	sum := sha256.Sum256(shared)
	return sum[:]
}

// encryptedPayload is the shape a wallet-encrypted record's payload takes
// (§4.9 Optional envelope encryption).
type encryptedPayload struct {
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// encryptForRecipient seals value for recipientEncPub using
// X25519(senderEncPriv, recipientEncPub) → AEAD.
func encryptForRecipient(senderEncPriv, recipientEncPub [32]byte, value interface{}) (*encryptedPayload, error) {
	shared, err := curve25519.X25519(senderEncPriv[:], recipientEncPub[:])
	if err != nil {
		return nil, fmt.Errorf("wallet: key agreement failed: %w", err)
	}
	aead, err := chacha20poly1305.New(deriveSymmetricKey(shared))
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	plain, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	ciphertext := aead.Seal(nil, nonce, plain, nil)
	return &encryptedPayload{Nonce: hexEncode(nonce), Ciphertext: hexEncode(ciphertext)}, nil
}

// decryptFromSender opens a payload sealed by encryptForRecipient, where
// recipientEncPriv belongs to the party calling decrypt.
func decryptFromSender(recipientEncPriv, senderEncPub [32]byte, sealed *encryptedPayload) (interface{}, error) {
	nonce, err := hexDecode(sealed.Nonce)
	if err != nil {
		return nil, fmt.Errorf("wallet: invalid nonce: %w", err)
	}
	ciphertext, err := hexDecode(sealed.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("wallet: invalid ciphertext: %w", err)
	}
	shared, err := curve25519.X25519(recipientEncPriv[:], senderEncPub[:])
	if err != nil {
		return nil, fmt.Errorf("wallet: key agreement failed: %w", err)
	}
	aead, err := chacha20poly1305.New(deriveSymmetricKey(shared))
	if err != nil {
		return nil, err
	}
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("wallet: ciphertext cannot be opened: %w", err)
	}
	var v interface{}
	if err := json.Unmarshal(plain, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// parseEncryptedPayload recognizes the {nonce,ciphertext} shape inside a
// read record's payload, distinguishing an encrypted write from a plain
// signed one.
func parseEncryptedPayload(v interface{}) (*encryptedPayload, bool) {
	switch x := v.(type) {
	case *encryptedPayload:
		return x, true
	case encryptedPayload:
		return &x, true
	case map[string]interface{}:
		nonce, nOK := x["nonce"].(string)
		ciphertext, cOK := x["ciphertext"].(string)
		if !nOK || !cOK {
			return nil, false
		}
		return &encryptedPayload{Nonce: nonce, Ciphertext: ciphertext}, true
	default:
		return nil, false
	}
}
