package schema

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/bandeira-tech/b3nd-sdk/pkg/canonicalize"
	"github.com/bandeira-tech/b3nd-sdk/pkg/node"
	"github.com/bandeira-tech/b3nd-sdk/pkg/record"
)

// OpenMutable accepts any value unconditionally.
func OpenMutable() Validator {
	return ValidatorFunc(func(_ context.Context, _ record.URI, _ interface{}, _ node.ReadOnly) Result {
		return Valid()
	})
}

// OpenImmutable accepts only if no record currently exists at the URI.
func OpenImmutable() Validator {
	return ValidatorFunc(func(ctx context.Context, uri record.URI, _ interface{}, read node.ReadOnly) Result {
		if read.Read(ctx, uri.String()).OK {
			return Invalid(node.KindImmutableExists, fmt.Sprintf("%s already has a record", uri))
		}
		return Valid()
	})
}

// ContentHash accepts a value only if sha256(canonical(value)) equals the
// hash segment of the URI's authority ("hash://sha256:{hex}"). It is
// idempotent, re-accepting the same value at the same URI always
// succeeds, since the hash can never change without the URI changing too.
func ContentHash() Validator {
	return ValidatorFunc(func(_ context.Context, uri record.URI, value interface{}, _ node.ReadOnly) Result {
		want := authorityHash(uri.Authority)
		if want == "" {
			return Invalid(node.KindHashMismatch, fmt.Sprintf("authority %q does not declare a sha256 hash", uri.Authority))
		}
		got, err := canonicalize.Hash(value)
		if err != nil {
			return Invalid(node.KindValidation, "failed to canonicalize value: "+err.Error())
		}
		if !strings.EqualFold(got, want) {
			return Invalid(node.KindHashMismatch, fmt.Sprintf("sha256(canonical(value))=%s does not match URI hash %s", got, want))
		}
		return Valid()
	})
}

// authorityHash extracts the hex digest from an authority of the form
// "sha256:{hex}" or "{hex}".
func authorityHash(authority string) string {
	if idx := strings.Index(authority, ":"); idx >= 0 {
		return authority[idx+1:]
	}
	return authority
}

// Link accepts a value only if it is a syntactically valid
// "scheme://authority[/path]" URI string.
func Link() Validator {
	return ValidatorFunc(func(_ context.Context, _ record.URI, value interface{}, _ node.ReadOnly) Result {
		s, ok := value.(string)
		if !ok {
			return Invalid(node.KindValidation, "link value must be a string")
		}
		if _, err := record.Parse(s); err != nil {
			return Invalid(node.KindValidation, "link value is not a valid URI: "+err.Error())
		}
		return Valid()
	})
}

// PrincipalFromAuthority designates the authority segment of the URI as
// the expected pubkey for PubkeyScoped validators, matches URIs of the
// form "scheme://{pubkey-hex}/path".
func PrincipalFromAuthority(uri record.URI) string { return uri.Authority }

// PrincipalFromFirstPathSegment designates the first path segment as the
// expected pubkey, matches URIs of the form "scheme://app/{pubkey-hex}/path".
func PrincipalFromFirstPathSegment(uri record.URI) string {
	seg, _ := record.FirstSegment(uri.Path)
	return seg
}

// signedEnvelope is the shape a pubkey-scoped write must carry: one or
// more {pubkey, signature} pairs over the canonical bytes of
// (uri, payload). This is exactly what pkg/wallet produces for signed
// writes, so wallet-authored records validate directly against this kind.
type signedEnvelope struct {
	Auth    []authEntry `json:"auth"`
	Payload interface{} `json:"payload"`
}

type authEntry struct {
	Pubkey    string `json:"pubkey"`
	Signature string `json:"signature"`
}

func parseSignedEnvelope(value interface{}) (*signedEnvelope, bool) {
	m, ok := value.(map[string]interface{})
	if !ok {
		return nil, false
	}
	rawAuth, ok := m["auth"].([]interface{})
	if !ok || len(rawAuth) == 0 {
		return nil, false
	}
	env := &signedEnvelope{Payload: m["payload"]}
	for _, ra := range rawAuth {
		am, ok := ra.(map[string]interface{})
		if !ok {
			return nil, false
		}
		pk, _ := am["pubkey"].(string)
		sig, _ := am["signature"].(string)
		if pk == "" || sig == "" {
			return nil, false
		}
		env.Auth = append(env.Auth, authEntry{Pubkey: pk, Signature: sig})
	}
	return env, true
}

// canonicalSignedPayload reproduces the bytes a signer must sign: the URI
// concatenated with the canonical serialization of the payload.
func canonicalSignedPayload(uri string, payload interface{}) ([]byte, error) {
	payloadCanon, err := canonicalize.Bytes(payload)
	if err != nil {
		return nil, err
	}
	return append([]byte(uri), payloadCanon...), nil
}

func verifyAnySignature(env *signedEnvelope, uriStr, wantPubkeyHex string) bool {
	payloadBytes, err := canonicalSignedPayload(uriStr, env.Payload)
	if err != nil {
		return false
	}
	for _, a := range env.Auth {
		if !strings.EqualFold(a.Pubkey, wantPubkeyHex) {
			continue
		}
		pub, err := hex.DecodeString(a.Pubkey)
		if err != nil || len(pub) != ed25519.PublicKeySize {
			continue
		}
		sig, err := hex.DecodeString(a.Signature)
		if err != nil {
			continue
		}
		if ed25519.Verify(ed25519.PublicKey(pub), payloadBytes, sig) {
			return true
		}
	}
	return false
}

// PubkeyScopedMutable accepts a write only if its signedEnvelope carries a
// valid signature from the pubkey designated by principal(uri).
func PubkeyScopedMutable(principal func(record.URI) string) Validator {
	return ValidatorFunc(func(_ context.Context, uri record.URI, value interface{}, _ node.ReadOnly) Result {
		env, ok := parseSignedEnvelope(value)
		if !ok {
			return Invalid(node.KindValidation, "value must carry one or more {pubkey, signature} auth entries")
		}
		want := principal(uri)
		if !verifyAnySignature(env, uri.String(), want) {
			return Invalid(node.KindValidation, fmt.Sprintf("no valid signature from principal %q", want))
		}
		return Valid()
	})
}

// PubkeyScopedImmutable adds an absence check to PubkeyScopedMutable.
func PubkeyScopedImmutable(principal func(record.URI) string) Validator {
	mutable := PubkeyScopedMutable(principal)
	return ValidatorFunc(func(ctx context.Context, uri record.URI, value interface{}, read node.ReadOnly) Result {
		if res := mutable.Validate(ctx, uri, value, read); !res.Valid {
			return res
		}
		if read.Read(ctx, uri.String()).OK {
			return Invalid(node.KindImmutableExists, fmt.Sprintf("%s already has a record", uri))
		}
		return Valid()
	})
}
