package schema

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bandeira-tech/b3nd-sdk/pkg/canonicalize"
	"github.com/bandeira-tech/b3nd-sdk/pkg/node"
	"github.com/bandeira-tech/b3nd-sdk/pkg/record"
)

type fakeReader struct{ records map[string]record.Record }

func (f fakeReader) Read(_ context.Context, uri string) node.ReadResult {
	r, ok := f.records[uri]
	if !ok {
		return node.ReadResult{OK: false, Error: node.NewError(node.KindNotFound, uri, nil)}
	}
	return node.ReadResult{OK: true, Record: r}
}

func TestRegistry_NoSchema(t *testing.T) {
	reg := NewRegistry()
	res := reg.Validate(context.Background(), record.MustParse("foo://bar/baz"), 1, fakeReader{})
	require.False(t, res.Valid)
	require.Equal(t, node.KindNoSchema, res.Error.Kind)
}

func TestOpenImmutable(t *testing.T) {
	reg := NewRegistry()
	reg.Register("once://open", OpenImmutable())

	empty := fakeReader{records: map[string]record.Record{}}
	res := reg.Validate(context.Background(), record.MustParse("once://open/42"), map[string]interface{}{"v": 1.0}, empty)
	require.True(t, res.Valid)

	occupied := fakeReader{records: map[string]record.Record{"once://open/42": {Data: 1}}}
	res = reg.Validate(context.Background(), record.MustParse("once://open/42"), map[string]interface{}{"v": 2.0}, occupied)
	require.False(t, res.Valid)
	require.Equal(t, node.KindImmutableExists, res.Error.Kind)
}

func TestContentHash(t *testing.T) {
	reg := NewRegistry()
	reg.Register("hash://sha256", ContentHash())

	value := map[string]interface{}{"x": 1.0}
	h, err := canonicalize.Hash(value)
	require.NoError(t, err)

	ok := reg.Validate(context.Background(), record.MustParse("hash://sha256:"+h), value, fakeReader{})
	require.True(t, ok.Valid)

	bad := reg.Validate(context.Background(), record.MustParse("hash://sha256:0000000000000000000000000000000000000000000000000000000000000000"), value, fakeReader{})
	require.False(t, bad.Valid)
	require.Equal(t, node.KindHashMismatch, bad.Error.Kind)
}

func TestPubkeyScopedMutable(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	pubHex := hex.EncodeToString(pub)

	reg := NewRegistry()
	reg.Register("mutable://accounts", PubkeyScopedMutable(PrincipalFromAuthority))

	uri := record.MustParse("mutable://" + pubHex + "/profile")
	payload := map[string]interface{}{"name": "Alice"}
	payloadBytes, err := canonicalSignedPayload(uri.String(), payload)
	require.NoError(t, err)
	sig := ed25519.Sign(priv, payloadBytes)

	value := map[string]interface{}{
		"auth": []interface{}{
			map[string]interface{}{"pubkey": pubHex, "signature": hex.EncodeToString(sig)},
		},
		"payload": payload,
	}

	res := reg.Validate(context.Background(), uri, value, fakeReader{})
	require.True(t, res.Valid)

	tampered := map[string]interface{}{
		"auth":    value["auth"],
		"payload": map[string]interface{}{"name": "Mallory"},
	}
	res = reg.Validate(context.Background(), uri, tampered, fakeReader{})
	require.False(t, res.Valid)
}

func TestSafeValidator_RecoversPanic(t *testing.T) {
	reg := NewRegistry()
	reg.Register("panics://x", ValidatorFunc(func(context.Context, record.URI, interface{}, node.ReadOnly) Result {
		panic("boom")
	}))
	res := reg.Validate(context.Background(), record.MustParse("panics://x/y"), nil, fakeReader{})
	require.False(t, res.Valid)
	require.Equal(t, node.KindValidation, res.Error.Kind)
}

func TestCELExpression(t *testing.T) {
	v, err := CELExpression(`value.amount <= 1000.0`)
	require.NoError(t, err)

	res := v.Validate(context.Background(), record.MustParse("orders://shop/1"), map[string]interface{}{"amount": 500.0}, fakeReader{})
	require.True(t, res.Valid)

	res = v.Validate(context.Background(), record.MustParse("orders://shop/1"), map[string]interface{}{"amount": 5000.0}, fakeReader{})
	require.False(t, res.Valid)
}

func TestJSONSchema(t *testing.T) {
	v, err := JSONSchema("users://open", `{"type":"object","required":["name"],"properties":{"name":{"type":"string"}}}`, false)
	require.NoError(t, err)

	res := v.Validate(context.Background(), record.MustParse("users://open/1"), map[string]interface{}{"name": "Alice"}, fakeReader{})
	require.True(t, res.Valid)

	res = v.Validate(context.Background(), record.MustParse("users://open/1"), map[string]interface{}{}, fakeReader{})
	require.False(t, res.Valid)
}
