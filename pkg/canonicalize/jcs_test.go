package canonicalize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBytes_SortsKeys(t *testing.T) {
	v := map[string]interface{}{"b": 1, "a": 2}
	b, err := Bytes(v)
	require.NoError(t, err)
	require.Equal(t, `{"a":2,"b":1}`, string(b))
}

func TestBytes_NoHTMLEscaping(t *testing.T) {
	v := map[string]interface{}{"html": "<a>&"}
	b, err := Bytes(v)
	require.NoError(t, err)
	require.Equal(t, `{"html":"<a>&"}`, string(b))
}

func TestBytes_NestedArraysAndObjects(t *testing.T) {
	v := map[string]interface{}{
		"list": []interface{}{3, 1, map[string]interface{}{"z": 1, "y": 2}},
	}
	b, err := Bytes(v)
	require.NoError(t, err)
	require.Equal(t, `{"list":[3,1,{"y":2,"z":1}]}`, string(b))
}

func TestHash_IsDeterministic(t *testing.T) {
	v1 := map[string]interface{}{"a": 1, "b": 2}
	v2 := map[string]interface{}{"b": 2, "a": 1}
	h1, err := Hash(v1)
	require.NoError(t, err)
	h2, err := Hash(v2)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestHashBytes(t *testing.T) {
	require.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		HashBytes(nil))
}
