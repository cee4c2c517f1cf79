package browser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bandeira-tech/b3nd-sdk/pkg/node"
)

func TestKVStore_ReceiveAndRead(t *testing.T) {
	s := NewKVStore("app1")
	ctx := context.Background()

	res := s.Receive(ctx, node.ReceiveInput{URI: "users://alice/profile", Data: map[string]interface{}{"name": "Alice"}})
	require.True(t, res.Accepted)

	read := s.Read(ctx, "users://alice/profile")
	require.True(t, read.OK)
	require.Equal(t, "Alice", read.Record.Data.(map[string]interface{})["name"])
}

func TestKVStore_Namespacing(t *testing.T) {
	a := NewKVStore("app1")
	b := NewKVStore("app2")
	ctx := context.Background()

	a.Receive(ctx, node.ReceiveInput{URI: "users://alice/profile", Data: 1})
	read := b.Read(ctx, "users://alice/profile")
	require.False(t, read.OK)
}

func TestKVStore_List(t *testing.T) {
	s := NewKVStore("app1")
	ctx := context.Background()
	s.Receive(ctx, node.ReceiveInput{URI: "users://alice/profile", Data: 1})
	s.Receive(ctx, node.ReceiveInput{URI: "users://alice/settings/theme", Data: "dark"})

	res := s.List(ctx, "users://alice", node.DefaultListOptions())
	require.Len(t, res.Items, 2)
}

func TestIndexedStore_ReceiveReadDelete(t *testing.T) {
	s, err := NewIndexedStore("app1", 1)
	require.NoError(t, err)
	ctx := context.Background()

	res := s.Receive(ctx, node.ReceiveInput{URI: "orders://shop/1", Data: map[string]interface{}{"amount": 10.0}})
	require.True(t, res.Accepted)

	read := s.Read(ctx, "orders://shop/1")
	require.True(t, read.OK)

	del := s.Delete(ctx, "orders://shop/1")
	require.True(t, del.OK)

	read = s.Read(ctx, "orders://shop/1")
	require.False(t, read.OK)
}

func TestIndexedStore_SortByTS(t *testing.T) {
	s, err := NewIndexedStore("app1", 1)
	require.NoError(t, err)
	ctx := context.Background()
	s.Receive(ctx, node.ReceiveInput{URI: "orders://shop/1", Data: 1})
	s.Receive(ctx, node.ReceiveInput{URI: "orders://shop/2", Data: 2})

	opts := node.ListOptions{Page: 1, Limit: 10, SortBy: node.SortByTS, SortOrder: node.SortAsc}
	res := s.List(ctx, "orders://shop", opts)
	require.Len(t, res.Items, 2)
	require.Equal(t, "orders://shop/1", res.Items[0].URI)
}
