package document

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bandeira-tech/b3nd-sdk/pkg/node"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestReceiveAndRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res := s.Receive(ctx, node.ReceiveInput{URI: "users://alice/profile", Data: map[string]interface{}{"name": "Alice"}})
	require.True(t, res.Accepted)

	read := s.Read(ctx, "users://alice/profile")
	require.True(t, read.OK)
	require.Equal(t, "Alice", read.Record.Data.(map[string]interface{})["name"])
}

func TestRead_NotFound(t *testing.T) {
	s := newTestStore(t)
	read := s.Read(context.Background(), "users://alice/missing")
	require.False(t, read.OK)
	require.Equal(t, node.KindNotFound, read.Error.Kind)
}

func TestList_LeafAndDirectory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.Receive(ctx, node.ReceiveInput{URI: "users://alice/profile", Data: 1})
	s.Receive(ctx, node.ReceiveInput{URI: "users://alice/settings/theme", Data: "dark"})

	res := s.List(ctx, "users://alice", node.DefaultListOptions())
	require.Len(t, res.Items, 2)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.Receive(ctx, node.ReceiveInput{URI: "users://alice/profile", Data: 1})

	res := s.Delete(ctx, "users://alice/profile")
	require.True(t, res.OK)

	res = s.Delete(ctx, "users://alice/profile")
	require.False(t, res.OK)
	require.Equal(t, node.KindNotFound, res.Error.Kind)
}

func TestListPrograms(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.Receive(ctx, node.ReceiveInput{URI: "users://alice/profile", Data: 1})
	s.Receive(ctx, node.ReceiveInput{URI: "orders://shop/1", Data: 2})

	require.ElementsMatch(t, []string{"users://alice", "orders://shop"}, s.ListPrograms(ctx))
}

func TestHealth(t *testing.T) {
	s := newTestStore(t)
	res := s.Health(context.Background())
	require.Equal(t, node.HealthHealthy, res.Status)
}
