package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bandeira-tech/b3nd-sdk/pkg/node"
)

func TestReceiveAndRead(t *testing.T) {
	s := New()
	ctx := context.Background()

	res := s.Receive(ctx, node.ReceiveInput{URI: "users://alice/profile", Data: map[string]interface{}{"name": "Alice"}})
	require.True(t, res.Accepted)

	read := s.Read(ctx, "users://alice/profile")
	require.True(t, read.OK)
	require.Equal(t, map[string]interface{}{"name": "Alice"}, read.Record.Data)
}

func TestRead_NotFound(t *testing.T) {
	s := New()
	read := s.Read(context.Background(), "users://alice/missing")
	require.False(t, read.OK)
	require.Equal(t, node.KindNotFound, read.Error.Kind)
}

func TestList_LeafAndDirectory(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Receive(ctx, node.ReceiveInput{URI: "users://alice/profile", Data: 1})
	s.Receive(ctx, node.ReceiveInput{URI: "users://alice/settings/theme", Data: "dark"})

	res := s.List(ctx, "users://alice", node.DefaultListOptions())
	require.Len(t, res.Items, 2)

	byURI := map[string]string{}
	for _, it := range res.Items {
		byURI[it.URI] = string(it.Kind)
	}
	require.Equal(t, "leaf", byURI["users://alice/profile"])
	require.Equal(t, "directory", byURI["users://alice/settings"])
}

func TestList_MalformedOrBareScheme(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Receive(ctx, node.ReceiveInput{URI: "users://alice/profile", Data: 1})

	require.Empty(t, s.List(ctx, "not-a-uri", node.DefaultListOptions()).Items)
	require.Empty(t, s.List(ctx, "users://", node.DefaultListOptions()).Items)
}

func TestList_Pagination(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		s.Receive(ctx, node.ReceiveInput{URI: "users://people/" + name, Data: name})
	}

	opts := node.ListOptions{Page: 1, Limit: 2, SortBy: node.SortByName, SortOrder: node.SortAsc}
	res := s.List(ctx, "users://people", opts)
	require.Len(t, res.Items, 2)
	require.Equal(t, "users://people/a", res.Items[0].URI)
	require.Equal(t, 5, res.Page.Total)

	opts.Page = 3
	res = s.List(ctx, "users://people", opts)
	require.Len(t, res.Items, 1)
	require.Equal(t, "users://people/e", res.Items[0].URI)
}

func TestList_PatternFilter(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Receive(ctx, node.ReceiveInput{URI: "users://people/alice", Data: 1})
	s.Receive(ctx, node.ReceiveInput{URI: "users://people/bob", Data: 2})

	opts := node.DefaultListOptions()
	opts.Pattern = "alice"
	res := s.List(ctx, "users://people", opts)
	require.Len(t, res.Items, 1)
	require.Equal(t, "users://people/alice", res.Items[0].URI)
}

func TestDelete(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Receive(ctx, node.ReceiveInput{URI: "users://alice/profile", Data: 1})

	res := s.Delete(ctx, "users://alice/profile")
	require.True(t, res.OK)

	read := s.Read(ctx, "users://alice/profile")
	require.False(t, read.OK)

	res = s.Delete(ctx, "users://alice/profile")
	require.False(t, res.OK)
}

func TestReadMulti_RespectsBatchLimit(t *testing.T) {
	s := New()
	uris := make([]string, node.MaxBatchSize+1)
	for i := range uris {
		uris[i] = "users://people/x"
	}
	res := s.ReadMulti(context.Background(), uris)
	require.Equal(t, node.MaxBatchSize+1, res.Summary.Total)
	require.Equal(t, node.MaxBatchSize+1, res.Summary.Failed)
}

func TestListPrograms(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Receive(ctx, node.ReceiveInput{URI: "users://alice/profile", Data: 1})
	s.Receive(ctx, node.ReceiveInput{URI: "orders://shop/1", Data: 2})

	programs := s.ListPrograms(ctx)
	require.ElementsMatch(t, []string{"users://alice", "orders://shop"}, programs)
}
