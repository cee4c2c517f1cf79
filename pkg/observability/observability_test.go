package observability_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bandeira-tech/b3nd-sdk/pkg/node"
	"github.com/bandeira-tech/b3nd-sdk/pkg/observability"
	"github.com/bandeira-tech/b3nd-sdk/pkg/store/memory"
)

func TestNew_DisabledWithoutEndpoint(t *testing.T) {
	cfg := observability.DefaultConfig()
	cfg.OTLPEndpoint = ""
	p, err := observability.New(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestWrap_PassesThroughWhenDisabled(t *testing.T) {
	cfg := observability.DefaultConfig()
	cfg.OTLPEndpoint = ""
	p, err := observability.New(context.Background(), cfg)
	require.NoError(t, err)

	backend := memory.New()
	n := observability.Wrap(backend, p)
	ctx := context.Background()

	res := n.Receive(ctx, node.ReceiveInput{URI: "notes://alice/todo", Data: "buy milk"})
	require.True(t, res.Accepted)

	read := n.Read(ctx, "notes://alice/todo")
	require.True(t, read.OK)
	require.Equal(t, "buy milk", read.Record.Data)

	list := n.List(ctx, "notes://alice", node.DefaultListOptions())
	require.Nil(t, list.Error)
	require.Len(t, list.Items, 1)

	del := n.Delete(ctx, "notes://alice/todo")
	require.True(t, del.OK)

	health := n.Health(ctx)
	require.Equal(t, node.HealthHealthy, health.Status)

	require.NoError(t, n.Close())
}
