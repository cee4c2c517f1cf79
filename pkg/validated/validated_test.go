package validated_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bandeira-tech/b3nd-sdk/pkg/node"
	"github.com/bandeira-tech/b3nd-sdk/pkg/schema"
	"github.com/bandeira-tech/b3nd-sdk/pkg/store/memory"
	"github.com/bandeira-tech/b3nd-sdk/pkg/validated"
)

func TestReceive_NoSchemaRegisteredRejects(t *testing.T) {
	reg := schema.NewRegistry()
	c := validated.New(memory.New(), reg)

	res := c.Receive(context.Background(), node.ReceiveInput{URI: "notes://alice/todo", Data: "x"})
	require.False(t, res.Accepted)
	require.Equal(t, node.KindNoSchema, res.Error.Kind)
}

func TestReceive_RegisteredValidatorGatesWrite(t *testing.T) {
	reg := schema.NewRegistry()
	reg.Register("notes://alice", schema.OpenImmutable())
	c := validated.New(memory.New(), reg)
	ctx := context.Background()

	res := c.Receive(ctx, node.ReceiveInput{URI: "notes://alice/todo", Data: "first"})
	require.True(t, res.Accepted)

	res = c.Receive(ctx, node.ReceiveInput{URI: "notes://alice/todo", Data: "second"})
	require.False(t, res.Accepted)
	require.Equal(t, node.KindImmutableExists, res.Error.Kind)
}

func TestReceive_MalformedURIRejected(t *testing.T) {
	reg := schema.NewRegistry()
	c := validated.New(memory.New(), reg)

	res := c.Receive(context.Background(), node.ReceiveInput{URI: "not-a-uri", Data: 1})
	require.False(t, res.Accepted)
	require.Equal(t, node.KindValidation, res.Error.Kind)
}

func TestReadWriteListDeletePassThrough(t *testing.T) {
	reg := schema.NewRegistry()
	reg.Register("notes://alice", schema.OpenMutable())
	c := validated.New(memory.New(), reg)
	ctx := context.Background()

	res := c.Receive(ctx, node.ReceiveInput{URI: "notes://alice/todo", Data: "buy milk"})
	require.True(t, res.Accepted)

	read := c.Read(ctx, "notes://alice/todo")
	require.True(t, read.OK)
	require.Equal(t, "buy milk", read.Record.Data)

	list := c.List(ctx, "notes://alice", node.DefaultListOptions())
	require.Nil(t, list.Error)
	require.Len(t, list.Items, 1)

	del := c.Delete(ctx, "notes://alice/todo")
	require.True(t, del.OK)

	read = c.Read(ctx, "notes://alice/todo")
	require.False(t, read.OK)
	require.Equal(t, node.KindNotFound, read.Error.Kind)
}
