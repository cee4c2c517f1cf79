// Package validated wraps a node.Node with a schema-registry pre-step on
// Receive: §4.2 of the protocol.
package validated

import (
	"context"

	"github.com/bandeira-tech/b3nd-sdk/pkg/node"
	"github.com/bandeira-tech/b3nd-sdk/pkg/record"
	"github.com/bandeira-tech/b3nd-sdk/pkg/schema"
)

// Client wraps a backend node with validation. Reads, lists, deletes,
// health, and program listing pass through unchanged; only Receive is
// gated.
type Client struct {
	backend  node.Node
	registry *schema.Registry
}

// New returns a validated wrapper around backend using registry to gate
// writes.
func New(backend node.Node, registry *schema.Registry) *Client {
	return &Client{backend: backend, registry: registry}
}

var _ node.Node = (*Client)(nil)

func (c *Client) Receive(ctx context.Context, in node.ReceiveInput) node.ReceiveResult {
	uri, err := record.Parse(in.URI)
	if err != nil {
		e := node.NewError(node.KindValidation, err.Error(), nil)
		return node.ReceiveResult{Accepted: false, Error: e}
	}

	// The validator's read handle is backend.Read directly, never
	// routed back through this wrapper, so a validator cannot recurse
	// into another validation pass and cannot write.
	result := c.registry.Validate(ctx, uri, in.Data, readOnlyBackend{c.backend})
	if !result.Valid {
		return node.ReceiveResult{Accepted: false, Error: result.Error, ResolvedURI: in.URI}
	}

	return c.backend.Receive(ctx, in)
}

func (c *Client) Read(ctx context.Context, uri string) node.ReadResult {
	return c.backend.Read(ctx, uri)
}

func (c *Client) ReadMulti(ctx context.Context, uris []string) node.ReadMultiResult {
	return c.backend.ReadMulti(ctx, uris)
}

func (c *Client) List(ctx context.Context, uri string, opts node.ListOptions) node.ListResult {
	return c.backend.List(ctx, uri, opts)
}

func (c *Client) Delete(ctx context.Context, uri string) node.DeleteResult {
	return c.backend.Delete(ctx, uri)
}

func (c *Client) Health(ctx context.Context) node.HealthResult {
	return c.backend.Health(ctx)
}

func (c *Client) ListPrograms(ctx context.Context) []string {
	return c.backend.ListPrograms(ctx)
}

func (c *Client) Close() error {
	return c.backend.Close()
}

// readOnlyBackend exposes only Read from a node.Node, so validators
// cannot be handed anything with a Receive method even by mistake.
type readOnlyBackend struct{ n node.Node }

func (r readOnlyBackend) Read(ctx context.Context, uri string) node.ReadResult {
	return r.n.Read(ctx, uri)
}
