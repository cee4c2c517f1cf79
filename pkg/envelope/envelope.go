// Package envelope detects multi-output batches at the receive boundary
// and unpacks them into individually addressable records: §4.6.
package envelope

import (
	"context"

	"github.com/bandeira-tech/b3nd-sdk/pkg/canonicalize"
	"github.com/bandeira-tech/b3nd-sdk/pkg/node"
)

// Output is one (uri, data) tuple inside a batch envelope.
type Output struct {
	URI  string
	Data interface{}
}

// Envelope is the batch shape: {inputs?: [...], outputs: [[uri, data], ...]}.
type Envelope struct {
	Inputs  interface{}
	Outputs []Output
}

// Detect inspects value for the envelope shape and returns it if present.
// The shape is structural: a map with an "outputs" key holding a list of
// two-element [uri, data] tuples. Anything else is not an envelope.
func Detect(value interface{}) (Envelope, bool) {
	m, ok := value.(map[string]interface{})
	if !ok {
		return Envelope{}, false
	}
	raw, ok := m["outputs"]
	if !ok {
		return Envelope{}, false
	}
	list, ok := raw.([]interface{})
	if !ok {
		return Envelope{}, false
	}
	outputs := make([]Output, 0, len(list))
	for _, entry := range list {
		tuple, ok := entry.([]interface{})
		if !ok || len(tuple) != 2 {
			return Envelope{}, false
		}
		uri, ok := tuple[0].(string)
		if !ok {
			return Envelope{}, false
		}
		outputs = append(outputs, Output{URI: uri, Data: tuple[1]})
	}
	return Envelope{Inputs: m["inputs"], Outputs: outputs}, true
}

// Client wraps a backend node and unpacks batch envelopes on Receive. A
// plain (non-envelope) receive passes through unchanged.
type Client struct {
	backend node.Node
}

// New returns an envelope-unpacking wrapper around backend.
func New(backend node.Node) *Client {
	return &Client{backend: backend}
}

var _ node.Node = (*Client)(nil)

func (c *Client) Receive(ctx context.Context, in node.ReceiveInput) node.ReceiveResult {
	env, ok := Detect(in.Data)
	if !ok {
		return c.backend.Receive(ctx, in)
	}

	h, err := canonicalize.Hash(in.Data)
	if err != nil {
		return node.ReceiveResult{Accepted: false, Error: node.NewError(node.KindBackend, "envelope: "+err.Error(), err)}
	}
	envelopeURI := "hash://sha256:" + h

	stored := c.backend.Receive(ctx, node.ReceiveInput{URI: envelopeURI, Data: in.Data})
	if !stored.Accepted && node.KindOf(stored.Error) != node.KindImmutableExists {
		return node.ReceiveResult{Accepted: false, Error: stored.Error, ResolvedURI: envelopeURI}
	}

	children := make([]node.ChildResult, 0, len(env.Outputs))
	allOK := true
	for _, out := range env.Outputs {
		res := c.Receive(ctx, node.ReceiveInput{URI: out.URI, Data: out.Data})
		children = append(children, node.ChildResult{URI: out.URI, Result: res})
		if !res.Accepted {
			allOK = false
		}
	}

	result := node.ReceiveResult{Accepted: allOK, ResolvedURI: envelopeURI, Children: children}
	if !allOK {
		result.Error = node.NewError(node.KindBackend, "envelope: one or more outputs failed", nil)
	}
	return result
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
