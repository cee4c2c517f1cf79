package compose

import (
	"context"

	"github.com/bandeira-tech/b3nd-sdk/pkg/node"
)

// Split composes a dedicated write-side node and read-side node into a
// single node.Node, e.g. {write: Broadcast([A,B]), read: FirstMatch([A,B])}
// for a replicated store, or {write: validated.New(Broadcast([A]), registry),
// read: FirstMatch([A])} to add schema enforcement on top.
type Split struct {
	Write  node.Node
	Reader node.Node
}

var _ node.Node = (*Split)(nil)

func (s *Split) Receive(ctx context.Context, in node.ReceiveInput) node.ReceiveResult {
	return s.Write.Receive(ctx, in)
}

func (s *Split) Delete(ctx context.Context, uri string) node.DeleteResult {
	return s.Write.Delete(ctx, uri)
}

func (s *Split) Read(ctx context.Context, uri string) node.ReadResult {
	return s.Reader.Read(ctx, uri)
}

func (s *Split) ReadMulti(ctx context.Context, uris []string) node.ReadMultiResult {
	return s.Reader.ReadMulti(ctx, uris)
}

func (s *Split) List(ctx context.Context, uri string, opts node.ListOptions) node.ListResult {
	return s.Reader.List(ctx, uri, opts)
}

func (s *Split) Health(ctx context.Context) node.HealthResult {
	return s.Reader.Health(ctx)
}

func (s *Split) ListPrograms(ctx context.Context) []string {
	return s.Reader.ListPrograms(ctx)
}

func (s *Split) Close() error {
	if err := s.Write.Close(); err != nil {
		return err
	}
	return s.Reader.Close()
}
