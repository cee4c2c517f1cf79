// Package compose implements the client-side composition combinators:
// parallel broadcast for writes and first-match sequence for reads.
// Both are themselves node.Node implementations, composition is by
// explicit construction, never special-cased.
package compose

import (
	"context"
	"fmt"
	"sync"

	"github.com/bandeira-tech/b3nd-sdk/pkg/node"
	"github.com/bandeira-tech/b3nd-sdk/pkg/record"
)

// Broadcast fans Receive/Delete out to every peer concurrently. The
// overall result is accepted only if at least MinAccepts peers accept
// (default: all of them, the protocol's unanimous default). Read, List,
// Health, and ListPrograms are served from the first peer.
type Broadcast struct {
	peers      []node.Node
	MinAccepts int
}

// NewBroadcast returns a Broadcast requiring unanimous acceptance.
func NewBroadcast(peers ...node.Node) *Broadcast {
	return &Broadcast{peers: peers, MinAccepts: len(peers)}
}

var _ node.Node = (*Broadcast)(nil)

func (b *Broadcast) Receive(ctx context.Context, in node.ReceiveInput) node.ReceiveResult {
	type outcome struct {
		idx int
		res node.ReceiveResult
	}
	results := make([]node.ReceiveResult, len(b.peers))
	outcomes := make(chan outcome, len(b.peers))

	var wg sync.WaitGroup
	for i, p := range b.peers {
		wg.Add(1)
		go func(idx int, peer node.Node) {
			defer wg.Done()
			outcomes <- outcome{idx: idx, res: peer.Receive(ctx, in)}
		}(i, p)
	}
	wg.Wait()
	close(outcomes)
	for o := range outcomes {
		results[o.idx] = o.res
	}

	accepted := 0
	var firstErr *node.Error
	resolved := in.URI
	for _, r := range results {
		if r.Accepted {
			accepted++
			if r.ResolvedURI != "" {
				resolved = r.ResolvedURI
			}
		} else if firstErr == nil {
			firstErr = r.Error
		}
	}

	min := b.MinAccepts
	if min <= 0 {
		min = len(b.peers)
	}
	if accepted < min {
		if firstErr == nil {
			firstErr = node.NewError(node.KindBackend, "broadcast: no peer accepted", nil)
		}
		return node.ReceiveResult{Accepted: false, Error: firstErr, ResolvedURI: resolved}
	}
	return node.ReceiveResult{Accepted: true, ResolvedURI: resolved}
}

func (b *Broadcast) Delete(ctx context.Context, uri string) node.DeleteResult {
	type outcome struct {
		idx int
		res node.DeleteResult
	}
	results := make([]node.DeleteResult, len(b.peers))
	outcomes := make(chan outcome, len(b.peers))

	var wg sync.WaitGroup
	for i, p := range b.peers {
		wg.Add(1)
		go func(idx int, peer node.Node) {
			defer wg.Done()
			outcomes <- outcome{idx: idx, res: peer.Delete(ctx, uri)}
		}(i, p)
	}
	wg.Wait()
	close(outcomes)
	for o := range outcomes {
		results[o.idx] = o.res
	}

	ok := 0
	var firstErr *node.Error
	for _, r := range results {
		if r.OK {
			ok++
		} else if firstErr == nil {
			firstErr = r.Error
		}
	}

	min := b.MinAccepts
	if min <= 0 {
		min = len(b.peers)
	}
	if ok < min {
		if firstErr == nil {
			firstErr = node.NewError(node.KindBackend, "broadcast: no peer deleted", nil)
		}
		return node.DeleteResult{OK: false, Error: firstErr}
	}
	return node.DeleteResult{OK: true}
}

func (b *Broadcast) Read(ctx context.Context, uri string) node.ReadResult {
	return firstPeer(b.peers).Read(ctx, uri)
}

func (b *Broadcast) ReadMulti(ctx context.Context, uris []string) node.ReadMultiResult {
	return firstPeer(b.peers).ReadMulti(ctx, uris)
}

func (b *Broadcast) List(ctx context.Context, uri string, opts node.ListOptions) node.ListResult {
	return firstPeer(b.peers).List(ctx, uri, opts)
}

func (b *Broadcast) Health(ctx context.Context) node.HealthResult {
	return firstPeer(b.peers).Health(ctx)
}

func (b *Broadcast) ListPrograms(ctx context.Context) []string {
	return firstPeer(b.peers).ListPrograms(ctx)
}

func (b *Broadcast) Close() error {
	var firstErr error
	for _, p := range b.peers {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("broadcast close: %w", err)
		}
	}
	return firstErr
}

func firstPeer(peers []node.Node) node.Node {
	if len(peers) == 0 {
		return emptyNode{}
	}
	return peers[0]
}

// emptyNode is used when a combinator has zero peers, so no op panics on
// an empty peer list: Receive fails with backend, Read and Delete with
// not-found, Health reports unhealthy, and ReadMulti, List and
// ListPrograms return empty results.
type emptyNode struct{}

func (emptyNode) Receive(context.Context, node.ReceiveInput) node.ReceiveResult {
	return node.ReceiveResult{Accepted: false, Error: node.NewError(node.KindBackend, "no peers configured", nil)}
}
func (emptyNode) Read(context.Context, string) node.ReadResult {
	return node.ReadResult{OK: false, Error: node.NewError(node.KindNotFound, "no peers configured", nil)}
}
func (emptyNode) ReadMulti(context.Context, []string) node.ReadMultiResult {
	return node.ReadMultiResult{Results: map[string]node.ReadResult{}}
}
func (emptyNode) List(context.Context, string, node.ListOptions) node.ListResult {
	return node.ListResult{Items: []record.ListItem{}}
}
func (emptyNode) Delete(context.Context, string) node.DeleteResult {
	return node.DeleteResult{OK: false, Error: node.NewError(node.KindNotFound, "no peers configured", nil)}
}
func (emptyNode) Health(context.Context) node.HealthResult {
	return node.HealthResult{Status: node.HealthUnhealthy}
}
func (emptyNode) ListPrograms(context.Context) []string { return nil }
func (emptyNode) Close() error                          { return nil }
