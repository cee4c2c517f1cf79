package compose

import (
	"context"

	"github.com/bandeira-tech/b3nd-sdk/pkg/node"
)

// FirstMatch queries peers in order on Read/List, returning the first
// result that succeeds. It pairs with a write-side combinator (typically
// Broadcast), Receive and Delete are not meaningful for FirstMatch
// alone and return a backend error if called directly.
type FirstMatch struct {
	peers []node.Node
}

// NewFirstMatch returns a FirstMatch over peers, queried in the given order.
func NewFirstMatch(peers ...node.Node) *FirstMatch {
	return &FirstMatch{peers: peers}
}

var _ node.Node = (*FirstMatch)(nil)

func (f *FirstMatch) Read(ctx context.Context, uri string) node.ReadResult {
	var last node.ReadResult
	for _, p := range f.peers {
		res := p.Read(ctx, uri)
		if res.OK {
			return res
		}
		last = res
	}
	if last.Error == nil {
		last.Error = node.NewError(node.KindNotFound, uri, nil)
	}
	return node.ReadResult{OK: false, Error: last.Error}
}

func (f *FirstMatch) ReadMulti(ctx context.Context, uris []string) node.ReadMultiResult {
	if err := node.CheckBatchSize(uris); err != nil {
		return node.ReadMultiResult{Results: map[string]node.ReadResult{}, Summary: node.BatchSummary{Total: len(uris), Failed: len(uris)}}
	}
	results := make(map[string]node.ReadResult, len(uris))
	summary := node.BatchSummary{Total: len(uris)}
	for _, u := range uris {
		r := f.Read(ctx, u)
		results[u] = r
		if r.OK {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}
	return node.ReadMultiResult{Results: results, Summary: summary}
}

func (f *FirstMatch) List(ctx context.Context, uri string, opts node.ListOptions) node.ListResult {
	var last node.ListResult
	for _, p := range f.peers {
		res := p.List(ctx, uri, opts)
		if len(res.Items) > 0 {
			return res
		}
		last = res
	}
	return last
}

func (f *FirstMatch) Health(ctx context.Context) node.HealthResult {
	return firstPeer(f.peers).Health(ctx)
}

func (f *FirstMatch) ListPrograms(ctx context.Context) []string {
	seen := map[string]bool{}
	var all []string
	for _, p := range f.peers {
		for _, k := range p.ListPrograms(ctx) {
			if !seen[k] {
				seen[k] = true
				all = append(all, k)
			}
		}
	}
	return all
}

func (f *FirstMatch) Close() error {
	var firstErr error
	for _, p := range f.peers {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Receive is not defined for FirstMatch alone, pair it with a write
// combinator. Calling it directly is a backend-level misuse, not a
// protocol operation, so it reports KindBackend rather than silently
// writing to only the first peer.
func (f *FirstMatch) Receive(context.Context, node.ReceiveInput) node.ReceiveResult {
	return node.ReceiveResult{Accepted: false, Error: node.NewError(node.KindBackend, "first-match has no write semantics; pair it with a write combinator", nil)}
}

// Delete has the same caveat as Receive.
func (f *FirstMatch) Delete(context.Context, string) node.DeleteResult {
	return node.DeleteResult{OK: false, Error: node.NewError(node.KindBackend, "first-match has no write semantics; pair it with a write combinator", nil)}
}
