//go:build !js || !wasm

package browser

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bandeira-tech/b3nd-sdk/pkg/node"
	"github.com/bandeira-tech/b3nd-sdk/pkg/record"
)

// IndexedStore is an in-process stand-in for the browser IndexedDB
// backend, used by non-wasm builds. Unlike the wasm build, its List
// applies sortBy=ts, ordering entries by their stored ts.
type IndexedStore struct {
	dbName  string
	version int
	codec   Codec
	mu      sync.RWMutex
	data    map[string]storedEnvelope
}

// NewIndexedStore returns an IndexedStore. dbName/version are accepted
// for interface parity with the wasm build but otherwise unused here.
func NewIndexedStore(dbName string, version int) (*IndexedStore, error) {
	return &IndexedStore{dbName: dbName, version: version, codec: JSONCodec{}, data: map[string]storedEnvelope{}}, nil
}

var _ node.Node = (*IndexedStore)(nil)

func (s *IndexedStore) Receive(_ context.Context, in node.ReceiveInput) node.ReceiveResult {
	if _, err := record.Parse(in.URI); err != nil {
		return node.ReceiveResult{Accepted: false, Error: node.NewError(node.KindValidation, err.Error(), err)}
	}
	encoded, err := s.codec.Encode(in.Data)
	if err != nil {
		return node.ReceiveResult{Accepted: false, Error: node.NewError(node.KindBackend, err.Error(), err)}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := time.Now().UnixMilli()
	if prev, ok := s.data[in.URI]; ok && ts <= prev.TS {
		ts = prev.TS + 1
	}
	s.data[in.URI] = storedEnvelope{TS: ts, Data: encoded}
	return node.ReceiveResult{Accepted: true, ResolvedURI: in.URI}
}

func (s *IndexedStore) Read(_ context.Context, uri string) node.ReadResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	env, ok := s.data[uri]
	if !ok {
		return node.ReadResult{OK: false, Error: node.NewError(node.KindNotFound, uri, nil)}
	}
	var data interface{}
	if err := s.codec.Decode(env.Data, &data); err != nil {
		return node.ReadResult{OK: false, Error: node.NewError(node.KindBackend, err.Error(), err)}
	}
	return node.ReadResult{OK: true, Record: record.Record{TS: env.TS, Data: data}}
}

func (s *IndexedStore) ReadMulti(ctx context.Context, uris []string) node.ReadMultiResult {
	if err := node.CheckBatchSize(uris); err != nil {
		return node.ReadMultiResult{Results: map[string]node.ReadResult{}, Summary: node.BatchSummary{Total: len(uris), Failed: len(uris)}}
	}
	results := make(map[string]node.ReadResult, len(uris))
	summary := node.BatchSummary{Total: len(uris)}
	for _, u := range uris {
		r := s.Read(ctx, u)
		results[u] = r
		if r.OK {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}
	return node.ReadMultiResult{Results: results, Summary: summary}
}

func (s *IndexedStore) List(_ context.Context, uri string, opts node.ListOptions) node.ListResult {
	if !strings.Contains(uri, "://") || strings.HasSuffix(uri, "://") {
		return node.ListResult{Items: []record.ListItem{}, Page: node.PageInfo{Page: opts.Page, Limit: opts.Limit}}
	}
	prefix := uri + "/"
	s.mu.RLock()
	kinds := map[string]record.Kind{}
	tsByURI := map[string]int64{}
	for stored, env := range s.data {
		if !strings.HasPrefix(stored, prefix) {
			continue
		}
		remainder := strings.TrimPrefix(stored, prefix)
		seg, hasMore := record.FirstSegment(remainder)
		if seg == "" {
			continue
		}
		child := uri + "/" + seg
		tsByURI[child] = env.TS
		if hasMore {
			kinds[child] = record.KindDirectory
		} else if _, exists := kinds[child]; !exists {
			kinds[child] = record.KindLeaf
		}
	}
	s.mu.RUnlock()

	items := make([]record.ListItem, 0, len(kinds))
	for u, k := range kinds {
		if opts.Pattern != "" && !strings.Contains(u, opts.Pattern) {
			continue
		}
		items = append(items, record.ListItem{URI: u, Kind: k})
	}
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if opts.SortBy == node.SortByTS {
			ta, tb := tsByURI[a.URI], tsByURI[b.URI]
			if ta != tb {
				if opts.SortOrder == node.SortDesc {
					return ta > tb
				}
				return ta < tb
			}
			return a.URI < b.URI
		}
		if opts.SortOrder == node.SortDesc {
			return a.URI > b.URI
		}
		return a.URI < b.URI
	})
	return paginate(items, opts)
}

func (s *IndexedStore) Delete(_ context.Context, uri string) node.DeleteResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[uri]; !ok {
		return node.DeleteResult{OK: false, Error: node.NewError(node.KindNotFound, uri, nil)}
	}
	delete(s.data, uri)
	return node.DeleteResult{OK: true}
}

func (s *IndexedStore) Health(context.Context) node.HealthResult {
	return node.HealthResult{Status: node.HealthHealthy}
}

func (s *IndexedStore) ListPrograms(context.Context) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[string]bool{}
	var programs []string
	for stored := range s.data {
		u, err := record.Parse(stored)
		if err != nil {
			continue
		}
		pk := u.ProgramKey()
		if !seen[pk] {
			seen[pk] = true
			programs = append(programs, pk)
		}
	}
	sort.Strings(programs)
	return programs
}

func (s *IndexedStore) Close() error { return nil }
