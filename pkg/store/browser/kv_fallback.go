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

// KVStore is an in-process stand-in for the browser localStorage
// backend, used by non-wasm builds (tests, server-side embedders that
// want the same namespacing/codec semantics without a browser).
type KVStore struct {
	namespace string
	codec     Codec
	mu        sync.RWMutex
	data      map[string]storedEnvelope
}

// NewKVStore returns a KVStore namespaced under namespace, using the
// default JSON codec.
func NewKVStore(namespace string) *KVStore {
	return &KVStore{namespace: namespace, codec: JSONCodec{}, data: map[string]storedEnvelope{}}
}

// WithCodec overrides the serialization codec.
func (k *KVStore) WithCodec(c Codec) *KVStore {
	k.codec = c
	return k
}

var _ node.Node = (*KVStore)(nil)

func (k *KVStore) Receive(_ context.Context, in node.ReceiveInput) node.ReceiveResult {
	if _, err := record.Parse(in.URI); err != nil {
		return node.ReceiveResult{Accepted: false, Error: node.NewError(node.KindValidation, err.Error(), err)}
	}
	encoded, err := k.codec.Encode(in.Data)
	if err != nil {
		return node.ReceiveResult{Accepted: false, Error: node.NewError(node.KindBackend, err.Error(), err)}
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	ts := time.Now().UnixMilli()
	if prev, ok := k.data[in.URI]; ok && ts <= prev.TS {
		ts = prev.TS + 1
	}
	k.data[in.URI] = storedEnvelope{TS: ts, Data: encoded}
	return node.ReceiveResult{Accepted: true, ResolvedURI: in.URI}
}

func (k *KVStore) Read(_ context.Context, uri string) node.ReadResult {
	k.mu.RLock()
	defer k.mu.RUnlock()
	env, ok := k.data[uri]
	if !ok {
		return node.ReadResult{OK: false, Error: node.NewError(node.KindNotFound, uri, nil)}
	}
	var data interface{}
	if err := k.codec.Decode(env.Data, &data); err != nil {
		return node.ReadResult{OK: false, Error: node.NewError(node.KindBackend, err.Error(), err)}
	}
	return node.ReadResult{OK: true, Record: record.Record{TS: env.TS, Data: data}}
}

func (k *KVStore) ReadMulti(ctx context.Context, uris []string) node.ReadMultiResult {
	if err := node.CheckBatchSize(uris); err != nil {
		return node.ReadMultiResult{Results: map[string]node.ReadResult{}, Summary: node.BatchSummary{Total: len(uris), Failed: len(uris)}}
	}
	results := make(map[string]node.ReadResult, len(uris))
	summary := node.BatchSummary{Total: len(uris)}
	for _, u := range uris {
		r := k.Read(ctx, u)
		results[u] = r
		if r.OK {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}
	return node.ReadMultiResult{Results: results, Summary: summary}
}

func (k *KVStore) List(_ context.Context, uri string, opts node.ListOptions) node.ListResult {
	if !strings.Contains(uri, "://") || strings.HasSuffix(uri, "://") {
		return node.ListResult{Items: []record.ListItem{}, Page: node.PageInfo{Page: opts.Page, Limit: opts.Limit}}
	}
	prefix := uri + "/"
	k.mu.RLock()
	kinds := map[string]record.Kind{}
	for stored := range k.data {
		if !strings.HasPrefix(stored, prefix) {
			continue
		}
		remainder := strings.TrimPrefix(stored, prefix)
		seg, hasMore := record.FirstSegment(remainder)
		if seg == "" {
			continue
		}
		child := uri + "/" + seg
		if hasMore {
			kinds[child] = record.KindDirectory
		} else if _, exists := kinds[child]; !exists {
			kinds[child] = record.KindLeaf
		}
	}
	k.mu.RUnlock()

	items := make([]record.ListItem, 0, len(kinds))
	for u, kind := range kinds {
		if opts.Pattern != "" && !strings.Contains(u, opts.Pattern) {
			continue
		}
		items = append(items, record.ListItem{URI: u, Kind: kind})
	}
	sort.Slice(items, func(i, j int) bool {
		if opts.SortOrder == node.SortDesc {
			return items[i].URI > items[j].URI
		}
		return items[i].URI < items[j].URI
	})
	return paginate(items, opts)
}

func (k *KVStore) Delete(_ context.Context, uri string) node.DeleteResult {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.data[uri]; !ok {
		return node.DeleteResult{OK: false, Error: node.NewError(node.KindNotFound, uri, nil)}
	}
	delete(k.data, uri)
	return node.DeleteResult{OK: true}
}

func (k *KVStore) Health(context.Context) node.HealthResult {
	return node.HealthResult{Status: node.HealthHealthy}
}

func (k *KVStore) ListPrograms(context.Context) []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	seen := map[string]bool{}
	var programs []string
	for stored := range k.data {
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

func (k *KVStore) Close() error { return nil }
