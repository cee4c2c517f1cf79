//go:build js && wasm

package browser

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"syscall/js"
	"time"

	"github.com/bandeira-tech/b3nd-sdk/pkg/node"
	"github.com/bandeira-tech/b3nd-sdk/pkg/record"
)

// KVStore is a node.Node over window.localStorage. Every key is
// prefixed with namespace + ":" so multiple stores can share one
// origin's storage without collision.
type KVStore struct {
	namespace string
	codec     Codec
	storage   js.Value
}

// NewKVStore returns a KVStore namespaced under namespace, using the
// default JSON codec.
func NewKVStore(namespace string) *KVStore {
	return &KVStore{namespace: namespace, codec: JSONCodec{}, storage: js.Global().Get("localStorage")}
}

// WithCodec overrides the serialization codec.
func (k *KVStore) WithCodec(c Codec) *KVStore {
	k.codec = c
	return k
}

var _ node.Node = (*KVStore)(nil)

func (k *KVStore) key(uri string) string {
	return k.namespace + ":" + uri
}

func (k *KVStore) Receive(_ context.Context, in node.ReceiveInput) node.ReceiveResult {
	if _, err := record.Parse(in.URI); err != nil {
		return node.ReceiveResult{Accepted: false, Error: node.NewError(node.KindValidation, err.Error(), err)}
	}
	encoded, err := k.codec.Encode(in.Data)
	if err != nil {
		return node.ReceiveResult{Accepted: false, Error: node.NewError(node.KindBackend, err.Error(), err)}
	}
	ts := time.Now().UnixMilli()
	if existing := k.Read(context.Background(), in.URI); existing.OK && ts <= existing.Record.TS {
		ts = existing.Record.TS + 1
	}
	envelope, err := json.Marshal(storedEnvelope{TS: ts, Data: encoded})
	if err != nil {
		return node.ReceiveResult{Accepted: false, Error: node.NewError(node.KindBackend, err.Error(), err)}
	}
	k.storage.Call("setItem", k.key(in.URI), string(envelope))
	return node.ReceiveResult{Accepted: true, ResolvedURI: in.URI}
}

func (k *KVStore) Read(_ context.Context, uri string) node.ReadResult {
	raw := k.storage.Call("getItem", k.key(uri))
	if raw.IsNull() || raw.IsUndefined() {
		return node.ReadResult{OK: false, Error: node.NewError(node.KindNotFound, uri, nil)}
	}
	var env storedEnvelope
	if err := json.Unmarshal([]byte(raw.String()), &env); err != nil {
		return node.ReadResult{OK: false, Error: node.NewError(node.KindBackend, err.Error(), err)}
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

// keys enumerates every stored key under this namespace.
func (k *KVStore) keys() []string {
	length := k.storage.Get("length").Int()
	prefix := k.namespace + ":"
	var out []string
	for i := 0; i < length; i++ {
		key := k.storage.Call("key", i).String()
		if strings.HasPrefix(key, prefix) {
			out = append(out, strings.TrimPrefix(key, prefix))
		}
	}
	return out
}

func (k *KVStore) List(_ context.Context, uri string, opts node.ListOptions) node.ListResult {
	if !strings.Contains(uri, "://") || strings.HasSuffix(uri, "://") {
		return node.ListResult{Items: []record.ListItem{}, Page: node.PageInfo{Page: opts.Page, Limit: opts.Limit}}
	}
	prefix := uri + "/"
	kinds := map[string]record.Kind{}
	for _, stored := range k.keys() {
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
	if k.storage.Call("getItem", k.key(uri)).IsNull() {
		return node.DeleteResult{OK: false, Error: node.NewError(node.KindNotFound, uri, nil)}
	}
	k.storage.Call("removeItem", k.key(uri))
	return node.DeleteResult{OK: true}
}

func (k *KVStore) Health(context.Context) node.HealthResult {
	return node.HealthResult{Status: node.HealthHealthy}
}

func (k *KVStore) ListPrograms(context.Context) []string {
	seen := map[string]bool{}
	var programs []string
	for _, stored := range k.keys() {
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
