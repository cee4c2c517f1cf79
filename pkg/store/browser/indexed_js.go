//go:build js && wasm

package browser

import (
	"context"
	"sort"
	"strings"
	"syscall/js"
	"time"

	"github.com/bandeira-tech/b3nd-sdk/pkg/node"
	"github.com/bandeira-tech/b3nd-sdk/pkg/record"
)

// IndexedStore is a node.Node over a single IndexedDB database with one
// object store ("records", keyPath "uri") and two indexes: by-uri
// (unique, the primary key itself) and by-ts. List does not use the
// by-ts index: it orders by URI only, and opts.SortBy is not applied.
type IndexedStore struct {
	dbName    string
	version   int
	storeName string
	db        js.Value
	codec     Codec
}

// NewIndexedStore opens (creating if necessary) an IndexedDB database
// named dbName at the given version, with its "records" object store
// and by-ts index.
func NewIndexedStore(dbName string, version int) (*IndexedStore, error) {
	s := &IndexedStore{dbName: dbName, version: version, storeName: "records", codec: JSONCodec{}}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *IndexedStore) open() error {
	result := make(chan js.Value, 1)
	errs := make(chan error, 1)

	req := js.Global().Get("indexedDB").Call("open", s.dbName, s.version)
	req.Set("onupgradeneeded", js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		db := args[0].Get("target").Get("result")
		if !db.Call("objectStoreNames").Call("contains", s.storeName).Bool() {
			store := db.Call("createObjectStore", s.storeName, map[string]interface{}{"keyPath": "uri"})
			store.Call("createIndex", "by_uri", "uri", map[string]interface{}{"unique": true})
			store.Call("createIndex", "by_ts", "ts", map[string]interface{}{"unique": false})
		}
		return nil
	}))
	req.Set("onsuccess", js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		result <- args[0].Get("target").Get("result")
		return nil
	}))
	req.Set("onerror", js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		errs <- js.Error{Value: args[0].Get("target").Get("error")}
		return nil
	}))

	select {
	case db := <-result:
		s.db = db
		return nil
	case err := <-errs:
		return err
	}
}

var _ node.Node = (*IndexedStore)(nil)

func (s *IndexedStore) tx(mode string) js.Value {
	return s.db.Call("transaction", []interface{}{s.storeName}, mode).Call("objectStore", s.storeName)
}

// await blocks the calling goroutine on a request's onsuccess/onerror
// pair, translating IndexedDB's callback API into a plain return.
func await(req js.Value) (js.Value, error) {
	result := make(chan js.Value, 1)
	errs := make(chan error, 1)
	req.Set("onsuccess", js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		result <- args[0].Get("target").Get("result")
		return nil
	}))
	req.Set("onerror", js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		errs <- js.Error{Value: args[0].Get("target").Get("error")}
		return nil
	}))
	select {
	case v := <-result:
		return v, nil
	case err := <-errs:
		return js.Value{}, err
	}
}

func (s *IndexedStore) Receive(_ context.Context, in node.ReceiveInput) node.ReceiveResult {
	if _, err := record.Parse(in.URI); err != nil {
		return node.ReceiveResult{Accepted: false, Error: node.NewError(node.KindValidation, err.Error(), err)}
	}
	encoded, err := s.codec.Encode(in.Data)
	if err != nil {
		return node.ReceiveResult{Accepted: false, Error: node.NewError(node.KindBackend, err.Error(), err)}
	}
	ts := time.Now().UnixMilli()
	if existing := s.Read(context.Background(), in.URI); existing.OK && ts <= existing.Record.TS {
		ts = existing.Record.TS + 1
	}

	entry := map[string]interface{}{"uri": in.URI, "ts": ts, "data": string(encoded)}
	_, err = await(s.tx("readwrite").Call("put", entry))
	if err != nil {
		return node.ReceiveResult{Accepted: false, Error: node.NewError(node.KindBackend, err.Error(), err)}
	}
	return node.ReceiveResult{Accepted: true, ResolvedURI: in.URI}
}

func (s *IndexedStore) Read(_ context.Context, uri string) node.ReadResult {
	v, err := await(s.tx("readonly").Call("get", uri))
	if err != nil {
		return node.ReadResult{OK: false, Error: node.NewError(node.KindBackend, err.Error(), err)}
	}
	if v.IsUndefined() || v.IsNull() {
		return node.ReadResult{OK: false, Error: node.NewError(node.KindNotFound, uri, nil)}
	}
	ts := int64(v.Get("ts").Float())
	var data interface{}
	if err := s.codec.Decode([]byte(v.Get("data").String()), &data); err != nil {
		return node.ReadResult{OK: false, Error: node.NewError(node.KindBackend, err.Error(), err)}
	}
	return node.ReadResult{OK: true, Record: record.Record{TS: ts, Data: data}}
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

func (s *IndexedStore) allURIs() []string {
	v, err := await(s.tx("readonly").Call("getAllKeys"))
	if err != nil {
		return nil
	}
	n := v.Get("length").Int()
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, v.Index(i).String())
	}
	return out
}

func (s *IndexedStore) List(_ context.Context, uri string, opts node.ListOptions) node.ListResult {
	if !strings.Contains(uri, "://") || strings.HasSuffix(uri, "://") {
		return node.ListResult{Items: []record.ListItem{}, Page: node.PageInfo{Page: opts.Page, Limit: opts.Limit}}
	}
	prefix := uri + "/"
	kinds := map[string]record.Kind{}
	for _, stored := range s.allURIs() {
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
	for u, k := range kinds {
		if opts.Pattern != "" && !strings.Contains(u, opts.Pattern) {
			continue
		}
		items = append(items, record.ListItem{URI: u, Kind: k})
	}
	sort.Slice(items, func(i, j int) bool {
		if opts.SortOrder == node.SortDesc {
			return items[i].URI > items[j].URI
		}
		return items[i].URI < items[j].URI
	})
	return paginate(items, opts)
}

func (s *IndexedStore) Delete(_ context.Context, uri string) node.DeleteResult {
	existing := s.Read(context.Background(), uri)
	if !existing.OK {
		return node.DeleteResult{OK: false, Error: existing.Error}
	}
	if _, err := await(s.tx("readwrite").Call("delete", uri)); err != nil {
		return node.DeleteResult{OK: false, Error: node.NewError(node.KindBackend, err.Error(), err)}
	}
	return node.DeleteResult{OK: true}
}

func (s *IndexedStore) Health(context.Context) node.HealthResult {
	return node.HealthResult{Status: node.HealthHealthy}
}

func (s *IndexedStore) ListPrograms(context.Context) []string {
	seen := map[string]bool{}
	var programs []string
	for _, stored := range s.allURIs() {
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

func (s *IndexedStore) Close() error {
	s.db.Call("close")
	return nil
}
