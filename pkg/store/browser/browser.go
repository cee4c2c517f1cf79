// Package browser implements the two browser-resident node.Node
// backends (§4.3): a namespaced key/value store over
// window.localStorage, and a versioned IndexedDB object store with a
// by-ts index. Both are built for GOOS=js GOARCH=wasm; non-wasm builds
// (this repo's test suite, server-side embedders) get an in-process
// fallback with the same exported type and constructor signature, so
// calling code never branches on platform.
package browser

import (
	"bytes"
	"encoding/json"

	"github.com/bandeira-tech/b3nd-sdk/pkg/node"
	"github.com/bandeira-tech/b3nd-sdk/pkg/record"
)

// Codec serializes a record's Data field for storage. The default is
// plain JSON; callers running under constrained codecs (e.g. a
// size-limited localStorage quota) can substitute their own.
type Codec interface {
	Encode(v interface{}) ([]byte, error)
	Decode(data []byte, out *interface{}) error
}

// JSONCodec is the default Codec.
type JSONCodec struct{}

func (JSONCodec) Encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Decode(data []byte, out *interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(out)
}

type storedEnvelope struct {
	TS   int64           `json:"ts"`
	Data json.RawMessage `json:"data"`
}

// paginate applies the page/limit window to an already sorted and
// filtered item list. Shared by the js and fallback variants of both
// KVStore and IndexedStore.
func paginate(items []record.ListItem, opts node.ListOptions) node.ListResult {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = node.DefaultListOptions().Limit
	}
	total := len(items)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return node.ListResult{Items: items[start:end], Page: node.PageInfo{Page: page, Limit: limit, Total: total}}
}
