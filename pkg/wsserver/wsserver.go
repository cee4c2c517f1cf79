// Package wsserver is the WebSocket counterpart to pkg/httpserver
// (§4.8): one socket, one frame type, ops dispatched 1:1 onto the
// wrapped node.Node. It shares no state across connections.
package wsserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/bandeira-tech/b3nd-sdk/pkg/node"
)

const (
	opReceive      = "receive"
	opRead         = "read"
	opReadMulti    = "readMulti"
	opList         = "list"
	opDelete       = "delete"
	opHealth       = "health"
	opListPrograms = "listPrograms"
)

type frame struct {
	ID      string      `json:"id"`
	Op      string      `json:"op,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
	OK      bool        `json:"ok,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Server upgrades HTTP connections and serves node ops over them.
type Server struct {
	Backend  node.Node
	Upgrader websocket.Upgrader
}

// New returns a Server backed by n; the caller registers its Handler
// on whatever path it chooses (no prefix convention is imposed here).
func New(n node.Node) *Server {
	return &Server{Backend: n, Upgrader: websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}}
}

// Handler upgrades the connection and serves frames until a read or
// write on the socket fails, e.g. when the client disconnects.
func (s *Server) Handler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		var in frame
		if err := conn.ReadJSON(&in); err != nil {
			return
		}
		out := s.dispatch(r.Context(), in)
		out.ID = in.ID
		if err := conn.WriteJSON(out); err != nil {
			return
		}
	}
}

func wrapBinary(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return map[string]interface{}{"__bin": true, "b64": base64.StdEncoding.EncodeToString(b)}
	}
	return v
}

func unwrapBinary(v interface{}) interface{} {
	m, ok := v.(map[string]interface{})
	if !ok {
		return v
	}
	flag, ok := m["__bin"].(bool)
	if !ok || !flag {
		return v
	}
	b64, _ := m["b64"].(string)
	decoded, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return v
	}
	return decoded
}

func errString(err *node.Error) string {
	if err == nil {
		return string(node.KindBackend) + ": unknown error"
	}
	return string(err.Kind) + ": " + err.Message
}

func (s *Server) dispatch(ctx context.Context, in frame) frame {
	switch in.Op {
	case opReceive:
		return s.dispatchReceive(ctx, in)
	case opRead:
		return s.dispatchRead(ctx, in)
	case opReadMulti:
		return s.dispatchReadMulti(ctx, in)
	case opList:
		return s.dispatchList(ctx, in)
	case opDelete:
		return s.dispatchDelete(ctx, in)
	case opHealth:
		res := s.Backend.Health(ctx)
		return frame{OK: true, Data: map[string]interface{}{"status": res.Status, "info": res.Info}}
	case opListPrograms:
		return frame{OK: true, Data: s.Backend.ListPrograms(ctx)}
	default:
		return frame{OK: false, Error: string(node.KindValidation) + ": unknown op " + in.Op}
	}
}

func (s *Server) dispatchReceive(ctx context.Context, in frame) frame {
	p, _ := in.Payload.(map[string]interface{})
	uri, _ := p["uri"].(string)
	res := s.Backend.Receive(ctx, node.ReceiveInput{URI: uri, Data: unwrapBinary(p["data"])})
	if !res.Accepted {
		return frame{OK: false, Error: errString(res.Error)}
	}
	return frame{OK: true, Data: map[string]interface{}{"resolvedUri": res.ResolvedURI}}
}

func (s *Server) dispatchRead(ctx context.Context, in frame) frame {
	p, _ := in.Payload.(map[string]interface{})
	uri, _ := p["uri"].(string)
	res := s.Backend.Read(ctx, uri)
	if !res.OK {
		return frame{OK: false, Error: errString(res.Error)}
	}
	return frame{OK: true, Data: map[string]interface{}{"ts": res.Record.TS, "data": wrapBinary(res.Record.Data)}}
}

func (s *Server) dispatchReadMulti(ctx context.Context, in frame) frame {
	p, _ := in.Payload.(map[string]interface{})
	rawURIs, _ := p["uris"].([]interface{})
	uris := make([]string, 0, len(rawURIs))
	for _, u := range rawURIs {
		if s, ok := u.(string); ok {
			uris = append(uris, s)
		}
	}
	res := s.Backend.ReadMulti(ctx, uris)
	results := make(map[string]interface{}, len(res.Results))
	for uri, rr := range res.Results {
		if rr.OK {
			results[uri] = map[string]interface{}{"ok": true, "record": map[string]interface{}{
				"ts": rr.Record.TS, "data": wrapBinary(rr.Record.Data),
			}}
		} else {
			results[uri] = map[string]interface{}{"ok": false, "error": errString(rr.Error)}
		}
	}
	return frame{OK: true, Data: map[string]interface{}{"results": results, "summary": res.Summary}}
}

func (s *Server) dispatchList(ctx context.Context, in frame) frame {
	p, _ := in.Payload.(map[string]interface{})
	uri, _ := p["uri"].(string)
	opts := node.DefaultListOptions()
	if v, ok := p["page"].(float64); ok {
		opts.Page = int(v)
	}
	if v, ok := p["limit"].(float64); ok {
		opts.Limit = int(v)
	}
	if v, ok := p["pattern"].(string); ok {
		opts.Pattern = v
	}
	if v, ok := p["sortBy"].(string); ok {
		opts.SortBy = node.SortBy(v)
	}
	if v, ok := p["sortOrder"].(string); ok {
		opts.SortOrder = node.SortOrder(v)
	}
	res := s.Backend.List(ctx, uri, opts)
	if res.Error != nil {
		return frame{OK: false, Error: errString(res.Error)}
	}
	items := make([]map[string]interface{}, 0, len(res.Items))
	for _, item := range res.Items {
		items = append(items, map[string]interface{}{"uri": item.URI, "kind": item.Kind})
	}
	return frame{OK: true, Data: map[string]interface{}{
		"items": items,
		"page":  map[string]interface{}{"page": res.Page.Page, "limit": res.Page.Limit, "total": res.Page.Total},
	}}
}

func (s *Server) dispatchDelete(ctx context.Context, in frame) frame {
	p, _ := in.Payload.(map[string]interface{})
	uri, _ := p["uri"].(string)
	res := s.Backend.Delete(ctx, uri)
	if !res.OK {
		return frame{OK: false, Error: errString(res.Error)}
	}
	return frame{OK: true}
}
