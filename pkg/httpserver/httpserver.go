// Package httpserver is the thin HTTP shell over a node.Node (§4.7, §6):
// it parses the URI from path segments, calls the node, and maps result
// kinds to status codes. It holds no storage logic of its own.
package httpserver

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bandeira-tech/b3nd-sdk/pkg/node"
	"github.com/bandeira-tech/b3nd-sdk/pkg/record"
)

// Server wraps a node.Node with the HTTP surface.
type Server struct {
	Backend        node.Node
	Prefix         string
	MaxRequestBody int64
	AllowedOrigins []string
}

// Option configures a Server.
type Option func(*Server)

// WithPrefix overrides the default "/api/v1" route prefix.
func WithPrefix(prefix string) Option {
	return func(s *Server) { s.Prefix = prefix }
}

// WithMaxRequestBody overrides the default 4MiB write body cap.
func WithMaxRequestBody(n int64) Option {
	return func(s *Server) { s.MaxRequestBody = n }
}

// WithAllowedOrigins sets the CORS allow-list; empty means allow all.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.AllowedOrigins = origins }
}

const defaultMaxRequestBody = 4 << 20

// New returns a Server backed by n, registering its routes on mux.
func New(n node.Node, mux *http.ServeMux, opts ...Option) *Server {
	s := &Server{Backend: n, Prefix: "/api/v1", MaxRequestBody: defaultMaxRequestBody}
	for _, o := range opts {
		o(s)
	}
	s.register(mux)
	return s
}

func (s *Server) register(mux *http.ServeMux) {
	mux.Handle(s.Prefix+"/health", s.cors(http.HandlerFunc(s.handleHealth)))
	mux.Handle(s.Prefix+"/schema", s.cors(http.HandlerFunc(s.handleSchema)))
	mux.Handle(s.Prefix+"/read-multi", s.cors(http.HandlerFunc(s.handleReadMulti)))
	mux.Handle(s.Prefix+"/write/", s.cors(http.HandlerFunc(s.handleWrite)))
	mux.Handle(s.Prefix+"/read/", s.cors(http.HandlerFunc(s.handleRead)))
	mux.Handle(s.Prefix+"/list/", s.cors(http.HandlerFunc(s.handleList)))
	mux.Handle(s.Prefix+"/delete/", s.cors(http.HandlerFunc(s.handleDelete)))
}

// cors applies the allow-list the same way across every route: an empty
// AllowedOrigins means development-mode "allow everything".
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && isOriginAllowed(origin, s.AllowedOrigins) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isOriginAllowed(origin string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

// writeError writes the protocol's error envelope (§6): {"ok": false,
// "error": "<kind>: <message>"}.
func writeError(w http.ResponseWriter, status int, kind node.Kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"ok":    false,
		"error": string(kind) + ": " + message,
	})
}

func statusForKind(kind node.Kind) int {
	switch kind {
	case node.KindNotFound:
		return http.StatusNotFound
	case node.KindValidation, node.KindNoSchema, node.KindHashMismatch, node.KindImmutableExists, node.KindBatchTooLarge:
		return http.StatusBadRequest
	case node.KindAuth:
		return http.StatusUnauthorized
	case node.KindTimeout:
		return http.StatusGatewayTimeout
	case node.KindDisconnected, node.KindBackend:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeNodeError(w http.ResponseWriter, err *node.Error) {
	if err == nil {
		writeError(w, http.StatusInternalServerError, node.KindBackend, "unknown error")
		return
	}
	writeError(w, statusForKind(err.Kind), err.Kind, err.Message)
}

// uriFromPath reassembles "scheme://authority/path..." from the path
// segments that follow the given route prefix, undoing the per-segment
// percent-encoding the client applied.
func uriFromPath(r *http.Request, routePrefix string) (string, error) {
	trimmed := strings.TrimPrefix(r.URL.Path, routePrefix)
	trimmed = strings.Trim(trimmed, "/")
	segments := strings.Split(trimmed, "/")
	if len(segments) < 2 {
		return "", record.ErrMalformed
	}
	decoded := make([]string, len(segments))
	for i, seg := range segments {
		d, err := url.PathUnescape(seg)
		if err != nil {
			return "", err
		}
		decoded[i] = d
	}
	scheme, authority := decoded[0], decoded[1]
	if scheme == "" || authority == "" {
		return "", record.ErrMalformed
	}
	uri := scheme + "://" + authority
	if len(decoded) > 2 {
		uri += "/" + strings.Join(decoded[2:], "/")
	}
	return uri, nil
}

type binSentinel struct {
	Bin bool   `json:"__bin"`
	B64 string `json:"b64"`
}

func wrapBinary(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return binSentinel{Bin: true, B64: base64.StdEncoding.EncodeToString(b)}
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

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	res := s.Backend.Health(r.Context())
	status := http.StatusOK
	if res.Status == node.HealthUnhealthy {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": res.Status, "info": res.Info})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	programs := s.Backend.ListPrograms(r.Context())
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(programs)
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, node.KindValidation, "POST required")
		return
	}
	uri, err := uriFromPath(r, s.Prefix+"/write/")
	if err != nil {
		writeError(w, http.StatusBadRequest, node.KindValidation, err.Error())
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.MaxRequestBody)
	var body struct {
		Value interface{} `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, node.KindValidation, "invalid request body")
		return
	}
	res := s.Backend.Receive(r.Context(), node.ReceiveInput{URI: uri, Data: unwrapBinary(body.Value)})
	if !res.Accepted {
		writeNodeError(w, res.Error)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"accepted": true, "resolvedUri": res.ResolvedURI})
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	uri, err := uriFromPath(r, s.Prefix+"/read/")
	if err != nil {
		writeError(w, http.StatusBadRequest, node.KindValidation, err.Error())
		return
	}
	res := s.Backend.Read(r.Context(), uri)
	if !res.OK {
		writeNodeError(w, res.Error)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"ts":   res.Record.TS,
		"data": wrapBinary(res.Record.Data),
	})
}

func (s *Server) handleReadMulti(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, node.KindValidation, "POST required")
		return
	}
	var body struct {
		URIs []string `json:"uris"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, node.KindValidation, "invalid request body")
		return
	}
	res := s.Backend.ReadMulti(r.Context(), body.URIs)
	out := make(map[string]interface{}, len(res.Results))
	for uri, rr := range res.Results {
		if rr.OK {
			out[uri] = map[string]interface{}{"ok": true, "record": map[string]interface{}{
				"ts": rr.Record.TS, "data": wrapBinary(rr.Record.Data),
			}}
		} else {
			out[uri] = map[string]interface{}{"ok": false, "error": rr.Error.Error()}
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"results": out, "summary": res.Summary})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	uri, err := uriFromPath(r, s.Prefix+"/list/")
	if err != nil {
		writeError(w, http.StatusBadRequest, node.KindValidation, err.Error())
		return
	}
	opts := node.DefaultListOptions()
	q := r.URL.Query()
	if v := q.Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Page = n
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Limit = n
		}
	}
	opts.Pattern = q.Get("pattern")
	if v := q.Get("sortBy"); v != "" {
		opts.SortBy = node.SortBy(v)
	}
	if v := q.Get("sortOrder"); v != "" {
		opts.SortOrder = node.SortOrder(v)
	}

	res := s.Backend.List(r.Context(), uri, opts)
	if res.Error != nil {
		writeNodeError(w, res.Error)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"items": res.Items, "page": res.Page})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, node.KindValidation, "DELETE required")
		return
	}
	uri, err := uriFromPath(r, s.Prefix+"/delete/")
	if err != nil {
		writeError(w, http.StatusBadRequest, node.KindValidation, err.Error())
		return
	}
	res := s.Backend.Delete(r.Context(), uri)
	if !res.OK {
		writeNodeError(w, res.Error)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"ok": true})
}
