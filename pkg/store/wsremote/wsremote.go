// Package wsremote implements a node.Node client over the WebSocket
// server surface (§4.8): one socket, JSON text frames, requests and
// responses correlated by an id the client assigns, a single reader
// goroutine dispatching responses to the waiting caller.
package wsremote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/bandeira-tech/b3nd-sdk/pkg/node"
	"github.com/bandeira-tech/b3nd-sdk/pkg/record"
)

// Op names match the node protocol's operations 1:1 (§6).
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

// Client is a WebSocket-backed node.Node. One Client owns exactly one
// socket; writes to the socket are serialized, responses are
// dispatched from a single reader goroutine (§5).
type Client struct {
	url        string
	dialer     *websocket.Dialer
	timeout    time.Duration
	reconnect  bool
	maxBackoff time.Duration

	writeMu sync.Mutex

	mu          sync.Mutex
	conn        *websocket.Conn
	pending     map[string]chan frame
	closed      bool
	closeSignal chan struct{}
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the default 30s per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithReconnect enables capped exponential-backoff reconnect, up to
// maxBackoff between attempts.
func WithReconnect(maxBackoff time.Duration) Option {
	return func(c *Client) { c.reconnect = true; c.maxBackoff = maxBackoff }
}

// Dial connects to a node WebSocket server at wsURL.
func Dial(wsURL string, opts ...Option) (*Client, error) {
	c := &Client{
		url:         wsURL,
		dialer:      websocket.DefaultDialer,
		timeout:     30 * time.Second,
		maxBackoff:  30 * time.Second,
		pending:     map[string]chan frame{},
		closeSignal: make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	go c.readLoop()
	return c, nil
}

var _ node.Node = (*Client)(nil)

func (c *Client) connect() error {
	if _, err := url.Parse(c.url); err != nil {
		return fmt.Errorf("wsremote: invalid url: %w", err)
	}
	conn, _, err := c.dialer.Dial(c.url, nil)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// readLoop is the single reader task: it owns conn.ReadMessage and
// dispatches every response frame to its waiting caller by id. On
// disconnect it fails all outstanding requests with KindDisconnected
// and, if configured, reconnects with capped backoff.
func (c *Client) readLoop() {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			c.failAllPending(node.NewError(node.KindDisconnected, err.Error(), err))
			if !c.reconnectWithBackoff() {
				return
			}
			continue
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[f.ID]
		if ok {
			delete(c.pending, f.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- f
		}
	}
}

func (c *Client) failAllPending(err *node.Error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = map[string]chan frame{}
	c.mu.Unlock()
	for _, ch := range pending {
		ch <- frame{OK: false, Error: string(err.Kind) + ": " + err.Message}
	}
}

func (c *Client) reconnectWithBackoff() bool {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed || !c.reconnect {
		return false
	}

	backoff := 500 * time.Millisecond
	for {
		select {
		case <-c.closeSignal:
			return false
		case <-time.After(backoff + time.Duration(rand.Intn(250))*time.Millisecond):
		}
		if err := c.connect(); err == nil {
			return true
		}
		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}

func (c *Client) call(ctx context.Context, op string, payload interface{}) (frame, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return frame{}, fmt.Errorf("wsremote: client closed")
	}
	id := uuid.NewString()
	ch := make(chan frame, 1)
	c.pending[id] = ch
	conn := c.conn
	c.mu.Unlock()

	req := frame{ID: id, Op: op, Payload: payload}
	body, err := json.Marshal(req)
	if err != nil {
		return frame{}, err
	}

	c.writeMu.Lock()
	writeErr := conn.WriteMessage(websocket.TextMessage, body)
	c.writeMu.Unlock()
	if writeErr != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return frame{}, writeErr
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}
	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return frame{}, ctx.Err()
	case <-time.After(timeout):
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return frame{}, errTimeout
	}
}

var errTimeout = fmt.Errorf("wsremote: request timed out")

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
	if flag, ok := m["__bin"].(bool); !ok || !flag {
		return v
	}
	decoded, err := base64.StdEncoding.DecodeString(fmt.Sprint(m["b64"]))
	if err != nil {
		return v
	}
	return decoded
}

func errFromFrame(f frame, fallback node.Kind) *node.Error {
	msg := f.Error
	kind := fallback
	if idx := indexColon(msg); idx > 0 {
		if k := node.Kind(msg[:idx]); k != "" {
			kind = k
		}
		msg = msg[idx+2:]
	}
	return node.NewError(kind, msg, nil)
}

func indexColon(s string) int {
	for i := 0; i+1 < len(s); i++ {
		if s[i] == ':' && s[i+1] == ' ' {
			return i
		}
	}
	return -1
}

func (c *Client) Receive(ctx context.Context, in node.ReceiveInput) node.ReceiveResult {
	f, err := c.call(ctx, opReceive, map[string]interface{}{"uri": in.URI, "data": wrapBinary(in.Data)})
	if err != nil {
		return node.ReceiveResult{Accepted: false, Error: kindOfCallErr(err)}
	}
	if !f.OK {
		return node.ReceiveResult{Accepted: false, Error: errFromFrame(f, node.KindBackend)}
	}
	out, _ := f.Data.(map[string]interface{})
	resolved, _ := out["resolvedUri"].(string)
	return node.ReceiveResult{Accepted: true, ResolvedURI: resolved}
}

func kindOfCallErr(err error) *node.Error {
	if err == errTimeout {
		return node.NewError(node.KindTimeout, err.Error(), err)
	}
	return node.NewError(node.KindDisconnected, err.Error(), err)
}

func (c *Client) Read(ctx context.Context, uri string) node.ReadResult {
	f, err := c.call(ctx, opRead, map[string]interface{}{"uri": uri})
	if err != nil {
		return node.ReadResult{OK: false, Error: kindOfCallErr(err)}
	}
	if !f.OK {
		return node.ReadResult{OK: false, Error: errFromFrame(f, node.KindNotFound)}
	}
	out, _ := f.Data.(map[string]interface{})
	ts, _ := out["ts"].(float64)
	return node.ReadResult{OK: true, Record: record.Record{TS: int64(ts), Data: unwrapBinary(out["data"])}}
}

func (c *Client) ReadMulti(ctx context.Context, uris []string) node.ReadMultiResult {
	if err := node.CheckBatchSize(uris); err != nil {
		return node.ReadMultiResult{Results: map[string]node.ReadResult{}, Summary: node.BatchSummary{Total: len(uris), Failed: len(uris)}}
	}
	f, err := c.call(ctx, opReadMulti, map[string]interface{}{"uris": uris})
	if err != nil {
		results := map[string]node.ReadResult{}
		for _, u := range uris {
			results[u] = node.ReadResult{OK: false, Error: kindOfCallErr(err)}
		}
		return node.ReadMultiResult{Results: results, Summary: node.BatchSummary{Total: len(uris), Failed: len(uris)}}
	}
	results := map[string]node.ReadResult{}
	summary := node.BatchSummary{Total: len(uris)}
	out, _ := f.Data.(map[string]interface{})
	rawResults, _ := out["results"].(map[string]interface{})
	for _, u := range uris {
		entry, ok := rawResults[u].(map[string]interface{})
		if !ok {
			results[u] = node.ReadResult{OK: false, Error: node.NewError(node.KindNotFound, u, nil)}
			summary.Failed++
			continue
		}
		if ok, _ := entry["ok"].(bool); ok {
			rec, _ := entry["record"].(map[string]interface{})
			ts, _ := rec["ts"].(float64)
			results[u] = node.ReadResult{OK: true, Record: record.Record{TS: int64(ts), Data: unwrapBinary(rec["data"])}}
			summary.Succeeded++
		} else {
			results[u] = node.ReadResult{OK: false, Error: node.NewError(node.KindNotFound, u, nil)}
			summary.Failed++
		}
	}
	return node.ReadMultiResult{Results: results, Summary: summary}
}

func (c *Client) List(ctx context.Context, uri string, opts node.ListOptions) node.ListResult {
	payload := map[string]interface{}{
		"uri": uri, "page": opts.Page, "limit": opts.Limit,
		"pattern": opts.Pattern, "sortBy": opts.SortBy, "sortOrder": opts.SortOrder,
	}
	f, err := c.call(ctx, opList, payload)
	if err != nil {
		return node.ListResult{Items: []record.ListItem{}, Error: kindOfCallErr(err)}
	}
	if !f.OK {
		return node.ListResult{Items: []record.ListItem{}, Error: errFromFrame(f, node.KindBackend)}
	}
	out, _ := f.Data.(map[string]interface{})
	rawItems, _ := out["items"].([]interface{})
	items := make([]record.ListItem, 0, len(rawItems))
	for _, ri := range rawItems {
		m, ok := ri.(map[string]interface{})
		if !ok {
			continue
		}
		u, _ := m["uri"].(string)
		k, _ := m["kind"].(string)
		items = append(items, record.ListItem{URI: u, Kind: record.Kind(k)})
	}
	page := node.PageInfo{Page: opts.Page, Limit: opts.Limit}
	if pageInfo, ok := out["page"].(map[string]interface{}); ok {
		if p, ok := pageInfo["page"].(float64); ok {
			page.Page = int(p)
		}
		if l, ok := pageInfo["limit"].(float64); ok {
			page.Limit = int(l)
		}
		if t, ok := pageInfo["total"].(float64); ok {
			page.Total = int(t)
		}
	}
	return node.ListResult{Items: items, Page: page}
}

func (c *Client) Delete(ctx context.Context, uri string) node.DeleteResult {
	f, err := c.call(ctx, opDelete, map[string]interface{}{"uri": uri})
	if err != nil {
		return node.DeleteResult{OK: false, Error: kindOfCallErr(err)}
	}
	if !f.OK {
		return node.DeleteResult{OK: false, Error: errFromFrame(f, node.KindNotFound)}
	}
	return node.DeleteResult{OK: true}
}

func (c *Client) Health(ctx context.Context) node.HealthResult {
	f, err := c.call(ctx, opHealth, nil)
	if err != nil {
		return node.HealthResult{Status: node.HealthUnhealthy, Info: map[string]string{"error": err.Error()}}
	}
	out, _ := f.Data.(map[string]interface{})
	status, _ := out["status"].(string)
	return node.HealthResult{Status: node.HealthStatus(status)}
}

func (c *Client) ListPrograms(ctx context.Context) []string {
	f, err := c.call(ctx, opListPrograms, nil)
	if err != nil || !f.OK {
		return nil
	}
	raw, _ := f.Data.([]interface{})
	programs := make([]string, 0, len(raw))
	for _, p := range raw {
		if s, ok := p.(string); ok {
			programs = append(programs, s)
		}
	}
	return programs
}

func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()
	close(c.closeSignal)
	c.failAllPending(node.NewError(node.KindDisconnected, "client closed", nil))
	if conn != nil {
		return conn.Close()
	}
	return nil
}
