// Package httpremote implements a node.Node client over the HTTP server
// surface (§4.7, §6). It maps every op to one HTTP call and performs no
// validation of its own, that is the server's responsibility.
package httpremote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bandeira-tech/b3nd-sdk/pkg/node"
	"github.com/bandeira-tech/b3nd-sdk/pkg/record"
)

// Client is an HTTP-backed node.Node.
type Client struct {
	BaseURL    string
	Prefix     string
	APIKey     string
	HTTPClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets a bearer token sent with every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.APIKey = key }
}

// WithTimeout overrides the default 30s per-request timeout (§5).
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.HTTPClient.Timeout = d }
}

// New returns a Client for the node HTTP surface hosted at baseURL,
// under the given route prefix (default "/api/v1" if empty).
func New(baseURL, prefix string, opts ...Option) *Client {
	if prefix == "" {
		prefix = "/api/v1"
	}
	c := &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Prefix:  prefix,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

var _ node.Node = (*Client)(nil)

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

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+c.Prefix+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if out != nil && resp.StatusCode < 400 {
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

func uriPath(uri string) (string, error) {
	u, err := record.Parse(uri)
	if err != nil {
		return "", err
	}
	segments := []string{url.PathEscape(u.Scheme), url.PathEscape(u.Authority)}
	if u.Path != "" {
		for _, seg := range strings.Split(u.Path, "/") {
			segments = append(segments, url.PathEscape(seg))
		}
	}
	return strings.Join(segments, "/"), nil
}

func kindForStatus(status int) node.Kind {
	switch status {
	case http.StatusNotFound:
		return node.KindNotFound
	case http.StatusBadRequest:
		return node.KindValidation
	case http.StatusServiceUnavailable:
		return node.KindBackend
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return node.KindTimeout
	default:
		return node.KindBackend
	}
}

type errorEnvelope struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (c *Client) errorFromResponse(resp *http.Response) *node.Error {
	defer resp.Body.Close()
	var env errorEnvelope
	_ = json.NewDecoder(resp.Body).Decode(&env)
	kind := kindForStatus(resp.StatusCode)
	msg := env.Error
	if idx := strings.Index(msg, ":"); idx > 0 {
		if k := node.Kind(strings.TrimSpace(msg[:idx])); k != "" {
			kind = k
		}
	}
	if msg == "" {
		msg = resp.Status
	}
	return node.NewError(kind, msg, nil)
}

func (c *Client) Receive(ctx context.Context, in node.ReceiveInput) node.ReceiveResult {
	p, err := uriPath(in.URI)
	if err != nil {
		return node.ReceiveResult{Accepted: false, Error: node.NewError(node.KindValidation, err.Error(), err)}
	}
	var out struct {
		Accepted    bool   `json:"accepted"`
		ResolvedURI string `json:"resolvedUri"`
	}
	resp, err := c.do(ctx, http.MethodPost, "/write/"+p, map[string]interface{}{"value": wrapBinary(in.Data)}, &out)
	if err != nil {
		return node.ReceiveResult{Accepted: false, Error: node.NewError(node.KindDisconnected, err.Error(), err)}
	}
	if resp.StatusCode >= 400 {
		return node.ReceiveResult{Accepted: false, Error: c.errorFromResponse(resp)}
	}
	return node.ReceiveResult{Accepted: out.Accepted, ResolvedURI: out.ResolvedURI}
}

func (c *Client) Read(ctx context.Context, uri string) node.ReadResult {
	p, err := uriPath(uri)
	if err != nil {
		return node.ReadResult{OK: false, Error: node.NewError(node.KindValidation, err.Error(), err)}
	}
	var out struct {
		TS   int64       `json:"ts"`
		Data interface{} `json:"data"`
	}
	resp, err := c.do(ctx, http.MethodGet, "/read/"+p, nil, &out)
	if err != nil {
		return node.ReadResult{OK: false, Error: node.NewError(node.KindDisconnected, err.Error(), err)}
	}
	if resp.StatusCode >= 400 {
		return node.ReadResult{OK: false, Error: c.errorFromResponse(resp)}
	}
	return node.ReadResult{OK: true, Record: record.Record{TS: out.TS, Data: unwrapBinary(out.Data)}}
}

func (c *Client) ReadMulti(ctx context.Context, uris []string) node.ReadMultiResult {
	if err := node.CheckBatchSize(uris); err != nil {
		return node.ReadMultiResult{Results: map[string]node.ReadResult{}, Summary: node.BatchSummary{Total: len(uris), Failed: len(uris)}}
	}
	var out struct {
		Results map[string]struct {
			OK     bool   `json:"ok"`
			Record struct {
				TS   int64       `json:"ts"`
				Data interface{} `json:"data"`
			} `json:"record"`
			Error string `json:"error"`
		} `json:"results"`
		Summary node.BatchSummary `json:"summary"`
	}
	resp, err := c.do(ctx, http.MethodPost, "/read-multi", map[string]interface{}{"uris": uris}, &out)
	if err != nil {
		results := map[string]node.ReadResult{}
		for _, u := range uris {
			results[u] = node.ReadResult{OK: false, Error: node.NewError(node.KindDisconnected, err.Error(), err)}
		}
		return node.ReadMultiResult{Results: results, Summary: node.BatchSummary{Total: len(uris), Failed: len(uris)}}
	}
	if resp.StatusCode >= 400 {
		e := c.errorFromResponse(resp)
		results := map[string]node.ReadResult{}
		for _, u := range uris {
			results[u] = node.ReadResult{OK: false, Error: e}
		}
		return node.ReadMultiResult{Results: results, Summary: node.BatchSummary{Total: len(uris), Failed: len(uris)}}
	}
	results := make(map[string]node.ReadResult, len(out.Results))
	for u, r := range out.Results {
		if r.OK {
			results[u] = node.ReadResult{OK: true, Record: record.Record{TS: r.Record.TS, Data: unwrapBinary(r.Record.Data)}}
		} else {
			results[u] = node.ReadResult{OK: false, Error: node.NewError(node.KindNotFound, r.Error, nil)}
		}
	}
	return node.ReadMultiResult{Results: results, Summary: out.Summary}
}

func (c *Client) List(ctx context.Context, uri string, opts node.ListOptions) node.ListResult {
	p, err := uriPath(uri)
	if err != nil {
		return node.ListResult{Items: []record.ListItem{}, Error: node.NewError(node.KindValidation, err.Error(), err)}
	}
	query := url.Values{}
	query.Set("page", strconv.Itoa(opts.Page))
	query.Set("limit", strconv.Itoa(opts.Limit))
	if opts.Pattern != "" {
		query.Set("pattern", opts.Pattern)
	}
	if opts.SortBy != "" {
		query.Set("sortBy", string(opts.SortBy))
	}
	if opts.SortOrder != "" {
		query.Set("sortOrder", string(opts.SortOrder))
	}
	var out struct {
		Items []record.ListItem `json:"items"`
		Page  node.PageInfo     `json:"page"`
	}
	resp, err := c.do(ctx, http.MethodGet, "/list/"+p+"?"+query.Encode(), nil, &out)
	if err != nil {
		return node.ListResult{Items: []record.ListItem{}, Error: node.NewError(node.KindDisconnected, err.Error(), err)}
	}
	if resp.StatusCode >= 400 {
		return node.ListResult{Items: []record.ListItem{}, Error: c.errorFromResponse(resp)}
	}
	return node.ListResult{Items: out.Items, Page: out.Page}
}

func (c *Client) Delete(ctx context.Context, uri string) node.DeleteResult {
	p, err := uriPath(uri)
	if err != nil {
		return node.DeleteResult{OK: false, Error: node.NewError(node.KindValidation, err.Error(), err)}
	}
	var out struct {
		OK bool `json:"ok"`
	}
	resp, err := c.do(ctx, http.MethodDelete, "/delete/"+p, nil, &out)
	if err != nil {
		return node.DeleteResult{OK: false, Error: node.NewError(node.KindDisconnected, err.Error(), err)}
	}
	if resp.StatusCode >= 400 {
		return node.DeleteResult{OK: false, Error: c.errorFromResponse(resp)}
	}
	return node.DeleteResult{OK: out.OK}
}

func (c *Client) Health(ctx context.Context) node.HealthResult {
	var out struct {
		Status string            `json:"status"`
		Info   map[string]string `json:"info"`
	}
	resp, err := c.do(ctx, http.MethodGet, "/health", nil, &out)
	if err != nil {
		return node.HealthResult{Status: node.HealthUnhealthy, Info: map[string]string{"error": err.Error()}}
	}
	if resp.StatusCode >= 400 {
		return node.HealthResult{Status: node.HealthUnhealthy}
	}
	return node.HealthResult{Status: node.HealthStatus(out.Status), Info: out.Info}
}

func (c *Client) ListPrograms(ctx context.Context) []string {
	var out []string
	resp, err := c.do(ctx, http.MethodGet, "/schema", nil, &out)
	if err != nil || resp.StatusCode >= 400 {
		return nil
	}
	return out
}

func (c *Client) Close() error { return nil }
