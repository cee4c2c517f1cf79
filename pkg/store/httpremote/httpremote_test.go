package httpremote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bandeira-tech/b3nd-sdk/pkg/node"
)

func TestRead_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/read/users/alice/profile", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{"ts": 1000, "data": map[string]interface{}{"name": "Alice"}})
	}))
	defer srv.Close()

	c := New(srv.URL, "/api/v1")
	res := c.Read(context.Background(), "users://alice/profile")
	require.True(t, res.OK)
	require.Equal(t, int64(1000), res.Record.TS)
}

func TestRead_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]interface{}{"ok": false, "error": "not-found: users://alice/profile"})
	}))
	defer srv.Close()

	c := New(srv.URL, "/api/v1")
	res := c.Read(context.Background(), "users://alice/profile")
	require.False(t, res.OK)
	require.Equal(t, node.KindNotFound, res.Error.Kind)
}

func TestReceive_Accepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/write/users/alice/profile", r.URL.Path)
		var body struct {
			Value interface{} `json:"value"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(map[string]interface{}{"accepted": true, "resolvedUri": "users://alice/profile"})
	}))
	defer srv.Close()

	c := New(srv.URL, "/api/v1")
	res := c.Receive(context.Background(), node.ReceiveInput{URI: "users://alice/profile", Data: map[string]interface{}{"name": "Alice"}})
	require.True(t, res.Accepted)
	require.Equal(t, "users://alice/profile", res.ResolvedURI)
}

func TestDelete_Disconnected(t *testing.T) {
	c := New("http://127.0.0.1:1", "/api/v1", WithTimeout(0))
	res := c.Delete(context.Background(), "users://alice/profile")
	require.False(t, res.OK)
	require.Equal(t, node.KindDisconnected, res.Error.Kind)
}

func TestList_ParsesQueryAndResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "1", r.URL.Query().Get("page"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"items": []map[string]interface{}{{"uri": "users://alice/profile", "kind": "leaf"}},
			"page":  map[string]interface{}{"page": 1, "limit": 50, "total": 1},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "/api/v1")
	res := c.List(context.Background(), "users://alice", node.DefaultListOptions())
	require.Len(t, res.Items, 1)
	require.Equal(t, 1, res.Page.Total)
}
