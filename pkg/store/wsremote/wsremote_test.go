package wsremote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/bandeira-tech/b3nd-sdk/pkg/node"
)

var upgrader = websocket.Upgrader{}

// echoServer upgrades every connection and runs handle for each received
// frame, writing back whatever handle returns.
func echoServer(t *testing.T, handle func(f frame) frame) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for {
			var in frame
			if err := conn.ReadJSON(&in); err != nil {
				return
			}
			out := handle(in)
			out.ID = in.ID
			if err := conn.WriteJSON(out); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestRead_OK(t *testing.T) {
	srv := echoServer(t, func(f frame) frame {
		require.Equal(t, opRead, f.Op)
		return frame{OK: true, Data: map[string]interface{}{"ts": 1000, "data": map[string]interface{}{"name": "Alice"}}}
	})
	defer srv.Close()

	c, err := Dial(wsURL(srv))
	require.NoError(t, err)
	defer c.Close()

	res := c.Read(context.Background(), "users://alice/profile")
	require.True(t, res.OK)
	require.Equal(t, int64(1000), res.Record.TS)
}

func TestRead_NotFound(t *testing.T) {
	srv := echoServer(t, func(f frame) frame {
		return frame{OK: false, Error: "not-found: users://alice/profile"}
	})
	defer srv.Close()

	c, err := Dial(wsURL(srv))
	require.NoError(t, err)
	defer c.Close()

	res := c.Read(context.Background(), "users://alice/profile")
	require.False(t, res.OK)
	require.Equal(t, node.KindNotFound, res.Error.Kind)
}

func TestReceive_Accepted(t *testing.T) {
	srv := echoServer(t, func(f frame) frame {
		require.Equal(t, opReceive, f.Op)
		return frame{OK: true, Data: map[string]interface{}{"resolvedUri": "users://alice/profile"}}
	})
	defer srv.Close()

	c, err := Dial(wsURL(srv))
	require.NoError(t, err)
	defer c.Close()

	res := c.Receive(context.Background(), node.ReceiveInput{URI: "users://alice/profile", Data: map[string]interface{}{"name": "Alice"}})
	require.True(t, res.Accepted)
	require.Equal(t, "users://alice/profile", res.ResolvedURI)
}

func TestList_ParsesResult(t *testing.T) {
	srv := echoServer(t, func(f frame) frame {
		require.Equal(t, opList, f.Op)
		return frame{OK: true, Data: map[string]interface{}{
			"items": []interface{}{map[string]interface{}{"uri": "users://alice/profile", "kind": "leaf"}},
			"page":  map[string]interface{}{"page": 1.0, "limit": 50.0, "total": 1.0},
		}}
	})
	defer srv.Close()

	c, err := Dial(wsURL(srv))
	require.NoError(t, err)
	defer c.Close()

	res := c.List(context.Background(), "users://alice", node.DefaultListOptions())
	require.Len(t, res.Items, 1)
	require.Equal(t, 1, res.Page.Total)
}

func TestDelete_Disconnected(t *testing.T) {
	c := &Client{
		url:         "ws://127.0.0.1:1",
		timeout:     50 * time.Millisecond,
		pending:     map[string]chan frame{},
		closeSignal: make(chan struct{}),
		closed:      true,
	}
	res := c.Delete(context.Background(), "users://alice/profile")
	require.False(t, res.OK)
	require.Equal(t, node.KindDisconnected, res.Error.Kind)
}

func TestHealth_TimesOutWhenServerSilent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		// Never responds; client call must time out.
		var in frame
		conn.ReadJSON(&in)
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c, err := Dial(wsURL(srv), WithTimeout(20*time.Millisecond))
	require.NoError(t, err)
	defer c.Close()

	res := c.Health(context.Background())
	require.Equal(t, node.HealthUnhealthy, res.Status)
}
