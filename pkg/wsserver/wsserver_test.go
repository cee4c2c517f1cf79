package wsserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/bandeira-tech/b3nd-sdk/pkg/store/memory"
)

func newTestServer(t *testing.T) (*httptest.Server, *websocket.Conn) {
	t.Helper()
	backend := memory.New()
	s := New(backend)
	srv := httptest.NewServer(http.HandlerFunc(s.Handler))
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(); srv.Close() })
	return srv, conn
}

func TestReceiveThenRead(t *testing.T) {
	_, conn := newTestServer(t)

	require.NoError(t, conn.WriteJSON(frame{ID: "1", Op: opReceive, Payload: map[string]interface{}{
		"uri": "users://alice/profile", "data": map[string]interface{}{"name": "Alice"},
	}}))
	var resp frame
	require.NoError(t, conn.ReadJSON(&resp))
	require.Equal(t, "1", resp.ID)
	require.True(t, resp.OK)

	require.NoError(t, conn.WriteJSON(frame{ID: "2", Op: opRead, Payload: map[string]interface{}{"uri": "users://alice/profile"}}))
	require.NoError(t, conn.ReadJSON(&resp))
	require.Equal(t, "2", resp.ID)
	require.True(t, resp.OK)
}

func TestRead_NotFound(t *testing.T) {
	_, conn := newTestServer(t)

	require.NoError(t, conn.WriteJSON(frame{ID: "1", Op: opRead, Payload: map[string]interface{}{"uri": "users://bob/profile"}}))
	var resp frame
	require.NoError(t, conn.ReadJSON(&resp))
	require.False(t, resp.OK)
	require.True(t, strings.HasPrefix(resp.Error, "not-found:"))
}

func TestUnknownOp(t *testing.T) {
	_, conn := newTestServer(t)

	require.NoError(t, conn.WriteJSON(frame{ID: "1", Op: "bogus"}))
	var resp frame
	require.NoError(t, conn.ReadJSON(&resp))
	require.False(t, resp.OK)
	require.True(t, strings.HasPrefix(resp.Error, "validation:"))
}

func TestHealth(t *testing.T) {
	_, conn := newTestServer(t)

	require.NoError(t, conn.WriteJSON(frame{ID: "1", Op: opHealth}))
	var resp frame
	require.NoError(t, conn.ReadJSON(&resp))
	require.True(t, resp.OK)
}
