package ratelimit_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/bandeira-tech/b3nd-sdk/pkg/ratelimit"
)

func TestMiddleware_FailsOpenWithoutStore(t *testing.T) {
	handler := ratelimit.Middleware(nil, ratelimit.DefaultPolicy())(okHandler())
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestRedisStore_AllowsWithinBurstThenDenies(t *testing.T) {
	mr := miniredis.RunT(t)
	store := ratelimit.NewRedisStore(mr.Addr())
	defer store.Close()

	policy := ratelimit.Policy{RPM: 60, Burst: 2}
	handler := ratelimit.Middleware(store, policy)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.1:5555"

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.NotEmpty(t, rr.Header().Get("Retry-After"))
}

func TestRedisStore_SeparateActorsHaveSeparateBuckets(t *testing.T) {
	mr := miniredis.RunT(t)
	store := ratelimit.NewRedisStore(mr.Addr())
	defer store.Close()

	policy := ratelimit.Policy{RPM: 60, Burst: 1}
	handler := ratelimit.Middleware(store, policy)(okHandler())

	reqA := httptest.NewRequest(http.MethodGet, "/", nil)
	reqA.RemoteAddr = "203.0.113.1:1"
	reqB := httptest.NewRequest(http.MethodGet, "/", nil)
	reqB.RemoteAddr = "203.0.113.2:1"

	rrA := httptest.NewRecorder()
	handler.ServeHTTP(rrA, reqA)
	require.Equal(t, http.StatusOK, rrA.Code)

	rrB := httptest.NewRecorder()
	handler.ServeHTTP(rrB, reqB)
	require.Equal(t, http.StatusOK, rrB.Code)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}
