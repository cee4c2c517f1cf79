package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bandeira-tech/b3nd-sdk/pkg/httpserver"
	"github.com/bandeira-tech/b3nd-sdk/pkg/schema"
	"github.com/bandeira-tech/b3nd-sdk/pkg/store/memory"
	"github.com/bandeira-tech/b3nd-sdk/pkg/validated"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	reg := schema.NewRegistry()
	reg.Register("notes://alice", schema.OpenMutable())
	backend := validated.New(memory.New(), reg)

	mux := http.NewServeMux()
	httpserver.New(backend, mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRun_WriteThenRead(t *testing.T) {
	srv := newTestServer(t)
	t.Setenv("NODE_URL", srv.URL)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"nodectl", "write", "notes://alice/todo", `{"text":"buy milk"}`}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())

	stdout.Reset()
	code = Run([]string{"nodectl", "read", "notes://alice/todo"}, &stdout, &stderr)
	assert.Equal(t, exitOK, code, stderr.String())
	assert.Contains(t, stdout.String(), "buy milk")
}

func TestRun_ReadNotFound(t *testing.T) {
	srv := newTestServer(t)
	t.Setenv("NODE_URL", srv.URL)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"nodectl", "read", "notes://alice/missing"}, &stdout, &stderr)
	assert.Equal(t, exitNotFound, code)
}

func TestRun_WriteNoSchema(t *testing.T) {
	srv := newTestServer(t)
	t.Setenv("NODE_URL", srv.URL)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"nodectl", "write", "unregistered://x/y", `{"a":1}`}, &stdout, &stderr)
	assert.Equal(t, exitNoSchema, code)
}

func TestRun_WriteInvalidJSON(t *testing.T) {
	srv := newTestServer(t)
	t.Setenv("NODE_URL", srv.URL)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"nodectl", "write", "notes://alice/todo", `{not json`}, &stdout, &stderr)
	assert.Equal(t, exitValidation, code)
}

func TestRun_DeleteThenReadNotFound(t *testing.T) {
	srv := newTestServer(t)
	t.Setenv("NODE_URL", srv.URL)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"nodectl", "write", "notes://alice/todo", `{"text":"x"}`}, &stdout, &stderr)
	require.Equal(t, exitOK, code)

	stdout.Reset()
	code = Run([]string{"nodectl", "delete", "notes://alice/todo"}, &stdout, &stderr)
	require.Equal(t, exitOK, code)

	code = Run([]string{"nodectl", "read", "notes://alice/todo"}, &stdout, &stderr)
	assert.Equal(t, exitNotFound, code)
}

func TestRun_UnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"nodectl", "bogus"}, &stdout, &stderr)
	assert.Equal(t, exitValidation, code)
}

func TestRun_NoArgs(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"nodectl"}, &stdout, &stderr)
	assert.Equal(t, exitValidation, code)
}
