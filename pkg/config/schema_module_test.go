package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bandeira-tech/b3nd-sdk/pkg/config"
	"github.com/bandeira-tech/b3nd-sdk/pkg/record"
)

func writeFile(path, contents string) error {
	return os.WriteFile(path, []byte(contents), 0o644)
}

const manifest = `
programs:
  - key: "notes://alice"
    kind: open-mutable
  - key: "users://registry"
    kind: jsonschema
    schema: |
      {"type": "object", "required": ["name"]}
`

func writeManifest(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, writeFile(path, manifest))
	return path
}

func TestLoadSchemaModule_RegistersDeclaredPrograms(t *testing.T) {
	path := writeManifest(t)

	reg, err := config.LoadSchemaModule(path)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"notes://alice", "users://registry"}, reg.ProgramKeys())
}

func TestLoadSchemaModule_OpenMutableAcceptsAnything(t *testing.T) {
	path := writeManifest(t)
	reg, err := config.LoadSchemaModule(path)
	require.NoError(t, err)

	uri, err := record.Parse("notes://alice/todo")
	require.NoError(t, err)

	res := reg.Validate(context.Background(), uri, map[string]interface{}{"text": "buy milk"}, nil)
	assert.True(t, res.Valid)
}

func TestLoadSchemaModule_JSONSchemaRejectsInvalidValue(t *testing.T) {
	path := writeManifest(t)
	reg, err := config.LoadSchemaModule(path)
	require.NoError(t, err)

	uri, err := record.Parse("users://registry/bob")
	require.NoError(t, err)

	res := reg.Validate(context.Background(), uri, map[string]interface{}{"age": 30}, nil)
	assert.False(t, res.Valid)

	res = reg.Validate(context.Background(), uri, map[string]interface{}{"name": "bob"}, nil)
	assert.True(t, res.Valid)
}

func TestLoadSchemaModule_UnknownKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, writeFile(path, "programs:\n  - key: \"x://y\"\n    kind: bogus\n"))

	_, err := config.LoadSchemaModule(path)
	assert.Error(t, err)
}
