package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bandeira-tech/b3nd-sdk/pkg/record"
	"github.com/bandeira-tech/b3nd-sdk/pkg/schema"
)

// schemaManifest is the on-disk shape of a SCHEMA_MODULE file: a list of
// program-key entries, each naming one of the built-in validator kinds
// and its parameters. Declarative manifests cover the common cases;
// anything needing real Go logic still registers directly against a
// schema.Registry in code.
type schemaManifest struct {
	Programs []schemaProgram `yaml:"programs"`
}

type schemaProgram struct {
	Key           string `yaml:"key"`
	Kind          string `yaml:"kind"`
	PrincipalFrom string `yaml:"principalFrom,omitempty"` // "authority" | "firstPathSegment"
	Immutable     bool   `yaml:"immutable,omitempty"`
	Schema        string `yaml:"schema,omitempty"`     // kind: jsonschema
	Expression    string `yaml:"expression,omitempty"` // kind: cel
}

// LoadSchemaModule reads a YAML manifest at path and registers the
// validators it describes into a new schema.Registry.
func LoadSchemaModule(path string) (*schema.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read schema module %q: %w", path, err)
	}
	var manifest schemaManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("config: parse schema module %q: %w", path, err)
	}

	reg := schema.NewRegistry()
	for _, p := range manifest.Programs {
		v, err := buildValidator(p)
		if err != nil {
			return nil, fmt.Errorf("config: program %q: %w", p.Key, err)
		}
		reg.Register(p.Key, v)
	}
	return reg, nil
}

func buildValidator(p schemaProgram) (schema.Validator, error) {
	switch p.Kind {
	case "open-mutable":
		return schema.OpenMutable(), nil
	case "open-immutable":
		return schema.OpenImmutable(), nil
	case "content-hash":
		return schema.ContentHash(), nil
	case "link":
		return schema.Link(), nil
	case "pubkey-scoped-mutable":
		if p.Immutable {
			return schema.PubkeyScopedImmutable(principalSelector(p.PrincipalFrom)), nil
		}
		return schema.PubkeyScopedMutable(principalSelector(p.PrincipalFrom)), nil
	case "jsonschema":
		return schema.JSONSchema(p.Key, p.Schema, p.Immutable)
	case "cel":
		return schema.CELExpression(p.Expression)
	default:
		return nil, fmt.Errorf("unknown validator kind %q", p.Kind)
	}
}

func principalSelector(from string) func(record.URI) string {
	if from == "firstPathSegment" {
		return schema.PrincipalFromFirstPathSegment
	}
	return schema.PrincipalFromAuthority
}
