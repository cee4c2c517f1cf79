package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/bandeira-tech/b3nd-sdk/pkg/node"
	"github.com/bandeira-tech/b3nd-sdk/pkg/record"
)

// JSONSchema compiles a JSON Schema document and returns a Validator that
// rejects writes whose value fails it. Intended for ad-hoc application
// program keys loaded from SCHEMA_MODULE manifests, where operators
// describe their record shape declaratively rather than in Go.
//
// immutable additionally enforces the absence check of an immutable
// program key.
func JSONSchema(programKey, schemaDoc string, immutable bool) (Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://b3nd.local/schemas/%s.json", sanitizeForURL(programKey))
	if err := c.AddResource(url, strings.NewReader(schemaDoc)); err != nil {
		return nil, fmt.Errorf("schema: load failed for %s: %w", programKey, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("schema: compile failed for %s: %w", programKey, err)
	}

	base := ValidatorFunc(func(_ context.Context, _ record.URI, value interface{}, _ node.ReadOnly) Result {
		if err := compiled.Validate(value); err != nil {
			return Invalid(node.KindValidation, fmt.Sprintf("schema validation failed: %s", err))
		}
		return Valid()
	})
	if !immutable {
		return base, nil
	}
	return ValidatorFunc(func(ctx context.Context, uri record.URI, value interface{}, read node.ReadOnly) Result {
		if res := base.Validate(ctx, uri, value, read); !res.Valid {
			return res
		}
		if read.Read(ctx, uri.String()).OK {
			return Invalid(node.KindImmutableExists, fmt.Sprintf("%s already has a record", uri))
		}
		return Valid()
	}), nil
}

func sanitizeForURL(programKey string) string {
	return strings.NewReplacer("://", "_", "/", "_").Replace(programKey)
}
