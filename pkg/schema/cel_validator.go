package schema

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/bandeira-tech/b3nd-sdk/pkg/node"
	"github.com/bandeira-tech/b3nd-sdk/pkg/record"
)

// celEnv is shared across all CEL validators: compiling an *cel.Env is
// expensive, programs are cheap once the env exists.
var celEnv *cel.Env

func init() {
	env, err := cel.NewEnv(
		cel.Variable("uri", cel.StringType),
		cel.Variable("scheme", cel.StringType),
		cel.Variable("authority", cel.StringType),
		cel.Variable("path", cel.StringType),
		cel.Variable("value", cel.DynType),
	)
	if err != nil {
		// A fixed, hand-written environment failing to compile is a
		// programming error in this package, not a runtime condition.
		panic(fmt.Sprintf("schema: cel env init failed: %v", err))
	}
	celEnv = env
}

// CELExpression compiles a CEL boolean expression and returns a Validator
// that accepts a write iff the expression evaluates to true. The
// expression sees uri, scheme, authority, path, and value (the decoded
// JSON body). Intended for operator-authored policies that are too
// situational for the built-in kinds, e.g. "value.amount <= 1000".
func CELExpression(source string) (Validator, error) {
	ast, issues := celEnv.Compile(source)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("schema: cel compile failed: %w", issues.Err())
	}
	prg, err := celEnv.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("schema: cel program build failed: %w", err)
	}

	return ValidatorFunc(func(_ context.Context, uri record.URI, value interface{}, _ node.ReadOnly) Result {
		out, _, err := prg.Eval(map[string]interface{}{
			"uri":       uri.String(),
			"scheme":    uri.Scheme,
			"authority": uri.Authority,
			"path":      uri.Path,
			"value":     value,
		})
		if err != nil {
			return Invalid(node.KindValidation, "cel evaluation error: "+err.Error())
		}
		b, ok := out.Value().(bool)
		if !ok {
			return Invalid(node.KindValidation, fmt.Sprintf("cel expression did not return a bool (got %s)", out.Type()))
		}
		if !b {
			return Invalid(node.KindValidation, "cel policy rejected the write")
		}
		return Valid()
	}), nil
}
