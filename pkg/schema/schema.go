// Package schema implements the program-key -> validator registry that
// gates writes, plus the built-in validator kinds the protocol expects
// every implementation to ship.
package schema

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bandeira-tech/b3nd-sdk/pkg/node"
	"github.com/bandeira-tech/b3nd-sdk/pkg/record"
)

// Result is the outcome of running a Validator.
type Result struct {
	Valid bool
	Error *node.Error
}

// Valid is a convenience constructor for an accepted Result.
func Valid() Result { return Result{Valid: true} }

// Invalid constructs a rejected Result with the given kind and reason.
// The caller always passes the kind: node.KindValidation for ordinary
// rejections, a specific kind for content-hash and immutability checks.
func Invalid(kind node.Kind, message string) Result {
	return Result{Valid: false, Error: node.NewError(kind, message, nil)}
}

// Validator gates writes for one program key. It is pure with respect to
// its inputs plus currently readable state and must never write.
type Validator interface {
	Validate(ctx context.Context, uri record.URI, value interface{}, read node.ReadOnly) Result
}

// ValidatorFunc adapts a plain function to the Validator interface.
type ValidatorFunc func(ctx context.Context, uri record.URI, value interface{}, read node.ReadOnly) Result

func (f ValidatorFunc) Validate(ctx context.Context, uri record.URI, value interface{}, read node.ReadOnly) Result {
	return f(ctx, uri, value, read)
}

// safeValidator recovers from a panicking Validator and converts it to a
// validation failure, per spec §4.11 and §7.
type safeValidator struct{ inner Validator }

func (s safeValidator) Validate(ctx context.Context, uri record.URI, value interface{}, read node.ReadOnly) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Invalid(node.KindValidation, fmt.Sprintf("validator panic: %v", r))
		}
	}()
	return s.inner.Validate(ctx, uri, value, read)
}

// Registry maps program keys ("scheme://authority") to their Validator.
type Registry struct {
	mu         sync.RWMutex
	validators map[string]Validator
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{validators: make(map[string]Validator)}
}

// Register binds a validator to a program key, replacing any existing one.
func (r *Registry) Register(programKey string, v Validator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validators[programKey] = safeValidator{inner: v}
}

// Lookup returns the validator for a program key, or nil if none is
// registered, callers must treat a nil result as node.KindNoSchema.
func (r *Registry) Lookup(programKey string) Validator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.validators[programKey]
}

// ProgramKeys returns every registered program key.
func (r *Registry) ProgramKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.validators))
	for k := range r.validators {
		keys = append(keys, k)
	}
	return keys
}

// Validate looks up and runs the validator for uri.ProgramKey(), returning
// a KindNoSchema result if none is registered. An authority of the form
// "sha256:{hex}" also matches a validator registered under the part
// before the colon, so "hash://sha256" covers every "hash://sha256:{hex}".
func (r *Registry) Validate(ctx context.Context, uri record.URI, value interface{}, read node.ReadOnly) Result {
	v := r.Lookup(uri.ProgramKey())
	if v == nil {
		if idx := strings.Index(uri.Authority, ":"); idx > 0 {
			v = r.Lookup(uri.Scheme + "://" + uri.Authority[:idx])
		}
	}
	if v == nil {
		return Invalid(node.KindNoSchema, fmt.Sprintf("no validator registered for program key %q", uri.ProgramKey()))
	}
	return v.Validate(ctx, uri, value, read)
}
