// Package node defines the uniform operation set that every storage
// backend and every client-side composition implements.
package node

import (
	"context"
	"fmt"

	"github.com/bandeira-tech/b3nd-sdk/pkg/record"
)

// Kind is the closed set of error kinds surfaced at every boundary.
// Composition combinators and transport servers never invent new kinds
// and never hide the underlying one.
type Kind string

const (
	KindNoSchema        Kind = "no-schema"
	KindValidation      Kind = "validation"
	KindImmutableExists Kind = "immutable-exists"
	KindHashMismatch    Kind = "hash-mismatch"
	KindNotFound        Kind = "not-found"
	KindBatchTooLarge   Kind = "batch-too-large"
	KindTimeout         Kind = "timeout"
	KindDisconnected    Kind = "disconnected"
	KindBackend         Kind = "backend"
	KindAuth            Kind = "auth"
	KindDecrypt         Kind = "decrypt"
)

// Error is the error type returned by every node operation. HTTP and
// WebSocket surfaces map Kind to a status code; nothing downstream
// should match on Error() strings.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, &Error{Kind: KindNotFound}) style matching on
// Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == "" {
		return false
	}
	return e.Kind == t.Kind
}

// NewError constructs a *Error, optionally wrapping a cause.
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err, defaulting to KindBackend for any
// error that didn't originate as a *Error, I/O errors from a backend's
// underlying driver surface this way.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var nerr *Error
	if asError(err, &nerr) {
		return nerr.Kind
	}
	return KindBackend
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// ReceiveInput is the [uri, data] pair passed to Receive.
type ReceiveInput struct {
	URI  string
	Data interface{}
}

// ReceiveResult is the outcome of a Receive call.
type ReceiveResult struct {
	Accepted bool
	Error    *Error
	// ResolvedURI is the URI actually written to. Equal to the input URI
	// unless a wrapper (the wallet's :key resolver, the envelope unpacker)
	// rewrote it.
	ResolvedURI string
	// Children holds the per-output outcome when the input was a message
	// envelope; empty for ordinary writes.
	Children []ChildResult
}

// ChildResult is the outcome of one output within an unpacked envelope.
type ChildResult struct {
	URI    string
	Result ReceiveResult
}

// ReadResult is the outcome of a Read call.
type ReadResult struct {
	OK     bool
	Record record.Record
	Error  *Error
}

// ReadMultiResult is the outcome of a ReadMulti call.
type ReadMultiResult struct {
	Results map[string]ReadResult
	Summary BatchSummary
}

// BatchSummary totals a batched operation's per-item outcomes.
type BatchSummary struct {
	Total     int
	Succeeded int
	Failed    int
}

// ListOptions configures List.
type ListOptions struct {
	Page      int
	Limit     int
	Pattern   string // substring filter on the full URI
	SortBy    SortBy
	SortOrder SortOrder
}

type SortBy string

const (
	SortByName SortBy = "name"
	SortByTS   SortBy = "ts"
)

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// DefaultListOptions returns page 1, limit 50, name-ascending.
func DefaultListOptions() ListOptions {
	return ListOptions{Page: 1, Limit: 50, SortBy: SortByName, SortOrder: SortAsc}
}

// PageInfo describes the page actually returned.
type PageInfo struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total,omitempty"`
}

// ListResult is the outcome of a List call.
type ListResult struct {
	Items []record.ListItem
	Page  PageInfo
	Error *Error
}

// DeleteResult is the outcome of a Delete call.
type DeleteResult struct {
	OK    bool
	Error *Error
}

// HealthStatus is the coarse health reported by Health.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// HealthResult is the outcome of a Health call.
type HealthResult struct {
	Status HealthStatus
	Info   map[string]string
}

// MaxBatchSize bounds ReadMulti and the wallet's proxy read-multi.
const MaxBatchSize = 50

// CheckBatchSize returns a KindBatchTooLarge error if uris exceeds
// MaxBatchSize, nil otherwise.
func CheckBatchSize(uris []string) *Error {
	if len(uris) > MaxBatchSize {
		return NewError(KindBatchTooLarge,
			fmt.Sprintf("batch of %d exceeds max of %d", len(uris), MaxBatchSize), nil)
	}
	return nil
}

// Node is the uniform operation set implemented by every storage backend
// and every client-side composition (broadcast, first-match, validated).
type Node interface {
	Receive(ctx context.Context, in ReceiveInput) ReceiveResult
	Read(ctx context.Context, uri string) ReadResult
	ReadMulti(ctx context.Context, uris []string) ReadMultiResult
	List(ctx context.Context, uri string, opts ListOptions) ListResult
	Delete(ctx context.Context, uri string) DeleteResult
	Health(ctx context.Context) HealthResult
	ListPrograms(ctx context.Context) []string
	Close() error
}

// ReadOnly is the read-side handle passed to schema validators: existence
// and immutability checks only, no write path. Validators that try to
// write do not compile against this interface.
type ReadOnly interface {
	Read(ctx context.Context, uri string) ReadResult
}
