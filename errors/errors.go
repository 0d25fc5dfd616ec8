// Package errors defines InputLayer's typed error taxonomy (spec.md §6, §7).
//
// Every sentinel below is a gopkg.in/src-d/go-errors.v1 Kind, the same
// pattern the teacher engine uses for its sql.Err* family: call .New(args...)
// at the failure site to produce an error, and Kind.Is(err) to classify one
// returned from deeper in the stack.
package errors

import (
	goerrors "gopkg.in/src-d/go-errors.v1"
)

var (
	ErrParse                   = goerrors.NewKind("parse error at line %d, column %d: %s")
	ErrTypeMismatch            = goerrors.NewKind("type mismatch: cannot compare or combine %s and %s")
	ErrArityMismatch           = goerrors.NewKind("arity mismatch for relation %q: expected %d columns, got %d")
	ErrUnsafeRule              = goerrors.NewKind("unsafe rule for %q: head variable %q is not bound by any positive body atom")
	ErrUnboundHeadVariable     = goerrors.NewKind("unbound head variable %q in rule %q")
	ErrStratificationViolation = goerrors.NewKind("stratification violation: negation inside a recursive cycle involving %v")
	ErrRelationNotFound        = goerrors.NewKind("relation %q not found in knowledge graph %q")
	ErrKnowledgeGraphNotFound  = goerrors.NewKind("knowledge graph %q not found")
	ErrKnowledgeGraphExists    = goerrors.NewKind("knowledge graph %q already exists")
	ErrCannotDropCurrent       = goerrors.NewKind("cannot drop the current knowledge graph %q")
	ErrSchemaViolation         = goerrors.NewKind("schema violation for relation %q: %s")
	ErrIoError                 = goerrors.NewKind("io error: %s")
	ErrCorruptState            = goerrors.NewKind("corrupt persisted state for relation %q: %s")
	ErrCancelled               = goerrors.NewKind("query cancelled")
	ErrInvalidArgument         = goerrors.NewKind("invalid argument: %s")

	// ErrResourceLimit is parameterized further by Kind (see ResourceLimitKind).
	ErrResourceLimit = goerrors.NewKind("resource limit exceeded (%s): %s")
)

// ResourceLimitKind names which of §4.7/§5's limits was exceeded.
type ResourceLimitKind string

const (
	LimitTimeout           ResourceLimitKind = "timeout"
	LimitMemory            ResourceLimitKind = "memory"
	LimitResultSize        ResourceLimitKind = "result-size"
	LimitIntermediateSize  ResourceLimitKind = "intermediate-size"
	LimitRecursionDepth    ResourceLimitKind = "recursion-depth"
	LimitMaxArity          ResourceLimitKind = "max-arity"
)

// WrappedLimit carries the ResourceLimitKind structurally (not just in the
// formatted message) so callers like the engine façade can branch on which
// limit fired without string matching.
type WrappedLimit struct {
	Kind   ResourceLimitKind
	Detail string
	err    error
}

func (w *WrappedLimit) Error() string { return w.err.Error() }
func (w *WrappedLimit) Unwrap() error { return w.err }

// NewLimit builds a resource-limit error for the given kind.
func NewLimit(kind ResourceLimitKind, detail string) *WrappedLimit {
	return &WrappedLimit{Kind: kind, Detail: detail, err: ErrResourceLimit.New(string(kind), detail)}
}

// IsTimeout reports whether err is a resource-limit error specifically about a timeout.
func IsTimeout(err error) bool {
	wl, ok := err.(*WrappedLimit)
	return ok && wl.Kind == LimitTimeout
}
