package exec

import (
	"context"
	"time"

	ilerrors "github.com/inputlayer/inputlayer/errors"
	"github.com/inputlayer/inputlayer/ir"
	"github.com/inputlayer/inputlayer/value"
)

// Resolver supplies the current contents of a named relation to Scan nodes.
// Base relations resolve from storage; within a Fixpoint iteration, heads
// of the current stratum resolve to their accumulated state so far
// (spec.md §4.7).
type Resolver interface {
	Resolve(relation string) (*Bag, error)
}

// MapResolver is the simplest Resolver: a fixed snapshot.
type MapResolver map[string]*Bag

func (m MapResolver) Resolve(relation string) (*Bag, error) {
	if b, ok := m[relation]; ok {
		return b, nil
	}
	return NewBag(), nil
}

// Limits bounds one evaluation (spec.md §5): wall-clock timeout, maximum
// result/intermediate multiset sizes, maximum fixpoint iteration depth, and
// (opt-in, since sampling costs a syscall per check) a process RSS ceiling.
type Limits struct {
	Timeout             time.Duration
	MaxResultTuples     int
	MaxIntermediateSize int
	MaxRecursionDepth   int
	MaxMemoryBytes      uint64
}

// DefaultLimits is the conservative limit set config.Default starts from,
// and the one config.Config.Limits and EvalWithTimeout fall back to when
// MaxResultTuples is left at zero (spec.md §5).
func DefaultLimits() Limits {
	return Limits{
		Timeout:             30 * time.Second,
		MaxResultTuples:     1_000_000,
		MaxIntermediateSize: 5_000_000,
		MaxRecursionDepth:   10_000,
	}
}

// Context carries per-evaluation state threaded through the recursive
// evaluator: cancellation, the resolver, resource limits, and an optional
// memory monitor.
type Context struct {
	ctx      context.Context
	resolver Resolver
	limits   Limits
	memory   *MemoryMonitor
}

func NewContext(ctx context.Context, resolver Resolver, limits Limits) *Context {
	return &Context{ctx: ctx, resolver: resolver, limits: limits}
}

// NewMonitoredContext attaches a MemoryMonitor so checkSize also enforces
// limits.MaxMemoryBytes alongside the tuple-count bound.
func NewMonitoredContext(ctx context.Context, resolver Resolver, limits Limits, mem *MemoryMonitor) *Context {
	return &Context{ctx: ctx, resolver: resolver, limits: limits, memory: mem}
}

func (c *Context) checkCancel() error {
	select {
	case <-c.ctx.Done():
		return ilerrors.NewLimit(ilerrors.LimitTimeout, c.ctx.Err().Error())
	default:
		return nil
	}
}

func (c *Context) checkSize(n int) error {
	if c.limits.MaxIntermediateSize > 0 && n > c.limits.MaxIntermediateSize {
		return ilerrors.NewLimit(ilerrors.LimitIntermediateSize, "intermediate result exceeded configured bound")
	}
	if c.memory != nil && c.limits.MaxMemoryBytes > 0 {
		over, err := c.memory.Exceeds(c.limits.MaxMemoryBytes)
		if err != nil {
			return err
		}
		if over {
			return ilerrors.NewLimit(ilerrors.LimitMemory, "process RSS exceeded configured bound")
		}
	}
	return nil
}

// Eval recursively evaluates an IR node against ec's resolver, returning the
// resulting Bag (spec.md §4.7 operator contracts).
func Eval(ec *Context, node ir.Node) (*Bag, error) {
	if err := ec.checkCancel(); err != nil {
		return nil, err
	}

	switch t := node.(type) {
	case *ir.Scan:
		return ec.resolver.Resolve(t.Relation)

	case *ir.Filter:
		child, err := Eval(ec, t.Child)
		if err != nil {
			return nil, err
		}
		return evalFilter(child, t.Preds)

	case *ir.Map:
		child, err := Eval(ec, t.Child)
		if err != nil {
			return nil, err
		}
		return evalMap(child, t.Exprs)

	case *ir.Join:
		left, err := Eval(ec, t.Left)
		if err != nil {
			return nil, err
		}
		right, err := Eval(ec, t.Right)
		if err != nil {
			return nil, err
		}
		out := evalJoin(left, right, t.LeftKeys, t.RightKeys)
		if err := ec.checkSize(out.Len()); err != nil {
			return nil, err
		}
		return out, nil

	case *ir.Antijoin:
		left, err := Eval(ec, t.Left)
		if err != nil {
			return nil, err
		}
		right, err := Eval(ec, t.Right)
		if err != nil {
			return nil, err
		}
		return evalAntijoin(left, right, t.LeftKeys, t.RightKeys), nil

	case *ir.Union:
		out := NewBag()
		for _, c := range t.ChildNodes {
			cb, err := Eval(ec, c)
			if err != nil {
				return nil, err
			}
			cb.Each(func(tup value.Tuple, mult int64) { out.Add(tup, mult) })
		}
		return out, nil

	case *ir.Distinct:
		child, err := Eval(ec, t.Child)
		if err != nil {
			return nil, err
		}
		out := NewBag()
		child.Each(func(tup value.Tuple, mult int64) {
			if mult > 0 {
				out.Add(tup, 1)
			}
		})
		return out, nil

	case *ir.Aggregate:
		child, err := Eval(ec, t.Child)
		if err != nil {
			return nil, err
		}
		return evalAggregate(child, t.GroupKeys, t.Aggs)

	case *ir.Fixpoint:
		return evalFixpoint(ec, t)

	default:
		return nil, ilerrors.ErrInvalidArgument.New("unsupported IR node in evaluator")
	}
}

// EvalWithTimeout is a convenience wrapper for one-shot (non-fixpoint)
// evaluation from outside a larger fixpoint, applying the wall-clock
// timeout limit directly.
func EvalWithTimeout(parent context.Context, resolver Resolver, limits Limits, node ir.Node) (*Bag, error) {
	if limits.MaxResultTuples == 0 {
		limits = DefaultLimits()
	}
	ctx, cancel := context.WithTimeout(parent, limits.Timeout)
	defer cancel()
	ec := NewContext(ctx, resolver, limits)
	return Eval(ec, node)
}
