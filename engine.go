// Package inputlayer is the embedding entry point (spec.md §6 "Engine API
// (consumed by CLI, network services, GUI backend)"): Open/Execute/
// introspection/Shutdown, delegating to the storage package for knowledge
// graph lifecycle and query evaluation, and adding the cross-cutting
// concerns a storage-internal façade shouldn't own — execution tracing,
// memory-pressure monitoring, and a uniform StatementResult/PlanDescription
// surface.
package inputlayer

import (
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/inputlayer/inputlayer/config"
	ilerrors "github.com/inputlayer/inputlayer/errors"
	"github.com/inputlayer/inputlayer/exec"
	"github.com/inputlayer/inputlayer/storage"
	"github.com/inputlayer/inputlayer/value"
)

// Engine is the top-level handle an embedding caller holds (spec.md §6
// "open(config) → Engine").
type Engine struct {
	store     *storage.Engine
	memory    *exec.MemoryMonitor
	logger    *logrus.Entry
	startedAt time.Time

	mu       sync.Mutex
	shutdown bool
}

// StatementResult is execute()'s uniform return shape (spec.md §6
// "either a query result ... or a mutation acknowledgement"): at most one
// of Columns/Rows or Message is populated. Truncated is set when Rows was
// cut off at Limits.MaxResultTuples, and Warnings then carries a notice
// saying so; that is the only warning it carries. Checked-arithmetic
// saturation during evaluation is not reported, here or in any log.
type StatementResult struct {
	Columns   []string
	Rows      []value.Tuple
	Message   string
	Warnings  []string
	Truncated bool
}

// Open initializes storage per cfg and returns a ready Engine (spec.md §6
// "open(config) → Engine"). The exec.MemoryMonitor feeds only Status's RSS
// sample; it is not handed to the storage engine's evaluations, so
// Limits.MaxMemoryBytes is not enforced on Execute. A monitor failure (the
// gopsutil process handle could not be obtained, e.g. in a restricted
// sandbox) is logged and tolerated, and Status then reports no sample.
func Open(cfg config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	store, err := storage.Open(cfg.StorageConfig())
	if err != nil {
		return nil, err
	}
	logger := logrus.WithField("component", "inputlayer")
	mon, err := exec.NewMemoryMonitor()
	if err != nil {
		logger.WithError(err).Warn("inputlayer: memory monitor unavailable, RSS sampling disabled")
		mon = nil
	}
	return &Engine{store: store, memory: mon, logger: logger, startedAt: time.Now()}, nil
}

func (e *Engine) startSpan(op string) opentracing.Span {
	return opentracing.GlobalTracer().StartSpan("inputlayer." + op)
}

func finishSpan(span opentracing.Span, err error) {
	if err != nil {
		ext.Error.Set(span, true)
		span.SetTag("error.message", err.Error())
	}
	span.Finish()
}

// Execute parses and runs one or more statements against the current
// knowledge graph (spec.md §6 "execute(source) → StatementResult"). Every
// statement in source runs and the returned StatementResult is the last
// statement's. Execution stops at the first error, which is returned with
// a nil result; statements before it have already taken effect.
func (e *Engine) Execute(source string) (*StatementResult, error) {
	span := e.startSpan("execute")
	defer func() { finishSpan(span, nil) }()

	results, err := e.store.ExecuteAll("", source)
	if err != nil {
		ext.Error.Set(span, true)
		span.SetTag("error.message", err.Error())
		return nil, err
	}
	if len(results) == 0 {
		return &StatementResult{Message: "no statements"}, nil
	}
	return toStatementResult(e, results[len(results)-1]), nil
}

func toStatementResult(e *Engine, res *storage.ExecResult) *StatementResult {
	if res.Query == nil {
		return &StatementResult{Message: res.Message}
	}
	limits := e.store.Limits()
	out := &StatementResult{Columns: res.Query.Columns, Rows: res.Query.Rows}
	if limits.MaxResultTuples > 0 && len(out.Rows) > limits.MaxResultTuples {
		out.Rows = out.Rows[:limits.MaxResultTuples]
		out.Truncated = true
		out.Warnings = append(out.Warnings, "result truncated at configured max_result_tuples")
	}
	return out
}

// ListKGs, CurrentKG, UseKG, CreateKG, DropKG mirror the storage engine's
// knowledge-graph lifecycle operations (spec.md §6).
func (e *Engine) ListKGs() []string          { return e.store.ListKGs() }
func (e *Engine) CurrentKG() string          { return e.store.CurrentKG() }
func (e *Engine) UseKG(name string) error    { return e.store.UseKG(name) }
func (e *Engine) CreateKG(name string) error { return e.store.CreateKG(name) }
func (e *Engine) DropKG(name string) error   { return e.store.DropKG(name) }

// ListRelations, DescribeRelation, ListRules, RuleDefinition expose catalog
// introspection per KG (spec.md §6).
func (e *Engine) ListRelations(kg string) ([]string, error) { return e.store.ListRelations(kg) }
func (e *Engine) DescribeRelation(kg, name string) (string, error) {
	return e.store.DescribeRelation(kg, name)
}
func (e *Engine) ListRules(kg string) ([]string, error) { return e.store.ListRules(kg) }
func (e *Engine) RuleDefinition(kg, name string) ([]string, error) {
	return e.store.RuleDefinition(kg, name)
}

// PlanDescription is explain()'s structured result (spec.md §6 "explain
// (source) → PlanDescription"): the optimized IR's textual tree, plus a
// YAML rendering alongside it for tooling that wants a structured form
// rather than the programmatic tree (SPEC_FULL.md's domain-stack wiring
// for `gopkg.in/yaml.v2`).
type PlanDescription struct {
	Query string `yaml:"query"`
	Tree  string `yaml:"tree"`
}

// YAML renders the plan description as YAML.
func (p PlanDescription) YAML() (string, error) {
	buf, err := yaml.Marshal(p)
	if err != nil {
		return "", ilerrors.ErrInvalidArgument.New(err.Error())
	}
	return string(buf), nil
}

// Explain compiles source the same way Execute would evaluate it and
// returns its optimized plan tree without running it (spec.md §6
// "explain(source) → PlanDescription").
func (e *Engine) Explain(source string) (PlanDescription, error) {
	span := e.startSpan("explain")
	tree, err := e.store.Explain("", source)
	finishSpan(span, err)
	if err != nil {
		return PlanDescription{}, err
	}
	return PlanDescription{Query: source, Tree: tree}, nil
}

// Compact runs compaction on the current knowledge graph (spec.md §6
// "compact()").
func (e *Engine) Compact() error {
	return e.store.Compact(e.store.CurrentKG())
}

// Status reports the engine's current high-level state (spec.md §6
// "status() → Status"), supplemented with the memory monitor's latest RSS
// sample and whether it is currently available.
type Status struct {
	storage.Status
	RSSBytes        uint64
	MemoryMonitorUp bool
	Uptime          time.Duration
}

// Status returns the current Status snapshot.
func (e *Engine) Status() Status {
	st := Status{Status: e.store.Status(), Uptime: time.Since(e.startedAt)}
	if e.memory != nil {
		if rss, err := e.memory.RSSBytes(); err == nil {
			st.RSSBytes = rss
			st.MemoryMonitorUp = true
		}
	}
	return st
}

// Shutdown releases every open relation store across every knowledge graph
// (spec.md §6 "shutdown()"). Calling Shutdown more than once is a no-op.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.shutdown {
		return nil
	}
	e.shutdown = true
	e.logger.Info("inputlayer: shutting down")
	return e.store.Close()
}
