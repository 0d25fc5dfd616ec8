// Package catalog implements the per-KG relation/rule registry (spec.md §3
// "Knowledge Graph", §4.3).
package catalog

import (
	"fmt"
	"sort"
	"sync"

	ilerrors "github.com/inputlayer/inputlayer/errors"
	"github.com/inputlayer/inputlayer/parser"
	"github.com/inputlayer/inputlayer/value"
)

// RelationKind distinguishes base relations from the two derived flavors.
type RelationKind int

const (
	KindBaseRelation RelationKind = iota
	KindPersistentView
	KindSessionView
)

// RelationMeta describes one relation: its schema and whether it is base
// or derived (spec.md §3).
type RelationMeta struct {
	Name   string
	Schema Schema
	Kind   RelationKind
}

func (m *RelationMeta) IsBase() bool { return m.Kind == KindBaseRelation }

// RuleClause is one clause of a rule-set, keeping both the parsed AST (used
// by the IR builder) and its original source text (used by rule_definition,
// spec.md §6 and the rule_definition round-trip in SPEC_FULL.md).
type RuleClause struct {
	AST        *parser.Rule
	SourceText string
}

// RuleSet is the ordered clause list for one head relation name (spec.md §3
// "A rule-set for a head name is the union of its clauses").
type RuleSet struct {
	HeadName   string
	Clauses    []*RuleClause
	Persistent bool
}

// DepEdge is one dependency-graph edge for the stratifier (spec.md §4.6):
// Head depends on Body, and Negative is set when that dependence runs
// through negation or an aggregate input.
type DepEdge struct {
	Head, Body string
	Negative   bool
}

// Catalog holds one knowledge graph's relations and persistent rule-set,
// guarded by a plain RWMutex per spec.md §5 (reads/enumeration concurrent
// with writes serialized).
type Catalog struct {
	mu        sync.RWMutex
	relations map[string]*RelationMeta
	rules     map[string]*RuleSet
	autoCreate bool
}

func New(autoCreate bool) *Catalog {
	return &Catalog{
		relations:  make(map[string]*RelationMeta),
		rules:      make(map[string]*RuleSet),
		autoCreate: autoCreate,
	}
}

// Lookup returns the relation's metadata, if registered.
func (c *Catalog) Lookup(name string) (*RelationMeta, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.relations[name]
	return m, ok
}

// EnumerateRelations lists all relations in stable, sorted order (spec.md
// §4.3 "enumerate"; §6 list_relations).
func (c *Catalog) EnumerateRelations() []*RelationMeta {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*RelationMeta, 0, len(c.relations))
	for _, m := range c.relations {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DeclareSchema registers a relation's schema explicitly (spec.md §4.3
// "declare schema"). Re-declaring an existing relation with a different
// arity or column types fails: schemas are append-only (spec.md §3).
func (c *Catalog) DeclareSchema(name string, schema Schema) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.relations[name]; ok {
		if !schemasCompatible(existing.Schema, schema) {
			return ilerrors.ErrSchemaViolation.New(name, "schema is append-only and cannot change arity or column types")
		}
		return nil
	}
	c.relations[name] = &RelationMeta{Name: name, Schema: schema, Kind: KindBaseRelation}
	return nil
}

// InferSchema establishes (or validates against) a base relation's schema
// from the types observed in a first/bulk insert, positionally naming
// columns when no declaration exists (spec.md §4.3).
func (c *Catalog) InferSchema(name string, rows [][]value.Value) (Schema, error) {
	if len(rows) == 0 {
		return Schema{}, ilerrors.ErrInvalidArgument.New("cannot infer schema from an empty insert")
	}
	arity := len(rows[0])
	for _, r := range rows {
		if len(r) != arity {
			return Schema{}, ilerrors.ErrSchemaViolation.New(name, "heterogeneous arity across bulk insert")
		}
	}
	kinds := make([]value.Kind, arity)
	for i := range kinds {
		kinds[i] = value.KindNull
	}
	for _, r := range rows {
		for i, v := range r {
			if v.IsNull() {
				continue
			}
			if kinds[i] == value.KindNull {
				kinds[i] = v.Kind()
			} else if kinds[i] != v.Kind() {
				return Schema{}, ilerrors.ErrSchemaViolation.New(name, fmt.Sprintf("heterogeneous types in column %d across bulk insert", i))
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.relations[name]; ok {
		if existing.Schema.Arity() != arity {
			return Schema{}, ilerrors.ErrArityMismatch.New(name, existing.Schema.Arity(), arity)
		}
		for i, col := range existing.Schema.Columns {
			if kinds[i] != value.KindNull && col.Type != kinds[i] {
				return Schema{}, ilerrors.ErrSchemaViolation.New(name, fmt.Sprintf("column %d: expected %s, got %s", i, col.Type, kinds[i]))
			}
		}
		return existing.Schema, nil
	}

	if !c.autoCreate {
		return Schema{}, ilerrors.ErrRelationNotFound.New(name, "")
	}

	cols := make([]Column, arity)
	for i := range cols {
		cols[i] = Column{Name: fmt.Sprintf("col%d", i), Type: kinds[i]}
	}
	schema := Schema{Columns: cols}
	c.relations[name] = &RelationMeta{Name: name, Schema: schema, Kind: KindBaseRelation}
	return schema, nil
}

func schemasCompatible(a, b Schema) bool {
	if a.Arity() != b.Arity() {
		return false
	}
	for i := range a.Columns {
		if a.Columns[i].Type != b.Columns[i].Type {
			return false
		}
	}
	return true
}

// RegisterDerived records a derived relation's schema (persistent or
// session), computed by the IR builder once a rule's head shape is known.
func (c *Catalog) RegisterDerived(name string, schema Schema, persistent bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kind := KindSessionView
	if persistent {
		kind = KindPersistentView
	}
	c.relations[name] = &RelationMeta{Name: name, Schema: schema, Kind: kind}
}
