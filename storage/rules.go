package storage

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/inputlayer/inputlayer/catalog"
	ilerrors "github.com/inputlayer/inputlayer/errors"
	"github.com/inputlayer/inputlayer/ir"
	"github.com/inputlayer/inputlayer/parser"
	"github.com/inputlayer/inputlayer/value"
)

func rulesCatalogPath(kg *knowledgeGraph) string {
	return filepath.Join(kg.dir, "rules", "catalog.json")
}

// registerDerivedView records head as a persistent-view relation so it
// shows up in ListRelations/DescribeRelation the same as a base relation
// would (spec.md §3 distinguishes base from derived relations, but both are
// catalog citizens). Column types aren't known until the rule is evaluated,
// so the schema carries the head's variable names with untyped columns.
func registerDerivedView(kg *knowledgeGraph, rule *parser.Rule, headVars []string) {
	cols := make([]catalog.Column, len(headVars))
	for i, v := range headVars {
		cols[i] = catalog.Column{Name: v, Type: value.KindNull}
	}
	kg.cat.RegisterDerived(rule.Head.Relation, catalog.Schema{Columns: cols}, true)
}

// loadPersistentRules replays a knowledge graph's persisted rule-set at
// Open time (spec.md §4.9 "rules survive a restart the same as facts do").
// Unlike relation facts, rules are small and rewritten whole on every
// mutation rather than WAL-logged.
func loadPersistentRules(kg *knowledgeGraph) error {
	buf, err := os.ReadFile(rulesCatalogPath(kg))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return ilerrors.ErrIoError.New(err.Error())
	}
	var sources []string
	if err := json.Unmarshal(buf, &sources); err != nil {
		return ilerrors.ErrCorruptState.New("rules", err.Error())
	}
	for _, src := range sources {
		stmts, err := parser.Parse(src)
		if err != nil {
			return ilerrors.ErrCorruptState.New("rules", err.Error())
		}
		for _, stmt := range stmts {
			rs, ok := stmt.(*parser.RuleStmt)
			if !ok {
				continue
			}
			if err := kg.cat.RegisterRule(rs.Rule, rs.SourceText); err != nil {
				return err
			}
			_, headVars, err := ir.Build(kg.cat, rs.Rule)
			if err != nil {
				return err
			}
			registerDerivedView(kg, rs.Rule, headVars)
		}
	}
	return nil
}

// persistRules rewrites the persistent rule catalog file from the catalog's
// current rule-sets, in their stable enumeration order.
func persistRules(kg *knowledgeGraph) error {
	var sources []string
	for _, rs := range kg.cat.EnumerateRules() {
		if !rs.Persistent {
			continue
		}
		for _, clause := range rs.Clauses {
			sources = append(sources, clause.SourceText)
		}
	}
	buf, err := json.MarshalIndent(sources, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(rulesCatalogPath(kg)), "catalog-*.tmp")
	if err != nil {
		return ilerrors.ErrIoError.New(err.Error())
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return ilerrors.ErrIoError.New(err.Error())
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return ilerrors.ErrIoError.New(err.Error())
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return ilerrors.ErrIoError.New(err.Error())
	}
	if err := os.Rename(tmpPath, rulesCatalogPath(kg)); err != nil {
		os.Remove(tmpPath)
		return ilerrors.ErrIoError.New(err.Error())
	}
	return nil
}

// RegisterRule parses and adds one rule clause to kgName's persistent
// rule-set (spec.md §4.9 "register a rule"). The clause is validated by
// lowering it to IR immediately — an unsafe head variable or arity mismatch
// is rejected before the clause is committed to the catalog.
func (e *Engine) RegisterRule(kgName, source string) error {
	kg, err := e.lookupKG(kgName)
	if err != nil {
		return err
	}
	stmts, err := parser.Parse(source)
	if err != nil {
		return err
	}
	if len(stmts) != 1 {
		return ilerrors.ErrInvalidArgument.New("expected exactly one rule statement")
	}
	rs, ok := stmts[0].(*parser.RuleStmt)
	if !ok {
		return ilerrors.ErrInvalidArgument.New("expected a rule statement")
	}

	return kg.guard.WriteLocked(func() error {
		_, headVars, err := ir.Build(kg.cat, rs.Rule)
		if err != nil {
			return err
		}
		if err := kg.cat.RegisterRule(rs.Rule, rs.SourceText); err != nil {
			return err
		}
		registerDerivedView(kg, rs.Rule, headVars)
		if err := persistRules(kg); err != nil {
			return err
		}
		kg.invalidatePlans()
		return nil
	})
}

// DropRule removes every clause for head from kgName's rule-set.
func (e *Engine) DropRule(kgName, head string) error {
	kg, err := e.lookupKG(kgName)
	if err != nil {
		return err
	}
	return kg.guard.WriteLocked(func() error {
		if err := kg.cat.DropRule(head); err != nil {
			return err
		}
		if err := persistRules(kg); err != nil {
			return err
		}
		kg.invalidatePlans()
		return nil
	})
}

// ListRules and RuleDefinition expose the catalog's rule registry (spec.md
// §6 "list_rules", "rule_definition").
func (e *Engine) ListRules(kgName string) ([]string, error) {
	kg, err := e.lookupKG(kgName)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, rs := range kg.cat.EnumerateRules() {
		names = append(names, rs.HeadName)
	}
	return names, nil
}

func (e *Engine) RuleDefinition(kgName, head string) ([]string, error) {
	kg, err := e.lookupKG(kgName)
	if err != nil {
		return nil, err
	}
	return kg.cat.RuleDefinition(head)
}
