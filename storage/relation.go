package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/inputlayer/inputlayer/catalog"
	ilerrors "github.com/inputlayer/inputlayer/errors"
	"github.com/inputlayer/inputlayer/exec"
	"github.com/inputlayer/inputlayer/ir"
	"github.com/inputlayer/inputlayer/parser"
	"github.com/inputlayer/inputlayer/storage/wal"
	"github.com/inputlayer/inputlayer/value"
)

func (kg *knowledgeGraph) relationDir(name string) string {
	return filepath.Join(kg.dir, "relations", name)
}

type wireColumn struct {
	Name string `json:"name"`
	Type uint8  `json:"type"`
}

// saveSchema persists a base relation's (name, type) column list so a later
// Open can reconstruct the catalog entry without replaying every diff first
// (spec.md §4.9 "schema validation"; the schema itself is catalog state,
// but it must survive a process restart the same as the diffs do). Column
// types are stored as their raw value.Kind tag rather than the surface-
// syntax type name: value.Kind.String() renders for error messages (e.g.
// "vector<f32>") and doesn't round-trip through catalog.ParseColumnType.
func saveSchema(dir string, schema catalog.Schema) error {
	cols := make([]wireColumn, len(schema.Columns))
	for i, c := range schema.Columns {
		cols[i] = wireColumn{Name: c.Name, Type: uint8(c.Type)}
	}
	buf, err := json.MarshalIndent(cols, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "schema.json"), buf, 0644)
}

func loadSchema(dir string) (catalog.Schema, bool, error) {
	buf, err := os.ReadFile(filepath.Join(dir, "schema.json"))
	if os.IsNotExist(err) {
		return catalog.Schema{}, false, nil
	}
	if err != nil {
		return catalog.Schema{}, false, err
	}
	var cols []wireColumn
	if err := json.Unmarshal(buf, &cols); err != nil {
		return catalog.Schema{}, false, err
	}
	schema := catalog.Schema{Columns: make([]catalog.Column, len(cols))}
	for i, c := range cols {
		schema.Columns[i] = catalog.Column{Name: c.Name, Type: value.Kind(c.Type)}
	}
	return schema, true, nil
}

// openRelationStore recovers one base relation's durability shard and
// rebuilds its in-memory Bag cache from the consolidated diff set (spec.md
// §4.8 "Recovery").
func (kg *knowledgeGraph) openRelationStore(name string, flushThreshold int) error {
	dir := kg.relationDir(name)
	schema, ok, err := loadSchema(dir)
	if err != nil {
		return ilerrors.ErrCorruptState.New(name, err.Error())
	}
	if ok {
		if err := kg.cat.DeclareSchema(name, schema); err != nil {
			return err
		}
	}

	store, err := wal.Open(dir, name, flushThreshold)
	if err != nil {
		return err
	}
	entries, err := store.Scan()
	if err != nil {
		return err
	}

	bag := exec.NewBag()
	for _, e := range entries {
		bag.Add(e.Tuple, e.Mult)
	}

	kg.stores[name] = store
	kg.bags[name] = bag
	return nil
}

func (kg *knowledgeGraph) ensureRelationStore(name string, flushThreshold int) (*wal.Store, error) {
	if s, ok := kg.stores[name]; ok {
		return s, nil
	}
	dir := kg.relationDir(name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, ilerrors.ErrIoError.New(err.Error())
	}
	store, err := wal.Open(dir, name, flushThreshold)
	if err != nil {
		return nil, err
	}
	kg.stores[name] = store
	kg.bags[name] = exec.NewBag()
	return store, nil
}

// InsertFacts validates rows against relation's schema (inferring it on a
// relation's first insert, per spec.md §4.3), appends positive diffs
// durably, and updates the in-memory cache — all-or-nothing at the
// validation stage (spec.md §7 "a bulk insert is all-or-nothing at the
// schema-validation stage").
func (e *Engine) InsertFacts(kgName, relation string, rows [][]value.Value) error {
	kg, err := e.lookupKG(kgName)
	if err != nil {
		return err
	}
	return kg.guard.WriteLocked(func() error {
		if _, err := kg.cat.InferSchema(relation, rows); err != nil {
			return err
		}
		meta, _ := kg.cat.Lookup(relation)
		store, err := kg.ensureRelationStore(relation, e.cfg.FlushThreshold)
		if err != nil {
			return err
		}
		if err := saveSchema(kg.relationDir(relation), meta.Schema); err != nil {
			return ilerrors.ErrIoError.New(err.Error())
		}

		diffs := make([]wal.Entry, len(rows))
		for i, r := range rows {
			diffs[i] = wal.Entry{Tuple: value.Tuple(r), Mult: 1}
		}
		if err := store.Append(diffs); err != nil {
			return err
		}
		for _, d := range diffs {
			kg.bags[relation].Add(d.Tuple, d.Mult)
		}
		return nil
	})
}

// DeleteFacts appends negative diffs for rows (spec.md §4.9 "delete tuples
// (negative diffs)"). Deleting a row not currently present is a no-op: the
// Bag's multiplicity consolidation simply produces (and then drops) a
// negative entry with no positive counterpart.
func (e *Engine) DeleteFacts(kgName, relation string, rows [][]value.Value) error {
	kg, err := e.lookupKG(kgName)
	if err != nil {
		return err
	}
	return kg.guard.WriteLocked(func() error {
		if _, ok := kg.cat.Lookup(relation); !ok {
			return ilerrors.ErrRelationNotFound.New(relation, kg.name)
		}
		store, ok := kg.stores[relation]
		if !ok {
			return ilerrors.ErrRelationNotFound.New(relation, kg.name)
		}

		diffs := make([]wal.Entry, len(rows))
		for i, r := range rows {
			diffs[i] = wal.Entry{Tuple: value.Tuple(r), Mult: -1}
		}
		if err := store.Append(diffs); err != nil {
			return err
		}
		for _, d := range diffs {
			kg.bags[relation].Add(d.Tuple, d.Mult)
		}
		return nil
	})
}

// DeleteByRule deletes every tuple of relation matching rule's body,
// projected onto rule's head pattern (spec.md §4.2 "-r(X,Y):-body.",
// conditional delete). The matching set is computed against the knowledge
// graph's current derived-relation state, exactly as a query would be, then
// each matched row is deleted the same way an explicit DeleteFacts row is.
func (e *Engine) DeleteByRule(kgName string, rule *parser.Rule) error {
	kg, err := e.lookupKG(kgName)
	if err != nil {
		return err
	}
	relation := rule.Head.Relation
	return kg.guard.WriteLocked(func() error {
		node, _, err := ir.Build(kg.cat, rule)
		if err != nil {
			return err
		}
		strata, trees, err := kg.stratifyRuleSets()
		if err != nil {
			return err
		}
		computed, err := evaluateStrata(kg, e.cfg.Limits, strata, trees)
		if err != nil {
			return err
		}
		resolver := &layeredResolver{base: baseResolver{kg: kg}, computed: computed}
		matches, err := exec.EvalWithTimeout(context.Background(), resolver, e.cfg.Limits, node)
		if err != nil {
			return err
		}

		store, ok := kg.stores[relation]
		if !ok {
			return nil // nothing has ever been inserted into relation: nothing to delete
		}

		var diffs []wal.Entry
		matches.Each(func(t value.Tuple, mult int64) {
			if mult > 0 {
				diffs = append(diffs, wal.Entry{Tuple: t, Mult: -mult})
			}
		})
		if len(diffs) == 0 {
			return nil
		}
		if err := store.Append(diffs); err != nil {
			return err
		}
		for _, d := range diffs {
			kg.bags[relation].Add(d.Tuple, d.Mult)
		}
		return nil
	})
}

// Compact runs compaction on every base relation in kgName (spec.md §4.9,
// §6 "compact()").
func (e *Engine) Compact(kgName string) error {
	kg, err := e.lookupKG(kgName)
	if err != nil {
		return err
	}
	return kg.guard.WriteLocked(func() error {
		for _, store := range kg.stores {
			if err := store.Compact(); err != nil {
				return err
			}
		}
		return nil
	})
}
