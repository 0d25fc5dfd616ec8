package storage

import (
	"fmt"

	"github.com/inputlayer/inputlayer/catalog"
	ilerrors "github.com/inputlayer/inputlayer/errors"
)

// ListRelations enumerates every relation registered in kgName, base and
// derived alike (spec.md §6 "list_relations(kg)").
func (e *Engine) ListRelations(kgName string) ([]string, error) {
	kg, err := e.lookupKG(kgName)
	if err != nil {
		return nil, err
	}
	metas := kg.cat.EnumerateRelations()
	names := make([]string, len(metas))
	for i, m := range metas {
		names[i] = m.Name
	}
	return names, nil
}

// DescribeRelation renders one relation's schema and kind as a short
// one-line summary (spec.md §6 "describe_relation(kg, name)").
func (e *Engine) DescribeRelation(kgName, name string) (string, error) {
	kg, err := e.lookupKG(kgName)
	if err != nil {
		return "", err
	}
	meta, ok := kg.cat.Lookup(name)
	if !ok {
		return "", ilerrors.ErrRelationNotFound.New(name, kgName)
	}
	kind := "base"
	switch meta.Kind {
	case catalog.KindPersistentView:
		kind = "persistent view"
	case catalog.KindSessionView:
		kind = "session view"
	}
	cols := make([]string, meta.Schema.Arity())
	for i, c := range meta.Schema.Columns {
		cols[i] = fmt.Sprintf("%s:%s", c.Name, c.Type)
	}
	return fmt.Sprintf("%s (%s) %v", name, kind, cols), nil
}

// Status summarizes an Engine's current state for the supplemented
// `.status` meta-command and the top-level status() external interface
// (spec.md §6 "status() → Status").
type Status struct {
	KGCount   int
	CurrentKG string
	KGs       []string
}

func (e *Engine) Status() Status {
	var st Status
	e.guard.ReadLocked(func() error {
		names := e.kgNames()
		st = Status{KGCount: len(names), CurrentKG: e.current, KGs: names}
		return nil
	})
	return st
}
