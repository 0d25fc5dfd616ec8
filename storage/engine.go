// Package storage implements the public storage-engine façade (spec.md
// §4.9): knowledge-graph lifecycle, fact insert/delete, query evaluation,
// and rule registration, all built on catalog, ir/optimizer/stratifier/exec,
// and the wal durability shard.
package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"

	"github.com/inputlayer/inputlayer/catalog"
	ilerrors "github.com/inputlayer/inputlayer/errors"
	"github.com/inputlayer/inputlayer/exec"
	"github.com/inputlayer/inputlayer/lock"
	"github.com/inputlayer/inputlayer/storage/wal"
)

// Config configures a freshly opened Engine (spec.md §6 "open(config)").
type Config struct {
	DataDir        string
	AutoCreate     bool // catalog.New's auto-create-on-first-insert behavior
	FlushThreshold int  // wal.Store buffered-entry count before an automatic flush
	Limits         exec.Limits
}

// Engine is the top-level storage façade: the set of knowledge graphs, the
// current one, and dispatch to each KG's catalog and persistence shard.
type Engine struct {
	cfg     Config
	guard   lock.Guard
	kgs     map[string]*knowledgeGraph
	current string
	logger  *logrus.Entry
}

// knowledgeGraph is one namespace's catalog, relation stores, and in-memory
// base-relation cache (spec.md §3 "Knowledge Graph").
type knowledgeGraph struct {
	name   string
	id     uuid.UUID
	dir    string
	cat    *catalog.Catalog
	guard  lock.Guard // guards stores/bags against concurrent insert/delete/compact
	stores map[string]*wal.Store
	bags   map[string]*exec.Bag

	planGuard lock.Guard
	planCache map[string]cachedPlan
}

type kgMeta struct {
	ID string `json:"id"`
}

// Open initializes storage at cfg.DataDir: every existing `<kg>/` directory
// is recovered (manifest load + WAL replay per relation, persistent rules
// reloaded from rules/catalog.json); if none exist, a "default" KG is
// created (spec.md §6 "open(config)").
func Open(cfg Config) (*Engine, error) {
	if cfg.FlushThreshold <= 0 {
		cfg.FlushThreshold = 1000
	}
	if cfg.Limits.MaxResultTuples == 0 {
		cfg.Limits = exec.DefaultLimits()
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, ilerrors.ErrIoError.New(err.Error())
	}

	e := &Engine{
		cfg:    cfg,
		kgs:    make(map[string]*knowledgeGraph),
		logger: logrus.WithField("component", "storage"),
	}

	entries, err := os.ReadDir(cfg.DataDir)
	if err != nil {
		return nil, ilerrors.ErrIoError.New(err.Error())
	}
	for _, ent := range entries {
		if !ent.IsDir() {
			continue
		}
		kg, err := loadKnowledgeGraph(cfg, ent.Name())
		if err != nil {
			return nil, err
		}
		e.kgs[kg.name] = kg
	}

	if len(e.kgs) == 0 {
		kg, err := createKnowledgeGraph(cfg, "default")
		if err != nil {
			return nil, err
		}
		e.kgs["default"] = kg
	}

	names := e.kgNames()
	e.current = names[0]
	e.logger.WithField("kgs", names).Info("storage: opened")
	return e, nil
}

func (e *Engine) kgNames() []string {
	names := make([]string, 0, len(e.kgs))
	for n := range e.kgs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ListKGs enumerates every knowledge graph in sorted order.
func (e *Engine) ListKGs() []string {
	var out []string
	e.guard.ReadLocked(func() error {
		out = e.kgNames()
		return nil
	})
	return out
}

// CurrentKG returns the active knowledge graph's name.
func (e *Engine) CurrentKG() string {
	var out string
	e.guard.ReadLocked(func() error {
		out = e.current
		return nil
	})
	return out
}

// UseKG switches the active knowledge graph.
func (e *Engine) UseKG(name string) error {
	return e.guard.WriteLocked(func() error {
		if _, ok := e.kgs[name]; !ok {
			return ilerrors.ErrKnowledgeGraphNotFound.New(name)
		}
		e.current = name
		return nil
	})
}

// CreateKG creates a new, empty knowledge graph.
func (e *Engine) CreateKG(name string) error {
	return e.guard.WriteLocked(func() error {
		if _, ok := e.kgs[name]; ok {
			return ilerrors.ErrKnowledgeGraphExists.New(name)
		}
		kg, err := createKnowledgeGraph(e.cfg, name)
		if err != nil {
			return err
		}
		e.kgs[name] = kg
		return nil
	})
}

// DropKG deletes a knowledge graph's in-memory state and on-disk directory.
// Dropping the current KG is rejected (spec.md §4.9 "drop current is
// rejected").
func (e *Engine) DropKG(name string) error {
	return e.guard.WriteLocked(func() error {
		if name == e.current {
			return ilerrors.ErrCannotDropCurrent.New(name)
		}
		kg, ok := e.kgs[name]
		if !ok {
			return ilerrors.ErrKnowledgeGraphNotFound.New(name)
		}
		for _, s := range kg.stores {
			s.Close()
		}
		delete(e.kgs, name)
		return os.RemoveAll(kg.dir)
	})
}

// Close releases every open relation store across every knowledge graph.
func (e *Engine) Close() error {
	return e.guard.WriteLocked(func() error {
		for _, kg := range e.kgs {
			for _, s := range kg.stores {
				s.Close()
			}
		}
		return nil
	})
}

// Limits returns the resource limits every query/rule/delete evaluation on
// this Engine runs under (spec.md §5).
func (e *Engine) Limits() exec.Limits {
	return e.cfg.Limits
}

// lookupKG resolves a KG name, defaulting to the current one when empty.
func (e *Engine) lookupKG(name string) (*knowledgeGraph, error) {
	var kg *knowledgeGraph
	err := e.guard.ReadLocked(func() error {
		if name == "" {
			name = e.current
		}
		k, ok := e.kgs[name]
		if !ok {
			return ilerrors.ErrKnowledgeGraphNotFound.New(name)
		}
		kg = k
		return nil
	})
	return kg, err
}

func createKnowledgeGraph(cfg Config, name string) (*knowledgeGraph, error) {
	dir := filepath.Join(cfg.DataDir, name)
	if err := os.MkdirAll(filepath.Join(dir, "rules"), 0755); err != nil {
		return nil, ilerrors.ErrIoError.New(err.Error())
	}
	id := uuid.NewV4()
	meta := kgMeta{ID: id.String()}
	buf, _ := json.Marshal(meta)
	if err := os.WriteFile(filepath.Join(dir, "kg.json"), buf, 0644); err != nil {
		return nil, ilerrors.ErrIoError.New(err.Error())
	}

	kg := &knowledgeGraph{
		name:      name,
		id:        id,
		dir:       dir,
		cat:       catalog.New(cfg.AutoCreate),
		stores:    make(map[string]*wal.Store),
		bags:      make(map[string]*exec.Bag),
		planCache: make(map[string]cachedPlan),
	}
	return kg, nil
}

func loadKnowledgeGraph(cfg Config, name string) (*knowledgeGraph, error) {
	dir := filepath.Join(cfg.DataDir, name)
	var id uuid.UUID
	if buf, err := os.ReadFile(filepath.Join(dir, "kg.json")); err == nil {
		var meta kgMeta
		if err := json.Unmarshal(buf, &meta); err == nil {
			if parsed, err := uuid.FromString(meta.ID); err == nil {
				id = parsed
			}
		}
	}

	kg := &knowledgeGraph{
		name:      name,
		id:        id,
		dir:       dir,
		cat:       catalog.New(cfg.AutoCreate),
		stores:    make(map[string]*wal.Store),
		bags:      make(map[string]*exec.Bag),
		planCache: make(map[string]cachedPlan),
	}

	if err := loadPersistentRules(kg); err != nil {
		return nil, err
	}

	relDir := filepath.Join(dir, "relations")
	entries, err := os.ReadDir(relDir)
	if err != nil {
		if os.IsNotExist(err) {
			return kg, nil
		}
		return nil, ilerrors.ErrIoError.New(err.Error())
	}
	for _, ent := range entries {
		if !ent.IsDir() {
			continue
		}
		if err := kg.openRelationStore(ent.Name(), cfg.FlushThreshold); err != nil {
			return nil, err
		}
	}
	return kg, nil
}
