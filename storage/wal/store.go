// Package wal implements per-(KG, relation) durability (spec.md §4.8): an
// append-only write-ahead log, a sequence of flushed columnar batch files,
// and a JSON manifest tying them together, with bolt providing the
// embedded columnar-batch store and fsync/atomic-rename durability.
package wal

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"

	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"

	ilerrors "github.com/inputlayer/inputlayer/errors"
	"github.com/pkg/errors"
)

const manifestFile = "manifest.json"
const walFile = "wal.log"
const batchesDir = "batches"

// Store is the durability shard for one relation: it owns a WAL file, a
// directory of batch files, and the manifest binding them together.
type Store struct {
	dir            string
	relation       string
	log            *Log
	manifest       Manifest
	buffer         []Entry
	flushThreshold int
	clock          int64 // logical time, monotonic per relation (spec.md §5)
	logger         *logrus.Entry
}

// Open recovers (or creates) the durability shard rooted at dir
// (<data_dir>/<kg>/relations/<rel>/), replaying the WAL from the manifest's
// recorded offset forward (spec.md §4.8 "Recovery").
func Open(dir, relation string, flushThreshold int) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, batchesDir), 0755); err != nil {
		return nil, errors.Wrapf(err, "wal store: mkdir %s", dir)
	}

	manifest, err := LoadManifest(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, err
	}

	l, err := OpenLog(filepath.Join(dir, walFile))
	if err != nil {
		return nil, err
	}

	replayed, err := ReadFrom(filepath.Join(dir, walFile), manifest.WALOffset)
	if err != nil {
		return nil, ilerrors.ErrCorruptState.New(relation, err.Error())
	}

	gcOrphanBatches(dir, manifest)

	s := &Store{
		dir:            dir,
		relation:       relation,
		log:            l,
		manifest:       manifest,
		buffer:         replayed,
		flushThreshold: flushThreshold,
		logger:         logrus.WithField("relation", relation),
	}
	for _, b := range manifest.Batches {
		if b.MaxTime > s.clock {
			s.clock = b.MaxTime
		}
	}
	for _, e := range replayed {
		if e.Time > s.clock {
			s.clock = e.Time
		}
	}
	s.logger.WithField("replayed", len(replayed)).Info("wal: recovered relation")
	return s, nil
}

// gcOrphanBatches removes batch files on disk that the manifest no longer
// references — the trace of a crash between a compaction's manifest commit
// and its unlink of superseded files (spec.md §4.8, §7).
func gcOrphanBatches(dir string, m Manifest) {
	live := make(map[string]bool, len(m.Batches))
	for _, b := range m.Batches {
		live[b.File] = true
	}
	entries, err := os.ReadDir(filepath.Join(dir, batchesDir))
	if err != nil {
		return
	}
	for _, e := range entries {
		if !live[e.Name()] {
			os.Remove(filepath.Join(dir, batchesDir, e.Name()))
		}
	}
}

// Append buffers diffs, writes them synchronously to the WAL, and triggers
// a flush once the buffer crosses flushThreshold (spec.md §4.8 "Write
// path").
func (s *Store) Append(diffs []Entry) error {
	if len(diffs) == 0 {
		return nil
	}
	stamped := make([]Entry, len(diffs))
	for i, d := range diffs {
		s.clock++
		d.Time = s.clock
		stamped[i] = d
	}
	if err := s.log.Append(stamped); err != nil {
		return err
	}
	s.buffer = append(s.buffer, stamped...)
	if s.flushThreshold > 0 && len(s.buffer) >= s.flushThreshold {
		return s.Flush()
	}
	return nil
}

// Flush writes the buffered diffs as a new batch file, commits a manifest
// pointing to it alongside the prior live batches, and only then truncates
// the WAL (spec.md §4.8 "Flush").
func (s *Store) Flush() error {
	if len(s.buffer) == 0 {
		return nil
	}
	gen := s.manifest.Generation + 1
	fileName := "gen-" + strconv.Itoa(gen) + "-" + uuid.NewV4().String() + ".bolt"
	batchPath := filepath.Join(s.dir, batchesDir, fileName)

	rowCount, minT, maxT, err := WriteBatch(batchPath, s.buffer)
	if err != nil {
		return err
	}

	next := Manifest{
		Generation: gen,
		Batches:    append(append([]BatchMeta{}, s.manifest.Batches...), BatchMeta{File: fileName, RowCount: rowCount, MinTime: minT, MaxTime: maxT}),
		WALOffset:  s.log.Offset(),
	}
	if err := SaveManifest(filepath.Join(s.dir, manifestFile), next); err != nil {
		os.Remove(batchPath)
		return err
	}

	// The manifest rename above is the durability point; only now is it
	// safe to discard the WAL tail it covers (spec.md §4.8: "the WAL must
	// not be cleared before the manifest rename has durably completed").
	if err := s.log.Reset(); err != nil {
		return err
	}
	// The emptied WAL takes its next appends from offset 0; record that,
	// or a later Open would skip them by replaying from the old offset.
	next.WALOffset = 0
	if err := SaveManifest(filepath.Join(s.dir, manifestFile), next); err != nil {
		return err
	}

	s.manifest = next
	s.buffer = nil
	s.logger.WithFields(logrus.Fields{"generation": gen, "rows": rowCount}).Info("wal: flushed batch")
	return nil
}

// Compact consolidates every live batch plus the current buffer into a
// single new batch file, replacing the manifest's batch list wholesale and
// unlinking the superseded files only after the new manifest durably
// commits (spec.md §4.8 "Compaction").
func (s *Store) Compact() error {
	if err := s.Flush(); err != nil {
		return err
	}

	all := make([]Entry, 0)
	for _, b := range s.manifest.Batches {
		entries, err := ReadBatch(filepath.Join(s.dir, batchesDir, b.File))
		if err != nil {
			return ilerrors.ErrCorruptState.New(s.relation, err.Error())
		}
		all = append(all, entries...)
	}

	consolidated := consolidate(all)

	gen := s.manifest.Generation + 1
	fileName := "gen-" + strconv.Itoa(gen) + "-" + uuid.NewV4().String() + ".bolt"
	batchPath := filepath.Join(s.dir, batchesDir, fileName)

	rowCount, minT, maxT, err := WriteBatch(batchPath, consolidated)
	if err != nil {
		return err
	}

	superseded := s.manifest.Batches
	next := Manifest{
		Generation: gen,
		Batches:    []BatchMeta{{File: fileName, RowCount: rowCount, MinTime: minT, MaxTime: maxT}},
		WALOffset:  s.manifest.WALOffset,
	}
	if err := SaveManifest(filepath.Join(s.dir, manifestFile), next); err != nil {
		os.Remove(batchPath)
		return err
	}

	// Only after the new manifest is durable do we unlink the superseded
	// batches; a crash before this point just leaves orphans for the next
	// Open's gcOrphanBatches to collect.
	for _, b := range superseded {
		os.Remove(filepath.Join(s.dir, batchesDir, b.File))
	}

	s.manifest = next
	s.logger.WithFields(logrus.Fields{"generation": gen, "rows": rowCount, "superseded": len(superseded)}).Info("wal: compacted")
	return nil
}

// consolidate sums multiplicities by tuple, dropping zero-multiplicity
// results, preserving the minimum logical time observed per tuple (spec.md
// §4.8 "consolidate diffs by (tuple, time)").
func consolidate(entries []Entry) []Entry {
	type agg struct {
		mult int64
		time int64
	}
	byHash := make(map[uint64]map[int]*agg)
	order := make([]uint64, 0)
	tuples := make(map[uint64][]Entry)

	for _, e := range entries {
		h := e.Tuple.Hash()
		bucket, ok := byHash[h]
		if !ok {
			bucket = make(map[int]*agg)
			byHash[h] = bucket
			order = append(order, h)
		}
		idx := -1
		for i, t := range tuples[h] {
			if t.Tuple.Equal(e.Tuple) {
				idx = i
				break
			}
		}
		if idx == -1 {
			tuples[h] = append(tuples[h], e)
			idx = len(tuples[h]) - 1
		}
		a, ok := bucket[idx]
		if !ok {
			a = &agg{time: e.Time}
			bucket[idx] = a
		}
		a.mult += e.Mult
		if e.Time < a.time {
			a.time = e.Time
		}
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	var out []Entry
	for _, h := range order {
		for idx, a := range byHash[h] {
			if a.mult == 0 {
				continue
			}
			out = append(out, Entry{Tuple: tuples[h][idx].Tuple, Mult: a.mult, Time: a.time})
		}
	}
	return out
}

// Scan returns the relation's full, consolidated diff set: every live
// batch plus the still-buffered tail.
func (s *Store) Scan() ([]Entry, error) {
	all := make([]Entry, 0)
	for _, b := range s.manifest.Batches {
		entries, err := ReadBatch(filepath.Join(s.dir, batchesDir, b.File))
		if err != nil {
			return nil, ilerrors.ErrCorruptState.New(s.relation, err.Error())
		}
		all = append(all, entries...)
	}
	all = append(all, s.buffer...)
	return consolidate(all), nil
}

func (s *Store) Close() error {
	return s.log.Close()
}
