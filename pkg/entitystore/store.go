// Package entitystore implements C3: the process-wide versioned graph store
// with five indices (spec.md §3.3) and the R1–R7 operations of §4.3.
//
// Grounded in the teacher's domain/graph.Service/Repository pattern: a
// single struct holding mutable indices behind a sync.RWMutex, constructed
// once and injected (here, via Store rather than a Postgres-backed
// Repository — the core spec is explicitly memory-only, §1).
package entitystore

import (
	"sync"

	"github.com/google/uuid"

	"github.com/furlat/Abstractions-sub003/pkg/errs"
	"github.com/furlat/Abstractions-sub003/pkg/metrics"
	"github.com/furlat/Abstractions-sub003/pkg/record"
	"github.com/furlat/Abstractions-sub003/pkg/recordgraph"
)

// Store holds the complete current and historical state of every
// registered record graph. Zero value is not usable; use New().
type Store struct {
	mu sync.RWMutex

	graphs        map[uuid.UUID]*recordgraph.Graph // root_version_id -> graph
	lineages      map[uuid.UUID][]uuid.UUID         // lineage_id -> ordered root_version_ids
	instances     map[uuid.UUID]*record.Record      // instance_id -> live record
	versionToRoot map[uuid.UUID]uuid.UUID           // version_id -> root_version_id
	byType        map[string]map[uuid.UUID]struct{} // type name -> set of root_version_ids

	metrics *metrics.Metrics
}

// AttachMetrics wires a Prometheus metrics bundle (SPEC_FULL.md §4.16)
// into the store. nil (the default) disables instrumentation.
func (s *Store) AttachMetrics(m *metrics.Metrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m
}

func (s *Store) countOp(op string) {
	if s.metrics != nil {
		s.metrics.StoreOperationsTotal.WithLabelValues(op).Inc()
	}
}

// New returns an empty store, as created once at process start (§3.3
// Lifecycle).
func New() *Store {
	return &Store{
		graphs:        map[uuid.UUID]*recordgraph.Graph{},
		lineages:      map[uuid.UUID][]uuid.UUID{},
		instances:     map[uuid.UUID]*record.Record{},
		versionToRoot: map[uuid.UUID]uuid.UUID{},
		byType:        map[string]map[uuid.UUID]struct{}{},
	}
}

// RegisterRoot is R1. root must not yet exist in the store (by version_id).
func (s *Store) RegisterRoot(root *record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registerRootLocked(root)
}

func (s *Store) registerRootLocked(root *record.Record) error {
	s.countOp("register_root")
	if _, exists := s.graphs[root.VersionID]; exists {
		return errs.ErrAlreadyRegistered.WithDetails(map[string]any{"version_id": root.VersionID})
	}

	if root.LineageID == uuid.Nil {
		root.LineageID = uuid.New()
	}
	root.MarkAsRoot()

	g := recordgraph.Build(root)
	for _, node := range g.Nodes {
		node.Record.RootVersionID = &root.VersionID
		node.Record.RootInstanceID = &root.InstanceID
	}

	s.indexGraphLocked(g, root)
	return nil
}

func (s *Store) indexGraphLocked(g *recordgraph.Graph, root *record.Record) {
	// The stored graph is built over a deep copy, so later in-place edits to
	// the caller's live records stay visible to the differ in Version (R2).
	snapshot := recordgraph.Build(root.FreshCopy())
	rootID := root.VersionID
	for _, node := range snapshot.Nodes {
		node.Record.RootVersionID = &rootID
	}
	s.graphs[root.VersionID] = snapshot
	s.lineages[root.LineageID] = append(s.lineages[root.LineageID], root.VersionID)

	for id, node := range g.Nodes {
		s.instances[node.Record.InstanceID] = node.Record
		s.versionToRoot[id] = root.VersionID
	}

	typeSet, ok := s.byType[root.TypeName]
	if !ok {
		typeSet = map[uuid.UUID]struct{}{}
		s.byType[root.TypeName] = typeSet
	}
	typeSet[root.VersionID] = struct{}{}
}

// Version is R2. Returns (changed, error); changed is false (and this is a
// no-op) when the differ finds nothing changed and force is false.
func (s *Store) Version(root *record.Record, force bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versionLocked(root, force)
}

// GetGraph is R3. Returns a deep clone of the stored root record, with
// fresh instance_ids throughout (copy-on-read, §3.3/§9).
func (s *Store) GetGraph(rootVersionID uuid.UUID) (*record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.countOp("get_graph")

	g, ok := s.graphs[rootVersionID]
	if !ok {
		return nil, errs.ErrNotFound.WithDetails(map[string]any{"root_version_id": rootVersionID})
	}
	root := g.Nodes[rootVersionID].Record
	return root.FreshCopy(), nil
}

// GetRecord is R4: locate the enclosing graph via version_to_root, retrieve
// it (R3), then walk to find the requested node inside the fresh copy.
func (s *Store) GetRecord(versionID uuid.UUID) (*record.Record, error) {
	s.mu.RLock()
	s.countOp("get_record")
	rootID, ok := s.versionToRoot[versionID]
	if !ok {
		s.mu.RUnlock()
		return nil, errs.ErrNotFound.WithDetails(map[string]any{"version_id": versionID})
	}
	g := s.graphs[rootID]
	root := g.Nodes[rootID].Record
	s.mu.RUnlock()

	freshRoot := root.FreshCopy()
	freshGraph := recordgraph.Build(freshRoot)
	node, ok := freshGraph.Nodes[versionID]
	if !ok {
		return nil, errs.ErrStoreInconsistency.WithDetails(map[string]any{"version_id": versionID})
	}
	return node.Record, nil
}

// PromoteToRoot is R5.
func (s *Store) PromoteToRoot(rec *record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.RootVersionID != nil && *rec.RootVersionID != rec.VersionID {
		// detachLocked already registers rec as a new root.
		return s.detachLocked(rec)
	}
	rec.RootVersionID = nil
	return s.registerRootLocked(rec)
}

// Detach is R6.
func (s *Store) Detach(rec *record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detachLocked(rec)
}

func (s *Store) detachLocked(rec *record.Record) error {
	s.countOp("detach")
	var formerRoot *record.Record
	if rec.RootVersionID != nil {
		if g, ok := s.graphs[*rec.RootVersionID]; ok {
			formerRoot = g.Nodes[*rec.RootVersionID].Record
		}
	}

	rec.LineageID = uuid.New()
	rec.RootVersionID = nil
	if err := s.registerRootLocked(rec); err != nil {
		return err
	}

	if formerRoot != nil && formerRoot.VersionID != rec.VersionID {
		if _, err := s.versionLocked(formerRoot, true); err != nil {
			return err
		}
	}
	return nil
}

// versionLocked is Version's body without re-acquiring the mutex, for use
// by operations (R6) that already hold the write lock.
func (s *Store) versionLocked(root *record.Record, force bool) (bool, error) {
	s.countOp("version")
	oldRootID := uuid.Nil
	if root.RootVersionID != nil {
		oldRootID = *root.RootVersionID
	}
	oldGraph, ok := s.graphs[oldRootID]
	if !ok {
		return false, errs.ErrNotFound.WithDetails(map[string]any{"root_version_id": oldRootID})
	}
	newGraph := recordgraph.Build(root)
	changedSet := recordgraph.Diff(newGraph, oldGraph)
	if len(changedSet) == 0 && !force {
		return false, nil
	}
	byOldID := map[uuid.UUID]*record.Record{}
	for _, n := range newGraph.Nodes {
		byOldID[n.Record.VersionID] = n.Record
	}
	for id := range changedSet {
		if id == root.VersionID {
			continue
		}
		if rec, ok := byOldID[id]; ok {
			rec.UpdateIdentifiers(nil)
		}
	}
	root.UpdateIdentifiers(nil)
	finalGraph := recordgraph.Build(root)
	for _, node := range finalGraph.Nodes {
		node.Record.RootVersionID = &root.VersionID
		node.Record.RootInstanceID = &root.InstanceID
	}
	delete(s.graphs, oldRootID)
	s.indexGraphLocked(finalGraph, root)
	return true, nil
}

// Attach is R7: c must currently be a root; p is the new parent root. The
// caller is responsible for having already inserted a reference to c
// somewhere in p's payload before calling Attach.
func (s *Store) Attach(c *record.Record, p *record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.countOp("attach")

	if c.RootVersionID == nil || *c.RootVersionID != c.VersionID {
		return errs.ErrInvariantViolation.WithMessage("attach requires c to currently be a root")
	}
	if p.RootVersionID != nil && *p.RootVersionID == c.VersionID {
		return errs.ErrInvariantViolation.WithMessage("cannot attach a root into its own ancestry")
	}

	pRootID := uuid.Nil
	if p.RootVersionID != nil {
		pRootID = *p.RootVersionID
	} else {
		pRootID = p.VersionID
	}

	c.RootVersionID = &pRootID
	if c.LineageID != p.LineageID {
		c.LineageID = p.LineageID
	}

	_, err := s.versionLocked(p, true)
	return err
}

// Retract implements §3.7's soft-deletion tombstone: the root at
// rootVersionID is versioned (forced) with its payload replaced by a
// tombstone marker, preserving lineage history instead of erasing the
// record. Grounded in the teacher's Repository.SoftDelete convention
// (domain/graph/repository.go): mark-and-keep rather than hard delete.
func (s *Store) Retract(rootVersionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.countOp("retract")

	g, ok := s.graphs[rootVersionID]
	if !ok {
		return errs.ErrNotFound.WithDetails(map[string]any{"root_version_id": rootVersionID})
	}
	root := g.Nodes[rootVersionID].Record
	root.Payload = map[string]any{"status": "deleted"}
	_, err := s.versionLocked(root, true)
	return err
}

// Restore reverses a prior Retract by versioning the root again with an
// empty, non-tombstoned payload.
func (s *Store) Restore(rootVersionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.countOp("restore")

	g, ok := s.graphs[rootVersionID]
	if !ok {
		return errs.ErrNotFound.WithDetails(map[string]any{"root_version_id": rootVersionID})
	}
	root := g.Nodes[rootVersionID].Record
	root.Payload = map[string]any{}
	_, err := s.versionLocked(root, true)
	return err
}

// ListLineage returns the ordered root_version_ids recorded for lineageID,
// newest last, matching spec.md §3.3's lineages index.
func (s *Store) ListLineage(lineageID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids, ok := s.lineages[lineageID]
	if !ok {
		return nil, errs.ErrNotFound.WithDetails(map[string]any{"lineage_id": lineageID})
	}
	out := make([]uuid.UUID, len(ids))
	copy(out, ids)
	return out, nil
}

// ListByType returns the root_version_ids of every registered root of the
// given type name.
func (s *Store) ListByType(typeName string) []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.byType[typeName]
	out := make([]uuid.UUID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}
