// Package persistence implements A5: durable storage of entity graphs in
// PostgreSQL via uptrace/bun, grounded in the teacher's
// internal/database.Module (pgx pool + bun.DB wiring) and
// domain/backups.Repository (upsert-by-primary-key, Scan-based reads).
//
// A Graph's nodes reference each other through *record.Record pointers
// embedded directly in Payload, which can close into cycles (spec.md
// §3.2's REFERENCE edges) that encoding/json cannot traverse. Snapshot
// flattens a Graph into an acyclic, fully self-contained JSON document:
// every node is listed once, keyed by VersionID, and payload fields that
// hold a nested record are replaced by a $ref marker pointing at that
// node's entry. ToGraph reverses the process, re-threading pointers.
package persistence

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/furlat/Abstractions-sub003/pkg/record"
	"github.com/furlat/Abstractions-sub003/pkg/recordgraph"
)

// ref is the flattened stand-in for a nested *record.Record.
type ref struct {
	Ref uuid.UUID `json:"$ref"`
}

// NodeSnapshot is one record's identity/payload with child records
// replaced by refs. Its structural edges are kept in Snapshot.Edges.
type NodeSnapshot struct {
	Identity record.Identity `json:"identity"`
	TypeName string          `json:"type_name"`
	Payload  map[string]any  `json:"payload"`
}

// Snapshot is the JSON-serializable form of a recordgraph.Graph.
type Snapshot struct {
	RootVersionID uuid.UUID          `json:"root_version_id"`
	Nodes         []NodeSnapshot     `json:"nodes"`
	Edges         []recordgraph.Edge `json:"edges"`
}

// FromGraph flattens g into a Snapshot safe for json.Marshal.
func FromGraph(g *recordgraph.Graph) *Snapshot {
	ids := make([]uuid.UUID, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	s := &Snapshot{RootVersionID: g.RootVersionID, Edges: append([]recordgraph.Edge(nil), g.Edges...)}
	for _, id := range ids {
		n := g.Nodes[id]
		s.Nodes = append(s.Nodes, NodeSnapshot{
			Identity: n.Record.Identity,
			TypeName: n.Record.TypeName,
			Payload:  flattenPayload(n.Record.Payload),
		})
	}
	return s
}

func flattenPayload(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = flattenValue(v)
	}
	return out
}

func flattenValue(v any) any {
	switch t := v.(type) {
	case *record.Record:
		if t == nil {
			return nil
		}
		return ref{Ref: t.VersionID}
	case []*record.Record:
		return flattenSlice(t)
	case record.List:
		return flattenSlice([]*record.Record(t))
	case record.Set:
		return flattenSlice([]*record.Record(t))
	case record.Tuple:
		return flattenSlice([]*record.Record(t))
	case map[string]*record.Record:
		return flattenMap(t)
	case record.Dict:
		return flattenMap(map[string]*record.Record(t))
	default:
		return v
	}
}

func flattenSlice(items []*record.Record) []any {
	out := make([]any, len(items))
	for i, r := range items {
		if r == nil {
			continue
		}
		out[i] = ref{Ref: r.VersionID}
	}
	return out
}

func flattenMap(items map[string]*record.Record) map[string]any {
	out := make(map[string]any, len(items))
	for k, r := range items {
		if r == nil {
			continue
		}
		out[k] = ref{Ref: r.VersionID}
	}
	return out
}

// ToGraph reconstructs a recordgraph.Graph from a Snapshot, re-threading
// every $ref marker back into the *record.Record pointer it stands for.
func ToGraph(s *Snapshot) (*recordgraph.Graph, error) {
	byID := make(map[uuid.UUID]*record.Record, len(s.Nodes))
	for _, n := range s.Nodes {
		byID[n.Identity.VersionID] = &record.Record{Identity: n.Identity, TypeName: n.TypeName}
	}

	for _, n := range s.Nodes {
		rec := byID[n.Identity.VersionID]
		payload, err := unflattenPayload(n.Payload, byID)
		if err != nil {
			return nil, fmt.Errorf("reconstruct payload for %s: %w", n.Identity.VersionID, err)
		}
		rec.Payload = payload
	}

	root, ok := byID[s.RootVersionID]
	if !ok {
		return nil, fmt.Errorf("snapshot missing root node %s", s.RootVersionID)
	}

	g := &recordgraph.Graph{RootVersionID: root.VersionID, Nodes: map[uuid.UUID]*recordgraph.Node{}, Edges: append([]recordgraph.Edge(nil), s.Edges...)}
	for _, n := range s.Nodes {
		g.Nodes[n.Identity.VersionID] = &recordgraph.Node{Record: byID[n.Identity.VersionID]}
	}
	reattachEdgeMetadata(g)
	return g, nil
}

// reattachEdgeMetadata recomputes ParentID/IncomingEdge/AncestryPath/Depth
// for every node from the hierarchical edges recorded in the snapshot,
// mirroring recordgraph.Build's own bookkeeping.
func reattachEdgeMetadata(g *recordgraph.Graph) {
	children := map[uuid.UUID][]recordgraph.Edge{}
	for _, e := range g.Edges {
		if e.Hierarchical {
			children[e.From] = append(children[e.From], e)
		}
	}

	root := g.Nodes[g.RootVersionID]
	root.AncestryPath = []uuid.UUID{g.RootVersionID}
	root.Depth = 0

	queue := []*recordgraph.Node{root}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		for _, e := range children[parent.Record.VersionID] {
			child, ok := g.Nodes[e.To]
			if !ok {
				continue
			}
			edge := e
			child.ParentID = idPtr(parent.Record.VersionID)
			child.IncomingEdge = &edge
			child.AncestryPath = append(append([]uuid.UUID{e.To}), parent.AncestryPath...)
			child.Depth = parent.Depth + 1
			queue = append(queue, child)
		}
	}
}

func idPtr(u uuid.UUID) *uuid.UUID { return &u }

func unflattenPayload(payload map[string]any, byID map[uuid.UUID]*record.Record) (map[string]any, error) {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		resolved, err := unflattenValue(v, byID)
		if err != nil {
			return nil, err
		}
		out[k] = resolved
	}
	return out, nil
}

// unflattenValue handles both already-typed Go values (used directly by
// tests that round-trip in-process) and the generic map[string]any/[]any
// shapes produced by decoding real JSON bytes.
func unflattenValue(v any, byID map[uuid.UUID]*record.Record) (any, error) {
	switch t := v.(type) {
	case ref:
		rec, ok := byID[t.Ref]
		if !ok {
			return nil, fmt.Errorf("dangling $ref %s", t.Ref)
		}
		return rec, nil
	case []any:
		out := make([]*record.Record, len(t))
		for i, item := range t {
			resolved, err := resolveRefLike(item, byID)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	case map[string]any:
		if refID, ok := extractRefID(t); ok {
			rec, ok := byID[refID]
			if !ok {
				return nil, fmt.Errorf("dangling $ref %s", refID)
			}
			return rec, nil
		}
		out := make(map[string]*record.Record, len(t))
		for k, item := range t {
			resolved, err := resolveRefLike(item, byID)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

func resolveRefLike(v any, byID map[uuid.UUID]*record.Record) (*record.Record, error) {
	resolved, err := unflattenValue(v, byID)
	if err != nil {
		return nil, err
	}
	if resolved == nil {
		return nil, nil
	}
	rec, ok := resolved.(*record.Record)
	if !ok {
		return nil, fmt.Errorf("expected record reference, got %T", resolved)
	}
	return rec, nil
}

// extractRefID recognises the $ref shape after a round trip through
// encoding/json, where ref{} decodes into a plain map[string]any with a
// string UUID rather than the typed ref struct.
func extractRefID(m map[string]any) (uuid.UUID, bool) {
	raw, ok := m["$ref"]
	if !ok || len(m) != 1 {
		return uuid.UUID{}, false
	}
	switch v := raw.(type) {
	case string:
		id, err := uuid.Parse(v)
		return id, err == nil
	case uuid.UUID:
		return v, true
	default:
		return uuid.UUID{}, false
	}
}
