// Package recordgraph implements C2: building a rooted DAG from a record's
// structural containment and diffing two such graphs to find the set of
// records that require a new version (spec.md §4.2).
package recordgraph

import (
	"sort"

	"github.com/google/uuid"

	"github.com/furlat/Abstractions-sub003/pkg/record"
)

// EdgeKind is the closed set of structural edge classifications (spec.md
// §3.2 and §9 "Sum types over class hierarchies").
type EdgeKind int

const (
	EdgeDirect EdgeKind = iota
	EdgeList
	EdgeDict
	EdgeSet
	EdgeTuple
	EdgeHierarchical
	EdgeReference
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeDirect:
		return "direct"
	case EdgeList:
		return "list"
	case EdgeDict:
		return "dict"
	case EdgeSet:
		return "set"
	case EdgeTuple:
		return "tuple"
	case EdgeHierarchical:
		return "hierarchical"
	case EdgeReference:
		return "reference"
	default:
		return "unknown"
	}
}

// Edge describes one structural containment link discovered during the
// build. Kind is the *container* kind (list/dict/set/tuple/direct) the
// field held; Hierarchical is set when this edge is also the node's
// canonical ownership edge (spec.md's "HIERARCHICAL" classification is
// orthogonal to the container kind it rides on).
type Edge struct {
	From         uuid.UUID
	To           uuid.UUID
	Field        string
	Kind         EdgeKind
	Index        *int
	Key          *string
	Hierarchical bool
}

// Node is one record plus its position in the graph.
type Node struct {
	Record       *record.Record
	ParentID     *uuid.UUID
	IncomingEdge *Edge // the hierarchical edge into this node, nil for the root
	AncestryPath []uuid.UUID
	Depth        int
}

// Graph is a rooted DAG of records linked by structural edges.
type Graph struct {
	RootVersionID uuid.UUID
	Nodes         map[uuid.UUID]*Node
	Edges         []Edge // every discovered edge, hierarchical and reference alike
}

// Build performs a single breadth-first traversal from root, classifying
// edges per spec.md §4.2. Deterministic: payload fields are always visited
// in sorted-key order so equivalent inputs always yield equivalent graphs.
func Build(root *record.Record) *Graph {
	g := &Graph{
		RootVersionID: root.VersionID,
		Nodes:         map[uuid.UUID]*Node{},
	}

	rootNode := &Node{Record: root, AncestryPath: []uuid.UUID{root.VersionID}, Depth: 0}
	g.Nodes[root.VersionID] = rootNode

	queue := []*Node{rootNode}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]

		for _, child := range childEdges(parent.Record) {
			existing, seen := g.Nodes[child.rec.VersionID]

			if !seen {
				edge := Edge{
					From: parent.Record.VersionID, To: child.rec.VersionID,
					Field: child.field, Kind: child.kind, Index: child.index, Key: child.key,
					Hierarchical: true,
				}
				g.Edges = append(g.Edges, edge)

				path := append(append([]uuid.UUID{child.rec.VersionID}), parent.AncestryPath...)
				node := &Node{
					Record: child.rec, ParentID: ptr(parent.Record.VersionID),
					IncomingEdge: &edge, AncestryPath: path, Depth: parent.Depth + 1,
				}
				g.Nodes[child.rec.VersionID] = node
				queue = append(queue, node)
				continue
			}

			// Already visited. A cycle-closing edge (child is an ancestor
			// of parent) is always a reference, never hierarchical.
			if isAncestor(parent, child.rec.VersionID) {
				g.Edges = append(g.Edges, Edge{
					From: parent.Record.VersionID, To: child.rec.VersionID,
					Field: child.field, Kind: child.kind, Index: child.index, Key: child.key,
				})
				continue
			}

			newDepth := parent.Depth + 1
			if newDepth < existing.Depth {
				// Shorter path found: reclassify the old hierarchical edge
				// as a reference and promote this one.
				for i := range g.Edges {
					if g.Edges[i].Hierarchical && g.Edges[i].To == child.rec.VersionID {
						g.Edges[i].Hierarchical = false
					}
				}
				edge := Edge{
					From: parent.Record.VersionID, To: child.rec.VersionID,
					Field: child.field, Kind: child.kind, Index: child.index, Key: child.key,
					Hierarchical: true,
				}
				g.Edges = append(g.Edges, edge)

				path := append(append([]uuid.UUID{child.rec.VersionID}), parent.AncestryPath...)
				existing.ParentID = ptr(parent.Record.VersionID)
				existing.IncomingEdge = &edge
				existing.AncestryPath = path
				existing.Depth = newDepth
				queue = append(queue, existing)
				continue
			}

			// Redundant edge to an already-reached node at equal or
			// greater depth: reference.
			g.Edges = append(g.Edges, Edge{
				From: parent.Record.VersionID, To: child.rec.VersionID,
				Field: child.field, Kind: child.kind, Index: child.index, Key: child.key,
			})
		}
	}

	return g
}

func isAncestor(node *Node, candidate uuid.UUID) bool {
	for _, id := range node.AncestryPath {
		if id == candidate {
			return true
		}
	}
	return false
}

func ptr(u uuid.UUID) *uuid.UUID { return &u }

type childRef struct {
	rec   *record.Record
	field string
	kind  EdgeKind
	index *int
	key   *string
}

// childEdges extracts every *record.Record reachable directly from r's
// payload fields, classified by container shape. Fields are visited in
// sorted order for determinism.
func childEdges(r *record.Record) []childRef {
	fields := make([]string, 0, len(r.Payload))
	for f := range r.Payload {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var out []childRef
	for _, field := range fields {
		v := r.Payload[field]
		switch t := v.(type) {
		case *record.Record:
			if t != nil {
				out = append(out, childRef{rec: t, field: field, kind: EdgeDirect})
			}
		case []*record.Record:
			out = append(out, listChildren(t, field, EdgeList)...)
		case record.List:
			out = append(out, listChildren([]*record.Record(t), field, EdgeList)...)
		case record.Set:
			out = append(out, listChildren([]*record.Record(t), field, EdgeSet)...)
		case record.Tuple:
			out = append(out, listChildren([]*record.Record(t), field, EdgeTuple)...)
		case map[string]*record.Record:
			out = append(out, dictChildren(t, field)...)
		case record.Dict:
			out = append(out, dictChildren(map[string]*record.Record(t), field)...)
		}
	}
	return out
}

func listChildren(items []*record.Record, field string, kind EdgeKind) []childRef {
	out := make([]childRef, 0, len(items))
	for i, rec := range items {
		if rec == nil {
			continue
		}
		idx := i
		out = append(out, childRef{rec: rec, field: field, kind: kind, index: &idx})
	}
	return out
}

func dictChildren(items map[string]*record.Record, field string) []childRef {
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]childRef, 0, len(items))
	for _, k := range keys {
		rec := items[k]
		if rec == nil {
			continue
		}
		key := k
		out = append(out, childRef{rec: rec, field: field, kind: EdgeDict, key: &key})
	}
	return out
}
