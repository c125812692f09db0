package recordgraph

import (
	"sort"

	"github.com/google/uuid"
)

// Diff compares a freshly rebuilt graph against the previously stored one
// and returns the set of version_ids that must be re-versioned (spec.md
// §4.2 Differ). Algorithm:
//
//  1. Symmetric difference of node sets: anything only in next is added,
//     anything only in prev is removed. Every ancestor of an added or
//     removed node (per the graph it appears in) is marked changed.
//  2. For nodes present in both graphs (same version_id — mutation never
//     rotates identity until the store applies update_identifiers),
//     compare by path length descending (leaves first) and diff content
//     hashes; a content change propagates to ancestors the same way.
func Diff(next, prev *Graph) map[uuid.UUID]bool {
	changed := map[uuid.UUID]bool{}

	for id, node := range next.Nodes {
		if _, ok := prev.Nodes[id]; !ok {
			markAncestry(changed, node.AncestryPath)
		}
	}
	for id, node := range prev.Nodes {
		if _, ok := next.Nodes[id]; !ok {
			markAncestry(changed, node.AncestryPath)
		}
	}

	common := make([]*Node, 0, len(next.Nodes))
	for id, node := range next.Nodes {
		if _, ok := prev.Nodes[id]; ok {
			common = append(common, node)
		}
	}
	sort.Slice(common, func(i, j int) bool {
		return len(common[i].AncestryPath) > len(common[j].AncestryPath)
	})

	for _, node := range common {
		old := prev.Nodes[node.Record.VersionID]
		if node.Record.ContentHash() != old.Record.ContentHash() {
			markAncestry(changed, node.AncestryPath)
		}
	}

	return changed
}

func markAncestry(changed map[uuid.UUID]bool, path []uuid.UUID) {
	for _, id := range path {
		changed[id] = true
	}
}
