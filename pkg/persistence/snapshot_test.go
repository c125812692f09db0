package persistence

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/furlat/Abstractions-sub003/pkg/record"
	"github.com/furlat/Abstractions-sub003/pkg/recordgraph"
)

func buildSampleGraph() *recordgraph.Graph {
	child := record.NewRecord("Child", map[string]any{"n": 1})
	root := record.NewRecord("Parent", map[string]any{
		"name":     "root",
		"child":    child,
		"children": []*record.Record{child},
	})
	root.MarkAsRoot()
	return recordgraph.Build(root)
}

func TestFromGraphRoundTripsThroughJSON(t *testing.T) {
	g := buildSampleGraph()

	snap := FromGraph(g)
	bytes, err := json.Marshal(snap)
	require.NoError(t, err)

	var decoded Snapshot
	require.NoError(t, json.Unmarshal(bytes, &decoded))

	rebuilt, err := ToGraph(&decoded)
	require.NoError(t, err)

	assert.Equal(t, g.RootVersionID, rebuilt.RootVersionID)
	assert.Len(t, rebuilt.Nodes, len(g.Nodes))

	rootNode := rebuilt.Nodes[rebuilt.RootVersionID]
	require.NotNil(t, rootNode)
	assert.Equal(t, "root", rootNode.Record.Payload["name"])

	childRef, ok := rootNode.Record.Payload["child"].(*record.Record)
	require.True(t, ok, "child field should rehydrate to a *record.Record")
	assert.Equal(t, "Child", childRef.TypeName)

	childrenSlice, ok := rootNode.Record.Payload["children"].([]*record.Record)
	require.True(t, ok, "children field should rehydrate to a []*record.Record")
	require.Len(t, childrenSlice, 1)
	assert.Equal(t, childRef.VersionID, childrenSlice[0].VersionID)
}

func TestFromGraphPreservesEdgesAndHierarchy(t *testing.T) {
	g := buildSampleGraph()
	snap := FromGraph(g)

	rebuilt, err := ToGraph(snap)
	require.NoError(t, err)

	for id, node := range g.Nodes {
		other := rebuilt.Nodes[id]
		require.NotNil(t, other)
		assert.Equal(t, node.Depth, other.Depth)
		assert.Equal(t, node.AncestryPath, other.AncestryPath)
	}
}
