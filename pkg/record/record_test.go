package record

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecordAllocatesFreshIdentifiers(t *testing.T) {
	r := NewRecord("Person", map[string]any{"name": "Alice", "age": 30})

	assert.NotEqual(t, uuid.Nil, r.VersionID)
	assert.NotEqual(t, uuid.Nil, r.InstanceID)
	assert.NotEqual(t, uuid.Nil, r.LineageID)
	assert.Nil(t, r.PreviousVersionID)
	assert.Empty(t, r.PriorVersionIDs)
	assert.Equal(t, "Alice", r.Payload["name"])
}

func TestUpdateIdentifiersRotatesVersion(t *testing.T) {
	r := NewRecord("Person", map[string]any{"age": 30})
	old := r.VersionID

	r.UpdateIdentifiers(nil)

	require.NotEqual(t, old, r.VersionID)
	require.NotNil(t, r.PreviousVersionID)
	assert.Equal(t, old, *r.PreviousVersionID)
	assert.Contains(t, r.PriorVersionIDs, old)
	assert.NotNil(t, r.ForkedAt)
}

func TestFreshCopyPreservesIdentityChangesInstance(t *testing.T) {
	r := NewRecord("Person", map[string]any{"age": 30})
	cp := r.FreshCopy()

	assert.Equal(t, r.VersionID, cp.VersionID)
	assert.Equal(t, r.LineageID, cp.LineageID)
	assert.NotEqual(t, r.InstanceID, cp.InstanceID)

	// Mutating the copy's payload must not affect the original (isolation).
	cp.Payload["age"] = 99
	assert.Equal(t, 30, r.Payload["age"])
}

func TestMarkAsRoot(t *testing.T) {
	r := NewRecord("Person", nil)
	r.MarkAsRoot()

	require.True(t, r.IsRoot())
	require.NotNil(t, r.RootVersionID)
	assert.Equal(t, r.VersionID, *r.RootVersionID)
}

func TestBorrowFieldFromRecordsProvenance(t *testing.T) {
	src := NewRecord("Person", map[string]any{"name": "Alice"})
	dst := NewRecord("Greeting", map[string]any{})

	dst.BorrowFieldFrom(src, "name", "greetee")

	assert.Equal(t, "Alice", dst.Payload["greetee"])
	assert.Equal(t, src.VersionID, dst.AttributeSource["greetee"])
}

func TestContentHashIsOrderIndependentAndSensitiveToValue(t *testing.T) {
	a := NewRecord("Person", map[string]any{"name": "Alice", "age": 30})
	b := NewRecord("Person", map[string]any{"age": 30, "name": "Alice"})
	c := NewRecord("Person", map[string]any{"name": "Alice", "age": 31})

	assert.Equal(t, a.ContentHash(), b.ContentHash())
	assert.NotEqual(t, a.ContentHash(), c.ContentHash())
}
