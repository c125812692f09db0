package address

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/furlat/Abstractions-sub003/pkg/errs"
	"github.com/furlat/Abstractions-sub003/pkg/record"
)

func TestParseRoundTripsWithFormat(t *testing.T) {
	id := uuid.New()
	cases := []string{
		"@" + id.String(),
		"@" + id.String() + ".age",
		"@" + id.String() + ".items.0.name",
	}
	for _, s := range cases {
		a, err := Parse(s)
		require.NoError(t, err)
		assert.Equal(t, s, Format(a))
	}
}

func TestParseRejectsMalformedAddresses(t *testing.T) {
	for _, s := range []string{"", "not-an-address", "@", "@not-a-uuid", "@" + uuid.New().String() + "..x"} {
		_, err := Parse(s)
		require.Error(t, err, s)
		assert.ErrorIs(t, err, errs.ErrMalformedAddress)
	}
}

func TestIsAddress(t *testing.T) {
	assert.True(t, IsAddress("@"+uuid.New().String()+".name"))
	assert.False(t, IsAddress("plain string"))
}

func TestResolverResolvesEntityAndNestedPath(t *testing.T) {
	child := record.NewRecord("Address", map[string]any{"city": "Berlin"})
	root := record.NewRecord("Person", map[string]any{"name": "Alice", "age": 30, "address": child})

	byID := map[uuid.UUID]*record.Record{root.VersionID: root, child.VersionID: child}
	r := NewResolver(func(id uuid.UUID) (*record.Record, error) {
		rec, ok := byID[id]
		if !ok {
			return nil, errs.ErrNotFound
		}
		return rec, nil
	})

	whole, err := r.Resolve("@" + root.VersionID.String())
	require.NoError(t, err)
	assert.Same(t, root, whole)

	name, err := r.Resolve("@" + root.VersionID.String() + ".name")
	require.NoError(t, err)
	assert.Equal(t, "Alice", name)

	city, err := r.Resolve("@" + root.VersionID.String() + ".address.city")
	require.NoError(t, err)
	assert.Equal(t, "Berlin", city)
}

func TestResolverFailsOnMissingField(t *testing.T) {
	root := record.NewRecord("Person", map[string]any{"name": "Alice"})
	r := NewResolver(func(id uuid.UUID) (*record.Record, error) { return root, nil })

	_, err := r.Resolve("@" + root.VersionID.String() + ".nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrPathError)
}

func TestClassifyKwargsPatterns(t *testing.T) {
	rec := record.NewRecord("Person", nil)
	addr := "@" + uuid.New().String()

	cases := []struct {
		name string
		args map[string]any
		want Pattern
	}{
		{"pure records", map[string]any{"p": rec}, PatternPureRecords},
		{"pure primitives", map[string]any{"age": 30, "name": "Alice"}, PatternPurePrimitives},
		{"borrowing", map[string]any{"name": addr}, PatternBorrowing},
		{"composite", map[string]any{"p": rec, "age": 30}, PatternComposite},
		{"mixed", map[string]any{"p": rec, "name": addr}, PatternMixed},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyKwargs(tt.args)
			assert.Equal(t, tt.want, got.Pattern)
		})
	}
}
