// Package systemtest exercises the ten universal invariants of spec.md §8
// as a single consolidated suite,
// wiring C1–C10 together the way pkg/entitycore's fx module does but
// without the DI container, so each property reads as a direct
// translation of its spec.md statement.
package systemtest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/furlat/Abstractions-sub003/pkg/address"
	"github.com/furlat/Abstractions-sub003/pkg/callable"
	"github.com/furlat/Abstractions-sub003/pkg/entitystore"
	"github.com/furlat/Abstractions-sub003/pkg/eventbus"
	"github.com/furlat/Abstractions-sub003/pkg/logger"
	"github.com/furlat/Abstractions-sub003/pkg/opctx"
	"github.com/furlat/Abstractions-sub003/pkg/record"
)

func newSystem(t *testing.T) (*entitystore.Store, *address.Resolver, *callable.Registry) {
	t.Helper()
	store := entitystore.New()
	resolver := address.NewResolver(store.GetRecord)
	registry := callable.NewRegistry(store, resolver)
	return store, resolver, registry
}

// Property 1: Identity freshness.
func TestProperty1IdentityFreshness(t *testing.T) {
	store, _, _ := newSystem(t)
	a := record.NewRecord("Person", map[string]any{"name": "Alice", "age": 30})
	require.NoError(t, store.RegisterRoot(a))
	storedInstanceID := a.InstanceID

	got, err := store.GetGraph(a.VersionID)
	require.NoError(t, err)

	assert.NotEqual(t, storedInstanceID, got.InstanceID)
	assert.Equal(t, a.VersionID, got.VersionID)
	assert.Equal(t, a.LineageID, got.LineageID)
	assert.Equal(t, a.TypeName, got.TypeName)
}

// Property 2: Version monotonicity.
func TestProperty2VersionMonotonicity(t *testing.T) {
	store, _, _ := newSystem(t)
	a := record.NewRecord("Person", map[string]any{"name": "Alice", "age": 30})
	require.NoError(t, store.RegisterRoot(a))

	oldID := a.VersionID
	a.Payload["age"] = 31
	changed, err := store.Version(a, false)
	require.NoError(t, err)
	require.True(t, changed)

	require.NotNil(t, a.PreviousVersionID)
	assert.Equal(t, oldID, *a.PreviousVersionID)
	assert.Contains(t, a.PriorVersionIDs, oldID)
}

// Property 3: Lineage consistency.
func TestProperty3LineageConsistency(t *testing.T) {
	store, _, _ := newSystem(t)
	a := record.NewRecord("Person", map[string]any{"name": "Alice", "age": 30})
	require.NoError(t, store.RegisterRoot(a))
	v0 := a.VersionID

	a.Payload["age"] = 31
	_, err := store.Version(a, false)
	require.NoError(t, err)
	v1 := a.VersionID

	a.Payload["age"] = 32
	_, err = store.Version(a, false)
	require.NoError(t, err)
	v2 := a.VersionID

	lineage, err := store.ListLineage(a.LineageID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{v0, v1, v2}, lineage)
}

// Property 4: Root coherence.
func TestProperty4RootCoherence(t *testing.T) {
	store, _, _ := newSystem(t)
	child := record.NewRecord("Address", map[string]any{"city": "Berlin"})
	root := record.NewRecord("Person", map[string]any{"name": "Alice", "address": child})
	require.NoError(t, store.RegisterRoot(root))

	got, err := store.GetGraph(root.VersionID)
	require.NoError(t, err)
	gotChild := got.Payload["address"].(*record.Record)

	require.NotNil(t, gotChild.RootVersionID)
	assert.Equal(t, got.VersionID, *gotChild.RootVersionID)
}

// Property 5: Address roundtrip.
func TestProperty5AddressRoundtrip(t *testing.T) {
	a := record.NewRecord("Person", map[string]any{"name": "Alice"})
	addr := address.Address{VersionID: a.VersionID, Path: []string{"name", "0"}}

	formatted := address.Format(addr)
	parsed, err := address.Parse(formatted)
	require.NoError(t, err)
	assert.Equal(t, addr, parsed)
}

// Property 6: Address resolution.
func TestProperty6AddressResolution(t *testing.T) {
	store, resolver, _ := newSystem(t)
	child := record.NewRecord("Address", map[string]any{"city": "Berlin"})
	root := record.NewRecord("Person", map[string]any{"name": "Alice", "address": child})
	require.NoError(t, store.RegisterRoot(root))

	got, err := resolver.Resolve("@" + child.VersionID.String())
	require.NoError(t, err)
	gotChild, ok := got.(*record.Record)
	require.True(t, ok)
	assert.Equal(t, child.VersionID, gotChild.VersionID)
	assert.Equal(t, "Berlin", gotChild.Payload["city"])
}

type bumpInput struct{ P *record.Record }

func bump(in bumpInput) (*record.Record, error) {
	return record.NewRecord("Person", map[string]any{
		"name": in.P.Payload["name"],
		"age":  in.P.Payload["age"].(int) + 1,
	}), nil
}

type mutateInput struct{ P *record.Record }

func mutateInPlace(in mutateInput) (*record.Record, error) {
	in.P.Payload["age"] = 99
	return in.P, nil
}

// Property 7 & 8: Event pairing and hierarchy, via a decorated Execute call.
func TestProperty7And8EventPairingAndHierarchy(t *testing.T) {
	store, _, registry := newSystem(t)
	require.NoError(t, registry.Register("bump", bump, callable.RegisterOptions{}))

	bus := eventbus.New(logger.NewLogger())
	defer bus.Close()

	var seen []*eventbus.Event
	_, err := bus.Subscribe(eventbus.SubscribeOptions{
		Types:   []string{"bump.invocation"},
		Handler: func(ev *eventbus.Event) { seen = append(seen, ev) },
	})
	require.NoError(t, err)

	a := record.NewRecord("Person", map[string]any{"name": "Alice", "age": 30})
	require.NoError(t, store.RegisterRoot(a))

	factories := opctx.EventFactories{
		Start:      func() *eventbus.Event { return &eventbus.Event{Type: "bump.invocation", Phase: eventbus.PhaseStarted} },
		Completion: func() *eventbus.Event { return &eventbus.Event{Type: "bump.invocation", Phase: eventbus.PhaseCompleted} },
	}
	err = opctx.Decorate(context.Background(), bus, factories, opctx.DefaultOptions(), func(ctx context.Context) error {
		_, execErr := registry.Execute(ctx, "bump", map[string]any{"p": a})
		return execErr
	})
	require.NoError(t, err)

	require.Len(t, seen, 2)
	start, completion := seen[0], seen[1]
	assert.Equal(t, start.LineageID, completion.LineageID)
	assert.Equal(t, start.ParentID, completion.ParentID)

	for _, ev := range seen {
		if ev.ParentID == nil {
			continue
		}
		found := false
		for _, other := range seen {
			if other.ID == *ev.ParentID && other.RootID == ev.RootID {
				found = true
			}
		}
		assert.True(t, found, "every event with a parent_id has a corresponding parent event sharing root_id")
	}
}

// Property 9: Isolation — a function that mutates its parameter in place
// leaves the caller's stored copy untouched.
func TestProperty9Isolation(t *testing.T) {
	store, _, registry := newSystem(t)
	require.NoError(t, registry.Register("mutate", mutateInPlace, callable.RegisterOptions{}))

	a := record.NewRecord("Person", map[string]any{"name": "Alice", "age": 30})
	require.NoError(t, store.RegisterRoot(a))

	_, err := registry.Execute(context.Background(), "mutate", map[string]any{"p": a})
	require.NoError(t, err)

	stored, err := store.GetRecord(a.VersionID)
	require.NoError(t, err)
	assert.Equal(t, 30, stored.Payload["age"], "caller's stored record must be unaffected by the callee's in-place mutation")
}

// Property 10: Idempotent re-version.
func TestProperty10IdempotentReversion(t *testing.T) {
	store, _, _ := newSystem(t)
	a := record.NewRecord("Person", map[string]any{"name": "Alice", "age": 30})
	require.NoError(t, store.RegisterRoot(a))

	before := a.VersionID
	changed, err := store.Version(a, false)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, before, a.VersionID)
}
