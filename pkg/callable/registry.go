package callable

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/furlat/Abstractions-sub003/pkg/address"
	"github.com/furlat/Abstractions-sub003/pkg/errs"
	"github.com/furlat/Abstractions-sub003/pkg/record"
)

// Registry is C8: the process-wide table of registered functions,
// orchestrating C5 (Analyse) at registration time and C6/C7 (Prepare /
// Unpack) at invocation time.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]*Metadata
	store    VersioningStore
	resolver *address.Resolver
}

// NewRegistry wires a Registry to the store it registers inputs/outputs
// into and the resolver it uses to dereference borrowed addresses.
func NewRegistry(store VersioningStore, resolver *address.Resolver) *Registry {
	return &Registry{entries: map[string]*Metadata{}, store: store, resolver: resolver}
}

// Register implements §4.8 register.
func (r *Registry) Register(name string, fn any, opts RegisterOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return errs.ErrDuplicateName.WithDetails(map[string]any{"name": name})
	}
	meta, err := Analyse(name, fn, opts)
	if err != nil {
		return err
	}
	r.entries[name] = meta
	return nil
}

// List implements §4.8 list.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for name := range r.entries {
		out = append(out, name)
	}
	return out
}

// Metadata implements §4.8 metadata.
func (r *Registry) Metadata(name string) (*Metadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok := r.entries[name]
	if !ok {
		return nil, errs.ErrUnknownFunction.WithDetails(map[string]any{"name": name})
	}
	return meta, nil
}

// Execute implements §4.8 execute: the synchronous entry point, also the
// body shared with ExecuteAsync per §4.8 "Execution procedure (shared by
// sync and async)".
func (r *Registry) Execute(ctx context.Context, name string, kwargs map[string]any) ([]*record.Record, error) {
	r.mu.RLock()
	meta, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errs.ErrUnknownFunction.WithDetails(map[string]any{"name": name})
	}

	prepared, err := Prepare(meta, kwargs, r.resolver, r.store)
	if err != nil {
		return nil, err
	}

	startedAt := time.Now().UTC()
	exec := NewExecutionRecord(name, prepared.InputVersionIDs, prepared.ConfigVersionID, prepared.Strategy.String(), startedAt)

	args := make([]reflect.Value, 0, 2)
	if meta.Async {
		args = append(args, reflect.ValueOf(ctx))
	}
	args = append(args, prepared.KwargsValue)

	results := meta.Fn.Call(args)
	returnValue, errValue := results[0], results[1]

	if !errValue.IsNil() {
		funcErr, _ := errValue.Interface().(error)
		exec.Complete(nil, "failure", funcErr.Error(), time.Now().UTC())
		_ = r.store.RegisterRoot(&exec.Record)
		return nil, errs.ErrFunctionFailed.WithInternal(funcErr)
	}

	outputs, err := Unpack(meta, returnValue, prepared, exec, r.store)
	if err != nil {
		exec.Complete(nil, "failure", err.Error(), time.Now().UTC())
		_ = r.store.RegisterRoot(&exec.Record)
		return nil, err
	}

	outputIDs := make([]uuid.UUID, len(outputs))
	for i, o := range outputs {
		outputIDs[i] = o.VersionID
	}
	exec.Complete(outputIDs, "success", "", time.Now().UTC())
	if err := r.store.RegisterRoot(&exec.Record); err != nil {
		return nil, err
	}

	return outputs, nil
}

// Future is the handle returned by ExecuteAsync: a goroutine-backed
// result cell, the idiomatic Go analogue of an awaitable (§4.8
// execute_async; spec.md §9 notes the target language's native async
// primitive replaces the source's coroutine scheduler).
type Future struct {
	done   chan struct{}
	result []*record.Record
	err    error
}

// Wait blocks until the invocation completes, or ctx is cancelled first.
func (f *Future) Wait(ctx context.Context) ([]*record.Record, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ExecuteAsync implements §4.8 execute_async.
func (r *Registry) ExecuteAsync(ctx context.Context, name string, kwargs map[string]any) *Future {
	fut := &Future{done: make(chan struct{})}
	go func() {
		defer close(fut.done)
		fut.result, fut.err = r.Execute(ctx, name, kwargs)
	}()
	return fut
}
