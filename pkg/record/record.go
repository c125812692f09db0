// Package record implements C1: the immutable typed Record model — identity
// quintet, lineage chain and provenance fields described in spec.md §3.1,
// plus the total operations of §4.1 (new_record, update_identifiers,
// fresh_copy).
//
// Grounded in the teacher's domain/graph.GraphObject (canonical_id /
// supersedes_id / version versioning triplet) generalized from a Postgres
// row into an in-memory, typed payload value with a richer provenance
// envelope than the teacher needed, per spec.md §3.1.
package record

import (
	"crypto/sha256"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Identity carries every field spec.md §3.1 requires in addition to the
// domain payload.
type Identity struct {
	VersionID         uuid.UUID
	InstanceID        uuid.UUID
	LineageID         uuid.UUID
	RootVersionID     *uuid.UUID
	RootInstanceID    *uuid.UUID
	PreviousVersionID *uuid.UUID
	PriorVersionIDs   []uuid.UUID

	CreatedAt time.Time
	ForkedAt  *time.Time

	// AttributeSource maps each payload field name to the version_id of
	// the record (or function-execution record, itself a version_id known
	// to the store) that produced the field's current value.
	AttributeSource map[string]uuid.UUID

	DerivedFromFunction    *string
	DerivedFromExecutionID *uuid.UUID

	SiblingOutputVersionIDs []uuid.UUID
	OutputIndex             *int
}

// Record is an immutable typed value. Payload is a structurally-typed
// field bag: values are primitives, nested *Record, []*Record, or
// map[string]*Record — see pkg/recordgraph for how these are traversed and
// classified into containment edges.
type Record struct {
	Identity
	TypeName string
	Payload  map[string]any
}

// IsRoot reports whether this record is, in its own view, a graph root.
func (r *Record) IsRoot() bool {
	return r.RootVersionID != nil && *r.RootVersionID == r.VersionID
}

// NewRecord allocates a fresh record: new version/instance/lineage ids,
// empty lineage and provenance. Total function — no failure modes.
func NewRecord(typeName string, payload map[string]any) *Record {
	now := time.Now().UTC()
	if payload == nil {
		payload = map[string]any{}
	}
	return &Record{
		Identity: Identity{
			VersionID:       uuid.New(),
			InstanceID:      uuid.New(),
			LineageID:       uuid.New(),
			PriorVersionIDs: nil,
			CreatedAt:       now,
			AttributeSource: map[string]uuid.UUID{},
		},
		TypeName: typeName,
		Payload:  payload,
	}
}

// UpdateIdentifiers rotates VersionID: the old id is moved to
// PreviousVersionID and appended to PriorVersionIDs; ForkedAt is stamped.
// If newRootVersionID is non-nil, RootVersionID is overwritten. entitystore
// R2 passes nil and sets RootVersionID on every node itself.
func (r *Record) UpdateIdentifiers(newRootVersionID *uuid.UUID) {
	old := r.VersionID
	r.PriorVersionIDs = append(r.PriorVersionIDs, old)
	r.PreviousVersionID = &old
	r.VersionID = uuid.New()
	now := time.Now().UTC()
	r.ForkedAt = &now
	if newRootVersionID != nil {
		r.RootVersionID = newRootVersionID
	}
}

// FreshCopy returns a deep copy with a new InstanceID; every other
// identifier is preserved verbatim. This is the store's copy-on-read
// contract (§3.3 Lifecycle, §9 "Copy-on-read").
func (r *Record) FreshCopy() *Record {
	cp := *r
	cp.InstanceID = uuid.New()
	cp.Payload = deepCopyPayload(r.Payload)
	cp.PriorVersionIDs = append([]uuid.UUID(nil), r.PriorVersionIDs...)
	cp.AttributeSource = make(map[string]uuid.UUID, len(r.AttributeSource))
	for k, v := range r.AttributeSource {
		cp.AttributeSource[k] = v
	}
	cp.SiblingOutputVersionIDs = append([]uuid.UUID(nil), r.SiblingOutputVersionIDs...)
	return &cp
}

func deepCopyPayload(p map[string]any) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case *Record:
		return t.FreshCopy()
	case []*Record:
		out := make([]*Record, len(t))
		for i, e := range t {
			out[i] = e.FreshCopy()
		}
		return out
	case List:
		out := make(List, len(t))
		for i, e := range t {
			out[i] = e.FreshCopy()
		}
		return out
	case Tuple:
		out := make(Tuple, len(t))
		for i, e := range t {
			out[i] = e.FreshCopy()
		}
		return out
	case Set:
		out := make(Set, len(t))
		for i, e := range t {
			out[i] = e.FreshCopy()
		}
		return out
	case map[string]*Record:
		out := make(map[string]*Record, len(t))
		for k, e := range t {
			out[k] = e.FreshCopy()
		}
		return out
	case Dict:
		out := make(Dict, len(t))
		for k, e := range t {
			out[k] = e.FreshCopy()
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	case map[string]any:
		return deepCopyPayload(t)
	default:
		return v
	}
}

// MarkAsRoot sets this record as the root of its own graph (root_version_id
// == version_id). Used by EntityStore.RegisterRoot (R1) before indexing.
func (r *Record) MarkAsRoot() {
	v := r.VersionID
	r.RootVersionID = &v
	i := r.InstanceID
	r.RootInstanceID = &i
}

// BorrowFieldFrom copies src's field srcField into this record's selfField,
// recording provenance in AttributeSource (§6 "borrow_field_from").
func (r *Record) BorrowFieldFrom(src *Record, srcField, selfField string) {
	if r.Payload == nil {
		r.Payload = map[string]any{}
	}
	r.Payload[selfField] = deepCopyValue(src.Payload[srcField])
	if r.AttributeSource == nil {
		r.AttributeSource = map[string]uuid.UUID{}
	}
	r.AttributeSource[selfField] = src.VersionID
}

// ContentHash is a deterministic digest of the payload (field order does
// not affect the result), used by the differ (C2) as a cheap pre-check
// before a full field comparison. Grounded on the teacher's
// computeContentHash (domain/graph/repository.go).
func (r *Record) ContentHash() [32]byte {
	return hashPayload(r.Payload)
}

func hashPayload(payload map[string]any) [32]byte {
	if payload == nil {
		payload = map[string]any{}
	}
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sorted := make(map[string]any, len(payload))
	for _, k := range keys {
		sorted[k] = flattenForHash(payload[k])
	}
	data, _ := json.Marshal(sorted)
	return sha256.Sum256(data)
}

// flattenForHash reduces nested *Record values to their version_id so the
// hash reflects structural identity of children without recursing into
// full payloads (that is the differ's job, not the hash's).
func flattenForHash(v any) any {
	switch t := v.(type) {
	case *Record:
		if t == nil {
			return nil
		}
		return t.VersionID.String()
	case []*Record:
		return versionStrings(t)
	case List:
		return versionStrings([]*Record(t))
	case Tuple:
		return versionStrings([]*Record(t))
	case Set:
		return versionStrings([]*Record(t))
	case map[string]*Record:
		return versionMap(t)
	case Dict:
		return versionMap(map[string]*Record(t))
	default:
		return v
	}
}

func versionStrings(rs []*Record) []string {
	out := make([]string, len(rs))
	for i, e := range rs {
		out[i] = e.VersionID.String()
	}
	return out
}

func versionMap(rs map[string]*Record) map[string]string {
	out := make(map[string]string, len(rs))
	for k, e := range rs {
		out[k] = e.VersionID.String()
	}
	return out
}
