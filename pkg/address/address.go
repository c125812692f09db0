// Package address implements C4: the `@uuid[.path]` address grammar,
// resolution against the entity store, and kwargs classification for the
// callable registry (spec.md §4.4).
package address

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/furlat/Abstractions-sub003/pkg/errs"
	"github.com/furlat/Abstractions-sub003/pkg/record"
)

// Address is a parsed "@uuid[.path]" reference: the version_id of the
// target record plus an ordered list of navigation steps.
type Address struct {
	VersionID uuid.UUID
	Path      []string
}

// IsAddress reports whether s syntactically matches the address grammar,
// without validating that the referenced record exists.
func IsAddress(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// Parse implements the grammar '@' UUID ('.' FIELD)*. FIELD is either an
// identifier or a bare non-negative integer (list index); spec.md §4.4
// permits limiting support to dot-separated identifiers and integer
// indices.
func Parse(s string) (Address, error) {
	if !strings.HasPrefix(s, "@") {
		return Address{}, errs.ErrMalformedAddress.WithDetails(map[string]any{"address": s})
	}
	rest := s[1:]

	var uuidPart, pathPart string
	if idx := strings.Index(rest, "."); idx >= 0 {
		uuidPart, pathPart = rest[:idx], rest[idx+1:]
	} else {
		uuidPart = rest
	}

	id, err := uuid.Parse(uuidPart)
	if err != nil {
		return Address{}, errs.ErrMalformedAddress.WithDetails(map[string]any{"address": s}).WithInternal(err)
	}

	var path []string
	if pathPart != "" {
		path = strings.Split(pathPart, ".")
		for _, step := range path {
			if step == "" {
				return Address{}, errs.ErrMalformedAddress.WithDetails(map[string]any{"address": s})
			}
		}
	}

	return Address{VersionID: id, Path: path}, nil
}

// Format renders an Address back into its canonical string form; round
// trips with Parse (spec.md §8 property 5).
func Format(a Address) string {
	var b strings.Builder
	b.WriteString("@")
	b.WriteString(a.VersionID.String())
	for _, step := range a.Path {
		b.WriteString(".")
		b.WriteString(step)
	}
	return b.String()
}

// Resolver resolves addresses against a record store.
type Resolver struct {
	getRecord func(uuid.UUID) (*record.Record, error)
}

// NewResolver wires a Resolver to the store's R4 retrieval function. Taking
// a function rather than a concrete *entitystore.Store keeps this package
// free of a dependency on entitystore, matching the layering in spec.md's
// component table (C4 sits below C3 in the control-flow diagram but must
// not import it to avoid a cycle with C3's own use of C4-free retrieval).
func NewResolver(getRecord func(uuid.UUID) (*record.Record, error)) *Resolver {
	return &Resolver{getRecord: getRecord}
}

// Resolve walks an address to its target value: the record itself for an
// empty path, or the value reached by stepping through Payload fields,
// list indices, and map keys.
func (r *Resolver) Resolve(addr string) (any, error) {
	a, err := Parse(addr)
	if err != nil {
		return nil, err
	}

	rec, err := r.getRecord(a.VersionID)
	if err != nil {
		return nil, err
	}
	if len(a.Path) == 0 {
		return rec, nil
	}

	var cur any = rec
	for _, step := range a.Path {
		next, err := walkStep(cur, step)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

func walkStep(cur any, step string) (any, error) {
	switch v := cur.(type) {
	case *record.Record:
		val, ok := v.Payload[step]
		if !ok {
			return nil, errs.ErrPathError.WithDetails(map[string]any{"field": step})
		}
		return val, nil
	case map[string]*record.Record:
		val, ok := v[step]
		if !ok {
			return nil, errs.ErrPathError.WithDetails(map[string]any{"key": step})
		}
		return val, nil
	case record.Dict:
		val, ok := v[step]
		if !ok {
			return nil, errs.ErrPathError.WithDetails(map[string]any{"key": step})
		}
		return val, nil
	}

	if idx, err := strconv.Atoi(step); err == nil {
		rv := reflect.ValueOf(cur)
		if rv.Kind() == reflect.Slice {
			if idx < 0 || idx >= rv.Len() {
				return nil, errs.ErrPathError.WithDetails(map[string]any{"index": idx})
			}
			return rv.Index(idx).Interface(), nil
		}
	}

	// Fall back to a generic map[string]any field lookup.
	if m, ok := cur.(map[string]any); ok {
		val, ok := m[step]
		if !ok {
			return nil, errs.ErrPathError.WithDetails(map[string]any{"field": step})
		}
		return val, nil
	}

	return nil, errs.ErrPathError.WithDetails(map[string]any{"field": step})
}

// KwargKind classifies one call argument (spec.md §4.4 classify_kwargs).
type KwargKind int

const (
	KwargDirectRecord KwargKind = iota
	KwargAddress
	KwargPrimitive
)

// Pattern is the overall shape of a call's kwargs.
type Pattern int

const (
	PatternPureRecords Pattern = iota
	PatternPurePrimitives
	PatternBorrowing
	PatternComposite
	PatternMixed
)

func (p Pattern) String() string {
	switch p {
	case PatternPureRecords:
		return "pure_records"
	case PatternPurePrimitives:
		return "pure_primitives"
	case PatternBorrowing:
		return "borrowing"
	case PatternComposite:
		return "composite"
	case PatternMixed:
		return "mixed"
	default:
		return "unknown"
	}
}

// Classification is the per-argument kind plus the overall pattern.
type Classification struct {
	Kinds   map[string]KwargKind
	Pattern Pattern
}

// ClassifyKwargs implements §4.4 classify_kwargs.
func ClassifyKwargs(kwargs map[string]any) Classification {
	kinds := make(map[string]KwargKind, len(kwargs))
	var records, addresses, primitives int

	for name, v := range kwargs {
		switch val := v.(type) {
		case *record.Record:
			kinds[name] = KwargDirectRecord
			records++
		case string:
			if IsAddress(val) {
				kinds[name] = KwargAddress
				addresses++
			} else {
				kinds[name] = KwargPrimitive
				primitives++
			}
		default:
			kinds[name] = KwargPrimitive
			primitives++
		}
	}

	var pattern Pattern
	switch {
	case addresses > 0 && records > 0:
		pattern = PatternMixed
	case addresses > 0:
		pattern = PatternBorrowing
	case records > 0 && primitives > 0:
		pattern = PatternComposite
	case records > 0:
		pattern = PatternPureRecords
	default:
		pattern = PatternPurePrimitives
	}

	return Classification{Kinds: kinds, Pattern: pattern}
}
