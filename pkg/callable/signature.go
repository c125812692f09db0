// Package callable implements C5–C8: signature analysis, input
// preparation, output semantic analysis/unpacking, and the registry that
// orchestrates them (spec.md §4.5–§4.8).
//
// Dynamic record classes (spec.md §9) are replaced with reflection over a
// declared Go struct: a registered function's sole kwargs parameter is a
// struct whose exported fields are the parameter descriptors, and whose
// type itself serves as the "input record class". This mirrors the
// teacher's preference for typed, reflection-driven metadata (domain/
// typeregistry.ProjectObjectTypeRegistry synthesising a JSON Schema once at
// registration) over runtime class generation.
package callable

import (
	"context"
	"reflect"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/furlat/Abstractions-sub003/pkg/errs"
	"github.com/furlat/Abstractions-sub003/pkg/record"
	"github.com/furlat/Abstractions-sub003/pkg/schema"
)

// ParamKind classifies one field of a registered function's kwargs struct.
type ParamKind int

const (
	ParamEntity ParamKind = iota
	ParamConfig
	ParamPrimitive
)

// ReturnPattern is the closed classification of a registered function's
// return shape (spec.md §4.5 step 3).
type ReturnPattern int

const (
	ReturnSingleRecord ReturnPattern = iota
	ReturnTupleRecords
	ReturnListRecords
	ReturnDictRecords
	ReturnNested
	ReturnPrimitive
)

func (p ReturnPattern) String() string {
	switch p {
	case ReturnSingleRecord:
		return "single_record"
	case ReturnTupleRecords:
		return "tuple_records"
	case ReturnListRecords:
		return "list_records"
	case ReturnDictRecords:
		return "dict_records"
	case ReturnNested:
		return "nested"
	case ReturnPrimitive:
		return "primitive"
	default:
		return "unknown"
	}
}

// ParameterDescriptor describes one field of the kwargs struct.
type ParameterDescriptor struct {
	Name  string
	Kind  ParamKind
	Type  reflect.Type
	Index int // field index within the kwargs struct
}

var (
	recordPtrType       = reflect.TypeOf((*record.Record)(nil))
	recordValType       = reflect.TypeOf(record.Record{})
	configRecordPtrType = reflect.TypeOf((*record.ConfigRecord)(nil))
	configRecordValType = reflect.TypeOf(record.ConfigRecord{})
	recordSliceType     = reflect.TypeOf([]*record.Record(nil))
	recordMapType       = reflect.TypeOf(map[string]*record.Record(nil))
	errorType           = reflect.TypeOf((*error)(nil)).Elem()
	ctxType             = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// Metadata is everything the registry caches about one registered function
// (spec.md §4.5 step 6).
type Metadata struct {
	Name    string
	Fn      reflect.Value
	FnType  reflect.Type
	Async   bool // true when the function's first parameter is context.Context

	KwargsType reflect.Type // struct type of the function's input parameter
	Parameters []ParameterDescriptor

	ReturnType        reflect.Type
	ReturnPattern     ReturnPattern
	SupportsUnpacking bool
	TupleArity        int // only meaningful when ReturnPattern == ReturnTupleRecords

	// InputSchema/OutputSchema expose the synthesized record classes as
	// JSON Schema (SPEC_FULL.md §4.14). Nil if reflection over the type
	// failed to produce a schema (e.g. a non-struct return type); schema
	// synthesis failures are non-fatal to registration.
	InputSchema  *jsonschema.Schema
	OutputSchema *jsonschema.Schema
}

// RegisterOptions controls the open-ended parts of signature analysis that
// Go's static type system cannot infer on its own.
type RegisterOptions struct {
	// ForceUnpack requests that list_records/dict_records returns be split
	// into sibling records instead of wrapped (spec.md §9 Open Questions:
	// wrap-by-default, unpack only on explicit opt-in). Nested returns are
	// not split: they are always wrapped in a single container record.
	ForceUnpack bool
	// TupleArity, when > 0, tells the analyser that a []*record.Record
	// return represents a fixed-arity tuple rather than a homogeneous list.
	// Go has no structural tuple type distinct from a slice, so this is the
	// Go-specific resolution for disambiguating list_records from
	// tuple_records (documented in DESIGN.md).
	TupleArity int
}

// Analyse performs C5: introspects fn's signature and produces its cached
// Metadata. fn must have the shape:
//
//	func([ctx context.Context,] kwargs SomeStruct) (ReturnType, error)
//
// kwargs must be a struct (not a pointer); its exported fields become the
// parameter descriptors.
func Analyse(name string, fn any, opts RegisterOptions) (*Metadata, error) {
	fnVal := reflect.ValueOf(fn)
	fnType := fnVal.Type()
	if fnType.Kind() != reflect.Func {
		return nil, errs.ErrTypeMismatch.WithMessage("registered value must be a function")
	}

	async := fnType.NumIn() > 0 && fnType.In(0).Implements(ctxType)
	kwargsIdx := 0
	if async {
		kwargsIdx = 1
	}
	if fnType.NumIn() != kwargsIdx+1 {
		return nil, errs.ErrTypeMismatch.WithMessage("registered function must take exactly one kwargs struct parameter (after an optional context.Context)")
	}
	kwargsType := fnType.In(kwargsIdx)
	if kwargsType.Kind() != reflect.Struct {
		return nil, errs.ErrTypeMismatch.WithMessage("kwargs parameter must be a struct")
	}

	if fnType.NumOut() != 2 || !fnType.Out(1).Implements(errorType) {
		return nil, errs.ErrTypeMismatch.WithMessage("registered function must return (value, error)")
	}
	returnType := fnType.Out(0)

	params := make([]ParameterDescriptor, 0, kwargsType.NumField())
	for i := 0; i < kwargsType.NumField(); i++ {
		f := kwargsType.Field(i)
		if !f.IsExported() {
			continue
		}
		params = append(params, ParameterDescriptor{
			Name:  f.Name,
			Kind:  classifyParam(f.Type),
			Type:  f.Type,
			Index: i,
		})
	}

	pattern := classifyReturn(returnType, opts.TupleArity)
	supportsUnpacking := pattern == ReturnTupleRecords ||
		(opts.ForceUnpack && (pattern == ReturnListRecords || pattern == ReturnDictRecords || pattern == ReturnNested))

	inputSchema, _ := schema.ForType(kwargsType)
	var outputSchema *jsonschema.Schema
	if returnType.Kind() == reflect.Struct || (returnType.Kind() == reflect.Ptr && returnType.Elem().Kind() == reflect.Struct) {
		outputSchema, _ = schema.ForType(returnType)
	}

	return &Metadata{
		Name: name, Fn: fnVal, FnType: fnType, Async: async,
		KwargsType: kwargsType, Parameters: params,
		ReturnType: returnType, ReturnPattern: pattern,
		SupportsUnpacking: supportsUnpacking, TupleArity: opts.TupleArity,
		InputSchema: inputSchema, OutputSchema: outputSchema,
	}, nil
}

func classifyParam(t reflect.Type) ParamKind {
	switch t {
	case recordPtrType, recordValType:
		return ParamEntity
	case configRecordPtrType, configRecordValType:
		return ParamConfig
	}
	return ParamPrimitive
}

func classifyReturn(t reflect.Type, tupleArity int) ReturnPattern {
	switch {
	case t == recordPtrType || t == recordValType:
		return ReturnSingleRecord
	case t == recordSliceType:
		if tupleArity > 0 {
			return ReturnTupleRecords
		}
		return ReturnListRecords
	case t == recordMapType:
		return ReturnDictRecords
	case isNestedRecordContainer(t):
		return ReturnNested
	default:
		return ReturnPrimitive
	}
}

// isNestedRecordContainer reports container-of-container shapes such as
// [][]*record.Record, []map[string]*record.Record, or
// map[string][]*record.Record — spec.md §4.5's "nested" return pattern.
func isNestedRecordContainer(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Slice:
		elem := t.Elem()
		return elem == recordSliceType || elem == recordMapType ||
			(elem.Kind() == reflect.Slice && elem.Elem() == recordPtrType) ||
			(elem.Kind() == reflect.Map && elem.Elem() == recordPtrType)
	case reflect.Map:
		elem := t.Elem()
		return elem == recordSliceType || elem == recordMapType
	}
	return false
}
