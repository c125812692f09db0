package callable

import (
	"reflect"
	"strings"

	"github.com/google/uuid"

	"github.com/furlat/Abstractions-sub003/pkg/address"
	"github.com/furlat/Abstractions-sub003/pkg/errs"
	"github.com/furlat/Abstractions-sub003/pkg/record"
)

// Strategy is the execution-strategy classification of §4.6.
type Strategy int

const (
	StrategyNoInputs Strategy = iota
	StrategySingleRecordDirect
	StrategySingleRecordWithConfig
	StrategyMultiRecordComposite
	StrategyPureBorrowing
	StrategyPrimitivesOnly
	StrategyMixed
)

func (s Strategy) String() string {
	switch s {
	case StrategyNoInputs:
		return "no_inputs"
	case StrategySingleRecordDirect:
		return "single_record_direct"
	case StrategySingleRecordWithConfig:
		return "single_record_with_config"
	case StrategyMultiRecordComposite:
		return "multi_record_composite"
	case StrategyPureBorrowing:
		return "pure_borrowing"
	case StrategyPrimitivesOnly:
		return "primitives_only"
	case StrategyMixed:
		return "mixed"
	default:
		return "unknown"
	}
}

// Store is the subset of entitystore.Store that input preparation needs.
// Declared here (rather than imported from entitystore) to keep C6 below
// C3 in the dependency graph, matching spec.md's control-flow diagram.
type Store interface {
	RegisterRoot(root *record.Record) error
	GetRecord(versionID uuid.UUID) (*record.Record, error)
}

// Prepared is the result of C6 input preparation: a populated kwargs
// struct ready to pass to reflect.Value.Call, the composed input record
// that was registered to represent this invocation's inputs, and the
// object-identity map C7 uses for mutation detection.
type Prepared struct {
	Strategy        Strategy
	KwargsValue     reflect.Value // addressable struct value of Metadata.KwargsType
	InputRecord     *record.Record
	IdentityMap     map[uuid.UUID]*record.Record // new instance_id -> caller's original record
	InputVersionIDs []uuid.UUID
	ConfigVersionID *uuid.UUID
}

// chooseStrategy implements §4.6 step 2.
func chooseStrategy(meta *Metadata, pattern address.Pattern) Strategy {
	if len(meta.Parameters) == 0 {
		return StrategyNoInputs
	}

	var entityCount, configCount int
	for _, p := range meta.Parameters {
		switch p.Kind {
		case ParamEntity:
			entityCount++
		case ParamConfig:
			configCount++
		}
	}

	switch pattern {
	case address.PatternBorrowing:
		return StrategyPureBorrowing
	case address.PatternMixed:
		return StrategyMixed
	case address.PatternPurePrimitives:
		return StrategyPrimitivesOnly
	}

	if entityCount == 1 && configCount > 0 {
		return StrategySingleRecordWithConfig
	}
	if entityCount == 1 {
		return StrategySingleRecordDirect
	}
	if entityCount > 1 {
		return StrategyMultiRecordComposite
	}
	return StrategyPrimitivesOnly
}

// Prepare implements §4.6 steps 1–4.
func Prepare(meta *Metadata, kwargs map[string]any, resolver *address.Resolver, store Store) (*Prepared, error) {
	classification := address.ClassifyKwargs(kwargs)
	strategy := chooseStrategy(meta, classification.Pattern)

	kwargsPtr := reflect.New(meta.KwargsType)
	kwargsVal := kwargsPtr.Elem()

	identityMap := map[uuid.UUID]*record.Record{}
	attributeSource := map[string]uuid.UUID{}
	payload := map[string]any{}
	var configPrimitives map[string]any
	var inputVersionIDs []uuid.UUID
	var configVersionID *uuid.UUID

	for _, p := range meta.Parameters {
		raw, present := lookupKwarg(kwargs, p.Name)

		switch p.Kind {
		case ParamEntity:
			if !present {
				return nil, errs.ErrTypeMismatch.WithMessage("missing required entity argument " + p.Name)
			}
			var src *record.Record
			switch v := raw.(type) {
			case *record.Record:
				src = v
			case string:
				resolved, err := resolver.Resolve(v)
				if err != nil {
					return nil, err
				}
				rec, ok := resolved.(*record.Record)
				if !ok {
					return nil, errs.ErrTypeMismatch.WithMessage("address for entity argument " + p.Name + " did not resolve to a record")
				}
				src = rec
				attributeSource[p.Name] = rec.VersionID
			default:
				return nil, errs.ErrTypeMismatch.WithMessage("argument " + p.Name + " must be a record or address")
			}

			isolated := src.FreshCopy()
			identityMap[isolated.InstanceID] = src
			payload[p.Name] = isolated
			inputVersionIDs = append(inputVersionIDs, isolated.VersionID)
			if _, ok := attributeSource[p.Name]; !ok {
				attributeSource[p.Name] = src.VersionID
			}
			setField(kwargsVal, p, reflect.ValueOf(isolated))

		case ParamConfig:
			if configPrimitives == nil {
				configPrimitives = collectPrimitives(meta, kwargs)
			}
			cfg := record.NewConfigRecord(configPrimitives)
			if err := store.RegisterRoot(&cfg.Record); err != nil {
				return nil, err
			}
			configVersionID = &cfg.VersionID
			payload[p.Name] = &cfg.Record
			setField(kwargsVal, p, reflect.ValueOf(cfg))

		case ParamPrimitive:
			if !present {
				continue
			}
			value := raw
			if s, ok := raw.(string); ok && address.IsAddress(s) {
				resolved, err := resolver.Resolve(s)
				if err != nil {
					return nil, err
				}
				value = resolved
				if a, err2 := address.Parse(s); err2 == nil {
					attributeSource[p.Name] = a.VersionID
				}
			}
			payload[p.Name] = value
			setField(kwargsVal, p, reflect.ValueOf(value))
		}
	}

	inputRecord := record.NewRecord(meta.KwargsType.Name(), payload)
	inputRecord.AttributeSource = attributeSource
	if err := store.RegisterRoot(inputRecord); err != nil {
		return nil, err
	}

	return &Prepared{
		Strategy: strategy, KwargsValue: kwargsVal,
		InputRecord: inputRecord, IdentityMap: identityMap,
		InputVersionIDs: inputVersionIDs, ConfigVersionID: configVersionID,
	}, nil
}

func collectPrimitives(meta *Metadata, kwargs map[string]any) map[string]any {
	out := map[string]any{}
	for _, p := range meta.Parameters {
		if p.Kind != ParamPrimitive {
			continue
		}
		if v, ok := lookupKwarg(kwargs, p.Name); ok {
			out[p.Name] = v
		}
	}
	return out
}

// lookupKwarg matches a Go-exported field name (e.g. "Name") against
// caller-supplied kwargs keys, which by convention (and in every spec.md
// scenario) are lower-cased identifiers (e.g. "name"). Tries an exact
// match first so callers may also pass already-exported-style keys.
func lookupKwarg(kwargs map[string]any, fieldName string) (any, bool) {
	if v, ok := kwargs[fieldName]; ok {
		return v, true
	}
	lower := strings.ToLower(fieldName[:1]) + fieldName[1:]
	if v, ok := kwargs[lower]; ok {
		return v, true
	}
	for k, v := range kwargs {
		if strings.EqualFold(k, fieldName) {
			return v, true
		}
	}
	return nil, false
}

func setField(structVal reflect.Value, p ParameterDescriptor, value reflect.Value) {
	field := structVal.Field(p.Index)
	if value.Type().AssignableTo(field.Type()) {
		field.Set(value)
		return
	}
	if value.Type().ConvertibleTo(field.Type()) {
		field.Set(value.Convert(field.Type()))
	}
}
