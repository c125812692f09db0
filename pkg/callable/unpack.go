package callable

import (
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/furlat/Abstractions-sub003/pkg/errs"
	"github.com/furlat/Abstractions-sub003/pkg/record"
)

// Semantic is the closed classification of §4.7 step 1.
type Semantic int

const (
	SemanticCreation Semantic = iota
	SemanticMutation
	SemanticDetachment
)

func (s Semantic) String() string {
	switch s {
	case SemanticMutation:
		return "mutation"
	case SemanticDetachment:
		return "detachment"
	default:
		return "creation"
	}
}

// Confidence grades how an output's Semantic was decided.
type Confidence int

const (
	ConfidenceHigh Confidence = iota
	ConfidenceMedium
)

// ExecutionRecord is the Function Execution Record of spec.md §3.4.
type ExecutionRecord struct {
	record.Record
}

// NewExecutionRecord allocates (but does not yet register) an execution
// record for one invocation.
func NewExecutionRecord(functionName string, inputVersionIDs []uuid.UUID, configVersionID *uuid.UUID, strategy string, startedAt time.Time) *ExecutionRecord {
	payload := map[string]any{
		"function_name":      functionName,
		"input_version_ids":  inputVersionIDs,
		"strategy":           strategy,
		"started_at":         startedAt,
	}
	if configVersionID != nil {
		payload["config_version_id"] = *configVersionID
	}
	return &ExecutionRecord{Record: *record.NewRecord("FunctionExecution", payload)}
}

// Complete stamps the outcome fields once the invocation has finished.
func (e *ExecutionRecord) Complete(outputVersionIDs []uuid.UUID, outcome, errorSummary string, endedAt time.Time) {
	e.Payload["output_version_ids"] = outputVersionIDs
	e.Payload["outcome"] = outcome
	e.Payload["ended_at"] = endedAt
	if errorSummary != "" {
		e.Payload["error_summary"] = errorSummary
	}
}

// VersioningStore is the subset of entitystore.Store that output unpacking
// needs beyond Store (Prepare only needed RegisterRoot/GetRecord).
type VersioningStore interface {
	Store
	Version(root *record.Record, force bool) (bool, error)
}

// originalInput captures one isolated-entity parameter's pre-call identity.
// ClassifySemantic does not use it; it reads the identity map directly.
type originalInput struct {
	rec *record.Record
}

// ClassifySemantic implements §4.7 step 1 for a single output record.
func ClassifySemantic(out *record.Record, identityMap map[uuid.UUID]*record.Record) (Semantic, Confidence) {
	if _, ok := identityMap[out.InstanceID]; ok {
		return SemanticMutation, ConfidenceHigh
	}
	for _, orig := range identityMap {
		for _, prior := range orig.PriorVersionIDs {
			if prior == out.VersionID {
				return SemanticDetachment, ConfidenceMedium
			}
		}
		if orig.PreviousVersionID != nil && *orig.PreviousVersionID == out.VersionID {
			return SemanticDetachment, ConfidenceMedium
		}
	}
	return SemanticCreation, ConfidenceHigh
}

// Unpack implements §4.7 steps 2–3: classify, unpack by return pattern,
// stamp provenance, and register (or version, for mutations) every
// resulting record. Returns the ordered list of output records.
func Unpack(meta *Metadata, returnValue reflect.Value, prepared *Prepared, exec *ExecutionRecord, store VersioningStore) ([]*record.Record, error) {
	switch meta.ReturnPattern {
	case ReturnSingleRecord:
		rec, ok := returnValue.Interface().(*record.Record)
		if !ok {
			return nil, errs.ErrTypeMismatch.WithMessage("expected single_record return")
		}
		if err := finalizeOutput(rec, nil, 0, nil, meta.Name, exec, prepared.IdentityMap, store); err != nil {
			return nil, err
		}
		return []*record.Record{rec}, nil

	case ReturnTupleRecords:
		recs, ok := returnValue.Interface().([]*record.Record)
		if !ok {
			return nil, errs.ErrTypeMismatch.WithMessage("expected tuple_records return")
		}
		siblings := make([]uuid.UUID, len(recs))
		for i, r := range recs {
			siblings[i] = r.VersionID
		}
		for i, r := range recs {
			idx := i
			others := siblingsExcept(siblings, i)
			if err := finalizeOutput(r, others, idx, &idx, meta.Name, exec, prepared.IdentityMap, store); err != nil {
				return nil, err
			}
		}
		return recs, nil

	case ReturnListRecords:
		if meta.SupportsUnpacking {
			recs, ok := returnValue.Interface().([]*record.Record)
			if !ok {
				return nil, errs.ErrTypeMismatch.WithMessage("expected list_records return")
			}
			siblings := make([]uuid.UUID, len(recs))
			for i, r := range recs {
				siblings[i] = r.VersionID
			}
			for i, r := range recs {
				idx := i
				if err := finalizeOutput(r, siblingsExcept(siblings, i), idx, &idx, meta.Name, exec, prepared.IdentityMap, store); err != nil {
					return nil, err
				}
			}
			return recs, nil
		}
		return wrapContainer(meta, returnValue, exec, store)

	case ReturnDictRecords, ReturnNested:
		if meta.SupportsUnpacking && meta.ReturnPattern == ReturnDictRecords {
			m, ok := returnValue.Interface().(map[string]*record.Record)
			if !ok {
				return nil, errs.ErrTypeMismatch.WithMessage("expected dict_records return")
			}
			keys := make([]string, 0, len(m))
			for k := range m {
				keys = append(keys, k)
			}
			siblings := make([]uuid.UUID, 0, len(m))
			order := make([]*record.Record, 0, len(m))
			for _, k := range keys {
				siblings = append(siblings, m[k].VersionID)
				order = append(order, m[k])
			}
			for i, r := range order {
				idx := i
				if err := finalizeOutput(r, siblingsExcept(siblings, i), idx, &idx, meta.Name, exec, prepared.IdentityMap, store); err != nil {
					return nil, err
				}
			}
			return order, nil
		}
		return wrapContainer(meta, returnValue, exec, store)

	default: // ReturnPrimitive
		container := record.NewRecord(meta.Name+"Output", map[string]any{"value": returnValue.Interface()})
		if err := finalizeOutput(container, nil, 0, nil, meta.Name, exec, prepared.IdentityMap, store); err != nil {
			return nil, err
		}
		return []*record.Record{container}, nil
	}
}

func wrapContainer(meta *Metadata, returnValue reflect.Value, exec *ExecutionRecord, store VersioningStore) ([]*record.Record, error) {
	container := record.NewRecord(meta.Name+"Output", map[string]any{"value": returnValue.Interface()})
	if err := finalizeOutput(container, nil, 0, nil, meta.Name, exec, nil, store); err != nil {
		return nil, err
	}
	return []*record.Record{container}, nil
}

func siblingsExcept(all []uuid.UUID, skip int) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(all)-1)
	for i, id := range all {
		if i != skip {
			out = append(out, id)
		}
	}
	return out
}

// finalizeOutput stamps provenance (§3.4/§4.7 step 3) and registers or
// versions the record depending on its semantic classification.
func finalizeOutput(rec *record.Record, siblings []uuid.UUID, outputIndex int, outputIndexPtr *int, fnName string, exec *ExecutionRecord, identityMap map[uuid.UUID]*record.Record, store VersioningStore) error {
	semantic, _ := ClassifySemantic(rec, identityMap)

	rec.DerivedFromFunction = &fnName
	execID := exec.VersionID
	rec.DerivedFromExecutionID = &execID
	if rec.AttributeSource == nil {
		rec.AttributeSource = map[string]uuid.UUID{}
	}
	for field := range rec.Payload {
		rec.AttributeSource[field] = execID
	}
	if siblings != nil {
		rec.SiblingOutputVersionIDs = siblings
		rec.OutputIndex = outputIndexPtr
	}

	if semantic == SemanticMutation {
		_, err := store.Version(rec, true)
		return err
	}
	return store.RegisterRoot(rec)
}
