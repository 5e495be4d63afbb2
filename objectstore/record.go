package objectstore

import (
	"encoding/json"
	"fmt"

	"github.com/guyvdb/objectengine/classreg"
	"github.com/guyvdb/objectengine/typesys"
)

// Record is the serialized object record laid out on the backend: a
// class tag, the OID, validated-and-serialized properties, relation
// stubs, and per-attribute update timestamps.
type Record struct {
	Type       string         `json:"type"`
	OID        string         `json:"oid"`
	Properties map[string]any `json:"properties"`
	Relations  map[string]any `json:"relations"`
	Updates    map[string]int64 `json:"updates"`
}

func encodeRecord(r *Record) ([]byte, error) {
	return json.Marshal(r)
}

func decodeRecord(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func serializeProperties(desc *classreg.Descriptor, props map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(props))
	for name, v := range props {
		t, ok := desc.Properties[name]
		if !ok {
			continue
		}
		sv, err := t.Serialize(v)
		if err != nil {
			return nil, fmt.Errorf("serialize %s.%s: %w", desc.Name, name, err)
		}
		out[name] = sv
	}
	return out, nil
}

func serializeRelations(desc *classreg.Descriptor, rels map[string][]typesys.Ref) map[string]any {
	out := make(map[string]any, len(rels))
	for name, refs := range rels {
		rel, ok := desc.Relations[name]
		if !ok {
			continue
		}
		if rel.Plural {
			list := make([]any, len(refs))
			for i, r := range refs {
				list[i] = map[string]any{"type": r.Class, "oid": r.OID}
			}
			out[name] = list
		} else if len(refs) > 0 {
			out[name] = map[string]any{"type": refs[0].Class, "oid": refs[0].OID}
		} else {
			out[name] = nil
		}
	}
	return out
}

func deserializeRelationValue(raw any, plural bool) ([]typesys.Ref, error) {
	if raw == nil {
		return nil, nil
	}
	toRef := func(v any) (typesys.Ref, bool) {
		m, ok := v.(map[string]any)
		if !ok {
			return typesys.Ref{}, false
		}
		class, _ := m["type"].(string)
		oidv, _ := m["oid"].(string)
		if class == "" || oidv == "" {
			return typesys.Ref{}, false
		}
		return typesys.Ref{Class: class, OID: oidv}, true
	}
	if plural {
		items, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("expected a list of relation stubs, got %T", raw)
		}
		out := make([]typesys.Ref, 0, len(items))
		for _, item := range items {
			ref, ok := toRef(item)
			if !ok {
				return nil, fmt.Errorf("malformed relation stub %v", item)
			}
			out = append(out, ref)
		}
		return out, nil
	}
	ref, ok := toRef(raw)
	if !ok {
		return nil, fmt.Errorf("malformed relation stub %v", raw)
	}
	return []typesys.Ref{ref}, nil
}
