package objectstore

import (
	"sort"

	"github.com/guyvdb/objectengine/typesys"
)

// Export produces a primitive tree of obj at the requested depth:
//
//	0: {oid, type}
//	1: {oid, type, properties, relations as {oid,type} stubs}
//	2: relations replaced by their own depth-1 export, cycles broken by a
//	   visited-OID set — a relation target already visited degrades to its
//	   depth-0 stub rather than recursing again.
func Export(obj Storable, depth int) (map[string]any, error) {
	return exportVisited(obj, depth, map[string]string{})
}

func exportVisited(obj Storable, depth int, visited map[string]string) (map[string]any, error) {
	desc := obj.ClassDescriptor()
	out := map[string]any{
		"oid":  obj.OID(),
		"type": desc.Name,
	}
	if depth <= 0 {
		return out, nil
	}

	props, rels, _ := obj.exportRecord()
	serializedProps, err := serializeProperties(desc, props)
	if err != nil {
		return nil, err
	}
	out["properties"] = serializedProps

	names := make([]string, 0, len(rels))
	for name := range rels {
		names = append(names, name)
	}
	sort.Strings(names)

	relOut := make(map[string]any, len(rels))
	for _, name := range names {
		rel, ok := desc.Relations[name]
		if !ok {
			continue
		}
		refs := rels[name]
		if depth < 2 {
			relOut[name] = relationStubs(refs, rel.Plural)
			continue
		}
		exported, err := exportRelationDepth2(refs, rel.Plural, visited)
		if err != nil {
			return nil, err
		}
		relOut[name] = exported
	}
	out["relations"] = relOut
	return out, nil
}

func relationStubs(refs []typesys.Ref, plural bool) any {
	stubs := make([]any, len(refs))
	for i, r := range refs {
		stubs[i] = map[string]any{"oid": r.OID, "type": r.Class}
	}
	if plural {
		return stubs
	}
	if len(stubs) == 0 {
		return nil
	}
	return stubs[0]
}

func exportRelationDepth2(refs []typesys.Ref, plural bool, visited map[string]string) (any, error) {
	items := make([]any, 0, len(refs))
	for _, ref := range refs {
		if prevType, seen := visited[ref.OID]; seen && prevType == ref.Class {
			items = append(items, map[string]any{"oid": ref.OID, "type": ref.Class})
			continue
		}
		resolver, ok := lookupResolver(ref.Class)
		if !ok {
			items = append(items, map[string]any{"oid": ref.OID, "type": ref.Class})
			continue
		}
		target, err := resolver.ResolveOID(ref.OID)
		if err != nil {
			return nil, err
		}
		visited[ref.OID] = ref.Class
		sub, err := exportVisited(target, 1, visited)
		if err != nil {
			return nil, err
		}
		items = append(items, sub)
	}
	if plural {
		return items, nil
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}
