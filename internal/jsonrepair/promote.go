package jsonrepair

// Keys that identify a record as concept-shaped when deciding which
// array inside a wrapper object to promote.
var conceptKeys = []string{"concept_name", "name", "concept"}

// PromoteConceptList normalizes "I asked for a list, the model wrapped
// it in an object" responses. An array Value is returned directly; an
// object Value is searched for the first array whose elements look
// like concept records. The bool is false when nothing list-shaped
// was found.
func PromoteConceptList(v Value) ([]map[string]any, bool) {
	switch v.Kind {
	case KindArray:
		return objectElements(v.Array)
	case KindObject:
		// Prefer the conventional wrapper key before scanning the rest.
		if arr, ok := v.Object["concepts"].([]any); ok {
			if items, found := objectElements(arr); found {
				return items, true
			}
		}
		for key, raw := range v.Object {
			if key == "concepts" {
				continue
			}
			arr, ok := raw.([]any)
			if !ok {
				continue
			}
			items, found := objectElements(arr)
			if !found {
				continue
			}
			if looksLikeConcepts(items) {
				return items, true
			}
		}
	}
	return nil, false
}

func objectElements(arr []any) ([]map[string]any, bool) {
	if len(arr) == 0 {
		return nil, false
	}
	items := make([]map[string]any, 0, len(arr))
	for _, el := range arr {
		obj, ok := el.(map[string]any)
		if !ok {
			return nil, false
		}
		items = append(items, obj)
	}
	return items, true
}

func looksLikeConcepts(items []map[string]any) bool {
	for _, item := range items {
		for _, key := range conceptKeys {
			if _, ok := item[key]; ok {
				return true
			}
		}
	}
	return false
}
