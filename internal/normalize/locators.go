package normalize

import "strings"

// path addresses a value inside a Document: string segments index objects,
// int segments index arrays.
type path []any

// urlLocators are tried in order; the first non-empty string wins.
var urlLocators = []path{
	{"url"},
	{"video_url"},
	{"image_url"},
	{"output", "url"},
	{"output", 0, "url"},
	{"outputs", 0, "url"},
	{"result", "url"},
	{"generations", 0, "url"},
	{"videos", 0, "url"},
	{"data", 0, "url"},
	{"output", "video_url"},
	{"result", "video_url"},
	{"content", "url"},
	{"video", "url"},
}

// inlineLocators point at base64 payloads.
var inlineLocators = []path{
	{"video_base64"},
	{"b64_json"},
	{"data", 0, "b64_json"},
	{"data"},
	{"output", "data"},
	{"output", 0, "b64_json"},
	{"video", "data"},
	{"content", "data"},
}

func lookup(doc map[string]any, segments ...any) (any, bool) {
	var cur any = doc
	for _, seg := range segments {
		switch key := seg.(type) {
		case string:
			obj, ok := asObject(cur)
			if !ok {
				return nil, false
			}
			cur, ok = obj[key]
			if !ok {
				return nil, false
			}
		case int:
			arr, ok := cur.([]any)
			if !ok || key < 0 || key >= len(arr) {
				return nil, false
			}
			cur = arr[key]
		default:
			return nil, false
		}
	}
	return cur, cur != nil
}

func lookupString(doc map[string]any, segments ...any) (string, bool) {
	v, ok := lookup(doc, segments...)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

func asObject(v any) (map[string]any, bool) {
	switch obj := v.(type) {
	case Document:
		return obj, true
	case map[string]any:
		return obj, true
	default:
		return nil, false
	}
}
