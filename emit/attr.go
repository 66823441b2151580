package emit

import "encoding/json"

// jsonStringify renders an arbitrary meta value for use as a span
// attribute string, or "<unserializable>" if it is not JSON-serializable.
func jsonStringify(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "<unserializable>"
	}
	return string(b)
}
