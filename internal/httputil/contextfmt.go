package httputil

import "encoding/json"

// FormatContext serializes a context map to compact JSON. Empty or
// unserializable inputs produce an empty string rather than an error —
// callers fold this straight into a prompt body.
func FormatContext(ctx map[string]any) string {
	if len(ctx) == 0 {
		return ""
	}
	b, err := json.Marshal(ctx)
	if err != nil {
		return ""
	}
	return string(b)
}
