package httputil

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseTolerantJSON extracts a JSON document from either a raw JSON string
// or the body of a ```json ... ``` fenced block. It never panics or throws
// on malformed input; failures are reported through the returned error.
func ParseTolerantJSON(s string) (json.RawMessage, error) {
	body := extractFencedJSON(s)
	if body == "" {
		body = strings.TrimSpace(s)
	}
	if body == "" {
		return nil, fmt.Errorf("tolerant json: empty input")
	}
	var scratch any
	if err := json.Unmarshal([]byte(body), &scratch); err != nil {
		return nil, fmt.Errorf("tolerant json: %w", err)
	}
	return json.RawMessage(body), nil
}

func extractFencedJSON(s string) string {
	const openMarker = "```json"
	start := strings.Index(s, openMarker)
	if start < 0 {
		// Also accept a bare fence with no language tag.
		const bareOpen = "```"
		start = strings.Index(s, bareOpen)
		if start < 0 {
			return ""
		}
		rest := s[start+len(bareOpen):]
		end := strings.Index(rest, bareOpen)
		if end < 0 {
			return ""
		}
		return strings.TrimSpace(rest[:end])
	}
	rest := s[start+len(openMarker):]
	end := strings.Index(rest, "```")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}
