package httputil

import "encoding/json"

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// ExtractErrorMessage pulls a human-readable message out of an upstream
// error response body. It tries, in order: error.message from a JSON
// envelope, the raw JSON body text, the raw body text, and finally the
// literal string "unknown error".
func ExtractErrorMessage(body []byte) string {
	if len(body) == 0 {
		return "unknown error"
	}
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		return env.Error.Message
	}
	var scratch any
	if err := json.Unmarshal(body, &scratch); err == nil {
		return string(body)
	}
	if len(body) > 0 {
		return string(body)
	}
	return "unknown error"
}
