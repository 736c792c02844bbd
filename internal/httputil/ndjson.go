package httputil

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ParseNDJSON consumes an append-only buffer of newline-delimited JSON and
// returns the parsed payloads found in complete lines, plus the unconsumed
// remainder. A malformed non-empty line is a fatal error for the stream —
// callers should treat it as the end of parsing. When flush is true, a
// trailing line with no terminating newline yet is parsed and remaining is
// cleared.
func ParseNDJSON(buf []byte, flush bool) (payloads []json.RawMessage, remaining []byte, err error) {
	for {
		idx := bytes.IndexByte(buf, '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimRight(buf[:idx], "\r")
		buf = buf[idx+1:]
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		payload, perr := parseNDJSONLine(line)
		if perr != nil {
			return payloads, buf, perr
		}
		payloads = append(payloads, payload)
	}
	if flush {
		line := bytes.TrimSpace(buf)
		if len(line) > 0 {
			payload, perr := parseNDJSONLine(line)
			if perr != nil {
				return payloads, nil, perr
			}
			payloads = append(payloads, payload)
		}
		buf = nil
	}
	return payloads, buf, nil
}

func parseNDJSONLine(line []byte) (json.RawMessage, error) {
	var scratch any
	if err := json.Unmarshal(line, &scratch); err != nil {
		return nil, fmt.Errorf("ndjson: malformed line: %w", err)
	}
	return json.RawMessage(append([]byte(nil), line...)), nil
}
