package moduleloader

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"strings"
)

// ContentKind tags which materialization rule applies to a fetched module
// body, inferred from the resolved URL's extension.
type ContentKind string

const (
	KindJS   ContentKind = "js"
	KindCSS  ContentKind = "css"
	KindJSON ContentKind = "json"
)

// ClassifyContent infers a ContentKind from a resolved URL's extension,
// defaulting to KindJS (the common case: bare/npm specifiers resolve to
// ESM bodies with no extension at all, e.g. CDN "npm:react@18").
func ClassifyContent(resolvedURL string) ContentKind {
	path := resolvedURL
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	switch {
	case strings.HasSuffix(path, ".css"):
		return KindCSS
	case strings.HasSuffix(path, ".json"):
		return KindJSON
	default:
		return KindJS
	}
}

// Materialize re-emits fetched bytes as an importable URL per spec §4.5:
// JS/ESM bodies become a base64 data: URL with sourceMappingURL directives
// stripped; CSS bodies become a small ESM proxy that injects a <style>
// element and exports the stylesheet text; JSON becomes a default export of
// the parsed literal.
func Materialize(kind ContentKind, data []byte) string {
	switch kind {
	case KindCSS:
		return materializeCSS(data)
	case KindJSON:
		return materializeJSON(data)
	default:
		return materializeJS(data)
	}
}

func materializeJS(data []byte) string {
	stripped := stripSourceMappingURL(data)
	return "data:text/javascript;base64," + base64.StdEncoding.EncodeToString(stripped)
}

func materializeJSON(data []byte) string {
	body := "const __json = " + string(data) + "; export default __json;"
	return "data:text/javascript;base64," + base64.StdEncoding.EncodeToString([]byte(body))
}

func materializeCSS(data []byte) string {
	escaped := strings.ReplaceAll(string(data), "`", "\\`")
	body := "const __css = `" + escaped + "`;\n" +
		"const __style = document.createElement('style');\n" +
		"__style.textContent = __css;\n" +
		"document.head.appendChild(__style);\n" +
		"export default __css;\n"
	return "data:text/javascript;base64," + base64.StdEncoding.EncodeToString([]byte(body))
}

// stripSourceMappingURL removes any "//# sourceMappingURL=..." (or the
// "/*# ... */" comment form) line from a JS body before it's re-embedded as
// a data URL — the original mapping would point at a path the data URL
// scheme can never resolve.
func stripSourceMappingURL(data []byte) []byte {
	var out bytes.Buffer
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "//# sourceMappingURL=") || strings.HasPrefix(trimmed, "//@ sourceMappingURL=") || strings.HasPrefix(trimmed, "/*# sourceMappingURL=") {
			continue
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	return out.Bytes()
}
