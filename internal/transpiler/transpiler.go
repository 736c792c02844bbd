// Package transpiler turns author-supplied {code, language, runtime} into
// ESM source text a sandbox can run, using tree-sitter's JS/TS/TSX grammars
// rather than a hand-rolled parser.
//
// Grammar selection by declared language (rather than file extension) is
// the same go-tree-sitter javascript/typescript/tsx dispatch
// C360Studio-semspec's processor/ast/ts/parser.go uses for its own parsing.
package transpiler

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/webllm/renderify/internal/cachex"
)

// Classic JSX factory/fragment names, matched literally by
// internal/sandbox's none-tier interpreter.
const (
	ClassicFactory  = "__renderify_runtime_h"
	ClassicFragment = "__renderify_runtime_fragment"
)

const classicPrelude = `function ` + ClassicFactory + `(tag, props, ...children) {
  return { tag: tag, props: props || {}, children: children };
}
function ` + ClassicFragment + `(props, ...children) {
  return { tag: "fragment", props: props || {}, children: children };
}
`

const preactImport = `import { jsx as _jsx, jsxs as _jsxs, Fragment as _Fragment } from "preact/jsx-runtime";
`

// Input mirrors spec §4.6's {code, language, filename?, runtime?}.
type Input struct {
	Code     string
	Language string // "js", "jsx", "ts", "tsx"
	Filename string
	Runtime  string // "" / "renderify" (classic) or "preact" (automatic)
}

func (in Input) cacheKey() string {
	return in.Language + "|" + in.Runtime + "|" + in.Filename + "|" + in.Code
}

// Transpiler turns Input into ESM source text, caching by language, runtime,
// filename, and full source — a cache hit need not reparse.
type Transpiler struct {
	cache *cachex.LRUTTL[string, string]
}

// Option customizes a Transpiler.
type Option func(*Transpiler)

// WithCache overrides the default cache (256 entries, 8MiB, 1h TTL).
func WithCache(cache *cachex.LRUTTL[string, string]) Option {
	return func(t *Transpiler) { t.cache = cache }
}

// New creates a Transpiler.
func New(opts ...Option) *Transpiler {
	t := &Transpiler{
		cache: cachex.NewLRUTTL[string, string](256, 8<<20, time.Hour),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Transpile implements spec §4.6's rules: js passes through unchanged;
// ts/tsx get TypeScript-stripping; jsx/tsx with runtime="preact" emit the
// automatic JSX runtime; any other runtime emits classic calls against the
// __renderify_runtime_h/__renderify_runtime_fragment factories, merging a
// helper prelude that defines them.
func (t *Transpiler) Transpile(ctx context.Context, in Input) (string, error) {
	key := in.cacheKey()
	if cached, ok := t.cache.Get(key); ok {
		return cached, nil
	}

	if in.Language == "js" {
		t.cache.Set(key, in.Code, len(in.Code))
		return in.Code, nil
	}

	lang, hasJSX, err := grammarFor(in.Language)
	if err != nil {
		return "", err
	}

	parser := sitter.NewParser()
	parser.SetLanguage(lang)
	tree, err := parser.ParseCtx(ctx, nil, []byte(in.Code))
	if err != nil {
		return "", fmt.Errorf("transpiler: parse: %w", err)
	}
	defer tree.Close()

	source := []byte(in.Code)
	var edits []edit
	if isTSLanguage(in.Language) {
		edits = append(edits, collectTypeEdits(tree.RootNode(), source)...)
	}
	var jsxCount int
	if hasJSX {
		jsxEdits := collectJSXEdits(tree.RootNode(), source, in.Runtime)
		jsxCount = len(jsxEdits)
		edits = append(edits, jsxEdits...)
	}

	if in.Language == "jsx" && jsxCount == 0 {
		return "", fmt.Errorf("transpiler: no JSX found in jsx source")
	}

	out := applyEdits(source, edits)

	if jsxCount > 0 {
		if in.Runtime == "preact" {
			out = preactImport + out
		} else {
			out = classicPrelude + out
		}
	}

	t.cache.Set(key, out, len(out))
	return out, nil
}

func grammarFor(language string) (lang *sitter.Language, hasJSX bool, err error) {
	switch language {
	case "jsx":
		return javascript.GetLanguage(), true, nil
	case "ts":
		return typescript.GetLanguage(), false, nil
	case "tsx":
		return tsx.GetLanguage(), true, nil
	default:
		return nil, false, fmt.Errorf("transpiler: unsupported language %q", language)
	}
}

func isTSLanguage(language string) bool {
	return language == "ts" || language == "tsx"
}

// edit is a half-open byte range [Start,End) replaced by Text (empty Text
// deletes the range).
type edit struct {
	Start, End uint32
	Text       string
}

func applyEdits(source []byte, edits []edit) string {
	if len(edits) == 0 {
		return string(source)
	}
	sort.Slice(edits, func(i, j int) bool { return edits[i].Start < edits[j].Start })

	var b strings.Builder
	var pos uint32
	for _, e := range edits {
		if e.Start < pos {
			// Overlaps a prior edit (e.g. a type annotation fully inside a
			// JSX span already replaced wholesale) — superseded, skip it.
			continue
		}
		b.Write(source[pos:e.Start])
		b.WriteString(e.Text)
		pos = e.End
	}
	b.Write(source[pos:])
	return b.String()
}

// --- TypeScript stripping -------------------------------------------------

func collectTypeEdits(n *sitter.Node, source []byte) []edit {
	var edits []edit
	var walk func(*sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		switch n.Type() {
		case "type_annotation", "interface_declaration", "type_alias_declaration", "type_parameters", "type_arguments":
			edits = append(edits, edit{Start: n.StartByte(), End: n.EndByte(), Text: ""})
			return
		case "as_expression", "satisfies_expression":
			// Keep the value operand (first named child), drop everything
			// from its end to the expression's end (" as Type"/" satisfies Type").
			if n.NamedChildCount() > 0 {
				value := n.NamedChild(0)
				edits = append(edits, edit{Start: value.EndByte(), End: n.EndByte(), Text: ""})
				walk(value)
				return
			}
		case "non_null_expression":
			// "expr!" -> "expr": drop the trailing "!".
			if n.NamedChildCount() > 0 {
				value := n.NamedChild(0)
				edits = append(edits, edit{Start: value.EndByte(), End: n.EndByte(), Text: ""})
				walk(value)
				return
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(n)
	return edits
}

// --- JSX -> call-expression compilation ----------------------------------

func isJSXNode(n *sitter.Node) bool {
	switch n.Type() {
	case "jsx_element", "jsx_self_closing_element", "jsx_fragment":
		return true
	}
	return false
}

// collectJSXEdits finds every topmost JSX node anywhere in the tree (a JSX
// node nested inside another is handled by its parent's own recursive call
// generation, not collected again here) and pairs it with the generated
// call-expression text that replaces it.
func collectJSXEdits(n *sitter.Node, source []byte, runtime string) []edit {
	var edits []edit
	var walk func(*sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if isJSXNode(n) {
			edits = append(edits, edit{Start: n.StartByte(), End: n.EndByte(), Text: genCallExpr(n, source, runtime)})
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(n)
	return edits
}

// spliceJSXWithin renders node's own source text verbatim except for any
// JSX node nested somewhere inside it (e.g. the arrow-function body of a
// `{items.map(i => <Item/>)}` expression child), which is replaced with its
// generated call-expression text.
func spliceJSXWithin(n *sitter.Node, source []byte, runtime string) string {
	edits := collectJSXEdits(n, source, runtime)
	if len(edits) == 0 {
		return n.Content(source)
	}
	sort.Slice(edits, func(i, j int) bool { return edits[i].Start < edits[j].Start })
	var b strings.Builder
	pos := n.StartByte()
	for _, e := range edits {
		b.Write(source[pos:e.Start])
		b.WriteString(e.Text)
		pos = e.End
	}
	b.Write(source[pos:n.EndByte()])
	return b.String()
}

func genCallExpr(n *sitter.Node, source []byte, runtime string) string {
	if n.Type() == "jsx_fragment" {
		children := jsxChildren(n, source, runtime)
		return fragmentCall(children, runtime)
	}

	open := n
	var children []string
	if n.Type() == "jsx_element" {
		opening := n.ChildByFieldName("open_tag")
		if opening == nil {
			opening = n.Child(0)
		}
		open = opening
		children = jsxChildren(n, source, runtime)
	}

	nameNode := open.ChildByFieldName("name")
	name := "unknown"
	if nameNode != nil {
		name = nameNode.Content(source)
	}
	props := jsxProps(open, source, runtime)

	if runtime == "preact" {
		return automaticCall(name, props, children)
	}
	return classicCall(name, props, children)
}

func classicCall(tag string, props map[string]string, children []string) string {
	var b strings.Builder
	b.WriteString(ClassicFactory)
	b.WriteString("(")
	b.WriteString(strconv.Quote(tag))
	b.WriteString(", ")
	b.WriteString(propsObjectLiteral(props))
	for _, c := range children {
		b.WriteString(", ")
		b.WriteString(c)
	}
	b.WriteString(")")
	return b.String()
}

func fragmentCall(children []string, runtime string) string {
	if runtime == "preact" {
		return automaticCall("_Fragment", nil, children)
	}
	var b strings.Builder
	b.WriteString(ClassicFragment)
	b.WriteString("(null")
	for _, c := range children {
		b.WriteString(", ")
		b.WriteString(c)
	}
	b.WriteString(")")
	return b.String()
}

func automaticCall(tag string, props map[string]string, children []string) string {
	fn := "_jsx"
	if len(children) > 1 {
		fn = "_jsxs"
	}
	var b strings.Builder
	b.WriteString(fn)
	b.WriteString("(")
	if tag == "_Fragment" {
		b.WriteString("_Fragment")
	} else {
		b.WriteString(strconv.Quote(tag))
	}
	b.WriteString(", { ")
	for k, v := range props {
		b.WriteString(propKeyLiteral(k, v))
		b.WriteString(", ")
	}
	b.WriteString("children: ")
	switch len(children) {
	case 0:
		b.WriteString("[]")
	case 1:
		b.WriteString(children[0])
	default:
		b.WriteString("[")
		b.WriteString(strings.Join(children, ", "))
		b.WriteString("]")
	}
	b.WriteString(" })")
	return b.String()
}

func propsObjectLiteral(props map[string]string) string {
	if len(props) == 0 {
		return "null"
	}
	var b strings.Builder
	b.WriteString("{ ")
	for k, v := range props {
		b.WriteString(propKeyLiteral(k, v))
		b.WriteString(", ")
	}
	b.WriteString("}")
	return b.String()
}

func propKeyLiteral(key, value string) string {
	return identOrQuotedKey(key) + ": " + value
}

func identOrQuotedKey(key string) string {
	for _, r := range key {
		if !(r == '_' || r == '$' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return strconv.Quote(key)
		}
	}
	return key
}

// jsxProps reads an opening/self-closing tag's attributes into a map of
// attribute name -> literal JS value text (a quoted string for string
// attrs, "true" for boolean shorthand, or the attribute's own expression
// text verbatim for a `{expr}` value, with any nested JSX spliced).
func jsxProps(n *sitter.Node, source []byte, runtime string) map[string]string {
	props := map[string]string{}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child.Type() != "jsx_attribute" {
			continue
		}
		nameNode := child.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		key := nameNode.Content(source)
		valueNode := child.ChildByFieldName("value")
		if valueNode == nil {
			props[key] = "true"
			continue
		}
		switch valueNode.Type() {
		case "string":
			raw := strings.Trim(valueNode.Content(source), `"'`)
			props[key] = strconv.Quote(raw)
		case "jsx_expression":
			inner := exprInside(valueNode)
			if inner == nil {
				props[key] = "undefined"
				continue
			}
			props[key] = spliceJSXWithin(inner, source, runtime)
		default:
			props[key] = spliceJSXWithin(valueNode, source, runtime)
		}
	}
	return props
}

func exprInside(jsxExpr *sitter.Node) *sitter.Node {
	for i := 0; i < int(jsxExpr.NamedChildCount()); i++ {
		return jsxExpr.NamedChild(i)
	}
	return nil
}

// jsxChildren reads a jsx_element/jsx_fragment's children into generated JS
// expression-argument text: a quoted string literal for non-blank text, the
// recursively-generated call for nested JSX, or the spliced expression text
// (passed through to the host template interpolator at render time) for a
// `{expr}` child.
func jsxChildren(n *sitter.Node, source []byte, runtime string) []string {
	var out []string
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch child.Type() {
		case "jsx_opening_element", "jsx_closing_element", "<", ">":
			continue
		case "jsx_text":
			text := strings.TrimSpace(child.Content(source))
			if text == "" {
				continue
			}
			out = append(out, strconv.Quote(text))
		case "jsx_expression":
			inner := exprInside(child)
			if inner == nil {
				continue
			}
			out = append(out, spliceJSXWithin(inner, source, runtime))
		case "jsx_element", "jsx_self_closing_element", "jsx_fragment":
			out = append(out, genCallExpr(child, source, runtime))
		}
	}
	return out
}
