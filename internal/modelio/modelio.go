// Package modelio implements the default model loader (spec §6.4 "Model
// loading"): a JSON-backed reader that exposes parsed documents as
// mtlval.ModelRef object graphs navigable by the expression evaluator.
// Metamodel conformance is not checked here; the spec treats the model
// loader as a pluggable component behind a narrow Navigate/Display
// contract, and JSON has no schema layer of its own to validate against.
package modelio

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/mtlforge/mtlgen/internal/mtlval"
)

// node is the loader-private payload carried in a ModelRef.Native field.
// A node is one JSON value (object, array, or scalar) plus the alias and
// a stable path-based identity used for trace-link recording and value
// equality.
type node struct {
	alias    string
	identity string
	value    interface{}
}

// Loader owns a set of named JSON model documents, keyed by the alias the
// caller registers each one under (the CLI takes it from --model or the
// config file's [models] table).
type Loader struct {
	roots map[string]*node
}

// New returns an empty Loader.
func New() *Loader {
	return &Loader{roots: make(map[string]*node)}
}

// LoadFile parses the JSON document at path and registers it under alias,
// replacing any previous document registered under that alias.
func (l *Loader) LoadFile(alias, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("modelio: read %s: %w", path, err)
	}
	return l.LoadBytes(alias, data)
}

// LoadBytes parses raw JSON content and registers it under alias.
func (l *Loader) LoadBytes(alias string, data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("modelio: parse model %q: %w", alias, err)
	}
	l.roots[alias] = &node{alias: alias, identity: alias, value: v}
	return nil
}

// Root returns the root Value for alias (an Object or Collection value,
// depending on the JSON document's top-level shape).
func (l *Loader) Root(alias string) (mtlval.Value, bool) {
	n, ok := l.roots[alias]
	if !ok {
		return mtlval.Null, false
	}
	return n.toValue(), true
}

func (n *node) toValue() mtlval.Value {
	switch v := n.value.(type) {
	case nil:
		return mtlval.Null
	case bool:
		return mtlval.Bool(v)
	case string:
		return mtlval.String(v)
	case float64:
		if v == float64(int64(v)) {
			return mtlval.Int(int64(v))
		}
		return mtlval.Real(v)
	case []interface{}:
		items := make([]mtlval.Value, len(v))
		for i, elem := range v {
			child := &node{alias: n.alias, identity: n.identity + "[" + strconv.Itoa(i) + "]", value: elem}
			items[i] = child.toValue()
		}
		return mtlval.Collection(items)
	case map[string]interface{}:
		return mtlval.Object(n.ref())
	default:
		return mtlval.Null
	}
}

func (n *node) ref() mtlval.ModelRef {
	return mtlval.ModelRef{Alias: n.alias, Native: n, Display: n.displayString(), Identity: n.identity}
}

func (n *node) displayString() string {
	obj, ok := n.value.(map[string]interface{})
	if !ok {
		return n.identity
	}
	for _, key := range []string{"name", "id", "title"} {
		if s, ok := obj[key].(string); ok {
			return s
		}
	}
	return n.identity
}

// Navigate implements exprlang.EvalContext's model-resolution half: reads
// property off ref's underlying JSON object.
func (l *Loader) Navigate(ref mtlval.ModelRef, property string) (mtlval.Value, error) {
	n, ok := ref.Native.(*node)
	if !ok {
		return mtlval.Null, fmt.Errorf("modelio: model reference is not backed by this loader")
	}
	obj, ok := n.value.(map[string]interface{})
	if !ok {
		return mtlval.Null, fmt.Errorf("modelio: cannot navigate %q: not an object", property)
	}
	raw, ok := obj[property]
	if !ok {
		return mtlval.Null, fmt.Errorf("modelio: object has no property %q", property)
	}
	child := &node{alias: n.alias, identity: n.identity + "." + property, value: raw}
	return child.toValue(), nil
}

// Display implements exprlang.EvalContext's DisplayObject half.
func (l *Loader) Display(ref mtlval.ModelRef) string {
	return ref.Display
}

// Aliases returns the registered model aliases in sorted order, for
// deterministic diagnostics and CLI listing.
func (l *Loader) Aliases() []string {
	out := make([]string, 0, len(l.roots))
	for alias := range l.roots {
		out = append(out, alias)
	}
	sort.Strings(out)
	return out
}
