package docket

import (
	"reflect"
	"sort"
	"strings"
)

// includeNode is one registered eager-load path. Nodes are never modified.
type includeNode struct {
	path string
	next reflect.Type // type the next ThenInclude resolves against; nil when unknown
}

// Includes accumulates eager-load paths rooted at T.
// The zero value is an empty graph. Every method returns a new value,
// so a chain can be branched without affecting other branches.
type Includes[T any] struct {
	tips []*includeNode
	last *includeNode // nil when the most recent selector produced no path
}

// Include starts a graph for T with a single include.
func Include[T any](field string) Includes[T] {
	return Includes[T]{}.Include(field)
}

// Include registers field on T as a new chain.
// A field that does not resolve on T registers nothing.
func (g Includes[T]) Include(field string) Includes[T] {
	segment, next, ok := resolveField(reflect.TypeFor[T](), field)
	if !ok {
		return Includes[T]{tips: g.tips}
	}
	node := &includeNode{path: segment, next: next}
	return Includes[T]{tips: appendNode(g.tips, node), last: node}
}

// ThenInclude extends the most recent chain with field, resolved against the
// previous include's type (its element type when the previous include is a collection).
// When the previous include produced no path, field starts a fresh chain.
// When field does not resolve, the graph is returned unchanged with no current chain.
func (g Includes[T]) ThenInclude(field string) Includes[T] {
	if g.last == nil {
		segment, ok := plainSegment(field)
		if !ok {
			return Includes[T]{tips: g.tips}
		}
		node := &includeNode{path: segment}
		return Includes[T]{tips: appendNode(g.tips, node), last: node}
	}

	segment, next, ok := resolveField(g.last.next, field)
	if !ok {
		return Includes[T]{tips: g.tips}
	}
	node := &includeNode{path: g.last.path + "." + segment, next: next}
	tips := make([]*includeNode, 0, len(g.tips))
	for _, tip := range g.tips {
		if tip == g.last {
			tips = append(tips, node)
			continue
		}
		tips = append(tips, tip)
	}
	return Includes[T]{tips: tips, last: node}
}

// Paths returns the distinct registered paths in sorted order.
func (g Includes[T]) Paths() []string {
	seen := make(map[string]struct{}, len(g.tips))
	paths := make([]string, 0, len(g.tips))
	for _, tip := range g.tips {
		if _, ok := seen[tip.path]; ok {
			continue
		}
		seen[tip.path] = struct{}{}
		paths = append(paths, tip.path)
	}
	sort.Strings(paths)
	return paths
}

func appendNode(tips []*includeNode, node *includeNode) []*includeNode {
	out := make([]*includeNode, len(tips), len(tips)+1)
	copy(out, tips)
	return append(out, node)
}

// plainSegment accepts a single property name.
func plainSegment(field string) (string, bool) {
	field = strings.TrimSpace(field)
	if field == "" || strings.ContainsAny(field, "./ \t[]") {
		return "", false
	}
	return field, true
}

// resolveField resolves a single property access on t and returns the path
// segment (the JSON name) and the type subsequent includes resolve against.
// Types that cannot be introspected (interfaces, maps of non-structs) accept any plain segment.
func resolveField(t reflect.Type, field string) (string, reflect.Type, bool) {
	name, ok := plainSegment(field)
	if !ok {
		return "", nil, false
	}
	t = navigable(t)
	if t == nil {
		return name, nil, true
	}
	if t.Kind() != reflect.Struct {
		return "", nil, false
	}
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		jsonName, skip := jsonFieldName(f)
		if skip {
			continue
		}
		if f.Name == name || jsonName == name {
			return jsonName, navigable(f.Type), true
		}
	}
	return "", nil, false
}

// navigable unwraps pointers and collections down to the element type.
// Returns nil for types whose properties cannot be known.
func navigable(t reflect.Type) reflect.Type {
	for t != nil {
		switch t.Kind() {
		case reflect.Pointer, reflect.Slice, reflect.Array:
			t = t.Elem()
		case reflect.Map:
			t = t.Elem()
		case reflect.Interface:
			return nil
		default:
			return t
		}
	}
	return nil
}

func jsonFieldName(f reflect.StructField) (string, bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", true
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		name = f.Name
	}
	return name, false
}
