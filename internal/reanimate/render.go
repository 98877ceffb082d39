package reanimate

import (
	"fmt"
	"sort"
	"strings"
)

// Render formats a materialized value for display. Reconstructed graphs may
// be cyclic, so shared containers are labeled on first visit and referenced
// as "↩N" afterwards; encoding/json would recurse forever on them.
func Render(v any) string {
	var b strings.Builder
	r := &renderer{seen: make(map[any]int)}
	r.render(&b, v)
	return b.String()
}

type renderer struct {
	seen map[any]int
	next int
}

func (r *renderer) render(b *strings.Builder, v any) {
	switch val := v.(type) {
	case nil:
		b.WriteString("nil")
	case bool, int64, float64:
		fmt.Fprintf(b, "%v", val)
	case string:
		fmt.Fprintf(b, "%q", val)
	case []byte:
		fmt.Fprintf(b, "0x%x", val)

	case []any:
		key := sliceKey(val)
		if key != nil {
			if id, ok := r.seen[key]; ok {
				fmt.Fprintf(b, "↩%d", id)
				return
			}
			r.seen[key] = r.mark(b)
		}
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteString(", ")
			}
			r.render(b, item)
		}
		b.WriteByte(']')

	case map[string]any:
		if id, ok := r.seen[mapKey(val)]; ok {
			fmt.Fprintf(b, "↩%d", id)
			return
		}
		r.seen[mapKey(val)] = r.mark(b)
		b.WriteByte('{')
		for i, k := range sortedNames(val) {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(b, "%q: ", k)
			r.render(b, val[k])
		}
		b.WriteByte('}')

	case *Instance:
		if id, ok := r.seen[val]; ok {
			fmt.Fprintf(b, "↩%d", id)
			return
		}
		r.seen[val] = r.mark(b)
		b.WriteString(val.TypeName)
		b.WriteByte('(')
		for i, k := range sortedNames(val.Fields) {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(b, "%s=", k)
			r.render(b, val.Fields[k])
		}
		b.WriteByte(')')

	case *Stub:
		fmt.Fprintf(b, "<%s (unrepresentable)>", val.TypeName)

	default:
		fmt.Fprintf(b, "%v", val)
	}
}

// mark assigns the next label id and prints nothing; the label only shows
// up when the container is revisited.
func (r *renderer) mark(*strings.Builder) int {
	r.next++
	return r.next
}

// sliceKey gives a stable identity for a slice: the address of its first
// element slot. Empty slices are never cyclic so identity is irrelevant.
func sliceKey(s []any) any {
	if cap(s) == 0 {
		return nil
	}
	return &s[:1][0]
}

func mapKey(m map[string]any) any {
	return fmt.Sprintf("%p", m)
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
