package instrument

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Maximum recursion depth to prevent stack overflow
const maxReprDepth = 6

// maxReprElements limits how many elements of a slice, array or map are shown.
const maxReprElements = 10

// repr renders v for a log record. It only reads v, never retains it, and
// guards against cycles and deep nesting.
func repr(v interface{}) string {
	var b strings.Builder
	reprValue(&b, reflect.ValueOf(v), make(map[uintptr]bool), 0)
	return b.String()
}

// reprArgs renders positional arguments as "(a, b)".
func reprArgs(args []interface{}) string {
	var b strings.Builder
	b.WriteByte('(')
	for i, a := range args {
		if i > 0 {
			b.WriteString(", ")
		}
		reprValue(&b, reflect.ValueOf(a), make(map[uintptr]bool), 0)
	}
	b.WriteByte(')')
	return b.String()
}

// reprKwargs renders named arguments as "{k: v}" in key order.
func reprKwargs(kwargs map[string]interface{}) string {
	keys := make([]string, 0, len(kwargs))
	for k := range kwargs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.Quote(k))
		b.WriteString(": ")
		reprValue(&b, reflect.ValueOf(kwargs[k]), make(map[uintptr]bool), 0)
	}
	b.WriteByte('}')
	return b.String()
}

func reprValue(b *strings.Builder, val reflect.Value, visited map[uintptr]bool, depth int) {
	if !val.IsValid() {
		b.WriteString("nil")
		return
	}
	if depth > maxReprDepth {
		b.WriteString("...")
		return
	}
	if (val.Kind() == reflect.Ptr || val.Kind() == reflect.Interface) && val.IsNil() {
		b.WriteString("nil")
		return
	}
	if val.CanInterface() {
		switch x := val.Interface().(type) {
		case error:
			b.WriteString(strconv.Quote(x.Error()))
			return
		case fmt.Stringer:
			b.WriteString(x.String())
			return
		}
	}

	// Safely unwrap interfaces and handle pointers, with cycle detection.
	for {
		switch val.Kind() {
		case reflect.Interface:
			if val.IsNil() {
				b.WriteString("nil")
				return
			}
			val = val.Elem()
			continue
		case reflect.Ptr:
			if val.IsNil() {
				b.WriteString("nil")
				return
			}
			ptr := val.Pointer()
			if visited[ptr] {
				b.WriteString("<circular reference>")
				return
			}
			visited[ptr] = true
			defer delete(visited, ptr)
			b.WriteByte('&')
			val = val.Elem()
			continue
		}
		break
	}

	typ := val.Type()
	switch val.Kind() {
	case reflect.String:
		b.WriteString(strconv.Quote(val.String()))

	case reflect.Struct:
		b.WriteString(typ.Name())
		b.WriteByte('{')
		n := 0
		for i := 0; i < val.NumField(); i++ {
			field := typ.Field(i)
			// Skip unexported fields
			if !field.IsExported() {
				continue
			}
			if n > 0 {
				b.WriteString(", ")
			}
			n++
			b.WriteString(field.Name)
			b.WriteString(": ")
			reprValue(b, val.Field(i), visited, depth+1)
		}
		b.WriteByte('}')

	case reflect.Map:
		if val.IsNil() {
			b.WriteString("map[]")
			return
		}
		ptr := val.Pointer()
		if visited[ptr] {
			b.WriteString("<circular reference>")
			return
		}
		visited[ptr] = true
		defer delete(visited, ptr)

		keys := val.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i]) < fmt.Sprint(keys[j])
		})
		b.WriteString("map[")
		for i, k := range keys {
			if i == maxReprElements {
				fmt.Fprintf(b, " ... (%d more)", len(keys)-maxReprElements)
				break
			}
			if i > 0 {
				b.WriteString(", ")
			}
			reprValue(b, k, visited, depth+1)
			b.WriteString(": ")
			reprValue(b, val.MapIndex(k), visited, depth+1)
		}
		b.WriteByte(']')

	case reflect.Slice, reflect.Array:
		if val.Kind() == reflect.Slice {
			if val.IsNil() {
				b.WriteString("[]")
				return
			}
			if typ.Elem().Kind() == reflect.Uint8 {
				fmt.Fprintf(b, "[]byte(len: %d)", val.Len())
				return
			}
		}
		b.WriteByte('[')
		for i := 0; i < val.Len(); i++ {
			if i == maxReprElements {
				fmt.Fprintf(b, " ... (%d more)", val.Len()-maxReprElements)
				break
			}
			if i > 0 {
				b.WriteString(", ")
			}
			reprValue(b, val.Index(i), visited, depth+1)
		}
		b.WriteByte(']')

	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		b.WriteString(typ.String())

	default:
		if val.CanInterface() {
			fmt.Fprintf(b, "%v", val.Interface())
		} else {
			b.WriteString(typ.String())
		}
	}
}

// truncate shortens s to at most n bytes, marking the cut with "...". The
// cut never splits a UTF-8 sequence.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:runeBoundary(s, n)]
	}
	return s[:runeBoundary(s, n-3)] + "..."
}

// runeBoundary moves i back to the start of the rune containing s[i].
func runeBoundary(s string, i int) int {
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
