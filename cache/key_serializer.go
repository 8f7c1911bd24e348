package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// KeySeparator defines the delimiter used between cache key segments.
// Argument values are not escaped, so a value containing the separator can
// produce the same key as a different argument list.
const KeySeparator = ":"

// Keywords carries keyword arguments for key construction. Keywords are
// rendered as "name:value" and sorted by name, so their order never matters.
type Keywords map[string]any

// BuildKey builds a cache key from a logical name, positional arguments
// (order dependent) and keyword arguments (order independent).
func BuildKey(name string, positional []any, keyword Keywords) string {
	return defaultSerializer.build(name, positional, keyword)
}

var defaultSerializer = &defaultKeySerializer{}

// defaultKeySerializer implements KeySerializer using reflection-based serialization.
// Basic values use their %v representation; pointers, slices, maps and structs
// are rendered recursively so that equal arguments always produce equal keys.
type defaultKeySerializer struct{}

// NewDefaultKeySerializer creates a new instance of the default key serializer.
func NewDefaultKeySerializer() KeySerializer {
	return defaultSerializer
}

// SerializeKey builds a cache key from a logical name and args. Any argument of
// type Keywords is merged into the keyword set; everything else is positional.
func (s *defaultKeySerializer) SerializeKey(name string, args ...any) string {
	var positional []any
	var keyword Keywords

	for _, arg := range args {
		kw, ok := arg.(Keywords)
		if !ok {
			positional = append(positional, arg)
			continue
		}
		if keyword == nil {
			keyword = make(Keywords, len(kw))
		}
		for k, v := range kw {
			keyword[k] = v
		}
	}

	return s.build(name, positional, keyword)
}

func (s *defaultKeySerializer) build(name string, positional []any, keyword Keywords) string {
	if len(positional) == 0 && len(keyword) == 0 {
		return name
	}

	parts := make([]string, 0, 1+len(positional)+len(keyword))
	parts = append(parts, name)

	for _, arg := range positional {
		parts = append(parts, s.serializeValue(arg))
	}

	names := make([]string, 0, len(keyword))
	for k := range keyword {
		names = append(names, k)
	}
	sort.Strings(names)

	for _, k := range names {
		parts = append(parts, k+KeySeparator+s.serializeValue(keyword[k]))
	}

	return strings.Join(parts, KeySeparator)
}

// serializeValue handles individual argument serialization based on type.
func (s *defaultKeySerializer) serializeValue(v any) string {
	if v == nil {
		return "nil"
	}

	rv := reflect.ValueOf(v)
	rt := reflect.TypeOf(v)

	if rt.Kind() == reflect.Ptr && rv.IsNil() {
		return "nil"
	}

	if str, ok := v.(fmt.Stringer); ok {
		return str.String()
	}

	switch rt.Kind() {
	case reflect.Func:
		return fmt.Sprintf("func:%p", v)
	case reflect.Ptr:
		return s.serializeValue(rv.Elem().Interface())
	case reflect.Slice:
		if rv.IsNil() {
			return "slice:nil"
		}
		return s.serializeList("slice", rv)
	case reflect.Array:
		return s.serializeList("array", rv)
	case reflect.Map:
		if rv.IsNil() {
			return "map:nil"
		}
		return s.serializeMap(rv)
	case reflect.Struct:
		return s.serializeStruct(rv, rt)
	case reflect.Chan:
		return fmt.Sprintf("chan:%p", v)
	}

	if s.isBasicType(rt.Kind()) {
		return fmt.Sprintf("%v", v)
	}

	return s.jsonFallback(v)
}

func (s *defaultKeySerializer) serializeList(kind string, rv reflect.Value) string {
	length := rv.Len()
	parts := make([]string, length)

	for i := 0; i < length; i++ {
		parts[i] = s.serializeValue(rv.Index(i).Interface())
	}

	return fmt.Sprintf("%s[%d]{%s}", kind, length, strings.Join(parts, ","))
}

// serializeMap handles map serialization with sorted keys for determinism
func (s *defaultKeySerializer) serializeMap(rv reflect.Value) string {
	pairs := make([]string, 0, rv.Len())

	iter := rv.MapRange()
	for iter.Next() {
		k := s.serializeValue(iter.Key().Interface())
		v := s.serializeValue(iter.Value().Interface())
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)

	return fmt.Sprintf("map[%d]{%s}", len(pairs), strings.Join(pairs, ","))
}

// serializeStruct handles struct serialization with field names
func (s *defaultKeySerializer) serializeStruct(rv reflect.Value, rt reflect.Type) string {
	parts := make([]string, 0, rv.NumField())

	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}

		fieldValue := rv.Field(i)
		if !fieldValue.CanInterface() {
			continue
		}

		parts = append(parts, field.Name+"="+s.serializeValue(fieldValue.Interface()))
	}

	return fmt.Sprintf("struct{%s}", strings.Join(parts, ","))
}

func (s *defaultKeySerializer) isBasicType(kind reflect.Kind) bool {
	switch kind {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128,
		reflect.String:
		return true
	default:
		return false
	}
}

// jsonFallback provides JSON serialization as a last resort
func (s *defaultKeySerializer) jsonFallback(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "fallback:" + reflect.TypeOf(v).String()
	}
	return "json:" + string(data)
}
