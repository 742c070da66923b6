// Package capture implements the bounded-depth, bounded-breadth reflective
// serializer that turns an arbitrary in-memory value into a model.CapturedValue
// tree, plus the builders that compose full exception and breakpoint
// captures on top of it.
package capture

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"unsafe"

	"github.com/aivorynet/agent-go/model"
)

// Limits bounds what the serializer will walk. It is the capture-facing
// projection of config.Config's capture-tuning fields.
type Limits struct {
	MaxDepth          int
	MaxStringLength   int
	MaxCollectionSize int
}

// DefaultLimits mirrors AgentConfig's defaults (max depth 10, string length
// 1000, collection size 100).
func DefaultLimits() Limits {
	return Limits{MaxDepth: 10, MaxStringLength: 1000, MaxCollectionSize: 100}
}

const maxFieldsPerObject = 20

// Value reflects over val and produces a bounded model.CapturedValue tree
// rooted at name, honoring lim. It is a pure function of (val, lim): it has
// no side effects beyond reading fields reflectively, and it never panics —
// any reflection failure is caught and degrades to a truncated leaf.
func Value(name string, val interface{}, depth int, lim Limits) *model.CapturedValue {
	cv := &model.CapturedValue{Name: name}
	defer func() {
		if r := recover(); r != nil {
			cv.Type = "unknown"
			cv.Value = fmt.Sprintf("<unreadable: %v>", r)
			cv.IsTruncated = true
		}
	}()

	if val == nil {
		cv.Type = "null"
		cv.Value = "null"
		cv.IsNull = true
		return cv
	}

	v := reflect.ValueOf(val)
	return captureReflectValue(cv, v, depth, lim)
}

func captureReflectValue(cv *model.CapturedValue, v reflect.Value, depth int, lim Limits) *model.CapturedValue {
	// Unwrap pointers and interfaces, remembering identity for the
	// eventual opaque-object leaf.
	identity := ""
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			cv.Type = "null"
			cv.Value = "null"
			cv.IsNull = true
			return cv
		}
		if v.Kind() == reflect.Ptr && identity == "" {
			identity = fmt.Sprintf("%x", v.Pointer())
		}
		v = v.Elem()
	}

	typeName := v.Type().String()
	cv.Type = typeName

	switch v.Kind() {
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128, reflect.String:
		setScalar(cv, v, lim)
		return cv

	case reflect.Array, reflect.Slice:
		captureSequence(cv, v, depth, lim, typeName)
		return cv

	case reflect.Map:
		captureMap(cv, v, depth, lim, typeName)
		return cv

	case reflect.Struct:
		captureStruct(cv, v, depth, lim, typeName, identity)
		return cv

	default:
		// Channels, funcs, unsafe pointers: opaque, unreadable leaves.
		cv.Value = fmt.Sprintf("<%s>", typeName)
		cv.IsTruncated = true
		return cv
	}
}

func setScalar(cv *model.CapturedValue, v reflect.Value, lim Limits) {
	s := fmt.Sprintf("%v", v.Interface())
	if len(s) > lim.MaxStringLength {
		s = s[:lim.MaxStringLength]
		cv.IsTruncated = true
	}
	cv.Value = s
}

func captureSequence(cv *model.CapturedValue, v reflect.Value, depth int, lim Limits, typeName string) {
	length := v.Len()
	cv.ArrayLength = length

	if depth >= lim.MaxDepth {
		cv.Value = opaqueLeafLabel(typeName, v)
		cv.IsTruncated = true
		return
	}

	max := length
	if max > lim.MaxCollectionSize {
		max = lim.MaxCollectionSize
		cv.IsTruncated = true
	}

	elements := make([]*model.CapturedValue, 0, max)
	for i := 0; i < max; i++ {
		elem := readableElem(v.Index(i))
		child := Value(fmt.Sprintf("[%d]", i), safeInterface(elem), depth+1, lim)
		if child.IsTruncated {
			cv.IsTruncated = true
		}
		elements = append(elements, child)
	}
	cv.ArrayElements = elements

	if strings.HasPrefix(typeName, "[]") {
		cv.Value = strings.Replace(typeName, "[]", fmt.Sprintf("[%d]", length), 1)
	} else {
		// fixed-size arrays already carry their length, e.g. "[5]int"
		cv.Value = typeName
	}
}

func captureMap(cv *model.CapturedValue, v reflect.Value, depth int, lim Limits, typeName string) {
	size := v.Len()
	cv.ArrayLength = size
	cv.Value = fmt.Sprintf("%s<%d entries>", shortType(typeName), size)

	if depth >= lim.MaxDepth {
		cv.Value = opaqueLeafLabel(typeName, v)
		cv.IsTruncated = true
		return
	}

	keys := v.MapKeys()
	sort.Slice(keys, func(i, j int) bool {
		return fmt.Sprintf("%v", keys[i].Interface()) < fmt.Sprintf("%v", keys[j].Interface())
	})

	children := make(map[string]*model.CapturedValue)
	count := 0
	for _, k := range keys {
		if count >= lim.MaxCollectionSize {
			cv.IsTruncated = true
			break
		}
		keyStr := fmt.Sprintf("%v", k.Interface())
		if len(keyStr) > 50 {
			keyStr = keyStr[:47] + "..."
		}
		mv := readableElem(v.MapIndex(k))
		child := Value(keyStr, safeInterface(mv), depth+1, lim)
		if child.IsTruncated {
			cv.IsTruncated = true
		}
		children[keyStr] = child
		count++
	}
	cv.Children = children
}

func captureStruct(cv *model.CapturedValue, v reflect.Value, depth int, lim Limits, typeName, identity string) {
	if identity == "" {
		identity = structIdentity(v)
	}
	cv.HashCode = identity
	cv.Value = fmt.Sprintf("%s@%s", shortType(typeName), identity)

	if depth >= lim.MaxDepth {
		cv.IsTruncated = true
		return
	}

	addressableV := addressable(v)
	t := addressableV.Type()
	children := make(map[string]*model.CapturedValue)
	captured := 0
	for i := 0; i < t.NumField() && captured < maxFieldsPerObject; i++ {
		field := t.Field(i)

		fieldVal, ok := readField(addressableV.Field(i))
		if !ok {
			cv.IsTruncated = true
			continue
		}

		child := Value(field.Name, safeInterface(fieldVal), depth+1, lim)
		if child.IsTruncated {
			cv.IsTruncated = true
		}
		children[field.Name] = child
		captured++
	}
	if t.NumField() > maxFieldsPerObject {
		cv.IsTruncated = true
	}
	cv.Children = children
}

// addressable returns an addressable copy of v, so that unexported struct
// fields can be reached through unsafe.Pointer the way Java's
// Field.setAccessible(true) reaches private fields.
func addressable(v reflect.Value) reflect.Value {
	if v.CanAddr() {
		return v
	}
	cp := reflect.New(v.Type()).Elem()
	cp.Set(v)
	return cp
}

// readField reads a (possibly unexported) struct field, mirroring
// ExceptionCapture.java's field.setAccessible(true) + field.get(obj). Field
// read failures are reported via ok=false and silently skipped by the caller,
// per spec §4.B step 7 / §7.
func readField(f reflect.Value) (reflect.Value, bool) {
	if f.CanInterface() {
		return f, true
	}
	if !f.CanAddr() {
		return reflect.Value{}, false
	}
	defer func() { recover() }()
	return reflect.NewAt(f.Type(), unsafe.Pointer(f.UnsafeAddr())).Elem(), true
}

// readableElem applies the same unexported-field workaround to array,
// slice, and map element values (relevant when the container itself was
// reached through an unexported field).
func readableElem(v reflect.Value) reflect.Value {
	if v.CanInterface() {
		return v
	}
	if v.CanAddr() {
		return reflect.NewAt(v.Type(), unsafe.Pointer(v.UnsafeAddr())).Elem()
	}
	return v
}

func safeInterface(v reflect.Value) interface{} {
	if !v.IsValid() {
		return nil
	}
	if !v.CanInterface() {
		return fmt.Sprintf("<unreadable %s>", v.Type())
	}
	return v.Interface()
}

func structIdentity(v reflect.Value) string {
	av := addressable(v)
	if av.CanAddr() {
		return fmt.Sprintf("%x", av.Addr().Pointer())
	}
	return "0"
}

func opaqueLeafLabel(typeName string, v reflect.Value) string {
	return fmt.Sprintf("%s@%s", shortType(typeName), structIdentity(v))
}

// shortType strips any package qualifier, mirroring Class.getSimpleName().
func shortType(typeName string) string {
	typeName = strings.TrimPrefix(typeName, "*")
	if idx := strings.LastIndex(typeName, "."); idx >= 0 {
		return typeName[idx+1:]
	}
	return typeName
}
