package capture

import (
	"fmt"
	"reflect"
)

// ErrorIdentity returns the pointer address backing err's dynamic value, the
// closest Go analogue to System.identityHashCode(throwable) — most error
// values in Go are allocated once at the point they're constructed and
// passed by pointer thereafter, so this distinguishes physically distinct
// error instances of the same type and message. ok is false for non-pointer
// error values, where callers fall back to comparing by message.
func ErrorIdentity(err error) (id string, ok bool) {
	v := reflect.ValueOf(err)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return "", false
	}
	return fmt.Sprintf("%x", v.Pointer()), true
}
