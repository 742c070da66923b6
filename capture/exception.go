package capture

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/aivorynet/agent-go/model"
)

// MethodDescriptor identifies the instrumented method a capture was taken
// from: declaring type plus method name, with parameter names when the
// host runtime has them available.
type MethodDescriptor struct {
	DeclaringType string
	MethodName    string
	ParamNames    []string // "" entries fall back to "arg<i>"
}

// Arg is one positional method argument to capture.
type Arg struct {
	Value interface{}
}

// ExceptionInput bundles everything 4.C's builder needs.
type ExceptionInput struct {
	Err      error
	Receiver interface{}
	Method   MethodDescriptor
	Args     []Arg
}

// BuildException composes a model.ExceptionCapture per spec §4.C: stack
// trace, method-argument map, receiver-field map, and fingerprint.
func BuildException(in ExceptionInput, lim Limits) *model.ExceptionCapture {
	ec := &model.ExceptionCapture{
		ID:              uuid.New().String(),
		ExceptionType:   exceptionTypeName(in.Err),
		Message:         in.Err.Error(),
		CapturedAt:      time.Now().UTC().Format(time.RFC3339),
		LocalVariables:  map[string]*model.CapturedValue{},
		MethodArguments: map[string]*model.CapturedValue{},
	}

	frames := framesOf(in.Err)
	if len(frames) > model.MaxStackFrames {
		frames = frames[:model.MaxStackFrames]
	}
	ec.StackTrace = frames

	order := make([]string, 0, len(in.Args))
	for i, a := range in.Args {
		name := fmt.Sprintf("arg%d", i)
		if i < len(in.Method.ParamNames) && in.Method.ParamNames[i] != "" {
			name = in.Method.ParamNames[i]
		}
		ec.MethodArguments[name] = Value(name, a.Value, 0, lim)
		order = append(order, name)
	}
	ec.SetMethodArgumentOrder(order)

	if in.Receiver != nil {
		captureReceiverFields(ec, in.Receiver, lim)
	}

	ec.Fingerprint = fingerprint(in.Err, in.Method, frames)
	return ec
}

func exceptionTypeName(err error) string {
	t := reflect.TypeOf(err)
	if t == nil {
		return "error"
	}
	if t.Kind() == reflect.Ptr {
		return "*" + t.Elem().String()
	}
	return t.String()
}

func framesOf(err error) []model.StackFrame {
	if t, ok := err.(Throwable); ok {
		return append([]model.StackFrame(nil), t.Frames()...)
	}
	// No attached trace: fall back to the stack at the point the agent
	// observed the exception, per §9 "exception propagation -> value-level
	// signal" — absence of a native trace degrades gracefully rather than
	// failing the capture.
	return CaptureStack(1, model.MaxStackFrames)
}

func captureReceiverFields(ec *model.ExceptionCapture, receiver interface{}, lim Limits) {
	root := Value("this", receiver, 0, lim)
	for name, child := range root.Children {
		ec.LocalVariables["this."+name] = child
	}
}

// fingerprint is the first 16 hex chars of SHA-256 over
// "<type>:<declaring>.<method>(:<frame.class>.<frame.method>:<line>){0..5}"
// computed over the first 5 frames, per §4.C. Hash failure is not possible
// with SHA-256 over an in-memory string, but a fresh random id is produced
// on any unexpected panic so capture never fails because of fingerprinting.
func fingerprint(err error, method MethodDescriptor, frames []model.StackFrame) (fp string) {
	defer func() {
		if recover() != nil {
			fp = uuid.New().String()[:16]
		}
	}()

	buf := exceptionTypeName(err) + ":" + method.DeclaringType + "." + method.MethodName
	n := len(frames)
	if n > 5 {
		n = 5
	}
	for i := 0; i < n; i++ {
		buf += fmt.Sprintf(":%s.%s:%d", frames[i].ClassName, frames[i].MethodName, frames[i].LineNumber)
	}

	sum := sha256.Sum256([]byte(buf))
	return hex.EncodeToString(sum[:])[:16]
}
