package capture

import (
	"runtime"
	"strings"

	"github.com/aivorynet/agent-go/model"
)

// Throwable is the Go-native analogue of a language throwable that carries
// its own attached stack trace, captured at the point it was raised — the
// idiomatic replacement for a runtime that fills in a stack trace at
// construction time (as the JVM does for java.lang.Throwable). Application
// code that wants full-fidelity stack traces wraps errors with Throw/Wrap;
// plain errors still work, falling back to the stack at interception time.
type Throwable interface {
	error
	Frames() []model.StackFrame
}

type tracedError struct {
	msg    string
	cause  error
	frames []model.StackFrame
}

func (t *tracedError) Error() string {
	if t.cause != nil {
		return t.msg + ": " + t.cause.Error()
	}
	return t.msg
}

func (t *tracedError) Unwrap() error { return t.cause }

func (t *tracedError) Frames() []model.StackFrame { return t.frames }

// Throw creates a new Throwable carrying the stack at the call site.
func Throw(msg string) error {
	return &tracedError{msg: msg, frames: CaptureStack(1, model.MaxStackFrames)}
}

// Wrap attaches the current call-site stack to an existing error, unless it
// already carries one.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(Throwable); ok {
		return err
	}
	return &tracedError{msg: err.Error(), cause: err, frames: CaptureStack(1, model.MaxStackFrames)}
}

// CaptureStack walks the calling goroutine's stack via runtime.Callers,
// skipping `skip` frames above the caller of CaptureStack itself, and
// returns up to max model.StackFrame entries.
func CaptureStack(skip int, max int) []model.StackFrame {
	pcs := make([]uintptr, max+skip+2)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return nil
	}
	framesIter := runtime.CallersFrames(pcs[:n])

	frames := make([]model.StackFrame, 0, max)
	for len(frames) < max {
		f, more := framesIter.Next()
		frames = append(frames, model.StackFrame{
			ClassName:  packagePath(f.Function),
			MethodName: shortFunc(f.Function),
			FileName:   baseName(f.File),
			FilePath:   f.File,
			LineNumber: f.Line,
			IsNative:   f.File == "",
		})
		if !more {
			break
		}
	}
	return frames
}

// FramesExcludingPrefixes drops the leading run of frames whose ClassName
// has one of the given prefixes — used by the breakpoint builder (§4.D) to
// strip agent-internal and runtime-scaffold frames before keeping the next
// 50, mirroring "drop all leading frames whose class name belongs to the
// agent's own namespace or the runtime's thread-introspection classes".
func FramesExcludingPrefixes(frames []model.StackFrame, prefixes ...string) []model.StackFrame {
	i := 0
	for i < len(frames) {
		matched := false
		for _, p := range prefixes {
			if strings.HasPrefix(frames[i].ClassName, p) {
				matched = true
				break
			}
		}
		if !matched {
			break
		}
		i++
	}
	return frames[i:]
}

func packagePath(function string) string {
	// function looks like "github.com/aivorynet/agent-go/intercept.(*Controller).OnExceptionExit"
	lastSlash := strings.LastIndex(function, "/")
	rest := function
	if lastSlash >= 0 {
		rest = function[lastSlash+1:]
	}
	if dot := strings.Index(rest, "."); dot >= 0 {
		pkg := rest[:dot]
		if lastSlash >= 0 {
			return function[:lastSlash+1] + pkg
		}
		return pkg
	}
	return function
}

func shortFunc(function string) string {
	if dot := strings.LastIndex(function, "."); dot >= 0 {
		return function[dot+1:]
	}
	return function
}

func baseName(path string) string {
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[idx+1:]
	}
	return path
}
