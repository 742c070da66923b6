// Package model defines the transport-facing records produced by the
// capture pipeline: CapturedValue, StackFrame, ExceptionCapture,
// BreakpointCapture, and the server-installed BreakpointRecord.
package model

// CapturedValue is a node in a bounded tree describing one in-memory value.
//
// Exactly one of Children or ArrayElements is populated for a non-scalar,
// non-null value. A struct, map, or sequence node at depth >= the configured
// max depth has no descendants and IsTruncated is true; scalars are rendered
// at any depth.
type CapturedValue struct {
	Name          string                   `json:"name"`
	Type          string                   `json:"type"`
	Value         string                   `json:"value"`
	IsNull        bool                     `json:"is_null"`
	IsTruncated   bool                     `json:"is_truncated"`
	Children      map[string]*CapturedValue `json:"children,omitempty"`
	ArrayElements []*CapturedValue          `json:"array_elements,omitempty"`
	ArrayLength   int                      `json:"array_length,omitempty"`
	HashCode      string                   `json:"hash_code,omitempty"`
}

// StackFrame is one frame of a captured call stack.
type StackFrame struct {
	ClassName      string                    `json:"class_name"`
	MethodName     string                    `json:"method_name"`
	FileName       string                    `json:"file_name,omitempty"`
	FilePath       string                    `json:"file_path,omitempty"`
	LineNumber     int                       `json:"line_number"`
	ColumnNumber   int                       `json:"column_number,omitempty"`
	IsNative       bool                      `json:"is_native"`
	LocalVariables map[string]*CapturedValue `json:"local_variables,omitempty"`
}

// SourceAvailable reports whether this frame has a usable file name and is
// not a native/runtime frame.
func (f StackFrame) SourceAvailable() bool {
	return f.FileName != "" && !f.IsNative
}

// MaxStackFrames bounds the number of frames kept in a captured stack trace.
const MaxStackFrames = 50

// ExceptionCapture is an immutable snapshot of a thrown exception's context.
type ExceptionCapture struct {
	ID              string                    `json:"id"`
	ExceptionType   string                    `json:"exception_type"`
	Message         string                    `json:"message"`
	Fingerprint     string                    `json:"fingerprint"`
	CapturedAt      string                    `json:"captured_at"`
	StackTrace      []StackFrame              `json:"stack_trace"`
	LocalVariables  map[string]*CapturedValue `json:"local_variables"`
	MethodArguments map[string]*CapturedValue `json:"method_arguments"`
	methodArgOrder  []string
}

// MethodArgumentOrder returns method argument names in capture order.
// ExceptionCapture.MethodArguments is a map for wire compatibility (§3); the
// order is preserved separately because spec §3 calls it an "ordered map".
func (e *ExceptionCapture) MethodArgumentOrder() []string {
	return e.methodArgOrder
}

// SetMethodArgumentOrder records capture order; used only by capture builders.
func (e *ExceptionCapture) SetMethodArgumentOrder(order []string) {
	e.methodArgOrder = order
}

// BreakpointCapture is a snapshot taken at a non-breaking breakpoint hit.
type BreakpointCapture struct {
	BreakpointID   string                    `json:"breakpoint_id"`
	ClassName      string                    `json:"class_name"`
	LineNumber     int                       `json:"line_number"`
	CapturedAt     string                    `json:"captured_at"`
	StackTrace     []StackFrame              `json:"stack_trace"`
	LocalVariables map[string]*CapturedValue `json:"local_variables"`
}

// BreakpointRecord is a server-installed, non-breaking probe.
//
// Condition is accepted and stored but never evaluated — spec §9 freezes
// this as a deliberate no-op; do not add an expression evaluator.
type BreakpointRecord struct {
	ID         string
	ClassName  string
	LineNumber int
	Condition  string
	HitCount   uint64
}
