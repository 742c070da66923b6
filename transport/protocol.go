// Package transport implements the duplex session to the backend (§4.G):
// wire envelopes, connection lifecycle, the bounded send queue, heartbeat,
// and reconnection backoff. Modeled on cli/main.go's client-side dial and
// ingress/internal/ws/server.go's read/write pump pattern, adapted so the
// agent is the dialing side rather than the accepting side.
package transport

import (
	"encoding/json"

	"github.com/aivorynet/agent-go/config"
	"github.com/aivorynet/agent-go/model"
)

// Outbound envelope types (§4.G / §6).
const (
	TypeRegister      = "register"
	TypeHeartbeat     = "heartbeat"
	TypeException     = "exception"
	TypeBreakpointHit = "breakpoint_hit"
)

// Inbound command types (§4.G / §6).
const (
	TypeRegistered      = "registered"
	TypeError           = "error"
	TypeSetBreakpoint   = "set_breakpoint"
	TypeRemoveBreakpoint = "remove_breakpoint"
	TypeConfigure        = "configure"
)

// Error codes that terminate reconnection (§4.G / §7).
const (
	ErrorCodeAuthError      = "auth_error"
	ErrorCodeInvalidAPIKey  = "invalid_api_key"
)

// Envelope is the wire shape of every frame: {type, payload, timestamp}.
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

// RegisterPayload is the → register payload.
type RegisterPayload struct {
	APIKey         string                 `json:"api_key"`
	AgentID        string                 `json:"agent_id"`
	Hostname       string                 `json:"hostname"`
	Runtime        string                 `json:"runtime"`
	RuntimeVersion string                 `json:"runtime_version"`
	AgentVersion   string                 `json:"agent_version"`
	Environment    string                 `json:"environment"`
	GitContext     *config.ReleaseContext `json:"git_context,omitempty"`
}

// HeartbeatPayload is the → heartbeat payload.
type HeartbeatPayload struct {
	Timestamp int64  `json:"timestamp"`
	AgentID   string `json:"agent_id"`
}

// ExceptionPayload is the → exception payload: an ExceptionCapture
// flattened to the wire schema in §6, with transport-level identity fields
// and the first frame's location lifted to the top level.
type ExceptionPayload struct {
	ExceptionType   string                           `json:"exception_type"`
	Message         string                           `json:"message"`
	Fingerprint     string                           `json:"fingerprint"`
	StackTrace      []model.StackFrame               `json:"stack_trace"`
	LocalVariables  map[string]*model.CapturedValue  `json:"local_variables"`
	MethodArguments map[string]*model.CapturedValue  `json:"method_arguments"`
	CapturedAt      string                           `json:"captured_at"`
	AgentID         string                           `json:"agent_id"`
	Environment     string                           `json:"environment"`
	Runtime         string                           `json:"runtime"`
	RuntimeVersion  string                           `json:"runtime_version"`
	FilePath        string                           `json:"file_path,omitempty"`
	FileName        string                           `json:"file_name,omitempty"`
	LineNumber      int                              `json:"line_number,omitempty"`
	MethodName      string                           `json:"method_name,omitempty"`
	ClassName       string                           `json:"class_name,omitempty"`
	GitContext      *config.ReleaseContext           `json:"git_context,omitempty"`
}

// BreakpointHitPayload is the → breakpoint_hit payload.
type BreakpointHitPayload struct {
	BreakpointID   string                          `json:"breakpoint_id"`
	AgentID        string                          `json:"agent_id"`
	CapturedAt     string                          `json:"captured_at"`
	LocalVariables map[string]*model.CapturedValue `json:"local_variables"`
	StackTrace     []model.StackFrame              `json:"stack_trace"`
}

// ErrorPayload is the ← error payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SetBreakpointPayload is the ← set_breakpoint payload.
type SetBreakpointPayload struct {
	ID         string `json:"id"`
	ClassName  string `json:"class_name"`
	LineNumber int    `json:"line_number"`
	Condition  string `json:"condition,omitempty"`
}

// RemoveBreakpointPayload is the ← remove_breakpoint payload.
type RemoveBreakpointPayload struct {
	ID string `json:"id"`
}

// ExceptionPayloadFromCapture flattens an ExceptionCapture into the wire
// schema, lifting the first frame's location to the top level per §6.
func ExceptionPayloadFromCapture(ec *model.ExceptionCapture, agentID, environment, runtime, runtimeVersion string, git *config.ReleaseContext) ExceptionPayload {
	p := ExceptionPayload{
		ExceptionType:   ec.ExceptionType,
		Message:         ec.Message,
		Fingerprint:     ec.Fingerprint,
		StackTrace:      ec.StackTrace,
		LocalVariables:  ec.LocalVariables,
		MethodArguments: ec.MethodArguments,
		CapturedAt:      ec.CapturedAt,
		AgentID:         agentID,
		Environment:     environment,
		Runtime:         runtime,
		RuntimeVersion:  runtimeVersion,
		GitContext:      git,
	}
	if len(ec.StackTrace) > 0 {
		f := ec.StackTrace[0]
		p.FilePath = f.FilePath
		p.FileName = f.FileName
		p.LineNumber = f.LineNumber
		p.MethodName = f.MethodName
		p.ClassName = f.ClassName
	}
	return p
}
