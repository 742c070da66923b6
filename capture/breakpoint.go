package capture

import (
	"fmt"
	"time"

	"github.com/aivorynet/agent-go/model"
)

// agentInternalPrefixes names the package paths stripped from the leading
// edge of a breakpoint's stack trace — the agent's own call frames and the
// goroutine-introspection machinery used to capture them, neither of which
// is useful to a developer looking at a breakpoint hit.
var agentInternalPrefixes = []string{
	"github.com/aivorynet/agent-go/agent",
	"github.com/aivorynet/agent-go/capture",
	"github.com/aivorynet/agent-go/intercept",
	"github.com/aivorynet/agent-go/breakpoint",
	"runtime",
}

// BreakpointInput bundles what's available at a non-breaking breakpoint hit.
type BreakpointInput struct {
	BreakpointID string
	ClassName    string
	LineNumber   int
	Receiver     interface{}
	Args         []Arg
}

// BuildBreakpoint composes a model.BreakpointCapture per spec §4.D: the
// current goroutine's stack with agent-internal frames stripped, the
// receiver's fields keyed "this.<field>", and positional arguments keyed
// "arg<i>".
func BuildBreakpoint(in BreakpointInput, lim Limits) *model.BreakpointCapture {
	bc := &model.BreakpointCapture{
		BreakpointID:   in.BreakpointID,
		ClassName:      in.ClassName,
		LineNumber:     in.LineNumber,
		CapturedAt:     time.Now().UTC().Format(time.RFC3339),
		LocalVariables: map[string]*model.CapturedValue{},
	}

	frames := CaptureStack(1, model.MaxStackFrames+len(agentInternalPrefixes)+4)
	frames = FramesExcludingPrefixes(frames, agentInternalPrefixes...)
	if len(frames) > model.MaxStackFrames {
		frames = frames[:model.MaxStackFrames]
	}
	bc.StackTrace = frames

	if in.Receiver != nil {
		root := Value("this", in.Receiver, 0, lim)
		for name, child := range root.Children {
			bc.LocalVariables["this."+name] = child
		}
	}

	for i, a := range in.Args {
		name := fmt.Sprintf("arg%d", i)
		bc.LocalVariables[name] = Value(name, a.Value, 0, lim)
	}

	return bc
}
