package agent

import (
	"context"
	"testing"

	"github.com/aivorynet/agent-go/breakpoint"
	"github.com/aivorynet/agent-go/capture"
	"github.com/aivorynet/agent-go/config"
	"github.com/aivorynet/agent-go/intercept"
	"github.com/aivorynet/agent-go/policy"
	"github.com/aivorynet/agent-go/transport"
)

// newTestAgent builds an Agent from its constituent pieces without dialing
// any backend, exercising the same wiring Start performs minus the network
// hop — SendException/SendBreakpointHit only enqueue locally until Connect
// is called.
func newTestAgent(t *testing.T, samplingRate float64) *Agent {
	t.Helper()
	cfg := &config.Config{
		APIKey:            "test-key",
		SamplingRate:      samplingRate,
		MaxCaptureDepth:   10,
		MaxStringLength:   1000,
		MaxCollectionSize: 100,
		IncludePatterns:   []string{"*"},
	}

	eng, err := policy.NewEngine(context.Background(), cfg.IncludePatterns, cfg.ExcludePatterns)
	if err != nil {
		t.Fatalf("policy.NewEngine failed: %v", err)
	}

	registry := breakpoint.NewRegistry(nil)
	controller := transport.NewController(cfg, "go", "go1.25.5", registry)

	return &Agent{
		Config:      cfg,
		Policy:      eng,
		Breakpoints: registry,
		Transport:   controller,
		Intercept:   intercept.NewController(cfg, controller),
		nativeDedup: newNativeDedup(),
	}
}

func TestAgentCoveredRespectsIncludeExclude(t *testing.T) {
	a := newTestAgent(t, 1.0)
	if !a.Covered(context.Background(), "widget.Service") {
		t.Fatalf("expected widget.Service covered under wildcard include")
	}
	if a.Covered(context.Background(), "runtime.gopark") {
		t.Fatalf("expected runtime.gopark excluded by the agent-internal excludes")
	}
}

func TestAgentOnExceptionExitQueuesEnvelope(t *testing.T) {
	a := newTestAgent(t, 1.0)
	before := a.Transport.QueueDepth()

	a.OnExceptionExit(capture.Throw("boom"), nil, capture.MethodDescriptor{DeclaringType: "T", MethodName: "M"}, nil)

	if a.Transport.QueueDepth() != before+1 {
		t.Fatalf("expected one envelope queued, depth went from %d to %d", before, a.Transport.QueueDepth())
	}
}

func TestAgentOnExceptionExitNilErrorIsNoop(t *testing.T) {
	a := newTestAgent(t, 1.0)
	before := a.Transport.QueueDepth()

	a.OnExceptionExit(nil, nil, capture.MethodDescriptor{}, nil)

	if a.Transport.QueueDepth() != before {
		t.Fatalf("expected nil error to be a no-op, queue depth changed from %d to %d", before, a.Transport.QueueDepth())
	}
}

func TestAgentOnBreakpointHitRequiresRegisteredBreakpoint(t *testing.T) {
	a := newTestAgent(t, 1.0)
	before := a.Transport.QueueDepth()

	a.OnBreakpointHit("widget.Service", 42, nil, nil)
	if a.Transport.QueueDepth() != before {
		t.Fatalf("expected no capture for an unregistered breakpoint location")
	}

	a.Breakpoints.Set("bp1", "widget.Service", 42, "")
	a.OnBreakpointHit("widget.Service", 42, nil, nil)
	if a.Transport.QueueDepth() != before+1 {
		t.Fatalf("expected a capture once the breakpoint is registered")
	}
}

func TestAgentOnNativeExceptionDedupsWithinWindow(t *testing.T) {
	a := newTestAgent(t, 1.0)
	before := a.Transport.QueueDepth()

	err := capture.Throw("native boom")
	a.OnNativeException("widget.Service.Process", "{}", err)
	a.OnNativeException("widget.Service.Process", "{}", err)

	if a.Transport.QueueDepth() != before+1 {
		t.Fatalf("expected the second identical native callback within the dedup window to be dropped, queue depth %d", a.Transport.QueueDepth())
	}
}

func TestAgentOnNativeExceptionNilErrorIsNoop(t *testing.T) {
	a := newTestAgent(t, 1.0)
	before := a.Transport.QueueDepth()

	a.OnNativeException("loc", "{}", nil)

	if a.Transport.QueueDepth() != before {
		t.Fatalf("expected nil error to be a no-op")
	}
}
