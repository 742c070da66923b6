package transport

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/aivorynet/agent-go/config"
	"github.com/aivorynet/agent-go/model"
)

type fakeBreakpointSink struct {
	setCalls    []string
	removeCalls []string
}

func (f *fakeBreakpointSink) Set(id, className string, lineNumber int, condition string) *model.BreakpointRecord {
	f.setCalls = append(f.setCalls, id)
	return &model.BreakpointRecord{ID: id, ClassName: className, LineNumber: lineNumber, Condition: condition}
}

func (f *fakeBreakpointSink) Remove(id string) bool {
	f.removeCalls = append(f.removeCalls, id)
	return true
}

func newTestController(sink BreakpointSink) *Controller {
	return NewController(&config.Config{AgentID: "agent-1", Environment: "test"}, "go", "go1.25.5", sink)
}

func TestEnqueueDropsWhenQueueFull(t *testing.T) {
	c := newTestController(nil)
	for i := 0; i < sendQueueCapacity; i++ {
		c.enqueue(Envelope{Type: "x"})
	}
	if c.QueueDepth() != sendQueueCapacity {
		t.Fatalf("expected queue full at %d, got %d", sendQueueCapacity, c.QueueDepth())
	}
	c.enqueue(Envelope{Type: "overflow"})
	if c.QueueDepth() != sendQueueCapacity {
		t.Fatalf("expected overflow envelope dropped, queue depth still %d, got %d", sendQueueCapacity, c.QueueDepth())
	}
}

func TestHandleMessageRegisteredAuthenticates(t *testing.T) {
	c := newTestController(nil)
	if c.IsAuthenticated() {
		t.Fatalf("expected not authenticated before registered message")
	}

	data, _ := json.Marshal(Envelope{Type: TypeRegistered})
	c.handleMessage(data)

	if !c.IsAuthenticated() {
		t.Fatalf("expected authenticated after registered message")
	}
	c.stopHeartbeat()
}

func TestHandleSetBreakpointDispatchesToSink(t *testing.T) {
	sink := &fakeBreakpointSink{}
	c := newTestController(sink)

	payload, _ := json.Marshal(SetBreakpointPayload{ID: "bp1", ClassName: "widget.Service", LineNumber: 42})
	env, _ := json.Marshal(Envelope{Type: TypeSetBreakpoint, Payload: payload})
	c.handleMessage(env)

	if len(sink.setCalls) != 1 || sink.setCalls[0] != "bp1" {
		t.Fatalf("expected Set dispatched for bp1, got %v", sink.setCalls)
	}
}

func TestHandleSetBreakpointDropsMalformedPayload(t *testing.T) {
	sink := &fakeBreakpointSink{}
	c := newTestController(sink)

	payload, _ := json.Marshal(SetBreakpointPayload{ClassName: "widget.Service"})
	env, _ := json.Marshal(Envelope{Type: TypeSetBreakpoint, Payload: payload})
	c.handleMessage(env)

	if len(sink.setCalls) != 0 {
		t.Fatalf("expected malformed (missing id) set_breakpoint command to be dropped, got %v", sink.setCalls)
	}
}

func TestHandleRemoveBreakpointDispatchesToSink(t *testing.T) {
	sink := &fakeBreakpointSink{}
	c := newTestController(sink)

	payload, _ := json.Marshal(RemoveBreakpointPayload{ID: "bp1"})
	env, _ := json.Marshal(Envelope{Type: TypeRemoveBreakpoint, Payload: payload})
	c.handleMessage(env)

	if len(sink.removeCalls) != 1 || sink.removeCalls[0] != "bp1" {
		t.Fatalf("expected Remove dispatched for bp1, got %v", sink.removeCalls)
	}
}

func TestHandleErrorTerminalCodeStopsReconnecting(t *testing.T) {
	c := newTestController(nil)

	payload, _ := json.Marshal(ErrorPayload{Code: ErrorCodeInvalidAPIKey, Message: "bad key"})
	env, _ := json.Marshal(Envelope{Type: TypeError, Payload: payload})
	c.handleMessage(env)

	if c.shouldReconnect.Load() {
		t.Fatalf("expected terminal auth error to clear shouldReconnect")
	}
	if c.getState() != stateClosed {
		t.Fatalf("expected state closed after terminal error, got %v", c.getState())
	}
}

func TestHandleErrorNonTerminalCodeKeepsReconnecting(t *testing.T) {
	c := newTestController(nil)

	payload, _ := json.Marshal(ErrorPayload{Code: "rate_limited", Message: "slow down"})
	env, _ := json.Marshal(Envelope{Type: TypeError, Payload: payload})
	c.handleMessage(env)

	if !c.shouldReconnect.Load() {
		t.Fatalf("expected non-terminal error to leave shouldReconnect set")
	}
}

func TestScheduleReconnectGivesUpAfterMaxAttempts(t *testing.T) {
	c := newTestController(nil)
	c.reconnectAttempts.Store(int32(maxReconnectAttempts))

	c.scheduleReconnect()

	if c.reconnectTimer != nil {
		t.Fatalf("expected no reconnect timer scheduled once max attempts exhausted")
	}
}

func TestScheduleReconnectNoopWhenShouldReconnectFalse(t *testing.T) {
	c := newTestController(nil)
	c.shouldReconnect.Store(false)

	c.scheduleReconnect()

	if c.reconnectAttempts.Load() != 0 {
		t.Fatalf("expected reconnect attempts untouched when shouldReconnect is false")
	}
	if c.reconnectTimer != nil {
		t.Fatalf("expected no reconnect timer when shouldReconnect is false")
	}
}

func TestAuthenticateQueuesOnRegisterLane(t *testing.T) {
	c := newTestController(nil)
	c.authenticate()

	select {
	case env := <-c.registerQueue:
		if env.Type != TypeRegister {
			t.Fatalf("expected a register envelope on the priority lane, got %q", env.Type)
		}
	default:
		t.Fatalf("expected authenticate to place a register envelope on registerQueue")
	}
}

func TestAuthenticateReplacesStaleRegister(t *testing.T) {
	c := newTestController(nil)
	c.authenticate()
	c.authenticate()

	if len(c.registerQueue) != 1 {
		t.Fatalf("expected a second authenticate call to replace, not pile up behind, the first, got %d queued", len(c.registerQueue))
	}
}

func TestStopHeartbeatConcurrentCallersNeverDoubleClose(t *testing.T) {
	// A panicking close(c.heartbeatStop) inside one of the goroutines below
	// would crash the whole test binary (a panic on a non-test goroutine is
	// unrecoverable from here) — the absence of that crash is the assertion.
	c := newTestController(nil)
	c.startHeartbeat()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.stopHeartbeat()
		}()
	}
	wg.Wait()
}
