// Package intercept implements the interception controller (§4.E): the
// policy layer deciding when a capture is produced. It realizes the
// source's per-thread ThreadLocal guards (ExceptionInterceptor.java's
// INTERCEPTING / LAST_EXCEPTION_HASH) as goroutine-local state, keyed by a
// lightweight goroutine id parsed from runtime.Stack — Go has no native
// thread-local storage.
package intercept

import (
	"bytes"
	"log"
	"math/rand"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/aivorynet/agent-go/capture"
	"github.com/aivorynet/agent-go/config"
	"github.com/aivorynet/agent-go/model"
)

// ExceptionSink receives a built exception capture for transmission; it is
// satisfied by *transport.Controller.
type ExceptionSink interface {
	SendException(*model.ExceptionCapture)
}

// goroutineStatePruneAt/goroutineStateIdleWindow bound the goroutine-state
// map: goroutines die without ever telling the controller, so without
// eviction every goroutine that has ever thrown leaves a permanent entry.
// Mirrors the native-dedup map's opportunistic pruning (agent.nativeDedup).
const (
	goroutineStatePruneAt    = 1000
	goroutineStateIdleWindow = 10 * time.Minute
)

// goroutineState mirrors ExceptionInterceptor's ThreadLocals: whether this
// goroutine is currently inside the capture path, and the identity of the
// last exception instance it captured.
type goroutineState struct {
	intercepting          bool
	lastExceptionIdentity string
	lastAccess            time.Time
}

// Controller gates capture production: recursion guard, per-instance
// dedup, sampling, and include/exclude coverage (delegated to the caller —
// the host bytecode-instrumentation collaborator is expected to have
// already consulted policy.Engine before invoking OnExceptionExit, per
// spec §6).
type Controller struct {
	cfg   *config.Config
	sink  ExceptionSink
	limits capture.Limits

	mu     sync.Mutex
	states map[int64]*goroutineState
}

// NewController constructs an interception controller bound to cfg and a
// transport sink.
func NewController(cfg *config.Config, sink ExceptionSink) *Controller {
	return &Controller{
		cfg:    cfg,
		sink:   sink,
		limits: capture.Limits{MaxDepth: cfg.MaxCaptureDepth, MaxStringLength: cfg.MaxStringLength, MaxCollectionSize: cfg.MaxCollectionSize},
		states: make(map[int64]*goroutineState),
	}
}

func (c *Controller) stateFor(gid int64) *goroutineState {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	s, ok := c.states[gid]
	if !ok {
		s = &goroutineState{}
		c.states[gid] = s
	}
	s.lastAccess = now

	if len(c.states) > goroutineStatePruneAt {
		for k, st := range c.states {
			if k != gid && now.Sub(st.lastAccess) > goroutineStateIdleWindow {
				delete(c.states, k)
			}
		}
	}
	return s
}

// OnExceptionExit is the entry point invoked on method exit when an
// exception is propagating (§4.E steps 1-4). in.Err must be non-nil;
// callers check for an absent throwable before calling.
func (c *Controller) OnExceptionExit(in capture.ExceptionInput) {
	gid := goroutineID()
	state := c.stateFor(gid)

	if state.intercepting {
		return // recursion guard: never let serialization code re-enter capture.
	}

	identity := exceptionIdentity(in.Err)
	if identity == state.lastExceptionIdentity && identity != "" {
		return // same throwable already captured at an inner frame on this goroutine.
	}

	state.intercepting = true
	state.lastExceptionIdentity = identity
	defer func() {
		state.intercepting = false
		if r := recover(); r != nil {
			if c.cfg.Debug {
				log.Printf("aivory: interception swallowed panic: %v", r)
			}
		}
	}()

	if c.sink == nil {
		return
	}
	if !c.cfg.ShouldSample(rand.Float64) {
		return
	}

	ec := capture.BuildException(in, c.limits)
	if c.cfg.Debug {
		log.Printf("aivory: captured exception %s fingerprint=%s args=%d", ec.ExceptionType, ec.Fingerprint, len(ec.MethodArguments))
	}
	c.sink.SendException(ec)
}

// exceptionIdentity is the Go analogue of System.identityHashCode(throwable):
// the pointer address backing the error value when available, falling back
// to its message.
func exceptionIdentity(err error) string {
	if err == nil {
		return ""
	}
	if addr, ok := capture.ErrorIdentity(err); ok {
		return addr
	}
	return err.Error()
}

// goroutineID parses the current goroutine id out of runtime.Stack's header
// line ("goroutine 123 [running]:"), the cheapest way to get a per-goroutine
// key without cooperative task-local storage.
func goroutineID() int64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]

	const prefix = "goroutine "
	if !bytes.HasPrefix(buf, []byte(prefix)) {
		return 0
	}
	buf = buf[len(prefix):]
	end := bytes.IndexByte(buf, ' ')
	if end < 0 {
		return 0
	}
	id, err := strconv.ParseInt(string(buf[:end]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
