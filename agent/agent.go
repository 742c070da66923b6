// Package agent wires the capture pipeline, interception controller,
// breakpoint registry, transport controller, and diagnostics server into a
// single process-wide context, injected once at startup and passed to every
// instrumentation site — the re-architected replacement for
// AIVoryAgent.java's static singleton fields (config/connection/
// breakpointManager), per spec §9's "global agent singletons → explicit
// context" design note.
package agent

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"runtime"
	"time"

	"github.com/aivorynet/agent-go/breakpoint"
	"github.com/aivorynet/agent-go/capture"
	"github.com/aivorynet/agent-go/config"
	"github.com/aivorynet/agent-go/diagnostics"
	"github.com/aivorynet/agent-go/intercept"
	"github.com/aivorynet/agent-go/policy"
	"github.com/aivorynet/agent-go/transport"
)

// Agent is the top-level handle an embedding host holds for the lifetime of
// the monitored process.
type Agent struct {
	Config     *config.Config
	Policy     *policy.Engine
	Breakpoints *breakpoint.Registry
	Transport  *transport.Controller
	Intercept  *intercept.Controller
	diagnostics *diagnostics.Server
	nativeDedup *nativeDedup
}

// Options configures Start beyond what Config covers.
type Options struct {
	AgentArgs      string
	Properties     map[string]string
	Reinstrumenter breakpoint.Reinstrumenter
	DiagnosticsAddr string // empty disables the diagnostics server.
}

// Start resolves configuration, constructs every component, dials the
// backend, and (if DiagnosticsAddr is set) starts the local diagnostics
// server. It mirrors AIVoryAgent.initialize's sequencing: parse config,
// validate API key, build the breakpoint manager, connect, then (in the
// Go port) there is no bytecode installation step — the host
// instrumentation collaborator calls back into the returned Agent.
func Start(ctx context.Context, opts Options) (*Agent, error) {
	cfg := config.Load(opts.AgentArgs, opts.Properties, os.Getenv)

	log.Printf("aivory: starting agent %s backend=%s environment=%s debug=%v",
		cfg.AgentID, cfg.BackendURL, cfg.Environment, cfg.Debug)
	log.Printf("aivory: include=%v exclude=%v", cfg.IncludePatterns, cfg.ExcludePatterns)

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("aivory: API key not set; set AIVORY_API_KEY or pass apikey= in agent args")
	}

	eng, err := policy.NewEngine(ctx, cfg.IncludePatterns, cfg.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("aivory: building coverage policy: %w", err)
	}

	registry := breakpoint.NewRegistry(opts.Reinstrumenter)
	controller := transport.NewController(cfg, "go", runtime.Version(), registry)
	interceptor := intercept.NewController(cfg, controller)

	a := &Agent{
		Config:      cfg,
		Policy:      eng,
		Breakpoints: registry,
		Transport:   controller,
		Intercept:   interceptor,
		nativeDedup: newNativeDedup(),
	}

	if err := controller.Connect(); err != nil {
		log.Printf("aivory: initial connect failed, will retry in background: %v", err)
	}

	if opts.DiagnosticsAddr != "" {
		a.diagnostics = diagnostics.NewServer(statusAdapter{a})
		go func() {
			if err := a.diagnostics.Start(opts.DiagnosticsAddr); err != nil {
				log.Printf("aivory: diagnostics server stopped: %v", err)
			}
		}()
	}

	log.Printf("aivory: agent initialized successfully")
	return a, nil
}

// Stop runs the shutdown sequence described in §5: disconnect the
// transport (which in turn stops the heartbeat and cancels any pending
// reconnect) and stop the diagnostics server.
func (a *Agent) Stop() {
	if a.diagnostics != nil {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.diagnostics.Shutdown(shutCtx)
	}
	a.Transport.Disconnect()
}

// Covered reports whether className is in scope for instrumentation,
// per the host bytecode-instrumentation collaborator's coverage-selection
// contract (§6). The host collaborator is expected to consult this before
// installing or invoking an interception point.
func (a *Agent) Covered(ctx context.Context, className string) bool {
	covered, err := a.Policy.Covered(ctx, className)
	if err != nil {
		log.Printf("aivory: coverage check failed for %s: %v", className, err)
		return false
	}
	return covered
}

// OnExceptionExit is the host bytecode-instrumentation collaborator's entry
// point, invoked on method exit with a pending throwable (§6, §4.E).
func (a *Agent) OnExceptionExit(err error, receiver interface{}, method capture.MethodDescriptor, args []capture.Arg) {
	if err == nil {
		return
	}
	a.Intercept.OnExceptionExit(capture.ExceptionInput{
		Err:      err,
		Receiver: receiver,
		Method:   method,
		Args:     args,
	})
}

// OnBreakpointHit is the host bytecode-instrumentation collaborator's entry
// point at a probed program location (§6, §4.F).
func (a *Agent) OnBreakpointHit(className string, lineNumber int, receiver interface{}, args []capture.Arg) {
	rec, ok := a.Breakpoints.Hit(className, lineNumber)
	if !ok {
		return
	}

	lim := capture.Limits{MaxDepth: a.Config.MaxCaptureDepth, MaxStringLength: a.Config.MaxStringLength, MaxCollectionSize: a.Config.MaxCollectionSize}
	bc := capture.BuildBreakpoint(capture.BreakpointInput{
		BreakpointID: rec.ID,
		ClassName:    className,
		LineNumber:   lineNumber,
		Receiver:     receiver,
		Args:         args,
	}, lim)

	a.Transport.SendBreakpointHit(rec.ID, bc)
}

// OnNativeException is the native subagent collaborator's entry point
// (§6): variablesJSON is parsed opaquely and attached as local_variables,
// with per-frame groups lifted into the corresponding frame's Locals.
func (a *Agent) OnNativeException(location string, variablesJSON string, err error) {
	if err == nil {
		return
	}

	identity, ok := capture.ErrorIdentity(err)
	if !ok {
		identity = err.Error()
	}
	if !a.nativeDedup.allow(identity) {
		return
	}

	if !a.Config.ShouldSample(rand.Float64) {
		return
	}

	ec := capture.BuildNativeException(err, location, variablesJSON, capture.Limits{
		MaxDepth:          a.Config.MaxCaptureDepth,
		MaxStringLength:   a.Config.MaxStringLength,
		MaxCollectionSize: a.Config.MaxCollectionSize,
	})
	if a.Config.Debug {
		log.Printf("aivory: native exception captured at %s, %d stack frames", location, len(ec.StackTrace))
	}
	a.Transport.SendException(ec)
}

// statusAdapter exposes the fields diagnostics.StatusSource needs without
// leaking agent's full surface into that package.
type statusAdapter struct{ a *Agent }

func (s statusAdapter) Authenticated() bool    { return s.a.Transport.IsAuthenticated() }
func (s statusAdapter) QueueDepth() int        { return s.a.Transport.QueueDepth() }
func (s statusAdapter) BreakpointCount() int   { return s.a.Breakpoints.Count() }
func (s statusAdapter) AgentID() string        { return s.a.Config.AgentID }
