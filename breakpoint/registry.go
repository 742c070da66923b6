// Package breakpoint stores server-installed non-breaking probes (§4.F) and
// dispatches hits into a capture, the way hub.Hub keeps a concurrent
// connection registry in the teacher repo — here keyed by breakpoint id and
// by "<class>:<line>" instead of by connection id and session.
package breakpoint

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/aivorynet/agent-go/model"
)

// Reinstrumenter requests that a class be (re)transformed so the host
// bytecode-instrumentation collaborator starts invoking on_hit at the
// probed location. It is an opaque external effect from this package's
// point of view — the concrete implementation lives with the host
// collaborator integration.
type Reinstrumenter interface {
	RequestReinstrument(className string)
}

// NoopReinstrumenter satisfies Reinstrumenter when no host collaborator is
// wired, e.g. in tests or the demo harness.
type NoopReinstrumenter struct{}

func (NoopReinstrumenter) RequestReinstrument(string) {}

// Registry maintains the two concurrent mappings described in §4.F: by id,
// and by "<class>:<line>", both pointing at the same *model.BreakpointRecord.
type Registry struct {
	mu       sync.RWMutex
	byID     map[string]*model.BreakpointRecord
	byLoc    map[string]*model.BreakpointRecord
	reinst   Reinstrumenter
}

// NewRegistry constructs an empty registry. reinst may be nil, in which
// case Set is a no-op with respect to re-instrumentation.
func NewRegistry(reinst Reinstrumenter) *Registry {
	if reinst == nil {
		reinst = NoopReinstrumenter{}
	}
	return &Registry{
		byID:   make(map[string]*model.BreakpointRecord),
		byLoc:  make(map[string]*model.BreakpointRecord),
		reinst: reinst,
	}
}

func locKey(className string, lineNumber int) string {
	return fmt.Sprintf("%s:%d", className, lineNumber)
}

// Set inserts a breakpoint under both keys and requests re-instrumentation
// of its class.
func (r *Registry) Set(id, className string, lineNumber int, condition string) *model.BreakpointRecord {
	rec := &model.BreakpointRecord{
		ID:         id,
		ClassName:  className,
		LineNumber: lineNumber,
		Condition:  condition,
	}

	r.mu.Lock()
	r.byID[id] = rec
	r.byLoc[locKey(className, lineNumber)] = rec
	r.mu.Unlock()

	r.reinst.RequestReinstrument(className)
	return rec
}

// Remove looks up a breakpoint by id and, if found, removes it from both
// mappings.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[id]
	if !ok {
		return false
	}
	delete(r.byID, id)
	delete(r.byLoc, locKey(rec.ClassName, rec.LineNumber))
	return true
}

// Lookup returns the breakpoint registered at (className, lineNumber), if any.
func (r *Registry) Lookup(className string, lineNumber int) (*model.BreakpointRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byLoc[locKey(className, lineNumber)]
	return rec, ok
}

// HasOther reports whether any breakpoint other than excludeID targets
// className — used to decide whether a class's instrumentation can be
// left in place as a no-op after the last breakpoint in it is removed.
func (r *Registry) HasOther(className, excludeID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.byID {
		if rec.ClassName == className && rec.ID != excludeID {
			return true
		}
	}
	return false
}

// Count returns the number of currently registered breakpoints.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Hit increments the hit counter for the breakpoint at (className,
// lineNumber) and returns its record, or (nil, false) if none is registered
// there. The condition field is stored but never evaluated, per §9.
func (r *Registry) Hit(className string, lineNumber int) (*model.BreakpointRecord, bool) {
	rec, ok := r.Lookup(className, lineNumber)
	if !ok {
		return nil, false
	}
	atomic.AddUint64(&rec.HitCount, 1)
	return rec, true
}
