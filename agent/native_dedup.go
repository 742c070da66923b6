package agent

import (
	"sync"
	"time"
)

// nativeDedupWindow is the 100 ms window within which the native subagent
// path drops a repeat callback for the same exception identity, mirroring
// JVMTICallback's recentExceptions map. Pruned opportunistically once it
// grows past 1000 entries, per spec §4.E / §5.
const (
	nativeDedupWindow   = 100 * time.Millisecond
	nativeDedupPruneAt  = 1000
)

type nativeDedup struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func newNativeDedup() *nativeDedup {
	return &nativeDedup{seen: make(map[string]time.Time)}
}

// allow reports whether identity has NOT been seen within the dedup window.
// Only an allowed identity has its seen-time recorded; a dropped repeat
// leaves the earlier timestamp in place.
func (d *nativeDedup) allow(identity string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if last, ok := d.seen[identity]; ok && now.Sub(last) < nativeDedupWindow {
		return false
	}
	d.seen[identity] = now

	if len(d.seen) > nativeDedupPruneAt {
		for k, t := range d.seen {
			if now.Sub(t) > nativeDedupWindow*10 {
				delete(d.seen, k)
			}
		}
	}
	return true
}
