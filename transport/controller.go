package transport

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aivorynet/agent-go/config"
	"github.com/aivorynet/agent-go/model"
)

const (
	sendQueueCapacity    = 1000
	maxReconnectAttempts = 10
	baseBackoff          = 1 * time.Second
	maxBackoff           = 60 * time.Second
	heartbeatInterval    = 30 * time.Second
	senderPollTimeout    = 1 * time.Second
	agentVersion         = "1.0.0"
)

// connState is the connection's lifecycle state (§4.G).
type connState int32

const (
	stateDisconnected connState = iota
	stateConnecting
	stateOpen
	stateAuthenticated
	stateClosed
)

// BreakpointSink receives inbound set/remove-breakpoint commands, decoupling
// the controller from the concrete breakpoint.Registry implementation.
type BreakpointSink interface {
	Set(id, className string, lineNumber int, condition string) *model.BreakpointRecord
	Remove(id string) bool
}

// Controller owns a single long-lived duplex session to the backend,
// modeled on BackendConnection.java: asynchronous authentication, a bounded
// outbound queue served by a dedicated sender, periodic heartbeats,
// exponential-backoff reconnection, and inbound command dispatch.
type Controller struct {
	cfg         *config.Config
	runtime     string
	runtimeVer  string
	breakpoints BreakpointSink

	// mu guards conn plus every field below that a goroutine other than the
	// sender touches concurrently (heartbeatStop, reconnectTimer). conn
	// itself is never written to directly outside the sender: all frames
	// — register, exception/breakpoint/heartbeat, and any future kind — flow
	// through queue/registerQueue so senderLoop is the single writer on the
	// socket, mirroring the teacher's single writePump goroutine.
	mu   sync.Mutex
	conn *websocket.Conn

	state             atomic.Int32
	shouldReconnect   atomic.Bool
	reconnectAttempts atomic.Int32

	queue         chan Envelope
	registerQueue chan Envelope

	senderDone     chan struct{}
	senderOnce     sync.Once
	heartbeatStop  chan struct{}
	reconnectTimer *time.Timer

	closeOnce sync.Once
	closed    chan struct{}
}

// NewController constructs a Controller. runtime/runtimeVer identify this
// agent build on the wire (e.g. "go", "go1.25.5").
func NewController(cfg *config.Config, runtime, runtimeVer string, breakpoints BreakpointSink) *Controller {
	c := &Controller{
		cfg:           cfg,
		runtime:       runtime,
		runtimeVer:    runtimeVer,
		breakpoints:   breakpoints,
		queue:         make(chan Envelope, sendQueueCapacity),
		registerQueue: make(chan Envelope, 1),
		closed:        make(chan struct{}),
	}
	c.shouldReconnect.Store(true)
	c.state.Store(int32(stateDisconnected))
	return c
}

func (c *Controller) setState(s connState) { c.state.Store(int32(s)) }
func (c *Controller) getState() connState  { return connState(c.state.Load()) }

// IsAuthenticated reports whether the session has completed registration.
func (c *Controller) IsAuthenticated() bool { return c.getState() == stateAuthenticated }

// QueueDepth reports the current outbound queue length, for diagnostics.
func (c *Controller) QueueDepth() int { return len(c.queue) }

// Connect dials the backend and starts the sender worker if not already
// running. DISCONNECTED → CONNECTING → OPEN.
func (c *Controller) Connect() error {
	c.setState(stateConnecting)
	c.startSender()

	conn, _, err := websocket.DefaultDialer.Dial(c.cfg.BackendURL, nil)
	if err != nil {
		c.setState(stateClosed)
		c.scheduleReconnect()
		return fmt.Errorf("aivory: dial backend: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.setState(stateOpen)
	c.authenticate()

	go c.readLoop(conn)
	return nil
}

// Disconnect performs the process-exit shutdown sequence (§5): clears
// should_reconnect, stops the heartbeat, cancels any pending reconnect,
// closes the socket, and drops queued envelopes. Stopping the sender is
// implicit: senderLoop returns once it observes the closed channel.
func (c *Controller) Disconnect() {
	c.closeOnce.Do(func() {
		c.shouldReconnect.Store(false)
		c.stopHeartbeat()
		c.cancelReconnect()

		c.mu.Lock()
		conn := c.conn
		c.conn = nil
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}

		c.setState(stateClosed)
		close(c.closed)
	})
}

// authenticate hands the register envelope to the sender's priority lane
// rather than writing to the socket itself: gorilla/websocket allows at most
// one concurrent writer per connection, and senderLoop is already the
// dedicated writer draining queue. Routing register through registerQueue
// keeps that single-writer invariant and guarantees it is transmitted ahead
// of anything already queued from a prior connection.
func (c *Controller) authenticate() {
	payload := RegisterPayload{
		APIKey:         c.cfg.APIKey,
		AgentID:        c.cfg.AgentID,
		Hostname:       c.cfg.Hostname,
		Runtime:        c.runtime,
		RuntimeVersion: c.runtimeVer,
		AgentVersion:   agentVersion,
		Environment:    c.cfg.Environment,
		GitContext:     c.cfg.ReleaseContext,
	}
	env := c.buildEnvelope(TypeRegister, payload)

	select {
	case c.registerQueue <- env:
	default:
		// a register from a still-unprocessed prior connection attempt is
		// sitting in the lane; replace it with this one, since only the
		// most recent dial's registration is meaningful.
		select {
		case <-c.registerQueue:
		default:
		}
		select {
		case c.registerQueue <- env:
		default:
			log.Printf("aivory: register queue full, dropping register envelope")
		}
	}
}

func (c *Controller) buildEnvelope(typ string, payload interface{}) Envelope {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = json.RawMessage("{}")
	}
	return Envelope{Type: typ, Payload: raw, Timestamp: time.Now().UnixMilli()}
}

// enqueue is the non-blocking FIFO offer described in §4.G: on a full
// queue the envelope is dropped with a warning, never applying
// back-pressure onto the capture path (§7, I7).
func (c *Controller) enqueue(env Envelope) {
	select {
	case c.queue <- env:
	default:
		log.Printf("aivory: send queue full (%d), dropping %s envelope", sendQueueCapacity, env.Type)
	}
}

// SendException enqueues an exception capture as a flattened wire envelope.
func (c *Controller) SendException(ec *model.ExceptionCapture) {
	payload := ExceptionPayloadFromCapture(ec, c.cfg.AgentID, c.cfg.Environment, c.runtime, c.runtimeVer, c.cfg.ReleaseContext)
	if c.cfg.Debug {
		log.Printf("aivory: sending exception %s frames=%d fingerprint=%s", ec.ExceptionType, len(ec.StackTrace), ec.Fingerprint)
	}
	c.enqueue(c.buildEnvelope(TypeException, payload))
}

// SendBreakpointHit enqueues a breakpoint capture as a wire envelope.
func (c *Controller) SendBreakpointHit(breakpointID string, bc *model.BreakpointCapture) {
	payload := BreakpointHitPayload{
		BreakpointID:   breakpointID,
		AgentID:        c.cfg.AgentID,
		CapturedAt:     bc.CapturedAt,
		LocalVariables: bc.LocalVariables,
		StackTrace:     bc.StackTrace,
	}
	c.enqueue(c.buildEnvelope(TypeBreakpointHit, payload))
}

// startSender starts the single dedicated sender goroutine, once.
func (c *Controller) startSender() {
	c.senderOnce.Do(func() {
		c.senderDone = make(chan struct{})
		go c.senderLoop()
	})
}

// senderLoop is the single goroutine permitted to write to conn — every
// envelope, register included, is transmitted from here so two writers
// never race on the same *websocket.Conn. registerQueue always drains
// before queue: a non-blocking check runs first each iteration so a pending
// register is never left behind earlier-queued envelopes from a previous
// connection. Mirrors BackendConnection's sender thread polling with a
// 1 s timeout.
func (c *Controller) senderLoop() {
	ticker := time.NewTicker(senderPollTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		default:
		}

		select {
		case env := <-c.registerQueue:
			c.transmit(env)
			continue
		default:
		}

		select {
		case <-c.closed:
			return
		case env := <-c.registerQueue:
			c.transmit(env)
		case env := <-c.queue:
			c.transmit(env)
		case <-ticker.C:
			// no envelope ready within the poll window; loop.
		}
	}
}

func (c *Controller) transmit(env Envelope) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	if err := conn.WriteJSON(env); err != nil {
		log.Printf("aivory: write failed: %v", err)
	}
}

func (c *Controller) startHeartbeat() {
	c.stopHeartbeat()
	stop := make(chan struct{})

	c.mu.Lock()
	c.heartbeatStop = stop
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-c.closed:
				return
			case <-ticker.C:
				if !c.IsAuthenticated() {
					return
				}
				c.enqueue(c.buildEnvelope(TypeHeartbeat, HeartbeatPayload{
					Timestamp: time.Now().UnixMilli(),
					AgentID:   c.cfg.AgentID,
				}))
			}
		}
	}()
}

// stopHeartbeat is called from handleClose (readLoop goroutine), Disconnect
// (caller goroutine), and startHeartbeat itself — all potentially
// concurrent. Swapping heartbeatStop to nil under c.mu before closing means
// at most one caller ever observes the non-nil channel, so only one close
// ever happens.
func (c *Controller) stopHeartbeat() {
	c.mu.Lock()
	stop := c.heartbeatStop
	c.heartbeatStop = nil
	c.mu.Unlock()

	if stop != nil {
		close(stop)
	}
}

// readLoop is the socket reader: the transport library's inbound thread,
// invoking the inbound dispatcher on each received text frame.
func (c *Controller) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose()
			return
		}
		c.handleMessage(data)
	}
}

func (c *Controller) handleClose() {
	c.setState(stateClosed)
	c.stopHeartbeat()
	if c.shouldReconnect.Load() {
		c.scheduleReconnect()
	}
}

func (c *Controller) handleMessage(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("aivory: malformed inbound frame: %v", err)
		return
	}

	switch env.Type {
	case TypeRegistered:
		c.setState(stateAuthenticated)
		c.reconnectAttempts.Store(0)
		c.startHeartbeat()
	case TypeError:
		c.handleError(env.Payload)
	case TypeSetBreakpoint:
		c.handleSetBreakpoint(env.Payload)
	case TypeRemoveBreakpoint:
		c.handleRemoveBreakpoint(env.Payload)
	case TypeConfigure:
		// reserved, no-op.
	default:
		// ignore unknown kinds.
	}
}

func (c *Controller) handleError(raw json.RawMessage) {
	var p ErrorPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Printf("aivory: malformed error payload: %v", err)
		return
	}
	if p.Code == ErrorCodeAuthError || p.Code == ErrorCodeInvalidAPIKey {
		log.Printf("aivory: terminal error %s: %s", p.Code, p.Message)
		c.shouldReconnect.Store(false)
		c.Disconnect()
		return
	}
	log.Printf("aivory: backend error %s: %s", p.Code, p.Message)
}

func (c *Controller) handleSetBreakpoint(raw json.RawMessage) {
	var p SetBreakpointPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.ID == "" || p.ClassName == "" {
		log.Printf("aivory: malformed set_breakpoint command, dropping")
		return
	}
	if c.breakpoints != nil {
		c.breakpoints.Set(p.ID, p.ClassName, p.LineNumber, p.Condition)
	}
}

func (c *Controller) handleRemoveBreakpoint(raw json.RawMessage) {
	var p RemoveBreakpointPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.ID == "" {
		log.Printf("aivory: malformed remove_breakpoint command, dropping")
		return
	}
	if c.breakpoints != nil {
		c.breakpoints.Remove(p.ID)
	}
}

// scheduleReconnect schedules a reconnect attempt with exponential backoff,
// capped at maxReconnectAttempts, per §4.G / I9.
func (c *Controller) scheduleReconnect() {
	if !c.shouldReconnect.Load() {
		return
	}
	attempt := c.reconnectAttempts.Add(1)
	if attempt > maxReconnectAttempts {
		log.Printf("aivory: reconnect attempts exhausted (%d), giving up", maxReconnectAttempts)
		return
	}

	delay := baseBackoff * time.Duration(1<<uint(attempt-1))
	if delay > maxBackoff {
		delay = maxBackoff
	}

	c.cancelReconnect()
	timer := time.AfterFunc(delay, func() {
		if err := c.Connect(); err != nil {
			log.Printf("aivory: reconnect attempt %d failed: %v", attempt, err)
		}
	})

	c.mu.Lock()
	c.reconnectTimer = timer
	c.mu.Unlock()
}

// cancelReconnect is called from Disconnect, scheduleReconnect, and
// (indirectly, via Connect's error path) the reconnect timer's own
// callback — all potentially concurrent with each other. reconnectTimer is
// read and cleared under c.mu before Stop is called outside the lock.
func (c *Controller) cancelReconnect() {
	c.mu.Lock()
	t := c.reconnectTimer
	c.reconnectTimer = nil
	c.mu.Unlock()

	if t != nil {
		t.Stop()
	}
}
