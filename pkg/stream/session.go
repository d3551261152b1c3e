// Package stream maintains a local mirror of server-side process state by
// consuming JSON Patch deltas over a persistent WebSocket connection.
//
// A Session owns exactly one logical subscription: it dials, applies
// patches in delivery order, watches for silent connections, reconnects
// with capped backoff, and stops for good when the server signals
// completion. All failures stay inside the session; callers observe them
// through Err and render their own fallback.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/taskdeck/deckstream/pkg/errors"
	"github.com/taskdeck/deckstream/pkg/patch"
	"github.com/taskdeck/deckstream/pkg/protocol"
)

// closeIntent records why the client itself is closing a connection, so the
// read loop can tell an expected self-closure from a network failure.
type closeIntent int

const (
	intentNone closeIntent = iota
	intentStale
	intentRefresh
	intentStop
)

// Options are the caller-supplied hooks for a session. All callbacks are
// invoked from the session goroutine.
type Options struct {
	// InitialDocument seeds the local snapshot before the first patch.
	InitialDocument []byte

	// Filter drops incoming operations before merge, preserving order.
	Filter patch.Filter

	// OnUpdate is called with the new snapshot after each successful merge.
	OnUpdate func(doc []byte)

	// OnStateChange is called after every lifecycle state change.
	OnStateChange func(State)

	// OnRefreshRequired, when set, handles the server's missed-state signal
	// instead of the default discard-and-reconnect escalation.
	OnRefreshRequired func(reason string)
}

// Session is one logical subscription to a process's state stream.
type Session struct {
	id     string
	target string
	cfg    *Config
	opts   Options
	log    *slog.Logger

	mu          sync.Mutex
	machine     *Machine
	doc         []byte
	lastErr     error
	connected   bool
	connecting  bool
	conn        *websocket.Conn
	intent      closeIntent
	lastMessage time.Time
	started     bool
	cancel      context.CancelFunc
	done        chan struct{}
}

// New creates a session for the given process id. It does nothing until
// Start is called.
func New(cfg *Config, processID string, opts Options) *Session {
	if opts.InitialDocument == nil {
		// A JSON null accepts a root-level replace as the first patch.
		opts.InitialDocument = []byte("null")
	}
	id := uuid.NewString()
	return &Session{
		id:      id,
		target:  processID,
		cfg:     cfg,
		opts:    opts,
		log:     slog.With(slog.String("session", id), slog.String("process", processID)),
		machine: NewMachine(cfg.Backoff),
		doc:     cloneBytes(opts.InitialDocument),
	}
}

// ID returns the session's correlation id.
func (s *Session) ID() string { return s.id }

// Target returns the process id this session mirrors.
func (s *Session) Target() string { return s.target }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.State()
}

// Connected reports whether a connection is currently established.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Attempts returns the budget-consuming reconnect attempts since the last
// successful connection.
func (s *Session) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Attempts()
}

// Document returns the current snapshot. The returned bytes are never
// mutated afterward; each merge replaces the snapshot wholesale.
func (s *Session) Document() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

// Err returns the most recent error, or nil. Transient transport and
// protocol errors show up here without stopping the session.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Start begins streaming. It returns an error if the session is already
// running or has finished. The session stops when ctx is cancelled, Stop is
// called, the server signals completion, or the retry budget runs out.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.NewStreamError(errors.ErrorTypeProtocol, "session already started")
	}
	if s.machine.State() == StateFinished {
		return errors.NewStreamError(errors.ErrorTypeFinished, "session finished")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.started = true
	s.cancel = cancel
	s.done = make(chan struct{})
	s.intent = intentNone
	go s.run(runCtx, s.done)
	return nil
}

// Stop tears the session down: the connection is closed, timers cleared,
// and the local document discarded. A finished session stays finished;
// anything else resets to disconnected and may be started again.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.intent = intentStop
	s.cancel()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	done := s.done
	s.mu.Unlock()

	<-done

	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	s.connected = false
	s.conn = nil
	s.lastErr = nil
	s.doc = cloneBytes(s.opts.InitialDocument)
	s.machine.Reset()
}

func (s *Session) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		// Cancellation skips the normal close dispatch; settle the machine
		// so State never reports a connection that is already gone. The
		// finished state is terminal and stays put.
		if ctx.Err() != nil {
			if _, err := s.dispatch(EventStopped); err != nil {
				s.log.Error("stop dispatch failed", slog.String("error", err.Error()))
			}
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.dispatch(EventDial); err != nil {
			s.log.Error("dial dispatch failed", slog.String("error", err.Error()))
			return
		}

		conn, err := s.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.setErr(errors.NewTransportError(err))
			dec, _ := s.dispatch(EventDialFailed)
			if !s.handleRetry(ctx, dec) {
				return
			}
			continue
		}

		s.onOpen(conn)
		if ctx.Err() != nil {
			// Torn down while the handshake was in flight.
			conn.Close()
			s.onClosed()
			return
		}
		readErr := s.readLoop(ctx, conn)
		s.onClosed()

		if ctx.Err() != nil || s.State() == StateFinished {
			return
		}

		dec, err := s.dispatch(s.closeEvent(readErr))
		if err != nil {
			s.log.Error("close dispatch failed", slog.String("error", err.Error()))
			return
		}
		if !s.handleRetry(ctx, dec) {
			return
		}
	}
}

// handleRetry acts on a post-closure decision. It returns false when the
// loop should exit.
func (s *Session) handleRetry(ctx context.Context, dec Decision) bool {
	switch dec.Action {
	case ActionRedial:
		s.log.Debug("reconnecting immediately")
		return true
	case ActionRedialAfter:
		s.log.Debug("reconnecting after backoff",
			slog.Duration("delay", dec.Delay), slog.Int("attempts", s.Attempts()))
		return s.sleep(ctx, dec.Delay)
	case ActionGiveUp:
		s.setErr(errors.NewRetryExhaustedError(s.Attempts()))
		s.log.Warn("retry budget exhausted, giving up")
		return false
	default:
		return false
	}
}

// closeEvent classifies how the connection ended.
func (s *Session) closeEvent(readErr error) Event {
	s.mu.Lock()
	intent := s.intent
	s.intent = intentNone
	s.mu.Unlock()

	switch intent {
	case intentStale:
		return EventCloseStale
	case intentRefresh:
		return EventCloseRefresh
	}
	if websocket.IsCloseError(readErr, websocket.CloseNormalClosure) {
		return EventCloseClean
	}
	return EventCloseError
}

// dial opens the connection for this session. The connecting guard ensures
// at most one concurrent attempt per session regardless of caller churn.
func (s *Session) dial(ctx context.Context) (*websocket.Conn, error) {
	s.mu.Lock()
	if s.connecting {
		s.mu.Unlock()
		return nil, errors.NewStreamError(errors.ErrorTypeTransport, "connection attempt already in progress")
	}
	s.connecting = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.connecting = false
		s.mu.Unlock()
	}()

	target, err := s.cfg.streamURL(s.target)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.HandshakeTimeout}
	var header map[string][]string
	if s.cfg.Token != "" {
		header = map[string][]string{"Authorization": {"Bearer " + s.cfg.Token}}
	}
	conn, resp, err := dialer.DialContext(ctx, target, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (s *Session) onOpen(conn *websocket.Conn) {
	conn.SetReadLimit(s.cfg.MaxMessageSize)
	// Server pings count as liveness traffic.
	conn.SetPingHandler(func(appData string) error {
		s.touch()
		return conn.WriteControl(websocket.PongMessage, []byte(appData),
			time.Now().Add(s.cfg.WriteWait))
	})

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.lastErr = nil
	s.lastMessage = time.Now()
	s.mu.Unlock()

	if _, err := s.dispatch(EventOpened); err != nil {
		s.log.Error("open dispatch failed", slog.String("error", err.Error()))
	}
	s.log.Debug("stream connected")
}

func (s *Session) onClosed() {
	s.mu.Lock()
	s.conn = nil
	s.connected = false
	s.mu.Unlock()
}

// readLoop consumes messages until the connection dies. It returns the
// terminating read error.
func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn) error {
	livenessDone := make(chan struct{})
	defer close(livenessDone)
	go s.watchLiveness(ctx, conn, livenessDone)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.touch()

		msg, err := protocol.Decode(data)
		if err != nil {
			// Per-message failure: keep the session and its last-good
			// document.
			s.setErr(errors.NewProtocolError("unparseable stream message", err.Error()))
			s.log.Warn("dropping unparseable message", slog.String("error", err.Error()))
			continue
		}

		switch msg.Kind {
		case protocol.KindPatch:
			s.applyPatch(msg.Patch)
		case protocol.KindFinished:
			s.finish(conn)
			return nil
		case protocol.KindRefreshRequired:
			s.escalateRefresh(conn, msg.Refresh.Reason)
		}
	}
}

// watchLiveness proactively closes a connection that has delivered nothing
// (pings included) within the staleness threshold. The distinguishing close
// code tells the policy this is expected, not a failure.
func (s *Session) watchLiveness(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			silent := time.Since(s.lastMessage)
			s.mu.Unlock()
			if silent > s.cfg.StaleAfter {
				s.log.Debug("connection stale, closing proactively",
					slog.Duration("silent", silent))
				s.closeWith(conn, intentStale, protocol.CloseStale, "stale connection")
				return
			}
		case <-done:
			return
		case <-ctx.Done():
			// Unblock the read loop on cancellation.
			conn.Close()
			return
		}
	}
}

func (s *Session) applyPatch(ops []json.RawMessage) {
	s.mu.Lock()
	next, applied, err := patch.Apply(s.doc, ops, s.opts.Filter)
	if err != nil {
		// Failed batch: previous document is retained.
		s.lastErr = err
		s.mu.Unlock()
		s.log.Warn("patch batch rejected", slog.String("error", err.Error()))
		return
	}
	if applied {
		s.doc = next
	}
	onUpdate := s.opts.OnUpdate
	s.mu.Unlock()

	if applied && onUpdate != nil {
		onUpdate(next)
	}
}

// finish handles the server's terminal completion signal. No reconnection
// ever happens after this, regardless of later close events.
func (s *Session) finish(conn *websocket.Conn) {
	if _, err := s.dispatch(EventFinished); err != nil {
		s.log.Error("finish dispatch failed", slog.String("error", err.Error()))
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "finished"),
		time.Now().Add(s.cfg.WriteWait))
	_ = conn.Close()
	s.log.Debug("stream finished")
}

// escalateRefresh handles the server's missed-state signal: delegate to the
// caller if it supplied a handler, otherwise discard local state and force
// a fresh connection that re-requests everything.
func (s *Session) escalateRefresh(conn *websocket.Conn, reason string) {
	s.mu.Lock()
	handler := s.opts.OnRefreshRequired
	s.mu.Unlock()

	s.log.Info("server requested refresh", slog.String("reason", reason))
	if handler != nil {
		handler(reason)
		return
	}

	s.mu.Lock()
	s.doc = cloneBytes(s.opts.InitialDocument)
	s.mu.Unlock()
	s.closeWith(conn, intentRefresh, protocol.CloseRefreshRequired, "refresh required")
}

func (s *Session) closeWith(conn *websocket.Conn, intent closeIntent, code int, reason string) {
	s.mu.Lock()
	s.intent = intent
	s.mu.Unlock()

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(s.cfg.WriteWait))
	_ = conn.Close()
}

func (s *Session) dispatch(ev Event) (Decision, error) {
	s.mu.Lock()
	before := s.machine.State()
	dec, err := s.machine.Dispatch(ev)
	after := s.machine.State()
	onChange := s.opts.OnStateChange
	s.mu.Unlock()

	if err == nil && after != before && onChange != nil {
		onChange(after)
	}
	return dec, err
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastMessage = time.Now()
	s.mu.Unlock()
}

func (s *Session) setErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// sleep waits for d or until ctx ends; it reports whether the full wait
// elapsed.
func (s *Session) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
