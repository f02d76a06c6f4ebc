// Package session implements the per-client orchestration core: the state
// machine coordinating the client connection, the upstream stream, and
// tool dispatch.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soyeahso/liverelay/internal/logging"
	"github.com/soyeahso/liverelay/internal/media"
	"github.com/soyeahso/liverelay/internal/protocol"
	"github.com/soyeahso/liverelay/internal/telemetry"
	"github.com/soyeahso/liverelay/internal/tools"
	"github.com/soyeahso/liverelay/internal/upstream"
)

// ErrSessionClosed is returned when a frame arrives after the session
// has terminated.
var ErrSessionClosed = errors.New("session closed")

// State is the session lifecycle state.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateInterrupted
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateInterrupted:
		return "interrupted"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ClientConn is the manager's view of the client connection.
type ClientConn interface {
	Send(f protocol.ServerFrame) error
	Close() error
}

// Invoker executes one tool call. Implemented by tools.Dispatcher.
type Invoker interface {
	Invoke(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error)
}

// Recorder persists session lifecycle and transcript events. Implementations
// must be safe for concurrent use.
type Recorder interface {
	SessionStarted(id string)
	SessionEnded(id, state string)
	Transcript(sessionID string, source media.TranscriptSource, text string)
	ToolCall(sessionID, callID, name, errKind string)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) SessionStarted(string)                             {}
func (NopRecorder) SessionEnded(string, string)                       {}
func (NopRecorder) Transcript(string, media.TranscriptSource, string) {}
func (NopRecorder) ToolCall(string, string, string, string)           {}

// Summarizer accumulates transcripts for background compaction.
type Summarizer interface {
	AddTranscript(source media.TranscriptSource, text string)
	TurnComplete(ctx context.Context)
}

// Config holds per-session limits.
type Config struct {
	ID           string
	IdleTimeout  time.Duration
	DrainTimeout time.Duration
}

// Deps wires the manager to its collaborators. Client and Upstream are
// owned exclusively by this session for its lifetime.
type Deps struct {
	Client     ClientConn
	Upstream   upstream.Adapter
	Tools      Invoker
	Metrics    *telemetry.Metrics
	Recorder   Recorder
	Summarizer Summarizer
	Log        *logging.Logger
	OnClosed   func(id string)
}

// toolResult is the completion of one dispatched tool call.
type toolResult struct {
	id     string
	name   string
	result json.RawMessage
	err    error
}

// Manager runs one session. All mutable session state is owned by the Run
// loop; the surrounding goroutines (client reader, upstream reader, tool
// invocations) talk to it exclusively through channels.
type Manager struct {
	cfg  Config
	deps Deps
	log  *logging.Logger

	frames   chan protocol.ClientFrame
	toolDone chan toolResult
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	state atomic.Int32

	// Owned by the Run loop.
	turn      int64
	epoch     int64 // bumps on interruption; stamps in-flight tool calls
	receiving bool
	dropping  bool
	inflight  map[string]int64 // call ID → epoch at dispatch
	lastSeq   map[media.Modality]int64
	outSeq    map[media.Modality]int64
}

// New creates a session manager. Run must be called to start it.
func New(cfg Config, deps Deps) *Manager {
	if deps.Recorder == nil {
		deps.Recorder = NopRecorder{}
	}
	return &Manager{
		cfg:      cfg,
		deps:     deps,
		log:      deps.Log.Sub("session").With("sessionId", cfg.ID),
		frames:   make(chan protocol.ClientFrame),
		toolDone: make(chan toolResult),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		inflight: make(map[string]int64),
		lastSeq:  make(map[media.Modality]int64),
		outSeq:   make(map[media.Modality]int64),
	}
}

// ID returns the session identifier.
func (m *Manager) ID() string { return m.cfg.ID }

// State returns the current lifecycle state.
func (m *Manager) State() State { return State(m.state.Load()) }

// Done is closed once the session has fully terminated and released its
// resources.
func (m *Manager) Done() <-chan struct{} { return m.done }

// HandleFrame feeds one parsed client frame into the session. It blocks
// while the session is busy, which propagates backpressure to the client
// read loop, and fails once the session has closed.
func (m *Manager) HandleFrame(f protocol.ClientFrame) error {
	select {
	case m.frames <- f:
		return nil
	case <-m.done:
		return ErrSessionClosed
	}
}

// Close requests termination. Idempotent; resources are released exactly
// once by the Run loop.
func (m *Manager) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	return nil
}

// Run drives the session to completion: upstream handshake, the event
// loop, and teardown. It returns only when every resource has been
// released and the client has seen a terminal event.
func (m *Manager) Run(ctx context.Context) {
	m.deps.Metrics.SessionStarted(ctx)
	m.deps.Recorder.SessionStarted(m.cfg.ID)

	if err := m.deps.Upstream.Open(ctx); err != nil {
		m.log.Error().Err(err).Msg("upstream handshake failed")
		m.shutdown(ctx, protocol.ErrorFrame(protocol.CodeConnectionFailed, "could not reach the streaming service", false))
		return
	}

	m.state.Store(int32(StateActive))
	if err := m.deps.Client.Send(protocol.ReadyFrame(m.cfg.ID)); err != nil {
		m.shutdown(ctx, protocol.ServerFrame{})
		return
	}
	m.log.Info().Msg("session active")

	idleTimeout := m.cfg.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = 5 * time.Minute
	}
	idle := time.NewTimer(idleTimeout)
	defer idle.Stop()
	touch := func() {
		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		idle.Reset(idleTimeout)
	}

	events := m.deps.Upstream.Receive()

	var terminal protocol.ServerFrame
loop:
	for {
		select {
		case <-ctx.Done():
			terminal = protocol.ErrorFrame(protocol.CodeSessionClosed, "server shutting down", false)
			break loop

		case <-m.stop:
			terminal = protocol.ErrorFrame(protocol.CodeSessionClosed, "session closed", false)
			break loop

		case f := <-m.frames:
			touch()
			if term, ok := m.handleClientFrame(ctx, f); !ok {
				terminal = term
				break loop
			}

		case ev, ok := <-events:
			if !ok {
				terminal = protocol.ErrorFrame(protocol.CodeConnectionError, "upstream stream ended", false)
				break loop
			}
			touch()
			if term, ok := m.handleUpstreamEvent(ctx, ev); !ok {
				terminal = term
				break loop
			}

		case res := <-m.toolDone:
			if term, ok := m.handleToolResult(ctx, res); !ok {
				terminal = term
				break loop
			}

		case <-idle.C:
			m.log.Info().Dur("timeout", idleTimeout).Msg("closing idle session")
			terminal = protocol.ErrorFrame(protocol.CodeIdleTimeout, "session idle timeout", false)
			break loop
		}
	}

	m.shutdown(ctx, terminal)
}

// handleClientFrame processes one inbound frame. The second return is
// false when the session must terminate; the first is then the terminal
// frame for the client.
func (m *Manager) handleClientFrame(ctx context.Context, f protocol.ClientFrame) (protocol.ServerFrame, bool) {
	if f.Type == protocol.TypeDisconnect {
		m.log.Debug().Msg("client requested disconnect")
		return protocol.ErrorFrame(protocol.CodeSessionClosed, "session closed by client", false), false
	}

	chunk, ok := f.Chunk()
	if !ok {
		m.sendToClient(protocol.ErrorFrame(protocol.CodeProtocolError, "unsupported frame type", true))
		return protocol.ServerFrame{}, true
	}

	// New input while the model is mid-utterance barges in: the current
	// model turn is abandoned before the input is forwarded. This also
	// resets sequence tracking for the new turn.
	if m.receiving {
		m.interrupt(ctx)
	}

	// Sequence numbers are per modality and strictly increasing within a
	// turn. A violation drops the frame but keeps the session alive.
	if chunk.Seq != 0 {
		if last, seen := m.lastSeq[chunk.Modality]; seen && chunk.Seq <= last {
			m.log.Warn().
				Str("modality", string(chunk.Modality)).
				Int64("seq", chunk.Seq).
				Int64("last", last).
				Msg("out-of-order input chunk dropped")
			m.sendToClient(protocol.ErrorFrame(protocol.CodeProtocolError, "out-of-order sequence number", true))
			return protocol.ServerFrame{}, true
		}
		m.lastSeq[chunk.Modality] = chunk.Seq
	}

	if chunk.Data == "" && !chunk.EndOfTurn {
		return protocol.ServerFrame{}, true
	}
	if chunk.Data == "" && chunk.EndOfTurn && chunk.Modality != media.ModalityText {
		// Bare end-of-turn markers only carry meaning for text turns.
		return protocol.ServerFrame{}, true
	}

	if err := m.deps.Upstream.SendChunk(chunk); err != nil {
		m.log.Error().Err(err).Msg("forwarding input chunk failed")
		return protocol.ErrorFrame(protocol.CodeConnectionError, "upstream connection lost", false), false
	}
	m.deps.Metrics.ChunkForwarded(ctx)
	return protocol.ServerFrame{}, true
}

// handleUpstreamEvent processes one decoded upstream event.
func (m *Manager) handleUpstreamEvent(ctx context.Context, ev media.Event) (protocol.ServerFrame, bool) {
	switch ev.Kind {
	case media.EventChunk:
		if m.dropping {
			// Output from the turn that was interrupted; the boundary for
			// the next turn has not arrived yet.
			m.log.Debug().Msg("dropping stale output chunk")
			return protocol.ServerFrame{}, true
		}
		m.receiving = true
		m.outSeq[ev.Chunk.Modality]++
		frame := protocol.OutputFrame(*ev.Chunk, m.turn, m.outSeq[ev.Chunk.Modality])
		if err := m.deps.Client.Send(frame); err != nil {
			m.log.Debug().Err(err).Msg("client write failed")
			return protocol.ServerFrame{}, false
		}
		return protocol.ServerFrame{}, true

	case media.EventInterrupted:
		// Upstream voice-activity barge-in. If we already processed a
		// local interruption this is its echo and ends the stale window.
		if m.dropping {
			m.dropping = false
			return protocol.ServerFrame{}, true
		}
		m.interrupt(ctx)
		return protocol.ServerFrame{}, true

	case media.EventTurnComplete:
		if m.dropping {
			// Boundary of the abandoned turn; output is live again.
			m.dropping = false
			return protocol.ServerFrame{}, true
		}
		m.receiving = false
		completed := m.turn
		m.turn++
		m.resetSeq()
		m.sendToClient(protocol.TurnCompleteFrame(completed))
		if m.deps.Summarizer != nil {
			m.deps.Summarizer.TurnComplete(ctx)
		}
		return protocol.ServerFrame{}, true

	case media.EventToolCall:
		for _, call := range ev.Calls {
			if _, dup := m.inflight[call.ID]; dup {
				m.log.Error().Str("callId", call.ID).Msg("duplicate tool call id from upstream")
				return protocol.ErrorFrame(protocol.CodeInternalError, "duplicate tool call id", false), false
			}
			m.inflight[call.ID] = m.epoch
			m.deps.Metrics.ToolCall(ctx)
			m.log.Debug().Str("callId", call.ID).Str("tool", call.Name).Msg("dispatching tool call")
			go m.invoke(ctx, call)
		}
		return protocol.ServerFrame{}, true

	case media.EventToolCancel:
		for _, id := range ev.CancelIDs {
			if _, ok := m.inflight[id]; ok {
				delete(m.inflight, id)
				m.log.Debug().Str("callId", id).Msg("tool call cancelled by upstream")
			}
		}
		return protocol.ServerFrame{}, true

	case media.EventTranscript:
		m.deps.Recorder.Transcript(m.cfg.ID, ev.Transcript.Source, ev.Transcript.Text)
		if m.deps.Summarizer != nil {
			m.deps.Summarizer.AddTranscript(ev.Transcript.Source, ev.Transcript.Text)
		}
		return protocol.ServerFrame{}, true

	case media.EventGoAway:
		m.log.Info().Msg("upstream announced connection termination")
		return protocol.ServerFrame{}, true

	case media.EventError:
		m.log.Error().Err(ev.Err).Msg("upstream connection error")
		return protocol.ErrorFrame(protocol.CodeConnectionError, "upstream connection lost", false), false

	default:
		m.log.Debug().Str("kind", ev.Kind.String()).Msg("ignoring unexpected upstream event")
		return protocol.ServerFrame{}, true
	}
}

// interrupt abandons the in-progress model turn: the client is told to
// stop playback and all further output is dropped until the upstream
// confirms the turn boundary.
func (m *Manager) interrupt(ctx context.Context) {
	m.state.Store(int32(StateInterrupted))
	m.receiving = false
	m.dropping = true
	m.epoch++
	interrupted := m.turn
	m.turn++
	m.resetSeq()
	m.deps.Metrics.Interruption(ctx)
	m.log.Debug().Int64("turn", interrupted).Msg("model turn interrupted")
	m.sendToClient(protocol.InterruptedFrame(interrupted))
	m.state.Store(int32(StateActive))
}

func (m *Manager) resetSeq() {
	clear(m.lastSeq)
	clear(m.outSeq)
}

// invoke runs one tool call off the loop goroutine and reports back on
// toolDone. Tool latency never blocks media relay.
func (m *Manager) invoke(ctx context.Context, call media.ToolCallRequest) {
	result, err := m.deps.Tools.Invoke(ctx, call.Name, call.Args)
	select {
	case m.toolDone <- toolResult{id: call.ID, name: call.Name, result: result, err: err}:
	case <-m.done:
	}
}

// handleToolResult correlates a completed tool call and forwards its
// result upstream. Failures become structured error payloads for the
// model; the session stays active either way.
func (m *Manager) handleToolResult(ctx context.Context, res toolResult) (protocol.ServerFrame, bool) {
	epochAt, ok := m.inflight[res.id]
	if !ok {
		m.log.Warn().Str("callId", res.id).Msg("dropping result for unknown tool call")
		return protocol.ServerFrame{}, true
	}
	delete(m.inflight, res.id)

	payload, errKind := toolPayload(res)
	m.deps.Recorder.ToolCall(m.cfg.ID, res.id, res.name, errKind)
	if errKind != "" {
		m.deps.Metrics.ToolError(ctx)
	}

	if epochAt != m.epoch {
		// The turn that requested this call was interrupted away.
		m.log.Debug().Str("callId", res.id).Msg("discarding tool result from superseded turn")
		return protocol.ServerFrame{}, true
	}

	err := m.deps.Upstream.SendToolResponse(media.ToolCallResponse{
		ID:     res.id,
		Name:   res.name,
		Result: payload,
	})
	if err != nil {
		m.log.Error().Err(err).Msg("forwarding tool response failed")
		return protocol.ErrorFrame(protocol.CodeConnectionError, "upstream connection lost", false), false
	}
	return protocol.ServerFrame{}, true
}

// toolPayload converts an invocation outcome into the JSON sent back to
// the model, plus the error kind for bookkeeping ("" on success).
func toolPayload(res toolResult) (json.RawMessage, string) {
	if res.err == nil {
		return res.result, ""
	}
	te := tools.AsError(res.name, res.err)
	payload, _ := json.Marshal(map[string]string{"error": te.Message, "kind": string(te.Kind)})
	return payload, string(te.Kind)
}

// shutdown releases everything exactly once: terminal event to the
// client, bounded drain of in-flight tool calls, then both connections.
func (m *Manager) shutdown(ctx context.Context, terminal protocol.ServerFrame) {
	m.state.Store(int32(StateClosing))

	if terminal.Type != "" {
		m.sendToClient(terminal)
	}

	m.drainTools(ctx)

	m.deps.Upstream.Close()
	m.deps.Client.Close()

	m.state.Store(int32(StateClosed))
	m.deps.Metrics.SessionEnded(ctx)
	m.deps.Recorder.SessionEnded(m.cfg.ID, StateClosed.String())
	close(m.done)
	if m.deps.OnClosed != nil {
		m.deps.OnClosed(m.cfg.ID)
	}
	m.log.Info().Msg("session closed")
}

// drainTools waits for in-flight tool calls up to the drain timeout so
// their goroutines do not leak into a closed session. Results arriving
// during the drain are discarded; the upstream turn they belonged to is
// gone.
func (m *Manager) drainTools(ctx context.Context) {
	if len(m.inflight) == 0 {
		return
	}
	timeout := m.cfg.DrainTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for len(m.inflight) > 0 {
		select {
		case res := <-m.toolDone:
			delete(m.inflight, res.id)
		case <-deadline.C:
			m.log.Warn().Int("abandoned", len(m.inflight)).Msg("closing with tool calls still in flight")
			return
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) sendToClient(f protocol.ServerFrame) {
	if err := m.deps.Client.Send(f); err != nil {
		m.log.Debug().Err(err).Str("type", f.Type).Msg("client write failed")
	}
}
