// Package upstream owns the persistent duplex connection to the AI
// streaming service, one per client session.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/soyeahso/liverelay/internal/logging"
	"github.com/soyeahso/liverelay/internal/media"
)

// Error taxonomy. Raw transport errors never escape this package.
var (
	ErrHandshake  = errors.New("upstream handshake failed")
	ErrConnection = errors.New("upstream connection error")
	ErrClosed     = errors.New("upstream connection closed")
)

// Config describes one upstream session.
type Config struct {
	Endpoint           string
	Credential         Credential
	Model              string
	Voice              string
	ResponseModalities []string
	SystemInstructions string
	Declarations       []media.FunctionDecl
	HandshakeTimeout   time.Duration
	Transcription      bool
}

// Adapter is the session-facing contract for the upstream connection.
// Receive yields a non-restartable stream of events that ends when the
// connection closes.
type Adapter interface {
	Open(ctx context.Context) error
	SendChunk(c media.Chunk) error
	SendToolResponse(r media.ToolCallResponse) error
	InjectContext(texts []string, turnComplete bool) error
	Receive() <-chan media.Event
	Close() error
}

// Conn is the WebSocket implementation of Adapter.
type Conn struct {
	cfg    Config
	log    *logging.Logger
	events chan media.Event

	writeMu sync.Mutex
	ws      *websocket.Conn

	closeOnce sync.Once
	closed    chan struct{}
}

// NewConn creates an unopened upstream connection.
func NewConn(cfg Config, log *logging.Logger) *Conn {
	return &Conn{
		cfg:    cfg,
		log:    log.Sub("upstream"),
		events: make(chan media.Event, 32),
		closed: make(chan struct{}),
	}
}

// Open dials the upstream service, performs the setup handshake, and
// starts the receive loop. The handshake is bounded by the configured
// timeout; failure leaves the connection closed.
func (c *Conn) Open(ctx context.Context) error {
	timeout := c.cfg.HandshakeTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := c.cfg.Endpoint
	var header map[string][]string
	if c.cfg.Credential != nil {
		ep, h, err := c.cfg.Credential.Apply(dialCtx, endpoint)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrHandshake, err)
		}
		endpoint, header = ep, h
	}

	ws, _, err := websocket.DefaultDialer.DialContext(dialCtx, endpoint, header)
	if err != nil {
		return fmt.Errorf("%w: dial: %v", ErrHandshake, err)
	}
	c.ws = ws

	if err := c.sendSetup(); err != nil {
		ws.Close()
		return err
	}

	// The first server message must acknowledge setup.
	ws.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := ws.ReadMessage()
	if err != nil {
		ws.Close()
		return fmt.Errorf("%w: reading setup ack: %v", ErrHandshake, err)
	}
	events, err := media.DecodeServerMessage(data)
	if err != nil || len(events) == 0 || events[0].Kind != media.EventSetupComplete {
		ws.Close()
		return fmt.Errorf("%w: expected setup acknowledgement", ErrHandshake)
	}
	ws.SetReadDeadline(time.Time{})

	c.log.Debug().Str("model", c.cfg.Model).Msg("upstream session established")

	go c.readLoop()
	return nil
}

func (c *Conn) sendSetup() error {
	setup := &media.Setup{
		Model: c.cfg.Model,
		GenerationConfig: &media.GenerationConfig{
			ResponseModalities: c.cfg.ResponseModalities,
		},
	}
	if c.cfg.Voice != "" {
		setup.GenerationConfig.SpeechConfig = &media.SpeechConfig{
			VoiceConfig: media.VoiceConfig{
				PrebuiltVoiceConfig: media.PrebuiltVoiceConfig{VoiceName: c.cfg.Voice},
			},
		}
	}
	if c.cfg.SystemInstructions != "" {
		setup.SystemInstruction = &media.Content{
			Parts: []media.Part{{Text: c.cfg.SystemInstructions}},
		}
	}
	if len(c.cfg.Declarations) > 0 {
		setup.Tools = []media.ToolDecl{{FunctionDeclarations: c.cfg.Declarations}}
	}
	if c.cfg.Transcription {
		setup.InputAudioTranscription = &struct{}{}
		setup.OutputAudioTranscription = &struct{}{}
	}

	if err := c.writeJSON(media.ClientMessage{Setup: setup}); err != nil {
		return fmt.Errorf("%w: sending setup: %v", ErrHandshake, err)
	}
	return nil
}

// SendChunk forwards one input chunk upstream.
func (c *Conn) SendChunk(chunk media.Chunk) error {
	frame, err := media.EncodeChunk(chunk)
	if err != nil {
		return err
	}
	return c.write(frame)
}

// SendToolResponse forwards a tool result upstream, correlated by call ID.
func (c *Conn) SendToolResponse(r media.ToolCallResponse) error {
	frame, err := media.EncodeToolResponse(r)
	if err != nil {
		return err
	}
	return c.write(frame)
}

// InjectContext appends synthetic user content (e.g. a running summary)
// to the upstream conversation.
func (c *Conn) InjectContext(texts []string, turnComplete bool) error {
	frame, err := media.EncodeContextInjection(texts, turnComplete)
	if err != nil {
		return err
	}
	return c.write(frame)
}

// Receive returns the upstream event stream. The channel is closed when
// the connection ends; a terminal connection error is delivered as the
// final event.
func (c *Conn) Receive() <-chan media.Event {
	return c.events
}

// Close releases the connection. Idempotent and safe from error paths.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.ws != nil {
			c.writeMu.Lock()
			c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			c.writeMu.Unlock()
			c.ws.Close()
		}
	})
	return nil
}

func (c *Conn) readLoop() {
	defer close(c.events)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				// Local close, not an upstream failure.
			default:
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.log.Debug().Msg("upstream closed connection")
				} else {
					c.events <- media.Event{Kind: media.EventError, Err: fmt.Errorf("%w: %v", ErrConnection, err)}
				}
			}
			return
		}

		events, err := media.DecodeServerMessage(data)
		if err != nil {
			// Malformed upstream frame: drop it, keep the stream alive.
			c.log.Warn().Err(err).Msg("dropping malformed upstream frame")
			continue
		}
		for _, ev := range events {
			select {
			case c.events <- ev:
			case <-c.closed:
				return
			}
		}
	}
}

func (c *Conn) write(frame []byte) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.ws == nil {
		return ErrClosed
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return nil
}

func (c *Conn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(v)
}
