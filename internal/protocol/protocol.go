// Package protocol defines the client-facing WebSocket message protocol.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/soyeahso/liverelay/internal/media"
)

// Inbound frame types (client → proxy).
const (
	TypeAudioChunk = "audio-chunk"
	TypeVideoFrame = "video-frame-chunk"
	TypeTextInput  = "text-input"
	TypeDisconnect = "disconnect"
)

// Outbound frame types (proxy → client).
const (
	TypeAudioOutput  = "audio-output-chunk"
	TypeTextOutput   = "text-output-chunk"
	TypeTurnComplete = "turn-complete"
	TypeInterrupted  = "interrupted"
	TypeError        = "error"
	TypeReady        = "connection-ready"
)

// Error codes carried in error frames.
const (
	CodeConnectionFailed = "connection_failed"
	CodeConnectionError  = "connection_error"
	CodeProtocolError    = "protocol_error"
	CodeInternalError    = "internal_error"
	CodeSessionClosed    = "session_closed"
	CodeIdleTimeout      = "idle_timeout"
	CodeSessionLimit     = "session_limit"
)

// ErrUnknownFrameType is returned for inbound frames with an unrecognized type.
var ErrUnknownFrameType = errors.New("unknown frame type")

// ClientFrame is one inbound message from the client.
type ClientFrame struct {
	Type      string `json:"type"`
	Data      string `json:"data,omitempty"` // base64 for audio/video, plain text for text-input
	MimeType  string `json:"mimeType,omitempty"`
	Seq       int64  `json:"seq,omitempty"`
	EndOfTurn bool   `json:"endOfTurn,omitempty"`
}

// ServerFrame is one outbound message to the client.
type ServerFrame struct {
	Type      string     `json:"type"`
	SessionID string     `json:"sessionId,omitempty"`
	Data      string     `json:"data,omitempty"`
	MimeType  string     `json:"mimeType,omitempty"`
	Turn      int64      `json:"turn,omitempty"`
	Seq       int64      `json:"seq,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo is the error payload of an error frame. Recoverable errors
// leave the session open; terminal errors precede session close.
type ErrorInfo struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable,omitempty"`
}

// ParseClientFrame decodes and validates one inbound frame.
func ParseClientFrame(data []byte) (ClientFrame, error) {
	var f ClientFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return ClientFrame{}, fmt.Errorf("invalid frame: %w", err)
	}

	switch f.Type {
	case TypeAudioChunk, TypeVideoFrame, TypeTextInput:
		if f.Data == "" && !f.EndOfTurn {
			return ClientFrame{}, fmt.Errorf("frame %q has no data", f.Type)
		}
	case TypeDisconnect:
		// no payload
	case "":
		return ClientFrame{}, errors.New("frame has no type")
	default:
		return ClientFrame{}, fmt.Errorf("%w: %q", ErrUnknownFrameType, f.Type)
	}
	return f, nil
}

// Modality maps an inbound media frame type to its modality.
// Returns false for non-media frames.
func (f ClientFrame) Modality() (media.Modality, bool) {
	switch f.Type {
	case TypeAudioChunk:
		return media.ModalityAudio, true
	case TypeVideoFrame:
		return media.ModalityVideo, true
	case TypeTextInput:
		return media.ModalityText, true
	default:
		return "", false
	}
}

// Chunk converts a media frame into its internal representation.
func (f ClientFrame) Chunk() (media.Chunk, bool) {
	mod, ok := f.Modality()
	if !ok {
		return media.Chunk{}, false
	}
	return media.Chunk{
		Modality:  mod,
		Data:      f.Data,
		MimeType:  f.MimeType,
		Seq:       f.Seq,
		EndOfTurn: f.EndOfTurn,
	}, true
}

// ReadyFrame builds the connection-ready frame sent after the upstream
// handshake succeeds.
func ReadyFrame(sessionID string) ServerFrame {
	return ServerFrame{Type: TypeReady, SessionID: sessionID}
}

// OutputFrame builds an output chunk frame for the client.
func OutputFrame(c media.Chunk, turn, seq int64) ServerFrame {
	frameType := TypeAudioOutput
	if c.Modality == media.ModalityText {
		frameType = TypeTextOutput
	}
	return ServerFrame{
		Type:     frameType,
		Data:     c.Data,
		MimeType: c.MimeType,
		Turn:     turn,
		Seq:      seq,
	}
}

// TurnCompleteFrame marks the end of a model turn.
func TurnCompleteFrame(turn int64) ServerFrame {
	return ServerFrame{Type: TypeTurnComplete, Turn: turn}
}

// InterruptedFrame tells the client to stop playback of the superseded turn.
func InterruptedFrame(turn int64) ServerFrame {
	return ServerFrame{Type: TypeInterrupted, Turn: turn}
}

// ErrorFrame builds an error frame.
func ErrorFrame(code, message string, recoverable bool) ServerFrame {
	return ServerFrame{
		Type:  TypeError,
		Error: &ErrorInfo{Code: code, Message: message, Recoverable: recoverable},
	}
}
