package media

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedFrame is returned when a wire frame cannot be decoded.
// Malformed frames are always surfaced as errors, never dropped silently.
var ErrMalformedFrame = errors.New("malformed wire frame")

// EventKind discriminates decoded upstream events.
type EventKind int

const (
	EventSetupComplete EventKind = iota
	EventChunk
	EventToolCall
	EventToolCancel
	EventTurnComplete
	EventInterrupted
	EventTranscript
	EventGoAway
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventSetupComplete:
		return "setup-complete"
	case EventChunk:
		return "chunk"
	case EventToolCall:
		return "tool-call"
	case EventToolCancel:
		return "tool-cancel"
	case EventTurnComplete:
		return "turn-complete"
	case EventInterrupted:
		return "interrupted"
	case EventTranscript:
		return "transcript"
	case EventGoAway:
		return "go-away"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one decoded upstream occurrence. A single wire message may
// decode into several events (output parts, a transcription, and a turn
// boundary can share one frame).
type Event struct {
	Kind       EventKind
	Chunk      *Chunk
	Calls      []ToolCallRequest
	CancelIDs  []string
	Transcript *Transcript
	Err        error
}

// EncodeChunk translates an input chunk into an upstream wire frame.
// Audio and video become realtime input blobs; text becomes client
// content with the end-of-turn flag mapped to turnComplete.
func EncodeChunk(c Chunk) ([]byte, error) {
	switch c.Modality {
	case ModalityAudio, ModalityVideo:
		if c.Data == "" {
			return nil, fmt.Errorf("%w: empty %s payload", ErrMalformedFrame, c.Modality)
		}
		mime := c.MimeType
		if mime == "" {
			if c.Modality == ModalityAudio {
				mime = DefaultAudioMime
			} else {
				mime = DefaultVideoMime
			}
		}
		return json.Marshal(ClientMessage{
			RealtimeInput: &RealtimeInput{
				MediaChunks: []Blob{{MimeType: mime, Data: c.Data}},
			},
		})

	case ModalityText:
		return json.Marshal(ClientMessage{
			ClientContent: &ClientContent{
				Turns: []Content{{
					Role:  "user",
					Parts: []Part{{Text: c.Data}},
				}},
				TurnComplete: c.EndOfTurn,
			},
		})

	default:
		return nil, fmt.Errorf("%w: unknown modality %q", ErrMalformedFrame, c.Modality)
	}
}

// EncodeToolResponse translates a tool result into an upstream wire frame.
func EncodeToolResponse(r ToolCallResponse) ([]byte, error) {
	if r.ID == "" {
		return nil, fmt.Errorf("%w: tool response without call id", ErrMalformedFrame)
	}
	resp := r.Result
	if len(resp) == 0 {
		resp = json.RawMessage(`{}`)
	}
	return json.Marshal(ClientMessage{
		ToolResponse: &ToolResponse{
			FunctionResponses: []FunctionResponse{{
				ID:       r.ID,
				Name:     r.Name,
				Response: resp,
			}},
		},
	})
}

// EncodeContextInjection builds a client-content frame that appends text to
// the conversation without necessarily triggering generation. Used for the
// running-summary compaction turns.
func EncodeContextInjection(texts []string, turnComplete bool) ([]byte, error) {
	parts := make([]Part, 0, len(texts))
	for _, t := range texts {
		parts = append(parts, Part{Text: t})
	}
	return json.Marshal(ClientMessage{
		ClientContent: &ClientContent{
			Turns:        []Content{{Role: "user", Parts: parts}},
			TurnComplete: turnComplete,
		},
	})
}

// DecodeServerMessage parses one upstream wire frame into zero or more
// events, in the order they should be applied. An unrecognized or empty
// frame is a decode error.
func DecodeServerMessage(data []byte) ([]Event, error) {
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	var events []Event

	switch {
	case msg.SetupComplete != nil:
		events = append(events, Event{Kind: EventSetupComplete})

	case msg.ToolCall != nil:
		calls := make([]ToolCallRequest, 0, len(msg.ToolCall.FunctionCalls))
		for _, fc := range msg.ToolCall.FunctionCalls {
			if fc.ID == "" || fc.Name == "" {
				return nil, fmt.Errorf("%w: function call missing id or name", ErrMalformedFrame)
			}
			calls = append(calls, ToolCallRequest{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
		events = append(events, Event{Kind: EventToolCall, Calls: calls})

	case msg.ToolCallCancellation != nil:
		events = append(events, Event{Kind: EventToolCancel, CancelIDs: msg.ToolCallCancellation.IDs})

	case msg.GoAway != nil:
		events = append(events, Event{Kind: EventGoAway})

	case msg.ServerContent != nil:
		sc := msg.ServerContent
		if sc.Interrupted {
			events = append(events, Event{Kind: EventInterrupted})
		}
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				chunk, err := partToChunk(p)
				if err != nil {
					return nil, err
				}
				events = append(events, Event{Kind: EventChunk, Chunk: chunk})
			}
		}
		if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
			events = append(events, Event{
				Kind:       EventTranscript,
				Transcript: &Transcript{Source: TranscriptInput, Text: sc.InputTranscription.Text},
			})
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			events = append(events, Event{
				Kind:       EventTranscript,
				Transcript: &Transcript{Source: TranscriptOutput, Text: sc.OutputTranscription.Text},
			})
		}
		if sc.TurnComplete {
			events = append(events, Event{Kind: EventTurnComplete})
		}

	default:
		return nil, fmt.Errorf("%w: no recognized field", ErrMalformedFrame)
	}

	if len(events) == 0 {
		return nil, fmt.Errorf("%w: empty server content", ErrMalformedFrame)
	}
	return events, nil
}

func partToChunk(p Part) (*Chunk, error) {
	switch {
	case p.InlineData != nil:
		if p.InlineData.Data == "" {
			return nil, fmt.Errorf("%w: inline data without payload", ErrMalformedFrame)
		}
		return &Chunk{
			Modality: ModalityAudio,
			Data:     p.InlineData.Data,
			MimeType: p.InlineData.MimeType,
		}, nil
	case p.Text != "":
		return &Chunk{Modality: ModalityText, Data: p.Text}, nil
	default:
		return nil, fmt.Errorf("%w: empty content part", ErrMalformedFrame)
	}
}
