// Package media defines the units of streamed conversation data and the
// codec that translates them to and from the upstream wire protocol.
package media

import "encoding/json"

// Modality tags the kind of data a chunk carries.
type Modality string

const (
	ModalityAudio Modality = "audio"
	ModalityVideo Modality = "video"
	ModalityText  Modality = "text"
)

// Default MIME types per modality when the client does not specify one.
const (
	DefaultAudioMime = "audio/pcm;rate=16000"
	DefaultVideoMime = "image/jpeg"
)

// Chunk is one unit of streamed input or output.
//
// For audio and video the payload is base64 as received from the peer and
// is passed through untouched; the codec never decodes it, so large chunks
// flow without intermediate buffering. For text the payload is plain text.
type Chunk struct {
	Modality  Modality
	Data      string
	MimeType  string
	Seq       int64
	EndOfTurn bool
}

// ToolCallRequest is a model-issued request to invoke an external capability.
// The ID is assigned by the upstream service and is unique within a session.
type ToolCallRequest struct {
	ID   string
	Name string
	Args json.RawMessage
}

// ToolCallResponse carries a tool result (or error payload) back upstream,
// correlated by the originating call ID.
type ToolCallResponse struct {
	ID     string
	Name   string
	Result json.RawMessage
}

// TranscriptSource identifies which side of the conversation a
// server-generated transcription belongs to.
type TranscriptSource string

const (
	TranscriptInput  TranscriptSource = "input"
	TranscriptOutput TranscriptSource = "output"
)

// Transcript is a server-side transcription fragment.
type Transcript struct {
	Source TranscriptSource
	Text   string
}
