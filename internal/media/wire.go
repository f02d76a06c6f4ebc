package media

import "encoding/json"

// Wire types for the upstream bidirectional streaming protocol. The shapes
// follow the service's BidiGenerateContent contract; this side adapts to
// them, it does not define them.

// ClientMessage is the envelope for proxy→upstream frames. Exactly one
// field is set per message.
type ClientMessage struct {
	Setup         *Setup         `json:"setup,omitempty"`
	RealtimeInput *RealtimeInput `json:"realtimeInput,omitempty"`
	ClientContent *ClientContent `json:"clientContent,omitempty"`
	ToolResponse  *ToolResponse  `json:"toolResponse,omitempty"`
}

// Setup opens a streaming session: model selection, generation config,
// system instructions, and tool declarations.
type Setup struct {
	Model                    string            `json:"model"`
	GenerationConfig         *GenerationConfig `json:"generationConfig,omitempty"`
	SystemInstruction        *Content          `json:"systemInstruction,omitempty"`
	Tools                    []ToolDecl        `json:"tools,omitempty"`
	InputAudioTranscription  *struct{}         `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}         `json:"outputAudioTranscription,omitempty"`
}

// GenerationConfig selects output modalities and voice.
type GenerationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *SpeechConfig `json:"speechConfig,omitempty"`
	MaxOutputTokens    int           `json:"maxOutputTokens,omitempty"`
}

// SpeechConfig selects a prebuilt TTS voice.
type SpeechConfig struct {
	VoiceConfig VoiceConfig `json:"voiceConfig"`
}

type VoiceConfig struct {
	PrebuiltVoiceConfig PrebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type PrebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

// ToolDecl advertises callable functions to the model.
type ToolDecl struct {
	FunctionDeclarations []FunctionDecl `json:"functionDeclarations"`
}

// FunctionDecl describes one callable function.
type FunctionDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// RealtimeInput streams raw media (audio frames, video frames) upstream.
type RealtimeInput struct {
	MediaChunks []Blob `json:"mediaChunks"`
}

// Blob is a typed base64 payload.
type Blob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// ClientContent appends structured turns (text input, injected context).
type ClientContent struct {
	Turns        []Content `json:"turns"`
	TurnComplete bool      `json:"turnComplete"`
}

// Content is a role-tagged sequence of parts.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is one piece of content: text or inline binary data.
type Part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Blob  `json:"inlineData,omitempty"`
}

// ToolResponse returns tool results to the model.
type ToolResponse struct {
	FunctionResponses []FunctionResponse `json:"functionResponses"`
}

// FunctionResponse is one tool result, correlated by call ID.
type FunctionResponse struct {
	ID       string          `json:"id,omitempty"`
	Name     string          `json:"name,omitempty"`
	Response json.RawMessage `json:"response"`
}

// ServerMessage is the envelope for upstream→proxy frames.
type ServerMessage struct {
	SetupComplete        *struct{}             `json:"setupComplete,omitempty"`
	ServerContent        *ServerContent        `json:"serverContent,omitempty"`
	ToolCall             *ToolCall             `json:"toolCall,omitempty"`
	ToolCallCancellation *ToolCallCancellation `json:"toolCallCancellation,omitempty"`
	GoAway               *GoAway               `json:"goAway,omitempty"`
}

// ServerContent carries model output, turn boundaries, interruption
// notices, and transcriptions.
type ServerContent struct {
	ModelTurn           *Content       `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *Transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *Transcription `json:"outputTranscription,omitempty"`
}

// Transcription is server-side speech-to-text for one direction.
type Transcription struct {
	Text string `json:"text"`
}

// ToolCall requests execution of one or more functions.
type ToolCall struct {
	FunctionCalls []FunctionCall `json:"functionCalls"`
}

// FunctionCall is one requested invocation.
type FunctionCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// ToolCallCancellation withdraws previously issued calls.
type ToolCallCancellation struct {
	IDs []string `json:"ids"`
}

// GoAway announces impending connection termination.
type GoAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}
