package media

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeAudioChunk(t *testing.T) {
	data, err := EncodeChunk(Chunk{Modality: ModalityAudio, Data: "AAAA", Seq: 1})
	require.NoError(t, err)

	var msg ClientMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	require.NotNil(t, msg.RealtimeInput)
	require.Len(t, msg.RealtimeInput.MediaChunks, 1)
	assert.Equal(t, DefaultAudioMime, msg.RealtimeInput.MediaChunks[0].MimeType)
	assert.Equal(t, "AAAA", msg.RealtimeInput.MediaChunks[0].Data)
	assert.Nil(t, msg.ClientContent)
}

func TestEncodeVideoChunkCustomMime(t *testing.T) {
	data, err := EncodeChunk(Chunk{Modality: ModalityVideo, Data: "BBBB", MimeType: "image/png"})
	require.NoError(t, err)

	var msg ClientMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	require.NotNil(t, msg.RealtimeInput)
	assert.Equal(t, "image/png", msg.RealtimeInput.MediaChunks[0].MimeType)
}

func TestEncodeTextChunk(t *testing.T) {
	data, err := EncodeChunk(Chunk{Modality: ModalityText, Data: "hello", EndOfTurn: true})
	require.NoError(t, err)

	var msg ClientMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	require.NotNil(t, msg.ClientContent)
	assert.True(t, msg.ClientContent.TurnComplete)
	require.Len(t, msg.ClientContent.Turns, 1)
	assert.Equal(t, "user", msg.ClientContent.Turns[0].Role)
	assert.Equal(t, "hello", msg.ClientContent.Turns[0].Parts[0].Text)
}

func TestEncodeChunkRejectsUnknownModality(t *testing.T) {
	_, err := EncodeChunk(Chunk{Modality: "smell", Data: "x"})
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestEncodeChunkRejectsEmptyAudio(t *testing.T) {
	_, err := EncodeChunk(Chunk{Modality: ModalityAudio})
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestEncodeToolResponse(t *testing.T) {
	data, err := EncodeToolResponse(ToolCallResponse{
		ID:     "call-7",
		Name:   "get_weather",
		Result: json.RawMessage(`{"temp":21}`),
	})
	require.NoError(t, err)

	var msg ClientMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	require.NotNil(t, msg.ToolResponse)
	require.Len(t, msg.ToolResponse.FunctionResponses, 1)
	fr := msg.ToolResponse.FunctionResponses[0]
	assert.Equal(t, "call-7", fr.ID)
	assert.Equal(t, "get_weather", fr.Name)
	assert.JSONEq(t, `{"temp":21}`, string(fr.Response))
}

func TestEncodeToolResponseRequiresID(t *testing.T) {
	_, err := EncodeToolResponse(ToolCallResponse{Name: "get_weather"})
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestDecodeSetupComplete(t *testing.T) {
	events, err := DecodeServerMessage([]byte(`{"setupComplete":{}}`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventSetupComplete, events[0].Kind)
}

func TestDecodeModelTurnWithTurnComplete(t *testing.T) {
	raw := `{"serverContent":{
		"modelTurn":{"parts":[
			{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"QUJD"}},
			{"text":"spoken words"}
		]},
		"turnComplete":true
	}}`

	events, err := DecodeServerMessage([]byte(raw))
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, EventChunk, events[0].Kind)
	assert.Equal(t, ModalityAudio, events[0].Chunk.Modality)
	assert.Equal(t, "QUJD", events[0].Chunk.Data)

	assert.Equal(t, EventChunk, events[1].Kind)
	assert.Equal(t, ModalityText, events[1].Chunk.Modality)
	assert.Equal(t, "spoken words", events[1].Chunk.Data)

	assert.Equal(t, EventTurnComplete, events[2].Kind)
}

func TestDecodeInterruptedPrecedesChunks(t *testing.T) {
	raw := `{"serverContent":{"interrupted":true,"modelTurn":{"parts":[{"text":"tail"}]}}}`
	events, err := DecodeServerMessage([]byte(raw))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventInterrupted, events[0].Kind)
	assert.Equal(t, EventChunk, events[1].Kind)
}

func TestDecodeToolCall(t *testing.T) {
	raw := `{"toolCall":{"functionCalls":[
		{"id":"7","name":"get_weather","args":{"city":"Berlin"}},
		{"id":"8","name":"get_calendar","args":{}}
	]}}`
	events, err := DecodeServerMessage([]byte(raw))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventToolCall, events[0].Kind)
	require.Len(t, events[0].Calls, 2)
	assert.Equal(t, "7", events[0].Calls[0].ID)
	assert.Equal(t, "get_weather", events[0].Calls[0].Name)
	assert.JSONEq(t, `{"city":"Berlin"}`, string(events[0].Calls[0].Args))
}

func TestDecodeToolCallMissingID(t *testing.T) {
	raw := `{"toolCall":{"functionCalls":[{"name":"get_weather"}]}}`
	_, err := DecodeServerMessage([]byte(raw))
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestDecodeToolCancellation(t *testing.T) {
	events, err := DecodeServerMessage([]byte(`{"toolCallCancellation":{"ids":["7","9"]}}`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventToolCancel, events[0].Kind)
	assert.Equal(t, []string{"7", "9"}, events[0].CancelIDs)
}

func TestDecodeTranscriptions(t *testing.T) {
	raw := `{"serverContent":{
		"inputTranscription":{"text":"what is the weather"},
		"outputTranscription":{"text":"it is sunny"}
	}}`
	events, err := DecodeServerMessage([]byte(raw))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, TranscriptInput, events[0].Transcript.Source)
	assert.Equal(t, "what is the weather", events[0].Transcript.Text)
	assert.Equal(t, TranscriptOutput, events[1].Transcript.Source)
}

func TestDecodeGoAway(t *testing.T) {
	events, err := DecodeServerMessage([]byte(`{"goAway":{"timeLeft":"10s"}}`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventGoAway, events[0].Kind)
}

func TestDecodeMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":      `{{{`,
		"empty object":  `{}`,
		"empty content": `{"serverContent":{}}`,
		"empty part":    `{"serverContent":{"modelTurn":{"parts":[{}]}}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeServerMessage([]byte(raw))
			assert.ErrorIs(t, err, ErrMalformedFrame)
		})
	}
}
