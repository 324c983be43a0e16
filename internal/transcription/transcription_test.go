package transcription

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferAccumulatesFinals(t *testing.T) {
	var b buffer
	assert.Equal(t, "hello", b.append("hello"))
	assert.Equal(t, "hello world", b.append("world"))
	assert.Equal(t, "hello world", b.snapshot())
}

func TestDeepgramMessageDecoding(t *testing.T) {
	raw := `{"is_final": true, "channel": {"alternatives": [{"transcript": "a base case terminates"}]}}`

	var msg deepgramMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	assert.True(t, msg.IsFinal)
	require.Len(t, msg.Channel.Alternatives, 1)
	assert.Equal(t, "a base case terminates", msg.Channel.Alternatives[0].Transcript)
}

func TestDemoStreamEmitsScript(t *testing.T) {
	s := newDemoStream()
	defer s.Close()

	first := <-s.Results()
	assert.True(t, first.IsFinal)
	assert.Equal(t, demoScript[0], first.Text)
	assert.Equal(t, demoScript[0], s.Transcript())

	second := <-s.Results()
	assert.Equal(t, demoScript[1], second.Text)
	assert.Contains(t, s.Transcript(), demoScript[0])
	assert.Contains(t, s.Transcript(), demoScript[1])
}

func TestDemoStreamSendIsNoop(t *testing.T) {
	s := newDemoStream()
	defer s.Close()
	assert.NoError(t, s.Send([]byte{1, 2, 3}))
}

func TestDemoStreamCloseStops(t *testing.T) {
	s := newDemoStream()
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "double close is safe")

	// Channel drains and closes after stop.
	for range s.Results() {
	}
}
