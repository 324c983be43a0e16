// Package transcription streams microphone audio to the speech vendor
// and emits interim and final transcript fragments.
package transcription

import "sync"

// Result is one transcript fragment. Interim fragments are revised by
// later ones; only final fragments are appended to the session buffer.
type Result struct {
	Text    string
	IsFinal bool
}

// Stream is a live transcription session for one connection.
type Stream interface {
	// Send forwards one raw audio chunk.
	Send(chunk []byte) error
	// Results delivers transcript fragments until the stream closes.
	Results() <-chan Result
	// Transcript returns the accumulated final transcript so far.
	Transcript() string
	Close() error
}

type Config struct {
	APIKey      string
	Model       string
	Language    string
	Tier        string
	SampleRate  int
	Endpointing int
}

// buffer accumulates final fragments. The vendor read loop writes it
// while the connection goroutine reads it, hence the lock.
type buffer struct {
	mu   sync.Mutex
	text string
}

func (b *buffer) append(fragment string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.text == "" {
		b.text = fragment
	} else {
		b.text += " " + fragment
	}
	return b.text
}

func (b *buffer) snapshot() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}
