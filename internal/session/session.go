// Package session holds the per-connection state. The tracker and
// transcript are touched only by the owning connection goroutine; the
// flag history is internally locked because the flag-concept socket
// appends to it through the registry.
package session

import (
	"github.com/google/uuid"

	"github.com/clarifai/backend/internal/concepts"
	"github.com/clarifai/backend/internal/explain"
)

type Session struct {
	ID        string
	UserID    string
	LectureID string

	Tracker *concepts.Tracker
	History *explain.History

	lastTranscript string
}

func New(tracker *concepts.Tracker) *Session {
	return &Session{
		ID:      uuid.New().String(),
		Tracker: tracker,
		History: &explain.History{},
	}
}

// SwapTranscript records the latest transcript and returns the one it
// replaces, which the tracker uses to detect growth.
func (s *Session) SwapTranscript(transcript string) (previous string) {
	previous = s.lastTranscript
	s.lastTranscript = transcript
	return previous
}

// Transcript returns the latest transcript seen on this session.
func (s *Session) Transcript() string {
	return s.lastTranscript
}
