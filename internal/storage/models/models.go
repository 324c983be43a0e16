package models

import "time"

type User struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	Disabled     bool
	CreatedAt    time.Time
	LastLogin    *time.Time
}

type Lecture struct {
	ID             string
	UserID         string
	Title          string
	OrganizedNotes string
	RawTranscript  string
	CreatedAt      time.Time
}

// Concept is a detected-but-not-flagged concept tied to a lecture.
type Concept struct {
	ID              string
	LectureID       string
	UserID          string
	ConceptName     string
	TextSnippet     string
	DifficultyLevel int
	StartPosition   int
	EndPosition     int
	CreatedAt       time.Time
}

// FlaggedConcept is a concept the student explicitly asked about,
// stored with the explanation it received.
type FlaggedConcept struct {
	ID          string
	UserID      string
	LectureID   string
	ConceptName string
	Context     string
	Explanation string
	CreatedAt   time.Time
}

// Note is imported reference material (for teach-to-learn grounding).
type Note struct {
	ID        string
	UserID    string
	Title     string
	Content   string
	Source    string
	CreatedAt time.Time
}
