// Package concepts extracts lecture concepts a listener may find
// difficult from a growing transcript, one websocket session per
// Tracker.
package concepts

type Concept struct {
	Name            string `json:"concept_name"`
	TextSnippet     string `json:"text_snippet"`
	StartPosition   int    `json:"start_position"`
	EndPosition     int    `json:"end_position"`
	DifficultyLevel int    `json:"difficulty_level"`
	IsCurrent       bool   `json:"is_current"`
}

type ExtractionResult struct {
	Concepts       []Concept `json:"concepts"`
	CurrentConcept *Concept  `json:"current_concept"`
	HasNewContent  bool      `json:"new_content"`
}
