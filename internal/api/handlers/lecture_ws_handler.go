package handlers

import (
	"context"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clarifai/backend/internal/concepts"
	"github.com/clarifai/backend/internal/metrics"
	"github.com/clarifai/backend/internal/notes"
	"github.com/clarifai/backend/internal/session"
	"github.com/clarifai/backend/internal/storage/models"
	"github.com/clarifai/backend/internal/storage/sqlite"
	"github.com/clarifai/backend/pkg/logger"
)

// LectureWSHandler serves the live lecture websockets: transcript
// processing and the stored-lectures listing.
type LectureWSHandler struct {
	gen      concepts.Generator
	notes    *notes.Service
	store    *sqlite.Client
	registry *session.Registry
	counters Counters
}

func NewLectureWSHandler(gen concepts.Generator, notesSvc *notes.Service, store *sqlite.Client, registry *session.Registry, counters Counters) *LectureWSHandler {
	return &LectureWSHandler{
		gen:      gen,
		notes:    notesSvc,
		store:    store,
		registry: registry,
		counters: counters,
	}
}

type processAudioMessage struct {
	Transcript string `json:"transcript"`
	IsFinal    bool   `json:"is_final"`
	UserID     string `json:"user_id"`
	LectureID  string `json:"lecture_id"`
}

// HandleProcessAudio runs the incremental concept extraction loop.
// The connection goroutine owns all session state; a disconnect mid
// generation just drops the result.
func (h *LectureWSHandler) HandleProcessAudio(c *websocket.Conn) {
	metrics.ActiveSessions.Inc()
	sess := session.New(concepts.NewTracker(h.gen))
	h.registry.Register(sess)

	logger.Info("Process-audio session opened", zap.String("session_id", sess.ID))
	defer func() {
		h.registry.Unregister(sess.ID)
		metrics.ActiveSessions.Dec()
		c.Close()
		logger.Info("Process-audio session closed", zap.String("session_id", sess.ID))
	}()

	for {
		var msg processAudioMessage
		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("Process-audio read ended", zap.Error(err))
			return
		}

		if msg.UserID != "" {
			sess.UserID = msg.UserID
		}
		if msg.LectureID != "" {
			sess.LectureID = msg.LectureID
		}

		start := time.Now()
		previous := sess.SwapTranscript(msg.Transcript)
		result := sess.Tracker.Process(context.Background(), msg.Transcript, previous)

		cached := "false"
		if !result.HasNewContent {
			cached = "true"
		}
		metrics.ExtractionDuration.WithLabelValues(cached).Observe(time.Since(start).Seconds())
		metrics.ExtractionTotal.WithLabelValues("success").Inc()

		reply := map[string]interface{}{
			"status":          "success",
			"session_id":      sess.ID,
			"concepts":        result.Concepts,
			"current_concept": result.CurrentConcept,
			"new_content":     result.HasNewContent,
			"flagged_history": sess.History.Records(),
		}
		if err := c.WriteJSON(reply); err != nil {
			logger.Debug("Process-audio write failed", zap.Error(err))
			return
		}

		if msg.IsFinal {
			persistLecture(h.store, h.notes, h.counters, sess, result)
		}
	}
}

// persistLecture stores the organized notes and detected concepts once
// a transcript is final. Persistence problems are logged, never
// surfaced mid-session.
func persistLecture(store *sqlite.Client, notesSvc *notes.Service, counters Counters, sess *session.Session, result concepts.ExtractionResult) {
	if store == nil || sess.Transcript() == "" {
		return
	}

	organized := notesSvc.GenerateOrganizedNotes(context.Background(), sess.Transcript())

	lectureID := sess.LectureID
	if lectureID == "" {
		lectureID = uuid.New().String()
	}

	lecture := &models.Lecture{
		ID:             lectureID,
		UserID:         sess.UserID,
		Title:          organized.Title,
		OrganizedNotes: organized.Content,
		RawTranscript:  sess.Transcript(),
		CreatedAt:      time.Now(),
	}
	if err := store.InsertLecture(lecture); err != nil {
		logger.Error("Failed to persist lecture", zap.Error(err))
		return
	}
	bumpCounter(counters, "lectures_saved")

	for _, con := range result.Concepts {
		if result.CurrentConcept != nil && con.Name == result.CurrentConcept.Name {
			continue
		}
		err := store.InsertConcept(&models.Concept{
			ID:              uuid.New().String(),
			LectureID:       lectureID,
			UserID:          sess.UserID,
			ConceptName:     con.Name,
			TextSnippet:     con.TextSnippet,
			DifficultyLevel: con.DifficultyLevel,
			StartPosition:   con.StartPosition,
			EndPosition:     con.EndPosition,
			CreatedAt:       time.Now(),
		})
		if err != nil {
			logger.Warn("Failed to persist concept", zap.String("concept", con.Name), zap.Error(err))
		}
	}

	for _, record := range sess.History.Records() {
		err := store.InsertFlaggedConcept(&models.FlaggedConcept{
			ID:          uuid.New().String(),
			UserID:      sess.UserID,
			LectureID:   lectureID,
			ConceptName: record.ConceptName,
			Context:     record.Context,
			Explanation: record.Explanation.Explanation,
			CreatedAt:   time.Now(),
		})
		if err != nil {
			logger.Warn("Failed to persist flagged concept", zap.Error(err))
		}
	}

	logger.Info("Lecture persisted",
		zap.String("lecture_id", lectureID),
		zap.String("title", organized.Title),
		zap.Int("concepts", len(result.Concepts)),
	)
}

// HandleLectures returns the stored lectures for a user.
func (h *LectureWSHandler) HandleLectures(c *websocket.Conn) {
	defer c.Close()

	for {
		var msg struct {
			UserID string `json:"user_id"`
		}
		if err := c.ReadJSON(&msg); err != nil {
			return
		}

		if msg.UserID == "" {
			writeWSError(c, "user_id is required")
			continue
		}

		lectures, err := h.store.GetUserLectures(msg.UserID)
		if err != nil {
			logger.Error("Failed to load lectures", zap.Error(err))
			writeWSError(c, "Failed to load lectures")
			continue
		}

		items := make([]map[string]interface{}, 0, len(lectures))
		for _, l := range lectures {
			items = append(items, map[string]interface{}{
				"id":              l.ID,
				"title":           l.Title,
				"organized_notes": l.OrganizedNotes,
				"created_at":      l.CreatedAt.UTC().Format(time.RFC3339),
			})
		}

		if err := c.WriteJSON(map[string]interface{}{
			"status":   "success",
			"lectures": items,
		}); err != nil {
			return
		}
	}
}

func writeWSError(c *websocket.Conn, message string) {
	_ = c.WriteJSON(map[string]interface{}{
		"status":  "error",
		"message": message,
	})
}
