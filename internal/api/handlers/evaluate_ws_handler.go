package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/clarifai/backend/internal/evaluation"
	"github.com/clarifai/backend/internal/metrics"
	"github.com/clarifai/backend/internal/storage/sqlite"
	"github.com/clarifai/backend/pkg/logger"
)

// EvaluateWSHandler serves the evaluate-understanding and
// teach-to-learn websockets.
type EvaluateWSHandler struct {
	evaluator *evaluation.Evaluator
	gen       evaluation.Generator
	store     *sqlite.Client
}

func NewEvaluateWSHandler(evaluator *evaluation.Evaluator, gen evaluation.Generator, store *sqlite.Client) *EvaluateWSHandler {
	return &EvaluateWSHandler{
		evaluator: evaluator,
		gen:       gen,
		store:     store,
	}
}

type evaluateMessage struct {
	LectureTranscript string `json:"lecture_transcript"`
	Reference         string `json:"reference"`
	UserExplanation   string `json:"user_explanation"`
	IsFinal           bool   `json:"is_final"`
}

// HandleEvaluate scores each final explanation against the lecture
// content. Interim fragments never reach the model.
func (h *EvaluateWSHandler) HandleEvaluate(c *websocket.Conn) {
	defer c.Close()

	for {
		var msg evaluateMessage
		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("Evaluate read ended", zap.Error(err))
			return
		}

		if !msg.IsFinal || msg.UserExplanation == "" {
			continue
		}

		reference := msg.Reference
		if reference == "" {
			reference = msg.LectureTranscript
		}

		u := h.evaluator.Evaluate(context.Background(), reference, msg.UserExplanation)
		metrics.UnderstandingLevel.Observe(float64(u.Level))

		reply := map[string]interface{}{
			"status":              "success",
			"evaluation":          u,
			"understanding_score": u.ScorePercent,
		}
		if err := c.WriteJSON(reply); err != nil {
			logger.Debug("Evaluate write failed", zap.Error(err))
			return
		}
	}
}

type teachMessage struct {
	Topic      string `json:"topic"`
	NotesID    string `json:"notes_id"`
	Notes      string `json:"notes"`
	Transcript string `json:"transcript"`
	IsFinal    bool   `json:"is_final"`
	Stop       bool   `json:"stop"`
}

// HandleTeachToLearn runs the teach-to-learn state machine for one
// connection. The first accepted message must carry a topic; after
// that each final utterance gets an evaluated reply until the session
// completes.
func (h *EvaluateWSHandler) HandleTeachToLearn(c *websocket.Conn) {
	defer c.Close()

	teach := evaluation.NewTeachSession(h.evaluator, h.gen)

	for {
		var msg teachMessage
		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("Teach read ended", zap.Error(err))
			return
		}

		if msg.Stop {
			turn := teach.Stop(context.Background())
			metrics.TeachSessionsCompleted.WithLabelValues("stopped").Inc()
			if err := c.WriteJSON(turn); err != nil {
				return
			}
			continue
		}

		if teach.State() == evaluation.StateAwaitingTopic {
			turn, err := teach.Start(context.Background(), msg.Topic, h.resolveNotes(msg))
			if err != nil {
				if errors.Is(err, evaluation.ErrMissingTopic) {
					writeWSError(c, "A topic is required to start a teach session")
					continue
				}
				logger.Error("Failed to start teach session", zap.Error(err))
				writeWSError(c, "Failed to start teach session")
				continue
			}
			if err := c.WriteJSON(turn); err != nil {
				return
			}
			continue
		}

		turn, err := teach.HandleUtterance(context.Background(), msg.Transcript, msg.IsFinal)
		if err != nil {
			writeWSError(c, err.Error())
			continue
		}
		if turn == nil {
			continue
		}

		if turn.Status == evaluation.StatusComplete {
			metrics.TeachSessionsCompleted.WithLabelValues("mastery").Inc()
		}
		if err := c.WriteJSON(turn); err != nil {
			return
		}
	}
}

// resolveNotes loads stored notes when the init message references
// them by id, otherwise uses the inline notes text.
func (h *EvaluateWSHandler) resolveNotes(msg teachMessage) string {
	if msg.NotesID == "" || h.store == nil {
		return msg.Notes
	}

	note, err := h.store.GetNote(msg.NotesID)
	if err != nil || note == nil {
		logger.Warn("Referenced notes not found", zap.String("notes_id", msg.NotesID), zap.Error(err))
		return msg.Notes
	}
	return note.Content
}
