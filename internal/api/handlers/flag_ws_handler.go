package handlers

import (
	"context"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clarifai/backend/internal/explain"
	"github.com/clarifai/backend/internal/metrics"
	"github.com/clarifai/backend/internal/session"
	"github.com/clarifai/backend/internal/storage/models"
	"github.com/clarifai/backend/internal/storage/sqlite"
	"github.com/clarifai/backend/pkg/logger"
)

// ConceptGraph is the slice of the graph store this handler uses:
// flag counting and neighbor lookup for the history view.
type ConceptGraph interface {
	UpsertConcept(ctx context.Context, name string) error
	RelatedConcepts(ctx context.Context, name string, limit int) ([]string, error)
}

// FlagWSHandler serves the flag-concept and flagged-history websockets.
type FlagWSHandler struct {
	explainer *explain.Service
	store     *sqlite.Client
	registry  *session.Registry
	graph     ConceptGraph
	counters  Counters
}

func NewFlagWSHandler(explainer *explain.Service, store *sqlite.Client, registry *session.Registry, graph ConceptGraph, counters Counters) *FlagWSHandler {
	return &FlagWSHandler{
		explainer: explainer,
		store:     store,
		registry:  registry,
		graph:     graph,
		counters:  counters,
	}
}

type flagConceptMessage struct {
	ConceptName string `json:"concept_name"`
	Context     string `json:"context"`
	SessionID   string `json:"session_id"`
	UserID      string `json:"user_id"`
	LectureID   string `json:"lecture_id"`
}

// HandleFlagConcept explains each flagged concept and records it in the
// flag history. A message carrying the session_id from a live
// process-audio connection lands in that session's history; otherwise
// a history local to this socket is used. Persisted rows survive in
// sqlite either way.
func (h *FlagWSHandler) HandleFlagConcept(c *websocket.Conn) {
	defer c.Close()

	local := &explain.History{}

	for {
		var msg flagConceptMessage
		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("Flag-concept read ended", zap.Error(err))
			return
		}

		if msg.ConceptName == "" {
			writeWSError(c, "concept_name is required")
			continue
		}

		history := local
		if msg.SessionID != "" {
			if sess, ok := h.registry.Lookup(msg.SessionID); ok {
				history = sess.History
			}
		}

		result := h.explainer.Explain(context.Background(), history, msg.ConceptName, msg.Context)

		fallbackLabel := "false"
		if result.Fallback {
			fallbackLabel = "true"
			metrics.FallbacksServed.WithLabelValues("explanation").Inc()
		}
		metrics.ExplanationsTotal.WithLabelValues(fallbackLabel).Inc()

		reply := map[string]interface{}{
			"status":      "success",
			"explanation": result.Explanation,
			"timestamp":   result.Timestamp,
			"fallback":    result.Fallback,
		}
		if err := c.WriteJSON(reply); err != nil {
			logger.Debug("Flag-concept write failed", zap.Error(err))
			return
		}

		h.persistFlag(msg, *result)
	}
}

func (h *FlagWSHandler) persistFlag(msg flagConceptMessage, result explain.Result) {
	bumpCounter(h.counters, "concepts_flagged")

	if h.graph != nil {
		if err := h.graph.UpsertConcept(context.Background(), msg.ConceptName); err != nil {
			logger.Debug("Failed to bump concept flag count", zap.Error(err))
		}
	}

	if h.store == nil || msg.UserID == "" {
		return
	}

	err := h.store.InsertFlaggedConcept(&models.FlaggedConcept{
		ID:          uuid.New().String(),
		UserID:      msg.UserID,
		LectureID:   msg.LectureID,
		ConceptName: msg.ConceptName,
		Context:     msg.Context,
		Explanation: result.Explanation.Explanation,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		logger.Warn("Failed to persist flagged concept",
			zap.String("concept", msg.ConceptName),
			zap.Error(err),
		)
	}
}

// HandleFlaggedHistory returns the persisted flagged concepts for a user.
func (h *FlagWSHandler) HandleFlaggedHistory(c *websocket.Conn) {
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

		flagged, err := h.store.GetFlaggedConcepts(msg.UserID)
		if err != nil {
			logger.Error("Failed to load flagged concepts", zap.Error(err))
			writeWSError(c, "Failed to load flagged history")
			continue
		}

		items := make([]map[string]interface{}, 0, len(flagged))
		for _, f := range flagged {
			item := map[string]interface{}{
				"concept_name": f.ConceptName,
				"context":      f.Context,
				"explanation":  f.Explanation,
				"lecture_id":   f.LectureID,
				"timestamp":    f.CreatedAt.UTC().Format(time.RFC3339),
			}
			if h.graph != nil {
				if related, err := h.graph.RelatedConcepts(context.Background(), f.ConceptName, 5); err == nil && len(related) > 0 {
					item["related_concepts"] = related
				}
			}
			items = append(items, item)
		}

		if err := c.WriteJSON(map[string]interface{}{
			"status":           "success",
			"flagged_concepts": items,
		}); err != nil {
			return
		}
	}
}
