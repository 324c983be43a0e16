package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/clarifai/backend/internal/storage/sqlite"
	"github.com/clarifai/backend/pkg/logger"
)

// LectureHandler serves the stored-lecture REST surface. The caller's
// identity comes from the auth middleware via Locals.
type LectureHandler struct {
	store *sqlite.Client
}

func NewLectureHandler(store *sqlite.Client) *LectureHandler {
	return &LectureHandler{store: store}
}

func (h *LectureHandler) GetLectures(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	lectures, err := h.store.GetUserLectures(userID)
	if err != nil {
		logger.Error("Failed to load lectures", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load lectures",
		})
	}

	items := make([]fiber.Map, 0, len(lectures))
	for _, l := range lectures {
		items = append(items, fiber.Map{
			"id":         l.ID,
			"title":      l.Title,
			"created_at": l.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	return c.JSON(fiber.Map{
		"lectures": items,
		"count":    len(items),
	})
}

func (h *LectureHandler) GetLecture(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	lectureID := c.Params("id")

	lecture, err := h.store.GetLecture(lectureID)
	if err != nil {
		logger.Error("Failed to load lecture", zap.String("lecture_id", lectureID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load lecture",
		})
	}
	if lecture == nil || lecture.UserID != userID {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Lecture not found",
		})
	}

	return c.JSON(fiber.Map{
		"id":              lecture.ID,
		"title":           lecture.Title,
		"organized_notes": lecture.OrganizedNotes,
		"raw_transcript":  lecture.RawTranscript,
		"created_at":      lecture.CreatedAt.UTC().Format(time.RFC3339),
	})
}

func (h *LectureHandler) GetLectureConcepts(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	lectureID := c.Params("id")

	lecture, err := h.store.GetLecture(lectureID)
	if err != nil {
		logger.Error("Failed to load lecture", zap.String("lecture_id", lectureID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load lecture",
		})
	}
	if lecture == nil || lecture.UserID != userID {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Lecture not found",
		})
	}

	conceptRows, err := h.store.GetConceptsByLecture(lectureID)
	if err != nil {
		logger.Error("Failed to load concepts", zap.String("lecture_id", lectureID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load concepts",
		})
	}

	items := make([]fiber.Map, 0, len(conceptRows))
	for _, con := range conceptRows {
		items = append(items, fiber.Map{
			"concept_name":     con.ConceptName,
			"text_snippet":     con.TextSnippet,
			"difficulty_level": con.DifficultyLevel,
			"start_position":   con.StartPosition,
			"end_position":     con.EndPosition,
		})
	}

	return c.JSON(fiber.Map{
		"lecture_id": lectureID,
		"concepts":   items,
		"count":      len(items),
	})
}

func (h *LectureHandler) GetFlaggedConcepts(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	flagged, err := h.store.GetFlaggedConcepts(userID)
	if err != nil {
		logger.Error("Failed to load flagged concepts", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load flagged concepts",
		})
	}

	items := make([]fiber.Map, 0, len(flagged))
	for _, f := range flagged {
		items = append(items, fiber.Map{
			"concept_name": f.ConceptName,
			"context":      f.Context,
			"explanation":  f.Explanation,
			"lecture_id":   f.LectureID,
			"timestamp":    f.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	return c.JSON(fiber.Map{
		"flagged_concepts": items,
		"count":            len(items),
	})
}
