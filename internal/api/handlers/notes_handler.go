package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clarifai/backend/internal/notes"
	"github.com/clarifai/backend/internal/storage/models"
	"github.com/clarifai/backend/internal/storage/sqlite"
	"github.com/clarifai/backend/pkg/logger"
)

// NotesHandler serves the notes import endpoint used to ground
// teach-to-learn sessions.
type NotesHandler struct {
	store *sqlite.Client
}

func NewNotesHandler(store *sqlite.Client) *NotesHandler {
	return &NotesHandler{store: store}
}

type importNotesRequest struct {
	HTML   string `json:"html"`
	Title  string `json:"title"`
	Source string `json:"source"`
}

// ImportNotes converts an uploaded HTML document to plain text and
// stores it for later reference by id.
func (h *NotesHandler) ImportNotes(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	var req importNotesRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.HTML == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "html is required",
		})
	}

	imported, err := notes.ImportHTML(req.HTML)
	if err != nil {
		logger.Warn("Notes import rejected", zap.Error(err))
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "Document has no importable text",
		})
	}

	title := req.Title
	if title == "" {
		title = imported.Title
	}

	note := &models.Note{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     title,
		Content:   imported.Content,
		Source:    req.Source,
		CreatedAt: time.Now(),
	}
	if err := h.store.InsertNote(note); err != nil {
		logger.Error("Failed to store imported notes", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store notes",
		})
	}

	logger.Info("Notes imported",
		zap.String("notes_id", note.ID),
		zap.Int("content_length", len(note.Content)),
	)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"notes_id": note.ID,
		"title":    note.Title,
		"length":   len(note.Content),
	})
}

// GetNote returns one stored note.
func (h *NotesHandler) GetNote(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	noteID := c.Params("id")

	note, err := h.store.GetNote(noteID)
	if err != nil {
		logger.Error("Failed to load note", zap.String("notes_id", noteID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load note",
		})
	}
	if note == nil || note.UserID != userID {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Note not found",
		})
	}

	return c.JSON(fiber.Map{
		"notes_id":   note.ID,
		"title":      note.Title,
		"content":    note.Content,
		"source":     note.Source,
		"created_at": note.CreatedAt.UTC().Format(time.RFC3339),
	})
}
