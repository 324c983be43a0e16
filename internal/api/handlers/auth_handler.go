package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/clarifai/backend/internal/middleware/auth"
	"github.com/clarifai/backend/internal/storage/models"
	"github.com/clarifai/backend/internal/storage/sqlite"
	"github.com/clarifai/backend/pkg/logger"
)

// AuthHandler serves registration and login.
type AuthHandler struct {
	store      *sqlite.Client
	issuer     *auth.TokenIssuer
	bcryptCost int
}

func NewAuthHandler(store *sqlite.Client, issuer *auth.TokenIssuer, bcryptCost int) *AuthHandler {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &AuthHandler{
		store:      store,
		issuer:     issuer,
		bcryptCost: bcryptCost,
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Email == "" || len(req.Password) < 8 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Email and a password of at least 8 characters are required",
		})
	}

	existing, err := h.store.GetUserByEmail(req.Email)
	if err != nil {
		logger.Error("Failed to look up user", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Registration failed",
		})
	}
	if existing != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "An account with this email already exists",
		})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), h.bcryptCost)
	if err != nil {
		logger.Error("Failed to hash password", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Registration failed",
		})
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Email:        req.Email,
		FullName:     req.FullName,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
	if err := h.store.InsertUser(user); err != nil {
		logger.Error("Failed to create user", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Registration failed",
		})
	}

	token, err := h.issuer.Issue(user.ID, user.Email)
	if err != nil {
		logger.Error("Failed to issue token", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Registration failed",
		})
	}

	logger.Info("User registered", zap.String("user_id", user.ID))

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"user_id":      user.ID,
		"email":        user.Email,
		"access_token": token,
		"token_type":   "bearer",
	})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	user, err := h.store.GetUserByEmail(req.Email)
	if err != nil {
		logger.Error("Failed to look up user", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Login failed",
		})
	}
	if user == nil || user.Disabled {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid email or password",
		})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		logger.Debug("Password mismatch", zap.String("user_id", user.ID))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid email or password",
		})
	}

	if err := h.store.TouchLastLogin(user.ID); err != nil {
		logger.Warn("Failed to record login time", zap.Error(err))
	}

	token, err := h.issuer.Issue(user.ID, user.Email)
	if err != nil {
		logger.Error("Failed to issue token", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Login failed",
		})
	}

	return c.JSON(fiber.Map{
		"user_id":      user.ID,
		"email":        user.Email,
		"access_token": token,
		"token_type":   "bearer",
	})
}
