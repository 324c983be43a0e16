package validation

import (
	"net/mail"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var (
	sqlInjectionPattern = regexp.MustCompile(`(?i)(union\s+select|insert\s+into|drop\s+table|delete\s+from|exec\s*\()`)
	xssPattern          = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)
)

type Config struct {
	MaxFieldLength int
	MaxImportSize  int
	Logger         *zap.Logger
}

// Middleware validates the REST request bodies. Websocket payloads are
// validated by their handlers because they arrive after the upgrade.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxFieldLength == 0 {
		cfg.MaxFieldLength = 5000
	}
	if cfg.MaxImportSize == 0 {
		cfg.MaxImportSize = 5 * 1024 * 1024
	}

	return func(c *fiber.Ctx) error {
		path := c.Path()

		if c.Method() == fiber.MethodPost && strings.HasPrefix(path, "/api/v1/auth") {
			var req map[string]interface{}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			email, ok := req["email"].(string)
			if !ok || email == "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Email is required",
				})
			}
			if _, err := mail.ParseAddress(email); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid email address",
				})
			}
		}

		if c.Method() == fiber.MethodPost && strings.HasPrefix(path, "/api/v1/notes/import") {
			if len(c.Body()) > cfg.MaxImportSize {
				return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
					"error": "Imported document exceeds maximum size",
				})
			}
		}

		if c.Method() == fiber.MethodPost && strings.HasPrefix(path, "/api/v1") {
			var req map[string]interface{}
			if err := c.BodyParser(&req); err == nil {
				for field, raw := range req {
					value, ok := raw.(string)
					if !ok {
						continue
					}
					if len(value) > cfg.MaxFieldLength && field != "content" && field != "transcript" {
						return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
							"error": "Field exceeds maximum length",
						})
					}
					if containsInjection(value) {
						cfg.Logger.Warn("Suspicious request payload",
							zap.String("ip", c.IP()),
							zap.String("field", field),
						)
						return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
							"error": "Invalid request content",
						})
					}
				}
			}
		}

		return c.Next()
	}
}

func containsInjection(input string) bool {
	return sqlInjectionPattern.MatchString(input) || xssPattern.MatchString(input)
}
