package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/clarifai/backend/pkg/logger"
)

// Counters is the durable usage-counter surface backed by redis. Nil
// when the cache is unavailable; writers skip it and the stats
// endpoint reports it as down.
type Counters interface {
	IncrementCounter(ctx context.Context, name string) error
	GetCounter(ctx context.Context, name string) (int64, error)
}

// statCounters are the counter names the stats endpoint reports.
var statCounters = []string{"lectures_saved", "concepts_flagged"}

func bumpCounter(counters Counters, name string) {
	if counters == nil {
		return
	}
	if err := counters.IncrementCounter(context.Background(), name); err != nil {
		logger.Debug("Failed to bump usage counter", zap.String("counter", name), zap.Error(err))
	}
}

// StatsHandler reports the durable usage counters.
type StatsHandler struct {
	counters Counters
}

func NewStatsHandler(counters Counters) *StatsHandler {
	return &StatsHandler{counters: counters}
}

func (h *StatsHandler) GetStats(c *fiber.Ctx) error {
	if h.counters == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Usage counters unavailable",
		})
	}

	stats := fiber.Map{}
	for _, name := range statCounters {
		val, err := h.counters.GetCounter(c.UserContext(), name)
		if err != nil {
			logger.Warn("Failed to read usage counter", zap.String("counter", name), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to read usage counters",
			})
		}
		stats[name] = val
	}

	return c.JSON(stats)
}
