package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"baccarat/internal/cache"
)

const DEFAULT_ROUND_LIMIT = 20

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	health := fiber.Map{
		"database": fiber.Map{"status": "disabled"},
		"cache":    fiber.Map{"status": "disabled"},
	}
	if s.db != nil {
		health["database"] = s.db.Health()
	}
	if s.cache != nil {
		cacheHealth := s.cache.Health()
		if cacheHealth["status"] == "up" {
			ctx, cancel := context.WithTimeout(c.Context(), time.Second)
			for k, v := range cache.MirrorStatus(ctx, s.cache.GetClient()) {
				cacheHealth[k] = v
			}
			cancel()
		}
		health["cache"] = cacheHealth
	}

	snapshot := s.engine.Snapshot()
	table := fiber.Map{
		"status":            "running",
		"round_id":          snapshot.RoundID,
		"phase":             snapshot.Status,
		"seated":            len(s.engine.Participants()),
		"connected_clients": s.hub.GetClientCount(),
	}
	if err := s.engine.Err(); err != nil {
		table["status"] = "halted"
		table["error"] = err.Error()
		health["table"] = table
		return c.Status(fiber.StatusServiceUnavailable).JSON(health)
	}
	if !s.engine.Running() {
		table["status"] = "stopped"
	}
	health["table"] = table
	return c.JSON(health)
}

func (s *FiberServer) getTableStateHandler(c *fiber.Ctx) error {
	return c.JSON(s.engine.Snapshot())
}

func (s *FiberServer) getLedgerHandler(c *fiber.Ctx) error {
	return c.JSON(s.engine.Participants())
}

func (s *FiberServer) getRoundsHandler(c *fiber.Ctx) error {
	if s.db == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Round archive is not configured",
		})
	}

	limit := c.QueryInt("limit", DEFAULT_ROUND_LIMIT)
	if limit <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "limit must be a positive integer",
		})
	}

	rounds, err := s.db.RecentRounds(c.Context(), limit)
	if err != nil {
		s.logger.Error("list rounds", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load rounds",
		})
	}
	return c.JSON(rounds)
}
