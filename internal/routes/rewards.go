package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gigpay/gigpay/internal/rewards"
)

// RegisterRewardRoutes wires the action-reward endpoint.
func RegisterRewardRoutes(r fiber.Router, h *rewards.Handler) {
	r.Post("/rewards/:userId/grant", h.Grant)
}
