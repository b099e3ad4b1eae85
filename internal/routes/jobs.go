package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gigpay/gigpay/internal/escrow"
)

// RegisterJobRoutes wires the job money-flow endpoints.
func RegisterJobRoutes(r fiber.Router, h *escrow.Handler) {
	r.Post("/jobs", h.CreateJob)
	r.Get("/jobs/:jobId", h.Job)
	r.Post("/jobs/:jobId/award", h.Award)
	r.Post("/jobs/:jobId/complete", h.Complete)
	r.Post("/jobs/:jobId/cancel", h.Cancel)
}
