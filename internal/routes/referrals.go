package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gigpay/gigpay/internal/referral"
)

// RegisterReferralRoutes wires referral registration, completion, and the
// accrual/claim endpoints.
func RegisterReferralRoutes(r fiber.Router, h *referral.Handler) {
	r.Post("/referrals", h.Register)
	r.Post("/referrals/:referralId/complete", h.Complete)
	r.Get("/referrals/:referrerId/challenge", h.Challenge)
	r.Post("/referrals/:referrerId/claim", h.Claim)
}
