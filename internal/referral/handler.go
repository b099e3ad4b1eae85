package referral

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gigpay/gigpay/internal/ledger"
)

// Handler exposes referral HTTP endpoints.
type Handler struct {
	engine *Engine
}

// NewHandler builds the referral HTTP handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrAlreadyCompleted), errors.Is(err, ErrRefereeAlreadyReferred):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrNothingToClaim):
		return fiber.NewError(http.StatusConflict, err.Error())
	default:
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
}

type registerRequest struct {
	ReferrerID string `json:"referrer_id"`
	RefereeID  string `json:"referee_id"`
}

// Register records a referral relationship.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	ref, err := h.engine.Register(c.UserContext(), req.ReferrerID, req.RefereeID)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"id":          ref.ID,
		"referrer_id": ref.ReferrerID,
		"referee_id":  ref.RefereeID,
		"status":      ref.Status,
	})
}

type completeRequest struct {
	Action string `json:"action"`
}

// Complete marks a referral as completed after a qualifying referee action.
func (h *Handler) Complete(c *fiber.Ctx) error {
	var req completeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	ref, err := h.engine.CompleteReferral(c.UserContext(), c.Params("referralId"), req.Action)
	if err != nil {
		return mapError(err)
	}
	resp := fiber.Map{
		"id":     ref.ID,
		"status": ref.Status,
		"action": ref.Action,
	}
	if ref.CompletedAt != nil {
		resp["completed_at"] = ref.CompletedAt.Format(time.RFC3339Nano)
	}
	return c.Status(http.StatusOK).JSON(resp)
}

// Challenge reports the referrer's accrual state.
func (h *Handler) Challenge(c *fiber.Ctx) error {
	view, err := h.engine.Challenge(c.UserContext(), c.Params("referrerId"))
	if err != nil {
		return mapError(err)
	}

	history := make([]fiber.Map, 0, len(view.ClaimHistory))
	for _, entry := range view.ClaimHistory {
		history = append(history, fiber.Map{
			"entry_id":   entry.ID,
			"amount":     entry.Amount,
			"claimed_at": entry.CreatedAt.Format(time.RFC3339Nano),
		})
	}

	resp := fiber.Map{
		"completed_count":    view.CompletedCount,
		"current_multiplier": view.CurrentMultiplier,
		"claimable_amount":   view.ClaimableAmount,
		"claim_history":      history,
	}
	if view.NextTier != nil {
		resp["next_tier"] = fiber.Map{
			"count":      view.NextTier.Count,
			"multiplier": view.NextTier.Multiplier,
		}
	}
	return c.Status(http.StatusOK).JSON(resp)
}

// Claim pays out the accrued, unclaimed reward.
func (h *Handler) Claim(c *fiber.Ctx) error {
	res, err := h.engine.Claim(c.UserContext(), c.Params("referrerId"))
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"claimed_amount": res.ClaimedAmount,
		"new_balance":    res.NewBalance,
	})
}
