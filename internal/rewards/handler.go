package rewards

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/gigpay/gigpay/internal/ledger"
)

// Handler exposes the reward grant endpoint.
type Handler struct {
	service *Service
}

// NewHandler builds the rewards HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type grantRequest struct {
	Action string `json:"action"`
}

// Grant credits the configured reward for an action.
func (h *Handler) Grant(c *fiber.Ctx) error {
	var req grantRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	entry, err := h.service.Grant(c.UserContext(), c.Params("userId"), req.Action)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			return fiber.NewError(http.StatusNotFound, err.Error())
		case errors.Is(err, ErrLimitReached):
			return fiber.NewError(http.StatusConflict, err.Error())
		default:
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"entry_id": entry.ID,
		"amount":   entry.Amount,
		"action":   req.Action,
	})
}
