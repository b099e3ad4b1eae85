package wallet

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gigpay/gigpay/internal/ledger"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type balanceResponse struct {
	OwnerID        string `json:"owner_id"`
	Currency       string `json:"currency"`
	Available      int64  `json:"available_balance"`
	Pending        int64  `json:"pending_balance"`
	Escrow         int64  `json:"escrow_balance"`
	TotalEarned    int64  `json:"total_earned"`
	TotalWithdrawn int64  `json:"total_withdrawn"`
}

func toBalanceResponse(w ledger.Wallet) balanceResponse {
	return balanceResponse{
		OwnerID:        w.OwnerID,
		Currency:       w.Currency,
		Available:      w.Available,
		Pending:        w.Pending,
		Escrow:         w.Escrow,
		TotalEarned:    w.TotalEarned,
		TotalWithdrawn: w.TotalWithdrawn,
	}
}

type entryResponse struct {
	ID        string            `json:"id"`
	Amount    int64             `json:"amount"`
	Kind      string            `json:"kind"`
	Status    string            `json:"status"`
	RefKind   string            `json:"ref_kind,omitempty"`
	RefID     string            `json:"ref_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt string            `json:"created_at"`
}

func toEntryResponses(entries []ledger.Entry) []entryResponse {
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{
			ID:        e.ID,
			Amount:    e.Amount,
			Kind:      string(e.Kind),
			Status:    string(e.Status),
			RefKind:   e.Reference.Kind,
			RefID:     e.Reference.ID,
			Metadata:  e.Metadata,
			CreatedAt: e.CreatedAt.Format(time.RFC3339Nano),
		})
	}
	return out
}

// Balance returns the owner's wallet balances.
func (h *Handler) Balance(c *fiber.Ctx) error {
	ownerID := c.Params("ownerId")
	w, err := h.service.Balance(c.UserContext(), ownerID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(toBalanceResponse(w))
}

// Entries returns the owner's ledger statement.
func (h *Handler) Entries(c *fiber.Ctx) error {
	ownerID := c.Params("ownerId")
	entries, err := h.service.Statement(c.UserContext(), ownerID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"entries": toEntryResponses(entries)})
}

type withdrawRequest struct {
	Amount int64 `json:"amount"`
}

// Withdraw debits the wallet and records the withdrawal.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	ownerID := c.Params("ownerId")

	var req withdrawRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	res, err := h.service.Withdraw(c.UserContext(), ownerID, req.Amount)
	if err != nil {
		var ife *ledger.InsufficientFundsError
		switch {
		case errors.As(err, &ife):
			return c.Status(http.StatusPaymentRequired).JSON(fiber.Map{
				"error":     "insufficient funds",
				"shortfall": ife.Shortfall(),
			})
		case errors.Is(err, ledger.ErrNotFound):
			return fiber.NewError(http.StatusNotFound, err.Error())
		default:
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"entry_id": res.Entry.ID,
		"amount":   res.Entry.Amount,
		"wallet":   toBalanceResponse(res.Wallet),
	})
}
