package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gigpay/gigpay/internal/wallet"
)

// RegisterWalletRoutes wires wallet-related endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Get("/wallets/:ownerId/balance", h.Balance)
	r.Get("/wallets/:ownerId/entries", h.Entries)
	r.Post("/wallets/:ownerId/withdraw", h.Withdraw)
}
