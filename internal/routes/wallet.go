package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/billpay/internal/pin"
	"github.com/congo-pay/billpay/internal/provider"
	"github.com/congo-pay/billpay/internal/wallet"
)

// RegisterWalletRoutes wires account, PIN and catalog endpoints.
func RegisterWalletRoutes(user, admin fiber.Router, h *wallet.Handler, pins *pin.Handler, catalog provider.Catalog, pinLimiter fiber.Handler) {
	user.Get("/wallet", h.Me)
	user.Put("/pin", pinLimiter, pins.Set)
	user.Post("/pin/verify", pinLimiter, pins.Verify)
	user.Delete("/pin", pinLimiter, pins.ResetSelf)

	listing := catalog.List()
	user.Get("/catalog", func(c *fiber.Ctx) error {
		return c.JSON(listing)
	})

	admin.Post("/accounts", h.Open)
	admin.Post("/accounts/:id/deactivate", h.Deactivate)
	admin.Delete("/accounts/:id/pin", pins.ResetAccount)
}
