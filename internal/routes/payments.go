package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/billpay/internal/payments"
)

// RegisterPaymentRoutes wires transaction endpoints and the review queue.
func RegisterPaymentRoutes(user, admin fiber.Router, h *payments.Handler, pinLimiter fiber.Handler) {
	user.Post("/transactions", pinLimiter, h.Initiate)
	user.Get("/transactions", h.History)
	user.Get("/transactions/:reference", h.Get)
	admin.Get("/reviews", h.Reviews)
	admin.Post("/reviews/:reference/resolve", h.Resolve)
}
