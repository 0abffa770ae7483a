package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/billpay/internal/auth"
)

// RegisterAuthRoutes wires token issuance for operators.
func RegisterAuthRoutes(admin fiber.Router, h *auth.Handler) {
	admin.Post("/accounts/:id/token", h.Issue)
}
