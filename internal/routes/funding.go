package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/billpay/internal/funding"
)

// RegisterFundingRoutes wires wallet credits and virtual-account issuance.
func RegisterFundingRoutes(user, admin fiber.Router, h *funding.Handler) {
	user.Post("/virtual-account", h.IssueVirtualAccount)
	admin.Post("/accounts/:id/fund", h.Fund)
	admin.Post("/accounts/:id/rewards", h.Reward)
}
