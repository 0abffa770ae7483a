package wallet

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/billpay/internal/auth"
)

// Handler exposes account HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type openRequest struct {
	OwnerID string `json:"owner_id"`
}

type accountResponse struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Status  string `json:"status"`
}

// Open provisions an account for an owner. Admin only.
func (h *Handler) Open(c *fiber.Ctx) error {
	var req openRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	account, err := h.service.Open(c.UserContext(), OpenInput{OwnerID: req.OwnerID})
	if err != nil {
		if errors.Is(err, ErrInvalidOwner) {
			return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(accountResponse{ID: account.ID, OwnerID: account.OwnerID, Status: account.Status})
}

// Deactivate marks an account inactive. Admin only.
func (h *Handler) Deactivate(c *fiber.Ctx) error {
	account, err := h.service.Deactivate(c.UserContext(), c.Params("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(accountResponse{ID: account.ID, OwnerID: account.OwnerID, Status: account.Status})
}

// Me returns the caller's account summary.
func (h *Handler) Me(c *fiber.Ctx) error {
	summary, err := h.service.Summary(c.UserContext(), auth.AccountID(c))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(summary)
}
