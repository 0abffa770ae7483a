package pin

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/billpay/internal/auth"
)

// Handler exposes PIN management for the authenticated account.
type Handler struct {
	service *Service
}

// NewHandler builds a PIN handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type setRequest struct {
	PIN        string `json:"pin"`
	CurrentPIN string `json:"current_pin"`
}

type verifyRequest struct {
	PIN string `json:"pin"`
}

// Set stores or changes the caller's PIN.
func (h *Handler) Set(c *fiber.Ctx) error {
	var req setRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.service.SetPin(c.UserContext(), auth.AccountID(c), req.PIN, req.CurrentPIN); err != nil {
		return mapError(err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// Verify checks a PIN without running a transaction. Failures count toward
// the lockout.
func (h *Handler) Verify(c *fiber.Ctx) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	ok, err := h.service.Verify(c.UserContext(), auth.AccountID(c), req.PIN)
	if err != nil {
		return mapError(err)
	}
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, ErrPinMismatch.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"valid": true})
}

// ResetSelf clears the caller's PIN after the current one verifies.
func (h *Handler) ResetSelf(c *fiber.Ctx) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	account := auth.AccountID(c)
	ok, err := h.service.Verify(c.UserContext(), account, req.PIN)
	if err != nil {
		return mapError(err)
	}
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, ErrPinMismatch.Error())
	}
	if err := h.service.Reset(c.UserContext(), account); err != nil {
		return mapError(err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// ResetAccount clears the PIN of the account in the path. Admin only.
func (h *Handler) ResetAccount(c *fiber.Ctx) error {
	if err := h.service.Reset(c.UserContext(), c.Params("id")); err != nil {
		return mapError(err)
	}
	return c.SendStatus(http.StatusNoContent)
}

func mapError(err error) error {
	var locked *LockedError
	switch {
	case errors.As(err, &locked):
		return fiber.NewError(http.StatusLocked, locked.Error())
	case errors.Is(err, ErrInvalidPinFormat):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrPinMismatch):
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrPinNotSet):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrAccountNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
