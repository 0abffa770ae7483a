package funding

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/billpay/internal/auth"
	"github.com/congo-pay/billpay/internal/locker"
	"github.com/congo-pay/billpay/internal/provider"
	"github.com/congo-pay/billpay/internal/transaction"
	"github.com/congo-pay/billpay/internal/wallet"
)

// Handler exposes HTTP endpoints for wallet funding flows.
type Handler struct {
	service *Service
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Fund credits the account in the path. Admin only.
func (h *Handler) Fund(c *fiber.Ctx) error {
	return h.credit(c, h.service.Fund)
}

// Reward credits a referral bonus to the account in the path. Admin only.
func (h *Handler) Reward(c *fiber.Ctx) error {
	return h.credit(c, h.service.Reward)
}

func (h *Handler) credit(c *fiber.Ctx, apply func(ctx context.Context, in CreditInput) (CreditResult, error)) error {
	var req CreditRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	reference := strings.TrimSpace(c.Get("Idempotency-Key"))
	if reference == "" {
		reference = req.Reference
	}

	result, err := apply(c.UserContext(), CreditInput{
		AccountID: c.Params("id"),
		Amount:    req.Amount,
		Reference: reference,
		Note:      req.Note,
		Source:    req.Source,
	})
	if err != nil {
		return mapError(err)
	}
	if result.Replayed {
		return c.Status(http.StatusOK).JSON(result)
	}
	return c.Status(http.StatusCreated).JSON(result)
}

// IssueVirtualAccount reserves a virtual account for the caller.
func (h *Handler) IssueVirtualAccount(c *fiber.Ctx) error {
	var req VirtualAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	va, err := h.service.IssueVirtualAccount(c.UserContext(), VirtualAccountInput{
		AccountID: auth.AccountID(c),
		Name:      req.Name,
		Email:     req.Email,
		BVN:       req.BVN,
	})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(va)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, provider.ErrInvalidRequest):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, wallet.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAccountInactive):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, transaction.ErrDuplicateReference), errors.Is(err, wallet.ErrVirtualAccountExists):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, locker.ErrNotAcquired):
		return fiber.NewError(http.StatusConflict, "request already in progress")
	case errors.Is(err, provider.ErrDeclined), errors.Is(err, provider.ErrIndeterminate):
		return fiber.NewError(http.StatusBadGateway, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
