package payments

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/billpay/internal/auth"
	"github.com/congo-pay/billpay/internal/ledger"
	"github.com/congo-pay/billpay/internal/locker"
	"github.com/congo-pay/billpay/internal/pin"
	"github.com/congo-pay/billpay/internal/provider"
	"github.com/congo-pay/billpay/internal/transaction"
	"github.com/congo-pay/billpay/internal/wallet"
)

const idempotencyKeyHeader = "Idempotency-Key"

// Handler exposes transaction endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type initiateRequest struct {
	Kind      string `json:"kind"`
	Amount    int64  `json:"amount"`
	PIN       string `json:"pin"`
	Reference string `json:"reference"`
	Params
}

// Initiate runs a debit transaction for the authenticated account. The
// reference comes from the Idempotency-Key header, then the body.
func (h *Handler) Initiate(c *fiber.Ctx) error {
	var req initiateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	reference := strings.TrimSpace(c.Get(idempotencyKeyHeader))
	if reference == "" {
		reference = req.Reference
	}

	res, err := h.service.Initiate(c.UserContext(), InitiateInput{
		AccountID: auth.AccountID(c),
		Kind:      transaction.Kind(strings.ToLower(strings.TrimSpace(req.Kind))),
		Amount:    req.Amount,
		PIN:       req.PIN,
		Reference: reference,
		Params:    req.Params,
	})
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientFunds):
			return c.Status(http.StatusPaymentRequired).JSON(fiber.Map{"error": err.Error(), "transaction": res})
		case errors.Is(err, provider.ErrDeclined):
			return c.Status(http.StatusBadGateway).JSON(fiber.Map{"error": err.Error(), "transaction": res})
		case errors.Is(err, ErrCancelled):
			return c.Status(http.StatusRequestTimeout).JSON(fiber.Map{"error": err.Error(), "transaction": res})
		}
		return mapError(err)
	}

	status := http.StatusCreated
	switch res.Status {
	case transaction.StatusNeedsReview, transaction.StatusPending:
		status = http.StatusAccepted
	case transaction.StatusFailed:
		status = http.StatusOK
	}
	return c.Status(status).JSON(res)
}

// Get returns one of the caller's transactions.
func (h *Handler) Get(c *fiber.Ctx) error {
	res, err := h.service.Get(c.UserContext(), auth.AccountID(c), c.Params("reference"))
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(res)
}

// History lists the caller's transactions. Query: kind, status, from, to
// (RFC3339) and limit.
func (h *Handler) History(c *fiber.Ctx) error {
	filter, err := parseFilter(c)
	if err != nil {
		return err
	}
	filter.AccountID = auth.AccountID(c)
	list, err := h.service.History(c.UserContext(), filter)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"transactions": list})
}

// Reviews lists transactions awaiting an operator. Admin only.
func (h *Handler) Reviews(c *fiber.Ctx) error {
	list, err := h.service.Reviews(c.UserContext(), c.QueryInt("limit", 0))
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"transactions": list})
}

type resolveRequest struct {
	Outcome string `json:"outcome"`
	Note    string `json:"note"`
}

// Resolve settles a transaction under review. Admin only.
func (h *Handler) Resolve(c *fiber.Ctx) error {
	var req resolveRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.service.Resolve(c.UserContext(), ResolveInput{
		Reference: c.Params("reference"),
		Outcome:   transaction.Status(strings.ToLower(strings.TrimSpace(req.Outcome))),
		Operator:  auth.AccountID(c),
		Note:      req.Note,
	})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(res)
}

func parseFilter(c *fiber.Ctx) (transaction.Filter, error) {
	f := transaction.Filter{
		Kind:   transaction.Kind(c.Query("kind")),
		Status: transaction.Status(c.Query("status")),
		Limit:  c.QueryInt("limit", 0),
	}
	for key, dst := range map[string]*time.Time{"from": &f.From, "to": &f.To} {
		if v := c.Query(key); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return transaction.Filter{}, fiber.NewError(http.StatusBadRequest, "invalid "+key+": expected RFC3339")
			}
			*dst = t
		}
	}
	return f, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, pin.ErrPinLocked):
		return fiber.NewError(http.StatusLocked, err.Error())
	case errors.Is(err, ErrUnauthorized):
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, provider.ErrInvalidRequest),
		errors.Is(err, provider.ErrUnmappedIdentifier):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrAccountInactive):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, wallet.ErrNotFound), errors.Is(err, transaction.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, transaction.ErrDuplicateReference):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotUnderReview):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, locker.ErrNotAcquired):
		return fiber.NewError(http.StatusConflict, "transaction already in progress")
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
