package auth

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

const (
	localAccountID = "account_id"
	localRole      = "role"
)

// SetIdentity stores the verified caller on the request.
func SetIdentity(c *fiber.Ctx, claims *Claims) {
	c.Locals(localAccountID, claims.Subject)
	c.Locals(localRole, claims.Role)
}

// AccountID returns the authenticated account id, or "" when unauthenticated.
func AccountID(c *fiber.Ctx) string {
	id, _ := c.Locals(localAccountID).(string)
	return id
}

// Role returns the authenticated caller's role.
func Role(c *fiber.Ctx) string {
	role, _ := c.Locals(localRole).(string)
	return role
}

// Handler exposes token issuance for the identity collaborator.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type issueRequest struct {
	Role string `json:"role"`
}

// Issue signs an access token for the account in the path. Admin only.
func (h *Handler) Issue(c *fiber.Ctx) error {
	var req issueRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	if req.Role != "" && req.Role != RoleUser && req.Role != RoleAdmin {
		return fiber.NewError(http.StatusUnprocessableEntity, "role must be user or admin")
	}
	token, err := h.svc.Issue(c.UserContext(), c.Params("id"), req.Role)
	if err != nil {
		if errors.Is(err, ErrUnknownAccount) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(token)
}
