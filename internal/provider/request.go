package provider

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Kind is a fulfilment product the provider sells.
type Kind string

const (
	KindAirtime     Kind = "airtime"
	KindData        Kind = "data"
	KindElectricity Kind = "electricity"
)

// Request is built per call and never persisted. Amount is in minor units.
type Request struct {
	Kind        Kind
	Reference   string
	Amount      int64
	Phone       string
	Network     string
	Plan        string
	Disco       string
	MeterNumber string
	MeterType   string
}

// Resolved is a Request with every identifier replaced by its provider code.
type Resolved struct {
	Request
	NetworkCode   string
	PlanCode      string
	PlanPrice     int64
	DiscoCode     string
	MeterTypeCode string
}

// Receipt is returned for a confirmed fulfilment.
type Receipt struct {
	ProviderReference string `json:"provider_reference"`
	Status            string `json:"status"`
	Message           string `json:"message,omitempty"`
	Token             string `json:"token,omitempty"`
	Amount            string `json:"amount"`
}

// Resolve validates the request shape and maps identifiers through the
// catalog. It has no side effects, so callers run it before debiting.
func (c Catalog) Resolve(req Request) (Resolved, error) {
	if strings.TrimSpace(req.Reference) == "" {
		return Resolved{}, invalid("reference is required")
	}
	if req.Amount <= 0 {
		return Resolved{}, invalid("amount must be positive")
	}

	out := Resolved{Request: req}
	var err error
	switch req.Kind {
	case KindAirtime:
		if err := validPhone(req.Phone); err != nil {
			return Resolved{}, err
		}
		if out.NetworkCode, err = c.Network(req.Network); err != nil {
			return Resolved{}, err
		}
	case KindData:
		if err := validPhone(req.Phone); err != nil {
			return Resolved{}, err
		}
		plan, err := c.Plan(req.Plan)
		if err != nil {
			return Resolved{}, err
		}
		if req.Network != "" && normalize(req.Network) != plan.Network {
			return Resolved{}, invalid("plan %s is not sold on network %s", plan.Slug, req.Network)
		}
		if out.NetworkCode, err = c.Network(plan.Network); err != nil {
			return Resolved{}, err
		}
		if plan.Price > 0 && req.Amount != plan.Price {
			return Resolved{}, invalid("amount %d does not match plan price %d", req.Amount, plan.Price)
		}
		out.PlanCode = plan.Code
		out.PlanPrice = plan.Price
	case KindElectricity:
		if strings.TrimSpace(req.MeterNumber) == "" {
			return Resolved{}, invalid("meter number is required")
		}
		if out.DiscoCode, err = c.Disco(req.Disco); err != nil {
			return Resolved{}, err
		}
		if out.MeterTypeCode, err = c.MeterType(req.MeterType); err != nil {
			return Resolved{}, err
		}
	default:
		return Resolved{}, invalid("unsupported kind %q", req.Kind)
	}
	return out, nil
}

// MajorUnits renders a minor-unit amount as the decimal string providers expect.
func MajorUnits(amount int64) string {
	return decimal.New(amount, -2).StringFixed(2)
}

func validPhone(phone string) error {
	p := strings.TrimPrefix(strings.TrimSpace(phone), "+")
	if len(p) < 10 || len(p) > 15 {
		return invalid("phone number must have 10 to 15 digits")
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return invalid("phone number must be numeric")
		}
	}
	return nil
}
