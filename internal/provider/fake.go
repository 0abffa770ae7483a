package provider

import (
	"context"
	"fmt"
	"sync"
)

// FakeGateway resolves through a real catalog and answers Fulfill from a
// script. Useful in tests of callers.
type FakeGateway struct {
	Catalog Catalog
	// Respond decides each outcome. When nil every call succeeds.
	Respond func(ctx context.Context, req Resolved) (Receipt, error)

	mu    sync.Mutex
	calls []Request
}

// NewFakeGateway builds a fake over the default catalog.
func NewFakeGateway(respond func(ctx context.Context, req Resolved) (Receipt, error)) *FakeGateway {
	return &FakeGateway{Catalog: DefaultCatalog(), Respond: respond}
}

// Resolve maps identifiers through the catalog.
func (f *FakeGateway) Resolve(req Request) (Resolved, error) {
	return f.Catalog.Resolve(req)
}

// Fulfill records the call and returns the scripted outcome.
func (f *FakeGateway) Fulfill(ctx context.Context, req Request) (Receipt, error) {
	resolved, err := f.Catalog.Resolve(req)
	if err != nil {
		return Receipt{}, err
	}
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	if f.Respond == nil {
		return Receipt{ProviderReference: "fake-" + req.Reference, Status: "successful", Amount: MajorUnits(req.Amount)}, nil
	}
	return f.Respond(ctx, resolved)
}

// Calls returns the requests that reached Fulfill.
func (f *FakeGateway) Calls() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.calls...)
}

// Decline scripts an explicit rejection.
func Decline(reason string) func(context.Context, Resolved) (Receipt, error) {
	return func(context.Context, Resolved) (Receipt, error) {
		return Receipt{}, &DeclinedError{Reason: reason}
	}
}

// Hang scripts a provider that never answers; the outcome follows ctx.
func Hang() func(context.Context, Resolved) (Receipt, error) {
	return func(ctx context.Context, _ Resolved) (Receipt, error) {
		<-ctx.Done()
		return Receipt{}, &IndeterminateError{Cause: ctx.Err()}
	}
}

// FakePartner issues deterministic virtual accounts.
type FakePartner struct {
	mu     sync.Mutex
	issued map[string]VirtualAccount
	Err    error
}

// NewFakePartner builds an empty fake partner.
func NewFakePartner() *FakePartner {
	return &FakePartner{issued: make(map[string]VirtualAccount)}
}

// IssueVirtualAccount returns the same account for a repeated reference.
func (p *FakePartner) IssueVirtualAccount(_ context.Context, reference string, id Identity) (VirtualAccount, error) {
	if p.Err != nil {
		return VirtualAccount{}, p.Err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if va, ok := p.issued[reference]; ok {
		return va, nil
	}
	va := VirtualAccount{
		Reference:     reference,
		AccountNumber: fmt.Sprintf("99%08d", len(p.issued)+1),
		AccountName:   id.Name,
		BankName:      "Wema Bank",
	}
	p.issued[reference] = va
	return va, nil
}

// Issued reports how many distinct accounts were reserved.
func (p *FakePartner) Issued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.issued)
}
