package gateway

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

// MockGateway simulates the provider for the simulator binary and tests.
// With the default knobs every call is accepted immediately; RefuseRate and
// SlowRate introduce refusals and slow accepted calls to exercise the race
// paths.
type MockGateway struct {
	// RefuseRate is the percentage (0-100) of calls refused with a business
	// failure.
	RefuseRate int
	// SlowRate is the percentage (0-100) of calls that are accepted only
	// after a long stall, mimicking gateway latency inside the lock.
	SlowRate int

	mu   sync.Mutex
	seq  int
	refs map[string]string // merchant reference -> psp reference already issued
}

func NewMockGateway() *MockGateway {
	return &MockGateway{refs: make(map[string]string)}
}

func (g *MockGateway) AuthorizePayment(ctx context.Context, merchantReference string, amount int64, currency, cardToken string) (*Response, error) {
	g.mu.Lock()
	// Authorising the same reference twice returns the original psp
	// reference instead of charging again.
	if psp, ok := g.refs[merchantReference]; ok {
		g.mu.Unlock()
		return &Response{Success: true, PSPReference: psp, ResultCode: "Authorised", Message: "already authorised"}, nil
	}
	g.mu.Unlock()

	return g.modify(ctx, "Authorised", func(psp string) {
		g.mu.Lock()
		g.refs[merchantReference] = psp
		g.mu.Unlock()
	})
}

func (g *MockGateway) CapturePayment(ctx context.Context, pspReference string, amount int64, currency string) (*Response, error) {
	return g.modify(ctx, "[capture-received]", nil)
}

func (g *MockGateway) CancelPayment(ctx context.Context, pspReference string) (*Response, error) {
	return g.modify(ctx, "[cancel-received]", nil)
}

func (g *MockGateway) CreditPayment(ctx context.Context, pspReference string, amount int64, currency string) (*Response, error) {
	return g.modify(ctx, "[refund-received]", nil)
}

func (g *MockGateway) ListStoredPaymentMethods(ctx context.Context, shopperReference string) ([]StoredPaymentMethod, error) {
	return []StoredPaymentMethod{
		{
			RecurringDetailReference: "recurring-" + shopperReference,
			Variant:                  "visa",
			CardSummary:              "0002",
			HolderName:               "John Doe",
			CreationDate:             time.Now(),
		},
	}, nil
}

func (g *MockGateway) modify(ctx context.Context, resultCode string, onSuccess func(psp string)) (*Response, error) {
	chance := rand.IntN(100)
	switch {
	case chance < g.RefuseRate:
		return &Response{
			Success:    false,
			ResultCode: "Refused",
			Message:    "Refused",
			Raw:        map[string]string{"refusalReason": "Refused"},
		}, nil
	case chance < g.RefuseRate+g.SlowRate:
		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	psp := g.nextReference()
	if onSuccess != nil {
		onSuccess(psp)
	}
	return &Response{
		Success:      true,
		PSPReference: psp,
		ResultCode:   resultCode,
		Message:      resultCode,
		Raw:          map[string]string{"pspReference": psp, "resultCode": resultCode},
	}, nil
}

func (g *MockGateway) nextReference() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("861448301327%04d", g.seq)
}
