package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"adyen-notify/internal/domain"
	"adyen-notify/internal/gateway"
	"adyen-notify/internal/lock"
	"adyen-notify/internal/repo/inmemory"
	"adyen-notify/internal/service"
)

// env wires the full service stack onto in-memory repositories, an
// in-process lock and a stub gateway.
type env struct {
	orders        *inmemory.OrderRepo
	payments      *inmemory.PaymentRepo
	notifications *inmemory.NotificationRepo
	logs          *inmemory.LogEntryRepo
	redirects     *inmemory.RedirectChallengeRepo
	mutex         *lock.KeyedMutex
	gw            *stubGateway

	processor       *service.Processor
	notificationSvc *service.NotificationService
	paymentSvc      *service.PaymentService
	orderSvc        *service.OrderService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvTimeout(t, 2*time.Second)
}

func newEnvTimeout(t *testing.T, lockTimeout time.Duration) *env {
	t.Helper()

	e := &env{
		orders:        inmemory.NewOrderRepo(),
		payments:      inmemory.NewPaymentRepo(),
		notifications: inmemory.NewNotificationRepo(),
		logs:          inmemory.NewLogEntryRepo(),
		mutex:         lock.NewKeyedMutex(lockTimeout),
		gw:            newStubGateway(),
	}
	e.redirects = inmemory.NewRedirectChallengeRepo(e.payments)

	txm := inmemory.TxManager{}
	logger := zap.NewNop().Sugar()

	e.processor = service.NewProcessor(e.payments, e.orders, e.logs, txm, logger)
	e.notificationSvc = service.NewNotificationService(e.notifications, e.orders, e.payments, e.mutex, e.processor, logger)
	e.paymentSvc = service.NewPaymentService(e.payments, e.orders, e.logs, e.redirects, txm, e.gw, e.mutex, logger)
	e.orderSvc = service.NewOrderService(e.orders, e.payments, e.redirects, txm, e.paymentSvc, e.mutex, logger)
	return e
}

func (e *env) createOrder(t *testing.T, number string) *domain.Order {
	t.Helper()
	order, err := e.orderSvc.CreateOrder(context.Background(), number, 2200, "EUR")
	require.NoError(t, err)
	return order
}

// createPayment seeds a payment directly, bypassing the checkout flow, so
// tests can start from any state.
func (e *env) createPayment(t *testing.T, order *domain.Order, state domain.PaymentState, responseCode string, kind domain.SourceKind) *domain.Payment {
	t.Helper()
	payment := &domain.Payment{
		ID:           uuid.New(),
		OrderID:      order.ID,
		Amount:       order.Total,
		Currency:     order.Currency,
		State:        state,
		ResponseCode: responseCode,
		Source:       domain.Source{Kind: kind, Reference: "recurring-1"},
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	require.NoError(t, e.payments.Create(context.Background(), nil, payment))
	return payment
}

func (e *env) paymentState(t *testing.T, id uuid.UUID) *domain.Payment {
	t.Helper()
	payment, err := e.payments.FindByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, payment)
	return payment
}

func (e *env) logEntries(t *testing.T, paymentID uuid.UUID) []domain.LogEntry {
	t.Helper()
	entries, err := e.logs.FindByPayment(context.Background(), paymentID)
	require.NoError(t, err)
	return entries
}

// stubGateway returns canned responses and counts calls.
type stubGateway struct {
	mu sync.Mutex

	authorizeResp *gateway.Response
	authorizeErr  error
	captureResp   *gateway.Response
	captureErr    error
	cancelResp    *gateway.Response
	cancelErr     error
	creditResp    *gateway.Response
	creditErr     error
	methods       []gateway.StoredPaymentMethod

	authorizeCalls int
	captureCalls   int
	cancelCalls    int
	creditCalls    int
}

func newStubGateway() *stubGateway {
	ok := func(psp string) *gateway.Response {
		return &gateway.Response{Success: true, PSPReference: psp, ResultCode: "Authorised", Message: "ok"}
	}
	return &stubGateway{
		authorizeResp: ok("8614480000000001"),
		captureResp:   &gateway.Response{Success: true, PSPReference: "8614480000000002", ResultCode: "[capture-received]", Message: "ok"},
		cancelResp:    &gateway.Response{Success: true, PSPReference: "8614480000000003", ResultCode: "[cancel-received]", Message: "ok"},
		creditResp:    &gateway.Response{Success: true, PSPReference: "8614480000000004", ResultCode: "[refund-received]", Message: "ok"},
	}
}

func (g *stubGateway) AuthorizePayment(ctx context.Context, merchantReference string, amount int64, currency, cardToken string) (*gateway.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.authorizeCalls++
	return g.authorizeResp, g.authorizeErr
}

func (g *stubGateway) CapturePayment(ctx context.Context, pspReference string, amount int64, currency string) (*gateway.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.captureCalls++
	return g.captureResp, g.captureErr
}

func (g *stubGateway) CancelPayment(ctx context.Context, pspReference string) (*gateway.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelCalls++
	return g.cancelResp, g.cancelErr
}

func (g *stubGateway) CreditPayment(ctx context.Context, pspReference string, amount int64, currency string) (*gateway.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.creditCalls++
	return g.creditResp, g.creditErr
}

func (g *stubGateway) ListStoredPaymentMethods(ctx context.Context, shopperReference string) ([]gateway.StoredPaymentMethod, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.methods, nil
}

func (g *stubGateway) calls() (authorize, capture, cancel, credit int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.authorizeCalls, g.captureCalls, g.cancelCalls, g.creditCalls
}
