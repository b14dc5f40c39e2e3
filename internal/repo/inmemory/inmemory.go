// Package inmemory provides map-backed implementations of the repository
// interfaces for tests and the simulator. Semantics mirror the Postgres
// versions, including the atomic dedup insert for notifications.
package inmemory

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	"github.com/google/uuid"

	"adyen-notify/internal/domain"
)

// TxManager satisfies database.TxManager without a real database; the
// in-memory repos accept a nil tx.
type TxManager struct{}

func (TxManager) WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return fn(nil)
}

type dedupKey struct {
	psp     string
	event   domain.EventCode
	success bool
}

type NotificationRepo struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*domain.Notification
	seen map[dedupKey]struct{}
	seq  []uuid.UUID
}

func NewNotificationRepo() *NotificationRepo {
	return &NotificationRepo{
		byID: make(map[uuid.UUID]*domain.Notification),
		seen: make(map[dedupKey]struct{}),
	}
}

func (r *NotificationRepo) Insert(ctx context.Context, tx *sql.Tx, n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := dedupKey{psp: n.PSPReference, event: n.EventCode, success: n.Success}
	if _, ok := r.seen[key]; ok {
		return domain.ErrDuplicateNotification
	}
	r.seen[key] = struct{}{}
	stored := *n
	r.byID[n.ID] = &stored
	r.seq = append(r.seq, n.ID)
	return nil
}

func (r *NotificationRepo) FindUnprocessed(ctx context.Context, limit int) ([]domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Notification
	for _, id := range r.seq {
		if len(out) == limit {
			break
		}
		if n := r.byID[id]; !n.Processed {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (r *NotificationRepo) MarkProcessed(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.byID[id]; ok {
		n.Processed = true
	}
	return nil
}

// Count reports how many notifications are stored; test helper.
func (r *NotificationRepo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

type PaymentRepo struct {
	mu       sync.Mutex
	payments map[uuid.UUID]*domain.Payment
	seq      int
	order    map[uuid.UUID]int // payment id -> insertion sequence
}

func NewPaymentRepo() *PaymentRepo {
	return &PaymentRepo{
		payments: make(map[uuid.UUID]*domain.Payment),
		order:    make(map[uuid.UUID]int),
	}
}

func (r *PaymentRepo) Create(ctx context.Context, tx *sql.Tx, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *p
	r.payments[p.ID] = &stored
	r.seq++
	r.order[p.ID] = r.seq
	return nil
}

func (r *PaymentRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.payments[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (r *PaymentRepo) FindByResponseCode(ctx context.Context, code string) (*domain.Payment, error) {
	if code == "" {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var found *domain.Payment
	for _, p := range r.payments {
		if p.ResponseCode != code {
			continue
		}
		if found == nil || r.order[p.ID] > r.order[found.ID] {
			found = p
		}
	}
	if found == nil {
		return nil, nil
	}
	cp := *found
	return &cp, nil
}

func (r *PaymentRepo) FindLatestForOrder(ctx context.Context, orderID uuid.UUID) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	live := map[domain.PaymentState]bool{
		domain.PaymentCheckout:   true,
		domain.PaymentProcessing: true,
		domain.PaymentPending:    true,
	}
	var found *domain.Payment
	for _, p := range r.payments {
		if p.OrderID != orderID || !live[p.State] {
			continue
		}
		if found == nil || r.order[p.ID] > r.order[found.ID] {
			found = p
		}
	}
	if found == nil {
		return nil, nil
	}
	cp := *found
	return &cp, nil
}

func (r *PaymentRepo) UpdateState(ctx context.Context, tx *sql.Tx, id uuid.UUID, state domain.PaymentState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.payments[id]; ok {
		p.State = state
	}
	return nil
}

func (r *PaymentRepo) SetResponseCode(ctx context.Context, tx *sql.Tx, id uuid.UUID, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.payments[id]; ok {
		p.ResponseCode = code
	}
	return nil
}

// CountForOrder reports how many payments an order has; test helper.
func (r *PaymentRepo) CountForOrder(orderID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, p := range r.payments {
		if p.OrderID == orderID {
			count++
		}
	}
	return count
}

type OrderRepo struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*domain.Order
}

func NewOrderRepo() *OrderRepo {
	return &OrderRepo{orders: make(map[uuid.UUID]*domain.Order)}
}

func (r *OrderRepo) Create(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *order
	r.orders[order.ID] = &stored
	return nil
}

func (r *OrderRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.orders[id]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, nil
}

func (r *OrderRepo) FindByNumber(ctx context.Context, number string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.Number == number {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *OrderRepo) UpdateState(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.orders[order.ID]; ok {
		o.State = order.State
	}
	return nil
}

type LogEntryRepo struct {
	mu      sync.Mutex
	entries []domain.LogEntry
}

func NewLogEntryRepo() *LogEntryRepo {
	return &LogEntryRepo{}
}

func (r *LogEntryRepo) Create(ctx context.Context, tx *sql.Tx, entry *domain.LogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *LogEntryRepo) FindByPayment(ctx context.Context, paymentID uuid.UUID) ([]domain.LogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.LogEntry
	for _, e := range r.entries {
		if e.PaymentID == paymentID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type RedirectChallengeRepo struct {
	mu         sync.Mutex
	byPayment  map[uuid.UUID]*domain.RedirectChallenge
	orderOwner func(paymentID uuid.UUID) (uuid.UUID, bool)
}

// NewRedirectChallengeRepo needs the payment repo to resolve which payments
// belong to an order when deleting stale challenges.
func NewRedirectChallengeRepo(payments *PaymentRepo) *RedirectChallengeRepo {
	return &RedirectChallengeRepo{
		byPayment: make(map[uuid.UUID]*domain.RedirectChallenge),
		orderOwner: func(paymentID uuid.UUID) (uuid.UUID, bool) {
			payments.mu.Lock()
			defer payments.mu.Unlock()
			if p, ok := payments.payments[paymentID]; ok {
				return p.OrderID, true
			}
			return uuid.Nil, false
		},
	}
}

func (r *RedirectChallengeRepo) Create(ctx context.Context, tx *sql.Tx, rc *domain.RedirectChallenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *rc
	r.byPayment[rc.PaymentID] = &stored
	return nil
}

func (r *RedirectChallengeRepo) FindByPayment(ctx context.Context, paymentID uuid.UUID) (*domain.RedirectChallenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rc, ok := r.byPayment[paymentID]; ok {
		cp := *rc
		return &cp, nil
	}
	return nil, nil
}

func (r *RedirectChallengeRepo) DeleteForOrder(ctx context.Context, tx *sql.Tx, orderID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for paymentID := range r.byPayment {
		if owner, ok := r.orderOwner(paymentID); ok && owner == orderID {
			delete(r.byPayment, paymentID)
		}
	}
	return nil
}
