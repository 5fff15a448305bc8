package service

import (
	"context"
	"sync"
	"time"

	"ticketing-service/internal/gateway"
	"ticketing-service/internal/models"
	"ticketing-service/internal/store"
)

// fakeOrderStore mirrors the store's transition predicates and uniqueness
// guard in memory so engine semantics can be tested without a database.
type fakeOrderStore struct {
	mu           sync.Mutex
	orders       map[string]*models.Order
	byIntent     map[string]string
	payments     map[string]*models.Payment
	unresolved   []*models.UnresolvedCapture
	hiddenForN   map[string]int // intent id -> lookups that miss before the row is visible
	intentLookup int
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{
		orders:     make(map[string]*models.Order),
		byIntent:   make(map[string]string),
		payments:   make(map[string]*models.Payment),
		hiddenForN: make(map[string]int),
	}
}

func (f *fakeOrderStore) CreateOrder(_ context.Context, order *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now
	cp := *order
	f.orders[order.ID] = &cp
	f.byIntent[order.GatewayIntentID] = order.ID
	return nil
}

func (f *fakeOrderStore) GetOrderByID(_ context.Context, id string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *order
	return &cp, nil
}

func (f *fakeOrderStore) GetOrderByIntentID(_ context.Context, intentID string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intentLookup++
	if n := f.hiddenForN[intentID]; n > 0 {
		f.hiddenForN[intentID] = n - 1
		return nil, store.ErrNotFound
	}
	id, ok := f.byIntent[intentID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *f.orders[id]
	return &cp, nil
}

func (f *fakeOrderStore) MarkOrderPaid(_ context.Context, orderID string, payment *models.Payment) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.payments[payment.ChargeID]; exists {
		return nil, store.ErrDuplicateCharge
	}
	order, ok := f.orders[orderID]
	if !ok || order.Status != models.OrderStatusCreated {
		return nil, store.ErrNotFound
	}
	pc := *payment
	f.payments[payment.ChargeID] = &pc
	order.Status = models.OrderStatusPaid
	order.GatewayChargeID.String = payment.ChargeID
	order.GatewayChargeID.Valid = true
	order.UpdatedAt = time.Now()
	cp := *order
	return &cp, nil
}

func (f *fakeOrderStore) MarkOrderFailed(_ context.Context, orderID string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok || order.Status != models.OrderStatusCreated {
		return nil, store.ErrNotFound
	}
	order.Status = models.OrderStatusFailed
	cp := *order
	return &cp, nil
}

func (f *fakeOrderStore) MarkOrderRefunded(_ context.Context, orderID, chargeID string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok || order.Status != models.OrderStatusPaid || order.GatewayChargeID.String != chargeID {
		return nil, store.ErrNotFound
	}
	order.Status = models.OrderStatusRefunded
	if p, ok := f.payments[chargeID]; ok {
		p.Status = models.PaymentStatusRefunded
	}
	cp := *order
	return &cp, nil
}

func (f *fakeOrderStore) SetOrderArtifactURL(_ context.Context, orderID, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok {
		return store.ErrNotFound
	}
	if !order.ArtifactURL.Valid {
		order.ArtifactURL.String = url
		order.ArtifactURL.Valid = true
	}
	return nil
}

func (f *fakeOrderStore) GetPaymentByChargeID(_ context.Context, chargeID string) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payment, ok := f.payments[chargeID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *payment
	return &cp, nil
}

func (f *fakeOrderStore) SaveUnresolvedCapture(_ context.Context, c *models.UnresolvedCapture) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.unresolved {
		if existing.ChargeID == c.ChargeID {
			return nil
		}
	}
	cp := *c
	f.unresolved = append(f.unresolved, &cp)
	return nil
}

// fakeSessionStore mirrors the conditional-update rotation semantics.
type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]*models.Session)}
}

func (f *fakeSessionStore) CreateSession(_ context.Context, session *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *session
	f.sessions[session.ID] = &cp
	return nil
}

func (f *fakeSessionStore) GetSessionByID(_ context.Context, id string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *session
	return &cp, nil
}

func (f *fakeSessionStore) RotateSession(_ context.Context, id, oldFingerprint, newFingerprint string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[id]
	if !ok || session.Fingerprint != oldFingerprint || session.RevokedAt.Valid {
		return 0, store.ErrStaleFingerprint
	}
	session.Fingerprint = newFingerprint
	session.RotationVersion++
	return session.RotationVersion, nil
}

func (f *fakeSessionStore) RevokeSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if session, ok := f.sessions[id]; ok && !session.RevokedAt.Valid {
		session.RevokedAt.Time = time.Now()
		session.RevokedAt.Valid = true
	}
	return nil
}

func (f *fakeSessionStore) RevokeUserSessions(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, session := range f.sessions {
		if session.UserID == userID && !session.RevokedAt.Valid {
			session.RevokedAt.Time = time.Now()
			session.RevokedAt.Valid = true
		}
	}
	return nil
}

// fakeUserStore backs the auth paths.
type fakeUserStore struct {
	mu      sync.Mutex
	byID    map[string]*models.User
	byEmail map[string]*models.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		byID:    make(map[string]*models.User),
		byEmail: make(map[string]*models.User),
	}
}

func (f *fakeUserStore) CreateUser(_ context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.byEmail[user.Email]; exists {
		return store.ErrDuplicateEmail
	}
	cp := *user
	f.byID[user.ID] = &cp
	f.byEmail[user.Email] = &cp
	return nil
}

func (f *fakeUserStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.byEmail[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (f *fakeUserStore) GetUserByID(_ context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *user
	return &cp, nil
}

// fakePublisher records published events.
type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (f *fakePublisher) record(eventType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
}

func (f *fakePublisher) count(eventType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e == eventType {
			n++
		}
	}
	return n
}

func (f *fakePublisher) PublishOrderCreated(_ context.Context, e *models.OrderCreatedEvent) error {
	f.record(e.EventType)
	return nil
}

func (f *fakePublisher) PublishOrderPaid(_ context.Context, e *models.OrderPaidEvent) error {
	f.record(e.EventType)
	return nil
}

func (f *fakePublisher) PublishOrderFailed(_ context.Context, e *models.OrderFailedEvent) error {
	f.record(e.EventType)
	return nil
}

func (f *fakePublisher) PublishOrderRefunded(_ context.Context, e *models.OrderRefundedEvent) error {
	f.record(e.EventType)
	return nil
}

func (f *fakePublisher) PublishTicketIssued(_ context.Context, e *models.TicketIssuedEvent) error {
	f.record(e.EventType)
	return nil
}

// fakeArtifacts renders deterministic URLs, optionally failing.
type fakeArtifacts struct {
	fail bool
}

func (f *fakeArtifacts) Generate(_ context.Context, order *models.Order, _ *models.Payment) (string, error) {
	if f.fail {
		return "", context.DeadlineExceeded
	}
	return "https://tickets.example.com/" + order.ID + ".png", nil
}

// fakeIntentCreator fails transiently failFirst times, then succeeds.
type fakeIntentCreator struct {
	mu        sync.Mutex
	failFirst int
	calls     int
	intentID  string
}

func (f *fakeIntentCreator) CreateIntent(_ context.Context, _ gateway.IntentRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failFirst {
		return "", gateway.ErrGatewayUnavailable
	}
	if f.intentID != "" {
		return f.intentID, nil
	}
	return "order_fake", nil
}
