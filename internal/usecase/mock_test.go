//go:build !integration

package usecase_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"upi-autopay-subscription/internal/domain"
	"upi-autopay-subscription/internal/domain/model"
	"upi-autopay-subscription/internal/domain/ports/adapter"
	"upi-autopay-subscription/internal/domain/ports/repository"
	"upi-autopay-subscription/internal/usecase"
)

// -----------------------------
// Utilities: tiny helpers
// -----------------------------

// testClock is a settable clock shared by every use case in a test.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 3, 1, 2, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
// It writes to io.Discard to prevent logs from cluttering test output.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// =============================
// In-memory store
// =============================

// memStore backs every mock repository. MockTxManager snapshots it so a failed transaction
// leaves no partial writes behind.
type memStore struct {
	mu       sync.Mutex
	users    map[string]*model.User
	mandates map[string]*model.Mandate
	payments map[string]*model.Payment
	events   map[string]*model.WebhookEvent
	tasks    map[string]*model.ReconciliationTask
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[string]*model.User{},
		mandates: map[string]*model.Mandate{},
		payments: map[string]*model.Payment{},
		events:   map[string]*model.WebhookEvent{},
		tasks:    map[string]*model.ReconciliationTask{},
	}
}

type memSnapshot struct {
	users    map[string]*model.User
	mandates map[string]*model.Mandate
	payments map[string]*model.Payment
	events   map[string]*model.WebhookEvent
	tasks    map[string]*model.ReconciliationTask
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		users:    map[string]*model.User{},
		mandates: map[string]*model.Mandate{},
		payments: map[string]*model.Payment{},
		events:   map[string]*model.WebhookEvent{},
		tasks:    map[string]*model.ReconciliationTask{},
	}
	for k, v := range s.users {
		snap.users[k] = v.Clone()
	}
	for k, v := range s.mandates {
		snap.mandates[k] = v.Clone()
	}
	for k, v := range s.payments {
		snap.payments[k] = v.Clone()
	}
	for k, v := range s.events {
		cp := *v
		snap.events[k] = &cp
	}
	for k, v := range s.tasks {
		cp := *v
		snap.tasks[k] = &cp
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users, s.mandates, s.payments, s.events, s.tasks = snap.users, snap.mandates, snap.payments, snap.events, snap.tasks
}

// ---- Mock TransactionManager ----

type MockTxManager struct {
	store      *memStore
	WithTxFunc func(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error
	Commits    int
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func NewMockTxManager(store *memStore) *MockTxManager {
	return &MockTxManager{store: store}
}

// WithTx runs fn against the shared store and rolls every write back when fn fails.
func (m *MockTxManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, fn)
	}
	snap := m.store.snapshot()
	if err := fn(ctx, repository.NoTX); err != nil {
		m.store.restore(snap)
		return err
	}
	m.Commits++
	return nil
}

// ---- Mock UserRepository ----

type MockUserRepo struct {
	s        *memStore
	SaveFunc func(ctx context.Context, tx repository.Tx, u *model.User) error
}

var _ repository.UserRepository = (*MockUserRepo)(nil)

func (r *MockUserRepo) Create(ctx context.Context, tx repository.Tx, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[u.ID]; ok {
		return domain.ErrAlreadyExists
	}
	r.s.users[u.ID] = u.Clone()
	return nil
}

func (r *MockUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, u)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[u.ID]; !ok {
		return domain.ErrNotFound
	}
	r.s.users[u.ID] = u.Clone()
	return nil
}

func (r *MockUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return u.Clone(), nil
}

func (r *MockUserRepo) list(limit int, keep func(u *model.User) bool) []*model.User {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.User
	for _, u := range r.s.users {
		if keep(u) {
			out = append(out, u.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *MockUserRepo) ListByRiskLevel(ctx context.Context, tx repository.Tx, level model.RiskLevel, limit int) ([]*model.User, error) {
	return r.list(limit, func(u *model.User) bool { return u.SecurityRiskLevel == level }), nil
}

func (r *MockUserRepo) ListByStatus(ctx context.Context, tx repository.Tx, status model.SubscriptionStatus, limit int) ([]*model.User, error) {
	return r.list(limit, func(u *model.User) bool { return u.SubscriptionStatus == status }), nil
}

func (r *MockUserRepo) ListByDevice(ctx context.Context, tx repository.Tx, fingerprint string, limit int) ([]*model.User, error) {
	return r.list(limit, func(u *model.User) bool { return u.DeviceFingerprint == fingerprint }), nil
}

func (r *MockUserRepo) IsDeviceBlocked(ctx context.Context, tx repository.Tx, fingerprint string) (bool, error) {
	blocked := r.list(1, func(u *model.User) bool { return u.DeviceFingerprint == fingerprint && u.IsBlocked() })
	return len(blocked) > 0, nil
}

func (r *MockUserRepo) ListLapsed(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.User, error) {
	return r.list(limit, func(u *model.User) bool {
		switch u.SubscriptionStatus {
		case model.SubscriptionStatusActive:
			return !u.HasAutoRenewal && (u.SubscriptionExpiry == nil || !u.SubscriptionExpiry.After(now))
		case model.SubscriptionStatusTrial:
			return u.TrialEndsAt != nil && !u.TrialEndsAt.After(now)
		}
		return false
	}), nil
}

// ---- Mock MandateRepository ----

type MockMandateRepo struct {
	s          *memStore
	UpdateFunc func(ctx context.Context, tx repository.Tx, m *model.Mandate) error
}

var _ repository.MandateRepository = (*MockMandateRepo)(nil)

func (r *MockMandateRepo) Create(ctx context.Context, tx repository.Tx, m *model.Mandate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.mandates[m.ID]; ok {
		return domain.ErrAlreadyExists
	}
	if m.Status.IsOpen() {
		for _, o := range r.s.mandates {
			if o.UserID == m.UserID && o.Status.IsOpen() {
				return domain.ErrAlreadyExists
			}
		}
	}
	r.s.mandates[m.ID] = m.Clone()
	return nil
}

func (r *MockMandateRepo) Update(ctx context.Context, tx repository.Tx, m *model.Mandate) error {
	if r.UpdateFunc != nil {
		return r.UpdateFunc(ctx, tx, m)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.mandates[m.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != m.Version {
		return domain.ErrStaleRecord
	}
	// Same partial unique index as the real stores.
	if m.Status.IsOpen() {
		for id, o := range r.s.mandates {
			if id != m.ID && o.UserID == m.UserID && o.Status.IsOpen() {
				return domain.ErrAlreadyExists
			}
		}
	}
	m.Version++
	r.s.mandates[m.ID] = m.Clone()
	return nil
}

func (r *MockMandateRepo) Delete(ctx context.Context, tx repository.Tx, id string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.mandates[id]; !ok {
		return 0, nil
	}
	delete(r.s.mandates, id)
	return 1, nil
}

func (r *MockMandateRepo) find(keep func(m *model.Mandate) bool) (*model.Mandate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.mandates {
		if keep(m) {
			return m.Clone(), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockMandateRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Mandate, error) {
	return r.find(func(m *model.Mandate) bool { return m.ID == id })
}

func (r *MockMandateRepo) FindByPaymentLinkID(ctx context.Context, tx repository.Tx, linkID string) (*model.Mandate, error) {
	return r.find(func(m *model.Mandate) bool { return linkID != "" && m.ProviderPaymentLinkID == linkID })
}

func (r *MockMandateRepo) FindBySubscriptionID(ctx context.Context, tx repository.Tx, subscriptionID string) (*model.Mandate, error) {
	return r.find(func(m *model.Mandate) bool { return subscriptionID != "" && m.ProviderSubscriptionID == subscriptionID })
}

func (r *MockMandateRepo) list(limit int, keep func(m *model.Mandate) bool, less func(a, b *model.Mandate) bool) []*model.Mandate {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Mandate
	for _, m := range r.s.mandates {
		if keep(m) {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func newestFirst(a, b *model.Mandate) bool { return a.CreatedAt.After(b.CreatedAt) }

func (r *MockMandateRepo) ListOpenByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Mandate, error) {
	return r.list(0, func(m *model.Mandate) bool { return m.UserID == userID && m.Status.IsOpen() }, newestFirst), nil
}

func (r *MockMandateRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.Mandate, error) {
	return r.list(limit, func(m *model.Mandate) bool { return m.UserID == userID }, newestFirst), nil
}

func (r *MockMandateRepo) ListDue(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Mandate, error) {
	return r.list(limit, func(m *model.Mandate) bool { return m.Due(now) }, func(a, b *model.Mandate) bool {
		return a.NextChargeDate.Before(*b.NextChargeDate)
	}), nil
}

func (r *MockMandateRepo) ListEnded(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Mandate, error) {
	return r.list(limit, func(m *model.Mandate) bool {
		return !m.Status.IsTerminal() && !m.EndDate.After(now)
	}, func(a, b *model.Mandate) bool { return a.EndDate.Before(b.EndDate) }), nil
}

// ---- Mock PaymentRepository ----

type MockPaymentRepo struct {
	s          *memStore
	CreateFunc func(ctx context.Context, tx repository.Tx, p *model.Payment) error
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func (r *MockPaymentRepo) Create(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	if r.CreateFunc != nil {
		return r.CreateFunc(ctx, tx, p)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.payments[p.TransactionID]; ok {
		return domain.ErrAlreadyExists
	}
	if p.ProviderPaymentID != "" {
		for _, o := range r.s.payments {
			if o.ProviderPaymentID == p.ProviderPaymentID {
				return domain.ErrAlreadyExists
			}
		}
	}
	r.s.payments[p.TransactionID] = p.Clone()
	return nil
}

func (r *MockPaymentRepo) FindByTransactionID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *MockPaymentRepo) FindByProviderPaymentID(ctx context.Context, tx repository.Tx, providerPaymentID string) (*model.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.payments {
		if providerPaymentID != "" && p.ProviderPaymentID == providerPaymentID {
			return p.Clone(), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockPaymentRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Payment
	for _, p := range r.s.payments {
		if p.UserID == userID {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TransactionID > out[j].TransactionID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MockPaymentRepo) MarkRefunded(ctx context.Context, tx repository.Tx, transactionID string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[transactionID]
	if !ok || p.Status != model.PaymentStatusCompleted {
		return false, nil
	}
	t := at
	p.Status = model.PaymentStatusRefunded
	p.RefundedAt = &t
	p.UpdatedAt = at
	return true, nil
}

func (r *MockPaymentRepo) count() int {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.payments)
}

// ---- Mock WebhookEventRepository ----

type MockEventRepo struct{ s *memStore }

var _ repository.WebhookEventRepository = (*MockEventRepo)(nil)

func (r *MockEventRepo) Exists(ctx context.Context, tx repository.Tx, key string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.events[key]
	return ok, nil
}

func (r *MockEventRepo) Record(ctx context.Context, tx repository.Tx, ev *model.WebhookEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.events[ev.Key]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *ev
	r.s.events[ev.Key] = &cp
	return nil
}

// ---- Mock ReconciliationRepository ----

type MockReconRepo struct{ s *memStore }

var _ repository.ReconciliationRepository = (*MockReconRepo)(nil)

func (r *MockReconRepo) Create(ctx context.Context, tx repository.Tx, t *model.ReconciliationTask) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tasks[t.ID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *t
	r.s.tasks[t.ID] = &cp
	return nil
}

func (r *MockReconRepo) Update(ctx context.Context, tx repository.Tx, t *model.ReconciliationTask) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tasks[t.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *t
	r.s.tasks[t.ID] = &cp
	return nil
}

func (r *MockReconRepo) ListPending(ctx context.Context, tx repository.Tx, limit int) ([]*model.ReconciliationTask, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.ReconciliationTask
	for _, t := range r.s.tasks {
		if t.Status == model.ReconciliationPending {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MockReconRepo) all() []*model.ReconciliationTask {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.ReconciliationTask
	for _, t := range r.s.tasks {
		cp := *t
		out = append(out, &cp)
	}
	return out
}

// =============================
// Adapters
// =============================

// ---- In-memory Locker ----

type MockLocker struct {
	mu    sync.Mutex
	held  map[string]string
	ErrOn map[string]error
}

var _ adapter.Locker = (*MockLocker)(nil)

func NewMockLocker() *MockLocker {
	return &MockLocker{held: map[string]string{}, ErrOn: map[string]error{}}
}

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err, bad := l.ErrOn[key]; bad {
		return "", err
	}
	if tok, ok := l.held[key]; ok && tok != "" {
		return "", domain.ErrLockNotAcquired
	}
	tok := uuid.NewString()
	l.held[key] = tok
	return tok, nil
}

func (l *MockLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
		return nil
	}
	return errors.New("unlock token mismatch")
}

// Hold takes key on behalf of another worker.
func (l *MockLocker) Hold(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held[key] = "someone-else"
}

// ---- Mock Provider ----

type MockProvider struct {
	mu sync.Mutex

	CreatePaymentLinkFunc  func(ctx context.Context, req adapter.PaymentLinkRequest) (adapter.PaymentLink, error)
	CreateSubscriptionFunc func(ctx context.Context, req adapter.SubscriptionRequest) (adapter.Subscription, error)
	CancelSubscriptionFunc func(ctx context.Context, subscriptionID string, immediate bool) error

	Links      []adapter.PaymentLinkRequest
	Subs       []adapter.SubscriptionRequest
	Cancelled  []string
	linkSerial int
	subSerial  int
}

var _ adapter.Provider = (*MockProvider)(nil)

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) CreatePaymentLink(ctx context.Context, req adapter.PaymentLinkRequest) (adapter.PaymentLink, error) {
	if p.CreatePaymentLinkFunc != nil {
		return p.CreatePaymentLinkFunc(ctx, req)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.linkSerial++
	p.Links = append(p.Links, req)
	id := "plink_" + req.ReferenceID
	return adapter.PaymentLink{LinkID: id, ShortURL: "https://rzp.io/i/" + id}, nil
}

func (p *MockProvider) CreateSubscription(ctx context.Context, req adapter.SubscriptionRequest) (adapter.Subscription, error) {
	if p.CreateSubscriptionFunc != nil {
		return p.CreateSubscriptionFunc(ctx, req)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subSerial++
	p.Subs = append(p.Subs, req)
	return adapter.Subscription{SubscriptionID: "sub_" + req.Notes["mandate_id"], Status: "created"}, nil
}

func (p *MockProvider) CancelSubscription(ctx context.Context, subscriptionID string, immediate bool) error {
	if p.CancelSubscriptionFunc != nil {
		return p.CancelSubscriptionFunc(ctx, subscriptionID, immediate)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Cancelled = append(p.Cancelled, subscriptionID)
	return nil
}

func (p *MockProvider) VerifyWebhookSignature(rawBody []byte, signature, secret string) bool {
	return hmac.Equal([]byte(signBody(secret, rawBody)), []byte(signature))
}

func (p *MockProvider) VerifyCheckoutSignature(orderID, paymentID, signature, secret string) bool {
	return hmac.Equal([]byte(signBody(secret, []byte(orderID+"|"+paymentID))), []byte(signature))
}

// ParseWebhookEvent reads the provider-neutral event as plain JSON.
func (p *MockProvider) ParseWebhookEvent(rawBody []byte) (adapter.ProviderEvent, error) {
	var ev adapter.ProviderEvent
	if err := json.Unmarshal(rawBody, &ev); err != nil {
		return adapter.ProviderEvent{}, err
	}
	if ev.Type == "" {
		return adapter.ProviderEvent{}, errors.New("missing event type")
	}
	return ev, nil
}

// ---- Mock MandateCharger ----

type MockCharger struct {
	mu       sync.Mutex
	Requests []adapter.ChargeRequest
	// Results are consumed in order; when exhausted every charge succeeds.
	Results []adapter.ChargeResult
	Err     error
}

var _ adapter.MandateCharger = (*MockCharger)(nil)

func (c *MockCharger) ChargeMandate(ctx context.Context, req adapter.ChargeRequest) (adapter.ChargeResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Requests = append(c.Requests, req)
	if c.Err != nil {
		return adapter.ChargeResult{}, c.Err
	}
	if len(c.Results) > 0 {
		r := c.Results[0]
		c.Results = c.Results[1:]
		return r, nil
	}
	return adapter.ChargeResult{Success: true, ProviderPaymentID: "pay_sched_" + req.Reference}, nil
}

// ---- Mock QRGenerator ----

type MockQR struct{}

var _ adapter.QRGenerator = MockQR{}

func (MockQR) MandateURI(p adapter.MandateURI) string {
	return "upi://mandate?pa=" + p.PayeeVPA + "&tr=" + p.MandateID
}

func (MockQR) PNGDataURL(content string) (string, error) {
	return "data:image/png;base64,UVI=", nil
}

// =============================
// Fixture
// =============================

type testDeps struct {
	store    *memStore
	tm       *MockTxManager
	users    *MockUserRepo
	mandates *MockMandateRepo
	payments *MockPaymentRepo
	events   *MockEventRepo
	recon    *MockReconRepo
	provider *MockProvider
	charger  *MockCharger
	locker   *MockLocker
	clock    *testClock
}

const (
	testKeySecret     = "key_secret"
	testWebhookSecret = "whsec_test"
	testMerchantVPA   = "merchant@okaxis"
	testAmount        = int64(900)
)

func newTestDeps() *testDeps {
	s := newMemStore()
	return &testDeps{
		store:    s,
		tm:       NewMockTxManager(s),
		users:    &MockUserRepo{s: s},
		mandates: &MockMandateRepo{s: s},
		payments: &MockPaymentRepo{s: s},
		events:   &MockEventRepo{s: s},
		recon:    &MockReconRepo{s: s},
		provider: &MockProvider{},
		charger:  &MockCharger{},
		locker:   NewMockLocker(),
		clock:    newTestClock(),
	}
}

func (d *testDeps) stores() usecase.Stores {
	return usecase.Stores{
		Users:           d.users,
		Mandates:        d.mandates,
		Payments:        d.payments,
		Events:          d.events,
		Reconciliations: d.recon,
		TM:              d.tm,
	}
}

func (d *testDeps) mandateConfig() usecase.MandateConfig {
	return usecase.MandateConfig{
		MerchantVPA:       testMerchantVPA,
		MerchantName:      "Test Merchant",
		MerchantCode:      "0000",
		Amount:            testAmount,
		Currency:          "INR",
		PlanID:            "plan_test",
		TotalCount:        60,
		CallbackURL:       "http://localhost:3000/api/mandate/callback",
		KeySecret:         testKeySecret,
		ProviderTimeout:   time.Second,
		LockTTL:           time.Second,
		MaxFailedAttempts: 3,
		Now:               d.clock.Now,
	}
}

// engine builds the mandate engine with the mock charger.
func (d *testDeps) engine() usecase.MandateUseCase {
	return usecase.NewMandateUseCase(d.stores(), d.provider, d.charger, d.locker, MockQR{}, d.mandateConfig(), newTestLogger())
}

// engineWithoutCharger builds the engine with no scheduler charge path.
func (d *testDeps) engineWithoutCharger() usecase.MandateUseCase {
	return usecase.NewMandateUseCase(d.stores(), d.provider, nil, d.locker, MockQR{}, d.mandateConfig(), newTestLogger())
}

func (d *testDeps) webhooks(engine usecase.MandateUseCase) usecase.WebhookUseCase {
	return usecase.NewWebhookUseCase(d.stores(), engine, d.provider, d.locker, testWebhookSecret, time.Second, d.clock.Now, newTestLogger())
}

// seedUser stores a trial user created at the current clock.
func (d *testDeps) seedUser(id string) *model.User {
	u, err := model.NewTrialUser(id, "fp-"+id, 7, d.clock.Now())
	if err != nil {
		panic(err)
	}
	if err := d.users.Create(context.Background(), repository.NoTX, u); err != nil {
		panic(err)
	}
	return u
}

func (d *testDeps) user(id string) *model.User {
	u, err := d.users.FindByID(context.Background(), repository.NoTX, id)
	if err != nil {
		panic(err)
	}
	return u
}

func (d *testDeps) mandate(id string) *model.Mandate {
	m, err := d.mandates.FindByID(context.Background(), repository.NoTX, id)
	if err != nil {
		panic(err)
	}
	return m
}

// activeMandate creates and activates a mandate for userID through the engine.
func (d *testDeps) activeMandate(engine usecase.MandateUseCase, userID string) *model.Mandate {
	ctx := context.Background()
	m, err := engine.Create(ctx, userID, "alice@okhdfc", 0)
	if err != nil {
		panic(err)
	}
	res, err := engine.Activate(ctx, m.ID, "pay_setup_"+userID, "test")
	if err != nil {
		panic(err)
	}
	return res.Mandate
}

func webhookBody(ev adapter.ProviderEvent) ([]byte, string) {
	body, err := json.Marshal(ev)
	if err != nil {
		panic(err)
	}
	return body, signBody(testWebhookSecret, body)
}
