package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/haleycommerce/storefront-backend/pkg/config"
	"github.com/haleycommerce/storefront-backend/pkg/db/models"
	"github.com/haleycommerce/storefront-backend/pkg/enums"
	"github.com/haleycommerce/storefront-backend/pkg/mail"
)

// fakeLedger mirrors the SQL claim semantics in memory so the concurrency
// property can be exercised without a database.
type fakeLedger struct {
	mu     sync.Mutex
	byKey  map[string]*models.EmailDelivery
	nextID int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{byKey: map[string]*models.EmailDelivery{}}
}

func (l *fakeLedger) FindByDedupeKey(_ context.Context, key string) (*models.EmailDelivery, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	row, ok := l.byKey[key]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *row
	return &copied, nil
}

func (l *fakeLedger) Create(_ context.Context, row *models.EmailDelivery) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.byKey[row.DedupeKey]; exists {
		return gorm.ErrDuplicatedKey
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	stored := *row
	l.byKey[row.DedupeKey] = &stored
	return nil
}

func (l *fakeLedger) find(id uuid.UUID) *models.EmailDelivery {
	for _, row := range l.byKey {
		if row.ID == id {
			return row
		}
	}
	return nil
}

func (l *fakeLedger) Claim(_ context.Context, id uuid.UUID, maxAttempts int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	row := l.find(id)
	if row == nil {
		return false, nil
	}
	claimable := row.Status == enums.EmailDeliveryStatusPending || row.Status == enums.EmailDeliveryStatusFailed
	if !claimable || row.Attempts >= maxAttempts {
		return false, nil
	}
	row.Status = enums.EmailDeliveryStatusProcessing
	return true, nil
}

func (l *fakeLedger) RecordAttempt(_ context.Context, id uuid.UUID) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	row := l.find(id)
	if row == nil {
		return 0, gorm.ErrRecordNotFound
	}
	now := time.Now().UTC()
	row.Attempts++
	row.LastAttemptAt = &now
	row.LastError = nil
	return row.Attempts, nil
}

func (l *fakeLedger) MarkSent(_ context.Context, id uuid.UUID, providerMessageID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	row := l.find(id)
	if row == nil {
		return gorm.ErrRecordNotFound
	}
	now := time.Now().UTC()
	row.Status = enums.EmailDeliveryStatusSent
	row.SentAt = &now
	if providerMessageID != "" {
		row.ProviderMessageID = &providerMessageID
	}
	return nil
}

func (l *fakeLedger) MarkFailed(_ context.Context, id uuid.UUID, message string, terminal bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	row := l.find(id)
	if row == nil {
		return gorm.ErrRecordNotFound
	}
	row.LastError = &message
	if terminal {
		row.Status = enums.EmailDeliveryStatusFailed
	}
	return nil
}

func (l *fakeLedger) MarkSkipped(_ context.Context, id uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	row := l.find(id)
	if row == nil {
		return gorm.ErrRecordNotFound
	}
	row.Status = enums.EmailDeliveryStatusSkipped
	return nil
}

func (l *fakeLedger) row(t *testing.T, key string) *models.EmailDelivery {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	row, ok := l.byKey[key]
	if !ok {
		t.Fatalf("ledger row %q not found", key)
	}
	copied := *row
	return &copied
}

type fakeOrderLoader struct {
	orders map[uuid.UUID]*models.Order
}

func (f *fakeOrderLoader) FindOrderByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	if order, ok := f.orders[id]; ok {
		return order, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type fakeCustomerLoader struct {
	customers map[uuid.UUID]*models.Customer
}

func (f *fakeCustomerLoader) FindByID(_ context.Context, id uuid.UUID) (*models.Customer, error) {
	if customer, ok := f.customers[id]; ok {
		return customer, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type fakeShopLoader struct {
	shops map[uuid.UUID]*models.Shop
}

func (f *fakeShopLoader) FindByID(_ context.Context, id uuid.UUID) (*models.Shop, error) {
	if shop, ok := f.shops[id]; ok {
		return shop, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type fakeTransport struct {
	mu        sync.Mutex
	calls     int
	failFirst int
	alwaysErr bool
}

func (f *fakeTransport) Send(_ context.Context, _ mail.Message) (*mail.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.alwaysErr || f.calls <= f.failFirst {
		return nil, errors.New("smtp timeout")
	}
	return &mail.Result{ProviderMessageID: "msg_ok"}, nil
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestOrder(customerID *uuid.UUID, guestEmail *string) *models.Order {
	return &models.Order{
		ID:          uuid.New(),
		OrderNumber: "SO-TEST-1",
		ShopID:      uuid.New(),
		CustomerID:  customerID,
		GuestEmail:  guestEmail,
		Currency:    enums.CurrencyUSD,
		TotalCents:  4000,
	}
}

func newTestEngine(t *testing.T, ledger LedgerRepository, order *models.Order, customer *models.Customer, shop *models.Shop, transport mail.Transport) *Engine {
	t.Helper()

	ordersFake := &fakeOrderLoader{orders: map[uuid.UUID]*models.Order{order.ID: order}}
	customersFake := &fakeCustomerLoader{customers: map[uuid.UUID]*models.Customer{}}
	if customer != nil {
		customersFake.customers[customer.ID] = customer
	}
	shopsFake := &fakeShopLoader{shops: map[uuid.UUID]*models.Shop{}}
	if shop != nil {
		shopsFake.shops[shop.ID] = shop
	}

	engine, err := NewEngine(ledger, ordersFake, customersFake, shopsFake, transport, config.MailConfig{
		MaxAttempts: 3,
		BackoffBase: 250 * time.Millisecond,
		BackoffCap:  2 * time.Second,
	}, nil, nil)
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	engine.sleep = func(context.Context, time.Duration) error { return nil }
	return engine
}

func TestSendOrderConfirmationSucceedsFirstAttempt(t *testing.T) {
	t.Parallel()

	guest := "guest@example.com"
	order := newTestOrder(nil, &guest)
	ledger := newFakeLedger()
	transport := &fakeTransport{}
	engine := newTestEngine(t, ledger, order, nil, nil, transport)

	outcome, err := engine.SendOrderConfirmation(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if outcome != OutcomeSent {
		t.Fatalf("expected sent, got %s", outcome)
	}

	row := ledger.row(t, DedupeKey(enums.EmailTypeOrderConfirmation, order.ID, guest))
	if row.Status != enums.EmailDeliveryStatusSent {
		t.Fatalf("expected sent status, got %s", row.Status)
	}
	if row.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", row.Attempts)
	}
	if row.ProviderMessageID == nil || *row.ProviderMessageID != "msg_ok" {
		t.Fatal("expected provider message id recorded")
	}
	if transport.callCount() != 1 {
		t.Fatalf("expected 1 transport call, got %d", transport.callCount())
	}
}

func TestSendOrderConfirmationAtMostOnceUnderConcurrency(t *testing.T) {
	t.Parallel()

	guest := "guest@example.com"
	order := newTestOrder(nil, &guest)
	ledger := newFakeLedger()
	transport := &fakeTransport{}
	engine := newTestEngine(t, ledger, order, nil, nil, transport)

	const callers = 8
	outcomes := make([]Outcome, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			outcome, _ := engine.SendOrderConfirmation(context.Background(), order.ID)
			outcomes[idx] = outcome
		}(i)
	}
	wg.Wait()

	var sent, alreadySent int
	for _, outcome := range outcomes {
		switch outcome {
		case OutcomeSent:
			sent++
		case OutcomeAlreadySent:
			alreadySent++
		default:
			t.Fatalf("unexpected outcome %s", outcome)
		}
	}
	if sent != 1 {
		t.Fatalf("expected exactly one sent, got %d", sent)
	}
	if alreadySent != callers-1 {
		t.Fatalf("expected %d already_sent, got %d", callers-1, alreadySent)
	}
	if transport.callCount() != 1 {
		t.Fatalf("expected exactly one transport call, got %d", transport.callCount())
	}
}

func TestSendOrderConfirmationRetryExhaustion(t *testing.T) {
	t.Parallel()

	guest := "guest@example.com"
	order := newTestOrder(nil, &guest)
	ledger := newFakeLedger()
	transport := &fakeTransport{alwaysErr: true}
	engine := newTestEngine(t, ledger, order, nil, nil, transport)

	outcome, err := engine.SendOrderConfirmation(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if outcome != OutcomeFailed {
		t.Fatalf("expected failed, got %s", outcome)
	}

	row := ledger.row(t, DedupeKey(enums.EmailTypeOrderConfirmation, order.ID, guest))
	if row.Attempts != 3 {
		t.Fatalf("expected attempts to reach exactly 3, got %d", row.Attempts)
	}
	if row.Status != enums.EmailDeliveryStatusFailed {
		t.Fatalf("expected failed status, got %s", row.Status)
	}
	if row.LastError == nil {
		t.Fatal("expected last error recorded")
	}

	// exhausted rows are never retried by later triggers
	before := transport.callCount()
	outcome, err = engine.SendOrderConfirmation(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if outcome != OutcomeFailed {
		t.Fatalf("expected failed, got %s", outcome)
	}
	if transport.callCount() != before {
		t.Fatal("expected no additional transport calls after exhaustion")
	}
}

func TestSendOrderConfirmationOptOut(t *testing.T) {
	t.Parallel()

	customer := &models.Customer{
		ID:                uuid.New(),
		Email:             "member@example.com",
		FirstName:         "Casey",
		LastName:          "Nguyen",
		OrderEmailsOptOut: true,
	}
	order := newTestOrder(&customer.ID, nil)
	ledger := newFakeLedger()
	transport := &fakeTransport{}
	engine := newTestEngine(t, ledger, order, customer, nil, transport)

	outcome, err := engine.SendOrderConfirmation(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if outcome != OutcomeSkipped {
		t.Fatalf("expected skipped, got %s", outcome)
	}
	if transport.callCount() != 0 {
		t.Fatal("expected transport never invoked for opted-out recipient")
	}

	row := ledger.row(t, DedupeKey(enums.EmailTypeOrderConfirmation, order.ID, customer.Email))
	if row.Status != enums.EmailDeliveryStatusSkipped {
		t.Fatalf("expected skipped status, got %s", row.Status)
	}
}

func TestSendOrderConfirmationSecondAttemptSucceeds(t *testing.T) {
	t.Parallel()

	guest := "guest@example.com"
	order := newTestOrder(nil, &guest)
	ledger := newFakeLedger()
	transport := &fakeTransport{failFirst: 1}
	engine := newTestEngine(t, ledger, order, nil, nil, transport)

	var delays []time.Duration
	engine.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	outcome, err := engine.SendOrderConfirmation(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if outcome != OutcomeSent {
		t.Fatalf("expected sent, got %s", outcome)
	}

	row := ledger.row(t, DedupeKey(enums.EmailTypeOrderConfirmation, order.ID, guest))
	if row.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", row.Attempts)
	}
	if row.LastError != nil {
		t.Fatalf("expected first attempt's error cleared, got %q", *row.LastError)
	}
	if row.Status != enums.EmailDeliveryStatusSent {
		t.Fatalf("expected sent status, got %s", row.Status)
	}
	if len(delays) != 1 || delays[0] != 250*time.Millisecond {
		t.Fatalf("expected one backoff of 250ms, got %v", delays)
	}
}

func TestSendOrderConfirmationNoRecipient(t *testing.T) {
	t.Parallel()

	order := newTestOrder(nil, nil)
	ledger := newFakeLedger()
	transport := &fakeTransport{}
	engine := newTestEngine(t, ledger, order, nil, nil, transport)

	outcome, err := engine.SendOrderConfirmation(context.Background(), order.ID)
	if err == nil {
		t.Fatal("expected error when no recipient resolves")
	}
	if outcome != OutcomeFailed {
		t.Fatalf("expected failed, got %s", outcome)
	}
	if transport.callCount() != 0 {
		t.Fatal("expected no transport call")
	}
}

func TestSendVendorNewOrderUsesShopContact(t *testing.T) {
	t.Parallel()

	guest := "guest@example.com"
	order := newTestOrder(nil, &guest)
	shop := &models.Shop{
		ID:           order.ShopID,
		Slug:         "vendor-shop",
		Name:         "Vendor Shop",
		ContactEmail: "owner@vendor.example.com",
	}
	ledger := newFakeLedger()
	transport := &fakeTransport{}
	engine := newTestEngine(t, ledger, order, nil, shop, transport)

	outcome, err := engine.SendVendorNewOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if outcome != OutcomeSent {
		t.Fatalf("expected sent, got %s", outcome)
	}

	row := ledger.row(t, DedupeKey(enums.EmailTypeVendorNewOrder, order.ID, shop.ContactEmail))
	if row.Status != enums.EmailDeliveryStatusSent {
		t.Fatalf("expected sent status, got %s", row.Status)
	}
	if row.Recipient != shop.ContactEmail {
		t.Fatalf("expected recipient %q, got %q", shop.ContactEmail, row.Recipient)
	}
}
