package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-credits/app/catalog"
	"github.com/vibast-solutions/ms-go-credits/app/entity"
	"github.com/vibast-solutions/ms-go-credits/app/provider"
	"github.com/vibast-solutions/ms-go-credits/app/repository"
	"github.com/vibast-solutions/ms-go-credits/app/types"
	"github.com/vibast-solutions/ms-go-credits/config"
)

const serviceTestSecret = "whsec_dGVzdC1zZWNyZXQta2V5LXZhbHVl"

// memoryLedger mimics the store's semantics: the grant map plays the role of
// the unique key on order_id, and Apply mutates grant and balance together or
// not at all.
type memoryLedger struct {
	mu       sync.Mutex
	grants   map[string]*entity.CreditGrant
	balances map[string]*entity.UserBalance
	nextID   uint64
	failWith error
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		grants:   map[string]*entity.CreditGrant{},
		balances: map[string]*entity.UserBalance{},
		nextID:   1,
	}
}

func (l *memoryLedger) Apply(_ context.Context, grant *entity.CreditGrant) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.failWith != nil {
		return l.failWith
	}
	if _, ok := l.grants[grant.OrderID]; ok {
		return repository.ErrAlreadyGranted
	}
	balance, ok := l.balances[grant.UserID]
	if !ok {
		return repository.ErrAccountNotFound
	}

	copyItem := *grant
	copyItem.ID = l.nextID
	l.nextID++
	l.grants[grant.OrderID] = &copyItem
	grant.ID = copyItem.ID

	balance.Credits += grant.Credits
	balance.UpdatedAt = grant.CreatedAt

	return nil
}

func (l *memoryLedger) addAccount(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now().UTC()
	l.balances[userID] = &entity.UserBalance{UserID: userID, CreatedAt: now, UpdatedAt: now}
}

func (l *memoryLedger) balanceOf(userID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, ok := l.balances[userID]
	if !ok {
		return 0
	}
	return balance.Credits
}

func (l *memoryLedger) grantCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.grants)
}

type memoryBalanceRepo struct {
	ledger *memoryLedger
}

func (r *memoryBalanceRepo) Create(_ context.Context, balance *entity.UserBalance) error {
	r.ledger.mu.Lock()
	defer r.ledger.mu.Unlock()
	if _, ok := r.ledger.balances[balance.UserID]; ok {
		return repository.ErrAccountAlreadyExists
	}
	copyItem := *balance
	r.ledger.balances[balance.UserID] = &copyItem
	return nil
}

func (r *memoryBalanceRepo) FindByUserID(_ context.Context, userID string) (*entity.UserBalance, error) {
	r.ledger.mu.Lock()
	defer r.ledger.mu.Unlock()
	balance, ok := r.ledger.balances[userID]
	if !ok {
		return nil, nil
	}
	copyItem := *balance
	return &copyItem, nil
}

type memoryGrantRepo struct {
	ledger *memoryLedger
}

func (r *memoryGrantRepo) FindByOrderID(_ context.Context, orderID string) (*entity.CreditGrant, error) {
	r.ledger.mu.Lock()
	defer r.ledger.mu.Unlock()
	grant, ok := r.ledger.grants[orderID]
	if !ok {
		return nil, nil
	}
	copyItem := *grant
	return &copyItem, nil
}

func (r *memoryGrantRepo) ListByUserID(_ context.Context, userID string, limit, offset int32) ([]*entity.CreditGrant, error) {
	r.ledger.mu.Lock()
	defer r.ledger.mu.Unlock()
	items := make([]*entity.CreditGrant, 0)
	for _, grant := range r.ledger.grants {
		if grant.UserID == userID {
			copyItem := *grant
			items = append(items, &copyItem)
		}
	}
	return items, nil
}

type memoryDeliveryRepo struct {
	mu    sync.Mutex
	items []*entity.WebhookDelivery
}

func (r *memoryDeliveryRepo) Create(_ context.Context, delivery *entity.WebhookDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copyItem := *delivery
	copyItem.ID = uint64(len(r.items) + 1)
	r.items = append(r.items, &copyItem)
	delivery.ID = copyItem.ID
	return nil
}

func (r *memoryDeliveryRepo) ListRejectedSince(_ context.Context, since time.Time, limit int32) ([]*entity.WebhookDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]*entity.WebhookDelivery, 0)
	for _, delivery := range r.items {
		if delivery.Status == entity.DeliveryStatusRejected && !delivery.CreatedAt.Before(since) {
			copyItem := *delivery
			items = append(items, &copyItem)
		}
	}
	return items, nil
}

func (r *memoryDeliveryRepo) lastStatus() int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return 0
	}
	return r.items[len(r.items)-1].Status
}

func newTestService(t *testing.T, ledger *memoryLedger, deliveries *memoryDeliveryRepo) *FulfillmentService {
	t.Helper()

	creditCatalog, err := catalog.New(map[string]int64{"small": 15, "medium": 25, "large": 50})
	if err != nil {
		t.Fatalf("catalog build failed: %v", err)
	}

	registry := provider.NewRegistry(provider.NewPolarProvider(provider.PolarConfig{
		WebhookSecret: serviceTestSecret,
	}))

	return NewFulfillmentService(
		ledger,
		&memoryBalanceRepo{ledger: ledger},
		&memoryGrantRepo{ledger: ledger},
		deliveries,
		registry,
		creditCatalog,
		config.JobsConfig{SweepLookback: time.Hour, BatchSize: 100},
	)
}

func signWebhook(t *testing.T, eventID, ts string, payload []byte) string {
	t.Helper()
	key, err := base64.StdEncoding.DecodeString("dGVzdC1zZWNyZXQta2V5LXZhbHVl")
	if err != nil {
		t.Fatalf("decode key failed: %v", err)
	}
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write([]byte(eventID + "." + ts + "." + string(payload)))
	return "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func signedWebhookRequest(t *testing.T, eventID string, payload string) *types.ProviderWebhookRequest {
	t.Helper()
	ts := fmt.Sprintf("%d", time.Now().Unix())
	return &types.ProviderWebhookRequest{
		RequestId: "req-1",
		Provider:  "polar",
		EventId:   eventID,
		Timestamp: ts,
		Signature: signWebhook(t, eventID, ts, []byte(payload)),
		Payload:   payload,
	}
}

func orderPaidPayload(orderID, productID, customerID string) string {
	return fmt.Sprintf(`{"type":"order.paid","data":{"id":%q,"product_id":%q,"customer":{"id":"cus_1","external_id":%q}}}`, orderID, productID, customerID)
}

func TestHandleProviderWebhookGrantsCredits(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.addAccount("u1")
	deliveries := &memoryDeliveryRepo{}
	s := newTestService(t, ledger, deliveries)

	req := signedWebhookRequest(t, "evt_1", orderPaidPayload("o1", "medium", "u1"))
	result, err := s.HandleProviderWebhook(context.Background(), req)
	if err != nil {
		t.Fatalf("expected fulfillment, got %v", err)
	}
	if result.Outcome != OutcomeFulfilled {
		t.Fatalf("expected fulfilled outcome, got %q", result.Outcome)
	}
	if result.Grant == nil || result.Grant.Credits != 25 {
		t.Fatalf("expected grant of 25 credits, got %+v", result.Grant)
	}
	if ledger.balanceOf("u1") != 25 {
		t.Fatalf("expected balance 25, got %d", ledger.balanceOf("u1"))
	}
	if deliveries.lastStatus() != entity.DeliveryStatusProcessed {
		t.Fatalf("expected processed delivery record, got %d", deliveries.lastStatus())
	}
}

func TestHandleProviderWebhookReplayIsNoOp(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.addAccount("u1")
	deliveries := &memoryDeliveryRepo{}
	s := newTestService(t, ledger, deliveries)

	payload := orderPaidPayload("o1", "medium", "u1")
	if _, err := s.HandleProviderWebhook(context.Background(), signedWebhookRequest(t, "evt_1", payload)); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		result, err := s.HandleProviderWebhook(context.Background(), signedWebhookRequest(t, "evt_redeliver", payload))
		if err != nil {
			t.Fatalf("redelivery %d failed: %v", i, err)
		}
		if result.Outcome != OutcomeReplayed {
			t.Fatalf("expected replayed outcome, got %q", result.Outcome)
		}
		if result.Grant == nil || result.Grant.OrderID != "o1" {
			t.Fatalf("expected existing grant on replay, got %+v", result.Grant)
		}
	}

	if ledger.balanceOf("u1") != 25 {
		t.Fatalf("expected balance to stay 25 after replays, got %d", ledger.balanceOf("u1"))
	}
	if ledger.grantCount() != 1 {
		t.Fatalf("expected exactly one grant, got %d", ledger.grantCount())
	}
}

func TestHandleProviderWebhookConcurrentReplaySingleIncrement(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.addAccount("u1")
	deliveries := &memoryDeliveryRepo{}
	s := newTestService(t, ledger, deliveries)

	payload := orderPaidPayload("o1", "large", "u1")
	const parallel = 8

	var wg sync.WaitGroup
	errs := make(chan error, parallel)
	for i := 0; i < parallel; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.HandleProviderWebhook(context.Background(), signedWebhookRequest(t, "evt_1", payload))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent delivery failed: %v", err)
		}
	}
	if ledger.balanceOf("u1") != 50 {
		t.Fatalf("expected single increment of 50, got %d", ledger.balanceOf("u1"))
	}
	if ledger.grantCount() != 1 {
		t.Fatalf("expected exactly one grant, got %d", ledger.grantCount())
	}
}

func TestHandleProviderWebhookRejectsInvalidSignature(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.addAccount("u1")
	deliveries := &memoryDeliveryRepo{}
	s := newTestService(t, ledger, deliveries)

	req := signedWebhookRequest(t, "evt_1", orderPaidPayload("o1", "medium", "u1"))
	req.Signature = "v1,Zm9yZ2VkLXNpZ25hdHVyZQ=="

	_, err := s.HandleProviderWebhook(context.Background(), req)
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
	if ledger.balanceOf("u1") != 0 || ledger.grantCount() != 0 {
		t.Fatal("expected no mutation for forged delivery")
	}
	if deliveries.lastStatus() != entity.DeliveryStatusRejected {
		t.Fatalf("expected rejected delivery record, got %d", deliveries.lastStatus())
	}
}

func TestHandleProviderWebhookUnknownProduct(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.addAccount("u1")
	deliveries := &memoryDeliveryRepo{}
	s := newTestService(t, ledger, deliveries)

	req := signedWebhookRequest(t, "evt_1", orderPaidPayload("o1", "enterprise", "u1"))
	_, err := s.HandleProviderWebhook(context.Background(), req)
	if !errors.Is(err, ErrUnknownProduct) {
		t.Fatalf("expected ErrUnknownProduct, got %v", err)
	}
	if ledger.balanceOf("u1") != 0 || ledger.grantCount() != 0 {
		t.Fatal("expected no mutation for unknown product")
	}
}

func TestHandleProviderWebhookMissingCustomer(t *testing.T) {
	ledger := newMemoryLedger()
	deliveries := &memoryDeliveryRepo{}
	s := newTestService(t, ledger, deliveries)

	payload := `{"type":"order.paid","data":{"id":"o1","product_id":"medium","customer":{"id":"cus_1"}}}`
	_, err := s.HandleProviderWebhook(context.Background(), signedWebhookRequest(t, "evt_1", payload))
	if !errors.Is(err, ErrMissingCustomer) {
		t.Fatalf("expected ErrMissingCustomer, got %v", err)
	}
	if ledger.grantCount() != 0 {
		t.Fatal("expected no mutation for missing customer")
	}
	if deliveries.lastStatus() != entity.DeliveryStatusRejected {
		t.Fatalf("expected rejected delivery record, got %d", deliveries.lastStatus())
	}
}

func TestHandleProviderWebhookUnknownAccount(t *testing.T) {
	ledger := newMemoryLedger()
	deliveries := &memoryDeliveryRepo{}
	s := newTestService(t, ledger, deliveries)

	req := signedWebhookRequest(t, "evt_1", orderPaidPayload("o1", "medium", "ghost"))
	_, err := s.HandleProviderWebhook(context.Background(), req)
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if ledger.grantCount() != 0 {
		t.Fatal("expected no grant for unknown account")
	}
}

func TestHandleProviderWebhookIgnoresOtherEventTypes(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.addAccount("u1")
	deliveries := &memoryDeliveryRepo{}
	s := newTestService(t, ledger, deliveries)

	payload := `{"type":"order.created","data":{"id":"o1"}}`
	result, err := s.HandleProviderWebhook(context.Background(), signedWebhookRequest(t, "evt_1", payload))
	if err != nil {
		t.Fatalf("expected ignored event to succeed, got %v", err)
	}
	if result.Outcome != OutcomeIgnored {
		t.Fatalf("expected ignored outcome, got %q", result.Outcome)
	}
	if ledger.balanceOf("u1") != 0 || ledger.grantCount() != 0 {
		t.Fatal("expected no mutation for ignored event type")
	}
}

func TestHandleProviderWebhookTransientStoreFailure(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.addAccount("u1")
	ledger.failWith = errors.New("connection refused")
	deliveries := &memoryDeliveryRepo{}
	s := newTestService(t, ledger, deliveries)

	req := signedWebhookRequest(t, "evt_1", orderPaidPayload("o1", "medium", "u1"))
	_, err := s.HandleProviderWebhook(context.Background(), req)
	if err == nil {
		t.Fatal("expected transient failure to surface")
	}
	if errors.Is(err, ErrSignatureInvalid) || errors.Is(err, ErrPayloadMalformed) ||
		errors.Is(err, ErrMissingCustomer) || errors.Is(err, ErrUnknownProduct) ||
		errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected non-permanent classification, got %v", err)
	}
	if deliveries.lastStatus() == entity.DeliveryStatusRejected {
		t.Fatal("transient failure must not be recorded as rejected")
	}
}

func TestHandleProviderWebhookUnsupportedProvider(t *testing.T) {
	ledger := newMemoryLedger()
	deliveries := &memoryDeliveryRepo{}
	s := newTestService(t, ledger, deliveries)

	req := signedWebhookRequest(t, "evt_1", orderPaidPayload("o1", "medium", "u1"))
	req.Provider = "stripe"
	if _, err := s.HandleProviderWebhook(context.Background(), req); !errors.Is(err, ErrProviderUnsupported) {
		t.Fatalf("expected ErrProviderUnsupported, got %v", err)
	}
}

func TestCreateAccountIdempotent(t *testing.T) {
	ledger := newMemoryLedger()
	deliveries := &memoryDeliveryRepo{}
	s := newTestService(t, ledger, deliveries)

	first, err := s.CreateAccount(context.Background(), "u1")
	if err != nil {
		t.Fatalf("expected account creation, got %v", err)
	}
	if first.Credits != 0 {
		t.Fatalf("expected zero starting balance, got %d", first.Credits)
	}

	second, err := s.CreateAccount(context.Background(), "u1")
	if err != nil {
		t.Fatalf("expected repeat creation to be a no-op, got %v", err)
	}
	if second.UserID != "u1" {
		t.Fatalf("unexpected account on repeat creation: %+v", second)
	}

	if _, err := s.CreateAccount(context.Background(), "  "); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for blank user id, got %v", err)
	}
}

func TestGetBalanceNotFound(t *testing.T) {
	ledger := newMemoryLedger()
	deliveries := &memoryDeliveryRepo{}
	s := newTestService(t, ledger, deliveries)

	if _, err := s.GetBalance(context.Background(), "ghost"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestRunRejectedSweepBatch(t *testing.T) {
	ledger := newMemoryLedger()
	deliveries := &memoryDeliveryRepo{}
	s := newTestService(t, ledger, deliveries)

	orderID := "o1"
	reason := "order has no external customer id"
	_ = deliveries.Create(context.Background(), &entity.WebhookDelivery{
		Provider:    "polar",
		OrderID:     &orderID,
		Status:      entity.DeliveryStatusRejected,
		Error:       &reason,
		PayloadJSON: "{}",
		CreatedAt:   time.Now().UTC(),
	})

	if err := s.RunRejectedSweepBatch(context.Background()); err != nil {
		t.Fatalf("expected sweep to succeed, got %v", err)
	}
}
