package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/mmeshcher/checkout-system/internal/cart"
	"github.com/mmeshcher/checkout-system/internal/dispatch"
	"github.com/mmeshcher/checkout-system/internal/erp"
	"github.com/mmeshcher/checkout-system/internal/gateway"
	"github.com/mmeshcher/checkout-system/internal/inventory"
	"github.com/mmeshcher/checkout-system/internal/model"
	"github.com/mmeshcher/checkout-system/internal/payment"
	"github.com/mmeshcher/checkout-system/internal/repository"
)

type stubRepo struct {
	mu sync.Mutex

	products map[string]model.LineItem
	stock    map[string]int64
	rates    model.TaxRateTable

	orders         []model.Order
	createOrderErr error
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		products: map[string]model.LineItem{
			"A": {ID: "A", Title: "Tea", UnitPrice: 520, CategorySlug: "edible"},
			"B": {ID: "B", Title: "Mug", UnitPrice: 300},
		},
		stock: map[string]int64{"A": 50, "B": 50},
		rates: model.TaxRateTable{
			ByID:   map[string]float64{},
			BySlug: map[string]float64{"edible": 5},
		},
	}
}

func (s *stubRepo) GetProduct(ctx context.Context, id string) (*model.LineItem, error) {
	if p, ok := s.products[id]; ok {
		return &p, nil
	}
	return nil, repository.ErrProductNotFound
}

func (s *stubRepo) GetTaxRates(ctx context.Context) (model.TaxRateTable, error) {
	return s.rates, nil
}

func (s *stubRepo) CreateOrder(ctx context.Context, order model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createOrderErr != nil {
		return s.createOrderErr
	}
	s.orders = append(s.orders, order)
	return nil
}

func (s *stubRepo) GetStock(ctx context.Context, itemID string) (int64, error) {
	stock, ok := s.stock[itemID]
	if !ok {
		return 0, repository.ErrProductNotFound
	}
	return stock, nil
}

func (s *stubRepo) GetCartSnapshot(ctx context.Context, sessionID string) (*model.CartSnapshot, error) {
	return nil, repository.ErrCartSnapshotNotFound
}

func (s *stubRepo) SaveCartSnapshot(ctx context.Context, sessionID string, snap model.CartSnapshot) error {
	return nil
}

func (s *stubRepo) DeleteCartSnapshot(ctx context.Context, sessionID string) error {
	return nil
}

func (s *stubRepo) ordersCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

type stubGateway struct {
	mu            sync.Mutex
	createCalls   int
	initiateCalls int
	createErr     error
}

func (g *stubGateway) CreatePreOrder(ctx context.Context, customer model.Customer, items []gateway.PreOrderItem, deliveryAddressID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++
	if g.createErr != nil {
		return "", g.createErr
	}
	return "intent-1", nil
}

func (g *stubGateway) InitiatePayment(ctx context.Context, intentID string, customer model.Customer) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initiateCalls++
	return "https://pay.example/" + intentID, nil
}

func (g *stubGateway) calls() (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.createCalls, g.initiateCalls
}

type stubSyncer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *stubSyncer) SyncOrder(ctx context.Context, orderID string, record erp.OrderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.err
}

func (s *stubSyncer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubNotifier struct {
	mu        sync.Mutex
	delivered map[string]int
	failFor   map[string]bool
}

func newStubNotifier() *stubNotifier {
	return &stubNotifier{
		delivered: make(map[string]int),
		failFor:   make(map[string]bool),
	}
}

func (n *stubNotifier) Send(ctx context.Context, recipient, templateKey string, params map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failFor[recipient] {
		return errors.New("recipient unavailable")
	}
	n.delivered[recipient]++
	return nil
}

func (n *stubNotifier) deliveredTo(recipient string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.delivered[recipient]
}

type testEnv struct {
	svc      *Service
	repo     *stubRepo
	gw       *stubGateway
	syncer   *stubSyncer
	notifier *stubNotifier
	disp     *dispatch.Dispatcher
	carts    *cart.Manager
}

func newTestEnv(t *testing.T, recipients []string) *testEnv {
	t.Helper()

	logger := zap.NewNop()
	repo := newStubRepo()
	gw := &stubGateway{}
	syncer := &stubSyncer{}
	notifier := newStubNotifier()
	disp := dispatch.NewDispatcher(logger)
	carts := cart.NewManager(repo, logger)
	payments := payment.NewManager(gw, logger)
	validator := inventory.NewValidator(repo, logger)

	svc := NewService(repo, carts, payments, validator,
		syncer, notifier, disp, recipients, logger)

	return &testEnv{
		svc:      svc,
		repo:     repo,
		gw:       gw,
		syncer:   syncer,
		notifier: notifier,
		disp:     disp,
		carts:    carts,
	}
}

func (e *testEnv) fillCart(t *testing.T, session string, productIDs ...string) {
	t.Helper()
	for _, id := range productIDs {
		if _, err := e.svc.AddToCart(context.Background(), session, id); err != nil {
			t.Fatalf("AddToCart(%s) error: %v", id, err)
		}
	}
}

func codInput() CheckoutInput {
	return CheckoutInput{
		Customer:    model.Customer{Name: "Иван", Phone: "+7 999 000-11-22"},
		Delivery:    &model.DeliveryTarget{Address: "Main street 1"},
		PaymentMode: model.PaymentModeCashOnDelivery,
		Source:      model.OrderSourceWeb,
	}
}

func TestPlaceOrder_CashOnDelivery(t *testing.T) {
	env := newTestEnv(t, []string{"staff-1"})
	env.fillCart(t, "s1", "A", "A")

	result, err := env.svc.PlaceOrder(context.Background(), "s1", codInput())
	if err != nil {
		t.Fatalf("PlaceOrder error: %v", err)
	}
	if result.OrderNumber == "" || result.RedirectURL != "" {
		t.Fatalf("unexpected result: %+v", result)
	}

	if env.repo.ordersCount() != 1 {
		t.Fatalf("orders persisted = %d, want 1", env.repo.ordersCount())
	}

	order := env.repo.orders[0]
	if order.Status != model.OrderStatusNew {
		t.Fatalf("status = %s, want NEW", order.Status)
	}
	if order.PaymentStatus != model.PaymentStatusUnpaid {
		t.Fatalf("payment status = %s, want UNPAID", order.PaymentStatus)
	}
	if order.Pricing.Subtotal != 1040 || order.Pricing.Total != 1092 {
		t.Fatalf("pricing = %+v, want subtotal 1040 total 1092", order.Pricing)
	}

	// Наложенный платёж никогда не обращается к платёжному шлюзу.
	creates, initiates := env.gw.calls()
	if creates != 0 || initiates != 0 {
		t.Fatalf("gateway calls = %d/%d, want none for COD", creates, initiates)
	}

	// Корзина очищается при полном успехе.
	if env.carts.Get(context.Background(), "s1").Len() != 0 {
		t.Fatalf("cart must be cleared after successful checkout")
	}

	env.disp.Wait()
	if env.syncer.callCount() != 1 {
		t.Fatalf("sync calls = %d, want 1", env.syncer.callCount())
	}
	if env.notifier.deliveredTo("staff-1") != 1 {
		t.Fatalf("notification not delivered")
	}
}

func TestPlaceOrder_PersistFailure(t *testing.T) {
	env := newTestEnv(t, []string{"staff-1"})
	env.fillCart(t, "s1", "A")
	env.repo.createOrderErr = errors.New("db down")

	_, err := env.svc.PlaceOrder(context.Background(), "s1", codInput())

	var persistenceErr *PersistenceError
	if !errors.As(err, &persistenceErr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}

	env.disp.Wait()
	if env.syncer.callCount() != 0 {
		t.Fatalf("no sync call must happen when the order write fails")
	}
	if env.notifier.deliveredTo("staff-1") != 0 {
		t.Fatalf("no notification must happen when the order write fails")
	}
	if env.carts.Get(context.Background(), "s1").Len() != 1 {
		t.Fatalf("cart must stay intact for retry")
	}
}

func TestPlaceOrder_NotificationFailureIsAbsorbed(t *testing.T) {
	env := newTestEnv(t, []string{"one", "two", "three"})
	env.fillCart(t, "s1", "A")
	env.notifier.failFor["two"] = true

	_, err := env.svc.PlaceOrder(context.Background(), "s1", codInput())
	if err != nil {
		t.Fatalf("checkout must succeed despite notification failure: %v", err)
	}

	env.disp.Wait()
	if env.notifier.deliveredTo("one") != 1 || env.notifier.deliveredTo("three") != 1 {
		t.Fatalf("other recipients must still be notified")
	}
	if env.notifier.deliveredTo("two") != 0 {
		t.Fatalf("unexpected delivery to failing recipient")
	}
}

func TestPlaceOrder_SyncFailureIsAbsorbed(t *testing.T) {
	env := newTestEnv(t, nil)
	env.fillCart(t, "s1", "A")
	env.syncer.err = errors.New("erp down")

	_, err := env.svc.PlaceOrder(context.Background(), "s1", codInput())
	if err != nil {
		t.Fatalf("checkout must succeed despite sync failure: %v", err)
	}

	env.disp.Wait()
	if env.repo.ordersCount() != 1 {
		t.Fatalf("order must stay persisted")
	}
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.svc.PlaceOrder(context.Background(), "s1", codInput())
	if !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
}

func TestPlaceOrder_Validation(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(in *CheckoutInput)
		wantField string
	}{
		{
			name:      "missing name",
			mutate:    func(in *CheckoutInput) { in.Customer.Name = "" },
			wantField: "customer.name",
		},
		{
			name:      "bad phone",
			mutate:    func(in *CheckoutInput) { in.Customer.Phone = "call me" },
			wantField: "customer.phone",
		},
		{
			name:      "unknown mode",
			mutate:    func(in *CheckoutInput) { in.PaymentMode = "BARTER" },
			wantField: "payment_mode",
		},
		{
			name: "manual transfer without reference",
			mutate: func(in *CheckoutInput) {
				in.PaymentMode = model.PaymentModeManualTransfer
				in.TransferReference = ""
			},
			wantField: "transfer_reference",
		},
		{
			name:      "web order without delivery",
			mutate:    func(in *CheckoutInput) { in.Delivery = nil },
			wantField: "delivery",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.fillCart(t, "s1", "A")

			in := codInput()
			tt.mutate(&in)

			_, err := env.svc.PlaceOrder(context.Background(), "s1", in)

			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if validationErr.Field != tt.wantField {
				t.Fatalf("field = %s, want %s", validationErr.Field, tt.wantField)
			}
			if env.repo.ordersCount() != 0 {
				t.Fatalf("validation failure must not persist an order")
			}
		})
	}
}

func TestPlaceOrder_GatewayMode(t *testing.T) {
	env := newTestEnv(t, nil)
	env.fillCart(t, "s1", "A")

	in := codInput()
	in.PaymentMode = model.PaymentModeGateway

	result, err := env.svc.PlaceOrder(context.Background(), "s1", in)
	if err != nil {
		t.Fatalf("PlaceOrder error: %v", err)
	}

	if result.RedirectURL == "" {
		t.Fatalf("gateway checkout must return a redirect url")
	}
	if env.repo.orders[0].PaymentStatus != model.PaymentStatusPending {
		t.Fatalf("payment status = %s, want PENDING", env.repo.orders[0].PaymentStatus)
	}

	creates, initiates := env.gw.calls()
	if creates != 1 || initiates != 1 {
		t.Fatalf("gateway calls = %d/%d, want 1/1", creates, initiates)
	}
}

func TestPlaceOrder_GatewayFailureNoOrder(t *testing.T) {
	env := newTestEnv(t, []string{"staff-1"})
	env.fillCart(t, "s1", "A")
	env.gw.createErr = errors.New("gateway down")

	in := codInput()
	in.PaymentMode = model.PaymentModeGateway

	_, err := env.svc.PlaceOrder(context.Background(), "s1", in)

	var gatewayErr *GatewayError
	if !errors.As(err, &gatewayErr) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
	if env.repo.ordersCount() != 0 {
		t.Fatalf("no order must be persisted until the gateway step succeeds")
	}
	if env.carts.Get(context.Background(), "s1").Len() != 1 {
		t.Fatalf("cart must stay intact after gateway failure")
	}
}

func TestPlaceOrder_GatewayRetryAfterPersistFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.fillCart(t, "s1", "A")
	env.repo.createOrderErr = errors.New("db down")

	in := codInput()
	in.PaymentMode = model.PaymentModeGateway

	_, err := env.svc.PlaceOrder(context.Background(), "s1", in)

	var persistenceErr *PersistenceError
	if !errors.As(err, &persistenceErr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if env.carts.Get(context.Background(), "s1").Len() != 1 {
		t.Fatalf("cart must stay intact for retry")
	}

	// Хранилище восстановилось: повтор должен создать новое намерение,
	// а не упереться в потреблённое.
	env.repo.createOrderErr = nil

	result, err := env.svc.PlaceOrder(context.Background(), "s1", in)
	if err != nil {
		t.Fatalf("retry after persistence failure must succeed: %v", err)
	}
	if result.RedirectURL == "" {
		t.Fatalf("retry must return a fresh redirect url")
	}
	if env.repo.ordersCount() != 1 {
		t.Fatalf("orders persisted = %d, want 1", env.repo.ordersCount())
	}

	creates, initiates := env.gw.calls()
	if creates != 2 || initiates != 2 {
		t.Fatalf("gateway calls = %d/%d, want 2/2 (fresh intent on retry)", creates, initiates)
	}
}

func TestPlaceOrder_POSInventoryBlocks(t *testing.T) {
	env := newTestEnv(t, nil)
	env.fillCart(t, "s1", "A", "A", "A", "A", "A")
	env.repo.stock["A"] = 3

	in := codInput()
	in.Source = model.OrderSourcePOS
	in.Delivery = nil

	_, err := env.svc.PlaceOrder(context.Background(), "s1", in)

	var inventoryErr *InventoryError
	if !errors.As(err, &inventoryErr) {
		t.Fatalf("expected InventoryError, got %v", err)
	}

	blocking := inventoryErr.Report.Blocking()
	if len(blocking) != 1 || blocking[0].Reason != inventory.ReasonInsufficient || blocking[0].Stock != 3 {
		t.Fatalf("unexpected report: %+v", blocking)
	}
	if env.repo.ordersCount() != 0 {
		t.Fatalf("blocked checkout must not persist an order")
	}
}

func TestPlaceOrder_POSLowStockDoesNotBlock(t *testing.T) {
	env := newTestEnv(t, nil)
	env.fillCart(t, "s1", "A")
	env.repo.stock["A"] = 4 // меньше порога предупреждения, но достаточно

	in := codInput()
	in.Source = model.OrderSourcePOS
	in.Delivery = nil

	if _, err := env.svc.PlaceOrder(context.Background(), "s1", in); err != nil {
		t.Fatalf("low stock must not block checkout: %v", err)
	}
}

func TestPlaceOrder_WebSkipsInventoryValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	env.fillCart(t, "s1", "A")
	env.repo.stock["A"] = 0 // витрина не проверяет остатки при оформлении

	if _, err := env.svc.PlaceOrder(context.Background(), "s1", codInput()); err != nil {
		t.Fatalf("web checkout must not validate inventory: %v", err)
	}
}
