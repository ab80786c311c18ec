// Package payment реализует жизненный цикл платёжного намерения.
package payment

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mmeshcher/checkout-system/internal/cart"
	"github.com/mmeshcher/checkout-system/internal/gateway"
	"github.com/mmeshcher/checkout-system/internal/model"
)

// State описывает состояние платёжного намерения сессии.
type State string

const (
	// StateNone — намерение отсутствует.
	StateNone State = "NONE"
	// StateCreated — намерение создано и привязано к отпечатку корзины.
	StateCreated State = "CREATED"
	// StateStale — корзина изменилась после создания намерения.
	StateStale State = "STALE"
	// StateConsumed — по намерению инициирована оплата, повторное
	// использование запрещено.
	StateConsumed State = "CONSUMED"
)

// Gateway описывает операции платёжного шлюза, используемые координатором.
type Gateway interface {
	CreatePreOrder(ctx context.Context, customer model.Customer, items []gateway.PreOrderItem, deliveryAddressID string) (string, error)
	InitiatePayment(ctx context.Context, intentID string, customer model.Customer) (string, error)
}

// Coordinator привязывает платёжное намерение шлюза к отпечатку корзины и
// инвалидирует привязку при изменении корзины. Все переходы выполняются под
// мьютексом: конкурирующая мутация корзины помечает намерение устаревшим
// вместо потерянного обновления.
type Coordinator struct {
	mu          sync.Mutex
	gw          Gateway
	logger      *zap.Logger
	state       State
	intentID    string
	fingerprint string
}

// NewCoordinator создаёт координатор платёжных намерений одной сессии.
func NewCoordinator(gw Gateway, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		gw:     gw,
		logger: logger,
		state:  StateNone,
	}
}

// State возвращает текущее состояние намерения.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IntentID возвращает идентификатор привязанного намерения, если оно есть.
func (c *Coordinator) IntentID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.intentID
}

// CartChanged сравнивает новый отпечаток корзины с привязанным и помечает
// созданное намерение устаревшим при расхождении. Удалённое намерение в шлюзе
// не отменяется.
func (c *Coordinator) CartChanged(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateCreated && c.fingerprint != fingerprint {
		c.state = StateStale
		c.logger.Info("payment intent marked stale", zap.String("intent", c.intentID))
	}
}

// EnsureIntent гарантирует наличие намерения, привязанного к текущему
// отпечатку корзины, создавая новое при отсутствии или устаревании. При
// отказе шлюза координатор остаётся в состоянии NONE.
func (c *Coordinator) EnsureIntent(ctx context.Context, items []model.LineItem, customer model.Customer, deliveryAddressID string) error {
	// Отпечаток считается по тому же правилу, что и в корзине: координатор и
	// оркестратор обязаны сходиться в его вычислении.
	fingerprint := cart.Fingerprint(items)

	c.mu.Lock()
	if c.state == StateCreated && c.fingerprint == fingerprint {
		c.mu.Unlock()
		return nil
	}
	c.state = StateNone
	c.intentID = ""
	c.fingerprint = ""
	c.mu.Unlock()

	preOrderItems := make([]gateway.PreOrderItem, 0, len(items))
	for _, item := range items {
		preOrderItems = append(preOrderItems, gateway.PreOrderItem{
			ProductID: item.ID,
			Qty:       item.Quantity,
		})
	}

	intentID, err := c.gw.CreatePreOrder(ctx, customer, preOrderItems, deliveryAddressID)
	if err != nil {
		return fmt.Errorf("create payment intent: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Корзина могла измениться, пока шлюз создавал намерение. Привязываем
	// намерение к тому отпечатку, для которого оно создавалось: следующий
	// CartChanged пометит его устаревшим.
	c.state = StateCreated
	c.intentID = intentID
	c.fingerprint = fingerprint

	return nil
}

// InitiatePayment инициирует оплату по актуальному намерению и возвращает
// адрес перенаправления. Для устаревшего или отсутствующего намерения сначала
// создаётся новое — оплата по устаревшему содержимому корзины невозможна.
func (c *Coordinator) InitiatePayment(ctx context.Context, items []model.LineItem, customer model.Customer, deliveryAddressID string) (string, error) {
	c.mu.Lock()
	if c.state == StateConsumed {
		c.mu.Unlock()
		return "", fmt.Errorf("payment intent already consumed")
	}
	c.mu.Unlock()

	if err := c.EnsureIntent(ctx, items, customer, deliveryAddressID); err != nil {
		return "", err
	}

	c.mu.Lock()
	intentID := c.intentID
	c.mu.Unlock()

	url, err := c.gw.InitiatePayment(ctx, intentID, customer)
	if err != nil {
		return "", fmt.Errorf("initiate payment: %w", err)
	}

	c.mu.Lock()
	c.state = StateConsumed
	c.mu.Unlock()

	return url, nil
}

// Release сбрасывает намерение после завершения оформления или конца сессии.
func (c *Coordinator) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = StateNone
	c.intentID = ""
	c.fingerprint = ""
}
