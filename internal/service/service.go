// Package service реализует бизнес-логику оформления заказов.
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/checkout-system/internal/cart"
	"github.com/mmeshcher/checkout-system/internal/dispatch"
	"github.com/mmeshcher/checkout-system/internal/erp"
	"github.com/mmeshcher/checkout-system/internal/inventory"
	"github.com/mmeshcher/checkout-system/internal/model"
	"github.com/mmeshcher/checkout-system/internal/payment"
	"github.com/mmeshcher/checkout-system/internal/pricing"
	"github.com/mmeshcher/checkout-system/internal/repository"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	GetProduct(ctx context.Context, id string) (*model.LineItem, error)
	GetTaxRates(ctx context.Context) (model.TaxRateTable, error)
	CreateOrder(ctx context.Context, order model.Order) error
}

// Syncer описывает отправку снимка заказа во внешнюю систему учёта.
type Syncer interface {
	SyncOrder(ctx context.Context, orderID string, record erp.OrderRecord) error
}

// Notifier описывает отправку одного уведомления о новом заказе.
type Notifier interface {
	Send(ctx context.Context, recipient, templateKey string, params map[string]string) error
}

// Service содержит бизнес-логику корзины и оформления заказов.
type Service struct {
	repo       Repository
	carts      *cart.Manager
	payments   *payment.Manager
	validator  *inventory.Validator
	syncer     Syncer
	notifier   Notifier
	dispatcher *dispatch.Dispatcher
	recipients []string
	logger     *zap.Logger
}

// NewService создаёт сервис оформления заказов.
func NewService(
	repo Repository,
	carts *cart.Manager,
	payments *payment.Manager,
	validator *inventory.Validator,
	syncer Syncer,
	notifier Notifier,
	dispatcher *dispatch.Dispatcher,
	recipients []string,
	logger *zap.Logger,
) *Service {
	return &Service{
		repo:       repo,
		carts:      carts,
		payments:   payments,
		validator:  validator,
		syncer:     syncer,
		notifier:   notifier,
		dispatcher: dispatcher,
		recipients: recipients,
		logger:     logger,
	}
}

// CartView содержит состояние корзины вместе с пересчитанной стоимостью.
// Производные значения считаются заново при каждом чтении.
type CartView struct {
	Items         []model.LineItem
	TotalQuantity int64
	Pricing       model.Pricing
	Visible       bool
}

// GetCart возвращает корзину сессии с пересчитанной стоимостью.
func (s *Service) GetCart(ctx context.Context, sessionID string) (*CartView, error) {
	store := s.carts.Get(ctx, sessionID)
	return s.view(ctx, store)
}

// AddToCart добавляет товар в корзину сессии. Повторное добавление того же
// товара увеличивает количество, дубликат позиции не создаётся.
func (s *Service) AddToCart(ctx context.Context, sessionID, productID string) (*CartView, error) {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, repository.ErrProductNotFound
		}
		return nil, fmt.Errorf("load product: %w", err)
	}

	store := s.carts.Get(ctx, sessionID)
	store.Add(*product)
	s.afterMutation(ctx, sessionID, store)

	return s.view(ctx, store)
}

// IncrementItem увеличивает количество позиции корзины на 1.
func (s *Service) IncrementItem(ctx context.Context, sessionID, itemID string) (*CartView, error) {
	store := s.carts.Get(ctx, sessionID)
	if !store.Increment(itemID) {
		return nil, ErrItemNotInCart
	}
	s.afterMutation(ctx, sessionID, store)

	return s.view(ctx, store)
}

// DecrementItem уменьшает количество позиции корзины на 1; позиция с
// количеством 1 удаляется целиком.
func (s *Service) DecrementItem(ctx context.Context, sessionID, itemID string) (*CartView, error) {
	store := s.carts.Get(ctx, sessionID)
	if !store.Decrement(itemID) {
		return nil, ErrItemNotInCart
	}
	s.afterMutation(ctx, sessionID, store)

	return s.view(ctx, store)
}

// RemoveItem удаляет позицию из корзины сессии.
func (s *Service) RemoveItem(ctx context.Context, sessionID, itemID string) (*CartView, error) {
	store := s.carts.Get(ctx, sessionID)
	if !store.Remove(itemID) {
		return nil, ErrItemNotInCart
	}
	s.afterMutation(ctx, sessionID, store)

	return s.view(ctx, store)
}

// ClearCart удаляет все позиции корзины сессии.
func (s *Service) ClearCart(ctx context.Context, sessionID string) (*CartView, error) {
	store := s.carts.Get(ctx, sessionID)
	store.Clear()
	s.afterMutation(ctx, sessionID, store)

	return s.view(ctx, store)
}

// SetCartVisible устанавливает флаг видимости корзины в интерфейсе.
func (s *Service) SetCartVisible(ctx context.Context, sessionID string, visible bool) (*CartView, error) {
	store := s.carts.Get(ctx, sessionID)
	store.SetVisible(visible)
	s.carts.Persist(ctx, sessionID, store)

	return s.view(ctx, store)
}

// ValidateInventory возвращает полный отчёт по остаткам для точки продаж.
func (s *Service) ValidateInventory(ctx context.Context, requests []inventory.Request) inventory.Report {
	return s.validator.Validate(ctx, requests)
}

// afterMutation выполняет обязательные действия после успешной мутации
// корзины: сохраняет снимок и сверяет отпечаток с платёжным намерением.
func (s *Service) afterMutation(ctx context.Context, sessionID string, store *cart.Store) {
	s.carts.Persist(ctx, sessionID, store)
	s.payments.Get(sessionID).CartChanged(store.Fingerprint())
}

func (s *Service) view(ctx context.Context, store *cart.Store) (*CartView, error) {
	items := store.Items()

	rates, err := s.repo.GetTaxRates(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tax rates: %w", err)
	}

	return &CartView{
		Items:         items,
		TotalQuantity: store.TotalQuantity(),
		Pricing:       pricing.Calculate(items, rates),
		Visible:       store.Visible(),
	}, nil
}
