package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/checkout-system/internal/erp"
	"github.com/mmeshcher/checkout-system/internal/inventory"
	"github.com/mmeshcher/checkout-system/internal/model"
	"github.com/mmeshcher/checkout-system/internal/pricing"
	"github.com/mmeshcher/checkout-system/internal/validation"
)

// CheckoutInput содержит данные запроса на оформление заказа.
type CheckoutInput struct {
	Customer          model.Customer
	Delivery          *model.DeliveryTarget
	PaymentMode       model.PaymentMode
	TransferReference string
	Source            model.OrderSource
}

// CheckoutResult содержит результат успешного оформления заказа.
type CheckoutResult struct {
	OrderNumber string
	Message     string
	RedirectURL string // заполнен только для оплаты через шлюз
}

// PlaceOrder оформляет заказ по финализированной корзине сессии.
//
// Последовательность шагов фиксирована: проверка предусловий без побочных
// эффектов, для точки продаж — проверка остатков, для оплаты через шлюз —
// инициирование платежа, затем единственная авторитетная запись заказа.
// Синхронизация с учётом и уведомления уходят в фон после успешной записи и
// на итог операции не влияют. Корзина очищается только при полном успехе.
func (s *Service) PlaceOrder(ctx context.Context, sessionID string, in CheckoutInput) (*CheckoutResult, error) {
	store := s.carts.Get(ctx, sessionID)
	items := store.Items()

	if err := validateInput(items, in); err != nil {
		return nil, err
	}

	if in.Source == model.OrderSourcePOS {
		report := s.validator.Validate(ctx, inventoryRequests(items))
		if report.HasBlocking() {
			return nil, &InventoryError{Report: report}
		}
	}

	rates, err := s.repo.GetTaxRates(ctx)
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}
	priced := pricing.Calculate(items, rates)

	paymentStatus := model.PaymentStatusUnpaid
	var redirectURL string

	if in.PaymentMode == model.PaymentModeGateway {
		coord := s.payments.Get(sessionID)

		var addressID string
		if in.Delivery != nil {
			addressID = in.Delivery.AddressID
		}

		url, err := coord.InitiatePayment(ctx, items, in.Customer, addressID)
		if err != nil {
			return nil, &GatewayError{Err: err}
		}
		redirectURL = url
		paymentStatus = model.PaymentStatusPending
	}

	if in.PaymentMode == model.PaymentModeManualTransfer {
		paymentStatus = model.PaymentStatusPending
	}

	order := model.Order{
		Number:            uuid.NewString(),
		Status:            model.OrderStatusNew,
		Customer:          in.Customer,
		Items:             items,
		Pricing:           priced,
		Delivery:          in.Delivery,
		PaymentMode:       in.PaymentMode,
		PaymentStatus:     paymentStatus,
		TransferReference: in.TransferReference,
		Source:            in.Source,
		CreatedAt:         time.Now(),
	}

	if err := s.repo.CreateOrder(ctx, order); err != nil {
		// Запись заказа — единственный источник истины. При её отказе
		// синхронизация и уведомления не запускаются, корзина сохраняется
		// для повторной попытки. Потреблённое намерение сбрасывается:
		// повторное оформление создаст новое.
		if in.PaymentMode == model.PaymentModeGateway {
			s.payments.Release(sessionID)
		}
		return nil, &PersistenceError{Err: err}
	}

	s.logger.Info("order placed",
		zap.String("order", order.Number),
		zap.String("mode", string(order.PaymentMode)),
		zap.String("source", string(order.Source)),
		zap.Int64("total", order.Pricing.Total),
	)

	s.dispatchSync(order)
	s.dispatchNotifications(order)

	s.carts.Drop(ctx, sessionID)
	s.payments.Release(sessionID)

	return &CheckoutResult{
		OrderNumber: order.Number,
		Message:     confirmationMessage(in.PaymentMode),
		RedirectURL: redirectURL,
	}, nil
}

func validateInput(items []model.LineItem, in CheckoutInput) error {
	if len(items) == 0 {
		return ErrEmptyCart
	}
	if in.Customer.Name == "" {
		return &ValidationError{Field: "customer.name"}
	}
	if !validation.IsValidPhone(in.Customer.Phone) {
		return &ValidationError{Field: "customer.phone"}
	}
	if !in.PaymentMode.Valid() {
		return &ValidationError{Field: "payment_mode"}
	}
	if in.Source != model.OrderSourceWeb && in.Source != model.OrderSourcePOS {
		return &ValidationError{Field: "source"}
	}
	if in.PaymentMode == model.PaymentModeManualTransfer && !validation.IsValidTransferReference(in.TransferReference) {
		return &ValidationError{Field: "transfer_reference"}
	}
	// Для заказов с витрины нужен адрес доставки; точка продаж и самовывоз
	// обходятся без него.
	if in.Source == model.OrderSourceWeb && in.Delivery == nil {
		return &ValidationError{Field: "delivery"}
	}
	return nil
}

func inventoryRequests(items []model.LineItem) []inventory.Request {
	requests := make([]inventory.Request, 0, len(items))
	for _, item := range items {
		requests = append(requests, inventory.Request{
			ItemID:   item.ID,
			Quantity: item.Quantity,
			Label:    item.Title,
		})
	}
	return requests
}

// dispatchSync отправляет очищенный снимок заказа во внешний учёт в фоне.
// Отказ синхронизации логируется и не меняет исход оформления.
func (s *Service) dispatchSync(order model.Order) {
	record := erp.OrderRecord{
		Status:        string(order.Status),
		CustomerName:  order.Customer.Name,
		CustomerPhone: order.Customer.Phone,
		Items:         make([]erp.OrderRecordItem, 0, len(order.Items)),
		Subtotal:      order.Pricing.Subtotal,
		Tax:           order.Pricing.Breakdown.StringKeys(),
		Total:         order.Pricing.Total,
		PaymentMode:   string(order.PaymentMode),
		Source:        string(order.Source),
	}
	for _, item := range order.Items {
		record.Items = append(record.Items, erp.OrderRecordItem{
			ItemID:    item.ID,
			Title:     item.Title,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}

	s.dispatcher.Go("erp-sync", func(ctx context.Context) error {
		return s.syncer.SyncOrder(ctx, order.Number, record)
	})
}

// dispatchNotifications рассылает уведомления всем настроенным получателям.
// Каждый получатель уведомляется независимо: отказ по одному адресату не
// отменяет остальных и не влияет на исход оформления.
func (s *Service) dispatchNotifications(order model.Order) {
	params := map[string]string{
		"order":  order.Number,
		"mode":   string(order.PaymentMode),
		"total":  formatMinorUnits(order.Pricing.Total),
		"source": string(order.Source),
	}

	for _, recipient := range s.recipients {
		recipient := recipient
		s.dispatcher.Go("notify:"+recipient, func(ctx context.Context) error {
			return s.notifier.Send(ctx, recipient, "order-placed", params)
		})
	}
}

func confirmationMessage(mode model.PaymentMode) string {
	switch mode {
	case model.PaymentModeCashOnDelivery:
		return "order placed, pay on delivery"
	case model.PaymentModeManualTransfer:
		return "order placed, awaiting transfer confirmation"
	case model.PaymentModeGateway:
		return "redirecting to payment"
	}
	return "order placed"
}

func formatMinorUnits(v int64) string {
	frac := v % 100
	if frac < 0 {
		frac = -frac
	}
	return fmt.Sprintf("%d.%02d", v/100, frac)
}
