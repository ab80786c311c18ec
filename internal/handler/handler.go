// Package handler содержит HTTP-обработчики API сервиса оформления заказов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/checkout-system/internal/inventory"
	"github.com/mmeshcher/checkout-system/internal/middleware"
	"github.com/mmeshcher/checkout-system/internal/model"
	"github.com/mmeshcher/checkout-system/internal/repository"
	"github.com/mmeshcher/checkout-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	GetCart(ctx context.Context, sessionID string) (*service.CartView, error)
	AddToCart(ctx context.Context, sessionID, productID string) (*service.CartView, error)
	IncrementItem(ctx context.Context, sessionID, itemID string) (*service.CartView, error)
	DecrementItem(ctx context.Context, sessionID, itemID string) (*service.CartView, error)
	RemoveItem(ctx context.Context, sessionID, itemID string) (*service.CartView, error)
	ClearCart(ctx context.Context, sessionID string) (*service.CartView, error)
	SetCartVisible(ctx context.Context, sessionID string, visible bool) (*service.CartView, error)
	ValidateInventory(ctx context.Context, requests []inventory.Request) inventory.Report
	PlaceOrder(ctx context.Context, sessionID string, in service.CheckoutInput) (*service.CheckoutResult, error)
}

// Handler реализует HTTP-обработчики API сервиса оформления заказов.
type Handler struct {
	service Service
	logger  *zap.Logger
	session *middleware.SessionMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, session *middleware.SessionMiddleware) *Handler {
	return &Handler{
		service: s,
		logger:  logger,
		session: session,
	}
}

type cartResponse struct {
	Items         []model.LineItem `json:"items"`
	TotalQuantity int64            `json:"total_quantity"`
	Subtotal      int64            `json:"subtotal"`
	Tax           map[string]int64 `json:"tax"`
	Total         int64            `json:"total"`
	Visible       bool             `json:"visible"`
}

func cartResponseFrom(view *service.CartView) cartResponse {
	items := view.Items
	if items == nil {
		items = []model.LineItem{}
	}
	return cartResponse{
		Items:         items,
		TotalQuantity: view.TotalQuantity,
		Subtotal:      view.Pricing.Subtotal,
		Tax:           view.Pricing.Breakdown.StringKeys(),
		Total:         view.Pricing.Total,
		Visible:       view.Visible,
	}
}

func (h *Handler) writeCart(w http.ResponseWriter, view *service.CartView) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(cartResponseFrom(view)); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	sessionID, ok := middleware.GetSessionIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return "", false
	}
	return sessionID, true
}

// GetCart возвращает корзину текущей сессии с пересчитанной стоимостью.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	view, err := h.service.GetCart(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("get cart error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeCart(w, view)
}

type addItemRequest struct {
	ID string `json:"id"`
}

// AddCartItem добавляет товар в корзину текущей сессии.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	view, err := h.service.AddToCart(r.Context(), sessionID, req.ID)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("add cart item error", zap.Error(err), zap.String("item", req.ID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeCart(w, view)
}

func (h *Handler) mutateItem(w http.ResponseWriter, r *http.Request, itemID string,
	op func(ctx context.Context, sessionID, itemID string) (*service.CartView, error)) {

	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	view, err := op(r.Context(), sessionID, itemID)
	if err != nil {
		if errors.Is(err, service.ErrItemNotInCart) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("cart mutation error", zap.Error(err), zap.String("item", itemID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeCart(w, view)
}

// ClearCart удаляет все позиции корзины текущей сессии.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	view, err := h.service.ClearCart(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("clear cart error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeCart(w, view)
}

type visibilityRequest struct {
	Visible bool `json:"visible"`
}

// SetCartVisibility устанавливает флаг видимости корзины в интерфейсе.
func (h *Handler) SetCartVisibility(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	var req visibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	view, err := h.service.SetCartVisible(r.Context(), sessionID, req.Visible)
	if err != nil {
		h.logger.Error("set cart visibility error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeCart(w, view)
}

type posValidateRequest struct {
	Items []struct {
		ItemID   string `json:"item_id"`
		Quantity int64  `json:"quantity"`
		Label    string `json:"label"`
	} `json:"items"`
}

type posValidateResponse struct {
	Problems []inventory.Problem `json:"problems"`
	Blocking bool                `json:"blocking"`
}

// ValidatePOS возвращает полный отчёт об остатках для экрана точки продаж.
func (h *Handler) ValidatePOS(w http.ResponseWriter, r *http.Request) {
	var req posValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Items) == 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	requests := make([]inventory.Request, 0, len(req.Items))
	for _, item := range req.Items {
		requests = append(requests, inventory.Request{
			ItemID:   item.ItemID,
			Quantity: item.Quantity,
			Label:    item.Label,
		})
	}

	report := h.service.ValidateInventory(r.Context(), requests)

	resp := posValidateResponse{
		Problems: report.Problems,
		Blocking: report.HasBlocking(),
	}
	if resp.Problems == nil {
		resp.Problems = []inventory.Problem{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

type checkoutRequest struct {
	Customer          model.Customer        `json:"customer"`
	Delivery          *model.DeliveryTarget `json:"delivery,omitempty"`
	PaymentMode       string                `json:"payment_mode"`
	TransferReference string                `json:"transfer_reference,omitempty"`
	Source            string                `json:"source,omitempty"`
}

type checkoutResponse struct {
	OrderNumber string `json:"order_number"`
	Message     string `json:"message"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

type checkoutErrorResponse struct {
	Error    string              `json:"error"`
	Field    string              `json:"field,omitempty"`
	Problems []inventory.Problem `json:"problems,omitempty"`
}

// Checkout оформляет заказ по корзине текущей сессии.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	source := model.OrderSource(req.Source)
	if source == "" {
		source = model.OrderSourceWeb
	}

	result, err := h.service.PlaceOrder(r.Context(), sessionID, service.CheckoutInput{
		Customer:          req.Customer,
		Delivery:          req.Delivery,
		PaymentMode:       model.PaymentMode(req.PaymentMode),
		TransferReference: req.TransferReference,
		Source:            source,
	})
	if err != nil {
		h.writeCheckoutError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(checkoutResponse{
		OrderNumber: result.OrderNumber,
		Message:     result.Message,
		RedirectURL: result.RedirectURL,
	}); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// writeCheckoutError отображает класс ошибки оформления в HTTP-статус.
// Каждый фатальный класс получает понятный повод для повтора; проблемы с
// остатками перечисляются по каждой позиции.
func (h *Handler) writeCheckoutError(w http.ResponseWriter, err error) {
	var (
		validationErr  *service.ValidationError
		inventoryErr   *service.InventoryError
		gatewayErr     *service.GatewayError
		persistenceErr *service.PersistenceError
	)

	switch {
	case errors.Is(err, service.ErrEmptyCart):
		writeJSONError(w, http.StatusBadRequest, checkoutErrorResponse{Error: "cart is empty"})
	case errors.As(err, &validationErr):
		writeJSONError(w, http.StatusBadRequest, checkoutErrorResponse{
			Error: "missing or invalid checkout field",
			Field: validationErr.Field,
		})
	case errors.As(err, &inventoryErr):
		writeJSONError(w, http.StatusConflict, checkoutErrorResponse{
			Error:    "insufficient inventory",
			Problems: inventoryErr.Report.Blocking(),
		})
	case errors.As(err, &gatewayErr):
		h.logger.Error("checkout gateway error", zap.Error(err))
		writeJSONError(w, http.StatusBadGateway, checkoutErrorResponse{
			Error: "payment gateway unavailable, try again",
		})
	case errors.As(err, &persistenceErr):
		h.logger.Error("checkout persistence error", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, checkoutErrorResponse{
			Error: "order could not be saved, try again",
		})
	default:
		h.logger.Error("checkout error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func writeJSONError(w http.ResponseWriter, status int, body checkoutErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
