// Package model содержит доменные сущности сервиса оформления заказов.
package model

import (
	"strconv"
	"time"
)

// LineItem представляет одну товарную позицию в корзине.
type LineItem struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	UnitPrice    int64  `json:"unit_price"` // цена в минимальных единицах (копейки/центы)
	Quantity     int64  `json:"quantity"`
	CategoryID   string `json:"category_id,omitempty"`
	CategorySlug string `json:"category_slug,omitempty"`
	ImageURL     string `json:"image_url,omitempty"`
}

// LineTotal возвращает стоимость позиции с учётом количества.
func (li LineItem) LineTotal() int64 {
	return li.UnitPrice * li.Quantity
}

// TaxRateTable содержит ставки налога по категориям товаров.
// Это снимок справочника каталога; для отсутствующих категорий ставка 0.
type TaxRateTable struct {
	ByID   map[string]float64
	BySlug map[string]float64
}

// Resolve возвращает ставку налога для позиции: сначала по идентификатору
// категории, затем по слагу, иначе 0.
func (t TaxRateTable) Resolve(item LineItem) float64 {
	if item.CategoryID != "" {
		if rate, ok := t.ByID[item.CategoryID]; ok {
			return rate
		}
	}
	if item.CategorySlug != "" {
		if rate, ok := t.BySlug[item.CategorySlug]; ok {
			return rate
		}
	}
	return 0
}

// TaxBreakdown содержит накопленные суммы налога по каждой ненулевой ставке.
type TaxBreakdown map[float64]int64

// StringKeys возвращает разбивку со строковыми ключами ставок для
// JSON-сериализации (encoding/json не кодирует ключи float64).
func (t TaxBreakdown) StringKeys() map[string]int64 {
	out := make(map[string]int64, len(t))
	for rate, amount := range t {
		out[strconv.FormatFloat(rate, 'f', -1, 64)] = amount
	}
	return out
}

// Pricing содержит итоги расчёта стоимости заказа.
type Pricing struct {
	Subtotal  int64
	Breakdown TaxBreakdown
	TaxTotal  int64
	Total     int64
}

// PaymentMode описывает способ оплаты заказа.
type PaymentMode string

const (
	PaymentModeCashOnDelivery PaymentMode = "CASH_ON_DELIVERY"
	PaymentModeGateway        PaymentMode = "GATEWAY"
	PaymentModeManualTransfer PaymentMode = "MANUAL_TRANSFER"
)

// Valid сообщает, известен ли способ оплаты.
func (m PaymentMode) Valid() bool {
	switch m {
	case PaymentModeCashOnDelivery, PaymentModeGateway, PaymentModeManualTransfer:
		return true
	}
	return false
}

// PaymentStatus описывает состояние оплаты заказа.
type PaymentStatus string

const (
	PaymentStatusUnpaid  PaymentStatus = "UNPAID"
	PaymentStatusPending PaymentStatus = "PENDING"
)

// OrderStatus описывает статус обработки заказа.
type OrderStatus string

// OrderStatusNew присваивается заказу при создании; дальнейшие переходы
// выполняют внешние системы исполнения заказов.
const OrderStatusNew OrderStatus = "NEW"

// OrderSource описывает канал, из которого пришёл заказ.
type OrderSource string

const (
	OrderSourceWeb OrderSource = "web"
	OrderSourcePOS OrderSource = "pos"
)

// Customer содержит данные покупателя, оформляющего заказ.
type Customer struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address,omitempty"`
}

// DeliveryTarget описывает адрес доставки заказа.
type DeliveryTarget struct {
	AddressID string `json:"address_id,omitempty"`
	Address   string `json:"address,omitempty"`
	Note      string `json:"note,omitempty"`
}

// Order описывает сохранённый заказ. После записи заказ этим сервисом
// не изменяется.
type Order struct {
	Number            string
	Status            OrderStatus
	Customer          Customer
	Items             []LineItem
	Pricing           Pricing
	Delivery          *DeliveryTarget
	PaymentMode       PaymentMode
	PaymentStatus     PaymentStatus
	TransferReference string
	Source            OrderSource
	CreatedAt         time.Time
}

// CartSnapshotItem описывает позицию корзины в персистентном снимке.
type CartSnapshotItem struct {
	ItemID   string `json:"item_id"`
	Quantity int64  `json:"quantity"`
}

// CartSnapshot описывает сохранённое состояние корзины сессии.
type CartSnapshot struct {
	Items   []CartSnapshotItem `json:"items"`
	Visible bool               `json:"visible"`
}
