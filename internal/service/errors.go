package service

import (
	"errors"
	"fmt"

	"github.com/mmeshcher/checkout-system/internal/inventory"
)

// ErrEmptyCart возвращается при попытке оформить заказ с пустой корзиной.
var (
	ErrEmptyCart = errors.New("cart is empty")
	// ErrItemNotInCart возвращается при мутации отсутствующей позиции корзины.
	ErrItemNotInCart = errors.New("item not in cart")
)

// ValidationError сообщает об отсутствующем или некорректном поле запроса
// оформления. Возвращается до каких-либо побочных эффектов.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid checkout field: %s", e.Field)
}

// InventoryError содержит полный отчёт о блокирующих проблемах с остатками.
type InventoryError struct {
	Report inventory.Report
}

func (e *InventoryError) Error() string {
	return fmt.Sprintf("inventory problems: %d item(s)", len(e.Report.Blocking()))
}

// GatewayError сообщает об отказе платёжного шлюза. Заказ не сохраняется,
// операцию можно повторить.
type GatewayError struct {
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway: %v", e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// PersistenceError сообщает об отказе записи заказа. Фатальна для операции:
// последующие шаги не выполняются, корзина остаётся нетронутой.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist order: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
