// Package pricing реализует расчёт стоимости и налогов по позициям корзины.
package pricing

import (
	"math"

	"github.com/mmeshcher/checkout-system/internal/model"
)

// Calculate вычисляет промежуточный итог, разбивку налога по ставкам и общую
// сумму для набора позиций. Налог округляется по каждой позиции до
// накопления — порядок важен для побайтового совпадения с историческими
// заказами. Результат не зависит от порядка позиций.
func Calculate(items []model.LineItem, rates model.TaxRateTable) model.Pricing {
	var subtotal int64
	breakdown := make(model.TaxBreakdown)

	for _, item := range items {
		lineTotal := item.LineTotal()
		subtotal += lineTotal

		rate := rates.Resolve(item)
		if rate <= 0 {
			continue
		}

		breakdown[rate] += roundHalfUp(float64(lineTotal) * rate / 100)
	}

	var taxTotal int64
	for _, amount := range breakdown {
		taxTotal += amount
	}

	return model.Pricing{
		Subtotal:  subtotal,
		Breakdown: breakdown,
		TaxTotal:  taxTotal,
		Total:     subtotal + taxTotal,
	}
}

func roundHalfUp(v float64) int64 {
	return int64(math.Floor(v + 0.5))
}
