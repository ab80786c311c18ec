// Package inventory реализует проверку остатков товара для точки продаж.
package inventory

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/checkout-system/internal/repository"
)

// lowStockThreshold — остаток, ниже которого выдаётся предупреждение о
// заканчивающемся товаре.
const lowStockThreshold = 5

// Reason классифицирует проблему с остатком по одной позиции.
type Reason string

const (
	// ReasonMissing — карточка товара не найдена.
	ReasonMissing Reason = "missing"
	// ReasonOut — товара нет на складе.
	ReasonOut Reason = "out"
	// ReasonInsufficient — остатка меньше запрошенного количества.
	ReasonInsufficient Reason = "insufficient"
	// ReasonLow — остатка хватает, но он заканчивается. Не блокирует заказ.
	ReasonLow Reason = "low"
)

// Blocking сообщает, блокирует ли причина оформление заказа.
func (r Reason) Blocking() bool {
	return r != ReasonLow
}

// Request описывает одну позицию для проверки остатков.
type Request struct {
	ItemID   string
	Quantity int64
	Label    string
}

// Problem описывает обнаруженную проблему с остатком по позиции.
type Problem struct {
	ItemID    string `json:"item_id"`
	Label     string `json:"label"`
	Reason    Reason `json:"reason"`
	Requested int64  `json:"requested"`
	Stock     int64  `json:"stock"`
}

// Report содержит полный отчёт о проблемах по всем проверенным позициям.
type Report struct {
	Problems []Problem `json:"problems"`
}

// Blocking возвращает только проблемы, блокирующие оформление заказа.
func (r Report) Blocking() []Problem {
	var blocking []Problem
	for _, p := range r.Problems {
		if p.Reason.Blocking() {
			blocking = append(blocking, p)
		}
	}
	return blocking
}

// HasBlocking сообщает, есть ли в отчёте блокирующие проблемы.
func (r Report) HasBlocking() bool {
	return len(r.Blocking()) > 0
}

// Store описывает доступ к остаткам товара на складе.
type Store interface {
	GetStock(ctx context.Context, itemID string) (int64, error)
}

// Validator проверяет запрошенные количества против живых остатков.
type Validator struct {
	store  Store
	logger *zap.Logger
}

// NewValidator создаёт валидатор остатков поверх указанного хранилища.
func NewValidator(store Store, logger *zap.Logger) *Validator {
	return &Validator{
		store:  store,
		logger: logger,
	}
}

// Validate конкурентно запрашивает остатки по всем позициям и возвращает
// полный отчёт. Валидатор дожидается всех проверок — оператор видит все
// проблемы сразу, а не по одной за проход.
func (v *Validator) Validate(ctx context.Context, requests []Request) Report {
	var (
		mu       sync.Mutex
		problems []Problem
	)

	g, ctx := errgroup.WithContext(ctx)

	for _, req := range requests {
		req := req
		g.Go(func() error {
			problem := v.check(ctx, req)
			if problem == nil {
				return nil
			}

			mu.Lock()
			problems = append(problems, *problem)
			mu.Unlock()
			return nil
		})
	}

	// Горутины не возвращают ошибок: отказ по одной позиции не должен
	// отменять проверку остальных.
	_ = g.Wait()

	// Стабильный порядок отчёта — по порядку запросов.
	ordered := make([]Problem, 0, len(problems))
	for _, req := range requests {
		for _, p := range problems {
			if p.ItemID == req.ItemID {
				ordered = append(ordered, p)
				break
			}
		}
	}

	return Report{Problems: ordered}
}

func (v *Validator) check(ctx context.Context, req Request) *Problem {
	stock, err := v.store.GetStock(ctx, req.ItemID)
	if err != nil {
		if !errors.Is(err, repository.ErrProductNotFound) {
			v.logger.Error("stock lookup error", zap.Error(err), zap.String("item", req.ItemID))
		}
		return &Problem{
			ItemID:    req.ItemID,
			Label:     req.Label,
			Reason:    ReasonMissing,
			Requested: req.Quantity,
		}
	}

	problem := Problem{
		ItemID:    req.ItemID,
		Label:     req.Label,
		Requested: req.Quantity,
		Stock:     stock,
	}

	switch {
	case stock <= 0:
		problem.Reason = ReasonOut
	case stock < req.Quantity:
		problem.Reason = ReasonInsufficient
	case stock < lowStockThreshold:
		problem.Reason = ReasonLow
	default:
		return nil
	}

	return &problem
}
