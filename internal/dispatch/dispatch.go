// Package dispatch выполняет фоновые задачи с ограниченным числом повторов.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const (
	defaultTaskTimeout = 30 * time.Second
	retryBase          = 500 * time.Millisecond
	maxRetries         = 2
)

// Dispatcher запускает некритичные задачи в фоне: каждая задача получает
// ограниченное число повторов с экспоненциальной паузой, её отказ пишется в
// лог и никогда не влияет на результат вызывающей операции.
type Dispatcher struct {
	logger  *zap.Logger
	wg      sync.WaitGroup
	timeout time.Duration
}

// NewDispatcher создаёт диспетчер фоновых задач.
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		logger:  logger,
		timeout: defaultTaskTimeout,
	}
}

// Go запускает задачу в фоне. Задача отвязана от контекста запроса: после
// фиксации заказа её уже нельзя отменить завершением сессии.
func (d *Dispatcher) Go(name string, task func(ctx context.Context) error) {
	d.wg.Add(1)

	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		backoff := retry.WithMaxRetries(maxRetries, retry.NewExponential(retryBase))

		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			if err := task(ctx); err != nil {
				d.logger.Warn("background task attempt failed",
					zap.String("task", name), zap.Error(err))
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			d.logger.Error("background task failed", zap.String("task", name), zap.Error(err))
			return
		}

		d.logger.Debug("background task done", zap.String("task", name))
	}()
}

// Wait дожидается завершения всех запущенных задач. Используется при
// остановке сервиса и в тестах.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
