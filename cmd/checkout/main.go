// Package main запускает HTTP-сервер сервиса оформления заказов.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/checkout-system/internal/cart"
	"github.com/mmeshcher/checkout-system/internal/config"
	"github.com/mmeshcher/checkout-system/internal/dispatch"
	"github.com/mmeshcher/checkout-system/internal/erp"
	"github.com/mmeshcher/checkout-system/internal/gateway"
	"github.com/mmeshcher/checkout-system/internal/handler"
	"github.com/mmeshcher/checkout-system/internal/inventory"
	"github.com/mmeshcher/checkout-system/internal/middleware"
	"github.com/mmeshcher/checkout-system/internal/notify"
	"github.com/mmeshcher/checkout-system/internal/payment"
	"github.com/mmeshcher/checkout-system/internal/repository"
	"github.com/mmeshcher/checkout-system/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	gatewayClient := gateway.NewClient(cfg.GatewayAddress)
	erpClient := erp.NewClient(cfg.ErpAddress)
	notifyClient := notify.NewClient(cfg.NotifyAddress)

	carts := cart.NewManager(repo, logger)
	payments := payment.NewManager(gatewayClient, logger)
	validator := inventory.NewValidator(repo, logger)
	dispatcher := dispatch.NewDispatcher(logger)

	svc := service.NewService(repo, carts, payments, validator,
		erpClient, notifyClient, dispatcher, cfg.Recipients(), logger)

	session := middleware.NewSessionMiddleware(cfg.SessionSecret)
	h := handler.NewHandler(svc, logger, session)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting checkout server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		// Дожидаемся фоновых задач синхронизации и уведомлений
		dispatcher.Wait()

		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
