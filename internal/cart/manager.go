package cart

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/mmeshcher/checkout-system/internal/model"
	"github.com/mmeshcher/checkout-system/internal/repository"
)

// Repository описывает контракт хранилища, используемый менеджером корзин.
type Repository interface {
	GetProduct(ctx context.Context, id string) (*model.LineItem, error)
	GetCartSnapshot(ctx context.Context, sessionID string) (*model.CartSnapshot, error)
	SaveCartSnapshot(ctx context.Context, sessionID string, snap model.CartSnapshot) error
	DeleteCartSnapshot(ctx context.Context, sessionID string) error
}

// Manager выдаёт корзину активной сессии и синхронизирует её с хранилищем.
// Корзина принадлежит сессии и передаётся явно — процессного глобального
// состояния нет, сессии не мешают друг другу.
type Manager struct {
	mu     sync.Mutex
	carts  map[string]*Store
	repo   Repository
	logger *zap.Logger
}

// NewManager создаёт менеджер корзин поверх указанного хранилища.
func NewManager(repo Repository, logger *zap.Logger) *Manager {
	return &Manager{
		carts:  make(map[string]*Store),
		repo:   repo,
		logger: logger,
	}
}

// Get возвращает корзину сессии, при первом обращении восстанавливая её из
// сохранённого снимка. Ошибки восстановления не фатальны: сессия получает
// пустую корзину, ошибка пишется в лог.
func (m *Manager) Get(ctx context.Context, sessionID string) *Store {
	m.mu.Lock()
	if store, ok := m.carts[sessionID]; ok {
		m.mu.Unlock()
		return store
	}
	store := NewStore()
	m.carts[sessionID] = store
	m.mu.Unlock()

	m.hydrate(ctx, sessionID, store)
	return store
}

func (m *Manager) hydrate(ctx context.Context, sessionID string, store *Store) {
	snap, err := m.repo.GetCartSnapshot(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, repository.ErrCartSnapshotNotFound) {
			m.logger.Error("hydrate cart error", zap.Error(err), zap.String("session", sessionID))
		}
		return
	}

	items := make([]model.LineItem, 0, len(snap.Items))
	for _, si := range snap.Items {
		product, err := m.repo.GetProduct(ctx, si.ItemID)
		if err != nil {
			// Товар мог исчезнуть из каталога после сохранения снимка.
			m.logger.Warn("hydrate cart: skip item", zap.Error(err), zap.String("item", si.ItemID))
			continue
		}
		item := *product
		item.Quantity = si.Quantity
		items = append(items, item)
	}

	store.Init(items)
	store.SetVisible(snap.Visible)
}

// Persist сохраняет снимок корзины в хранилище после мутации. Сохранение
// выполняется по возможности: отказ хранилища не откатывает переход в памяти.
func (m *Manager) Persist(ctx context.Context, sessionID string, store *Store) {
	if err := m.repo.SaveCartSnapshot(ctx, sessionID, store.Snapshot()); err != nil {
		m.logger.Error("persist cart error", zap.Error(err), zap.String("session", sessionID))
	}
}

// Drop очищает корзину сессии и удаляет её сохранённый снимок. Вызывается
// после успешного оформления заказа.
func (m *Manager) Drop(ctx context.Context, sessionID string) {
	m.mu.Lock()
	store, ok := m.carts[sessionID]
	m.mu.Unlock()

	if ok {
		store.Clear()
	}

	if err := m.repo.DeleteCartSnapshot(ctx, sessionID); err != nil {
		m.logger.Error("delete cart snapshot error", zap.Error(err), zap.String("session", sessionID))
	}
}
