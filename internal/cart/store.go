// Package cart реализует леджер позиций корзины и его правила переходов.
package cart

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/mmeshcher/checkout-system/internal/model"
)

// Store хранит позиции корзины одной сессии. Все мутации синхронны и
// детерминированы; производные значения пересчитываются при каждом чтении.
type Store struct {
	mu      sync.Mutex
	items   map[string]model.LineItem
	order   []string // порядок добавления для стабильного отображения
	visible bool
}

// NewStore создаёт пустую корзину.
func NewStore() *Store {
	return &Store{
		items: make(map[string]model.LineItem),
	}
}

// Init заменяет содержимое корзины указанными позициями. Позиции с
// количеством меньше 1 отбрасываются.
func (s *Store) Init(items []model.LineItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]model.LineItem, len(items))
	s.order = s.order[:0]

	for _, item := range items {
		if item.Quantity < 1 {
			continue
		}
		if _, ok := s.items[item.ID]; !ok {
			s.order = append(s.order, item.ID)
		}
		s.items[item.ID] = item
	}
}

// Add добавляет позицию в корзину. Если позиция с таким идентификатором уже
// есть, её количество увеличивается на 1 — дубликатов не возникает.
func (s *Store) Add(item model.LineItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.items[item.ID]; ok {
		existing.Quantity++
		s.items[item.ID] = existing
		return
	}

	item.Quantity = 1
	s.items[item.ID] = item
	s.order = append(s.order, item.ID)
}

// Increment увеличивает количество позиции на 1. Возвращает false, если
// позиции нет в корзине.
func (s *Store) Increment(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return false
	}
	item.Quantity++
	s.items[id] = item
	return true
}

// Decrement уменьшает количество позиции на 1. Позиция с количеством 0 не
// остаётся в корзине — она удаляется целиком.
func (s *Store) Decrement(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return false
	}

	item.Quantity--
	if item.Quantity <= 0 {
		s.removeLocked(id)
		return true
	}

	s.items[id] = item
	return true
}

// Remove удаляет позицию из корзины целиком.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return false
	}
	s.removeLocked(id)
	return true
}

func (s *Store) removeLocked(id string) {
	delete(s.items, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Clear удаляет все позиции из корзины.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]model.LineItem)
	s.order = s.order[:0]
}

// SetVisible устанавливает флаг видимости корзины в интерфейсе.
func (s *Store) SetVisible(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = v
}

// Visible возвращает флаг видимости корзины.
func (s *Store) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

// Items возвращает копию позиций корзины в порядке добавления.
func (s *Store) Items() []model.LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]model.LineItem, 0, len(s.order))
	for _, id := range s.order {
		items = append(items, s.items[id])
	}
	return items
}

// TotalQuantity возвращает суммарное количество единиц товара в корзине.
func (s *Store) TotalQuantity() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, item := range s.items {
		total += item.Quantity
	}
	return total
}

// Subtotal возвращает сумму стоимости всех позиций без налога.
func (s *Store) Subtotal() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, item := range s.items {
		total += item.LineTotal()
	}
	return total
}

// Len возвращает число различных позиций в корзине.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Fingerprint возвращает стабильный отпечаток содержимого корзины.
func (s *Store) Fingerprint() string {
	return Fingerprint(s.Items())
}

// Snapshot возвращает персистентный снимок корзины: пары
// {идентификатор, количество} и флаг видимости.
func (s *Store) Snapshot() model.CartSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := model.CartSnapshot{
		Items:   make([]model.CartSnapshotItem, 0, len(s.order)),
		Visible: s.visible,
	}
	for _, id := range s.order {
		snap.Items = append(snap.Items, model.CartSnapshotItem{
			ItemID:   id,
			Quantity: s.items[id].Quantity,
		})
	}
	return snap
}

// Fingerprint вычисляет отпечаток набора позиций: sha256 от пар
// "id:количество", отсортированных по идентификатору. Идентификатор
// экранируется, чтобы разделители внутри него не давали коллизий между
// разными наборами. Порядок добавления и остальные поля позиции на
// отпечаток не влияют.
func Fingerprint(items []model.LineItem) string {
	pairs := make([]string, 0, len(items))
	for _, item := range items {
		pairs = append(pairs, strconv.Quote(item.ID)+":"+strconv.FormatInt(item.Quantity, 10))
	}
	sort.Strings(pairs)

	sum := sha256.Sum256([]byte(strings.Join(pairs, ";")))
	return hex.EncodeToString(sum[:])
}
