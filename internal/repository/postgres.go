// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/checkout-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrProductNotFound возвращается, если карточка товара отсутствует в каталоге.
var (
	ErrProductNotFound = errors.New("product not found")
	// ErrCartSnapshotNotFound возвращается, если у сессии нет сохранённой корзины.
	ErrCartSnapshotNotFound = errors.New("cart snapshot not found")
	// ErrOrderExists возвращается при попытке повторной записи заказа с тем же номером.
	ErrOrderExists = errors.New("order already exists")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		// Ошибки контекста не ретраим
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// GetProduct возвращает карточку товара без количества: идентификатор,
// название, цену и категорию.
func (r *PostgresRepository) GetProduct(ctx context.Context, id string) (*model.LineItem, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT p.id, p.title, p.price, COALESCE(p.category_id, ''), COALESCE(c.slug, ''), COALESCE(p.image_url, '')
		 FROM products p
		 LEFT JOIN categories c ON c.id = p.category_id
		 WHERE p.id = $1`,
		id,
	)

	var item model.LineItem
	err := row.Scan(&item.ID, &item.Title, &item.UnitPrice, &item.CategoryID, &item.CategorySlug, &item.ImageURL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return &item, nil
}

// GetStock возвращает живой остаток товара на складе.
func (r *PostgresRepository) GetStock(ctx context.Context, itemID string) (int64, error) {
	var stock int64
	err := r.pool.QueryRow(ctx,
		`SELECT stock FROM products WHERE id = $1`,
		itemID,
	).Scan(&stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrProductNotFound
		}
		return 0, fmt.Errorf("get stock: %w", err)
	}

	return stock, nil
}

// GetTaxRates возвращает снимок таблицы ставок налога по категориям.
func (r *PostgresRepository) GetTaxRates(ctx context.Context) (model.TaxRateTable, error) {
	rates := model.TaxRateTable{
		ByID:   make(map[string]float64),
		BySlug: make(map[string]float64),
	}

	rows, err := r.pool.Query(ctx, `SELECT id, slug, tax_rate FROM categories`)
	if err != nil {
		return rates, fmt.Errorf("select categories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   string
			slug string
			rate float64
		)
		if err := rows.Scan(&id, &slug, &rate); err != nil {
			return rates, fmt.Errorf("scan category: %w", err)
		}
		rates.ByID[id] = rate
		rates.BySlug[slug] = rate
	}

	if err := rows.Err(); err != nil {
		return rates, fmt.Errorf("rows error: %w", err)
	}

	return rates, nil
}

// CreateOrder записывает заказ. Запись однократная: заказ с существующим
// номером повторно не вставляется.
func (r *PostgresRepository) CreateOrder(ctx context.Context, order model.Order) error {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}

	customerJSON, err := json.Marshal(order.Customer)
	if err != nil {
		return fmt.Errorf("marshal customer: %w", err)
	}

	taxJSON, err := json.Marshal(order.Pricing.Breakdown.StringKeys())
	if err != nil {
		return fmt.Errorf("marshal tax: %w", err)
	}

	var deliveryJSON []byte
	if order.Delivery != nil {
		deliveryJSON, err = json.Marshal(order.Delivery)
		if err != nil {
			return fmt.Errorf("marshal delivery: %w", err)
		}
	}

	return r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO orders
			 (number, status, customer, items, subtotal, tax, total, delivery,
			  payment_mode, payment_status, transfer_reference, source)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			order.Number,
			string(order.Status),
			customerJSON,
			itemsJSON,
			order.Pricing.Subtotal,
			taxJSON,
			order.Pricing.Total,
			deliveryJSON,
			string(order.PaymentMode),
			string(order.PaymentStatus),
			order.TransferReference,
			string(order.Source),
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
				return fmt.Errorf("%w: %s", ErrOrderExists, order.Number)
			}
			return fmt.Errorf("insert order: %w", err)
		}
		return nil
	})
}

// GetCartSnapshot возвращает сохранённый снимок корзины сессии.
func (r *PostgresRepository) GetCartSnapshot(ctx context.Context, sessionID string) (*model.CartSnapshot, error) {
	var (
		itemsJSON []byte
		visible   bool
	)
	err := r.pool.QueryRow(ctx,
		`SELECT items, visible FROM cart_snapshots WHERE session_id = $1`,
		sessionID,
	).Scan(&itemsJSON, &visible)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCartSnapshotNotFound
		}
		return nil, fmt.Errorf("get cart snapshot: %w", err)
	}

	snap := model.CartSnapshot{Visible: visible}
	if err := json.Unmarshal(itemsJSON, &snap.Items); err != nil {
		return nil, fmt.Errorf("unmarshal cart items: %w", err)
	}

	return &snap, nil
}

// SaveCartSnapshot сохраняет снимок корзины сессии, заменяя предыдущий.
func (r *PostgresRepository) SaveCartSnapshot(ctx context.Context, sessionID string, snap model.CartSnapshot) error {
	itemsJSON, err := json.Marshal(snap.Items)
	if err != nil {
		return fmt.Errorf("marshal cart items: %w", err)
	}

	return r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO cart_snapshots (session_id, items, visible, updated_at)
			 VALUES ($1, $2, $3, now())
			 ON CONFLICT (session_id)
			 DO UPDATE SET items = EXCLUDED.items, visible = EXCLUDED.visible, updated_at = now()`,
			sessionID, itemsJSON, snap.Visible,
		)
		if err != nil {
			return fmt.Errorf("save cart snapshot: %w", err)
		}
		return nil
	})
}

// DeleteCartSnapshot удаляет сохранённый снимок корзины сессии.
func (r *PostgresRepository) DeleteCartSnapshot(ctx context.Context, sessionID string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM cart_snapshots WHERE session_id = $1`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("delete cart snapshot: %w", err)
	}
	return nil
}
