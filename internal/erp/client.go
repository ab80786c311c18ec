// Package erp предоставляет клиент внешней системы учёта заказов.
package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// OrderRecord описывает очищенный снимок заказа для внешнего учёта.
// Служебные поля времени записи в снимок не входят.
type OrderRecord struct {
	Status        string             `json:"status"`
	CustomerName  string             `json:"customer_name"`
	CustomerPhone string             `json:"customer_phone"`
	Items         []OrderRecordItem  `json:"items"`
	Subtotal      int64              `json:"subtotal"`
	Tax           map[string]int64   `json:"tax"`
	Total         int64              `json:"total"`
	PaymentMode   string             `json:"payment_mode"`
	Source        string             `json:"source"`
}

// OrderRecordItem описывает позицию заказа в снимке для внешнего учёта.
type OrderRecordItem struct {
	ItemID    string `json:"item_id"`
	Title     string `json:"title"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int64  `json:"quantity"`
}

// Client инкапсулирует HTTP-взаимодействие с системой учёта.
type Client struct {
	baseURL    string
	httpClient *retryablehttp.Client
}

// NewClient создаёт HTTP-клиент системы учёта по указанному адресу.
func NewClient(baseURL string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 1
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = time.Second
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: rc,
	}
}

type syncOrderRequest struct {
	OrderID string      `json:"orderId"`
	Order   OrderRecord `json:"order"`
}

// SyncOrder отправляет снимок сохранённого заказа в систему учёта. Ответ
// сверх кода состояния не интерпретируется.
func (c *Client) SyncOrder(ctx context.Context, orderID string, record OrderRecord) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("erp client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	payload, err := json.Marshal(syncOrderRequest{OrderID: orderID, Order: record})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, base+"/api/sync-order", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}
