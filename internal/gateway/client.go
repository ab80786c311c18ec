// Package gateway предоставляет клиент для внешнего платёжного шлюза.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/mmeshcher/checkout-system/internal/model"
)

// Client инкапсулирует HTTP-взаимодействие с платёжным шлюзом.
type Client struct {
	baseURL    string
	httpClient *retryablehttp.Client
}

// PreOrderItem описывает позицию предзаказа в формате шлюза.
type PreOrderItem struct {
	ProductID string `json:"productId"`
	Qty       int64  `json:"qty"`
}

type createPreOrderRequest struct {
	Customer          model.Customer `json:"customer"`
	Items             []PreOrderItem `json:"items"`
	DeliveryAddressID string         `json:"deliveryAddressId,omitempty"`
}

type createPreOrderResponse struct {
	OrderIntentID string `json:"orderIntentId"`
}

type initiatePaymentRequest struct {
	OrderIntentID string         `json:"orderIntentId"`
	Customer      model.Customer `json:"customer"`
}

type initiatePaymentResponse struct {
	Success    bool   `json:"success"`
	PaymentURL string `json:"paymentUrl"`
}

// NewClient создаёт HTTP-клиент платёжного шлюза по указанному адресу.
func NewClient(baseURL string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = 10 * time.Second
	rc.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: rc,
	}
}

// CreatePreOrder регистрирует предзаказ в шлюзе и возвращает идентификатор
// платёжного намерения.
func (c *Client) CreatePreOrder(ctx context.Context, customer model.Customer, items []PreOrderItem, deliveryAddressID string) (string, error) {
	if c == nil || c.baseURL == "" {
		return "", fmt.Errorf("gateway client not configured")
	}

	reqBody := createPreOrderRequest{
		Customer:          customer,
		Items:             items,
		DeliveryAddressID: deliveryAddressID,
	}

	var resp createPreOrderResponse
	if err := c.post(ctx, "/api/createPreOrder", reqBody, &resp); err != nil {
		return "", err
	}

	if resp.OrderIntentID == "" {
		return "", fmt.Errorf("gateway returned empty intent id")
	}

	return resp.OrderIntentID, nil
}

// InitiatePayment инициирует оплату по намерению и возвращает адрес
// перенаправления покупателя.
func (c *Client) InitiatePayment(ctx context.Context, intentID string, customer model.Customer) (string, error) {
	if c == nil || c.baseURL == "" {
		return "", fmt.Errorf("gateway client not configured")
	}

	reqBody := initiatePaymentRequest{
		OrderIntentID: intentID,
		Customer:      customer,
	}

	var resp initiatePaymentResponse
	if err := c.post(ctx, "/api/initiatePayment", reqBody, &resp); err != nil {
		return "", err
	}

	if !resp.Success || resp.PaymentURL == "" {
		return "", fmt.Errorf("gateway rejected payment initiation")
	}

	return resp.PaymentURL, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
