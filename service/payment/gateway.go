package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
)

// ErrPaymentNotFound marks the gateway's "payment not visible yet"
// condition, which is the only error the reconciler retries on.
var ErrPaymentNotFound = errors.New("payment not found")

type Order struct {
	ID          string
	ApprovalURL string
}

type Payment struct {
	ID                string
	Status            string
	PaymentMethod     string
	TransactionAmount float64
	ExternalReference string
}

// Gateway is the payment provider consumed as a black box: order creation
// for checkout and the authoritative payment query driving settlement.
type Gateway interface {
	CreateOrder(ctx context.Context, title string, amount float64, externalReference string) (*Order, error)
	GetPayment(ctx context.Context, paymentID string) (*Payment, error)
}

// HTTPGateway talks to the provider's REST API with a bearer access
// token. Base URL and redirect URLs come from the environment.
type HTTPGateway struct {
	baseURL     string
	accessToken string
	successURL  string
	failureURL  string
	notifyURL   string
	client      *http.Client
}

func NewGatewayFromEnv() *HTTPGateway {
	return &HTTPGateway{
		baseURL:     os.Getenv("PAYMENT_BASE_URL"),
		accessToken: os.Getenv("PAYMENT_ACCESS_TOKEN"),
		successURL:  os.Getenv("PAYMENT_SUCCESS_URL"),
		failureURL:  os.Getenv("PAYMENT_FAILURE_URL"),
		notifyURL:   os.Getenv("PAYMENT_NOTIFY_URL"),
		client:      &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *HTTPGateway) CreateOrder(ctx context.Context, title string, amount float64, externalReference string) (*Order, error) {
	payload := map[string]interface{}{
		"items": []map[string]interface{}{
			{
				"title":      title,
				"quantity":   1,
				"unit_price": amount,
			},
		},
		"external_reference": externalReference,
		"back_urls": map[string]string{
			"success": g.successURL,
			"failure": g.failureURL,
		},
		"notification_url": g.notifyURL,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/checkout/preferences", bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Idempotency-Key", uuid.NewString())

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gateway order creation failed with status %d", resp.StatusCode)
	}

	var orderResp struct {
		ID        string `json:"id"`
		InitPoint string `json:"init_point"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&orderResp); err != nil {
		return nil, err
	}

	return &Order{ID: orderResp.ID, ApprovalURL: orderResp.InitPoint}, nil
}

func (g *HTTPGateway) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/v1/payments/"+paymentID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.accessToken)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrPaymentNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gateway payment query failed with status %d", resp.StatusCode)
	}

	var paymentResp struct {
		ID                json.Number `json:"id"`
		Status            string      `json:"status"`
		PaymentMethodID   string      `json:"payment_method_id"`
		TransactionAmount float64     `json:"transaction_amount"`
		ExternalReference string      `json:"external_reference"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&paymentResp); err != nil {
		return nil, err
	}

	return &Payment{
		ID:                paymentResp.ID.String(),
		Status:            paymentResp.Status,
		PaymentMethod:     paymentResp.PaymentMethodID,
		TransactionAmount: paymentResp.TransactionAmount,
		ExternalReference: paymentResp.ExternalReference,
	}, nil
}
