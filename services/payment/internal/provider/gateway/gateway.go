package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/unimarket/UniMarketGo/pkg/httpclient"
	"github.com/unimarket/UniMarketGo/services/payment/internal/provider"
)

// Provider charges through an external HTTP gateway. Calls run behind a
// retrying client and a circuit breaker so a flapping gateway does not take
// the consumer loop down with it.
type Provider struct {
	client  *httpclient.BreakerClient
	baseURL string
	logger  *slog.Logger
}

// NewProvider creates a gateway provider targeting baseURL.
func NewProvider(baseURL string, client *httpclient.Client, logger *slog.Logger) *Provider {
	breaker := httpclient.NewBreakerClient(client, httpclient.DefaultBreakerConfig("payment-gateway"), logger)
	return &Provider{
		client:  breaker,
		baseURL: baseURL,
		logger:  logger,
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "gateway"
}

type chargeRequest struct {
	Reference string `json:"reference"`
	UserID    string `json:"user_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Method    string `json:"method"`
}

type chargeResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason"`
}

// Charge posts the charge to the gateway. A 402 response is a decline, not
// an error; anything the breaker or transport rejects surfaces as an error.
func (p *Provider) Charge(ctx context.Context, input *provider.ChargeInput) (*provider.ChargeResult, error) {
	payload, err := json.Marshal(chargeRequest{
		Reference: fmt.Sprintf("order-%d", input.OrderID),
		UserID:    input.UserID,
		Amount:    input.Amount,
		Currency:  "USD",
		Method:    input.Method,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal charge request: %w", err)
	}

	resp, err := p.client.Post(ctx, p.baseURL+"/v1/charges", "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("gateway charge: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusPaymentRequired:
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, body)
	}

	var out chargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode gateway response: %w", err)
	}

	result := &provider.ChargeResult{
		TransactionID: out.TransactionID,
		Status:        provider.StatusFailed,
		FailureReason: out.FailureReason,
	}
	if out.Status == "succeeded" && resp.StatusCode != http.StatusPaymentRequired {
		result.Status = provider.StatusSucceeded
		result.FailureReason = ""
	} else if result.FailureReason == "" {
		result.FailureReason = "charge declined by gateway"
	}
	return result, nil
}
