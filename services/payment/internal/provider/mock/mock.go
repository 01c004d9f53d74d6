package mock

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/unimarket/UniMarketGo/services/payment/internal/provider"
)

// Provider simulates a payment gateway with a configurable success rate and
// latency. It honors context deadlines, so charge timeouts behave like a
// slow real gateway.
type Provider struct {
	successRate float64
	latency     time.Duration
}

// NewProvider creates a mock provider. successRate is clamped to [0, 1].
func NewProvider(successRate float64, latency time.Duration) *Provider {
	if successRate < 0 {
		successRate = 0
	}
	if successRate > 1 {
		successRate = 1
	}
	return &Provider{successRate: successRate, latency: latency}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "mock"
}

// Charge simulates a charge attempt.
func (p *Provider) Charge(ctx context.Context, input *provider.ChargeInput) (*provider.ChargeResult, error) {
	if p.latency > 0 {
		select {
		case <-time.After(p.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if rand.Float64() >= p.successRate { // #nosec G404 -- simulated outcomes
		return &provider.ChargeResult{
			Status:        provider.StatusFailed,
			FailureReason: "card declined",
		}, nil
	}

	return &provider.ChargeResult{
		TransactionID: fmt.Sprintf("mock_txn_%s", uuid.New().String()),
		Status:        provider.StatusSucceeded,
	}, nil
}
