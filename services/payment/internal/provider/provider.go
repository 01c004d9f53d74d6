package provider

import "context"

// Charge outcome statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// ChargeInput holds the parameters for charging a payment.
type ChargeInput struct {
	OrderID int64
	UserID  string
	Amount  int64
	Method  string
}

// ChargeResult is the provider's verdict. A declined charge is a successful
// call with StatusFailed; an error return means the outcome is unknown.
type ChargeResult struct {
	TransactionID string
	Status        string
	FailureReason string
}

// Succeeded reports whether the charge went through.
func (r *ChargeResult) Succeeded() bool {
	return r.Status == StatusSucceeded
}

// Provider defines the interface for payment provider integrations.
type Provider interface {
	// Name returns the provider name (e.g. "mock", "gateway").
	Name() string

	// Charge processes a payment charge. It must honor ctx cancellation.
	Charge(ctx context.Context, input *ChargeInput) (*ChargeResult, error)
}
