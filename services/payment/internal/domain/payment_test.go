package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPayment_IsTerminal(t *testing.T) {
	tests := []struct {
		status   string
		terminal bool
	}{
		{PaymentStatusPending, false},
		{PaymentStatusProcessing, false},
		{PaymentStatusCompleted, true},
		{PaymentStatusFailed, true},
		{PaymentStatusRefunded, true},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			p := Payment{Status: tt.status}
			assert.Equal(t, tt.terminal, p.IsTerminal())
		})
	}
}

func TestValidPaymentStatuses(t *testing.T) {
	statuses := ValidPaymentStatuses()
	assert.Len(t, statuses, 5)
	assert.Contains(t, statuses, PaymentStatusCompleted)
}
