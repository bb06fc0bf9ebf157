package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaymentStatusIsTerminal(t *testing.T) {
	assert.False(t, PaymentStatusPending.IsTerminal())
	assert.True(t, PaymentStatusConfirmed.IsTerminal())
	assert.True(t, PaymentStatusRejected.IsTerminal())
}
