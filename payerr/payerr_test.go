package payerr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFallsBackToDefaultMessages(t *testing.T) {
	e := New(CardDeclined, "", "")
	en, ar := DefaultMessages(CardDeclined)
	assert.Equal(t, en, e.Message)
	assert.Equal(t, ar, e.MessageAr)

	e = New(CardDeclined, "Insufficient funds", "")
	assert.Equal(t, "Insufficient funds", e.Message)
	assert.Equal(t, ar, e.MessageAr)
}

func TestFromClassifiesTimeouts(t *testing.T) {
	err := fmt.Errorf("mada: charge: %w", context.DeadlineExceeded)
	pe := From(err)
	require.NotNil(t, pe)
	assert.Equal(t, ProcessingError, pe.Code)
	assert.True(t, pe.Retryable)
	assert.True(t, IsRetryable(err))
}

func TestFromKeepsWrappedPaymentError(t *testing.T) {
	inner := New(DuplicateTransaction, "", "")
	err := fmt.Errorf("stripe: %w", inner)
	assert.Equal(t, DuplicateTransaction, CodeOf(err))
	assert.False(t, IsRetryable(err))
}

func TestFromUnknownError(t *testing.T) {
	pe := From(errors.New("boom"))
	assert.Equal(t, ProcessingError, pe.Code)
	assert.False(t, pe.Retryable)
	assert.Nil(t, From(nil))
}

func TestEveryCodeHasBilingualDefaults(t *testing.T) {
	for _, code := range []Code{ValidationError, GatewayNotSupported, CardDeclined, TransactionNotFound,
		DuplicateTransaction, RefundNotSupported, RateLimitExceeded, ProcessingError} {
		en, ar := DefaultMessages(code)
		assert.NotEmpty(t, en, code)
		assert.NotEmpty(t, ar, code)
	}
}
