package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestTransactionStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to TransactionStatus
		allowed  bool
	}{
		{TransactionStatusPending, TransactionStatusProcessing, true},
		{TransactionStatusPending, TransactionStatusFailed, true},
		{TransactionStatusPending, TransactionStatusCompleted, false},
		{TransactionStatusProcessing, TransactionStatusCompleted, true},
		{TransactionStatusProcessing, TransactionStatusFailed, true},
		{TransactionStatusProcessing, TransactionStatusPending, false},
		{TransactionStatusCompleted, TransactionStatusFailed, false},
		{TransactionStatusCompleted, TransactionStatusProcessing, false},
		{TransactionStatusFailed, TransactionStatusCompleted, false},
		{TransactionStatusFailed, TransactionStatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}

	assert.True(t, TransactionStatusCompleted.IsTerminal())
	assert.True(t, TransactionStatusFailed.IsTerminal())
	assert.False(t, TransactionStatusPending.IsTerminal())
	assert.False(t, TransactionStatus("DONE").Valid())
}

func TestParseTransactionType(t *testing.T) {
	tt, err := ParseTransactionType(" transfer ")
	require.NoError(t, err)
	assert.Equal(t, TransactionTypeTransfer, tt)
	assert.True(t, tt.RequiresSource())
	assert.False(t, TransactionTypeDeposit.RequiresSource())

	_, err = ParseTransactionType("REFUND")
	assert.Error(t, err)
}

func TestParseAmount(t *testing.T) {
	amount, err := ParseAmount("150.25")
	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.RequireFromString("150.25")))

	for _, raw := range []string{"0", "-1", "abc", "", "1e"} {
		_, err := ParseAmount(raw)
		assert.Error(t, err, raw)
	}

	// 列精度 decimal(20,4) 的边界
	for _, raw := range []string{"0.0001", "1.50000", "9999999999999999.9999"} {
		_, err := ParseAmount(raw)
		assert.NoError(t, err, raw)
	}
	for _, raw := range []string{"0.00001", "10.12345", "10000000000000000", "1e16", "12345678901234567.5"} {
		_, err := ParseAmount(raw)
		assert.Error(t, err, raw)
	}
}

func TestTransactionEvent_RoundTripAndPartitionKey(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tx := &Transaction{
		ID:              42,
		FromAccount:     strPtr("ACC-A"),
		ToAccount:       "ACC-B",
		Amount:          decimal.RequireFromString("150"),
		TransactionType: TransactionTypeTransfer,
		Status:          TransactionStatusPending,
		CreatedAt:       created,
	}

	event := NewTransactionEvent(tx)
	assert.Equal(t, "ACC-A", event.PartitionKey())

	data, err := event.Encode()
	require.NoError(t, err)

	decoded, err := DecodeTransactionEvent(data)
	require.NoError(t, err)
	assert.Equal(t, int64(42), decoded.TransactionID)
	assert.Equal(t, "ACC-A", *decoded.FromAccount)
	assert.Equal(t, "ACC-B", decoded.ToAccount)
	assert.True(t, decoded.Amount.Equal(tx.Amount))
	assert.Equal(t, TransactionTypeTransfer, decoded.TransactionType)
	require.NotNil(t, decoded.CreatedAt)
	assert.True(t, decoded.CreatedAt.Equal(created))

	deposit := &TransactionEvent{TransactionID: 1, ToAccount: "ACC-B", TransactionType: TransactionTypeDeposit}
	assert.Equal(t, "ACC-B", deposit.PartitionKey())
}

func TestDecodeTransactionEvent_Malformed(t *testing.T) {
	cases := map[string]string{
		"not json":       `{"transaction_id":`,
		"missing id":     `{"to_account":"B","amount":"1","transaction_type":"DEPOSIT"}`,
		"bad type":       `{"transaction_id":1,"to_account":"B","amount":"1","transaction_type":"REFUND"}`,
		"no destination": `{"transaction_id":1,"amount":"1","transaction_type":"DEPOSIT"}`,
		"zero amount":    `{"transaction_id":1,"to_account":"B","amount":"0","transaction_type":"DEPOSIT"}`,
		"bad amount":     `{"transaction_id":1,"to_account":"B","amount":"ten","transaction_type":"DEPOSIT"}`,
		"sub-scale":      `{"transaction_id":1,"to_account":"B","amount":"0.00001","transaction_type":"DEPOSIT"}`,
		"no source":      `{"transaction_id":1,"to_account":"B","amount":"5","transaction_type":"WITHDRAW"}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeTransactionEvent([]byte(body))
			assert.ErrorIs(t, err, ErrMalformedEvent)
		})
	}
}

func TestDecodeTransactionEvent_NumericAmount(t *testing.T) {
	event, err := DecodeTransactionEvent([]byte(`{"transaction_id":7,"from_account":null,"to_account":"B","amount":200.5,"transaction_type":"DEPOSIT"}`))
	require.NoError(t, err)
	assert.True(t, event.Amount.Equal(decimal.RequireFromString("200.5")))
	assert.Nil(t, event.FromAccount)
}
