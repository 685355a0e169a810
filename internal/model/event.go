package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var ErrMalformedEvent = errors.New("malformed transaction event")

// TransactionEvent 投递到 Kafka 的交易指令
// 它是交易创建时刻的快照，Applier 以事件内容为准，不读取交易行上的金额和账户
type TransactionEvent struct {
	TransactionID   int64           `json:"transaction_id"`
	FromAccount     *string         `json:"from_account"`
	ToAccount       string          `json:"to_account"`
	Amount          decimal.Decimal `json:"amount"`
	TransactionType TransactionType `json:"transaction_type"`
	CreatedAt       *time.Time      `json:"created_at,omitempty"`
}

func NewTransactionEvent(tx *Transaction) *TransactionEvent {
	event := &TransactionEvent{
		TransactionID:   tx.ID,
		ToAccount:       tx.ToAccount,
		Amount:          tx.Amount,
		TransactionType: tx.TransactionType,
	}
	if tx.FromAccount != nil {
		from := *tx.FromAccount
		event.FromAccount = &from
	}
	if !tx.CreatedAt.IsZero() {
		createdAt := tx.CreatedAt.UTC()
		event.CreatedAt = &createdAt
	}
	return event
}

// PartitionKey 决定事件落在哪个分区
//
// 有出账的交易按源账户分区，同一账户的扣款因此在同一分区内严格有序；
// 存款只有入账，按目标账户分区。
func (e *TransactionEvent) PartitionKey() string {
	if e.TransactionType.RequiresSource() && e.FromAccount != nil {
		return *e.FromAccount
	}
	return e.ToAccount
}

func (e *TransactionEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Validate 检查事件是否是一条可执行的指令
func (e *TransactionEvent) Validate() error {
	if e.TransactionID <= 0 {
		return fmt.Errorf("%w: transaction_id must be positive", ErrMalformedEvent)
	}
	if !e.TransactionType.Valid() {
		return fmt.Errorf("%w: unknown transaction_type %q", ErrMalformedEvent, e.TransactionType)
	}
	if e.ToAccount == "" {
		return fmt.Errorf("%w: to_account is required", ErrMalformedEvent)
	}
	if !e.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrMalformedEvent)
	}
	if err := CheckAmountRange(e.Amount); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if e.TransactionType.RequiresSource() && (e.FromAccount == nil || *e.FromAccount == "") {
		return fmt.Errorf("%w: from_account is required for %s", ErrMalformedEvent, e.TransactionType)
	}
	return nil
}

// DecodeTransactionEvent 解码并校验消息体，任何问题都返回 ErrMalformedEvent
func DecodeTransactionEvent(data []byte) (*TransactionEvent, error) {
	var event TransactionEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	return &event, nil
}
