package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 交易类型
// ============================================================================

type TransactionType string

const (
	TransactionTypeDeposit  TransactionType = "DEPOSIT"  // 存款：目标账户入账
	TransactionTypeWithdraw TransactionType = "WITHDRAW" // 取款：源账户出账
	TransactionTypeTransfer TransactionType = "TRANSFER" // 转账：源账户出账，目标账户入账
)

// ParseTransactionType 只接受三种已知类型（大小写不敏感）
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown transaction type %q", s)
	}
	return t, nil
}

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdraw, TransactionTypeTransfer:
		return true
	}
	return false
}

// RequiresSource 取款和转账必须指定源账户
func (t TransactionType) RequiresSource() bool {
	return t == TransactionTypeWithdraw || t == TransactionTypeTransfer
}

// ============================================================================
// 交易状态机
// ============================================================================
//
//   PENDING ──> PROCESSING ──> COMPLETED
//      │             │
//      └─────────────┴───────> FAILED
//
// PENDING 由 Intake 写入，其余状态只由 Applier 写入。终态不可再流转。

type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "PENDING"
	TransactionStatusProcessing TransactionStatus = "PROCESSING"
	TransactionStatusCompleted  TransactionStatus = "COMPLETED"
	TransactionStatusFailed     TransactionStatus = "FAILED"
)

var validStatusTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionStatusPending:    {TransactionStatusProcessing, TransactionStatusFailed},
	TransactionStatusProcessing: {TransactionStatusCompleted, TransactionStatusFailed},
}

func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionStatusPending, TransactionStatusProcessing, TransactionStatusCompleted, TransactionStatusFailed:
		return true
	}
	return false
}

func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusFailed
}

func (s TransactionStatus) CanTransitionTo(target TransactionStatus) bool {
	for _, allowed := range validStatusTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// NonTerminalStatuses 可以被 Applier 认领或标记失败的状态
func NonTerminalStatuses() []TransactionStatus {
	return []TransactionStatus{TransactionStatusPending, TransactionStatusProcessing}
}

// ============================================================================
// 交易实体
// ============================================================================

// Transaction 交易表，只追加不删除
// 创建后只有 Status 和 ProcessedAt 会变化
type Transaction struct {
	ID              int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	FromAccount     *string           `gorm:"type:varchar(32);index" json:"from_account"`
	ToAccount       string            `gorm:"type:varchar(32);index;not null" json:"to_account"`
	Amount          decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"amount"`
	TransactionType TransactionType   `gorm:"type:varchar(20);not null" json:"transaction_type"`
	Status          TransactionStatus `gorm:"type:varchar(20);index;not null" json:"status"`
	CreatedAt       time.Time         `gorm:"autoCreateTime;index" json:"created_at"`
	ProcessedAt     *time.Time        `json:"processed_at"`
}

func (Transaction) TableName() string {
	return "bank_transaction"
}

// 金额列是 decimal(20,4)：最多4位小数，整数部分最多16位
const (
	AmountScale         = 4
	AmountIntegerDigits = 16
)

var maxAmountExclusive = decimal.New(1, AmountIntegerDigits)

// ParseAmount 金额必须是正的十进制数，不做任何舍入
func ParseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %q is not a number", raw)
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount %s must be positive", amount)
	}
	if err := CheckAmountRange(amount); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// CheckAmountRange 超出列精度的金额落库时会被舍入或溢出，直接拒绝
func CheckAmountRange(amount decimal.Decimal) error {
	if !amount.Equal(amount.Truncate(AmountScale)) {
		return fmt.Errorf("amount %s has more than %d decimal places", amount, AmountScale)
	}
	if amount.Abs().GreaterThanOrEqual(maxAmountExclusive) {
		return fmt.Errorf("amount %s exceeds %d integer digits", amount, AmountIntegerDigits)
	}
	return nil
}
