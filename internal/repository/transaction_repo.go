package repository

import (
	"context"
	"errors"
	"time"

	"bankflow/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrTransactionNotFound     = errors.New("交易不存在")
	ErrInvalidStatusTransition = errors.New("交易状态流转不合法")
	ErrStatusConflict          = errors.New("交易状态已被修改")
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.Transaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(trans).Error
}

func (r *TransactionRepository) GetByID(ctx context.Context, id int64) (*model.Transaction, error) {
	var trans model.Transaction
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &trans, nil
}

func (r *TransactionRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.Transaction, error) {
	var trans model.Transaction
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &trans, nil
}

// UpdateStatus 带状态前置条件的更新（CAS）
// processedAt 只在进入终态时传入
func (r *TransactionRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, id int64, fromStatus, toStatus model.TransactionStatus, processedAt *time.Time) error {
	if !fromStatus.CanTransitionTo(toStatus) {
		return ErrInvalidStatusTransition
	}
	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{
		"status": toStatus,
	}
	if processedAt != nil {
		updates["processed_at"] = *processedAt
	}

	result := tx.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

// MarkFailed 把非终态的交易标记为 FAILED
// 交易已是终态时返回 false，不覆盖已有结果
func (r *TransactionRepository) MarkFailed(ctx context.Context, id int64, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("id = ? AND status IN ?", id, model.NonTerminalStatuses()).
		Updates(map[string]interface{}{
			"status":       model.TransactionStatusFailed,
			"processed_at": at,
		})

	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// SumInFlightDebits 统计某账户已受理但尚未完成的出账总额
// Intake 用 余额-在途出账 作为可用余额，避免同一笔余额被多笔请求重复占用
func (r *TransactionRepository) SumInFlightDebits(ctx context.Context, accountNumber string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	row := r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("from_account = ? AND status IN ? AND transaction_type IN ?",
			accountNumber,
			model.NonTerminalStatuses(),
			[]model.TransactionType{model.TransactionTypeWithdraw, model.TransactionTypeTransfer},
		).
		Row()
	if err := row.Scan(&sum); err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

// GetStalePending 查询创建时间早于 before 仍是 PENDING 的交易
func (r *TransactionRepository) GetStalePending(ctx context.Context, before time.Time, limit int) ([]*model.Transaction, error) {
	var transactions []*model.Transaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", model.TransactionStatusPending, before).
		Order("id ASC").
		Limit(limit).
		Find(&transactions).Error
	return transactions, err
}
