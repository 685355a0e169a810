package repository

import (
	"context"
	"errors"

	"bankflow/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrAccountNotFound  = errors.New("账户不存在")
	ErrBalanceNotEnough = errors.New("余额不足")
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, account *model.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *AccountRepository) GetByAccountNumber(ctx context.Context, accountNumber string) (*model.Account, error) {
	return r.getByAccountNumber(ctx, r.db, accountNumber)
}

func (r *AccountRepository) getByAccountNumber(ctx context.Context, tx *gorm.DB, accountNumber string) (*model.Account, error) {
	var account model.Account
	err := tx.WithContext(ctx).Where("account_number = ?", accountNumber).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r *AccountRepository) List(ctx context.Context, skip, limit int) ([]*model.Account, error) {
	var accounts []*model.Account
	err := r.db.WithContext(ctx).
		Order("id ASC").
		Offset(skip).
		Limit(limit).
		Find(&accounts).Error
	return accounts, err
}

func (r *AccountRepository) Deactivate(ctx context.Context, accountNumber string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("account_number = ?", accountNumber).
		Update("is_active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// 已停用的账户在 MySQL 下也会返回 0 行
		if _, err := r.GetByAccountNumber(ctx, accountNumber); err != nil {
			return err
		}
	}
	return nil
}

// Credit 原子入账：balance = balance + amount
//
// 【关键点】必须在 SQL 里做增量，不能先读余额再写回，
// 否则两个并发的 Applier 会互相覆盖（lost update）
func (r *AccountRepository) Credit(ctx context.Context, tx *gorm.DB, accountNumber string, amount decimal.Decimal) error {
	result := tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("account_number = ?", accountNumber).
		Update("balance", gorm.Expr("balance + ?", amount))

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Debit 原子条件扣款：只有 balance >= amount 时才扣
//
// Intake 时的余额校验和这里的扣款之间存在时间差，
// 并发的取款/转账可能在这期间把余额花掉，所以扣款时必须再带上条件。
func (r *AccountRepository) Debit(ctx context.Context, tx *gorm.DB, accountNumber string, amount decimal.Decimal) error {
	result := tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("account_number = ? AND balance >= ?", accountNumber, amount).
		Update("balance", gorm.Expr("balance - ?", amount))

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		if _, err := r.getByAccountNumber(ctx, tx, accountNumber); err != nil {
			return err
		}
		return ErrBalanceNotEnough
	}

	return nil
}
