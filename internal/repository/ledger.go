package repository

import (
	"context"
	"fmt"
	"time"

	"bankflow/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LedgerUnit 一次 Applier 工作单元，对应一个数据库事务
// Commit 之前的任何修改对其他读者都不可见
type LedgerUnit interface {
	// ClaimTransaction 锁定交易行；非终态时置为 PROCESSING。返回认领前的状态
	ClaimTransaction(ctx context.Context, id int64) (model.TransactionStatus, error)
	CreditAccount(ctx context.Context, accountNumber string, amount decimal.Decimal) error
	DebitAccount(ctx context.Context, accountNumber string, amount decimal.Decimal) error
	SetTransactionStatus(ctx context.Context, id int64, from, to model.TransactionStatus, processedAt *time.Time) error
	Commit() error
	Rollback() error
}

// LedgerStore 账本存储
type LedgerStore interface {
	Begin(ctx context.Context) (LedgerUnit, error)
	// MarkFailed 独立于任何工作单元，单独提交
	MarkFailed(ctx context.Context, id int64, at time.Time) (bool, error)
}

type GormLedgerStore struct {
	db              *gorm.DB
	accountRepo     *AccountRepository
	transactionRepo *TransactionRepository
}

var _ LedgerStore = (*GormLedgerStore)(nil)

func NewLedgerStore(db *gorm.DB) *GormLedgerStore {
	return &GormLedgerStore{
		db:              db,
		accountRepo:     NewAccountRepository(db),
		transactionRepo: NewTransactionRepository(db),
	}
}

func (s *GormLedgerStore) Begin(ctx context.Context) (LedgerUnit, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("开启事务失败: %w", tx.Error)
	}
	return &gormLedgerUnit{tx: tx, store: s}, nil
}

func (s *GormLedgerStore) MarkFailed(ctx context.Context, id int64, at time.Time) (bool, error) {
	return s.transactionRepo.MarkFailed(ctx, id, at)
}

type gormLedgerUnit struct {
	tx    *gorm.DB
	store *GormLedgerStore
}

func (u *gormLedgerUnit) ClaimTransaction(ctx context.Context, id int64) (model.TransactionStatus, error) {
	trans, err := u.store.transactionRepo.GetByIDForUpdate(ctx, u.tx, id)
	if err != nil {
		return "", err
	}

	switch trans.Status {
	case model.TransactionStatusPending:
		if err := u.store.transactionRepo.UpdateStatus(ctx, u.tx, id,
			model.TransactionStatusPending, model.TransactionStatusProcessing, nil); err != nil {
			return "", err
		}
	case model.TransactionStatusProcessing:
		// 上一次处理中断在 PROCESSING，行锁已拿到，直接接管
	}

	return trans.Status, nil
}

func (u *gormLedgerUnit) CreditAccount(ctx context.Context, accountNumber string, amount decimal.Decimal) error {
	return u.store.accountRepo.Credit(ctx, u.tx, accountNumber, amount)
}

func (u *gormLedgerUnit) DebitAccount(ctx context.Context, accountNumber string, amount decimal.Decimal) error {
	return u.store.accountRepo.Debit(ctx, u.tx, accountNumber, amount)
}

func (u *gormLedgerUnit) SetTransactionStatus(ctx context.Context, id int64, from, to model.TransactionStatus, processedAt *time.Time) error {
	return u.store.transactionRepo.UpdateStatus(ctx, u.tx, id, from, to, processedAt)
}

func (u *gormLedgerUnit) Commit() error {
	return u.tx.Commit().Error
}

func (u *gormLedgerUnit) Rollback() error {
	return u.tx.Rollback().Error
}
