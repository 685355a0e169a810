package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"bankflow/internal/model"
	"bankflow/internal/repository"
	"bankflow/pkg/idgen"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

type AccountService struct {
	accountRepo *repository.AccountRepository
	log         *zap.Logger
}

func NewAccountService(db *gorm.DB, log *zap.Logger) *AccountService {
	return &AccountService{
		accountRepo: repository.NewAccountRepository(db),
		log:         log.Named("account"),
	}
}

// CreateAccount 开户，initialBalance 为空时余额为0
func (s *AccountService) CreateAccount(ctx context.Context, ownerName, initialBalance string) (*model.Account, error) {
	ownerName = strings.TrimSpace(ownerName)
	if n := utf8.RuneCountInString(ownerName); n < 2 || n > 100 {
		return nil, ErrInvalidOwnerName
	}

	balance := decimal.Zero
	if strings.TrimSpace(initialBalance) != "" {
		parsed, err := decimal.NewFromString(strings.TrimSpace(initialBalance))
		if err != nil || parsed.IsNegative() {
			return nil, fmt.Errorf("%w: initial balance %q", ErrInvalidAmount, initialBalance)
		}
		if err := model.CheckAmountRange(parsed); err != nil {
			return nil, fmt.Errorf("%w: initial balance %v", ErrInvalidAmount, err)
		}
		balance = parsed
	}

	account := &model.Account{
		AccountNumber: idgen.GenerateAccountNumber(),
		OwnerName:     ownerName,
		Balance:       balance,
		IsActive:      true,
	}
	if err := s.accountRepo.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("创建账户失败: %w", err)
	}

	s.log.Info("账户已创建",
		zap.String("account_number", account.AccountNumber),
		zap.String("balance", account.Balance.String()),
	)
	return account, nil
}

func (s *AccountService) GetAccount(ctx context.Context, accountNumber string) (*model.Account, error) {
	account, err := s.accountRepo.GetByAccountNumber(ctx, accountNumber)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

func (s *AccountService) ListAccounts(ctx context.Context, skip, limit int) ([]*model.Account, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.accountRepo.List(ctx, skip, limit)
}

// DeactivateAccount 停用账户；已受理的交易仍会被 Applier 处理
func (s *AccountService) DeactivateAccount(ctx context.Context, accountNumber string) (*model.Account, error) {
	if err := s.accountRepo.Deactivate(ctx, accountNumber); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("停用账户失败: %w", err)
	}

	s.log.Info("账户已停用", zap.String("account_number", accountNumber))
	return s.GetAccount(ctx, accountNumber)
}
