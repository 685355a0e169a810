package service

import (
	"context"
	"errors"
	"fmt"

	"bankflow/internal/model"
	"bankflow/internal/repository"

	"gorm.io/gorm"
)

// QueryService 交易状态查询，只读
type QueryService struct {
	transactionRepo *repository.TransactionRepository
}

func NewQueryService(db *gorm.DB) *QueryService {
	return &QueryService{
		transactionRepo: repository.NewTransactionRepository(db),
	}
}

// GetTransaction 返回已提交的交易状态；Applier 滞后时会一直看到 PENDING
func (s *QueryService) GetTransaction(ctx context.Context, id int64) (*model.Transaction, error) {
	trans, err := s.transactionRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("查询交易失败: %w", err)
	}
	return trans, nil
}
