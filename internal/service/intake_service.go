package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bankflow/internal/infrastructure/lock"
	"bankflow/internal/model"
	"bankflow/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EventPublisher 事件通道的追加端
type EventPublisher interface {
	Publish(ctx context.Context, event *model.TransactionEvent) error
}

// AccountLocker 按账号加互斥锁
type AccountLocker interface {
	Acquire(ctx context.Context, accountNumber, owner string) (release func(), err error)
}

type IntakeService struct {
	accountRepo     *repository.AccountRepository
	transactionRepo *repository.TransactionRepository
	publisher       EventPublisher
	locker          AccountLocker
	log             *zap.Logger
}

// NewIntakeService locker 可以为 nil，此时不加账户锁
func NewIntakeService(db *gorm.DB, publisher EventPublisher, locker AccountLocker, log *zap.Logger) *IntakeService {
	return &IntakeService{
		accountRepo:     repository.NewAccountRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		publisher:       publisher,
		locker:          locker,
		log:             log.Named("intake"),
	}
}

// TransactionRequest 交易请求
// Amount 保留原始文本，由 Intake 负责解析，非数字和非正数都是 ErrInvalidAmount
type TransactionRequest struct {
	RequestID       string
	FromAccount     string
	ToAccount       string
	Amount          string
	TransactionType string
}

// Submit 校验并受理一笔交易
//
// 成功时交易行已以 PENDING 状态提交，事件已追加到 Kafka；
// 返回值只表示"已受理"，余额变化由 Applier 异步完成。
func (s *IntakeService) Submit(ctx context.Context, req *TransactionRequest) (*model.Transaction, error) {
	amount, err := model.ParseAmount(req.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}

	txType, err := model.ParseTransactionType(req.TransactionType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransactionType, err)
	}

	from := strings.TrimSpace(req.FromAccount)
	to := strings.TrimSpace(req.ToAccount)

	switch txType {
	case model.TransactionTypeDeposit:
		from = ""
	case model.TransactionTypeWithdraw:
		if from == "" {
			return nil, ErrMissingSourceAccount
		}
		if to == "" {
			to = from
		}
		if to != from {
			return nil, ErrWithdrawAccountMismatch
		}
	}
	if to == "" {
		return nil, ErrMissingDestinationAccount
	}

	if _, err := s.resolveActive(ctx, to); err != nil {
		return nil, err
	}

	trans := &model.Transaction{
		ToAccount:       to,
		Amount:          amount,
		TransactionType: txType,
		Status:          model.TransactionStatusPending,
	}

	if txType.RequiresSource() {
		if from == "" {
			return nil, ErrMissingSourceAccount
		}
		trans.FromAccount = &from

		if err := s.recordDebit(ctx, req.RequestID, trans); err != nil {
			return nil, err
		}
	} else {
		if err := s.transactionRepo.Create(ctx, nil, trans); err != nil {
			return nil, fmt.Errorf("创建交易失败: %w", err)
		}
	}

	if err := s.publisher.Publish(ctx, model.NewTransactionEvent(trans)); err != nil {
		s.log.Error("交易事件发送失败，标记交易为 FAILED",
			zap.Int64("transaction_id", trans.ID),
			zap.Error(err),
		)
		// 发送超时但 broker 实际已写入时，Applier 可能已经处理完这笔交易
		if settled := s.markUnpublished(ctx, trans); settled != nil {
			s.log.Warn("事件发送报错但交易已被处理，按已受理返回",
				zap.Int64("transaction_id", settled.ID),
				zap.String("status", string(settled.Status)),
			)
			return settled, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrEventPublish, err)
	}

	s.log.Info("交易已受理",
		zap.Int64("transaction_id", trans.ID),
		zap.String("type", string(trans.TransactionType)),
		zap.String("amount", trans.Amount.String()),
		zap.String("to_account", trans.ToAccount),
		zap.Stringp("from_account", trans.FromAccount),
	)
	return trans, nil
}

// recordDebit 在源账户锁内完成余额校验和 PENDING 落库
func (s *IntakeService) recordDebit(ctx context.Context, requestID string, trans *model.Transaction) error {
	from := *trans.FromAccount

	if s.locker != nil {
		owner := requestID
		if owner == "" {
			owner = uuid.NewString()
		}
		release, err := s.locker.Acquire(ctx, from, owner)
		if err != nil {
			if errors.Is(err, lock.ErrLockFailed) {
				return ErrAccountBusy
			}
			return fmt.Errorf("获取账户锁失败: %w", err)
		}
		defer release()
	}

	source, err := s.resolveActive(ctx, from)
	if err != nil {
		return err
	}

	inFlight, err := s.transactionRepo.SumInFlightDebits(ctx, from)
	if err != nil {
		return fmt.Errorf("查询在途出账失败: %w", err)
	}

	available := source.Balance.Sub(inFlight)
	if available.LessThan(trans.Amount) {
		s.log.Info("余额不足，拒绝交易",
			zap.String("account", from),
			zap.String("balance", source.Balance.String()),
			zap.String("in_flight", inFlight.String()),
			zap.String("amount", trans.Amount.String()),
		)
		return ErrInsufficientFunds
	}

	if err := s.transactionRepo.Create(ctx, nil, trans); err != nil {
		return fmt.Errorf("创建交易失败: %w", err)
	}
	return nil
}

func (s *IntakeService) resolveActive(ctx context.Context, accountNumber string) (*model.Account, error) {
	account, err := s.accountRepo.GetByAccountNumber(ctx, accountNumber)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, accountNumber)
		}
		return nil, fmt.Errorf("查询账户失败: %w", err)
	}
	if !account.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrAccountInactive, accountNumber)
	}
	return account, nil
}

// markUnpublished 事件没有追加成功的交易永远不会被 Applier 处理，直接置为 FAILED
// 交易已经是终态时返回最新的交易行
func (s *IntakeService) markUnpublished(ctx context.Context, trans *model.Transaction) *model.Transaction {
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	now := time.Now()
	marked, err := s.transactionRepo.MarkFailed(markCtx, trans.ID, now)
	if err != nil {
		s.log.Error("标记交易 FAILED 失败，等待补发任务处理",
			zap.Int64("transaction_id", trans.ID),
			zap.Error(err),
		)
		return nil
	}
	if marked {
		trans.Status = model.TransactionStatusFailed
		trans.ProcessedAt = &now
		return nil
	}

	current, err := s.transactionRepo.GetByID(markCtx, trans.ID)
	if err != nil {
		s.log.Error("查询交易失败", zap.Int64("transaction_id", trans.ID), zap.Error(err))
		return nil
	}
	return current
}
