package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bankflow/internal/model"
	"bankflow/internal/repository"

	"go.uber.org/zap"
)

// Outcome 一次事件处理的结果
type Outcome string

const (
	OutcomeCompleted Outcome = "COMPLETED" // 余额已变更，交易 COMPLETED
	OutcomeFailed    Outcome = "FAILED"    // 工作单元已回滚，交易 FAILED
	OutcomeSkipped   Outcome = "SKIPPED"   // 重复投递或交易不存在，未做任何修改
	// OutcomeUnresolved 工作单元已回滚，但 FAILED 也没写进去，
	// 交易停留在最后一次提交的状态，需要人工对账
	OutcomeUnresolved Outcome = "UNRESOLVED"
	// OutcomeInterrupted 调用方的 ctx 已取消（rebalance 或进程退出），工作单元已回滚，
	// 交易保持原状态，事件不能确认，等待重新投递
	OutcomeInterrupted Outcome = "INTERRUPTED"
)

const markFailedTimeout = 5 * time.Second

type ApplyService struct {
	store repository.LedgerStore
	log   *zap.Logger
	now   func() time.Time
}

func NewApplyService(store repository.LedgerStore, log *zap.Logger) *ApplyService {
	return &ApplyService{
		store: store,
		log:   log.Named("applier"),
		now:   time.Now,
	}
}

// Apply 在一个工作单元内执行交易事件
//
// 认领交易(PROCESSING) -> 变更余额 -> COMPLETED -> 提交，任何一步失败整体回滚，
// 然后单独提交一次 FAILED。交易已是终态时不做任何修改（至少一次投递下的幂等）。
func (s *ApplyService) Apply(ctx context.Context, event *model.TransactionEvent) (Outcome, error) {
	if err := event.Validate(); err != nil {
		return OutcomeSkipped, err
	}

	log := s.log.With(
		zap.Int64("transaction_id", event.TransactionID),
		zap.String("type", string(event.TransactionType)),
		zap.String("amount", event.Amount.String()),
	)

	unit, err := s.store.Begin(ctx)
	if err != nil {
		return s.fail(ctx, log, event, err)
	}

	outcome, err := s.applyInUnit(ctx, unit, event)
	if err != nil {
		s.rollback(log, unit)
		if errors.Is(err, repository.ErrTransactionNotFound) {
			log.Error("交易不存在，丢弃事件", zap.Error(err))
			return OutcomeSkipped, err
		}
		return s.fail(ctx, log, event, err)
	}

	if outcome == OutcomeSkipped {
		s.rollback(log, unit)
		return OutcomeSkipped, nil
	}

	if err := unit.Commit(); err != nil {
		s.rollback(log, unit)
		return s.fail(ctx, log, event, fmt.Errorf("提交事务失败: %w", err))
	}

	log.Info("交易处理完成")
	return OutcomeCompleted, nil
}

func (s *ApplyService) applyInUnit(ctx context.Context, unit repository.LedgerUnit, event *model.TransactionEvent) (Outcome, error) {
	prev, err := unit.ClaimTransaction(ctx, event.TransactionID)
	if err != nil {
		return "", err
	}
	if prev.IsTerminal() {
		s.log.Info("交易已是终态，跳过重复投递",
			zap.Int64("transaction_id", event.TransactionID),
			zap.String("status", string(prev)),
		)
		return OutcomeSkipped, nil
	}

	switch event.TransactionType {
	case model.TransactionTypeDeposit:
		if err := unit.CreditAccount(ctx, event.ToAccount, event.Amount); err != nil {
			return "", fmt.Errorf("存款入账失败: %w", err)
		}
	case model.TransactionTypeWithdraw:
		if err := unit.DebitAccount(ctx, *event.FromAccount, event.Amount); err != nil {
			return "", fmt.Errorf("取款扣款失败: %w", err)
		}
	case model.TransactionTypeTransfer:
		if err := unit.DebitAccount(ctx, *event.FromAccount, event.Amount); err != nil {
			return "", fmt.Errorf("转账扣款失败: %w", err)
		}
		if err := unit.CreditAccount(ctx, event.ToAccount, event.Amount); err != nil {
			return "", fmt.Errorf("转账入账失败: %w", err)
		}
	default:
		return "", fmt.Errorf("%w: unknown transaction_type %q", model.ErrMalformedEvent, event.TransactionType)
	}

	processedAt := s.now()
	if err := unit.SetTransactionStatus(ctx, event.TransactionID,
		model.TransactionStatusProcessing, model.TransactionStatusCompleted, &processedAt); err != nil {
		return "", fmt.Errorf("更新交易状态失败: %w", err)
	}

	return OutcomeCompleted, nil
}

// fail 工作单元失败后单独提交 FAILED
// ctx 已取消时失败原因可能只是中断，不能写 FAILED
func (s *ApplyService) fail(ctx context.Context, log *zap.Logger, event *model.TransactionEvent, cause error) (Outcome, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		log.Warn("处理被中断，工作单元已回滚，等待重新投递", zap.Error(cause))
		return OutcomeInterrupted, errors.Join(cause, ctxErr)
	}

	log.Warn("交易处理失败，工作单元已回滚", zap.Error(cause))

	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markFailedTimeout)
	defer cancel()

	marked, err := s.store.MarkFailed(markCtx, event.TransactionID, s.now())
	if err != nil {
		log.Error("标记 FAILED 失败，交易需要人工对账", zap.Error(err))
		return OutcomeUnresolved, errors.Join(cause, err)
	}
	if !marked {
		// 另一次投递已经把交易推进到终态
		log.Info("交易已是终态，不再标记 FAILED")
		return OutcomeSkipped, nil
	}

	log.Info("交易已标记为 FAILED")
	return OutcomeFailed, cause
}

func (s *ApplyService) rollback(log *zap.Logger, unit repository.LedgerUnit) {
	if err := unit.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		log.Warn("回滚事务失败", zap.Error(err))
	}
}
