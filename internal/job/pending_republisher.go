package job

import (
	"context"
	"time"

	"bankflow/internal/config"
	"bankflow/internal/model"
	"bankflow/internal/repository"
	"bankflow/internal/service"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PendingRepublisher 补发长时间停留在 PENDING 的交易事件
//
// 两种情况会留下 PENDING：事件追加成功与否不确定（超时），
// 或者 Applier 的工作单元和 FAILED 写入都失败了。
// 重复追加是安全的，Applier 遇到终态交易直接跳过。
type PendingRepublisher struct {
	transactionRepo *repository.TransactionRepository
	publisher       service.EventPublisher
	log             *zap.Logger
	stopCh          chan struct{}
	interval        time.Duration
	after           time.Duration
	batchSize       int
	now             func() time.Time
}

func NewPendingRepublisher(db *gorm.DB, publisher service.EventPublisher, cfg *config.BusinessConfig, log *zap.Logger) *PendingRepublisher {
	return &PendingRepublisher{
		transactionRepo: repository.NewTransactionRepository(db),
		publisher:       publisher,
		log:             log.Named("republisher"),
		stopCh:          make(chan struct{}),
		interval:        cfg.RepublishInterval,
		after:           cfg.RepublishAfter,
		batchSize:       cfg.RepublishBatch,
		now:             time.Now,
	}
}

func (j *PendingRepublisher) Start(ctx context.Context) {
	j.log.Info("PENDING 补发任务启动",
		zap.Duration("interval", j.interval),
		zap.Duration("after", j.after),
	)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info("收到停止信号，任务退出")
			return
		case <-j.stopCh:
			j.log.Info("任务停止")
			return
		case <-ticker.C:
			j.republishStale(ctx)
		}
	}
}

func (j *PendingRepublisher) Stop() {
	close(j.stopCh)
}

// republishStale 返回本轮成功补发的数量
func (j *PendingRepublisher) republishStale(ctx context.Context) int {
	before := j.now().Add(-j.after)
	transactions, err := j.transactionRepo.GetStalePending(ctx, before, j.batchSize)
	if err != nil {
		j.log.Error("查询 PENDING 交易失败", zap.Error(err))
		return 0
	}

	if len(transactions) == 0 {
		return 0
	}

	j.log.Info("发现停留过久的 PENDING 交易", zap.Int("count", len(transactions)))

	sent := 0
	for _, trans := range transactions {
		// 原事件可能仍在日志里，补发失败不标记 FAILED，下一轮再试
		if err := j.publisher.Publish(ctx, model.NewTransactionEvent(trans)); err != nil {
			j.log.Warn("补发交易事件失败",
				zap.Int64("transaction_id", trans.ID),
				zap.Error(err),
			)
			continue
		}
		sent++
	}

	j.log.Info("本轮补发完成", zap.Int("sent", sent), zap.Int("total", len(transactions)))
	return sent
}
