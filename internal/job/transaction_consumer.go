package job

import (
	"context"
	"errors"
	"time"

	"bankflow/internal/model"
	"bankflow/internal/service"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// Applier 执行一条交易事件
type Applier interface {
	Apply(ctx context.Context, event *model.TransactionEvent) (service.Outcome, error)
}

// TransactionConsumer 交易事件消费者（Applier 的驱动端）
//
// 每个分区一个 ConsumeClaim 协程，分区内严格按日志顺序逐条处理。
// 一条消息的工作单元（以及可能的 FAILED 写入）结束后才 MarkMessage，
// 进程在中途退出或处理被中断时这条消息不会确认，重新投递后由 Applier 的幂等校验兜底。
type TransactionConsumer struct {
	group        sarama.ConsumerGroup
	topics       []string
	applier      Applier
	log          *zap.Logger
	retryBackoff time.Duration
}

func NewTransactionConsumer(group sarama.ConsumerGroup, topic string, applier Applier, log *zap.Logger) *TransactionConsumer {
	return &TransactionConsumer{
		group:        group,
		topics:       []string{topic},
		applier:      applier,
		log:          log.Named("consumer"),
		retryBackoff: time.Second,
	}
}

// Start 阻塞直到 ctx 取消或消费组被关闭
func (c *TransactionConsumer) Start(ctx context.Context) error {
	c.log.Info("交易消费者启动", zap.Strings("topics", c.topics))

	go func() {
		for err := range c.group.Errors() {
			c.log.Error("消费组错误", zap.Error(err))
		}
	}()

	for {
		// 发生 rebalance 时 Consume 会返回，需要重新加入
		if err := c.group.Consume(ctx, c.topics, c); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				c.log.Info("消费组已关闭，消费者退出")
				return nil
			}
			c.log.Error("消费失败，稍后重试", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(c.retryBackoff):
			}
		}
		if ctx.Err() != nil {
			c.log.Info("收到停止信号，消费者退出")
			return nil
		}
	}
}

func (c *TransactionConsumer) Setup(session sarama.ConsumerGroupSession) error {
	c.log.Info("分区分配完成",
		zap.String("member_id", session.MemberID()),
		zap.Int32("generation", session.GenerationID()),
		zap.Any("claims", session.Claims()),
	)
	return nil
}

func (c *TransactionConsumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (c *TransactionConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			// 会话已结束，剩下的消息留给下一代消费者
			if session.Context().Err() != nil {
				return nil
			}
			if c.handleMessage(session.Context(), msg) == service.OutcomeInterrupted {
				return nil
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// handleMessage 处理单条消息，任何结果都不会阻塞后续消息
func (c *TransactionConsumer) handleMessage(ctx context.Context, msg *sarama.ConsumerMessage) service.Outcome {
	log := c.log.With(
		zap.Int32("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
		zap.ByteString("key", msg.Key),
	)

	event, err := model.DecodeTransactionEvent(msg.Value)
	if err != nil {
		log.Error("消息格式错误，丢弃", zap.Error(err))
		return service.OutcomeSkipped
	}

	outcome, err := c.applier.Apply(ctx, event)
	log = log.With(zap.Int64("transaction_id", event.TransactionID), zap.String("outcome", string(outcome)))

	switch outcome {
	case service.OutcomeCompleted:
		log.Debug("事件处理完成")
	case service.OutcomeSkipped:
		if err != nil {
			log.Warn("事件被跳过", zap.Error(err))
		} else {
			log.Debug("重复投递，已跳过")
		}
	case service.OutcomeFailed:
		log.Warn("交易失败", zap.Error(err))
	case service.OutcomeUnresolved:
		log.Error("交易结果未能落库，需要人工对账", zap.Error(err))
	case service.OutcomeInterrupted:
		log.Info("处理被中断，消息不确认", zap.Error(err))
	}
	return outcome
}
