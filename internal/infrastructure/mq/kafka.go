package mq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bankflow/internal/config"
	"bankflow/internal/model"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

var ErrProducerClosed = errors.New("kafka 生产者已关闭")

// SyncProducerFactory 创建底层同步生产者，测试时替换为 sarama/mocks
type SyncProducerFactory func(brokers []string, cfg *sarama.Config) (sarama.SyncProducer, error)

// Producer 进程级的交易事件生产者
//
// 第一次 Publish 时才真正连接 Kafka（懒加载），并发安全；
// 进程退出前必须调用 Close，把缓冲中的消息刷出去。
type Producer struct {
	brokers     []string
	topic       string
	sendTimeout time.Duration
	factory     SyncProducerFactory
	log         *zap.Logger

	mu       sync.Mutex
	producer sarama.SyncProducer
	closed   bool
}

func NewProducer(cfg *config.KafkaConfig, log *zap.Logger) *Producer {
	return NewProducerWithFactory(cfg, log, sarama.NewSyncProducer)
}

func NewProducerWithFactory(cfg *config.KafkaConfig, log *zap.Logger, factory SyncProducerFactory) *Producer {
	return &Producer{
		brokers:     cfg.Brokers,
		topic:       cfg.Topic,
		sendTimeout: cfg.SendTimeout,
		factory:     factory,
		log:         log.Named("producer"),
	}
}

// ProducerConfig 生产者配置：所有副本确认、按 key 哈希分区
func ProducerConfig(sendTimeout time.Duration) *sarama.Config {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll // 等待所有副本确认
	kafkaConfig.Producer.Retry.Max = 3                    // 重试次数
	kafkaConfig.Producer.Return.Successes = true          // 返回成功消息
	kafkaConfig.Producer.Partitioner = sarama.NewHashPartitioner
	if sendTimeout > 0 {
		kafkaConfig.Producer.Timeout = sendTimeout
	}
	return kafkaConfig
}

func (p *Producer) get() (sarama.SyncProducer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrProducerClosed
	}
	if p.producer != nil {
		return p.producer, nil
	}

	producer, err := p.factory(p.brokers, ProducerConfig(p.sendTimeout))
	if err != nil {
		return nil, fmt.Errorf("创建 Kafka 生产者失败: %w", err)
	}
	p.producer = producer
	p.log.Info("Kafka 生产者创建成功", zap.Strings("brokers", p.brokers))
	return producer, nil
}

// Publish 同步追加一条交易事件，返回时消息已被 broker 确认
func (p *Producer) Publish(ctx context.Context, event *model.TransactionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := event.Encode()
	if err != nil {
		return fmt.Errorf("序列化交易事件失败: %w", err)
	}

	producer, err := p.get()
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.PartitionKey()),
		Value: sarama.ByteEncoder(payload),
	}

	partition, offset, err := producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("发送交易事件失败: %w", err)
	}

	p.log.Info("交易事件已发送",
		zap.Int64("transaction_id", event.TransactionID),
		zap.String("key", event.PartitionKey()),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

// Close 关闭 Kafka 生产者，可重复调用
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.producer == nil {
		return nil
	}
	err := p.producer.Close()
	p.producer = nil
	if err != nil {
		return fmt.Errorf("关闭 Kafka 生产者失败: %w", err)
	}
	p.log.Info("Kafka 生产者已关闭")
	return nil
}

// ConsumerConfig 消费者配置
//
// 从最早的 offset 开始消费；offset 只在 MarkMessage 之后才会被自动提交，
// 因此 Applier 必须在工作单元结束后再 MarkMessage。
func ConsumerConfig() *sarama.Config {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	kafkaConfig.Consumer.Offsets.AutoCommit.Enable = true
	kafkaConfig.Consumer.Offsets.AutoCommit.Interval = time.Second
	kafkaConfig.Consumer.Return.Errors = true
	return kafkaConfig
}

// NewConsumerGroup 创建交易事件消费组
func NewConsumerGroup(cfg *config.KafkaConfig) (sarama.ConsumerGroup, error) {
	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, ConsumerConfig())
	if err != nil {
		return nil, fmt.Errorf("创建 Kafka 消费组失败: %w", err)
	}
	return group, nil
}
