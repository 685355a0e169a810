package mq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"bankflow/internal/config"
	"bankflow/internal/model"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testKafkaConfig() *config.KafkaConfig {
	return &config.KafkaConfig{
		Brokers: []string{"localhost:9092"},
		Topic:   "bank-transactions",
		GroupID: "bank-transaction-consumers",
	}
}

func transferEvent() *model.TransactionEvent {
	from := "ACC-A"
	return &model.TransactionEvent{
		TransactionID:   9,
		FromAccount:     &from,
		ToAccount:       "ACC-B",
		Amount:          decimal.RequireFromString("150"),
		TransactionType: model.TransactionTypeTransfer,
	}
}

func TestProducer_LazyInitAndPublish(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var got map[string]interface{}
		if err := json.Unmarshal(val, &got); err != nil {
			return err
		}
		if got["transaction_id"] != float64(9) || got["to_account"] != "ACC-B" {
			return errors.New("unexpected payload")
		}
		return nil
	})

	var created int32
	p := NewProducerWithFactory(testKafkaConfig(), zaptest.NewLogger(t), func(_ []string, cfg *sarama.Config) (sarama.SyncProducer, error) {
		atomic.AddInt32(&created, 1)
		assert.Equal(t, sarama.WaitForAll, cfg.Producer.RequiredAcks)
		return mock, nil
	})
	assert.Equal(t, int32(0), atomic.LoadInt32(&created))

	require.NoError(t, p.Publish(context.Background(), transferEvent()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&created))
	require.NoError(t, p.Close())
}

func TestProducer_ConcurrentPublishCreatesOneHandle(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	for i := 0; i < 10; i++ {
		mock.ExpectSendMessageAndSucceed()
	}

	var created int32
	p := NewProducerWithFactory(testKafkaConfig(), zaptest.NewLogger(t), func([]string, *sarama.Config) (sarama.SyncProducer, error) {
		atomic.AddInt32(&created, 1)
		return mock, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, p.Publish(context.Background(), transferEvent()))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&created))
	require.NoError(t, p.Close())
}

func TestProducer_SendFailure(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)

	p := NewProducerWithFactory(testKafkaConfig(), zaptest.NewLogger(t), func([]string, *sarama.Config) (sarama.SyncProducer, error) {
		return mock, nil
	})

	err := p.Publish(context.Background(), transferEvent())
	assert.ErrorIs(t, err, sarama.ErrNotLeaderForPartition)
	require.NoError(t, p.Close())
}

func TestProducer_FactoryErrorIsRetriedOnNextPublish(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageAndSucceed()

	calls := 0
	p := NewProducerWithFactory(testKafkaConfig(), zaptest.NewLogger(t), func([]string, *sarama.Config) (sarama.SyncProducer, error) {
		calls++
		if calls == 1 {
			return nil, sarama.ErrOutOfBrokers
		}
		return mock, nil
	})

	assert.ErrorIs(t, p.Publish(context.Background(), transferEvent()), sarama.ErrOutOfBrokers)
	require.NoError(t, p.Publish(context.Background(), transferEvent()))
	require.NoError(t, p.Close())
}

func TestProducer_ClosedRejectsPublish(t *testing.T) {
	p := NewProducerWithFactory(testKafkaConfig(), zaptest.NewLogger(t), func([]string, *sarama.Config) (sarama.SyncProducer, error) {
		t.Fatal("factory must not be called")
		return nil, nil
	})

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.ErrorIs(t, p.Publish(context.Background(), transferEvent()), ErrProducerClosed)
}

func TestConsumerConfig(t *testing.T) {
	cfg := ConsumerConfig()
	assert.Equal(t, sarama.OffsetOldest, cfg.Consumer.Offsets.Initial)
	assert.True(t, cfg.Consumer.Offsets.AutoCommit.Enable)
}
