package client

import (
	"context"
	"errors"
	"time"

	"bankflow/internal/model"

	"github.com/sethvargo/go-retry"
)

const (
	DefaultTrackInterval = time.Second
	DefaultTrackAttempts = 10
)

var errNotSettled = errors.New("交易尚未到达终态")

// TransactionGetter 查询交易状态
type TransactionGetter interface {
	GetTransaction(ctx context.Context, id int64) (*model.Transaction, error)
}

// TrackResult 追踪结果
// Settled=false 表示在尝试次数内没有等到终态，交易仍可能完成
type TrackResult struct {
	Transaction *model.Transaction
	Settled     bool
	Attempts    int
	LastErr     error
}

// Tracker 轮询交易直到终态或达到尝试上限
type Tracker struct {
	getter      TransactionGetter
	interval    time.Duration
	maxAttempts int
	// OnPoll 每次轮询后回调，可用于打印进度
	OnPoll func(attempt int, trans *model.Transaction, err error)
}

func NewTracker(getter TransactionGetter, interval time.Duration, maxAttempts int) *Tracker {
	if interval <= 0 {
		interval = DefaultTrackInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultTrackAttempts
	}
	return &Tracker{
		getter:      getter,
		interval:    interval,
		maxAttempts: maxAttempts,
	}
}

// Track 每次查询前先等一个间隔；查询出错不中断，继续轮询
// 只有 ctx 被取消才返回 error，用完尝试次数返回 Settled=false
func (t *Tracker) Track(ctx context.Context, id int64) (*TrackResult, error) {
	result := &TrackResult{}

	timer := time.NewTimer(t.interval)
	select {
	case <-ctx.Done():
		timer.Stop()
		return result, ctx.Err()
	case <-timer.C:
	}

	backoff := retry.WithMaxRetries(uint64(t.maxAttempts-1), retry.NewConstant(t.interval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		result.Attempts++
		trans, err := t.getter.GetTransaction(ctx, id)
		if t.OnPoll != nil {
			t.OnPoll(result.Attempts, trans, err)
		}
		if err != nil {
			result.LastErr = err
			return retry.RetryableError(err)
		}

		result.Transaction = trans
		result.LastErr = nil
		if !trans.Status.IsTerminal() {
			return retry.RetryableError(errNotSettled)
		}
		result.Settled = true
		return nil
	})

	if err != nil && ctx.Err() != nil {
		return result, ctx.Err()
	}
	return result, nil
}
