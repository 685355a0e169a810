package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bankflow/internal/config"
	"bankflow/internal/infrastructure/database"
	"bankflow/internal/infrastructure/mq"
	"bankflow/internal/job"
	"bankflow/internal/repository"
	"bankflow/internal/service"
	"bankflow/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	log := logger.Must(logger.Config{Level: cfg.Log.Level, Development: cfg.Log.Development})
	defer func() { _ = log.Sync() }()

	db, err := database.InitMySQL(&cfg.MySQL, log)
	if err != nil {
		log.Fatal("初始化 MySQL 失败", zap.Error(err))
	}

	group, err := mq.NewConsumerGroup(&cfg.Kafka)
	if err != nil {
		log.Fatal("创建消费组失败", zap.Error(err))
	}

	applier := service.NewApplyService(repository.NewLedgerStore(db), log)
	consumer := job.NewTransactionConsumer(group, cfg.Kafka.Topic, applier, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- consumer.Start(ctx) }()

	select {
	case <-ctx.Done():
		log.Info("正在关闭消费者...")
		// 等当前消息的工作单元结束，再提交已标记的位点
		err = <-done
	case err = <-done:
	}
	if err != nil {
		log.Error("消费者异常退出", zap.Error(err))
	}
	if err := group.Close(); err != nil {
		log.Error("关闭消费组失败", zap.Error(err))
	}

	log.Info("消费者已关闭")
}
