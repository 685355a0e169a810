package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bankflow/internal/config"
	"bankflow/internal/handler"
	"bankflow/internal/infrastructure/cache"
	"bankflow/internal/infrastructure/database"
	"bankflow/internal/infrastructure/lock"
	"bankflow/internal/infrastructure/mq"
	"bankflow/internal/job"
	"bankflow/internal/service"
	"bankflow/pkg/idgen"
	"bankflow/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	workerID := flag.Int64("worker-id", 1, "账号生成器的 worker ID")
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	log := logger.Must(logger.Config{Level: cfg.Log.Level, Development: cfg.Log.Development})
	defer func() { _ = log.Sync() }()

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化 ID 生成器
	if err := idgen.Init(*workerID); err != nil {
		log.Fatal("初始化 ID 生成器失败", zap.Error(err))
	}

	// 初始化 MySQL
	db, err := database.InitMySQL(&cfg.MySQL, log)
	if err != nil {
		log.Fatal("初始化 MySQL 失败", zap.Error(err))
	}

	// 初始化 Redis（可选）
	var locker service.AccountLocker
	redisClient, err := cache.InitRedis(&cfg.Redis, log)
	if err != nil {
		log.Fatal("初始化 Redis 失败", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
		locker = lock.NewAccountLocker(redisClient, cfg.Business.AccountLockTTL)
	}

	// Kafka 生产者在第一次发送时才连接
	producer := mq.NewProducer(&cfg.Kafka, log)
	defer func() {
		if err := producer.Close(); err != nil {
			log.Error("关闭 Kafka 生产者失败", zap.Error(err))
		}
	}()

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动后台任务
	var workers conc.WaitGroup
	republisher := job.NewPendingRepublisher(db, producer, &cfg.Business, log)
	workers.Go(func() { republisher.Start(ctx) })

	h := handler.NewHandler(
		service.NewAccountService(db, log),
		service.NewIntakeService(db, producer, locker, log),
		service.NewQueryService(db),
		log,
	)
	router := handler.SetupRouter(h, log)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// 在 goroutine 中启动服务器
	go func() {
		log.Info("服务启动", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("服务启动失败", zap.Error(err))
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("正在关闭服务...")

	// 取消上下文，等后台任务退出后再关闭生产者
	cancel()
	workers.Wait()

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("服务关闭异常", zap.Error(err))
	}

	log.Info("服务已关闭")
}
