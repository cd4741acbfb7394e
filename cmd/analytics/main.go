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

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/portfoliovaluation/internal/analytics/application"
	anadomain "github.com/wyfcoding/portfoliovaluation/internal/analytics/domain"
	anamysql "github.com/wyfcoding/portfoliovaluation/internal/analytics/infrastructure/persistence/mysql"
	"github.com/wyfcoding/portfoliovaluation/internal/analytics/infrastructure/messaging"
	anaconsumer "github.com/wyfcoding/portfoliovaluation/internal/analytics/interfaces/consumer"
	anahttp "github.com/wyfcoding/portfoliovaluation/internal/analytics/interfaces/http"
	portfoliodomain "github.com/wyfcoding/portfoliovaluation/internal/portfolio/domain"
	portfoliomysql "github.com/wyfcoding/portfoliovaluation/internal/portfolio/infrastructure/persistence/mysql"
	"github.com/wyfcoding/portfoliovaluation/pkg/cache"
	"github.com/wyfcoding/portfoliovaluation/pkg/config"
	"github.com/wyfcoding/portfoliovaluation/pkg/db"
	"github.com/wyfcoding/portfoliovaluation/pkg/logger"
	"github.com/wyfcoding/portfoliovaluation/pkg/metrics"
	"github.com/wyfcoding/portfoliovaluation/pkg/middleware"
	"github.com/wyfcoding/portfoliovaluation/pkg/mq"
	"github.com/wyfcoding/portfoliovaluation/pkg/ratelimit"
)

const (
	auditEventTopic        = "valuation.audit.events"
	dailyCloseRequestTopic = "valuation.daily-close.requests"
)

func main() {
	configPath := flag.String("config", "configs/analytics.toml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:    cfg.Logger.Level,
		Format:   cfg.Logger.Format,
		Output:   cfg.Logger.Output,
		FilePath: cfg.Logger.FilePath,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	log := logger.Get()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Init(db.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	})
	if err != nil {
		logger.Fatal(ctx, "初始化数据库失败", "error", err)
	}
	defer database.Close()

	if err := database.AutoMigrate(
		&portfoliodomain.Portfolio{},
		&portfoliodomain.Instrument{},
		&portfoliodomain.PositionSnapshot{},
		&anadomain.ValuationRun{},
		&anadomain.ValuationPositionResult{},
		&anadomain.ExposureResult{},
		&messaging.OutboxMessage{},
	); err != nil {
		logger.Fatal(ctx, "数据库迁移失败", "error", err)
	}

	redisCache, err := cache.New(cache.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MaxPoolSize:  cfg.Redis.MaxPoolSize,
		ConnTimeout:  cfg.Redis.ConnTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		logger.Fatal(ctx, "初始化 Redis 失败", "error", err)
	}
	defer redisCache.Close()

	producer, err := mq.NewProducer(mq.KafkaConfig{
		Brokers:      cfg.Kafka.Brokers,
		MaxRetries:   cfg.Kafka.MaxRetries,
		RetryBackoff: cfg.Kafka.RetryBackoff,
	})
	if err != nil {
		logger.Fatal(ctx, "初始化 Kafka 生产者失败", "error", err)
	}
	defer producer.Close()

	m := metrics.New(cfg.ServiceName)

	portfolioRepo := portfoliomysql.NewPortfolioRepository(database)
	runRepo := anamysql.NewRunRepository(database)
	resultRepo := anamysql.NewResultRepository(database)
	exposureRepo := anamysql.NewExposureRepository(database)
	fxReader := anamysql.NewFXRateReader(database, redisCache, log)
	publisher := messaging.NewOutboxPublisher(auditEventTopic, log)

	engine := application.NewValuationEngine(fxReader, log)
	runService := application.NewRunService(runRepo, resultRepo, exposureRepo, portfolioRepo, engine, publisher, m, log)
	dailyClose := application.NewDailyCloseService(runService, portfolioRepo, log)

	relay := messaging.NewOutboxRelay(database, producer, log)
	go relay.Start(ctx)

	consumer, err := mq.NewConsumer(mq.KafkaConfig{
		Brokers:        cfg.Kafka.Brokers,
		GroupID:        cfg.Kafka.GroupID,
		SessionTimeout: cfg.Kafka.SessionTimeout,
	}, dailyCloseRequestTopic)
	if err != nil {
		logger.Fatal(ctx, "初始化 Kafka 消费者失败", "error", err)
	}
	defer consumer.Close()

	requestHandler := anaconsumer.NewRunRequestHandler(dailyClose, log)
	go func() {
		if err := consumer.Consume(ctx, requestHandler.Handle); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error(ctx, "日终请求消费循环退出", "error", err)
		}
	}()

	handler := anahttp.NewHandler(runService, dailyClose)

	if cfg.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.GinRecovery(), middleware.GinLogging(), middleware.GinMetrics(m))

	limiter := ratelimit.NewRedisRateLimiter(redisCache.Client())
	api := router.Group("/api/v1",
		middleware.GinRateLimit(limiter, ratelimit.Limit{Rate: 100, Period: time.Second, Burst: 200}))
	handler.RegisterRoutes(api)

	router.GET("/metrics", gin.WrapH(m.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": cfg.ServiceName})
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info(ctx, "估值分析服务启动", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(ctx, "HTTP 服务异常退出", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info(context.Background(), "收到退出信号，开始优雅关闭")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(context.Background(), "HTTP 服务关闭失败", "error", err)
	}
	logger.Info(context.Background(), "估值分析服务已退出")
}
