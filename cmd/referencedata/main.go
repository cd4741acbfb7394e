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

	"github.com/wyfcoding/portfoliovaluation/internal/referencedata/application"
	refdomain "github.com/wyfcoding/portfoliovaluation/internal/referencedata/domain"
	refmysql "github.com/wyfcoding/portfoliovaluation/internal/referencedata/infrastructure/persistence/mysql"
	refhttp "github.com/wyfcoding/portfoliovaluation/internal/referencedata/interfaces/http"
	"github.com/wyfcoding/portfoliovaluation/pkg/cache"
	"github.com/wyfcoding/portfoliovaluation/pkg/config"
	"github.com/wyfcoding/portfoliovaluation/pkg/db"
	"github.com/wyfcoding/portfoliovaluation/pkg/logger"
	"github.com/wyfcoding/portfoliovaluation/pkg/metrics"
	"github.com/wyfcoding/portfoliovaluation/pkg/middleware"
	"github.com/wyfcoding/portfoliovaluation/pkg/ratelimit"
)

func main() {
	configPath := flag.String("config", "configs/referencedata.toml", "配置文件路径")
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
	ctx := context.Background()

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
		&refdomain.MarketDataSource{},
		&refdomain.SourcePriorityOverride{},
		&refdomain.FXRateObservation{},
		&refdomain.PriceObservation{},
		&refdomain.YieldCurvePointObservation{},
		&refdomain.IndexValueObservation{},
		&refdomain.FXRate{},
		&refdomain.InstrumentPrice{},
		&refdomain.YieldCurvePoint{},
		&refdomain.MarketIndexValue{},
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

	m := metrics.New(cfg.ServiceName)

	sourceRepo := refmysql.NewSourceRepository(database)
	fxRepo := refmysql.NewFXRateRepository(database)
	priceRepo := refmysql.NewPriceRepository(database)
	curveRepo := refmysql.NewYieldCurveRepository(database)
	indexRepo := refmysql.NewIndexValueRepository(database)

	resolver := application.NewPriorityResolver(sourceRepo, log)
	sourceService := application.NewSourceService(sourceRepo, log)
	canonicalizer := application.NewCanonicalizerService(resolver, fxRepo, priceRepo, curveRepo, indexRepo, m, log)

	handler := refhttp.NewHandler(sourceService, canonicalizer, fxRepo, priceRepo, curveRepo, indexRepo)

	if cfg.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(middleware.GinRecovery(), middleware.GinLogging(), middleware.GinMetrics(m))

	limiter := ratelimit.NewRedisRateLimiter(redisCache.Client())
	api := engine.Group("/api/v1",
		middleware.GinRateLimit(limiter, ratelimit.Limit{Rate: 100, Period: time.Second, Burst: 200}))
	handler.RegisterRoutes(api)

	engine.GET("/metrics", gin.WrapH(m.Handler()))
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": cfg.ServiceName})
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      engine,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info(ctx, "参考数据服务启动", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(ctx, "HTTP 服务异常退出", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info(ctx, "收到退出信号，开始优雅关闭")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "HTTP 服务关闭失败", "error", err)
	}
	logger.Info(ctx, "参考数据服务已退出")
}
