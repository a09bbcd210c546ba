package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"dorm-track/backend/config"
	"dorm-track/backend/internal/api/handler"
	"dorm-track/backend/internal/api/router"
	"dorm-track/backend/internal/repository"
	"dorm-track/backend/internal/service"
	"dorm-track/backend/pkg/database"
	"dorm-track/backend/pkg/jwt"
	applogger "dorm-track/backend/pkg/logger"
	"dorm-track/backend/pkg/metrics"
	"dorm-track/backend/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径，默认查找 ./config/config.yaml")
	rollback := flag.Int("rollback", 0, "回滚指定步数的数据库迁移后退出")
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("atomic_writes", cfg.Allocation.AtomicWrites),
		zap.String("batch_failure_policy", cfg.Allocation.BatchFailurePolicy),
	)

	// 3. 连接数据库
	db, err := database.NewDB(&cfg.Database, applogger.GormLevel(cfg.Log.Level), logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	logger.Info("数据库连接成功")

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层 sql.DB 失败", zap.Error(err))
	}

	// 3.1 运维模式：回滚迁移后退出
	if *rollback > 0 {
		if err := database.RollbackMigrations(sqlDB, *rollback, logger); err != nil {
			logger.Fatal("数据库迁移回滚失败", zap.Error(err))
		}
		sqlDB.Close()
		return
	}

	// 3.2 执行数据库迁移
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 4. 连接 Redis（可选：连接失败时降级运行，批次锁与限流不可用）
	rdb, err := redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis 连接失败，批次锁与限流将降级", zap.Error(err))
		rdb = nil
	}

	// 5. 指标
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewRecorder(reg)

	// 6. 依赖注入: Repository → Service → Handler
	// 接口变量必须保持真正的 nil，不能装入 nil 指针
	var (
		locker service.BatchLocker
		pinger handler.Pinger
	)
	if rdb != nil {
		locker, pinger = rdb, rdb
	}

	jwtMgr := jwt.NewManager(&cfg.Auth)
	repo := repository.NewRepository(db)
	svc := service.NewService(cfg, repo, locker, rec, logger)
	h := handler.NewHandler(svc, handler.NewHealthHandler(db, pinger))

	// 7. 初始化路由
	engine := router.Setup(cfg, h, jwtMgr, rdb, reg, logger)

	// 8. 启动 HTTP 服务器（优雅关闭）
	// 写超时需覆盖一个完整的自动分配批次
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Allocation.BatchTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务器异常", zap.Error(err))
		}
	}()

	// 9. 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("收到关闭信号，开始优雅关闭...", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Allocation.BatchTimeout+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	// 关闭数据库连接
	sqlDB.Close()

	// 关闭 Redis 连接
	if rdb != nil {
		rdb.Close()
	}

	logger.Info("服务器已关闭")
}
