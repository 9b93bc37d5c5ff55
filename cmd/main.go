package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fyerfyer/pdf-splitter/api"
	"github.com/fyerfyer/pdf-splitter/api/handler"
	"github.com/fyerfyer/pdf-splitter/api/middleware"
	"github.com/fyerfyer/pdf-splitter/config"
	"github.com/fyerfyer/pdf-splitter/internal/cache"
	"github.com/fyerfyer/pdf-splitter/internal/database"
	"github.com/fyerfyer/pdf-splitter/internal/repository"
	"github.com/fyerfyer/pdf-splitter/internal/services"
	"github.com/fyerfyer/pdf-splitter/pkg/storage"
	"github.com/fyerfyer/pdf-splitter/pkg/taskqueue"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// flags 命令行参数，显式设置的值覆盖配置文件
type flags struct {
	ConfigFile string // 配置文件路径
	EnvFile    string // .env 文件路径
	Port       int    // 服务端口
	Mode       string // 运行模式 (debug/release)
	LogLevel   string // 日志级别
	QueueType  string // 任务队列类型 (memory/redis)
}

func main() {
	f := parseFlags()

	// .env 中的变量供配置中的 ${VAR} 和 SPLITTER_ 前缀覆盖使用
	if err := godotenv.Load(f.EnvFile); err != nil && !os.IsNotExist(err) {
		logrus.Warnf("Failed to load env file %s: %v", f.EnvFile, err)
	}

	cfg, err := config.Load(f.ConfigFile)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	applyFlags(cfg, f)
	if err := config.Validate(cfg); err != nil {
		logrus.Fatalf("Invalid config: %v", err)
	}

	gin.SetMode(cfg.Server.Mode)

	logger := middleware.ConfigureLogger(cfg.Log)
	logger.Info("Starting PDF splitter...")

	if err := setupDatabase(cfg, logger); err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	fileStorage, err := setupStorage(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}

	splitter := services.NewSplitService(
		services.WithConcurrency(cfg.Split.Concurrency),
		services.WithScratchPrefix(cfg.Split.ScratchPrefix),
		services.WithSplitLogger(logger),
	)

	repo := repository.NewJobRepository()
	processor := services.NewJobProcessor(splitter, fileStorage, repo, logger)

	queue, worker, err := setupTaskQueue(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize task queue: %v", err)
	}
	defer queue.Close()

	for _, taskType := range processor.GetTaskTypes() {
		worker.RegisterHandler(taskType, processor)
	}
	if err := worker.Start(); err != nil {
		logger.Fatalf("Failed to start worker: %v", err)
	}

	jobOpts := []services.JobOption{services.WithJobLogger(logger)}
	if cfg.Cache.Enable {
		submissionCache, err := setupCache(cfg)
		if err != nil {
			logger.Fatalf("Failed to initialize cache: %v", err)
		}
		jobOpts = append(jobOpts, services.WithSubmissionCache(submissionCache, cfg.Cache.TTL))
	}
	jobs := services.NewJobService(splitter, fileStorage, repo, queue, jobOpts...)

	router := api.SetupRouter(cfg,
		handler.NewSplitHandler(splitter, cfg.Split),
		handler.NewJobHandler(jobs, cfg.Split),
	)

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 优雅关闭
	go func() {
		logger.Infof("Server is running on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}
	worker.Stop()

	logger.Info("Server exited")
}

// parseFlags 解析命令行参数
func parseFlags() flags {
	var f flags

	flag.StringVar(&f.ConfigFile, "config", "", "Path to config file")
	flag.StringVar(&f.EnvFile, "env-file", ".env", "Path to .env file")
	flag.IntVar(&f.Port, "port", 0, "Server port (overrides config)")
	flag.StringVar(&f.Mode, "mode", "", "Run mode debug/release (overrides config)")
	flag.StringVar(&f.LogLevel, "log-level", "", "Log level debug/info/warn/error (overrides config)")
	flag.StringVar(&f.QueueType, "queue-type", "", "Task queue type memory/redis (overrides config)")

	flag.Parse()
	return f
}

// applyFlags 用显式设置的命令行参数覆盖配置
func applyFlags(cfg *config.Config, f flags) {
	if f.Port != 0 {
		cfg.Server.Port = f.Port
	}
	if f.Mode != "" {
		cfg.Server.Mode = f.Mode
	}
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.QueueType != "" {
		cfg.Queue.Type = f.QueueType
	}
}

// setupDatabase 设置数据库
func setupDatabase(cfg *config.Config, logger *logrus.Logger) error {
	dbConfig := database.DefaultConfig()
	dbConfig.Type = cfg.Database.Type
	dbConfig.DSN = cfg.Database.DSN

	return database.Setup(dbConfig, logger)
}

// setupStorage 设置文件存储服务
func setupStorage(cfg *config.Config) (storage.Storage, error) {
	return storage.New(storage.Config{
		Type: cfg.Storage.Type,
		Local: storage.LocalConfig{
			Path: cfg.Storage.Path,
		},
		Minio: storage.MinioConfig{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
			Prefix:    cfg.Storage.Prefix,
		},
	})
}

// setupCache 设置重复提交检测使用的缓存
func setupCache(cfg *config.Config) (cache.Cache, error) {
	cacheConfig := cache.DefaultConfig()
	cacheConfig.Type = cfg.Cache.Type
	cacheConfig.RedisAddr = cfg.Cache.Address
	cacheConfig.RedisPassword = cfg.Cache.Password
	cacheConfig.RedisDB = cfg.Cache.DB
	if cfg.Cache.Prefix != "" {
		cacheConfig.KeyPrefix = cfg.Cache.Prefix
	}
	if cfg.Cache.TTL > 0 {
		cacheConfig.DefaultTTL = cfg.Cache.TTL
	}

	return cache.NewCache(cacheConfig)
}

// setupTaskQueue 设置任务队列和执行任务的工作者
// 未配置Redis时任务在进程内执行
func setupTaskQueue(cfg *config.Config, logger *logrus.Logger) (taskqueue.Queue, taskqueue.Worker, error) {
	queueConfig := taskqueue.DefaultConfig()
	queueConfig.RedisAddr = cfg.Queue.RedisAddr
	queueConfig.RedisPassword = cfg.Queue.RedisPassword
	queueConfig.RedisDB = cfg.Queue.RedisDB
	queueConfig.Concurrency = cfg.Queue.Concurrency
	queueConfig.RetryLimit = cfg.Queue.RetryLimit
	queueConfig.RetryDelay = cfg.Queue.RetryDelay
	queueConfig.TaskTimeout = cfg.Queue.TaskTimeout

	logger.WithFields(logrus.Fields{
		"type":        cfg.Queue.Type,
		"concurrency": queueConfig.Concurrency,
		"retry_limit": queueConfig.RetryLimit,
	}).Info("Setting up task queue")

	if cfg.Queue.Type == "redis" {
		queue, err := taskqueue.NewRedisQueue(queueConfig, taskqueue.WithQueueLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return queue, taskqueue.NewRedisWorker(queue, queueConfig), nil
	}

	queue := taskqueue.NewMemoryQueue(queueConfig, logger)
	return queue, queue, nil
}
