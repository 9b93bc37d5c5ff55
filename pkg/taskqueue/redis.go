package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	// 任务键前缀
	taskKeyPrefix = "task:"
	// 拆分任务关联的队列任务集合键前缀
	jobTasksKeyPrefix = "job_tasks:"
	// 任务状态变更通知频道前缀
	taskStatusChannel = "task_status:"
	// 默认任务过期时间（7天）
	defaultTaskExpiry = 7 * 24 * time.Hour
)

// RedisQueue Redis任务队列实现
// asynq负责调度和重试，任务元数据单独保存在Redis中
type RedisQueue struct {
	client      *asynq.Client    // 用于添加任务
	inspector   *asynq.Inspector // 用于删除未执行的任务
	redisClient *redis.Client    // Redis客户端，用于存储任务数据
	cfg         *Config          // 队列配置
	logger      *logrus.Logger   // 日志记录器
}

// RedisOption Redis队列配置选项
type RedisOption func(*RedisQueue)

// WithQueueLogger 设置日志记录器
func WithQueueLogger(logger *logrus.Logger) RedisOption {
	return func(q *RedisQueue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// NewRedisQueue 创建Redis任务队列实例
func NewRedisQueue(cfg *Config, opts ...RedisOption) (*RedisQueue, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	// 测试Redis连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	opt := redisOpt(cfg)
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	q := &RedisQueue{
		client:      asynq.NewClient(opt),
		inspector:   asynq.NewInspector(opt),
		redisClient: redisClient,
		cfg:         cfg,
		logger:      logger,
	}
	for _, o := range opts {
		o(q)
	}
	return q, nil
}

func redisOpt(cfg *Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

// Enqueue 将任务加入队列
func (q *RedisQueue) Enqueue(ctx context.Context, taskType TaskType, jobID string, payload interface{}) (string, error) {
	return q.enqueue(ctx, taskType, jobID, payload)
}

// EnqueueIn 在指定延迟后将任务加入队列
func (q *RedisQueue) EnqueueIn(ctx context.Context, taskType TaskType, jobID string, payload interface{}, delay time.Duration) (string, error) {
	return q.enqueue(ctx, taskType, jobID, payload, asynq.ProcessIn(delay))
}

func (q *RedisQueue) enqueue(ctx context.Context, taskType TaskType, jobID string, payload interface{}, extra ...asynq.Option) (string, error) {
	payloadBytes, err := MarshalPayload(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	task := newTask(taskType, uuid.New().String(), jobID, payloadBytes, q.cfg.RetryLimit)
	if err := q.saveTask(ctx, task); err != nil {
		return "", fmt.Errorf("failed to save task to redis: %w", err)
	}

	opts := []asynq.Option{
		asynq.TaskID(task.ID),
		asynq.Queue(defaultQueue),
		asynq.MaxRetry(q.cfg.RetryLimit),
	}
	if q.cfg.TaskTimeout > 0 {
		opts = append(opts, asynq.Timeout(q.cfg.TaskTimeout))
	}
	opts = append(opts, extra...)

	// asynq任务只携带任务ID，载荷从任务元数据读取
	if _, err := q.client.EnqueueContext(ctx, asynq.NewTask(string(taskType), []byte(task.ID)), opts...); err != nil {
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}

	q.logger.WithFields(logrus.Fields{
		"task_id":   task.ID,
		"task_type": taskType,
		"job_id":    jobID,
	}).Info("Task enqueued successfully")

	return task.ID, nil
}

// GetTask 获取任务信息
func (q *RedisQueue) GetTask(ctx context.Context, taskID string) (*Task, error) {
	data, err := q.redisClient.Get(ctx, taskKeyPrefix+taskID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task from redis: %w", err)
	}

	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task data: %w", err)
	}
	return &task, nil
}

// GetTasksByJob 获取拆分任务相关的所有队列任务
func (q *RedisQueue) GetTasksByJob(ctx context.Context, jobID string) ([]*Task, error) {
	taskIDs, err := q.redisClient.SMembers(ctx, jobTasksKeyPrefix+jobID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get job tasks: %w", err)
	}

	tasks := make([]*Task, 0, len(taskIDs))
	for _, taskID := range taskIDs {
		task, err := q.GetTask(ctx, taskID)
		if err != nil {
			if errors.Is(err, ErrTaskNotFound) {
				// 任务可能已过期被删除，跳过
				continue
			}
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// WaitForTask 等待任务结束
// 订阅状态变更通知，同时定期轮询以防错过消息
func (q *RedisQueue) WaitForTask(ctx context.Context, taskID string, timeout time.Duration) (*Task, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	pubsub := q.redisClient.Subscribe(ctx, taskStatusChannel+taskID)
	defer pubsub.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		task, err := q.GetTask(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if task.Status.IsFinal() {
			return task, nil
		}

		select {
		case <-ctx.Done():
			return nil, ErrTaskTimeout
		case <-pubsub.Channel():
		case <-ticker.C:
		}
	}
}

// DeleteTask 删除任务
func (q *RedisQueue) DeleteTask(ctx context.Context, taskID string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	if task.JobID != "" {
		if err := q.redisClient.SRem(ctx, jobTasksKeyPrefix+task.JobID, taskID).Err(); err != nil {
			return fmt.Errorf("failed to remove task from job tasks: %w", err)
		}
	}

	if err := q.redisClient.Del(ctx, taskKeyPrefix+taskID).Err(); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	// 已在处理中的任务无法从asynq删除
	if err := q.inspector.DeleteTask(defaultQueue, taskID); err != nil {
		q.logger.WithError(err).WithField("task_id", taskID).Debug("Task not deleted from asynq queue")
	}
	return nil
}

// UpdateTaskStatus 更新任务状态并发布通知
func (q *RedisQueue) UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus, errMsg string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	applyStatus(task, status, errMsg)
	if err := q.saveTask(ctx, task); err != nil {
		return err
	}

	if err := q.redisClient.Publish(ctx, taskStatusChannel+taskID, string(status)).Err(); err != nil {
		q.logger.WithError(err).WithField("task_id", taskID).Warn("Failed to publish task status")
	}
	return nil
}

// Close 关闭队列连接
func (q *RedisQueue) Close() error {
	var errs []error
	if err := q.client.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := q.inspector.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := q.redisClient.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// saveTask 将任务信息保存到Redis
func (q *RedisQueue) saveTask(ctx context.Context, task *Task) error {
	taskData, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	pipe := q.redisClient.TxPipeline()
	pipe.Set(ctx, taskKeyPrefix+task.ID, taskData, defaultTaskExpiry)
	if task.JobID != "" {
		key := jobTasksKeyPrefix + task.JobID
		pipe.SAdd(ctx, key, task.ID)
		pipe.Expire(ctx, key, defaultTaskExpiry)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save task data: %w", err)
	}
	return nil
}

// RedisWorker Redis工作者实现
type RedisWorker struct {
	server   *asynq.Server
	queue    *RedisQueue
	handlers map[TaskType]Handler
	logger   *logrus.Logger
}

// NewRedisWorker 创建Redis工作者
func NewRedisWorker(queue *RedisQueue, cfg *Config) *RedisWorker {
	if cfg == nil {
		cfg = queue.cfg
	}

	retryDelay := cfg.RetryDelay
	server := asynq.NewServer(redisOpt(cfg), asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      cfg.Queues,
		RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
			return retryDelay * time.Duration(n+1)
		},
		Logger: queue.logger,
	})

	return &RedisWorker{
		server:   server,
		queue:    queue,
		handlers: make(map[TaskType]Handler),
		logger:   queue.logger,
	}
}

// RegisterHandler 注册任务处理器
func (w *RedisWorker) RegisterHandler(taskType TaskType, handler Handler) {
	w.handlers[taskType] = handler
}

// Start 启动工作者
func (w *RedisWorker) Start() error {
	mux := asynq.NewServeMux()

	for taskType, handler := range w.handlers {
		h := handler
		mux.HandleFunc(string(taskType), func(ctx context.Context, t *asynq.Task) error {
			taskID := string(t.Payload())

			task, err := w.queue.GetTask(ctx, taskID)
			if err != nil {
				w.logger.WithError(err).WithField("task_id", taskID).Error("Failed to get task info")
				if errors.Is(err, ErrTaskNotFound) {
					return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
				}
				return err
			}

			if err := runTask(ctx, w.queue, h, task, w.logger); err != nil {
				if IsPermanent(err) {
					return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
				}
				return err
			}
			return nil
		})

		w.logger.WithField("task_type", taskType).Info("Registered handler for task type")
	}

	return w.server.Start(mux)
}

// Stop 停止工作者
func (w *RedisWorker) Stop() {
	w.server.Shutdown()
}

var (
	_ Queue  = (*RedisQueue)(nil)
	_ Worker = (*RedisWorker)(nil)
)

func init() {
	RegisterQueueFactory("redis", func(cfg *Config) (Queue, error) {
		return NewRedisQueue(cfg)
	})
}
