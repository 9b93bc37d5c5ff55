package taskqueue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MemoryQueue 进程内任务队列
// 同时实现 Queue 和 Worker，未配置Redis时用于在后台执行拆分任务
type MemoryQueue struct {
	mu       sync.Mutex
	tasks    map[string]*Task
	byJob    map[string][]string
	handlers map[TaskType]Handler
	backlog  []string      // Start 之前入队的任务
	changed  chan struct{} // 任意任务状态变化时关闭并替换

	cfg     *Config
	sem     chan struct{}
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  *logrus.Logger
}

// NewMemoryQueue 创建进程内队列
func NewMemoryQueue(cfg *Config, logger *logrus.Logger) *MemoryQueue {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &MemoryQueue{
		tasks:    make(map[string]*Task),
		byJob:    make(map[string][]string),
		handlers: make(map[TaskType]Handler),
		changed:  make(chan struct{}),
		cfg:      cfg,
		sem:      make(chan struct{}, concurrency),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
	}
}

// RegisterHandler 注册任务处理器
func (q *MemoryQueue) RegisterHandler(taskType TaskType, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[taskType] = handler
}

// Start 开始执行任务，包括启动前已入队的任务
func (q *MemoryQueue) Start() error {
	q.mu.Lock()
	q.started = true
	backlog := q.backlog
	q.backlog = nil
	q.mu.Unlock()

	for _, id := range backlog {
		q.dispatch(id, 0)
	}
	return nil
}

// Stop 停止执行并等待正在处理的任务返回
func (q *MemoryQueue) Stop() {
	q.cancel()
	q.wg.Wait()
}

// Enqueue 将任务加入队列
func (q *MemoryQueue) Enqueue(ctx context.Context, taskType TaskType, jobID string, payload interface{}) (string, error) {
	return q.EnqueueIn(ctx, taskType, jobID, payload, 0)
}

// EnqueueIn 在指定延迟后执行任务
func (q *MemoryQueue) EnqueueIn(ctx context.Context, taskType TaskType, jobID string, payload interface{}, delay time.Duration) (string, error) {
	payloadBytes, err := MarshalPayload(payload)
	if err != nil {
		return "", err
	}

	task := newTask(taskType, uuid.New().String(), jobID, payloadBytes, q.cfg.RetryLimit)

	q.mu.Lock()
	q.tasks[task.ID] = task
	if jobID != "" {
		q.byJob[jobID] = append(q.byJob[jobID], task.ID)
	}
	started := q.started
	if !started {
		q.backlog = append(q.backlog, task.ID)
	}
	q.mu.Unlock()

	if started {
		q.dispatch(task.ID, delay)
	}

	q.logger.WithFields(logrus.Fields{
		"task_id":   task.ID,
		"task_type": taskType,
		"job_id":    jobID,
	}).Debug("Task enqueued in memory")

	return task.ID, nil
}

// dispatch 在后台执行任务，失败时按重试配置再次执行
func (q *MemoryQueue) dispatch(taskID string, delay time.Duration) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()

		for {
			if delay > 0 {
				select {
				case <-q.ctx.Done():
					return
				case <-time.After(delay):
				}
			}

			select {
			case <-q.ctx.Done():
				return
			case q.sem <- struct{}{}:
			}

			retry := q.runOnce(taskID)
			<-q.sem

			if !retry {
				return
			}
			delay = q.cfg.RetryDelay
		}
	}()
}

// runOnce 执行一次任务，返回是否需要重试
func (q *MemoryQueue) runOnce(taskID string) bool {
	task, err := q.GetTask(q.ctx, taskID)
	if err != nil {
		return false
	}

	q.mu.Lock()
	h, ok := q.handlers[task.Type]
	q.mu.Unlock()
	if !ok {
		q.UpdateTaskStatus(q.ctx, taskID, StatusFailed, "no handler registered for "+string(task.Type))
		return false
	}

	ctx := q.ctx
	if q.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.cfg.TaskTimeout)
		defer cancel()
	}

	if err := runTask(ctx, q, h, task, q.logger); err != nil {
		current, gerr := q.GetTask(q.ctx, taskID)
		return gerr == nil && current.Status == StatusPending && q.ctx.Err() == nil
	}
	return false
}

// GetTask 获取任务信息的副本
func (q *MemoryQueue) GetTask(_ context.Context, taskID string) (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	copied := *task
	return &copied, nil
}

// GetTasksByJob 获取拆分任务相关的所有队列任务
func (q *MemoryQueue) GetTasksByJob(ctx context.Context, jobID string) ([]*Task, error) {
	q.mu.Lock()
	ids := append([]string(nil), q.byJob[jobID]...)
	q.mu.Unlock()

	tasks := make([]*Task, 0, len(ids))
	for _, id := range ids {
		if task, err := q.GetTask(ctx, id); err == nil {
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

// WaitForTask 等待任务结束
func (q *MemoryQueue) WaitForTask(ctx context.Context, taskID string, timeout time.Duration) (*Task, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	for {
		q.mu.Lock()
		task, ok := q.tasks[taskID]
		if !ok {
			q.mu.Unlock()
			return nil, ErrTaskNotFound
		}
		copied := *task
		changed := q.changed
		q.mu.Unlock()

		if copied.Status.IsFinal() {
			return &copied, nil
		}

		select {
		case <-ctx.Done():
			return nil, ErrTaskTimeout
		case <-changed:
		}
	}
}

// DeleteTask 删除任务记录，正在执行的任务不会被中断
func (q *MemoryQueue) DeleteTask(_ context.Context, taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	delete(q.tasks, taskID)

	ids := q.byJob[task.JobID]
	for i, id := range ids {
		if id == taskID {
			q.byJob[task.JobID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(q.byJob[task.JobID]) == 0 {
		delete(q.byJob, task.JobID)
	}
	return nil
}

// UpdateTaskStatus 更新任务状态并唤醒等待者
func (q *MemoryQueue) UpdateTaskStatus(_ context.Context, taskID string, status TaskStatus, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	applyStatus(task, status, errMsg)

	close(q.changed)
	q.changed = make(chan struct{})
	return nil
}

// Close 停止执行
func (q *MemoryQueue) Close() error {
	q.Stop()
	return nil
}

var (
	_ Queue  = (*MemoryQueue)(nil)
	_ Worker = (*MemoryQueue)(nil)
)
