package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fyerfyer/pdf-splitter/internal/cache"
	"github.com/fyerfyer/pdf-splitter/internal/models"
	"github.com/fyerfyer/pdf-splitter/pkg/taskqueue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockQueue 记录调用的任务队列
type mockQueue struct {
	mock.Mock
}

func (m *mockQueue) Enqueue(ctx context.Context, taskType taskqueue.TaskType, jobID string, payload interface{}) (string, error) {
	args := m.Called(ctx, taskType, jobID, payload)
	return args.String(0), args.Error(1)
}

func (m *mockQueue) EnqueueIn(ctx context.Context, taskType taskqueue.TaskType, jobID string, payload interface{}, delay time.Duration) (string, error) {
	args := m.Called(ctx, taskType, jobID, payload, delay)
	return args.String(0), args.Error(1)
}

func (m *mockQueue) GetTask(ctx context.Context, taskID string) (*taskqueue.Task, error) {
	args := m.Called(ctx, taskID)
	task, _ := args.Get(0).(*taskqueue.Task)
	return task, args.Error(1)
}

func (m *mockQueue) GetTasksByJob(ctx context.Context, jobID string) ([]*taskqueue.Task, error) {
	args := m.Called(ctx, jobID)
	tasks, _ := args.Get(0).([]*taskqueue.Task)
	return tasks, args.Error(1)
}

func (m *mockQueue) WaitForTask(ctx context.Context, taskID string, timeout time.Duration) (*taskqueue.Task, error) {
	args := m.Called(ctx, taskID, timeout)
	task, _ := args.Get(0).(*taskqueue.Task)
	return task, args.Error(1)
}

func (m *mockQueue) DeleteTask(ctx context.Context, taskID string) error {
	return m.Called(ctx, taskID).Error(0)
}

func (m *mockQueue) UpdateTaskStatus(ctx context.Context, taskID string, status taskqueue.TaskStatus, errorMsg string) error {
	return m.Called(ctx, taskID, status, errorMsg).Error(0)
}

func (m *mockQueue) Close() error {
	return m.Called().Error(0)
}

func TestJobServiceEnqueueFailure(t *testing.T) {
	env := setupJobTestEnv(t)
	ctx := context.Background()

	memCache, err := cache.NewMemoryCache(cache.DefaultConfig())
	require.NoError(t, err)

	queue := new(mockQueue)
	queue.On("Enqueue", mock.Anything, taskqueue.TaskSplitPlain, mock.AnythingOfType("string"), mock.Anything).
		Return("", errors.New("redis unavailable")).Once()
	queue.On("Enqueue", mock.Anything, taskqueue.TaskSplitPlain, mock.AnythingOfType("string"), mock.Anything).
		Return("task-2", nil).Once()

	jobs := NewJobService(NewSplitService(), env.store, env.repo, queue, WithSubmissionCache(memCache, time.Minute))

	req := SubmitJobRequest{
		DocumentName: "a.pdf",
		Document:     buildPDF(t, "ID:1"),
		Pattern:      `ID:(\d+)`,
	}

	_, _, err = jobs.Submit(ctx, req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to enqueue job")

	failed, total, err := jobs.List(ctx, 1, 10, models.JobStatusFailed)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, string(models.KindInternal), failed[0].ErrorKind)

	// 入队失败后释放了提交记录，再次提交会创建新任务
	job, reused, err := jobs.Submit(ctx, req)
	require.NoError(t, err)
	assert.False(t, reused)
	assert.Equal(t, "task-2", job.TaskID)
	assert.NotEqual(t, failed[0].ID, job.ID)

	queue.AssertExpectations(t)
}

func TestJobServiceDeleteRemovesQueuedTasks(t *testing.T) {
	env := setupJobTestEnv(t)
	ctx := context.Background()

	queue := new(mockQueue)
	queue.On("Enqueue", mock.Anything, taskqueue.TaskSplitPlain, mock.AnythingOfType("string"), mock.Anything).
		Return("task-1", nil).Once()

	jobs := NewJobService(NewSplitService(), env.store, env.repo, queue)

	job, _, err := jobs.Submit(ctx, SubmitJobRequest{
		DocumentName: "a.pdf",
		Document:     buildPDF(t, "ID:1"),
		Pattern:      `ID:(\d+)`,
	})
	require.NoError(t, err)

	queue.On("GetTasksByJob", mock.Anything, job.ID).
		Return([]*taskqueue.Task{{ID: "task-1"}, {ID: "task-retry"}}, nil).Once()
	queue.On("DeleteTask", mock.Anything, "task-1").Return(nil).Once()
	queue.On("DeleteTask", mock.Anything, "task-retry").Return(errors.New("already gone")).Once()

	require.NoError(t, jobs.Delete(ctx, job.ID))

	_, err = jobs.Get(ctx, job.ID)
	assert.ErrorIs(t, err, models.ErrJobNotFound)

	exists, err := env.store.Exists(ctx, job.DocumentID)
	require.NoError(t, err)
	assert.False(t, exists)

	queue.AssertExpectations(t)
}
