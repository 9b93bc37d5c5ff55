package repository

import (
	"context"

	"github.com/fyerfyer/pdf-splitter/internal/models"
)

// JobResult 任务完成时记录的结果
type JobResult struct {
	PageCount   int      // 页数
	Names       []string // 每页的最终名称
	ArchiveID   string   // 压缩包在存储中的ID
	ArchiveSize int64    // 压缩包大小
}

// JobRepository 拆分任务仓储接口
// 负责任务记录的存储、检索和状态流转
type JobRepository interface {
	// Create 创建任务记录
	Create(ctx context.Context, job *models.SplitJob) error

	// GetByID 根据ID获取任务，不存在时返回 models.ErrJobNotFound
	GetByID(ctx context.Context, id string) (*models.SplitJob, error)

	// List 分页列出任务，status为空时不过滤，按创建时间倒序
	List(ctx context.Context, offset, limit int, status models.JobStatus) ([]*models.SplitJob, int64, error)

	// SetTaskID 记录队列任务ID
	SetTaskID(ctx context.Context, id, taskID string) error

	// MarkProcessing 标记任务开始处理，只允许从 pending 或 processing（重试）进入
	MarkProcessing(ctx context.Context, id string) error

	// MarkCompleted 标记任务完成并记录结果
	MarkCompleted(ctx context.Context, id string, result JobResult) error

	// MarkFailed 标记任务失败
	MarkFailed(ctx context.Context, id string, kind models.ErrorKind, message string) error

	// Delete 删除任务记录
	Delete(ctx context.Context, id string) error
}
