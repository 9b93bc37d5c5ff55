package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fyerfyer/pdf-splitter/internal/database"
	"github.com/fyerfyer/pdf-splitter/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// jobRepository 任务仓储实现
type jobRepository struct {
	db *gorm.DB // 数据库连接
}

// NewJobRepository 使用全局数据库连接创建任务仓储
func NewJobRepository() JobRepository {
	return &jobRepository{db: database.MustDB()}
}

// NewJobRepositoryWithDB 使用指定的数据库连接创建任务仓储
func NewJobRepositoryWithDB(db *gorm.DB) JobRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &jobRepository{db: db}
}

// Create 创建任务记录
func (r *jobRepository) Create(ctx context.Context, job *models.SplitJob) error {
	if job.ID == "" {
		return errors.New("job ID cannot be empty")
	}
	return r.db.WithContext(ctx).Create(job).Error
}

// GetByID 根据ID获取任务
func (r *jobRepository) GetByID(ctx context.Context, id string) (*models.SplitJob, error) {
	var job models.SplitJob
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrJobNotFound, id)
		}
		return nil, err
	}
	return &job, nil
}

// List 分页列出任务
func (r *jobRepository) List(ctx context.Context, offset, limit int, status models.JobStatus) ([]*models.SplitJob, int64, error) {
	var jobs []*models.SplitJob
	var total int64

	query := r.db.WithContext(ctx).Model(&models.SplitJob{})
	if status != "" {
		query = query.Where("status = ?", string(status))
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Order("created_at DESC").Find(&jobs).Error; err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

// SetTaskID 记录队列任务ID
func (r *jobRepository) SetTaskID(ctx context.Context, id, taskID string) error {
	return r.transition(ctx, id, nil, map[string]interface{}{
		"task_id": taskID,
	})
}

// MarkProcessing 标记任务开始处理
func (r *jobRepository) MarkProcessing(ctx context.Context, id string) error {
	now := time.Now()
	return r.transition(ctx, id,
		[]models.JobStatus{models.JobStatusPending, models.JobStatusProcessing},
		map[string]interface{}{
			"status":     models.JobStatusProcessing,
			"started_at": &now,
		})
}

// MarkCompleted 标记任务完成
func (r *jobRepository) MarkCompleted(ctx context.Context, id string, result JobResult) error {
	names, err := json.Marshal(result.Names)
	if err != nil {
		return fmt.Errorf("failed to encode page names: %w", err)
	}

	now := time.Now()
	return r.transition(ctx, id,
		[]models.JobStatus{models.JobStatusPending, models.JobStatusProcessing},
		map[string]interface{}{
			"status":       models.JobStatusCompleted,
			"page_count":   result.PageCount,
			"names":        datatypes.JSON(names),
			"archive_id":   result.ArchiveID,
			"archive_size": result.ArchiveSize,
			"error_kind":   "",
			"error":        "",
			"completed_at": &now,
		})
}

// MarkFailed 标记任务失败
func (r *jobRepository) MarkFailed(ctx context.Context, id string, kind models.ErrorKind, message string) error {
	now := time.Now()
	return r.transition(ctx, id,
		[]models.JobStatus{models.JobStatusPending, models.JobStatusProcessing},
		map[string]interface{}{
			"status":       models.JobStatusFailed,
			"error_kind":   string(kind),
			"error":        message,
			"completed_at": &now,
		})
}

// Delete 删除任务记录
func (r *jobRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.SplitJob{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", models.ErrJobNotFound, id)
	}
	return nil
}

// transition 在状态满足条件时更新记录，from为空时不检查状态
func (r *jobRepository) transition(ctx context.Context, id string, from []models.JobStatus, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()

	query := r.db.WithContext(ctx).Model(&models.SplitJob{}).Where("id = ?", id)
	if len(from) > 0 {
		query = query.Where("status IN ?", from)
	}

	result := query.Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	// 区分记录不存在和状态不允许
	job, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: job %s is %s", models.ErrInvalidJobStatus, id, job.Status)
}
