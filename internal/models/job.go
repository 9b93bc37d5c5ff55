package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// JobStatus 拆分任务状态
type JobStatus string

const (
	// JobStatusPending 已提交，等待处理
	JobStatusPending JobStatus = "pending"
	// JobStatusProcessing 处理中
	JobStatusProcessing JobStatus = "processing"
	// JobStatusCompleted 处理完成，压缩包可下载
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed 处理失败
	JobStatusFailed JobStatus = "failed"
)

// JobMode 拆分方式
type JobMode string

const (
	// ModePlain 只按提取的标识命名
	ModePlain JobMode = "plain"
	// ModeRename 提取标识后再通过映射表改名
	ModeRename JobMode = "rename"
)

// SplitJob 异步拆分任务记录
type SplitJob struct {
	ID          string         `gorm:"primaryKey"`             // 任务ID，主键
	Mode        JobMode        `gorm:"size:20;not null"`       // 拆分方式
	FileName    string         `gorm:"not null"`               // 上传的PDF文件名
	DocumentID  string         `gorm:"size:64;not null"`       // PDF在存储中的ID
	TableFile   string         `gorm:"size:255"`               // 映射表文件名（rename模式）
	TableID     string         `gorm:"size:64"`                // 映射表在存储中的ID
	Pattern     string         `gorm:"type:text;not null"`     // 匹配规则
	KeyColumn   string         `gorm:"size:255"`               // 映射表键列
	ValueColumn string         `gorm:"size:255"`               // 映射表值列
	Status      JobStatus      `gorm:"size:20;not null;index"` // 任务状态
	ErrorKind   string         `gorm:"size:50"`                // 失败时的错误类型
	Error       string         `gorm:"type:text"`              // 失败时的错误信息
	PageCount   int            `gorm:"not null;default:0"`     // 页数
	Names       datatypes.JSON `gorm:"type:json"`              // 每页的最终名称，按页顺序
	ArchiveID   string         `gorm:"size:64"`                // 结果压缩包在存储中的ID
	ArchiveSize int64          `gorm:"default:0"`              // 结果压缩包大小
	TaskID      string         `gorm:"size:64;index"`          // 队列中的任务ID
	CreatedAt   time.Time      `gorm:"not null;index"`         // 创建时间
	UpdatedAt   time.Time      `gorm:"not null"`               // 更新时间
	StartedAt   *time.Time     `gorm:""`                       // 开始处理时间
	CompletedAt *time.Time     `gorm:""`                       // 结束时间
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (j *SplitJob) BeforeCreate(tx *gorm.DB) (err error) {
	now := time.Now()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	if j.Status == "" {
		j.Status = JobStatusPending
	}
	return nil
}

// BeforeUpdate GORM的钩子函数，更新记录前自动设置更新时间
func (j *SplitJob) BeforeUpdate(tx *gorm.DB) (err error) {
	j.UpdatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (SplitJob) TableName() string {
	return "split_jobs"
}

// IsFinished 任务是否已经结束
func (j *SplitJob) IsFinished() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
