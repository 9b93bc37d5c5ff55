package taskqueue

import (
	"encoding/json"
	"time"
)

// TaskType 任务类型
type TaskType string

const (
	// TaskSplitPlain 普通拆分任务
	TaskSplitPlain TaskType = "split:plain"
	// TaskSplitRename 拆分并按映射表改名任务
	TaskSplitRename TaskType = "split:rename"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	// StatusPending 等待处理
	StatusPending TaskStatus = "pending"
	// StatusProcessing 处理中
	StatusProcessing TaskStatus = "processing"
	// StatusCompleted 已完成
	StatusCompleted TaskStatus = "completed"
	// StatusFailed 处理失败
	StatusFailed TaskStatus = "failed"
)

// IsFinal 状态是否为终态
func (s TaskStatus) IsFinal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task 任务基础结构
type Task struct {
	ID          string          `json:"id"`           // 任务唯一标识符
	Type        TaskType        `json:"type"`         // 任务类型
	JobID       string          `json:"job_id"`       // 关联的拆分任务ID
	Status      TaskStatus      `json:"status"`       // 任务状态
	Payload     json.RawMessage `json:"payload"`      // 任务载荷数据
	Error       string          `json:"error"`        // 错误信息（如果处理失败）
	CreatedAt   time.Time       `json:"created_at"`   // 创建时间
	UpdatedAt   time.Time       `json:"updated_at"`   // 更新时间
	StartedAt   *time.Time      `json:"started_at"`   // 开始处理时间
	CompletedAt *time.Time      `json:"completed_at"` // 完成时间
	Attempts    int             `json:"attempts"`     // 尝试次数
	MaxRetries  int             `json:"max_retries"`  // 最大重试次数
}

// SplitPayload 拆分任务载荷
// 输入文件已经保存在存储中，载荷只携带ID和参数
type SplitPayload struct {
	JobID        string `json:"job_id"`                 // 拆分任务ID
	DocumentID   string `json:"document_id"`            // PDF在存储中的ID
	DocumentName string `json:"document_name"`          // PDF文件名
	TableID      string `json:"table_id,omitempty"`     // 映射表在存储中的ID
	TableName    string `json:"table_name,omitempty"`   // 映射表文件名
	Pattern      string `json:"pattern"`                // 匹配规则
	KeyColumn    string `json:"key_column,omitempty"`   // 键列
	ValueColumn  string `json:"value_column,omitempty"` // 值列
}

// TaskTypeFor 根据是否带映射表选择任务类型
func (p SplitPayload) TaskTypeFor() TaskType {
	if p.TableID != "" {
		return TaskSplitRename
	}
	return TaskSplitPlain
}
