package model

import (
	"time"
)

// Response 通用响应结构
type Response struct {
	Code      int         `json:"code"`                 // 响应状态码，0表示成功
	Message   string      `json:"message"`              // 响应消息
	ErrorKind string      `json:"error_kind,omitempty"` // 流水线错误类型
	Data      interface{} `json:"data,omitempty"`       // 响应数据，可能为空
	TraceID   string      `json:"trace_id,omitempty"`   // 调用链追踪ID
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) *Response {
	return &Response{
		Code:    code,
		Message: message,
	}
}

// PreviewResponse 预览响应
type PreviewResponse struct {
	PageCount int      `json:"page_count"` // 页数
	Names     []string `json:"names"`      // 每页的最终名称，按页顺序
}

// JobInfo 拆分任务信息
type JobInfo struct {
	JobID       string     `json:"job_id"`                 // 任务ID
	Mode        string     `json:"mode"`                   // plain 或 rename
	FileName    string     `json:"filename"`               // 上传的PDF文件名
	TableName   string     `json:"table,omitempty"`        // 映射表文件名
	Pattern     string     `json:"pattern"`                // 匹配规则
	Status      string     `json:"status"`                 // 任务状态
	ErrorKind   string     `json:"error_kind,omitempty"`   // 失败时的错误类型
	Error       string     `json:"error,omitempty"`        // 失败时的错误信息
	PageCount   int        `json:"page_count"`             // 页数
	Names       []string   `json:"names,omitempty"`        // 每页名称
	ArchiveSize int64      `json:"archive_size,omitempty"` // 压缩包大小
	CreatedAt   time.Time  `json:"created_at"`             // 创建时间
	UpdatedAt   time.Time  `json:"updated_at"`             // 更新时间
	CompletedAt *time.Time `json:"completed_at,omitempty"` // 结束时间
}

// JobSubmitResponse 任务提交响应
type JobSubmitResponse struct {
	JobInfo
	Reused bool `json:"reused"` // 是否复用了相同输入的已有任务
}

// JobListResponse 任务列表响应
type JobListResponse struct {
	Total    int64     `json:"total"`     // 总数量
	Page     int       `json:"page"`      // 当前页码
	PageSize int       `json:"page_size"` // 每页大小
	Jobs     []JobInfo `json:"jobs"`      // 任务列表
}

// JobDeleteResponse 任务删除响应
type JobDeleteResponse struct {
	Success bool   `json:"success"` // 是否成功
	JobID   string `json:"job_id"`  // 任务ID
}
