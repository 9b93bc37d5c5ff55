package model

import (
	"mime/multipart"
)

// PaginationRequest 分页请求参数
type PaginationRequest struct {
	Page     int `form:"page" json:"page" binding:"omitempty,min=1"`           // 当前页码，从1开始
	PageSize int `form:"page_size" json:"page_size" binding:"omitempty,min=1"` // 每页记录数
}

// GetPage 获取页码，默认为1
func (p *PaginationRequest) GetPage() int {
	if p.Page <= 0 {
		return 1
	}
	return p.Page
}

// GetPageSize 获取每页记录数，默认为10，最大为100
func (p *PaginationRequest) GetPageSize() int {
	if p.PageSize <= 0 {
		return 10
	}
	if p.PageSize > 100 {
		return 100
	}
	return p.PageSize
}

// SplitRequest 普通拆分请求
type SplitRequest struct {
	File    *multipart.FileHeader `form:"file" binding:"required"`    // PDF文件
	Pattern string                `form:"pattern" binding:"required"` // 匹配规则，需包含一个捕获组
}

// SplitRenameRequest 拆分并按映射表改名的请求
type SplitRenameRequest struct {
	File        *multipart.FileHeader `form:"file" binding:"required"`         // PDF文件
	Table       *multipart.FileHeader `form:"table" binding:"required"`        // 映射表，.xlsx 或 .xls
	Pattern     string                `form:"pattern" binding:"required"`      // 匹配规则
	KeyColumn   string                `form:"key_column" binding:"required"`   // 键列名称
	ValueColumn string                `form:"value_column" binding:"required"` // 值列名称
}

// SplitJobRequest 预览或异步任务请求，映射表可选
type SplitJobRequest struct {
	File        *multipart.FileHeader `form:"file" binding:"required"`                    // PDF文件
	Table       *multipart.FileHeader `form:"table"`                                      // 可选的映射表
	Pattern     string                `form:"pattern" binding:"required"`                 // 匹配规则
	KeyColumn   string                `form:"key_column" binding:"required_with=Table"`   // 键列名称，提供映射表时必填
	ValueColumn string                `form:"value_column" binding:"required_with=Table"` // 值列名称，提供映射表时必填
}

// JobURIRequest 任务路径参数
type JobURIRequest struct {
	ID string `uri:"id" binding:"required"` // 任务ID
}

// JobListRequest 任务列表请求
type JobListRequest struct {
	PaginationRequest
	Status string `form:"status" json:"status" binding:"omitempty,oneof=pending processing completed failed"` // 任务状态过滤
}
