package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/fyerfyer/pdf-splitter/api/middleware"
	"github.com/fyerfyer/pdf-splitter/api/model"
	"github.com/fyerfyer/pdf-splitter/config"
	"github.com/fyerfyer/pdf-splitter/internal/models"
	"github.com/fyerfyer/pdf-splitter/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// JobHandler 处理异步拆分任务的API请求
type JobHandler struct {
	jobs      *services.JobService // 任务服务
	maxUpload int64                // 单个上传文件大小上限
	logger    *logrus.Logger       // 日志记录器
}

// NewJobHandler 创建任务处理器
func NewJobHandler(jobs *services.JobService, cfg config.SplitConfig) *JobHandler {
	return &JobHandler{
		jobs:      jobs,
		maxUpload: cfg.MaxUploadBytes(),
		logger:    middleware.GetLogger(),
	}
}

// SubmitJob 提交异步拆分任务
// POST /api/jobs
func (h *JobHandler) SubmitJob(c *gin.Context) {
	var req model.SplitJobRequest
	if err := bindForm(c, &req); err != nil {
		middleware.HandleError(c, err)
		return
	}

	doc, err := readUpload(req.File, h.maxUpload)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	tbl, err := readUpload(req.Table, h.maxUpload)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	job, reused, err := h.jobs.Submit(c.Request.Context(), services.SubmitJobRequest{
		DocumentName: req.File.Filename,
		Document:     doc,
		TableName:    fileName(req.Table),
		Table:        tbl,
		Pattern:      req.Pattern,
		KeyColumn:    req.KeyColumn,
		ValueColumn:  req.ValueColumn,
	})
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	status := http.StatusAccepted
	if reused {
		status = http.StatusOK
	}
	c.JSON(status, model.NewSuccessResponse(model.JobSubmitResponse{
		JobInfo: toJobInfo(job),
		Reused:  reused,
	}))
}

// GetJob 获取任务状态
// GET /api/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	var req model.JobURIRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid job id", err.Error()))
		return
	}

	job, err := h.jobs.Get(c.Request.Context(), req.ID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(toJobInfo(job)))
}

// ListJobs 分页列出任务
// GET /api/jobs
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req model.JobListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid query parameters", err.Error()))
		return
	}

	page, pageSize := req.GetPage(), req.GetPageSize()
	jobs, total, err := h.jobs.List(c.Request.Context(), page, pageSize, models.JobStatus(req.Status))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	infos := make([]model.JobInfo, 0, len(jobs))
	for _, job := range jobs {
		infos = append(infos, toJobInfo(job))
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.JobListResponse{
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Jobs:     infos,
	}))
}

// DownloadJob 下载已完成任务的压缩包，未完成时返回409
// GET /api/jobs/:id/download
func (h *JobHandler) DownloadJob(c *gin.Context) {
	var req model.JobURIRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid job id", err.Error()))
		return
	}

	job, rc, err := h.jobs.OpenArchive(c.Request.Context(), req.ID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, job.ArchiveSize, "application/zip", rc, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, archiveFileName(job.FileName)),
	})
}

// DeleteJob 删除任务及其文件
// DELETE /api/jobs/:id
func (h *JobHandler) DeleteJob(c *gin.Context) {
	var req model.JobURIRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid job id", err.Error()))
		return
	}

	if err := h.jobs.Delete(c.Request.Context(), req.ID); err != nil {
		middleware.HandleError(c, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"job_id":   req.ID,
		"trace_id": middleware.TraceID(c),
	}).Info("Job deleted via API")

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.JobDeleteResponse{
		Success: true,
		JobID:   req.ID,
	}))
}

// archiveFileName 由上传的PDF文件名得到下载文件名
func archiveFileName(documentName string) string {
	base := strings.TrimSuffix(documentName, ".pdf")
	base = strings.TrimSuffix(base, ".PDF")
	if base == "" {
		base = "document"
	}
	return strings.ReplaceAll(base, `"`, "") + "_split.zip"
}

func toJobInfo(job *models.SplitJob) model.JobInfo {
	return model.JobInfo{
		JobID:       job.ID,
		Mode:        string(job.Mode),
		FileName:    job.FileName,
		TableName:   job.TableFile,
		Pattern:     job.Pattern,
		Status:      string(job.Status),
		ErrorKind:   job.ErrorKind,
		Error:       job.Error,
		PageCount:   job.PageCount,
		Names:       services.JobNames(job),
		ArchiveSize: job.ArchiveSize,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
		CompletedAt: job.CompletedAt,
	}
}
