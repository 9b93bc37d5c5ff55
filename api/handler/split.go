package handler

import (
	"net/http"

	"github.com/fyerfyer/pdf-splitter/api/middleware"
	"github.com/fyerfyer/pdf-splitter/api/model"
	"github.com/fyerfyer/pdf-splitter/config"
	"github.com/fyerfyer/pdf-splitter/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SplitHandler 处理同步拆分请求
type SplitHandler struct {
	splitter    *services.SplitService // 拆分服务
	archiveName string                 // 返回的压缩包文件名
	maxUpload   int64                  // 单个上传文件大小上限
	logger      *logrus.Logger         // 日志记录器
}

// NewSplitHandler 创建拆分处理器
func NewSplitHandler(splitter *services.SplitService, cfg config.SplitConfig) *SplitHandler {
	return &SplitHandler{
		splitter:    splitter,
		archiveName: cfg.ArchiveName,
		maxUpload:   cfg.MaxUploadBytes(),
		logger:      middleware.GetLogger(),
	}
}

// SplitPDF 按页拆分PDF并按匹配结果命名
// POST /split-pdf/
func (h *SplitHandler) SplitPDF(c *gin.Context) {
	var req model.SplitRequest
	if err := bindForm(c, &req); err != nil {
		middleware.HandleError(c, err)
		return
	}

	doc, err := readUpload(req.File, h.maxUpload)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	result, err := h.splitter.RunPlainSplit(c.Request.Context(), services.PlainSplitRequest{
		DocumentName: req.File.Filename,
		Document:     doc,
		Pattern:      req.Pattern,
	})
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"filename": req.File.Filename,
		"pages":    result.PageCount,
		"archive":  len(result.Archive),
		"trace_id": middleware.TraceID(c),
	}).Info("PDF split completed")

	attachment(c, h.archiveName, result.Archive)
}

// SplitRename 按页拆分PDF并通过映射表改名
// POST /split-rename/
func (h *SplitHandler) SplitRename(c *gin.Context) {
	var req model.SplitRenameRequest
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

	result, err := h.splitter.RunSplitAndRename(c.Request.Context(), services.RenameSplitRequest{
		DocumentName: req.File.Filename,
		Document:     doc,
		TableName:    req.Table.Filename,
		Table:        tbl,
		Pattern:      req.Pattern,
		KeyColumn:    req.KeyColumn,
		ValueColumn:  req.ValueColumn,
	})
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"filename": req.File.Filename,
		"table":    req.Table.Filename,
		"pages":    result.PageCount,
		"archive":  len(result.Archive),
		"trace_id": middleware.TraceID(c),
	}).Info("PDF split and rename completed")

	attachment(c, h.archiveName, result.Archive)
}

// Preview 返回每页的最终名称，不生成压缩包
// POST /api/preview
func (h *SplitHandler) Preview(c *gin.Context) {
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

	result, err := h.splitter.Preview(c.Request.Context(), services.RenameSplitRequest{
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

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.PreviewResponse{
		PageCount: result.PageCount,
		Names:     result.Names,
	}))
}
