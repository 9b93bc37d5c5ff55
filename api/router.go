package api

import (
	"net/http"

	"github.com/fyerfyer/pdf-splitter/api/handler"
	"github.com/fyerfyer/pdf-splitter/api/middleware"
	"github.com/fyerfyer/pdf-splitter/config"
	"github.com/gin-gonic/gin"
)

// uploadSlack 表单字段和multipart边界占用的额外空间
const uploadSlack = 1 << 20

// SetupRouter 设置API路由
// 配置所有的API端点并应用中间件
func SetupRouter(
	cfg *config.Config,
	splitHandler *handler.SplitHandler,
	jobHandler *handler.JobHandler,
) *gin.Engine {
	router := gin.New()

	// 应用全局中间件
	router.Use(middleware.SetTraceID())
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorMiddleware())
	if cfg.CORS.Enable {
		router.Use(middleware.CORS(cfg.CORS))
	}
	router.Use(middleware.RequestLogger())

	// 一次请求最多携带PDF和映射表两个文件
	uploadLimit := middleware.BodyLimit(2*cfg.Split.MaxUploadBytes() + uploadSlack)

	// 同步拆分，直接返回压缩包
	router.POST("/split-pdf/", uploadLimit, splitHandler.SplitPDF)
	router.POST("/split-rename/", uploadLimit, splitHandler.SplitRename)

	api := router.Group("/api")
	{
		// 预览每页名称 - POST /api/preview
		api.POST("/preview", uploadLimit, splitHandler.Preview)

		// 异步拆分任务
		jobGroup := api.Group("/jobs")
		{
			// 提交任务 - POST /api/jobs
			jobGroup.POST("", uploadLimit, jobHandler.SubmitJob)

			// 任务列表 - GET /api/jobs
			jobGroup.GET("", jobHandler.ListJobs)

			// 任务状态 - GET /api/jobs/:id
			jobGroup.GET("/:id", jobHandler.GetJob)

			// 下载结果 - GET /api/jobs/:id/download
			jobGroup.GET("/:id/download", jobHandler.DownloadJob)

			// 删除任务 - DELETE /api/jobs/:id
			jobGroup.DELETE("/:id", jobHandler.DeleteJob)
		}

		// 健康检查API
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status": "ok",
			})
		})
	}

	return router
}
