package middleware

import (
	"bytes"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fyerfyer/pdf-splitter/config"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var log = logrus.New()

// 初始化日志配置
func init() {
	// 设置输出到标准输出
	log.SetOutput(os.Stdout)
	// 设置日志格式为JSON格式
	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})

	// 根据环境变量设置日志级别
	if os.Getenv("DEBUG") == "true" {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
}

// TraceIDHeader 请求追踪ID的头部名称
const TraceIDHeader = "X-Trace-ID"

// traceIDKey 追踪ID在gin上下文中的键
const traceIDKey = "TraceID"

// 常用日志字段
const (
	FieldTraceID  = "trace_id"    // 追踪ID
	FieldPath     = "path"        // 请求路径
	FieldMethod   = "method"      // 请求方法
	FieldStatus   = "status_code" // 状态码
	FieldLatency  = "latency"     // 延迟时间
	FieldClientIP = "client_ip"   // 客户端IP
	FieldError    = "error"       // 错误信息
)

// ConfigureLogger 按配置设置日志级别和输出
// 配置了日志文件时同时写入标准输出和按大小轮转的文件
func ConfigureLogger(cfg config.LogConfig) *logrus.Logger {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.File != "" {
		log.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}))
	}

	return log
}

// GetLogger 返回API层共享的日志记录器
func GetLogger() *logrus.Logger {
	return log
}

// Logger 日志中间件
// 记录请求信息和响应时间
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := logrus.Fields{
			FieldStatus:   c.Writer.Status(),
			FieldLatency:  time.Since(start).String(),
			FieldClientIP: c.ClientIP(),
			FieldMethod:   c.Request.Method,
			FieldPath:     path,
			FieldTraceID:  TraceID(c),
			"user_agent":  c.Request.UserAgent(),
			"bytes":       c.Writer.Size(),
		}
		log.WithFields(fields).Info("HTTP request")
	}
}

// RequestLogger 请求体和响应体日志中间件
// 仅在debug级别记录JSON内容，上传的文件和返回的压缩包不记录
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !log.IsLevelEnabled(logrus.DebugLevel) {
			c.Next()
			return
		}

		if isJSON(c.GetHeader("Content-Type")) && c.Request.Body != nil {
			var buf bytes.Buffer
			body, _ := io.ReadAll(io.TeeReader(c.Request.Body, &buf))
			c.Request.Body = io.NopCloser(&buf)

			if len(body) > 0 {
				log.WithFields(logrus.Fields{
					FieldMethod:  c.Request.Method,
					FieldPath:    c.Request.URL.Path,
					FieldTraceID: TraceID(c),
					"body":       string(body),
				}).Debug("Request body")
			}
		}

		writer := &responseBodyWriter{
			ResponseWriter: c.Writer,
			body:           bytes.NewBufferString(""),
		}
		c.Writer = writer

		c.Next()

		if isJSON(writer.Header().Get("Content-Type")) {
			log.WithFields(logrus.Fields{
				FieldMethod:  c.Request.Method,
				FieldPath:    c.Request.URL.Path,
				FieldStatus:  c.Writer.Status(),
				FieldTraceID: TraceID(c),
				"response":   writer.body.String(),
			}).Debug("Response body")
		}
	}
}

func isJSON(contentType string) bool {
	return strings.HasPrefix(contentType, "application/json")
}

// responseBodyWriter 自定义的响应写入器
// 用于捕获响应体内容
type responseBodyWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

// Write 重写Write方法，将JSON响应体同时写入buffer
func (r *responseBodyWriter) Write(b []byte) (int, error) {
	if isJSON(r.Header().Get("Content-Type")) {
		r.body.Write(b)
	}
	return r.ResponseWriter.Write(b)
}

// SetTraceID 将追踪ID设置到上下文和响应头中
func SetTraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 从请求头中获取追踪ID，没有则生成一个新的
		traceID := c.GetHeader(TraceIDHeader)
		if traceID == "" {
			traceID = uuid.New().String()
		}

		c.Set(traceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)

		c.Next()
	}
}

// TraceID 返回当前请求的追踪ID
func TraceID(c *gin.Context) string {
	return c.GetString(traceIDKey)
}
