package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 SPLITTER_SERVER_PORT 覆盖 server.port
const EnvPrefix = "SPLITTER"

// Config 应用程序配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Log      LogConfig      `mapstructure:"log"`
	Split    SplitConfig    `mapstructure:"split"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Database DatabaseConfig `mapstructure:"database"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`                                     // 服务器主机
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`          // 服务器端口
	Mode            string        `mapstructure:"mode" validate:"oneof=debug release test"` // gin运行模式
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"min=0"`            // 读取超时
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"min=0"`           // 写入超时
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`        // 优雅关闭等待时间
}

// CORSConfig 跨域配置
type CORSConfig struct {
	Enable           bool     `mapstructure:"enable"`            // 是否启用跨域中间件
	AllowOrigins     []string `mapstructure:"allow_origins"`     // 允许的来源，"*" 表示全部
	AllowMethods     []string `mapstructure:"allow_methods"`     // 允许的方法
	AllowHeaders     []string `mapstructure:"allow_headers"`     // 允许的请求头
	AllowCredentials bool     `mapstructure:"allow_credentials"` // 是否允许携带凭证
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"` // 日志级别
	File       string `mapstructure:"file"`                                         // 日志文件，为空时只输出到标准输出
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"min=0"`                 // 单个日志文件最大大小
	MaxBackups int    `mapstructure:"max_backups" validate:"min=0"`                 // 保留的旧文件数量
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"min=0"`                // 旧文件保留天数
	Compress   bool   `mapstructure:"compress"`                                     // 是否压缩旧文件
}

// SplitConfig 拆分流水线配置
type SplitConfig struct {
	Concurrency   int    `mapstructure:"concurrency" validate:"min=1"`       // 页面并发数
	ScratchPrefix string `mapstructure:"scratch_prefix" validate:"required"` // 临时目录前缀
	MaxUploadMB   int64  `mapstructure:"max_upload_mb" validate:"min=1"`     // 上传大小上限
	ArchiveName   string `mapstructure:"archive_name" validate:"required"`   // 下载的压缩包文件名
}

// StorageConfig 存储配置
type StorageConfig struct {
	Type      string `mapstructure:"type" validate:"oneof=local minio"`        // 存储类型：local 或 minio
	Path      string `mapstructure:"path" validate:"required_if=Type local"`   // 本地存储路径
	Bucket    string `mapstructure:"bucket" validate:"required_if=Type minio"` // MinIO桶名称
	Endpoint  string `mapstructure:"endpoint" validate:"required_if=Type minio"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"` // 是否使用SSL
	Prefix    string `mapstructure:"prefix"`  // MinIO对象名前缀
}

// CacheConfig 缓存配置，用于识别重复提交
type CacheConfig struct {
	Enable   bool          `mapstructure:"enable"`                             // 是否启用缓存
	Type     string        `mapstructure:"type" validate:"oneof=memory redis"` // 缓存类型：memory 或 redis
	Address  string        `mapstructure:"address"`                            // Redis地址
	Password string        `mapstructure:"password"`                           // Redis密码
	DB       int           `mapstructure:"db"`                                 // Redis数据库
	Prefix   string        `mapstructure:"prefix"`                             // 键前缀
	TTL      time.Duration `mapstructure:"ttl" validate:"min=0"`               // 缓存TTL
}

// QueueConfig 任务队列配置
type QueueConfig struct {
	Type          string        `mapstructure:"type" validate:"oneof=memory redis"` // 队列类型：redis或memory
	RedisAddr     string        `mapstructure:"redis_addr"`                         // Redis地址
	RedisPassword string        `mapstructure:"redis_password"`                     // Redis密码
	RedisDB       int           `mapstructure:"redis_db"`                           // Redis数据库编号
	Concurrency   int           `mapstructure:"concurrency" validate:"min=1"`       // 任务处理并发数
	RetryLimit    int           `mapstructure:"retry_limit" validate:"min=0"`       // 任务最大重试次数
	RetryDelay    time.Duration `mapstructure:"retry_delay" validate:"min=0"`       // 重试延迟
	TaskTimeout   time.Duration `mapstructure:"task_timeout" validate:"min=0"`      // 单个任务超时
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Type string `mapstructure:"type" validate:"oneof=sqlite"` // 数据库类型，目前只支持sqlite
	DSN  string `mapstructure:"dsn" validate:"required"`      // 数据源名称
}

// Address 返回服务监听地址
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// MaxUploadBytes 返回上传大小上限的字节数
func (s SplitConfig) MaxUploadBytes() int64 {
	return s.MaxUploadMB << 20
}

// Load 从文件和环境变量加载配置
// configPath 为空时只使用默认值和环境变量
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			logrus.Warnf("Config file not found at %s, using defaults", configPath)
			writeDefaultConfig(v, configPath)
		} else if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		} else {
			logrus.Infof("Using config file: %s", v.ConfigFileUsed())
		}
	}

	// 支持环境变量覆盖
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	expandSecrets(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置取值
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// writeDefaultConfig 在指定位置写出一份默认配置，失败时只记录警告
func writeDefaultConfig(v *viper.Viper, configPath string) {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return
	}
	if err := v.WriteConfigAs(configPath); err != nil {
		logrus.Warnf("Could not write default config to %s: %v", configPath, err)
	}
}

// expandSecrets 把形如 ${VAR} 的敏感配置替换为环境变量的值
func expandSecrets(cfg *Config) {
	for _, field := range []*string{
		&cfg.Storage.AccessKey,
		&cfg.Storage.SecretKey,
		&cfg.Cache.Password,
		&cfg.Queue.RedisPassword,
	} {
		*field = expandEnv(*field)
	}
}

func expandEnv(value string) string {
	if !strings.HasPrefix(value, "${") || !strings.HasSuffix(value, "}") {
		return value
	}
	if envVal := os.Getenv(value[2 : len(value)-1]); envVal != "" {
		return envVal
	}
	return value
}

// setDefaults 设置配置的默认值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "60s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// 跨域默认配置
	v.SetDefault("cors.enable", true)
	v.SetDefault("cors.allow_origins", []string{"*"})
	v.SetDefault("cors.allow_methods", []string{"GET", "POST", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allow_headers", []string{"Content-Type", "Content-Length", "Accept", "Origin", "X-Requested-With", "X-Trace-ID"})
	v.SetDefault("cors.allow_credentials", false)

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)

	// 拆分默认配置
	v.SetDefault("split.concurrency", 4)
	v.SetDefault("split.scratch_prefix", "pdf-split-")
	v.SetDefault("split.max_upload_mb", 200)
	v.SetDefault("split.archive_name", "dmc_split.zip")

	// 存储默认配置
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.path", "./data/files")
	v.SetDefault("storage.bucket", "pdf-splitter")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.prefix", "")

	// 缓存默认配置
	v.SetDefault("cache.enable", true)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.prefix", "pdfsplit:")
	v.SetDefault("cache.ttl", "1h")

	// 队列默认配置
	v.SetDefault("queue.type", "memory")
	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.redis_password", "")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.concurrency", 4)
	v.SetDefault("queue.retry_limit", 3)
	v.SetDefault("queue.retry_delay", "30s")
	v.SetDefault("queue.task_timeout", "10m")

	// 数据库默认配置
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "data/jobs.db")
}
