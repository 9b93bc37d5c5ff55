package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "dmc_split.zip", cfg.Split.ArchiveName)
	assert.EqualValues(t, 200<<20, cfg.Split.MaxUploadBytes())
	assert.Equal(t, "local", cfg.Storage.Type)
	assert.Equal(t, "memory", cfg.Queue.Type)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowOrigins)
	assert.Equal(t, "sqlite", cfg.Database.Type)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  mode: debug
split:
  concurrency: 8
  max_upload_mb: 50
queue:
  type: redis
  redis_addr: redis:6379
  retry_delay: 5s
cors:
  allow_origins:
    - https://example.com
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.Mode)
	assert.Equal(t, 8, cfg.Split.Concurrency)
	assert.EqualValues(t, 50, cfg.Split.MaxUploadMB)
	assert.Equal(t, "redis", cfg.Queue.Type)
	assert.Equal(t, "redis:6379", cfg.Queue.RedisAddr)
	assert.Equal(t, 5*time.Second, cfg.Queue.RetryDelay)
	assert.Equal(t, []string{"https://example.com"}, cfg.CORS.AllowOrigins)
	// 未出现在文件中的键保持默认值
	assert.Equal(t, "dmc_split.zip", cfg.Split.ArchiveName)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")
	t.Setenv("SPLITTER_SERVER_PORT", "7070")
	t.Setenv("SPLITTER_SPLIT_ARCHIVE_NAME", "pages.zip")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "pages.zip", cfg.Split.ArchiveName)
}

func TestLoadExpandsSecrets(t *testing.T) {
	path := writeConfig(t, `
storage:
  type: minio
  endpoint: localhost:9000
  bucket: pages
  access_key: ${TEST_MINIO_ACCESS}
  secret_key: ${TEST_MINIO_SECRET_UNSET}
`)
	t.Setenv("TEST_MINIO_ACCESS", "minioadmin")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "minioadmin", cfg.Storage.AccessKey)
	// 未设置的变量保持原样
	assert.Equal(t, "${TEST_MINIO_SECRET_UNSET}", cfg.Storage.SecretKey)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad port", "server:\n  port: 70000\n"},
		{"bad mode", "server:\n  mode: verbose\n"},
		{"bad storage", "storage:\n  type: s3\n"},
		{"minio without endpoint", "storage:\n  type: minio\n  bucket: b\n"},
		{"zero concurrency", "split:\n  concurrency: 0\n"},
		{"bad queue", "queue:\n  type: kafka\n"},
		{"bad log level", "log:\n  level: trace\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFileWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)

	_, err = os.Stat(path)
	assert.NoError(t, err, "default config should be written")
}

func TestLoadMalformedFile(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unterminated"))
	assert.Error(t, err)
}
