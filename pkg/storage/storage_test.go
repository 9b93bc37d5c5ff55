package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStorage 对任意实现运行同一组读写检查
func exerciseStorage(t *testing.T, s Storage) {
	ctx := context.Background()
	content := []byte("%PDF-1.4 sample")

	info, err := s.Save(ctx, bytes.NewReader(content), "scores.pdf")
	require.NoError(t, err)
	assert.NotEmpty(t, info.ID)
	assert.Equal(t, "scores.pdf", info.Name)
	assert.Equal(t, int64(len(content)), info.Size)
	assert.Equal(t, "application/pdf", info.MimeType)

	t.Run("Get", func(t *testing.T) {
		data, err := ReadAll(ctx, s, info.ID)
		require.NoError(t, err)
		assert.Equal(t, content, data)
	})

	t.Run("Exists", func(t *testing.T) {
		ok, err := s.Exists(ctx, info.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.Exists(ctx, "00000000-0000-0000-0000-000000000000")
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = s.Exists(ctx, "../../etc/passwd")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, info.ID))

		ok, err := s.Exists(ctx, info.ID)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = s.Get(ctx, info.ID)
		assert.True(t, errors.Is(err, ErrNotFound))

		err = s.Delete(ctx, info.ID)
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}

func TestLocalStorageMemFs(t *testing.T) {
	s, err := NewLocalStorage(LocalConfig{Path: "/data/files", Fs: afero.NewMemMapFs()})
	require.NoError(t, err)

	exerciseStorage(t, s)
}

func TestLocalStorageOnDisk(t *testing.T) {
	dir := t.TempDir()

	s, err := NewLocalStorage(LocalConfig{Path: dir})
	require.NoError(t, err)

	info, err := s.Save(context.Background(), bytes.NewBufferString("PK"), "result.zip")
	require.NoError(t, err)
	assert.Equal(t, "application/zip", info.MimeType)

	// 文件按ID前缀分目录保存
	_, err = os.Stat(filepath.Join(dir, info.Path))
	assert.NoError(t, err)
	assert.Equal(t, info.ID[:2], filepath.Dir(info.Path))

	exerciseStorage(t, s)
}

func TestLocalStorageCancelledSave(t *testing.T) {
	s, err := NewLocalStorage(LocalConfig{Path: "/x", Fs: afero.NewMemMapFs()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.Save(ctx, bytes.NewBufferString("data"), "a.pdf")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGetMimeType(t *testing.T) {
	assert.Equal(t, "application/pdf", getMimeType("A.PDF"))
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", getMimeType("map.xlsx"))
	assert.Equal(t, "application/vnd.ms-excel", getMimeType("map.xls"))
	assert.Equal(t, "application/zip", getMimeType("out.zip"))
	assert.Equal(t, "application/octet-stream", getMimeType("notes"))
}

func TestNewStorageFactory(t *testing.T) {
	s, err := New(Config{Type: "local", Local: LocalConfig{Path: "/files", Fs: afero.NewMemMapFs()}})
	require.NoError(t, err)
	assert.IsType(t, &LocalStorage{}, s)

	_, err = New(Config{Type: "s3"})
	assert.Error(t, err)
}

// TestMinioStorage 需要一个可访问的MinIO服务，通过 MINIO_ENDPOINT 指定
// 例如 docker run -p 9000:9000 minio/minio server /data
func TestMinioStorage(t *testing.T) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("MINIO_ENDPOINT not set, skipping MinIO tests")
	}

	s, err := NewMinioStorage(MinioConfig{
		Endpoint:  endpoint,
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "pdf-splitter-test",
		Prefix:    "test",
	})
	require.NoError(t, err)

	exerciseStorage(t, s)
}
