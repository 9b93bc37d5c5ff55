package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/afero"
)

// LocalStorage 本地文件存储实现
// 文件保存在 <根目录>/<ID前两位>/<ID><扩展名>
type LocalStorage struct {
	fs afero.Fs // 以存储根目录为根的文件系统
}

// LocalConfig 本地存储配置
type LocalConfig struct {
	Path string   // 本地存储路径
	Fs   afero.Fs // 底层文件系统，为空时使用操作系统文件系统
}

// NewLocalStorage 创建本地存储实例
func NewLocalStorage(cfg LocalConfig) (*LocalStorage, error) {
	base := cfg.Fs
	path := cfg.Path
	if base == nil {
		base = afero.NewOsFs()

		// 确保路径是绝对路径
		absPath, err := filepath.Abs(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
		}
		path = absPath
	}

	// 确保目录存在
	if err := base.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalStorage{
		fs: afero.NewBasePathFs(base, path),
	}, nil
}

// Save 保存文件到本地存储
func (s *LocalStorage) Save(ctx context.Context, reader io.Reader, filename string) (FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return FileInfo{}, err
	}

	id := newID()
	relPath := filepath.Join(id[:2], id+filepath.Ext(filename))

	if err := s.fs.MkdirAll(filepath.Dir(relPath), 0755); err != nil {
		return FileInfo{}, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := s.fs.Create(relPath)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	size, err := io.Copy(file, reader)
	if err != nil {
		s.fs.Remove(relPath)
		return FileInfo{}, fmt.Errorf("failed to write file: %w", err)
	}

	return FileInfo{
		ID:       id,
		Name:     filename,
		Size:     size,
		MimeType: getMimeType(filename),
		Path:     relPath,
	}, nil
}

// Get 获取文件内容
func (s *LocalStorage) Get(ctx context.Context, id string) (io.ReadCloser, error) {
	path, err := s.findPath(id)
	if err != nil {
		return nil, err
	}

	file, err := s.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// Delete 删除文件
func (s *LocalStorage) Delete(ctx context.Context, id string) error {
	path, err := s.findPath(id)
	if err != nil {
		return err
	}

	if err := s.fs.Remove(path); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Exists 检查文件是否存在
func (s *LocalStorage) Exists(ctx context.Context, id string) (bool, error) {
	if err := validateID(id); err != nil {
		return false, nil
	}

	matches, err := afero.Glob(s.fs, filepath.Join(id[:2], id+"*"))
	if err != nil {
		return false, fmt.Errorf("failed to look up file: %w", err)
	}
	return len(matches) > 0, nil
}

// findPath 根据ID查找文件相对路径
func (s *LocalStorage) findPath(id string) (string, error) {
	if err := validateID(id); err != nil {
		return "", err
	}

	matches, err := afero.Glob(s.fs, filepath.Join(id[:2], id+"*"))
	if err != nil {
		return "", fmt.Errorf("failed to look up file: %w", err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return matches[0], nil
}

var _ Storage = (*LocalStorage)(nil)
