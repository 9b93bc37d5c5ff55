package scratch

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// Workspace 单次处理使用的临时目录
// 每次调用独立申请，处理结束后无论成功失败都要 Release
type Workspace struct {
	fs       afero.Fs
	dir      string
	mu       sync.Mutex
	released bool
}

// Acquire 在文件系统的临时目录下创建一个新的工作目录
func Acquire(fs afero.Fs, prefix string) (*Workspace, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}

	dir, err := afero.TempDir(fs, "", prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}

	return &Workspace{fs: fs, dir: dir}, nil
}

// Dir 返回工作目录路径
func (w *Workspace) Dir() string {
	return w.dir
}

// Path 返回工作目录下的文件路径
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, filepath.Base(name))
}

// WriteFile 写入文件，同名文件直接覆盖
func (w *Workspace) WriteFile(name string, data []byte) error {
	if err := afero.WriteFile(w.fs, w.Path(name), data, 0644); err != nil {
		return fmt.Errorf("failed to write scratch file %s: %w", name, err)
	}
	return nil
}

// ReadFile 读取工作目录下的文件
func (w *Workspace) ReadFile(name string) ([]byte, error) {
	data, err := afero.ReadFile(w.fs, w.Path(name))
	if err != nil {
		return nil, fmt.Errorf("failed to read scratch file %s: %w", name, err)
	}
	return data, nil
}

// Create 创建一个可写文件
func (w *Workspace) Create(name string) (io.WriteCloser, error) {
	f, err := w.fs.Create(w.Path(name))
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch file %s: %w", name, err)
	}
	return f, nil
}

// Exists 检查文件是否存在
func (w *Workspace) Exists(name string) bool {
	ok, err := afero.Exists(w.fs, w.Path(name))
	return err == nil && ok
}

// Release 删除工作目录及其内容，可重复调用
func (w *Workspace) Release() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.released {
		return nil
	}
	w.released = true

	if err := w.fs.RemoveAll(w.dir); err != nil {
		return fmt.Errorf("failed to remove scratch directory %s: %w", w.dir, err)
	}
	return nil
}
