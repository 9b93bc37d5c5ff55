package archive

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zip"
)

// Extension 每个条目的扩展名
const Extension = ".pdf"

// Unit 一个待打包的单页文件
type Unit struct {
	Name    string // 最终名称（不含扩展名）
	Content []byte // 单页PDF内容
}

// Assemble 按给定顺序把每个单元写为一个ZIP条目，条目名为 Name + ".pdf"
// 不检查重名，零个单元时生成合法的空压缩包
func Assemble(w io.Writer, units []Unit) error {
	zw := zip.NewWriter(w)

	for _, u := range units {
		header := &zip.FileHeader{
			Name:     u.Name + Extension,
			Method:   zip.Deflate,
			Modified: time.Now(),
		}
		entry, err := zw.CreateHeader(header)
		if err != nil {
			zw.Close()
			return fmt.Errorf("failed to create archive entry %s: %w", header.Name, err)
		}
		if _, err := entry.Write(u.Content); err != nil {
			zw.Close()
			return fmt.Errorf("failed to write archive entry %s: %w", header.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return nil
}

// AssembleBytes 将单元打包为内存中的ZIP
func AssembleBytes(units []Unit) ([]byte, error) {
	var buf bytes.Buffer
	if err := Assemble(&buf, units); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Entry 读取出的压缩包条目
type Entry struct {
	Name    string
	Content []byte
}

// ReadEntries 按存储顺序读取压缩包中的全部条目
func ReadEntries(data []byte) ([]Entry, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	entries := make([]Entry, 0, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open entry %s: %w", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read entry %s: %w", f.Name, err)
		}
		entries = append(entries, Entry{Name: f.Name, Content: content})
	}
	return entries, nil
}
