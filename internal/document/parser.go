package document

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ContentType 表示文档的内容类型
type ContentType string

const (
	// PDF 文档类型
	PDF ContentType = "pdf"
	// Unknown 未知类型
	Unknown ContentType = "unknown"
)

var (
	// ErrUnsupportedType 不支持的文档类型
	ErrUnsupportedType = errors.New("unsupported document type")
	// ErrParse 文档无法解析
	ErrParse = errors.New("failed to parse document")
)

// DetectContentType 根据文件扩展名检测内容类型
func DetectContentType(filename string) ContentType {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return PDF
	default:
		return Unknown
	}
}

// Source 分页文档
// 由底层PDF库提供页数、每页文本以及单页文档的渲染
type Source interface {
	// PageCount 返回页数
	PageCount() int

	// ExtractText 返回指定页（从1开始）的纯文本
	ExtractText(pageNr int) (string, error)

	// RenderPage 返回只包含指定页的独立文档
	RenderPage(pageNr int) ([]byte, error)
}

// Page 拆分后的单页
type Page struct {
	Index   int    // 页码，从1开始
	Content []byte // 单页文档内容
	Text    string // 页面文本，提取不到时为空串
}

// SplitPage 拆分单个页面
// 文本提取失败按空文本处理，渲染失败返回错误
func SplitPage(src Source, pageNr int) (Page, error) {
	content, err := src.RenderPage(pageNr)
	if err != nil {
		return Page{}, fmt.Errorf("failed to render page %d: %w", pageNr, err)
	}

	text, err := src.ExtractText(pageNr)
	if err != nil {
		text = ""
	}

	return Page{
		Index:   pageNr,
		Content: content,
		Text:    text,
	}, nil
}

// Split 按文档顺序拆分所有页面
func Split(src Source) ([]Page, error) {
	count := src.PageCount()
	pages := make([]Page, 0, count)

	for pageNr := 1; pageNr <= count; pageNr++ {
		page, err := SplitPage(src, pageNr)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}

	return pages, nil
}
