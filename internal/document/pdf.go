package document

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"

	pdftext "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFSource PDF文档
// 页面拆分使用pdfcpu，文本提取使用ledongthuc/pdf，两者读取同一份数据
type PDFSource struct {
	ctx     *model.Context
	mu      sync.Mutex // pdfcpu上下文不支持并发访问
	text    *pdftext.Reader
	textErr error // 文本层无法打开时的原因
}

// OpenPDF 读取并校验PDF
func OpenPDF(rs io.ReadSeeker) (*PDFSource, error) {
	data, err := io.ReadAll(rs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	if err := api.ValidateContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	src := &PDFSource{ctx: ctx}
	// 文本层打不开时页面仍可拆分，只是每页都走回退命名
	src.text, src.textErr = openTextReader(data)

	return src, nil
}

// OpenPDFBytes 从内存读取PDF
func OpenPDFBytes(data []byte) (*PDFSource, error) {
	return OpenPDF(bytes.NewReader(data))
}

func openTextReader(data []byte) (r *pdftext.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r, err = nil, fmt.Errorf("failed to open text layer: %v", rec)
		}
	}()
	return pdftext.NewReader(bytes.NewReader(data), int64(len(data)))
}

// PageCount 返回页数
func (s *PDFSource) PageCount() int {
	return s.ctx.PageCount
}

// ExtractText 按版面位置提取页面文本
// 不持有pdfcpu的锁，多个页面可以并行提取
func (s *PDFSource) ExtractText(pageNr int) (text string, err error) {
	if s.text == nil {
		return "", s.textErr
	}

	// ledongthuc/pdf 遇到损坏的内容流会panic
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("failed to extract text of page %d: %v", pageNr, rec)
		}
	}()

	page := s.text.Page(pageNr)
	if page.V.IsNull() {
		return "", fmt.Errorf("page %d not found", pageNr)
	}

	return layoutText(page.Content().Text), nil
}

// layoutText 把逐字形的文本还原成行
// 基线变化时换行，同一行内字形间距超过字号的一定比例时补空格，
// 这样TJ数组中的字距调整和同一行上的Td移动都会得到单词间的空格
func layoutText(glyphs []pdftext.Text) string {
	var b strings.Builder
	var prev *pdftext.Text

	for i := range glyphs {
		g := &glyphs[i]
		if g.S == "" {
			continue
		}

		if prev != nil {
			size := math.Max(math.Max(g.FontSize, prev.FontSize), 1)
			switch {
			case math.Abs(g.Y-prev.Y) > size/2:
				b.WriteByte('\n')
			case g.X-(prev.X+prev.W) > size*0.15 && !endsWithSpace(&b) && g.S != " ":
				b.WriteByte(' ')
			}
		}

		b.WriteString(g.S)
		prev = g
	}

	return b.String()
}

func endsWithSpace(b *strings.Builder) bool {
	s := b.String()
	return s != "" && (s[len(s)-1] == ' ' || s[len(s)-1] == '\n')
}

// RenderPage 生成只包含指定页的新PDF
func (s *PDFSource) RenderPage(pageNr int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pageCtx, err := pdfcpu.ExtractPages(s.ctx, []int{pageNr}, false)
	if err != nil {
		return nil, fmt.Errorf("failed to extract page %d: %w", pageNr, err)
	}

	var buf bytes.Buffer
	if err := api.WriteContext(pageCtx, &buf); err != nil {
		return nil, fmt.Errorf("failed to write page %d: %w", pageNr, err)
	}

	return buf.Bytes(), nil
}
