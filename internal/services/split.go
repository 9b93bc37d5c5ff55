package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyerfyer/pdf-splitter/internal/archive"
	"github.com/fyerfyer/pdf-splitter/internal/document"
	"github.com/fyerfyer/pdf-splitter/internal/extract"
	"github.com/fyerfyer/pdf-splitter/internal/models"
	"github.com/fyerfyer/pdf-splitter/internal/naming"
	"github.com/fyerfyer/pdf-splitter/internal/scratch"
	"github.com/fyerfyer/pdf-splitter/internal/table"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// DocumentOpener 把上传的字节解析为分页文档
type DocumentOpener func(data []byte) (document.Source, error)

// PlainSplitRequest 普通拆分请求
type PlainSplitRequest struct {
	DocumentName string // 上传文件名，用于校验类型
	Document     []byte // PDF内容
	Pattern      string // 匹配规则
}

// RenameSplitRequest 拆分并按映射表改名的请求
type RenameSplitRequest struct {
	DocumentName string // 上传文件名
	Document     []byte // PDF内容
	TableName    string // 映射表文件名或扩展名，决定表格格式
	Table        []byte // 映射表内容
	Pattern      string // 匹配规则
	KeyColumn    string // 键列
	ValueColumn  string // 值列
}

// SplitResult 拆分结果
type SplitResult struct {
	Archive   []byte   // ZIP内容，预览时为空
	Names     []string // 每页的最终名称，按页顺序
	PageCount int      // 页数
}

// SplitService 拆分流水线
// 负责串联页面拆分、标识提取、名称解析和打包
type SplitService struct {
	fs            afero.Fs       // 临时文件所在的文件系统
	scratchPrefix string         // 临时目录前缀
	concurrency   int            // 页面并发数
	open          DocumentOpener // 文档解析
	logger        *logrus.Logger // 日志记录器
}

// SplitOption 拆分服务配置选项
type SplitOption func(*SplitService)

// NewSplitService 创建拆分服务
func NewSplitService(opts ...SplitOption) *SplitService {
	srv := &SplitService{
		fs:            afero.NewOsFs(),
		scratchPrefix: "pdf-split-",
		concurrency:   1,
		open:          openPDF,
		logger:        logrus.New(),
	}

	for _, opt := range opts {
		opt(srv)
	}

	return srv
}

// WithSplitLogger 设置日志记录器
func WithSplitLogger(logger *logrus.Logger) SplitOption {
	return func(s *SplitService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithScratchFs 设置临时文件使用的文件系统
func WithScratchFs(fs afero.Fs) SplitOption {
	return func(s *SplitService) {
		if fs != nil {
			s.fs = fs
		}
	}
}

// WithScratchPrefix 设置临时目录前缀
func WithScratchPrefix(prefix string) SplitOption {
	return func(s *SplitService) {
		if prefix != "" {
			s.scratchPrefix = prefix
		}
	}
}

// WithConcurrency 设置同时处理的页面数，结果顺序不受影响
// 文本提取可以并行，同一文档的单页渲染仍逐页进行
func WithConcurrency(n int) SplitOption {
	return func(s *SplitService) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithDocumentOpener 替换文档解析实现
func WithDocumentOpener(open DocumentOpener) SplitOption {
	return func(s *SplitService) {
		if open != nil {
			s.open = open
		}
	}
}

func openPDF(data []byte) (document.Source, error) {
	src, err := document.OpenPDFBytes(data)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// RunPlainSplit 拆分文档，每页以提取出的标识命名
func (s *SplitService) RunPlainSplit(ctx context.Context, req PlainSplitRequest) (*SplitResult, error) {
	if err := validateDocument(req.DocumentName); err != nil {
		return nil, err
	}

	pattern, err := compilePattern(req.Pattern)
	if err != nil {
		return nil, err
	}

	return s.run(ctx, req.DocumentName, req.Document, pattern, nil, true)
}

// RunSplitAndRename 拆分文档，并通过映射表把标识转换为最终名称
// 映射表缺列时在拆分任何页面之前返回
func (s *SplitService) RunSplitAndRename(ctx context.Context, req RenameSplitRequest) (*SplitResult, error) {
	mapping, pattern, err := s.prepareRename(req)
	if err != nil {
		return nil, err
	}

	return s.run(ctx, req.DocumentName, req.Document, pattern, mapping, true)
}

// Preview 只计算每页的最终名称，不生成压缩包
// 未上传映射表时按普通拆分处理，上传了空表则按表格解析错误处理
func (s *SplitService) Preview(ctx context.Context, req RenameSplitRequest) (*SplitResult, error) {
	if req.TableName == "" {
		if err := validateDocument(req.DocumentName); err != nil {
			return nil, err
		}
		pattern, err := compilePattern(req.Pattern)
		if err != nil {
			return nil, err
		}
		return s.run(ctx, req.DocumentName, req.Document, pattern, nil, false)
	}

	mapping, pattern, err := s.prepareRename(req)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, req.DocumentName, req.Document, pattern, mapping, false)
}

func (s *SplitService) prepareRename(req RenameSplitRequest) (table.Mapping, *extract.Pattern, error) {
	if err := validateDocument(req.DocumentName); err != nil {
		return nil, nil, err
	}

	format, err := table.FormatFromHint(req.TableName)
	if err != nil {
		return nil, nil, models.NewPipelineError(models.KindInvalidInputType,
			"table must be an .xlsx or .xls file", err)
	}

	pattern, err := compilePattern(req.Pattern)
	if err != nil {
		return nil, nil, err
	}

	mapping, err := loadMapping(req.Table, format, req.KeyColumn, req.ValueColumn)
	if err != nil {
		return nil, nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"table":   req.TableName,
		"entries": len(mapping),
	}).Debug("Mapping table loaded")

	return mapping, pattern, nil
}

func (s *SplitService) run(ctx context.Context, docName string, data []byte, pattern *extract.Pattern, mapping table.Mapping, build bool) (*SplitResult, error) {
	start := time.Now()

	src, err := s.open(data)
	if err != nil {
		return nil, models.NewPipelineError(models.KindDocumentParse, "failed to read PDF document", err)
	}

	pages, names, err := s.splitAndName(ctx, src, pattern, mapping)
	if err != nil {
		return nil, err
	}

	result := &SplitResult{
		Names:     names,
		PageCount: len(pages),
	}

	if build {
		result.Archive, err = s.assemble(pages, names)
		if err != nil {
			return nil, err
		}
	}

	s.logger.WithFields(logrus.Fields{
		"document": docName,
		"pages":    result.PageCount,
		"mapped":   mapping != nil,
		"archive":  len(result.Archive),
		"duration": time.Since(start).String(),
	}).Info("Document split completed")

	return result, nil
}

// splitAndName 拆分页面并解析名称，返回的切片与页码一一对应
func (s *SplitService) splitAndName(ctx context.Context, src document.Source, pattern *extract.Pattern, mapping table.Mapping) ([]document.Page, []string, error) {
	count := src.PageCount()
	pages := make([]document.Page, count)
	names := make([]string, count)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i := 0; i < count; i++ {
		pageNr := i + 1
		if err := gctx.Err(); err != nil {
			break
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			page, err := document.SplitPage(src, pageNr)
			if err != nil {
				return models.NewPipelineError(models.KindDocumentParse,
					fmt.Sprintf("failed to split page %d", pageNr), err)
			}

			id, found := pattern.Extract(page.Text)
			if !found {
				s.logger.WithField("page", pageNr).Debug("No identifier found on page")
			}

			pages[pageNr-1] = page
			names[pageNr-1] = naming.Resolve(id, found, pageNr, mapping)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, asPipelineError(err)
	}
	// 调用方取消时 errgroup 可能还没有收到任何错误
	if err := ctx.Err(); err != nil {
		return nil, nil, asPipelineError(err)
	}

	return pages, names, nil
}

// assemble 把每页写入临时目录，同名页面后写覆盖先写，再打包为ZIP
func (s *SplitService) assemble(pages []document.Page, names []string) (archiveData []byte, err error) {
	ws, err := scratch.Acquire(s.fs, s.scratchPrefix)
	if err != nil {
		return nil, models.NewPipelineError(models.KindInternal, "failed to acquire scratch space", err)
	}
	defer func() {
		if rerr := ws.Release(); rerr != nil {
			s.logger.WithError(rerr).WithField("dir", ws.Dir()).Warn("Failed to release scratch space")
		}
	}()

	// 每个不同的名称占用一个文件，顺序为名称第一次出现的顺序
	slots := make(map[string]string)
	order := make([]string, 0, len(names))
	for i, page := range pages {
		name := names[i]
		file, ok := slots[name]
		if !ok {
			file = fmt.Sprintf("entry-%04d%s", len(order), archive.Extension)
			slots[name] = file
			order = append(order, name)
		} else {
			s.logger.WithFields(logrus.Fields{
				"page": page.Index,
				"name": name,
			}).Warn("Duplicate page name, earlier page overwritten")
		}

		if err := ws.WriteFile(file, page.Content); err != nil {
			return nil, models.NewPipelineError(models.KindInternal, "failed to write page file", err)
		}
	}

	units := make([]archive.Unit, 0, len(order))
	for _, name := range order {
		content, err := ws.ReadFile(slots[name])
		if err != nil {
			return nil, models.NewPipelineError(models.KindInternal, "failed to read page file", err)
		}
		units = append(units, archive.Unit{Name: name, Content: content})
	}

	out, err := ws.Create("archive.zip")
	if err != nil {
		return nil, models.NewPipelineError(models.KindInternal, "failed to create archive", err)
	}
	if err := archive.Assemble(out, units); err != nil {
		out.Close()
		return nil, models.NewPipelineError(models.KindInternal, "failed to assemble archive", err)
	}
	if err := out.Close(); err != nil {
		return nil, models.NewPipelineError(models.KindInternal, "failed to close archive", err)
	}

	archiveData, err = ws.ReadFile("archive.zip")
	if err != nil {
		return nil, models.NewPipelineError(models.KindInternal, "failed to read archive", err)
	}
	return archiveData, nil
}

func validateDocument(name string) error {
	if document.DetectContentType(name) != document.PDF {
		return models.NewPipelineError(models.KindInvalidInputType,
			"document must be a .pdf file", fmt.Errorf("%w: %q", document.ErrUnsupportedType, name))
	}
	return nil
}

func compilePattern(rule string) (*extract.Pattern, error) {
	pattern, err := extract.CompilePattern(rule)
	if err != nil {
		return nil, models.NewPipelineError(models.KindInvalidPattern,
			"pattern must be a valid regular expression with one capture group", err)
	}
	return pattern, nil
}

func loadMapping(data []byte, format table.Format, keyColumn, valueColumn string) (table.Mapping, error) {
	t, err := table.Parse(data, format)
	if err != nil {
		if errors.Is(err, table.ErrUnsupportedFormat) {
			return nil, models.NewPipelineError(models.KindInvalidInputType, "unsupported table format", err)
		}
		return nil, models.NewPipelineError(models.KindTableParse, "failed to read mapping table", err)
	}

	mapping, err := table.Load(t, keyColumn, valueColumn)
	if err != nil {
		var mce *table.MissingColumnsError
		if errors.As(err, &mce) {
			return nil, models.NewPipelineError(models.KindMissingColumns, mce.Error(), err)
		}
		return nil, models.NewPipelineError(models.KindTableParse, "failed to load mapping table", err)
	}

	return mapping, nil
}

func asPipelineError(err error) error {
	var pe *models.PipelineError
	if errors.As(err, &pe) {
		return err
	}
	return models.NewPipelineError(models.KindInternal, "split interrupted", err)
}
