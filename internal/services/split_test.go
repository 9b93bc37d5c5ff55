package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/fyerfyer/pdf-splitter/internal/archive"
	"github.com/fyerfyer/pdf-splitter/internal/document"
	"github.com/fyerfyer/pdf-splitter/internal/extract"
	"github.com/fyerfyer/pdf-splitter/internal/models"
	"github.com/jung-kurt/gofpdf"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// memorySource 测试用的内存文档，每页内容为 "content-<页码>"
type memorySource struct {
	mu        sync.Mutex
	texts     []string
	renderErr map[int]error
	textErr   map[int]error
}

func (m *memorySource) PageCount() int { return len(m.texts) }

func (m *memorySource) ExtractText(pageNr int) (string, error) {
	if err := m.textErr[pageNr]; err != nil {
		return "", err
	}
	return m.texts[pageNr-1], nil
}

func (m *memorySource) RenderPage(pageNr int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.renderErr[pageNr]; err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("content-%d", pageNr)), nil
}

// newTestSplitService 创建使用内存文件系统的拆分服务
func newTestSplitService(t *testing.T, src document.Source, opts ...SplitOption) (*SplitService, afero.Fs) {
	t.Helper()

	fs := afero.NewMemMapFs()
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	base := []SplitOption{
		WithScratchFs(fs),
		WithScratchPrefix("split-test-"),
		WithSplitLogger(logger),
	}
	if src != nil {
		base = append(base, WithDocumentOpener(func([]byte) (document.Source, error) {
			return src, nil
		}))
	}

	return NewSplitService(append(base, opts...)...), fs
}

// buildPDF 生成每页包含给定文本的PDF
func buildPDF(t *testing.T, pages ...string) []byte {
	t.Helper()

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	for _, text := range pages {
		pdf.AddPage()
		pdf.MultiCell(0, 10, text, "", "", false)
	}

	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))
	return buf.Bytes()
}

// buildWorkbook 生成第一行为表头的xlsx
func buildWorkbook(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func entryNames(t *testing.T, data []byte) []string {
	t.Helper()

	entries, err := archive.ReadEntries(data)
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return names
}

func requireKind(t *testing.T, err error, kind models.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, models.KindOf(err), "unexpected error: %v", err)
}

func assertScratchReleased(t *testing.T, fs afero.Fs) {
	t.Helper()
	left, err := afero.Glob(fs, filepath.Join(os.TempDir(), "split-test-*"))
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestRunPlainSplitNamesEveryPage(t *testing.T) {
	src := &memorySource{texts: []string{"Invoice DMC-1023", "nothing here", "dmc-7.0"}}
	svc, fs := newTestSplitService(t, src)

	result, err := svc.RunPlainSplit(context.Background(), PlainSplitRequest{
		DocumentName: "batch.pdf",
		Pattern:      `DMC-([\d.]+)`,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.PageCount)
	assert.Equal(t, []string{"1023", "unknown_2", "7"}, result.Names)

	entries, err := archive.ReadEntries(result.Archive)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "1023.pdf", entries[0].Name)
	assert.Equal(t, "content-1", string(entries[0].Content))
	assert.Equal(t, "unknown_2.pdf", entries[1].Name)
	assert.Equal(t, "content-2", string(entries[1].Content))
	assert.Equal(t, "7.pdf", entries[2].Name)

	assertScratchReleased(t, fs)
}

func TestRunPlainSplitEmptyDocument(t *testing.T) {
	svc, _ := newTestSplitService(t, &memorySource{})

	result, err := svc.RunPlainSplit(context.Background(), PlainSplitRequest{
		DocumentName: "empty.pdf",
		Pattern:      `ID:(\d+)`,
	})
	require.NoError(t, err)

	assert.Equal(t, 0, result.PageCount)
	assert.Empty(t, result.Names)
	assert.Empty(t, entryNames(t, result.Archive))
}

func TestRunPlainSplitDuplicateNameLastPageWins(t *testing.T) {
	src := &memorySource{texts: []string{"ID:5", "ID:6", "ID:5"}}
	svc, _ := newTestSplitService(t, src)

	result, err := svc.RunPlainSplit(context.Background(), PlainSplitRequest{
		DocumentName: "dup.pdf",
		Pattern:      `ID:(\d+)`,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"5", "6", "5"}, result.Names)

	// 同名页面互相覆盖，压缩包中只保留最后一页的内容
	entries, err := archive.ReadEntries(result.Archive)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "5.pdf", entries[0].Name)
	assert.Equal(t, "content-3", string(entries[0].Content))
	assert.Equal(t, "6.pdf", entries[1].Name)
	assert.Equal(t, "content-2", string(entries[1].Content))
}

func TestRunPlainSplitTextFailureFallsBack(t *testing.T) {
	src := &memorySource{
		texts:   []string{"ID:1", "ID:2"},
		textErr: map[int]error{2: errors.New("bad font")},
	}
	svc, _ := newTestSplitService(t, src)

	result, err := svc.RunPlainSplit(context.Background(), PlainSplitRequest{
		DocumentName: "a.pdf",
		Pattern:      `ID:(\d+)`,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "unknown_2"}, result.Names)
}

func TestRunPlainSplitRenderFailureAborts(t *testing.T) {
	src := &memorySource{
		texts:     []string{"ID:1", "ID:2"},
		renderErr: map[int]error{2: errors.New("broken page tree")},
	}
	svc, fs := newTestSplitService(t, src)

	result, err := svc.RunPlainSplit(context.Background(), PlainSplitRequest{
		DocumentName: "a.pdf",
		Pattern:      `ID:(\d+)`,
	})
	requireKind(t, err, models.KindDocumentParse)
	assert.Nil(t, result)
	assertScratchReleased(t, fs)
}

func TestRunPlainSplitRejectsInvalidInput(t *testing.T) {
	opened := false
	svc, _ := newTestSplitService(t, nil, WithDocumentOpener(func([]byte) (document.Source, error) {
		opened = true
		return &memorySource{}, nil
	}))
	ctx := context.Background()

	_, err := svc.RunPlainSplit(ctx, PlainSplitRequest{DocumentName: "report.docx", Pattern: `ID:(\d+)`})
	requireKind(t, err, models.KindInvalidInputType)
	assert.True(t, errors.Is(err, document.ErrUnsupportedType))

	_, err = svc.RunPlainSplit(ctx, PlainSplitRequest{DocumentName: "report.pdf", Pattern: `ID:\d+`})
	requireKind(t, err, models.KindInvalidPattern)
	assert.True(t, errors.Is(err, extract.ErrInvalidPattern))

	_, err = svc.RunPlainSplit(ctx, PlainSplitRequest{DocumentName: "report.pdf", Pattern: `ID:(\d+`})
	requireKind(t, err, models.KindInvalidPattern)

	assert.False(t, opened, "document must not be opened before inputs are validated")
}

func TestRunPlainSplitCorruptDocument(t *testing.T) {
	svc := NewSplitService(WithScratchFs(afero.NewMemMapFs()))

	_, err := svc.RunPlainSplit(context.Background(), PlainSplitRequest{
		DocumentName: "broken.pdf",
		Document:     []byte("%PDF-1.4 definitely not a pdf"),
		Pattern:      `ID:(\d+)`,
	})
	requireKind(t, err, models.KindDocumentParse)
	assert.True(t, errors.Is(err, document.ErrParse))
}

func TestRunPlainSplitCancelled(t *testing.T) {
	src := &memorySource{texts: []string{"ID:1", "ID:2", "ID:3"}}
	svc, _ := newTestSplitService(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.RunPlainSplit(ctx, PlainSplitRequest{DocumentName: "a.pdf", Pattern: `ID:(\d+)`})
	requireKind(t, err, models.KindInternal)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRunPlainSplitConcurrentKeepsOrder(t *testing.T) {
	texts := make([]string, 40)
	want := make([]string, 40)
	for i := range texts {
		texts[i] = fmt.Sprintf("ID:%d", 100+i)
		want[i] = fmt.Sprintf("%d", 100+i)
	}
	svc, _ := newTestSplitService(t, &memorySource{texts: texts}, WithConcurrency(8))

	result, err := svc.RunPlainSplit(context.Background(), PlainSplitRequest{DocumentName: "a.pdf", Pattern: `ID:(\d+)`})
	require.NoError(t, err)
	assert.Equal(t, want, result.Names)

	names := entryNames(t, result.Archive)
	require.Len(t, names, 40)
	assert.Equal(t, "100.pdf", names[0])
	assert.Equal(t, "139.pdf", names[39])
}

func TestRunSplitAndRenameMapsNames(t *testing.T) {
	src := &memorySource{texts: []string{"Student ID: 1023", "Student ID: 2048", "no identifier"}}
	svc, fs := newTestSplitService(t, src)

	workbook := buildWorkbook(t, [][]interface{}{
		{" ID ", "Name"},
		{1023, " alice "},
		{"unknown_3", "cover"},
	})

	result, err := svc.RunSplitAndRename(context.Background(), RenameSplitRequest{
		DocumentName: "scores.pdf",
		TableName:    "students.xlsx",
		Table:        workbook,
		Pattern:      `student id:\s*(\d+)`,
		KeyColumn:    "ID",
		ValueColumn:  "Name",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"alice", "2048", "cover"}, result.Names)
	assert.Equal(t, []string{"alice.pdf", "2048.pdf", "cover.pdf"}, entryNames(t, result.Archive))
	assertScratchReleased(t, fs)
}

func TestRunSplitAndRenameMissingColumnsFailsFast(t *testing.T) {
	opened := false
	svc, _ := newTestSplitService(t, nil, WithDocumentOpener(func([]byte) (document.Source, error) {
		opened = true
		return &memorySource{}, nil
	}))

	workbook := buildWorkbook(t, [][]interface{}{
		{"Code", "Title"},
		{"1", "a"},
	})

	_, err := svc.RunSplitAndRename(context.Background(), RenameSplitRequest{
		DocumentName: "scores.pdf",
		TableName:    "students.xlsx",
		Table:        workbook,
		Pattern:      `ID:(\d+)`,
		KeyColumn:    "ID",
		ValueColumn:  "Name",
	})
	requireKind(t, err, models.KindMissingColumns)
	assert.Contains(t, err.Error(), "ID")
	assert.Contains(t, err.Error(), "Name")
	assert.Contains(t, err.Error(), "Code")
	assert.False(t, opened)
}

func TestRunSplitAndRenameTableErrors(t *testing.T) {
	svc, _ := newTestSplitService(t, &memorySource{texts: []string{"ID:1"}})
	ctx := context.Background()

	req := RenameSplitRequest{
		DocumentName: "a.pdf",
		TableName:    "names.csv",
		Table:        []byte("ID,Name\n1,a\n"),
		Pattern:      `ID:(\d+)`,
		KeyColumn:    "ID",
		ValueColumn:  "Name",
	}
	_, err := svc.RunSplitAndRename(ctx, req)
	requireKind(t, err, models.KindInvalidInputType)

	req.TableName = "names.xlsx"
	_, err = svc.RunSplitAndRename(ctx, req)
	requireKind(t, err, models.KindTableParse)

	req.TableName = "names.xls"
	_, err = svc.RunSplitAndRename(ctx, req)
	requireKind(t, err, models.KindTableParse)
}

func TestPreviewReturnsNamesWithoutArchive(t *testing.T) {
	src := &memorySource{texts: []string{"ID:1", "ID:2"}}
	svc, _ := newTestSplitService(t, src)
	ctx := context.Background()

	result, err := svc.Preview(ctx, RenameSplitRequest{DocumentName: "a.pdf", Pattern: `ID:(\d+)`})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, result.Names)
	assert.Nil(t, result.Archive)

	result, err = svc.Preview(ctx, RenameSplitRequest{
		DocumentName: "a.pdf",
		TableName:    "map.xlsx",
		Table:        buildWorkbook(t, [][]interface{}{{"k", "v"}, {"2", "two"}}),
		Pattern:      `ID:(\d+)`,
		KeyColumn:    "k",
		ValueColumn:  "v",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "two"}, result.Names)
}

func TestSplitServiceWithRealPDF(t *testing.T) {
	data := buildPDF(t, "Certificate ID:7", "Certificate ID:9", "Blank page")
	svc := NewSplitService(WithScratchFs(afero.NewMemMapFs()))

	result, err := svc.RunPlainSplit(context.Background(), PlainSplitRequest{
		DocumentName: "certificates.pdf",
		Document:     data,
		Pattern:      `id:(\d+)`,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.PageCount)
	assert.Equal(t, []string{"7", "9", "unknown_3"}, result.Names)

	entries, err := archive.ReadEntries(result.Archive)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// 每个条目都是可以独立打开的单页PDF
	for _, e := range entries {
		page, err := document.OpenPDFBytes(e.Content)
		require.NoError(t, err, e.Name)
		assert.Equal(t, 1, page.PageCount())
	}
}

func TestPreviewEmptyTableUpload(t *testing.T) {
	svc, _ := newTestSplitService(t, &memorySource{texts: []string{"ID:1"}})

	_, err := svc.Preview(context.Background(), RenameSplitRequest{
		DocumentName: "a.pdf",
		TableName:    "map.xlsx",
		Table:        []byte{},
		Pattern:      `ID:(\d+)`,
		KeyColumn:    "k",
		ValueColumn:  "v",
	})
	requireKind(t, err, models.KindTableParse)
}

func TestSplitServiceRealPDFConcurrent(t *testing.T) {
	texts := make([]string, 12)
	want := make([]string, 12)
	for i := range texts {
		texts[i] = fmt.Sprintf("Roll No. %d", 500+i)
		want[i] = fmt.Sprintf("%d", 500+i)
	}
	svc := NewSplitService(WithScratchFs(afero.NewMemMapFs()), WithConcurrency(4))

	result, err := svc.RunPlainSplit(context.Background(), PlainSplitRequest{
		DocumentName: "results.pdf",
		Document:     buildPDF(t, texts...),
		Pattern:      `Roll No\.?\s*(\d+)`,
	})
	require.NoError(t, err)
	assert.Equal(t, want, result.Names)
	assert.Len(t, entryNames(t, result.Archive), 12)
}
