package table

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Format 表格文件格式
type Format string

const (
	// XLSX Office Open XML 工作簿
	XLSX Format = "xlsx"
	// XLS 旧版二进制工作簿
	XLS Format = "xls"
)

var (
	// ErrUnsupportedFormat 不支持的表格格式
	ErrUnsupportedFormat = errors.New("unsupported table format")
	// ErrParse 表格内容无法读取
	ErrParse = errors.New("failed to parse table")
)

// Row 一行数据，列名到单元格值
type Row map[string]interface{}

// Table 表格数据源
// 由具体的表格解析实现提供表头和数据行
type Table interface {
	// HeaderColumns 返回表头列名（未做任何处理）
	HeaderColumns() []string

	// Rows 返回表头之后的所有数据行，键为 HeaderColumns 中的列名
	Rows() []Row
}

// Mapping 标识到目标名称的映射
type Mapping map[string]string

// MissingColumnsError 表格缺少请求的列
type MissingColumnsError struct {
	Missing   []string // 缺少的列
	Available []string // 表格中可用的列（已去除空白）
}

// Error 实现error接口
func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing columns: %s; available columns: %s",
		strings.Join(e.Missing, ", "), strings.Join(e.Available, ", "))
}

// FormatFromHint 根据调用方提供的扩展名或文件名确定表格格式
// 支持 "xlsx"、".xlsx"、"names.xlsx" 等写法，不检查文件内容
func FormatFromHint(hint string) (Format, error) {
	h := strings.ToLower(strings.TrimSpace(hint))
	if ext := filepath.Ext(h); ext != "" {
		h = ext
	}
	h = strings.TrimPrefix(h, ".")

	switch Format(h) {
	case XLSX:
		return XLSX, nil
	case XLS:
		return XLS, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, hint)
	}
}

// Parse 按指定格式解析表格数据
func Parse(data []byte, format Format) (Table, error) {
	switch format {
	case XLSX:
		return ReadXLSX(data)
	case XLS:
		return ReadXLS(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// Load 用表格中的两列构建映射
// 列名匹配前先去除表头两端空白，区分大小写；缺列时在处理任何数据行之前一次性报告所有缺失列
func Load(t Table, keyColumn, valueColumn string) (Mapping, error) {
	keyColumn = strings.TrimSpace(keyColumn)
	valueColumn = strings.TrimSpace(valueColumn)

	// 去除空白后的列名 -> 原始列名
	columns := make(map[string]string)
	available := make([]string, 0, len(t.HeaderColumns()))
	for _, raw := range t.HeaderColumns() {
		name := strings.TrimSpace(raw)
		columns[name] = raw
		available = append(available, name)
	}

	var missing []string
	for _, want := range []string{keyColumn, valueColumn} {
		if _, ok := columns[want]; ok || contains(missing, want) {
			continue
		}
		missing = append(missing, want)
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Missing: missing, Available: available}
	}

	keyRaw, valueRaw := columns[keyColumn], columns[valueColumn]
	mapping := make(Mapping)
	for _, row := range t.Rows() {
		key := strings.TrimSpace(CellString(row[keyRaw]))
		value := strings.TrimSpace(CellString(row[valueRaw]))
		mapping[key] = value
	}

	return mapping, nil
}

// CellString 将任意类型的单元格值转换为字符串
func CellString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// grid 基于二维字符串的表格实现，第一行为表头
type grid struct {
	header []string
	rows   []Row
}

// newGrid 从读取到的单元格构建表格
// 第一行作为表头，后续行按列位置对应到表头，超出表头的单元格被忽略
func newGrid(cells [][]string) *grid {
	g := &grid{}
	if len(cells) == 0 {
		return g
	}

	g.header = append([]string(nil), cells[0]...)
	for _, line := range cells[1:] {
		row := make(Row, len(g.header))
		for i, name := range g.header {
			if i < len(line) {
				row[name] = line[i]
			} else {
				row[name] = ""
			}
		}
		g.rows = append(g.rows, row)
	}
	return g
}

// HeaderColumns 返回表头
func (g *grid) HeaderColumns() []string {
	return g.header
}

// Rows 返回数据行
func (g *grid) Rows() []Row {
	return g.rows
}
