package table

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ReadXLSX 读取 .xlsx 工作簿的第一个工作表
func ReadXLSX(data []byte) (Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: xlsx open: %v", ErrParse, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: xlsx workbook has no sheets", ErrParse)
	}

	cells, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: xlsx rows: %v", ErrParse, err)
	}

	return newGrid(cells), nil
}
