package table

import (
	"bytes"
	"fmt"

	"github.com/extrame/xls"
)

// ReadXLS 读取 .xls 工作簿的第一个工作表
func ReadXLS(data []byte) (t Table, err error) {
	// xls 解析器遇到损坏的文件可能直接panic
	defer func() {
		if r := recover(); r != nil {
			t, err = nil, fmt.Errorf("%w: xls: %v", ErrParse, r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("%w: xls open: %v", ErrParse, err)
	}
	if wb.NumSheets() == 0 {
		return nil, fmt.Errorf("%w: xls workbook has no sheets", ErrParse)
	}

	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, fmt.Errorf("%w: xls first sheet unreadable", ErrParse)
	}

	var cells [][]string
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			continue
		}
		line := make([]string, 0, row.LastCol())
		for c := 0; c < row.LastCol(); c++ {
			line = append(line, row.Col(c))
		}
		cells = append(cells, line)
	}

	return newGrid(cells), nil
}
