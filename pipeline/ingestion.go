package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	ErrDatasetNotFound  = errors.New("dataset not found")
	ErrMalformedDataset = errors.New("malformed dataset")
)

// Table 原始表格数据，表头与记录均为字符串
type Table struct {
	Source  string
	Header  []string
	Records [][]string
}

// ReadTable 按扩展名读取 CSV 或 XLSX 文件
func ReadTable(path string) (*Table, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, path)
		}
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return readExcelTable(path)
	default:
		return readCSVTable(path)
	}
}

// readCSVTable 读取 CSV，自动剥离 BOM（UTF-8/UTF-16）
func readCSVTable(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoded := transform.NewReader(file, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	return parseCSV(path, decoded)
}

func parseCSV(source string, r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedDataset, source, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s: empty file", ErrMalformedDataset, source)
	}
	return &Table{
		Source:  source,
		Header:  records[0],
		Records: records[1:],
	}, nil
}

// readExcelTable 读取第一个工作表
func readExcelTable(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedDataset, path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: %s: no sheets", ErrMalformedDataset, path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedDataset, path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s: empty sheet", ErrMalformedDataset, path)
	}

	header := rows[0]
	records := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		// GetRows 会截断行尾空单元格，这里补齐到表头宽度
		if len(row) < len(header) {
			padded := make([]string, len(header))
			copy(padded, row)
			row = padded
		}
		records = append(records, row)
	}
	return &Table{Source: path, Header: header, Records: records}, nil
}
