package pipeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// CleaningRule 表格清洗规则
type CleaningRule interface {
	Apply(*Table) (*Table, error)
	Name() string
}

// DataCleaner 按顺序执行清洗规则
type DataCleaner struct {
	rules  []CleaningRule
	logger *zap.Logger
}

// NewDataCleaner 创建带默认规则的清洗器
func NewDataCleaner(logger *zap.Logger) *DataCleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	cleaner := &DataCleaner{logger: logger}
	cleaner.AddRule(NewTrailingColumnRule())
	cleaner.AddRule(NewBlankRowRule())
	cleaner.AddRule(NewHeaderRule())
	return cleaner
}

// AddRule 添加清洗规则
func (dc *DataCleaner) AddRule(rule CleaningRule) {
	dc.rules = append(dc.rules, rule)
}

// Clean 依次应用全部规则，任一规则失败即返回
func (dc *DataCleaner) Clean(table *Table) (*Table, error) {
	current := table
	for _, rule := range dc.rules {
		before := len(current.Header)
		rows := len(current.Records)
		next, err := rule.Apply(current)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", rule.Name(), err)
		}
		if len(next.Header) != before || len(next.Records) != rows {
			dc.logger.Info("cleaning rule changed table",
				zap.String("rule", rule.Name()),
				zap.String("source", table.Source),
				zap.Int("columns_before", before),
				zap.Int("columns_after", len(next.Header)),
				zap.Int("rows_before", rows),
				zap.Int("rows_after", len(next.Records)))
		}
		current = next
	}
	return current, nil
}

var unnamedColumn = regexp.MustCompile(`^Unnamed: \d+$`)

// TrailingColumnRule 删除末尾无名列（CSV 行尾多余逗号产生）
type TrailingColumnRule struct{}

func NewTrailingColumnRule() *TrailingColumnRule {
	return &TrailingColumnRule{}
}

func (r *TrailingColumnRule) Name() string {
	return "trailing_column"
}

func (r *TrailingColumnRule) Apply(table *Table) (*Table, error) {
	n := len(table.Header)
	if n == 0 {
		return table, nil
	}
	last := strings.TrimSpace(table.Header[n-1])
	if last != "" && !unnamedColumn.MatchString(last) {
		return table, nil
	}
	records := make([][]string, len(table.Records))
	for i, record := range table.Records {
		if len(record) >= n {
			record = record[:n-1]
		}
		records[i] = record
	}
	return &Table{Source: table.Source, Header: table.Header[:n-1], Records: records}, nil
}

// BlankRowRule 删除全空行
type BlankRowRule struct{}

func NewBlankRowRule() *BlankRowRule {
	return &BlankRowRule{}
}

func (r *BlankRowRule) Name() string {
	return "blank_row"
}

func (r *BlankRowRule) Apply(table *Table) (*Table, error) {
	records := make([][]string, 0, len(table.Records))
	for _, record := range table.Records {
		blank := true
		for _, field := range record {
			if strings.TrimSpace(field) != "" {
				blank = false
				break
			}
		}
		if !blank {
			records = append(records, record)
		}
	}
	return &Table{Source: table.Source, Header: table.Header, Records: records}, nil
}

// HeaderRule 校验表头：去除空白，拒绝空名和重复名
type HeaderRule struct{}

func NewHeaderRule() *HeaderRule {
	return &HeaderRule{}
}

func (r *HeaderRule) Name() string {
	return "header"
}

func (r *HeaderRule) Apply(table *Table) (*Table, error) {
	header := make([]string, len(table.Header))
	seen := make(map[string]int, len(table.Header))
	for i, name := range table.Header {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("%w: %s: empty column name at %d", ErrMalformedDataset, table.Source, i)
		}
		if prev, ok := seen[name]; ok {
			return nil, fmt.Errorf("%w: %s: duplicate column %q at %d and %d", ErrMalformedDataset, table.Source, name, prev, i)
		}
		seen[name] = i
		header[i] = name
	}
	return &Table{Source: table.Source, Header: header, Records: table.Records}, nil
}

// Dataset 清洗后的训练/测试数据
type Dataset struct {
	Columns  []string
	Features [][]float64
	Labels   []string
}

// BuildDataset 拆分标签列，其余列按原顺序解析为数值特征
func BuildDataset(table *Table, labelColumn string) (*Dataset, error) {
	labelIdx := -1
	for i, name := range table.Header {
		if name == labelColumn {
			labelIdx = i
			break
		}
	}
	if labelIdx < 0 {
		return nil, fmt.Errorf("%w: %s: label column %q not found", ErrMalformedDataset, table.Source, labelColumn)
	}
	if len(table.Records) == 0 {
		return nil, fmt.Errorf("%w: %s: no rows", ErrMalformedDataset, table.Source)
	}

	columns := make([]string, 0, len(table.Header)-1)
	for i, name := range table.Header {
		if i != labelIdx {
			columns = append(columns, name)
		}
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: %s: no feature columns", ErrMalformedDataset, table.Source)
	}

	ds := &Dataset{
		Columns:  columns,
		Features: make([][]float64, 0, len(table.Records)),
		Labels:   make([]string, 0, len(table.Records)),
	}
	for rowIdx, record := range table.Records {
		if len(record) != len(table.Header) {
			return nil, fmt.Errorf("%w: %s: row %d has %d fields, expected %d",
				ErrMalformedDataset, table.Source, rowIdx+1, len(record), len(table.Header))
		}
		label := strings.TrimSpace(record[labelIdx])
		if label == "" {
			return nil, fmt.Errorf("%w: %s: row %d has empty label", ErrMalformedDataset, table.Source, rowIdx+1)
		}
		row := make([]float64, 0, len(columns))
		for colIdx, field := range record {
			if colIdx == labelIdx {
				continue
			}
			value, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: row %d column %q: %v",
					ErrMalformedDataset, table.Source, rowIdx+1, table.Header[colIdx], err)
			}
			row = append(row, value)
		}
		ds.Features = append(ds.Features, row)
		ds.Labels = append(ds.Labels, label)
	}
	return ds, nil
}

// AlignTo 按给定列顺序重排特征；缺列视为数据格式错误，多余列丢弃
func (ds *Dataset) AlignTo(columns []string) (*Dataset, error) {
	index := make(map[string]int, len(ds.Columns))
	for i, name := range ds.Columns {
		index[name] = i
	}
	positions := make([]int, len(columns))
	for i, name := range columns {
		pos, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrMalformedDataset, name)
		}
		positions[i] = pos
	}

	aligned := &Dataset{
		Columns:  append([]string(nil), columns...),
		Features: make([][]float64, len(ds.Features)),
		Labels:   ds.Labels,
	}
	for r, row := range ds.Features {
		out := make([]float64, len(positions))
		for i, pos := range positions {
			out[i] = row[pos]
		}
		aligned.Features[r] = out
	}
	return aligned, nil
}

// LoadDataset 读取、清洗并解析一个带标签的数据文件
func LoadDataset(path, labelColumn string, cleaner *DataCleaner) (*Dataset, error) {
	table, err := ReadTable(path)
	if err != nil {
		return nil, err
	}
	if cleaner == nil {
		cleaner = NewDataCleaner(nil)
	}
	cleaned, err := cleaner.Clean(table)
	if err != nil {
		return nil, err
	}
	return BuildDataset(cleaned, labelColumn)
}
