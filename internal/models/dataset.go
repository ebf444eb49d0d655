package models

import (
	"time"
)

// Dataset 标准化的列式数据批次
// 所有数据源返回的数据统一转换为该结构（fields + items）
type Dataset struct {
	Fields []string        `json:"fields"`
	Rows   [][]interface{} `json:"items"`
}

// Empty 判断数据集是否为空
func (d *Dataset) Empty() bool {
	return d == nil || len(d.Rows) == 0
}

// Len 数据行数
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// FieldIndex 构建字段名到列下标的映射
func (d *Dataset) FieldIndex() map[string]int {
	idx := make(map[string]int, len(d.Fields))
	for i, field := range d.Fields {
		idx[field] = i
	}
	return idx
}

// 辅助函数：从数据行中按下标取值，容忍缺列和空值

func getString(row []interface{}, index int) string {
	if index < 0 || index >= len(row) || row[index] == nil {
		return ""
	}
	if str, ok := row[index].(string); ok {
		return str
	}
	return ""
}

func getFloat(row []interface{}, index int) float64 {
	if index < 0 || index >= len(row) || row[index] == nil {
		return 0
	}
	switch v := row[index].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

func getDate(row []interface{}, index int) time.Time {
	if index < 0 || index >= len(row) || row[index] == nil {
		return time.Time{}
	}
	str, ok := row[index].(string)
	if !ok {
		return time.Time{}
	}
	// 数据源日期格式: YYYYMMDD 或 YYYY-MM-DD
	for _, layout := range []string{"20060102", "2006-01-02"} {
		if t, err := time.Parse(layout, str); err == nil {
			return t
		}
	}
	return time.Time{}
}
