package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCategorySpec 测试类别到表和日期列的映射
func TestCategorySpec(t *testing.T) {
	spec, err := CategoryPrice.Spec()
	require.NoError(t, err)
	assert.Equal(t, "price_data", spec.Table)
	assert.Equal(t, "day", spec.DateColumn)

	spec, err = CategoryIncome.Spec()
	require.NoError(t, err)
	assert.Equal(t, "income_statement", spec.Table)
	assert.Equal(t, "stat_date", spec.DateColumn)

	_, err = DataCategory("bogus").Spec()
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

// TestParseCategories 测试类别解析和别名展开
func TestParseCategories(t *testing.T) {
	// 空输入返回全部类别
	all, err := ParseCategories(nil)
	require.NoError(t, err)
	assert.Len(t, all, 7)

	// market 别名展开为市场类
	market, err := ParseCategories([]string{AliasMarket})
	require.NoError(t, err)
	assert.ElementsMatch(t, MarketCategories(), market)

	// financial 别名展开为报表类
	financial, err := ParseCategories([]string{AliasFinancial})
	require.NoError(t, err)
	assert.ElementsMatch(t, FinancialCategories(), financial)

	// 别名与具体类别混用时去重
	mixed, err := ParseCategories([]string{"market", "price_data"})
	require.NoError(t, err)
	assert.Len(t, mixed, len(MarketCategories()))

	// 未知类别报错
	_, err = ParseCategories([]string{"bogus"})
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

// TestConvertPriceDaily 测试价格数据集转换
func TestConvertPriceDaily(t *testing.T) {
	ds := &Dataset{
		Fields: []string{"code", "day", "open", "close", "high", "low", "volume", "money"},
		Rows: [][]interface{}{
			{"000001.SZ", "2023-12-01", 10.5, 10.8, 11.0, 10.2, 1000.0, 10500.0},
			{"000001.SZ", "20231204", 10.8, 11.1, 11.2, 10.6, 2000.0, 22000.0},
			{"000001.SZ", nil, 1.0, 1.0, 1.0, 1.0, 1.0, 1.0}, // 无日期的行丢弃
		},
	}

	records, count, err := convertPriceDaily(ds)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	prices := records.([]PriceDaily)
	require.Len(t, prices, 2)
	assert.Equal(t, "000001.SZ", prices[0].Code)
	assert.Equal(t, "2023-12-01", prices[0].Day.Format("2006-01-02"))
	assert.Equal(t, 10.5, prices[0].Open)
	// 两种日期格式都能解析
	assert.Equal(t, "2023-12-04", prices[1].Day.Format("2006-01-02"))
}

// TestConvertIncomeStatement 测试报表数据集按 stat_date 转换
func TestConvertIncomeStatement(t *testing.T) {
	ds := &Dataset{
		Fields: []string{"code", "stat_date", "pub_date", "net_profit"},
		Rows: [][]interface{}{
			{"000001.SZ", "2023-09-30", "2023-10-25", 1234567.0},
		},
	}

	records, count, err := convertIncomeStatement(ds)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	statements := records.([]IncomeStatement)
	assert.Equal(t, "2023-09-30", statements[0].StatDate.Format("2006-01-02"))
	assert.Equal(t, 1234567.0, statements[0].NetProfit)
}

// TestConvertStockList 测试证券列表转换和退市日期钳制
func TestConvertStockList(t *testing.T) {
	today := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	ds := &Dataset{
		Fields: []string{"code", "display_name", "start_date", "end_date"},
		Rows: [][]interface{}{
			{"000001.SZ", "平安银行", "1991-04-03", "2200-01-01"}, // 活跃股的哨兵退市日期
			{"600000.SH", "浦发银行", "1999-11-10", "2023-06-30"}, // 已退市
			{"", "无代码", "2020-01-01", "2200-01-01"},           // 空代码丢弃
		},
	}

	stocks := ConvertStockList(ds, today)
	require.Len(t, stocks, 2)

	// 哨兵退市日期夹到今天
	assert.Equal(t, "2024-01-15", stocks[0].EndDate.Format("2006-01-02"))
	// 真实退市日期保留
	assert.Equal(t, "2023-06-30", stocks[1].EndDate.Format("2006-01-02"))
}

// TestDatasetHelpers 测试数据集辅助方法
func TestDatasetHelpers(t *testing.T) {
	var nilDS *Dataset
	assert.True(t, nilDS.Empty())
	assert.Equal(t, 0, nilDS.Len())

	ds := &Dataset{Fields: []string{"code", "day"}}
	assert.True(t, ds.Empty())

	ds.Rows = [][]interface{}{{"AAA", "2024-01-01"}}
	assert.False(t, ds.Empty())
	assert.Equal(t, 1, ds.Len())

	idx := ds.FieldIndex()
	assert.Equal(t, 0, idx["code"])
	assert.Equal(t, 1, idx["day"])
}
