package models

import (
	"errors"
	"fmt"
	"time"
)

// DataCategory 数据类别，每个类别对应一张存储表
type DataCategory string

const (
	CategoryPrice       DataCategory = "price_data"         // 日线价格
	CategoryFundamental DataCategory = "fundamental_data"   // 估值数据
	CategoryIndicator   DataCategory = "indicator_data"     // 财务指标
	CategoryMtss        DataCategory = "mtss_data"          // 融资融券
	CategoryIncome      DataCategory = "income_statement"   // 利润表
	CategoryCashflow    DataCategory = "cashflow_statement" // 现金流量表
	CategoryBalance     DataCategory = "balance_sheet"      // 资产负债表
)

// 类别集合别名，供 CLI/API 展开
const (
	AliasMarket    = "market"    // 全部市场类数据
	AliasFinancial = "financial" // 全部财务报表数据
)

// ErrUnknownCategory 未注册的数据类别，属于配置错误，调度前必须拒绝
var ErrUnknownCategory = errors.New("未知的数据类别")

// CategorySpec 类别到表、日期列和模型转换的静态映射
// 启动时注册一次，而不是在每次调用时做字符串分发
type CategorySpec struct {
	Table      string                                      // 存储表名
	DateColumn string                                      // 按日期增量的列名：市场类为 day，报表类为 stat_date
	Convert    func(ds *Dataset) (interface{}, int, error) // 数据集到 gorm 模型切片
}

var categoryRegistry = map[DataCategory]CategorySpec{
	CategoryPrice:       {Table: "price_data", DateColumn: "day", Convert: convertPriceDaily},
	CategoryFundamental: {Table: "fundamental_data", DateColumn: "day", Convert: convertFundamentalDaily},
	CategoryIndicator:   {Table: "indicator_data", DateColumn: "day", Convert: convertIndicatorDaily},
	CategoryMtss:        {Table: "mtss_data", DateColumn: "day", Convert: convertMtssDaily},
	CategoryIncome:      {Table: "income_statement", DateColumn: "stat_date", Convert: convertIncomeStatement},
	CategoryCashflow:    {Table: "cashflow_statement", DateColumn: "stat_date", Convert: convertCashflowStatement},
	CategoryBalance:     {Table: "balance_sheet", DateColumn: "stat_date", Convert: convertBalanceSheet},
}

// Spec 返回类别的静态映射
func (c DataCategory) Spec() (CategorySpec, error) {
	spec, ok := categoryRegistry[c]
	if !ok {
		return CategorySpec{}, fmt.Errorf("%w: %s", ErrUnknownCategory, c)
	}
	return spec, nil
}

// Valid 判断类别是否已注册
func (c DataCategory) Valid() bool {
	_, ok := categoryRegistry[c]
	return ok
}

// String 实现 Stringer
func (c DataCategory) String() string {
	return string(c)
}

// MarketCategories 市场类数据类别（按交易日 day 增量）
func MarketCategories() []DataCategory {
	return []DataCategory{CategoryFundamental, CategoryIndicator, CategoryMtss, CategoryPrice}
}

// FinancialCategories 财务报表类别（按报告期 stat_date 增量）
func FinancialCategories() []DataCategory {
	return []DataCategory{CategoryIncome, CategoryCashflow, CategoryBalance}
}

// AllCategories 全部已注册类别
func AllCategories() []DataCategory {
	return append(FinancialCategories(), MarketCategories()...)
}

// ParseCategories 解析类别名列表，支持 market/financial 别名
func ParseCategories(names []string) ([]DataCategory, error) {
	if len(names) == 0 {
		return append(FinancialCategories(), MarketCategories()...), nil
	}

	seen := make(map[DataCategory]bool)
	var categories []DataCategory
	add := func(cs ...DataCategory) {
		for _, c := range cs {
			if !seen[c] {
				seen[c] = true
				categories = append(categories, c)
			}
		}
	}

	for _, name := range names {
		switch name {
		case AliasMarket:
			add(MarketCategories()...)
		case AliasFinancial:
			add(FinancialCategories()...)
		default:
			c := DataCategory(name)
			if !c.Valid() {
				return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, name)
			}
			add(c)
		}
	}

	return categories, nil
}

// 各类别的 Dataset -> gorm 模型转换

func convertPriceDaily(ds *Dataset) (interface{}, int, error) {
	idx := ds.FieldIndex()
	records := make([]PriceDaily, 0, ds.Len())
	for _, row := range ds.Rows {
		day := getDate(row, indexOf(idx, "day"))
		if day.IsZero() {
			continue
		}
		records = append(records, PriceDaily{
			Code:     getString(row, indexOf(idx, "code")),
			Day:      day,
			Open:     getFloat(row, indexOf(idx, "open")),
			Close:    getFloat(row, indexOf(idx, "close")),
			High:     getFloat(row, indexOf(idx, "high")),
			Low:      getFloat(row, indexOf(idx, "low")),
			PreClose: getFloat(row, indexOf(idx, "pre_close")),
			Volume:   getFloat(row, indexOf(idx, "volume")),
			Money:    getFloat(row, indexOf(idx, "money")),
			Factor:   getFloat(row, indexOf(idx, "factor")),
			Paused:   getFloat(row, indexOf(idx, "paused")),
		})
	}
	return records, len(records), nil
}

func convertFundamentalDaily(ds *Dataset) (interface{}, int, error) {
	idx := ds.FieldIndex()
	records := make([]FundamentalDaily, 0, ds.Len())
	for _, row := range ds.Rows {
		day := getDate(row, indexOf(idx, "day"))
		if day.IsZero() {
			continue
		}
		records = append(records, FundamentalDaily{
			Code:           getString(row, indexOf(idx, "code")),
			Day:            day,
			PeRatio:        getFloat(row, indexOf(idx, "pe_ratio")),
			PbRatio:        getFloat(row, indexOf(idx, "pb_ratio")),
			PsRatio:        getFloat(row, indexOf(idx, "ps_ratio")),
			PcfRatio:       getFloat(row, indexOf(idx, "pcf_ratio")),
			MarketCap:      getFloat(row, indexOf(idx, "market_cap")),
			CirculatingCap: getFloat(row, indexOf(idx, "circulating_cap")),
			TurnoverRatio:  getFloat(row, indexOf(idx, "turnover_ratio")),
		})
	}
	return records, len(records), nil
}

func convertIndicatorDaily(ds *Dataset) (interface{}, int, error) {
	idx := ds.FieldIndex()
	records := make([]IndicatorDaily, 0, ds.Len())
	for _, row := range ds.Rows {
		day := getDate(row, indexOf(idx, "day"))
		if day.IsZero() {
			continue
		}
		records = append(records, IndicatorDaily{
			Code:              getString(row, indexOf(idx, "code")),
			Day:               day,
			Eps:               getFloat(row, indexOf(idx, "eps")),
			Roe:               getFloat(row, indexOf(idx, "roe")),
			Roa:               getFloat(row, indexOf(idx, "roa")),
			GrossProfitMargin: getFloat(row, indexOf(idx, "gross_profit_margin")),
			NetProfitMargin:   getFloat(row, indexOf(idx, "net_profit_margin")),
		})
	}
	return records, len(records), nil
}

func convertMtssDaily(ds *Dataset) (interface{}, int, error) {
	idx := ds.FieldIndex()
	records := make([]MtssDaily, 0, ds.Len())
	for _, row := range ds.Rows {
		day := getDate(row, indexOf(idx, "day"))
		if day.IsZero() {
			continue
		}
		records = append(records, MtssDaily{
			Code:         getString(row, indexOf(idx, "code")),
			Day:          day,
			FinValue:     getFloat(row, indexOf(idx, "fin_value")),
			FinBuyValue:  getFloat(row, indexOf(idx, "fin_buy_value")),
			SecValue:     getFloat(row, indexOf(idx, "sec_value")),
			SecSellValue: getFloat(row, indexOf(idx, "sec_sell_value")),
			FinSecValue:  getFloat(row, indexOf(idx, "fin_sec_value")),
		})
	}
	return records, len(records), nil
}

func convertIncomeStatement(ds *Dataset) (interface{}, int, error) {
	idx := ds.FieldIndex()
	records := make([]IncomeStatement, 0, ds.Len())
	for _, row := range ds.Rows {
		statDate := getDate(row, indexOf(idx, "stat_date"))
		if statDate.IsZero() {
			continue
		}
		records = append(records, IncomeStatement{
			Code:                  getString(row, indexOf(idx, "code")),
			StatDate:              statDate,
			PubDate:               getDate(row, indexOf(idx, "pub_date")),
			TotalOperatingRevenue: getFloat(row, indexOf(idx, "total_operating_revenue")),
			OperatingRevenue:      getFloat(row, indexOf(idx, "operating_revenue")),
			OperatingProfit:       getFloat(row, indexOf(idx, "operating_profit")),
			TotalProfit:           getFloat(row, indexOf(idx, "total_profit")),
			NetProfit:             getFloat(row, indexOf(idx, "net_profit")),
			BasicEps:              getFloat(row, indexOf(idx, "basic_eps")),
		})
	}
	return records, len(records), nil
}

func convertCashflowStatement(ds *Dataset) (interface{}, int, error) {
	idx := ds.FieldIndex()
	records := make([]CashflowStatement, 0, ds.Len())
	for _, row := range ds.Rows {
		statDate := getDate(row, indexOf(idx, "stat_date"))
		if statDate.IsZero() {
			continue
		}
		records = append(records, CashflowStatement{
			Code:                   getString(row, indexOf(idx, "code")),
			StatDate:               statDate,
			PubDate:                getDate(row, indexOf(idx, "pub_date")),
			NetOperateCashFlow:     getFloat(row, indexOf(idx, "net_operate_cash_flow")),
			NetInvestCashFlow:      getFloat(row, indexOf(idx, "net_invest_cash_flow")),
			NetFinanceCashFlow:     getFloat(row, indexOf(idx, "net_finance_cash_flow")),
			CashEquivalentIncrease: getFloat(row, indexOf(idx, "cash_equivalent_increase")),
		})
	}
	return records, len(records), nil
}

func convertBalanceSheet(ds *Dataset) (interface{}, int, error) {
	idx := ds.FieldIndex()
	records := make([]BalanceSheet, 0, ds.Len())
	for _, row := range ds.Rows {
		statDate := getDate(row, indexOf(idx, "stat_date"))
		if statDate.IsZero() {
			continue
		}
		records = append(records, BalanceSheet{
			Code:                  getString(row, indexOf(idx, "code")),
			StatDate:              statDate,
			PubDate:               getDate(row, indexOf(idx, "pub_date")),
			TotalAssets:           getFloat(row, indexOf(idx, "total_assets")),
			TotalLiability:        getFloat(row, indexOf(idx, "total_liability")),
			TotalOwnerEquities:    getFloat(row, indexOf(idx, "total_owner_equities")),
			TotalCurrentAssets:    getFloat(row, indexOf(idx, "total_current_assets")),
			TotalCurrentLiability: getFloat(row, indexOf(idx, "total_current_liability")),
		})
	}
	return records, len(records), nil
}

// ConvertStockList 解析证券列表数据集，退市日期夹到今天
func ConvertStockList(ds *Dataset, today time.Time) []StockInfo {
	idx := ds.FieldIndex()
	records := make([]StockInfo, 0, ds.Len())
	for _, row := range ds.Rows {
		code := getString(row, indexOf(idx, "code"))
		if code == "" {
			continue
		}
		endDate := getDate(row, indexOf(idx, "end_date"))
		// 活跃股的 end_date 为 2200-01-01 哨兵值，统一夹到今天
		if endDate.IsZero() || endDate.After(today) {
			endDate = today
		}
		records = append(records, StockInfo{
			Code:         code,
			DisplayName:  getString(row, indexOf(idx, "display_name")),
			Name:         getString(row, indexOf(idx, "name")),
			SecurityType: getString(row, indexOf(idx, "type")),
			StartDate:    getDate(row, indexOf(idx, "start_date")),
			EndDate:      endDate,
		})
	}
	return records
}

func indexOf(idx map[string]int, field string) int {
	if i, ok := idx[field]; ok {
		return i
	}
	return -1
}
