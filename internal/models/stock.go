package models

import (
	"time"
)

// StockInfo 证券基本信息（stock_list 表）
type StockInfo struct {
	Code         string    `gorm:"type:varchar(20);primaryKey" json:"code"`     // 证券代码（带交易所后缀）
	DisplayName  string    `gorm:"type:varchar(50)" json:"display_name"`        // 证券名称
	Name         string    `gorm:"type:varchar(50)" json:"name"`                // 证券简称拼音
	SecurityType string    `gorm:"type:varchar(20);index" json:"security_type"` // 证券类型 stock/index/etf
	StartDate    time.Time `gorm:"type:date" json:"start_date"`                 // 上市日期
	EndDate      time.Time `gorm:"type:date" json:"end_date"`                   // 退市日期（活跃股为哨兵值，入库前夹到今天）
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName 指定表名
func (StockInfo) TableName() string {
	return "stock_list"
}

// PriceDaily 日线价格数据
type PriceDaily struct {
	Code      string    `gorm:"type:varchar(20);primaryKey" json:"code"`             // 证券代码
	Day       time.Time `gorm:"type:date;primaryKey;index:idx_price_day" json:"day"` // 交易日期
	Open      float64   `gorm:"type:decimal(12,4)" json:"open"`                      // 开盘价
	Close     float64   `gorm:"type:decimal(12,4)" json:"close"`                     // 收盘价
	High      float64   `gorm:"type:decimal(12,4)" json:"high"`                      // 最高价
	Low       float64   `gorm:"type:decimal(12,4)" json:"low"`                       // 最低价
	PreClose  float64   `gorm:"type:decimal(12,4)" json:"pre_close"`                 // 昨收价
	Volume    float64   `gorm:"type:decimal(20,2)" json:"volume"`                    // 成交量（股）
	Money     float64   `gorm:"type:decimal(20,2)" json:"money"`                     // 成交额（元）
	Factor    float64   `gorm:"type:decimal(16,8)" json:"factor"`                    // 复权因子
	Paused    float64   `gorm:"type:decimal(4,1)" json:"paused"`                     // 是否停牌 0/1
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定表名
func (PriceDaily) TableName() string {
	return "price_data"
}

// FundamentalDaily 估值数据（市值、市盈率等）
type FundamentalDaily struct {
	Code           string    `gorm:"type:varchar(20);primaryKey" json:"code"`
	Day            time.Time `gorm:"type:date;primaryKey;index:idx_fundamental_day" json:"day"`
	PeRatio        float64   `gorm:"type:decimal(16,4)" json:"pe_ratio"`        // 市盈率 TTM
	PbRatio        float64   `gorm:"type:decimal(16,4)" json:"pb_ratio"`        // 市净率
	PsRatio        float64   `gorm:"type:decimal(16,4)" json:"ps_ratio"`        // 市销率
	PcfRatio       float64   `gorm:"type:decimal(16,4)" json:"pcf_ratio"`       // 市现率
	MarketCap      float64   `gorm:"type:decimal(20,4)" json:"market_cap"`      // 总市值（亿元）
	CirculatingCap float64   `gorm:"type:decimal(20,4)" json:"circulating_cap"` // 流通市值（亿元）
	TurnoverRatio  float64   `gorm:"type:decimal(12,4)" json:"turnover_ratio"`  // 换手率
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName 指定表名
func (FundamentalDaily) TableName() string {
	return "fundamental_data"
}

// IndicatorDaily 财务指标数据
type IndicatorDaily struct {
	Code              string    `gorm:"type:varchar(20);primaryKey" json:"code"`
	Day               time.Time `gorm:"type:date;primaryKey;index:idx_indicator_day" json:"day"`
	Eps               float64   `gorm:"type:decimal(12,4)" json:"eps"`                 // 每股收益
	Roe               float64   `gorm:"type:decimal(12,4)" json:"roe"`                 // 净资产收益率
	Roa               float64   `gorm:"type:decimal(12,4)" json:"roa"`                 // 总资产收益率
	GrossProfitMargin float64   `gorm:"type:decimal(12,4)" json:"gross_profit_margin"` // 销售毛利率
	NetProfitMargin   float64   `gorm:"type:decimal(12,4)" json:"net_profit_margin"`   // 销售净利率
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName 指定表名
func (IndicatorDaily) TableName() string {
	return "indicator_data"
}

// MtssDaily 融资融券数据
type MtssDaily struct {
	Code         string    `gorm:"type:varchar(20);primaryKey" json:"code"`
	Day          time.Time `gorm:"type:date;primaryKey;index:idx_mtss_day" json:"day"`
	FinValue     float64   `gorm:"type:decimal(20,2)" json:"fin_value"`      // 融资余额
	FinBuyValue  float64   `gorm:"type:decimal(20,2)" json:"fin_buy_value"`  // 融资买入额
	SecValue     float64   `gorm:"type:decimal(20,2)" json:"sec_value"`      // 融券余量
	SecSellValue float64   `gorm:"type:decimal(20,2)" json:"sec_sell_value"` // 融券卖出量
	FinSecValue  float64   `gorm:"type:decimal(20,2)" json:"fin_sec_value"`  // 融资融券余额
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName 指定表名
func (MtssDaily) TableName() string {
	return "mtss_data"
}

// IncomeStatement 利润表（按报告期 stat_date 存储）
type IncomeStatement struct {
	Code                  string    `gorm:"type:varchar(20);primaryKey" json:"code"`
	StatDate              time.Time `gorm:"type:date;primaryKey;index:idx_income_stat_date" json:"stat_date"` // 报告期
	PubDate               time.Time `gorm:"type:date" json:"pub_date"`                                        // 公告日期
	TotalOperatingRevenue float64   `gorm:"type:decimal(20,2)" json:"total_operating_revenue"`                // 营业总收入
	OperatingRevenue      float64   `gorm:"type:decimal(20,2)" json:"operating_revenue"`                      // 营业收入
	OperatingProfit       float64   `gorm:"type:decimal(20,2)" json:"operating_profit"`                       // 营业利润
	TotalProfit           float64   `gorm:"type:decimal(20,2)" json:"total_profit"`                           // 利润总额
	NetProfit             float64   `gorm:"type:decimal(20,2)" json:"net_profit"`                             // 净利润
	BasicEps              float64   `gorm:"type:decimal(12,4)" json:"basic_eps"`                              // 基本每股收益
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// TableName 指定表名
func (IncomeStatement) TableName() string {
	return "income_statement"
}

// CashflowStatement 现金流量表
type CashflowStatement struct {
	Code                   string    `gorm:"type:varchar(20);primaryKey" json:"code"`
	StatDate               time.Time `gorm:"type:date;primaryKey;index:idx_cashflow_stat_date" json:"stat_date"`
	PubDate                time.Time `gorm:"type:date" json:"pub_date"`
	NetOperateCashFlow     float64   `gorm:"type:decimal(20,2)" json:"net_operate_cash_flow"`    // 经营活动现金流量净额
	NetInvestCashFlow      float64   `gorm:"type:decimal(20,2)" json:"net_invest_cash_flow"`     // 投资活动现金流量净额
	NetFinanceCashFlow     float64   `gorm:"type:decimal(20,2)" json:"net_finance_cash_flow"`    // 筹资活动现金流量净额
	CashEquivalentIncrease float64   `gorm:"type:decimal(20,2)" json:"cash_equivalent_increase"` // 现金及等价物净增加额
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// TableName 指定表名
func (CashflowStatement) TableName() string {
	return "cashflow_statement"
}

// BalanceSheet 资产负债表
type BalanceSheet struct {
	Code                  string    `gorm:"type:varchar(20);primaryKey" json:"code"`
	StatDate              time.Time `gorm:"type:date;primaryKey;index:idx_balance_stat_date" json:"stat_date"`
	PubDate               time.Time `gorm:"type:date" json:"pub_date"`
	TotalAssets           float64   `gorm:"type:decimal(20,2)" json:"total_assets"`            // 总资产
	TotalLiability        float64   `gorm:"type:decimal(20,2)" json:"total_liability"`         // 总负债
	TotalOwnerEquities    float64   `gorm:"type:decimal(20,2)" json:"total_owner_equities"`    // 所有者权益
	TotalCurrentAssets    float64   `gorm:"type:decimal(20,2)" json:"total_current_assets"`    // 流动资产合计
	TotalCurrentLiability float64   `gorm:"type:decimal(20,2)" json:"total_current_liability"` // 流动负债合计
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// TableName 指定表名
func (BalanceSheet) TableName() string {
	return "balance_sheet"
}

// UpdateRun 更新任务记录
type UpdateRun struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	RunID        string     `gorm:"type:varchar(50);uniqueIndex;not null" json:"run_id"` // 运行ID
	Status       string     `gorm:"type:varchar(20)" json:"status"`                      // 状态：running/completed/failed
	Categories   string     `gorm:"type:varchar(255)" json:"categories"`                 // 本次更新的数据类别，逗号分隔
	ForceFull    bool       `json:"force_full"`                                          // 是否强制全量更新
	AsOf         time.Time  `gorm:"type:date" json:"as_of"`                              // 更新截止日期
	TotalCount   int        `json:"total_count"`                                         // 任务总数
	UpdatedCount int        `json:"updated_count"`                                       // 更新成功数
	SkippedCount int        `json:"skipped_count"`                                       // 跳过数
	FailedCount  int        `json:"failed_count"`                                        // 失败数
	FailureNotes string     `gorm:"type:text" json:"failure_notes"`                      // 失败原因摘要
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName 指定表名
func (UpdateRun) TableName() string {
	return "update_runs"
}
