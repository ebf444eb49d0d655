package models

import (
	"fmt"
	"strings"
	"time"
)

// 交易类型
const (
	TradeTypeBuy  = 23 // 买入
	TradeTypeSell = 24 // 卖出
)

// UserTransaction 用户交易记录
type UserTransaction struct {
	TradeID    string    `gorm:"type:varchar(64);primaryKey" json:"trade_id"`                     // 交易唯一ID
	UserID     string    `gorm:"type:varchar(32);index:idx_transaction_user_date" json:"user_id"` // 账户ID
	StockCode  string    `gorm:"type:varchar(20);index" json:"stock_code"`                        // 证券代码
	TradeDate  time.Time `gorm:"type:date;index:idx_transaction_user_date" json:"trade_date"`     // 交易日期
	TradeTime  time.Time `json:"trade_time"`                                                      // 交易时间
	TradeType  int       `json:"trade_type"`                                                      // 23-买入 24-卖出
	StrategyID string    `gorm:"type:varchar(32);index" json:"strategy_id"`                       // 策略ID（从备注提取）
	Quantity   int       `json:"quantity"`                                                        // 成交数量
	Price      float64   `gorm:"type:decimal(12,4)" json:"price"`                                 // 成交均价
	Amount     float64   `gorm:"type:decimal(20,4)" json:"amount"`                                // 成交金额
	Commission float64   `gorm:"type:decimal(12,4)" json:"commission"`                            // 佣金
	StampTax   float64   `gorm:"type:decimal(12,4)" json:"stamp_tax"`                             // 印花税
	OtherFees  float64   `gorm:"type:decimal(12,4)" json:"other_fees"`                            // 其他费用
	NetAmount  float64   `gorm:"type:decimal(20,4)" json:"net_amount"`                            // 净交易金额
	OrderID    string    `gorm:"type:varchar(64)" json:"order_id"`                                // 订单编号
	Remark     string    `gorm:"type:varchar(255)" json:"remark"`                                 // 备注
	CreatedAt  time.Time `json:"created_at"`
}

// TableName 指定表名
func (UserTransaction) TableName() string {
	return "user_transactions"
}

// IsBuy 是否为买入交易
func (t *UserTransaction) IsBuy() bool {
	return t.TradeType == TradeTypeBuy
}

// Validate 数据校验
func (t *UserTransaction) Validate() error {
	if t.TradeID == "" || t.UserID == "" || t.StockCode == "" {
		return fmt.Errorf("交易记录缺少必填字段: trade_id=%q user_id=%q stock_code=%q",
			t.TradeID, t.UserID, t.StockCode)
	}
	if t.TradeType != TradeTypeBuy && t.TradeType != TradeTypeSell {
		return fmt.Errorf("非法交易类型: %d", t.TradeType)
	}
	if t.Quantity <= 0 || t.Price <= 0 {
		return fmt.Errorf("交易数量和价格必须为正: quantity=%d price=%v", t.Quantity, t.Price)
	}
	if !validExchangeSuffix(t.StockCode) {
		return fmt.Errorf("证券代码格式不正确: %s", t.StockCode)
	}
	if !t.TradeTime.IsZero() && !sameDay(t.TradeTime, t.TradeDate) {
		return fmt.Errorf("交易时间与交易日期不一致: %s vs %s",
			t.TradeTime.Format("2006-01-02"), t.TradeDate.Format("2006-01-02"))
	}
	return nil
}

// UserPosition 用户持仓快照，按 (用户, 日期, 证券) 唯一
type UserPosition struct {
	PositionID         string    `gorm:"type:varchar(64);primaryKey" json:"position_id"`               // 持仓记录唯一ID
	UserID             string    `gorm:"type:varchar(32);index:idx_position_user_date" json:"user_id"` // 账户ID
	PositionDate       time.Time `gorm:"type:date;index:idx_position_user_date" json:"position_date"`  // 持仓日期
	StockCode          string    `gorm:"type:varchar(20);index" json:"stock_code"`                     // 证券代码
	PositionQuantity   int       `json:"position_quantity"`                                            // 持仓数量
	AvailableQuantity  int       `json:"available_quantity"`                                           // 可用数量
	FrozenQuantity     int       `json:"frozen_quantity"`                                              // 冻结数量
	TransitShares      int       `json:"transit_shares"`                                               // 在途股份
	YesterdayQuantity  int       `json:"yesterday_quantity"`                                           // 昨夜持股
	OpenPrice          float64   `gorm:"type:decimal(12,4)" json:"open_price"`                         // 开仓成本价
	MarketValue        float64   `gorm:"type:decimal(20,4)" json:"market_value"`                       // 持仓市值
	CurrentPrice       float64   `gorm:"type:decimal(12,4)" json:"current_price"`                      // 当前价格（由市值推算）
	UnrealizedPnl      float64   `gorm:"type:decimal(20,4)" json:"unrealized_pnl"`                     // 未实现盈亏
	UnrealizedPnlRatio float64   `gorm:"type:decimal(12,6)" json:"unrealized_pnl_ratio"`               // 未实现盈亏比例
	Remark             string    `gorm:"type:varchar(255)" json:"remark"`                              // 备注
	Timestamp          time.Time `json:"timestamp"`                                                    // 数据时间戳
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TableName 指定表名
func (UserPosition) TableName() string {
	return "user_positions"
}

// Validate 数据校验
func (p *UserPosition) Validate() error {
	if p.PositionID == "" || p.UserID == "" || p.StockCode == "" || p.PositionDate.IsZero() {
		return fmt.Errorf("持仓记录缺少必填字段: position_id=%q user_id=%q stock_code=%q",
			p.PositionID, p.UserID, p.StockCode)
	}
	if p.PositionQuantity < 0 || p.AvailableQuantity < 0 {
		return fmt.Errorf("持仓数量不能为负: position=%d available=%d",
			p.PositionQuantity, p.AvailableQuantity)
	}
	if p.AvailableQuantity+p.FrozenQuantity > p.PositionQuantity {
		return fmt.Errorf("可用数量加冻结数量超出持仓数量: available=%d frozen=%d position=%d",
			p.AvailableQuantity, p.FrozenQuantity, p.PositionQuantity)
	}
	if !validExchangeSuffix(p.StockCode) {
		return fmt.Errorf("证券代码格式不正确: %s", p.StockCode)
	}
	if p.OpenPrice < 0 || p.MarketValue < 0 {
		return fmt.Errorf("价格和市值不能为负: open=%v market_value=%v", p.OpenPrice, p.MarketValue)
	}
	return nil
}

// FillDerived 由市值和持仓数量推算现价与未实现盈亏
func (p *UserPosition) FillDerived() {
	if p.PositionQuantity > 0 && p.MarketValue > 0 {
		p.CurrentPrice = p.MarketValue / float64(p.PositionQuantity)
	}
	if p.CurrentPrice > 0 && p.OpenPrice > 0 {
		cost := p.OpenPrice * float64(p.PositionQuantity)
		p.UnrealizedPnl = p.MarketValue - cost
		if cost > 0 {
			p.UnrealizedPnlRatio = p.UnrealizedPnl / cost
		}
	}
}

func validExchangeSuffix(code string) bool {
	return strings.HasSuffix(code, ".SH") ||
		strings.HasSuffix(code, ".SZ") ||
		strings.HasSuffix(code, ".BJ")
}

func sameDay(a, b time.Time) bool {
	return a.Format("2006-01-02") == b.Format("2006-01-02")
}
