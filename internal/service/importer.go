package service

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"stock_platform/internal/models"
)

// TradeStore 导入服务依赖的存储操作
type TradeStore interface {
	SaveTransactions(transactions []models.UserTransaction) (int, error)
	SavePositions(positions []models.UserPosition) (int, error)
}

// Importer 账户交易与持仓文件导入服务
// 账户数据目录布局为 <根目录>/<账户ID>/trades_orders/YYYYMMDD.json
// 和 <根目录>/<账户ID>/account_positions/YYYYMMDD.json
type Importer struct {
	store  TradeStore
	logger *zap.Logger
	now    func() time.Time
}

// NewImporter 创建导入服务
func NewImporter(store TradeStore, logger *zap.Logger) *Importer {
	return &Importer{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// FileResult 单个文件的导入结果
type FileResult struct {
	Path      string   `json:"path"`
	AccountID string   `json:"account_id"`
	Date      string   `json:"date"`
	Total     int      `json:"total"`
	Imported  int      `json:"imported"`
	Errors    []string `json:"errors,omitempty"`
}

// ImportResult 一次批量导入的汇总
type ImportResult struct {
	Files    []FileResult `json:"files"`
	Total    int          `json:"total"`
	Imported int          `json:"imported"`
	Errors   int          `json:"errors"`
}

func (r *ImportResult) add(f FileResult) {
	r.Files = append(r.Files, f)
	r.Total += f.Total
	r.Imported += f.Imported
	r.Errors += len(f.Errors)
}

// tradeFile 交易文件结构，trades 数组元素同时支持中英文字段名
type tradeFile struct {
	Trades []map[string]interface{} `json:"trades"`
}

// positionFile 持仓文件结构，positions 数组元素使用中文字段名
type positionFile struct {
	Timestamp   string                   `json:"timestamp"`
	AccountInfo map[string]interface{}   `json:"account_info"`
	Positions   []map[string]interface{} `json:"positions"`
}

// ImportTradeFile 导入单个交易文件
// 账户ID和交易日期取自文件路径，文件名须为 YYYYMMDD.json
func (im *Importer) ImportTradeFile(path string) (FileResult, error) {
	result := FileResult{Path: path}

	accountID, tradeDate, err := parseAccountFile(path)
	if err != nil {
		return result, err
	}
	result.AccountID = accountID
	result.Date = tradeDate.Format("2006-01-02")

	data, err := os.ReadFile(path)
	if err != nil {
		return result, fmt.Errorf("读取交易文件失败: %w", err)
	}

	var file tradeFile
	if err := json.Unmarshal(data, &file); err != nil {
		return result, fmt.Errorf("解析交易文件失败: %w", err)
	}
	result.Total = len(file.Trades)

	var transactions []models.UserTransaction
	for i, raw := range file.Trades {
		tx, err := im.convertTrade(raw, accountID, tradeDate)
		if err != nil {
			msg := fmt.Sprintf("第%d条交易记录转换失败: %v", i+1, err)
			result.Errors = append(result.Errors, msg)
			im.logger.Warn("交易记录转换失败",
				zap.String("path", path), zap.Int("index", i+1), zap.Error(err))
			continue
		}
		transactions = append(transactions, tx)
	}

	count, err := im.store.SaveTransactions(transactions)
	if err != nil {
		return result, err
	}
	result.Imported = count

	im.logger.Info("导入交易文件完成",
		zap.String("path", path),
		zap.String("account", accountID),
		zap.Int("imported", count),
		zap.Int("errors", len(result.Errors)))
	return result, nil
}

// ImportPositionFile 导入单个持仓快照文件
func (im *Importer) ImportPositionFile(path string) (FileResult, error) {
	result := FileResult{Path: path}

	accountID, positionDate, err := parseAccountFile(path)
	if err != nil {
		return result, err
	}
	result.AccountID = accountID
	result.Date = positionDate.Format("2006-01-02")

	data, err := os.ReadFile(path)
	if err != nil {
		return result, fmt.Errorf("读取持仓文件失败: %w", err)
	}

	var file positionFile
	if err := json.Unmarshal(data, &file); err != nil {
		return result, fmt.Errorf("解析持仓文件失败: %w", err)
	}
	if file.Positions == nil {
		return result, fmt.Errorf("持仓文件缺少 positions 字段: %s", path)
	}
	result.Total = len(file.Positions)

	timestamp, err := time.Parse("2006-01-02 15:04:05", file.Timestamp)
	if err != nil {
		timestamp = im.now()
	}

	var positions []models.UserPosition
	for i, raw := range file.Positions {
		p, err := convertPosition(raw, accountID, positionDate, timestamp)
		if err != nil {
			msg := fmt.Sprintf("第%d条持仓记录转换失败: %v", i+1, err)
			result.Errors = append(result.Errors, msg)
			im.logger.Warn("持仓记录转换失败",
				zap.String("path", path), zap.Int("index", i+1), zap.Error(err))
			continue
		}
		positions = append(positions, p)
	}

	count, err := im.store.SavePositions(positions)
	if err != nil {
		return result, err
	}
	result.Imported = count

	im.logger.Info("导入持仓文件完成",
		zap.String("path", path),
		zap.String("account", accountID),
		zap.Int("imported", count),
		zap.Int("errors", len(result.Errors)))
	return result, nil
}

// ImportDir 扫描账户根目录，导入全部交易和持仓文件
// 只识别纯数字命名的账户目录
func (im *Importer) ImportDir(root string) (*ImportResult, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("读取账户目录失败: %w", err)
	}

	result := &ImportResult{}
	for _, entry := range entries {
		if !entry.IsDir() || !isDigits(entry.Name()) {
			continue
		}
		accountDir := filepath.Join(root, entry.Name())

		for _, path := range jsonFiles(filepath.Join(accountDir, "trades_orders")) {
			fr, err := im.ImportTradeFile(path)
			if err != nil {
				fr.Errors = append(fr.Errors, err.Error())
				im.logger.Error("导入交易文件失败", zap.String("path", path), zap.Error(err))
			}
			result.add(fr)
		}

		for _, path := range jsonFiles(filepath.Join(accountDir, "account_positions")) {
			fr, err := im.ImportPositionFile(path)
			if err != nil {
				fr.Errors = append(fr.Errors, err.Error())
				im.logger.Error("导入持仓文件失败", zap.String("path", path), zap.Error(err))
			}
			result.add(fr)
		}
	}

	return result, nil
}

func (im *Importer) convertTrade(raw map[string]interface{}, accountID string, tradeDate time.Time) (models.UserTransaction, error) {
	tradeID := strField(raw, "TradeId", "TradeID")
	if tradeID == "" {
		tradeID = fmt.Sprintf("%s_%d", accountID, im.now().UnixMicro())
	}
	remark := strField(raw, "Remark")

	tx := models.UserTransaction{
		TradeID:    tradeID,
		UserID:     accountID,
		StockCode:  strField(raw, "Code", "证券代码", "StockCode"),
		TradeDate:  tradeDate,
		TradeTime:  combineDayTime(tradeDate, strField(raw, "TradeTime")),
		TradeType:  intField(raw, "TradeType"),
		StrategyID: extractStrategyID(remark),
		Quantity:   intField(raw, "Volume", "Quantity", "成交数量"),
		Price:      floatField(raw, "Price", "TradePrice", "成交均价"),
		Amount:     floatField(raw, "Value", "Amount", "成交金额"),
		Commission: floatField(raw, "Commission"),
		StampTax:   floatField(raw, "Tax"),
		OtherFees:  floatField(raw, "OtherFees"),
		NetAmount:  floatField(raw, "NetAmount", "成交金额"),
		OrderID:    strField(raw, "OrderID", "OrderId", "订单编号"),
		Remark:     remark,
	}
	if err := tx.Validate(); err != nil {
		return models.UserTransaction{}, err
	}
	return tx, nil
}

func convertPosition(raw map[string]interface{}, userID string, positionDate, timestamp time.Time) (models.UserPosition, error) {
	code := strField(raw, "证券代码", "Code")

	p := models.UserPosition{
		PositionID:        fmt.Sprintf("POS_%s_%s_%s", userID, positionDate.Format("20060102"), code),
		UserID:            userID,
		PositionDate:      positionDate,
		StockCode:         code,
		PositionQuantity:  intField(raw, "持仓数量"),
		AvailableQuantity: intField(raw, "可用数量"),
		FrozenQuantity:    intField(raw, "冻结数量"),
		TransitShares:     intField(raw, "在途股份"),
		YesterdayQuantity: intField(raw, "昨夜持股"),
		OpenPrice:         floatField(raw, "开仓价格"),
		MarketValue:       floatField(raw, "持仓市值"),
		Remark:            strField(raw, "备注"),
		Timestamp:         timestamp,
	}
	p.FillDerived()

	if err := p.Validate(); err != nil {
		return models.UserPosition{}, err
	}
	return p, nil
}

// parseAccountFile 从 <...>/<账户ID>/<类别目录>/YYYYMMDD.json 提取账户ID和日期
func parseAccountFile(path string) (string, time.Time, error) {
	name := filepath.Base(path)
	stem := name[:len(name)-len(filepath.Ext(name))]

	date, err := time.Parse("20060102", stem)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("文件名格式不正确，应为 YYYYMMDD.json: %s", name)
	}

	accountID := filepath.Base(filepath.Dir(filepath.Dir(path)))
	if accountID == "." || accountID == string(filepath.Separator) {
		return "", time.Time{}, fmt.Errorf("无法从路径中提取账户ID: %s", path)
	}
	return accountID, date, nil
}

var strategyIDPattern = regexp.MustCompile(`^([^_]+)_`)

// extractStrategyID 从备注提取策略ID，格式如 "str1001_600335.SH" 提取出 "str1001"
func extractStrategyID(remark string) string {
	m := strategyIDPattern.FindStringSubmatch(remark)
	if m == nil {
		return ""
	}
	return m[1]
}

func combineDayTime(day time.Time, clock string) time.Time {
	t, err := time.Parse("15:04:05", clock)
	if err != nil {
		return day
	}
	return time.Date(day.Year(), day.Month(), day.Day(),
		t.Hour(), t.Minute(), t.Second(), 0, day.Location())
}

func jsonFiles(dir string) []string {
	paths, _ := filepath.Glob(filepath.Join(dir, "*.json"))
	sort.Strings(paths)
	return paths
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.Atoi(s)
	return err == nil
}

func strField(m map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			switch s := v.(type) {
			case string:
				if s != "" {
					return s
				}
			case float64:
				return strconv.FormatFloat(s, 'f', -1, 64)
			}
		}
	}
	return ""
}

func intField(m map[string]interface{}, keys ...string) int {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			switch n := v.(type) {
			case float64:
				return int(n)
			case string:
				if i, err := strconv.Atoi(n); err == nil {
					return i
				}
			}
		}
	}
	return 0
}

func floatField(m map[string]interface{}, keys ...string) float64 {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			switch n := v.(type) {
			case float64:
				return n
			case string:
				if f, err := strconv.ParseFloat(n, 64); err == nil {
					return f
				}
			}
		}
	}
	return 0
}
