package database

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stock_platform/internal/models"
)

// Gateway 存储网关
// 持有唯一的数据库句柄，所有读写经内部互斥锁串行，
// 调度器的并发任务只并行网络抓取，不并行数据库写入
type Gateway struct {
	db        *gorm.DB
	mu        sync.Mutex
	batchSize int
	logger    *zap.Logger
}

// NewGateway 创建存储网关
func NewGateway(db *gorm.DB, batchSize int, logger *zap.Logger) *Gateway {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &Gateway{
		db:        db,
		batchSize: batchSize,
		logger:    logger,
	}
}

// LatestDates 批量获取一组证券在某类别下的最新数据日期
// 一次分组聚合查询覆盖整个代码集合，而不是逐只查询；
// 返回的映射覆盖每一个请求的代码，无数据的代码映射为 nil
func (g *Gateway) LatestDates(category models.DataCategory, codes []string) (map[string]*time.Time, error) {
	result := make(map[string]*time.Time, len(codes))
	if len(codes) == 0 {
		return result, nil
	}

	spec, err := category.Spec()
	if err != nil {
		return nil, err
	}

	for _, code := range codes {
		result[code] = nil
	}

	var rows []struct {
		Code   string
		Latest sql.NullString
	}

	g.mu.Lock()
	err = g.db.Table(spec.Table).
		Select(fmt.Sprintf("code, MAX(%s) AS latest", spec.DateColumn)).
		Where("code IN ?", codes).
		Group("code").
		Scan(&rows).Error
	g.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("批量查询 %s 最新日期失败: %w", category, err)
	}

	for i := range rows {
		if !rows[i].Latest.Valid {
			continue
		}
		latest, parseErr := parseStoredDate(rows[i].Latest.String)
		if parseErr != nil {
			return nil, fmt.Errorf("解析 %s 最新日期失败: %w", category, parseErr)
		}
		result[rows[i].Code] = &latest
	}

	return result, nil
}

// storedDateLayouts 聚合列的取值格式
// SQLite 对 MAX() 结果不做列类型转换，按存储文本原样返回；
// MySQL/PostgreSQL 驱动经 database/sql 转换后为 RFC 3339 文本
var storedDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseStoredDate(value string) (time.Time, error) {
	for _, layout := range storedDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("无法解析日期值 %q", value)
}

// LatestDate 获取单只证券在某类别下的最新数据日期
func (g *Gateway) LatestDate(category models.DataCategory, code string) (*time.Time, error) {
	dates, err := g.LatestDates(category, []string{code})
	if err != nil {
		return nil, err
	}
	return dates[code], nil
}

// Upsert 将数据集写入类别对应的表，按 (code, 日期) 主键幂等覆盖
// 返回写入行数
func (g *Gateway) Upsert(category models.DataCategory, ds *models.Dataset) (int, error) {
	spec, err := category.Spec()
	if err != nil {
		return 0, err
	}

	if ds.Empty() {
		return 0, nil
	}

	records, count, err := spec.Convert(ds)
	if err != nil {
		return 0, fmt.Errorf("转换 %s 数据失败: %w", category, err)
	}
	if count == 0 {
		return 0, nil
	}

	g.mu.Lock()
	err = g.db.Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(records, g.batchSize).Error
	g.mu.Unlock()

	if err != nil {
		return 0, fmt.Errorf("写入 %s 数据失败: %w", category, err)
	}

	return count, nil
}

// SaveStockList 覆盖保存证券列表
func (g *Gateway) SaveStockList(stocks []models.StockInfo) (int, error) {
	if len(stocks) == 0 {
		return 0, nil
	}

	g.mu.Lock()
	err := g.db.Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(stocks, g.batchSize).Error
	g.mu.Unlock()

	if err != nil {
		return 0, fmt.Errorf("保存证券列表失败: %w", err)
	}
	return len(stocks), nil
}

// StockCodes 获取已入库的全部证券代码
func (g *Gateway) StockCodes() ([]string, error) {
	var codes []string

	g.mu.Lock()
	err := g.db.Model(&models.StockInfo{}).Order("code").Pluck("code", &codes).Error
	g.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("获取证券代码列表失败: %w", err)
	}
	return codes, nil
}

// ExistingCodes 获取某类别表中已有数据的证券代码
func (g *Gateway) ExistingCodes(category models.DataCategory) ([]string, error) {
	spec, err := category.Spec()
	if err != nil {
		return nil, err
	}

	var codes []string

	g.mu.Lock()
	err = g.db.Table(spec.Table).Distinct("code").Order("code").Pluck("code", &codes).Error
	g.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("获取 %s 已有代码失败: %w", category, err)
	}
	return codes, nil
}

// StockInfo 按代码获取证券基本信息
func (g *Gateway) StockInfo(code string) (*models.StockInfo, error) {
	var stock models.StockInfo

	g.mu.Lock()
	err := g.db.Where("code = ?", code).First(&stock).Error
	g.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return &stock, nil
}

// SaveRun 保存更新任务记录（新建或按 run_id 覆盖）
func (g *Gateway) SaveRun(run *models.UpdateRun) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if run.ID == 0 {
		var existing models.UpdateRun
		if err := g.db.Select("id").Where("run_id = ?", run.RunID).First(&existing).Error; err == nil {
			run.ID = existing.ID
		}
	}

	if err := g.db.Save(run).Error; err != nil {
		return fmt.Errorf("保存更新任务记录失败: %w", err)
	}
	return nil
}

// GetRun 按运行ID获取更新任务记录
func (g *Gateway) GetRun(runID string) (*models.UpdateRun, error) {
	var run models.UpdateRun

	g.mu.Lock()
	err := g.db.Where("run_id = ?", runID).First(&run).Error
	g.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns 按时间倒序分页获取更新任务记录
func (g *Gateway) ListRuns(limit, offset int) ([]models.UpdateRun, int64, error) {
	var runs []models.UpdateRun
	var total int64

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.db.Model(&models.UpdateRun{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := g.db.Order("created_at desc").Limit(limit).Offset(offset).Find(&runs).Error
	if err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}

// TableInfo 表的行数和数据日期范围
type TableInfo struct {
	Category   models.DataCategory `json:"category"`
	Table      string              `json:"table"`
	RowCount   int64               `json:"row_count"`
	LatestDate *time.Time          `json:"latest_date,omitempty"`
}

// Info 汇总全部类别表的规模信息
func (g *Gateway) Info() ([]TableInfo, error) {
	infos := make([]TableInfo, 0, len(models.AllCategories()))

	for _, category := range models.AllCategories() {
		spec, err := category.Spec()
		if err != nil {
			return nil, err
		}

		var count int64
		var latest *time.Time

		g.mu.Lock()
		err = g.db.Table(spec.Table).Count(&count).Error
		if err == nil && count > 0 {
			var row struct{ Latest sql.NullString }
			if scanErr := g.db.Table(spec.Table).
				Select(fmt.Sprintf("MAX(%s) AS latest", spec.DateColumn)).
				Scan(&row).Error; scanErr == nil && row.Latest.Valid {
				if t, parseErr := parseStoredDate(row.Latest.String); parseErr == nil {
					latest = &t
				}
			}
		}
		g.mu.Unlock()

		if err != nil {
			return nil, fmt.Errorf("统计 %s 表信息失败: %w", category, err)
		}

		infos = append(infos, TableInfo{
			Category:   category,
			Table:      spec.Table,
			RowCount:   count,
			LatestDate: latest,
		})
	}

	return infos, nil
}

// PriceRange 按代码和日期区间查询日线价格，区间端点为空则不限制
func (g *Gateway) PriceRange(code string, start, end *time.Time) ([]models.PriceDaily, error) {
	var prices []models.PriceDaily

	g.mu.Lock()
	defer g.mu.Unlock()

	query := g.db.Where("code = ?", code)
	if start != nil {
		query = query.Where("day >= ?", *start)
	}
	if end != nil {
		query = query.Where("day <= ?", *end)
	}
	if err := query.Order("day").Find(&prices).Error; err != nil {
		return nil, fmt.Errorf("查询价格数据失败: %w", err)
	}
	return prices, nil
}

// Query 执行只读 SQL，返回列名与数据行，供 CLI 查询和导出使用
func (g *Gateway) Query(sql string) ([]string, [][]interface{}, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rows, err := g.db.Raw(sql).Rows()
	if err != nil {
		return nil, nil, fmt.Errorf("查询失败: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var result [][]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, nil, err
		}
		result = append(result, values)
	}

	return columns, result, rows.Err()
}

// SaveTransactions 保存用户交易记录，按 trade_id 幂等覆盖
func (g *Gateway) SaveTransactions(transactions []models.UserTransaction) (int, error) {
	if len(transactions) == 0 {
		return 0, nil
	}

	g.mu.Lock()
	err := g.db.Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(transactions, g.batchSize).Error
	g.mu.Unlock()

	if err != nil {
		return 0, fmt.Errorf("保存交易记录失败: %w", err)
	}
	return len(transactions), nil
}

// Transactions 查询某账户的交易记录，日期为空则不限制
func (g *Gateway) Transactions(userID string, tradeDate *time.Time) ([]models.UserTransaction, error) {
	var transactions []models.UserTransaction

	g.mu.Lock()
	defer g.mu.Unlock()

	query := g.db.Where("user_id = ?", userID)
	if tradeDate != nil {
		query = query.Where("trade_date = ?", *tradeDate)
	}
	if err := query.Order("trade_time").Find(&transactions).Error; err != nil {
		return nil, fmt.Errorf("查询交易记录失败: %w", err)
	}
	return transactions, nil
}

// SavePositions 保存用户持仓快照，按 position_id 幂等覆盖
func (g *Gateway) SavePositions(positions []models.UserPosition) (int, error) {
	if len(positions) == 0 {
		return 0, nil
	}

	g.mu.Lock()
	err := g.db.Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(positions, g.batchSize).Error
	g.mu.Unlock()

	if err != nil {
		return 0, fmt.Errorf("保存持仓记录失败: %w", err)
	}
	return len(positions), nil
}

// Positions 查询某账户的持仓快照，日期为空则返回全部
func (g *Gateway) Positions(userID string, positionDate *time.Time) ([]models.UserPosition, error) {
	var positions []models.UserPosition

	g.mu.Lock()
	defer g.mu.Unlock()

	query := g.db.Where("user_id = ?", userID)
	if positionDate != nil {
		query = query.Where("position_date = ?", *positionDate)
	}
	if err := query.Order("position_date, stock_code").Find(&positions).Error; err != nil {
		return nil, fmt.Errorf("查询持仓记录失败: %w", err)
	}
	return positions, nil
}

// MissingDays 数据质量检查：统计某证券在日期区间内缺失的工作日
// 仅按周末粗过滤，节假日缺口会被计入告警，由人工复核
func (g *Gateway) MissingDays(category models.DataCategory, code string, start, end time.Time) ([]time.Time, error) {
	spec, err := category.Spec()
	if err != nil {
		return nil, err
	}

	var days []time.Time

	g.mu.Lock()
	err = g.db.Table(spec.Table).
		Where("code = ?", code).
		Where(fmt.Sprintf("%s >= ? AND %s <= ?", spec.DateColumn, spec.DateColumn), start, end).
		Order(spec.DateColumn).
		Pluck(spec.DateColumn, &days).Error
	g.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("查询 %s 数据日期失败: %w", category, err)
	}

	stored := make(map[string]bool, len(days))
	for _, d := range days {
		stored[d.Format("2006-01-02")] = true
	}

	var missing []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		if !stored[d.Format("2006-01-02")] {
			missing = append(missing, d)
		}
	}

	return missing, nil
}
