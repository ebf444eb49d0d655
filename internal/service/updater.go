package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stock_platform/internal/config"
	"stock_platform/internal/models"
)

// Storage 调度器依赖的存储网关能力
type Storage interface {
	LatestDates(category models.DataCategory, codes []string) (map[string]*time.Time, error)
	Upsert(category models.DataCategory, ds *models.Dataset) (int, error)
	SaveStockList(stocks []models.StockInfo) (int, error)
	StockCodes() ([]string, error)
	SaveRun(run *models.UpdateRun) error
}

// Fetcher 调度器依赖的数据源能力
type Fetcher interface {
	Fetch(ctx context.Context, code string, category models.DataCategory, start, end time.Time) (*models.Dataset, error)
	StockList(ctx context.Context) (*models.Dataset, error)
}

// RunRequest 一次更新运行的请求参数
type RunRequest struct {
	RunID      string                `json:"run_id,omitempty"` // 为空时自动生成
	Codes      []string              `json:"codes"`
	Categories []models.DataCategory `json:"categories"`
	ForceFull  bool                  `json:"force_full"` // 忽略已有数据，从历史回溯起点全量更新
	AsOf       time.Time             `json:"as_of"`      // 更新截止日期，零值表示今天
	MaxWorkers int                   `json:"max_workers"`
}

// NewRunID 生成一个运行ID
func NewRunID() string {
	return fmt.Sprintf("run_%s", uuid.NewString())
}

// Updater 增量更新调度器
// 决定每只证券每个类别的抓取窗口，经有界工作池并发抓取并写库，
// 汇总所有任务结果为一份运行摘要
type Updater struct {
	storage  Storage
	sources  Fetcher
	resolver *Resolver
	cfg      *config.UpdateConfig
	logger   *zap.Logger

	// 便于测试固定"今天"
	now func() time.Time
}

// NewUpdater 创建更新调度器
func NewUpdater(storage Storage, sources Fetcher, cfg *config.UpdateConfig, logger *zap.Logger) *Updater {
	return &Updater{
		storage:  storage,
		sources:  sources,
		resolver: NewResolver(storage, logger),
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Run 执行一次更新
// 单只证券的失败不会中断运行，部分成功是常态，结果在摘要中完整呈现；
// 返回错误仅发生在任务提交前的配置问题（未知类别、空证券列表）
func (u *Updater) Run(ctx context.Context, req RunRequest) (*RunSummary, error) {
	if len(req.Codes) == 0 {
		return nil, fmt.Errorf("证券代码列表不能为空")
	}
	if len(req.Categories) == 0 {
		req.Categories = models.AllCategories()
	}
	// 未知类别属于配置错误，必须在任何任务提交前拒绝
	for _, category := range req.Categories {
		if _, err := category.Spec(); err != nil {
			return nil, err
		}
	}

	maxWorkers := req.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = u.cfg.MaxWorkers
	}

	today := dateOnly(u.now())
	asOf := req.AsOf
	if asOf.IsZero() || asOf.After(today) {
		asOf = today
	}

	floor := u.cfg.HistoryFloor()
	runID := req.RunID
	if runID == "" {
		runID = NewRunID()
	}
	startedAt := u.now()

	u.logger.Info("开始更新",
		zap.String("run_id", runID),
		zap.Int("codes", len(req.Codes)),
		zap.Int("categories", len(req.Categories)),
		zap.Bool("force_full", req.ForceFull),
		zap.Time("as_of", asOf),
		zap.Int("max_workers", maxWorkers))

	run := &models.UpdateRun{
		RunID:      runID,
		Status:     "running",
		Categories: joinCategories(req.Categories),
		ForceFull:  req.ForceFull,
		AsOf:       asOf,
		TotalCount: len(req.Codes) * len(req.Categories),
		StartTime:  startedAt,
	}
	if err := u.storage.SaveRun(run); err != nil {
		// 运行记录失败不阻塞更新本身
		u.logger.Warn("保存运行记录失败", zap.Error(err))
	}

	// 每个类别一次批量查询构建最新日期缓存；
	// 强制全量时调用方已明确放弃既有状态，跳过解析
	caches := make(map[models.DataCategory]map[string]*time.Time, len(req.Categories))
	if !req.ForceFull {
		for _, category := range req.Categories {
			caches[category] = u.resolver.LatestDates(category, req.Codes)
		}
	}

	agg := newAggregator()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)

	for _, code := range req.Codes {
		code := code
		g.Go(func() error {
			for _, category := range req.Categories {
				u.updateOne(gctx, agg, code, category, caches[category], floor, asOf, today)
			}
			// 单只证券的失败不中断其他任务
			return nil
		})
	}

	// 阻塞等待工作池排空
	if err := g.Wait(); err != nil {
		u.logger.Error("更新过程出错", zap.Error(err))
	}

	elapsed := u.now().Sub(startedAt)
	summary := agg.Summary(runID, startedAt, elapsed)

	now := u.now()
	run.EndTime = &now
	run.Status = "completed"
	if summary.TotalFailure() {
		run.Status = "failed"
	}
	run.TotalCount = summary.Total
	run.UpdatedCount = summary.Updated
	run.SkippedCount = summary.Skipped
	run.FailedCount = summary.Failed
	run.FailureNotes = summary.FailureNotes(20)
	if err := u.storage.SaveRun(run); err != nil {
		u.logger.Warn("保存运行记录失败", zap.Error(err))
	}

	u.logger.Info("更新完成",
		zap.String("run_id", runID),
		zap.Int("total", summary.Total),
		zap.Int("updated", summary.Updated),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Int("rows_written", summary.RowsWritten),
		zap.Duration("elapsed", elapsed))

	return summary, nil
}

// updateOne 更新单只证券的单个类别，结果记入聚合器
func (u *Updater) updateOne(ctx context.Context, agg *aggregator, code string,
	category models.DataCategory, cache map[string]*time.Time, floor, asOf, today time.Time) {

	select {
	case <-ctx.Done():
		agg.Record(Outcome{Code: code, Category: category, Status: StatusFailed, Reason: ctx.Err().Error()})
		return
	default:
	}

	var latest *time.Time
	if cache != nil {
		latest = cache[code]
	}

	window, ok := computeWindow(latest, floor, asOf, today)
	if !ok {
		agg.Record(Outcome{Code: code, Category: category, Status: StatusSkipped, Reason: "数据已是最新"})
		return
	}

	ds, err := u.sources.Fetch(ctx, code, category, window.Start, window.End)
	if err != nil {
		u.logger.Error("抓取失败",
			zap.String("code", code),
			zap.String("category", category.String()),
			zap.Error(err))
		agg.Record(Outcome{Code: code, Category: category, Status: StatusFailed, Reason: err.Error()})
		return
	}

	if ds.Empty() {
		agg.Record(Outcome{Code: code, Category: category, Status: StatusSkipped, Reason: "无新数据"})
		return
	}

	rows, err := u.storage.Upsert(category, ds)
	if err != nil {
		u.logger.Error("写入失败",
			zap.String("code", code),
			zap.String("category", category.String()),
			zap.Error(err))
		agg.Record(Outcome{Code: code, Category: category, Status: StatusFailed, Reason: err.Error()})
		return
	}

	u.logger.Debug("更新成功",
		zap.String("code", code),
		zap.String("category", category.String()),
		zap.Int("rows", rows),
		zap.Time("start", window.Start),
		zap.Time("end", window.End))
	agg.Record(Outcome{Code: code, Category: category, Status: StatusUpdated, Rows: rows})
}

// RefreshStockList 从数据源刷新证券列表并入库
func (u *Updater) RefreshStockList(ctx context.Context) (int, error) {
	ds, err := u.sources.StockList(ctx)
	if err != nil {
		return 0, fmt.Errorf("获取证券列表失败: %w", err)
	}
	if ds.Empty() {
		return 0, nil
	}

	stocks := models.ConvertStockList(ds, dateOnly(u.now()))
	count, err := u.storage.SaveStockList(stocks)
	if err != nil {
		return 0, err
	}

	u.logger.Info("证券列表已刷新", zap.Int("count", count))
	return count, nil
}

// DailyUpdate 每日例行更新
// 先刷新证券列表，再对全部证券做市场数据增量更新；
// 处于财报发布窗口期时附带更新财务报表数据
func (u *Updater) DailyUpdate(ctx context.Context) (*RunSummary, error) {
	if _, err := u.RefreshStockList(ctx); err != nil {
		u.logger.Warn("刷新证券列表失败，使用已入库代码", zap.Error(err))
	}

	codes, err := u.storage.StockCodes()
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return nil, fmt.Errorf("没有可更新的证券，请先初始化证券列表")
	}

	categories := models.MarketCategories()
	if u.shouldUpdateFinancial(dateOnly(u.now())) {
		u.logger.Info("处于财报发布窗口期，附带更新财务数据")
		categories = append(categories, models.FinancialCategories()...)
	}

	return u.Run(ctx, RunRequest{
		Codes:      codes,
		Categories: categories,
	})
}

// shouldUpdateFinancial 判断是否处于财报发布窗口期
// A股财报集中在季后 1-2 个月披露：4-5月（年报+一季报）、
// 8-9月（中报）、10-11月（三季报）
func (u *Updater) shouldUpdateFinancial(today time.Time) bool {
	switch today.Month() {
	case time.April, time.May, time.August, time.September, time.October, time.November:
		return true
	}
	return false
}

// dateOnly 去掉时分秒，保留日期
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func joinCategories(categories []models.DataCategory) string {
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = string(c)
	}
	return strings.Join(names, ",")
}
