package service

import (
	"time"

	"go.uber.org/zap"

	"stock_platform/internal/models"
)

// Resolver 批量日期解析器
// 对每个类别发起一次分组聚合查询，得到整组证券的最新数据日期
type Resolver struct {
	storage Storage
	logger  *zap.Logger
}

// NewResolver 创建批量日期解析器
func NewResolver(storage Storage, logger *zap.Logger) *Resolver {
	return &Resolver{storage: storage, logger: logger}
}

// LatestDates 获取一组证券在某类别下的最新数据日期
// 返回的映射覆盖全部请求代码；查询失败时降级为无缓存认知：
// 所有代码映射为 nil，调度器按从未更新处理（全量重抓，安全但冗余），
// 降级只记警告，不会让更新流程失败
func (r *Resolver) LatestDates(category models.DataCategory, codes []string) map[string]*time.Time {
	result := make(map[string]*time.Time, len(codes))
	if len(codes) == 0 {
		return result
	}

	dates, err := r.storage.LatestDates(category, codes)
	if err != nil {
		r.logger.Warn("批量查询最新日期失败，降级为全量窗口",
			zap.String("category", category.String()),
			zap.Int("codes", len(codes)),
			zap.Error(err))
		for _, code := range codes {
			result[code] = nil
		}
		return result
	}

	for _, code := range codes {
		result[code] = dates[code]
	}
	return result
}

// FetchWindow 单只证券单类别的抓取日期窗口
type FetchWindow struct {
	Start time.Time
	End   time.Time
}

// computeWindow 计算抓取窗口
// start = 最新日期 + 1 天，无历史数据时取配置的历史回溯起点；
// end = 调用方指定的截止日期，统一夹到今天；
// start > end 表示数据已是最新，返回 ok=false，无需抓取
func computeWindow(latest *time.Time, floor, asOf, today time.Time) (FetchWindow, bool) {
	start := floor
	if latest != nil {
		start = latest.AddDate(0, 0, 1)
	}

	end := asOf
	if end.IsZero() || end.After(today) {
		end = today
	}

	if start.After(end) {
		return FetchWindow{}, false
	}
	return FetchWindow{Start: start, End: end}, true
}
