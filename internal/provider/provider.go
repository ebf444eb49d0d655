package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"stock_platform/internal/models"
)

// ErrNoSource 没有可用的数据源
var ErrNoSource = errors.New("没有可用的数据源")

// Source 数据源接口
// 给定证券代码、数据类别和日期范围，返回标准化的列式数据集
type Source interface {
	Name() string
	// StockList 获取全部证券列表
	StockList(ctx context.Context) (*models.Dataset, error)
	// Fetch 获取单只证券某类别在 [start, end] 区间的数据
	Fetch(ctx context.Context, code string, category models.DataCategory, start, end time.Time) (*models.Dataset, error)
}

// Manager 数据源管理器
// 按证券代码选择首选数据源，失败或无数据时回退到其余数据源
type Manager struct {
	mu          sync.RWMutex
	sources     map[string]Source
	order       []string
	defaultName string
	logger      *zap.Logger

	// 证券列表缓存，一次运行内复用
	cachedList *models.Dataset
}

// NewManager 创建数据源管理器
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		sources: make(map[string]Source),
		logger:  logger,
	}
}

// Register 注册数据源
func (m *Manager) Register(source Source, setAsDefault bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := source.Name()
	if _, exists := m.sources[name]; !exists {
		m.order = append(m.order, name)
	}
	m.sources[name] = source

	if setAsDefault || m.defaultName == "" {
		m.defaultName = name
	}
}

// Names 已注册数据源名列表
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// PreferredFor 按证券代码返回首选数据源名
// 北交所代码（.BJ 后缀）优先使用 tushare
func (m *Manager) PreferredFor(code string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if strings.HasSuffix(code, ".BJ") {
		if _, ok := m.sources["tushare"]; ok {
			return "tushare"
		}
	}
	return m.defaultName
}

// Fetch 从首选数据源获取数据，失败或无数据时依次回退
func (m *Manager) Fetch(ctx context.Context, code string, category models.DataCategory, start, end time.Time) (*models.Dataset, error) {
	preferred := m.PreferredFor(code)

	m.mu.RLock()
	order := append([]string(nil), m.order...)
	sources := make(map[string]Source, len(m.sources))
	for name, s := range m.sources {
		sources[name] = s
	}
	m.mu.RUnlock()

	if len(sources) == 0 {
		return nil, ErrNoSource
	}

	var lastErr error

	if source, ok := sources[preferred]; ok {
		ds, err := source.Fetch(ctx, code, category, start, end)
		if err == nil && !ds.Empty() {
			return ds, nil
		}
		if err != nil {
			lastErr = err
			m.logger.Warn("首选数据源获取失败",
				zap.String("source", preferred),
				zap.String("code", code),
				zap.String("category", category.String()),
				zap.Error(err))
		}
	}

	for _, name := range order {
		if name == preferred {
			continue
		}
		ds, err := sources[name].Fetch(ctx, code, category, start, end)
		if err != nil {
			lastErr = err
			m.logger.Warn("数据源获取失败",
				zap.String("source", name),
				zap.String("code", code),
				zap.String("category", category.String()),
				zap.Error(err))
			continue
		}
		if !ds.Empty() {
			return ds, nil
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("全部数据源获取 %s %s 失败: %w", code, category, lastErr)
	}
	// 各数据源均无数据，按空数据集处理
	return &models.Dataset{}, nil
}

// StockList 获取证券列表，带运行内缓存
func (m *Manager) StockList(ctx context.Context) (*models.Dataset, error) {
	m.mu.RLock()
	cached := m.cachedList
	order := append([]string(nil), m.order...)
	sources := make(map[string]Source, len(m.sources))
	for name, s := range m.sources {
		sources[name] = s
	}
	m.mu.RUnlock()

	if cached != nil && !cached.Empty() {
		return cached, nil
	}

	if len(sources) == 0 {
		return nil, ErrNoSource
	}

	var lastErr error
	for _, name := range order {
		ds, err := sources[name].StockList(ctx)
		if err != nil {
			lastErr = err
			m.logger.Warn("获取证券列表失败", zap.String("source", name), zap.Error(err))
			continue
		}
		if !ds.Empty() {
			m.mu.Lock()
			m.cachedList = ds
			m.mu.Unlock()
			return ds, nil
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("全部数据源获取证券列表失败: %w", lastErr)
	}
	return &models.Dataset{}, nil
}

// InvalidateStockList 清除证券列表缓存
func (m *Manager) InvalidateStockList() {
	m.mu.Lock()
	m.cachedList = nil
	m.mu.Unlock()
}

// normalizeFields 按重命名表将数据源字段名统一为内部标准名
func normalizeFields(ds *models.Dataset, renames map[string]string) *models.Dataset {
	if ds == nil || len(renames) == 0 {
		return ds
	}
	fields := make([]string, len(ds.Fields))
	for i, field := range ds.Fields {
		if canonical, ok := renames[field]; ok {
			fields[i] = canonical
		} else {
			fields[i] = field
		}
	}
	ds.Fields = fields
	return ds
}
