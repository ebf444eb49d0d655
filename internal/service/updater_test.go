package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stock_platform/internal/config"
	"stock_platform/internal/models"
)

// fakeStorage 测试用存储网关
type fakeStorage struct {
	mu sync.Mutex

	latest     map[string]*time.Time // code -> 最新日期，所有类别共用
	latestErr  error
	upsertErr  error
	upsertRows int // Upsert 调用次数
	savedRuns  []models.UpdateRun
	stockCodes []string
	savedList  int
}

func (s *fakeStorage) LatestDates(category models.DataCategory, codes []string) (map[string]*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latestErr != nil {
		return nil, s.latestErr
	}
	result := make(map[string]*time.Time, len(codes))
	for _, code := range codes {
		result[code] = s.latest[code]
	}
	return result, nil
}

func (s *fakeStorage) Upsert(category models.DataCategory, ds *models.Dataset) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return 0, s.upsertErr
	}
	s.upsertRows++
	return ds.Len(), nil
}

func (s *fakeStorage) SaveStockList(stocks []models.StockInfo) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.savedList = len(stocks)
	return len(stocks), nil
}

func (s *fakeStorage) StockCodes() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stockCodes, nil
}

func (s *fakeStorage) SaveRun(run *models.UpdateRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.savedRuns = append(s.savedRuns, *run)
	return nil
}

func (s *fakeStorage) lastRun() *models.UpdateRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.savedRuns) == 0 {
		return nil
	}
	run := s.savedRuns[len(s.savedRuns)-1]
	return &run
}

// fetchCall 一次抓取调用的参数
type fetchCall struct {
	code     string
	category models.DataCategory
	start    time.Time
	end      time.Time
}

// fakeFetcher 测试用数据源
type fakeFetcher struct {
	mu sync.Mutex

	calls     []fetchCall
	data      map[string]*models.Dataset // code -> 返回的数据集
	errCodes  map[string]error           // code -> 返回的错误
	stockList *models.Dataset
}

func (f *fakeFetcher) Fetch(ctx context.Context, code string, category models.DataCategory, start, end time.Time) (*models.Dataset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fetchCall{code: code, category: category, start: start, end: end})
	if err, ok := f.errCodes[code]; ok {
		return nil, err
	}
	if ds, ok := f.data[code]; ok {
		return ds, nil
	}
	return &models.Dataset{}, nil
}

func (f *fakeFetcher) StockList(ctx context.Context) (*models.Dataset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stockList != nil {
		return f.stockList, nil
	}
	return &models.Dataset{}, nil
}

func (f *fakeFetcher) callsFor(code string) []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fetchCall
	for _, c := range f.calls {
		if c.code == code {
			out = append(out, c)
		}
	}
	return out
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return d
}

func datePtr(d time.Time) *time.Time { return &d }

func priceDataset(code string, days ...string) *models.Dataset {
	rows := make([][]interface{}, len(days))
	for i, day := range days {
		rows[i] = []interface{}{code, day, 10.0, 11.0, 9.5, 10.5, 1000.0, 10500.0}
	}
	return &models.Dataset{
		Fields: []string{"code", "day", "open", "high", "low", "close", "volume", "money"},
		Rows:   rows,
	}
}

func testUpdater(storage *fakeStorage, fetcher *fakeFetcher, today string) *Updater {
	cfg := &config.UpdateConfig{
		MaxWorkers:       2,
		BatchSize:        100,
		HistoryStartDate: "2020-01-01",
	}
	u := NewUpdater(storage, fetcher, cfg, zap.NewNop())
	u.now = func() time.Time {
		d, _ := time.Parse("2006-01-02", today)
		return d
	}
	return u
}

// TestComputeWindow 测试抓取窗口计算
func TestComputeWindow(t *testing.T) {
	floor := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	today := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	asOf := today

	tests := []struct {
		name      string
		latest    *time.Time
		asOf      time.Time
		wantStart string
		wantEnd   string
		wantOK    bool
	}{
		{
			name:      "有历史数据从最新日期次日开始",
			latest:    datePtr(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)),
			asOf:      asOf,
			wantStart: "2024-01-11",
			wantEnd:   "2024-01-15",
			wantOK:    true,
		},
		{
			name:      "无历史数据从回溯起点开始",
			latest:    nil,
			asOf:      asOf,
			wantStart: "2020-01-01",
			wantEnd:   "2024-01-15",
			wantOK:    true,
		},
		{
			name:   "数据已是最新无需抓取",
			latest: datePtr(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)),
			asOf:   asOf,
			wantOK: false,
		},
		{
			name:   "最新日期晚于截止日期",
			latest: datePtr(time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)),
			asOf:   asOf,
			wantOK: false,
		},
		{
			name:      "截止日期超过今天时夹到今天",
			latest:    datePtr(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)),
			asOf:      time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
			wantStart: "2024-01-11",
			wantEnd:   "2024-01-15",
			wantOK:    true,
		},
		{
			name:      "截止日期为零值时取今天",
			latest:    datePtr(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)),
			asOf:      time.Time{},
			wantStart: "2024-01-11",
			wantEnd:   "2024-01-15",
			wantOK:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			window, ok := computeWindow(tt.latest, floor, tt.asOf, today)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantStart, window.Start.Format("2006-01-02"))
				assert.Equal(t, tt.wantEnd, window.End.Format("2006-01-02"))
			}
		})
	}
}

// TestRun_IncrementalWindows 测试增量更新按最新日期计算各自窗口
func TestRun_IncrementalWindows(t *testing.T) {
	latest := mustDate(t, "2024-01-10")
	storage := &fakeStorage{
		latest: map[string]*time.Time{
			"AAA": &latest,
			"BBB": nil,
		},
	}
	fetcher := &fakeFetcher{
		data: map[string]*models.Dataset{
			"AAA": priceDataset("AAA", "2024-01-11", "2024-01-12"),
			"BBB": priceDataset("BBB", "2024-01-02"),
		},
	}
	u := testUpdater(storage, fetcher, "2024-01-15")

	summary, err := u.Run(context.Background(), RunRequest{
		Codes:      []string{"AAA", "BBB"},
		Categories: []models.DataCategory{models.CategoryPrice},
	})

	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.Updated)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 3, summary.RowsWritten)

	// AAA 有历史数据，窗口从最新日期次日开始
	callsA := fetcher.callsFor("AAA")
	require.Len(t, callsA, 1)
	assert.Equal(t, "2024-01-11", callsA[0].start.Format("2006-01-02"))
	assert.Equal(t, "2024-01-15", callsA[0].end.Format("2006-01-02"))

	// BBB 无历史数据，窗口从回溯起点开始
	callsB := fetcher.callsFor("BBB")
	require.Len(t, callsB, 1)
	assert.Equal(t, "2020-01-01", callsB[0].start.Format("2006-01-02"))
	assert.Equal(t, "2024-01-15", callsB[0].end.Format("2006-01-02"))
}

// TestRun_ForceFull 测试强制全量更新忽略已有数据
func TestRun_ForceFull(t *testing.T) {
	latest := mustDate(t, "2024-01-14")
	storage := &fakeStorage{
		latest: map[string]*time.Time{"AAA": &latest},
	}
	fetcher := &fakeFetcher{
		data: map[string]*models.Dataset{
			"AAA": priceDataset("AAA", "2024-01-14"),
		},
	}
	u := testUpdater(storage, fetcher, "2024-01-15")

	summary, err := u.Run(context.Background(), RunRequest{
		Codes:      []string{"AAA"},
		Categories: []models.DataCategory{models.CategoryPrice},
		ForceFull:  true,
	})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)

	// 强制全量时窗口从回溯起点开始
	calls := fetcher.callsFor("AAA")
	require.Len(t, calls, 1)
	assert.Equal(t, "2020-01-01", calls[0].start.Format("2006-01-02"))
}

// TestRun_AlreadyUpToDate 测试数据已是最新时跳过且不抓取
func TestRun_AlreadyUpToDate(t *testing.T) {
	latest := mustDate(t, "2024-01-15")
	storage := &fakeStorage{
		latest: map[string]*time.Time{"AAA": &latest, "BBB": &latest},
	}
	fetcher := &fakeFetcher{}
	u := testUpdater(storage, fetcher, "2024-01-15")

	summary, err := u.Run(context.Background(), RunRequest{
		Codes:      []string{"AAA", "BBB"},
		Categories: []models.DataCategory{models.CategoryPrice},
	})

	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 0, summary.Updated)
	// 跳过的任务不应发起抓取
	assert.Empty(t, fetcher.calls)
}

// TestRun_PartialFailure 测试部分失败不中断其余任务
func TestRun_PartialFailure(t *testing.T) {
	storage := &fakeStorage{latest: map[string]*time.Time{}}
	fetcher := &fakeFetcher{
		data: map[string]*models.Dataset{
			"AAA": priceDataset("AAA", "2024-01-12"),
		},
		errCodes: map[string]error{
			"BBB": errors.New("连接超时"),
		},
	}
	u := testUpdater(storage, fetcher, "2024-01-15")

	summary, err := u.Run(context.Background(), RunRequest{
		Codes:      []string{"AAA", "BBB", "CCC"},
		Categories: []models.DataCategory{models.CategoryPrice},
	})

	// 部分失败不是运行级错误
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, summary.Skipped) // CCC 返回空数据集
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "BBB", summary.Failures[0].Code)
	assert.Contains(t, summary.Failures[0].Reason, "连接超时")

	// 各终态计数之和等于任务总数
	assert.Equal(t, summary.Total, summary.Updated+summary.Skipped+summary.Failed)

	// 部分失败的运行记录状态仍为 completed
	run := storage.lastRun()
	require.NotNil(t, run)
	assert.Equal(t, "completed", run.Status)
	assert.Contains(t, run.FailureNotes, "BBB")
}

// TestRun_TotalFailure 测试全部失败时运行记录标记为 failed
func TestRun_TotalFailure(t *testing.T) {
	storage := &fakeStorage{latest: map[string]*time.Time{}}
	fetcher := &fakeFetcher{
		errCodes: map[string]error{
			"AAA": errors.New("权限不足"),
			"BBB": errors.New("权限不足"),
		},
	}
	u := testUpdater(storage, fetcher, "2024-01-15")

	summary, err := u.Run(context.Background(), RunRequest{
		Codes:      []string{"AAA", "BBB"},
		Categories: []models.DataCategory{models.CategoryPrice},
	})

	require.NoError(t, err)
	assert.True(t, summary.TotalFailure())

	run := storage.lastRun()
	require.NotNil(t, run)
	assert.Equal(t, "failed", run.Status)
}

// TestRun_UnknownCategory 测试未知类别在任何任务提交前拒绝
func TestRun_UnknownCategory(t *testing.T) {
	storage := &fakeStorage{}
	fetcher := &fakeFetcher{}
	u := testUpdater(storage, fetcher, "2024-01-15")

	_, err := u.Run(context.Background(), RunRequest{
		Codes:      []string{"AAA"},
		Categories: []models.DataCategory{models.CategoryPrice, models.DataCategory("bogus")},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrUnknownCategory)
	// 配置错误必须在任何抓取发生前返回
	assert.Empty(t, fetcher.calls)
}

// TestRun_EmptyCodes 测试空证券列表
func TestRun_EmptyCodes(t *testing.T) {
	u := testUpdater(&fakeStorage{}, &fakeFetcher{}, "2024-01-15")

	_, err := u.Run(context.Background(), RunRequest{
		Categories: []models.DataCategory{models.CategoryPrice},
	})

	require.Error(t, err)
}

// TestRun_ResolverDegrade 测试日期查询失败时降级为全量窗口而非报错
func TestRun_ResolverDegrade(t *testing.T) {
	latest := mustDate(t, "2024-01-14")
	storage := &fakeStorage{
		latest:    map[string]*time.Time{"AAA": &latest},
		latestErr: errors.New("数据库连接断开"),
	}
	fetcher := &fakeFetcher{
		data: map[string]*models.Dataset{
			"AAA": priceDataset("AAA", "2024-01-12"),
		},
	}
	u := testUpdater(storage, fetcher, "2024-01-15")

	summary, err := u.Run(context.Background(), RunRequest{
		Codes:      []string{"AAA"},
		Categories: []models.DataCategory{models.CategoryPrice},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)

	// 降级后按无历史数据处理，窗口从回溯起点开始
	calls := fetcher.callsFor("AAA")
	require.Len(t, calls, 1)
	assert.Equal(t, "2020-01-01", calls[0].start.Format("2006-01-02"))
}

// TestRun_EmptyFetchSkipped 测试抓取结果为空时计为跳过
func TestRun_EmptyFetchSkipped(t *testing.T) {
	storage := &fakeStorage{latest: map[string]*time.Time{}}
	fetcher := &fakeFetcher{} // 默认返回空数据集
	u := testUpdater(storage, fetcher, "2024-01-15")

	summary, err := u.Run(context.Background(), RunRequest{
		Codes:      []string{"AAA"},
		Categories: []models.DataCategory{models.CategoryPrice},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, storage.upsertRows)
}

// TestRun_UpsertError 测试写入失败计为任务失败
func TestRun_UpsertError(t *testing.T) {
	storage := &fakeStorage{
		latest:    map[string]*time.Time{},
		upsertErr: errors.New("磁盘已满"),
	}
	fetcher := &fakeFetcher{
		data: map[string]*models.Dataset{
			"AAA": priceDataset("AAA", "2024-01-12"),
		},
	}
	u := testUpdater(storage, fetcher, "2024-01-15")

	summary, err := u.Run(context.Background(), RunRequest{
		Codes:      []string{"AAA"},
		Categories: []models.DataCategory{models.CategoryPrice},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Contains(t, summary.Failures[0].Reason, "磁盘已满")
}

// TestRun_MultiCategory 测试多类别任务数为代码数乘类别数
func TestRun_MultiCategory(t *testing.T) {
	storage := &fakeStorage{latest: map[string]*time.Time{}}
	fetcher := &fakeFetcher{
		data: map[string]*models.Dataset{
			"AAA": priceDataset("AAA", "2024-01-12"),
			"BBB": priceDataset("BBB", "2024-01-12"),
		},
	}
	u := testUpdater(storage, fetcher, "2024-01-15")

	summary, err := u.Run(context.Background(), RunRequest{
		Codes:      []string{"AAA", "BBB"},
		Categories: []models.DataCategory{models.CategoryPrice, models.CategoryFundamental},
	})

	require.NoError(t, err)
	assert.Equal(t, 4, summary.Total)
	assert.Len(t, fetcher.calls, 4)
}

// TestRun_CanceledContext 测试取消后任务计为失败而非丢失
func TestRun_CanceledContext(t *testing.T) {
	storage := &fakeStorage{latest: map[string]*time.Time{}}
	fetcher := &fakeFetcher{}
	u := testUpdater(storage, fetcher, "2024-01-15")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := u.Run(ctx, RunRequest{
		Codes:      []string{"AAA", "BBB"},
		Categories: []models.DataCategory{models.CategoryPrice},
	})

	require.NoError(t, err)
	// 每个任务都要有终态，取消不会让任务凭空消失
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, summary.Total, summary.Updated+summary.Skipped+summary.Failed)
}

// TestNewRunID 测试运行ID格式
func TestNewRunID(t *testing.T) {
	id1 := NewRunID()
	id2 := NewRunID()

	assert.True(t, strings.HasPrefix(id1, "run_"))
	assert.NotEqual(t, id1, id2)
}

// TestShouldUpdateFinancial 测试财报发布窗口期判断
func TestShouldUpdateFinancial(t *testing.T) {
	u := testUpdater(&fakeStorage{}, &fakeFetcher{}, "2024-01-15")

	inWindow := []time.Month{time.April, time.May, time.August, time.September, time.October, time.November}
	outWindow := []time.Month{time.January, time.February, time.March, time.June, time.July, time.December}

	for _, m := range inWindow {
		assert.True(t, u.shouldUpdateFinancial(time.Date(2024, m, 15, 0, 0, 0, 0, time.UTC)), m.String())
	}
	for _, m := range outWindow {
		assert.False(t, u.shouldUpdateFinancial(time.Date(2024, m, 15, 0, 0, 0, 0, time.UTC)), m.String())
	}
}

// TestDailyUpdate 测试每日更新先刷新证券列表再更新市场数据
func TestDailyUpdate(t *testing.T) {
	storage := &fakeStorage{
		latest:     map[string]*time.Time{},
		stockCodes: []string{"AAA", "BBB"},
	}
	fetcher := &fakeFetcher{
		stockList: &models.Dataset{
			Fields: []string{"code", "display_name", "start_date"},
			Rows: [][]interface{}{
				{"AAA", "甲股份", "2020-01-01"},
				{"BBB", "乙股份", "2020-01-01"},
			},
		},
		data: map[string]*models.Dataset{
			"AAA": priceDataset("AAA", "2024-01-12"),
			"BBB": priceDataset("BBB", "2024-01-12"),
		},
	}
	// 1月不在财报窗口期，只更新市场类别
	u := testUpdater(storage, fetcher, "2024-01-15")

	summary, err := u.DailyUpdate(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, storage.savedList)
	assert.Equal(t, len(storage.stockCodes)*len(models.MarketCategories()), summary.Total)
}

// TestDailyUpdate_FinancialWindow 测试财报窗口期附带更新财务类别
func TestDailyUpdate_FinancialWindow(t *testing.T) {
	storage := &fakeStorage{
		latest:     map[string]*time.Time{},
		stockCodes: []string{"AAA"},
	}
	fetcher := &fakeFetcher{}
	u := testUpdater(storage, fetcher, "2024-04-15")

	summary, err := u.DailyUpdate(context.Background())

	require.NoError(t, err)
	want := len(models.MarketCategories()) + len(models.FinancialCategories())
	assert.Equal(t, want, summary.Total)
}
