package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stock_platform/internal/config"
	"stock_platform/internal/database"
	"stock_platform/internal/models"
	"stock_platform/internal/provider"
	"stock_platform/internal/service"
)

func testRouter(t *testing.T) (*gin.Engine, *database.Gateway) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dbCfg := &config.DatabaseConfig{
		Type: "sqlite",
		Path: filepath.Join(t.TempDir(), "test.db"),
	}
	db, err := database.Open(dbCfg)
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() { database.Close(db) })

	logger := zap.NewNop()
	gateway := database.NewGateway(db, 100, logger)
	sources := provider.NewManager(logger)
	updater := service.NewUpdater(gateway, sources, &config.UpdateConfig{
		MaxWorkers:       2,
		HistoryStartDate: "2020-01-01",
	}, logger)

	r := gin.New()
	NewHandler(updater, gateway, logger).RegisterRoutes(r)
	return r, gateway
}

func doRequest(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// TestHealthCheck 测试健康检查
func TestHealthCheck(t *testing.T) {
	r, _ := testRouter(t)

	w := doRequest(r, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Code)
}

// TestGetInfo 测试表信息接口
func TestGetInfo(t *testing.T) {
	r, _ := testRouter(t)

	w := doRequest(r, http.MethodGet, "/api/v1/info", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestTriggerUpdate_BadCategory 测试未知类别返回参数错误
func TestTriggerUpdate_BadCategory(t *testing.T) {
	r, _ := testRouter(t)

	w := doRequest(r, http.MethodPost, "/api/v1/update",
		`{"codes":["000001.SZ"],"categories":["bogus"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestTriggerUpdate_BadDate 测试非法截止日期
func TestTriggerUpdate_BadDate(t *testing.T) {
	r, _ := testRouter(t)

	w := doRequest(r, http.MethodPost, "/api/v1/update",
		`{"codes":["000001.SZ"],"as_of":"2024/01/15"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestTriggerUpdate_EmptyCodes 测试证券列表为空时拒绝
func TestTriggerUpdate_EmptyCodes(t *testing.T) {
	r, _ := testRouter(t)

	w := doRequest(r, http.MethodPost, "/api/v1/update", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestTriggerUpdate_ReturnsRunID 测试异步触发返回 run_id
func TestTriggerUpdate_ReturnsRunID(t *testing.T) {
	r, _ := testRouter(t)

	w := doRequest(r, http.MethodPost, "/api/v1/update",
		`{"codes":["000001.SZ"],"categories":["price_data"]}`)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Code int `json:"code"`
		Data struct {
			RunID string `json:"run_id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.Data.RunID, "run_"))
}

// TestGetRun_NotFound 测试查询不存在的运行记录
func TestGetRun_NotFound(t *testing.T) {
	r, _ := testRouter(t)

	w := doRequest(r, http.MethodGet, "/api/v1/runs/run_missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestGetStocks 测试证券列表接口
func TestGetStocks(t *testing.T) {
	r, gateway := testRouter(t)

	_, err := gateway.SaveStockList([]models.StockInfo{
		{Code: "000001.SZ", DisplayName: "平安银行"},
	})
	require.NoError(t, err)

	w := doRequest(r, http.MethodGet, "/api/v1/data/stocks", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "000001.SZ")
}

// TestGetStockInfo_NotFound 测试不存在的证券
func TestGetStockInfo_NotFound(t *testing.T) {
	r, _ := testRouter(t)

	w := doRequest(r, http.MethodGet, "/api/v1/data/stock/999999.SZ", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestGetPrices 测试价格区间查询
func TestGetPrices(t *testing.T) {
	r, gateway := testRouter(t)

	_, err := gateway.Upsert(models.CategoryPrice, &models.Dataset{
		Fields: []string{"code", "day", "open", "close", "high", "low", "volume", "money"},
		Rows: [][]interface{}{
			{"000001.SZ", "2024-01-10", 10.0, 10.5, 11.0, 9.8, 1000.0, 10500.0},
			{"000001.SZ", "2024-01-11", 10.5, 10.8, 11.2, 10.2, 1200.0, 12800.0},
		},
	})
	require.NoError(t, err)

	// 缺少 code 参数
	w := doRequest(r, http.MethodGet, "/api/v1/data/prices", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 按日期区间过滤
	w = doRequest(r, http.MethodGet,
		"/api/v1/data/prices?code=000001.SZ&start_date=2024-01-11", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			Total int `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Data.Total)
}

// TestGetTransactions 测试账户交易记录查询
func TestGetTransactions(t *testing.T) {
	r, gateway := testRouter(t)

	day, _ := time.Parse("2006-01-02", "2025-08-21")
	_, err := gateway.SaveTransactions([]models.UserTransaction{
		{TradeID: "T1", UserID: "U1", StockCode: "600335.SH", TradeDate: day,
			TradeType: models.TradeTypeBuy, Quantity: 100, Price: 10.5},
	})
	require.NoError(t, err)

	// 缺少 user_id 参数
	w := doRequest(r, http.MethodGet, "/api/v1/data/transactions", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodGet,
		"/api/v1/data/transactions?user_id=U1&date=2025-08-21", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			Total int `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Data.Total)
}

// TestGetPositions 测试账户持仓快照查询
func TestGetPositions(t *testing.T) {
	r, gateway := testRouter(t)

	day, _ := time.Parse("2006-01-02", "2025-09-01")
	_, err := gateway.SavePositions([]models.UserPosition{
		{PositionID: "POS_U1_20250901_600335.SH", UserID: "U1", PositionDate: day,
			StockCode: "600335.SH", PositionQuantity: 1000, AvailableQuantity: 1000,
			OpenPrice: 10.0, MarketValue: 11000.0},
	})
	require.NoError(t, err)

	w := doRequest(r, http.MethodGet, "/api/v1/data/positions?user_id=U1", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			Total int `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Data.Total)
}
