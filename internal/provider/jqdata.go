package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"stock_platform/internal/config"
	"stock_platform/internal/models"
)

// JQDataSource JQData 数据源
// 经 HTTP 桥接服务访问，请求与响应结构与 Tushare 同为列式 JSON，
// 字段名即内部标准名，无需重命名
type JQDataSource struct {
	token   string
	baseURL string
	retry   int
	client  *http.Client
	limiter *rate.Limiter
}

// jqdataRequest JQData 桥接请求结构
type jqdataRequest struct {
	Method string                 `json:"method"`
	Token  string                 `json:"token"`
	Params map[string]interface{} `json:"params"`
}

// jqdataResponse JQData 桥接响应结构
type jqdataResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// 类别到 JQData 查询方法的映射
var jqdataMethods = map[models.DataCategory]string{
	models.CategoryPrice:       "get_price",
	models.CategoryFundamental: "get_valuation",
	models.CategoryIndicator:   "get_indicator",
	models.CategoryMtss:        "get_mtss",
	models.CategoryIncome:      "get_income_statement",
	models.CategoryCashflow:    "get_cashflow_statement",
	models.CategoryBalance:     "get_balance_sheet",
}

// NewJQDataSource 创建 JQData 数据源
func NewJQDataSource(cfg *config.ProviderConfig) *JQDataSource {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RateLimit)), 1)
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if cfg.Timeout <= 0 {
		timeout = 30 * time.Second
	}
	retry := cfg.Retry
	if retry < 0 {
		retry = 0
	}
	return &JQDataSource{
		token:   cfg.Token,
		baseURL: cfg.BaseURL,
		retry:   retry,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
	}
}

// Name 数据源名
func (s *JQDataSource) Name() string {
	return "jqdata"
}

// StockList 获取全部证券列表
func (s *JQDataSource) StockList(ctx context.Context) (*models.Dataset, error) {
	return s.request(ctx, "get_all_securities", map[string]interface{}{
		"types": []string{"stock", "index", "etf"},
	})
}

// Fetch 获取单只证券某类别的数据
func (s *JQDataSource) Fetch(ctx context.Context, code string, category models.DataCategory, start, end time.Time) (*models.Dataset, error) {
	method, ok := jqdataMethods[category]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownCategory, category)
	}

	return s.request(ctx, method, map[string]interface{}{
		"code":       code,
		"start_date": start.Format("2006-01-02"),
		"end_date":   end.Format("2006-01-02"),
	})
}

// request 发送请求，带限流和指数退避重试
func (s *JQDataSource) request(ctx context.Context, method string, params map[string]interface{}) (*models.Dataset, error) {
	reqData := jqdataRequest{
		Method: method,
		Token:  s.token,
		Params: params,
	}

	jsonData, err := json.Marshal(reqData)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	operation := func() (*jqdataResponse, error) {
		resp, err := s.doRequest(ctx, jsonData)
		if err != nil {
			return nil, err
		}
		if resp.Code != 0 {
			return nil, backoff.Permanent(fmt.Errorf("jqdata 返回错误: %s", resp.Msg))
		}
		return resp, nil
	}

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(s.retry+1)))
	if err != nil {
		return nil, err
	}

	var ds models.Dataset
	if err := json.Unmarshal(resp.Data, &ds); err != nil {
		return nil, fmt.Errorf("解析响应数据失败: %w", err)
	}

	return &ds, nil
}

// doRequest 执行一次 HTTP 请求
func (s *JQDataSource) doRequest(ctx context.Context, jsonData []byte) (*jqdataResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	httpResp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送请求失败: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}

	var resp jqdataResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}

	return &resp, nil
}
