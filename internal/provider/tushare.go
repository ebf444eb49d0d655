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

// TushareSource Tushare 数据源
type TushareSource struct {
	token   string
	baseURL string
	retry   int
	client  *http.Client
	limiter *rate.Limiter
}

// tushareRequest Tushare API 请求结构
type tushareRequest struct {
	APIName string                 `json:"api_name"`
	Token   string                 `json:"token"`
	Params  map[string]interface{} `json:"params"`
	Fields  string                 `json:"fields,omitempty"`
}

// tushareResponse Tushare API 响应结构
type tushareResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// tushareEndpoint 类别到 Tushare 接口的映射
type tushareEndpoint struct {
	apiName string
	renames map[string]string // Tushare 字段名 -> 内部标准名
}

var tushareEndpoints = map[models.DataCategory]tushareEndpoint{
	models.CategoryPrice: {
		apiName: "daily",
		renames: map[string]string{
			"ts_code": "code", "trade_date": "day",
			"vol": "volume", "amount": "money",
		},
	},
	models.CategoryFundamental: {
		apiName: "daily_basic",
		renames: map[string]string{
			"ts_code": "code", "trade_date": "day",
			"pe_ttm": "pe_ratio", "pb": "pb_ratio", "ps_ttm": "ps_ratio",
			"total_mv": "market_cap", "circ_mv": "circulating_cap",
			"turnover_rate": "turnover_ratio",
		},
	},
	models.CategoryIndicator: {
		apiName: "fina_indicator",
		renames: map[string]string{
			"ts_code": "code", "ann_date": "day",
			"grossprofit_margin": "gross_profit_margin",
			"netprofit_margin":   "net_profit_margin",
		},
	},
	models.CategoryMtss: {
		apiName: "margin_detail",
		renames: map[string]string{
			"ts_code": "code", "trade_date": "day",
			"rzye": "fin_value", "rzmre": "fin_buy_value",
			"rqye": "sec_value", "rqmcl": "sec_sell_value",
			"rzrqye": "fin_sec_value",
		},
	},
	models.CategoryIncome: {
		apiName: "income",
		renames: map[string]string{
			"ts_code": "code", "end_date": "stat_date", "ann_date": "pub_date",
			"total_revenue":  "total_operating_revenue",
			"revenue":        "operating_revenue",
			"operate_profit": "operating_profit",
			"n_income":       "net_profit",
		},
	},
	models.CategoryCashflow: {
		apiName: "cashflow",
		renames: map[string]string{
			"ts_code": "code", "end_date": "stat_date", "ann_date": "pub_date",
			"n_cashflow_act":       "net_operate_cash_flow",
			"n_cashflow_inv_act":   "net_invest_cash_flow",
			"n_cash_flows_fnc_act": "net_finance_cash_flow",
			"n_incr_cash_cash_equ": "cash_equivalent_increase",
		},
	},
	models.CategoryBalance: {
		apiName: "balancesheet",
		renames: map[string]string{
			"ts_code": "code", "end_date": "stat_date", "ann_date": "pub_date",
			"total_liab":                 "total_liability",
			"total_hldr_eqy_inc_min_int": "total_owner_equities",
			"total_cur_assets":           "total_current_assets",
			"total_cur_liab":             "total_current_liability",
		},
	},
}

// NewTushareSource 创建 Tushare 数据源
func NewTushareSource(cfg *config.ProviderConfig) *TushareSource {
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
	return &TushareSource{
		token:   cfg.Token,
		baseURL: cfg.BaseURL,
		retry:   retry,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
	}
}

// Name 数据源名
func (s *TushareSource) Name() string {
	return "tushare"
}

// StockList 获取上市证券列表
func (s *TushareSource) StockList(ctx context.Context) (*models.Dataset, error) {
	params := map[string]interface{}{
		"list_status": "L", // 只获取上市状态的证券
	}

	ds, err := s.request(ctx, "stock_basic", params)
	if err != nil {
		return nil, err
	}

	return normalizeFields(ds, map[string]string{
		"ts_code":     "code",
		"name":        "display_name",
		"list_date":   "start_date",
		"delist_date": "end_date",
		"market":      "type",
	}), nil
}

// Fetch 获取单只证券某类别的数据
func (s *TushareSource) Fetch(ctx context.Context, code string, category models.DataCategory, start, end time.Time) (*models.Dataset, error) {
	endpoint, ok := tushareEndpoints[category]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownCategory, category)
	}

	params := map[string]interface{}{
		"ts_code":    code,
		"start_date": start.Format("20060102"),
		"end_date":   end.Format("20060102"),
	}

	ds, err := s.request(ctx, endpoint.apiName, params)
	if err != nil {
		return nil, err
	}

	return normalizeFields(ds, endpoint.renames), nil
}

// request 发送请求，带限流和指数退避重试
func (s *TushareSource) request(ctx context.Context, apiName string, params map[string]interface{}) (*models.Dataset, error) {
	reqData := tushareRequest{
		APIName: apiName,
		Token:   s.token,
		Params:  params,
	}

	jsonData, err := json.Marshal(reqData)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	operation := func() (*tushareResponse, error) {
		resp, err := s.doRequest(ctx, jsonData)
		if err != nil {
			return nil, err
		}
		if resp.Code != 0 {
			// 接口级错误（权限、参数）重试没有意义
			return nil, backoff.Permanent(fmt.Errorf("tushare 返回错误: %s", resp.Msg))
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
func (s *TushareSource) doRequest(ctx context.Context, jsonData []byte) (*tushareResponse, error) {
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

	var resp tushareResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}

	return &resp, nil
}
