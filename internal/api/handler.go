package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stock_platform/internal/database"
	"stock_platform/internal/models"
	"stock_platform/internal/service"
)

// Handler API 处理器
type Handler struct {
	updater *service.Updater
	gateway *database.Gateway
	logger  *zap.Logger
}

// NewHandler 创建处理器
func NewHandler(updater *service.Updater, gateway *database.Gateway, logger *zap.Logger) *Handler {
	return &Handler{
		updater: updater,
		gateway: gateway,
		logger:  logger,
	}
}

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// UpdateRequest 更新请求
type UpdateRequest struct {
	Codes      []string `json:"codes"`
	Categories []string `json:"categories"`
	ForceFull  bool     `json:"force_full"`
	AsOf       string   `json:"as_of"` // YYYY-MM-DD，为空表示今天
	MaxWorkers int      `json:"max_workers"`
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.GET("/health", h.HealthCheck)
		api.GET("/info", h.GetInfo)

		api.POST("/update", h.TriggerUpdate)
		api.GET("/runs", h.ListRuns)
		api.GET("/runs/:run_id", h.GetRun)

		data := api.Group("/data")
		{
			data.GET("/stocks", h.GetStocks)
			data.GET("/stock/:code", h.GetStockInfo)
			data.GET("/prices", h.GetPrices)
			data.GET("/transactions", h.GetTransactions)
			data.GET("/positions", h.GetPositions)
		}
	}
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "OK",
		Data: gin.H{
			"status": "healthy",
		},
	})
}

// GetInfo 各数据表的规模信息
func (h *Handler) GetInfo(c *gin.Context) {
	infos, err := h.gateway.Info()
	if err != nil {
		c.JSON(http.StatusInternalServerError, Response{
			Code:    500,
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    infos,
	})
}

// TriggerUpdate 触发一次异步更新，返回运行ID供轮询
func (h *Handler) TriggerUpdate(c *gin.Context) {
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Code:    400,
			Message: "参数错误: " + err.Error(),
		})
		return
	}

	categories, err := models.ParseCategories(req.Categories)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Code:    400,
			Message: "参数错误: " + err.Error(),
		})
		return
	}

	var asOf time.Time
	if req.AsOf != "" {
		asOf, err = time.Parse("2006-01-02", req.AsOf)
		if err != nil {
			c.JSON(http.StatusBadRequest, Response{
				Code:    400,
				Message: "as_of 日期格式错误，应为 YYYY-MM-DD",
			})
			return
		}
	}

	codes := req.Codes
	if len(codes) == 0 {
		codes, err = h.gateway.StockCodes()
		if err != nil || len(codes) == 0 {
			c.JSON(http.StatusBadRequest, Response{
				Code:    400,
				Message: "未指定证券代码且证券列表为空",
			})
			return
		}
	}

	runID := service.NewRunID()
	runReq := service.RunRequest{
		RunID:      runID,
		Codes:      codes,
		Categories: categories,
		ForceFull:  req.ForceFull,
		AsOf:       asOf,
		MaxWorkers: req.MaxWorkers,
	}

	h.logger.Info("收到更新请求",
		zap.String("run_id", runID),
		zap.Int("codes", len(codes)),
		zap.Bool("force_full", req.ForceFull))

	// 异步执行，客户端按 run_id 轮询结果
	go func() {
		if _, err := h.updater.Run(context.Background(), runReq); err != nil {
			h.logger.Error("更新运行失败", zap.String("run_id", runID), zap.Error(err))
		}
	}()

	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "更新任务已启动，请按 run_id 查询进度",
		Data: gin.H{
			"run_id": runID,
		},
	})
}

// GetRun 查询单次运行的结果
func (h *Handler) GetRun(c *gin.Context) {
	runID := c.Param("run_id")

	run, err := h.gateway.GetRun(runID)
	if err != nil {
		c.JSON(http.StatusNotFound, Response{
			Code:    404,
			Message: "运行记录不存在",
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    run,
	})
}

// ListRuns 分页查询运行记录
func (h *Handler) ListRuns(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	runs, total, err := h.gateway.ListRuns(pageSize, (page-1)*pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, Response{
			Code:    500,
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data: gin.H{
			"list":  runs,
			"total": total,
			"page":  page,
		},
	})
}

// GetStocks 获取证券列表
func (h *Handler) GetStocks(c *gin.Context) {
	codes, err := h.gateway.StockCodes()
	if err != nil {
		c.JSON(http.StatusInternalServerError, Response{
			Code:    500,
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data: gin.H{
			"list":  codes,
			"total": len(codes),
		},
	})
}

// GetStockInfo 获取证券详细信息
func (h *Handler) GetStockInfo(c *gin.Context) {
	code := c.Param("code")

	stock, err := h.gateway.StockInfo(code)
	if err != nil {
		c.JSON(http.StatusNotFound, Response{
			Code:    404,
			Message: "证券不存在",
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    stock,
	})
}

// GetPrices 按代码和日期范围查询价格数据
func (h *Handler) GetPrices(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, Response{
			Code:    400,
			Message: "缺少 code 参数",
		})
		return
	}

	var start, end *time.Time
	if s := c.Query("start_date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			c.JSON(http.StatusBadRequest, Response{Code: 400, Message: "start_date 格式错误"})
			return
		}
		start = &t
	}
	if s := c.Query("end_date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			c.JSON(http.StatusBadRequest, Response{Code: 400, Message: "end_date 格式错误"})
			return
		}
		end = &t
	}

	prices, err := h.gateway.PriceRange(code, start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, Response{
			Code:    500,
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data: gin.H{
			"list":  prices,
			"total": len(prices),
		},
	})
}

// GetTransactions 按账户和日期查询交易记录
func (h *Handler) GetTransactions(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, Response{
			Code:    400,
			Message: "缺少 user_id 参数",
		})
		return
	}

	var tradeDate *time.Time
	if s := c.Query("date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			c.JSON(http.StatusBadRequest, Response{Code: 400, Message: "date 格式错误"})
			return
		}
		tradeDate = &t
	}

	transactions, err := h.gateway.Transactions(userID, tradeDate)
	if err != nil {
		c.JSON(http.StatusInternalServerError, Response{
			Code:    500,
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data: gin.H{
			"list":  transactions,
			"total": len(transactions),
		},
	})
}

// GetPositions 按账户和日期查询持仓快照
func (h *Handler) GetPositions(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, Response{
			Code:    400,
			Message: "缺少 user_id 参数",
		})
		return
	}

	var positionDate *time.Time
	if s := c.Query("date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			c.JSON(http.StatusBadRequest, Response{Code: 400, Message: "date 格式错误"})
			return
		}
		positionDate = &t
	}

	positions, err := h.gateway.Positions(userID, positionDate)
	if err != nil {
		c.JSON(http.StatusInternalServerError, Response{
			Code:    500,
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data: gin.H{
			"list":  positions,
			"total": len(positions),
		},
	})
}
