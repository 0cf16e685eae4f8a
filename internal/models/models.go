package models

import (
	"fmt"
	"time"
)

// Direction 定义了网格策略的交易方向
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// OrderSide 定义了订单方向 (Bumpin 使用数字枚举)
type OrderSide int

const (
	SideNone  OrderSide = 0
	SideLong  OrderSide = 1
	SideShort OrderSide = 2
)

// OrderType 定义了订单类型
type OrderType int

const (
	OrderTypeNone   OrderType = 0
	OrderTypeMarket OrderType = 1
	OrderTypeLimit  OrderType = 2
	OrderTypeStop   OrderType = 3
)

// PositionSide 定义了仓位操作方向 (增仓/减仓)
type PositionSide int

const (
	PositionNone     PositionSide = 0
	PositionIncrease PositionSide = 1
	PositionDecrease PositionSide = 2
)

// StopType 定义了止损单类型
type StopType int

const (
	StopNone       StopType = 0
	StopLoss       StopType = 1
	StopTakeProfit StopType = 2
)

// OrderStatus 是交易所对一次下单请求报告的最终状态。
// Pending 表示订单已接受但尚未成交, 引擎将其视为未执行 (见 engine 包)。
type OrderStatus string

const (
	OrderFilled   OrderStatus = "FILLED"
	OrderRejected OrderStatus = "REJECTED"
	OrderPending  OrderStatus = "PENDING"
)

// Config 结构体定义了单个网格策略的所有配置参数
type Config struct {
	Name              string  `json:"name,omitempty"`
	Description       string  `json:"description,omitempty"`
	APIKey            string  `json:"api_key,omitempty"`
	SecretKey         string  `json:"secret_key,omitempty"`
	BaseURL           string  `json:"base_url,omitempty"`
	Symbol            string  `json:"symbol"`              // 交易对，如 "BTCUSD"
	MarketIndex       int     `json:"market_index"`        // Bumpin 市场索引
	StrategyType      string  `json:"strategy_type"`       // "LONG" 或 "SHORT", 默认 LONG
	GridLower         float64 `json:"grid_lower"`          // 网格下限价格
	GridUpper         float64 `json:"grid_upper"`          // 网格上限价格
	GridNumber        int     `json:"grid_number"`         // 网格数量
	InvestmentPerGrid float64 `json:"investment_per_grid"` // 每格投资金额 (U本位)
	Leverage          int     `json:"leverage,omitempty"`  // 杠杆倍数, 默认 10
	PortfolioMargin   *bool   `json:"portfolio_margin,omitempty"`
	NativeToken       bool    `json:"native_token,omitempty"`
	OrderType         string  `json:"order_type,omitempty"`    // "MARKET" 或 "LIMIT"
	TimeInForce       string  `json:"time_in_force,omitempty"` // 仅限价单使用
	CheckIntervalMs   int     `json:"check_interval_ms,omitempty"`
	StopLossPercent   float64 `json:"stop_loss_percent,omitempty"`
	TakeProfitRate    float64 `json:"take_profit_rate,omitempty"`
	RetryAttempts     int     `json:"retry_attempts,omitempty"`
	RetryDelayMs      int     `json:"retry_delay_ms,omitempty"`
	DBPath            string  `json:"db_path,omitempty"`   // 设置后使用 BadgerDB 持久化状态
	StateDir          string  `json:"state_dir,omitempty"` // JSON 状态文件和交易日志的目录
}

// LogConfig 定义了日志相关的配置
type LogConfig struct {
	Level      string `json:"level"`       // 日志级别, e.g., "debug", "info", "warn", "error"
	Output     string `json:"output"`      // 输出模式: "console", "file", "both"
	File       string `json:"file"`        // 日志文件路径
	MaxSize    int    `json:"max_size"`    // 单个日志文件的最大大小 (MB)
	MaxBackups int    `json:"max_backups"` // 保留的旧日志文件最大数量
	MaxAge     int    `json:"max_age"`     // 旧日志文件的最大保留天数
	Compress   bool   `json:"compress"`    // 是否压缩旧日志文件
}

// 可选字段的默认值, 由 Validate 填充。
const (
	DefaultLeverage      = 10
	DefaultCheckInterval = 10 * time.Second
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = 5 * time.Second
	DefaultTakeProfit    = 1.0
)

// Validate 检查必需字段并为可选字段填充默认值。
// 配置错误在构造阶段即为致命错误，绝不重试。
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("配置缺少必需项: api_key")
	}
	if c.SecretKey == "" {
		return fmt.Errorf("配置缺少必需项: secret_key")
	}
	if c.Symbol == "" {
		return fmt.Errorf("配置缺少必需项: symbol")
	}
	if c.MarketIndex < 0 {
		return fmt.Errorf("market_index 无效: %d", c.MarketIndex)
	}
	if c.GridLower <= 0 || c.GridUpper <= 0 {
		return fmt.Errorf("配置缺少必需项: grid_lower/grid_upper 必须为正数")
	}
	if c.GridLower >= c.GridUpper {
		return fmt.Errorf("网格范围无效: grid_lower (%.4f) 必须小于 grid_upper (%.4f)", c.GridLower, c.GridUpper)
	}
	if c.GridNumber < 1 {
		return fmt.Errorf("grid_number 必须 >= 1, 实际为 %d", c.GridNumber)
	}
	if c.InvestmentPerGrid <= 0 {
		return fmt.Errorf("配置缺少必需项: investment_per_grid 必须为正数")
	}
	switch c.StrategyType {
	case "", string(Long):
		c.StrategyType = string(Long)
	case string(Short):
	default:
		return fmt.Errorf("strategy_type 无效: %s (仅支持 LONG/SHORT)", c.StrategyType)
	}
	switch c.OrderType {
	case "":
		c.OrderType = "MARKET"
	case "MARKET", "LIMIT":
	default:
		return fmt.Errorf("order_type 无效: %s", c.OrderType)
	}
	if c.Leverage <= 0 {
		c.Leverage = DefaultLeverage
	}
	if c.CheckIntervalMs <= 0 {
		c.CheckIntervalMs = int(DefaultCheckInterval / time.Millisecond)
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = DefaultRetryAttempts
	}
	if c.RetryDelayMs <= 0 {
		c.RetryDelayMs = int(DefaultRetryDelay / time.Millisecond)
	}
	if c.TakeProfitRate <= 0 {
		c.TakeProfitRate = DefaultTakeProfit
	}
	return nil
}

// Direction 返回配置对应的交易方向。
func (c *Config) Direction() Direction {
	if c.StrategyType == string(Short) {
		return Short
	}
	return Long
}

// CheckInterval 返回轮询间隔。
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalMs) * time.Millisecond
}

// RetryDelay 返回重试间隔。
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// WireOrderType 返回下单接口使用的数字枚举。
func (c *Config) WireOrderType() OrderType {
	if c.OrderType == "LIMIT" {
		return OrderTypeLimit
	}
	return OrderTypeMarket
}

// IsPortfolioMargin 返回是否使用组合保证金, 默认为 true (与 Bumpin 默认一致)。
func (c *Config) IsPortfolioMargin() bool {
	if c.PortfolioMargin == nil {
		return true
	}
	return *c.PortfolioMargin
}

// OrderRequest 是提交给交易所的下单参数, 字段与 /user/place-order 一一对应。
type OrderRequest struct {
	MarketIndex       int          `json:"marketIndex"`
	IsPortfolioMargin bool         `json:"isPortfolioMargin"`
	IsNativeToken     bool         `json:"isNativeToken"`
	PositionSide      PositionSide `json:"positionSide"`
	OrderSide         OrderSide    `json:"orderSide"`
	OrderType         OrderType    `json:"orderType"`
	StopType          StopType     `json:"stopType"`
	Size              float64      `json:"size"`        // U本位订单金额
	OrderMargin       float64      `json:"orderMargin"` // 币本位保证金, 平仓时为 0
	Leverage          int          `json:"leverage"`
	TriggerPrice      float64      `json:"triggerPrice"`
	AcceptablePrice   float64      `json:"acceptablePrice"`
	TakeProfitRate    float64      `json:"takeProfitRate"`
	ClientOrderID     string       `json:"clientOrderId,omitempty"`
}

// OrderResult 是交易所对一次下单请求的确认结果。
type OrderResult struct {
	OrderID string      `json:"orderId"`
	Status  OrderStatus `json:"status"`
}

// AccountInfo 定义了 Bumpin 账户信息
type AccountInfo struct {
	AvailableBalance string `json:"availableBalance"`
	TotalBalance     string `json:"totalBalance"`
}

// Position 定义了持仓信息
type Position struct {
	MarketIndex   int    `json:"marketIndex"`
	Symbol        string `json:"symbol"`
	PositionSize  string `json:"positionSize"`
	EntryPrice    string `json:"entryPrice"`
	MarkPrice     string `json:"markPrice"`
	UnrealizedPnl string `json:"unrealizedPnl"`
	Leverage      string `json:"leverage"`
	IsLong        bool   `json:"isLong"`
}

// Order 定义了交易所返回的挂单信息
type Order struct {
	OrderID     string `json:"orderId"`
	MarketIndex int    `json:"marketIndex"`
	Symbol      string `json:"symbol"`
	OrderSide   int    `json:"orderSide"`
	OrderType   int    `json:"orderType"`
	Size        string `json:"size"`
	Price       string `json:"price"`
	Status      string `json:"status"`
	CreatedAt   int64  `json:"createdAt"`
}

// APIError 定义了 Bumpin API 返回的错误信息结构
type APIError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Error 方法使得 APIError 实现了 error 接口
func (e *APIError) Error() string {
	return fmt.Sprintf("API Error: code=%d, msg=%s", e.Code, e.Msg)
}

// IsRateLimited 报告该错误是否为限流响应 (code 429)。
func (e *APIError) IsRateLimited() bool {
	return e.Code == 429
}
