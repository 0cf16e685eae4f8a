package models

import "time"

// GridLevel 代表网格中的一个价格档位及其运行时状态。
// 档位在引擎构造时一次性生成, 只会被引擎的下单流程修改。
type GridLevel struct {
	Index       int     `json:"index"`
	Price       float64 `json:"price"`
	HasPosition bool    `json:"has_position"`
	EntryPrice  float64 `json:"entry_price"`
	Size        float64 `json:"size"`

	// 进场/出场在途标记, 防止同一档位重复下单。
	// 不持久化: 崩溃时未确认的订单视为未执行。
	EntryOrderActive bool `json:"-"`
	ExitOrderActive  bool `json:"-"`
}

// GridFingerprint 是用于校验持久化状态与当前配置是否匹配的配置指纹。
// 任一字段不一致时, 历史状态被整体丢弃, 引擎冷启动。
type GridFingerprint struct {
	GridLower         float64 `json:"grid_lower"`
	GridUpper         float64 `json:"grid_upper"`
	GridNumber        int     `json:"grid_number"`
	InvestmentPerGrid float64 `json:"investment_per_grid"`
}

// EngineState 定义了需要持久化的所有关键数据。
// 每次订单成交后保存; 引擎自身永远不会删除它。
type EngineState struct {
	Timestamp   time.Time       `json:"timestamp"`
	Symbol      string          `json:"symbol"`
	MarketIndex int             `json:"market_index"`
	GridConfig  GridFingerprint `json:"grid_config"`
	TotalProfit float64         `json:"total_profit"`
	EntryCount  int             `json:"entry_count"`
	ExitCount   int             `json:"exit_count"`
	// 仅包含 HasPosition=true 的档位, 其余档位恢复时默认为空。
	Levels []GridLevel `json:"levels"`
}

// TradeRecord 是追加写入交易日志的单条成交记录, 一经写入不再修改。
type TradeRecord struct {
	Timestamp     time.Time `json:"timestamp"`
	TimestampMs   int64     `json:"timestamp_ms"`
	Symbol        string    `json:"symbol"`
	MarketIndex   int       `json:"market_index"`
	Type          string    `json:"type"` // BUY/SELL (做多) 或 SHORT/COVER (做空)
	GridLevel     int       `json:"grid_level"`
	Price         float64   `json:"price"`
	EntryPrice    float64   `json:"entry_price,omitempty"` // 仅平仓记录
	Size          float64   `json:"size"`
	OrderMargin   float64   `json:"order_margin,omitempty"` // 仅开仓记录
	Profit        float64   `json:"profit,omitempty"`
	ProfitPercent float64   `json:"profit_percent,omitempty"`
	TotalProfit   float64   `json:"total_profit,omitempty"`
	Leverage      int       `json:"leverage"`
	OrderID       string    `json:"order_id,omitempty"`
}
