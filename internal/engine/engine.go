package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"bumpin-grid-bot-go/internal/exchange"
	"bumpin-grid-bot-go/internal/ledger"
	"bumpin-grid-bot-go/internal/models"
	"bumpin-grid-bot-go/internal/persistence"
	"bumpin-grid-bot-go/internal/ratelimit"
	"bumpin-grid-bot-go/internal/reporter"
	"bumpin-grid-bot-go/internal/retry"

	"github.com/jxskiss/base62"
	"go.uber.org/zap"
)

const (
	// 同一轮内连续下单之间的固定间隔, 避免瞬时突发请求。
	interOrderPause = 1 * time.Second

	// 交易所要求的最低保证金 (U), 下单时换算为币本位。
	minMarginUSD = 5.0
)

// Engine 是网格交易引擎的核心: 持有所有网格档位、每档的仓位状态机、
// 进出场决策算法和轮询循环。多空方向由 models.Direction 参数化,
// 比较方向和盈利符号随之镜像。
type Engine struct {
	cfg     *models.Config
	dir     models.Direction
	ex      exchange.Exchange
	limiter *ratelimit.Limiter
	policy  *retry.Policy
	repo    persistence.StateRepository
	trades  *ledger.Ledger
	logger  *zap.SugaredLogger

	// 档位集合由引擎独占, 仅被下单流程修改, 不对外暴露别名。
	levels       []models.GridLevel
	currentPrice float64
	totalProfit  float64
	entryCount   int
	exitCount    int

	pause time.Duration

	mu      sync.Mutex
	running bool
	stopC   chan struct{}
	done    chan struct{}
}

// New 创建一个网格引擎实例。配置错误在此处即为致命错误;
// 持久化的历史状态 (如有且指纹匹配) 会在构造时恢复。
func New(cfg *models.Config, ex exchange.Exchange, limiter *ratelimit.Limiter,
	repo persistence.StateRepository, trades *ledger.Ledger, logger *zap.SugaredLogger) (*Engine, error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:     cfg,
		dir:     cfg.Direction(),
		ex:      ex,
		limiter: limiter,
		policy:  retry.New(cfg.RetryAttempts, cfg.RetryDelay(), logger),
		repo:    repo,
		trades:  trades,
		logger:  logger,
		pause:   interOrderPause,
	}

	e.initializeGrid()
	e.restoreState()

	logger.Infof("网格策略初始化成功: %s (市场索引 %d, %s)", cfg.Symbol, cfg.MarketIndex, e.dir)
	logger.Infof("网格范围: %.2f - %.2f, 共 %d 格, 每格投资 %.2f, 杠杆 %dx",
		cfg.GridLower, cfg.GridUpper, cfg.GridNumber, cfg.InvestmentPerGrid, cfg.Leverage)
	if cfg.StopLossPercent > 0 {
		logger.Infof("止损参考线: %.2f%% (仅提示, 引擎不主动挂止损单)", cfg.StopLossPercent)
	}

	return e, nil
}

// initializeGrid 在上下限之间生成 N+1 个等距价格档位, 全部为空仓。
func (e *Engine) initializeGrid() {
	n := e.cfg.GridNumber
	step := (e.cfg.GridUpper - e.cfg.GridLower) / float64(n)

	e.levels = make([]models.GridLevel, n+1)
	for i := 0; i <= n; i++ {
		e.levels[i] = models.GridLevel{
			Index: i,
			Price: e.cfg.GridLower + step*float64(i),
		}
	}
}

// fingerprint 返回当前配置的指纹, 用于校验持久化状态。
func (e *Engine) fingerprint() models.GridFingerprint {
	return models.GridFingerprint{
		GridLower:         e.cfg.GridLower,
		GridUpper:         e.cfg.GridUpper,
		GridNumber:        e.cfg.GridNumber,
		InvestmentPerGrid: e.cfg.InvestmentPerGrid,
	}
}

// restoreState 尝试从仓库恢复历史状态。文件缺失、解析失败或指纹不匹配
// 都按"无状态"处理, 引擎冷启动; 只恢复有持仓的档位, 在途标记一律清零。
func (e *Engine) restoreState() {
	if e.repo == nil {
		return
	}

	state, err := e.repo.LoadState()
	if err != nil {
		e.logger.Warnf("加载历史状态失败, 将以全新状态启动: %v", err)
		return
	}
	if state == nil {
		e.logger.Info("未找到历史状态, 从新状态开始")
		return
	}

	if state.Symbol != e.cfg.Symbol || state.MarketIndex != e.cfg.MarketIndex || state.GridConfig != e.fingerprint() {
		e.logger.Warnf("历史状态配置不匹配, 从新状态开始 (历史: %s [%.2f-%.2f], 当前: %s [%.2f-%.2f])",
			state.Symbol, state.GridConfig.GridLower, state.GridConfig.GridUpper,
			e.cfg.Symbol, e.cfg.GridLower, e.cfg.GridUpper)
		return
	}

	restored := 0
	for _, lv := range state.Levels {
		if !lv.HasPosition || lv.Index < 0 || lv.Index >= len(e.levels) {
			continue
		}
		level := &e.levels[lv.Index]
		level.HasPosition = true
		level.EntryPrice = lv.EntryPrice
		level.Size = lv.Size
		restored++
	}
	e.totalProfit = state.TotalProfit
	e.entryCount = state.EntryCount
	e.exitCount = state.ExitCount

	e.logger.Infof("成功加载历史状态: 恢复持仓 %d 个档位, 累计盈利 $%.4f (状态时间 %s)",
		restored, e.totalProfit, state.Timestamp.Format("2006-01-02 15:04:05"))
}

// Start 启动轮询循环: 立即执行一次检查, 之后按固定间隔执行。
// 引擎已在运行时返回错误。
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("引擎已在运行: %s", e.cfg.Symbol)
	}
	e.running = true
	e.stopC = make(chan struct{})
	e.done = make(chan struct{})
	stopC, done := e.stopC, e.done
	e.mu.Unlock()

	go e.run(ctx, stopC, done)
	return nil
}

// run 是引擎唯一的工作协程。一轮检查完整执行结束后才会等待下一次
// tick, 因此轮次永远不会重叠; 检查期间到期的 tick 被自然丢弃。
func (e *Engine) run(ctx context.Context, stopC <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	e.logger.Infof("网格引擎已启动, 检查间隔 %v", e.cfg.CheckInterval())
	e.runCycle(ctx)

	ticker := time.NewTicker(e.cfg.CheckInterval())
	defer ticker.Stop()

	for {
		select {
		case <-stopC:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.runCycle(ctx)
		}
	}
}

// Stop 幂等地停止引擎: 阻止新一轮检查开始, 等待进行中的一轮完整结束
// (不会在订单中途打断), 最后刷新一次状态并打印最终报告。
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	stopC, done := e.stopC, e.done
	e.mu.Unlock()

	close(stopC)
	<-done

	e.persistState()
	reporter.FinalReport(e.snapshot(), e.logger)
	e.logger.Infof("网格引擎已停止: %s", e.cfg.Symbol)
}

// runCycle 执行一轮完整检查: 取价 → 范围过滤 → 决策 → 顺序执行 → 上报。
// 决策基于本轮开始时的档位状态快照, 执行阶段才修改状态。
func (e *Engine) runCycle(ctx context.Context) {
	price, err := e.fetchPrice(ctx)
	if err != nil {
		// 瞬时失败不升级: 跳过本轮, 下一轮重新尝试。
		e.logger.Warnf("获取价格失败, 跳过本轮检查: %v", err)
		return
	}
	e.currentPrice = price

	if price < e.cfg.GridLower || price > e.cfg.GridUpper {
		e.logger.Warnf("当前价格 $%.2f 超出网格范围 [$%.2f - $%.2f], 本轮不做任何操作",
			price, e.cfg.GridLower, e.cfg.GridUpper)
		return
	}

	e.logger.Infof("当前价格: $%.2f", price)

	var entries, exits []int
	for i := range e.levels {
		if e.entryEligible(i, price) {
			entries = append(entries, i)
		}
	}
	for i := range e.levels {
		if e.exitEligible(i, price) {
			exits = append(exits, i)
		}
	}

	// 只在相邻两次下单之间停顿, 最后一单之后直接进入状态上报。
	ordered := false
	for _, i := range entries {
		if ordered {
			e.pauseBetweenOrders(ctx)
		}
		e.executeEntry(ctx, i, price)
		ordered = true
	}
	for _, i := range exits {
		if ordered {
			e.pauseBetweenOrders(ctx)
		}
		e.executeExit(ctx, i, price)
		ordered = true
	}

	reporter.LogStatus(e.snapshot(), e.logger)
}

// fetchPrice 获取当前价格, 全局节流并按策略重试。
func (e *Engine) fetchPrice(ctx context.Context) (float64, error) {
	return retry.Do(ctx, e.policy, "get-price "+e.cfg.Symbol, func() (float64, error) {
		if err := e.limiter.Wait(ctx); err != nil {
			return 0, err
		}
		return e.ex.GetPrice(ctx, e.cfg.Symbol)
	})
}

// anyPosition 报告是否有任意档位持仓。
func (e *Engine) anyPosition() bool {
	for i := range e.levels {
		if e.levels[i].HasPosition {
			return true
		}
	}
	return false
}

// closestLevel 返回价格上最接近 price 的档位索引, 距离相同时取较低索引。
func (e *Engine) closestLevel(price float64) int {
	closest := 0
	minDiff := math.Abs(e.levels[0].Price - price)
	for i := 1; i < len(e.levels); i++ {
		if diff := math.Abs(e.levels[i].Price - price); diff < minDiff {
			minDiff = diff
			closest = i
		}
	}
	return closest
}

// entryEligible 判定档位 i 是否允许开仓:
//   - 首次建仓: 所有档位都无持仓时, 只有离当前价格最近的档位可以建仓;
//   - 链式建仓 (做多): 价格跌至档位价格以下, 且 i 是最低档或上方相邻档位
//     持仓; 做空方向完全镜像 (价格涨至档位以上, 最高档或下方相邻档持仓)。
func (e *Engine) entryEligible(i int, price float64) bool {
	lv := &e.levels[i]
	if lv.HasPosition || lv.EntryOrderActive {
		return false
	}

	if !e.anyPosition() {
		return i == e.closestLevel(price)
	}

	last := len(e.levels) - 1
	if e.dir == models.Long {
		if price > lv.Price {
			return false
		}
		if i == 0 {
			return true
		}
		return i < last && e.levels[i+1].HasPosition
	}

	if price < lv.Price {
		return false
	}
	if i == last {
		return true
	}
	return i > 0 && e.levels[i-1].HasPosition
}

// exitEligible 判定档位 i 是否满足平仓条件: 价格必须越过盈利方向上的
// "下一个"档位 (而不仅是越过本档), 保证每次平仓至少跨越一个完整网格。
// 边界档位 (做多的最高档 / 做空的最低档) 没有下一档, 永远不平仓。
func (e *Engine) exitEligible(i int, price float64) bool {
	lv := &e.levels[i]
	if !lv.HasPosition || lv.ExitOrderActive {
		return false
	}

	last := len(e.levels) - 1
	if e.dir == models.Long {
		return price >= lv.Price && i < last && price >= e.levels[i+1].Price
	}
	return price <= lv.Price && i > 0 && price <= e.levels[i-1].Price
}

// orderMargin 计算开仓所需的币本位保证金:
// size / (price × leverage), 并不低于交易所最低保证金 (5U 换算为币本位)。
func (e *Engine) orderMargin(size, price float64) float64 {
	margin := size / (price * float64(e.cfg.Leverage))
	if min := minMarginUSD / price; margin < min {
		return min
	}
	return margin
}

// newClientOrderID 生成本地订单标识, base62 编码的纳秒时间戳。
func (e *Engine) newClientOrderID() string {
	return fmt.Sprintf("grid-%d-%s", e.cfg.MarketIndex, base62.FormatInt(time.Now().UnixNano()))
}

// entrySides 返回开仓使用的方向参数。
func (e *Engine) entrySides() (models.PositionSide, models.OrderSide, string) {
	if e.dir == models.Short {
		return models.PositionIncrease, models.SideShort, "SHORT"
	}
	return models.PositionIncrease, models.SideLong, "BUY"
}

// exitSides 返回平仓使用的方向参数。
func (e *Engine) exitSides() (models.PositionSide, models.OrderSide, string) {
	if e.dir == models.Short {
		return models.PositionDecrease, models.SideLong, "COVER"
	}
	return models.PositionDecrease, models.SideShort, "SELL"
}

// executeEntry 在档位 i 按当前价格开仓。订单被拒绝或状态未确认时
// 档位保持不变, 条件仍满足的话下一轮会重试。
func (e *Engine) executeEntry(ctx context.Context, i int, price float64) {
	lv := &e.levels[i]
	if lv.HasPosition || lv.EntryOrderActive {
		return
	}

	size := e.cfg.InvestmentPerGrid
	margin := e.orderMargin(size, price)
	positionSide, orderSide, typeName := e.entrySides()

	e.logger.Infof("执行开仓订单 - 档位 %d: 价格 $%.2f, 金额 $%.2f, 保证金 %.8f (约 $%.2f)",
		i, price, size, margin, margin*price)

	lv.EntryOrderActive = true
	defer func() { lv.EntryOrderActive = false }()

	result, err := e.placeOrder(ctx, &models.OrderRequest{
		MarketIndex:       e.cfg.MarketIndex,
		IsPortfolioMargin: e.cfg.IsPortfolioMargin(),
		IsNativeToken:     e.cfg.NativeToken,
		PositionSide:      positionSide,
		OrderSide:         orderSide,
		OrderType:         e.cfg.WireOrderType(),
		StopType:          models.StopNone,
		Size:              size,
		OrderMargin:       margin,
		Leverage:          e.cfg.Leverage,
		TakeProfitRate:    e.cfg.TakeProfitRate,
		ClientOrderID:     e.newClientOrderID(),
	})
	if err != nil {
		e.logger.Errorf("开仓订单失败 (档位 %d @ $%.2f): %v", i, price, err)
		return
	}
	if result.Status != models.OrderFilled {
		// 未确认成交 (Pending/Rejected) 一律视为未执行。
		e.logger.Warnf("开仓订单未成交 (档位 %d, 状态 %s), 档位状态保持不变", i, result.Status)
		return
	}

	lv.HasPosition = true
	lv.EntryPrice = price
	lv.Size = size
	e.entryCount++

	e.logger.Infof("开仓订单执行成功: 档位 %d @ $%.2f, 订单ID %s", i, price, result.OrderID)

	e.appendTrade(&models.TradeRecord{
		Type:        typeName,
		GridLevel:   i,
		Price:       price,
		Size:        size,
		OrderMargin: margin,
		Leverage:    e.cfg.Leverage,
		OrderID:     result.OrderID,
	})
	e.persistState()
}

// executeExit 平掉档位 i 的持仓并结算已实现盈利。
func (e *Engine) executeExit(ctx context.Context, i int, price float64) {
	lv := &e.levels[i]
	if !lv.HasPosition || lv.ExitOrderActive {
		return
	}

	entryPrice := lv.EntryPrice
	size := lv.Size
	profit := e.realizedProfit(size, entryPrice, price)
	priceChange := profit / size
	positionSide, orderSide, typeName := e.exitSides()

	e.logger.Infof("执行平仓订单 - 档位 %d: 入场价 $%.2f, 出场价 $%.2f, 预计盈利 $%.4f (%.2f%%)",
		i, entryPrice, price, profit, priceChange*100)

	lv.ExitOrderActive = true
	defer func() { lv.ExitOrderActive = false }()

	result, err := e.placeOrder(ctx, &models.OrderRequest{
		MarketIndex:       e.cfg.MarketIndex,
		IsPortfolioMargin: e.cfg.IsPortfolioMargin(),
		IsNativeToken:     e.cfg.NativeToken,
		PositionSide:      positionSide,
		OrderSide:         orderSide,
		OrderType:         e.cfg.WireOrderType(),
		StopType:          models.StopNone,
		Size:              size,
		OrderMargin:       0, // 平仓不需要额外保证金
		Leverage:          e.cfg.Leverage,
		TakeProfitRate:    e.cfg.TakeProfitRate,
		ClientOrderID:     e.newClientOrderID(),
	})
	if err != nil {
		e.logger.Errorf("平仓订单失败 (档位 %d @ $%.2f): %v", i, price, err)
		return
	}
	if result.Status != models.OrderFilled {
		e.logger.Warnf("平仓订单未成交 (档位 %d, 状态 %s), 档位状态保持不变", i, result.Status)
		return
	}

	lv.HasPosition = false
	lv.EntryPrice = 0
	lv.Size = 0
	e.totalProfit += profit
	e.exitCount++

	e.logger.Infof("平仓订单执行成功: 档位 %d @ $%.2f, 盈利 $%.4f, 累计盈利 $%.4f, 订单ID %s",
		i, price, profit, e.totalProfit, result.OrderID)

	e.appendTrade(&models.TradeRecord{
		Type:          typeName,
		GridLevel:     i,
		Price:         price,
		EntryPrice:    entryPrice,
		Size:          size,
		Profit:        profit,
		ProfitPercent: priceChange * 100,
		TotalProfit:   e.totalProfit,
		Leverage:      e.cfg.Leverage,
		OrderID:       result.OrderID,
	})
	e.persistState()
}

// realizedProfit 计算平仓盈利。订单金额为U本位 (名义价值), 因此
// 做多盈利 = size × (出场价 − 入场价) / 入场价, 做空取反。
func (e *Engine) realizedProfit(size, entryPrice, exitPrice float64) float64 {
	if e.dir == models.Short {
		return size * (entryPrice - exitPrice) / entryPrice
	}
	return size * (exitPrice - entryPrice) / entryPrice
}

// placeOrder 提交单个订单, 下单请求同样经过全局节流。
// 下单本身不重试: 被拒绝的订单留待下一轮条件仍满足时重新发起。
func (e *Engine) placeOrder(ctx context.Context, req *models.OrderRequest) (*models.OrderResult, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return e.ex.PlaceOrder(ctx, req)
}

// pauseBetweenOrders 在连续下单之间短暂停顿。
func (e *Engine) pauseBetweenOrders(ctx context.Context) {
	if e.pause <= 0 {
		return
	}
	timer := time.NewTimer(e.pause)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// appendTrade 补全公共字段后追加一条交易记录。日志写入失败只记录错误。
func (e *Engine) appendTrade(record *models.TradeRecord) {
	if e.trades == nil {
		return
	}
	now := time.Now()
	record.Timestamp = now.UTC()
	record.TimestampMs = now.UnixMilli()
	record.Symbol = e.cfg.Symbol
	record.MarketIndex = e.cfg.MarketIndex

	if err := e.trades.Append(record); err != nil {
		e.logger.Errorf("保存交易记录失败: %v", err)
	}
}

// persistState 将当前状态写入仓库。写入失败不致命, 引擎继续在内存中运行。
func (e *Engine) persistState() {
	if e.repo == nil {
		return
	}

	state := &models.EngineState{
		Timestamp:   time.Now().UTC(),
		Symbol:      e.cfg.Symbol,
		MarketIndex: e.cfg.MarketIndex,
		GridConfig:  e.fingerprint(),
		TotalProfit: e.totalProfit,
		EntryCount:  e.entryCount,
		ExitCount:   e.exitCount,
	}
	for _, lv := range e.levels {
		if lv.HasPosition {
			state.Levels = append(state.Levels, lv)
		}
	}

	if err := e.repo.SaveState(state); err != nil {
		e.logger.Errorf("保存状态失败: %v", err)
	}
}

// snapshot 导出当前状态的只读副本, 供 reporter 使用。
func (e *Engine) snapshot() *reporter.Snapshot {
	levels := make([]models.GridLevel, len(e.levels))
	copy(levels, e.levels)

	return &reporter.Snapshot{
		Name:              e.cfg.Name,
		Symbol:            e.cfg.Symbol,
		MarketIndex:       e.cfg.MarketIndex,
		Direction:         e.dir,
		GridLower:         e.cfg.GridLower,
		GridUpper:         e.cfg.GridUpper,
		GridNumber:        e.cfg.GridNumber,
		InvestmentPerGrid: e.cfg.InvestmentPerGrid,
		CurrentPrice:      e.currentPrice,
		TotalProfit:       e.totalProfit,
		EntryCount:        e.entryCount,
		ExitCount:         e.exitCount,
		Levels:            levels,
		NextCheck:         time.Now().Add(e.cfg.CheckInterval()),
	}
}
