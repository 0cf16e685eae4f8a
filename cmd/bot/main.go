package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"bumpin-grid-bot-go/internal/config"
	"bumpin-grid-bot-go/internal/engine"
	"bumpin-grid-bot-go/internal/exchange"
	"bumpin-grid-bot-go/internal/ledger"
	"bumpin-grid-bot-go/internal/logger"
	"bumpin-grid-bot-go/internal/models"
	"bumpin-grid-bot-go/internal/persistence"
	"bumpin-grid-bot-go/internal/ratelimit"

	"github.com/joho/godotenv"
)

// 连续启动多个策略时的错峰间隔, 避免所有引擎同时请求行情。
const startStagger = 2 * time.Second

// runner 把一个策略引擎和它持有的资源捆绑在一起, 便于统一关闭。
type runner struct {
	name   string
	engine *engine.Engine
	ex     exchange.Exchange
	repo   persistence.StateRepository
}

// logBalance 启动前查询一次账户余额, 仅用于日志确认凭证有效。失败不致命。
func (r *runner) logBalance(ctx context.Context) {
	info, err := r.ex.GetAccountInfo(ctx)
	if err != nil {
		logger.S().Warnf("查询账户信息失败 (%s): %v", r.name, err)
		return
	}
	logger.S().Infof("[%s] 账户可用余额: %s, 总余额: %s", r.name, info.AvailableBalance, info.TotalBalance)
}

func main() {
	configPath := flag.String("config", "config.json", "path to the config file")
	flag.Parse()

	// 提前用默认配置初始化日志, 以便加载 .env 和配置文件时就能记录。
	logger.Init(models.LogConfig{Level: "info", Output: "console"})

	if err := godotenv.Load(); err != nil {
		logger.S().Info("未找到 .env 文件，将从系统环境变量中读取。")
	} else {
		logger.S().Info("成功从 .env 文件加载配置。")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.S().Fatalf("无法加载配置文件: %v", err)
	}

	// 使用文件中的配置重新初始化日志
	logger.Init(cfg.Log)
	defer logger.S().Sync()

	cfg.ApplyEnvCredentials()

	// 所有引擎共享同一个限流器, 保证对交易所的总请求频率受控。
	limiter := ratelimit.New(time.Duration(cfg.RateLimitIntervalMs) * time.Millisecond)

	runners, err := buildRunners(cfg, limiter)
	if err != nil {
		logger.S().Fatalf("初始化策略失败: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i, r := range runners {
		if i > 0 {
			time.Sleep(startStagger)
		}
		r.logBalance(ctx)
		if err := r.engine.Start(ctx); err != nil {
			logger.S().Fatalf("启动策略 %s 失败: %v", r.name, err)
		}
		logger.S().Infof("策略 %s 已启动", r.name)
	}

	// 等待退出信号, 按启动顺序优雅停止所有引擎。
	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigC
	logger.S().Infof("收到信号 %v, 正在停止所有策略...", sig)

	for _, r := range runners {
		r.engine.Stop()
		if r.repo != nil {
			if err := r.repo.Close(); err != nil {
				logger.S().Errorf("关闭状态仓库失败 (%s): %v", r.name, err)
			}
		}
	}
	logger.S().Info("所有策略已停止, 进程退出。")
}

// buildRunners 按名称排序实例化配置中的所有策略。
// 任何一个策略配置错误都立即终止, 绝不带着残缺的配置继续运行。
func buildRunners(cfg *config.AppConfig, limiter *ratelimit.Limiter) ([]*runner, error) {
	names := make([]string, 0, len(cfg.Strategies))
	for name := range cfg.Strategies {
		names = append(names, name)
	}
	sort.Strings(names)

	runners := make([]*runner, 0, len(names))
	for _, name := range names {
		sc := cfg.Strategies[name]
		if sc.Name == "" {
			sc.Name = name
		}

		r, err := buildRunner(name, sc, limiter)
		if err != nil {
			return nil, err
		}
		runners = append(runners, r)
	}
	return runners, nil
}

func buildRunner(name string, sc *models.Config, limiter *ratelimit.Limiter) (*runner, error) {
	lg := logger.S().Named(name)

	baseURL := sc.BaseURL
	if baseURL == "" {
		baseURL = exchange.DefaultBaseURL
	}
	ex := exchange.NewBumpinExchange(sc.APIKey, sc.SecretKey, baseURL, lg)

	// DBPath 配置后使用 BadgerDB, 否则用 JSON 状态文件。
	var (
		repo persistence.StateRepository
		err  error
	)
	if sc.DBPath != "" {
		repo, err = persistence.NewBadgerRepository(sc.DBPath, sc.Symbol, sc.MarketIndex)
	} else {
		repo, err = persistence.NewFileRepository(sc.StateDir, sc.Symbol, sc.MarketIndex)
	}
	if err != nil {
		return nil, err
	}

	trades, err := ledger.New(sc.StateDir, sc.Symbol, sc.MarketIndex)
	if err != nil {
		repo.Close()
		return nil, err
	}

	eng, err := engine.New(sc, ex, limiter, repo, trades, lg)
	if err != nil {
		repo.Close()
		return nil, err
	}

	return &runner{name: name, engine: eng, ex: ex, repo: repo}, nil
}
