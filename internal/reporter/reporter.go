package reporter

import (
	"fmt"
	"strings"
	"time"

	"bumpin-grid-bot-go/internal/models"

	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/zap"
)

// Snapshot 是引擎在每轮检查结束时导出的只读状态摘要, 仅用于展示。
type Snapshot struct {
	Name              string
	Symbol            string
	MarketIndex       int
	Direction         models.Direction
	GridLower         float64
	GridUpper         float64
	GridNumber        int
	InvestmentPerGrid float64
	CurrentPrice      float64
	TotalProfit       float64
	EntryCount        int
	ExitCount         int
	Levels            []models.GridLevel
	NextCheck         time.Time
}

func (s *Snapshot) activePositions() (count int, invested float64) {
	for _, lv := range s.Levels {
		if lv.HasPosition {
			count++
			invested += lv.Size
		}
	}
	return count, invested
}

// LogStatus 打印一行网格状态摘要和紧凑的档位占用图。
// 纯观察性输出, 不影响任何行为。
func LogStatus(s *Snapshot, lg *zap.SugaredLogger) {
	active, invested := s.activePositions()

	lg.Infof("[%s] 范围: $%.0f-$%.0f | 价格: $%.2f | 持仓: %d/%d | 已投资: $%.2f | 累计盈利: $%.4f",
		s.Symbol, s.GridLower, s.GridUpper, s.CurrentPrice, active, len(s.Levels), invested, s.TotalProfit)

	// 紧凑格式显示所有档位 (每行5个)
	const gridsPerLine = 5
	var line strings.Builder
	for i, lv := range s.Levels {
		mark := "○"
		if lv.HasPosition {
			mark = "●"
		}
		fmt.Fprintf(&line, "%s%3d:$%-8.0f ", mark, lv.Index, lv.Price)
		if (i+1)%gridsPerLine == 0 || i == len(s.Levels)-1 {
			lg.Infof("   %s", line.String())
			line.Reset()
		}
	}

	if !s.NextCheck.IsZero() {
		lg.Debugf("下次检查: %s", s.NextCheck.Format("15:04:05"))
	}
}

// FinalReport 在引擎停止时打印最终报告, 包含每个档位的明细表。
func FinalReport(s *Snapshot, lg *zap.SugaredLogger) {
	active, invested := s.activePositions()

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"等级", "价格", "持仓", "入场价", "金额"})
	for _, lv := range s.Levels {
		held := ""
		entry := ""
		size := ""
		if lv.HasPosition {
			held = "●"
			entry = fmt.Sprintf("%.2f", lv.EntryPrice)
			size = fmt.Sprintf("%.2f", lv.Size)
		}
		t.AppendRow(table.Row{lv.Index, fmt.Sprintf("%.2f", lv.Price), held, entry, size})
	}
	t.AppendFooter(table.Row{"", "", "", "累计盈利", fmt.Sprintf("$%.4f", s.TotalProfit)})

	lg.Infof("========== 网格交易最终报告 [%s] ==========", s.Symbol)
	lg.Infof("交易对: %s (市场索引 %d, %s)", s.Symbol, s.MarketIndex, s.Direction)
	lg.Infof("网格范围: $%.2f - $%.2f, 共 %d 格, 每格 $%.2f", s.GridLower, s.GridUpper, s.GridNumber, s.InvestmentPerGrid)
	lg.Infof("开仓次数: %d, 平仓次数: %d, 当前持仓: %d (投资 $%.2f)", s.EntryCount, s.ExitCount, active, invested)
	for _, row := range strings.Split(t.Render(), "\n") {
		lg.Info(row)
	}
}
