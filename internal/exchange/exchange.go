package exchange

import (
	"context"

	"bumpin-grid-bot-go/internal/models"
)

// Exchange 定义了网格引擎需要的全部交易所能力。
// 签名和传输完全由实现负责, 引擎只关心成功/失败和数值结果。
type Exchange interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
	GetAccountInfo(ctx context.Context) (*models.AccountInfo, error)
	GetPositions(ctx context.Context, marketIndex int) ([]models.Position, error)
	GetOpenOrders(ctx context.Context, marketIndex int) ([]models.Order, error)
	PlaceOrder(ctx context.Context, req *models.OrderRequest) (*models.OrderResult, error)
}
