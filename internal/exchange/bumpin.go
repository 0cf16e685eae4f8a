package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bumpin-grid-bot-go/internal/models"

	"go.uber.org/zap"
)

const DefaultBaseURL = "https://api.bumpin.trade/bapi"

// BumpinExchange 实现了 Exchange 接口, 用于与 Bumpin 交易所进行交互。
type BumpinExchange struct {
	apiKey     string
	secretKey  string
	baseURL    string
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// NewBumpinExchange 创建一个新的 BumpinExchange 实例。
func NewBumpinExchange(apiKey, secretKey, baseURL string, logger *zap.SugaredLogger) *BumpinExchange {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &BumpinExchange{
		apiKey:     apiKey,
		secretKey:  secretKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// sign 生成请求签名: HMAC-SHA256(requestURI + queryString + requestBody + userTime), Base64 编码。
func (e *BumpinExchange) sign(requestURI, queryString, requestBody, userTime string) string {
	mac := hmac.New(sha256.New, []byte(e.secretKey))
	mac.Write([]byte(requestURI + queryString + requestBody + userTime))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// envelope 是 Bumpin API 的统一响应外层。
type envelope struct {
	Code    int             `json:"code"`
	Success bool            `json:"success"`
	Msg     string          `json:"msg"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (v *envelope) ok() bool {
	return v.Code == 200 || v.Code == 0 || v.Success
}

func (v *envelope) errMsg() string {
	if v.Message != "" {
		return v.Message
	}
	return v.Msg
}

// doRequest 是通用的请求处理函数, 负责签名、发送请求并解析响应外层。
// 返回外层中的 data 字段; 业务失败时返回 *models.APIError。
func (e *BumpinExchange) doRequest(ctx context.Context, method, endpoint string, body any, query url.Values) (json.RawMessage, error) {
	fullURL := e.baseURL + endpoint
	queryString := ""
	if len(query) > 0 {
		queryString = "?" + query.Encode()
		fullURL += queryString
	}

	var requestBody []byte
	if body != nil {
		var err error
		requestBody, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("序列化请求体失败: %w", err)
		}
	}

	userTime := strconv.FormatInt(time.Now().Unix(), 10)
	// POST 请求对完整路径签名, GET 请求对端点签名 (与官方 SDK 保持一致)。
	signaturePath := endpoint
	if method == http.MethodPost {
		u, err := url.Parse(fullURL)
		if err != nil {
			return nil, err
		}
		signaturePath = u.Path + queryString
	}
	signature := e.sign(signaturePath, queryString, string(requestBody), userTime)

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bytes.NewReader(requestBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-USER-KEY", e.apiKey)
	req.Header.Set("X-USER-SIGN-KEY", signature)
	req.Header.Set("X-USER-TIMESTAMP-KEY", userTime)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("网络请求错误: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &models.APIError{Code: 429, Msg: "too many requests"}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API请求失败 (%d): %s", resp.StatusCode, truncate(respBody, 200))
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("服务器返回非JSON响应: %s", truncate(respBody, 200))
	}
	if !env.ok() {
		return nil, &models.APIError{Code: env.Code, Msg: env.errMsg()}
	}
	return env.Data, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// GetPrice 获取指定交易对的最新价格。
func (e *BumpinExchange) GetPrice(ctx context.Context, symbol string) (float64, error) {
	query := url.Values{}
	query.Set("symbol", symbol)

	data, err := e.doRequest(ctx, http.MethodGet, "/price/get-price", nil, query)
	if err != nil {
		return 0, err
	}

	var payload struct {
		Price json.Number `json:"price"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return 0, fmt.Errorf("解析价格信息失败: %w", err)
	}
	price, err := payload.Price.Float64()
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("无法获取有效价格数据: %q", payload.Price)
	}
	return price, nil
}

// GetAccountInfo 获取账户余额信息。
func (e *BumpinExchange) GetAccountInfo(ctx context.Context) (*models.AccountInfo, error) {
	data, err := e.doRequest(ctx, http.MethodGet, "/user/account", nil, nil)
	if err != nil {
		return nil, err
	}
	info := &models.AccountInfo{}
	if err := json.Unmarshal(data, info); err != nil {
		return nil, fmt.Errorf("解析账户信息失败: %w", err)
	}
	return info, nil
}

// GetPositions 获取当前持仓, 只返回指定市场的仓位。
func (e *BumpinExchange) GetPositions(ctx context.Context, marketIndex int) ([]models.Position, error) {
	data, err := e.doRequest(ctx, http.MethodGet, "/user/currency-position", nil, nil)
	if err != nil {
		return nil, err
	}
	var all []models.Position
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("解析持仓信息失败: %w", err)
	}
	positions := make([]models.Position, 0, len(all))
	for _, p := range all {
		if p.MarketIndex == marketIndex {
			positions = append(positions, p)
		}
	}
	return positions, nil
}

// GetOpenOrders 获取当前挂单, 只返回指定市场的订单。
func (e *BumpinExchange) GetOpenOrders(ctx context.Context, marketIndex int) ([]models.Order, error) {
	data, err := e.doRequest(ctx, http.MethodGet, "/user/currency-order", nil, nil)
	if err != nil {
		return nil, err
	}
	var all []models.Order
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("解析挂单信息失败: %w", err)
	}
	orders := make([]models.Order, 0, len(all))
	for _, o := range all {
		if o.MarketIndex == marketIndex {
			orders = append(orders, o)
		}
	}
	return orders, nil
}

// PlaceOrder 提交订单并返回交易所的确认结果。
func (e *BumpinExchange) PlaceOrder(ctx context.Context, req *models.OrderRequest) (*models.OrderResult, error) {
	data, err := e.doRequest(ctx, http.MethodPost, "/user/place-order", req, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		OrderID json.Number `json:"orderId"`
		Status  string      `json:"status"`
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			e.logger.Warnf("解析下单响应失败 (订单已接受): %v", err)
		}
	}

	result := &models.OrderResult{OrderID: payload.OrderID.String()}
	switch strings.ToUpper(payload.Status) {
	case "PENDING", "NEW", "OPEN":
		result.Status = models.OrderPending
	case "REJECTED":
		result.Status = models.OrderRejected
	default:
		// 业务层返回成功且无明确状态时, 视为已成交 (市价单)。
		result.Status = models.OrderFilled
	}
	return result, nil
}
