package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"bumpin-grid-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestExchange(serverURL string) *BumpinExchange {
	return NewBumpinExchange("test-key", "test-secret", serverURL, zap.NewNop().Sugar())
}

func TestGetPriceParsesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/price/get-price", r.URL.Path)
		assert.Equal(t, "BTCUSD", r.URL.Query().Get("symbol"))
		assert.Equal(t, "test-key", r.Header.Get("X-USER-KEY"))
		assert.NotEmpty(t, r.Header.Get("X-USER-SIGN-KEY"))
		assert.NotEmpty(t, r.Header.Get("X-USER-TIMESTAMP-KEY"))
		io.WriteString(w, `{"code":200,"success":true,"data":{"price":"63521.5"}}`)
	}))
	defer srv.Close()

	price, err := newTestExchange(srv.URL).GetPrice(context.Background(), "BTCUSD")
	require.NoError(t, err)
	assert.Equal(t, 63521.5, price)
}

func TestGetPriceRejectsNonPositive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"code":200,"data":{"price":"0"}}`)
	}))
	defer srv.Close()

	_, err := newTestExchange(srv.URL).GetPrice(context.Background(), "BTCUSD")
	assert.Error(t, err)
}

func TestBusinessErrorBecomesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"code":4001,"success":false,"message":"insufficient margin"}`)
	}))
	defer srv.Close()

	_, err := newTestExchange(srv.URL).GetAccountInfo(context.Background())
	require.Error(t, err)

	apiErr, ok := err.(*models.APIError)
	require.True(t, ok, "business failures must surface as *models.APIError")
	assert.Equal(t, 4001, apiErr.Code)
	assert.Equal(t, "insufficient margin", apiErr.Msg)
	assert.False(t, apiErr.IsRateLimited())
}

func TestHTTP429MapsToRateLimitError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestExchange(srv.URL).GetPrice(context.Background(), "BTCUSD")
	require.Error(t, err)

	apiErr, ok := err.(*models.APIError)
	require.True(t, ok)
	assert.True(t, apiErr.IsRateLimited())
}

func TestPostSignatureCoversPathBodyAndTime(t *testing.T) {
	var gotSign, gotTime string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSign = r.Header.Get("X-USER-SIGN-KEY")
		gotTime = r.Header.Get("X-USER-TIMESTAMP-KEY")
		gotBody, _ = io.ReadAll(r.Body)
		io.WriteString(w, `{"code":200,"data":{"orderId":"42"}}`)
	}))
	defer srv.Close()

	ex := newTestExchange(srv.URL)
	_, err := ex.PlaceOrder(context.Background(), &models.OrderRequest{
		MarketIndex: 3,
		OrderSide:   models.SideLong,
		Size:        10,
	})
	require.NoError(t, err)

	// Recompute the signature the way the server side would.
	mac := hmac.New(sha256.New, []byte("test-secret"))
	mac.Write([]byte("/user/place-order" + "" + string(gotBody) + gotTime))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	assert.Equal(t, want, gotSign)
}

func TestPlaceOrderStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		body string
		want models.OrderStatus
	}{
		{"explicit pending", `{"code":200,"data":{"orderId":1,"status":"PENDING"}}`, models.OrderPending},
		{"new counts as pending", `{"code":200,"data":{"orderId":2,"status":"NEW"}}`, models.OrderPending},
		{"rejected", `{"code":200,"data":{"orderId":3,"status":"REJECTED"}}`, models.OrderRejected},
		{"filled", `{"code":200,"data":{"orderId":4,"status":"FILLED"}}`, models.OrderFilled},
		{"no status defaults to filled", `{"code":200,"data":{"orderId":5}}`, models.OrderFilled},
		{"empty data defaults to filled", `{"code":200,"success":true}`, models.OrderFilled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			result, err := newTestExchange(srv.URL).PlaceOrder(context.Background(), &models.OrderRequest{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Status)
		})
	}
}

func TestGetPositionsFiltersByMarket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"code":200,"data":[
			{"marketIndex":0,"symbol":"BTCUSD","positionSize":"10"},
			{"marketIndex":1,"symbol":"ETHUSD","positionSize":"20"},
			{"marketIndex":0,"symbol":"BTCUSD","positionSize":"30"}
		]}`)
	}))
	defer srv.Close()

	positions, err := newTestExchange(srv.URL).GetPositions(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, positions, 2)
	for _, p := range positions {
		assert.Equal(t, 0, p.MarketIndex)
	}
}
