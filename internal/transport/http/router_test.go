package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smsrent/backend/internal/catalog"
	"smsrent/backend/internal/config"
	"smsrent/backend/internal/domain"
	"smsrent/backend/internal/health"
	"smsrent/backend/internal/monitoring"
	"smsrent/backend/internal/provider"
	"smsrent/backend/internal/provider/providertest"
	"smsrent/backend/internal/service"
	"smsrent/backend/internal/storage"
	"smsrent/backend/internal/storage/memory"
)

type testServer struct {
	router *gin.Engine
	fake   *providertest.Fake
	orders *storage.OrderStore
	clock  *clockwork.FakeClock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	fake := providertest.New()
	backend := memory.NewStore()
	orders := storage.NewOrderStore(backend, "", clk, nil)
	cat := catalog.Default()
	metrics := monitoring.NewRegistryMetrics()

	gw := provider.NewGateway(fake, orders, cat, provider.GatewayConfig{
		GlobalTerritories: []string{"US", "GB"},
		GlobalLimit:       20,
		MonthlyPrice:      catalog.DefaultPrice,
	}, clk, nil, metrics)
	t.Cleanup(gw.Close)

	polls := service.NewPollManager(gw, orders, service.PollerConfig{
		Interval:  3 * time.Second,
		ClockSkew: time.Minute,
		Policy:    service.StopOnFirstCode,
	}, clk, nil, nil, metrics)
	t.Cleanup(polls.StopAll)

	svc := service.NewOrderService(gw, orders, service.NewSyncEngine(gw, orders, cat, clk, nil, metrics), polls, clk, nil, metrics)

	cfg := &config.Config{}
	router := NewRouter(RouterDependencies{
		Config:  cfg,
		Orders:  svc,
		Health:  health.NewHealthChecker(backend, nil),
		Metrics: metrics,
	})
	return &testServer{router: router, fake: fake, orders: orders, clock: clk}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp Response
	if w.Header().Get("Content-Type") != "" && w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
	}
	return w, resp
}

func decodeData(t *testing.T, resp Response, out interface{}) {
	t.Helper()
	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, out))
}

func TestRouter_Catalog(t *testing.T) {
	s := newTestServer(t)

	w, resp := s.do(t, http.MethodGet, "/v1/catalog/countries", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var countries []domain.Country
	decodeData(t, resp, &countries)
	assert.Equal(t, domain.GlobalCountryID, countries[0].ID)

	w, resp = s.do(t, http.MethodGet, "/v1/catalog/services", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var services []domain.Service
	decodeData(t, resp, &services)
	assert.NotEmpty(t, services)
}

func TestRouter_SearchNumbers(t *testing.T) {
	s := newTestServer(t)
	s.fake.SetAvailable("US", provider.ClassMobile, provider.CandidateNumber{
		PhoneNumber:  "+15551234567",
		Capabilities: map[string]bool{"SMS": true},
	})
	s.fake.FailSearch("GB", provider.ClassMobile, domain.NewProviderError(domain.ErrRegulatory, 400, 21631, "Requires an Address"))
	s.fake.FailSearch("GB", provider.ClassLocal, domain.NewProviderError(domain.ErrRegulatory, 400, 21631, "Requires an Address"))

	t.Run("成功", func(t *testing.T) {
		w, resp := s.do(t, http.MethodGet, "/v1/numbers?country=1&service=wa", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var list numberListResponse
		decodeData(t, resp, &list)
		require.Equal(t, 1, list.Count)
		assert.Equal(t, catalog.DefaultPrice, list.Items[0].Price)
	})

	t.Run("需要地址的地区返回 422 和提示", func(t *testing.T) {
		w, resp := s.do(t, http.MethodGet, "/v1/numbers?country=44&service=wa", nil)
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
		var detail providerDetail
		decodeData(t, resp, &detail)
		assert.Equal(t, domain.RegulatoryHint, detail.Hint)
		assert.Equal(t, 21631, detail.ProviderCode)
	})

	t.Run("全球搜索跳过失败地区", func(t *testing.T) {
		w, resp := s.do(t, http.MethodGet, "/v1/numbers?country=0&service=wa", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var list numberListResponse
		decodeData(t, resp, &list)
		assert.Equal(t, 1, list.Count)
	})

	t.Run("参数错误", func(t *testing.T) {
		w, _ := s.do(t, http.MethodGet, "/v1/numbers?country=abc&service=wa", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		w, _ = s.do(t, http.MethodGet, "/v1/numbers?country=1", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		w, _ = s.do(t, http.MethodGet, "/v1/numbers?country=999&service=wa", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRouter_OrderLifecycle(t *testing.T) {
	s := newTestServer(t)

	w, resp := s.do(t, http.MethodPost, "/v1/orders", service.BuyOrderInput{
		PhoneNumber: "+15551234567", ServiceID: "wa", CountryID: 1,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created domain.OrderView
	decodeData(t, resp, &created)
	assert.Equal(t, domain.OrderStatusPending, created.Status)
	assert.Equal(t, "30d 0h 0m", created.TimeLeft)

	w, resp = s.do(t, http.MethodGet, "/v1/orders", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list orderListResponse
	decodeData(t, resp, &list)
	require.Equal(t, 1, list.Count)

	s.fake.Deliver("+15551234567", domain.Message{
		ID: "SM1", Body: "Your code is 482-910", Date: s.clock.Now().Add(time.Second), Sender: "WhatsApp",
	})
	w, resp = s.do(t, http.MethodPost, "/v1/orders/+15551234567/poll", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var polled domain.OrderView
	decodeData(t, resp, &polled)
	assert.Equal(t, "482910", polled.Code)
	assert.Equal(t, domain.OrderStatusCompleted, polled.Status)

	w, resp = s.do(t, http.MethodGet, "/v1/orders/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got domain.OrderView
	decodeData(t, resp, &got)
	assert.Len(t, got.Messages, 1)

	w, _ = s.do(t, http.MethodDelete, "/v1/orders/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodGet, "/v1/orders/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, http.MethodDelete, "/v1/orders/+15551234567", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "账户下已没有该号码")
}

func TestRouter_OrderErrors(t *testing.T) {
	s := newTestServer(t)

	t.Run("请求体无效", func(t *testing.T) {
		w, _ := s.do(t, http.MethodPost, "/v1/orders", map[string]string{"serviceId": "wa"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("鉴权失败返回 502", func(t *testing.T) {
		s.fake.PurchaseErr = domain.NewProviderError(domain.ErrAuth, 401, 20003, "Authenticate")
		defer func() { s.fake.PurchaseErr = nil }()

		w, resp := s.do(t, http.MethodPost, "/v1/orders", service.BuyOrderInput{
			PhoneNumber: "+15551234567", ServiceID: "wa", CountryID: 1,
		})
		assert.Equal(t, http.StatusBadGateway, w.Code)
		var detail providerDetail
		decodeData(t, resp, &detail)
		assert.Equal(t, "Authenticate", detail.Message)

		all, err := s.orders.List(context.Background())
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("释放失败保留订单", func(t *testing.T) {
		require.NoError(t, s.orders.Save(context.Background(),
			domain.NewOrder("PN1", "+15550000001", "wa", 1, domain.OrderStatusReady, s.clock.Now())))
		s.fake.ReleaseErr = domain.NewProviderError(domain.ErrTransient, 503, 0, "unavailable")
		defer func() { s.fake.ReleaseErr = nil }()

		w, _ := s.do(t, http.MethodDelete, "/v1/orders/PN1", nil)
		assert.Equal(t, http.StatusBadGateway, w.Code)

		_, err := s.orders.Get(context.Background(), "PN1")
		assert.NoError(t, err)
	})
}

func TestRouter_Sync(t *testing.T) {
	s := newTestServer(t)
	s.fake.AddOwned("PNB", "+447700900123")

	w, resp := s.do(t, http.MethodPost, "/v1/orders/sync", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var result syncResponse
	decodeData(t, resp, &result)
	assert.Equal(t, 1, result.Imported)
	require.Len(t, result.Items, 1)
	assert.Equal(t, domain.OrderStatusReady, result.Items[0].Status)
	assert.Equal(t, 44, result.Items[0].CountryID)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/health", "/health/live", "/health/ready", "/metrics"} {
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}
