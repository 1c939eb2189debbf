package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/amby/internal/crypto"
	"github.com/alanyoungcy/amby/internal/ledger"
	"github.com/alanyoungcy/amby/internal/server/handler"
	"github.com/alanyoungcy/amby/internal/server/middleware"
	"github.com/alanyoungcy/amby/internal/service"
	"github.com/alanyoungcy/amby/internal/store/leveldb"
)

const (
	testAPIKey  = "admin-key"
	testSecret  = "transfer-secret"
	testAsset   = "0x00000000000000000000000000000000000000aa"
	testCreator = "0x00000000000000000000000000000000000c0ffe"
	testPayer   = "0x00000000000000000000000000000000000a11ce"
	testStartMs = int64(1_700_000_000_000)
)

type fixture struct {
	router http.Handler
	auth   *crypto.TransferAuth
	sent   int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	kv, err := leveldb.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := time.UnixMilli(testStartMs)
	engine := ledger.NewEngine(kv, ledger.WithClock(func() time.Time { return now }), ledger.WithLogger(logger))

	auth := crypto.NewTransferAuth(testSecret, time.Minute)
	router := NewRouter(Config{
		APIKey:     testAPIKey,
		RateLimit:  1000,
		RateWindow: time.Second,
		Limiter:    middleware.NewLocalLimiter(),
	}, Handlers{
		Health:    handler.NewHealthHandler(nil, logger),
		Status:    handler.NewStatusHandler("server", testAsset, engine),
		Markets:   handler.NewMarketHandler(service.NewMarketService(engine, nil, logger), logger),
		Transfers: handler.NewTransferHandler(service.NewTransferService(engine, testAsset, logger), auth, logger),
	}, nil, logger)
	return &fixture{router: router, auth: auth}
}

func (f *fixture) do(t *testing.T, method, path string, body []byte, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func (f *fixture) createMarket(t *testing.T) {
	t.Helper()
	body, _ := json.Marshal(map[string]any{
		"creator":     testCreator,
		"title":       "Will it rain?",
		"description": "Resolves YES on rain.",
		"end_time":    testStartMs + 1_000_000,
	})
	rec, out := f.do(t, http.MethodPost, "/api/markets", body, map[string]string{"X-API-Key": testAPIKey})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.EqualValues(t, 1, out["id"])
}

func txHash(n int) string {
	return fmt.Sprintf("0x%064x", n)
}

// transferBody builds a notification for market 1. outcome is raw JSON.
func transferBody(tx, asset, amount, outcome string) []byte {
	return []byte(`{"tx_hash":"` + tx + `","payer":"` + testPayer + `","asset":"` + asset + `","amount":"` + amount +
		`","payload":{"market_id":1,"outcome":` + outcome + `}}`)
}

func (f *fixture) transfer(t *testing.T, asset, amount string, outcome int) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	f.sent++
	body := transferBody(txHash(f.sent), asset, amount, strconv.Itoa(outcome))
	return f.do(t, http.MethodPost, "/api/transfers", body, f.auth.Headers(body))
}

func TestCreateMarketRequiresAPIKey(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"creator":"` + testCreator + `","title":"t","end_time":1}`)

	rec, _ := f.do(t, http.MethodPost, "/api/markets", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/markets", body, map[string]string{"Authorization": "Bearer " + testAPIKey})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "end time in the past is an invalid window")
}

func TestStakeFlow(t *testing.T) {
	f := newFixture(t)
	f.createMarket(t)

	rec, receipt := f.transfer(t, testAsset, "100", 1)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, "3600", receipt["points"])
	assert.EqualValues(t, 36, receipt["leverage"])
	assert.Equal(t, "yes", receipt["outcome"])
	assert.Equal(t, txHash(1), receipt["transfer_id"])

	_, market := f.do(t, http.MethodGet, "/api/markets/1", nil, nil)
	assert.Equal(t, "100", market["pool_yes"])
	assert.Equal(t, "0", market["pool_no"])
	assert.Equal(t, "3600", market["total_yes_points"])
	assert.Equal(t, "open", market["status"])

	_, tvl := f.do(t, http.MethodGet, "/api/markets/1/tvl", nil, nil)
	assert.Equal(t, "100", tvl["value"])

	_, pts := f.do(t, http.MethodGet, "/api/markets/1/points?outcome=yes", nil, nil)
	assert.Equal(t, "3600", pts["value"])

	_, reward := f.do(t, http.MethodGet, "/api/markets/1/potential-reward?outcome=yes&amount=50", nil, nil)
	assert.Equal(t, "50", reward["value"])

	rec, _ = f.do(t, http.MethodGet, "/api/markets/1/potential-reward?outcome=no&amount=0", nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	_, pos := f.do(t, http.MethodGet, "/api/markets/1/positions/"+testPayer, nil, nil)
	assert.Equal(t, "3600", pos["yes_points"])
	assert.Equal(t, "0", pos["no_points"])
	assert.Equal(t, false, pos["claimed"])

	_, window := f.do(t, http.MethodGet, "/api/markets/1/window", nil, nil)
	assert.EqualValues(t, testStartMs, window["start_time"])
	assert.EqualValues(t, testStartMs+1_000_000, window["end_time"])

	_, list := f.do(t, http.MethodGet, "/api/markets?limit=10", nil, nil)
	assert.EqualValues(t, 1, list["total"])
	assert.Len(t, list["markets"], 1)

	_, count := f.do(t, http.MethodGet, "/api/markets/count", nil, nil)
	assert.EqualValues(t, 1, count["count"])
}

func TestTransferRejections(t *testing.T) {
	f := newFixture(t)
	f.createMarket(t)

	rec, _ := f.transfer(t, "0x00000000000000000000000000000000000000bb", "100", 1)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unsupported asset")

	rec, _ = f.transfer(t, testAsset, "100", 3)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "invalid outcome")

	rec, _ = f.transfer(t, testAsset, "0", 1)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "zero amount")

	body := []byte(`{"tx_hash":"` + txHash(99) + `","payer":"` + testPayer + `","asset":"` + testAsset + `","amount":"1","payload":{"market_id":9,"outcome":1}}`)
	rec, _ = f.do(t, http.MethodPost, "/api/transfers", body, f.auth.Headers(body))
	assert.Equal(t, http.StatusNotFound, rec.Code, "unknown market")

	rec, _ = f.do(t, http.MethodPost, "/api/transfers", body, map[string]string{
		crypto.HeaderTimestamp: strconv.FormatInt(time.Now().Unix(), 10),
		crypto.HeaderSignature: "bogus",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "bad signature")

	_, market := f.do(t, http.MethodGet, "/api/markets/1", nil, nil)
	assert.Equal(t, "0", market["pool_yes"], "rejected transfers leave no trace")
}

func TestTransferRedeliveryIsRejected(t *testing.T) {
	f := newFixture(t)
	f.createMarket(t)

	body := transferBody(txHash(7), testAsset, "100", "1")
	headers := f.auth.Headers(body)

	rec, _ := f.do(t, http.MethodPost, "/api/transfers", body, headers)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec, out := f.do(t, http.MethodPost, "/api/transfers", body, headers)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "duplicate transfer", out["error"])

	_, market := f.do(t, http.MethodGet, "/api/markets/1", nil, nil)
	assert.Equal(t, "100", market["pool_yes"])
	assert.Equal(t, "3600", market["total_yes_points"])
}

func TestTransferPayloadValidation(t *testing.T) {
	f := newFixture(t)
	f.createMarket(t)

	for _, outcome := range []string{"300", "-1", "0"} {
		body := transferBody(txHash(1), testAsset, "100", outcome)
		rec, out := f.do(t, http.MethodPost, "/api/transfers", body, f.auth.Headers(body))
		assert.Equal(t, http.StatusBadRequest, rec.Code, outcome)
		assert.Equal(t, "invalid outcome", out["error"], outcome)
	}

	for _, tx := range []string{"", "0x1234", txHash(0)} {
		body := transferBody(tx, testAsset, "100", "1")
		rec, out := f.do(t, http.MethodPost, "/api/transfers", body, f.auth.Headers(body))
		assert.Equal(t, http.StatusBadRequest, rec.Code, tx)
		assert.Equal(t, "invalid transfer id", out["error"], tx)
	}

	_, market := f.do(t, http.MethodGet, "/api/markets/1", nil, nil)
	assert.Equal(t, "0", market["pool_yes"])
}

func TestReadErrors(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodGet, "/api/markets/1", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/markets/abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/markets/1/points?outcome=maybe", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthStatusAndMetrics(t *testing.T) {
	f := newFixture(t)

	rec, health := f.do(t, http.MethodGet, "/api/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", health["status"])

	_, status := f.do(t, http.MethodGet, "/api/status", nil, nil)
	assert.Equal(t, "server", status["mode"])
	assert.Equal(t, testAsset, status["asset"])

	rec, _ = f.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRunStopsOnCancel(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := &Server{httpServer: &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}, logger: logger}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
