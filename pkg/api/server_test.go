package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/nexusdex/pkg/abci"
	"github.com/uhyunpark/nexusdex/pkg/app/core/exchange"
	"github.com/uhyunpark/nexusdex/pkg/app/core/transaction"
	"github.com/uhyunpark/nexusdex/pkg/app/dex"
	"github.com/uhyunpark/nexusdex/pkg/crypto"
	"github.com/uhyunpark/nexusdex/pkg/storage"
	"github.com/uhyunpark/nexusdex/params"
)

const chainID = 1337

var (
	aliceKey = mustSeed("api/alice")
	bobKey   = mustSeed("api/bob")
)

func mustSeed(s string) *crypto.Signer {
	k, err := crypto.FromSeed([]byte(s))
	if err != nil {
		panic(err)
	}
	return k
}

func newTestApp(t *testing.T) *dex.App {
	t.Helper()
	return newTestAppWith(t, func(*dex.Config) {})
}

func newTestAppWith(t *testing.T, tweak func(*dex.Config)) *dex.App {
	t.Helper()
	cfg := dex.Config{
		ChainID:       chainID,
		MinimumPolicy: exchange.UnitPolicy,
		Genesis: params.Genesis{
			Tokens: []string{"NEX:2", "USD:0", "CAP:0:" + bobKey.Address().Hex() + ":500"},
			Balances: []string{
				"NEX:" + aliceKey.Address().Hex() + ":100",
				"USD:" + bobKey.Address().Hex() + ":5000",
			},
		},
	}
	tweak(&cfg)
	a, err := dex.New(cfg)
	require.NoError(t, err)
	return a
}

func signOrder(t *testing.T, k *crypto.Signer, nonce uint64, side exchange.Side, amount, price uint64) []byte {
	t.Helper()
	tx, err := transaction.Sign(crypto.NewEIP712Signer(crypto.DomainForChain(chainID)), k, &crypto.OrderEIP712{
		From: k.Address(), Base: "NEX", Quote: "USD", Side: uint8(side), Kind: uint8(exchange.Limit),
		TimeInForce: uint8(exchange.GoodTilFilled), Amount: uint256.NewInt(amount), Price: uint256.NewInt(price), Nonce: nonce,
	})
	require.NoError(t, err)
	raw, err := tx.Serialize()
	require.NoError(t, err)
	return raw
}

// commit runs everything pending in the mempool as the next block.
func commit(t *testing.T, a *dex.App) dex.BlockResult {
	t.Helper()
	prep := a.PrepareProposal(abci.RequestPrepareProposal{MaxTxBytes: 1 << 20})
	_, err := a.FinalizeBlock(abci.RequestFinalizeBlock{Height: a.Height() + 1, Timestamp: 1_700_000_000, Txs: prep.Txs})
	require.NoError(t, err)
	return a.LastBlock()
}

func do(t *testing.T, h http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthAndStatus(t *testing.T) {
	s := NewServer(newTestApp(t))
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)

	rec = do(t, h, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[ChainStatus](t, rec)
	assert.Equal(t, int64(0), st.Height)
	assert.True(t, strings.HasPrefix(st.AppHash, "0x"))

	rec = do(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "nexusdex_http_requests_total")
}

func TestSubmitAndQuery(t *testing.T) {
	app := newTestApp(t)
	logPath := filepath.Join(t.TempDir(), "txs.jsonl")
	journal, err := storage.NewJournalFile(logPath)
	require.NoError(t, err)
	defer journal.Close()

	h := NewServer(app, WithTxLog(journal)).Handler()

	raw := signOrder(t, aliceKey, 0, exchange.Sell, 150, 7)
	rec := do(t, h, http.MethodPost, "/api/v1/tx", raw)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	resp := decode[SubmitTxResponse](t, rec)
	assert.Equal(t, transaction.Hash(raw).Hex(), resp.Hash)

	rec = do(t, h, http.MethodPost, "/api/v1/tx", raw)
	assert.Equal(t, http.StatusConflict, rec.Code)

	require.NoError(t, do(t, h, http.MethodPost, "/api/v1/tx", signOrder(t, aliceKey, 1, exchange.Sell, 50, 7)).Result().Body.Close())
	require.NoError(t, do(t, h, http.MethodPost, "/api/v1/tx", signOrder(t, bobKey, 0, exchange.Buy, 10, 5)).Result().Body.Close())
	commit(t, app)

	logged, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(logged), "\n"))

	rec = do(t, h, http.MethodGet, "/api/v1/orders/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	o := decode[OrderInfo](t, rec)
	assert.Equal(t, "150", o.Amount)
	assert.Equal(t, "1.5", o.AmountDisplay)
	assert.Equal(t, "Sell", o.Side)
	assert.Equal(t, aliceKey.Address().Hex(), o.Creator)

	rec = do(t, h, http.MethodGet, "/api/v1/orders/42", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/v1/orders/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/book/NEX/USD", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[OrderbookSnapshot](t, rec)
	assert.Equal(t, []PriceLevel{{Price: "7", Size: "200", Orders: 2}}, snap.Asks)
	assert.Equal(t, []PriceLevel{{Price: "5", Size: "10", Orders: 1}}, snap.Bids)
	assert.Equal(t, int64(1), snap.Height)

	rec = do(t, h, http.MethodGet, "/api/v1/book/nex/usd?side=sell", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	asks := decode[[]OrderInfo](t, rec)
	require.Len(t, asks, 2)
	assert.Equal(t, []uint64{1, 2}, []uint64{asks[0].ID, asks[1].ID})

	rec = do(t, h, http.MethodGet, "/api/v1/book/NEX/USD?side=up", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/v1/book/NEX/ZZZ", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/pairs", nil)
	assert.Equal(t, []PairInfo{{Base: "NEX", Quote: "USD"}}, decode[[]PairInfo](t, rec))

	rec = do(t, h, http.MethodGet, "/api/v1/accounts/"+aliceKey.Address().Hex(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	acct := decode[AccountInfo](t, rec)
	assert.Equal(t, uint64(2), acct.Nonce)
	assert.Equal(t, Balance{Amount: "9800", Display: "98"}, acct.Balances["NEX"])

	rec = do(t, h, http.MethodGet, "/api/v1/blocks/latest", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	blk := decode[BlockInfo](t, rec)
	assert.Equal(t, int64(1), blk.Height)
	require.Len(t, blk.Txs, 3)
	for _, r := range blk.Txs {
		assert.Equal(t, dex.CodeOK, r.Code, r.Log)
	}
}

func TestSubmitRejections(t *testing.T) {
	h := NewServer(newTestApp(t)).Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/tx", []byte(`not json`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Signed by alice but claiming bob as sender.
	tx, err := transaction.Sign(crypto.NewEIP712Signer(crypto.DomainForChain(chainID)), aliceKey, &crypto.CancelEIP712{From: bobKey.Address(), OrderID: 1})
	require.NoError(t, err)
	raw, err := tx.Serialize()
	require.NoError(t, err)
	rec = do(t, h, http.MethodPost, "/api/v1/tx", raw)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decode[ErrorResponse](t, rec).Error)

	rec = do(t, h, http.MethodGet, "/api/v1/tx", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSubmitMempoolLimits(t *testing.T) {
	a := newTestAppWith(t, func(cfg *dex.Config) {
		cfg.MempoolLimit = 2
		cfg.MaxTxBytes = 4096
	})
	h := NewServer(a).Handler()

	for nonce := uint64(0); nonce < 2; nonce++ {
		rec := do(t, h, http.MethodPost, "/api/v1/tx", signOrder(t, aliceKey, nonce, exchange.Sell, 1, 10))
		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	}

	rec := do(t, h, http.MethodPost, "/api/v1/tx", signOrder(t, aliceKey, 2, exchange.Sell, 1, 10))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "service unavailable", decode[ErrorResponse](t, rec).Error)

	// A block drains the queue and submissions are accepted again.
	commit(t, a)
	rec = do(t, h, http.MethodPost, "/api/v1/tx", signOrder(t, aliceKey, 2, exchange.Sell, 1, 10))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	small := newTestAppWith(t, func(cfg *dex.Config) { cfg.MaxTxBytes = 64 })
	rec = do(t, NewServer(small).Handler(), http.MethodPost, "/api/v1/tx", signOrder(t, aliceKey, 0, exchange.Sell, 1, 10))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, small.Mempool().Len())
}

func TestTokensAndMinimum(t *testing.T) {
	h := NewServer(newTestApp(t)).Handler()

	rec := do(t, h, http.MethodGet, "/api/v1/tokens", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]TokenInfo](t, rec), 3)

	rec = do(t, h, http.MethodGet, "/api/v1/tokens/cap", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	capTok := decode[TokenInfo](t, rec)
	assert.Equal(t, "500", capTok.MaxSupply)
	assert.Equal(t, bobKey.Address().Hex(), capTok.Owner)
	assert.Contains(t, capTok.Flags, "Finite")
	assert.Equal(t, "0", capTok.Supply)

	rec = do(t, h, http.MethodGet, "/api/v1/tokens/NOPE", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/minimum/6", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, MinimumInfo{Decimals: 6, Minimum: "1"}, decode[MinimumInfo](t, rec))

	rec = do(t, h, http.MethodGet, "/api/v1/minimum/99", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/v1/accounts/nothex", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORS(t *testing.T) {
	h := NewServer(newTestApp(t), WithAllowedOrigins("https://dex.example")).Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tokens", nil)
	req.Header.Set("Origin", "https://dex.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://dex.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/tokens", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestLevels(t *testing.T) {
	mk := func(amount, price uint64) exchange.Order {
		return exchange.Order{Amount: *uint256.NewInt(amount), Price: *uint256.NewInt(price)}
	}
	got := levels([]exchange.Order{mk(1, 9), mk(2, 9), mk(5, 8), mk(1, 7), mk(1, 7)})
	assert.Equal(t, []PriceLevel{
		{Price: "9", Size: "3", Orders: 2},
		{Price: "8", Size: "5", Orders: 1},
		{Price: "7", Size: "2", Orders: 2},
	}, got)
	assert.Empty(t, levels(nil))
}

func TestWebSocketPush(t *testing.T) {
	app := newTestApp(t)
	s := NewServer(app)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Hub().Run(ctx)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	alice := aliceKey.Address()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?subscribe=book:NEX/USD&subscribe=events:" + strings.ToLower(alice.Hex())
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return s.Hub().HasSubscribers(bookChannel("NEX", "USD")) && s.Hub().HasSubscribers(eventsChannel(alice))
	}, 2*time.Second, 10*time.Millisecond)

	_, err = app.SubmitTx(signOrder(t, aliceKey, 0, exchange.Sell, 30, 4))
	require.NoError(t, err)
	s.PublishBlock(commit(t, app))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	kinds := map[string]int{}
	for i := 0; i < 3; i++ {
		var msg WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		kinds[msg.Type]++
		if msg.Type == "book" {
			assert.Equal(t, "book:NEX/USD", msg.Channel)
		}
	}
	// OrderCreated and the escrow TokenSend, then the book.
	assert.Equal(t, map[string]int{"event": 2, "book": 1}, kinds)
}
