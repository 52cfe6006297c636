package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/nexusdex/pkg/app/core/exchange"
	"github.com/uhyunpark/nexusdex/pkg/app/core/mempool"
	"github.com/uhyunpark/nexusdex/pkg/app/core/token"
	"github.com/uhyunpark/nexusdex/pkg/app/core/transaction"
	"github.com/uhyunpark/nexusdex/pkg/app/dex"
	"github.com/uhyunpark/nexusdex/pkg/chain"
	"github.com/uhyunpark/nexusdex/pkg/storage"
	"github.com/uhyunpark/nexusdex/pkg/telemetry"
)

const maxTxBody = 1 << 20

// Backend is the application surface the server reads and submits to.
// *dex.App implements it.
type Backend interface {
	Height() int64
	AppHash() chain.Hash
	LastBlock() dex.BlockResult
	GetOrder(id uint64) (exchange.Order, error)
	GetOrderBook(base, quote string, side exchange.Side) []exchange.Order
	Pairs() []exchange.Pair
	GetMinimumSymbolQuantity(decimals uint8) uint256.Int
	Tokens() []token.Info
	Token(symbol string) (token.Info, bool)
	Account(addr common.Address) dex.Account
	Supply(symbol string) uint256.Int
	SubmitTx(raw []byte) (common.Hash, error)
	Mempool() *mempool.Mempool
}

var _ Backend = (*dex.App)(nil)

// Server handles REST API and WebSocket connections
type Server struct {
	app     Backend
	router  *mux.Router
	hub     *Hub
	txLog   *storage.JournalFile
	logger  *zap.Logger
	origins []string

	// pairs whose book was last pushed, so an emptied book is pushed once more
	pushed map[exchange.Pair]struct{}
}

type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithTxLog records every accepted submission as a JSON line.
func WithTxLog(j *storage.JournalFile) Option {
	return func(s *Server) { s.txLog = j }
}

func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

func NewServer(app Backend, opts ...Option) *Server {
	s := &Server{
		app:     app,
		router:  mux.NewRouter(),
		logger:  zap.NewNop(),
		origins: []string{"http://localhost:3000", "http://localhost:3001"},
		pushed:  make(map[exchange.Pair]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = NewHub(s.logger.Named("ws"))
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(metricsMiddleware)

	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/pairs", s.handleGetPairs).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods(http.MethodGet)
	api.HandleFunc("/book/{base}/{quote}", s.handleGetBook).Methods(http.MethodGet)
	api.HandleFunc("/minimum/{decimals}", s.handleGetMinimum).Methods(http.MethodGet)
	api.HandleFunc("/tokens", s.handleGetTokens).Methods(http.MethodGet)
	api.HandleFunc("/tokens/{symbol}", s.handleGetToken).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{address}", s.handleGetAccount).Methods(http.MethodGet)
	api.HandleFunc("/blocks/latest", s.handleGetLatestBlock).Methods(http.MethodGet)
	api.HandleFunc("/tx", s.handleSubmitTx).Methods(http.MethodPost)

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
}

// Handler is the router wrapped in CORS.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

func (s *Server) Hub() *Hub { return s.hub }

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api_listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok", "height": s.app.Height()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ChainStatus{
		Height:      s.app.Height(),
		AppHash:     s.app.AppHash().Hex(),
		MempoolSize: s.app.Mempool().Len(),
		Pairs:       len(s.app.Pairs()),
	})
}

func (s *Server) handleGetPairs(w http.ResponseWriter, r *http.Request) {
	pairs := s.app.Pairs()
	out := make([]PairInfo, len(pairs))
	for i, p := range pairs {
		out[i] = PairInfo{Base: p.Base, Quote: p.Quote}
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", err.Error())
		return
	}
	o, err := s.app.GetOrder(id)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.orderInfo(o))
}

// handleGetBook returns the resting orders of one side when ?side= is set
// and aggregated price levels for both sides otherwise.
func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	base, quote := strings.ToUpper(vars["base"]), strings.ToUpper(vars["quote"])
	for _, sym := range []string{base, quote} {
		if _, ok := s.app.Token(sym); !ok {
			respondError(w, http.StatusNotFound, "unknown token", sym)
			return
		}
	}

	if raw := r.URL.Query().Get("side"); raw != "" {
		side, err := exchange.ParseSide(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid side", err.Error())
			return
		}
		orders := s.app.GetOrderBook(base, quote, side)
		out := make([]OrderInfo, len(orders))
		for i, o := range orders {
			out[i] = s.orderInfo(o)
		}
		respondJSON(w, http.StatusOK, out)
		return
	}

	respondJSON(w, http.StatusOK, s.snapshot(base, quote))
}

func (s *Server) handleGetMinimum(w http.ResponseWriter, r *http.Request) {
	dec, err := strconv.ParseUint(mux.Vars(r)["decimals"], 10, 8)
	if err != nil || dec > token.MaxDecimals {
		respondError(w, http.StatusBadRequest, "invalid decimals", mux.Vars(r)["decimals"])
		return
	}
	min := s.app.GetMinimumSymbolQuantity(uint8(dec))
	respondJSON(w, http.StatusOK, MinimumInfo{Decimals: uint8(dec), Minimum: min.Dec()})
}

func (s *Server) handleGetTokens(w http.ResponseWriter, r *http.Request) {
	toks := s.app.Tokens()
	out := make([]TokenInfo, len(toks))
	for i, t := range toks {
		out[i] = s.tokenInfo(t)
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])
	t, ok := s.app.Token(symbol)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown token", symbol)
		return
	}
	respondJSON(w, http.StatusOK, s.tokenInfo(t))
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["address"]
	if !common.IsHexAddress(raw) {
		respondError(w, http.StatusBadRequest, "invalid address", raw)
		return
	}
	acct := s.app.Account(common.HexToAddress(raw))

	balances := make(map[string]Balance, len(acct.Balances))
	for symbol, v := range acct.Balances {
		var dec uint8
		if t, ok := s.app.Token(symbol); ok {
			dec = t.Decimals
		}
		balances[symbol] = Balance{Amount: v.Dec(), Display: token.FromMinimal(&v, dec).String()}
	}
	respondJSON(w, http.StatusOK, AccountInfo{Address: acct.Address.Hex(), Nonce: acct.Nonce, Balances: balances})
}

func (s *Server) handleGetLatestBlock(w http.ResponseWriter, r *http.Request) {
	b := s.app.LastBlock()
	txs := b.Txs
	if txs == nil {
		txs = []dex.TxReceipt{}
	}
	respondJSON(w, http.StatusOK, BlockInfo{Height: b.Height, Time: b.Time, AppHash: b.AppHash.Hex(), Txs: txs})
}

// handleSubmitTx accepts a signed transaction for the next block. The
// result is only known once the block commits.
func (s *Server) handleSubmitTx(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTxBody))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "failed to read body", err.Error())
		return
	}

	hash, err := s.app.SubmitTx(body)
	if err != nil {
		s.logger.Debug("tx_rejected", zap.Error(err))
		respondAppError(w, err)
		return
	}

	if s.txLog != nil {
		entry := map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
			"hash":      hash.Hex(),
			"tx":        json.RawMessage(body),
		}
		if err := s.txLog.Append(entry); err != nil {
			s.logger.Warn("tx_log_failed", zap.Error(err))
		}
	}
	respondJSON(w, http.StatusAccepted, SubmitTxResponse{Status: "accepted", Hash: hash.Hex()})
}

// ==============================
// Broadcast Methods (called after each block)
// ==============================

// PublishBlock pushes the committed events to address channels and fresh
// book snapshots to book channels.
func (s *Server) PublishBlock(b dex.BlockResult) {
	for _, r := range b.Txs {
		for _, ev := range r.Events {
			ch := eventsChannel(ev.Address)
			if !s.hub.HasSubscribers(ch) {
				continue
			}
			s.hub.BroadcastToChannel(ch, "event", EventUpdate{Height: b.Height, TxHash: r.Hash.Hex(), Event: ev})
		}
	}
	if len(b.Txs) == 0 {
		return
	}

	current := make(map[exchange.Pair]struct{})
	for _, p := range s.app.Pairs() {
		current[p] = struct{}{}
	}
	for p := range s.pushed {
		current[p] = struct{}{}
	}
	s.pushed = make(map[exchange.Pair]struct{})
	for p := range current {
		ch := bookChannel(p.Base, p.Quote)
		if !s.hub.HasSubscribers(ch) {
			continue
		}
		snap := s.snapshot(p.Base, p.Quote)
		if len(snap.Bids) > 0 || len(snap.Asks) > 0 {
			s.pushed[p] = struct{}{}
		}
		s.hub.BroadcastToChannel(ch, "book", snap)
	}
}

// ==============================
// Helper Functions
// ==============================

func (s *Server) snapshot(base, quote string) OrderbookSnapshot {
	return OrderbookSnapshot{
		Base:   base,
		Quote:  quote,
		Bids:   levels(s.app.GetOrderBook(base, quote, exchange.Buy)),
		Asks:   levels(s.app.GetOrderBook(base, quote, exchange.Sell)),
		Height: s.app.Height(),
	}
}

// levels folds orders, already in matching order, into price levels.
func levels(orders []exchange.Order) []PriceLevel {
	out := []PriceLevel{}
	var (
		price uint256.Int
		size  uint256.Int
		n     int
	)
	flush := func() {
		if n > 0 {
			out = append(out, PriceLevel{Price: price.Dec(), Size: size.Dec(), Orders: n})
		}
	}
	for i := range orders {
		o := &orders[i]
		if n > 0 && o.Price.Eq(&price) {
			size.Add(&size, &o.Amount)
			n++
			continue
		}
		flush()
		price, size, n = o.Price, o.Amount, 1
	}
	flush()
	return out
}

func (s *Server) orderInfo(o exchange.Order) OrderInfo {
	var dec uint8
	if t, ok := s.app.Token(o.Base); ok {
		dec = t.Decimals
	}
	return OrderInfo{
		ID:            o.ID,
		Creator:       o.Creator.Hex(),
		Base:          o.Base,
		Quote:         o.Quote,
		Side:          o.Side.String(),
		Kind:          o.Kind.String(),
		TimeInForce:   o.TimeInForce.String(),
		Amount:        o.Amount.Dec(),
		AmountDisplay: token.FromMinimal(&o.Amount, dec).String(),
		Price:         o.Price.Dec(),
	}
}

func (s *Server) tokenInfo(t token.Info) TokenInfo {
	supply := s.app.Supply(t.Symbol)
	min := s.app.GetMinimumSymbolQuantity(t.Decimals)
	info := TokenInfo{
		Symbol:   t.Symbol,
		Name:     t.Name,
		Decimals: t.Decimals,
		Flags:    t.Flags.String(),
		Supply:   supply.Dec(),
		Minimum:  min.Dec(),
	}
	if t.Owner != (common.Address{}) {
		info.Owner = t.Owner.Hex()
	}
	if t.MaxSupply != nil {
		info.MaxSupply = t.MaxSupply.Dec()
	}
	return info
}

// statusFor maps application errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, exchange.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, transaction.ErrBadSignature):
		return http.StatusForbidden
	case errors.Is(err, mempool.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, mempool.ErrFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, transaction.ErrMalformed), errors.Is(err, mempool.ErrUnclassified),
		errors.Is(err, mempool.ErrTooLarge):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondAppError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	respondError(w, status, strings.ToLower(http.StatusText(status)), err.Error())
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	respondJSON(w, status, ErrorResponse{Error: error, Message: message})
}

// ==============================
// Metrics
// ==============================

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// metricsMiddleware records request counts and latency by route template.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cr := mux.CurrentRoute(r); cr != nil {
			if tpl, err := cr.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		telemetry.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
