package dex

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/nexusdex/pkg/app/core/exchange"
	"github.com/uhyunpark/nexusdex/pkg/app/core/ledger"
	"github.com/uhyunpark/nexusdex/pkg/app/core/mempool"
	"github.com/uhyunpark/nexusdex/pkg/app/core/token"
	"github.com/uhyunpark/nexusdex/pkg/app/core/transaction"
	"github.com/uhyunpark/nexusdex/pkg/chain"
	"github.com/uhyunpark/nexusdex/pkg/crypto"
	"github.com/uhyunpark/nexusdex/params"
)

type Config struct {
	ChainID       int64
	Fee           FeeConfig
	MinimumPolicy exchange.MinimumPolicy
	MempoolLimit  int
	// MaxTxBytes refuses submissions that could never fit in a block.
	MaxTxBytes    int64
	Genesis       params.Genesis
}

// ConfigFromParams maps node configuration onto the application.
func ConfigFromParams(cfg params.Config) (Config, error) {
	policy, err := exchange.ParseMinimumPolicy(cfg.Exchange.MinQtyPolicy)
	if err != nil {
		return Config{}, err
	}
	fee, err := ParseFeeConfig(cfg.Fees)
	if err != nil {
		return Config{}, err
	}
	return Config{
		ChainID:       cfg.Node.ChainID,
		Fee:           fee,
		MinimumPolicy: policy,
		MempoolLimit:  cfg.Node.MempoolMaxTxs,
		MaxTxBytes:    cfg.Node.MaxBlockBytes,
		Genesis:       cfg.Genesis,
	}, nil
}

// App is the exchange state machine driven by the block producer. Reads
// take the read lock and never see a half-applied block.
type App struct {
	mu sync.RWMutex

	ledger   *ledger.Ledger
	tokens   *token.Registry
	exchange *exchange.Exchange
	mempool  *mempool.Mempool
	verifier *transaction.Verifier
	fee      FeeConfig
	store    *ledger.Store
	logger   *zap.Logger

	height    int64
	appHash   chain.Hash
	lastBlock BlockResult
}

type Option func(*App)

func WithLogger(l *zap.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithStore persists state after every block and restores it on start.
func WithStore(s *ledger.Store) Option {
	return func(a *App) { a.store = s }
}

// New builds the app, restoring from the store when it holds a committed
// height and applying genesis otherwise.
func New(cfg Config, opts ...Option) (*App, error) {
	a := &App{
		mempool:  mempool.NewMempool(cfg.MempoolLimit, mempool.WithMaxTxBytes(cfg.MaxTxBytes)),
		verifier: transaction.NewVerifier(crypto.DomainForChain(cfg.ChainID)),
		fee:      cfg.Fee,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if cfg.MinimumPolicy == nil {
		cfg.MinimumPolicy = exchange.SqrtPolicy
	}

	restored, err := a.restore(cfg.MinimumPolicy)
	if err != nil {
		return nil, err
	}
	if !restored {
		if err := a.initGenesis(cfg); err != nil {
			return nil, fmt.Errorf("genesis: %w", err)
		}
	}

	if a.fee.Enabled() {
		if _, ok := a.tokens.FindToken(a.fee.Symbol); !ok {
			return nil, fmt.Errorf("fee token %s is not registered", a.fee.Symbol)
		}
	}

	a.logger.Info("app_ready",
		zap.Int64("height", a.height),
		zap.String("apphash", a.appHash.Hex()),
		zap.Int("tokens", a.tokens.Len()),
		zap.Int("resting_orders", a.exchange.State().Len()),
		zap.Bool("restored", restored))
	return a, nil
}

func (a *App) newExchange(state *exchange.State, policy exchange.MinimumPolicy) *exchange.Exchange {
	return exchange.New(state,
		exchange.WithLogger(a.logger.Named("exchange")),
		exchange.WithMinimumPolicy(policy))
}

// SubmitTx verifies a transaction's signature and queues it for the next
// block. Nonces are checked at execution.
func (a *App) SubmitTx(raw []byte) (common.Hash, error) {
	verified, err := a.verifier.VerifyRaw(raw)
	if err != nil {
		return common.Hash{}, err
	}
	class, err := a.mempool.PushRaw(raw)
	if err != nil {
		return common.Hash{}, err
	}
	h := transaction.Hash(raw)
	a.logger.Debug("tx_queued",
		zap.String("hash", h.Hex()),
		zap.String("type", string(verified.Tx.Type)),
		zap.Stringer("class", class),
		zap.String("from", verified.Signer.Hex()))
	return h, nil
}

func (a *App) Mempool() *mempool.Mempool { return a.mempool }

func (a *App) Verifier() *transaction.Verifier { return a.verifier }
