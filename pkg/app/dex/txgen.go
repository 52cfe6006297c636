package dex

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/nexusdex/pkg/app/core/transaction"
	"github.com/uhyunpark/nexusdex/pkg/crypto"
)

// GeneratorConfig shapes the random order flow of a TxGenerator. Prices and
// amounts are in minimal units.
type GeneratorConfig struct {
	ChainID   int64
	Accounts  int
	Seed      int64
	Base      string
	Quote     string
	MidPrice  uint64
	Spread    uint64 // prices fall in MidPrice ± Spread
	MinAmount uint64
	MaxAmount uint64
}

// TxGenerator signs random orders and cancels for a fixed set of devnet
// accounts. Keys derive from the seed, so genesis can fund them.
type TxGenerator struct {
	mu      sync.Mutex
	cfg     GeneratorConfig
	signers []*crypto.Signer
	eip712  *crypto.EIP712Signer
	rng     *rand.Rand
}

func NewTxGenerator(cfg GeneratorConfig) (*TxGenerator, error) {
	if cfg.Accounts <= 0 {
		return nil, fmt.Errorf("generator needs at least one account")
	}
	if cfg.MaxAmount < cfg.MinAmount || cfg.MinAmount == 0 {
		return nil, fmt.Errorf("invalid amount range [%d, %d]", cfg.MinAmount, cfg.MaxAmount)
	}
	if cfg.Spread >= cfg.MidPrice {
		return nil, fmt.Errorf("spread %d must be below mid price %d", cfg.Spread, cfg.MidPrice)
	}

	signers := make([]*crypto.Signer, cfg.Accounts)
	for i := range signers {
		s, err := crypto.FromSeed([]byte(fmt.Sprintf("nexusdex/loadgen/%d/%d", cfg.Seed, i)))
		if err != nil {
			return nil, err
		}
		signers[i] = s
	}
	return &TxGenerator{
		cfg:     cfg,
		signers: signers,
		eip712:  crypto.NewEIP712Signer(crypto.DomainForChain(cfg.ChainID)),
		rng:     rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

func (g *TxGenerator) Accounts() []common.Address {
	out := make([]common.Address, len(g.signers))
	for i, s := range g.signers {
		out[i] = s.Address()
	}
	return out
}

// GenesisBalances lists SYMBOL:ADDRESS:AMOUNT entries that fund every
// generator account with baseAmount and quoteAmount whole tokens.
func (g *TxGenerator) GenesisBalances(baseAmount, quoteAmount string) []string {
	var out []string
	for _, addr := range g.Accounts() {
		out = append(out,
			fmt.Sprintf("%s:%s:%s", g.cfg.Base, addr.Hex(), baseAmount),
			fmt.Sprintf("%s:%s:%s", g.cfg.Quote, addr.Hex(), quoteAmount))
	}
	return out
}

// NextOrder signs a random order for a random account: 70% resting limit,
// 20% IOC limit, 10% market.
func (g *TxGenerator) NextOrder(nonceOf func(common.Address) uint64) ([]byte, error) {
	g.mu.Lock()
	signer := g.signers[g.rng.Intn(len(g.signers))]
	side := uint8(1 + g.rng.Intn(2))
	kind, tif := uint8(1), uint8(1)
	switch r := g.rng.Intn(100); {
	case r >= 90:
		kind = 2
	case r >= 70:
		tif = 2
	}
	span := int64(2*g.cfg.Spread + 1)
	price := g.cfg.MidPrice - g.cfg.Spread + uint64(g.rng.Int63n(span))
	amount := g.cfg.MinAmount + uint64(g.rng.Int63n(int64(g.cfg.MaxAmount-g.cfg.MinAmount+1)))
	g.mu.Unlock()

	order := &crypto.OrderEIP712{
		From:        signer.Address(),
		Base:        g.cfg.Base,
		Quote:       g.cfg.Quote,
		Side:        side,
		Kind:        kind,
		TimeInForce: tif,
		Amount:      uint256.NewInt(amount),
		Price:       uint256.NewInt(price),
		Nonce:       nonceOf(signer.Address()),
	}
	if kind == 2 {
		order.Price = new(uint256.Int)
	}
	return g.sign(signer, order)
}

// Cancel signs a cancel of orderID by the generator account owning from.
func (g *TxGenerator) Cancel(from common.Address, orderID, nonce uint64) ([]byte, error) {
	for _, s := range g.signers {
		if s.Address() == from {
			return g.sign(s, &crypto.CancelEIP712{From: from, OrderID: orderID, Nonce: nonce})
		}
	}
	return nil, fmt.Errorf("%s is not a generator account", from.Hex())
}

func (g *TxGenerator) sign(s *crypto.Signer, msg crypto.TypedMessage) ([]byte, error) {
	tx, err := transaction.Sign(g.eip712, s, msg)
	if err != nil {
		return nil, err
	}
	return tx.Serialize()
}
