package exchange

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/nexusdex/pkg/app/core/ledger"
	"github.com/uhyunpark/nexusdex/pkg/app/core/token"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol = common.HexToAddress("0x00000000000000000000000000000000000ca201")
)

// testRuntime backs the exchange with a real ledger and lets tests make
// a chosen credit fail or panic.
type testRuntime struct {
	*ledger.Ledger
	tokens    *token.Registry
	witnesses map[common.Address]bool

	credits     int
	failCredit  int // 1-based credit number that errors; 0 disables
	panicCredit int // 1-based credit number that panics; 0 disables
}

func newTestRuntime(t testing.TB) *testRuntime {
	t.Helper()
	reg := token.NewRegistry()
	require.NoError(t, reg.Register(token.Info{Symbol: "BASE", Decimals: 0, Flags: token.Transferable | token.Fungible}))
	require.NoError(t, reg.Register(token.Info{Symbol: "QUOTE", Decimals: 0, Flags: token.Transferable | token.Fungible}))
	require.NoError(t, reg.Register(token.Info{Symbol: "BIG", Decimals: 8, Flags: token.DefaultFlags}))
	require.NoError(t, reg.Register(token.Info{Symbol: "USD", Decimals: 6, Flags: token.DefaultFlags}))

	return &testRuntime{
		Ledger:    ledger.New(),
		tokens:    reg,
		witnesses: map[common.Address]bool{alice: true, bob: true, carol: true},
	}
}

func (r *testRuntime) IsWitness(addr common.Address) bool { return r.witnesses[addr] }

func (r *testRuntime) GetBalance(symbol string, addr common.Address) uint256.Int {
	return r.Balance(symbol, addr)
}

func (r *testRuntime) Credit(symbol string, addr common.Address, amount *uint256.Int) error {
	r.credits++
	if r.credits == r.panicCredit {
		panic("injected credit panic")
	}
	if r.credits == r.failCredit {
		return ledger.ErrOverflow
	}
	return r.Ledger.Credit(symbol, addr, amount)
}

func (r *testRuntime) FindToken(symbol string) (token.Info, bool) { return r.tokens.FindToken(symbol) }

func (r *testRuntime) fund(t testing.TB, symbol string, addr common.Address, amount uint64) {
	t.Helper()
	require.NoError(t, r.Mint(symbol, addr, uint256.NewInt(amount), nil))
}

func (r *testRuntime) bal(symbol string, addr common.Address) uint64 {
	b := r.Balance(symbol, addr)
	return b.Uint64()
}

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

var _ Runtime = (*testRuntime)(nil)
