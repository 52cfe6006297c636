package params

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

type Node struct {
	// BlockTime is the interval between sealed blocks. Empty blocks are
	// still produced so that heights advance at a steady pace.
	BlockTime     time.Duration `env:"BLOCK_TIME" envDefault:"500ms"`
	MaxBlockBytes int64         `env:"MAX_BLOCK_BYTES" envDefault:"16777216"`
	// MempoolMaxTxs caps queued transactions; submissions beyond it are refused.
	MempoolMaxTxs int           `env:"MEMPOOL_MAX_TXS" envDefault:"10000"`
	ChainID       int64         `env:"CHAIN_ID" envDefault:"1337"`
	Proposer      string        `env:"PROPOSER" envDefault:"node0"`
	DataDir       string        `env:"DATA_DIR" envDefault:"data"`
	LogFile       string        `env:"LOG_FILE" envDefault:"data/node.log"`
	Verbose       bool          `env:"VERBOSE" envDefault:"false"`
}

type API struct {
	Addr string `env:"ADDR" envDefault:":8080"`
	// TxLogFile receives one JSON line per submitted transaction. Empty disables it.
	TxLogFile      string   `env:"TX_LOG_FILE" envDefault:"data/transactions.jsonl"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:3001"`
}

type Exchange struct {
	// MinQtyPolicy selects how the dust floor is derived from token decimals:
	// "sqrt" (10^(decimals/2)), "unit" (1) or "exponent:N" (10^N).
	MinQtyPolicy string `env:"MIN_QTY_POLICY" envDefault:"sqrt"`
}

type Fees struct {
	FuelSymbol string `env:"FUEL_SYMBOL" envDefault:"GAS"`
	// TxFee is charged per transaction in minimal units of the fuel token.
	TxFee     string `env:"TX_FEE" envDefault:"0"`
	Collector string `env:"COLLECTOR" envDefault:"0x000000000000000000000000000000000000fee0"`
}

type Genesis struct {
	// Tokens lists SYMBOL:DECIMALS[:OWNER[:MAXSUPPLY]] entries.
	Tokens []string `env:"TOKENS" envSeparator:"," envDefault:"NEX:8,GAS:10,USD:6"`
	// Balances lists SYMBOL:ADDRESS:AMOUNT entries minted at height zero.
	// Amounts are whole-token decimals such as 12.5.
	Balances []string `env:"BALANCES" envSeparator:","`
}

type Kafka struct {
	Brokers []string `env:"BROKERS" envSeparator:","`
	Topic   string   `env:"TOPIC" envDefault:"nexusdex.events"`
}

// Loadgen drives synthetic order flow against the local node. Amounts and
// prices are minimal units; funding is in whole tokens.
type Loadgen struct {
	Enabled      bool          `env:"ENABLED" envDefault:"false"`
	Accounts     int           `env:"ACCOUNTS" envDefault:"8"`
	Seed         int64         `env:"SEED" envDefault:"1"`
	Base         string        `env:"BASE" envDefault:"NEX"`
	Quote        string        `env:"QUOTE" envDefault:"USD"`
	MidPrice     uint64        `env:"MID_PRICE" envDefault:"100000"`
	Spread       uint64        `env:"SPREAD" envDefault:"5000"`
	MinAmount    uint64        `env:"MIN_AMOUNT" envDefault:"10000"`
	MaxAmount    uint64        `env:"MAX_AMOUNT" envDefault:"1000000"`
	BatchSize    int           `env:"BATCH_SIZE" envDefault:"20"`
	Interval     time.Duration `env:"INTERVAL" envDefault:"200ms"`
	BaseFunding  string        `env:"BASE_FUNDING" envDefault:"1000000"`
	QuoteFunding string        `env:"QUOTE_FUNDING" envDefault:"100000000"`
}

type Config struct {
	Node     Node     `envPrefix:"NODE_"`
	API      API      `envPrefix:"API_"`
	Exchange Exchange `envPrefix:"EXCHANGE_"`
	Fees     Fees     `envPrefix:"FEE_"`
	Genesis  Genesis  `envPrefix:"GENESIS_"`
	Kafka    Kafka    `envPrefix:"KAFKA_"`
	Loadgen  Loadgen  `envPrefix:"LOADGEN_"`
}

// Default returns the devnet configuration without consulting the environment.
func Default() Config {
	var cfg Config
	// Parsing an empty environment only applies envDefault tags.
	_ = env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}})
	return cfg
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) (Config, error) {
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// GenesisToken is one parsed entry of Genesis.Tokens.
type GenesisToken struct {
	Symbol    string
	Decimals  uint8
	Owner     common.Address
	MaxSupply string
}

// GenesisBalance is one parsed entry of Genesis.Balances.
type GenesisBalance struct {
	Symbol  string
	Address common.Address
	Amount  string
}

func (g Genesis) ParseTokens() ([]GenesisToken, error) {
	out := make([]GenesisToken, 0, len(g.Tokens))
	for _, raw := range g.Tokens {
		parts := strings.Split(strings.TrimSpace(raw), ":")
		if len(parts) < 2 || len(parts) > 4 {
			return nil, fmt.Errorf("genesis token %q: want SYMBOL:DECIMALS[:OWNER[:MAXSUPPLY]]", raw)
		}
		dec, err := strconv.ParseUint(parts[1], 10, 8)
		if err != nil {
			return nil, fmt.Errorf("genesis token %q: decimals: %w", raw, err)
		}
		tok := GenesisToken{Symbol: parts[0], Decimals: uint8(dec)}
		if len(parts) >= 3 && parts[2] != "" {
			if !common.IsHexAddress(parts[2]) {
				return nil, fmt.Errorf("genesis token %q: invalid owner address", raw)
			}
			tok.Owner = common.HexToAddress(parts[2])
		}
		if len(parts) == 4 {
			tok.MaxSupply = parts[3]
		}
		out = append(out, tok)
	}
	return out, nil
}

func (g Genesis) ParseBalances() ([]GenesisBalance, error) {
	out := make([]GenesisBalance, 0, len(g.Balances))
	for _, raw := range g.Balances {
		parts := strings.Split(strings.TrimSpace(raw), ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("genesis balance %q: want SYMBOL:ADDRESS:AMOUNT", raw)
		}
		if !common.IsHexAddress(parts[1]) {
			return nil, fmt.Errorf("genesis balance %q: invalid address", raw)
		}
		out = append(out, GenesisBalance{
			Symbol:  parts[0],
			Address: common.HexToAddress(parts[1]),
			Amount:  parts[2],
		})
	}
	return out, nil
}
