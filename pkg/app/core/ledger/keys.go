package ledger

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Pebble key schema. Every key starts with a short prefix so that a
// whole family can be loaded with one range scan.
const (
	prefixBalance = "bal:"   // bal:{symbol}:{address}
	prefixSupply  = "sup:"   // sup:{symbol}
	prefixNonce   = "nonce:" // nonce:{address}
	prefixMeta    = "meta:"  // meta:{name}
)

func balanceStoreKey(symbol string, addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixBalance, symbol, addr.Hex()))
}

func supplyStoreKey(symbol string) []byte {
	return []byte(prefixSupply + symbol)
}

func nonceStoreKey(addr common.Address) []byte {
	return []byte(prefixNonce + addr.Hex())
}

func metaStoreKey(name string) []byte {
	return []byte(prefixMeta + name)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

// parseBalanceKey is the inverse of balanceStoreKey.
func parseBalanceKey(key []byte) (balanceKey, error) {
	rest := strings.TrimPrefix(string(key), prefixBalance)
	i := strings.LastIndexByte(rest, ':')
	if i <= 0 {
		return balanceKey{}, fmt.Errorf("invalid balance key %q", key)
	}
	addrHex := rest[i+1:]
	if !common.IsHexAddress(addrHex) {
		return balanceKey{}, fmt.Errorf("invalid address in key %q", key)
	}
	return balanceKey{Symbol: rest[:i], Addr: common.HexToAddress(addrHex)}, nil
}

func parseNonceKey(key []byte) (common.Address, error) {
	addrHex := strings.TrimPrefix(string(key), prefixNonce)
	if !common.IsHexAddress(addrHex) {
		return common.Address{}, fmt.Errorf("invalid address in key %q", key)
	}
	return common.HexToAddress(addrHex), nil
}
