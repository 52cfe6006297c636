package main

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/nexusdex/pkg/app/core/exchange"
	"github.com/uhyunpark/nexusdex/pkg/crypto"
)

var from = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func defaults() options {
	return options{chainID: 1337, txType: "order", base: "nex", quote: "usd", side: "sell", amount: "1.5", decimals: 8, price: "250"}
}

func TestBuildLimitOrder(t *testing.T) {
	msg, err := buildMessage(defaults(), from)
	require.NoError(t, err)
	o := msg.(*crypto.OrderEIP712)
	assert.Equal(t, "NEX", o.Base)
	assert.Equal(t, uint8(exchange.Sell), o.Side)
	assert.Equal(t, uint8(exchange.GoodTilFilled), o.TimeInForce)
	assert.Equal(t, uint64(150_000_000), o.Amount.Uint64())
	assert.Equal(t, uint64(250), o.Price.Uint64())
}

func TestBuildMarketOrder(t *testing.T) {
	opts := defaults()
	opts.market = true
	msg, err := buildMessage(opts, from)
	require.NoError(t, err)
	o := msg.(*crypto.OrderEIP712)
	assert.Equal(t, uint8(exchange.Market), o.Kind)
	assert.True(t, o.Price.IsZero())
}

func TestBuildTokenMessages(t *testing.T) {
	opts := defaults()
	opts.txType, opts.symbol, opts.decimals, opts.amount = "mint", "gas", 0, "7"
	opts.to = "0x00000000000000000000000000000000000000bb"
	msg, err := buildMessage(opts, from)
	require.NoError(t, err)
	tok := msg.(*crypto.TokenEIP712)
	assert.Equal(t, "Mint", tok.Action)
	assert.Equal(t, "GAS", tok.Symbol)
	assert.Equal(t, common.HexToAddress(opts.to), tok.To)

	opts.txType, opts.to = "burn", ""
	msg, err = buildMessage(opts, from)
	require.NoError(t, err)
	assert.Equal(t, "Burn", msg.(*crypto.TokenEIP712).Action)

	opts.txType = "transfer"
	_, err = buildMessage(opts, from)
	require.Error(t, err)
}

func TestBuildRejectsBadFlags(t *testing.T) {
	for name, mutate := range map[string]func(*options){
		"side":      func(o *options) { o.side = "up" },
		"precision": func(o *options) { o.amount = "0.001"; o.decimals = 2 },
		"decimals":  func(o *options) { o.decimals = 99 },
		"price":     func(o *options) { o.price = "1.5" },
		"type":      func(o *options) { o.txType = "swap" },
	} {
		opts := defaults()
		mutate(&opts)
		_, err := buildMessage(opts, from)
		assert.Error(t, err, name)
	}
}

func TestRunSignsVerifiableTx(t *testing.T) {
	opts := defaults()
	opts.key = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	require.NoError(t, run(opts))
}
