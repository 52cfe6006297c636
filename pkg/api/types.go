package api

import (
	"github.com/uhyunpark/nexusdex/pkg/app/core/event"
	"github.com/uhyunpark/nexusdex/pkg/app/dex"
)

// API response types for REST endpoints and WebSocket messages. Amounts
// are decimal strings in minimal units; *Display fields are scaled by the
// token's decimals.

// TokenInfo describes a registered token
type TokenInfo struct {
	Symbol    string `json:"symbol"`
	Name      string `json:"name"`
	Decimals  uint8  `json:"decimals"`
	Owner     string `json:"owner,omitempty"` // empty when nobody may mint
	Flags     string `json:"flags"`           // e.g. "Transferable|Fungible"
	MaxSupply string `json:"maxSupply,omitempty"`
	Supply    string `json:"supply"`
	Minimum   string `json:"minimum"` // smallest accepted amount or price
}

// OrderInfo represents a resting order
type OrderInfo struct {
	ID            uint64 `json:"id"`
	Creator       string `json:"creator"`
	Base          string `json:"base"`
	Quote         string `json:"quote"`
	Side          string `json:"side"` // "Buy" or "Sell"
	Kind          string `json:"kind"`
	TimeInForce   string `json:"timeInForce"`
	Amount        string `json:"amount"` // unfilled base quantity
	AmountDisplay string `json:"amountDisplay"`
	Price         string `json:"price"` // quote units per base unit
}

// PriceLevel aggregates every resting order at one price
type PriceLevel struct {
	Price  string `json:"price"`
	Size   string `json:"size"`
	Orders int    `json:"orders"`
}

// OrderbookSnapshot represents current orderbook state
type OrderbookSnapshot struct {
	Base   string       `json:"base"`
	Quote  string       `json:"quote"`
	Bids   []PriceLevel `json:"bids"` // best (highest) first
	Asks   []PriceLevel `json:"asks"` // best (lowest) first
	Height int64        `json:"height"`
}

type PairInfo struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

type MinimumInfo struct {
	Decimals uint8  `json:"decimals"`
	Minimum  string `json:"minimum"`
}

// Balance is one token holding
type Balance struct {
	Amount  string `json:"amount"`
	Display string `json:"display"`
}

// AccountInfo represents account nonce and balances
type AccountInfo struct {
	Address  string             `json:"address"`
	Nonce    uint64             `json:"nonce"` // next nonce the account must sign
	Balances map[string]Balance `json:"balances"`
}

// ChainStatus summarizes the node
type ChainStatus struct {
	Height      int64  `json:"height"`
	AppHash     string `json:"appHash"`
	MempoolSize int    `json:"mempoolSize"`
	Pairs       int    `json:"pairs"`
}

// BlockInfo is the latest block with its receipts
type BlockInfo struct {
	Height  int64           `json:"height"`
	Time    int64           `json:"time"`
	AppHash string          `json:"appHash"`
	Txs     []dex.TxReceipt `json:"txs"`
}

// SubmitTxResponse is the response from transaction submission
type SubmitTxResponse struct {
	Status string `json:"status"` // "accepted"
	Hash   string `json:"hash"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g. ["book:NEX/USD", "events:0x..."]
}

// WSMessage wraps every server push
type WSMessage struct {
	Type    string `json:"type"` // "book" or "event"
	Channel string `json:"channel"`
	Data    any    `json:"data"`
}

// EventUpdate carries one committed event to its address channel
type EventUpdate struct {
	Height int64  `json:"height"`
	TxHash string `json:"txHash"`
	Event  event.Event `json:"event"`
}
