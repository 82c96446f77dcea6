package api

import "time"

// Request/response types for REST endpoints and WebSocket messages.
// Ciphertext fields are []byte and travel as base64 strings in JSON.

type SubmitOrderRequest struct {
	Trader    string `json:"trader"`
	EncPrice  []byte `json:"enc_price"`
	EncAmount []byte `json:"enc_amount"`
	EncSide   []byte `json:"enc_side"`
}

type SubmitOrderResponse struct {
	OrderID uint64 `json:"order_id"`
}

// AuthedRequest identifies the caller of a guarded operation. Signature is
// optional in development: when present it must be a 65-byte secp256k1
// signature over the operation's canonical message, hex encoded.
type AuthedRequest struct {
	Caller    string `json:"caller"`
	Signature string `json:"signature,omitempty"`
}

type OrderResponse struct {
	OrderID   uint64    `json:"order_id"`
	Trader    string    `json:"trader"`
	CreatedAt time.Time `json:"created_at"`
	Active    bool      `json:"active"`
	Revealed  bool      `json:"revealed"`
	// Populated only after a verified reveal.
	Price  *uint64 `json:"price,omitempty"`
	Amount *uint64 `json:"amount,omitempty"`
	Side   *uint64 `json:"side,omitempty"`
}

type BestBidAskResponse struct {
	EncBestBid []byte `json:"enc_best_bid"`
	EncBestAsk []byte `json:"enc_best_ask"`
}

type CanMatchResponse struct {
	BuyOrderID  uint64 `json:"buy_order_id"`
	SellOrderID uint64 `json:"sell_order_id"`
	// Encrypted boolean; stays ciphertext until someone reveals it.
	EncCanMatch []byte `json:"enc_can_match"`
}

type CommitMatchRequest struct {
	BuyOrderID  uint64 `json:"buy_order_id"`
	SellOrderID uint64 `json:"sell_order_id"`
}

type CommitMatchResponse struct {
	MatchID string `json:"match_id"`
}

type MatchResponse struct {
	MatchID     string    `json:"match_id"`
	BuyOrderID  uint64    `json:"buy_order_id"`
	SellOrderID uint64    `json:"sell_order_id"`
	Complete    bool      `json:"complete"`
	CommittedAt time.Time `json:"committed_at"`
	Revealed    bool      `json:"revealed"`
	Price       *uint64   `json:"price,omitempty"`
	Amount      *uint64   `json:"amount,omitempty"`
}

type RevealResponse struct {
	RequestID uint64 `json:"request_id"`
}

// OracleCallbackRequest is the inbound form of an oracle delivery, for
// deployments running the oracle out of process.
type OracleCallbackRequest struct {
	Caller     string   `json:"caller"`
	RequestID  uint64   `json:"request_id"`
	Cleartexts []uint64 `json:"cleartexts"`
	Proof      []byte   `json:"proof"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// WSSubscribeRequest is the client->server subscription message.
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// WSEvent wraps a bus event for broadcast.
type WSEvent struct {
	Channel string `json:"channel"`
	Type    string `json:"type"`
	Data    any    `json:"data"`
}
