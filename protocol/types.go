package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DepthItem is one price level on the wire. Price keeps the decimal text form.
type DepthItem struct {
	Price    string `json:"price"`
	Quantity int64  `json:"quantity"`
	Count    int64  `json:"count"`
}

// GetDepthResponse represents the state of the order book depth.
type GetDepthResponse struct {
	UpdateID uint64       `json:"update_id"`
	Asks     []*DepthItem `json:"asks"`
	Bids     []*DepthItem `json:"bids"`
}

// GetStatsResponse contains statistics about the order book sides.
type GetStatsResponse struct {
	AskDepthCount int64 `json:"ask_depth_count"`
	AskOrderCount int64 `json:"ask_order_count"`
	BidDepthCount int64 `json:"bid_depth_count"`
	BidOrderCount int64 `json:"bid_order_count"`
}

// CancelOrderResponse is the outcome of a cancel command.
type CancelOrderResponse struct {
	OrderID      uint64       `json:"order_id"`
	Cancelled    bool         `json:"cancelled"`
	RejectReason RejectReason `json:"reject_reason,omitempty"`
}

// Side represents the order side (Buy/Sell).
type Side int8

const (
	SideBuy  Side = 1
	SideSell Side = 2
)

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Valid reports whether s is one of the defined sides.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	}
	return fmt.Sprintf("side(%d)", int8(s))
}

// ParseSide accepts "buy" or "sell" in any case.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return SideBuy, nil
	case "sell":
		return SideSell, nil
	}
	return 0, fmt.Errorf("protocol: unknown side %q", s)
}

// MarshalText encodes the side as "buy"/"sell" so JSON and YAML stay readable.
func (s Side) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("protocol: invalid side %d", int8(s))
	}
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(text []byte) error {
	side, err := ParseSide(string(text))
	if err != nil {
		return err
	}
	*s = side
	return nil
}

// OrderType represents the type of order.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// LogType represents the type of event log.
type LogType string

const (
	LogTypeOpen   LogType = "open"
	LogTypeMatch  LogType = "match"
	LogTypeCancel LogType = "cancel"
	LogTypeReject LogType = "reject"
)

// RejectReason represents the reason why (part of) an order was not accepted.
type RejectReason string

const (
	RejectReasonNone           RejectReason = ""
	RejectReasonNoLiquidity    RejectReason = "no_liquidity" // Market: remainder discarded
	RejectReasonOrderNotFound  RejectReason = "order_not_found"
	RejectReasonInvalidPayload RejectReason = "invalid_payload"
)

// JSONSerializer is the default Serializer backed by encoding/json.
type JSONSerializer struct{}

func (JSONSerializer) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONSerializer) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
