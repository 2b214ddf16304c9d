package match

import (
	"fmt"
	"time"

	"github.com/0x5487/limit-order-book/protocol"
	"github.com/shopspring/decimal"
)

type Side = protocol.Side

const (
	Buy  Side = protocol.SideBuy
	Sell Side = protocol.SideSell
)

type OrderType = protocol.OrderType

const (
	Market OrderType = protocol.OrderTypeMarket
	Limit  OrderType = protocol.OrderTypeLimit
)

type LogType = protocol.LogType

const (
	LogTypeOpen   LogType = protocol.LogTypeOpen
	LogTypeMatch  LogType = protocol.LogTypeMatch
	LogTypeCancel LogType = protocol.LogTypeCancel
	LogTypeReject LogType = protocol.LogTypeReject
)

type RejectReason = protocol.RejectReason

const (
	RejectReasonNone        RejectReason = protocol.RejectReasonNone
	RejectReasonNoLiquidity RejectReason = protocol.RejectReasonNoLiquidity
)

// PriceKind is either a limit price or "market". The zero value is a market price.
type PriceKind struct {
	limit bool
	price decimal.Decimal
}

// LimitPrice returns a limit price constraint.
func LimitPrice(price decimal.Decimal) PriceKind {
	return PriceKind{limit: true, price: price}
}

// MarketPrice returns the unconstrained market price kind.
func MarketPrice() PriceKind {
	return PriceKind{}
}

// IsMarket reports whether the kind carries no price.
func (k PriceKind) IsMarket() bool {
	return !k.limit
}

// Price returns the limit price and true, or zero and false for market.
func (k PriceKind) Price() (decimal.Decimal, bool) {
	return k.price, k.limit
}

// Type maps the kind to its wire order type.
func (k PriceKind) Type() OrderType {
	if k.limit {
		return Limit
	}
	return Market
}

// MarshalText encodes the kind as "market" or "limit@<price>".
func (k PriceKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k PriceKind) String() string {
	if k.limit {
		return "limit@" + k.price.String()
	}
	return "market"
}

// accepts reports whether an incoming order of this kind on side may trade at levelPrice.
func (k PriceKind) accepts(side Side, levelPrice decimal.Decimal) bool {
	if !k.limit {
		return true
	}
	if side == Buy {
		return levelPrice.LessThanOrEqual(k.price)
	}
	return levelPrice.GreaterThanOrEqual(k.price)
}

// OrderState is a node of the order lifecycle.
//
//	New -> Resting -> Filled | Cancelled
//	New -> Filled | RemainderDiscarded
type OrderState uint8

const (
	StateNew OrderState = iota
	StateResting
	StateFilled
	StateCancelled
	StateRemainderDiscarded // market order whose unfilled quantity was dropped
)

func (s OrderState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateResting:
		return "resting"
	case StateFilled:
		return "filled"
	case StateCancelled:
		return "cancelled"
	case StateRemainderDiscarded:
		return "remainder_discarded"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

func (s OrderState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transition is possible.
func (s OrderState) Terminal() bool {
	return s == StateFilled || s == StateCancelled || s == StateRemainderDiscarded
}

// Order represents the state of an order owned by the order book.
type Order struct {
	ID        uint64     `json:"id"`
	Sequence  uint64     `json:"sequence"` // time priority tie-break
	Side      Side       `json:"side"`
	Kind      PriceKind  `json:"price_kind"`
	Quantity  int64      `json:"quantity"`  // Original quantity
	Remaining int64      `json:"remaining"` // Unfilled quantity
	State     OrderState `json:"state"`
	Timestamp int64      `json:"timestamp"` // Unix nano, creation time

	// Intrusive linked list pointers
	next  *Order
	prev  *Order
	level *priceUnit
}

// Price returns the limit price. Market orders report zero.
func (o *Order) Price() decimal.Decimal {
	return o.Kind.price
}

// Filled returns the executed quantity.
func (o *Order) Filled() int64 {
	return o.Quantity - o.Remaining
}

// clone returns a detached copy safe to hand to callers.
func (o *Order) clone() *Order {
	cpy := *o
	cpy.next = nil
	cpy.prev = nil
	cpy.level = nil
	return &cpy
}

// Trade is an execution between an incoming (taker) order and a resting (maker) order.
// Price is always the maker's price.
type Trade struct {
	Sequence    uint64          `json:"sequence"` // Position in the trade log
	Price       decimal.Decimal `json:"price"`
	Quantity    int64           `json:"quantity"`
	BuyOrderID  uint64          `json:"buy_order_id"`
	SellOrderID uint64          `json:"sell_order_id"`
	TakerSide   Side            `json:"side"`
	CreatedAt   time.Time       `json:"created_at"`
}

// SubmissionResult is returned for every accepted order.
type SubmissionResult struct {
	Order    *Order  `json:"order"`             // Final state of the submitted order
	Trades   []Trade `json:"trades"`            // Trades in execution order
	Resting  *Order  `json:"resting,omitempty"` // Set when a limit remainder rests in the book
	Unfilled int64   `json:"unfilled"`          // Market remainder that was discarded
}

type CancelStatus uint8

const (
	CancelStatusNotFound CancelStatus = iota
	CancelStatusCancelled
)

func (s CancelStatus) String() string {
	if s == CancelStatusCancelled {
		return "cancelled"
	}
	return "not_found"
}

func (s CancelStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CancelResult reports the outcome of a cancel request.
type CancelResult struct {
	OrderID uint64       `json:"order_id"`
	Status  CancelStatus `json:"status"`
}

// Response converts the result to its wire form.
func (r CancelResult) Response() *protocol.CancelOrderResponse {
	resp := &protocol.CancelOrderResponse{OrderID: r.OrderID, Cancelled: r.Status == CancelStatusCancelled}
	if !resp.Cancelled {
		resp.RejectReason = protocol.RejectReasonOrderNotFound
	}
	return resp
}

// Err returns ErrOrderNotFound when nothing was cancelled.
func (r CancelResult) Err() error {
	if r.Status == CancelStatusCancelled {
		return nil
	}
	return ErrOrderNotFound
}

// BBO is the best bid and offer.
type BBO struct {
	Bid decimal.NullDecimal `json:"bid"`
	Ask decimal.NullDecimal `json:"ask"`
}

// Spread returns ask minus bid when both sides are present.
func (b BBO) Spread() decimal.NullDecimal {
	if !b.Bid.Valid || !b.Ask.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(b.Ask.Decimal.Sub(b.Bid.Decimal))
}

// DepthItem is one aggregated price level.
type DepthItem struct {
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
	Count    int64           `json:"count"`
}

// Depth is a best-first projection of both sides.
type Depth struct {
	UpdateID uint64       `json:"update_id"`
	Asks     []*DepthItem `json:"asks"`
	Bids     []*DepthItem `json:"bids"`
}

// Response converts the depth to its wire form.
func (d *Depth) Response() *protocol.GetDepthResponse {
	return &protocol.GetDepthResponse{
		UpdateID: d.UpdateID,
		Asks:     wireItems(d.Asks),
		Bids:     wireItems(d.Bids),
	}
}

func wireItems(items []*DepthItem) []*protocol.DepthItem {
	result := make([]*protocol.DepthItem, len(items))
	for i, item := range items {
		result[i] = &protocol.DepthItem{Price: item.Price.String(), Quantity: item.Quantity, Count: item.Count}
	}
	return result
}

// BookStats contains statistics about the order book sides.
type BookStats = protocol.GetStatsResponse
