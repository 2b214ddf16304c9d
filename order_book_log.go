package match

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// BookLog represents an event in the order book.
// SequenceID is a book-wide increasing ID for every event, used for ordering,
// deduplication, and rebuild synchronization in downstream systems.
// Use Type to determine if the event affects order book state:
// - Open, Match, Cancel: affect order book state
// - Reject: does not affect order book state
type BookLog struct {
	SequenceID   uint64          `json:"seq_id"`
	TradeSeq     uint64          `json:"trade_seq,omitempty"` // Trade log position, only set for Match events
	Type         LogType         `json:"type"`
	SessionID    string          `json:"session_id"`
	Side         Side            `json:"side"`
	Price        decimal.Decimal `json:"price"`
	Quantity     int64           `json:"quantity"`
	OrderID      uint64          `json:"order_id"`
	OrderType    OrderType       `json:"order_type,omitempty"`
	MakerOrderID uint64          `json:"maker_order_id,omitempty"`
	RejectReason RejectReason    `json:"reject_reason,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

var bookLogPool = sync.Pool{
	New: func() any {
		return new(BookLog)
	},
}

func acquireBookLog() *BookLog {
	return bookLogPool.Get().(*BookLog)
}

func releaseBookLog(log *BookLog) {
	// For decimal.Decimal, the zero value represents 0, which is valid.
	*log = BookLog{}
	bookLogPool.Put(log)
}

func newOpenLog(seqID uint64, sessionID string, order *Order, now time.Time) *BookLog {
	log := acquireBookLog()
	log.SequenceID = seqID
	log.Type = LogTypeOpen
	log.SessionID = sessionID
	log.Side = order.Side
	log.Price = order.Price()
	log.Quantity = order.Remaining
	log.OrderID = order.ID
	log.OrderType = order.Kind.Type()
	log.CreatedAt = now
	return log
}

// newMatchLog records a fill. Side is the taker's side; Price is the maker's price.
func newMatchLog(seqID uint64, sessionID string, taker *Order, maker *Order, trade *Trade) *BookLog {
	log := acquireBookLog()
	log.SequenceID = seqID
	log.TradeSeq = trade.Sequence
	log.Type = LogTypeMatch
	log.SessionID = sessionID
	log.Side = taker.Side
	log.Price = trade.Price
	log.Quantity = trade.Quantity
	log.OrderID = taker.ID
	log.OrderType = taker.Kind.Type()
	log.MakerOrderID = maker.ID
	log.CreatedAt = trade.CreatedAt
	return log
}

func newCancelLog(seqID uint64, sessionID string, order *Order, now time.Time) *BookLog {
	log := acquireBookLog()
	log.SequenceID = seqID
	log.Type = LogTypeCancel
	log.SessionID = sessionID
	log.Side = order.Side
	log.Price = order.Price()
	log.Quantity = order.Remaining
	log.OrderID = order.ID
	log.OrderType = order.Kind.Type()
	log.CreatedAt = now
	return log
}

func newRejectLog(seqID uint64, sessionID string, order *Order, qty int64, reason RejectReason, now time.Time) *BookLog {
	log := acquireBookLog()
	log.SequenceID = seqID
	log.Type = LogTypeReject
	log.SessionID = sessionID
	log.Side = order.Side
	log.Quantity = qty
	log.OrderID = order.ID
	log.OrderType = order.Kind.Type()
	log.RejectReason = reason
	log.CreatedAt = now
	return log
}
