package match

import (
	"time"

	"github.com/rs/xid"
	"github.com/shopspring/decimal"
)

// Option configures an OrderBook.
type Option func(*OrderBook)

// WithPublishLog sets the sink receiving BookLog events.
func WithPublishLog(p PublishLog) Option {
	return func(book *OrderBook) {
		book.publishLog = p
	}
}

// WithInvariantChecks toggles the full structural verification run after every
// mutation. The crossed-book check always runs.
func WithInvariantChecks(enabled bool) Option {
	return func(book *OrderBook) {
		book.checkInvariants = enabled
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(book *OrderBook) {
		book.now = now
	}
}

// OrderBook is a single-instrument limit order book with price-time priority.
//
// An OrderBook is not safe for concurrent use; every operation runs to
// completion before the next. Use Engine to share one between goroutines.
type OrderBook struct {
	sessionID       string
	seqID           uint64 // BookLog sequence
	nextOrderID     uint64
	orderSeq        uint64 // time priority counter
	bidQueue        *queue
	askQueue        *queue
	orders          map[uint64]*Order // resting orders by id
	trades          []Trade
	publishLog      PublishLog
	checkInvariants bool
	now             func() time.Time
}

// NewOrderBook creates an empty order book for one trading session.
func NewOrderBook(opts ...Option) *OrderBook {
	book := &OrderBook{
		sessionID:       xid.New().String(),
		bidQueue:        NewBuyerQueue(),
		askQueue:        NewSellerQueue(),
		orders:          make(map[uint64]*Order),
		trades:          make([]Trade, 0),
		publishLog:      discardPublishLog{},
		checkInvariants: true,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(book)
	}
	return book
}

// SessionID identifies this book instance in published logs.
func (book *OrderBook) SessionID() string {
	return book.sessionID
}

// SubmitLimitOrder places a limit order. Any unmatched remainder rests in the book.
func (book *OrderBook) SubmitLimitOrder(side Side, price decimal.Decimal, quantity int64) (*SubmissionResult, error) {
	return book.Submit(side, LimitPrice(price), quantity)
}

// SubmitMarketOrder places a market order. Any unmatched remainder is discarded
// and reported in SubmissionResult.Unfilled.
func (book *OrderBook) SubmitMarketOrder(side Side, quantity int64) (*SubmissionResult, error) {
	return book.Submit(side, MarketPrice(), quantity)
}

// Submit validates the order, matches it against the opposite side and rests
// or discards the remainder. Validation failures leave the book untouched.
func (book *OrderBook) Submit(side Side, kind PriceKind, quantity int64) (*SubmissionResult, error) {
	if err := validateOrder(side, kind, quantity); err != nil {
		logger.Debug().Err(err).Str("side", side.String()).Int64("quantity", quantity).Msg("order rejected")
		return nil, err
	}

	now := book.now()
	book.orderSeq++
	order := &Order{
		ID:        book.nextOrderID,
		Sequence:  book.orderSeq,
		Side:      side,
		Kind:      kind,
		Quantity:  quantity,
		Remaining: quantity,
		State:     StateNew,
		Timestamp: now.UnixNano(),
	}
	book.nextOrderID++

	logs := make([]*BookLog, 0, 4)
	trades, logs := book.match(order, now, logs)

	result := &SubmissionResult{Trades: trades}

	switch {
	case order.Remaining == 0:
		order.State = StateFilled
	case kind.IsMarket():
		order.State = StateRemainderDiscarded
		result.Unfilled = order.Remaining
		book.seqID++
		logs = append(logs, newRejectLog(book.seqID, book.sessionID, order, order.Remaining, RejectReasonNoLiquidity, now))
	default:
		order.State = StateResting
		book.queue(side).pushBack(order)
		book.orders[order.ID] = order
		book.seqID++
		logs = append(logs, newOpenLog(book.seqID, book.sessionID, order, now))
		result.Resting = order.clone()
	}
	result.Order = order.clone()

	book.publish(logs)
	book.assertInvariants("submit")

	return result, nil
}

// Cancel removes a resting order. Unknown or already terminal orders report
// CancelStatusNotFound and change nothing.
func (book *OrderBook) Cancel(orderID uint64) CancelResult {
	order, ok := book.orders[orderID]
	if !ok || order.State.Terminal() {
		logger.Debug().Uint64("order_id", orderID).Msg("cancel: order not found")
		return CancelResult{OrderID: orderID, Status: CancelStatusNotFound}
	}

	book.queue(order.Side).remove(order)
	delete(book.orders, orderID)
	order.State = StateCancelled

	book.seqID++
	book.publish([]*BookLog{newCancelLog(book.seqID, book.sessionID, order, book.now())})
	book.assertInvariants("cancel")

	return CancelResult{OrderID: orderID, Status: CancelStatusCancelled}
}

// BestBidAsk returns the best price of each side; a side with no orders is null.
func (book *OrderBook) BestBidAsk() BBO {
	var bbo BBO
	if unit := book.bidQueue.bestLevel(); unit != nil {
		bbo.Bid = decimal.NewNullDecimal(unit.price)
	}
	if unit := book.askQueue.bestLevel(); unit != nil {
		bbo.Ask = decimal.NewNullDecimal(unit.price)
	}
	return bbo
}

// Snapshot returns aggregated levels per side, best first, truncated to depth
// levels. depth <= 0 returns every level.
func (book *OrderBook) Snapshot(depth int) *Depth {
	return &Depth{
		UpdateID: book.seqID,
		Asks:     book.askQueue.depth(depth),
		Bids:     book.bidQueue.depth(depth),
	}
}

// Trades returns a copy of the trade log in execution order.
func (book *OrderBook) Trades() []Trade {
	trades := make([]Trade, len(book.trades))
	copy(trades, book.trades)
	return trades
}

// TradesSince returns a copy of the trades whose Sequence is >= seq.
func (book *OrderBook) TradesSince(seq uint64) []Trade {
	if seq >= uint64(len(book.trades)) {
		return []Trade{}
	}
	trades := make([]Trade, uint64(len(book.trades))-seq)
	copy(trades, book.trades[seq:])
	return trades
}

// Order returns a copy of a resting order.
func (book *OrderBook) Order(orderID uint64) (*Order, bool) {
	order, ok := book.orders[orderID]
	if !ok {
		return nil, false
	}
	return order.clone(), true
}

// Orders lists copies of the resting orders of one side in priority order.
func (book *OrderBook) Orders(side Side) []*Order {
	return book.queue(side).orders()
}

// Stats returns level and order counts per side.
func (book *OrderBook) Stats() BookStats {
	return BookStats{
		AskDepthCount: book.askQueue.depthCount(),
		AskOrderCount: book.askQueue.orderCount(),
		BidDepthCount: book.bidQueue.depthCount(),
		BidOrderCount: book.bidQueue.orderCount(),
	}
}

// SequenceID returns the sequence ID of the last published BookLog.
func (book *OrderBook) SequenceID() uint64 {
	return book.seqID
}

func (book *OrderBook) queue(side Side) *queue {
	if side == Buy {
		return book.bidQueue
	}
	return book.askQueue
}

func (book *OrderBook) publish(logs []*BookLog) {
	if len(logs) == 0 {
		return
	}
	book.publishLog.Publish(logs...)
	for _, log := range logs {
		releaseBookLog(log)
	}
}

func validateOrder(side Side, kind PriceKind, quantity int64) error {
	if !side.Valid() {
		return ErrInvalidSide
	}
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if price, ok := kind.Price(); ok && !price.IsPositive() {
		return ErrInvalidPrice
	}
	return nil
}

// assertInvariants panics with *InvariantViolation when the book is corrupt.
func (book *OrderBook) assertInvariants(op string) {
	if bid, ask := book.bidQueue.bestLevel(), book.askQueue.bestLevel(); bid != nil && ask != nil {
		if bid.price.GreaterThanOrEqual(ask.price) {
			book.violation(op, "crossed book: bid "+bid.price.String()+" >= ask "+ask.price.String())
		}
	}

	if !book.checkInvariants {
		return
	}

	for _, q := range []*queue{book.bidQueue, book.askQueue} {
		if err := q.verify(); err != nil {
			book.violation(op, err.Error())
		}
	}

	if resting := book.bidQueue.orderCount() + book.askQueue.orderCount(); resting != int64(len(book.orders)) {
		book.violation(op, "order index out of step with book sides")
	}
}

func (book *OrderBook) violation(op, detail string) {
	v := &InvariantViolation{Op: op, Detail: detail}
	logger.Error().Str("session_id", book.sessionID).Str("op", op).Msg(v.Error())
	panic(v)
}
