package match

import (
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func createTestOrderBook(t *testing.T) (*OrderBook, *MemoryPublishLog) {
	t.Helper()

	publish := NewMemoryPublishLog()
	book := NewOrderBook(WithPublishLog(publish))

	// bids 90, 80, 70 / asks 110, 120, 130, one unit each
	for _, p := range []int64{90, 80, 70} {
		_, err := book.SubmitLimitOrder(Buy, d(p), 1)
		require.NoError(t, err)
	}
	for _, p := range []int64{110, 120, 130} {
		_, err := book.SubmitLimitOrder(Sell, d(p), 1)
		require.NoError(t, err)
	}

	return book, publish
}

func levelsOf(items []*DepthItem) [][2]string {
	result := make([][2]string, 0, len(items))
	for _, item := range items {
		result = append(result, [2]string{item.Price.String(), strconv.FormatInt(item.Quantity, 10)})
	}
	return result
}

func TestScenarioA(t *testing.T) {
	book := NewOrderBook()

	res, err := book.SubmitLimitOrder(Sell, d(100), 10)
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
	require.NotNil(t, res.Resting)
	assert.Equal(t, [][2]string{{"100", "10"}}, levelsOf(book.Snapshot(0).Asks))

	res, err = book.SubmitLimitOrder(Buy, d(101), 5)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, "100", res.Trades[0].Price.String())
	assert.Equal(t, int64(5), res.Trades[0].Quantity)
	assert.Nil(t, res.Resting)
	assert.Equal(t, StateFilled, res.Order.State)
	assert.Equal(t, [][2]string{{"100", "5"}}, levelsOf(book.Snapshot(0).Asks))
	assert.Empty(t, book.Snapshot(0).Bids)
}

func TestScenarioB(t *testing.T) {
	book := NewOrderBook()
	_, err := book.SubmitLimitOrder(Sell, d(100), 10)
	require.NoError(t, err)
	_, err = book.SubmitLimitOrder(Buy, d(101), 5)
	require.NoError(t, err)

	res, err := book.SubmitMarketOrder(Buy, 8)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, "100", res.Trades[0].Price.String())
	assert.Equal(t, int64(5), res.Trades[0].Quantity)
	assert.Equal(t, int64(3), res.Unfilled)
	assert.Nil(t, res.Resting)
	assert.Equal(t, StateRemainderDiscarded, res.Order.State)
	assert.Empty(t, book.Snapshot(0).Asks)
	assert.Empty(t, book.Snapshot(0).Bids)
}

func TestScenarioC(t *testing.T) {
	book := NewOrderBook()

	first, err := book.SubmitLimitOrder(Buy, d(50), 10)
	require.NoError(t, err)
	second, err := book.SubmitLimitOrder(Buy, d(50), 5)
	require.NoError(t, err)
	assert.Greater(t, second.Order.Sequence, first.Order.Sequence)

	res, err := book.SubmitLimitOrder(Sell, d(50), 12)
	require.NoError(t, err)
	require.Len(t, res.Trades, 2)

	assert.Equal(t, int64(10), res.Trades[0].Quantity)
	assert.Equal(t, first.Order.ID, res.Trades[0].BuyOrderID)
	assert.Equal(t, "50", res.Trades[0].Price.String())

	assert.Equal(t, int64(2), res.Trades[1].Quantity)
	assert.Equal(t, second.Order.ID, res.Trades[1].BuyOrderID)
	assert.Equal(t, "50", res.Trades[1].Price.String())

	assert.Nil(t, res.Resting)
	assert.Equal(t, [][2]string{{"50", "3"}}, levelsOf(book.Snapshot(0).Bids))
}

func TestScenarioD(t *testing.T) {
	book := NewOrderBook()

	res, err := book.SubmitLimitOrder(Buy, d(50), 10)
	require.NoError(t, err)

	cancel := book.Cancel(res.Order.ID)
	assert.Equal(t, CancelStatusCancelled, cancel.Status)
	assert.NoError(t, cancel.Err())
	assert.Empty(t, book.Snapshot(0).Bids)

	cancel = book.Cancel(res.Order.ID)
	assert.Equal(t, CancelStatusNotFound, cancel.Status)
	assert.ErrorIs(t, cancel.Err(), ErrOrderNotFound)
}

func TestLimitOrders(t *testing.T) {
	t.Run("take all orders", func(t *testing.T) {
		book, publish := createTestOrderBook(t)

		res, err := book.SubmitLimitOrder(Buy, d(1000), 10)
		require.NoError(t, err)

		require.Len(t, res.Trades, 3)
		assert.Equal(t, "110", res.Trades[0].Price.String())
		assert.Equal(t, "120", res.Trades[1].Price.String())
		assert.Equal(t, "130", res.Trades[2].Price.String())

		require.NotNil(t, res.Resting)
		assert.Equal(t, int64(7), res.Resting.Remaining)
		assert.Equal(t, StateResting, res.Order.State)

		stats := book.Stats()
		assert.Equal(t, int64(0), stats.AskDepthCount)
		assert.Equal(t, int64(4), stats.BidDepthCount)

		// 6 setup opens + 3 matches + 1 open (remaining)
		assert.Equal(t, 10, publish.Count())
		match1 := publish.Get(6)
		assert.Equal(t, LogTypeMatch, match1.Type)
		assert.Equal(t, uint64(3), match1.MakerOrderID)
		assert.Equal(t, res.Order.ID, match1.OrderID)
		assert.Equal(t, Buy, match1.Side)
		open := publish.Get(9)
		assert.Equal(t, LogTypeOpen, open.Type)
		assert.Equal(t, int64(7), open.Quantity)
		assert.Equal(t, "1000", open.Price.String())
	})

	t.Run("no match rests at own price", func(t *testing.T) {
		book, _ := createTestOrderBook(t)

		res, err := book.SubmitLimitOrder(Sell, d(100), 2)
		require.NoError(t, err)
		assert.Empty(t, res.Trades)
		require.NotNil(t, res.Resting)

		bbo := book.BestBidAsk()
		assert.Equal(t, "90", bbo.Bid.Decimal.String())
		assert.Equal(t, "100", bbo.Ask.Decimal.String())
		assert.Equal(t, "10", bbo.Spread().Decimal.String())
	})

	t.Run("taker receives price improvement", func(t *testing.T) {
		book, _ := createTestOrderBook(t)

		res, err := book.SubmitLimitOrder(Sell, d(75), 3)
		require.NoError(t, err)

		require.Len(t, res.Trades, 2)
		assert.Equal(t, "90", res.Trades[0].Price.String())
		assert.Equal(t, "80", res.Trades[1].Price.String())
		assert.Equal(t, Sell, res.Trades[0].TakerSide)
		assert.Equal(t, res.Order.ID, res.Trades[0].SellOrderID)
		assert.Equal(t, int64(1), res.Unfilled+res.Resting.Remaining)

		bbo := book.BestBidAsk()
		assert.Equal(t, "70", bbo.Bid.Decimal.String())
		assert.Equal(t, "75", bbo.Ask.Decimal.String())
	})

	t.Run("partial fill keeps maker at head", func(t *testing.T) {
		book := NewOrderBook()
		maker, err := book.SubmitLimitOrder(Sell, d(10), 5)
		require.NoError(t, err)
		_, err = book.SubmitLimitOrder(Sell, d(10), 5)
		require.NoError(t, err)

		_, err = book.SubmitLimitOrder(Buy, d(10), 2)
		require.NoError(t, err)

		orders := book.Orders(Sell)
		require.Len(t, orders, 2)
		assert.Equal(t, maker.Order.ID, orders[0].ID)
		assert.Equal(t, int64(3), orders[0].Remaining)
		assert.Equal(t, int64(2), orders[0].Filled())
	})
}

func TestMarketOrders(t *testing.T) {
	t.Run("walks levels", func(t *testing.T) {
		book, publish := createTestOrderBook(t)

		res, err := book.SubmitMarketOrder(Sell, 2)
		require.NoError(t, err)
		require.Len(t, res.Trades, 2)
		assert.Equal(t, "90", res.Trades[0].Price.String())
		assert.Equal(t, "80", res.Trades[1].Price.String())
		assert.Equal(t, int64(0), res.Unfilled)
		assert.Equal(t, StateFilled, res.Order.State)
		assert.Equal(t, LogTypeMatch, publish.Get(publish.Count()-1).Type)
	})

	t.Run("empty book discards everything", func(t *testing.T) {
		publish := NewMemoryPublishLog()
		book := NewOrderBook(WithPublishLog(publish))

		res, err := book.SubmitMarketOrder(Buy, 4)
		require.NoError(t, err)
		assert.Empty(t, res.Trades)
		assert.Equal(t, int64(4), res.Unfilled)
		assert.Equal(t, StateRemainderDiscarded, res.Order.State)

		require.Equal(t, 1, publish.Count())
		reject := publish.Get(0)
		assert.Equal(t, LogTypeReject, reject.Type)
		assert.Equal(t, RejectReason("no_liquidity"), reject.RejectReason)
		assert.Equal(t, int64(4), reject.Quantity)

		_, ok := book.Order(res.Order.ID)
		assert.False(t, ok)
	})
}

func TestValidation(t *testing.T) {
	publish := NewMemoryPublishLog()
	book := NewOrderBook(WithPublishLog(publish))

	_, err := book.SubmitLimitOrder(Buy, d(10), 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	assert.ErrorIs(t, err, ErrInvalidParam)

	_, err = book.SubmitLimitOrder(Buy, d(10), -3)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = book.SubmitLimitOrder(Sell, d(0), 1)
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, err = book.SubmitLimitOrder(Sell, d(-5), 1)
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, err = book.SubmitMarketOrder(Buy, 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = book.Submit(Side(9), MarketPrice(), 1)
	assert.ErrorIs(t, err, ErrInvalidSide)

	// nothing changed, not even the id counter
	assert.Equal(t, 0, publish.Count())
	assert.Equal(t, uint64(0), book.SequenceID())
	res, err := book.SubmitLimitOrder(Buy, d(10), 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), res.Order.ID)
}

func TestCancelOrder(t *testing.T) {
	t.Run("cancel keeps fifo of the others", func(t *testing.T) {
		book := NewOrderBook()
		a, _ := book.SubmitLimitOrder(Sell, d(10), 1)
		b, _ := book.SubmitLimitOrder(Sell, d(10), 2)
		c, _ := book.SubmitLimitOrder(Sell, d(10), 3)

		assert.Equal(t, CancelStatusCancelled, book.Cancel(b.Order.ID).Status)
		assert.Equal(t, [][2]string{{"10", "4"}}, levelsOf(book.Snapshot(0).Asks))

		res, err := book.SubmitMarketOrder(Buy, 4)
		require.NoError(t, err)
		require.Len(t, res.Trades, 2)
		assert.Equal(t, a.Order.ID, res.Trades[0].SellOrderID)
		assert.Equal(t, c.Order.ID, res.Trades[1].SellOrderID)
	})

	t.Run("filled order is not found", func(t *testing.T) {
		book := NewOrderBook()
		maker, _ := book.SubmitLimitOrder(Sell, d(10), 1)
		_, _ = book.SubmitLimitOrder(Buy, d(10), 1)

		assert.Equal(t, CancelStatusNotFound, book.Cancel(maker.Order.ID).Status)
	})

	t.Run("unknown id", func(t *testing.T) {
		publish := NewMemoryPublishLog()
		book := NewOrderBook(WithPublishLog(publish))

		res := book.Cancel(42)
		assert.Equal(t, uint64(42), res.OrderID)
		assert.Equal(t, CancelStatusNotFound, res.Status)
		assert.Equal(t, 0, publish.Count())
	})

	t.Run("publishes cancel log with remaining quantity", func(t *testing.T) {
		publish := NewMemoryPublishLog()
		book := NewOrderBook(WithPublishLog(publish))
		maker, _ := book.SubmitLimitOrder(Buy, d(10), 5)
		_, _ = book.SubmitMarketOrder(Sell, 2)

		book.Cancel(maker.Order.ID)
		last := publish.Get(publish.Count() - 1)
		assert.Equal(t, LogTypeCancel, last.Type)
		assert.Equal(t, int64(3), last.Quantity)
		assert.Equal(t, "10", last.Price.String())
		assert.Len(t, book.Trades(), 1)
	})
}

func TestQueries(t *testing.T) {
	t.Run("best bid ask on empty book", func(t *testing.T) {
		book := NewOrderBook()
		bbo := book.BestBidAsk()
		assert.False(t, bbo.Bid.Valid)
		assert.False(t, bbo.Ask.Valid)
		assert.False(t, bbo.Spread().Valid)
	})

	t.Run("snapshot depth", func(t *testing.T) {
		book, _ := createTestOrderBook(t)

		snap := book.Snapshot(2)
		assert.Equal(t, [][2]string{{"90", "1"}, {"80", "1"}}, levelsOf(snap.Bids))
		assert.Equal(t, [][2]string{{"110", "1"}, {"120", "1"}}, levelsOf(snap.Asks))
		assert.Equal(t, book.SequenceID(), snap.UpdateID)

		all := book.Snapshot(0)
		assert.Len(t, all.Bids, 3)
		assert.Len(t, all.Asks, 3)

		// read-only: mutating the projection does not touch the book
		all.Bids[0].Quantity = 99
		assert.Equal(t, int64(1), book.Snapshot(1).Bids[0].Quantity)
	})

	t.Run("trade log is append only and detached", func(t *testing.T) {
		book, _ := createTestOrderBook(t)
		_, _ = book.SubmitMarketOrder(Buy, 2)
		_, _ = book.SubmitMarketOrder(Sell, 1)

		trades := book.Trades()
		require.Len(t, trades, 3)
		for i, trade := range trades {
			assert.Equal(t, uint64(i), trade.Sequence)
		}
		assert.Equal(t, Buy, trades[0].TakerSide)
		assert.Equal(t, Sell, trades[2].TakerSide)

		trades[0].Quantity = 1000
		assert.Equal(t, int64(1), book.Trades()[0].Quantity)

		since := book.TradesSince(2)
		require.Len(t, since, 1)
		assert.Equal(t, uint64(2), since[0].Sequence)
		assert.Empty(t, book.TradesSince(10))
	})

	t.Run("order lookup returns copies", func(t *testing.T) {
		book := NewOrderBook()
		res, _ := book.SubmitLimitOrder(Buy, d(10), 5)

		res.Resting.Remaining = 1
		order, ok := book.Order(res.Order.ID)
		require.True(t, ok)
		assert.Equal(t, int64(5), order.Remaining)
		assert.Equal(t, "limit@10", order.Kind.String())
	})
}

func TestClockAndSession(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	publish := NewMemoryPublishLog()
	book := NewOrderBook(WithClock(func() time.Time { return fixed }), WithPublishLog(publish))
	other := NewOrderBook()

	assert.NotEmpty(t, book.SessionID())
	assert.NotEqual(t, book.SessionID(), other.SessionID())

	_, _ = book.SubmitLimitOrder(Sell, d(10), 1)
	res, _ := book.SubmitLimitOrder(Buy, d(10), 1)

	assert.Equal(t, fixed, res.Trades[0].CreatedAt)
	assert.Equal(t, fixed.UnixNano(), res.Order.Timestamp)
	for _, log := range publish.Logs() {
		assert.Equal(t, book.SessionID(), log.SessionID)
	}
}

func TestInvariantViolationPanics(t *testing.T) {
	book := NewOrderBook()
	_, _ = book.SubmitLimitOrder(Sell, d(10), 5)

	book.askQueue.bestLevel().totalQty = 1

	assert.PanicsWithError(t, "invariant violation after submit: level 10 aggregate 1/1, members sum 5/1", func() {
		_, _ = book.SubmitLimitOrder(Sell, d(20), 1)
	})
}

func TestInvariantChecksDisabled(t *testing.T) {
	book := NewOrderBook(WithInvariantChecks(false))
	_, _ = book.SubmitLimitOrder(Sell, d(10), 5)

	book.askQueue.bestLevel().totalQty = 1

	assert.NotPanics(t, func() {
		_, _ = book.SubmitLimitOrder(Sell, d(20), 1)
	})
}
