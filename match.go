package match

import "time"

// match walks the opposite side best price first, FIFO within a level, until
// the taker is filled or the next level is outside its price constraint.
// Trades are appended to the trade log as they happen.
func (book *OrderBook) match(taker *Order, now time.Time, logs []*BookLog) ([]Trade, []*BookLog) {
	target := book.queue(taker.Side.Opposite())
	trades := make([]Trade, 0, 4)

	for taker.Remaining > 0 {
		unit := target.bestLevel()
		if unit == nil || !taker.Kind.accepts(taker.Side, unit.price) {
			break
		}

		maker := unit.head
		qty := min(taker.Remaining, maker.Remaining)

		trade := Trade{
			Sequence:  uint64(len(book.trades)),
			Price:     unit.price,
			Quantity:  qty,
			TakerSide: taker.Side,
			CreatedAt: now,
		}
		if taker.Side == Buy {
			trade.BuyOrderID, trade.SellOrderID = taker.ID, maker.ID
		} else {
			trade.BuyOrderID, trade.SellOrderID = maker.ID, taker.ID
		}

		taker.Remaining -= qty
		target.fill(maker, qty)

		book.trades = append(book.trades, trade)
		trades = append(trades, trade)
		book.seqID++
		logs = append(logs, newMatchLog(book.seqID, book.sessionID, taker, maker, &trade))

		if maker.Remaining == 0 {
			target.remove(maker)
			delete(book.orders, maker.ID)
			maker.State = StateFilled
		}
	}

	return trades, logs
}
