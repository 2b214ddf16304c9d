package match

import "github.com/shopspring/decimal"

// DepthChange represents a change in the order book depth.
type DepthChange struct {
	Side    Side
	Price   decimal.Decimal
	QtyDiff int64
}

// CalculateDepthChange calculates the depth change based on the book log.
// It returns a DepthChange struct indicating which side and price level should be updated.
// Note: For LogTypeMatch, the side returned is the Maker's side (opposite of the log's side).
func CalculateDepthChange(log *BookLog) DepthChange {
	switch log.Type {
	case LogTypeOpen:
		return DepthChange{
			Side:    log.Side,
			Price:   log.Price,
			QtyDiff: log.Quantity,
		}
	case LogTypeCancel:
		return DepthChange{
			Side:    log.Side,
			Price:   log.Price,
			QtyDiff: -log.Quantity,
		}
	case LogTypeMatch:
		// The log.Side is the Taker's side, liquidity leaves the Maker side.
		return DepthChange{
			Side:    log.Side.Opposite(),
			Price:   log.Price,
			QtyDiff: -log.Quantity,
		}
	case LogTypeReject:
		// Rejected remainders never entered the book.
		return DepthChange{}
	}

	return DepthChange{}
}
