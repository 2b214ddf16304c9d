package match

import (
	"fmt"

	"github.com/igrmk/treemap/v2"
	"github.com/shopspring/decimal"
)

// ErrSequenceGap is returned by AggregatedBook.Replay when a log arrives out of order.
var ErrSequenceGap = fmt.Errorf("%w: sequence gap", ErrInvalidParam)

// AggregatedBook maintains a simplified view of the order book,
// tracking only price levels and their aggregated quantities (depth).
// It is designed for downstream consumers that rebuild order book state
// from the BookLog stream.
type AggregatedBook struct {
	seqID uint64 // Last processed SequenceID for gap detection and deduplication
	ask   *treemap.TreeMap[decimal.Decimal, int64]
	bid   *treemap.TreeMap[decimal.Decimal, int64]
}

// NewAggregatedBook creates a new AggregatedBook instance with empty ask and bid sides.
func NewAggregatedBook() *AggregatedBook {
	return &AggregatedBook{
		ask: treemap.NewWithKeyCompare[decimal.Decimal, int64](func(a, b decimal.Decimal) bool {
			return a.LessThan(b)
		}),
		bid: treemap.NewWithKeyCompare[decimal.Decimal, int64](func(a, b decimal.Decimal) bool {
			return a.GreaterThan(b)
		}),
	}
}

// SequenceID returns the last processed sequence ID.
func (ab *AggregatedBook) SequenceID() uint64 {
	return ab.seqID
}

// Replay applies a BookLog event to update the aggregated book state.
// Logs at or below the current sequence are ignored as duplicates.
// Reject logs do not affect book state but still advance the sequence ID.
func (ab *AggregatedBook) Replay(log *BookLog) error {
	if log.SequenceID <= ab.seqID {
		return nil
	}
	if log.SequenceID != ab.seqID+1 {
		return fmt.Errorf("%w: expected %d, got %d", ErrSequenceGap, ab.seqID+1, log.SequenceID)
	}

	change := CalculateDepthChange(log)
	if change.QtyDiff != 0 {
		tree := ab.side(change.Side)
		qty, _ := tree.Get(change.Price)
		qty += change.QtyDiff
		switch {
		case qty == 0:
			tree.Del(change.Price)
		case qty < 0:
			return fmt.Errorf("%w: %s level %s would go negative", ErrInvalidParam, change.Side, change.Price)
		default:
			tree.Set(change.Price, qty)
		}
	}

	ab.seqID = log.SequenceID
	return nil
}

// OnRebuild resets the aggregated book so it can be rebuilt from a fresh stream.
func (ab *AggregatedBook) OnRebuild() {
	rebuilt := NewAggregatedBook()
	*ab = *rebuilt
}

// Depth returns the aggregated quantity at a specific price level for the given side.
// Returns zero if the price level does not exist.
func (ab *AggregatedBook) Depth(side Side, price decimal.Decimal) int64 {
	qty, _ := ab.side(side).Get(price)
	return qty
}

// Snapshot returns the levels of both sides, best first, truncated to limit
// levels. limit <= 0 returns everything.
func (ab *AggregatedBook) Snapshot(limit int) *Depth {
	return &Depth{
		UpdateID: ab.seqID,
		Asks:     levels(ab.ask, limit),
		Bids:     levels(ab.bid, limit),
	}
}

func (ab *AggregatedBook) side(side Side) *treemap.TreeMap[decimal.Decimal, int64] {
	if side == Buy {
		return ab.bid
	}
	return ab.ask
}

func levels(tree *treemap.TreeMap[decimal.Decimal, int64], limit int) []*DepthItem {
	result := make([]*DepthItem, 0, tree.Len())
	for it := tree.Iterator(); it.Valid(); it.Next() {
		if limit > 0 && len(result) == limit {
			break
		}
		result = append(result, &DepthItem{Price: it.Key(), Quantity: it.Value()})
	}
	return result
}
