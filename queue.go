package match

import (
	"fmt"

	"github.com/huandu/skiplist"
	"github.com/shopspring/decimal"
)

// priceUnit is one price level: a FIFO of orders and their aggregate quantity.
type priceUnit struct {
	price    decimal.Decimal
	totalQty int64
	head     *Order
	tail     *Order
	count    int64
	element  *skiplist.Element
}

// queue is one side of the book. Levels are kept best price first.
type queue struct {
	side        Side
	totalOrders int64
	depthList   *skiplist.SkipList
}

// NewBuyerQueue creates a new queue for buy orders (bids).
// The levels are sorted by price in descending order (highest price first).
func NewBuyerQueue() *queue {
	return &queue{
		side: Buy,
		depthList: skiplist.New(skiplist.GreaterThanFunc(func(lhs, rhs any) int {
			d1, _ := lhs.(decimal.Decimal)
			d2, _ := rhs.(decimal.Decimal)
			return -d1.Cmp(d2)
		})),
	}
}

// NewSellerQueue creates a new queue for sell orders (asks).
// The levels are sorted by price in ascending order (lowest price first).
func NewSellerQueue() *queue {
	return &queue{
		side: Sell,
		depthList: skiplist.New(skiplist.GreaterThanFunc(func(lhs, rhs any) int {
			d1, _ := lhs.(decimal.Decimal)
			d2, _ := rhs.(decimal.Decimal)
			return d1.Cmp(d2)
		})),
	}
}

// level returns the price unit at price, or nil.
func (q *queue) level(price decimal.Decimal) *priceUnit {
	el := q.depthList.Get(price)
	if el == nil {
		return nil
	}
	unit, _ := el.Value.(*priceUnit)
	return unit
}

// pushBack appends a resting order to the FIFO tail of its price level,
// creating the level when none exists.
func (q *queue) pushBack(order *Order) {
	price := order.Price()
	unit := q.level(price)
	if unit == nil {
		unit = &priceUnit{price: price}
		unit.element = q.depthList.Set(price, unit)
	}

	order.prev = unit.tail
	order.next = nil
	if unit.tail != nil {
		unit.tail.next = order
	}
	unit.tail = order
	if unit.head == nil {
		unit.head = order
	}
	order.level = unit

	unit.totalQty += order.Remaining
	unit.count++
	q.totalOrders++
}

// remove unlinks an order from its level and drops the level once it is empty.
func (q *queue) remove(order *Order) {
	unit := order.level
	if unit == nil {
		return
	}

	if order.prev != nil {
		order.prev.next = order.next
	} else {
		unit.head = order.next
	}

	if order.next != nil {
		order.next.prev = order.prev
	} else {
		unit.tail = order.prev
	}

	order.next = nil
	order.prev = nil
	order.level = nil

	unit.totalQty -= order.Remaining
	unit.count--
	q.totalOrders--

	if unit.count == 0 {
		q.depthList.RemoveElement(unit.element)
	}
}

// fill reduces a resting order in place, keeping the level aggregate in step.
func (q *queue) fill(order *Order, qty int64) {
	order.Remaining -= qty
	if order.level != nil {
		order.level.totalQty -= qty
	}
}

// bestLevel returns the first level in priority order.
func (q *queue) bestLevel() *priceUnit {
	el := q.depthList.Front()
	if el == nil {
		return nil
	}
	unit, _ := el.Value.(*priceUnit)
	return unit
}

// peekHeadOrder returns the order at the front of the queue (best price, earliest sequence).
func (q *queue) peekHeadOrder() *Order {
	unit := q.bestLevel()
	if unit == nil {
		return nil
	}
	return unit.head
}

// orderCount returns the total number of orders in the queue.
func (q *queue) orderCount() int64 {
	return q.totalOrders
}

// depthCount returns the number of price levels in the queue.
func (q *queue) depthCount() int64 {
	return int64(q.depthList.Len())
}

// depth returns the aggregated levels, best first. limit <= 0 returns all of them.
func (q *queue) depth(limit int) []*DepthItem {
	n := q.depthList.Len()
	if limit > 0 && limit < n {
		n = limit
	}
	result := make([]*DepthItem, 0, n)

	for el := q.depthList.Front(); el != nil && len(result) < n; el = el.Next() {
		unit, _ := el.Value.(*priceUnit)
		result = append(result, &DepthItem{
			Price:    unit.price,
			Quantity: unit.totalQty,
			Count:    unit.count,
		})
	}

	return result
}

// orders returns detached copies of every resting order in priority order.
func (q *queue) orders() []*Order {
	result := make([]*Order, 0, q.totalOrders)

	for el := q.depthList.Front(); el != nil; el = el.Next() {
		unit, _ := el.Value.(*priceUnit)
		for order := unit.head; order != nil; order = order.next {
			result = append(result, order.clone())
		}
	}

	return result
}

// verify walks every level and checks ordering, FIFO sequence and aggregates.
func (q *queue) verify() error {
	var prev *priceUnit
	var orders int64

	for el := q.depthList.Front(); el != nil; el = el.Next() {
		unit, _ := el.Value.(*priceUnit)
		if unit.count == 0 || unit.head == nil {
			return fmt.Errorf("%s level %s is empty but still listed", q.side, unit.price)
		}

		if prev != nil {
			if q.side == Buy && !unit.price.LessThan(prev.price) ||
				q.side == Sell && !unit.price.GreaterThan(prev.price) {
				return fmt.Errorf("%s levels out of order: %s after %s", q.side, unit.price, prev.price)
			}
		}

		var sum, count int64
		var lastSeq uint64
		for order := unit.head; order != nil; order = order.next {
			if order.Remaining <= 0 {
				return fmt.Errorf("order %d rests with quantity %d", order.ID, order.Remaining)
			}
			if count > 0 && order.Sequence <= lastSeq {
				return fmt.Errorf("level %s breaks FIFO: seq %d after %d", unit.price, order.Sequence, lastSeq)
			}
			if !order.Price().Equal(unit.price) {
				return fmt.Errorf("order %d at %s sits in level %s", order.ID, order.Price(), unit.price)
			}
			lastSeq = order.Sequence
			sum += order.Remaining
			count++
		}

		if sum != unit.totalQty || count != unit.count {
			return fmt.Errorf("level %s aggregate %d/%d, members sum %d/%d", unit.price, unit.totalQty, unit.count, sum, count)
		}

		orders += count
		prev = unit
	}

	if orders != q.totalOrders {
		return fmt.Errorf("%s order count %d, levels hold %d", q.side, q.totalOrders, orders)
	}
	return nil
}
