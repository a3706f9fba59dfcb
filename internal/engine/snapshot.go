package engine

import (
	"errors"
	"fmt"
	"iter"

	"hftbook/internal/common"
)

// Orders yields every resting order: asks from the lowest price up, then bids
// from the highest price down, oldest first within a level. The sequence is
// lazy and can be ranged over any number of times. The book refuses
// mutations while a traversal is running.
func (book *OrderBook) Orders() iter.Seq[common.Order] {
	return func(yield func(common.Order) bool) {
		book.traversals++
		defer func() { book.traversals-- }()

		for _, sb := range []*sideBook{book.asks, book.bids} {
			more := true
			sb.levels.Scan(func(lvl *PriceLevel) bool {
				more = lvl.each(yield)
				return more
			})
			if !more {
				return
			}
		}
	}
}

// DumpBook calls handler once per resting order, in Orders order.
func (book *OrderBook) DumpBook(handler func(order common.Order)) {
	for order := range book.Orders() {
		handler(order)
	}
}

// LevelInfo is the aggregate view of one price level.
type LevelInfo struct {
	Price     uint64
	NumOrders uint64
	Size      uint64
}

// Levels returns the aggregated levels of one side, best price first.
func (book *OrderBook) Levels(side common.Side) []LevelInfo {
	if !side.Valid() {
		return nil
	}
	sb := book.sideOf(side)
	levels := make([]LevelInfo, 0, sb.levels.Len())
	sb.levels.Scan(func(lvl *PriceLevel) bool {
		levels = append(levels, LevelInfo{
			Price:     lvl.price,
			NumOrders: lvl.numOrders,
			Size:      lvl.size,
		})
		return true
	})
	return levels
}

// BestBid returns the highest resting buy price.
func (book *OrderBook) BestBid() (uint64, bool) {
	return bestPrice(book.bids)
}

// BestAsk returns the lowest resting sell price.
func (book *OrderBook) BestAsk() (uint64, bool) {
	return bestPrice(book.asks)
}

func bestPrice(sb *sideBook) (uint64, bool) {
	lvl, ok := sb.levels.Min()
	if !ok {
		return 0, false
	}
	return lvl.price, true
}

// Len returns the number of resting orders.
func (book *OrderBook) Len() int {
	return len(book.index)
}

// Depth returns the resting order count and total size of one side.
func (book *OrderBook) Depth(side common.Side) (orders, size uint64) {
	if !side.Valid() {
		return 0, 0
	}
	sb := book.sideOf(side)
	return sb.nOrders, sb.quantity
}

// Reset drops every resting order.
func (book *OrderBook) Reset() error {
	if err := book.enter(); err != nil {
		return err
	}
	defer book.leave()
	book.bids.clear()
	book.asks.clear()
	clear(book.index)
	book.log.Debug().Msg("book reset")
	return nil
}

// CheckInvariants walks the whole book and reports every place where the
// levels, the side totals and the order index disagree, or where the book is
// crossed.
func (book *OrderBook) CheckInvariants() error {
	var errs []error
	seen := 0

	for _, sb := range []*sideBook{book.bids, book.asks} {
		var nOrders, quantity uint64
		sb.levels.Scan(func(lvl *PriceLevel) bool {
			if lvl.numOrders == 0 {
				errs = append(errs, fmt.Errorf("%s: empty level in book", lvl))
			}
			var count, size uint64
			for i := lvl.head; i != nilSlot; i = lvl.slots[i].next {
				s := &lvl.slots[i]
				count++
				size += s.order.Size
				if s.order.Side != sb.side || s.order.Price != lvl.price {
					errs = append(errs, fmt.Errorf("%s: misplaced order %s", lvl, s.order))
				}
				if s.order.Size == 0 {
					errs = append(errs, fmt.Errorf("%s: zero size order %s", lvl, s.order))
				}
				entry, ok := book.index[s.order.OrderID]
				if !ok || entry.level != lvl || entry.h != (handle{slot: i, gen: s.gen}) {
					errs = append(errs, fmt.Errorf("%s: index disagrees on order %d", lvl, s.order.OrderID))
				}
			}
			if count != lvl.numOrders || size != lvl.size {
				errs = append(errs, fmt.Errorf("%s: aggregates do not match queue (%d orders, size %d)", lvl, count, size))
			}
			nOrders += count
			quantity += size
			return true
		})
		if nOrders != sb.nOrders || quantity != sb.quantity {
			errs = append(errs, fmt.Errorf("%s side: totals %d/%d do not match levels %d/%d",
				sb.side, sb.nOrders, sb.quantity, nOrders, quantity))
		}
		seen += int(nOrders)
	}

	if seen != len(book.index) {
		errs = append(errs, fmt.Errorf("index holds %d orders, books hold %d", len(book.index), seen))
	}
	if bid, ok := book.BestBid(); ok {
		if ask, ok := book.BestAsk(); ok && bid >= ask {
			errs = append(errs, fmt.Errorf("book crossed: bid %d >= ask %d", bid, ask))
		}
	}
	return errors.Join(errs...)
}
