package engine

import (
	"fmt"

	"hftbook/internal/common"
)

// TradeResult describes what a TradeMessage removed from the book.
type TradeResult struct {
	Side         common.Side // Side the traded level was found on
	PrunedLevels int
	PrunedOrders int
	Filled       uint64 // Quantity consumed at the traded level
	Unconsumed   uint64 // Trade size left once the level ran out
}

// TradeMessage applies an external trade print of size at price. Every level
// priced through the trade is stale and discarded, then the traded level is
// consumed front to back.
func (book *OrderBook) TradeMessage(price, size uint64) (TradeResult, error) {
	if err := book.enter(); err != nil {
		return TradeResult{}, err
	}
	defer book.leave()

	sb := book.bids
	lvl, ok := sb.level(price)
	if !ok {
		sb = book.asks
		if lvl, ok = sb.level(price); !ok {
			book.log.Warn().Uint64("price", price).Msg("can not find trade level")
			return TradeResult{}, fmt.Errorf("trade at %d: %w", price, common.ErrLevelNotFound)
		}
	}
	result := TradeResult{Side: sb.side}

	for {
		top, ok := sb.best()
		if !ok || !sb.better(top.price, price) {
			break
		}
		result.PrunedOrders += book.prune(sb, top)
		result.PrunedLevels++
	}

	remaining := size
	for lvl.numOrders > 0 {
		resting, h, _ := lvl.front()
		fill := common.Fill{
			Kind:      common.FillTrade,
			MakerID:   resting.OrderID,
			MakerSide: resting.Side,
			Price:     resting.Price,
		}
		if resting.Size <= remaining {
			book.log.Debug().Uint64("order", resting.OrderID).Msg("trade fill")
			remaining -= resting.Size
			fill.Quantity = resting.Size
			// Dropping the last order also drops the level.
			if _, err := book.remove(resting.OrderID); err != nil {
				panic(err)
			}
			book.reporter.ReportFill(fill)
			continue
		}

		if remaining > 0 {
			book.log.Debug().Uint64("order", resting.OrderID).Msg("trade partial fill")
			fill.Quantity = remaining
			fill.Remaining = book.reduce(indexEntry{level: lvl, h: h}, remaining)
			book.reporter.ReportFill(fill)
			remaining = 0
		}
		break
	}

	result.Filled = size - remaining
	result.Unconsumed = remaining
	return result, nil
}

// prune discards a whole level in one step: its orders leave the index, the
// side totals drop by the level aggregates and the level leaves the tree.
func (book *OrderBook) prune(sb *sideBook, lvl *PriceLevel) int {
	n := 0
	lvl.each(func(order common.Order) bool {
		book.log.Debug().Uint64("order", order.OrderID).Msg("level delete")
		delete(book.index, order.OrderID)
		book.reporter.ReportFill(common.Fill{
			Kind:      common.FillPruned,
			MakerID:   order.OrderID,
			MakerSide: order.Side,
			Price:     order.Price,
			Quantity:  order.Size,
		})
		n++
		return true
	})
	sb.nOrders -= lvl.numOrders
	sb.quantity -= lvl.size
	sb.drop(lvl)
	return n
}
