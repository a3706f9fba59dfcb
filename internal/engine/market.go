package engine

import (
	"fmt"
	"math/bits"

	"hftbook/internal/common"
)

type MarketStatus uint8

const (
	MarketFilled MarketStatus = iota
	// MarketPartiallyFilled means the opposite side ran dry before the fund
	// was spent. It is a status, not an error.
	MarketPartiallyFilled
)

func (s MarketStatus) String() string {
	if s == MarketPartiallyFilled {
		return "partially filled"
	}
	return "filled"
}

// MarketResult reports how far a market order got and what it spent.
type MarketResult struct {
	TakerID   uint64
	Status    MarketStatus
	Filled    uint64 // Units taken off the book
	Spent     uint64 // Notional paid for them
	Remaining uint64 // Fund left when the book emptied
	Dust      uint64 // Fund too small to buy one more unit at the best price
}

// affordable returns price*size and whether fund covers it. A notional that
// overflows 64 bits is never affordable.
func affordable(fund, price, size uint64) (uint64, bool) {
	hi, lo := bits.Mul64(price, size)
	return lo, hi == 0 && fund >= lo
}

// NewMarketOrder sweeps the opposite side until fund, a notional budget, is
// spent. Market orders never rest.
func (book *OrderBook) NewMarketOrder(side common.Side, fund, takerID uint64) (MarketResult, error) {
	if err := book.enter(); err != nil {
		return MarketResult{}, err
	}
	defer book.leave()
	if !side.Valid() {
		book.log.Warn().Uint64("taker", takerID).Stringer("side", side).Msg("market order rejected")
		return MarketResult{}, fmt.Errorf("market order %d: %w", takerID, common.ErrInvalidOrder)
	}

	result := MarketResult{TakerID: takerID}
	cross := book.sideOf(side.Opposite())
	for fund > 0 {
		lvl, ok := cross.best()
		if !ok {
			break
		}
		resting, h, _ := lvl.front()
		book.log.Debug().
			Uint64("taker", takerID).
			Uint64("maker", resting.OrderID).
			Uint64("price", resting.Price).
			Msg("market match")

		fill := common.Fill{
			Kind:      common.FillMarket,
			TakerID:   takerID,
			MakerID:   resting.OrderID,
			MakerSide: resting.Side,
			Price:     resting.Price,
		}
		if cost, ok := affordable(fund, resting.Price, resting.Size); ok {
			fund -= cost
			fill.Quantity = resting.Size
			result.Spent += cost
			if _, err := book.remove(resting.OrderID); err != nil {
				panic(err)
			}
		} else {
			qty := fund / resting.Price
			result.Spent += qty * resting.Price
			result.Dust = fund - qty*resting.Price
			fund = 0
			if qty == 0 {
				break
			}
			fill.Quantity = qty
			fill.Remaining = book.reduce(indexEntry{level: lvl, h: h}, qty)
		}
		result.Filled += fill.Quantity
		book.reporter.ReportFill(fill)
	}

	if fund != 0 {
		result.Status = MarketPartiallyFilled
		result.Remaining = fund
		book.log.Info().
			Uint64("taker", takerID).
			Uint64("remaining", fund).
			Msg("market order partially filled")
	}
	return result, nil
}
