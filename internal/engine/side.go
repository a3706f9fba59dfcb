package engine

import (
	"github.com/tidwall/btree"

	"hftbook/internal/common"
)

type PriceLevels = btree.BTreeG[*PriceLevel]

// sideBook is one side of the book. Levels are kept best first: bids sorted
// greatest price first, asks least price first, so Min is always top of book.
type sideBook struct {
	side   common.Side
	levels *PriceLevels
	// Count of resting orders and their total size across all levels.
	nOrders  uint64
	quantity uint64
}

func newSideBook(side common.Side, degree int) *sideBook {
	var less func(a, b *PriceLevel) bool
	switch side {
	case common.Buy:
		// Sorted greatest first.
		less = func(a, b *PriceLevel) bool { return a.price > b.price }
	case common.Sell:
		// Sorted least first.
		less = func(a, b *PriceLevel) bool { return a.price < b.price }
	default:
		panic("side book requires buy or sell")
	}
	return &sideBook{
		side: side,
		levels: btree.NewBTreeGOptions(less, btree.Options{
			Degree:  degree,
			NoLocks: true,
		}),
	}
}

// better reports whether price a ranks ahead of price b on this side.
func (sb *sideBook) better(a, b uint64) bool {
	if sb.side == common.Buy {
		return a > b
	}
	return a < b
}

func (sb *sideBook) best() (*PriceLevel, bool) {
	return sb.levels.MinMut()
}

func (sb *sideBook) level(price uint64) (*PriceLevel, bool) {
	// Levels comparator only accounts for price, so a dummy level works as
	// the search key.
	return sb.levels.GetMut(&PriceLevel{price: price})
}

// upsert returns the level at price, creating it when absent.
func (sb *sideBook) upsert(price uint64) *PriceLevel {
	if lvl, ok := sb.level(price); ok {
		return lvl
	}
	lvl := newPriceLevel(sb.side, price)
	sb.levels.Set(lvl)
	return lvl
}

func (sb *sideBook) drop(lvl *PriceLevel) {
	if _, ok := sb.levels.Delete(lvl); !ok {
		panic("side book: dropping a level that is not in the book: " + lvl.String())
	}
}

func (sb *sideBook) empty() bool {
	return sb.levels.Len() == 0
}

func (sb *sideBook) clear() {
	sb.levels.Clear()
	sb.nOrders = 0
	sb.quantity = 0
}
