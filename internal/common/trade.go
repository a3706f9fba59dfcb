package common

import "fmt"

type FillKind uint8

const (
	// FillMatch is a resting order hit by an incoming limit order.
	FillMatch FillKind = iota
	// FillMarket is a resting order hit by a market order sweep.
	FillMarket
	// FillTrade is a resting order consumed by an external trade print.
	FillTrade
	// FillPruned is a resting order discarded because its level was
	// priced through by an external trade print.
	FillPruned
)

func (k FillKind) String() string {
	switch k {
	case FillMatch:
		return "match"
	case FillMarket:
		return "market"
	case FillTrade:
		return "trade"
	case FillPruned:
		return "pruned"
	default:
		return fmt.Sprintf("FillKind(%d)", uint8(k))
	}
}

// Fill accounts for one resting order touched by a matching operation.
type Fill struct {
	Kind      FillKind
	TakerID   uint64 // Incoming order id, zero for trade prints
	MakerID   uint64 // Resting order id
	MakerSide Side
	Price     uint64 // Resting price the fill happened at
	Quantity  uint64 // Quantity taken off the resting order
	Remaining uint64 // Resting size left after the fill
}

func (f Fill) String() string {
	return fmt.Sprintf("%s taker: %d maker: %d (%s) px: %d qty: %d left: %d",
		f.Kind,
		f.TakerID,
		f.MakerID,
		f.MakerSide,
		f.Price,
		f.Quantity,
		f.Remaining,
	)
}
