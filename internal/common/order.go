package common

import "fmt"

type Side uint8

const (
	// Unspecified is only carried by synthetic events (market orders, trade
	// prints) which never rest in the book.
	Unspecified Side = iota
	Buy
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unspecified"
	}
}

// Opposite returns the side an order of this side trades against.
func (s Side) Opposite() Side {
	switch s {
	case Buy:
		return Sell
	case Sell:
		return Buy
	default:
		return Unspecified
	}
}

// Valid reports whether the side can rest in a book.
func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

type Order struct {
	Price   uint64 // Limit price in ticks
	Size    uint64 // Remaining unfilled quantity
	OrderID uint64 // Unique while resting
	Side    Side   // Order side
}

func (order Order) String() string {
	return fmt.Sprintf("oid: %d %-4s px: %d size: %d",
		order.OrderID,
		order.Side,
		order.Price,
		order.Size,
	)
}
