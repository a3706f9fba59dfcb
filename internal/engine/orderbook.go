package engine

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hftbook/internal/common"
)

// Reporter receives every fill the book produces, synchronously and in the
// order the fills happen.
type Reporter interface {
	ReportFill(fill common.Fill)
}

type nopReporter struct{}

func (nopReporter) ReportFill(common.Fill) {}

// Option configures an OrderBook in New.
type Option func(*OrderBook)

// WithLogger sets the logger. The book adds its id to every line.
func WithLogger(logger zerolog.Logger) Option {
	return func(book *OrderBook) { book.log = logger }
}

// WithReporter sets the Reporter that receives fills. The default drops them.
func WithReporter(reporter Reporter) Option {
	return func(book *OrderBook) { book.reporter = reporter }
}

// WithDegree sets the node degree of the price level trees.
func WithDegree(degree int) Option {
	return func(book *OrderBook) { book.degree = degree }
}

// OrderBook is the resting liquidity of a single instrument. It is not safe
// for concurrent use: exactly one goroutine may drive it at a time.
type OrderBook struct {
	id       string
	log      zerolog.Logger
	reporter Reporter
	degree   int

	bids  *sideBook
	asks  *sideBook
	index orderIndex

	// Number of live Orders() traversals. Mutations are refused while
	// non-zero.
	traversals int
	// Set while a mutation runs, so a Reporter calling back into the book
	// is refused instead of seeing a half applied operation.
	busy bool
}

// New returns an empty book with a fresh instance id.
func New(opts ...Option) *OrderBook {
	book := &OrderBook{
		id:       uuid.New().String(),
		log:      zerolog.Nop(),
		reporter: nopReporter{},
		index:    make(orderIndex),
	}
	for _, opt := range opts {
		opt(book)
	}
	book.log = book.log.With().Str("book", book.id).Logger()
	book.bids = newSideBook(common.Buy, book.degree)
	book.asks = newSideBook(common.Sell, book.degree)
	return book
}

// ID is the instance id attached to every log line of this book.
func (book *OrderBook) ID() string { return book.id }

func (book *OrderBook) sideOf(side common.Side) *sideBook {
	if side == common.Buy {
		return book.bids
	}
	return book.asks
}

// enter claims the book for one mutation. Every successful enter is paired
// with a leave.
func (book *OrderBook) enter() error {
	if book.busy {
		return common.ErrBookBusy
	}
	if book.traversals > 0 {
		return common.ErrTraversalActive
	}
	book.busy = true
	return nil
}

func (book *OrderBook) leave() {
	book.busy = false
}

// insert rests the order at the tail of its price level.
func (book *OrderBook) insert(order common.Order) error {
	if _, ok := book.index[order.OrderID]; ok {
		book.log.Warn().Uint64("order", order.OrderID).Msg("duplicate order in add")
		return fmt.Errorf("insert %d: %w", order.OrderID, common.ErrDuplicateOrder)
	}

	sb := book.sideOf(order.Side)
	lvl := sb.upsert(order.Price)
	h := lvl.pushBack(order)
	sb.nOrders++
	sb.quantity += order.Size
	book.index[order.OrderID] = indexEntry{level: lvl, h: h}
	return nil
}

// remove takes the order out of its level and the index, dropping the level
// once it is empty.
func (book *OrderBook) remove(id uint64) (common.Order, error) {
	entry, ok := book.index[id]
	if !ok {
		return common.Order{}, fmt.Errorf("remove %d: %w", id, common.ErrOrderNotFound)
	}

	lvl := entry.level
	sb := book.sideOf(lvl.side)
	order := lvl.unlink(entry.h)
	sb.nOrders--
	sb.quantity -= order.Size
	if lvl.numOrders == 0 {
		sb.drop(lvl)
	}
	delete(book.index, id)
	return order, nil
}

// reduce takes qty off a resting order in place, keeping its queue position.
func (book *OrderBook) reduce(entry indexEntry, qty uint64) uint64 {
	left := entry.level.reduce(entry.h, qty)
	book.sideOf(entry.level.side).quantity -= qty
	return left
}

// Order returns a copy of the resting order with the given id.
func (book *OrderBook) Order(id uint64) (common.Order, bool) {
	entry, ok := book.index[id]
	if !ok {
		return common.Order{}, false
	}
	return entry.level.at(entry.h).order, true
}

// NewLimitOrder matches the order against the opposite side in price-time
// priority and rests whatever is left. The order is rejected without touching
// the book if it is malformed or its id is already resting.
func (book *OrderBook) NewLimitOrder(order common.Order) error {
	if err := book.enter(); err != nil {
		return err
	}
	defer book.leave()
	if !order.Side.Valid() || order.Size == 0 || order.Price == 0 {
		book.log.Warn().Stringer("order", order).Msg("limit order rejected")
		return fmt.Errorf("limit order %d: %w", order.OrderID, common.ErrInvalidOrder)
	}
	if _, ok := book.index[order.OrderID]; ok {
		book.log.Warn().Uint64("order", order.OrderID).Msg("duplicate order in add")
		return fmt.Errorf("limit order %d: %w", order.OrderID, common.ErrDuplicateOrder)
	}

	cross := book.sideOf(order.Side.Opposite())
	for order.Size > 0 {
		lvl, ok := cross.best()
		if !ok || !crosses(order.Side, order.Price, lvl.price) {
			break
		}

		resting, h, _ := lvl.front()
		book.log.Debug().
			Uint64("taker", order.OrderID).
			Uint64("maker", resting.OrderID).
			Uint64("price", resting.Price).
			Msg("limit match")

		fill := common.Fill{
			Kind:      common.FillMatch,
			TakerID:   order.OrderID,
			MakerID:   resting.OrderID,
			MakerSide: resting.Side,
			Price:     resting.Price,
		}
		if order.Size >= resting.Size {
			// Resting order is consumed entirely.
			order.Size -= resting.Size
			fill.Quantity = resting.Size
			if _, err := book.remove(resting.OrderID); err != nil {
				panic(err)
			}
		} else {
			fill.Quantity = order.Size
			fill.Remaining = book.reduce(indexEntry{level: lvl, h: h}, order.Size)
			order.Size = 0
		}
		book.reporter.ReportFill(fill)
	}

	if order.Size > 0 {
		return book.insert(order)
	}
	return nil
}

// crosses reports whether an incoming order on side at limit is marketable
// against a resting price.
func crosses(side common.Side, limit, resting uint64) bool {
	if side == common.Buy {
		return limit >= resting
	}
	return limit <= resting
}

// RemoveOrder cancels a resting order.
func (book *OrderBook) RemoveOrder(id uint64) error {
	if err := book.enter(); err != nil {
		return err
	}
	defer book.leave()
	if _, err := book.remove(id); err != nil {
		book.log.Warn().Uint64("order", id).Msg("order not found")
		return err
	}
	return nil
}

// ModifyOrder replaces a resting order with the same id. Orders may only
// shrink at an unchanged price, which keeps their queue position, or move
// price away from the inside, which sends them to the back of the new level.
func (book *OrderBook) ModifyOrder(order common.Order) error {
	if err := book.enter(); err != nil {
		return err
	}
	defer book.leave()
	entry, ok := book.index[order.OrderID]
	if !ok {
		book.log.Warn().Uint64("order", order.OrderID).Msg("order not found")
		return fmt.Errorf("modify %d: %w", order.OrderID, common.ErrOrderNotFound)
	}
	current := entry.level.at(entry.h).order

	reject := func(reason string) error {
		book.log.Warn().
			Stringer("current", current).
			Stringer("requested", order).
			Msg("modify rejected: " + reason)
		return fmt.Errorf("modify %d: %s: %w", order.OrderID, reason, common.ErrInvalidModify)
	}
	switch {
	case order.Size == 0:
		return reject("zero size")
	case order.Price == 0:
		return reject("zero price")
	case order.Side != current.Side:
		return reject("side changed")
	case order.Price == current.Price && order.Size > current.Size:
		return reject("size increase")
	case order.Side == common.Buy && order.Price > current.Price,
		order.Side == common.Sell && order.Price < current.Price:
		return reject("price moved toward the inside")
	}

	if order.Price == current.Price {
		book.reduce(entry, current.Size-order.Size)
		return nil
	}

	if _, err := book.remove(order.OrderID); err != nil {
		panic(err)
	}
	if err := book.insert(order); err != nil {
		panic(err)
	}
	return nil
}
