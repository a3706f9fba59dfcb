package engine

import (
	"fmt"
	"math"

	"hftbook/internal/common"
)

const nilSlot = -1

// handle is a stable reference to an order's slot within a PriceLevel. The
// generation guards against a slot being reused after its order left.
type handle struct {
	slot int32
	gen  uint32
}

type slot struct {
	order      common.Order
	prev, next int32
	gen        uint32
	live       bool
}

// PriceLevel holds every resting order at one price on one side, in arrival
// order. Orders live in an arena of slots linked into a FIFO queue, so they
// can be unlinked in O(1) through a handle.
type PriceLevel struct {
	price     uint64
	side      common.Side
	numOrders uint64
	size      uint64 // Sum of resting sizes in the level.

	slots      []slot
	free       []int32
	head, tail int32
}

func newPriceLevel(side common.Side, price uint64) *PriceLevel {
	return &PriceLevel{
		price: price,
		side:  side,
		head:  nilSlot,
		tail:  nilSlot,
	}
}

func (lvl *PriceLevel) Price() uint64     { return lvl.price }
func (lvl *PriceLevel) Side() common.Side { return lvl.side }
func (lvl *PriceLevel) NumOrders() uint64 { return lvl.numOrders }
func (lvl *PriceLevel) Size() uint64      { return lvl.size }

// nextSlot returns the index of the slot appended to an arena of length n.
// Handles address slots with an int32, which caps a level at MaxInt32 slots.
func nextSlot(n int) int32 {
	if n >= math.MaxInt32 {
		panic(fmt.Sprintf("price level full: %d slots", n))
	}
	return int32(n)
}

// pushBack appends the order to the tail of the queue.
func (lvl *PriceLevel) pushBack(order common.Order) handle {
	var idx int32
	if n := len(lvl.free); n > 0 {
		idx = lvl.free[n-1]
		lvl.free = lvl.free[:n-1]
	} else {
		idx = nextSlot(len(lvl.slots))
		lvl.slots = append(lvl.slots, slot{})
	}

	s := &lvl.slots[idx]
	s.order = order
	s.prev = lvl.tail
	s.next = nilSlot
	s.live = true

	if lvl.tail != nilSlot {
		lvl.slots[lvl.tail].next = idx
	} else {
		lvl.head = idx
	}
	lvl.tail = idx

	lvl.numOrders++
	lvl.size += order.Size
	return handle{slot: idx, gen: s.gen}
}

// at resolves a handle. A stale handle means the index and the level have
// diverged, which is never caused by caller input.
func (lvl *PriceLevel) at(h handle) *slot {
	if h.slot < 0 || int(h.slot) >= len(lvl.slots) {
		panic(fmt.Sprintf("price level %d: handle slot %d out of range", lvl.price, h.slot))
	}
	s := &lvl.slots[h.slot]
	if !s.live || s.gen != h.gen {
		panic(fmt.Sprintf("price level %d: stale handle %+v", lvl.price, h))
	}
	return s
}

// unlink removes the order behind h and returns it.
func (lvl *PriceLevel) unlink(h handle) common.Order {
	s := lvl.at(h)
	if s.prev != nilSlot {
		lvl.slots[s.prev].next = s.next
	} else {
		lvl.head = s.next
	}
	if s.next != nilSlot {
		lvl.slots[s.next].prev = s.prev
	} else {
		lvl.tail = s.prev
	}

	order := s.order
	lvl.numOrders--
	lvl.size -= order.Size

	*s = slot{gen: s.gen + 1, prev: nilSlot, next: nilSlot}
	lvl.free = append(lvl.free, h.slot)
	return order
}

// reduce takes qty off the order behind h without moving it in the queue.
func (lvl *PriceLevel) reduce(h handle, qty uint64) uint64 {
	s := lvl.at(h)
	if qty > s.order.Size {
		panic(fmt.Sprintf("price level %d: reduce %d exceeds order %d size %d",
			lvl.price, qty, s.order.OrderID, s.order.Size))
	}
	s.order.Size -= qty
	lvl.size -= qty
	return s.order.Size
}

// front returns the oldest order and its handle.
func (lvl *PriceLevel) front() (common.Order, handle, bool) {
	if lvl.head == nilSlot {
		return common.Order{}, handle{}, false
	}
	s := &lvl.slots[lvl.head]
	return s.order, handle{slot: lvl.head, gen: s.gen}, true
}

// each walks the queue head to tail until fn returns false.
func (lvl *PriceLevel) each(fn func(order common.Order) bool) bool {
	for i := lvl.head; i != nilSlot; i = lvl.slots[i].next {
		if !fn(lvl.slots[i].order) {
			return false
		}
	}
	return true
}

// Orders returns the queue contents, oldest first.
func (lvl *PriceLevel) Orders() []common.Order {
	orders := make([]common.Order, 0, lvl.numOrders)
	lvl.each(func(order common.Order) bool {
		orders = append(orders, order)
		return true
	})
	return orders
}

func (lvl *PriceLevel) String() string {
	return fmt.Sprintf("PriceLevel{Side=%s, Price=%d, Orders=%d, Size=%d}",
		lvl.side, lvl.price, lvl.numOrders, lvl.size)
}
