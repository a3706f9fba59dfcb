package engine_test

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hftbook/internal/common"
	"hftbook/internal/engine"
)

// --- Setup & Helpers --------------------------------------------------------

type MockReporter struct {
	fills []common.Fill
}

func (r *MockReporter) ReportFill(fill common.Fill) {
	r.fills = append(r.fills, fill)
}

func createTestOrderBook(t *testing.T) (*engine.OrderBook, *MockReporter) {
	t.Helper()
	reporter := &MockReporter{}
	book := engine.New(engine.WithReporter(reporter), engine.WithDegree(4))
	t.Cleanup(func() {
		assert.NoError(t, book.CheckInvariants())
	})
	return book, reporter
}

// placeTestOrders places one order per size at price, with ids counting up
// from firstID.
func placeTestOrders(t *testing.T, book *engine.OrderBook, price uint64, side common.Side, firstID uint64, sizes ...uint64) {
	t.Helper()
	for i, size := range sizes {
		require.NoError(t, book.NewLimitOrder(common.Order{
			Price:   price,
			Size:    size,
			OrderID: firstID + uint64(i),
			Side:    side,
		}))
		require.NoError(t, book.CheckInvariants())
	}
}

func order(id uint64, side common.Side, price, size uint64) common.Order {
	return common.Order{Price: price, Size: size, OrderID: id, Side: side}
}

func snapshot(book *engine.OrderBook) []common.Order {
	return slices.Collect(book.Orders())
}

// --- Tests ------------------------------------------------------------------

func TestNewLimitOrder_Rest(t *testing.T) {
	book, reporter := createTestOrderBook(t)

	placeTestOrders(t, book, 99, common.Buy, 1, 100, 90, 80)
	placeTestOrders(t, book, 100, common.Sell, 4, 100, 90, 80)

	assert.Empty(t, reporter.fills)
	assert.Equal(t, 6, book.Len())
	assert.Equal(t, []engine.LevelInfo{{Price: 99, NumOrders: 3, Size: 270}}, book.Levels(common.Buy))
	assert.Equal(t, []engine.LevelInfo{{Price: 100, NumOrders: 3, Size: 270}}, book.Levels(common.Sell))

	bid, ok := book.BestBid()
	require.True(t, ok)
	assert.Equal(t, uint64(99), bid)
	ask, ok := book.BestAsk()
	require.True(t, ok)
	assert.Equal(t, uint64(100), ask)
}

func TestNewLimitOrder_IncomingRemainderRests(t *testing.T) {
	book, reporter := createTestOrderBook(t)

	require.NoError(t, book.NewLimitOrder(order(1, common.Buy, 500, 8)))
	require.NoError(t, book.NewLimitOrder(order(2, common.Sell, 499, 10)))

	_, ok := book.Order(1)
	assert.False(t, ok, "resting buy should be consumed")
	assert.Equal(t, []common.Order{order(2, common.Sell, 499, 2)}, snapshot(book))
	assert.Equal(t, []common.Fill{{
		Kind:      common.FillMatch,
		TakerID:   2,
		MakerID:   1,
		MakerSide: common.Buy,
		Price:     500,
		Quantity:  8,
	}}, reporter.fills)
}

func TestNewLimitOrder_PartialFillOfResting(t *testing.T) {
	book, reporter := createTestOrderBook(t)

	placeTestOrders(t, book, 100, common.Sell, 1, 50)
	require.NoError(t, book.NewLimitOrder(order(2, common.Buy, 100, 20)))

	resting, ok := book.Order(1)
	require.True(t, ok)
	assert.Equal(t, uint64(30), resting.Size)
	assert.Equal(t, []engine.LevelInfo{{Price: 100, NumOrders: 1, Size: 30}}, book.Levels(common.Sell))
	assert.Empty(t, book.Levels(common.Buy))
	require.Len(t, reporter.fills, 1)
	assert.Equal(t, uint64(20), reporter.fills[0].Quantity)
	assert.Equal(t, uint64(30), reporter.fills[0].Remaining)

	orders, size := book.Depth(common.Sell)
	assert.Equal(t, uint64(1), orders)
	assert.Equal(t, uint64(30), size)
}

func TestNewLimitOrder_Sweep(t *testing.T) {
	book, _ := createTestOrderBook(t)

	placeTestOrders(t, book, 99, common.Buy, 1, 100, 90, 80)
	placeTestOrders(t, book, 98, common.Buy, 4, 50)
	placeTestOrders(t, book, 100, common.Sell, 5, 100, 90)
	placeTestOrders(t, book, 101, common.Sell, 7, 20)

	// Sweeps 100 and part of 101.
	require.NoError(t, book.NewLimitOrder(order(10, common.Buy, 103, 200)))
	assert.Equal(t, []engine.LevelInfo{{Price: 101, NumOrders: 1, Size: 10}}, book.Levels(common.Sell))
	_, ok := book.Order(10)
	assert.False(t, ok)

	// Sweeps the rest of the asks and rests the remainder as the new best bid.
	require.NoError(t, book.NewLimitOrder(order(11, common.Buy, 103, 25)))
	assert.Empty(t, book.Levels(common.Sell))
	assert.Equal(t, []engine.LevelInfo{
		{Price: 103, NumOrders: 1, Size: 15},
		{Price: 99, NumOrders: 3, Size: 270},
		{Price: 98, NumOrders: 1, Size: 50},
	}, book.Levels(common.Buy))

	// Sell sweep down through the bids.
	require.NoError(t, book.NewLimitOrder(order(12, common.Sell, 96, 310)))
	assert.Equal(t, []engine.LevelInfo{{Price: 98, NumOrders: 1, Size: 25}}, book.Levels(common.Buy))
}

func TestNewLimitOrder_FIFOWithinLevel(t *testing.T) {
	book, reporter := createTestOrderBook(t)

	placeTestOrders(t, book, 100, common.Sell, 1, 10, 10, 10)
	require.NoError(t, book.NewLimitOrder(order(4, common.Buy, 100, 15)))

	require.Len(t, reporter.fills, 2)
	assert.Equal(t, uint64(1), reporter.fills[0].MakerID)
	assert.Equal(t, uint64(2), reporter.fills[1].MakerID)
	assert.Equal(t, []common.Order{
		order(2, common.Sell, 100, 5),
		order(3, common.Sell, 100, 10),
	}, snapshot(book))
}

func TestNewLimitOrder_Rejections(t *testing.T) {
	book, reporter := createTestOrderBook(t)
	placeTestOrders(t, book, 500, common.Buy, 1, 8)
	before := snapshot(book)

	tests := []struct {
		name  string
		order common.Order
		err   error
	}{
		{"zero size", order(2, common.Buy, 500, 0), common.ErrInvalidOrder},
		{"zero price", order(2, common.Buy, 0, 5), common.ErrInvalidOrder},
		{"no side", order(2, common.Unspecified, 500, 5), common.ErrInvalidOrder},
		{"duplicate", order(1, common.Buy, 499, 5), common.ErrDuplicateOrder},
		// Would cross, but must be rejected before any matching.
		{"duplicate crossing", order(1, common.Sell, 499, 5), common.ErrDuplicateOrder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, book.NewLimitOrder(tt.order), tt.err)
			assert.Equal(t, before, snapshot(book))
		})
	}
	assert.Empty(t, reporter.fills)
}

func TestRemoveOrder(t *testing.T) {
	book, _ := createTestOrderBook(t)
	placeTestOrders(t, book, 100, common.Buy, 1, 10, 20, 30)

	require.NoError(t, book.RemoveOrder(2))
	assert.Equal(t, []common.Order{
		order(1, common.Buy, 100, 10),
		order(3, common.Buy, 100, 30),
	}, snapshot(book))

	// A second cancel is reported and changes nothing.
	assert.ErrorIs(t, book.RemoveOrder(2), common.ErrOrderNotFound)
	assert.Equal(t, 2, book.Len())

	// Freed slots are reused without disturbing arrival order.
	placeTestOrders(t, book, 100, common.Buy, 4, 40)
	assert.Equal(t, []common.Order{
		order(1, common.Buy, 100, 10),
		order(3, common.Buy, 100, 30),
		order(4, common.Buy, 100, 40),
	}, snapshot(book))
	assert.Equal(t, []engine.LevelInfo{{Price: 100, NumOrders: 3, Size: 80}}, book.Levels(common.Buy))

	for _, id := range []uint64{1, 3, 4} {
		require.NoError(t, book.RemoveOrder(id))
	}
	assert.Empty(t, book.Levels(common.Buy))
	assert.Zero(t, book.Len())
	_, ok := book.BestBid()
	assert.False(t, ok)
}

func TestModifyOrder_ReduceKeepsPriority(t *testing.T) {
	book, reporter := createTestOrderBook(t)
	placeTestOrders(t, book, 100, common.Buy, 1, 10, 10)

	require.NoError(t, book.ModifyOrder(order(1, common.Buy, 100, 5)))
	assert.Equal(t, []common.Order{
		order(1, common.Buy, 100, 5),
		order(2, common.Buy, 100, 10),
	}, snapshot(book))
	assert.Equal(t, []engine.LevelInfo{{Price: 100, NumOrders: 2, Size: 15}}, book.Levels(common.Buy))

	// Order 1 is still first in line.
	require.NoError(t, book.NewLimitOrder(order(3, common.Sell, 100, 5)))
	require.Len(t, reporter.fills, 1)
	assert.Equal(t, uint64(1), reporter.fills[0].MakerID)
	assert.Equal(t, []common.Order{order(2, common.Buy, 100, 10)}, snapshot(book))
}

func TestModifyOrder_PriceChangeRequeues(t *testing.T) {
	book, _ := createTestOrderBook(t)
	placeTestOrders(t, book, 100, common.Buy, 1, 10)
	placeTestOrders(t, book, 99, common.Buy, 2, 10)

	// Size may grow when the order gives up its place.
	require.NoError(t, book.ModifyOrder(order(1, common.Buy, 99, 12)))
	assert.Equal(t, []common.Order{
		order(2, common.Buy, 99, 10),
		order(1, common.Buy, 99, 12),
	}, snapshot(book))
	assert.Equal(t, []engine.LevelInfo{{Price: 99, NumOrders: 2, Size: 22}}, book.Levels(common.Buy))

	placeTestOrders(t, book, 200, common.Sell, 3, 5)
	require.NoError(t, book.ModifyOrder(order(3, common.Sell, 201, 5)))
	assert.Equal(t, []engine.LevelInfo{{Price: 201, NumOrders: 1, Size: 5}}, book.Levels(common.Sell))
}

func TestModifyOrder_Rejections(t *testing.T) {
	book, _ := createTestOrderBook(t)
	placeTestOrders(t, book, 100, common.Buy, 1, 10)
	placeTestOrders(t, book, 200, common.Sell, 2, 10)
	before := snapshot(book)

	tests := []struct {
		name  string
		order common.Order
		err   error
	}{
		{"unknown id", order(9, common.Buy, 100, 5), common.ErrOrderNotFound},
		{"side change", order(1, common.Sell, 100, 5), common.ErrInvalidModify},
		{"size increase", order(1, common.Buy, 100, 11), common.ErrInvalidModify},
		{"buy price up", order(1, common.Buy, 101, 5), common.ErrInvalidModify},
		{"sell price down", order(2, common.Sell, 199, 5), common.ErrInvalidModify},
		{"zero size", order(1, common.Buy, 100, 0), common.ErrInvalidModify},
		{"zero price", order(1, common.Buy, 0, 5), common.ErrInvalidModify},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, book.ModifyOrder(tt.order), tt.err)
			assert.Equal(t, before, snapshot(book))
		})
	}
}

// Replays the reference driver: two ladders, cancels, a modify, crossing limit
// orders, a market sweep and a trade print.
func TestReferenceScenario(t *testing.T) {
	book, reporter := createTestOrderBook(t)

	ladder := func(side common.Side, price, size, id uint64) {
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				require.NoError(t, book.NewLimitOrder(order(id, side, price, size)))
				id++
				size++
			}
			if side == common.Buy {
				price--
			} else {
				price++
			}
		}
	}
	ladder(common.Buy, 500, 8, 12345)
	ladder(common.Sell, 501, 17, 12354)
	require.NoError(t, book.CheckInvariants())

	assert.ErrorIs(t, book.RemoveOrder(12222), common.ErrOrderNotFound)
	require.NoError(t, book.RemoveOrder(12359))
	require.NoError(t, book.RemoveOrder(12345))
	require.NoError(t, book.ModifyOrder(order(12356, common.Sell, 501, 8)))
	assert.Equal(t, []common.Order{
		order(12354, common.Sell, 501, 17),
		order(12355, common.Sell, 501, 18),
		order(12356, common.Sell, 501, 8),
		order(12357, common.Sell, 502, 20),
		order(12358, common.Sell, 502, 21),
		order(12360, common.Sell, 503, 23),
		order(12361, common.Sell, 503, 24),
		order(12362, common.Sell, 503, 25),
		order(12346, common.Buy, 500, 9),
		order(12347, common.Buy, 500, 10),
		order(12348, common.Buy, 499, 11),
		order(12349, common.Buy, 499, 12),
		order(12350, common.Buy, 499, 13),
		order(12351, common.Buy, 498, 14),
		order(12352, common.Buy, 498, 15),
		order(12353, common.Buy, 498, 16),
	}, snapshot(book))

	require.NoError(t, book.NewLimitOrder(order(13000, common.Buy, 502, 20)))
	require.NoError(t, book.NewLimitOrder(order(13001, common.Sell, 499, 35)))
	assert.Equal(t, []engine.LevelInfo{
		{Price: 501, NumOrders: 2, Size: 23},
		{Price: 502, NumOrders: 2, Size: 41},
		{Price: 503, NumOrders: 3, Size: 72},
	}, book.Levels(common.Sell))
	assert.Equal(t, []engine.LevelInfo{
		{Price: 499, NumOrders: 2, Size: 20},
		{Price: 498, NumOrders: 3, Size: 45},
	}, book.Levels(common.Buy))

	result, err := book.NewMarketOrder(common.Sell, 25000, 19996)
	require.NoError(t, err)
	assert.Equal(t, engine.MarketResult{
		TakerID: 19996,
		Status:  engine.MarketFilled,
		Filled:  50,
		Spent:   24920,
		Dust:    80,
	}, result)
	assert.Equal(t, []engine.LevelInfo{{Price: 498, NumOrders: 1, Size: 15}}, book.Levels(common.Buy))

	reporter.fills = nil
	trade, err := book.TradeMessage(502, 35)
	require.NoError(t, err)
	assert.Equal(t, engine.TradeResult{
		Side:         common.Sell,
		PrunedLevels: 1,
		PrunedOrders: 2,
		Filled:       35,
	}, trade)
	assert.Equal(t, []common.Fill{
		{Kind: common.FillPruned, MakerID: 12355, MakerSide: common.Sell, Price: 501, Quantity: 15},
		{Kind: common.FillPruned, MakerID: 12356, MakerSide: common.Sell, Price: 501, Quantity: 8},
		{Kind: common.FillTrade, MakerID: 12357, MakerSide: common.Sell, Price: 502, Quantity: 20},
		{Kind: common.FillTrade, MakerID: 12358, MakerSide: common.Sell, Price: 502, Quantity: 15, Remaining: 6},
	}, reporter.fills)
	assert.Equal(t, []common.Order{
		order(12358, common.Sell, 502, 6),
		order(12360, common.Sell, 503, 23),
		order(12361, common.Sell, 503, 24),
		order(12362, common.Sell, 503, 25),
		order(12353, common.Buy, 498, 15),
	}, snapshot(book))

	require.NoError(t, book.Reset())
	assert.Zero(t, book.Len())
	assert.Empty(t, snapshot(book))

	ladder(common.Buy, 500, 8, 12345)
	ladder(common.Sell, 501, 17, 12354)
	trade, err = book.TradeMessage(498, 35)
	require.NoError(t, err)
	assert.Equal(t, engine.TradeResult{
		Side:         common.Buy,
		PrunedLevels: 2,
		PrunedOrders: 6,
		Filled:       35,
	}, trade)
	assert.Equal(t, []engine.LevelInfo{{Price: 498, NumOrders: 1, Size: 10}}, book.Levels(common.Buy))
	assert.Len(t, book.Levels(common.Sell), 3)
	assert.Equal(t, 10, book.Len())
}
