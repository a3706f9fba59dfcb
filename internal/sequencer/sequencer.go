package sequencer

import (
	"context"
	"errors"
	"slices"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"hftbook/internal/common"
	"hftbook/internal/engine"
)

const (
	DefaultQueueSize = 100
)

var (
	ErrStopped    = errors.New("sequencer stopped")
	ErrNotStarted = errors.New("sequencer not started")
	ErrStarted    = errors.New("sequencer already started")
)

type Task = func(book *engine.OrderBook) error

type request struct {
	fn   Task
	done chan error
}

// Sequencer owns an OrderBook and applies every task to it from a single
// goroutine, in submission order. It is the way to share one book between
// goroutines.
type Sequencer struct {
	book  *engine.OrderBook
	tasks chan request
	t     *tomb.Tomb
}

// New wraps book in a stopped Sequencer. A non-positive queueSize selects
// DefaultQueueSize.
func New(book *engine.OrderBook, queueSize int) *Sequencer {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Sequencer{
		book:  book,
		tasks: make(chan request, queueSize),
	}
}

// Start runs the dispatch goroutine until ctx is done or Stop is called. A
// sequencer runs once: later calls return ErrStarted, even after Stop.
func (s *Sequencer) Start(ctx context.Context) error {
	if s.t != nil {
		return ErrStarted
	}
	s.t, _ = tomb.WithContext(ctx)
	s.t.Go(s.run)
	log.Info().Str("book", s.book.ID()).Msg("sequencer running")
	return nil
}

// Stop kills the dispatch goroutine and waits for it to exit. Tasks still
// queued are answered with ErrStopped.
func (s *Sequencer) Stop() error {
	if s.t == nil {
		return ErrNotStarted
	}
	s.t.Kill(nil)
	return s.t.Wait()
}

func (s *Sequencer) run() error {
	for {
		select {
		case <-s.t.Dying():
			s.drain()
			log.Info().Str("book", s.book.ID()).Msg("sequencer exiting")
			return nil
		case req := <-s.tasks:
			req.done <- req.fn(s.book)
		}
	}
}

func (s *Sequencer) drain() {
	for {
		select {
		case req := <-s.tasks:
			req.done <- ErrStopped
		default:
			return
		}
	}
}

// Do queues fn and waits for its result. If ctx ends after fn was queued, fn
// still runs but its result is discarded.
func (s *Sequencer) Do(ctx context.Context, fn Task) error {
	if s.t == nil {
		return ErrNotStarted
	}
	req := request{fn: fn, done: make(chan error, 1)}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.t.Dying():
		return ErrStopped
	case s.tasks <- req:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-req.done:
		return err
	case <-s.t.Dead():
		// The task may have been answered right before the goroutine exited.
		select {
		case err := <-req.done:
			return err
		default:
			return ErrStopped
		}
	}
}

// NewLimitOrder runs OrderBook.NewLimitOrder on the dispatch goroutine.
func (s *Sequencer) NewLimitOrder(ctx context.Context, order common.Order) error {
	return s.Do(ctx, func(book *engine.OrderBook) error {
		return book.NewLimitOrder(order)
	})
}

// NewMarketOrder runs OrderBook.NewMarketOrder on the dispatch goroutine.
func (s *Sequencer) NewMarketOrder(ctx context.Context, side common.Side, fund, takerID uint64) (engine.MarketResult, error) {
	var result engine.MarketResult
	err := s.Do(ctx, func(book *engine.OrderBook) (err error) {
		result, err = book.NewMarketOrder(side, fund, takerID)
		return err
	})
	if err != nil {
		return engine.MarketResult{}, err
	}
	return result, nil
}

// RemoveOrder runs OrderBook.RemoveOrder on the dispatch goroutine.
func (s *Sequencer) RemoveOrder(ctx context.Context, id uint64) error {
	return s.Do(ctx, func(book *engine.OrderBook) error {
		return book.RemoveOrder(id)
	})
}

// ModifyOrder runs OrderBook.ModifyOrder on the dispatch goroutine.
func (s *Sequencer) ModifyOrder(ctx context.Context, order common.Order) error {
	return s.Do(ctx, func(book *engine.OrderBook) error {
		return book.ModifyOrder(order)
	})
}

// TradeMessage runs OrderBook.TradeMessage on the dispatch goroutine.
func (s *Sequencer) TradeMessage(ctx context.Context, price, size uint64) (engine.TradeResult, error) {
	var result engine.TradeResult
	err := s.Do(ctx, func(book *engine.OrderBook) (err error) {
		result, err = book.TradeMessage(price, size)
		return err
	})
	if err != nil {
		return engine.TradeResult{}, err
	}
	return result, nil
}

// Snapshot copies out every resting order in book order.
func (s *Sequencer) Snapshot(ctx context.Context) ([]common.Order, error) {
	var orders []common.Order
	err := s.Do(ctx, func(book *engine.OrderBook) error {
		orders = slices.Collect(book.Orders())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}
