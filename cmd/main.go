package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"hftbook/internal/common"
	"hftbook/internal/engine"
	"hftbook/internal/sequencer"
)

// logReporter logs every fill the book emits.
type logReporter struct{}

func (logReporter) ReportFill(fill common.Fill) {
	log.Info().Stringer("fill", fill).Msg("fill")
}

func main() {
	level := flag.String("log-level", "info", "Log level: ['debug', 'info', 'warn', 'error']")
	pretty := flag.Bool("pretty", true, "Human readable console output")
	queue := flag.Int("queue", sequencer.DefaultQueueSize, "Sequencer task queue size")
	flag.Parse()

	lvl, err := zerolog.ParseLevel(*level)
	if err != nil {
		log.Fatal().Err(err).Str("level", *level).Msg("invalid log level")
	}
	zerolog.SetGlobalLevel(lvl)
	if *pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	book := engine.New(
		engine.WithLogger(log.Logger),
		engine.WithReporter(logReporter{}),
	)
	seq := sequencer.New(book, *queue)
	if err := seq.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start sequencer")
	}

	if err := run(ctx, seq); err != nil {
		log.Error().Err(err).Msg("demo aborted")
	}
	if err := seq.Stop(); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("sequencer stopped with error")
	}
}

// ladder rests a 3x3 grid of orders: three per price, each one unit larger
// than the last, stepping the price away from the inside.
func ladder(ctx context.Context, seq *sequencer.Sequencer, side common.Side, price, size, id uint64) error {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			order := common.Order{Price: price, Size: size, OrderID: id, Side: side}
			if err := seq.NewLimitOrder(ctx, order); err != nil {
				return err
			}
			id++
			size++
		}
		if side == common.Buy {
			price--
		} else {
			price++
		}
	}
	return nil
}

func dump(ctx context.Context, seq *sequencer.Sequencer, step string) error {
	orders, err := seq.Snapshot(ctx)
	if err != nil {
		return err
	}
	log.Info().Str("step", step).Int("orders", len(orders)).Msg("book")
	for _, order := range orders {
		log.Info().Str("step", step).Msg(order.String())
	}
	return nil
}

func run(ctx context.Context, seq *sequencer.Sequencer) error {
	if err := ladder(ctx, seq, common.Buy, 500, 8, 12345); err != nil {
		return err
	}
	if err := ladder(ctx, seq, common.Sell, 501, 17, 12354); err != nil {
		return err
	}

	// Rejections are reported and leave the book alone.
	for _, id := range []uint64{12222, 12359, 12345} {
		if err := seq.RemoveOrder(ctx, id); err != nil {
			log.Warn().Err(err).Msg("cancel rejected")
		}
	}
	if err := seq.ModifyOrder(ctx, common.Order{Price: 501, Size: 8, OrderID: 12356, Side: common.Sell}); err != nil {
		log.Warn().Err(err).Msg("modify rejected")
	}
	if err := dump(ctx, seq, "insert, modify, cancel"); err != nil {
		return err
	}

	if err := seq.NewLimitOrder(ctx, common.Order{Price: 502, Size: 20, OrderID: 13000, Side: common.Buy}); err != nil {
		return err
	}
	if err := dump(ctx, seq, "buy limit cross"); err != nil {
		return err
	}
	if err := seq.NewLimitOrder(ctx, common.Order{Price: 499, Size: 35, OrderID: 13001, Side: common.Sell}); err != nil {
		return err
	}
	if err := dump(ctx, seq, "sell limit cross"); err != nil {
		return err
	}

	result, err := seq.NewMarketOrder(ctx, common.Sell, 25000, 19996)
	if err != nil {
		return err
	}
	log.Info().
		Stringer("status", result.Status).
		Uint64("filled", result.Filled).
		Uint64("spent", result.Spent).
		Msg("market order")
	if err := dump(ctx, seq, "market sell"); err != nil {
		return err
	}

	if _, err := seq.TradeMessage(ctx, 502, 35); err != nil {
		log.Warn().Err(err).Msg("trade message rejected")
	}
	if err := dump(ctx, seq, "trade message"); err != nil {
		return err
	}

	// A print deep in the bids prunes every level above it first.
	if err := seq.Do(ctx, (*engine.OrderBook).Reset); err != nil {
		return err
	}
	if err := ladder(ctx, seq, common.Buy, 500, 8, 12345); err != nil {
		return err
	}
	if err := ladder(ctx, seq, common.Sell, 501, 17, 12354); err != nil {
		return err
	}
	if _, err := seq.TradeMessage(ctx, 498, 35); err != nil {
		log.Warn().Err(err).Msg("trade message rejected")
	}
	return dump(ctx, seq, "trade message through levels")
}
