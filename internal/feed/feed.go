// Package feed simulates the market-data feed for game rooms: a random
// walk over the asset universe, pushed into the engine's price-update
// path on a fixed interval. The real front-end mock emitted one random
// price move every five seconds; this keeps the same shape.
package feed

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradesim/exchange-engine/internal/asset"
)

// Sink receives price updates. Publication is fire-and-forget: the feed
// never waits on downstream consumers beyond the sweep itself.
type Sink func(symbol string, price decimal.Decimal)

// Simulator drives a random-walk price feed over a set of assets.
type Simulator struct {
	assets   []asset.Asset
	prices   map[string]decimal.Decimal
	interval time.Duration
	maxMove  decimal.Decimal // max absolute move per tick
	rng      *rand.Rand
	sink     Sink
}

// NewSimulator creates a feed over the given assets. Each tick picks one
// asset and moves its price by a uniform random amount in ±maxMove.
func NewSimulator(assets []asset.Asset, interval time.Duration, sink Sink) *Simulator {
	prices := make(map[string]decimal.Decimal, len(assets))
	for _, a := range assets {
		prices[a.Symbol] = a.InitialPrice
	}
	return &Simulator{
		assets:   assets,
		prices:   prices,
		interval: interval,
		maxMove:  decimal.NewFromFloat(2.5),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		sink:     sink,
	}
}

// Seed pushes every asset's initial price once, so the reference is
// populated before the first tick.
func (s *Simulator) Seed() {
	for _, a := range s.assets {
		s.sink(a.Symbol, a.InitialPrice)
	}
}

// Run ticks until the context is cancelled.
func (s *Simulator) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("feed stopped")
			return
		case <-ticker.C:
			symbol, price := s.Tick()
			s.sink(symbol, price)
		}
	}
}

// Tick advances one random symbol's price and returns it.
func (s *Simulator) Tick() (string, decimal.Decimal) {
	a := s.assets[s.rng.Intn(len(s.assets))]

	// Uniform move in ±maxMove, floored at one cent.
	move := decimal.NewFromFloat(s.rng.Float64()*2 - 1).Mul(s.maxMove)
	price := s.prices[a.Symbol].Add(move).Round(2)

	floor := decimal.NewFromFloat(0.01)
	if price.LessThan(floor) {
		price = floor
	}

	s.prices[a.Symbol] = price
	return a.Symbol, price
}
