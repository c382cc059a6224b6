// Package asset handles ticker validation and the seed universe of
// tradeable symbols for game rooms.
package asset

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

// tickerRegex matches plain equity-style tickers: 1-6 uppercase letters,
// optionally followed by a dot-suffixed share class (BRK.B).
var tickerRegex = regexp.MustCompile(`^[A-Z]{1,6}(\.[A-Z])?$`)

// ErrInvalidTicker is returned for malformed symbols.
var ErrInvalidTicker = errors.New("asset: invalid ticker format")

// Asset describes one tradeable instrument in the simulation.
type Asset struct {
	Symbol       string          `json:"symbol"`
	Name         string          `json:"name"`
	InitialPrice decimal.Decimal `json:"initial_price"`
}

// ValidateTicker checks a symbol against the ticker format.
func ValidateTicker(symbol string) error {
	if !tickerRegex.MatchString(symbol) {
		return fmt.Errorf("%w: %q (expected 1-6 uppercase letters)", ErrInvalidTicker, symbol)
	}
	return nil
}

// Defaults is the seed universe used by game rooms before a real market
// scenario is loaded.
func Defaults() []Asset {
	return []Asset{
		{Symbol: "AAPL", Name: "Apple Inc.", InitialPrice: decimal.NewFromFloat(178.50)},
		{Symbol: "MSFT", Name: "Microsoft", InitialPrice: decimal.NewFromFloat(412.80)},
		{Symbol: "GOOGL", Name: "Alphabet", InitialPrice: decimal.NewFromFloat(142.15)},
		{Symbol: "TSLA", Name: "Tesla Inc.", InitialPrice: decimal.NewFromFloat(238.45)},
		{Symbol: "AMZN", Name: "Amazon", InitialPrice: decimal.NewFromFloat(178.90)},
		{Symbol: "META", Name: "Meta", InitialPrice: decimal.NewFromFloat(485.20)},
	}
}
