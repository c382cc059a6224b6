package asset_test

import (
	"errors"
	"testing"

	"github.com/tradesim/exchange-engine/internal/asset"
)

func TestValidateTicker(t *testing.T) {
	valid := []string{"A", "AAPL", "GOOGL", "BRK.B", "ABCDEF"}
	for _, s := range valid {
		if err := asset.ValidateTicker(s); err != nil {
			t.Errorf("%q should be valid, got %v", s, err)
		}
	}

	invalid := []string{"", "aapl", "AAPL!", "TOOLONGG", "BRK.BB", ".B", "AAPL."}
	for _, s := range invalid {
		if err := asset.ValidateTicker(s); !errors.Is(err, asset.ErrInvalidTicker) {
			t.Errorf("%q should be rejected, got %v", s, err)
		}
	}
}

func TestDefaults(t *testing.T) {
	assets := asset.Defaults()
	if len(assets) != 6 {
		t.Fatalf("expected 6 seed assets, got %d", len(assets))
	}
	for _, a := range assets {
		if err := asset.ValidateTicker(a.Symbol); err != nil {
			t.Errorf("seed symbol %q invalid: %v", a.Symbol, err)
		}
		if !a.InitialPrice.IsPositive() {
			t.Errorf("seed price for %s must be positive, got %s", a.Symbol, a.InitialPrice)
		}
	}
}
