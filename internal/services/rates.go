package services

import (
	"fmt"
	"log"

	"github.com/spf13/viper"
)

// Supported swap currencies.
const (
	CurrencyUSD = "USD"
	CurrencyBTC = "BTC"
)

// RateProvider supplies the conversion rate for a currency pair, expressed as
// units of quote currency per one unit of base currency. Injected into the
// ledger engine so a live-rate source can replace the fixed one without
// touching posting logic.
type RateProvider interface {
	Rate(base, quote string) (float64, error)
}

// FixedRateProvider serves a single configured BTC/USD rate.
type FixedRateProvider struct {
	btcUSD float64
}

const defaultBTCUSD = 92600.0

func NewFixedRateProvider() *FixedRateProvider {
	viper.SetDefault("rates.btc_usd", defaultBTCUSD)
	rate := viper.GetFloat64("rates.btc_usd")
	if rate <= 0 {
		// A zero rate would make the USD to BTC conversion divide by zero.
		log.Printf("[LEDGER] Ignoring non-positive BTC/USD rate %g, using default %g", rate, defaultBTCUSD)
		rate = defaultBTCUSD
	}
	return &FixedRateProvider{btcUSD: rate}
}

func (p *FixedRateProvider) Rate(base, quote string) (float64, error) {
	if base == CurrencyBTC && quote == CurrencyUSD {
		return p.btcUSD, nil
	}
	if base == CurrencyUSD && quote == CurrencyBTC {
		return 1 / p.btcUSD, nil
	}
	return 0, fmt.Errorf("%w: %s/%s", ErrUnsupportedPair, base, quote)
}
