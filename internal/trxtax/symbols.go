package trxtax

import (
	"fmt"
	"strings"

	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/apperrors"
)

// USD is the reference currency every value is normalized to.
const USD = "USD"

// ForexSymbols are fiat currencies treated as already USD-equivalent: they never
// need triangulation and never form a lot.
var ForexSymbols = []string{"USD", "EUR", "GBP", "JPY", "CHF", "CNH"}

var forexSet = func() map[string]bool {
	set := make(map[string]bool, len(ForexSymbols))
	for _, s := range ForexSymbols {
		set[s] = true
	}
	return set
}()

// IsForex reports whether ccy is a forex symbol.
func IsForex(ccy string) bool {
	return forexSet[ccy]
}

// SplitSymbolPair splits a pair symbol into base and quote currency.
//
// Accepted forms: "tBTCUSD", "BTCUSD", "tAAVE:USD", "tTESTBTC:TESTUSD".
// Anything else wraps apperrors.ErrCurrencyPairSeparation.
func SplitSymbolPair(symbol string) (string, string, error) {
	pair := strings.TrimPrefix(symbol, "t")

	if strings.Contains(pair, ":") {
		parts := strings.Split(pair, ":")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return "", "", fmt.Errorf("%w: %q", apperrors.ErrCurrencyPairSeparation, symbol)
		}
		return parts[0], parts[1], nil
	}

	if len(pair) != 6 || strings.ToUpper(pair) != pair {
		return "", "", fmt.Errorf("%w: %q", apperrors.ErrCurrencyPairSeparation, symbol)
	}

	return pair[:3], pair[3:], nil
}

// PairSymbol builds the trading pair symbol of base priced in quote.
// Currencies longer than three characters need the colon separator.
func PairSymbol(base, quote string) string {
	if len(base) == 3 && len(quote) == 3 {
		return "t" + base + quote
	}
	return "t" + base + ":" + quote
}
