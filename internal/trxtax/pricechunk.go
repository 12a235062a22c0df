package trxtax

import (
	"github.com/shopspring/decimal"

	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/model"
)

// chunkGapMs bounds the distance between a transaction and the price point used
// for it.
const chunkGapMs = int64(24 * 60 * 60 * 1000)

// priceChunk is a run of consecutive price points of one symbol, newest first.
type priceChunk struct {
	points []model.PricePoint
	// end is the timestamp the chunk was requested to end at.
	end int64
	// exhausted is set when the provider has no data older than the oldest point.
	exhausted bool
}

func (c *priceChunk) empty() bool {
	return len(c.points) == 0
}

func (c *priceChunk) oldest() int64 {
	return c.points[len(c.points)-1].Mts
}

// spans reports whether mts lies within the requested range of the chunk.
func (c *priceChunk) spans(mts int64) bool {
	if c.empty() || mts > c.end {
		return false
	}
	return c.oldest() <= mts || c.exhausted
}

// priceAt returns the price of the first point at or before mts, scanning newest
// to oldest. That point must be less than a day older than mts, so a market that
// stopped trading does not price later transactions. When every point is newer
// than mts, the oldest point is used if it is within a day of mts or the history
// is exhausted.
func (c *priceChunk) priceAt(mts int64) (decimal.Decimal, bool) {
	if c.empty() {
		return decimal.Zero, false
	}
	for _, p := range c.points {
		if p.Mts <= mts {
			if mts-p.Mts >= chunkGapMs {
				return decimal.Zero, false
			}
			return p.Price, true
		}
	}
	if c.exhausted || c.oldest()-mts < chunkGapMs {
		return c.points[len(c.points)-1].Price, true
	}
	return decimal.Zero, false
}
