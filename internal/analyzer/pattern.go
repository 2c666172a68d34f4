package analyzer

import (
	"math"

	"tradesim/pkg/model"
)

// Pattern names reported by the detector
const (
	PatternHammer           = "Hammer (Bullish)"
	PatternHangingMan       = "Hanging Man (Bearish)"
	PatternInvertedHammer   = "Inverted Hammer (Bullish)"
	PatternShootingStar     = "Shooting Star (Bearish)"
	PatternDoji             = "Doji (Neutral)"
	PatternBullishEngulfing = "Bullish Engulfing"
	PatternBearishEngulfing = "Bearish Engulfing"
	PatternMorningStar      = "Morning Star (Bullish)"
	PatternEveningStar      = "Evening Star (Bearish)"
)

// PatternConfig holds the candle-shape thresholds
type PatternConfig struct {
	ShadowBodyRatio float64 // long shadow must be at least this many bodies
	SmallShadowPct  float64 // opposite shadow at most this fraction of the body
	DojiBodyPct     float64 // body at most this fraction of the range
	StarBodyPct     float64 // middle star body at most this fraction of its range
}

// DefaultPatternConfig returns the standard thresholds
func DefaultPatternConfig() PatternConfig {
	return PatternConfig{
		ShadowBodyRatio: 2,
		SmallShadowPct:  0.3,
		DojiBodyPct:     0.1,
		StarBodyPct:     0.3,
	}
}

// PatternDetector scans OHLC bars for candlestick patterns
type PatternDetector struct {
	config PatternConfig
}

// NewPatternDetector creates a detector with the default thresholds
func NewPatternDetector() *PatternDetector {
	return NewPatternDetectorWithConfig(DefaultPatternConfig())
}

// NewPatternDetectorWithConfig creates a detector with custom thresholds
func NewPatternDetectorWithConfig(cfg PatternConfig) *PatternDetector {
	return &PatternDetector{config: cfg}
}

// candleShape holds the derived measures of one bar
type candleShape struct {
	body        float64
	upperShadow float64
	lowerShadow float64
	rng         float64
}

func shapeOf(b model.OHLCBar) candleShape {
	return candleShape{
		body:        math.Abs(b.Close - b.Open),
		upperShadow: b.High - math.Max(b.Open, b.Close),
		lowerShadow: math.Min(b.Open, b.Close) - b.Low,
		rng:         b.High - b.Low,
	}
}

// Detect scans bars from index 2 onward. Every rule is checked on every
// bar, so one bar may report several patterns.
func (d *PatternDetector) Detect(bars []model.OHLCBar) []model.Pattern {
	patterns := make([]model.Pattern, 0)

	for i := 2; i < len(bars); i++ {
		patterns = append(patterns, d.detectAt(bars, i)...)
	}

	return patterns
}

// detectAt evaluates all rules for bar i in rule order
func (d *PatternDetector) detectAt(bars []model.OHLCBar, i int) []model.Pattern {
	cfg := d.config
	today := bars[i]
	yesterday := bars[i-1]
	dayBefore := bars[i-2]

	t := shapeOf(today)
	y := shapeOf(yesterday)
	up := today.Close > today.Open

	var found []model.Pattern

	// Hammer / Hanging Man: long lower shadow, almost no upper shadow
	if t.lowerShadow >= cfg.ShadowBodyRatio*t.body && t.upperShadow <= t.body*cfg.SmallShadowPct {
		name := PatternHangingMan
		if up {
			name = PatternHammer
		}
		found = append(found, directional(name, i, up))
	}

	// Inverted Hammer / Shooting Star: long upper shadow, almost no lower shadow
	if t.upperShadow >= cfg.ShadowBodyRatio*t.body && t.lowerShadow <= t.body*cfg.SmallShadowPct {
		name := PatternShootingStar
		if up {
			name = PatternInvertedHammer
		}
		found = append(found, directional(name, i, up))
	}

	if t.body <= t.rng*cfg.DojiBodyPct {
		found = append(found, model.Pattern{Name: PatternDoji, Index: i, Bullish: false, Bias: model.Neutral})
	}

	if y.body > 0 {
		bullishEngulfing := today.Close > today.Open &&
			yesterday.Close < yesterday.Open &&
			today.Open < yesterday.Close &&
			today.Close > yesterday.Open

		bearishEngulfing := today.Close < today.Open &&
			yesterday.Close > yesterday.Open &&
			today.Open > yesterday.Close &&
			today.Close < yesterday.Open

		if bullishEngulfing {
			found = append(found, directional(PatternBullishEngulfing, i, true))
		}
		if bearishEngulfing {
			found = append(found, directional(PatternBearishEngulfing, i, false))
		}
	}

	smallStar := y.body <= y.rng*cfg.StarBodyPct

	morningStar := dayBefore.Close < dayBefore.Open &&
		smallStar &&
		today.Close > today.Open &&
		today.Open > yesterday.Close

	eveningStar := dayBefore.Close > dayBefore.Open &&
		smallStar &&
		today.Close < today.Open &&
		today.Open < yesterday.Close

	if morningStar {
		found = append(found, directional(PatternMorningStar, i, true))
	}
	if eveningStar {
		found = append(found, directional(PatternEveningStar, i, false))
	}

	return found
}

func directional(name string, index int, bullish bool) model.Pattern {
	bias := model.Bearish
	if bullish {
		bias = model.Bullish
	}
	return model.Pattern{Name: name, Index: index, Bullish: bullish, Bias: bias}
}

// DetectPatterns scans bars with the default thresholds
func DetectPatterns(bars []model.OHLCBar) []model.Pattern {
	return NewPatternDetector().Detect(bars)
}

// PatternsInWindow keeps the patterns that fall inside the last n of total bars
func PatternsInWindow(patterns []model.Pattern, total, n int) []model.Pattern {
	start := total - n
	if start < 0 {
		start = 0
	}

	var out []model.Pattern
	for _, p := range patterns {
		if p.Index >= start {
			out = append(out, p)
		}
	}
	return out
}

// CountByBias tallies bullish, bearish and neutral patterns
func CountByBias(patterns []model.Pattern) map[model.Bias]int {
	counts := make(map[model.Bias]int, 3)
	for _, p := range patterns {
		counts[p.Bias]++
	}
	return counts
}
