package export

import (
	"math"
	"strconv"
)

// ComputeSpeedFactor returns the uniform speed-up that fits the summed clip
// durations into targetSec. Footage is never slowed down: the result is at
// least 1, and exactly 1 when there is no source time.
func ComputeSpeedFactor(durations []float64, targetSec float64) float64 {
	total := 0.0
	for _, d := range durations {
		total += d
	}

	raw := 1.0
	if total > 0 {
		raw = total / math.Max(1, targetSec)
	}
	return math.Max(1, raw)
}

// FormatFactor renders a factor for the filter graph without trailing zeros.
func FormatFactor(f float64) string {
	return strconv.FormatFloat(math.Round(f*1e6)/1e6, 'f', -1, 64)
}
