package ntrip

import (
	"math"
	"math/rand"
	"time"
)

const (
	backoffBase = 5 * time.Second
	backoffCap  = 30 * time.Second
)

// backoffDelay computes the exponential-backoff-with-jitter reconnect
// delay of spec §4.5: min(30s, base*1.5^attempts) * (0.9 + rand*0.2).
func backoffDelay(attempts int, rng *rand.Rand) time.Duration {
	raw := float64(backoffBase) * math.Pow(1.5, float64(attempts))
	capped := math.Min(float64(backoffCap), raw)
	jitter := 0.9 + rng.Float64()*0.2
	return time.Duration(capped * jitter)
}
