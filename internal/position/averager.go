package position

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Stats summarizes a completed averaging run: spread of the accepted
// samples plus a record of every fix quality seen, including samples
// rejected for falling below the quality floor.
type Stats struct {
	SampleCount            int
	Duration               time.Duration
	LatitudeStdDev         float64
	LongitudeStdDev        float64
	AltitudeStdDev         float64
	StartTime              time.Time
	EndTime                time.Time
	FixQualityDistribution map[FixQuality]int
}

// Averager accumulates fixes for a static antenna — a base station
// surveying in its own reference position before it starts issuing
// corrections — and reduces them to a mean position once enough
// high-quality samples have accrued.
type Averager struct {
	mu             sync.Mutex
	minQuality     FixQuality
	samples        []Fix
	fixQualityDist map[FixQuality]int
}

// NewAverager returns an Averager that only accepts fixes at or above
// minQuality into its running average, while still counting every sample
// offered toward the quality distribution.
func NewAverager(minQuality FixQuality) *Averager {
	return &Averager{
		minQuality:     minQuality,
		fixQualityDist: make(map[FixQuality]int),
	}
}

// qualityRank orders fix qualities by accuracy for the quality floor: RTK
// fixed ranks above RTK float although its NMEA code is lower, and
// estimated, manual and simulator fixes rank below autonomous.
var qualityRank = map[FixQuality]int{
	FixNone: 0, FixEstimated: 1, FixManual: 1, FixSimulator: 1,
	FixAutonomous: 2, FixDifferential: 3, FixPPS: 3, FixRTKFloat: 4, FixRTKFixed: 5,
}

// AddSample records fix's quality in the distribution and, if it meets
// the quality floor, folds it into the running average. It reports
// whether the sample was used.
func (a *Averager) AddSample(fix Fix) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.fixQualityDist[fix.Quality]++
	if qualityRank[fix.Quality] < qualityRank[a.minQuality] {
		return false
	}
	a.samples = append(a.samples, fix)
	return true
}

// SampleCount returns the number of samples accepted into the average so
// far (not counting samples rejected for low quality).
func (a *Averager) SampleCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.samples)
}

// Reset discards all accumulated samples and distribution counts.
func (a *Averager) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.samples = nil
	a.fixQualityDist = make(map[FixQuality]int)
}

// FixQualityDistribution returns a defensive copy of the count of samples
// seen at each fix quality, including samples that were rejected.
func (a *Averager) FixQualityDistribution() map[FixQuality]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	dist := make(map[FixQuality]int, len(a.fixQualityDist))
	for k, v := range a.fixQualityDist {
		dist[k] = v
	}
	return dist
}

// Average reduces the accepted samples to a mean Fix and a Stats
// description of their spread. It errors if no sample has been accepted
// yet.
func (a *Averager) Average() (Fix, Stats, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.samples) == 0 {
		return Fix{}, Stats{}, fmt.Errorf("position: no samples accepted for averaging")
	}

	var sumLat, sumLon, sumAlt float64
	minTime, maxTime := a.samples[0].Timestamp, a.samples[0].Timestamp
	for _, s := range a.samples {
		sumLat += s.Latitude
		sumLon += s.Longitude
		sumAlt += altitudeOf(s)
		if s.Timestamp.Before(minTime) {
			minTime = s.Timestamp
		}
		if s.Timestamp.After(maxTime) {
			maxTime = s.Timestamp
		}
	}
	n := float64(len(a.samples))
	avgLat, avgLon, avgAlt := sumLat/n, sumLon/n, sumAlt/n

	var sqLat, sqLon, sqAlt float64
	for _, s := range a.samples {
		sqLat += math.Pow(s.Latitude-avgLat, 2)
		sqLon += math.Pow(s.Longitude-avgLon, 2)
		sqAlt += math.Pow(altitudeOf(s)-avgAlt, 2)
	}

	mean := Fix{
		Latitude:  avgLat,
		Longitude: avgLon,
		Altitude:  &avgAlt,
		Quality:   a.minQuality,
		Timestamp: maxTime,
	}
	stats := Stats{
		SampleCount:            len(a.samples),
		Duration:               maxTime.Sub(minTime),
		LatitudeStdDev:         math.Sqrt(sqLat / n),
		LongitudeStdDev:        math.Sqrt(sqLon / n),
		AltitudeStdDev:         math.Sqrt(sqAlt / n),
		StartTime:              minTime,
		EndTime:                maxTime,
		FixQualityDistribution: cloneDist(a.fixQualityDist),
	}
	return mean, stats, nil
}

func altitudeOf(f Fix) float64 {
	if f.Altitude == nil {
		return 0
	}
	return *f.Altitude
}

func cloneDist(dist map[FixQuality]int) map[FixQuality]int {
	out := make(map[FixQuality]int, len(dist))
	for k, v := range dist {
		out[k] = v
	}
	return out
}
