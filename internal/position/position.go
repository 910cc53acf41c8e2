// Package position holds the GNSS position fix and satellite visibility
// types shared across the NMEA parser, the GGA generator, and the NTRIP
// client.
package position

import (
	"fmt"
	"sync"
	"time"
)

// FixQuality is the NMEA GGA/GNS fix-quality enumeration.
type FixQuality int

const (
	FixNone         FixQuality = 0
	FixAutonomous   FixQuality = 1
	FixDifferential FixQuality = 2
	FixPPS          FixQuality = 3
	FixRTKFixed     FixQuality = 4
	FixRTKFloat     FixQuality = 5
	FixEstimated    FixQuality = 6
	FixManual       FixQuality = 7
	FixSimulator    FixQuality = 8
)

func (q FixQuality) String() string {
	switch q {
	case FixNone:
		return "none"
	case FixAutonomous:
		return "autonomous"
	case FixDifferential:
		return "differential"
	case FixPPS:
		return "pps"
	case FixRTKFixed:
		return "rtk-fixed"
	case FixRTKFloat:
		return "rtk-float"
	case FixEstimated:
		return "estimated"
	case FixManual:
		return "manual"
	case FixSimulator:
		return "simulator"
	default:
		return fmt.Sprintf("unknown(%d)", int(q))
	}
}

// GetFixQualityDescription returns a human readable description of a raw
// NMEA fix-quality integer.
func GetFixQualityDescription(quality int) string {
	return FixQuality(quality).String()
}

// Fix is a single GNSS position observation, as produced by a GGA or RMC
// sentence.
type Fix struct {
	Latitude   float64
	Longitude  float64
	Altitude   *float64
	Quality    FixQuality
	Satellites uint
	HDOP       float64
	Timestamp  time.Time
}

// Validate enforces the latitude/longitude invariants of the data model.
func (f Fix) Validate() error {
	if f.Latitude < -90 || f.Latitude > 90 {
		return fmt.Errorf("position: latitude %f out of range [-90,90]", f.Latitude)
	}
	if f.Longitude < -180 || f.Longitude > 180 {
		return fmt.Errorf("position: longitude %f out of range [-180,180]", f.Longitude)
	}
	return nil
}

// UsableForGGA reports whether this fix may be used as an NTRIP GGA source.
// A fix with quality=0 is reported but never used to seed a caster GGA.
func (f Fix) UsableForGGA() bool {
	return f.Quality != FixNone
}

// SatelliteInfo is a single satellite's visibility record, keyed by PRN in
// SatelliteView.
type SatelliteInfo struct {
	PRN       uint
	Elevation float64
	Azimuth   float64
	SNR       *float64
}

// SatelliteView is the set of satellites seen in the most recently completed
// GSV message set. It is rebuilt wholesale at the end of each set, never
// mutated incrementally by callers.
type SatelliteView map[uint]SatelliteInfo

// Tracker owns the last-known position fix and the last published satellite
// view: single-writer (the NMEA feed path), many-reader (observers), per
// spec §5.
type Tracker struct {
	mu         sync.RWMutex
	lastFix    *Fix
	satellites SatelliteView
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// SetFix records the most recent position fix.
func (t *Tracker) SetFix(f Fix) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fixCopy := f
	t.lastFix = &fixCopy
}

// LastFix returns the most recently recorded fix, if any.
func (t *Tracker) LastFix() (Fix, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.lastFix == nil {
		return Fix{}, false
	}
	return *t.lastFix, true
}

// SetSatellites publishes a completed GSV satellite view.
func (t *Tracker) SetSatellites(view SatelliteView) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.satellites = view
}

// Satellites returns a copy of the last published satellite view.
func (t *Tracker) Satellites() SatelliteView {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(SatelliteView, len(t.satellites))
	for prn, info := range t.satellites {
		out[prn] = info
	}
	return out
}
