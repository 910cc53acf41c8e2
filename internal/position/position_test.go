package position

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixValidateRejectsOutOfRangeCoordinates(t *testing.T) {
	cases := []struct {
		name string
		fix  Fix
		ok   bool
	}{
		{"valid", Fix{Latitude: 48.1, Longitude: 11.5}, true},
		{"lat too high", Fix{Latitude: 91, Longitude: 0}, false},
		{"lat too low", Fix{Latitude: -91, Longitude: 0}, false},
		{"lon too high", Fix{Latitude: 0, Longitude: 181}, false},
		{"lon too low", Fix{Latitude: 0, Longitude: -181}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.fix.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestFixUsableForGGA(t *testing.T) {
	assert.False(t, Fix{Quality: FixNone}.UsableForGGA())
	assert.True(t, Fix{Quality: FixAutonomous}.UsableForGGA())
	assert.True(t, Fix{Quality: FixRTKFixed}.UsableForGGA())
}

func TestGetFixQualityDescription(t *testing.T) {
	tests := []struct {
		quality  int
		expected string
	}{
		{0, "none"},
		{1, "autonomous"},
		{2, "differential"},
		{3, "pps"},
		{4, "rtk-fixed"},
		{5, "rtk-float"},
		{6, "estimated"},
		{7, "manual"},
		{8, "simulator"},
		{9, "unknown(9)"},
	}
	for _, test := range tests {
		assert.Equal(t, test.expected, GetFixQualityDescription(test.quality))
	}
}

func TestTrackerSetAndGetFix(t *testing.T) {
	tr := NewTracker()
	_, ok := tr.LastFix()
	assert.False(t, ok)

	alt := 12.3
	tr.SetFix(Fix{Latitude: 48.1, Longitude: 11.5, Altitude: &alt, Quality: FixRTKFixed, Timestamp: time.Now()})

	got, ok := tr.LastFix()
	require.True(t, ok)
	assert.Equal(t, 48.1, got.Latitude)
	require.NotNil(t, got.Altitude)
	assert.Equal(t, alt, *got.Altitude)

	// Mutating the returned copy must not affect the tracker's state.
	*got.Altitude = 99
	again, _ := tr.LastFix()
	assert.Equal(t, alt, *again.Altitude)
}

func TestTrackerSatellitesDefensiveCopy(t *testing.T) {
	tr := NewTracker()
	view := SatelliteView{5: {PRN: 5, Elevation: 10}}
	tr.SetSatellites(view)

	got := tr.Satellites()
	got[5] = SatelliteInfo{PRN: 5, Elevation: 999}

	again := tr.Satellites()
	assert.Equal(t, float64(10), again[5].Elevation)
}
