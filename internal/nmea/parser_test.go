package nmea

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bramburn/rtkcore/internal/eventbus"
	"github.com/bramburn/rtkcore/internal/position"
)

func newTestParser() (*Parser, *position.Tracker) {
	tracker := position.NewTracker()
	return New(eventbus.New(), tracker, nil), tracker
}

func TestFeedChecksumParse(t *testing.T) {
	p, tracker := newTestParser()
	line := "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47\r\n"

	sentences := p.Feed([]byte(line))

	require.Len(t, sentences, 1)
	require.Equal(t, KindGGA, sentences[0].Kind)
	require.NotNil(t, sentences[0].GGA)

	fix, ok := tracker.LastFix()
	require.True(t, ok)
	assert.InDelta(t, 48.1173, fix.Latitude, 1e-4)
	assert.InDelta(t, 11.5166667, fix.Longitude, 1e-4)
	assert.Equal(t, position.FixAutonomous, fix.Quality)
	assert.EqualValues(t, 8, fix.Satellites)
	assert.Equal(t, 0.9, fix.HDOP)
	require.NotNil(t, fix.Altitude)
	assert.Equal(t, 545.4, *fix.Altitude)
}

func TestFeedBadChecksumDropsSentence(t *testing.T) {
	p, tracker := newTestParser()
	line := "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*00\r\n"

	sentences := p.Feed([]byte(line))

	assert.Empty(t, sentences)
	_, ok := tracker.LastFix()
	assert.False(t, ok)
}

func TestFeedSplitAcrossCalls(t *testing.T) {
	p, _ := newTestParser()
	full := "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47\r\n"

	first := p.Feed([]byte(full[:len(full)-1])) // withholds the trailing "\n"
	assert.Empty(t, first)

	second := p.Feed([]byte("\n"))
	require.Len(t, second, 1)
	assert.Equal(t, KindGGA, second[0].Kind)
}

func TestFeedStreamingIdempotence(t *testing.T) {
	stream := "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47\r\n" +
		"$GPRMC,083559.00,A,4717.11437,N,00833.91522,E,0.004,77.52,091202,,,A*57\r\n" +
		"$GPGSV,1,1,03,05,10,020,30,12,20,030,35,25,30,040,40*4F\r\n"

	reference, _ := newTestParser()
	want := reference.Feed([]byte(stream))
	require.Len(t, want, 3)

	for trial := 0; trial < 20; trial++ {
		p, _ := newTestParser()
		var got []Sentence
		remaining := []byte(stream)
		for len(remaining) > 0 {
			n := 1 + rand.Intn(len(remaining))
			if n > len(remaining) {
				n = len(remaining)
			}
			got = append(got, p.Feed(remaining[:n])...)
			remaining = remaining[n:]
		}
		require.Len(t, got, len(want))
		for i := range want {
			assert.Equal(t, want[i].Kind, got[i].Kind)
			assert.Equal(t, want[i].Raw, got[i].Raw)
		}
	}
}

func TestGSVSetAssembly(t *testing.T) {
	p, tracker := newTestParser()

	msgs := []string{
		"$GPGSV,3,1,09,05,10,020,30,12,20,030,35,25,30,040,40,01,05,010,20*70\r\n",
		"$GPGSV,3,2,09,02,15,050,25,03,25,060,28,04,35,070,33,06,45,080,38*7C\r\n",
		"$GPGSV,3,3,09,07,55,090,42,26,65,100,44,00,00,000,00*4E\r\n",
	}

	for _, m := range msgs {
		p.Feed([]byte(m))
	}

	view := tracker.Satellites()
	// The view published at k=N holds satellites from every message in the
	// set; PRN 0 (padding in the third message) is skipped.
	assert.Contains(t, view, uint(5))
	assert.Contains(t, view, uint(2))
	assert.Contains(t, view, uint(7))
	assert.NotContains(t, view, uint(0))
}

func TestGSVNewSetClearsPreviousView(t *testing.T) {
	p, tracker := newTestParser()

	p.Feed([]byte("$GPGSV,1,1,01,05,10,020,30*4D\r\n"))
	first := tracker.Satellites()
	assert.Contains(t, first, uint(5))

	p.Feed([]byte("$GPGSV,1,1,01,12,20,030,35*4C\r\n"))
	second := tracker.Satellites()
	assert.Contains(t, second, uint(12))
	assert.NotContains(t, second, uint(5))
}

func TestFrameOverflowTruncatesUnterminatedBuffer(t *testing.T) {
	p, _ := newTestParser()

	oversized := make([]byte, maxLineBuffer+1)
	for i := range oversized {
		oversized[i] = 'A'
	}
	oversized[0] = '$'

	sentences := p.Feed(oversized)
	assert.Empty(t, sentences)
	assert.Empty(t, p.buf)
}

func TestEmptyLinesSkippedSilently(t *testing.T) {
	p, _ := newTestParser()
	sentences := p.Feed([]byte("\r\n\r\n$GPGSA,A,3,05,12,25,,,,,,,,,,2.5,1.8,1.7*3B\r\n"))
	require.Len(t, sentences, 1)
	assert.Equal(t, KindGSA, sentences[0].Kind)
}

func TestUnknownFormatterCarriesRawLine(t *testing.T) {
	p, _ := newTestParser()
	sentences := p.Feed([]byte("$GPXYZ,1,2,3*50\r\n"))
	require.Len(t, sentences, 1)
	assert.Equal(t, KindUnknown, sentences[0].Kind)
	assert.Equal(t, "XYZ", sentences[0].UnknownType)
}
