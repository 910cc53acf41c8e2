// Package gga builds the wire-correct $GPGGA sentence the NTRIP client
// pushes to VRS/MAC casters so they can select or synthesize a correction
// stream (spec §4.3). It formats the sentence directly with explicit digit
// widths rather than reusing a general NMEA writer — those widths are part
// of the wire contract some casters enforce.
package gga

import (
	"fmt"
	"math"
	"time"

	"github.com/bramburn/rtkcore/internal/nmea"
	"github.com/bramburn/rtkcore/internal/position"
)

// Sentinel is the pre-computed fallback sentence emitted when a generated
// GGA fails its own self-check.
const Sentinel = "$GPGGA,000000.000,0000.0000,N,00000.0000,E,1,08,1.0,0.0,M,0.0,M,,*65\r\n"

// defaultQuality, defaultSatellites, and defaultHDOP seed a caster that
// refuses to stream until it sees a GGA, when no real fix is available
// yet. 0.1/0.1 degrees (chosen by the caller, ntrip.Client.sendGGA) works around
// casters that reject (0,0); if a caster also rejects (0.1,0.1) the right
// fix is to have the application supply an approximate seed position, not
// to invent a third fallback value.
const (
	defaultQuality    = 1
	defaultSatellites = 8
	defaultHDOP       = 1.0
)

// UsedDefaults reports which fields Generate had to substitute because the
// source fix omitted them, so the caller can publish an
// ntrip:using-default-position warning.
type UsedDefaults struct {
	Quality    bool
	Satellites bool
	HDOP       bool
}

// Generate formats fix as a $GPGGA sentence, taking the time field from
// now's clock reading as given (callers pass the current UTC time). It re-parses its own output through the
// NMEA validator before returning; on any failure it returns Sentinel
// instead, along with an error describing why the self-check failed.
func Generate(fix position.Fix, now time.Time) (string, UsedDefaults, error) {
	quality := int(fix.Quality)
	satellites := fix.Satellites
	hdop := fix.HDOP
	var used UsedDefaults

	if quality == 0 {
		quality = defaultQuality
		used.Quality = true
	}
	if satellites == 0 {
		satellites = defaultSatellites
		used.Satellites = true
	}
	if hdop == 0 {
		hdop = defaultHDOP
		used.HDOP = true
	}

	altitude := 0.0
	if fix.Altitude != nil {
		altitude = *fix.Altitude
	}
	geoid := 0.0

	body := fmt.Sprintf("GPGGA,%s,%s,%s,%s,%s,%d,%02d,%.1f,%.1f,M,%.1f,M,,",
		formatTime(now),
		formatLatitude(fix.Latitude), hemisphereNS(fix.Latitude),
		formatLongitude(fix.Longitude), hemisphereEW(fix.Longitude),
		quality, satellites, hdop, altitude, geoid,
	)
	sentence := fmt.Sprintf("$%s*%s\r\n", body, checksumHex(body))

	if err := selfCheck(sentence); err != nil {
		return Sentinel, used, fmt.Errorf("gga: self-check failed, using sentinel: %w", err)
	}
	return sentence, used, nil
}

// selfCheck re-parses sentence through the NMEA parser and requires it to
// come back as a valid GGA sentence.
func selfCheck(sentence string) error {
	p := nmea.New(nil, nil, nil)
	sentences := p.Feed([]byte(sentence))
	if len(sentences) != 1 || sentences[0].Kind != nmea.KindGGA {
		return fmt.Errorf("generated sentence failed re-parse: %q", sentence)
	}
	return nil
}

func formatTime(t time.Time) string {
	return fmt.Sprintf("%02d%02d%06.3f", t.Hour(), t.Minute(), float64(t.Second())+float64(t.Nanosecond())/1e9)
}

// formatLatitude renders |lat| as DDMM.mmmmmmm, degrees zero-padded to 2.
func formatLatitude(lat float64) string {
	return formatDegrees(math.Abs(lat), 2)
}

// formatLongitude renders |lon| as DDDMM.mmmmmmm, degrees zero-padded to 3.
func formatLongitude(lon float64) string {
	return formatDegrees(math.Abs(lon), 3)
}

func formatDegrees(value float64, degreeWidth int) string {
	degrees := math.Floor(value)
	minutes := (value - degrees) * 60
	return fmt.Sprintf("%0*d%010.7f", degreeWidth, int(degrees), minutes)
}

func hemisphereNS(lat float64) string {
	if lat < 0 {
		return "S"
	}
	return "N"
}

func hemisphereEW(lon float64) string {
	if lon < 0 {
		return "W"
	}
	return "E"
}

// checksumHex mirrors the XOR-checksum computation of the nmea package so
// this package does not need to import its unexported helpers.
func checksumHex(data string) string {
	var cs byte
	for i := 0; i < len(data); i++ {
		cs ^= data[i]
	}
	return fmt.Sprintf("%02X", cs)
}
