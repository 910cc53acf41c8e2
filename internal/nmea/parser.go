package nmea

import (
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bramburn/rtkcore/internal/eventbus"
	"github.com/bramburn/rtkcore/internal/position"
)

// maxLineBuffer is the 1 KiB ceiling on an unterminated line spec §4.1
// mandates before truncating and emitting a frame-overflow warning.
const maxLineBuffer = 1024

// Parser turns a byte stream into validated, typed sentences. It owns the
// line buffer (single-writer via Feed, single-reader internally) and the
// last-known position/satellite state.
type Parser struct {
	buf []byte

	gsvTotal   int
	gsvView    position.SatelliteView

	tracker *position.Tracker
	bus     *eventbus.Bus
	log     *logrus.Entry
}

// New returns a Parser that publishes position and satellite updates onto
// bus and tracker as sentences complete.
func New(bus *eventbus.Bus, tracker *position.Tracker, log *logrus.Entry) *Parser {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Parser{
		tracker: tracker,
		bus:     bus,
		log:     log,
	}
}

// Feed appends data to the internal buffer and returns every sentence
// completed by it, in the order they terminate in the input.
func (p *Parser) Feed(data []byte) []Sentence {
	p.buf = append(p.buf, data...)

	var out []Sentence
	for {
		idx := indexCRLF(p.buf)
		if idx < 0 {
			break
		}
		line := string(p.buf[:idx])
		p.buf = p.buf[idx+2:]

		if line == "" {
			continue
		}
		if s, ok := p.parseLine(line); ok {
			out = append(out, s)
		}
	}

	if len(p.buf) > maxLineBuffer {
		p.log.WithField("size", len(p.buf)).Warn("frame-overflow: truncating unterminated NMEA line")
		p.buf = p.buf[:0]
	}

	return out
}

// indexCRLF returns the index of the first "\r\n" in buf, or -1.
func indexCRLF(buf []byte) int {
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] == '\r' && buf[i+1] == '\n' {
			return i
		}
	}
	return -1
}

// parseLine validates and parses a single delimited line. It never
// surfaces an error to the caller: invalid sentences are dropped with a
// debug log, per spec §4.1.
func (p *Parser) parseLine(line string) (Sentence, bool) {
	body, ok := validate(line)
	if !ok {
		p.log.WithField("line", line).Debug("nmea: dropping sentence with bad frame or checksum")
		return Sentence{}, false
	}

	fields := strings.Split(body, ",")
	if len(fields) < 1 || len(fields[0]) < 6 {
		return Sentence{}, false
	}
	// fields[0] is "$" + 2-char talker ID + 3-char formatter.
	formatter := fields[0][len(fields[0])-3:]
	rest := fields[1:]

	sentence := Sentence{Raw: line, ReceivedAt: time.Now().UTC()}

	switch formatter {
	case "GGA":
		sentence.Kind = KindGGA
		sentence.GGA = parseGGA(rest)
		p.onGGA(sentence.GGA)
	case "RMC":
		sentence.Kind = KindRMC
		sentence.RMC = parseRMC(rest)
		p.onRMC(sentence.RMC)
	case "GSA":
		sentence.Kind = KindGSA
		sentence.GSA = parseGSA(rest)
	case "GSV":
		sentence.Kind = KindGSV
		sentence.GSV = parseGSV(rest)
		p.onGSV(sentence.GSV)
	case "GST":
		sentence.Kind = KindGST
		sentence.GST = parseGST(rest)
	case "VTG":
		sentence.Kind = KindVTG
		sentence.VTG = parseVTG(rest)
	default:
		sentence.Kind = KindUnknown
		sentence.UnknownType = formatter
	}

	if p.bus != nil {
		p.bus.Publish(eventbus.Event{
			Kind: eventbus.KindNMEASentence,
			Payload: eventbus.NMEASentencePayload{
				Type: formatter,
				Raw:  line,
			},
		})
	}

	return sentence, true
}

// validate checks the $...*HH frame and XOR checksum, returning the body
// between (and including) '$' and the formatter/fields, without the
// checksum suffix.
func validate(line string) (string, bool) {
	if len(line) < 6 || line[0] != '$' {
		return "", false
	}
	star := strings.LastIndexByte(line, '*')
	if star < 0 || star != strings.IndexByte(line, '*') {
		return "", false
	}
	if len(line)-star-1 != 2 {
		return "", false
	}
	hex := line[star+1:]
	if !isUpperHex(hex[0]) || !isUpperHex(hex[1]) {
		return "", false
	}
	want, err := strconv.ParseUint(hex, 16, 8)
	if err != nil {
		return "", false
	}
	got := checksum(line[1:star])
	if byte(want) != got {
		return "", false
	}
	return line[:star], true
}

func isUpperHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'F')
}

// field returns fields[i] or "" if out of range.
func field(fields []string, i int) string {
	if i < 0 || i >= len(fields) {
		return ""
	}
	return fields[i]
}

func parseFloatOrZero(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseFloatOrNil(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseIntOrZero(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}

func parseUintOrZero(s string) uint {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return uint(v)
}

// convertCoordinate turns an NMEA DDMM.mmmm / DDDMM.mmmm value into signed
// decimal degrees: deg + min/60, with the sign taken from the hemisphere
// letter.
func convertCoordinate(raw string, negative bool) float64 {
	v := parseFloatOrZero(raw)
	degrees := float64(int(v / 100))
	minutes := v - degrees*100
	decimal := degrees + minutes/60
	if negative {
		decimal = -decimal
	}
	return decimal
}

// parseNMEATime parses an hhmmss[.sss] time field against today's UTC date.
func parseNMEATime(s string) time.Time {
	if len(s) < 6 {
		return time.Time{}
	}
	hour := parseIntOrZero(s[0:2])
	minute := parseIntOrZero(s[2:4])
	seconds := parseFloatOrZero(s[4:])
	now := time.Now().UTC()
	whole := int(seconds)
	nanos := int((seconds - float64(whole)) * 1e9)
	return time.Date(now.Year(), now.Month(), now.Day(), hour, minute, whole, nanos, time.UTC)
}

// parseNMEADate parses a ddmmyy date field, assuming the 20xx century.
func parseNMEADate(s string) time.Time {
	if len(s) != 6 {
		return time.Time{}
	}
	day := parseIntOrZero(s[0:2])
	month := parseIntOrZero(s[2:4])
	year := 2000 + parseIntOrZero(s[4:6])
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

func parseGGA(f []string) *GGAData {
	latDir := field(f, 2)
	lonDir := field(f, 4)
	data := &GGAData{
		Time:            parseNMEATime(field(f, 0)),
		Latitude:        convertCoordinate(field(f, 1), latDir == "S"),
		Longitude:       convertCoordinate(field(f, 3), lonDir == "W"),
		FixQuality:      parseIntOrZero(field(f, 5)),
		Satellites:      parseUintOrZero(field(f, 6)),
		HDOP:            parseFloatOrZero(field(f, 7)),
		Altitude:        parseFloatOrNil(field(f, 8)),
		AltitudeUnits:   field(f, 9),
		GeoidSeparation: parseFloatOrNil(field(f, 10)),
		GeoidUnits:      field(f, 11),
		DGPSAge:         parseFloatOrNil(field(f, 12)),
		DGPSStationID:   field(f, 13),
	}
	return data
}

func parseRMC(f []string) *RMCData {
	latDir := field(f, 3)
	lonDir := field(f, 5)
	return &RMCData{
		Time:             parseNMEATime(field(f, 0)),
		Status:           field(f, 1),
		Latitude:         convertCoordinate(field(f, 2), latDir == "S"),
		Longitude:        convertCoordinate(field(f, 4), lonDir == "W"),
		SpeedOverGround:  parseFloatOrZero(field(f, 6)),
		CourseOverGround: parseFloatOrZero(field(f, 7)),
		Date:             parseNMEADate(field(f, 8)),
		MagneticVar:      parseFloatOrNil(field(f, 9)),
		Mode:             field(f, 11),
	}
}

func parseGSA(f []string) *GSAData {
	data := &GSAData{
		Mode:    field(f, 0),
		FixType: parseIntOrZero(field(f, 1)),
	}
	for i := 2; i < 14 && i < len(f); i++ {
		if f[i] == "" {
			continue
		}
		data.PRNs = append(data.PRNs, parseUintOrZero(f[i]))
	}
	data.PDOP = parseFloatOrZero(field(f, 14))
	data.HDOP = parseFloatOrZero(field(f, 15))
	data.VDOP = parseFloatOrZero(field(f, 16))
	return data
}

func parseGSV(f []string) *GSVData {
	data := &GSVData{
		MessageCount:     parseIntOrZero(field(f, 0)),
		MessageIndex:     parseIntOrZero(field(f, 1)),
		SatellitesInView: parseIntOrZero(field(f, 2)),
	}
	for base := 3; base+3 <= len(f); base += 4 {
		prn := parseUintOrZero(field(f, base))
		if prn == 0 {
			continue
		}
		data.Satellites = append(data.Satellites, GSVSatellite{
			PRN:       prn,
			Elevation: parseFloatOrZero(field(f, base+1)),
			Azimuth:   parseFloatOrZero(field(f, base+2)),
			SNR:       parseFloatOrNil(field(f, base+3)),
		})
	}
	return data
}

func parseGST(f []string) *GSTData {
	return &GSTData{
		Time:        parseNMEATime(field(f, 0)),
		RMS:         parseFloatOrZero(field(f, 1)),
		SemiMajor:   parseFloatOrZero(field(f, 2)),
		SemiMinor:   parseFloatOrZero(field(f, 3)),
		Orientation: parseFloatOrZero(field(f, 4)),
		LatError:    parseFloatOrZero(field(f, 5)),
		LonError:    parseFloatOrZero(field(f, 6)),
		AltError:    parseFloatOrZero(field(f, 7)),
	}
}

func parseVTG(f []string) *VTGData {
	return &VTGData{
		TrueCourse:     parseFloatOrNil(field(f, 0)),
		MagneticCourse: parseFloatOrNil(field(f, 2)),
		SpeedKnots:     parseFloatOrNil(field(f, 4)),
		SpeedKmh:       parseFloatOrNil(field(f, 6)),
		Mode:           field(f, 8),
	}
}

// onGGA updates the tracker and emits a position event for a valid fix.
func (p *Parser) onGGA(d *GGAData) {
	if d == nil {
		return
	}
	fix := position.Fix{
		Latitude:   d.Latitude,
		Longitude:  d.Longitude,
		Altitude:   d.Altitude,
		Quality:    position.FixQuality(d.FixQuality),
		Satellites: d.Satellites,
		HDOP:       d.HDOP,
		Timestamp:  d.Time,
	}
	p.publishFix(fix)
}

// onRMC updates the tracker and emits a position event for a valid fix.
// RMC carries no fix-quality field; an active ('A') status is treated as
// autonomous.
func (p *Parser) onRMC(d *RMCData) {
	if d == nil {
		return
	}
	quality := position.FixNone
	if d.Status == "A" {
		quality = position.FixAutonomous
	}
	fix := position.Fix{
		Latitude:  d.Latitude,
		Longitude: d.Longitude,
		Quality:   quality,
		Timestamp: d.Time,
	}
	p.publishFix(fix)
}

func (p *Parser) publishFix(fix position.Fix) {
	if err := fix.Validate(); err != nil {
		p.log.WithError(err).Debug("nmea: dropping out-of-range fix")
		return
	}
	if p.tracker != nil {
		p.tracker.SetFix(fix)
	}
	if p.bus == nil {
		return
	}
	p.bus.Publish(eventbus.Event{
		Kind: eventbus.KindPosition,
		Payload: eventbus.PositionPayload{
			Latitude:   fix.Latitude,
			Longitude:  fix.Longitude,
			Altitude:   fix.Altitude,
			Quality:    int(fix.Quality),
			Satellites: fix.Satellites,
			HDOP:       fix.HDOP,
		},
	})
}

// onGSV assembles the satellite view across a GSV message set: clear at
// k=1, accumulate each message's records, publish at k=N.
func (p *Parser) onGSV(d *GSVData) {
	if d == nil {
		return
	}
	if d.MessageIndex == 1 || p.gsvView == nil {
		p.gsvView = make(position.SatelliteView)
		p.gsvTotal = d.MessageCount
	}
	for _, sat := range d.Satellites {
		p.gsvView[sat.PRN] = position.SatelliteInfo{
			PRN:       sat.PRN,
			Elevation: sat.Elevation,
			Azimuth:   sat.Azimuth,
			SNR:       sat.SNR,
		}
	}
	if d.MessageIndex >= d.MessageCount && d.MessageCount > 0 {
		view := p.gsvView
		p.gsvView = nil
		if p.tracker != nil {
			p.tracker.SetSatellites(view)
		}
		if p.bus != nil {
			prns := make([]uint, 0, len(view))
			for prn := range view {
				prns = append(prns, prn)
			}
			p.bus.Publish(eventbus.Event{
				Kind:    eventbus.KindSatellites,
				Payload: eventbus.SatellitesPayload{PRNs: prns},
			})
		}
	}
}
