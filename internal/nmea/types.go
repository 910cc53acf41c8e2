// Package nmea implements the NMEA 0183 framer and parser of spec §4.1:
// turning a byte stream from a GNSS receiver into validated, typed
// sentences and position/satellite updates.
package nmea

import "time"

// Kind discriminates the parsed sentence payload carried by a Sentence.
type Kind int

const (
	KindGGA Kind = iota
	KindGSA
	KindGSV
	KindRMC
	KindGST
	KindVTG
	KindUnknown
)

// Sentence is the tagged union over the six parsed sentence kinds plus
// Unknown. Exactly one of the typed payload fields is populated, selected
// by Kind.
type Sentence struct {
	Kind       Kind
	Raw        string
	ReceivedAt time.Time

	GGA *GGAData
	GSA *GSAData
	GSV *GSVData
	RMC *RMCData
	GST *GSTData
	VTG *VTGData

	// UnknownType carries the three-letter formatter when Kind == KindUnknown.
	UnknownType string
}

// GGAData is the parsed payload of a GGA (fix data) sentence.
type GGAData struct {
	Time              time.Time
	Latitude          float64
	Longitude         float64
	FixQuality        int
	Satellites        uint
	HDOP              float64
	Altitude          *float64
	AltitudeUnits     string
	GeoidSeparation   *float64
	GeoidUnits        string
	DGPSAge           *float64
	DGPSStationID     string
}

// GSAData is the parsed payload of a GSA (DOP and active satellites)
// sentence.
type GSAData struct {
	Mode    string
	FixType int
	PRNs    []uint
	PDOP    float64
	HDOP    float64
	VDOP    float64
}

// GSVSatellite is one satellite record within a GSV message.
type GSVSatellite struct {
	PRN       uint
	Elevation float64
	Azimuth   float64
	SNR       *float64
}

// GSVData is the parsed payload of a single GSV (satellites in view)
// message. A GSV message set spans MessageCount messages; the parser
// assembles the satellite view across the set (see Parser.onGSV).
type GSVData struct {
	MessageCount    int
	MessageIndex    int
	SatellitesInView int
	Satellites      []GSVSatellite
}

// RMCData is the parsed payload of an RMC (recommended minimum) sentence.
type RMCData struct {
	Time             time.Time
	Status           string
	Latitude         float64
	Longitude        float64
	SpeedOverGround  float64
	CourseOverGround float64
	Date             time.Time
	MagneticVar      *float64
	Mode             string
}

// GSTData is the parsed payload of a GST (pseudorange noise statistics)
// sentence.
type GSTData struct {
	Time       time.Time
	RMS        float64
	SemiMajor  float64
	SemiMinor  float64
	Orientation float64
	LatError   float64
	LonError   float64
	AltError   float64
}

// VTGData is the parsed payload of a VTG (course and speed over ground)
// sentence.
type VTGData struct {
	TrueCourse     *float64
	MagneticCourse *float64
	SpeedKnots     *float64
	SpeedKmh       *float64
	Mode           string
}
