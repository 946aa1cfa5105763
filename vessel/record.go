// Package vessel defines the normalized VesselRecord intermediate and the
// decoder that produces one from a raw upstream JSON frame.
package vessel

import "time"

// Kind identifies which AIS message family a record represents.
type Kind int

const (
	// PositionClassA is AIS message type 1 (Class A position report).
	PositionClassA Kind = iota
	// StaticVoyage is AIS message type 5 (static and voyage data).
	StaticVoyage
	// PositionClassB is AIS message type 18 (Class B position report).
	PositionClassB
	// StaticReport is AIS message type 24 (static data report, parts A/B).
	StaticReport
)

func (k Kind) String() string {
	switch k {
	case PositionClassA:
		return "PositionClassA"
	case StaticVoyage:
		return "StaticVoyage"
	case PositionClassB:
		return "PositionClassB"
	case StaticReport:
		return "StaticReport"
	default:
		return "Unknown"
	}
}

// MessageType returns the AIS wire message type number this kind encodes
// as (type 24 covers both Part A and Part B).
func (k Kind) MessageType() int {
	switch k {
	case PositionClassA:
		return 1
	case StaticVoyage:
		return 5
	case PositionClassB:
		return 18
	case StaticReport:
		return 24
	default:
		return 0
	}
}

// Record is the normalized intermediate produced by the decoder and
// consumed by the encoder. Optional numeric fields use a pointer so that
// "absent" is distinguishable from "present with sentinel value" — the
// encoder is responsible for translating absence into the AIS wire
// sentinel per field, per spec §4.2.
type Record struct {
	MMSI uint32
	Kind Kind

	Lat *float64 // decimal degrees; sentinel 91.0 means not available
	Lon *float64 // decimal degrees; sentinel 181.0 means not available

	SOG *float64 // knots, 0..102.2
	COG *float64 // degrees, 0..<360
	Heading *int // degrees, 0..359

	ROT *int // -127..+127

	NavStatus *int // 0..15
	TimestampSeconds *int // 0..63

	PositionAccuracy bool
	RAIM             bool

	VesselName string // uppercase, truncated/padded to 20 by the encoder
	Callsign   string // truncated/padded to 7 by the encoder
	VesselType *int   // 0..255

	ObservedAt time.Time
}

// Valid reports whether the record carries a non-zero MMSI, the only
// hard precondition spec §4.2's encoder imposes before it will attempt
// to encode at all.
func (r *Record) Valid() bool {
	return r.MMSI > 0
}
