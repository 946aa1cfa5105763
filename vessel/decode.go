package vessel

import (
	"encoding/json"
	"fmt"
	"time"
)

// DecodeError is returned for a structurally malformed upstream frame
// (spec §4.3: numeric strings in numeric fields are rejected as
// DecodeError; everything else is either decoded or Ignored).
type DecodeError struct {
	Reason string
	Cause  error
}

func (e *DecodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("vessel: decode error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("vessel: decode error: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// ErrIgnored is returned when the frame is well-formed JSON but carries
// none of the five recognized message variants.
var ErrIgnored = fmt.Errorf("vessel: frame ignored, no recognized message variant")

// metaData mirrors the upstream frame's top-level MetaData object.
type metaData struct {
	MMSI      uint32   `json:"MMSI"`
	TimeUTC   string   `json:"time_utc"`
	ShipName  string   `json:"ShipName"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type positionReport struct {
	Sog                float64 `json:"Sog"`
	Cog                float64 `json:"Cog"`
	TrueHeading        int     `json:"TrueHeading"`
	RateOfTurn         int     `json:"RateOfTurn"`
	NavigationalStatus int     `json:"NavigationalStatus"`
	Timestamp          int     `json:"Timestamp"`
	PositionAccuracy   bool    `json:"PositionAccuracy"`
	Raim               bool    `json:"Raim"`
	Latitude           float64 `json:"Latitude"`
	Longitude          float64 `json:"Longitude"`
}

type standardClassBPositionReport struct {
	Cog              float64 `json:"Cog"`
	Sog              float64 `json:"Sog"`
	TrueHeading      int     `json:"TrueHeading"`
	Timestamp        int     `json:"Timestamp"`
	PositionAccuracy bool    `json:"PositionAccuracy"`
	Raim             bool    `json:"Raim"`
	Latitude         float64 `json:"Latitude"`
	Longitude        float64 `json:"Longitude"`
}

type shipStaticData struct {
	ShipName string `json:"ShipName"`
	CallSign string `json:"CallSign"`
	Type     int    `json:"Type"`
}

type staticDataReport struct {
	ShipName string `json:"ShipName"`
	CallSign string `json:"CallSign"`
	Type     int    `json:"Type"`
}

type upstreamMessage struct {
	PositionReport               *positionReport               `json:"PositionReport"`
	ShipAndVoyageData            *shipStaticData               `json:"ShipAndVoyageData"`
	StandardClassBPositionReport *standardClassBPositionReport `json:"StandardClassBPositionReport"`
	ShipStaticData               *shipStaticData               `json:"ShipStaticData"`
	StaticDataReport             *staticDataReport             `json:"StaticDataReport"`
}

type upstreamFrame struct {
	MetaData metaData        `json:"MetaData"`
	Message  upstreamMessage `json:"Message"`
}

// DefaultedMetadataCoordinates reports whether the decoder substituted
// 0.0 for a missing metadata latitude/longitude on a static-variant
// frame, per spec §4.3 ("noted in statistics but not rejected"). Callers
// that track decode statistics should inspect this alongside the
// returned Record.
type DefaultedMetadataCoordinates bool

// Decode parses a raw upstream JSON frame into a normalized Record.
// It returns ErrIgnored if the frame carries none of the five recognized
// variants, or a *DecodeError if a numeric field was supplied as a JSON
// string (a structural malformation, not a business-logic condition).
func Decode(frameBytes []byte, now time.Time) (*Record, DefaultedMetadataCoordinates, error) {
	var frame upstreamFrame
	if err := json.Unmarshal(frameBytes, &frame); err != nil {
		return nil, false, &DecodeError{Reason: "malformed JSON or numeric field supplied as string", Cause: err}
	}

	rec := &Record{
		MMSI:       frame.MetaData.MMSI,
		ObservedAt: now,
	}

	switch {
	case frame.Message.PositionReport != nil:
		p := frame.Message.PositionReport
		rec.Kind = PositionClassA
		lat, lon := p.Latitude, p.Longitude
		rec.Lat, rec.Lon = &lat, &lon
		rec.SOG = floatPtr(p.Sog)
		rec.COG = floatPtr(p.Cog)
		rec.Heading = intPtr(p.TrueHeading)
		rec.ROT = intPtr(p.RateOfTurn)
		rec.NavStatus = intPtr(p.NavigationalStatus)
		rec.TimestampSeconds = intPtr(p.Timestamp)
		rec.PositionAccuracy = p.PositionAccuracy
		rec.RAIM = p.Raim
		return rec, false, nil

	case frame.Message.StandardClassBPositionReport != nil:
		p := frame.Message.StandardClassBPositionReport
		rec.Kind = PositionClassB
		lat, lon := p.Latitude, p.Longitude
		rec.Lat, rec.Lon = &lat, &lon
		rec.SOG = floatPtr(p.Sog)
		rec.COG = floatPtr(p.Cog)
		rec.Heading = intPtr(p.TrueHeading)
		rec.TimestampSeconds = intPtr(p.Timestamp)
		rec.PositionAccuracy = p.PositionAccuracy
		rec.RAIM = p.Raim
		return rec, false, nil

	case frame.Message.ShipStaticData != nil, frame.Message.ShipAndVoyageData != nil:
		rec.Kind = StaticVoyage
		var name, call string
		var shipType int
		if frame.Message.ShipStaticData != nil {
			name, call, shipType = frame.Message.ShipStaticData.ShipName, frame.Message.ShipStaticData.CallSign, frame.Message.ShipStaticData.Type
		} else {
			name, call, shipType = frame.Message.ShipAndVoyageData.ShipName, frame.Message.ShipAndVoyageData.CallSign, frame.Message.ShipAndVoyageData.Type
		}
		if name == "" {
			name = frame.MetaData.ShipName
		}
		rec.VesselName = name
		rec.Callsign = call
		rec.VesselType = intPtr(shipType)
		defaulted := applyMetadataCoordinates(rec, &frame.MetaData)
		return rec, defaulted, nil

	case frame.Message.StaticDataReport != nil:
		s := frame.Message.StaticDataReport
		rec.Kind = StaticReport
		name := s.ShipName
		if name == "" {
			name = frame.MetaData.ShipName
		}
		rec.VesselName = name
		rec.Callsign = s.CallSign
		rec.VesselType = intPtr(s.Type)
		defaulted := applyMetadataCoordinates(rec, &frame.MetaData)
		return rec, defaulted, nil

	default:
		return nil, false, ErrIgnored
	}
}

// applyMetadataCoordinates fills a static-variant record's Lat/Lon from
// MetaData, defaulting to 0.0 when metadata omits them, per spec §4.3.
func applyMetadataCoordinates(rec *Record, meta *metaData) DefaultedMetadataCoordinates {
	defaulted := false
	lat := 0.0
	lon := 0.0
	if meta.Latitude != nil {
		lat = *meta.Latitude
	} else {
		defaulted = true
	}
	if meta.Longitude != nil {
		lon = *meta.Longitude
	} else {
		defaulted = true
	}
	rec.Lat, rec.Lon = &lat, &lon
	return DefaultedMetadataCoordinates(defaulted)
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }
