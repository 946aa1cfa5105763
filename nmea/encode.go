package nmea

import (
	"strconv"
	"sync/atomic"

	"github.com/frye/ais-to-nmea0183/bitbuf"
	"github.com/frye/ais-to-nmea0183/vessel"
)

// type5MessageID is a monotonic counter, taken modulo 10, used to
// correlate the two fragments of a type-5 message sharing a message id,
// per spec §4.2.
var type5MessageID atomic.Uint32

// Encode builds the NMEA-0183 sentence(s) for a vessel record. It returns
// an empty slice (not an error) for a zero MMSI or an unsupported kind,
// per spec §4.2's failure semantics — this is a classified
// EncoderUnsupported condition at the caller, not an encoding error.
func Encode(rec *vessel.Record) []Sentence {
	if rec == nil || !rec.Valid() {
		return nil
	}
	switch rec.Kind {
	case vessel.PositionClassA:
		return []Sentence{encodeType1(rec)}
	case vessel.PositionClassB:
		return []Sentence{encodeType18(rec)}
	case vessel.StaticReport:
		return []Sentence{encodeType24A(rec), encodeType24B(rec)}
	case vessel.StaticVoyage:
		return encodeType5(rec)
	default:
		return nil
	}
}

func encodeType1(rec *vessel.Record) Sentence {
	b := bitbuf.New(168)
	b.WriteUint(0, 6, 1) // type
	b.WriteUint(6, 2, 0) // repeat
	b.WriteUint(8, 30, uint64(rec.MMSI))
	b.WriteUint(38, 4, navStatusRaw(rec.NavStatus))
	b.WriteInt(42, 8, int64(rotRaw(rec.ROT)))
	b.WriteUint(50, 10, sogRaw(rec.SOG))
	b.WriteUint(60, 1, boolRaw(rec.PositionAccuracy))
	b.WriteInt(61, 28, lonRaw(rec.Lon))
	b.WriteInt(89, 27, latRaw(rec.Lat))
	b.WriteUint(116, 12, cogRaw(rec.COG))
	b.WriteUint(128, 9, headingRaw(rec.Heading))
	b.WriteUint(137, 6, timestampRaw(rec.TimestampSeconds))
	b.WriteUint(143, 2, 0) // maneuver
	b.WriteUint(145, 3, 0) // spare
	b.WriteUint(148, 1, boolRaw(rec.RAIM))
	b.WriteUint(149, 19, 0) // radio

	return singleFragmentSentence(b, "A")
}

func encodeType18(rec *vessel.Record) Sentence {
	b := bitbuf.New(168)
	b.WriteUint(0, 6, 18)
	b.WriteUint(6, 2, 0)
	b.WriteUint(8, 30, uint64(rec.MMSI))
	b.WriteUint(38, 8, 0) // reserved
	b.WriteUint(46, 10, sogRaw(rec.SOG))
	b.WriteUint(56, 1, boolRaw(rec.PositionAccuracy))
	b.WriteInt(57, 28, lonRaw(rec.Lon))
	b.WriteInt(85, 27, latRaw(rec.Lat))
	b.WriteUint(112, 12, cogRaw(rec.COG))
	b.WriteUint(124, 9, headingRaw(rec.Heading))
	b.WriteUint(133, 6, timestampRaw(rec.TimestampSeconds))
	b.WriteUint(139, 2, 0)
	b.WriteUint(141, 1, 1) // unit
	b.WriteUint(142, 1, 0) // display
	b.WriteUint(143, 1, 1) // dsc
	b.WriteUint(144, 1, 1) // band
	b.WriteUint(145, 1, 1) // msg22
	b.WriteUint(146, 1, 0) // assigned
	b.WriteUint(147, 1, boolRaw(rec.RAIM))
	b.WriteUint(148, 1, 1) // comm-state-selector
	b.WriteUint(149, 19, 0)

	return singleFragmentSentence(b, "A")
}

func encodeType24A(rec *vessel.Record) Sentence {
	b := bitbuf.New(168)
	b.WriteUint(0, 6, 24)
	b.WriteUint(6, 2, 0)
	b.WriteUint(8, 30, uint64(rec.MMSI))
	b.WriteUint(38, 2, 0) // part A
	nameBits := writeSixBitString(rec.VesselName, 20)
	for i, bit := range nameBits {
		b.WriteBool(40+i, bit)
	}
	b.WriteUint(160, 8, 0) // spare

	return fixedChannelSentence(b, "A")
}

func encodeType24B(rec *vessel.Record) Sentence {
	b := bitbuf.New(168)
	b.WriteUint(0, 6, 24)
	b.WriteUint(6, 2, 0)
	b.WriteUint(8, 30, uint64(rec.MMSI))
	b.WriteUint(38, 2, 1) // part B
	b.WriteUint(40, 8, vesselTypeRaw(rec.VesselType))
	vendorBits := writeSixBitString("GENERIC", 7)
	for i, bit := range vendorBits {
		b.WriteBool(48+i, bit)
	}
	callBits := writeSixBitString(rec.Callsign, 7)
	for i, bit := range callBits {
		b.WriteBool(90+i, bit)
	}
	b.WriteUint(132, 9, 0)  // to_bow
	b.WriteUint(141, 9, 0)  // to_stern
	b.WriteUint(150, 6, 0)  // to_port
	b.WriteUint(156, 6, 0)  // to_starboard
	b.WriteUint(162, 4, 1)  // epfd = GPS
	b.WriteUint(166, 2, 0)

	return fixedChannelSentence(b, "B")
}

func encodeType5(rec *vessel.Record) []Sentence {
	b := bitbuf.New(424)
	b.WriteUint(0, 6, 5)
	b.WriteUint(6, 2, 0)
	b.WriteUint(8, 30, uint64(rec.MMSI))
	b.WriteUint(38, 2, 0)  // AIS version
	b.WriteUint(40, 30, 0) // IMO number, not modeled in Record
	callBits := writeSixBitString(rec.Callsign, 7)
	for i, bit := range callBits {
		b.WriteBool(70+i, bit)
	}
	nameBits := writeSixBitString(rec.VesselName, 20)
	for i, bit := range nameBits {
		b.WriteBool(112+i, bit)
	}
	b.WriteUint(232, 8, vesselTypeRaw(rec.VesselType))
	b.WriteUint(302, 120, 0) // destination left blank; not modeled in Record

	msgID := strconv.Itoa(int(type5MessageID.Add(1) % 10))
	return fragmentSentences(b.Bits(), "AIVDM", "A", msgID)
}

// singleFragmentSentence builds a one-fragment sentence for a fixed
// 168-bit message, with no message id (spec §4.2: empty for single-
// fragment sentences).
func singleFragmentSentence(b *bitbuf.Buffer, channel string) Sentence {
	payload, fill := bitbuf.ArmorBits(b.Bits())
	return Sentence{
		TalkerID:       "AIVDM",
		FragmentCount:  1,
		FragmentNumber: 1,
		MessageID:      "",
		Channel:        channel,
		ArmoredPayload: payload,
		FillBits:       fill,
	}
}

// fixedChannelSentence is singleFragmentSentence with an explicit,
// non-alternating channel assignment — used by type 24's two parts,
// which alternate "A" then "B" per spec §4.2.
func fixedChannelSentence(b *bitbuf.Buffer, channel string) Sentence {
	return singleFragmentSentence(b, channel)
}

// fragmentSentences splits a long bit vector across as many !AIVDM
// fragments as needed to respect the 82-character sentence ceiling,
// sharing msgID across all fragments, per spec §4.2.
func fragmentSentences(bits []bool, talker, channel, msgID string) []Sentence {
	fullPayload, totalFill := bitbuf.ArmorBits(bits)

	maxPerFragment := maxPayloadCharsPerFragment(talker, channel, msgID)
	if len(fullPayload) <= maxPerFragment {
		return []Sentence{{
			TalkerID:       talker,
			FragmentCount:  1,
			FragmentNumber: 1,
			MessageID:      "",
			Channel:        channel,
			ArmoredPayload: fullPayload,
			FillBits:       totalFill,
		}}
	}

	var chunks []string
	for start := 0; start < len(fullPayload); start += maxPerFragment {
		end := start + maxPerFragment
		if end > len(fullPayload) {
			end = len(fullPayload)
		}
		chunks = append(chunks, fullPayload[start:end])
	}

	sentences := make([]Sentence, len(chunks))
	for i, chunk := range chunks {
		fill := 0
		if i == len(chunks)-1 {
			fill = totalFill
		}
		sentences[i] = Sentence{
			TalkerID:       talker,
			FragmentCount:  len(chunks),
			FragmentNumber: i + 1,
			MessageID:      msgID,
			Channel:        channel,
			ArmoredPayload: chunk,
			FillBits:       fill,
		}
	}
	return sentences
}

// maxPayloadCharsPerFragment measures the envelope overhead of a fragment
// sentence (count/number/msgid/channel/fill digits are always single
// digits per spec's 1-9 fragment bound) to derive how many armored
// payload characters fit within the 82-character ceiling including CRLF.
func maxPayloadCharsPerFragment(talker, channel, msgID string) int {
	probe := Sentence{
		TalkerID:       talker,
		FragmentCount:  9,
		FragmentNumber: 9,
		MessageID:      msgID,
		Channel:        channel,
		ArmoredPayload: "",
		FillBits:       5,
	}
	overhead := len(probe.String()) + 2 // +2 for CRLF
	return MaxSentenceLength - overhead
}
