// Package nmea builds AIS type 1/5/18/24A/24B payloads and frames them as
// !AIVDM NMEA-0183 sentences.
package nmea

import (
	"fmt"

	"github.com/frye/ais-to-nmea0183/bitbuf"
)

// MaxSentenceLength is the NMEA-0183 maximum sentence length, including the
// trailing CRLF.
const MaxSentenceLength = 82

// Sentence is one !AIVDM fragment. The encoder returns sentences without a
// trailing CRLF; the controller that ultimately writes to a sink appends
// CRLF exactly once, per the single-normalization-point design in
// SPEC_FULL.md §9.
type Sentence struct {
	TalkerID       string // always "AIVDM"
	FragmentCount  int    // 1-9
	FragmentNumber int    // 1-based
	MessageID      string // correlates fragments of the same logical message; empty when FragmentCount == 1
	Channel        string // "A" | "B" | ""
	ArmoredPayload string
	FillBits       int // 0-5
}

// String renders the sentence body and checksum, without a trailing CRLF.
func (s Sentence) String() string {
	body := fmt.Sprintf("%s,%d,%d,%s,%s,%s,%d",
		s.TalkerID, s.FragmentCount, s.FragmentNumber, s.MessageID, s.Channel, s.ArmoredPayload, s.FillBits)
	cs := bitbuf.Checksum(body)
	return "!" + body + bitbuf.FormatChecksum(cs)
}

// FitsMaxLength reports whether the sentence, with a CRLF appended, stays
// within the 82-character NMEA-0183 ceiling.
func (s Sentence) FitsMaxLength() bool {
	return len(s.String())+2 <= MaxSentenceLength
}
