package bitbuf

import "fmt"

// Checksum computes the NMEA-0183 checksum: the XOR of every byte strictly
// between the leading '!' (or '$') and the trailing '*', exclusive of both
// delimiters. data should be the sentence body including the leading talker
// delimiter but not the checksum field.
func Checksum(data string) byte {
	var cs byte
	start := 0
	if len(data) > 0 && (data[0] == '!' || data[0] == '$') {
		start = 1
	}
	for i := start; i < len(data); i++ {
		if data[i] == '*' {
			break
		}
		cs ^= data[i]
	}
	return cs
}

// FormatChecksum renders a checksum byte as "*HH" uppercase hex.
func FormatChecksum(cs byte) string {
	return fmt.Sprintf("*%02X", cs)
}
