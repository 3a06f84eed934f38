// go-wildmidi
// Licensed under MIT

package wildmidi

import (
	"bytes"
	"fmt"

	"github.com/mindwerks/go-wildmidi/hmi"
	"github.com/mindwerks/go-wildmidi/hmp"
	"github.com/mindwerks/go-wildmidi/mdi"
	"github.com/mindwerks/go-wildmidi/mus"
	"github.com/mindwerks/go-wildmidi/smfparser"
	"github.com/mindwerks/go-wildmidi/xmidi"
)

// maxFileSize rejects pathologically large input early (§6 "reject ≥ 2^31
// bytes"); it is also a sane ceiling against accidental OOM on malformed
// length fields.
const maxFileSize = 1 << 31

var (
	sigMThd = []byte("MThd")
	sigRIFF = []byte("RIFF")
	sigXMID = []byte("FORM")
	sigHMP  = []byte("HMIMIDIP")
	sigHMI  = []byte("HMI-MIDISONG061595")
)

// isMIDI reports whether data already begins with an SMF header (directly,
// or under the RIFF…WAVE…MThd wrapper), the condition convert_to_midi and
// convert_buffer_to_midi refuse (§6).
func isMIDI(data []byte) bool {
	if bytes.HasPrefix(data, sigMThd) {
		return true
	}
	if bytes.HasPrefix(data, sigRIFF) && len(data) >= 24 && bytes.Equal(data[8:12], []byte("WAVE")) && bytes.Equal(data[20:24], sigMThd) {
		return true
	}
	return false
}

// parseBytes sniffs data's container format (§6 "Magic sequences") and
// dispatches to the matching format parser, mirroring LoadModuleFromStream's
// signature-based dispatch in style.
func parseBytes(data []byte, sampleRate uint32, cvt cvtOptions) (*mdi.MDI, error) {
	if len(data) == 0 {
		return nil, newError(ErrorInvalid, "empty input", nil)
	}
	if len(data) >= maxFileSize {
		return nil, newError(ErrorFileTooLong, "input exceeds maximum size", nil)
	}

	switch {
	case isMIDI(data):
		m, err := smfparser.Parse(data, sampleRate)
		if err != nil {
			return nil, newError(ErrorCorrupt, "smf parse", err)
		}
		return m, nil

	case bytes.HasPrefix(data, []byte("MUS")) && len(data) > 3 && data[3] == 0x1A:
		m, err := mus.ParseWithFrequency(data, sampleRate, cvt.frequency)
		if err != nil {
			return nil, newError(ErrorNotMus, "mus parse", err)
		}
		return m, nil

	case bytes.HasPrefix(data, sigXMID):
		m, err := xmidi.Parse(data, sampleRate)
		if err != nil {
			return nil, newError(ErrorNotXmi, "xmidi parse", err)
		}
		if cvt.xmiType == 0 {
			m.IsType2 = false
		}
		return m, nil

	case bytes.HasPrefix(data, sigHMI):
		m, err := hmi.Parse(data, sampleRate)
		if err != nil {
			return nil, newError(ErrorNotHmi, "hmi parse", err)
		}
		return m, nil

	case bytes.HasPrefix(data, sigHMP):
		m, err := hmp.Parse(data, sampleRate)
		if err != nil {
			return nil, newError(ErrorNotHmp, "hmp parse", err)
		}
		return m, nil

	default:
		return nil, newError(ErrorInvalid, fmt.Sprintf("unrecognised format (first bytes %q)", firstBytes(data)), nil)
	}
}

func firstBytes(data []byte) []byte {
	if len(data) > 16 {
		return data[:16]
	}
	return data
}
