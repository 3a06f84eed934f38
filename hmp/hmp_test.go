// go-wildmidi
// Licensed under MIT

package hmp

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindwerks/go-wildmidi/mdi"
)

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// buildMinimalHMP assembles a one-chunk HMP (not HMP2) file: signature,
// 24-byte zero run, file length, 12 reserved bytes, chunk count, unknown
// field, bpm, song time, 712-byte skip region, then one chunk holding a
// NoteOn/NoteOff pair followed by EndOfTrack.
func buildMinimalHMP(t *testing.T) []byte {
	t.Helper()

	track := []byte{
		0x80,             // delta = 0 (high bit set -> single terminal byte)
		0x90, 0x3C, 0x64, // NoteOn ch0 note60 vel100
		0x81,             // delta = 1 (high bit set -> single terminal byte)
		0x80, 0x3C, 0x00, // NoteOff ch0 note60
		0x80,             // delta = 0
		0xFF, 0x2F, 0x00, // EndOfTrack
	}

	var buf bytes.Buffer
	buf.WriteString("HMIMIDIP")
	buf.Write(make([]byte, hmp1ZeroRun))
	buf.Write(le32(0))             // file length
	buf.Write(make([]byte, 12))    // reserved
	buf.Write(le32(1))             // chunk count
	buf.Write(le32(0))             // unknown
	buf.Write(le32(120))           // bpm
	buf.Write(le32(0))             // song time
	buf.Write(make([]byte, hmp1SkipBytes))

	buf.Write(le32(0))                      // chunk number, unused
	buf.Write(le32(uint32(len(track))))     // chunk length
	buf.Write(le32(0))                      // track number, unused
	buf.Write(track)

	return buf.Bytes()
}

func TestParseMinimalHMPEmitsNoteOnAndNoteOff(t *testing.T) {
	data := buildMinimalHMP(t)

	m, err := Parse(data, 44100)
	require.NoError(t, err)
	assert.EqualValues(t, 60, m.DivisionsPerBeat)

	var sawNoteOn, sawNoteOff, sawEnd bool
	for _, ev := range m.Events {
		switch ev.Kind {
		case mdi.KindNoteOn:
			note, vel := mdi.UnpackNote(ev.Value)
			assert.EqualValues(t, 60, note)
			assert.EqualValues(t, 100, vel)
			sawNoteOn = true
		case mdi.KindNoteOff:
			sawNoteOff = true
		case mdi.KindEnd:
			sawEnd = true
		}
	}
	assert.True(t, sawNoteOn)
	assert.True(t, sawNoteOff)
	assert.True(t, sawEnd)
}

func TestReadDeltaReversedConvention(t *testing.T) {
	// A byte with the high bit set is a single terminal byte.
	v, n := readDelta([]byte{0x80}, 0)
	assert.EqualValues(t, 0, v)
	assert.Equal(t, 1, n)

	// A byte with the high bit clear continues; the following high-bit
	// byte terminates and contributes the high 7 bits.
	v, n = readDelta([]byte{0x7F, 0x81}, 0)
	assert.EqualValues(t, 0x7F|(0x01<<7), v)
	assert.Equal(t, 2, n)
}

func TestIsLoopMarkerRecognisesReservedControllers(t *testing.T) {
	assert.True(t, isLoopMarker([]byte{0xB0, 110, 0x80}))
	assert.True(t, isLoopMarker([]byte{0xB1, 111, 0xFF}))
	assert.False(t, isLoopMarker([]byte{0xB0, 110, 0x7F}))
	assert.False(t, isLoopMarker([]byte{0x90, 110, 0x80}))
}

func TestParseRejectsBadSignature(t *testing.T) {
	_, err := Parse([]byte("not an hmp file at all"), 44100)
	assert.Error(t, err)
}
