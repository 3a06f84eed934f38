// go-wildmidi
// Licensed under MIT

package hmi

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

// buildMinimalHMI assembles a single-track HMI file: the song signature,
// a bpm byte at offset 212, a track count byte at offset 228, a 370-byte
// preamble, a one-entry track offset table, and a minimal track (signature
// + a header-length field covering only the track preamble itself +
// NoteOn/duration + EndOfTrack).
func buildMinimalHMI(t *testing.T) []byte {
	t.Helper()

	header := make([]byte, hmiPreambleLen)
	copy(header, signature)
	header[hmiBPMOffset] = 120
	header[hmiTrackCntOffset] = 1

	trackOffsetTableStart := hmiPreambleLen
	trackStart := trackOffsetTableStart + 4

	trackHeader := make([]byte, trackHeaderLenOfs+4)
	copy(trackHeader, trackSignature)
	binary.LittleEndian.PutUint32(trackHeader[trackHeaderLenOfs:], uint32(len(trackHeader)))

	trackBody := []byte{
		0x00,             // delta = 0
		0x90, 0x3C, 0x64, // NoteOn ch0 note60 vel100
		0x0A,             // duration = 10 ticks (single-byte VLQ)
		0x0A,             // next event delta = 10 (triggers synthetic NoteOff)
		0xFF, 0x2F, 0x00, // EndOfTrack
	}

	var buf bytes.Buffer
	buf.Write(header)
	buf.Write(le32(uint32(trackStart)))
	buf.Write(trackHeader)
	buf.Write(trackBody)

	return buf.Bytes()
}

func TestParseMinimalHMIEmitsNoteOnAndSyntheticNoteOff(t *testing.T) {
	data := buildMinimalHMI(t)

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
	assert.True(t, sawNoteOff, "note duration elapsing should synthesize a NoteOff")
	assert.True(t, sawEnd)
}

func TestHMIMarkerSkipSizesBySubtype(t *testing.T) {
	assert.Equal(t, 4, hmiMarkerSkip([]byte{0xFE, 0x20, 0, 0}))
	assert.Equal(t, 8, hmiMarkerSkip([]byte{0xFE, 0x15, 0, 0}))
	assert.Equal(t, 9, hmiMarkerSkip([]byte{0xFE, 0x10, 0, 0, 0}))
}

func TestDecodeEventRunningStatusPersists(t *testing.T) {
	m := mdi.New()
	var running uint8

	consumed, _, _, isNoteOn, _, err := decodeEvent([]byte{0x90, 60, 100}, &running, m)
	require.NoError(t, err)
	assert.Equal(t, 3, consumed)
	assert.True(t, isNoteOn)
	assert.EqualValues(t, 0x90, running)

	// Running status continuation: no status byte, just note+velocity.
	consumed, _, _, isNoteOn, _, err = decodeEvent([]byte{64, 90}, &running, m)
	require.NoError(t, err)
	assert.Equal(t, 2, consumed)
	assert.True(t, isNoteOn)
}

func TestParseRejectsBadSignature(t *testing.T) {
	_, err := Parse([]byte("not an hmi file at all"), 44100)
	assert.Error(t, err)
}
