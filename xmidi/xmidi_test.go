// go-wildmidi
// Licensed under MIT

package xmidi

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindwerks/go-wildmidi/mdi"
)

func be32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// buildMinimalXMI assembles a single-form XMIDI file with one NoteOn whose
// ten-tick duration is consumed exactly by the following delta, so the
// synthetic NoteOff fires without a following explicit event, plus a
// trailing EndOfTrack meta.
func buildMinimalXMI(t *testing.T) []byte {
	t.Helper()

	evnt := []byte{
		0x90, 0x3C, 0x64, // NoteOn ch0 note60 vel100
		0x0A,             // duration = 10 ticks
		0x0A,             // delta = 10 ticks -> note duration elapses here
		0xFF, 0x2F, 0x00, // EndOfTrack meta
	}

	var buf bytes.Buffer
	buf.WriteString("FORM")
	buf.Write(be32(13))
	buf.WriteString("XDIRINFO")
	buf.Write([]byte{0, 0, 0, 2})
	buf.WriteByte(1) // formcnt

	buf.WriteString("CAT ")
	buf.Write(be32(4))
	buf.WriteString("XMID")

	buf.WriteString("FORM")
	buf.Write(be32(4 + 4 + 4 + uint32(len(evnt))))
	buf.WriteString("XMID")
	buf.WriteString("EVNT")
	buf.Write(be32(uint32(len(evnt))))
	buf.Write(evnt)

	return buf.Bytes()
}

func TestParseMinimalXMIEmitsNoteOnAndSyntheticNoteOff(t *testing.T) {
	data := buildMinimalXMI(t)

	m, err := Parse(data, 44100)
	require.NoError(t, err)
	assert.False(t, m.IsType2)
	assert.EqualValues(t, 60, m.DivisionsPerBeat)

	var sawNoteOn, sawNoteOff bool
	for _, ev := range m.Events {
		switch ev.Kind {
		case mdi.KindNoteOn:
			note, vel := mdi.UnpackNote(ev.Value)
			assert.EqualValues(t, 60, note)
			assert.EqualValues(t, 100, vel)
			sawNoteOn = true
		case mdi.KindNoteOff:
			sawNoteOff = true
		}
	}
	assert.True(t, sawNoteOn)
	assert.True(t, sawNoteOff, "note duration elapsing should synthesize a NoteOff")
}

func TestReadContinuationVLQSingleAndMultiByte(t *testing.T) {
	v, n, err := readContinuationVLQ([]byte{0x0A})
	require.NoError(t, err)
	assert.EqualValues(t, 10, v)
	assert.Equal(t, 1, n)

	v, n, err = readContinuationVLQ([]byte{0x81, 0x00})
	require.NoError(t, err)
	assert.EqualValues(t, 128, v)
	assert.Equal(t, 2, n)
}

func TestParseRejectsNonXMIData(t *testing.T) {
	_, err := Parse([]byte("not xmi data at all"), 44100)
	assert.Error(t, err)
}
