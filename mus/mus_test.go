// go-wildmidi
// Licensed under MIT

package mus

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindwerks/go-wildmidi/mdi"
)

func le16(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

// buildMinimalMUS assembles a header-plus-song-data MUS file: one Note On
// (channel 0, explicit velocity), a Note Off on the same channel after a
// one-tick delta, and a score-end marker.
func buildMinimalMUS(t *testing.T) []byte {
	t.Helper()

	// NoteOn channel 0, note 60, velocity 100: type=1 with the "last
	// event in this time group" bit set on the type byte, and the
	// "explicit velocity follows" bit set on the note-number byte.
	noteOn := []byte{0x10 | 0x80, 60 | 0x80, 100}

	delta1 := []byte{0x01}

	noteOff := []byte{0x80, 60} // type=0 (NoteOff), channel=0, last-event bit set
	delta2 := []byte{0x01}

	scoreEnd := []byte{0x60} // type=6, channel 0

	var songData bytes.Buffer
	songData.Write(noteOn)
	songData.Write(delta1)
	songData.Write(noteOff)
	songData.Write(delta2)
	songData.Write(scoreEnd)

	songOfs := uint16(16)

	var buf bytes.Buffer
	buf.Write(signature)
	buf.Write(le16(uint16(songData.Len()))) // song length
	buf.Write(le16(songOfs))                // song offset
	buf.Write(le16(0))                      // ch_cnt1
	buf.Write(le16(0))                      // ch_cnt2
	buf.Write(le16(0))                      // no_instr
	buf.Write(le16(0))                      // reserved
	buf.Write(songData.Bytes())

	return buf.Bytes()
}

func TestParseMinimalMUSEmitsNoteOnAndNoteOff(t *testing.T) {
	data := buildMinimalMUS(t)

	m, err := Parse(data, 44100)
	require.NoError(t, err)
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
	assert.True(t, sawNoteOff)

	last := m.Events[len(m.Events)-1]
	assert.Equal(t, mdi.KindEnd, last.Kind)
}

func TestParseSwapsDrumChannel(t *testing.T) {
	noteOn := []byte{0x1f | 0x80, 40 | 0x80, 90} // type=1, channel=15, last-event bit set
	scoreEnd := []byte{0x6f}

	var songData bytes.Buffer
	songData.Write(noteOn)
	songData.Write([]byte{0x01})
	songData.Write(scoreEnd)

	var buf bytes.Buffer
	buf.Write(signature)
	buf.Write(le16(uint16(songData.Len())))
	buf.Write(le16(16))
	buf.Write(le16(0))
	buf.Write(le16(0))
	buf.Write(le16(0))
	buf.Write(le16(0))
	buf.Write(songData.Bytes())

	m, err := Parse(buf.Bytes(), 44100)
	require.NoError(t, err)

	var channel uint8
	for _, ev := range m.Events {
		if ev.Kind == mdi.KindNoteOn {
			channel = ev.Channel
		}
	}
	assert.EqualValues(t, 9, channel, "channel 15 should be swapped onto the GM drum channel")
}

func TestParseRejectsBadSignature(t *testing.T) {
	_, err := Parse([]byte("not a mus file at all, long enough"), 44100)
	assert.Error(t, err)
}
