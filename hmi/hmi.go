// go-wildmidi
// Licensed under MIT

// Package hmi lowers a "HMI-MIDISONG061595" byte stream (Human Machine
// Interfaces' multi-track song container) into the canonical mdi.MDI event
// image (§4.2 "HMI particulars").
package hmi

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/mindwerks/go-wildmidi/mdi"
)

const (
	hmiDivisions      = 60
	hmiPreambleLen    = 370
	hmiBPMOffset      = 212
	hmiTrackCntOffset = 228
	trackHeaderLenOfs = 0x57
)

var signature = []byte("HMI-MIDISONG061595")
var trackSignature = []byte("HMI-MIDITRACK")

// Parse reads an HMI byte stream and lowers it into a fresh MDI. Each
// song track carries its own running-status byte and its own 128-slot
// note-duration table; tracks are merged by mdi.MergeTracks using the same
// smallest-delta priority the reference player implements inline (§4.2).
func Parse(data []byte, sampleRate uint32) (*mdi.MDI, error) {
	if !bytes.HasPrefix(data, signature) {
		return nil, fmt.Errorf("hmi: bad signature")
	}
	if len(data) <= hmiTrackCntOffset {
		return nil, fmt.Errorf("hmi: truncated header")
	}

	bpm := uint32(data[hmiBPMOffset])
	if bpm == 0 {
		bpm = 120
	}
	tempo := 60000000 / bpm

	trackCount := int(data[hmiTrackCntOffset])
	if trackCount == 0 {
		return nil, fmt.Errorf("hmi: no tracks")
	}

	offsetTable := data[hmiPreambleLen:]
	if len(offsetTable) < trackCount*4 {
		return nil, fmt.Errorf("hmi: truncated track offset table")
	}

	m := mdi.New()
	m.SampleRate = sampleRate
	m.DivisionsPerBeat = hmiDivisions
	m.SetTempo(tempo)
	m.AppendEvent(mdi.Event{Kind: mdi.KindSetDivisions, Value: hmiDivisions})

	tracks := make([]mdi.Track, 0, trackCount)
	for i := 0; i < trackCount; i++ {
		offset := binary.LittleEndian.Uint32(offsetTable[i*4 : i*4+4])
		if int(offset)+0x5b > len(data) {
			return nil, fmt.Errorf("hmi: track %d offset runs past end of file", i)
		}
		addr := data[offset:]
		if !bytes.HasPrefix(addr, trackSignature) {
			return nil, fmt.Errorf("hmi: track %d missing signature", i)
		}
		headerLen := binary.LittleEndian.Uint32(addr[trackHeaderLenOfs : trackHeaderLenOfs+4])
		if uint64(headerLen) > uint64(len(addr)) {
			return nil, fmt.Errorf("hmi: track %d header length runs past end of file", i)
		}
		tracks = append(tracks, newTrack(addr[headerLen:]))
	}

	mdi.MergeTracks(m, tracks)
	m.Finalize()
	return m, nil
}

// track walks one HMI song track. Both the main event stream and a
// 128-slot per-note duration table ride the same delta timeline: Delta
// reports whichever is soonest, so a note's duration elapsing mid-stream
// synthesizes a NoteOff exactly as the reference player's inline
// "first check to see if any active notes need turning off" pass does.
type track struct {
	data      []byte
	pos       int
	ended     bool
	running   uint8
	eventDelta uint32

	noteActive  [128]bool
	noteDur     [128]uint32
	noteChannel [128]uint8
}

func newTrack(data []byte) *track {
	t := &track{data: data}
	if len(data) == 0 {
		t.ended = true
		return t
	}
	delta, n, err := readVLQ(data, 0)
	if err != nil {
		t.ended = true
		return t
	}
	t.eventDelta = delta
	t.pos = n
	return t
}

func (t *track) Ended() bool { return t.ended }

func (t *track) Delta() uint32 {
	d := t.eventDelta
	for n, active := range t.noteActive {
		if active && t.noteDur[n] < d {
			d = t.noteDur[n]
		}
	}
	return d
}

func (t *track) Advance(ticks uint32) {
	if ticks >= t.eventDelta {
		t.eventDelta = 0
	} else {
		t.eventDelta -= ticks
	}
	for n := range t.noteActive {
		if !t.noteActive[n] {
			continue
		}
		if ticks >= t.noteDur[n] {
			t.noteDur[n] = 0
		} else {
			t.noteDur[n] -= ticks
		}
	}
}

func (t *track) Emit(m *mdi.MDI) {
	t.fireExpiredNotes(m)
	for !t.ended && t.eventDelta == 0 {
		t.processOneEvent(m)
		if t.ended {
			return
		}
		delta, n, err := readVLQ(t.data, t.pos)
		if err != nil {
			t.ended = true
			return
		}
		t.pos += n
		t.eventDelta = delta
	}
}

func (t *track) fireExpiredNotes(m *mdi.MDI) {
	for n := range t.noteActive {
		if t.noteActive[n] && t.noteDur[n] == 0 {
			m.AppendEvent(mdi.Event{Kind: mdi.KindNoteOff, Channel: t.noteChannel[n], Value: mdi.PackNote(uint8(n), 0)})
			t.noteActive[n] = false
		}
	}
}

// processOneEvent decodes one event at the current cursor: an HMI-only
// 0xFE marker (skipped, unexercised by synthesis), or a MIDI channel/meta
// event. A note-on (running status included) consumes a following
// variable-length duration and either fires an immediate NoteOff (zero
// duration) or arms the note-duration table (§4.2).
func (t *track) processOneEvent(m *mdi.MDI) {
	if t.pos >= len(t.data) {
		t.ended = true
		return
	}

	if t.data[t.pos] == 0xFE {
		t.pos += hmiMarkerSkip(t.data[t.pos:])
		return
	}

	consumed, channel, note, isNoteOn, endOfTrack, err := decodeEvent(t.data[t.pos:], &t.running, m)
	if err != nil {
		t.ended = true
		return
	}
	t.pos += consumed

	if endOfTrack {
		t.ended = true
		for n := range t.noteActive {
			if t.noteActive[n] {
				m.AppendEvent(mdi.Event{Kind: mdi.KindNoteOff, Channel: t.noteChannel[n], Value: mdi.PackNote(uint8(n), 0)})
				t.noteActive[n] = false
			}
		}
		return
	}

	if isNoteOn {
		dur, n, err := readVLQ(t.data, t.pos)
		if err != nil {
			t.ended = true
			return
		}
		t.pos += n
		if dur == 0 {
			m.AppendEvent(mdi.Event{Kind: mdi.KindNoteOff, Channel: channel, Value: mdi.PackNote(note, 0)})
		} else {
			t.noteActive[note] = true
			t.noteDur[note] = dur
			t.noteChannel[note] = channel
		}
	}
}

// hmiMarkerSkip reports how many bytes an HMI-only 0xFE marker occupies.
// Type 0x10 carries a variable-length payload sized by its fifth byte;
// type 0x15 is fixed; every other subtype falls back to the four-byte
// minimum the reference player always advances past (§4.2).
func hmiMarkerSkip(data []byte) int {
	if len(data) < 2 {
		return len(data)
	}
	switch data[1] {
	case 0x10:
		if len(data) < 5 {
			return len(data)
		}
		return int(data[4]) + 5 + 4
	case 0x15:
		return 4 + 4
	default:
		return 4
	}
}

// decodeEvent resolves running status (reset by sysex, set by any
// explicit 0x80-0xEF status byte, left untouched by 0xFF and by a bare
// data byte) and dispatches the resulting channel/meta event, appending
// the corresponding mdi.Event to m.
func decodeEvent(data []byte, running *uint8, m *mdi.MDI) (consumed int, channel, note uint8, isNoteOn, endOfTrack bool, err error) {
	if len(data) == 0 {
		return 0, 0, 0, false, false, fmt.Errorf("hmi: truncated event")
	}
	first := data[0]

	var status uint8
	var body []byte
	if first >= 0x80 {
		status = first
		body = data[1:]
		consumed = 1
	} else {
		status = *running
		body = data
		consumed = 0
	}
	if status == 0 {
		return 0, 0, 0, false, false, fmt.Errorf("hmi: data byte with no running status")
	}

	if first == 0xF0 || first == 0xF7 {
		*running = 0
	} else if first >= 0x80 && first < 0xF0 {
		*running = first
	}

	channel = status & 0x0f

	if status == 0xFF {
		if len(body) < 1 {
			return 0, 0, 0, false, false, fmt.Errorf("hmi: truncated meta event")
		}
		metaType := body[0]
		length, lenBytes, err := readStandardVLQ(body[1:])
		if err != nil {
			return 0, 0, 0, false, false, err
		}
		start := 1 + lenBytes
		end := start + int(length)
		if end > len(body) {
			return 0, 0, 0, false, false, fmt.Errorf("hmi: truncated meta payload")
		}
		consumed += end
		if metaType == 0x2F {
			return consumed, channel, 0, false, true, nil
		}
		if metaType == 0x51 && length >= 3 {
			tempo := uint32(body[start])<<16 | uint32(body[start+1])<<8 | uint32(body[start+2])
			if tempo == 0 {
				tempo = 500000
			}
			m.SetTempo(tempo)
			m.AppendEvent(mdi.Event{Kind: mdi.KindSetTempo, Value: tempo})
		}
		return consumed, channel, 0, false, false, nil
	}
	if status == 0xF0 || status == 0xF7 {
		length, lenBytes, err := readStandardVLQ(body)
		if err != nil {
			return 0, 0, 0, false, false, err
		}
		end := lenBytes + int(length)
		if end > len(body) {
			return 0, 0, 0, false, false, fmt.Errorf("hmi: truncated sysex")
		}
		consumed += end
		if isGMReset(body[:end]) {
			m.AppendEvent(mdi.Event{Kind: mdi.KindGMReset})
		}
		return consumed, channel, 0, false, false, nil
	}

	switch status & 0xf0 {
	case 0x80:
		if len(body) < 2 {
			return 0, 0, 0, false, false, fmt.Errorf("hmi: truncated note-off")
		}
		m.AppendEvent(mdi.Event{Kind: mdi.KindNoteOff, Channel: channel, Value: mdi.PackNote(body[0], body[1])})
		return consumed + 2, channel, 0, false, false, nil
	case 0x90:
		if len(body) < 2 {
			return 0, 0, 0, false, false, fmt.Errorf("hmi: truncated note-on")
		}
		note = body[0]
		vel := body[1]
		if vel == 0 {
			m.AppendEvent(mdi.Event{Kind: mdi.KindNoteOff, Channel: channel, Value: mdi.PackNote(note, 0)})
		} else {
			m.AppendEvent(mdi.Event{Kind: mdi.KindNoteOn, Channel: channel, Value: mdi.PackNote(note, vel)})
		}
		return consumed + 2, channel, note, true, false, nil
	case 0xA0:
		if len(body) < 2 {
			return 0, 0, 0, false, false, fmt.Errorf("hmi: truncated aftertouch")
		}
		m.AppendEvent(mdi.Event{Kind: mdi.KindAftertouch, Channel: channel, Value: mdi.PackNote(body[0], body[1])})
		return consumed + 2, channel, 0, false, false, nil
	case 0xB0:
		if len(body) < 2 {
			return 0, 0, 0, false, false, fmt.Errorf("hmi: truncated control change")
		}
		m.AppendEvent(mdi.Event{Kind: mdi.KindControlChange, Channel: channel, Value: mdi.PackCC(body[0], body[1])})
		return consumed + 2, channel, 0, false, false, nil
	case 0xC0:
		if len(body) < 1 {
			return 0, 0, 0, false, false, fmt.Errorf("hmi: truncated program change")
		}
		m.AppendEvent(mdi.Event{Kind: mdi.KindProgramChange, Channel: channel, Value: uint32(body[0])})
		return consumed + 1, channel, 0, false, false, nil
	case 0xD0:
		if len(body) < 1 {
			return 0, 0, 0, false, false, fmt.Errorf("hmi: truncated channel pressure")
		}
		m.AppendEvent(mdi.Event{Kind: mdi.KindChannelPressure, Channel: channel, Value: uint32(body[0])})
		return consumed + 1, channel, 0, false, false, nil
	case 0xE0:
		if len(body) < 2 {
			return 0, 0, 0, false, false, fmt.Errorf("hmi: truncated pitch bend")
		}
		bend := uint32(body[0]) | uint32(body[1])<<7
		m.AppendEvent(mdi.Event{Kind: mdi.KindPitchBend, Channel: channel, Value: bend})
		return consumed + 2, channel, 0, false, false, nil
	default:
		return 0, 0, 0, false, false, fmt.Errorf("hmi: unrecognised status byte 0x%02x", status)
	}
}

// readVLQ and readStandardVLQ both decode the standard big-endian,
// high-bit-set-means-continue MIDI variable-length quantity; HMI uses it
// both for inter-event deltas and for note/meta lengths, unlike HMP's
// reversed delta convention.
func readVLQ(data []byte, pos int) (value uint32, consumed int, err error) {
	return readStandardVLQ(data[pos:])
}

func readStandardVLQ(data []byte) (value uint32, consumed int, err error) {
	for consumed < len(data) {
		b := data[consumed]
		value = value<<7 | uint32(b&0x7f)
		consumed++
		if b&0x80 == 0 {
			return value, consumed, nil
		}
	}
	return 0, 0, fmt.Errorf("hmi: truncated variable-length quantity")
}

func isGMReset(sysex []byte) bool {
	return bytes.Equal(sysex, []byte{0xF0, 0x7E, 0x7F, 0x09, 0x01, 0xF7})
}
