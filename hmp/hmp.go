// go-wildmidi
// Licensed under MIT

// Package hmp lowers HMI's "HMP"/"HMP2" byte stream (the fixed-header
// container Human Machine Interfaces shipped alongside its .HMI songs)
// into the canonical mdi.MDI event image (§4.2 "HMP/HMP2 particulars").
package hmp

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/mindwerks/go-wildmidi/mdi"
)

const (
	hmpDivisions = 60

	hmp1SkipBytes = 712
	hmp2SkipBytes = 840
	hmp1ZeroRun   = 24
	hmp2ZeroRun   = 18
)

// Parse reads an HMP/HMP2 byte stream and lowers it into a fresh MDI. Every
// chunk after the fixed preamble is an independent track; the chunks are
// merged by mdi.MergeTracks using the same smallest-delta priority the
// reference player implements inline (§4.2).
func Parse(data []byte, sampleRate uint32) (*mdi.MDI, error) {
	if !bytes.HasPrefix(data, []byte("HMIMIDIP")) {
		return nil, fmt.Errorf("hmp: bad signature")
	}
	data = data[8:]

	isHMP2 := false
	if bytes.HasPrefix(data, []byte("013195")) {
		data = data[6:]
		isHMP2 = true
	}

	zeroRun := hmp1ZeroRun
	if isHMP2 {
		zeroRun = hmp2ZeroRun
	}
	if len(data) < zeroRun {
		return nil, fmt.Errorf("hmp: truncated preamble")
	}
	for _, b := range data[:zeroRun] {
		if b != 0 {
			return nil, fmt.Errorf("hmp: bad signature")
		}
	}
	data = data[zeroRun:]

	if len(data) < 4 {
		return nil, fmt.Errorf("hmp: truncated preamble")
	}
	data = data[4:] // overall file length, unused

	if len(data) < 12 {
		return nil, fmt.Errorf("hmp: truncated preamble")
	}
	data = data[12:] // reserved

	if len(data) < 4 {
		return nil, fmt.Errorf("hmp: truncated preamble")
	}
	chunkCount := binary.LittleEndian.Uint32(data)
	data = data[4:]

	if len(data) < 4 {
		return nil, fmt.Errorf("hmp: truncated preamble")
	}
	data = data[4:] // unknown field

	if len(data) < 4 {
		return nil, fmt.Errorf("hmp: truncated preamble")
	}
	bpm := binary.LittleEndian.Uint32(data)
	data = data[4:]
	if bpm == 0 {
		bpm = 120
	}
	tempo := uint32(60000000 / bpm)

	if len(data) < 4 {
		return nil, fmt.Errorf("hmp: truncated preamble")
	}
	data = data[4:] // approximate song time, unused

	skip := hmp1SkipBytes
	if isHMP2 {
		skip = hmp2SkipBytes
	}
	if len(data) < skip {
		return nil, fmt.Errorf("hmp: truncated preamble")
	}
	data = data[skip:]

	m := mdi.New()
	m.SampleRate = sampleRate
	m.DivisionsPerBeat = hmpDivisions
	m.SetTempo(tempo)
	m.AppendEvent(mdi.Event{Kind: mdi.KindSetDivisions, Value: hmpDivisions})

	tracks := make([]mdi.Track, 0, chunkCount)
	for i := uint32(0); i < chunkCount; i++ {
		if len(data) < 12 {
			return nil, fmt.Errorf("hmp: truncated chunk table")
		}
		// chunk_number and track_number bracket chunk_length; neither is
		// consumed beyond skipping past them (§4.2, UNUSED in the source).
		chunkLength := binary.LittleEndian.Uint32(data[4:8])
		body := data[12:]
		if uint32(len(body)) < chunkLength {
			return nil, fmt.Errorf("hmp: chunk runs past end of file")
		}
		body = body[:chunkLength]
		tracks = append(tracks, newTrack(body))
		data = data[12+chunkLength:]
	}

	mdi.MergeTracks(m, tracks)
	m.Finalize()
	return m, nil
}

// track walks one HMP chunk's MIDI byte stream. Deltas use a little-endian
// variable-length encoding whose continuation convention is the reverse of
// a standard MIDI file's: a byte with its high bit CLEAR means "more bytes
// follow", and the terminating byte (high bit set) carries the most
// significant 7 bits (§4.2 "reversed-convention little-endian VLQ delta").
type track struct {
	data  []byte
	pos   int
	delta uint32
	ended bool
}

func newTrack(data []byte) *track {
	t := &track{data: data}
	if len(data) == 0 {
		t.ended = true
		return t
	}
	delta, n := readDelta(data, 0)
	t.delta = delta
	t.pos = n
	return t
}

func (t *track) Ended() bool   { return t.ended }
func (t *track) Delta() uint32 { return t.delta }

func (t *track) Advance(ticks uint32) {
	if ticks >= t.delta {
		t.delta = 0
	} else {
		t.delta -= ticks
	}
}

// Emit drains every zero-delta event, honouring the chunk-1 "loop marker"
// controller events (CC 110/111 with a value above 0x7f) by skipping them
// without emitting an mdi.Event, matching the reference player's elision
// (§4.2: it annotates these as "still deciding what to do about these" and
// drops them on the floor).
func (t *track) Emit(m *mdi.MDI) {
	for !t.ended && t.delta == 0 {
		if t.pos >= len(t.data) {
			t.ended = true
			return
		}
		if isLoopMarker(t.data[t.pos:]) {
			t.pos += 3
		} else {
			consumed, endOfTrack, err := decodeEvent(t.data[t.pos:], m)
			if err != nil {
				t.ended = true
				return
			}
			t.pos += consumed
			if endOfTrack {
				t.ended = true
				return
			}
		}
		if t.pos >= len(t.data) {
			t.ended = true
			return
		}
		delta, n := readDelta(t.data, t.pos)
		t.pos += n
		t.delta = delta
	}
}

func isLoopMarker(data []byte) bool {
	return len(data) >= 3 && data[0]&0xf0 == 0xb0 && (data[1] == 110 || data[1] == 111) && data[2] > 0x7f
}

func readDelta(data []byte, pos int) (value uint32, consumed int) {
	shift := uint(0)
	for pos+consumed < len(data) && data[pos+consumed] < 0x80 {
		value |= uint32(data[pos+consumed]&0x7f) << shift
		shift += 7
		consumed++
	}
	if pos+consumed < len(data) {
		value |= uint32(data[pos+consumed]&0x7f) << shift
		consumed++
	}
	return value, consumed
}

// decodeEvent decodes one channel-voice or meta event, appending the
// corresponding mdi.Event to m. It reports how many bytes were consumed and
// whether this was the chunk's End-of-Track meta.
func decodeEvent(data []byte, m *mdi.MDI) (consumed int, endOfTrack bool, err error) {
	if len(data) == 0 {
		return 0, false, fmt.Errorf("hmp: truncated event")
	}
	status := data[0]
	channel := status & 0x0f

	switch status & 0xf0 {
	case 0x80:
		if len(data) < 3 {
			return 0, false, fmt.Errorf("hmp: truncated note-off")
		}
		m.AppendEvent(mdi.Event{Kind: mdi.KindNoteOff, Channel: channel, Value: mdi.PackNote(data[1], data[2])})
		return 3, false, nil
	case 0x90:
		if len(data) < 3 {
			return 0, false, fmt.Errorf("hmp: truncated note-on")
		}
		if data[2] == 0 {
			m.AppendEvent(mdi.Event{Kind: mdi.KindNoteOff, Channel: channel, Value: mdi.PackNote(data[1], 0)})
		} else {
			m.AppendEvent(mdi.Event{Kind: mdi.KindNoteOn, Channel: channel, Value: mdi.PackNote(data[1], data[2])})
		}
		return 3, false, nil
	case 0xA0:
		if len(data) < 3 {
			return 0, false, fmt.Errorf("hmp: truncated aftertouch")
		}
		m.AppendEvent(mdi.Event{Kind: mdi.KindAftertouch, Channel: channel, Value: mdi.PackNote(data[1], data[2])})
		return 3, false, nil
	case 0xB0:
		if len(data) < 3 {
			return 0, false, fmt.Errorf("hmp: truncated control change")
		}
		m.AppendEvent(mdi.Event{Kind: mdi.KindControlChange, Channel: channel, Value: mdi.PackCC(data[1], data[2])})
		return 3, false, nil
	case 0xC0:
		if len(data) < 2 {
			return 0, false, fmt.Errorf("hmp: truncated program change")
		}
		m.AppendEvent(mdi.Event{Kind: mdi.KindProgramChange, Channel: channel, Value: uint32(data[1])})
		return 2, false, nil
	case 0xD0:
		if len(data) < 2 {
			return 0, false, fmt.Errorf("hmp: truncated channel pressure")
		}
		m.AppendEvent(mdi.Event{Kind: mdi.KindChannelPressure, Channel: channel, Value: uint32(data[1])})
		return 2, false, nil
	case 0xE0:
		if len(data) < 3 {
			return 0, false, fmt.Errorf("hmp: truncated pitch bend")
		}
		bend := uint32(data[1]) | uint32(data[2])<<7
		m.AppendEvent(mdi.Event{Kind: mdi.KindPitchBend, Channel: channel, Value: bend})
		return 3, false, nil
	case 0xF0:
		return decodeMeta(data, m)
	default:
		return 0, false, fmt.Errorf("hmp: unrecognised status byte 0x%02x", status)
	}
}

// decodeMeta decodes an FF-prefixed meta event using the standard
// big-endian, high-bit-set-means-continue VLQ length encoding — the
// reversed convention of readDelta applies only to the inter-event
// delta, not to meta-event payload lengths (§4.2).
func decodeMeta(data []byte, m *mdi.MDI) (consumed int, endOfTrack bool, err error) {
	if data[0] != 0xff || len(data) < 2 {
		return 0, false, fmt.Errorf("hmp: truncated meta event")
	}
	metaType := data[1]
	length, lenBytes, err := readStandardVLQ(data[2:])
	if err != nil {
		return 0, false, err
	}
	start := 2 + lenBytes
	end := start + int(length)
	if end > len(data) {
		return 0, false, fmt.Errorf("hmp: truncated meta payload")
	}
	payload := data[start:end]

	switch metaType {
	case 0x2F:
		m.AppendEvent(mdi.Event{Kind: mdi.KindEndOfTrack})
		return end, true, nil
	case 0x51:
		if len(payload) >= 3 {
			tempo := uint32(payload[0])<<16 | uint32(payload[1])<<8 | uint32(payload[2])
			if tempo == 0 {
				tempo = 500000
			}
			m.SetTempo(tempo)
			m.AppendEvent(mdi.Event{Kind: mdi.KindSetTempo, Value: tempo})
		}
	case 0x01:
		m.AppendEvent(mdi.Event{Kind: mdi.KindText, Text: string(payload)})
	case 0x03:
		m.AppendEvent(mdi.Event{Kind: mdi.KindTrackName, Text: string(payload)})
	case 0x06:
		m.AppendEvent(mdi.Event{Kind: mdi.KindMarker, Text: string(payload)})
	}
	return end, false, nil
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
	return 0, 0, fmt.Errorf("hmp: truncated variable-length quantity")
}
