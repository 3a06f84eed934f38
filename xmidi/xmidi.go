// go-wildmidi
// Licensed under MIT

// Package xmidi lowers an EA IFF-85 "XMIDI" byte stream (the Miles Sound
// System container used by many DOS-era games) into the canonical
// mdi.MDI event image (§4.2 "XMIDI particulars").
package xmidi

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/mindwerks/go-wildmidi/mdi"
)

const (
	xmiDivisions = 60
	xmiTempo     = 500000 // microseconds per quarter note; XMIDI tempo is fixed at 120 BPM
)

// Parse reads xmi_data and lowers every EVNT subform it contains into m,
// concatenated in file order. More than one EVNT subform marks the result
// Type 2, matching the reference player's "is_type2" rule.
func Parse(data []byte, sampleRate uint32) (*mdi.MDI, error) {
	p := &xmiParser{data: data}

	if err := p.expect("FORM"); err != nil {
		return nil, err
	}
	p.skip(4) // overall FORM length, unused
	if err := p.expect("XDIRINFO"); err != nil {
		return nil, err
	}
	p.skip(4) // unknown
	if p.remaining() < 1 {
		return nil, errShortXMI
	}
	formCount := int(p.data[p.pos])
	p.pos++
	if formCount == 0 {
		return nil, fmt.Errorf("xmidi: zero forms")
	}

	if err := p.expect("CAT "); err != nil {
		return nil, err
	}
	p.skip(4) // CAT length, unused
	if err := p.expect("XMID"); err != nil {
		return nil, err
	}

	m := mdi.New()
	m.SampleRate = sampleRate
	m.DivisionsPerBeat = xmiDivisions
	m.SetTempo(xmiTempo)
	m.AppendEvent(mdi.Event{Kind: mdi.KindSetDivisions, Value: xmiDivisions})

	var noteLen [16 * 128]uint32
	var lowestDelta uint32
	evntCount := 0

	for i := 0; i < formCount; i++ {
		if err := p.expect("FORM"); err != nil {
			return nil, err
		}
		subformLen, err := p.readUint32BE()
		if err != nil {
			return nil, err
		}
		if err := p.expect("XMID"); err != nil {
			return nil, err
		}
		subformLen -= 4
		subformEnd := p.pos + int(subformLen)
		if subformEnd > len(p.data) {
			return nil, errShortXMI
		}

		for p.pos < subformEnd {
			chunkID := string(p.data[p.pos : p.pos+4])
			p.pos += 4
			chunkLen, err := p.readUint32BE()
			if err != nil {
				return nil, err
			}
			switch chunkID {
			case "TIMB", "RBRN":
				p.pos += int(chunkLen)
			case "EVNT":
				body := p.data[p.pos : p.pos+int(chunkLen)]
				if err := parseEvnt(body, m, &noteLen, &lowestDelta); err != nil {
					return nil, err
				}
				p.pos += int(chunkLen)
				evntCount++
			default:
				return nil, fmt.Errorf("xmidi: unexpected chunk %q", chunkID)
			}
		}
		p.pos = subformEnd
	}

	if evntCount > 1 {
		m.IsType2 = true
	}
	m.Finalize()
	return m, nil
}

var errShortXMI = fmt.Errorf("xmidi: truncated file")

type xmiParser struct {
	data []byte
	pos  int
}

func (p *xmiParser) remaining() int { return len(p.data) - p.pos }

func (p *xmiParser) expect(tag string) error {
	if p.remaining() < len(tag) || string(p.data[p.pos:p.pos+len(tag)]) != tag {
		return fmt.Errorf("xmidi: expected %q at offset %d", tag, p.pos)
	}
	p.pos += len(tag)
	return nil
}

func (p *xmiParser) skip(n int) { p.pos += n }

func (p *xmiParser) readUint32BE() (uint32, error) {
	if p.remaining() < 4 {
		return 0, errShortXMI
	}
	v := binary.BigEndian.Uint32(p.data[p.pos : p.pos+4])
	p.pos += 4
	return v, nil
}

// parseEvnt walks one EVNT subform's byte stream (§4.2 "XMIDI
// particulars"): a byte < 0x80 is an interval delta consumed directly (not
// a variable-length quantity); every on note's remaining duration is
// decremented by the smallest of that delta and any note's own remaining
// duration, so a synthetic NoteOff can fire mid-delta when a note's
// duration elapses before the next real event does.
func parseEvnt(ev []byte, m *mdi.MDI, noteLen *[16 * 128]uint32, lowestDelta *uint32) error {
	i := 0
	for i < len(ev) {
		b := ev[i]
		if b < 0x80 {
			i++
			if err := advanceDelta(m, noteLen, lowestDelta, uint32(b)); err != nil {
				return err
			}
			continue
		}

		if b == 0xFF && i+2 < len(ev) && ev[i+1] == 0x51 && ev[i+2] == 0x03 {
			// Embedded tempo meta events are ignored (§4.2): XMIDI tempo
			// is fixed by the divisions/tempo defaults.
			i += 6
			continue
		}

		consumed, ch, isNoteOn, note, err := decodeXMIEvent(ev[i:], m)
		if err != nil {
			return err
		}
		i += consumed

		if isNoteOn {
			dur, durLen, err := readContinuationVLQ(ev[i:])
			if err != nil {
				return err
			}
			i += durLen
			slot := 128*int(ch) + int(note)
			noteLen[slot] = dur
			if dur > 0 && (*lowestDelta == 0 || dur < *lowestDelta) {
				*lowestDelta = dur
			}
		}
	}
	return nil
}

func advanceDelta(m *mdi.MDI, noteLen *[16 * 128]uint32, lowestDelta *uint32, delta uint32) error {
	for {
		step := delta
		if *lowestDelta != 0 && *lowestDelta < step {
			step = *lowestDelta
		}

		m.AccumulateSamples(m.TicksToSamples(step))
		*lowestDelta = 0

		for j := range noteLen {
			if noteLen[j] == 0 {
				continue
			}
			noteLen[j] -= step
			if noteLen[j] == 0 {
				ch := uint8(j / 128)
				note := uint8(j % 128)
				m.AppendEvent(mdi.Event{Kind: mdi.KindNoteOff, Channel: ch, Value: mdi.PackNote(note, 0)})
			} else if *lowestDelta == 0 || noteLen[j] < *lowestDelta {
				*lowestDelta = noteLen[j]
			}
		}

		delta -= step
		if delta == 0 {
			return nil
		}
	}
}

// readContinuationVLQ reads the note-duration encoding used after a
// NoteOn: MSB-continuation, high bit set means "more bytes follow".
func readContinuationVLQ(data []byte) (value uint32, consumed int, err error) {
	for consumed < len(data) {
		b := data[consumed]
		value = (value << 7) | uint32(b&0x7f)
		consumed++
		if b&0x80 == 0 {
			return value, consumed, nil
		}
	}
	return 0, 0, fmt.Errorf("xmidi: truncated note duration")
}

// decodeXMIEvent decodes one channel-voice or meta/sysex event starting at
// data[0], appending the corresponding mdi.Event to m. It reports whether
// the event was a NoteOn (callers must then consume the trailing duration
// field) along with its channel/note for that purpose.
func decodeXMIEvent(data []byte, m *mdi.MDI) (consumed int, channel uint8, isNoteOn bool, note uint8, err error) {
	if len(data) == 0 {
		return 0, 0, false, 0, fmt.Errorf("xmidi: truncated event")
	}
	status := data[0]
	channel = status & 0x0f

	switch status & 0xf0 {
	case 0x80:
		if len(data) < 3 {
			return 0, 0, false, 0, fmt.Errorf("xmidi: truncated note-off")
		}
		m.AppendEvent(mdi.Event{Kind: mdi.KindNoteOff, Channel: channel, Value: mdi.PackNote(data[1], data[2])})
		return 3, channel, false, 0, nil
	case 0x90:
		// A trailing variable-length note-duration field follows every
		// NoteOn status byte regardless of velocity (§4.2): the original
		// source gates on the status nibble alone, not on velocity==0.
		if len(data) < 3 {
			return 0, 0, false, 0, fmt.Errorf("xmidi: truncated note-on")
		}
		note = data[1]
		vel := data[2]
		if vel == 0 {
			m.AppendEvent(mdi.Event{Kind: mdi.KindNoteOff, Channel: channel, Value: mdi.PackNote(note, 0)})
		} else {
			m.AppendEvent(mdi.Event{Kind: mdi.KindNoteOn, Channel: channel, Value: mdi.PackNote(note, vel)})
		}
		return 3, channel, true, note, nil
	case 0xA0:
		if len(data) < 3 {
			return 0, 0, false, 0, fmt.Errorf("xmidi: truncated aftertouch")
		}
		m.AppendEvent(mdi.Event{Kind: mdi.KindAftertouch, Channel: channel, Value: mdi.PackNote(data[1], data[2])})
		return 3, channel, false, 0, nil
	case 0xB0:
		if len(data) < 3 {
			return 0, 0, false, 0, fmt.Errorf("xmidi: truncated control change")
		}
		m.AppendEvent(mdi.Event{Kind: mdi.KindControlChange, Channel: channel, Value: mdi.PackCC(data[1], data[2])})
		return 3, channel, false, 0, nil
	case 0xC0:
		if len(data) < 2 {
			return 0, 0, false, 0, fmt.Errorf("xmidi: truncated program change")
		}
		m.AppendEvent(mdi.Event{Kind: mdi.KindProgramChange, Channel: channel, Value: uint32(data[1])})
		return 2, channel, false, 0, nil
	case 0xD0:
		if len(data) < 2 {
			return 0, 0, false, 0, fmt.Errorf("xmidi: truncated channel pressure")
		}
		m.AppendEvent(mdi.Event{Kind: mdi.KindChannelPressure, Channel: channel, Value: uint32(data[1])})
		return 2, channel, false, 0, nil
	case 0xE0:
		if len(data) < 3 {
			return 0, 0, false, 0, fmt.Errorf("xmidi: truncated pitch bend")
		}
		bend := uint32(data[1]) | uint32(data[2])<<7
		m.AppendEvent(mdi.Event{Kind: mdi.KindPitchBend, Channel: channel, Value: bend})
		return 3, channel, false, 0, nil
	case 0xF0:
		return decodeMetaOrSysex(data, m)
	default:
		return 0, 0, false, 0, fmt.Errorf("xmidi: unrecognised status byte 0x%02x", status)
	}
}

func decodeMetaOrSysex(data []byte, m *mdi.MDI) (consumed int, channel uint8, isNoteOn bool, note uint8, err error) {
	status := data[0]
	if status == 0xFF {
		if len(data) < 2 {
			return 0, 0, false, 0, fmt.Errorf("xmidi: truncated meta event")
		}
		metaType := data[1]
		length, lenBytes, err := readContinuationVLQ(data[2:])
		if err != nil {
			return 0, 0, false, 0, err
		}
		start := 2 + lenBytes
		end := start + int(length)
		if end > len(data) {
			return 0, 0, false, 0, fmt.Errorf("xmidi: truncated meta payload")
		}
		payload := data[start:end]
		appendMeta(m, metaType, payload)
		return end, 0, false, 0, nil
	}

	// Sysex (0xF0/0xF7): length-prefixed, no internal structure we care about.
	length, lenBytes, err := readContinuationVLQ(data[1:])
	if err != nil {
		return 0, 0, false, 0, err
	}
	end := 1 + lenBytes + int(length)
	if end > len(data) {
		return 0, 0, false, 0, fmt.Errorf("xmidi: truncated sysex")
	}
	if isGMReset(data[:end]) {
		m.AppendEvent(mdi.Event{Kind: mdi.KindGMReset})
	}
	return end, 0, false, 0, nil
}

func appendMeta(m *mdi.MDI, metaType byte, payload []byte) {
	switch metaType {
	case 0x00:
		if len(payload) >= 2 {
			m.AppendEvent(mdi.Event{Kind: mdi.KindSequenceNumber, Value: uint32(payload[0])<<8 | uint32(payload[1])})
		}
	case 0x01:
		m.AppendEvent(mdi.Event{Kind: mdi.KindText, Text: string(payload)})
	case 0x02:
		text := string(payload)
		m.Copyright = text
		m.AppendEvent(mdi.Event{Kind: mdi.KindCopyright, Text: text})
	case 0x03:
		m.AppendEvent(mdi.Event{Kind: mdi.KindTrackName, Text: string(payload)})
	case 0x04:
		m.AppendEvent(mdi.Event{Kind: mdi.KindInstrumentName, Text: string(payload)})
	case 0x05:
		text := string(payload)
		m.LastLyric = text
		m.AppendEvent(mdi.Event{Kind: mdi.KindLyric, Text: text})
	case 0x06:
		m.AppendEvent(mdi.Event{Kind: mdi.KindMarker, Text: string(payload)})
	case 0x07:
		m.AppendEvent(mdi.Event{Kind: mdi.KindCuePoint, Text: string(payload)})
	case 0x20:
		if len(payload) >= 1 {
			m.AppendEvent(mdi.Event{Kind: mdi.KindChannelPrefix, Value: uint32(payload[0])})
		}
	case 0x21:
		if len(payload) >= 1 {
			m.AppendEvent(mdi.Event{Kind: mdi.KindPortPrefix, Value: uint32(payload[0])})
		}
	case 0x2F:
		m.AppendEvent(mdi.Event{Kind: mdi.KindEndOfTrack})
	case 0x54:
		if len(payload) >= 5 {
			m.AppendEvent(mdi.Event{
				Kind:    mdi.KindSMPTEOffset,
				Channel: payload[4],
				Value:   mdi.PackSMPTE(payload[0], payload[1], payload[2], payload[3]),
			})
		}
	case 0x58:
		if len(payload) >= 4 {
			m.AppendEvent(mdi.Event{Kind: mdi.KindTimeSignature, Value: mdi.PackTimeSig(payload[0], payload[1], payload[2], payload[3])})
		}
	case 0x59:
		if len(payload) >= 2 {
			m.AppendEvent(mdi.Event{Kind: mdi.KindKeySignature, Value: mdi.PackKeySig(int8(payload[0]), payload[1])})
		}
	}
	// Tempo (0x51) is handled by the caller before this is ever reached.
}

func isGMReset(sysex []byte) bool {
	return bytes.Equal(sysex, []byte{0xF0, 0x7E, 0x7F, 0x09, 0x01, 0xF7})
}
