// go-wildmidi
// Licensed under MIT

// Package mus lowers a DMX "MUS" byte stream (the compact event format
// id Software's DMX audio library used for Doom-era game music) into the
// canonical mdi.MDI event image (§4.7 "MUS2MIDI").
package mus

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/mindwerks/go-wildmidi/mdi"
)

const (
	musDivisions = 60
	// defaultFrequency is DMX's playback rate when no override is
	// configured; tempo is derived from it rather than stored in the file.
	defaultFrequency = 140
)

var signature = []byte{'M', 'U', 'S', 0x1A}

// controllerOpcodes maps a type-4 MUS controller sub-opcode (the second
// event byte) to the MIDI CC number it lowers to (§4.7's opcode table).
// Sub-opcode 0 ("Patch") is handled separately since it becomes a Program
// Change rather than a Control Change.
var controllerOpcodes = map[uint8]uint8{
	1: 0,  // Bank select
	2: 1,  // Modulation
	3: 7,  // Volume
	4: 10, // Pan
	5: 11, // Expression
	6: 91, // Reverb depth
	7: 93, // Chorus depth
	8: 64, // Sustain pedal
	9: 67, // Soft pedal
}

// systemOpcodes maps a type-3 MUS "system event" sub-opcode to the MIDI CC
// number it lowers to; these carry no value byte of their own and always
// send a zero value (§4.7).
var systemOpcodes = map[uint8]uint8{
	10: 120, // All Sounds Off
	11: 123, // All Notes Off
	12: 126, // Mono mode
	13: 127, // Poly mode
	14: 121, // Reset All Controllers
}

// Parse reads a MUS byte stream and lowers it into a fresh MDI, deriving
// tempo from the default DMX playback rate. See ParseWithFrequency to
// override that rate (the set_cvt_option FREQUENCY tag of §6).
func Parse(data []byte, sampleRate uint32) (*mdi.MDI, error) {
	return ParseWithFrequency(data, sampleRate, defaultFrequency)
}

// ParseWithFrequency is Parse with the DMX playback rate overridden; a MUS
// file carries no frequency of its own, so callers that honour the
// set_cvt_option FREQUENCY tag (§6) thread their configured value through
// here instead of the package default.
func ParseWithFrequency(data []byte, sampleRate, frequency uint32) (*mdi.MDI, error) {
	if len(data) < 17 || !bytes.Equal(data[:4], signature) {
		return nil, fmt.Errorf("mus: bad signature")
	}

	songLen := binary.LittleEndian.Uint16(data[4:6])
	songOfs := binary.LittleEndian.Uint16(data[6:8])
	noInstr := binary.LittleEndian.Uint16(data[12:14])

	if uint32(len(data)) < uint32(16)+uint32(noInstr)*2+uint32(songLen) {
		return nil, fmt.Errorf("mus: file too short")
	}

	if frequency == 0 {
		frequency = defaultFrequency
	}
	tempo := uint32(60000000 / frequency)

	m := mdi.New()
	m.SampleRate = sampleRate
	m.DivisionsPerBeat = musDivisions
	m.SetTempo(tempo)
	m.AppendEvent(mdi.Event{Kind: mdi.KindSetDivisions, Value: musDivisions})

	var prevVol [16]uint8
	pos := int(songOfs)

	for pos < len(data) {
		raw := data[pos]
		channel := raw & 0x0f
		switch channel {
		case 0x0f:
			channel = 0x09
		case 0x09:
			channel = 0x0f
		}
		typ := (raw >> 4) & 0x07

		if typ == 6 {
			break
		}

		consumed, err := decodeEvent(data, pos, raw, channel, typ, m, &prevVol)
		if err != nil {
			return nil, err
		}
		pos += consumed

		if raw&0x80 == 0 {
			continue
		}

		delta, n, err := readStandardVLQ(data[pos:])
		if err != nil {
			return nil, err
		}
		pos += n
		m.AccumulateSamples(m.TicksToSamples(delta))
	}

	m.Finalize()
	return m, nil
}

// decodeEvent decodes the event whose type byte sits at data[pos], emits
// the corresponding mdi.Event (if any — event types 5 and 7 and
// unrecognised type-3/type-4 sub-opcodes are reserved and consumed
// without emitting), and reports how many bytes of data it spanned.
func decodeEvent(data []byte, pos int, raw, channel, typ byte, m *mdi.MDI, prevVol *[16]uint8) (consumed int, err error) {
	switch typ {
	case 0: // Note Off
		if pos+1 >= len(data) {
			return 0, fmt.Errorf("mus: truncated note-off")
		}
		note := data[pos+1]
		m.AppendEvent(mdi.Event{Kind: mdi.KindNoteOff, Channel: channel, Value: mdi.PackNote(note, 0)})
		return 2, nil

	case 1: // Note On, with an optional explicit velocity byte
		if pos+1 >= len(data) {
			return 0, fmt.Errorf("mus: truncated note-on")
		}
		if data[pos+1]&0x80 != 0 {
			if pos+2 >= len(data) {
				return 0, fmt.Errorf("mus: truncated note-on velocity")
			}
			note := data[pos+1] & 0x7f
			vel := data[pos+2]
			prevVol[channel] = vel
			m.AppendEvent(mdi.Event{Kind: mdi.KindNoteOn, Channel: channel, Value: mdi.PackNote(note, vel)})
			return 3, nil
		}
		note := data[pos+1]
		vel := prevVol[channel]
		m.AppendEvent(mdi.Event{Kind: mdi.KindNoteOn, Channel: channel, Value: mdi.PackNote(note, vel)})
		return 2, nil

	case 2: // Pitch Bend: a single coarse byte scaled into the 14-bit range
		if pos+1 >= len(data) {
			return 0, fmt.Errorf("mus: truncated pitch bend")
		}
		scaled := uint32(data[pos+1]) << 6
		lsb := scaled & 0x7f
		msb := (scaled >> 7) & 0x7f
		m.AppendEvent(mdi.Event{Kind: mdi.KindPitchBend, Channel: channel, Value: lsb | msb<<7})
		return 2, nil

	case 3: // System event: fixed CC number, always a zero value
		if pos+1 >= len(data) {
			return 0, fmt.Errorf("mus: truncated system event")
		}
		if cc, ok := systemOpcodes[data[pos+1]]; ok {
			m.AppendEvent(mdi.Event{Kind: mdi.KindControlChange, Channel: channel, Value: mdi.PackCC(cc, 0)})
		}
		return 2, nil

	case 4: // Controller change, carrying its own value byte
		if pos+2 >= len(data) {
			return 0, fmt.Errorf("mus: truncated controller change")
		}
		sub := data[pos+1]
		value := data[pos+2]
		if sub == 0 {
			m.AppendEvent(mdi.Event{Kind: mdi.KindProgramChange, Channel: channel, Value: uint32(value)})
		} else if cc, ok := controllerOpcodes[sub]; ok {
			m.AppendEvent(mdi.Event{Kind: mdi.KindControlChange, Channel: channel, Value: mdi.PackCC(cc, value)})
		}
		return 3, nil

	case 5, 7: // Reserved, no payload of their own
		return 1, nil

	default:
		return 0, fmt.Errorf("mus: unrecognised event type %d", typ)
	}
}

// readStandardVLQ decodes the standard big-endian, high-bit-set-means-
// continue MIDI variable-length quantity used for inter-event deltas.
func readStandardVLQ(data []byte) (value uint32, consumed int, err error) {
	for consumed < len(data) {
		b := data[consumed]
		value = value<<7 | uint32(b&0x7f)
		consumed++
		if b&0x80 == 0 {
			return value, consumed, nil
		}
	}
	return 0, 0, fmt.Errorf("mus: truncated variable-length quantity")
}
