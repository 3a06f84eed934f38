// go-wildmidi
// Licensed under MIT

// Package midiwriter converts a decoded mdi.MDI back into a standard
// MIDI byte stream (§4.7): the inverse of the format parsers, useful for
// round-tripping a score through any of the non-SMF containers into
// something a generic MIDI player can open.
package midiwriter

import (
	"io"
	"math"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/mindwerks/go-wildmidi/mdi"
)

// WriteMDI walks m's event stream and writes a complete SMF byte stream
// to w: Type 0 if m is not a Type-2 score, Type 2 (one MTrk per
// concatenated segment, split at EndOfTrack) otherwise (§4.7).
func WriteMDI(w io.Writer, m *mdi.MDI) error {
	divisions := divisionsFor(m)
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(divisions)

	if m.IsType2 {
		return writeType2(w, s, m, divisions)
	}
	return writeType0(w, s, m, divisions)
}

func divisionsFor(m *mdi.MDI) uint16 {
	if m.DivisionsPerBeat != 0 {
		return m.DivisionsPerBeat
	}
	return 480
}

func writeType0(w io.Writer, s *smf.SMF, m *mdi.MDI, divisions uint16) error {
	tr := smf.Track{}
	samplesPerTick := m.SamplesPerTick
	if samplesPerTick <= 0 {
		samplesPerTick = 1
	}

	for i := range m.Events {
		ev := &m.Events[i]
		msg, meta := encodeEvent(ev)
		if msg != nil {
			tr.Add(ticksFor(ev.SamplesToNext, samplesPerTick), msg)
		} else if meta != nil {
			tr.Add(ticksFor(ev.SamplesToNext, samplesPerTick), meta)
		}
		if ev.Kind == mdi.KindSetTempo {
			samplesPerTick = recomputeSamplesPerTick(m, ev.Value, divisions)
		}
	}
	tr.Close(0)
	if err := s.Add(tr); err != nil {
		return err
	}
	return s.WriteTo(w)
}

func writeType2(w io.Writer, s *smf.SMF, m *mdi.MDI, divisions uint16) error {
	tr := smf.Track{}
	samplesPerTick := m.SamplesPerTick
	if samplesPerTick <= 0 {
		samplesPerTick = 1
	}

	for i := range m.Events {
		ev := &m.Events[i]
		if ev.Kind == mdi.KindEndOfTrack {
			tr.Close(ticksFor(ev.SamplesToNext, samplesPerTick))
			if err := s.Add(tr); err != nil {
				return err
			}
			tr = smf.Track{}
			continue
		}

		msg, meta := encodeEvent(ev)
		if msg != nil {
			tr.Add(ticksFor(ev.SamplesToNext, samplesPerTick), msg)
		} else if meta != nil {
			tr.Add(ticksFor(ev.SamplesToNext, samplesPerTick), meta)
		}
		if ev.Kind == mdi.KindSetTempo {
			samplesPerTick = recomputeSamplesPerTick(m, ev.Value, divisions)
		}
	}

	if len(tr) > 0 {
		tr.Close(0)
		if err := s.Add(tr); err != nil {
			return err
		}
	}
	return s.WriteTo(w)
}

// ticksFor converts a samples_to_next delta back into a tick count via
// the tempo in effect at that point (§4.7: "ticks = round(samples_to_next
// / samples_per_tick)").
func ticksFor(samplesToNext uint32, samplesPerTick float64) uint32 {
	if samplesPerTick <= 0 {
		return 0
	}
	return uint32(math.Round(float64(samplesToNext) / samplesPerTick))
}

func recomputeSamplesPerTick(m *mdi.MDI, microsecondsPerQuarter uint32, divisions uint16) float64 {
	if divisions == 0 {
		return 1
	}
	return (float64(microsecondsPerQuarter) / float64(divisions)) * (float64(m.SampleRate) / 1_000_000)
}

// encodeEvent maps one mdi.Event back to its wire form: either a channel
// voice message or an SMF meta message. At most one of the two returns is
// non-nil; both are nil for every kind without a case below (End,
// EndOfTrack, SetDivisions and the sysex resets among them) (§4.7 "each
// handler variant maps back to its wire encoding").
func encodeEvent(ev *mdi.Event) (msg midi.Message, meta smf.Message) {
	switch ev.Kind {
	case mdi.KindNoteOn:
		note, vel := mdi.UnpackNote(ev.Value)
		return midi.NoteOn(ev.Channel, note, vel), nil
	case mdi.KindNoteOff:
		note, _ := mdi.UnpackNote(ev.Value)
		return midi.NoteOff(ev.Channel, note), nil
	case mdi.KindAftertouch:
		note, vel := mdi.UnpackNote(ev.Value)
		return midi.AfterTouch(ev.Channel, note, vel), nil
	case mdi.KindControlChange:
		cc, val := mdi.UnpackCC(ev.Value)
		return midi.ControlChange(ev.Channel, cc, val), nil
	case mdi.KindProgramChange:
		return midi.ProgramChange(ev.Channel, uint8(ev.Value)), nil
	case mdi.KindChannelPressure:
		return midi.ChannelAfterTouch(ev.Channel, uint8(ev.Value)), nil
	case mdi.KindPitchBend:
		return midi.Pitchbend(ev.Channel, int16(ev.Value)-8192), nil
	case mdi.KindSetTempo:
		return nil, smf.MetaTempo(60_000_000.0 / float64(ev.Value))
	case mdi.KindTimeSignature:
		nn, dd, cc, bb := mdi.UnpackTimeSig(ev.Value)
		return nil, smf.MetaMeter(nn, uint8(1)<<dd, cc, bb)
	case mdi.KindKeySignature:
		sf, mi := mdi.UnpackKeySig(ev.Value)
		return nil, smf.MetaKey(sf, mi != 0, 0, 0)
	case mdi.KindSMPTEOffset:
		hr, mn, se, fr := mdi.UnpackSMPTE(ev.Value)
		return nil, smf.MetaSMPTE(hr, mn, se, fr, ev.Channel)
	case mdi.KindText:
		return nil, smf.MetaText(ev.Text)
	case mdi.KindCopyright:
		return nil, smf.MetaCopyright(ev.Text)
	case mdi.KindTrackName:
		return nil, smf.MetaTrackSequenceName(ev.Text)
	case mdi.KindInstrumentName:
		return nil, smf.MetaInstrument(ev.Text)
	case mdi.KindLyric:
		return nil, smf.MetaLyric(ev.Text)
	case mdi.KindMarker:
		return nil, smf.MetaMarker(ev.Text)
	case mdi.KindCuePoint:
		return nil, smf.MetaCuepoint(ev.Text)
	case mdi.KindSequenceNumber:
		return nil, smf.MetaSequenceNo(uint16(ev.Value))
	default:
		return nil, nil
	}
}
