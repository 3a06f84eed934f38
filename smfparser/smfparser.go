// go-wildmidi
// Licensed under MIT

// Package smfparser lowers a Standard MIDI File (or RIFF-wrapped SMF) byte
// stream into the canonical mdi.MDI event image (§4.2).
package smfparser

import (
	"bytes"
	"fmt"

	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/mindwerks/go-wildmidi/mdi"
)

// Parse reads an SMF byte stream and lowers it into a fresh MDI. Type 0 and
// Type 1 files are merged by mdi.MergeTracks; Type 2 files are concatenated
// by mdi.ConcatTracks and marked IsType2 (§4.2 "Type 0 vs Type 1 vs Type 2").
func Parse(data []byte, sampleRate uint32) (*mdi.MDI, error) {
	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("smfparser: %w", err)
	}

	m := mdi.New()
	m.SampleRate = sampleRate

	divisions := uint16(480)
	if mt, ok := s.TimeFormat.(smf.MetricTicks); ok {
		divisions = mt.Resolution()
	}
	m.DivisionsPerBeat = divisions
	m.SetTempo(500000)
	m.AppendEvent(mdi.Event{Kind: mdi.KindSetDivisions, Value: uint32(divisions)})

	tracks := make([]mdi.Track, 0, len(s.Tracks))
	for _, tr := range s.Tracks {
		tracks = append(tracks, newTrack(tr))
	}

	if s.Format == smf.SMF2 {
		m.IsType2 = true
		mdi.ConcatTracks(m, tracks)
	} else {
		mdi.MergeTracks(m, tracks)
	}

	m.Finalize()
	return m, nil
}

// track adapts one smf.Track to the mdi.Track merge/concat interface.
type track struct {
	events []smf.TrackEvent
	pos    int
	delta  uint32
}

func newTrack(tr smf.Track) *track {
	t := &track{events: []smf.TrackEvent(tr)}
	if len(t.events) > 0 {
		t.delta = t.events[0].Delta
	}
	return t
}

func (t *track) Ended() bool   { return t.pos >= len(t.events) }
func (t *track) Delta() uint32 { return t.delta }

func (t *track) Advance(ticks uint32) {
	if ticks >= t.delta {
		t.delta = 0
	} else {
		t.delta -= ticks
	}
}

// Emit processes every event at the current zero delta, then primes delta
// with the following event's own inter-event tick count.
func (t *track) Emit(m *mdi.MDI) {
	for !t.Ended() && t.delta == 0 {
		ev := t.events[t.pos]
		emitMessage(m, ev.Message)
		t.pos++
		if !t.Ended() {
			t.delta = t.events[t.pos].Delta
		}
	}
}

// emitMessage decodes one wire-format MIDI message and appends the
// corresponding mdi.Event, per the handler list of §4.2. Tempo meta events
// additionally recompute samples_per_tick for every subsequent delta.
func emitMessage(m *mdi.MDI, msg smf.Message) {
	var (
		ch, key, vel, val, prog, cc uint8
		bend                        int16
		text                        string
		bpm                         float64
		num, denom                  uint8
		sf                          int8
		major                       bool
		seqNo                       uint16
	)

	switch {
	case msg.GetNoteOn(&ch, &key, &vel):
		if vel == 0 {
			m.AppendEvent(mdi.Event{Kind: mdi.KindNoteOff, Channel: ch, Value: mdi.PackNote(key, 0)})
		} else {
			m.AppendEvent(mdi.Event{Kind: mdi.KindNoteOn, Channel: ch, Value: mdi.PackNote(key, vel)})
		}
	case msg.GetNoteOff(&ch, &key, &vel):
		m.AppendEvent(mdi.Event{Kind: mdi.KindNoteOff, Channel: ch, Value: mdi.PackNote(key, vel)})
	case msg.GetPolyAfterTouch(&ch, &key, &val):
		m.AppendEvent(mdi.Event{Kind: mdi.KindAftertouch, Channel: ch, Value: mdi.PackNote(key, val)})
	case msg.GetControlChange(&ch, &cc, &val):
		m.AppendEvent(mdi.Event{Kind: mdi.KindControlChange, Channel: ch, Value: mdi.PackCC(cc, val)})
	case msg.GetProgramChange(&ch, &prog):
		m.AppendEvent(mdi.Event{Kind: mdi.KindProgramChange, Channel: ch, Value: uint32(prog)})
	case msg.GetAfterTouch(&ch, &val):
		m.AppendEvent(mdi.Event{Kind: mdi.KindChannelPressure, Channel: ch, Value: uint32(val)})
	case msg.GetPitchBend(&ch, &bend, nil):
		m.AppendEvent(mdi.Event{Kind: mdi.KindPitchBend, Channel: ch, Value: uint32(int32(bend) + 8192)})
	case msg.GetMetaTempo(&bpm):
		if bpm <= 0 {
			bpm = 120
		}
		micros := uint32(60_000_000.0 / bpm)
		m.SetTempo(micros)
		m.AppendEvent(mdi.Event{Kind: mdi.KindSetTempo, Value: micros})
	case msg.GetMetaMeter(&num, &denom):
		dd := log2(denom)
		m.AppendEvent(mdi.Event{Kind: mdi.KindTimeSignature, Value: mdi.PackTimeSig(num, dd, 24, 8)})
	case msg.GetMetaKey(&sf, &major):
		mi := uint8(0)
		if !major {
			mi = 1
		}
		m.AppendEvent(mdi.Event{Kind: mdi.KindKeySignature, Value: mdi.PackKeySig(sf, mi)})
	case msg.GetMetaSeqNumber(&seqNo):
		m.AppendEvent(mdi.Event{Kind: mdi.KindSequenceNumber, Value: uint32(seqNo)})
	case msg.GetMetaLyric(&text):
		m.LastLyric = text
		m.AppendEvent(mdi.Event{Kind: mdi.KindLyric, Text: text})
	case msg.GetMetaCopyright(&text):
		m.Copyright = text
		m.AppendEvent(mdi.Event{Kind: mdi.KindCopyright, Text: text})
	case msg.GetMetaTrackName(&text):
		m.AppendEvent(mdi.Event{Kind: mdi.KindTrackName, Text: text})
	case msg.GetMetaInstrument(&text):
		m.AppendEvent(mdi.Event{Kind: mdi.KindInstrumentName, Text: text})
	case msg.GetMetaMarker(&text):
		m.AppendEvent(mdi.Event{Kind: mdi.KindMarker, Text: text})
	case msg.GetMetaCuepoint(&text):
		m.AppendEvent(mdi.Event{Kind: mdi.KindCuePoint, Text: text})
	case msg.GetMetaText(&text):
		m.AppendEvent(mdi.Event{Kind: mdi.KindText, Text: text})
	case msg.GetMetaEndOfTrack():
		m.AppendEvent(mdi.Event{Kind: mdi.KindEndOfTrack})
	default:
		if isRolandGMReset(msg) {
			m.AppendEvent(mdi.Event{Kind: mdi.KindGMReset})
		}
	}
}

func log2(denom uint8) uint8 {
	var dd uint8
	for denom > 1 {
		denom >>= 1
		dd++
	}
	return dd
}

// isRolandGMReset recognises one sysex reset (§4.2 "Sysex subset"): the GM
// reset F0 7E 7F 09 01 F7, matched byte for byte. GS (Roland) and XG
// (Yamaha) resets and the Roland drum-track message are not recognised and
// produce no event.
func isRolandGMReset(msg smf.Message) bool {
	b := []byte(msg)
	gmReset := []byte{0xF0, 0x7E, 0x7F, 0x09, 0x01, 0xF7}
	return bytes.Equal(b, gmReset)
}
