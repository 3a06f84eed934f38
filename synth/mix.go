// go-wildmidi
// Licensed under MIT

package synth

import (
	"github.com/mindwerks/go-wildmidi/mdi"
)

// recomputeChannelMixVolumes refreshes left/right mix volume for every
// active voice on ch (§4.3 "Master volume": recomputed on NoteOn,
// Aftertouch, ChannelVolume, ChannelBalance, ChannelPan,
// ChannelExpression, ChannelPressure, ResetAllControllers, and reset
// events).
func (e *Engine) recomputeChannelMixVolumes(ch uint8) {
	for slot := 0; slot < 2; slot++ {
		for note := 0; note < 128; note++ {
			n := e.m.NoteTable[slot][ch][note]
			if n == nil || !n.Active {
				continue
			}
			e.recomputeVoiceMixVolume(ch, n)
		}
	}
}

// recomputeVoiceMixVolume implements the premix volume formula of §4.3:
// vol_ofs = velocity*expression*channel_volume / (127*127), then a
// pan-split dBm lookup scaled by master volume.
func (e *Engine) recomputeVoiceMixVolume(ch uint8, n *mdi.Note) {
	c := e.channel(ch)
	if c == nil {
		return
	}

	volOfs := int(n.Velocity) * int(c.Expression) * int(c.Volume) / (127 * 127)
	if volOfs > 127 {
		volOfs = 127
	}

	var volScalar float64
	if e.Options&OptionLogVolume != 0 {
		volScalar = dBmToLinearScalar(mdi.DBmVolumeTable[volOfs])
	} else {
		volScalar = float64(mdi.LinearLUT[volOfs])
	}

	panOfs := int(c.Balance) + int(c.Pan) - 64
	panOfs = clampInt(panOfs, 0, 127)

	leftDB := mdi.DBmPanTable[127-panOfs]
	rightDB := mdi.DBmPanTable[panOfs]

	leftScalar := dBmToLinearScalar(leftDB)
	rightScalar := dBmToLinearScalar(rightDB)

	master := float64(e.m.MasterVolume)

	n.LeftMixVolume = int32(volScalar * leftScalar * master / (1024 * 4))
	n.RightMixVolume = int32(volScalar * rightScalar * master / (1024 * 4))
}

// SetMasterVolume updates the per-score master volume (§6 "master_volume",
// a 0..127 level scaled into the 0..1024 fixed-point range) and
// immediately recomputes every active voice's mix volume, so the change is
// audible without waiting for the next channel event to trigger a
// recompute.
func (e *Engine) SetMasterVolume(level uint8) {
	if level > 127 {
		level = 127
	}
	e.m.MasterVolume = uint16(uint32(level) * 1024 / 127)
	for n := e.m.ActiveVoices; n != nil; n = n.Next {
		ch := uint8(n.NoteID >> 8)
		e.recomputeVoiceMixVolume(ch, n)
	}
}

func dBmToLinearScalar(db float64) float64 {
	return mdi.DBmToLinear(db) * 1024
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// recomputeChannelPitch recomputes sample_inc for every active voice on ch
// after a pitch-wheel change (§4.4).
func (e *Engine) recomputeChannelPitch(ch uint8) {
	c := e.channel(ch)
	if c == nil {
		return
	}
	for slot := 0; slot < 2; slot++ {
		for note := 0; note < 128; note++ {
			n := e.m.NoteTable[slot][ch][note]
			if n == nil || !n.Active {
				continue
			}
			key := uint8(n.NoteID)
			freqNote := key
			if n.Patch != nil && n.Patch.Note != 0 {
				freqNote = n.Patch.Note
			}
			e.recomputeVoicePitch(ch, n, freqNote)
			_ = c
		}
	}
}

// recomputeVoicePitch implements §4.4's sample_inc formula.
func (e *Engine) recomputeVoicePitch(ch uint8, n *mdi.Note, key uint8) {
	c := e.channel(ch)
	if c == nil || n.Sample == nil {
		return
	}

	noteCents := int32(key)*100 + c.PitchAdjust
	if noteCents < 0 {
		noteCents = 0
	}
	if noteCents > 12700 {
		noteCents = 12700
	}

	octave := noteCents / 1200
	sub := noteCents % 1200
	freq := mdi.FreqLUT[sub] >> uint(10-octave)

	denom := (e.SampleRate * 100) / 1024
	if denom == 0 || n.Sample.IncDiv == 0 {
		n.SampleInc = 0
		return
	}
	n.SampleInc = int64(freq) / int64(denom) * 1024 / n.Sample.IncDiv
}
