// go-wildmidi
// Licensed under MIT

package synth

import (
	"github.com/mindwerks/go-wildmidi/mdi"
	"github.com/mindwerks/go-wildmidi/patch"
)

// dispatchEvent applies one event's side effect to the MDI's channel/note
// state (§4.2 "Event handlers", §4.3/§4.4 for the state it mutates).
func (e *Engine) dispatchEvent(ev *mdi.Event) {
	switch ev.Kind {
	case mdi.KindNoteOn:
		note, vel := mdi.UnpackNote(ev.Value)
		if vel == 0 {
			e.noteOff(ev.Channel, note)
		} else {
			e.noteOn(ev.Channel, note, vel)
		}
	case mdi.KindNoteOff:
		note, _ := mdi.UnpackNote(ev.Value)
		e.noteOff(ev.Channel, note)
	case mdi.KindProgramChange:
		e.programChange(ev.Channel, uint8(ev.Value))
	case mdi.KindControlChange:
		cc, val := mdi.UnpackCC(ev.Value)
		e.controlChange(ev.Channel, cc, val)
	case mdi.KindPitchBend:
		e.pitchBend(ev.Channel, int16(ev.Value)-8192)
	case mdi.KindChannelPressure, mdi.KindAftertouch:
		e.recomputeChannelMixVolumes(ev.Channel)
	case mdi.KindRolandReset, mdi.KindGMReset, mdi.KindYamahaReset:
		e.resetAllChannels()
	case mdi.KindLyric:
		e.m.LastLyric = ev.Text
	case mdi.KindText:
		if e.Options&OptionTextAsLyric != 0 {
			e.m.LastLyric = ev.Text
		}
	}
}

func (e *Engine) channel(ch uint8) *mdi.Channel {
	if ch >= 16 {
		return nil
	}
	return &e.m.Channels[ch]
}

func (e *Engine) programChange(ch, program uint8) {
	c := e.channel(ch)
	if c == nil {
		return
	}
	drum := c.Drum
	patchID := patch.MakePatchID(c.Bank, program, drum)
	p, err := e.m.ResolvePatch(e.store, patchID)
	if err != nil {
		e.log.Warn("resolve patch failed", "patchid", patchID, "err", err)
		return
	}
	c.Patch = p
}

func (e *Engine) controlChange(ch, cc, val uint8) {
	c := e.channel(ch)
	if c == nil {
		return
	}
	switch cc {
	case mdi.CCBankSelectMSB:
		c.Bank = val
	case mdi.CCChannelVolume:
		c.Volume = val
		e.recomputeChannelMixVolumes(ch)
	case mdi.CCChannelBalance:
		c.Balance = val
		e.recomputeChannelMixVolumes(ch)
	case mdi.CCChannelPan:
		c.Pan = val
		e.recomputeChannelMixVolumes(ch)
	case mdi.CCChannelExpression:
		c.Expression = val
		e.recomputeChannelMixVolumes(ch)
	case mdi.CCChannelHold:
		wasHeld := c.Hold
		c.Hold = val >= 64
		if wasHeld && !c.Hold {
			e.releaseHeldNotes(ch)
		}
	case mdi.CCAllSoundOff:
		e.killAllVoicesOnChannel(ch)
	case mdi.CCAllNotesOff:
		e.allNotesOff(ch)
	case mdi.CCResetAllControllers:
		bank := c.Bank
		p := c.Patch
		c.ResetGM(int(ch))
		c.Bank = bank
		c.Patch = p
		e.recomputeChannelMixVolumes(ch)
	}
}

func (e *Engine) pitchBend(ch uint8, bend int16) {
	c := e.channel(ch)
	if c == nil {
		return
	}
	c.PitchBend = bend
	c.PitchAdjust = int32(c.PitchRange) * int32(bend) / 8192
	e.recomputeChannelPitch(ch)
}

func (e *Engine) resetAllChannels() {
	for i := range e.m.Channels {
		e.m.Channels[i].ResetGM(i)
	}
}

// noteOn implements voice allocation on NoteOn (§4.3 "Voice allocation").
func (e *Engine) noteOn(ch, note, velocity uint8) {
	c := e.channel(ch)
	if c == nil || c.Patch == nil {
		return
	}

	noteID := uint16(ch)<<8 | uint16(note)
	slot0 := &e.m.NoteTable[0][ch][note]
	slot1 := &e.m.NoteTable[1][ch][note]

	target := e.allocateSlot(slot0, slot1)
	if target == nil {
		return // both slots busy building their envelope; drop
	}

	freqNote := note
	if c.Patch.Note != 0 {
		freqNote = c.Patch.Note
	}
	sample := c.Patch.GetSample(noteToMilliHz(freqNote))
	if sample == nil {
		return
	}

	n := &mdi.Note{
		NoteID:    noteID,
		Velocity:  velocity,
		Patch:     c.Patch,
		Sample:    sample,
		SamplePos: 0,
		Env:       mdi.EnvAttack,
		EnvLevel:  0,
		EnvInc:    sample.EnvRate[mdi.EnvAttack],
		Modes:     sample.Modes,
		Active:    true,
	}
	*target = n
	e.linkVoice(n)
	e.recomputeVoicePitch(ch, n, freqNote)
	e.recomputeVoiceMixVolume(ch, n)
}

// allocateSlot implements the two-slot-per-(channel,note) handover rule. It
// returns the address the new Note must be written into: the NoteTable slot
// itself when either slot is free, or the stealee's Replay field when both
// are busy — detachTerminated/terminateVoice promote whatever is sitting in
// Replay once the stealee's fast-kill finishes.
func (e *Engine) allocateSlot(slot0, slot1 **mdi.Note) **mdi.Note {
	for _, slot := range []**mdi.Note{slot0, slot1} {
		if *slot == nil || !(*slot).Active {
			return slot
		}
	}
	// Both slots occupied: steal slot0 if its envelope isn't still
	// building (stage >= 3), else drop the trigger.
	n0 := *slot0
	if n0.Env < mdi.EnvSustainHold {
		return nil
	}
	n0.Env = mdi.EnvFastKill
	n0.EnvInc = n0.Sample.EnvRate[mdi.EnvFastKill]
	return &n0.Replay
}

func (e *Engine) linkVoice(n *mdi.Note) {
	n.Next = e.m.ActiveVoices
	e.m.ActiveVoices = n
}

func (e *Engine) unlinkVoice(n *mdi.Note) {
	if e.m.ActiveVoices == n {
		e.m.ActiveVoices = n.Next
		return
	}
	for cur := e.m.ActiveVoices; cur != nil; cur = cur.Next {
		if cur.Next == n {
			cur.Next = n.Next
			return
		}
	}
}

// noteOff implements §4.4's note-off semantics.
func (e *Engine) noteOff(ch, note uint8) {
	c := e.channel(ch)
	if c == nil {
		return
	}
	for slot := 0; slot < 2; slot++ {
		n := e.m.NoteTable[slot][ch][note]
		if n == nil || !n.Active {
			continue
		}
		e.applyNoteOff(c, n)
	}
}

func (e *Engine) applyNoteOff(c *mdi.Channel, n *mdi.Note) {
	if n.Env == mdi.EnvAttack {
		n.IsOff = true
		return
	}
	if c.Hold {
		n.Hold |= mdi.HoldNoteOffSeen
		return
	}
	e.forceRelease(n)
}

func (e *Engine) forceRelease(n *mdi.Note) {
	if n.Sample.Modes&patch.ModeEnvelope == 0 {
		n.Modes &^= patch.ModeLoop
		n.EnvInc = 0
		return
	}
	if n.Modes&patch.ModeClamped != 0 && n.Env < mdi.EnvRelease2 {
		n.Env = mdi.EnvRelease2
	} else if n.Env < mdi.EnvSustainHold {
		n.Env = mdi.EnvSustainHold
	}
	target := n.Sample.EnvTarget[n.Env]
	if n.EnvLevel < target {
		n.EnvInc = n.Sample.EnvRate[n.Env]
	} else {
		n.EnvInc = -n.Sample.EnvRate[n.Env]
	}
}

func (e *Engine) releaseHeldNotes(ch uint8) {
	for slot := 0; slot < 2; slot++ {
		for note := 0; note < 128; note++ {
			n := e.m.NoteTable[slot][ch][note]
			if n == nil || !n.Active || n.Hold&mdi.HoldNoteOffSeen == 0 {
				continue
			}
			n.Hold &^= mdi.HoldNoteOffSeen
			e.forceRelease(n)
		}
	}
}

func (e *Engine) killAllVoicesOnChannel(ch uint8) {
	for slot := 0; slot < 2; slot++ {
		for note := 0; note < 128; note++ {
			n := e.m.NoteTable[slot][ch][note]
			if n == nil || !n.Active {
				continue
			}
			e.terminateVoice(n, ch, note, slot)
		}
	}
}

func (e *Engine) allNotesOff(ch uint8) {
	for note := 0; note < 128; note++ {
		e.noteOff(ch, uint8(note))
	}
}

func (e *Engine) terminateVoice(n *mdi.Note, ch uint8, note, slot int) {
	e.unlinkVoice(n)
	if n.Replay != nil {
		replay := n.Replay
		e.m.NoteTable[slot][ch][note] = replay
		e.linkVoice(replay)
	} else {
		n.Active = false
	}
}

func noteToMilliHz(note uint8) uint32 {
	cents := int32(note) * 100
	if cents < 0 {
		cents = 0
	}
	if cents > 12700 {
		cents = 12700
	}
	octave := cents / 1200
	sub := cents % 1200
	freqFixed := mdi.FreqLUT[sub] >> uint(10-octave)
	// freqFixed is Hz*100000; convert to milliHertz.
	return uint32(uint64(freqFixed) / 100)
}
