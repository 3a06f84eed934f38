// go-wildmidi
// Licensed under MIT

package synth

import (
	"github.com/mindwerks/go-wildmidi/mdi"
	"github.com/mindwerks/go-wildmidi/patch"
)

// renderFrame implements §4.3's "Per-frame render": resample and
// accumulate every active voice into scratch[0] (left) and scratch[1]
// (right), then advance each voice's sample position and envelope.
func (e *Engine) renderFrame(scratch []int32) {
	var prev *mdi.Note
	n := e.m.ActiveVoices
	for n != nil {
		next := n.Next

		premix := e.resample(n) * (n.EnvLevel >> 12) / 1024
		scratch[0] += premix * n.LeftMixVolume / 1024
		scratch[1] += premix * n.RightMixVolume / 1024

		terminated := e.advanceVoice(n)
		if terminated {
			e.detachTerminated(n, prev)
		} else {
			prev = n
		}

		n = next
	}
}

// advanceVoice advances sample position (with loop wraparound) and the
// envelope accumulator for one frame, returning true if the voice should
// now be retired (§4.3's "After resampling..." and "Envelope advance"
// paragraphs).
func (e *Engine) advanceVoice(n *mdi.Note) bool {
	n.SamplePos += n.SampleInc

	s := n.Sample
	if n.Modes&patch.ModeLoop != 0 && n.SamplePos > s.LoopEnd {
		if s.LoopSize > 0 {
			n.SamplePos = s.LoopStart + (n.SamplePos-s.LoopStart)%s.LoopSize
		}
	} else if n.SamplePos >= s.DataLength {
		n.Env = mdi.EnvFastKill
		n.EnvInc = -s.EnvRate[mdi.EnvFastKill]
		if n.EnvLevel == 0 {
			return true
		}
	}

	return e.advanceEnvelope(n)
}

// advanceEnvelope implements the envelope-stage state machine of §4.3.
func (e *Engine) advanceEnvelope(n *mdi.Note) bool {
	n.EnvLevel += n.EnvInc
	if n.EnvLevel < 0 {
		n.EnvLevel = 0
	}
	if n.EnvLevel > mdi.EnvLevelMax {
		n.EnvLevel = mdi.EnvLevelMax
	}

	s := n.Sample
	target := s.EnvTarget[n.Env]

	stillRunning := (n.EnvInc < 0 && n.EnvLevel > target) || (n.EnvInc > 0 && n.EnvLevel < target)
	if stillRunning {
		return false
	}
	n.EnvLevel = target

	switch n.Env {
	case mdi.EnvAttack:
		if s.Modes&patch.ModeEnvelope == 0 {
			n.EnvInc = 0
		} else {
			e.advanceStage(n, mdi.EnvDecay1)
		}
	case mdi.EnvDecay1:
		e.advanceStage(n, mdi.EnvDecay2)
	case mdi.EnvDecay2:
		switch {
		case s.Modes&patch.ModeSustain != 0:
			n.EnvInc = 0 // freeze in stage 2 until note-off
		case s.Modes&patch.ModeClamped != 0:
			e.advanceStage(n, mdi.EnvRelease2)
		default:
			e.advanceStage(n, mdi.EnvSustainHold)
		}
	case mdi.EnvSustainHold, mdi.EnvRelease1:
		e.advanceStage(n, n.Env+1)
	case mdi.EnvRelease2:
		if n.EnvLevel == 0 {
			return true
		}
		n.Modes &^= patch.ModeLoop
		n.EnvInc = 0
	case mdi.EnvFastKill:
		return true
	}

	if n.IsOff {
		n.IsOff = false
		e.applyNoteOff(e.channelForNote(n), n)
	}

	return false
}

func (e *Engine) advanceStage(n *mdi.Note, stage int) {
	n.Env = stage
	target := n.Sample.EnvTarget[stage]
	if n.EnvLevel < target {
		n.EnvInc = n.Sample.EnvRate[stage]
	} else {
		n.EnvInc = -n.Sample.EnvRate[stage]
	}
}

func (e *Engine) channelForNote(n *mdi.Note) *mdi.Channel {
	ch := uint8(n.NoteID >> 8)
	return e.channel(ch)
}

// detachTerminated implements the list-rewiring half of voice termination
// (§4.3: "if its replay slot is occupied the replay becomes active in
// place... otherwise the voice is unlinked").
func (e *Engine) detachTerminated(n *mdi.Note, prev *mdi.Note) {
	next := n.Next
	if prev == nil {
		e.m.ActiveVoices = next
	} else {
		prev.Next = next
	}

	ch := uint8(n.NoteID >> 8)
	note := uint8(n.NoteID)

	if n.Replay != nil {
		replay := n.Replay
		for slot := 0; slot < 2; slot++ {
			if e.m.NoteTable[slot][ch][note] == n {
				e.m.NoteTable[slot][ch][note] = replay
				break
			}
		}
		replay.Next = e.m.ActiveVoices
		e.m.ActiveVoices = replay
	} else {
		n.Active = false
	}
}
