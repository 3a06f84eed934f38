// go-wildmidi
// Licensed under MIT

package wildmidi

import (
	"github.com/mindwerks/go-wildmidi/mdi"
	"github.com/mindwerks/go-wildmidi/synth"
)

// Mixer option bits, the public mixer_options bit-union of §6. Only
// {LogVolume, Reverb, EnhancedResampling, Loop, TextAsLyric} are
// handle-tunable via SetOption; the rest take effect at Init/OpenFile time,
// except SaveAsType0, which is read at conversion time, and RoundTempo,
// which is passed to package synth and has no effect there: samples-per-tick
// is never rounded.
const (
	OptionLogVolume = 1 << iota
	OptionEnhancedResampling
	OptionReverb
	OptionLoop
	OptionSaveAsType0
	OptionRoundTempo
	OptionStripSilence
	OptionTextAsLyric
)

// handleTunableOptions is the subset of mixer_options §6 says set_option may
// change on a live handle.
const handleTunableOptions = OptionLogVolume | OptionReverb | OptionEnhancedResampling | OptionLoop | OptionTextAsLyric

// toSynthOptions translates the public mixer bit-union into the bits
// package synth understands; SaveAsType0 and StripSilence are consumed by
// this package itself (at conversion time and at open time respectively)
// rather than by the renderer.
func toSynthOptions(mask uint32) uint32 {
	var out uint32
	if mask&OptionLogVolume != 0 {
		out |= synth.OptionLogVolume
	}
	if mask&OptionEnhancedResampling != 0 {
		out |= synth.OptionEnhancedResampling
	}
	if mask&OptionReverb != 0 {
		out |= synth.OptionReverb
	}
	if mask&OptionLoop != 0 {
		out |= synth.OptionLoop
	}
	if mask&OptionRoundTempo != 0 {
		out |= synth.OptionRoundTempo
	}
	if mask&OptionTextAsLyric != 0 {
		out |= synth.OptionTextAsLyric
	}
	return out
}

// CvtOption tags accepted by SetCvtOption (§6 "set_cvt_option").
type CvtOption int

const (
	CvtOptionXMIType CvtOption = iota
	CvtOptionFrequency
)

// cvtOptions holds the process-wide conversion tuning set_cvt_option
// writes into (§9 "conversion options... are process-wide").
type cvtOptions struct {
	xmiType   int
	frequency uint32
}

// stripLeadingSilence implements the StripSilence mixer option (§6): it
// drops the accumulated delay before the first NoteOn so playback (and
// approx_total_samples) doesn't count dead air at the head of the score.
func stripLeadingSilence(m *mdi.MDI) {
	for i := range m.Events {
		if m.Events[i].Kind == mdi.KindNoteOn {
			for j := 0; j < i; j++ {
				m.Events[j].SamplesToNext = 0
			}
			return
		}
	}
}

// computeInfo fills in the WM_Info mirror fields that are only knowable
// once the full event stream exists (§3 "MDI... public WM_Info mirror"):
// approx_total_samples is the sum of every event's samples_to_next, and
// total_midi_time_ms is that duration in milliseconds.
func computeInfo(m *mdi.MDI) {
	var total uint64
	for i := range m.Events {
		total += uint64(m.Events[i].SamplesToNext)
	}
	m.Info.ApproxTotalSamples = uint32(total)
	if m.SampleRate != 0 {
		m.Info.TotalMidiTimeMillis = uint32(total * 1000 / uint64(m.SampleRate))
	}
}
