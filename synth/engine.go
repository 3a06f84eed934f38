// go-wildmidi
// Licensed under MIT

// Package synth implements the per-voice wavetable resampler and envelope
// engine that renders an mdi.MDI to interleaved stereo PCM.
package synth

import (
	"encoding/binary"

	"github.com/charmbracelet/log"

	"github.com/mindwerks/go-wildmidi/mdi"
	"github.com/mindwerks/go-wildmidi/patch"
	"github.com/mindwerks/go-wildmidi/reverb"
)

// Option bits accepted by Engine.SetOptions (§6 of the distilled spec;
// §4.3/§4.6 describe their effect).
const (
	OptionLoop = 1 << iota
	OptionReverb
	OptionRoundTempo
	OptionLogVolume
	OptionEnhancedResampling
	OptionByteSwappedOutput
	OptionTextAsLyric
)

// Engine renders one open score. It owns no format-specific state; all of
// that lives in the mdi.MDI it was constructed with.
type Engine struct {
	SampleRate uint32
	Options    uint32

	store *patch.Store
	m     *mdi.MDI

	reverb *reverb.Reverb

	samplesToMix     uint32
	cursor           int
	approxTotal      uint32
	currentSample    uint32

	gauss *gaussTable

	log *log.Logger
}

// NewEngine constructs an Engine bound to an already-parsed MDI and the
// patch store it resolved its patches from.
func NewEngine(m *mdi.MDI, store *patch.Store, sampleRate uint32) *Engine {
	return &Engine{
		SampleRate:  sampleRate,
		store:       store,
		m:           m,
		approxTotal: m.Info.ApproxTotalSamples,
		log:         log.Default().With("component", "synth"),
	}
}

// SetOptions replaces the option bitmask (§4.3 LOOP, §4.6 REVERB, etc.).
func (e *Engine) SetOptions(opts uint32) {
	e.Options = opts
	if opts&OptionReverb != 0 && e.reverb == nil {
		e.reverb = reverb.New(e.SampleRate, e.store.Geometry)
	}
	if opts&OptionEnhancedResampling != 0 && e.gauss == nil {
		e.gauss = newGaussTable()
	}
}

// GetOutput renders len(out)/4 stereo frames (16-bit LE/BE per channel)
// into out, per §4.3's outer loop. It returns the number of bytes written,
// which is always a multiple of 4 unless the stream has ended.
func (e *Engine) GetOutput(out []byte) int {
	frameBytes := 4
	totalFrames := len(out) / frameBytes
	written := 0

	scratch := make([]int32, 2)

	for written < totalFrames {
		if e.samplesToMix == 0 {
			if !e.dispatchUntilEvent() {
				break
			}
		}
		if e.approxTotal != 0 && e.currentSample >= e.approxTotal {
			break
		}

		n := e.samplesToMix
		remaining := uint32(totalFrames - written)
		if n > remaining {
			n = remaining
		}
		if n == 0 {
			break
		}

		for i := uint32(0); i < n; i++ {
			scratch[0], scratch[1] = 0, 0
			e.renderFrame(scratch)
			if e.reverb != nil && e.Options&OptionReverb != 0 {
				e.reverb.Process(scratch)
			}
			packFrame(out[written*frameBytes:], scratch[0], scratch[1], e.Options&OptionByteSwappedOutput != 0)
			written++
			e.currentSample++
		}

		e.samplesToMix -= n
	}

	e.m.Info.CurrentSample = e.currentSample
	return written * frameBytes
}

// dispatchUntilEvent advances the event cursor, applying every event's
// side effect, until it finds one with a non-zero SamplesToNext (§4.3
// step 1). Returns false when the stream has genuinely ended (and LOOP is
// not set, or there was nothing to loop back to).
func (e *Engine) dispatchUntilEvent() bool {
	for {
		if e.cursor >= len(e.m.Events) {
			return false
		}
		ev := &e.m.Events[e.cursor]
		if ev.Kind == mdi.KindEnd {
			if e.Options&OptionLoop != 0 {
				e.cursor = 0
				e.currentSample = 0
				continue
			}
			return false
		}

		e.dispatchEvent(ev)
		e.cursor++

		if ev.Kind == mdi.KindEndOfTrack && e.Options&OptionLoop != 0 {
			e.cursor = 0
			e.currentSample = 0
			continue
		}

		if ev.SamplesToNext > 0 {
			e.samplesToMix = ev.SamplesToNext
			return true
		}
	}
}

// FastSeek advances to targetSample by dispatching events without mixing
// audio, clamped to [0, approx_total_samples], first clearing every active
// voice and the reverb state (§6 "fast_seek"). It returns the sample
// position actually reached.
func (e *Engine) FastSeek(targetSample uint32) uint32 {
	if e.approxTotal != 0 && targetSample > e.approxTotal {
		targetSample = e.approxTotal
	}
	e.resetVoices()
	e.cursor = 0
	e.currentSample = 0
	e.samplesToMix = 0
	e.m.TickRemainder = 0

	for e.currentSample < targetSample {
		if e.samplesToMix == 0 {
			if !e.dispatchUntilEvent() {
				break
			}
		}
		n := e.samplesToMix
		remaining := targetSample - e.currentSample
		if n > remaining {
			n = remaining
		}
		e.currentSample += n
		e.samplesToMix -= n
	}

	e.m.Info.CurrentSample = e.currentSample
	return e.currentSample
}

// SongSeek moves to the previous (-1), current (0), or next (+1) song
// within a Type-2 MDI by scanning EndOfTrack markers for segment
// boundaries (§6 "song_seek"); it is a no-op reporting false on a
// non-Type-2 MDI or when direction would run past either end.
func (e *Engine) SongSeek(direction int) bool {
	if !e.m.IsType2 {
		return false
	}
	if direction == 0 {
		return true
	}

	var boundaries []int
	for i := range e.m.Events {
		if e.m.Events[i].Kind == mdi.KindEndOfTrack {
			boundaries = append(boundaries, i)
		}
	}
	if len(boundaries) == 0 {
		return false
	}

	segment := len(boundaries) - 1
	for i, b := range boundaries {
		if e.cursor <= b {
			segment = i
			break
		}
	}
	segment += direction
	if segment < 0 || segment >= len(boundaries) {
		return false
	}

	start := 0
	if segment > 0 {
		start = boundaries[segment-1] + 1
	}

	e.resetVoices()
	e.cursor = start
	e.currentSample = 0
	e.samplesToMix = 0
	e.m.TickRemainder = 0
	e.m.Info.CurrentSample = 0
	return true
}

// resetVoices clears every active voice and the reverb state, matching the
// side effects fast_seek and song_seek both require before repositioning.
func (e *Engine) resetVoices() {
	for slot := range e.m.NoteTable {
		for ch := range e.m.NoteTable[slot] {
			for note := range e.m.NoteTable[slot][ch] {
				e.m.NoteTable[slot][ch][note] = nil
			}
		}
	}
	e.m.ActiveVoices = nil
	if e.reverb != nil {
		e.reverb.Reset()
	}
}

func packFrame(out []byte, left, right int32, swapped bool) {
	l := packSample(left)
	r := packSample(right)
	order := binary.ByteOrder(binary.LittleEndian)
	if swapped {
		order = binary.BigEndian
	}
	order.PutUint16(out[0:2], uint16(l))
	order.PutUint16(out[2:4], uint16(r))
}

// packSample saturates an int32 mix accumulator to int16 using the
// canonical sign-preserving high/low byte split (§4.3 "Mix-down").
func packSample(x int32) int16 {
	hi := byte((x>>8)&0x7F | (x>>24)&0x80)
	lo := byte(x & 0xFF)
	return int16(uint16(hi)<<8 | uint16(lo))
}
