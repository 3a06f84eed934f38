// go-wildmidi
// Licensed under MIT

package mdi

import (
	"math"
	"sync"

	"github.com/mindwerks/go-wildmidi/patch"
)

// Stage indices into a Note's envelope. Stage 6 is synthetic: the engine
// steers a stolen or forcibly killed voice there regardless of what the
// sample's own envelope was doing (§3 "Envelope stages").
const (
	EnvAttack = iota
	EnvDecay1
	EnvDecay2
	EnvSustainHold
	EnvRelease1
	EnvRelease2
	EnvFastKill
)

// EnvLevelMax is the saturation ceiling of the 23-bit env_level accumulator.
const EnvLevelMax = 4194303

// Note-hold bits (§3 Note.hold).
const (
	HoldChannelActive = 1 << iota
	HoldNoteOffSeen
)

// Channel is the per-channel performance state sysex resets re-initialise
// (§3 "Channel state").
type Channel struct {
	Patch *patch.Patch
	Bank  uint8
	Drum  bool

	Hold        bool
	Volume      uint8
	Expression  uint8
	Pressure    uint8
	Balance     uint8
	Pan         uint8
	PitchBend   int16 // signed, zero-centred
	PitchRange  uint16 // cents
	PitchAdjust int32  // resolved cents, derived from PitchBend * PitchRange

	RPNMSB, RPNLSB   uint8
	NRPNMSB, NRPNLSB uint8
	RPNSelected      bool
}

// ResetGM restores a channel to the General MIDI/Roland/Yamaha reset
// defaults (§3 "Channel state"); channelIndex 9 keeps its drum flag.
func (c *Channel) ResetGM(channelIndex int) {
	*c = Channel{
		Volume:      100,
		Pressure:    127,
		Expression:  127,
		Balance:     64,
		Pan:         64,
		PitchRange:  200,
		RPNMSB:      0xFF,
		RPNLSB:      0xFF,
		NRPNMSB:     0xFF,
		NRPNLSB:     0xFF,
		RPNSelected: true,
	}
	if channelIndex == 9 {
		c.Drum = true
	}
}

// Note is one live voice (§3 "Note").
type Note struct {
	NoteID   uint16 // channel<<8 | note
	Velocity uint8

	Patch  *patch.Patch
	Sample *patch.Sample

	SamplePos int64 // 10 fractional bits
	SampleInc int64

	EnvLevel int32
	EnvInc   int32
	Env      int // 0..6

	Modes uint16 // snapshot of Sample.Modes at trigger time

	Hold               uint8
	Active             bool
	IsOff              bool
	IgnoreChanEvents   bool
	LeftMixVolume      int32
	RightMixVolume     int32

	Replay *Note
	Next   *Note
}

// WMInfo mirrors the public progress snapshot exposed to callers polling a
// Handle mid-playback (§3 "public WM_Info mirror").
type WMInfo struct {
	CurrentSample       uint32
	ApproxTotalSamples  uint32
	MixerOptions        uint16
	TotalMidiTimeMillis uint32
}

// MDI is the canonical decoded score: the pivot structure every format
// parser produces and the synth engine consumes (§3 "MDI").
type MDI struct {
	mu sync.Mutex

	Events []Event

	Channels  [16]Channel
	NoteTable [2][16][128]*Note

	ActiveVoices *Note

	Patches []*patch.Patch

	Reverb ReverbState

	MixBuffer []int32

	MasterVolume uint16
	IsType2      bool

	Copyright string
	LastLyric string

	Info WMInfo

	Cursor int // index of the next undispatched event

	SampleRate       uint32
	SamplesPerTick   float64
	TickRemainder    float64
	DivisionsPerBeat uint16
	RoundTempo       bool
}

// SetTempo recomputes SamplesPerTick from a tempo change, per §4.2:
// "samples_per_tick = (tempo_µs_per_quarter / divisions) * (sample_rate /
// 1000000)". With RoundTempo the result is rounded to the nearest integer
// before use, matching the ROUNDTEMPO option.
func (m *MDI) SetTempo(microsecondsPerQuarter uint32) {
	if m.DivisionsPerBeat == 0 {
		return
	}
	spt := (float64(microsecondsPerQuarter) / float64(m.DivisionsPerBeat)) * (float64(m.SampleRate) / 1_000_000)
	if m.RoundTempo {
		spt = math.Round(spt)
	}
	m.SamplesPerTick = spt
}

// TicksToSamples converts a tick delta to a sample count using the current
// SamplesPerTick, carrying the fractional remainder across calls (§4.2:
// "Fractional samples accumulate in a float remainder... on each flush
// sample_count = floor(total) and remainder = total − sample_count").
func (m *MDI) TicksToSamples(ticks uint32) uint32 {
	total := m.TickRemainder + float64(ticks)*m.SamplesPerTick
	n := math.Floor(total)
	m.TickRemainder = total - n
	return uint32(n)
}

// ReverbState records whether reverb is enabled for this score. Nothing in
// the module sets or reads it: the reverb engine itself (package reverb) is
// held by synth.Engine and switched by its OptionReverb bit, so mdi does
// not import reverb.
type ReverbState struct {
	Enabled bool
}

// New returns an empty MDI ready for a parser to populate.
func New() *MDI {
	return &MDI{MasterVolume: 1024}
}

// Lock/Unlock expose the single "patch lock"-style mutex guarding mutation
// of a live MDI while the synth is concurrently rendering from it (§3
// "Lifecycle: built during parse; mutated only while its lock is held").
func (m *MDI) Lock()   { m.mu.Lock() }
func (m *MDI) Unlock() { m.mu.Unlock() }

// AppendEvent pushes ev onto the event vector, maintaining the invariant
// that the vector conceptually always has a trailing End sentinel: callers
// call Finalize once parsing completes.
func (m *MDI) AppendEvent(ev Event) {
	m.Events = append(m.Events, ev)
}

// Finalize appends the terminal End sentinel event (§3 Event invariant:
// "the last event has discriminant = nil and samples_to_next = 0").
func (m *MDI) Finalize() {
	if len(m.Events) == 0 || m.Events[len(m.Events)-1].Kind != KindEnd {
		m.Events = append(m.Events, Event{Kind: KindEnd})
	}
}

// LastEvent returns a pointer to the most recently appended event, or nil.
func (m *MDI) LastEvent() *Event {
	if len(m.Events) == 0 {
		return nil
	}
	return &m.Events[len(m.Events)-1]
}

// AccumulateSamples adds n to the SamplesToNext of the most recently
// appended event — how every parser folds a tick delta into the stream
// (§4.2).
func (m *MDI) AccumulateSamples(n uint32) {
	if ev := m.LastEvent(); ev != nil {
		ev.SamplesToNext += n
	}
}

// Close decrements the refcount of every patch this MDI resolved and frees
// its sample chains at zero (§3 "freed on close, which also decrements
// patch refcounts").
func (m *MDI) Close(store *patch.Store) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.Patches {
		store.Release(p)
	}
	m.Patches = nil
}

// ResolvePatch resolves patchID via store, remembering it on m.Patches so
// Close can release it later, and returns the Patch (nil if unresolvable).
func (m *MDI) ResolvePatch(store *patch.Store, patchID uint16) (*patch.Patch, error) {
	p, err := store.GetPatch(patchID)
	if err != nil || p == nil {
		return p, err
	}
	m.Patches = append(m.Patches, p)
	return p, nil
}
