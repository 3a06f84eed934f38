// go-wildmidi
// Licensed under MIT

/*
Package wildmidi is a from-scratch Go reimplementation of the Mindwerks
WildMIDI software wavetable synthesizer: it loads a GUS patch-configured
instrument set, parses any of five legacy MIDI-family containers (SMF,
XMIDI, HMP/HMP2, HMI, DMX MUS) into one canonical event stream, and renders
that stream to interleaved 16-bit stereo PCM through a resampling,
envelope-driven voice engine with an optional reverb stage.

Per Design Notes §9 of the distilled specification, the process-wide state
the original C library kept as globals (master volume, mixer options,
reverb geometry, the patch table, the Gauss table, conversion options, the
open-handle list, the error slot) is gathered into an explicit *Engine*.
The package-level functions in singleton.go are a thin wrapper around one
default Engine, preserving the original init/shutdown-style API; callers
who want independent, concurrently usable engines should construct their
own with NewEngine instead.
*/
package wildmidi

import (
	"sync"

	"github.com/charmbracelet/log"

	"github.com/mindwerks/go-wildmidi/patch"
)

// Engine owns one process's (or, for advanced callers, one independently
// configured) worth of WildMIDI state: the resolved patch store, the
// master volume and mixer-option defaults new handles inherit, the
// conversion-option block, and the list of currently open handles.
type Engine struct {
	SampleRate   uint32
	MixerOptions uint32

	store *patch.Store
	log   *log.Logger

	mu           sync.Mutex
	masterVolume uint8 // 0..127, §6 "master_volume"
	handles      *Handle

	cvtMu sync.Mutex
	cvt   cvtOptions

	errMu   sync.Mutex
	lastErr *wmError
}

// NewEngine mirrors the reference init(config_path, sample_rate,
// mixer_options) call (§6): it loads the timidity.cfg-dialect patch table
// at configPath (skipped when empty) into a fresh patch.Store and returns
// an Engine ready to open handles against it.
func NewEngine(configPath string, sampleRate uint32, mixerOptions uint32) (*Engine, error) {
	if sampleRate < 11025 || sampleRate > 65535 {
		return nil, newError(ErrorInvalidArg, "sample_rate must be in [11025, 65535]", nil)
	}

	store := patch.NewStore()
	if configPath != "" {
		if err := patch.LoadConfig(store, configPath); err != nil {
			return nil, newError(ErrorLoad, "load config "+configPath, err)
		}
	}
	return &Engine{
		SampleRate:   sampleRate,
		MixerOptions: mixerOptions,
		store:        store,
		log:          log.Default().With("component", "wildmidi"),
		masterVolume: 100,
		cvt:          cvtOptions{frequency: defaultMUSFrequency},
	}, nil
}

const defaultMUSFrequency = 140

// MasterVolume sets the 0..127 master volume level (§6 "master_volume")
// across every handle this Engine currently has open, and as the default
// for handles opened afterwards.
func (e *Engine) MasterVolume(level int) {
	if level < 0 {
		level = 0
	}
	if level > 127 {
		level = 127
	}
	e.mu.Lock()
	e.masterVolume = uint8(level)
	for h := e.handles; h != nil; h = h.next {
		h.render.SetMasterVolume(e.masterVolume)
	}
	e.mu.Unlock()
}

// SetCvtOption implements set_cvt_option (§6): tag XMI_TYPE controls
// whether a multi-form XMIDI file converts/plays as a single merged
// Type-0 stream (0) or keeps its Type-2 per-form split (non-zero); tag
// FREQUENCY overrides the DMX playback rate MUS tempo is derived from.
func (e *Engine) SetCvtOption(tag CvtOption, value int) {
	e.cvtMu.Lock()
	defer e.cvtMu.Unlock()
	switch tag {
	case CvtOptionXMIType:
		e.cvt.xmiType = value
	case CvtOptionFrequency:
		if value > 0 {
			e.cvt.frequency = uint32(value)
		}
	}
}

// Shutdown closes every handle still open on this Engine and drops its
// patch store, matching §5's "Shutdown closes all still-open handles,
// frees the patch store... and resets all globals" — here, simply letting
// the Engine itself be garbage collected once the caller drops it.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	h := e.handles
	e.handles = nil
	e.mu.Unlock()

	for h != nil {
		next := h.next
		h.m.Close(e.store)
		h = next
	}
}
