// go-wildmidi
// Licensed under MIT

package wildmidi

import (
	"os"

	"github.com/mindwerks/go-wildmidi/mdi"
	"github.com/mindwerks/go-wildmidi/synth"
)

// Handle is one open score (§3 "MDI... per-handle lock", §5 "handles are
// tracked in a doubly linked list"). It pairs the canonical event stream
// with the synth.Engine that renders it; every public method just locks
// the MDI and forwards to one of the two.
type Handle struct {
	engine *Engine
	m      *mdi.MDI
	render *synth.Engine

	prev, next *Handle
}

// OpenFile implements open_file (§6): it reads path fully into memory
// (streaming parse is explicitly out of scope, §6 "no streaming API"),
// then behaves exactly like OpenBuffer.
func (e *Engine) OpenFile(path string) (*Handle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, e.recordError(newError(ErrorOpen, "open "+path, err))
	}
	h, err := e.OpenBuffer(data)
	if err != nil {
		return nil, err // already recorded by OpenBuffer
	}
	return h, nil
}

// OpenBuffer implements open_buffer (§6): it sniffs data's container
// format, lowers it to a canonical MDI, resolves its WM_Info mirror, and
// wraps it in a synth.Engine ready to render.
func (e *Engine) OpenBuffer(data []byte) (*Handle, error) {
	e.cvtMu.Lock()
	cvt := e.cvt
	e.cvtMu.Unlock()

	m, err := parseBytes(data, e.SampleRate, cvt)
	if err != nil {
		return nil, e.recordError(err)
	}

	if e.MixerOptions&OptionStripSilence != 0 {
		stripLeadingSilence(m)
	}
	computeInfo(m)
	m.Info.MixerOptions = uint16(e.MixerOptions)
	e.log.Debug("opened handle", "events", len(m.Events), "approx_total_samples", m.Info.ApproxTotalSamples)

	render := synth.NewEngine(m, e.store, e.SampleRate)
	render.SetOptions(toSynthOptions(e.MixerOptions))

	e.mu.Lock()
	render.SetMasterVolume(e.masterVolume)
	e.mu.Unlock()

	h := &Handle{engine: e, m: m, render: render}
	e.linkHandle(h)
	return h, nil
}

func (e *Engine) linkHandle(h *Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h.next = e.handles
	if e.handles != nil {
		e.handles.prev = h
	}
	e.handles = h
}

func (e *Engine) unlinkHandle(h *Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if h.prev != nil {
		h.prev.next = h.next
	} else if e.handles == h {
		e.handles = h.next
	}
	if h.next != nil {
		h.next.prev = h.prev
	}
	h.prev, h.next = nil, nil
}

// GetOutput implements get_output (§6): byteCount must be a multiple of 4,
// and it returns the number of bytes actually written (fewer than
// requested once the score — and any LOOP — has ended).
func (h *Handle) GetOutput(buf []byte) (int, error) {
	if len(buf)%4 != 0 {
		return 0, h.engine.recordError(newError(ErrorInvalidArg, "byte_count must be a multiple of 4", nil))
	}
	h.m.Lock()
	defer h.m.Unlock()
	return h.render.GetOutput(buf), nil
}

// SetOption implements set_option (§6): only the handle-tunable bits
// (LogVolume, Reverb, EnhancedResampling, Loop, TextAsLyric) are applied;
// settingMask carries the new value for each bit named in optionMask, the
// same "mask selects which bits settingMask may change" convention the
// reference API uses.
func (h *Handle) SetOption(optionMask, settingMask uint32) {
	mask := optionMask & handleTunableOptions
	h.m.Lock()
	defer h.m.Unlock()
	current := h.render.Options
	current = (current &^ toSynthOptions(mask)) | toSynthOptions(mask&settingMask)
	h.render.SetOptions(current)
}

// FastSeek implements fast_seek (§6), returning the sample position
// actually reached after clamping to [0, approx_total_samples].
func (h *Handle) FastSeek(targetSample uint32) uint32 {
	h.m.Lock()
	defer h.m.Unlock()
	return h.render.FastSeek(targetSample)
}

// SongSeek implements song_seek (§6): direction must be -1 (previous), 0
// (current), or +1 (next); it reports whether the seek had any effect.
func (h *Handle) SongSeek(direction int) bool {
	h.m.Lock()
	defer h.m.Unlock()
	return h.render.SongSeek(direction)
}

// Info mirrors the reference get_info() return struct (§6).
type Info struct {
	Copyright           string
	CurrentSample       uint32
	ApproxTotalSamples  uint32
	MixerOptions        uint16
	TotalMidiTimeMillis uint32
}

// GetInfo implements get_info (§6). Ownership of the returned struct is
// the caller's: it is a snapshot, not a live view.
func (h *Handle) GetInfo() Info {
	h.m.Lock()
	defer h.m.Unlock()
	return Info{
		Copyright:           h.m.Copyright,
		CurrentSample:       h.m.Info.CurrentSample,
		ApproxTotalSamples:  h.m.Info.ApproxTotalSamples,
		MixerOptions:        h.m.Info.MixerOptions,
		TotalMidiTimeMillis: h.m.Info.TotalMidiTimeMillis,
	}
}

// GetLyric implements get_lyric (§6): a one-shot read that returns the most
// recently dispatched lyric (or TextAsLyric'd text event) and clears the
// slot, reporting false once nothing new has arrived since the last call.
func (h *Handle) GetLyric() (string, bool) {
	h.m.Lock()
	defer h.m.Unlock()
	if h.m.LastLyric == "" {
		return "", false
	}
	lyric := h.m.LastLyric
	h.m.LastLyric = ""
	return lyric, true
}

// Close releases the handle's patches back to the engine's patch store and
// removes it from the engine's handle list.
func (h *Handle) Close() {
	h.engine.unlinkHandle(h)
	h.m.Close(h.engine.store)
}
