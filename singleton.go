// go-wildmidi
// Licensed under MIT

package wildmidi

import "sync"

// defaultEngine backs the package-level functions below, a thin
// process-singleton wrapper around the explicit Engine/Handle pair (§9,
// §10) that preserves the original C API's "one process, one library
// instance" shape. Callers that want independent engines should use
// NewEngine directly instead of these functions.
var (
	defaultMu     sync.Mutex
	defaultEngine *Engine
)

// Init implements the reference init() (§6). Calling it while already
// initialised returns ErrorAlreadyInit, matching the original's refusal to
// silently re-initialise over a live engine.
func Init(configPath string, sampleRate uint32, mixerOptions uint32) error {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultEngine != nil {
		return newError(ErrorAlreadyInit, "wildmidi already initialised", nil)
	}
	e, err := NewEngine(configPath, sampleRate, mixerOptions)
	if err != nil {
		return err
	}
	defaultEngine = e
	return nil
}

// Shutdown implements the reference shutdown() (§6).
func Shutdown() {
	defaultMu.Lock()
	e := defaultEngine
	defaultEngine = nil
	defaultMu.Unlock()
	if e != nil {
		e.Shutdown()
	}
}

func current() (*Engine, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultEngine == nil {
		return nil, newError(ErrorNotInit, "wildmidi not initialised", nil)
	}
	return defaultEngine, nil
}

// MasterVolume implements the reference master_volume() (§6) against the
// default engine; a no-op before Init.
func MasterVolume(level int) {
	if e, err := current(); err == nil {
		e.MasterVolume(level)
	}
}

// OpenFile implements open_file() (§6) against the default engine.
func OpenFile(path string) (*Handle, error) {
	e, err := current()
	if err != nil {
		return nil, err
	}
	return e.OpenFile(path)
}

// OpenBuffer implements open_buffer() (§6) against the default engine.
func OpenBuffer(data []byte) (*Handle, error) {
	e, err := current()
	if err != nil {
		return nil, err
	}
	return e.OpenBuffer(data)
}

// GetOutput implements get_output() (§6) against handle h.
func GetOutput(h *Handle, buf []byte) (int, error) {
	return h.GetOutput(buf)
}

// SetOption implements set_option() (§6) against handle h.
func SetOption(h *Handle, optionMask, settingMask uint32) {
	h.SetOption(optionMask, settingMask)
}

// SetCvtOption implements set_cvt_option() (§6) against the default engine.
func SetCvtOption(tag CvtOption, value int) {
	if e, err := current(); err == nil {
		e.SetCvtOption(tag, value)
	}
}

// ConvertToMidi implements convert_to_midi() (§6) against the default
// engine.
func ConvertToMidi(path string) ([]byte, error) {
	e, err := current()
	if err != nil {
		return nil, err
	}
	return e.ConvertToMidi(path)
}

// ConvertBufferToMidi implements convert_buffer_to_midi() (§6) against the
// default engine.
func ConvertBufferToMidi(data []byte) ([]byte, error) {
	e, err := current()
	if err != nil {
		return nil, err
	}
	return e.ConvertBufferToMidi(data)
}

// FastSeek implements fast_seek() (§6) against handle h.
func FastSeek(h *Handle, targetSample uint32) uint32 {
	return h.FastSeek(targetSample)
}

// SongSeek implements song_seek() (§6) against handle h.
func SongSeek(h *Handle, direction int) bool {
	return h.SongSeek(direction)
}

// GetInfo implements get_info() (§6) against handle h.
func GetInfo(h *Handle) Info {
	return h.GetInfo()
}

// GetLyric implements get_lyric() (§6) against handle h.
func GetLyric(h *Handle) (string, bool) {
	return h.GetLyric()
}

// GetError implements get_error() (§6) against the default engine.
func GetError() (Error, string) {
	e, err := current()
	if err != nil {
		return ErrorNotInit, ErrorNotInit.String()
	}
	return e.GetError()
}

// ClearError implements clear_error() (§6) against the default engine.
func ClearError() {
	if e, err := current(); err == nil {
		e.ClearError()
	}
}
