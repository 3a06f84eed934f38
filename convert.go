// go-wildmidi
// Licensed under MIT

package wildmidi

import (
	"bytes"
	"os"

	"github.com/mindwerks/go-wildmidi/midiwriter"
)

// ConvertBufferToMidi implements convert_buffer_to_midi (§6): it lowers a
// non-SMF container to the canonical event stream and writes it back out
// as a standard MIDI byte stream, refusing input that is already an SMF
// (§6 "refuse input already beginning with MThd").
func (e *Engine) ConvertBufferToMidi(data []byte) ([]byte, error) {
	if isMIDI(data) {
		return nil, e.recordError(newError(ErrorNotMidi, "input is already a standard MIDI file", nil))
	}

	e.cvtMu.Lock()
	cvt := e.cvt
	e.cvtMu.Unlock()

	m, err := parseBytes(data, e.SampleRate, cvt)
	if err != nil {
		return nil, e.recordError(err)
	}
	if e.MixerOptions&OptionSaveAsType0 != 0 {
		m.IsType2 = false
	}

	var out bytes.Buffer
	if err := midiwriter.WriteMDI(&out, m); err != nil {
		return nil, e.recordError(newError(ErrorConvertFailed, "write midi", err))
	}
	return out.Bytes(), nil
}

// ConvertToMidi implements convert_to_midi (§6): read path, then behave
// exactly like ConvertBufferToMidi.
func (e *Engine) ConvertToMidi(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, e.recordError(newError(ErrorOpen, "open "+path, err))
	}
	return e.ConvertBufferToMidi(data)
}
