// go-wildmidi
// Licensed under MIT

package wildmidi

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

func buildSMF(t *testing.T) []byte {
	t.Helper()
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(96)

	tr := smf.Track{}
	tr.Add(0, midi.ProgramChange(0, 0))
	tr.Add(0, midi.NoteOn(0, 60, 100))
	tr.Add(96, midi.NoteOff(0, 60))
	tr.Close(0)
	require.NoError(t, s.Add(tr))

	var buf bytes.Buffer
	require.NoError(t, s.WriteTo(&buf))
	return buf.Bytes()
}

func buildMUS(t *testing.T) []byte {
	t.Helper()

	noteOn := []byte{0x10 | 0x80, 60 | 0x80, 100}
	delta := []byte{0x60}
	noteOff := []byte{0x80, 60}
	scoreEnd := []byte{0x60}

	var song bytes.Buffer
	song.Write(noteOn)
	song.Write(delta)
	song.Write(noteOff)
	song.Write([]byte{0x01})
	song.Write(scoreEnd)

	var buf bytes.Buffer
	buf.WriteString("MUS")
	buf.WriteByte(0x1A)
	buf.Write([]byte{byte(song.Len()), 0, 16, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	buf.Write(song.Bytes())
	return buf.Bytes()
}

func TestNewEngineRejectsBadSampleRate(t *testing.T) {
	_, err := NewEngine("", 4000, 0)
	assert.Error(t, err)
}

func TestOpenBufferParsesSMFAndRenders(t *testing.T) {
	e, err := NewEngine("", 44100, OptionLoop)
	require.NoError(t, err)

	h, err := e.OpenBuffer(buildSMF(t))
	require.NoError(t, err)
	defer h.Close()

	info := h.GetInfo()
	assert.NotZero(t, info.ApproxTotalSamples)

	buf := make([]byte, 4096)
	n, err := h.GetOutput(buf)
	require.NoError(t, err)
	assert.NotZero(t, n)
	assert.Zero(t, n%4)
}

func TestOpenBufferRejectsUnrecognisedFormat(t *testing.T) {
	e, err := NewEngine("", 44100, 0)
	require.NoError(t, err)

	_, err = e.OpenBuffer([]byte("not a recognised container at all"))
	assert.Error(t, err)

	code, _ := e.GetError()
	assert.Equal(t, ErrorInvalid, code)
}

func TestOpenBufferDispatchesMUS(t *testing.T) {
	e, err := NewEngine("", 44100, 0)
	require.NoError(t, err)

	h, err := e.OpenBuffer(buildMUS(t))
	require.NoError(t, err)
	defer h.Close()

	assert.NotZero(t, h.GetInfo().ApproxTotalSamples)
}

func TestConvertBufferToMidiRefusesExistingMThd(t *testing.T) {
	e, err := NewEngine("", 44100, 0)
	require.NoError(t, err)

	_, err = e.ConvertBufferToMidi(buildSMF(t))
	assert.Error(t, err)

	code, _ := e.GetError()
	assert.Equal(t, ErrorNotMidi, code)
}

func TestConvertBufferToMidiProducesMThd(t *testing.T) {
	e, err := NewEngine("", 44100, 0)
	require.NoError(t, err)

	out, err := e.ConvertBufferToMidi(buildMUS(t))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("MThd")))
}

func TestMasterVolumeClampsAndPropagates(t *testing.T) {
	e, err := NewEngine("", 44100, 0)
	require.NoError(t, err)

	h, err := e.OpenBuffer(buildSMF(t))
	require.NoError(t, err)
	defer h.Close()

	e.MasterVolume(999)
	assert.EqualValues(t, 127, e.masterVolume)
	assert.EqualValues(t, 1024, h.m.MasterVolume)
}

func TestSingletonInitRejectsDoubleInit(t *testing.T) {
	require.NoError(t, Init("", 44100, 0))
	defer Shutdown()

	err := Init("", 44100, 0)
	assert.Error(t, err)
}

func TestSingletonOpenFileBeforeInitFails(t *testing.T) {
	Shutdown()
	_, err := OpenFile("/nonexistent/path/does-not-matter.mid")
	assert.Error(t, err)
}

func TestGetStringAndVersion(t *testing.T) {
	assert.Equal(t, "MIT", GetString(InfoTagLicense))
	assert.NotEmpty(t, GetVersion().String())
}
