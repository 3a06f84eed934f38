// go-wildmidi
// Licensed under MIT

package midiwriter

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/mindwerks/go-wildmidi/mdi"
)

func buildSimpleMDI() *mdi.MDI {
	m := mdi.New()
	m.DivisionsPerBeat = 480
	m.SampleRate = 44100
	m.SetTempo(500000)

	m.AppendEvent(mdi.Event{Kind: mdi.KindSetTempo, Value: 500000})
	m.AppendEvent(mdi.Event{Kind: mdi.KindNoteOn, Channel: 0, Value: mdi.PackNote(60, 100), SamplesToNext: m.TicksToSamples(480)})
	m.AppendEvent(mdi.Event{Kind: mdi.KindNoteOff, Channel: 0, Value: mdi.PackNote(60, 0), SamplesToNext: m.TicksToSamples(480)})
	m.Finalize()
	return m
}

func TestWriteMDIType0ProducesValidSMF(t *testing.T) {
	m := buildSimpleMDI()

	var buf bytes.Buffer
	err := WriteMDI(&buf, m)
	require.NoError(t, err)
	assert.NotZero(t, buf.Len())

	parsed, err := smf.ReadFrom(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Len(t, parsed.Tracks, 1)
}

func TestWriteMDIType2SplitsOnEndOfTrack(t *testing.T) {
	m := mdi.New()
	m.DivisionsPerBeat = 480
	m.SampleRate = 44100
	m.IsType2 = true
	m.SetTempo(500000)

	m.AppendEvent(mdi.Event{Kind: mdi.KindNoteOn, Channel: 0, Value: mdi.PackNote(60, 100), SamplesToNext: m.TicksToSamples(240)})
	m.AppendEvent(mdi.Event{Kind: mdi.KindEndOfTrack, SamplesToNext: 0})
	m.AppendEvent(mdi.Event{Kind: mdi.KindNoteOn, Channel: 1, Value: mdi.PackNote(64, 90), SamplesToNext: m.TicksToSamples(240)})
	m.AppendEvent(mdi.Event{Kind: mdi.KindEndOfTrack, SamplesToNext: 0})
	m.Finalize()

	var buf bytes.Buffer
	err := WriteMDI(&buf, m)
	require.NoError(t, err)

	parsed, err := smf.ReadFrom(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Len(t, parsed.Tracks, 2)
}

func TestTicksForRoundsToNearest(t *testing.T) {
	assert.EqualValues(t, 0, ticksFor(0, 45.9375))
	assert.EqualValues(t, 1, ticksFor(46, 45.9375))
	assert.EqualValues(t, 10, ticksFor(459, 45.9375))
}
