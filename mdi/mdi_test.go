// go-wildmidi
// Licensed under MIT

package mdi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewMDIDefaults(t *testing.T) {
	m := New()
	assert.EqualValues(t, 1024, m.MasterVolume)
	assert.Empty(t, m.Events)
}

func TestFinalizeAppendsSentinelOnce(t *testing.T) {
	m := New()
	m.AppendEvent(Event{Kind: KindNoteOn})
	m.Finalize()
	m.Finalize()

	assert.Len(t, m.Events, 2)
	assert.Equal(t, KindEnd, m.Events[len(m.Events)-1].Kind)
}

func TestAccumulateSamples(t *testing.T) {
	m := New()
	m.AppendEvent(Event{Kind: KindNoteOn})
	m.AccumulateSamples(10)
	m.AccumulateSamples(5)

	assert.EqualValues(t, 15, m.LastEvent().SamplesToNext)
}

func TestSetTempoAndTicksToSamples(t *testing.T) {
	m := New()
	m.SampleRate = 44100
	m.DivisionsPerBeat = 480
	m.SetTempo(500000) // 120 BPM

	// samples_per_tick = (500000/480) * (44100/1e6) == 45.9375
	assert.InDelta(t, 45.9375, m.SamplesPerTick, 1e-9)

	n := m.TicksToSamples(1)
	assert.EqualValues(t, 45, n)
	assert.InDelta(t, 0.9375, m.TickRemainder, 1e-9)

	n2 := m.TicksToSamples(1)
	assert.EqualValues(t, 46, n2)
}

func TestSetTempoRoundOption(t *testing.T) {
	m := New()
	m.SampleRate = 44100
	m.DivisionsPerBeat = 480
	m.RoundTempo = true
	m.SetTempo(500000)

	assert.EqualValues(t, 46, m.SamplesPerTick)
}

func TestChannelResetGM(t *testing.T) {
	var c Channel
	c.ResetGM(9)
	assert.True(t, c.Drum)
	assert.EqualValues(t, 100, c.Volume)
	assert.EqualValues(t, 200, c.PitchRange)

	var c2 Channel
	c2.ResetGM(0)
	assert.False(t, c2.Drum)
}
