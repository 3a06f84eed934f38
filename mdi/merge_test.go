// go-wildmidi
// Licensed under MIT

package mdi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeTrack is a minimal Track used to exercise the merge algorithms
// without needing a real format parser.
type fakeTrack struct {
	deltas []uint32 // remaining delta before each queued event
	cur    uint32
	pos    int
	log    *[]string
	name   string
}

func (f *fakeTrack) Ended() bool { return f.pos >= len(f.deltas) }
func (f *fakeTrack) Delta() uint32 { return f.cur }
func (f *fakeTrack) Advance(ticks uint32) {
	if ticks > f.cur {
		f.cur = 0
	} else {
		f.cur -= ticks
	}
}
func (f *fakeTrack) Emit(m *MDI) {
	*f.log = append(*f.log, f.name)
	m.AppendEvent(Event{Kind: KindNoteOn})
	f.pos++
	if f.pos < len(f.deltas) {
		f.cur = f.deltas[f.pos]
	}
}

func newFakeTrack(name string, deltas []uint32, log *[]string) *fakeTrack {
	f := &fakeTrack{deltas: deltas, log: log, name: name}
	if len(deltas) > 0 {
		f.cur = deltas[0]
	}
	return f
}

func TestMergeTracksSmallestDeltaOrder(t *testing.T) {
	m := New()
	m.SampleRate = 44100
	m.DivisionsPerBeat = 480
	m.SetTempo(500000)

	var log []string
	a := newFakeTrack("a", []uint32{0, 10}, &log)
	b := newFakeTrack("b", []uint32{5}, &log)

	MergeTracks(m, []Track{a, b})

	// a fires immediately (delta 0), then b fires after 5 ticks, then a
	// fires again after its remaining 5 ticks (10-5).
	assert.Equal(t, []string{"a", "b", "a"}, log)
	assert.True(t, a.Ended())
	assert.True(t, b.Ended())
}

func TestConcatTracksRunsSequentially(t *testing.T) {
	m := New()
	m.SampleRate = 44100
	m.DivisionsPerBeat = 480
	m.SetTempo(500000)

	var log []string
	a := newFakeTrack("a", []uint32{0, 3}, &log)
	b := newFakeTrack("b", []uint32{0}, &log)

	ConcatTracks(m, []Track{a, b})

	assert.Equal(t, []string{"a", "a", "b"}, log)
}
