// go-wildmidi
// Licensed under MIT

package mdi

import "math"

// Track is one parser track's view onto the smallest-delta merge
// algorithm (§4.2). Each format parser implements this over its own
// chunk/track representation; MergeTracks drives them all in lockstep.
type Track interface {
	// Ended reports whether the track has no further events to emit.
	Ended() bool
	// Delta returns ticks remaining before this track's next event fires.
	Delta() uint32
	// Advance subtracts ticks from Delta (never below zero).
	Advance(ticks uint32)
	// Emit processes every event at Delta()==0, appending to m, and
	// primes Delta() with the new track's next event's own delta.
	Emit(m *MDI)
}

// MergeTracks implements the priority-queue-style smallest-delta merge
// that lowers Type-0/Type-1-shaped multi-track input into the single
// temporally-monotonic MDI event vector (§4.2): on each iteration, find
// the smallest remaining delta across non-ended tracks, subtract it from
// every track, convert that tick delta to samples and accumulate it on
// the last emitted event, then let every track now at zero emit.
func MergeTracks(m *MDI, tracks []Track) {
	for {
		smallest := uint32(math.MaxUint32)
		alive := false
		for _, t := range tracks {
			if t.Ended() {
				continue
			}
			alive = true
			if d := t.Delta(); d < smallest {
				smallest = d
			}
		}
		if !alive {
			break
		}

		if smallest > 0 {
			m.AccumulateSamples(m.TicksToSamples(smallest))
			for _, t := range tracks {
				if !t.Ended() {
					t.Advance(smallest)
				}
			}
		}

		for _, t := range tracks {
			if !t.Ended() && t.Delta() == 0 {
				t.Emit(m)
			}
		}
	}
}

// ConcatTracks implements the Type-2 behaviour (§4.2 "Type 0 vs Type 1 vs
// Type 2"): each track is fully rendered to completion before the next
// begins, rather than interleaved by smallest delta. m.IsType2 is set by
// the caller before invoking this.
func ConcatTracks(m *MDI, tracks []Track) {
	for _, t := range tracks {
		for !t.Ended() {
			if d := t.Delta(); d > 0 {
				m.AccumulateSamples(m.TicksToSamples(d))
				t.Advance(d)
			}
			t.Emit(m)
		}
	}
}
