// go-wildmidi
// Licensed under MIT

// Package reverb implements the fixed-parameter six-comb-plus-allpass
// stereo reverb described in §4.6: six parallel comb delay lines per
// channel, each with a 2-tap IIR low-pass in its feedback path, summed
// into a single all-pass stage.
package reverb

import "github.com/mindwerks/go-wildmidi/patch"

const numCombs = 6

// combTuningsMs are the base comb delay lengths in milliseconds before
// geometry scaling, spaced to avoid low-order common factors so the six
// echoes don't reinforce into audible flutter (the "prime-like set"
// of §4.6).
var combTuningsMs = [numCombs]float64{29.7, 37.1, 41.1, 43.7, 31.3, 34.9}

const allpassMs = 5.0
const allpassFeedback = 0.5
const combFeedback = 0.84
const lowpassDamp = 0.2

// comb is one comb filter: a delay line with feedback coloured by a
// single-pole low-pass on the feedback path (§4.6's "2-tap IIR
// low-pass", coeff[i][0..4] collapsed to the pole/damp pair that shape
// actually needs).
type comb struct {
	buf      []int32
	pos      int
	filtered int32
}

func newComb(length int) *comb {
	if length < 1 {
		length = 1
	}
	return &comb{buf: make([]int32, length)}
}

func (c *comb) reset() {
	for i := range c.buf {
		c.buf[i] = 0
	}
	c.filtered = 0
	c.pos = 0
}

func (c *comb) process(in int32) int32 {
	out := c.buf[c.pos]
	c.filtered += int32(float64(out-c.filtered) * lowpassDamp)
	c.buf[c.pos] = in + int32(float64(c.filtered)*combFeedback)
	c.pos++
	if c.pos >= len(c.buf) {
		c.pos = 0
	}
	return out
}

// allpass is the single per-channel all-pass stage combs feed into.
type allpass struct {
	buf []int32
	pos int
}

func newAllpass(length int) *allpass {
	if length < 1 {
		length = 1
	}
	return &allpass{buf: make([]int32, length)}
}

func (a *allpass) reset() {
	for i := range a.buf {
		a.buf[i] = 0
	}
	a.pos = 0
}

func (a *allpass) process(in int32) int32 {
	bufOut := a.buf[a.pos]
	out := -in + bufOut
	a.buf[a.pos] = in + int32(float64(bufOut)*allpassFeedback)
	a.pos++
	if a.pos >= len(a.buf) {
		a.pos = 0
	}
	return out
}

// channel bundles one side's comb bank and all-pass stage.
type channel struct {
	combs   [numCombs]*comb
	allpass *allpass
}

func newChannel(sampleRate uint32, geometryScale float64) *channel {
	c := &channel{}
	for i, ms := range combTuningsMs {
		length := msToSamples(sampleRate, ms*geometryScale)
		c.combs[i] = newComb(length)
	}
	c.allpass = newAllpass(msToSamples(sampleRate, allpassMs))
	return c
}

func (c *channel) reset() {
	for _, cb := range c.combs {
		cb.reset()
	}
	c.allpass.reset()
}

func (c *channel) process(in int32) int32 {
	var sum int32
	for _, cb := range c.combs {
		sum += cb.process(in)
	}
	return c.allpass.process(sum / numCombs)
}

func msToSamples(sampleRate uint32, ms float64) int {
	return int(float64(sampleRate) * ms / 1000.0)
}

// Reverb holds one stereo pair of comb-bank/all-pass channels. It is
// constructed once per Engine and its Process is called once per output
// frame when OptionReverb is set.
type Reverb struct {
	left  *channel
	right *channel
}

// New builds a Reverb sized from sample rate and room geometry: the
// listener's offset within the room rescales the base comb lengths per
// channel, producing the physically-motivated left/right asymmetry
// §4.6 describes (a listener off-centre hears the two walls' echoes at
// different delays).
func New(sampleRate uint32, geometry patch.RoomGeometry) *Reverb {
	leftScale, rightScale := geometryScales(geometry)
	return &Reverb{
		left:  newChannel(sampleRate, leftScale),
		right: newChannel(sampleRate, rightScale),
	}
}

// geometryScales derives a per-channel delay scale factor from the room
// rectangle and the listener's position within it: the scale for a
// channel grows with the listener's distance from that channel's wall,
// relative to the room's own size, and is clamped to a sane range so a
// degenerate (zero-area) room still produces a usable reverb.
func geometryScales(g patch.RoomGeometry) (left, right float64) {
	width := g.RoomWidth
	length := g.RoomLength
	if width <= 0 {
		width = 20
	}
	if length <= 0 {
		length = 20
	}

	distLeft := g.ListenerPosX
	distRight := width - g.ListenerPosX
	distFront := g.ListenerPosY
	distBack := length - g.ListenerPosY

	left = clampScale(0.5 + (distLeft+distFront)/(width+length))
	right = clampScale(0.5 + (distRight+distBack)/(width+length))
	return left, right
}

func clampScale(v float64) float64 {
	if v < 0.4 {
		return 0.4
	}
	if v > 1.6 {
		return 1.6
	}
	return v
}

// Process applies the reverb in place to one interleaved [left, right]
// frame, mixing the wet comb/allpass output in with the dry signal
// (§4.6's "sum into a single all-pass stage per channel" is the wet
// path; the dry/wet mix keeps direct sound audible alongside it).
func (r *Reverb) Process(frame []int32) {
	const wetMix = 0.25
	wetL := r.left.process(frame[0])
	wetR := r.right.process(frame[1])
	frame[0] += int32(float64(wetL) * wetMix)
	frame[1] += int32(float64(wetR) * wetMix)
}

// Reset clears every delay line and filter state (§4.6 "Reset clears
// all delay-line samples and filter state").
func (r *Reverb) Reset() {
	r.left.reset()
	r.right.reset()
}
