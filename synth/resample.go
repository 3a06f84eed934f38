// go-wildmidi
// Licensed under MIT

package synth

import (
	"math"

	"github.com/mindwerks/go-wildmidi/mdi"
)

// fpBits is the number of fractional bits in a fixed-point sample
// position (§4.5).
const fpBits = 10
const fpOne = 1 << fpBits

// gaussTable is the lazily-initialised 34-point windowed-sinc resampling
// table (§4.3): (1<<fpBits) rows of 35 coefficients each, one row per
// fractional sample-position phase.
type gaussTable struct {
	rows [fpOne][35]float64
}

func newGaussTable() *gaussTable {
	g := &gaussTable{}
	g.init()
	return g
}

// init computes a windowed-sinc kernel per phase. This is a from-scratch
// reproduction of the shape WildMIDI's table has (34 taps, Gaussian window
// over a sinc kernel) rather than a transcription of its hard-coded
// constants — acceptable since bit-identical resampling output is an
// explicit non-goal.
func (g *gaussTable) init() {
	const taps = 34
	const center = taps / 2
	for phase := 0; phase < fpOne; phase++ {
		frac := float64(phase) / fpOne
		var sum float64
		var coeffs [35]float64
		for i := 0; i < taps; i++ {
			x := float64(i-center) - frac + 0.5
			coeffs[i] = sinc(x) * gaussWindow(x, taps)
			sum += coeffs[i]
		}
		if sum != 0 {
			for i := range coeffs {
				coeffs[i] /= sum
			}
		}
		g.rows[phase] = coeffs
	}
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

func gaussWindow(x float64, taps int) float64 {
	sigma := float64(taps) / 4
	return math.Exp(-0.5 * (x / sigma) * (x / sigma))
}

// resampleLinear implements §4.3's two-point interpolation using the low
// fpBits bits of sample_pos as the fractional weight.
func resampleLinear(data []int16, pos int64) int32 {
	idx := pos >> fpBits
	frac := pos & (fpOne - 1)

	var a, b int32
	if idx >= 0 && int(idx) < len(data) {
		a = int32(data[idx])
	}
	if idx+1 >= 0 && int(idx+1) < len(data) {
		b = int32(data[idx+1])
	}
	return a + (b-a)*int32(frac)/fpOne
}

// resample implements the 34-point windowed-sinc path, falling back
// to a lower-order Newton interpolation near the buffer edges (§4.3).
func (g *gaussTable) resample(data []int16, pos int64) int32 {
	idx := pos >> fpBits
	frac := pos & (fpOne - 1)

	const center = 17
	left := int(idx) - center
	right := int(idx) + (34 - center)

	if left >= 0 && right < len(data) {
		row := &g.rows[frac]
		var acc float64
		for i := 0; i < 34; i++ {
			acc += row[i] * float64(data[left+i])
		}
		return int32(acc)
	}

	return newtonFallback(data, idx, frac)
}

// newtonFallback handles the case where fewer than 34 samples surround
// the cursor, using a lower polynomial order near the edges (§4.3).
func newtonFallback(data []int16, idx int64, frac int64) int32 {
	avail := 0
	for o := int64(0); o < 8; o++ {
		if idx-o >= 0 {
			avail++
		} else {
			break
		}
	}
	rightAvail := 0
	for o := int64(0); o < 8; o++ {
		if int(idx+o) < len(data) {
			rightAvail++
		} else {
			break
		}
	}
	order := 2*minInt(avail, rightAvail) + 1
	if order < 1 {
		order = 1
	}

	half := order / 2
	lo := int(idx) - half
	if lo < 0 {
		lo = 0
	}
	hi := lo + order
	if hi > len(data) {
		hi = len(data)
		lo = hi - order
		if lo < 0 {
			lo = 0
		}
	}
	if hi-lo < 2 {
		if lo >= 0 && lo < len(data) {
			return int32(data[lo])
		}
		return 0
	}

	t := float64(idx-int64(lo))*fpOne + float64(frac)
	t /= fpOne

	return int32(newtonInterpolate(data[lo:hi], t))
}

// newtonInterpolate evaluates the Newton divided-difference polynomial
// through pts at parameter t (t==i selects pts[i] exactly).
func newtonInterpolate(pts []int16, t float64) float64 {
	n := len(pts)
	coeffs := make([]float64, n)
	for i, v := range pts {
		coeffs[i] = float64(v)
	}
	for k := 1; k < n; k++ {
		for i := n - 1; i >= k; i-- {
			coeffs[i] = (coeffs[i] - coeffs[i-1]) / float64(k)
		}
	}
	result := coeffs[n-1]
	for i := n - 2; i >= 0; i-- {
		result = result*(t-float64(i)) + coeffs[i]
	}
	return result
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// resample dispatches to the engine's configured resampler for n.
func (e *Engine) resample(n *mdi.Note) int32 {
	if e.gauss != nil {
		return e.gauss.resample(n.Sample.Data, n.SamplePos)
	}
	return resampleLinear(n.Sample.Data, n.SamplePos)
}
