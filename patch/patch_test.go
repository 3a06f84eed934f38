// go-wildmidi
// Licensed under MIT

package patch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMakePatchID(t *testing.T) {
	assert.Equal(t, uint16(0x0000), MakePatchID(0, 0, false))
	assert.Equal(t, uint16(0x0100), MakePatchID(1, 0, false))
	assert.Equal(t, uint16(0x0080), MakePatchID(0, 0, true))
	assert.Equal(t, uint16(0x0A2B), MakePatchID(10, 0x2B, false))
}

func TestPatchGetSampleBracket(t *testing.T) {
	s1 := &Sample{FreqLow: 0, FreqHigh: 1000}
	s2 := &Sample{FreqLow: 1001, FreqHigh: 5000}
	s1.Next = s2

	p := &Patch{Samples: s1}

	assert.Same(t, s1, p.GetSample(500))
	assert.Same(t, s2, p.GetSample(2000))
}

func TestPatchGetSampleFallsBackToHighest(t *testing.T) {
	low := &Sample{FreqLow: 100, FreqHigh: 200}
	high := &Sample{FreqLow: 300, FreqHigh: 400}
	low.Next = high

	p := &Patch{Samples: low}

	assert.Same(t, high, p.GetSample(9999))
}

func TestPatchGetSampleEmpty(t *testing.T) {
	p := &Patch{}
	assert.Nil(t, p.GetSample(440))
}
