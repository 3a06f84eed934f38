// go-wildmidi
// Licensed under MIT

package reverb

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mindwerks/go-wildmidi/patch"
)

func TestNewSizesCombsFromSampleRate(t *testing.T) {
	r := New(44100, patch.DefaultGeometry())
	assert.NotEmpty(t, r.left.combs[0].buf)
	assert.NotEmpty(t, r.left.allpass.buf)
}

func TestProcessIsDeterministic(t *testing.T) {
	r1 := New(44100, patch.DefaultGeometry())
	r2 := New(44100, patch.DefaultGeometry())

	for i := 0; i < 64; i++ {
		f1 := []int32{int32(i * 37), int32(i * -19)}
		f2 := []int32{int32(i * 37), int32(i * -19)}
		r1.Process(f1)
		r2.Process(f2)
		assert.Equal(t, f1, f2)
	}
}

func TestZeroInputQuiescenceAfterReset(t *testing.T) {
	r := New(44100, patch.DefaultGeometry())

	for i := 0; i < 2000; i++ {
		frame := []int32{int32(i), int32(-i)}
		r.Process(frame)
	}

	r.Reset()

	longest := len(r.left.combs[0].buf)
	for _, c := range r.left.combs {
		if len(c.buf) > longest {
			longest = len(c.buf)
		}
	}

	for i := 0; i < longest+1; i++ {
		frame := []int32{0, 0}
		r.Process(frame)
		assert.Equal(t, int32(0), frame[0])
		assert.Equal(t, int32(0), frame[1])
	}
}

func TestGeometryScalesVaryWithListenerPosition(t *testing.T) {
	centre := patch.RoomGeometry{RoomWidth: 20, RoomLength: 20, ListenerPosX: 10, ListenerPosY: 10}
	offLeft := patch.RoomGeometry{RoomWidth: 20, RoomLength: 20, ListenerPosX: 2, ListenerPosY: 10}

	cl, cr := geometryScales(centre)
	ol, or := geometryScales(offLeft)

	assert.InDelta(t, cl, cr, 0.0001)
	assert.NotEqual(t, ol, or)
}

func TestGeometryScalesHandleDegenerateRoom(t *testing.T) {
	left, right := geometryScales(patch.RoomGeometry{})
	assert.GreaterOrEqual(t, left, 0.4)
	assert.LessOrEqual(t, left, 1.6)
	assert.GreaterOrEqual(t, right, 0.4)
	assert.LessOrEqual(t, right, 1.6)
}
