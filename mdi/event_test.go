// go-wildmidi
// Licensed under MIT

package mdi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPackUnpackNote(t *testing.T) {
	v := PackNote(60, 100)
	note, vel := UnpackNote(v)
	assert.EqualValues(t, 60, note)
	assert.EqualValues(t, 100, vel)
}

func TestPackUnpackCC(t *testing.T) {
	v := PackCC(CCChannelVolume, 127)
	cc, val := UnpackCC(v)
	assert.EqualValues(t, CCChannelVolume, cc)
	assert.EqualValues(t, 127, val)
}

func TestPackUnpackTimeSig(t *testing.T) {
	v := PackTimeSig(4, 2, 24, 8)
	nn, dd, cc, bb := UnpackTimeSig(v)
	assert.EqualValues(t, 4, nn)
	assert.EqualValues(t, 2, dd)
	assert.EqualValues(t, 24, cc)
	assert.EqualValues(t, 8, bb)
}

func TestPackUnpackKeySig(t *testing.T) {
	v := PackKeySig(-3, 1)
	sf, mi := UnpackKeySig(v)
	assert.EqualValues(t, -3, sf)
	assert.EqualValues(t, 1, mi)
}

func TestPackUnpackSMPTE(t *testing.T) {
	v := PackSMPTE(1, 2, 3, 4)
	hr, mn, se, fr := UnpackSMPTE(v)
	assert.EqualValues(t, 1, hr)
	assert.EqualValues(t, 2, mn)
	assert.EqualValues(t, 3, se)
	assert.EqualValues(t, 4, fr)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "NoteOn", KindNoteOn.String())
	assert.Equal(t, "End", KindEnd.String())
	assert.Contains(t, Kind(250).String(), "Kind(")
}
