// go-wildmidi
// Licensed under MIT

package patch

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

// buildGUSPatch assembles a minimal one-sample, 8-bit signed, non-looping,
// non-enveloped .pat file for exercising LoadGUSPatch without needing a
// fixture binary checked into the repo.
func buildGUSPatch(t *testing.T, modes uint8, pcm []byte) string {
	t.Helper()

	buf := make([]byte, headerMinSize)
	copy(buf, magicV110)
	buf[198] = 1 // one sample

	desc := make([]byte, descriptorSize)
	desc[7] = 0 // loop_fraction
	binary.LittleEndian.PutUint32(desc[8:12], uint32(len(pcm)))
	binary.LittleEndian.PutUint32(desc[12:16], 0)             // loop_start
	binary.LittleEndian.PutUint32(desc[16:20], uint32(len(pcm))) // loop_end
	binary.LittleEndian.PutUint16(desc[20:22], 44100)          // rate
	binary.LittleEndian.PutUint32(desc[22:26], 440000)         // freq_low (mHz)
	binary.LittleEndian.PutUint32(desc[26:30], 440000)         // freq_high
	binary.LittleEndian.PutUint32(desc[30:34], 440000)         // freq_root
	desc[55] = modes

	buf = append(buf, desc...)
	buf = append(buf, pcm...)

	dir := t.TempDir()
	path := filepath.Join(dir, "test.pat")
	assert.NoError(t, os.WriteFile(path, buf, 0o644))
	return path
}

func TestLoadGUSPatchRejectsShortFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "short.pat")
	assert.NoError(t, os.WriteFile(path, []byte("too short"), 0o644))

	_, _, err := LoadGUSPatch(path, LoadOptions{})
	assert.Error(t, err)
}

func TestLoadGUSPatchRejectsBadMagic(t *testing.T) {
	buf := make([]byte, headerMinSize)
	copy(buf, "NOTAPATCHFILE\x00ID#000002")

	dir := t.TempDir()
	path := filepath.Join(dir, "bad.pat")
	assert.NoError(t, os.WriteFile(path, buf, 0o644))

	_, _, err := LoadGUSPatch(path, LoadOptions{})
	assert.Error(t, err)
}

func TestLoadGUSPatch8BitSigned(t *testing.T) {
	pcm := []byte{0, 10, 20, 127, 128, 200, 255}
	path := buildGUSPatch(t, 0, pcm)

	s, _, err := LoadGUSPatch(path, LoadOptions{SampleRate: 44100})
	assert.NoError(t, err)
	assert.NotNil(t, s)
	assert.Len(t, s.Data, len(pcm))

	// Signed 8-bit widened to 16-bit: top byte equals the source byte as
	// a signed value, low byte is zero.
	assert.EqualValues(t, int16(int8(pcm[0]))<<8, s.Data[0])
	assert.EqualValues(t, int16(int8(pcm[3]))<<8, s.Data[3])

	assert.Nil(t, s.Next)
}

func TestLoadGUSPatchUnsignedXOR(t *testing.T) {
	pcm := []byte{0x80, 0x00, 0xFF}
	path := buildGUSPatch(t, ModeUnsigned, pcm)

	s, _, err := LoadGUSPatch(path, LoadOptions{SampleRate: 44100})
	assert.NoError(t, err)
	assert.EqualValues(t, 0, s.Data[0])
	assert.EqualValues(t, int16(-0x80)<<8, s.Data[1])
}

func TestLoadGUSPatchEnvelopeTargetsWithoutEnvelopeBit(t *testing.T) {
	pcm := []byte{1, 2, 3, 4}
	path := buildGUSPatch(t, 0, pcm)

	s, _, err := LoadGUSPatch(path, LoadOptions{SampleRate: 44100})
	assert.NoError(t, err)
	for i := 0; i < 6; i++ {
		assert.EqualValues(t, fullEnvelopeLevel, s.EnvTarget[i])
	}
	assert.EqualValues(t, 0, s.EnvTarget[6])
}

func TestLoadGUSPatchAppliesKeepRemoveFlags(t *testing.T) {
	pcm := []byte{1, 2, 3, 4}
	path := buildGUSPatch(t, ModeSustain, pcm)

	s, _, err := LoadGUSPatch(path, LoadOptions{
		SampleRate:  44100,
		RemoveFlags: RemoveSustain,
	})
	assert.NoError(t, err)
	assert.Zero(t, s.Modes&ModeSustain)
}

func TestLoadGUSPatchClearsRawEncodingModeBits(t *testing.T) {
	pcm := []byte{0x80, 0x00, 0xFF}
	path := buildGUSPatch(t, ModeUnsigned|ModeReverse, pcm)

	s, _, err := LoadGUSPatch(path, LoadOptions{SampleRate: 44100})
	assert.NoError(t, err)
	assert.Zero(t, s.Modes&(Mode16Bit|ModeUnsigned|ModeReverse|ModePingPong))
}

func TestLoadGUSPatchAutoAmpScalesToFullScale(t *testing.T) {
	// Signed 8-bit 0x10/-0x10, widened to int16 peaks of +-4096: a quiet
	// sample, far from saturating int16 range.
	pcm := []byte{0x10, 0xF0}
	path := buildGUSPatch(t, 0, pcm)

	_, amp, err := LoadGUSPatch(path, LoadOptions{
		SampleRate: 44100,
		AutoAmp:    true,
		Amp:        1024,
	})
	assert.NoError(t, err)
	assert.Greater(t, amp, int32(1024)) // quiet sample, boosted towards full scale
}

func TestLoadGUSPatchAutoAmpWithAmpMultipliesExisting(t *testing.T) {
	pcm := []byte{0x10, 0xF0}
	path := buildGUSPatch(t, 0, pcm)

	_, ampUnity, err := LoadGUSPatch(path, LoadOptions{
		SampleRate: 44100,
		AutoAmp:    true,
		Amp:        1024,
	})
	assert.NoError(t, err)

	_, ampHalf, err := LoadGUSPatch(path, LoadOptions{
		SampleRate:     44100,
		AutoAmp:        true,
		AutoAmpWithAmp: true,
		Amp:            512,
	})
	assert.NoError(t, err)
	assert.InDelta(t, ampUnity/2, ampHalf, 2)
}

func TestLoadGUSPatchNoAutoAmpLeavesAmpUnchanged(t *testing.T) {
	pcm := []byte{0, 64, 128, 192}
	path := buildGUSPatch(t, 0, pcm)

	_, amp, err := LoadGUSPatch(path, LoadOptions{SampleRate: 44100, Amp: 777})
	assert.NoError(t, err)
	assert.EqualValues(t, 777, amp)
}
