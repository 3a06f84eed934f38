// go-wildmidi
// Licensed under MIT

package mdi

import "math"

// FreqLUT holds one precomputed frequency per cent within the lowest octave
// (§4.4): FreqLUT[c] is the frequency c cents above MIDI note 0, in units of
// 1/(1024·100000) Hz. Shifting it right by (10 − octave) yields the note's
// frequency in units of 10 µHz (Hz·100000), the scale the synth's
// sample_inc formula divides by (sample_rate·100)/1024.
var FreqLUT = buildFreqLUT()

func buildFreqLUT() [1200]uint32 {
	var t [1200]uint32
	const referenceHz = 8.1757989156 // C(-1), MIDI note 0, in Hz
	for cents := 0; cents < 1200; cents++ {
		hz := referenceHz * math.Pow(2, float64(cents)/1200.0)
		t[cents] = uint32(hz * 1024 * 100000)
	}
	return t
}

// DBmVolumeTable and DBmPanTable are 128-entry decibel-domain lookup
// tables (§4.3 "Master volume", §11 supplemented features): index by a
// 0..127 MIDI-resolution scalar, value is attenuation in dB relative to
// full scale. Generated from the MIDI 2.0 velocity/pan-to-dB curve the
// reference player documents (a log curve anchored at -96dB for index 0
// and 0dB at index 127) rather than hand-copied from the C source, per
// the non-goal that bit-identical float reproduction isn't required.
var DBmVolumeTable = buildDBmTable()
var DBmPanTable = buildDBmTable()

func buildDBmTable() [128]float64 {
	var t [128]float64
	const floorDB = -96.0
	for i := range t {
		if i == 0 {
			t[i] = floorDB
			continue
		}
		t[i] = floorDB * (1 - float64(i)/127.0)
	}
	return t
}

// LinearLUT is the 128-entry linear-domain companion to DBmVolumeTable,
// used on the "linear volume path" (§4.3): index i holds i/127 scaled to
// the engine's 1024-unity fixed-point range.
var LinearLUT = buildLinearLUT()

func buildLinearLUT() [128]int32 {
	var t [128]int32
	for i := range t {
		t[i] = int32(float64(i) / 127.0 * 1024)
	}
	return t
}

// DBmToLinear converts a dBm table entry to a linear scalar via
// 10^(db/20), the conversion §4.3's premix formula performs once per
// volume recompute.
func DBmToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}
