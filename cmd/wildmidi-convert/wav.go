// go-wildmidi
// Licensed under MIT

package main

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/mindwerks/go-wildmidi"
)

// renderToWAV opens input through wildmidi, pulls GetOutput in chunks until
// the score (and any LOOP) ends, and streams the decoded 16-bit stereo PCM
// into a WAV file via go-audio/wav. This is the convenience wrapper of
// SPEC_FULL.md §3: a test/demo-only use of a pack-sourced
// dependency, not a reintroduction of the out-of-scope device back-end.
func renderToWAV(e *wildmidi.Engine, input, output string) error {
	h, err := e.OpenFile(input)
	if err != nil {
		code, msg := e.GetError()
		return fmt.Errorf("open (%s): %s: %w", code, msg, err)
	}
	defer h.Close()

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create %q: %w", output, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, int(e.SampleRate), 16, 2, 1)
	defer enc.Close()

	buf := make([]byte, 8192)
	for {
		n, err := h.GetOutput(buf)
		if err != nil {
			return fmt.Errorf("get_output: %w", err)
		}
		if n == 0 {
			break
		}
		if err := enc.Write(pcmToIntBuffer(buf[:n], int(e.SampleRate))); err != nil {
			return fmt.Errorf("write wav: %w", err)
		}
	}
	return nil
}

// pcmToIntBuffer unpacks the engine's interleaved little-endian 16-bit
// stereo frames into the audio.IntBuffer go-audio/wav's encoder expects.
func pcmToIntBuffer(pcm []byte, sampleRate int) *audio.IntBuffer {
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}
}
