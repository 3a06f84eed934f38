// go-wildmidi
// Licensed under MIT

// Command wildmidi-convert is a small demonstration entry point: it proves
// package wildmidi's own API (NewEngine, ConvertToMidi, OpenFile/GetOutput) is
// sufficient on its own, without reintroducing the option-parsing surface
// or device back-end spec.md §1 puts out of scope.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mindwerks/go-wildmidi"
)

var (
	configPath string
	sampleRate uint32

	optLoop       bool
	optReverb     bool
	optEnhanced   bool
	optLogVolume  bool
	optTextLyric  bool
	optRoundTempo bool
)

func main() {
	root := &cobra.Command{
		Use:   "wildmidi-convert <input> <output>",
		Short: "Convert a legacy MIDI-family file to standard MIDI, or render it to WAV",
		Args:  cobra.ExactArgs(2),
		RunE:  run,
	}

	root.Flags().StringVar(&configPath, "config", "", "timidity.cfg-dialect patch table (required to render audio)")
	root.Flags().Uint32Var(&sampleRate, "sample-rate", 44100, "output sample rate in Hz")
	root.Flags().BoolVar(&optLoop, "loop", false, "loop playback when rendering to WAV")
	root.Flags().BoolVar(&optReverb, "reverb", false, "enable reverb when rendering to WAV")
	root.Flags().BoolVar(&optEnhanced, "enhanced-resampling", false, "use the Gauss resampler instead of linear")
	root.Flags().BoolVar(&optLogVolume, "log-volume", false, "use the logarithmic (dBm) volume table")
	root.Flags().BoolVar(&optTextLyric, "text-as-lyric", false, "treat generic text meta events as lyrics")
	root.Flags().BoolVar(&optRoundTempo, "round-tempo", false, "set the RoundTempo mixer option (it has no effect: samples-per-tick is not rounded)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	input, output := args[0], args[1]

	mixerOptions := mixerOptionsFromFlags()

	e, err := wildmidi.NewEngine(configPath, sampleRate, mixerOptions)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer e.Shutdown()

	if strings.HasSuffix(strings.ToLower(output), ".wav") {
		return renderToWAV(e, input, output)
	}

	out, err := e.ConvertToMidi(input)
	if err != nil {
		code, msg := e.GetError()
		return fmt.Errorf("convert (%s): %w", code, fmt.Errorf("%s: %w", msg, err))
	}
	return os.WriteFile(output, out, 0o644)
}

func mixerOptionsFromFlags() uint32 {
	var opts uint32
	if optLoop {
		opts |= wildmidi.OptionLoop
	}
	if optReverb {
		opts |= wildmidi.OptionReverb
	}
	if optEnhanced {
		opts |= wildmidi.OptionEnhancedResampling
	}
	if optLogVolume {
		opts |= wildmidi.OptionLogVolume
	}
	if optTextLyric {
		opts |= wildmidi.OptionTextAsLyric
	}
	if optRoundTempo {
		opts |= wildmidi.OptionRoundTempo
	}
	return opts
}
