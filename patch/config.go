// go-wildmidi
// Licensed under MIT

package patch

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// LoadConfig reads a timidity.cfg-dialect patch table into st, resolving
// `source` inclusions and `dir`/`bank`/`drumset` running state as it goes
// (§4.1 "Config parsing contract").
func LoadConfig(st *Store, path string) error {
	return loadConfigFile(st, path, filepath.Dir(path), 0, false)
}

func loadConfigFile(st *Store, path, baseDir string, bank uint8, drumset bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("patch: config %q: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		directive := fields[0]
		switch directive {
		case "dir":
			if len(fields) < 2 {
				continue
			}
			baseDir = resolvePath(baseDir, fields[1])

		case "source":
			if len(fields) < 2 {
				continue
			}
			sub := resolvePath(baseDir, fields[1])
			if err := loadConfigFile(st, sub, filepath.Dir(sub), bank, drumset); err != nil {
				return err
			}

		case "bank":
			if len(fields) < 2 {
				continue
			}
			n, err := strconv.ParseUint(fields[1], 10, 8)
			if err != nil {
				return fmt.Errorf("patch: config %q line %d: bad bank: %w", path, lineNo, err)
			}
			bank = uint8(n)
			drumset = false

		case "drumset":
			if len(fields) < 2 {
				continue
			}
			n, err := strconv.ParseUint(fields[1], 10, 8)
			if err != nil {
				return fmt.Errorf("patch: config %q line %d: bad drumset: %w", path, lineNo, err)
			}
			bank = uint8(n)
			drumset = true

		case "reverb_room_width":
			st.Geometry.RoomWidth = clampReverbMetres(parseFloatField(fields))
		case "reverb_room_length":
			st.Geometry.RoomLength = clampReverbMetres(parseFloatField(fields))
		case "reverb_listener_posx":
			st.Geometry.ListenerPosX = clamp(parseFloatField(fields), 0, st.Geometry.RoomWidth)
		case "reverb_listener_posy":
			st.Geometry.ListenerPosY = clamp(parseFloatField(fields), 0, st.Geometry.RoomLength)

		case "guspat_editor_author_cant_read_so_fix_release_time_for_me":
			st.FixReleaseTime = true
		case "auto_amp":
			st.AutoAmp = true
		case "auto_amp_with_amp":
			st.AutoAmpWithAmp = true

		default:
			program, err := strconv.ParseUint(directive, 10, 8)
			if err != nil {
				// Unrecognised directive: ignore, matching the reference
				// loader's tolerance of future/unknown config keywords.
				continue
			}
			if len(fields) < 2 {
				return fmt.Errorf("patch: config %q line %d: patch line missing filename", path, lineNo)
			}
			p, err := parsePatchLine(uint8(program), bank, drumset, baseDir, fields[1:])
			if err != nil {
				return fmt.Errorf("patch: config %q line %d: %w", path, lineNo, err)
			}
			st.AddPatch(p)
		}
	}
	return scanner.Err()
}

func parsePatchLine(program, bank uint8, drumset bool, baseDir string, fields []string) (*Patch, error) {
	name := fields[0]
	if !strings.HasSuffix(strings.ToLower(name), ".pat") {
		name += ".pat"
	}

	p := &Patch{
		PatchID: MakePatchID(bank, program, drumset),
		Path:    resolvePath(baseDir, name),
		Amp:     1024,
		Lazy:    true,
	}

	for _, opt := range fields[1:] {
		key, value, ok := strings.Cut(opt, "=")
		if !ok {
			continue
		}
		switch {
		case key == "amp":
			percent, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("bad amp value %q: %w", value, err)
			}
			p.Amp = int32(percent*1024) / 100

		case key == "note":
			note, err := strconv.ParseUint(value, 10, 8)
			if err != nil {
				return nil, fmt.Errorf("bad note value %q: %w", value, err)
			}
			p.Note = uint8(note)

		case key == "keep" && value == "loop":
			p.KeepFlags |= KeepLoop
		case key == "keep" && value == "env":
			p.KeepFlags |= KeepEnvelope
		case key == "remove" && value == "sustain":
			p.RemoveFlags |= RemoveSustain
		case key == "remove" && value == "clamped":
			p.RemoveFlags |= RemoveClamped

		case strings.HasPrefix(key, "env_time"):
			stage, err := envStageIndex(key, "env_time")
			if err != nil {
				return nil, err
			}
			seconds, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("bad %s value %q: %w", key, value, err)
			}
			if seconds >= 1.47 && seconds <= 45000 {
				p.EnvOverride[stage].Time = seconds
				p.EnvOverride[stage].SetMask |= EnvOverrideTimeSet
			}

		case strings.HasPrefix(key, "env_level"):
			stage, err := envStageIndex(key, "env_level")
			if err != nil {
				return nil, err
			}
			fraction, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("bad %s value %q: %w", key, value, err)
			}
			p.EnvOverride[stage].Level = clamp(fraction, 0, 1)
			p.EnvOverride[stage].SetMask |= EnvOverrideLevelSet
		}
	}

	return p, nil
}

func envStageIndex(key, prefix string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(key, prefix))
	if err != nil || n < 0 || n > 5 {
		return 0, fmt.Errorf("bad envelope stage in %q", key)
	}
	return n, nil
}

func parseFloatField(fields []string) float64 {
	if len(fields) < 2 {
		return 0
	}
	v, _ := strconv.ParseFloat(fields[1], 64)
	return v
}

func clampReverbMetres(v float64) float64 { return clamp(v, 1, 100) }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func resolvePath(baseDir, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(baseDir, name)
}
