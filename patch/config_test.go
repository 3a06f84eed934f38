// go-wildmidi
// Licensed under MIT

package patch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func writeConfig(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	assert.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigBasicPatchLine(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "timidity.cfg", `
# a comment
0 acoustic_grand amp=50 note=60
`)

	st := NewStore()
	assert.NoError(t, LoadConfig(st, cfg))

	p := st.find(MakePatchID(0, 0, false))
	assert.NotNil(t, p)
	assert.Equal(t, filepath.Join(dir, "acoustic_grand.pat"), p.Path)
	assert.EqualValues(t, 512, p.Amp) // 50% -> (50*1024)/100
	assert.EqualValues(t, 60, p.Note)
}

func TestLoadConfigBankAndDrumset(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "timidity.cfg", `
bank 8
0 strings.pat
drumset 0
35 kick.pat
`)

	st := NewStore()
	assert.NoError(t, LoadConfig(st, cfg))

	p := st.find(MakePatchID(8, 0, false))
	assert.NotNil(t, p)

	d := st.find(MakePatchID(0, 35, true))
	assert.NotNil(t, d)
}

func TestLoadConfigSourceInclude(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "extra.cfg", "1 violin.pat\n")
	cfg := writeConfig(t, dir, "timidity.cfg", "source extra.cfg\n")

	st := NewStore()
	assert.NoError(t, LoadConfig(st, cfg))

	p := st.find(MakePatchID(0, 1, false))
	assert.NotNil(t, p)
}

func TestLoadConfigReverbGeometryClamped(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "timidity.cfg", `
reverb_room_width 500
reverb_room_length 50
reverb_listener_posx 1000
reverb_listener_posy 10
`)

	st := NewStore()
	assert.NoError(t, LoadConfig(st, cfg))

	assert.Equal(t, 100.0, st.Geometry.RoomWidth) // clamped to [1,100]
	assert.Equal(t, 50.0, st.Geometry.RoomLength)
	assert.Equal(t, st.Geometry.RoomWidth, st.Geometry.ListenerPosX) // clamped into room rect
	assert.Equal(t, 10.0, st.Geometry.ListenerPosY)
}

func TestLoadConfigFlags(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "timidity.cfg", `
guspat_editor_author_cant_read_so_fix_release_time_for_me
auto_amp
`)

	st := NewStore()
	assert.NoError(t, LoadConfig(st, cfg))

	assert.True(t, st.FixReleaseTime)
	assert.True(t, st.AutoAmp)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "timidity.cfg", `
0 pad.pat env_time0=2.0 env_level0=0.5 env_time1=0.001
`)

	st := NewStore()
	assert.NoError(t, LoadConfig(st, cfg))

	p := st.find(MakePatchID(0, 0, false))
	assert.NotNil(t, p)

	assert.NotZero(t, p.EnvOverride[0].SetMask&EnvOverrideTimeSet)
	assert.Equal(t, 2.0, p.EnvOverride[0].Time)
	assert.NotZero(t, p.EnvOverride[0].SetMask&EnvOverrideLevelSet)
	assert.Equal(t, 0.5, p.EnvOverride[0].Level)

	// Out-of-range env_time1 silently discards the override bit.
	assert.Zero(t, p.EnvOverride[1].SetMask&EnvOverrideTimeSet)
}

func TestLoadConfigDuplicateProgramReplaces(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "timidity.cfg", `
0 first.pat
0 second.pat
`)

	st := NewStore()
	assert.NoError(t, LoadConfig(st, cfg))

	p := st.find(MakePatchID(0, 0, false))
	assert.Equal(t, filepath.Join(dir, "second.pat"), p.Path)
}
