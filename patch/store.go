// go-wildmidi
// Licensed under MIT

package patch

import (
	"fmt"
	"sync"
)

// Store is the process-wide, lock-protected table of 128 instrument slots
// (§3 "Patch store", §5 concurrency model). Each slot is a linked list of
// per-bank/per-drumset Patch descriptors.
type Store struct {
	mu    sync.Mutex
	slots [128]*Patch

	// FixReleaseTime mirrors the config directive
	// guspat_editor_author_cant_read_so_fix_release_time_for_me (§4.1):
	// when set, LoadGUSPatch applies the release-order heuristic
	// (fixReleaseOrder); when clear, the release rate bytes are used as stored.
	FixReleaseTime bool
	AutoAmp        bool
	AutoAmpWithAmp bool

	Geometry RoomGeometry
}

// RoomGeometry mirrors the reverb_room_* / reverb_listener_* config
// directives (§4.1), clamped at parse time.
type RoomGeometry struct {
	RoomWidth    float64
	RoomLength   float64
	ListenerPosX float64
	ListenerPosY float64
}

// DefaultGeometry matches the values the reference config oracle assumes
// when no reverb_* directive is present.
func DefaultGeometry() RoomGeometry {
	return RoomGeometry{RoomWidth: 20, RoomLength: 20, ListenerPosX: 10, ListenerPosY: 10}
}

// NewStore returns an empty, ready-to-use patch store.
func NewStore() *Store {
	return &Store{Geometry: DefaultGeometry()}
}

// AddPatch inserts or replaces (duplicate <program> lines within the same
// bank/drumset replace the previous definition, §4.1) a Patch definition.
// AddPatch never loads samples: a patch with p.Lazy set has them loaded by
// the first GetPatch that resolves it, and one without keeps whatever
// Samples it already carries.
func (st *Store) AddPatch(p *Patch) {
	st.mu.Lock()
	defer st.mu.Unlock()

	slot := p.PatchID & 0x7F
	var prev *Patch
	for cur := st.slots[slot]; cur != nil; cur = cur.Next {
		if cur.PatchID == p.PatchID {
			p.Next = cur.Next
			if prev == nil {
				st.slots[slot] = p
			} else {
				prev.Next = p
			}
			return
		}
		prev = cur
	}
	// Not found: prepend.
	p.Next = st.slots[slot]
	st.slots[slot] = p
}

// GetPatch resolves patchID to a Patch, loading its samples on first
// reference and bumping its in-use refcount. Falls back to the bank-zeroed
// id when no exact match exists and the bank byte is non-zero (§4.1).
func (st *Store) GetPatch(patchID uint16) (*Patch, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	p := st.find(patchID)
	if p == nil && (patchID>>8) != 0 {
		fallback := patchID & 0x80FF // zero the bank byte, keep drum bit + program
		p = st.find(fallback)
	}
	if p == nil {
		return nil, nil
	}

	if p.Samples == nil && p.Lazy {
		if err := st.loadPatchLocked(p); err != nil {
			return nil, fmt.Errorf("patch: load %q: %w", p.Path, err)
		}
		p.Lazy = false
	}

	p.InUse++
	return p, nil
}

func (st *Store) find(patchID uint16) *Patch {
	for cur := st.slots[patchID&0x7F]; cur != nil; cur = cur.Next {
		if cur.PatchID == patchID {
			return cur
		}
	}
	return nil
}

// Release decrements a patch's in-use refcount; at zero its sample chain is
// freed and it is marked unloaded but kept in the table for later reload
// (§4.1 concurrency).
func (st *Store) Release(p *Patch) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if p.InUse > 0 {
		p.InUse--
	}
	if p.InUse == 0 {
		p.Samples = nil
		p.Lazy = true
	}
}

func (st *Store) loadPatchLocked(p *Patch) error {
	samples, amp, err := LoadGUSPatch(p.Path, LoadOptions{
		FixReleaseTime: st.FixReleaseTime,
		AutoAmp:        st.AutoAmp,
		AutoAmpWithAmp: st.AutoAmpWithAmp,
		Amp:            p.Amp,
		KeepFlags:      p.KeepFlags,
		RemoveFlags:    p.RemoveFlags,
		EnvOverride:    p.EnvOverride,
	})
	if err != nil {
		return err
	}
	p.Samples = samples
	p.Amp = amp
	return nil
}
