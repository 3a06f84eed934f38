// go-wildmidi
// Licensed under MIT

package wildmidi

import "fmt"

// Version is this library's release triple, returned by GetVersion (§6
// "get_version").
type Version struct {
	Major, Minor, Patch int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

var version = Version{Major: 0, Minor: 1, Patch: 0}

// GetVersion implements get_version (§6).
func GetVersion() Version { return version }

// InfoTag selects which informational string GetString returns (§6
// "get_string(info_tag)", §11 "WM_GetString/WM_GetVersion info tags").
type InfoTag int

const (
	InfoTagVersion InfoTag = iota
	InfoTagURL
	InfoTagLicense
	InfoTagLongName
	InfoTagShortName
	InfoTagCopyright
)

// GetString implements get_string (§6/§11): a small fixed enum of
// human-readable library metadata strings, the same tags the original
// `wildmidi_lib.c` exposes through `WM_GetString`.
func GetString(tag InfoTag) string {
	switch tag {
	case InfoTagVersion:
		return version.String()
	case InfoTagURL:
		return "https://github.com/mindwerks/go-wildmidi"
	case InfoTagLicense:
		return "MIT"
	case InfoTagLongName:
		return "go-wildmidi software wavetable MIDI synthesizer"
	case InfoTagShortName:
		return "go-wildmidi"
	case InfoTagCopyright:
		return "Copyright (c) the go-wildmidi authors"
	default:
		return ""
	}
}
