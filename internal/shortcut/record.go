// Package shortcut maps shortcuts.vdf entries to typed records and persists
// the shortcut list.
package shortcut

import (
	"slices"
	"time"

	"github.com/starford/cloudshelf/internal/appid"
	"github.com/starford/cloudshelf/internal/kv"
)

// Record is one launcher shortcut.
//
// The identifier is computed once, when the record is created with New, and is
// otherwise only ever read back from the file. Renaming a shortcut keeps its
// identifier so existing grid artwork continues to match.
type Record struct {
	id appid.ID

	AppName             string
	Exe                 string
	StartDir            string
	Icon                string
	ShortcutPath        string
	LaunchOptions       string
	IsHidden            bool
	AllowDesktopConfig  bool
	AllowOverlay        bool
	OpenVR              bool
	Devkit              bool
	DevkitGameID        string
	DevkitOverrideAppID int32
	LastPlayTime        time.Time
	FlatpakAppID        string
	SortAs              string
	Tags                []string

	// tagNames are the tag child names as read, valid while Tags still
	// equals readTags.
	tagNames []string
	readTags []string

	// layout is the ordered key list as read from the file. Each slot is
	// either a claimed field (with the key spelling that was read) or an
	// opaque node re-emitted verbatim.
	layout []slot
}

type slot struct {
	field *field
	name  string
	node  *kv.Node
}

// New builds a fresh record with the canonical key set and computes its
// identifier from name and exe.
func New(name, exe string) *Record {
	r := &Record{
		id:           appid.Generate(name, exe),
		AppName:      name,
		Exe:          exe,
		LastPlayTime: time.Unix(0, 0).UTC(),
		Tags:         []string{},
	}
	r.layout = make([]slot, len(fields))
	for i := range fields {
		r.layout[i] = slot{field: &fields[i], name: fields[i].key}
	}
	return r
}

// ID returns the shortcut identifier.
func (r *Record) ID() appid.ID {
	return r.id
}

// Keys returns the key names the record will be written with, in order.
func (r *Record) Keys() []string {
	out := make([]string, len(r.layout))
	for i, s := range r.layout {
		if s.field != nil {
			out[i] = s.name
		} else {
			out[i] = s.node.Name
		}
	}
	return out
}

// Clone returns a copy whose slices can be modified independently.
// Opaque nodes are shared; they are never mutated.
func (r *Record) Clone() *Record {
	c := *r
	c.Tags = slices.Clone(r.Tags)
	c.layout = slices.Clone(r.layout)
	return &c
}

// Tag returns the tag at index i, or "" when absent.
func (r *Record) Tag(i int) string {
	if i < 0 || i >= len(r.Tags) {
		return ""
	}
	return r.Tags[i]
}
