package shortcut

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/starford/cloudshelf/internal/apperr"
	"github.com/starford/cloudshelf/internal/appid"
	"github.com/starford/cloudshelf/internal/kv"
)

// field binds one shortcut key to its structural kind and typed accessors.
type field struct {
	// key is the canonical spelling written for fresh records.
	key string
	// alt is a legacy spelling some third-party writers use. It is only
	// consulted when key is absent or holds an empty string.
	alt      string
	kind     kv.Kind
	required bool
	decode   func(r *Record, n *kv.Node) error
	encode   func(r *Record, name string) *kv.Node
}

// fields lists the recognised keys in canonical order.
var fields = []field{
	stringField("AppName", "appname", func(r *Record) *string { return &r.AppName }),
	stringField("Exe", "exe", func(r *Record) *string { return &r.Exe }),
	{
		key:  "appid",
		kind: kv.KindInt32,
		decode: func(r *Record, n *kv.Node) error {
			r.id = appid.FromInt32(n.Int32Value())
			return nil
		},
		encode: func(r *Record, name string) *kv.Node { return kv.Int32(name, r.id.Int32()) },
	},
	stringField("StartDir", "", func(r *Record) *string { return &r.StartDir }),
	stringField("icon", "", func(r *Record) *string { return &r.Icon }),
	stringField("ShortcutPath", "", func(r *Record) *string { return &r.ShortcutPath }),
	stringField("LaunchOptions", "", func(r *Record) *string { return &r.LaunchOptions }),
	boolField("IsHidden", func(r *Record) *bool { return &r.IsHidden }),
	boolField("AllowDesktopConfig", func(r *Record) *bool { return &r.AllowDesktopConfig }),
	boolField("AllowOverlay", func(r *Record) *bool { return &r.AllowOverlay }),
	boolField("OpenVR", func(r *Record) *bool { return &r.OpenVR }),
	boolField("Devkit", func(r *Record) *bool { return &r.Devkit }),
	stringField("DevkitGameID", "", func(r *Record) *string { return &r.DevkitGameID }),
	{
		key:  "DevkitOverrideAppID",
		kind: kv.KindInt32,
		decode: func(r *Record, n *kv.Node) error {
			r.DevkitOverrideAppID = n.Int32Value()
			return nil
		},
		encode: func(r *Record, name string) *kv.Node { return kv.Int32(name, r.DevkitOverrideAppID) },
	},
	{
		key:  "LastPlayTime",
		kind: kv.KindInt32,
		decode: func(r *Record, n *kv.Node) error {
			r.LastPlayTime = time.Unix(int64(n.Int32Value()), 0).UTC()
			return nil
		},
		encode: func(r *Record, name string) *kv.Node {
			if r.LastPlayTime.IsZero() {
				return kv.Int32(name, 0)
			}
			return kv.Int32(name, int32(r.LastPlayTime.Unix()))
		},
	},
	stringField("FlatpakAppID", "", func(r *Record) *string { return &r.FlatpakAppID }),
	stringField("SortAs", "", func(r *Record) *string { return &r.SortAs }),
	{
		key:      "tags",
		kind:     kv.KindObject,
		required: true,
		decode: func(r *Record, n *kv.Node) error {
			tags := make([]string, 0, len(n.Children))
			names := make([]string, 0, len(n.Children))
			for _, c := range n.Children {
				if c.Kind != kv.KindString {
					return apperr.TypeError(n.Name, "a collection of strings")
				}
				tags = append(tags, c.Str)
				names = append(names, c.Name)
			}
			r.Tags = tags
			r.tagNames = names
			r.readTags = slices.Clone(tags)
			return nil
		},
		encode: func(r *Record, name string) *kv.Node {
			// Tags read from the file keep their child names until they change.
			keep := r.tagNames != nil && slices.Equal(r.Tags, r.readTags)
			children := make([]*kv.Node, len(r.Tags))
			for i, t := range r.Tags {
				child := strconv.Itoa(i)
				if keep {
					child = r.tagNames[i]
				}
				children[i] = kv.String(child, t)
			}
			return kv.Object(name, children...)
		},
	},
}

func stringField(key, alt string, ptr func(*Record) *string) field {
	return field{
		key:  key,
		alt:  alt,
		kind: kv.KindString,
		decode: func(r *Record, n *kv.Node) error {
			*ptr(r) = n.Str
			return nil
		},
		encode: func(r *Record, name string) *kv.Node { return kv.String(name, *ptr(r)) },
	}
}

func boolField(key string, ptr func(*Record) *bool) field {
	return field{
		key:  key,
		kind: kv.KindInt32,
		decode: func(r *Record, n *kv.Node) error {
			switch n.Int32Value() {
			case 0:
				*ptr(r) = false
			case 1:
				*ptr(r) = true
			default:
				return apperr.TypeError(n.Name, "0 or 1")
			}
			return nil
		},
		encode: func(r *Record, name string) *kv.Node {
			if *ptr(r) {
				return kv.Int32(name, 1)
			}
			return kv.Int32(name, 0)
		},
	}
}

// pick chooses which of the children spelled like f.key feeds the field.
// Children not picked stay in the layout as opaque nodes.
func (f *field) pick(candidates []*kv.Node) *kv.Node {
	var canonical, alternate *kv.Node
	for _, c := range candidates {
		switch {
		case c.Name == f.key && canonical == nil:
			canonical = c
		case f.alt != "" && c.Name == f.alt && alternate == nil:
			alternate = c
		}
	}
	nonEmpty := func(n *kv.Node) bool { return n != nil && n.Str != "" }

	switch {
	case canonical != nil && (f.alt == "" || nonEmpty(canonical)):
		return canonical
	case nonEmpty(alternate):
		return alternate
	case canonical != nil:
		return canonical
	case alternate != nil:
		return alternate
	default:
		return candidates[0]
	}
}

// Decode maps one shortcut entry to a Record.
func Decode(n *kv.Node) (*Record, error) {
	if n.Kind != kv.KindObject {
		return nil, apperr.TypeError("shortcut "+n.Name, "an object")
	}

	chosen := make(map[*kv.Node]*field, len(fields))
	for i := range fields {
		f := &fields[i]
		var candidates []*kv.Node
		for _, c := range n.Children {
			if !strings.EqualFold(c.Name, f.key) {
				continue
			}
			if c.Kind != f.kind {
				return nil, apperr.TypeError(c.Name, f.kind.String())
			}
			candidates = append(candidates, c)
		}
		if len(candidates) == 0 {
			if f.required {
				return nil, apperr.NewFormatError("shortcut %s: missing %s", n.Name, f.key)
			}
			continue
		}
		chosen[f.pick(candidates)] = f
	}

	r := &Record{Tags: []string{}, layout: make([]slot, 0, len(n.Children))}
	for _, c := range n.Children {
		f, ok := chosen[c]
		if !ok {
			r.layout = append(r.layout, slot{node: c})
			continue
		}
		if err := f.decode(r, c); err != nil {
			return nil, err
		}
		r.layout = append(r.layout, slot{field: f, name: c.Name})
	}
	return r, nil
}

// Encode maps r back to a shortcut entry named name.
func Encode(r *Record, name string) *kv.Node {
	children := make([]*kv.Node, 0, len(r.layout))
	for _, s := range r.layout {
		if s.field == nil {
			children = append(children, s.node)
			continue
		}
		children = append(children, s.field.encode(r, s.name))
	}
	return kv.Object(name, children...)
}
