// Package template fills shortcut profile fields with catalog values.
//
// Placeholders are written as {name}. Names are matched case-insensitively;
// unknown names are left untouched so that literal braces in launch arguments
// survive.
package template

import (
	"regexp"
	"strings"

	"github.com/starford/cloudshelf/internal/models"
)

var placeholderRe = regexp.MustCompile(`\{(\w+)\}`)

// Vars carries the values a template can reference.
type Vars struct {
	Item      models.CatalogItem
	SteamRoot string
	Home      string
}

// Fill expands every known placeholder in tmpl.
func Fill(tmpl string, v Vars) string {
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := m[1 : len(m)-1]
		switch strings.ToLower(name) {
		case "title":
			return orDefault(v.Item.Title, "Unknown Title")
		case "publisher":
			return orDefault(v.Item.Publisher, "Unknown Publisher")
		case "xcloudid":
			return orDefault(v.Item.CloudTitleID, "Unknown xCloud Id")
		case "storeid":
			return orDefault(v.Item.StoreKey, "Unknown store Id")
		case "steam":
			return v.SteamRoot
		case "home":
			return v.Home
		default:
			return m
		}
	})
}

// Placeholders returns the distinct placeholder names in tmpl, lowercased,
// in order of first appearance.
func Placeholders(tmpl string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, m := range placeholderRe.FindAllStringSubmatch(tmpl, -1) {
		name := strings.ToLower(m[1])
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// Known reports whether name is a recognised placeholder.
func Known(name string) bool {
	switch strings.ToLower(name) {
	case "title", "publisher", "xcloudid", "storeid", "steam", "home":
		return true
	}
	return false
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
