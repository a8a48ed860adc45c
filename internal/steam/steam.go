// Package steam locates a Steam installation and its per-user data.
package steam

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/starford/cloudshelf/internal/apperr"
	"github.com/starford/cloudshelf/internal/appid"
	"github.com/starford/cloudshelf/internal/kv"
)

// Root returns the default Steam installation directory for this platform.
func Root() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("steam: home dir: %w", err)
	}
	return RootFor(runtime.GOOS, home)
}

// RootFor returns the default installation directory for goos.
func RootFor(goos, home string) (string, error) {
	switch goos {
	case "windows":
		return `C:\Program Files (x86)\Steam`, nil
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Steam"), nil
	case "linux":
		return filepath.Join(home, ".local", "share", "Steam"), nil
	default:
		return "", fmt.Errorf("steam: %s: %w", goos, apperr.ErrPlatform)
	}
}

// User is a Steam account that has logged in on this machine.
type User struct {
	AccountID   uint32 `json:"account_id"`
	AccountName string `json:"account_name"`
	PersonaName string `json:"persona_name"`
	MostRecent  bool   `json:"most_recent"`
}

// Users reads config/loginusers.vdf under root.
func Users(root string) ([]User, error) {
	path := filepath.Join(root, "config", "loginusers.vdf")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("steam: read users: %w", err)
	}
	return ParseUsers(data)
}

// ParseUsers decodes the contents of loginusers.vdf.
func ParseUsers(data []byte) ([]User, error) {
	doc, err := kv.UnmarshalText(data, "users")
	if err != nil {
		return nil, fmt.Errorf("steam: parse users: %w", err)
	}
	var users []User
	for _, entry := range doc.Children {
		if entry.Kind != kv.KindObject {
			continue
		}
		steamID, err := strconv.ParseUint(entry.Name, 10, 64)
		if err != nil {
			return nil, apperr.NewFormatError("expected steam id %q to be uint64", entry.Name)
		}
		u := User{AccountID: uint32(steamID & 0xFFFFFFFF)}
		if n := entry.ChildFold("AccountName"); n != nil {
			u.AccountName = n.Str
		}
		if n := entry.ChildFold("PersonaName"); n != nil {
			u.PersonaName = n.Str
		}
		if n := entry.ChildFold("MostRecent"); n != nil {
			u.MostRecent = n.Str == "1"
		}
		users = append(users, u)
	}
	return users, nil
}

// PickUser selects accountID when non-zero, otherwise the most recent user,
// otherwise the first one.
func PickUser(users []User, accountID uint32) (User, error) {
	if len(users) == 0 {
		return User{}, fmt.Errorf("steam: no users: %w", apperr.ErrNotFound)
	}
	if accountID != 0 {
		for _, u := range users {
			if u.AccountID == accountID {
				return u, nil
			}
		}
		return User{}, fmt.Errorf("steam: user %d: %w", accountID, apperr.ErrNotFound)
	}
	for _, u := range users {
		if u.MostRecent {
			return u, nil
		}
	}
	return users[0], nil
}

// Session holds the paths of one user's launcher data.
type Session struct {
	Root          string
	User          User
	ConfigDir     string
	ShortcutsPath string
	GridDir       string
}

// NewSession derives the user data paths for u under root.
func NewSession(root string, u User) *Session {
	cfg := filepath.Join(root, "userdata", strconv.FormatUint(uint64(u.AccountID), 10), "config")
	return &Session{
		Root:          root,
		User:          u,
		ConfigDir:     cfg,
		ShortcutsPath: filepath.Join(cfg, "shortcuts.vdf"),
		GridDir:       filepath.Join(cfg, "grid"),
	}
}

// ImageKind selects one of the grid artwork slots.
type ImageKind uint8

const (
	Cover ImageKind = iota
	Banner
	Hero
	Logo
	Icon
)

var imageKinds = map[string]ImageKind{
	"cover":  Cover,
	"banner": Banner,
	"hero":   Hero,
	"logo":   Logo,
	"icon":   Icon,
}

// ParseImageKind maps a lowercase kind name to its ImageKind.
func ParseImageKind(s string) (ImageKind, error) {
	k, ok := imageKinds[s]
	if !ok {
		return 0, fmt.Errorf("steam: image kind %q: %w", s, apperr.ErrNotFound)
	}
	return k, nil
}

func (k ImageKind) String() string {
	for name, kind := range imageKinds {
		if kind == k {
			return name
		}
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Suffix is appended to the shortcut id to form the artwork file name.
func (k ImageKind) Suffix() string {
	switch k {
	case Cover:
		return "p"
	case Hero:
		return "_hero"
	case Logo:
		return "_logo"
	case Icon:
		return "_icon"
	default:
		return ""
	}
}

// ImageName returns the extensionless artwork file name for id.
func ImageName(id appid.ID, kind ImageKind) string {
	return id.String() + kind.Suffix()
}

// ImagePath returns the extensionless artwork path for id in gridDir.
func ImagePath(gridDir string, id appid.ID, kind ImageKind) string {
	return filepath.Join(gridDir, ImageName(id, kind))
}

// ImagePath returns the artwork path for id in the session's grid directory.
func (s *Session) ImagePath(id appid.ID, kind ImageKind) string {
	return ImagePath(s.GridDir, id, kind)
}
