package shortcut

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/starford/cloudshelf/internal/kv"
	"github.com/starford/cloudshelf/internal/storage"
)

// RootName is the root key of shortcuts.vdf.
const RootName = "shortcuts"

// Load reads the shortcut list at path. A missing file is a normal first-run
// condition and yields an empty list.
func Load(path string) ([]*Record, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []*Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("shortcut: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes the contents of a shortcuts.vdf file.
func Parse(data []byte) ([]*Record, error) {
	root, err := kv.Unmarshal(data, RootName)
	if err != nil {
		return nil, err
	}
	records := make([]*Record, 0, len(root.Children))
	for _, entry := range root.Children {
		r, err := Decode(entry)
		if err != nil {
			return nil, fmt.Errorf("shortcut %s: %w", entry.Name, err)
		}
		records = append(records, r)
	}
	return records, nil
}

// Marshal encodes records as a shortcuts.vdf document, keyed by position.
func Marshal(records []*Record) ([]byte, error) {
	entries := make([]*kv.Node, len(records))
	for i, r := range records {
		entries[i] = Encode(r, strconv.Itoa(i))
	}
	return kv.Marshal(kv.Object(RootName, entries...))
}

// Save atomically replaces the shortcut list at path.
func Save(path string, records []*Record) error {
	data, err := Marshal(records)
	if err != nil {
		return fmt.Errorf("shortcut: encode: %w", err)
	}
	if err := storage.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("shortcut: save %s: %w", path, err)
	}
	return nil
}

// Store binds Load and Save to a single file path.
type Store struct {
	Path string
}

// Load reads the list from s.Path.
func (s Store) Load() ([]*Record, error) {
	return Load(s.Path)
}

// Save writes records to s.Path.
func (s Store) Save(records []*Record) error {
	return Save(s.Path, records)
}
