// Package testutil provides shared test helpers for setting up launcher
// installations and databases.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/cloudshelf/internal/index"
	"github.com/starford/cloudshelf/internal/models"
	"github.com/starford/cloudshelf/internal/steam"
	"github.com/starford/cloudshelf/internal/storage"
)

// AccountID is the account of the user created by TestSteam.
const AccountID = 39734273

const loginUsers = `"users"
{
	"76561197960287930"
	{
		"AccountName"		"other"
		"PersonaName"		"Other"
		"MostRecent"		"0"
	}
	"76561198000000001"
	{
		"AccountName"		"deck"
		"PersonaName"		"Deck User"
		"MostRecent"		"1"
	}
}
`

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "cloudshelf-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestSteam creates a launcher installation with two users and returns a
// session for the most recent one.
func TestSteam(t *testing.T) *steam.Session {
	t.Helper()
	root := t.TempDir()
	cfg := filepath.Join(root, "config")
	if err := os.MkdirAll(cfg, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfg, "loginusers.vdf"), []byte(loginUsers), 0o644); err != nil {
		t.Fatal(err)
	}
	users, err := steam.Users(root)
	if err != nil {
		t.Fatal(err)
	}
	u, err := steam.PickUser(users, 0)
	if err != nil {
		t.Fatal(err)
	}
	return steam.NewSession(root, u)
}

// TestGrid returns a provider on the session's grid directory.
func TestGrid(t *testing.T, s *steam.Session) storage.Provider {
	t.Helper()
	store, err := storage.NewFS(s.GridDir)
	if err != nil {
		t.Fatal(err)
	}
	return store
}

// Catalog returns a small fixed catalog in title order.
func Catalog() []models.CatalogItem {
	return []models.CatalogItem{
		{Title: "Forza Horizon 5", Publisher: "Xbox Game Studios", StoreKey: "9NKX70BBCDRN"},
		{Title: "Halo Infinite", Publisher: "Xbox Game Studios", StoreKey: "9NP1P1WFS0LB"},
		{Title: "Hollow Knight", Publisher: "Team Cherry", StoreKey: "9MW9469V91LM"},
	}
}
