package index

import (
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/cloudshelf/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "cloudshelf-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

var sample = []models.CatalogItem{
	{Title: "Halo Infinite", Publisher: "Xbox Game Studios", StoreKey: "9NP1P1WFS0LB", CloudTitleID: "HALO", PosterURL: "https://img/halo.png"},
	{Title: "Forza Horizon 5", Publisher: "Xbox Game Studios", StoreKey: "9NKX70BBCDRN"},
	{Title: "Hades", Publisher: "Supergiant Games", StoreKey: "9P8DL6W0JBB8"},
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"catalog_items", "pending", "apply_runs"} {
		var count int
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestReplaceCatalog_KeepsOrder(t *testing.T) {
	db := testDB(t)
	if err := db.ReplaceCatalog(sample); err != nil {
		t.Fatalf("ReplaceCatalog: %v", err)
	}
	got, err := db.Catalog()
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	if diff := cmp.Diff(sample, got); diff != "" {
		t.Errorf("catalog (-want +got):\n%s", diff)
	}

	if err := db.ReplaceCatalog(sample[2:]); err != nil {
		t.Fatalf("second ReplaceCatalog: %v", err)
	}
	got, _ = db.Catalog()
	if len(got) != 1 || got[0].StoreKey != "9P8DL6W0JBB8" {
		t.Errorf("catalog after replace = %+v", got)
	}
}

func TestCatalog_EmptyIsNotNil(t *testing.T) {
	got, err := testDB(t).Catalog()
	if err != nil || got == nil || len(got) != 0 {
		t.Errorf("Catalog = %v, %v", got, err)
	}
}

func TestPending_RoundTripPerAccount(t *testing.T) {
	db := testDB(t)
	_ = db.ReplaceCatalog(sample)

	if err := db.SetPending(1, "9NP1P1WFS0LB", models.PendingAdd); err != nil {
		t.Fatal(err)
	}
	if err := db.SetPending(1, "9NKX70BBCDRN", models.PendingRemove); err != nil {
		t.Fatal(err)
	}
	if err := db.SetPending(2, "9P8DL6W0JBB8", models.PendingAdd); err != nil {
		t.Fatal(err)
	}

	got, err := db.Pending(1)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]models.State{"9NP1P1WFS0LB": models.PendingAdd, "9NKX70BBCDRN": models.PendingRemove}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("pending (-want +got):\n%s", diff)
	}

	// Toggling back to a settled state clears the row.
	_ = db.SetPending(1, "9NP1P1WFS0LB", models.Unlinked)
	got, _ = db.Pending(1)
	if _, ok := got["9NP1P1WFS0LB"]; ok {
		t.Error("settled state still pending")
	}

	_ = db.ClearPending(1)
	got, _ = db.Pending(1)
	if len(got) != 0 {
		t.Errorf("pending after clear = %v", got)
	}
	other, _ := db.Pending(2)
	if len(other) != 1 {
		t.Errorf("other account affected: %v", other)
	}
}

func TestReplaceCatalog_PrunesPending(t *testing.T) {
	db := testDB(t)
	_ = db.ReplaceCatalog(sample)
	_ = db.SetPending(1, "9NP1P1WFS0LB", models.PendingAdd)
	_ = db.SetPending(1, "9P8DL6W0JBB8", models.PendingAdd)

	if err := db.ReplaceCatalog(sample[2:]); err != nil {
		t.Fatal(err)
	}
	got, _ := db.Pending(1)
	if diff := cmp.Diff(map[string]models.State{"9P8DL6W0JBB8": models.PendingAdd}, got); diff != "" {
		t.Errorf("pending (-want +got):\n%s", diff)
	}
}

func TestClearPending_Keys(t *testing.T) {
	db := testDB(t)
	_ = db.ReplaceCatalog(sample)
	_ = db.SetPending(7, "9NP1P1WFS0LB", models.PendingAdd)
	_ = db.SetPending(7, "9NKX70BBCDRN", models.PendingAdd)

	if err := db.ClearPending(7, "9NP1P1WFS0LB"); err != nil {
		t.Fatal(err)
	}
	got, _ := db.Pending(7)
	if len(got) != 1 {
		t.Errorf("pending = %v", got)
	}
}

func TestSearch_Basic(t *testing.T) {
	db := testDB(t)
	_ = db.ReplaceCatalog(sample)

	results, err := db.Search("halo", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].StoreKey != "9NP1P1WFS0LB" {
		t.Errorf("search results = %+v, want 1 hit for Halo", results)
	}

	results, _ = db.Search("Xbox Game", 10)
	if len(results) != 2 {
		t.Errorf("publisher search = %+v", results)
	}

	results, _ = db.Search("   ", 10)
	if results == nil || len(results) != 0 {
		t.Errorf("blank search = %+v", results)
	}
}

func TestReplaceCatalog_DuplicateKeyKeepsFirst(t *testing.T) {
	db := testDB(t)
	dup := sample[0]
	dup.Title = "Halo Copy"
	if err := db.ReplaceCatalog([]models.CatalogItem{sample[0], dup}); err != nil {
		t.Fatalf("ReplaceCatalog: %v", err)
	}
	got, err := db.Catalog()
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	if diff := cmp.Diff(sample[:1], got); diff != "" {
		t.Errorf("catalog (-want +got):\n%s", diff)
	}
	if results, _ := db.Search("halo", 10); len(results) != 1 {
		t.Errorf("search results = %+v, want one hit", results)
	}
	if results, _ := db.Search("copy", 10); len(results) != 0 {
		t.Errorf("dropped duplicate searchable: %+v", results)
	}
}

func TestApplyRuns(t *testing.T) {
	db := testDB(t)
	if err := db.RecordApply(5, ApplyRun{BatchID: "b1", Created: 2, Failed: 1}); err != nil {
		t.Fatalf("RecordApply: %v", err)
	}
	runs, err := db.ApplyRuns(5, 10)
	if err != nil {
		t.Fatalf("ApplyRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].BatchID != "b1" || runs[0].Created != 2 || runs[0].Failed != 1 {
		t.Errorf("runs = %+v", runs)
	}
	if runs, _ := db.ApplyRuns(6, 10); len(runs) != 0 {
		t.Errorf("other account runs = %+v", runs)
	}
}
