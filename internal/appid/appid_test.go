package appid

import "testing"

func TestGenerate_RegressionVectors(t *testing.T) {
	cases := []struct {
		name, exe string
		want      ID
	}{
		{"Halo Infinite", "/usr/bin/flatpak", 3229196707},
		{"Halo Infinite", `"C:\Program Files\Microsoft\Edge\Application\msedge.exe"`, 3960214060},
		{"", "", 3523407757},
		{"Café", "x", 3284416402},
		{"Pokémon™", "run.sh", 2644740695},
		// Best-fit: Ō is hashed as O.
		{"Ōkami HD", "/usr/bin/flatpak", 4051411829},
		// No Windows-1252 mapping: each rune becomes '?'.
		{"日本", "x", 3252512440},
	}
	for _, tc := range cases {
		if got := Generate(tc.name, tc.exe); got != tc.want {
			t.Errorf("Generate(%q, %q) = %d, want %d", tc.name, tc.exe, got, tc.want)
		}
	}
}

func TestGenerate_BestFitMatchesPlainSpelling(t *testing.T) {
	cases := []struct{ name, plain string }{
		{"Ōkami", "Okami"},
		{"Pikachū", "Pikachu"},
		{"Łódź", "Lódz"},
		{"Ｈａｌｏ", "Halo"},
		{"Đorđe", "Ðorde"},
		{"日本", "??"},
	}
	for _, tc := range cases {
		if got, want := Generate(tc.name, "x"), Generate(tc.plain, "x"); got != want {
			t.Errorf("Generate(%q) = %d, want %d as for %q", tc.name, got, want, tc.plain)
		}
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	a := Generate("Forza Horizon 5", "/usr/bin/xdg-open")
	b := Generate("Forza Horizon 5", "/usr/bin/xdg-open")
	if a != b {
		t.Fatalf("not deterministic: %d != %d", a, b)
	}
	if a&0x80000000 == 0 {
		t.Errorf("high bit not set: %#x", uint32(a))
	}
}

func TestID_Int32RoundTrip(t *testing.T) {
	id := ID(3229196707)
	if id.Int32() != -1065770589 {
		t.Errorf("Int32 = %d", id.Int32())
	}
	if FromInt32(id.Int32()) != id {
		t.Errorf("FromInt32 did not restore %d", id)
	}
}

func TestID_StringAndParse(t *testing.T) {
	id := ID(3523407757)
	if id.String() != "3523407757" {
		t.Errorf("String = %q", id.String())
	}
	got, err := Parse("3523407757")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got != id {
		t.Errorf("Parse = %d", got)
	}
	if _, err := Parse("-1"); err == nil {
		t.Error("expected error for negative id")
	}
}
