package voice

import "testing"

func TestSeedCatalogResolvesAliases(t *testing.T) {
	store := NewMemoryStore(Seed())

	if got := store.Resolve("salome"); got != "es-CO-SalomeNeural" {
		t.Fatalf("alias not resolved: %s", got)
	}
	if got := store.Resolve("ES-CO-SALOMENEURAL"); got != "es-CO-SalomeNeural" {
		t.Fatalf("case-insensitive id lookup failed: %s", got)
	}
	if got := store.Resolve("unknown-voice"); got != "unknown-voice" {
		t.Fatalf("unknown voice must pass through, got %s", got)
	}
	if got := store.Resolve(""); got != "" {
		t.Fatalf("empty input must stay empty, got %q", got)
	}
}

func TestFindByID(t *testing.T) {
	store := NewMemoryStore(Seed())

	v, ok := store.FindByID("es-CO-SalomeNeural")
	if !ok {
		t.Fatal("expected seeded voice")
	}
	if v.Provider != "azure" {
		t.Fatalf("unexpected provider: %s", v.Provider)
	}

	if _, ok := store.FindByID("missing"); ok {
		t.Fatal("unexpected hit for missing voice")
	}
}

func TestListCopiesCatalog(t *testing.T) {
	store := NewMemoryStore(Seed())

	first := store.List()
	if len(first) == 0 {
		t.Fatal("expected seeded voices")
	}

	first[0].ID = "mutated"
	second := store.List()
	if second[0].ID == "mutated" {
		t.Fatal("List must return a copy")
	}
}
