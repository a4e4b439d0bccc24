package persona

import "testing"

func TestResolveFallsBackToDefault(t *testing.T) {
	store := NewMemoryStore(Seed())

	p, ok := Resolve(store, "missing")
	if !ok || p.ID != DefaultID {
		t.Fatalf("expected default persona, got %+v ok=%v", p, ok)
	}

	if _, ok := Resolve(NewMemoryStore(nil), ""); ok {
		t.Fatal("empty store should not resolve")
	}
}

func TestListReturnsCopy(t *testing.T) {
	store := NewMemoryStore(Seed())
	items := store.List()
	items[0].Name = "changed"

	if got, _ := store.FindByID(DefaultID); got.Name != "Aanya" {
		t.Fatalf("store mutated through List: %s", got.Name)
	}
}
