package knowledge

import (
	"context"
	"testing"

	oni "github.com/onios/oni"
	"github.com/onios/oni/store/jsonfile"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	records, err := jsonfile.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return New(records)
}

func TestUpsertIdempotence(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if _, err := s.Upsert(ctx, "k", "1", "c", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Upsert(ctx, "k", "1", "c", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Upsert(ctx, "k", "2", "c", ""); err != nil {
		t.Fatal(err)
	}

	all, err := s.List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("List = %d entries, want 1", len(all))
	}
	if all[0].Value != "2" {
		t.Errorf("Value = %q, want %q", all[0].Value, "2")
	}
}

func TestSameKeyDifferentCategory(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if _, err := s.Upsert(ctx, "k", "1", "a", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Upsert(ctx, "k", "2", "b", ""); err != nil {
		t.Fatal(err)
	}

	all, err := s.List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("List = %d entries, want 2 — (key, category) is the unit of uniqueness", len(all))
	}

	onlyA, err := s.List(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(onlyA) != 1 || onlyA[0].Value != "1" {
		t.Errorf("List(a) = %+v", onlyA)
	}
}

func TestUpsertKeepsIdentity(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	first, err := s.Upsert(ctx, "k", "1", "c", "")
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Upsert(ctx, "k", "2", "c", "")
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Errorf("upsert changed ID: %s -> %s", first.ID, second.ID)
	}
	if second.CreatedAt != first.CreatedAt {
		t.Error("upsert changed CreatedAt")
	}
}

func TestDelete(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	e, err := s.Upsert(ctx, "k", "v", "", "")
	if err != nil {
		t.Fatal(err)
	}
	removed, err := s.Delete(ctx, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !removed {
		t.Error("Delete = false, want true")
	}
	removed, err = s.Delete(ctx, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if removed {
		t.Error("second Delete = true, want false")
	}
}

func TestPersonalityMerge(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.SetPersonality(ctx, oni.PersonalityConfig{Name: "Oni", Tone: "warm"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetPersonality(ctx, oni.PersonalityConfig{Tone: "direct", Rules: []string{"be brief"}}); err != nil {
		t.Fatal(err)
	}

	p, err := s.Personality(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "Oni" {
		t.Errorf("Name = %q, want Oni (empty field must keep prior value)", p.Name)
	}
	if p.Tone != "direct" {
		t.Errorf("Tone = %q, want direct", p.Tone)
	}
	if len(p.Rules) != 1 {
		t.Errorf("Rules = %v", p.Rules)
	}
}
