// Package knowledge stores structured facts and the personality config.
// Facts are unique per (key, category); writing an existing pair updates in
// place rather than duplicating.
package knowledge

import (
	"context"
	"encoding/json"

	oni "github.com/onios/oni"
)

// Record paths within the durable store.
const (
	factsPath       = "knowledge"
	personalityPath = "personality"
)

// Store reads and writes knowledge entries and the personality config.
type Store struct {
	records oni.RecordStore
}

var _ oni.KnowledgeReader = (*Store)(nil)

// New creates a knowledge store on top of records.
func New(records oni.RecordStore) *Store {
	return &Store{records: records}
}

// Upsert writes a fact. At most one entry exists per (key, category); an
// existing pair is updated in place, keeping its ID and CreatedAt.
func (s *Store) Upsert(ctx context.Context, key, value, category, source string) (oni.KnowledgeEntry, error) {
	now := oni.NowUnix()
	var result oni.KnowledgeEntry
	err := s.records.Update(ctx, factsPath, func(raw []byte) (any, error) {
		all := decodeEntries(raw)
		for i := range all {
			if all[i].Key == key && all[i].Category == category {
				all[i].Value = value
				all[i].Source = source
				all[i].UpdatedAt = now
				result = all[i]
				return all, nil
			}
		}
		result = oni.KnowledgeEntry{
			ID:        oni.NewID(),
			Key:       key,
			Value:     value,
			Category:  category,
			Source:    source,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return append(all, result), nil
	})
	return result, err
}

// List returns all entries, filtered to category when non-empty.
func (s *Store) List(ctx context.Context, category string) ([]oni.KnowledgeEntry, error) {
	var all []oni.KnowledgeEntry
	if err := s.records.Read(ctx, factsPath, &all); err != nil {
		return nil, err
	}
	if category == "" {
		return all, nil
	}
	out := all[:0:0]
	for _, e := range all {
		if e.Category == category {
			out = append(out, e)
		}
	}
	return out, nil
}

// Delete removes an entry by id and reports whether anything was removed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	removed := false
	err := s.records.Update(ctx, factsPath, func(raw []byte) (any, error) {
		all := decodeEntries(raw)
		kept := all[:0:0]
		for _, e := range all {
			if e.ID == id {
				removed = true
				continue
			}
			kept = append(kept, e)
		}
		return kept, nil
	})
	return removed, err
}

// Personality returns the stored personality config, or the zero value when
// none has been saved.
func (s *Store) Personality(ctx context.Context) (oni.PersonalityConfig, error) {
	var p oni.PersonalityConfig
	if err := s.records.Read(ctx, personalityPath, &p); err != nil {
		return oni.PersonalityConfig{}, err
	}
	return p, nil
}

// SetPersonality merges the given config over the stored one: empty fields
// keep their prior values, non-empty fields replace them wholesale.
func (s *Store) SetPersonality(ctx context.Context, p oni.PersonalityConfig) error {
	return s.records.Update(ctx, personalityPath, func(raw []byte) (any, error) {
		var cur oni.PersonalityConfig
		if raw != nil {
			_ = json.Unmarshal(raw, &cur)
		}
		if p.Name != "" {
			cur.Name = p.Name
		}
		if p.Tone != "" {
			cur.Tone = p.Tone
		}
		if p.Style != "" {
			cur.Style = p.Style
		}
		if p.Role != "" {
			cur.Role = p.Role
		}
		if len(p.Rules) > 0 {
			cur.Rules = p.Rules
		}
		if len(p.Expertise) > 0 {
			cur.Expertise = p.Expertise
		}
		if p.CustomInstructions != "" {
			cur.CustomInstructions = p.CustomInstructions
		}
		return cur, nil
	})
}

func decodeEntries(raw []byte) []oni.KnowledgeEntry {
	var all []oni.KnowledgeEntry
	if raw != nil {
		_ = json.Unmarshal(raw, &all)
	}
	return all
}
