// Package memory provides long-term semantic memory over a record store.
// Search is hybrid: cosine similarity over embedded memories with a
// token-overlap fallback for memories (or queries) that lack an embedding.
package memory

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"

	oni "github.com/onios/oni"
)

// recordPath is the durable record holding the memory index.
const recordPath = "memories"

// fallbackPenalty discounts token-overlap scores when the query has an
// embedding, so embedded memories win ties against keyword-only matches.
const fallbackPenalty = 0.75

// minScore is the relevance floor; results below it are dropped.
const minScore = 0.1

// Store reads and writes oni.Memory records.
type Store struct {
	records   oni.RecordStore
	embedding oni.EmbeddingProvider // nil = keyword-only search
	logger    *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithEmbedding enables vector scoring via the given provider.
func WithEmbedding(e oni.EmbeddingProvider) Option {
	return func(s *Store) { s.embedding = e }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a memory store on top of records.
func New(records oni.RecordStore, opts ...Option) *Store {
	s := &Store{records: records, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ oni.MemorySearcher = (*Store)(nil)

// Store appends a new memory. The embedding is best-effort: when the
// provider is unconfigured or fails, the memory is stored without one and
// participates in search via token overlap only.
func (s *Store) Store(ctx context.Context, content, category string, tags []string, metadata map[string]string) (oni.Memory, error) {
	mem := oni.Memory{
		ID:        oni.NewID(),
		Content:   content,
		Category:  category,
		Tags:      tags,
		Metadata:  metadata,
		CreatedAt: oni.NowUnix(),
	}
	if emb := s.embed(ctx, content); emb != nil {
		mem.Embedding = emb
	}

	err := s.records.Update(ctx, recordPath, func(raw []byte) (any, error) {
		all := decode(raw)
		all = append(all, mem)
		return all, nil
	})
	if err != nil {
		return oni.Memory{}, err
	}
	return mem, nil
}

// Search returns up to k memories ranked by relevance to query, filtered to
// category when non-empty. Every returned memory has its access counters
// bumped.
func (s *Store) Search(ctx context.Context, query string, k int, category string) ([]oni.ScoredMemory, error) {
	var all []oni.Memory
	if err := s.records.Read(ctx, recordPath, &all); err != nil {
		return nil, err
	}

	queryEmb := s.embed(ctx, query)

	var scored []oni.ScoredMemory
	for _, m := range all {
		if category != "" && m.Category != category {
			continue
		}
		var score float32
		switch {
		case queryEmb != nil && m.HasEmbedding():
			score = oni.CosineSimilarity(queryEmb, m.Embedding)
		case queryEmb != nil:
			score = oni.TokenOverlap(query, m.Content) * fallbackPenalty
		default:
			score = oni.TokenOverlap(query, m.Content)
		}
		if score < minScore {
			continue
		}
		scored = append(scored, oni.ScoredMemory{Memory: m, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}

	if len(scored) > 0 {
		s.touch(ctx, scored)
	}
	return scored, nil
}

// List returns all memories, filtered to category when non-empty.
func (s *Store) List(ctx context.Context, category string) ([]oni.Memory, error) {
	var all []oni.Memory
	if err := s.records.Read(ctx, recordPath, &all); err != nil {
		return nil, err
	}
	if category == "" {
		return all, nil
	}
	out := all[:0:0]
	for _, m := range all {
		if m.Category == category {
			out = append(out, m)
		}
	}
	return out, nil
}

// Delete removes a memory by id and reports whether anything was removed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	removed := false
	err := s.records.Update(ctx, recordPath, func(raw []byte) (any, error) {
		all := decode(raw)
		kept := all[:0:0]
		for _, m := range all {
			if m.ID == id {
				removed = true
				continue
			}
			kept = append(kept, m)
		}
		return kept, nil
	})
	return removed, err
}

// touch bumps access counters for returned memories. Failures only log:
// retrieval must not fail because bookkeeping did.
func (s *Store) touch(ctx context.Context, hits []oni.ScoredMemory) {
	ids := make(map[string]struct{}, len(hits))
	for _, h := range hits {
		ids[h.Memory.ID] = struct{}{}
	}
	now := oni.NowUnix()
	err := s.records.Update(ctx, recordPath, func(raw []byte) (any, error) {
		all := decode(raw)
		for i := range all {
			if _, ok := ids[all[i].ID]; ok {
				all[i].AccessCount++
				all[i].LastAccessedAt = now
			}
		}
		return all, nil
	})
	if err != nil {
		s.logger.Warn("memory access bookkeeping", "error", err)
	}
}

// embed returns the embedding for text, or nil when the provider is
// unconfigured or the call fails.
func (s *Store) embed(ctx context.Context, text string) []float32 {
	if s.embedding == nil {
		return nil
	}
	embs, err := s.embedding.Embed(ctx, []string{text})
	if err != nil || len(embs) == 0 {
		if err != nil {
			s.logger.Debug("embedding unavailable", "error", err)
		}
		return nil
	}
	return embs[0]
}

// decode parses the stored memory index; corrupt or missing raw bytes
// degrade to the empty index.
func decode(raw []byte) []oni.Memory {
	var all []oni.Memory
	if raw != nil {
		_ = json.Unmarshal(raw, &all)
	}
	return all
}
