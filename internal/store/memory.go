package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"pace/ingest-service/internal/model"
)

// MemoryStore is an in-process Store. Documents are kept as decoded JSON
// objects so that Upsert merges top-level keys the same way the JSONB
// concatenation in PostgresStore does.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string]map[string]any
	seq    map[string]int
	next   int
	logs   []model.SourceLog
	writes int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]map[string]any),
		seq:  make(map[string]int),
	}
}

func (s *MemoryStore) FindByApplyLink(_ context.Context, link string) (*model.Opportunity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *model.Opportunity
	for _, id := range s.orderedIDs() {
		opp, err := decode(s.docs[id])
		if err != nil {
			return nil, err
		}
		if opp.ApplyLink == link {
			found = &opp
			break
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (s *MemoryStore) ListRecent(_ context.Context, limit int) ([]model.Opportunity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.orderedIDs()
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]model.Opportunity, 0, len(ids))
	for _, id := range ids {
		opp, err := decode(s.docs[id])
		if err != nil {
			return nil, err
		}
		out = append(out, opp)
	}
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*model.Opportunity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	opp, err := decode(doc)
	if err != nil {
		return nil, err
	}
	return &opp, nil
}

func (s *MemoryStore) Upsert(_ context.Context, opp model.Opportunity) error {
	if opp.ID == "" {
		return fmt.Errorf("upsert: empty id")
	}
	fields, err := encode(opp)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[opp.ID]
	if !ok {
		doc = make(map[string]any, len(fields))
		s.docs[opp.ID] = doc
	}
	for k, v := range fields {
		doc[k] = v
	}
	s.next++
	s.seq[opp.ID] = s.next
	s.writes++
	return nil
}

func (s *MemoryStore) AppendSourceLog(_ context.Context, l model.SourceLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, l)
	return nil
}

// Len returns the number of stored opportunities.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Writes returns the number of successful Upsert calls.
func (s *MemoryStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// SourceLogs returns a copy of the recorded source logs.
func (s *MemoryStore) SourceLogs() []model.SourceLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.SourceLog(nil), s.logs...)
}

// orderedIDs sorts by fetched_at desc, then by most recent write.
// Callers hold s.mu.
func (s *MemoryStore) orderedIDs() []string {
	type entry struct {
		id      string
		fetched string
		seq     int
	}
	entries := make([]entry, 0, len(s.docs))
	for id, doc := range s.docs {
		fetched, _ := doc["fetched_at"].(string)
		entries = append(entries, entry{id: id, fetched: fetched, seq: s.seq[id]})
	}
	sort.Slice(entries, func(i, j int) bool {
		ti, tj := parseTime(entries[i].fetched), parseTime(entries[j].fetched)
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return entries[i].seq > entries[j].seq
	})
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.id
	}
	return ids
}

func encode(opp model.Opportunity) (map[string]any, error) {
	raw, err := json.Marshal(opp)
	if err != nil {
		return nil, fmt.Errorf("marshal opportunity: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("unmarshal opportunity fields: %w", err)
	}
	return fields, nil
}

func decode(doc map[string]any) (model.Opportunity, error) {
	var opp model.Opportunity
	raw, err := json.Marshal(doc)
	if err != nil {
		return opp, fmt.Errorf("marshal document: %w", err)
	}
	if err := json.Unmarshal(raw, &opp); err != nil {
		return opp, fmt.Errorf("unmarshal document: %w", err)
	}
	return opp, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
