package knowledge

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Record is one document in the knowledge store.
type Record struct {
	ID         string            `json:"id"`
	TaskID     string            `json:"task_id"`
	Collection string            `json:"collection"`
	Text       string            `json:"text"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Result pairs a record with its similarity score; higher is closer.
type Result struct {
	Record Record  `json:"record"`
	Score  float64 `json:"score"`
}

// Store is the put/query contract consumed by the engine.
type Store interface {
	Put(ctx context.Context, rec Record) error
	Query(ctx context.Context, text string, k int) ([]Result, error)
}

// NewRecord builds a record with a fresh id.
func NewRecord(taskID, collection, text string) Record {
	return Record{
		ID:         uuid.NewString(),
		TaskID:     taskID,
		Collection: collection,
		Text:       text,
	}
}

// MemoryStore is an in-process Store used when no remote store is
// configured. Its scoring is a crude token-overlap stand-in; real
// similarity search lives behind the HTTP adapter.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Put implements Store.
func (s *MemoryStore) Put(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.Text == "" {
		return fmt.Errorf("knowledge: record text is required")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// Query implements Store.
func (s *MemoryStore) Query(ctx context.Context, text string, k int) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	terms := tokenize(text)
	s.mu.RLock()
	defer s.mu.RUnlock()
	results := make([]Result, 0, len(s.records))
	for _, rec := range s.records {
		score := overlap(terms, tokenize(rec.Text))
		if score > 0 {
			results = append(results, Result{Record: rec, Score: score})
		}
	}
	// Insertion sort by descending score keeps equal-score records in
	// insertion order.
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Score > results[j-1].Score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Len reports the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func tokenize(text string) map[string]bool {
	tokens := map[string]bool{}
	for _, field := range strings.Fields(strings.ToLower(text)) {
		tokens[strings.Trim(field, ".,;:!?\"'()")] = true
	}
	delete(tokens, "")
	return tokens
}

func overlap(query, doc map[string]bool) float64 {
	if len(query) == 0 {
		return 0
	}
	hits := 0
	for term := range query {
		if doc[term] {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}
