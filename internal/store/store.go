// Package store holds extraction records for the lifetime of a pipeline
// run. Records are mutable until FinalizeAll, after which they are frozen
// and become legal input to aggregation.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/personaforge/personaforge/internal/model"
)

// ErrDuplicateID is returned by Create when a record with the same
// respondent id already exists.
var ErrDuplicateID = errors.New("record already exists")

// ErrNotFound is returned when no record has the given respondent id.
var ErrNotFound = errors.New("record not found")

// ExtractionStore is a mutex-guarded in-memory record set, safe for
// concurrent use by the extraction workers.
type ExtractionStore struct {
	mu      sync.RWMutex
	records map[string]*model.ExtractionRecord
}

// NewExtractionStore creates an empty store.
func NewExtractionStore() *ExtractionStore {
	return &ExtractionStore{records: make(map[string]*model.ExtractionRecord)}
}

// Create adds a new record. The respondent id must be unused.
func (s *ExtractionStore) Create(rec *model.ExtractionRecord) error {
	if rec.RespondentID == "" {
		return fmt.Errorf("record has no respondent id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.RespondentID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, rec.RespondentID)
	}
	cp := *rec
	s.records[rec.RespondentID] = &cp
	return nil
}

// Get returns a copy of the record for the given respondent.
func (s *ExtractionStore) Get(respondentID string) (*model.ExtractionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[respondentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, respondentID)
	}
	cp := *rec
	return &cp, nil
}

// Update applies fn to the record under the store lock. Finalized records
// are immutable: the update silently does nothing, mirroring how a frozen
// dataset behaves toward late edits. UpdatedAt and UpdatedBy are maintained
// here so callers cannot forget them.
func (s *ExtractionStore) Update(respondentID string, actor model.Actor, fn func(*model.ExtractionRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[respondentID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, respondentID)
	}
	if rec.Finalized {
		return nil
	}
	fn(rec)
	rec.UpdatedAt = time.Now()
	rec.UpdatedBy = actor
	return nil
}

// Delete removes the record. Deleting a finalized record silently does
// nothing; deleting a missing one is not an error.
func (s *ExtractionStore) Delete(respondentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[respondentID]
	if !ok {
		return
	}
	if rec.Finalized {
		return
	}
	delete(s.records, respondentID)
}

// List returns copies of all records sorted by respondent id.
func (s *ExtractionStore) List() []model.ExtractionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ExtractionRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RespondentID < out[j].RespondentID })
	return out
}

// Len returns the number of records.
func (s *ExtractionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// FinalizeAll freezes every record. Already finalized records keep their
// original FinalizedAt; the operation is monotonic and idempotent.
func (s *ExtractionStore) FinalizeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, rec := range s.records {
		if rec.Finalized {
			continue
		}
		rec.Finalized = true
		at := now
		rec.FinalizedAt = &at
	}
}

// IsFinalized reports whether the dataset as a whole is frozen. An empty
// store is not finalized; there is nothing to aggregate.
func (s *ExtractionStore) IsFinalized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) == 0 {
		return false
	}
	for _, rec := range s.records {
		if !rec.Finalized {
			return false
		}
	}
	return true
}

// FinalizedSubset returns copies of the finalized records sorted by
// respondent id. Aggregation consumes only these.
func (s *ExtractionStore) FinalizedSubset() []model.ExtractionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.ExtractionRecord
	for _, rec := range s.records {
		if rec.Finalized {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RespondentID < out[j].RespondentID })
	return out
}
