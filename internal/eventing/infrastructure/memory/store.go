package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"irec-issuer/internal/eventing"
)

type outboxEntry struct {
	record    eventing.OutboxRecord
	status    string
	createdAt time.Time
}

// OutboxStore keeps outbox records in insertion order.
type OutboxStore struct {
	mu          sync.Mutex
	entries     []*outboxEntry
	byEventID   map[string]struct{}
	maxAttempts int
}

// NewOutboxStore constructs an in-memory outbox. maxAttempts <= 0 means 5.
func NewOutboxStore(maxAttempts int) *OutboxStore {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &OutboxStore{byEventID: make(map[string]struct{}), maxAttempts: maxAttempts}
}

// Insert appends an envelope. Duplicate event ids are ignored.
func (s *OutboxStore) Insert(_ context.Context, env eventing.Envelope) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEventID[env.EventID]; ok {
		return "", nil
	}
	id := eventing.NewEventID()
	s.byEventID[env.EventID] = struct{}{}
	s.entries = append(s.entries, &outboxEntry{
		record:    eventing.OutboxRecord{ID: id, Envelope: env},
		status:    "pending",
		createdAt: time.Now().UTC(),
	})
	return id, nil
}

// ListPending returns dispatchable records.
func (s *OutboxStore) ListPending(_ context.Context, limit int) ([]eventing.OutboxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	var result []eventing.OutboxRecord
	for _, entry := range s.entries {
		if len(result) == limit {
			break
		}
		if entry.status == "pending" || (entry.status == "failed" && entry.record.Attempts < s.maxAttempts) {
			result = append(result, entry.record)
		}
	}
	return result, nil
}

// MarkSent marks a record as sent.
func (s *OutboxStore) MarkSent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry := s.find(id); entry != nil {
		entry.status = "sent"
	}
	return nil
}

// MarkFailed marks a record as failed.
func (s *OutboxStore) MarkFailed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry := s.find(id); entry != nil {
		entry.status = "failed"
		entry.record.Attempts++
	}
	return nil
}

// Envelopes returns every envelope written so far.
func (s *OutboxStore) Envelopes() []eventing.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]eventing.Envelope, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, entry.record.Envelope)
	}
	return out
}

// CountByStatus counts records with the given status.
func (s *OutboxStore) CountByStatus(status string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, entry := range s.entries {
		if entry.status == status {
			count++
		}
	}
	return count
}

// Stats counts records by delivery state.
func (s *OutboxStore) Stats(_ context.Context) (eventing.OutboxStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats eventing.OutboxStats
	for _, entry := range s.entries {
		switch {
		case entry.status == "sent":
			stats.Sent++
			continue
		case entry.status == "pending":
			stats.Pending++
		case entry.record.Attempts < s.maxAttempts:
			stats.Retrying++
		default:
			stats.Exhausted++
		}
		if stats.Oldest.IsZero() || entry.createdAt.Before(stats.Oldest) {
			stats.Oldest = entry.createdAt
		}
	}
	return stats, nil
}

// reset makes the record of eventID pending with no attempts.
func (s *OutboxStore) reset(eventID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.entries {
		if entry.record.Envelope.EventID == eventID {
			entry.status = "pending"
			entry.record.Attempts = 0
			return true
		}
	}
	return false
}

func (s *OutboxStore) find(id string) *outboxEntry {
	for _, entry := range s.entries {
		if entry.record.ID == id {
			return entry
		}
	}
	return nil
}

// ProcessedStore records processed (event, consumer) pairs.
type ProcessedStore struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewProcessedStore constructs a processed store.
func NewProcessedStore() *ProcessedStore {
	return &ProcessedStore{seen: make(map[string]struct{})}
}

// HasProcessed reports whether the consumer already handled the event.
func (s *ProcessedStore) HasProcessed(_ context.Context, eventID, consumerName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[eventID+"|"+consumerName]
	return ok, nil
}

// MarkProcessed records the pair.
func (s *ProcessedStore) MarkProcessed(_ context.Context, eventID, consumerName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[eventID+"|"+consumerName] = struct{}{}
	return nil
}

// DLQStore collects failures. Requeue resets records in outbox.
type DLQStore struct {
	mu      sync.Mutex
	outbox  *OutboxStore
	letters map[string]*eventing.DeadLetter
}

// NewDLQStore constructs a DLQ store. A nil outbox makes every Requeue fail
// with eventing.ErrUnknownEventID.
func NewDLQStore(outbox *OutboxStore) *DLQStore {
	return &DLQStore{outbox: outbox, letters: make(map[string]*eventing.DeadLetter)}
}

// RecordFailure keeps the latest error per event and counts attempts.
func (s *DLQStore) RecordFailure(_ context.Context, env eventing.Envelope, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	message := "unknown error"
	if err != nil {
		message = err.Error()
	}
	now := time.Now().UTC()
	letter, ok := s.letters[env.EventID]
	if !ok {
		letter = &eventing.DeadLetter{
			EventID:     env.EventID,
			EventType:   env.EventType,
			AggregateID: env.AggregateID,
			FirstSeenAt: now,
		}
		s.letters[env.EventID] = letter
	}
	letter.Error = message
	letter.Attempts++
	letter.LastSeenAt = now
	return nil
}

// List returns the most recently failed dead letters first.
func (s *DLQStore) List(_ context.Context, limit int) ([]eventing.DeadLetter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	out := make([]eventing.DeadLetter, 0, len(s.letters))
	for _, letter := range s.letters {
		out = append(out, *letter)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastSeenAt.Equal(out[j].LastSeenAt) {
			return out[i].EventID < out[j].EventID
		}
		return out[i].LastSeenAt.After(out[j].LastSeenAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Requeue resets the outbox record of eventID and drops its dead letter.
func (s *DLQStore) Requeue(_ context.Context, eventID string) error {
	if s.outbox == nil || !s.outbox.reset(eventID) {
		return fmt.Errorf("%w: %s", eventing.ErrUnknownEventID, eventID)
	}
	s.mu.Lock()
	delete(s.letters, eventID)
	s.mu.Unlock()
	return nil
}

// Len returns the number of dead-lettered events.
func (s *DLQStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.letters)
}
