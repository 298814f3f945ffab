package quota

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store used by the offline billing mode and in
// tests. It mirrors the postgres store's semantics, including atomic
// full-field-group writes.
type MemoryStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[uuid.UUID]*Record)}
}

// Seed inserts a record directly, bypassing lifecycle rules. Test helper.
func (s *MemoryStore) Seed(record Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.UserID] = &record
}

func (s *MemoryStore) Get(ctx context.Context, userID uuid.UUID) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[userID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	copied := *record
	return &copied, nil
}

func (s *MemoryStore) EnsureCustomer(ctx context.Context, userID uuid.UUID, customerID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, record := range s.records {
		if record.CustomerID == customerID && id != userID {
			return nil, ErrCustomerConflict
		}
	}

	record, ok := s.records[userID]
	if !ok {
		record = &Record{
			UserID:     userID,
			CustomerID: customerID,
			Tier:       TierFree,
			Threshold:  ThresholdFor(TierFree),
			Billing:    FreeBilling{},
		}
		s.records[userID] = record
	} else if record.CustomerID == "" {
		record.CustomerID = customerID
	}

	copied := *record
	return &copied, nil
}

func (s *MemoryStore) ApplyByCustomerID(ctx context.Context, customerID string, state SubscriptionState) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range s.records {
		if record.CustomerID == customerID {
			applyState(record, state)
			copied := *record
			return &copied, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (s *MemoryStore) ApplyBySubscriptionID(ctx context.Context, subscriptionID string, state SubscriptionState) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range s.records {
		if record.SubscriptionID() == subscriptionID {
			applyState(record, state)
			copied := *record
			return &copied, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (s *MemoryStore) ConsumeUsage(ctx context.Context, userID uuid.UUID) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[userID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	if record.NumUsages >= record.Threshold {
		return nil, ErrThresholdExceeded
	}
	record.NumUsages++
	copied := *record
	return &copied, nil
}

// applyState overwrites the whole dependent field group, never a subset.
func applyState(record *Record, state SubscriptionState) {
	record.Tier = state.Tier
	record.Threshold = state.Threshold
	record.NumUsages = state.NumUsages
	record.Billing = state.Billing
}
