package storage

import "github.com/dennisdiepolder/monti/switchboard/internal/types"

// Store archives ended calls and serves call history
type Store interface {
	SaveCallRecord(record types.CallRecord) error
	GetCallRecords(dateKey string) ([]types.CallRecord, error)
	GetAgentCallsByDate(agentID, date string) ([]types.CallRecord, error)
	TruncateAll() error
}

// NoopStore is a no-op implementation when DynamoDB is disabled
type NoopStore struct{}

func NewNoopStore() *NoopStore { return &NoopStore{} }

func (s *NoopStore) SaveCallRecord(_ types.CallRecord) error                    { return nil }
func (s *NoopStore) GetCallRecords(_ string) ([]types.CallRecord, error)         { return nil, nil }
func (s *NoopStore) GetAgentCallsByDate(_, _ string) ([]types.CallRecord, error) { return nil, nil }
func (s *NoopStore) TruncateAll() error                                          { return nil }
