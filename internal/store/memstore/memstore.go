// Package memstore 提供内存版 ledger.Persistence。
// 回测的一次性账本与测试都用它，避免无谓的磁盘写放大。
package memstore

import (
	"context"
	"sync"

	"alphasim/internal/ledger"
)

// Store 按 agent 维度保存最新快照与全部日志。
type Store struct {
	mu        sync.Mutex
	snapshots map[string]ledger.State
	logs      map[string][]ledger.LogRecord
}

var _ ledger.Persistence = (*Store)(nil)

func New() *Store {
	return &Store{
		snapshots: make(map[string]ledger.State),
		logs:      make(map[string][]ledger.LogRecord),
	}
}

func (s *Store) SaveSnapshot(_ context.Context, agentID string, st ledger.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[agentID] = st.Clone()
	return nil
}

func (s *Store) LoadSnapshot(_ context.Context, agentID string) (*ledger.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.snapshots[agentID]
	if !ok {
		return nil, nil
	}
	clone := st.Clone()
	return &clone, nil
}

func (s *Store) AppendLog(_ context.Context, agentID string, rec ledger.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[agentID] = append(s.logs[agentID], rec)
	return nil
}

// Logs 返回某 agent 的日志副本。
func (s *Store) Logs(agentID string) []ledger.LogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ledger.LogRecord(nil), s.logs[agentID]...)
}
