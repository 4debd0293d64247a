package integration

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	configs map[Type]Config
	logs    []SyncLog
	nextCfg int64
	nextLog int64
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{configs: make(map[Type]Config), now: time.Now}
}

// newerFirst matches the pg store's ORDER BY created_at DESC, id DESC.
func newerFirst(a, b SyncLog) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func (s *MemoryStore) GetConfig(_ context.Context, t Type) (*Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.configs[t]
	if !ok {
		return nil, ErrConfigNotFound
	}
	c.Settings = maps.Clone(c.Settings)
	return &c, nil
}

func (s *MemoryStore) UpsertConfig(_ context.Context, c Config) (*Config, error) {
	if !c.Type.IsValid() {
		return nil, ErrUnknownType
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if cur, ok := s.configs[c.Type]; ok {
		c.ID = cur.ID
		c.CreatedAt = cur.CreatedAt
	} else {
		s.nextCfg++
		c.ID = s.nextCfg
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	c.Settings = maps.Clone(c.Settings)
	s.configs[c.Type] = c

	out := c
	out.Settings = maps.Clone(c.Settings)
	return &out, nil
}

func (s *MemoryStore) InsertSyncLog(_ context.Context, l SyncLog) (*SyncLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextLog++
	l.ID = s.nextLog
	if l.Status == "" {
		l.Status = SyncPending
	}
	l.CreatedAt = s.now()
	s.logs = append(s.logs, l)

	out := l
	return &out, nil
}

func (s *MemoryStore) FinishSyncLog(_ context.Context, id int64, status SyncStatus, externalID *string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.logs {
		if s.logs[i].ID == id {
			s.logs[i].Status = status
			s.logs[i].ExternalID = externalID
			s.logs[i].ErrorMessage = errMsg
			return nil
		}
	}
	return ErrSyncLogNotFound
}

func (s *MemoryStore) LastSuccessfulSync(_ context.Context, appointmentID int64) (*SyncLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last *SyncLog
	for i := range s.logs {
		l := s.logs[i]
		if l.AppointmentID != appointmentID || l.Status != SyncSuccess {
			continue
		}
		if last == nil || newerFirst(l, *last) {
			last = &l
		}
	}
	if last == nil {
		return nil, ErrSyncLogNotFound
	}
	return last, nil
}

func (s *MemoryStore) ListSyncLogs(_ context.Context, f SyncLogFilter) ([]SyncLog, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []SyncLog
	for _, l := range s.logs {
		if f.AppointmentID != nil && l.AppointmentID != *f.AppointmentID {
			continue
		}
		if f.Status != "" && l.Status != f.Status {
			continue
		}
		if f.Action != "" && l.Action != f.Action {
			continue
		}
		matched = append(matched, l)
	}
	sort.Slice(matched, func(i, j int) bool { return newerFirst(matched[i], matched[j]) })

	total := len(matched)
	if f.Offset >= total {
		return nil, total, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}

var _ Store = (*MemoryStore)(nil)
