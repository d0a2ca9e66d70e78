package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"voterstore/internal/partition/models"
	"voterstore/pkg/platform/sentinel"
)

// InMemory is a process-local Store used by unit tests and local development.
// Clone and drop hold the store lock, so they are atomic like their Postgres
// counterparts.
type InMemory struct {
	mu        sync.RWMutex
	databases map[string]map[string]*memTable
}

type memTable struct {
	mu      sync.RWMutex
	records map[string]*models.Record
}

// NewInMemory creates an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{databases: make(map[string]map[string]*memTable)}
}

// CreatePartition creates (or extends) a partition with the given records.
// Masters are curated outside this service; this is the seeding path for
// tests and development.
func (s *InMemory) CreatePartition(_ context.Context, database, name string, records ...*models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, ok := s.databases[database]
	if !ok {
		db = make(map[string]*memTable)
		s.databases[database] = db
	}
	t, ok := db[name]
	if !ok {
		t = &memTable{records: make(map[string]*models.Record)}
		db[name] = t
	}
	for _, r := range records {
		t.records[r.ID] = r.Clone()
	}
	return nil
}

func (s *InMemory) ListPartitions(_ context.Context, database string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.databases[database]))
	for name := range s.databases[database] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *InMemory) PartitionExists(_ context.Context, database, name string) (bool, error) {
	_, ok := s.table(database, name)
	return ok, nil
}

func (s *InMemory) OpenPartition(_ context.Context, database, name string) (Partition, error) {
	if _, ok := s.table(database, name); !ok {
		return nil, sentinel.ErrNotFound
	}
	return &memPartition{store: s, database: database, name: name}, nil
}

func (s *InMemory) ClonePartition(_ context.Context, database, source, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	db := s.databases[database]
	src, ok := db[source]
	if !ok {
		return sentinel.ErrNotFound
	}
	if _, ok := db[target]; ok {
		return sentinel.ErrAlreadyExists
	}
	src.mu.RLock()
	copied := make(map[string]*models.Record, len(src.records))
	for id, r := range src.records {
		copied[id] = r.Clone()
	}
	src.mu.RUnlock()
	db[target] = &memTable{records: copied}
	return nil
}

func (s *InMemory) DropPartition(_ context.Context, database, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db := s.databases[database]
	if _, ok := db[name]; !ok {
		return false, nil
	}
	delete(db, name)
	return true, nil
}

func (s *InMemory) Ping(context.Context) error {
	return nil
}

func (s *InMemory) table(database, name string) (*memTable, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.databases[database][name]
	return t, ok
}

// memPartition resolves its table on every call so a dropped partition stops
// answering instead of serving stale data.
type memPartition struct {
	store    *InMemory
	database string
	name     string
}

func (p *memPartition) Database() string { return p.database }
func (p *memPartition) Name() string     { return p.name }

func (p *memPartition) Get(_ context.Context, id string) (*models.Record, error) {
	t, ok := p.store.table(p.database, p.name)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.records[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return r.Clone(), nil
}

func (p *memPartition) Insert(_ context.Context, rec *models.Record) error {
	t, ok := p.store.table(p.database, p.name)
	if !ok {
		return sentinel.ErrNotFound
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.records[rec.ID]; exists {
		return sentinel.ErrAlreadyExists
	}
	t.records[rec.ID] = rec.Clone()
	return nil
}

func (p *memPartition) Replace(_ context.Context, rec *models.Record) error {
	t, ok := p.store.table(p.database, p.name)
	if !ok {
		return sentinel.ErrNotFound
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.records[rec.ID]; !exists {
		return sentinel.ErrNotFound
	}
	t.records[rec.ID] = rec.Clone()
	return nil
}

func (p *memPartition) Page(_ context.Context, q PageQuery) ([]*models.Record, error) {
	matched, err := p.matching(q.Since)
	if err != nil {
		return nil, err
	}
	if q.Offset >= len(matched) {
		return []*models.Record{}, nil
	}
	end := len(matched)
	if q.Limit > 0 && q.Offset+q.Limit < end {
		end = q.Offset + q.Limit
	}
	return matched[q.Offset:end], nil
}

func (p *memPartition) Count(_ context.Context, since *time.Time) (int, error) {
	matched, err := p.matching(since)
	if err != nil {
		return 0, err
	}
	return len(matched), nil
}

func (p *memPartition) matching(since *time.Time) ([]*models.Record, error) {
	t, ok := p.store.table(p.database, p.name)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	t.mu.RLock()
	out := make([]*models.Record, 0, len(t.records))
	for _, r := range t.records {
		if matchesSince(r, since) {
			out = append(out, r.Clone())
		}
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
