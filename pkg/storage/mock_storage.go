package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/ignatij/shopfloor/pkg/models"
	"github.com/pkg/errors"
)

// mockStore implements Store with in-memory storage. Transactions share the
// parent's data; Rollback restores the snapshot taken at Begin.
type mockStore struct {
	data      *mockData
	snapshot  *mockSnapshot
	committed bool // Transaction state
}

type mockData struct {
	mu    sync.Mutex
	cards map[string]models.JobCard
	logs  []models.JobCardLog
}

type mockSnapshot struct {
	cards map[string]models.JobCard
	logs  []models.JobCardLog
}

func NewMockStore() Store {
	return &mockStore{data: &mockData{cards: make(map[string]models.JobCard)}}
}

func (m *mockStore) Begin() (Store, error) {
	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	snap := &mockSnapshot{
		cards: make(map[string]models.JobCard, len(m.data.cards)),
		logs:  append([]models.JobCardLog(nil), m.data.logs...),
	}
	for id, c := range m.data.cards {
		snap.cards[id] = c
	}
	return &mockStore{data: m.data, snapshot: snap}, nil
}

func (m *mockStore) Commit() error {
	if m.snapshot == nil {
		return errors.New("cannot commit: not a transaction")
	}
	if m.committed {
		return errors.New("already committed")
	}
	m.committed = true
	return nil
}

func (m *mockStore) Rollback() error {
	if m.snapshot == nil {
		return errors.New("cannot rollback: not a transaction")
	}
	if m.committed {
		return errors.New("cannot rollback committed transaction")
	}
	m.data.mu.Lock()
	m.data.cards = m.snapshot.cards
	m.data.logs = m.snapshot.logs
	m.data.mu.Unlock()
	m.committed = true
	return nil
}

func (m *mockStore) Close() error {
	return nil
}

func (m *mockStore) SaveJobCard(c models.JobCard) error {
	if m.committed {
		return errors.New("transaction already committed")
	}
	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	if _, exists := m.data.cards[c.ID]; exists {
		return errors.Errorf("job card %s already exists", c.ID)
	}
	for _, existing := range m.data.cards {
		if existing.ProductionOrder == c.ProductionOrder && existing.Sequence == c.Sequence {
			return errors.Errorf("production order %s already has a job card at sequence %d", c.ProductionOrder, c.Sequence)
		}
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}
	m.data.cards[c.ID] = c
	return nil
}

func (m *mockStore) GetJobCard(id string) (models.JobCard, error) {
	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	c, ok := m.data.cards[id]
	if !ok {
		return models.JobCard{}, ErrNotFound
	}
	return c, nil
}

func (m *mockStore) ListJobCards(filter models.JobCardFilter) ([]models.JobCard, error) {
	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	cards := []models.JobCard{}
	for _, c := range m.data.cards {
		if filter.Matches(c) {
			cards = append(cards, c)
		}
	}
	sort.Slice(cards, func(i, j int) bool {
		if cards[i].ProductionOrder != cards[j].ProductionOrder {
			return cards[i].ProductionOrder < cards[j].ProductionOrder
		}
		return cards[i].Sequence < cards[j].Sequence
	})
	return cards, nil
}

func (m *mockStore) UpdateJobCard(id string, patch models.JobCardPatch) (models.JobCard, error) {
	if m.committed {
		return models.JobCard{}, errors.New("transaction already committed")
	}
	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	c, ok := m.data.cards[id]
	if !ok {
		return models.JobCard{}, ErrNotFound
	}
	c = patch.Apply(c)
	c.UpdatedAt = time.Now().UTC()
	m.data.cards[id] = c
	return c, nil
}

func (m *mockStore) SaveLog(l models.JobCardLog) error {
	if m.committed {
		return errors.New("transaction already committed")
	}
	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	if _, ok := m.data.cards[l.JobCardID]; !ok {
		return errors.Wrapf(ErrNotFound, "job card %s", l.JobCardID)
	}
	m.data.logs = append(m.data.logs, l)
	return nil
}

func (m *mockStore) ListLogs(jobCardID string) ([]models.JobCardLog, error) {
	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	logs := []models.JobCardLog{}
	for _, l := range m.data.logs {
		if l.JobCardID == jobCardID {
			logs = append(logs, l)
		}
	}
	return logs, nil
}
