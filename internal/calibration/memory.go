package calibration

import (
	"sync"

	"github.com/aprep/backend/internal/models"
)

// In-memory store implementations. Used by tests and useful for local
// development without Postgres.

type MemoryParameterStore struct {
	mu    sync.RWMutex
	items map[string]models.IRTParameters
}

func NewMemoryParameterStore() *MemoryParameterStore {
	return &MemoryParameterStore{items: make(map[string]models.IRTParameters)}
}

func (s *MemoryParameterStore) Get(itemID string) (*models.IRTParameters, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.items[itemID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *MemoryParameterStore) Put(params *models.IRTParameters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[params.ItemID] = *params
	return nil
}

func (s *MemoryParameterStore) List() ([]*models.IRTParameters, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.IRTParameters, 0, len(s.items))
	for _, p := range s.items {
		cp := p
		out = append(out, &cp)
	}
	return out, nil
}

type MemoryAnchorStore struct {
	mu      sync.RWMutex
	anchors []models.AnchorItem
	nextID  int64
}

func NewMemoryAnchorStore() *MemoryAnchorStore {
	return &MemoryAnchorStore{}
}

func (s *MemoryAnchorStore) Add(anchor *models.AnchorItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	anchor.ID = s.nextID
	s.anchors = append(s.anchors, *anchor)
	return nil
}

func (s *MemoryAnchorStore) ForTopic(courseID, topicID string) ([]*models.AnchorItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.AnchorItem
	for i := range s.anchors {
		if s.anchors[i].CourseID == courseID && s.anchors[i].TopicID == topicID {
			cp := s.anchors[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryAnchorStore) List() ([]*models.AnchorItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.AnchorItem, 0, len(s.anchors))
	for i := range s.anchors {
		cp := s.anchors[i]
		out = append(out, &cp)
	}
	return out, nil
}

type MemoryResponseStore struct {
	mu     sync.RWMutex
	byItem map[string][]models.ResponseData
}

func NewMemoryResponseStore() *MemoryResponseStore {
	return &MemoryResponseStore{byItem: make(map[string][]models.ResponseData)}
}

func (s *MemoryResponseStore) Append(r *models.ResponseData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byItem[r.ItemID] = append(s.byItem[r.ItemID], *r)
	return nil
}

func (s *MemoryResponseStore) ListByItem(itemID string) ([]models.ResponseData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ResponseData, len(s.byItem[itemID]))
	copy(out, s.byItem[itemID])
	return out, nil
}

func (s *MemoryResponseStore) ItemIDs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.byItem))
	for itemID := range s.byItem {
		out = append(out, itemID)
	}
	return out, nil
}
