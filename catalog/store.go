package catalog

import (
	"fmt"

	"github.com/poiesic/catmat/core"
)

// Store holds catalog items in load order. It is read-only after
// construction and safe for concurrent use.
type Store struct {
	items   []*core.CatalogItem
	byID    map[string]*core.CatalogItem
	columns []string
	hash    string
}

// NewStore builds a store from items. Ids must be unique and non-empty.
func NewStore(items []*core.CatalogItem) (*Store, error) {
	s := &Store{
		items: make([]*core.CatalogItem, 0, len(items)),
		byID:  make(map[string]*core.CatalogItem, len(items)),
	}
	hasher := core.NewContentHasher()
	for i, item := range items {
		if item == nil || item.ID == "" {
			return nil, fmt.Errorf("item %d has no id", i)
		}
		if _, dup := s.byID[item.ID]; dup {
			return nil, fmt.Errorf("duplicate item id %q", item.ID)
		}
		s.items = append(s.items, item)
		s.byID[item.ID] = item
		hasher.Add(item.ID, item.Description)
	}
	s.hash = hasher.Sum()
	return s, nil
}

// Get returns the item with the given id.
func (s *Store) Get(id string) (*core.CatalogItem, bool) {
	item, ok := s.byID[id]
	return item, ok
}

// Items returns all items in load order. The slice must not be modified.
func (s *Store) Items() []*core.CatalogItem { return s.items }

// Len returns the number of items.
func (s *Store) Len() int { return len(s.items) }

// ContentHash summarizes every id and description in load order.
func (s *Store) ContentHash() string { return s.hash }

// Columns returns the source header, when the store was loaded from a file.
func (s *Store) Columns() []string { return s.columns }
