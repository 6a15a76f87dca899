package infrastructure

import (
	"sync"

	"github.com/yourusername/chapterdl-go/internal/domain"
)

// ConfigCatalogStore serves the sources declared in the configuration
type ConfigCatalogStore struct {
	mu       sync.RWMutex
	catalogs map[int64]domain.Catalog
}

// NewConfigCatalogStore indexes sources by ID
func NewConfigCatalogStore(sources []domain.Catalog) *ConfigCatalogStore {
	s := &ConfigCatalogStore{}
	s.Replace(sources)
	return s
}

// FindBySourceID returns the catalog or domain.ErrSourceNotFound
func (s *ConfigCatalogStore) FindBySourceID(sourceID int64) (*domain.Catalog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	catalog, ok := s.catalogs[sourceID]
	if !ok {
		return nil, domain.ErrSourceNotFound
	}
	return &catalog, nil
}

// Replace swaps the known sources
func (s *ConfigCatalogStore) Replace(sources []domain.Catalog) {
	catalogs := make(map[int64]domain.Catalog, len(sources))
	for _, source := range sources {
		catalogs[source.SourceID] = source
	}

	s.mu.Lock()
	s.catalogs = catalogs
	s.mu.Unlock()
}
