package api

import (
	"fmt"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go-probe-agent/pkg/models"
)

// resultsCache keeps the most recent batch results. It is volatile: a
// restart or eviction forgets a batch.
type resultsCache struct {
	results *lru.Cache[uuid.UUID, models.BatchResult]
}

func newResultsCache(size int) (*resultsCache, error) {
	if size <= 0 {
		size = 1
	}
	c, err := lru.New[uuid.UUID, models.BatchResult](size)
	if err != nil {
		return nil, fmt.Errorf("results cache: %w", err)
	}
	return &resultsCache{results: c}, nil
}

func (s *resultsCache) add(id uuid.UUID, res models.BatchResult) {
	s.results.Add(id, res)
}

func (s *resultsCache) get(id uuid.UUID) (models.BatchResult, bool) {
	return s.results.Get(id)
}
