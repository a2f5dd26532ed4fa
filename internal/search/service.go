package search

import "log"

// Service is the facade that tries Meilisearch first and falls back to
// PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch
// is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) ([]int64, error) {
	if s.meili != nil && s.meili.Healthy() {
		pids, err := s.meili.Search(q)
		if err == nil {
			return pids, nil
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}
	return s.pgfts.Search(q)
}

// IndexPost indexes a post (fire-and-forget to Meilisearch).
func (s *Service) IndexPost(p PostRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexPost(p); err != nil {
			log.Printf("search: index post %d: %v", p.PID, err)
		}
	}()
}

// DeletePost removes a post from the index (fire-and-forget).
func (s *Service) DeletePost(pid int64) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeletePost(pid); err != nil {
			log.Printf("search: delete post %d: %v", pid, err)
		}
	}()
}
