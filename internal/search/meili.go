package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxPosts = "agora_posts"

// Meili implements Searcher and Indexer via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the posts index.
// An unreachable server is tolerated; the health loop keeps trying.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxPosts,
		PrimaryKey: "pid",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxPosts, err)
	}

	index := m.client.Index(idxPosts)
	filterable := []string{"deleted", "tid"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs for %s: %v", idxPosts, err)
	}
	searchable := []string{"content"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs for %s: %v", idxPosts, err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search returns matching live post ids, best hits first.
func (m *Meili) Search(q Query) ([]int64, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit <= 0 {
		limit = 20
	}

	resp, err := m.client.Index(idxPosts).Search(q.Term, &meili.SearchRequest{
		Limit:  limit,
		Filter: []string{"deleted = false"},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch search: %w", err)
	}

	pids := make([]int64, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		doc, ok := hit.(map[string]interface{})
		if !ok {
			continue
		}
		switch v := doc["pid"].(type) {
		case float64:
			pids = append(pids, int64(v))
		case json.Number:
			if pid, err := v.Int64(); err == nil {
				pids = append(pids, pid)
			}
		case string:
			if pid, err := strconv.ParseInt(v, 10, 64); err == nil {
				pids = append(pids, pid)
			}
		}
	}
	return pids, nil
}

// IndexPost upserts a post record.
func (m *Meili) IndexPost(p PostRecord) error {
	if _, err := m.client.Index(idxPosts).AddDocuments([]PostRecord{p}); err != nil {
		return fmt.Errorf("meilisearch index post %d: %w", p.PID, err)
	}
	return nil
}

// DeletePost removes a post from the index.
func (m *Meili) DeletePost(pid int64) error {
	if _, err := m.client.Index(idxPosts).DeleteDocument(fmt.Sprintf("%d", pid)); err != nil {
		return fmt.Errorf("meilisearch delete post %d: %w", pid, err)
	}
	return nil
}
