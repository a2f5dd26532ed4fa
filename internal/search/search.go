package search

// Query describes a recent-posts search request.
type Query struct {
	Term  string
	Limit int
}

// PostRecord is the data we index for a post.
type PostRecord struct {
	PID     int64  `json:"pid"`
	TID     int64  `json:"tid"`
	Content string `json:"content"`
	Deleted bool   `json:"deleted"`
}

// Searcher returns the pids of live posts matching a term, best first.
type Searcher interface {
	Search(q Query) ([]int64, error)
	Healthy() bool
}

// Indexer pushes posts into a search index.
type Indexer interface {
	IndexPost(p PostRecord) error
	DeletePost(pid int64) error
}
