package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultPost    ResultType = "post"
	ResultJourney ResultType = "journey"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type     ResultType `json:"type"`
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Snippet  string     `json:"snippet"`
	AuthorID string     `json:"authorId,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text           string
	FilterType     ResultType // empty = all types
	FilterAuthorID string
	Limit          int
	Offset         int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexPost(p PostRecord) error
	IndexJourney(j JourneyRecord) error
	DeletePost(id string) error
}

// PostRecord is the data we index for a community post.
type PostRecord struct {
	ID         string `json:"id"`
	AuthorID   string `json:"authorId"`
	AuthorName string `json:"authorName"`
	Content    string `json:"content"`
}

// JourneyRecord is the data we index for a journey.
type JourneyRecord struct {
	ID          string `json:"id"`
	AuthorID    string `json:"authorId"`
	Title       string `json:"title"`
	Description string `json:"description"`
}
