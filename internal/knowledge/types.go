package knowledge

import (
	"time"

	"github.com/google/uuid"
)

// VectorDimension is the embedding width the courses schema is declared
// with (vector(1536)); the embedder must produce vectors of this size.
const VectorDimension = 1536

// Search type labels attached to results so callers can see which strategy
// produced each hit.
const (
	SearchTypeVector  = "vector"
	SearchTypeKeyword = "keyword"
)

// Entry is one course row in the knowledge base.
type Entry struct {
	ID          uuid.UUID `json:"id"`
	CourseID    string    `json:"course_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Instructor  string    `json:"instructor,omitempty"`
	Schedule    string    `json:"schedule,omitempty"`
	Location    string    `json:"location,omitempty"`
	Price       string    `json:"price,omitempty"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Result is a search hit with its relevance score. Score is cosine
// similarity for vector hits and a keyword match ratio for keyword hits;
// both live on a 0..1 scale.
type Result struct {
	Entry
	Score      float64 `json:"similarity_score"`
	SearchType string  `json:"search_type"`
}

// Stats summarizes the knowledge base contents.
type Stats struct {
	TotalCourses int64     `json:"total_courses"`
	Categories   int64     `json:"categories"`
	LastUpdated  time.Time `json:"last_updated"`
}
