package ops

import (
	"database/sql"

	"github.com/hpungsan/reel/internal/project"
)

// ListInput contains parameters for the List operation.
type ListInput struct {
	Limit  int // default: 20, max: 100
	Offset int // default: 0
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	Items      []project.Summary `json:"items"`
	Pagination Pagination        `json:"pagination"`
	Sort       string            `json:"sort"`
}

// List retrieves saved project summaries with pagination. Newest projects come first.
func List(database *sql.DB, input ListInput) (*ListOutput, error) {
	// Apply limit defaults and bounds
	limit := input.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	// Ensure offset is non-negative
	offset := max(input.Offset, 0)

	projects, err := loadProjects(database)
	if err != nil {
		return nil, err
	}
	total := len(projects)

	summaries := []project.Summary{}
	for i := offset; i < total && i < offset+limit; i++ {
		summaries = append(summaries, projects[i].Summarize())
	}

	return &ListOutput{
		Items: summaries,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(summaries) < total,
			Total:   total,
		},
		Sort: "saved_desc",
	}, nil
}
