package ops

import (
	"database/sql"

	"github.com/hpungsan/reel/internal/project"
)

// FetchInput contains parameters for the Fetch operation.
type FetchInput struct {
	ID string // required
}

// FetchOutput contains the result of the Fetch operation.
type FetchOutput struct {
	Project *project.Project `json:"project"`
	Current bool             `json:"current"`
}

// Fetch retrieves a saved project by id.
func Fetch(database *sql.DB, input FetchInput) (*FetchOutput, error) {
	p, err := findProject(database, input.ID)
	if err != nil {
		return nil, err
	}

	current, err := GetCurrent(database)
	if err != nil {
		return nil, err
	}

	return &FetchOutput{
		Project: p,
		Current: current.ProjectID == p.ID,
	}, nil
}
