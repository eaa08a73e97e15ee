package ops

import (
	"database/sql"
	"strings"

	"github.com/hpungsan/reel/internal/db"
	"github.com/hpungsan/reel/internal/errors"
	"github.com/hpungsan/reel/internal/project"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// loadProjects returns the saved project list, newest first.
// An absent key is an empty list.
func loadProjects(database *sql.DB) ([]project.Project, error) {
	projects := []project.Project{}
	if err := db.GetJSON(database, db.KeyProjects, &projects); err != nil {
		return nil, err
	}
	if projects == nil {
		projects = []project.Project{}
	}
	return projects, nil
}

// findProject returns the saved project with id.
func findProject(database *sql.DB, id string) (*project.Project, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}
	projects, err := loadProjects(database)
	if err != nil {
		return nil, err
	}
	for i := range projects {
		if projects[i].ID == id {
			return &projects[i], nil
		}
	}
	return nil, errors.NewProjectNotFound(id)
}
