package ops

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/hpungsan/reel/internal/db"
	"github.com/hpungsan/reel/internal/errors"
	"github.com/hpungsan/reel/internal/project"
)

// SaveInput contains parameters for the Save operation.
type SaveInput struct {
	Project *project.Project // required
}

// SaveOutput contains the result of the Save operation.
type SaveOutput struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Total int    `json:"total"`
}

// Save prepends a project to the saved project list.
// Saving an id that already exists replaces the older entry.
func Save(ctx context.Context, database *sql.DB, input SaveInput) (*SaveOutput, error) {
	if input.Project == nil || input.Project.ID == "" {
		return nil, errors.NewInvalidRequest("project is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}

	total := 0
	err := db.Update(database, db.KeyProjects, func(raw []byte) (any, error) {
		existing := []project.Project{}
		if raw != nil {
			if err := json.Unmarshal(raw, &existing); err != nil {
				return nil, errors.NewInternal(err)
			}
		}

		updated := make([]project.Project, 0, len(existing)+1)
		updated = append(updated, *input.Project)
		for _, p := range existing {
			if p.ID != input.Project.ID {
				updated = append(updated, p)
			}
		}
		total = len(updated)
		return updated, nil
	})
	if err != nil {
		return nil, err
	}

	return &SaveOutput{
		ID:    input.Project.ID,
		Title: input.Project.Title,
		Total: total,
	}, nil
}
