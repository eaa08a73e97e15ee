package ops

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/hpungsan/reel/internal/db"
	"github.com/hpungsan/reel/internal/errors"
	"github.com/hpungsan/reel/internal/project"
)

// DeleteInput contains parameters for the Delete operation.
type DeleteInput struct {
	ID string // required
}

// DeleteOutput contains the result of the Delete operation.
type DeleteOutput struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

// Delete removes a saved project. If it was the current project, the
// current project id is cleared.
func Delete(ctx context.Context, database *sql.DB, input DeleteInput) (*DeleteOutput, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}

	err := db.Update(database, db.KeyProjects, func(raw []byte) (any, error) {
		existing := []project.Project{}
		if raw != nil {
			if err := json.Unmarshal(raw, &existing); err != nil {
				return nil, errors.NewInternal(err)
			}
		}

		kept := make([]project.Project, 0, len(existing))
		for _, p := range existing {
			if p.ID != id {
				kept = append(kept, p)
			}
		}
		if len(kept) == len(existing) {
			return nil, errors.NewProjectNotFound(id)
		}
		return kept, nil
	})
	if err != nil {
		return nil, err
	}

	current, err := GetCurrent(database)
	if err != nil {
		return nil, err
	}
	if current.ProjectID == id {
		if _, err := SetCurrent(ctx, database, SetCurrentInput{ProjectID: stringPtr("")}); err != nil {
			return nil, err
		}
	}

	return &DeleteOutput{
		Deleted: true,
		ID:      id,
	}, nil
}
