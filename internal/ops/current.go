package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/reel/internal/db"
	"github.com/hpungsan/reel/internal/errors"
)

// Current holds the persisted session scalars. Empty means unset.
type Current struct {
	ProjectID string `json:"current_project_id"`
	ClipID    string `json:"current_clip_id"`
}

// SetCurrentInput contains parameters for SetCurrent.
// A nil field is left unchanged; a pointer to "" clears it.
type SetCurrentInput struct {
	ProjectID *string
	ClipID    *string
}

// GetCurrent reads the current project and clip ids. Absent keys read as empty.
func GetCurrent(database *sql.DB) (*Current, error) {
	var out Current
	if err := db.GetJSON(database, db.KeyCurrentProjectID, &out.ProjectID); err != nil {
		return nil, err
	}
	if err := db.GetJSON(database, db.KeyCurrentClipID, &out.ClipID); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetCurrent updates the current project and/or clip id.
func SetCurrent(ctx context.Context, database *sql.DB, input SetCurrentInput) (*Current, error) {
	if input.ProjectID == nil && input.ClipID == nil {
		return nil, errors.NewInvalidRequest("nothing to update")
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}

	if err := putOrClear(database, db.KeyCurrentProjectID, input.ProjectID); err != nil {
		return nil, err
	}
	if err := putOrClear(database, db.KeyCurrentClipID, input.ClipID); err != nil {
		return nil, err
	}
	return GetCurrent(database)
}

func putOrClear(database *sql.DB, key string, value *string) error {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return db.Delete(database, key)
	}
	return db.PutJSON(database, key, v)
}

func stringPtr(s string) *string { return &s }
