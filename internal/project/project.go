package project

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hpungsan/reel/internal/clip"
	"github.com/hpungsan/reel/internal/errors"
)

// Project is a finished storyboard saved to the project list.
type Project struct {
	ID            string      `json:"id"`
	Title         string      `json:"title"`
	Clips         []clip.Clip `json:"clips"`
	Thumbnail     string      `json:"thumbnail"`
	CreatedAt     string      `json:"createdAt"`
	TotalDuration float64     `json:"totalDuration"`
}

// Summary is a Project without its clips, for listings.
type Summary struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Thumbnail     string  `json:"thumbnail"`
	CreatedAt     string  `json:"createdAt"`
	TotalDuration float64 `json:"totalDuration"`
	ClipCount     int     `json:"clip_count"`
}

// Summarize returns the listing view of p.
func (p *Project) Summarize() Summary {
	return Summary{
		ID:            p.ID,
		Title:         p.Title,
		Thumbnail:     p.Thumbnail,
		CreatedAt:     p.CreatedAt,
		TotalDuration: p.TotalDuration,
		ClipCount:     len(p.Clips),
	}
}

// AssembleInput contains parameters for Assemble.
type AssembleInput struct {
	Title string      `validate:"required"`
	Clips []clip.Clip `validate:"min=1"`

	// ID and Now are optional; tests pin them.
	ID  string
	Now time.Time
}

var validate = validator.New()

// Assemble builds a Project from the current collection snapshot.
// The title is trimmed and must be non-empty; at least one clip is required.
func Assemble(in AssembleInput) (*Project, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	id := in.ID
	if id == "" {
		var err error
		if id, err = clip.NewID(); err != nil {
			return nil, errors.NewInternal(err)
		}
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	clips := make([]clip.Clip, len(in.Clips))
	copy(clips, in.Clips)

	return &Project{
		ID:            id,
		Title:         in.Title,
		Clips:         clips,
		Thumbnail:     clips[0].Thumbnail,
		CreatedAt:     now.UTC().Format(time.RFC3339),
		TotalDuration: clip.Total(clips),
	}, nil
}

func validationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return errors.NewValidation("", err.Error())
	}
	switch fe := verrs[0]; fe.Field() {
	case "Title":
		return errors.NewValidation("title", "project title is required")
	case "Clips":
		return errors.NewValidation("clips", "a project needs at least one clip")
	default:
		return errors.NewValidation(strings.ToLower(fe.Field()), fmt.Sprintf("%s is invalid", fe.Field()))
	}
}
