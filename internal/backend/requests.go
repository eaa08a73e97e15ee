package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/hpungsan/reel/internal/errors"
)

// ClipRequest is the caller-facing input for clip generation.
type ClipRequest struct {
	Script   string
	Movement string
}

// RequestBuilder turns a ClipRequest into the JSON body sent to
// POST /clip/{id}/generate.
type RequestBuilder func(ClipRequest) any

type movementBody struct {
	AvatarMovements string `json:"avatarMovements" validate:"required"`
}

type promptBody struct {
	Prompt string `json:"prompt" validate:"required"`
}

// MovementBody sends {avatarMovements}, falling back to the script when no movement is set.
func MovementBody(r ClipRequest) any {
	m := strings.TrimSpace(r.Movement)
	if m == "" {
		m = strings.TrimSpace(r.Script)
	}
	return movementBody{AvatarMovements: m}
}

// PromptBody sends {prompt} built from the script text.
func PromptBody(r ClipRequest) any {
	return promptBody{Prompt: strings.TrimSpace(r.Script)}
}

// BuilderFor returns the builder named by a config field value.
func BuilderFor(field string) RequestBuilder {
	if field == "prompt" {
		return PromptBody
	}
	return MovementBody
}

// Avatar is one generated avatar image.
type Avatar struct {
	ID   any    `json:"id"`
	Name string `json:"name,omitempty"`
	Link string `json:"link,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Href returns the avatar's link, falling back to url.
func (a Avatar) Href() string {
	if a.Link != "" {
		return a.Link
	}
	return a.URL
}

// DrivingImage references the image that drives a remote project.
type DrivingImage struct {
	Filename   string `json:"filename" validate:"required"`
	Subfolder  string `json:"subfolder"`
	FolderType string `json:"folder_type"`
}

// CreateProjectRequest is the body of POST /project.
type CreateProjectRequest struct {
	Name           string       `json:"name" validate:"required"`
	NegativePrompt *string      `json:"negative_prompt"`
	DrivingImage   DrivingImage `json:"driving_image"`
}

// RemoteProject is a project as the backend reports it.
type RemoteProject struct {
	ID       any    `json:"id"`
	Name     string `json:"name"`
	AvatarID any    `json:"avatar_id,omitempty"`
}

type imageRequest struct {
	Prompt string `json:"prompt" validate:"required"`
}

type avatarRequest struct {
	AvatarID int `json:"avatar_id" validate:"gt=0"`
}

// GenerateImage triggers avatar image generation. Only the acknowledgement is
// awaited; progress arrives on the push channel.
func (c *Client) GenerateImage(ctx context.Context, prompt string) error {
	body := imageRequest{Prompt: strings.TrimSpace(prompt)}
	if err := c.check(body); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/image", body, nil)
}

// ListImages returns the generated avatars.
func (c *Client) ListImages(ctx context.Context) ([]Avatar, error) {
	var out struct {
		Images []Avatar `json:"images"`
	}
	err := c.RetryWithBackoff(ctx, func() error {
		return c.do(ctx, http.MethodGet, "/image", nil, &out)
	}, c.maxRetries)
	if err != nil {
		return nil, err
	}
	if out.Images == nil {
		out.Images = []Avatar{}
	}
	return out.Images, nil
}

// CreateProject creates a project on the backend.
func (c *Client) CreateProject(ctx context.Context, req CreateProjectRequest) (*RemoteProject, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := c.check(req); err != nil {
		return nil, err
	}
	var out RemoteProject
	if err := c.do(ctx, http.MethodPost, "/project", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListProjects returns the backend's projects.
func (c *Client) ListProjects(ctx context.Context) ([]RemoteProject, error) {
	var out struct {
		Projects []RemoteProject `json:"projects"`
	}
	err := c.RetryWithBackoff(ctx, func() error {
		return c.do(ctx, http.MethodGet, "/project", nil, &out)
	}, c.maxRetries)
	if err != nil {
		return nil, err
	}
	if out.Projects == nil {
		out.Projects = []RemoteProject{}
	}
	return out.Projects, nil
}

// AttachAvatar attaches an avatar to a backend project.
func (c *Client) AttachAvatar(ctx context.Context, projectID string, avatarID int) error {
	if strings.TrimSpace(projectID) == "" {
		return errors.NewValidation("project_id", "project id is required")
	}
	body := avatarRequest{AvatarID: avatarID}
	if err := c.check(body); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/project/%s/avatar", url.PathEscape(projectID)), body, nil)
}

// ValidateClip builds the clip-generation body and validates it without
// sending anything.
func (c *Client) ValidateClip(clipID string, req ClipRequest) error {
	_, err := c.clipRequestBody(clipID, req)
	return err
}

// GenerateClip triggers video generation for a clip using the configured request builder.
func (c *Client) GenerateClip(ctx context.Context, clipID string, req ClipRequest) error {
	body, err := c.clipRequestBody(clipID, req)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/clip/%s/generate", url.PathEscape(clipID)), body, nil)
}

func (c *Client) clipRequestBody(clipID string, req ClipRequest) (any, error) {
	if strings.TrimSpace(clipID) == "" {
		return nil, errors.NewValidation("clip_id", "clip id is required")
	}
	body := c.clipBody(req)
	if err := c.check(body); err != nil {
		return nil, err
	}
	return body, nil
}
