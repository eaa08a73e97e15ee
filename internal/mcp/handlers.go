package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/reel/internal/clip"
	"github.com/hpungsan/reel/internal/config"
	"github.com/hpungsan/reel/internal/errors"
	"github.com/hpungsan/reel/internal/job"
	"github.com/hpungsan/reel/internal/ops"
	"github.com/hpungsan/reel/internal/studio"
)

// DefaultWaitTimeout bounds wait=true generation calls.
const DefaultWaitTimeout = 300 * time.Second

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	session *studio.Session
	db      *sql.DB
	cfg     *config.Config
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(session *studio.Session, db *sql.DB, cfg *config.Config) *Handlers {
	return &Handlers{session: session, db: db, cfg: cfg}
}

// Request types for each tool

// ClipAddRequest represents the arguments for clip_add.
type ClipAddRequest struct {
	ScriptText   string `json:"script_text"`
	MovementText string `json:"movement_text,omitempty"`
}

// ClipUpdateRequest represents the arguments for clip_update.
type ClipUpdateRequest struct {
	ID           string  `json:"id"`
	ScriptText   *string `json:"script_text,omitempty"`
	MovementText *string `json:"movement_text,omitempty"`
	MediaLink    *string `json:"media_link,omitempty"`
}

// IDRequest represents tools addressed by a single id.
type IDRequest struct {
	ID string `json:"id"`
}

// GenerateRequest represents the arguments for clip_generate and avatar_generate.
type GenerateRequest struct {
	ID             string  `json:"id,omitempty"`
	Prompt         string  `json:"prompt,omitempty"`
	Wait           bool    `json:"wait,omitempty"`
	TimeoutSeconds float64 `json:"timeout_seconds,omitempty"`
}

// SlotRequest represents the arguments for job_status and job_cancel.
type SlotRequest struct {
	Slot string `json:"slot"`
}

// FinishRequest represents the arguments for project_finish.
type FinishRequest struct {
	Title string `json:"title"`
}

// ListRequest represents the arguments for project_list.
type ListRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// ExportRequest represents the arguments for project_export.
type ExportRequest struct {
	ID     string `json:"id"`
	Format string `json:"format,omitempty"`
	Path   string `json:"path,omitempty"`
}

// Output types

// ClipView is a clip with its preview headline and script length.
type ClipView struct {
	clip.Clip
	Headline string `json:"headline"`
	Chars    int    `json:"chars"`
}

// ClipListOutput is the storyboard view returned by clip_list.
type ClipListOutput struct {
	Clips     []ClipView  `json:"clips"`
	ActiveID  string      `json:"active_id"`
	Budget    clip.Budget `json:"budget"`
	Usage     string      `json:"usage"`
	Percent   float64     `json:"usage_percent"`
	Remaining string      `json:"remaining"`
}

// JobOutput is a job snapshot with its rendered progress.
type JobOutput struct {
	job.Snapshot
	Percent     int    `json:"percent"`
	Description string `json:"description"`
}

func jobOutput(snap job.Snapshot) JobOutput {
	return JobOutput{Snapshot: snap, Percent: snap.Percent(), Description: snap.Describe()}
}

// Handler implementations

// HandleClipAdd handles the clip_add tool call.
func (h *Handlers) HandleClipAdd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ClipAddRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	c, err := h.session.AddClip(input.ScriptText, input.MovementText)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(c)
}

// HandleClipUpdate handles the clip_update tool call.
func (h *Handlers) HandleClipUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ClipUpdateRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	c, err := h.session.UpdateClip(input.ID, clip.Patch{
		ScriptText:   input.ScriptText,
		MovementText: input.MovementText,
		MediaLink:    input.MediaLink,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(c)
}

// HandleClipDelete handles the clip_delete tool call.
func (h *Handlers) HandleClipDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	if err := h.session.DeleteClip(input.ID); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"id": input.ID, "deleted": true})
}

// HandleClipSelect handles the clip_select tool call.
func (h *Handlers) HandleClipSelect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	if strings.TrimSpace(input.ID) == "" {
		h.session.Compose()
	} else if err := h.session.SelectActive(input.ID); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"active_id": h.session.Collection().ActiveID()})
}

// HandleClipList handles the clip_list tool call.
func (h *Handlers) HandleClipList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	col := h.session.Collection()
	b := col.Budget()
	clips := col.Clips()
	views := make([]ClipView, len(clips))
	for i, c := range clips {
		views[i] = ClipView{
			Clip:     c,
			Headline: clip.HeadlineOf(c.ScriptText).String(),
			Chars:    clip.CountChars(c.ScriptText),
		}
	}
	return successResult(ClipListOutput{
		Clips:     views,
		ActiveID:  col.ActiveID(),
		Budget:    b,
		Usage:     b.FormatUsage(),
		Percent:   b.UsagePercent(),
		Remaining: b.FormatRemaining(),
	})
}

// HandleClipGenerate handles the clip_generate tool call.
func (h *Handlers) HandleClipGenerate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[GenerateRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	j, err := h.session.GenerateClip(ctx, input.ID)
	return h.jobResult(ctx, j, err, input)
}

// HandleAvatarGenerate handles the avatar_generate tool call.
func (h *Handlers) HandleAvatarGenerate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[GenerateRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	j, err := h.session.GenerateAvatar(ctx, input.Prompt)
	return h.jobResult(ctx, j, err, input)
}

// jobResult reports a started job, optionally waiting for it to settle.
// A job that never started is an error; a job that started and then
// failed is reported through its snapshot.
func (h *Handlers) jobResult(ctx context.Context, j *job.Job, err error, input GenerateRequest) (*mcp.CallToolResult, error) {
	if j == nil {
		return errorResult(err), nil
	}
	if input.Wait && err == nil {
		timeout := DefaultWaitTimeout
		if input.TimeoutSeconds > 0 {
			timeout = time.Duration(input.TimeoutSeconds * float64(time.Second))
		}
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-j.Done():
		case <-timer.C:
		case <-ctx.Done():
			return errorResult(errors.NewInternal(ctx.Err())), nil
		}
	}
	return successResult(jobOutput(j.Snapshot()))
}

// HandleJobStatus handles the job_status tool call.
func (h *Handlers) HandleJobStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SlotRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	slot, err := parseSlot(input.Slot)
	if err != nil {
		return errorResult(err), nil
	}

	snap, ok := h.session.Job(slot)
	if !ok {
		return successResult(map[string]any{"slot": slot, "state": job.StateIdle, "description": "Idle"})
	}
	return successResult(jobOutput(snap))
}

// HandleJobCancel handles the job_cancel tool call.
func (h *Handlers) HandleJobCancel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SlotRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	slot, err := parseSlot(input.Slot)
	if err != nil {
		return errorResult(err), nil
	}

	h.session.Cancel(slot)
	snap, ok := h.session.Job(slot)
	if !ok {
		return successResult(map[string]any{"slot": slot, "state": job.StateIdle, "description": "Idle"})
	}
	return successResult(jobOutput(snap))
}

// HandleProjectFinish handles the project_finish tool call.
func (h *Handlers) HandleProjectFinish(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FinishRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.session.Finish(ctx, input.Title)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleProjectList handles the project_list tool call.
func (h *Handlers) HandleProjectList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.List(h.db, ops.ListInput{Limit: input.Limit, Offset: input.Offset})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleProjectFetch handles the project_fetch tool call.
func (h *Handlers) HandleProjectFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Fetch(h.db, ops.FetchInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleProjectExport handles the project_export tool call.
func (h *Handlers) HandleProjectExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Export(ctx, h.db, h.cfg, ops.ExportInput{
		ID:     input.ID,
		Format: input.Format,
		Path:   input.Path,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleProjectDelete handles the project_delete tool call.
func (h *Handlers) HandleProjectDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Delete(ctx, h.db, ops.DeleteInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

func parseSlot(s string) (job.Slot, error) {
	switch slot := job.Slot(strings.ToLower(strings.TrimSpace(s))); slot {
	case job.SlotAvatar, job.SlotClip:
		return slot, nil
	}
	return "", errors.NewInvalidRequest("slot must be one of: avatar, clip")
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Details are omitted for INTERNAL errors.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var rErr *errors.ReelError
	if stderrors.As(err, &rErr) {
		errorObj := map[string]any{
			"code":    rErr.Code,
			"message": errors.MessageOf(err),
			"status":  rErr.Status,
		}
		if rErr.Code != errors.ErrInternal && rErr.Details != nil {
			errorObj["details"] = rErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
