package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/reel/internal/backend"
	"github.com/hpungsan/reel/internal/channel"
	"github.com/hpungsan/reel/internal/config"
	"github.com/hpungsan/reel/internal/db"
	"github.com/hpungsan/reel/internal/errors"
	"github.com/hpungsan/reel/internal/studio"
)

type stubBackend struct{}

func (stubBackend) GenerateImage(ctx context.Context, prompt string) error {
	return nil
}

func (stubBackend) GenerateClip(ctx context.Context, clipID string, req backend.ClipRequest) error {
	return nil
}

func (stubBackend) ValidateClip(clipID string, req backend.ClipRequest) error {
	return nil
}

func (stubBackend) StatusURL(clientID string) string {
	return "ws://backend/gen_status?clientId=" + clientID
}

// testSetup creates a temporary database, config and session for testing.
func testSetup(t *testing.T, steps ...channel.Step) (*Handlers, *sql.DB, *config.Config) {
	t.Helper()

	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true // Allow temp dirs in tests

	session, err := studio.New(studio.Options{
		Config:  cfg,
		Backend: stubBackend{},
		Source:  &channel.ScriptedSource{Steps: steps},
		DB:      database,
	})
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	t.Cleanup(session.Leave)

	return NewHandlers(session, database, cfg), database, cfg
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func addClip(t *testing.T, h *Handlers, text string) string {
	t.Helper()
	result, err := h.HandleClipAdd(context.Background(), makeRequest(map[string]any{"script_text": text}))
	if err != nil {
		t.Fatalf("HandleClipAdd error: %v", err)
	}
	return parseOutput(t, result)["id"].(string)
}

func TestHandleClipAdd(t *testing.T) {
	h, _, _ := testSetup(t)
	ctx := context.Background()

	t.Run("adds clip with configured duration", func(t *testing.T) {
		result, err := h.HandleClipAdd(ctx, makeRequest(map[string]any{
			"script_text":   "Hello world",
			"movement_text": "wave",
		}))
		if err != nil {
			t.Fatalf("HandleClipAdd error: %v", err)
		}
		output := parseOutput(t, result)
		if output["durationSeconds"].(float64) != 5 {
			t.Errorf("durationSeconds = %v, want 5", output["durationSeconds"])
		}
		if output["movement"] != "wave" {
			t.Errorf("movement = %v, want wave", output["movement"])
		}
	})

	t.Run("blank script rejected", func(t *testing.T) {
		result, _ := h.HandleClipAdd(ctx, makeRequest(map[string]any{"script_text": "  "}))
		assertErrorCode(t, result, "VALIDATION_ERROR")
	})

	t.Run("invalid args rejected", func(t *testing.T) {
		result, _ := h.HandleClipAdd(ctx, makeRequest(map[string]any{"script_text": 42}))
		assertErrorCode(t, result, "INVALID_REQUEST")
	})

	t.Run("capacity exceeded", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			addClip(t, h, fmt.Sprintf("clip %d", i))
		}
		result, _ := h.HandleClipAdd(ctx, makeRequest(map[string]any{"script_text": "fifth"}))
		assertErrorCode(t, result, "CAPACITY_EXCEEDED")
	})
}

func TestHandleClipList(t *testing.T) {
	h, _, _ := testSetup(t)
	first := addClip(t, h, "first")
	second := addClip(t, h, "second")

	result, err := h.HandleClipList(context.Background(), makeRequest(nil))
	if err != nil {
		t.Fatalf("HandleClipList error: %v", err)
	}
	output := parseOutput(t, result)

	clips := output["clips"].([]any)
	if len(clips) != 2 {
		t.Fatalf("clips len = %d, want 2", len(clips))
	}
	if clips[0].(map[string]any)["id"] != first {
		t.Errorf("first clip id = %v, want %s", clips[0].(map[string]any)["id"], first)
	}
	if clips[0].(map[string]any)["headline"] != "FIRST" {
		t.Errorf("headline = %v, want FIRST", clips[0].(map[string]any)["headline"])
	}
	if clips[1].(map[string]any)["chars"].(float64) != 6 {
		t.Errorf("chars = %v, want 6", clips[1].(map[string]any)["chars"])
	}
	if output["active_id"] != second {
		t.Errorf("active_id = %v, want %s", output["active_id"], second)
	}
	budget := output["budget"].(map[string]any)
	if budget["remaining_seconds"].(float64) != 10 {
		t.Errorf("remaining = %v, want 10", budget["remaining_seconds"])
	}
	if output["usage_percent"].(float64) != 50 {
		t.Errorf("usage_percent = %v, want 50", output["usage_percent"])
	}
	if output["usage"] == "" || output["remaining"] == "" {
		t.Error("expected formatted usage and remaining")
	}
}

func TestHandleClipUpdateSelectDelete(t *testing.T) {
	h, _, _ := testSetup(t)
	ctx := context.Background()
	first := addClip(t, h, "first")
	addClip(t, h, "second")

	result, _ := h.HandleClipUpdate(ctx, makeRequest(map[string]any{
		"id":          first,
		"script_text": "first, revised",
		"media_link":  "https://cdn/first.mp4",
	}))
	output := parseOutput(t, result)
	if output["text"] != "first, revised" || output["link"] != "https://cdn/first.mp4" {
		t.Errorf("updated clip = %v", output)
	}

	result, _ = h.HandleClipSelect(ctx, makeRequest(map[string]any{"id": first}))
	if parseOutput(t, result)["active_id"] != first {
		t.Error("select did not move active clip")
	}

	result, _ = h.HandleClipSelect(ctx, makeRequest(nil))
	if parseOutput(t, result)["active_id"] != "" {
		t.Error("select without id should start composing")
	}

	result, _ = h.HandleClipDelete(ctx, makeRequest(map[string]any{"id": first}))
	if parseOutput(t, result)["deleted"] != true {
		t.Error("expected deleted=true")
	}

	result, _ = h.HandleClipDelete(ctx, makeRequest(map[string]any{"id": first}))
	assertErrorCode(t, result, "CLIP_NOT_FOUND")

	result, _ = h.HandleClipUpdate(ctx, makeRequest(map[string]any{"id": "missing", "script_text": "x"}))
	assertErrorCode(t, result, "CLIP_NOT_FOUND")
}

func TestHandleClipGenerate_Wait(t *testing.T) {
	h, _, _ := testSetup(t,
		channel.Message(`{"value":3,"max":10}`),
		channel.Message(`{"status":"completed","result":"https://x/video.mp4"}`),
	)
	ctx := context.Background()
	id := addClip(t, h, "Hello world")

	result, err := h.HandleClipGenerate(ctx, makeRequest(map[string]any{"id": id, "wait": true}))
	if err != nil {
		t.Fatalf("HandleClipGenerate error: %v", err)
	}
	output := parseOutput(t, result)
	if output["state"] != "succeeded" {
		t.Fatalf("state = %v, want succeeded", output["state"])
	}
	if output["percent"].(float64) != 100 {
		t.Errorf("percent = %v, want 100", output["percent"])
	}
	if output["result"] != "https://x/video.mp4" {
		t.Errorf("result = %v", output["result"])
	}

	result, _ = h.HandleClipList(ctx, makeRequest(nil))
	clips := parseOutput(t, result)["clips"].([]any)
	if clips[0].(map[string]any)["link"] != "https://x/video.mp4" {
		t.Errorf("clip media link not attached: %v", clips[0])
	}

	result, _ = h.HandleJobStatus(ctx, makeRequest(map[string]any{"slot": "clip"}))
	if parseOutput(t, result)["description"] != "Completed" {
		t.Error("job_status should describe completed job")
	}
}

func TestHandleClipGenerate_UnknownClip(t *testing.T) {
	h, _, _ := testSetup(t)

	result, _ := h.HandleClipGenerate(context.Background(), makeRequest(map[string]any{"id": "missing"}))
	assertErrorCode(t, result, "CLIP_NOT_FOUND")
}

func TestHandleJobStatusAndCancel(t *testing.T) {
	// No steps: the channel stays open until cancelled.
	h, _, _ := testSetup(t)
	ctx := context.Background()

	result, _ := h.HandleJobStatus(ctx, makeRequest(map[string]any{"slot": "avatar"}))
	if parseOutput(t, result)["state"] != "idle" {
		t.Error("expected idle before any job")
	}

	result, _ = h.HandleAvatarGenerate(ctx, makeRequest(map[string]any{"prompt": "a chef"}))
	output := parseOutput(t, result)
	if output["state"] != "in_progress" {
		t.Fatalf("state = %v, want in_progress", output["state"])
	}
	if output["description"] != "Connecting to server..." {
		t.Errorf("description = %v", output["description"])
	}

	result, _ = h.HandleJobCancel(ctx, makeRequest(map[string]any{"slot": "avatar"}))
	output = parseOutput(t, result)
	if output["state"] != "failed" || output["error_code"] != "CANCELLED" {
		t.Errorf("after cancel = %v", output)
	}

	result, _ = h.HandleJobStatus(ctx, makeRequest(map[string]any{"slot": "video"}))
	assertErrorCode(t, result, "INVALID_REQUEST")

	result, _ = h.HandleAvatarGenerate(ctx, makeRequest(map[string]any{"prompt": ""}))
	assertErrorCode(t, result, "VALIDATION_ERROR")
}

func TestHandleProjectLifecycle(t *testing.T) {
	h, _, _ := testSetup(t)
	ctx := context.Background()

	result, _ := h.HandleProjectFinish(ctx, makeRequest(map[string]any{"title": "Launch"}))
	assertErrorCode(t, result, "VALIDATION_ERROR")

	addClip(t, h, "first")
	addClip(t, h, "second")

	result, _ = h.HandleProjectFinish(ctx, makeRequest(map[string]any{"title": "Launch"}))
	output := parseOutput(t, result)
	id := output["project"].(map[string]any)["id"].(string)

	result, _ = h.HandleProjectList(ctx, makeRequest(nil))
	output = parseOutput(t, result)
	items := output["items"].([]any)
	if len(items) != 1 || items[0].(map[string]any)["id"] != id {
		t.Fatalf("items = %v", items)
	}

	result, _ = h.HandleProjectFetch(ctx, makeRequest(map[string]any{"id": id}))
	output = parseOutput(t, result)
	if output["current"] != true {
		t.Error("finished project should be current")
	}

	path := filepath.Join(t.TempDir(), "launch.md")
	result, _ = h.HandleProjectExport(ctx, makeRequest(map[string]any{"id": id, "format": "md", "path": path}))
	parseOutput(t, result)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("export file missing: %v", err)
	}
	if !strings.Contains(string(data), "# Launch") {
		t.Errorf("export = %q", data)
	}

	result, _ = h.HandleProjectDelete(ctx, makeRequest(map[string]any{"id": id}))
	parseOutput(t, result)

	result, _ = h.HandleProjectFetch(ctx, makeRequest(map[string]any{"id": id}))
	assertErrorCode(t, result, "PROJECT_NOT_FOUND")
}

func TestServerRegistration(t *testing.T) {
	h, database, cfg := testSetup(t)

	s := NewServer(h.session, database, cfg, "test")
	tools := s.ListTools()
	if tools == nil {
		t.Fatal("expected tools to be registered, got nil")
	}

	expectedTools := []string{
		"clip_add",
		"clip_update",
		"clip_delete",
		"clip_select",
		"clip_list",
		"clip_generate",
		"avatar_generate",
		"job_status",
		"job_cancel",
		"project_finish",
		"project_list",
		"project_fetch",
		"project_export",
		"project_delete",
	}

	if len(tools) != len(expectedTools) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(expectedTools))
	}
	for _, name := range expectedTools {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
}

func TestServerRegistration_WithDisabledTools(t *testing.T) {
	h, database, cfg := testSetup(t)

	cfg.DisabledTools = []string{"project_delete", "clip_delete"}
	tools := NewServer(h.session, database, cfg, "test").ListTools()

	if len(tools) != 12 {
		t.Errorf("registered tool count = %d, want 12", len(tools))
	}
	for _, name := range cfg.DisabledTools {
		if _, ok := tools[name]; ok {
			t.Errorf("disabled tool %q should not be registered", name)
		}
	}
}

func TestServerRegistration_WithDisabledTypes(t *testing.T) {
	h, database, cfg := testSetup(t)

	cfg.DisabledTypes = []string{"avatar", "job"}
	cfg.DisabledTools = []string{"project_export"}
	tools := NewServer(h.session, database, cfg, "test").ListTools()

	if len(tools) != 10 {
		t.Errorf("registered tool count = %d, want 10", len(tools))
	}
	for _, name := range []string{"avatar_generate", "job_status", "job_cancel", "project_export"} {
		if _, ok := tools[name]; ok {
			t.Errorf("tool %q should not be registered", name)
		}
	}
}

func TestServerRegistration_AllToolsDisabled(t *testing.T) {
	h, database, cfg := testSetup(t)

	cfg.DisabledTools = AllToolNames()
	if got := len(NewServer(h.session, database, cfg, "test").ListTools()); got != 0 {
		t.Errorf("registered tool count = %d, want 0 (all disabled)", got)
	}
}

func TestValidateDisabledTools(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		wantLen int
	}{
		{name: "all valid", input: []string{"clip_delete", "project_delete"}, wantLen: 0},
		{name: "one unknown", input: []string{"clip_delete", "fake_tool"}, wantLen: 1},
		{name: "all unknown", input: []string{"foo", "bar", "baz"}, wantLen: 3},
		{name: "empty list", input: []string{}, wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if unknown := ValidateDisabledTools(tt.input); len(unknown) != tt.wantLen {
				t.Errorf("ValidateDisabledTools() returned %d unknown, want %d", len(unknown), tt.wantLen)
			}
		})
	}
}

func TestValidateDisabledTypes(t *testing.T) {
	if unknown := ValidateDisabledTypes(KnownTypes); len(unknown) != 0 {
		t.Errorf("known types reported unknown: %v", unknown)
	}
	if unknown := ValidateDisabledTypes([]string{"clip", "storyboard"}); len(unknown) != 1 || unknown[0] != "storyboard" {
		t.Errorf("unknown = %v, want [storyboard]", unknown)
	}
}

func TestAllToolNames(t *testing.T) {
	names := AllToolNames()
	if len(names) != 14 {
		t.Errorf("AllToolNames() returned %d names, want 14", len(names))
	}
	for _, name := range names {
		typ := GetTypeForTool(name)
		if len(ValidateDisabledTypes([]string{typ})) != 0 {
			t.Errorf("tool %s has unknown type %q", name, typ)
		}
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	e := errors.NewInternal(fmt.Errorf("sql error: open /tmp/secret.db: permission denied"))
	e.Details = map[string]any{"path": "/tmp/secret.db"}
	r := errorResult(e)
	if !r.IsError {
		t.Fatal("expected IsError=true")
	}

	errObj := errorObject(t, r)
	if errObj["code"] != string(errors.ErrInternal) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrInternal)
	}
	if _, ok := errObj["details"]; ok {
		t.Fatal("expected INTERNAL errors to omit details")
	}
}

func TestErrorResult_WrappedErrorPreservesContext(t *testing.T) {
	wrappedErr := fmt.Errorf("clips[2]: %w", errors.NewClipNotFound("abc"))

	errObj := errorObject(t, errorResult(wrappedErr))
	if errObj["code"] != string(errors.ErrClipNotFound) {
		t.Errorf("code=%v, want %v", errObj["code"], errors.ErrClipNotFound)
	}
	msg := errObj["message"].(string)
	if !strings.HasPrefix(msg, "clips[2]") || strings.Contains(msg, "CLIP_NOT_FOUND:") {
		t.Errorf("message = %q", msg)
	}
}

func TestErrorResult_PlainErrorIsInternal(t *testing.T) {
	errObj := errorObject(t, errorResult(fmt.Errorf("boom")))
	if errObj["code"] != string(errors.ErrInternal) || errObj["message"] != "an internal error occurred" {
		t.Errorf("error = %v", errObj)
	}
}

func TestErrorResult_NonInternalIncludesDetails(t *testing.T) {
	errObj := errorObject(t, errorResult(errors.NewClipNotFound("abc")))
	if errObj["code"] != string(errors.ErrClipNotFound) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrClipNotFound)
	}
	if _, ok := errObj["details"]; !ok {
		t.Fatal("expected non-INTERNAL errors to include details when present")
	}
}

// Helper functions

func errorObject(t *testing.T, r *mcp.CallToolResult) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal([]byte(r.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	return payload["error"].(map[string]any)
}

// parseOutput extracts and unmarshals the JSON output from an MCP result.
func parseOutput(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return output
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()

	if result == nil || len(result.Content) == 0 {
		t.Errorf("no content in error result")
		return
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Errorf("content is not TextContent")
		return
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(text.Text), &payload); err != nil {
		t.Errorf("failed to unmarshal error payload: %v", err)
		return
	}

	errorObj, ok := payload["error"].(map[string]any)
	if !ok {
		t.Errorf("no error object in payload")
		return
	}

	if code, _ := errorObj["code"].(string); code != expectedCode {
		t.Errorf("got error code %q, want %q", code, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}
	return text.Text
}
