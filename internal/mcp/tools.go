package mcp

import "github.com/mark3labs/mcp-go/mcp"

var clipAddToolDef = mcp.NewTool("clip_add",
	mcp.WithDescription("Append a clip to the storyboard and make it active. Every clip gets the configured duration; fails with CAPACITY_EXCEEDED when it would push the total past the ceiling."),
	mcp.WithString("script_text", mcp.Required(), mcp.Description("What the avatar says in this clip")),
	mcp.WithString("movement_text", mcp.Description("Avatar motion or product interaction")),
)

var clipUpdateToolDef = mcp.NewTool("clip_update",
	mcp.WithDescription("Edit a clip's script, movement or media link. Omitted fields are left unchanged; duration never changes."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Clip id")),
	mcp.WithString("script_text", mcp.Description("New script text")),
	mcp.WithString("movement_text", mcp.Description("New movement text")),
	mcp.WithString("media_link", mcp.Description("Rendered video URL")),
)

var clipDeleteToolDef = mcp.NewTool("clip_delete",
	mcp.WithDescription("Remove a clip. A generation in flight for that clip is cancelled first."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Clip id")),
)

var clipSelectToolDef = mcp.NewTool("clip_select",
	mcp.WithDescription("Make a clip active for editing. Omit id to start composing a new clip."),
	mcp.WithString("id", mcp.Description("Clip id; empty to compose a new clip")),
)

var clipListToolDef = mcp.NewTool("clip_list",
	mcp.WithDescription("List the storyboard in playback order with the active clip and the duration budget."),
)

var clipGenerateToolDef = mcp.NewTool("clip_generate",
	mcp.WithDescription("Render a clip's video. Replaces any clip generation already running. On success the clip's media link is set."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Clip id")),
	mcp.WithBoolean("wait", mcp.Description("Block until the job settles (default false)")),
	mcp.WithNumber("timeout_seconds", mcp.Description("Maximum wait when wait=true (default 300)")),
)

var avatarGenerateToolDef = mcp.NewTool("avatar_generate",
	mcp.WithDescription("Generate an avatar image from a prompt. Replaces any avatar generation already running."),
	mcp.WithString("prompt", mcp.Required(), mcp.Description("Image prompt")),
	mcp.WithBoolean("wait", mcp.Description("Block until the job settles (default false)")),
	mcp.WithNumber("timeout_seconds", mcp.Description("Maximum wait when wait=true (default 300)")),
)

var jobStatusToolDef = mcp.NewTool("job_status",
	mcp.WithDescription("Show the latest job in a slot with its progress."),
	mcp.WithString("slot", mcp.Required(), mcp.Enum("avatar", "clip"), mcp.Description("Job slot")),
)

var jobCancelToolDef = mcp.NewTool("job_cancel",
	mcp.WithDescription("Cancel the running job in a slot. No-op when nothing is running."),
	mcp.WithString("slot", mcp.Required(), mcp.Enum("avatar", "clip"), mcp.Description("Job slot")),
)

var projectFinishToolDef = mcp.NewTool("project_finish",
	mcp.WithDescription("Save the storyboard as a project at the front of the project list."),
	mcp.WithString("title", mcp.Required(), mcp.Description("Project title")),
)

var projectListToolDef = mcp.NewTool("project_list",
	mcp.WithDescription("List saved projects, most recently saved first."),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
)

var projectFetchToolDef = mcp.NewTool("project_fetch",
	mcp.WithDescription("Fetch a saved project with all its clips."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Project id")),
)

var projectExportToolDef = mcp.NewTool("project_export",
	mcp.WithDescription("Write a saved project to a file as JSON, a Markdown storyboard sheet or HTML."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Project id")),
	mcp.WithString("format", mcp.Enum("json", "md", "html"), mcp.Description("Output format (default json)")),
	mcp.WithString("path", mcp.Description("Destination file (default ~/.reel/exports/<title>-<timestamp>.<ext>)")),
)

var projectDeleteToolDef = mcp.NewTool("project_delete",
	mcp.WithDescription("Delete a saved project."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Project id")),
)
