package mcp

import (
	"context"
	"database/sql"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/reel/internal/config"
	"github.com/hpungsan/reel/internal/studio"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"clip", "avatar", "job", "project"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"clip_add": {
		def:     clipAddToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleClipAdd },
	},
	"clip_update": {
		def:     clipUpdateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleClipUpdate },
	},
	"clip_delete": {
		def:     clipDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleClipDelete },
	},
	"clip_select": {
		def:     clipSelectToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleClipSelect },
	},
	"clip_list": {
		def:     clipListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleClipList },
	},
	"clip_generate": {
		def:     clipGenerateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleClipGenerate },
	},
	"avatar_generate": {
		def:     avatarGenerateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAvatarGenerate },
	},
	"job_status": {
		def:     jobStatusToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleJobStatus },
	},
	"job_cancel": {
		def:     jobCancelToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleJobCancel },
	},
	"project_finish": {
		def:     projectFinishToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProjectFinish },
	},
	"project_list": {
		def:     projectListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProjectList },
	},
	"project_fetch": {
		def:     projectFetchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProjectFetch },
	},
	"project_export": {
		def:     projectExportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProjectExport },
	},
	"project_delete": {
		def:     projectDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProjectDelete },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name.
// Tool names follow the pattern "type_action" (e.g., "clip_add" → "clip").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	tools := make([]string, 0)
	for name := range toolRegistry {
		if typeSet[GetTypeForTool(name)] {
			tools = append(tools, name)
		}
	}
	return tools
}

// NewServer creates a new MCP server with Reel tools registered over session.
// Tools listed in cfg.DisabledTools or belonging to cfg.DisabledTypes
// are excluded from registration.
func NewServer(session *studio.Session, db *sql.DB, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"reel",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(session, db, cfg)

	// expand types first, then add individual tools
	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport. Live jobs are cancelled
// when the transport closes.
func Run(session *studio.Session, db *sql.DB, cfg *config.Config, version string) error {
	s := NewServer(session, db, cfg, version)
	defer session.Leave()
	return server.ServeStdio(s)
}

// ToolHandlerFunc is the signature for tool handlers.
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
