package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/reel/internal/channel"
	"github.com/hpungsan/reel/internal/config"
	"github.com/hpungsan/reel/internal/db"
	"github.com/hpungsan/reel/internal/mcp"
	"github.com/hpungsan/reel/internal/studio"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"list": true, "fetch": true, "export": true, "delete": true, "current": true,
	"compose": true, "avatars": true, "generate-avatar": true,
	"remote-projects": true, "create-remote-project": true, "serve": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false // Default → MCP server
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   ___  ___ ___ _
  | _ \| __| __| |
  |   /| _|| _|| |__
  |_|_\|___|___|____|

  Storyboard composer for avatar videos

  Usage: reel <command> [options]
         reel --help

  MCP server mode requires piped input.`)
}

func main() {
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion() {
		app := newCLIApp(nil, nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine home directory: %v\n", err)
		os.Exit(1)
	}

	baseDir := filepath.Join(homeDir, ".reel")

	cwd, _ := os.Getwd()
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	database, err := db.Init(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()
	db.ConfigurePool(database, cfg)

	if isCLIMode() {
		app := newCLIApp(database, cfg)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'reel --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default). Logs go to stderr; stdout carries the protocol.
	log := config.NewLogger(cfg, os.Stderr)
	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		log.WithField("tools", unknown).Warn("ignoring unknown disabled_tools")
	}
	if unknown := mcp.ValidateDisabledTypes(cfg.DisabledTypes); len(unknown) > 0 {
		log.WithField("types", unknown).Warn("ignoring unknown disabled_types")
	}

	session, err := studio.New(studio.Options{
		Config:  cfg,
		Backend: newBackendClient(cfg, log),
		Source:  channel.NewWebSocketSource(),
		DB:      database,
		Logger:  log,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	log.WithField("client_id", session.ClientID()).Info("starting MCP server")

	if err := mcp.Run(session, database, cfg, Version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
