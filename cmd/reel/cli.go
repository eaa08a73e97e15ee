package main

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/hpungsan/reel/internal/backend"
	"github.com/hpungsan/reel/internal/channel"
	"github.com/hpungsan/reel/internal/config"
	"github.com/hpungsan/reel/internal/errors"
	"github.com/hpungsan/reel/internal/job"
	"github.com/hpungsan/reel/internal/ops"
	"github.com/hpungsan/reel/internal/studio"
	"github.com/hpungsan/reel/internal/web"
)

// MaxStdinBytes caps piped input for compose and generate-avatar.
const MaxStdinBytes = 1 << 20

// newCLIApp creates the CLI application with all commands.
func newCLIApp(db *sql.DB, cfg *config.Config) *cli.App {
	app := &cli.App{
		Name:    "reel",
		Usage:   "Storyboard composer for avatar videos",
		Version: Version,
		Commands: []*cli.Command{
			listCmd(db),
			fetchCmd(db),
			exportCmd(db, cfg),
			deleteCmd(db),
			currentCmd(db),
			composeCmd(db, cfg),
			avatarsCmd(cfg),
			generateAvatarCmd(cfg),
			remoteProjectsCmd(cfg),
			createRemoteProjectCmd(cfg),
			serveCmd(db, cfg),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// listCmd creates the list command.
func listCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List saved projects, most recent first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Max results"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Skip first N results"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.List(db, ops.ListInput{
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// fetchCmd creates the fetch command.
func fetchCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Fetch a saved project by ID",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			output, err := ops.Fetch(db, ops.FetchInput{ID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Export a saved project as JSON, a Markdown storyboard or HTML",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: ops.FormatJSON, Usage: "Output format: json|md|html"},
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Output file path (default: ~/.reel/exports/<title>-<timestamp>.<ext>)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Export(c.Context, db, cfg, ops.ExportInput{
				ID:     c.Args().First(),
				Format: c.String("format"),
				Path:   c.String("path"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a saved project",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			output, err := ops.Delete(c.Context, db, ops.DeleteInput{ID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// currentCmd creates the current command.
func currentCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "current",
		Usage: "Show the current project and clip",
		Action: func(c *cli.Context) error {
			output, err := ops.GetCurrent(db)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Browse saved storyboards in a local web viewer",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Value: 8088, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			log := config.NewLogger(cfg, os.Stderr)
			srv, err := web.NewServer(db, cfg, log, Version, c.String("bind"), c.Int("port"))
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			return web.Run(srv, log)
		},
	}
}

// composeCmd creates the compose command.
func composeCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "compose",
		Usage: "Build and save a project from piped clip lines (\"script | movement\" per line)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Required: true, Usage: "Project title"},
		},
		Action: func(c *cli.Context) error {
			if !stdinHasData() {
				return outputError(errors.NewInvalidRequest("clip lines must be piped via stdin"))
			}
			text, err := readStdin(MaxStdinBytes)
			if err != nil {
				return outputError(err)
			}

			log := config.NewLogger(cfg, os.Stderr)
			session, err := studio.New(studio.Options{
				Config:  cfg,
				Backend: newBackendClient(cfg, log),
				Source:  channel.NewWebSocketSource(),
				DB:      db,
				Logger:  log,
			})
			if err != nil {
				return outputError(err)
			}

			for i, line := range parseClipLines(text) {
				if _, err := session.AddClip(line.script, line.movement); err != nil {
					return outputError(fmt.Errorf("line %d: %w", i+1, err))
				}
			}

			output, err := session.Finish(c.Context, c.String("title"))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// avatarsCmd creates the avatars command.
func avatarsCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "avatars",
		Usage: "List avatars generated on the backend",
		Action: func(c *cli.Context) error {
			client := newBackendClient(cfg, config.NewLogger(cfg, os.Stderr))
			avatars, err := client.ListImages(c.Context)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{"images": avatars})
		},
	}
}

// generateAvatarCmd creates the generate-avatar command.
func generateAvatarCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "generate-avatar",
		Usage:     "Generate an avatar image and report progress until it settles",
		ArgsUsage: "[prompt]",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "timeout", Value: 5 * time.Minute, Usage: "Give up after this long"},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "Do not print progress to stderr"},
		},
		Action: func(c *cli.Context) error {
			prompt := strings.Join(c.Args().Slice(), " ")
			if prompt == "" && stdinHasData() {
				text, err := readStdin(MaxStdinBytes)
				if err != nil {
					return outputError(err)
				}
				prompt = text
			}

			log := config.NewLogger(cfg, os.Stderr)
			session, err := studio.New(studio.Options{
				Config:  cfg,
				Backend: newBackendClient(cfg, log),
				Source:  channel.NewWebSocketSource(),
				Logger:  log,
			})
			if err != nil {
				return outputError(err)
			}
			defer session.Leave()

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, c.Duration("timeout"))
			defer cancel()

			j, err := session.GenerateAvatar(ctx, prompt)
			if err != nil {
				return outputError(err)
			}

			var progress io.Writer = os.Stderr
			if c.Bool("quiet") {
				progress = io.Discard
			}
			snap := awaitJob(ctx, session, j, progress)
			if err := outputJSON(snap); err != nil {
				return err
			}
			if snap.State == job.StateFailed {
				return cli.Exit(fmt.Sprintf("[%s] %s", snap.ErrorCode, snap.ErrorMessage), 1)
			}
			return nil
		},
	}
}

// remoteProjectsCmd creates the remote-projects command.
func remoteProjectsCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "remote-projects",
		Usage: "List projects on the backend",
		Action: func(c *cli.Context) error {
			client := newBackendClient(cfg, config.NewLogger(cfg, os.Stderr))
			projects, err := client.ListProjects(c.Context)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{"projects": projects})
		},
	}
}

// createRemoteProjectCmd creates the create-remote-project command.
func createRemoteProjectCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "create-remote-project",
		Usage: "Create a project on the backend, optionally attaching an avatar",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Required: true, Usage: "Project name"},
			&cli.StringFlag{Name: "image", Required: true, Usage: "Driving image filename"},
			&cli.StringFlag{Name: "subfolder", Usage: "Driving image subfolder"},
			&cli.StringFlag{Name: "folder-type", Value: "output", Usage: "Driving image folder type"},
			&cli.StringFlag{Name: "negative-prompt", Usage: "Negative prompt"},
			&cli.IntFlag{Name: "avatar-id", Usage: "Avatar to attach after creation"},
		},
		Action: func(c *cli.Context) error {
			client := newBackendClient(cfg, config.NewLogger(cfg, os.Stderr))
			req := backend.CreateProjectRequest{
				Name: c.String("name"),
				DrivingImage: backend.DrivingImage{
					Filename:   c.String("image"),
					Subfolder:  c.String("subfolder"),
					FolderType: c.String("folder-type"),
				},
			}
			if c.IsSet("negative-prompt") {
				np := c.String("negative-prompt")
				req.NegativePrompt = &np
			}

			project, err := client.CreateProject(c.Context, req)
			if err != nil {
				return outputError(err)
			}
			if c.IsSet("avatar-id") {
				if err := client.AttachAvatar(c.Context, fmt.Sprint(project.ID), c.Int("avatar-id")); err != nil {
					return outputError(err)
				}
				project.AvatarID = c.Int("avatar-id")
			}
			return outputJSON(project)
		},
	}
}

// Helper functions

// newBackendClient builds the backend client from cfg.
func newBackendClient(cfg *config.Config, log logrus.FieldLogger) *backend.Client {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return backend.NewClient(backend.Options{
		BaseURL:    cfg.BackendURL,
		StatusPath: cfg.StatusPath,
		Timeout:    time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		MaxRetries: cfg.MaxRetries,
		ClipBody:   backend.BuilderFor(cfg.ClipRequestField),
		Logger:     log,
	})
}

// awaitJob blocks until j settles, printing each new progress line to w.
// Cancelling ctx cancels the job.
func awaitJob(ctx context.Context, session *studio.Session, j *job.Job, w io.Writer) job.Snapshot {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	last := ""
	report := func() {
		if line := j.Snapshot().Describe(); line != last {
			fmt.Fprintln(w, line)
			last = line
		}
	}

	report()
	for {
		select {
		case <-j.Done():
			report()
			return j.Snapshot()
		case <-ctx.Done():
			session.Cancel(j.Slot())
			<-j.Done()
			report()
			return j.Snapshot()
		case <-ticker.C:
			report()
		}
	}
}

type clipLine struct {
	script   string
	movement string
}

// parseClipLines splits "script | movement" lines, skipping blanks.
func parseClipLines(text string) []clipLine {
	var lines []clipLine
	for _, raw := range strings.Split(text, "\n") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		script, movement, _ := strings.Cut(raw, "|")
		lines = append(lines, clipLine{
			script:   strings.TrimSpace(script),
			movement: strings.TrimSpace(movement),
		})
	}
	return lines
}

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var rErr *errors.ReelError
	if stderrors.As(err, &rErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", rErr.Code, errors.MessageOf(err)), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads up to limit bytes from stdin.
func readStdin(limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, limit+1))
	if err != nil {
		return "", errors.NewInternal(err)
	}
	if int64(len(data)) > limit {
		return "", errors.NewInvalidRequest(fmt.Sprintf("stdin exceeds %d bytes", limit))
	}
	return strings.TrimSpace(string(data)), nil
}
