package ops

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/hpungsan/reel/internal/config"
	"github.com/hpungsan/reel/internal/errors"
	"github.com/hpungsan/reel/internal/project"
)

// Export formats.
const (
	FormatJSON     = "json"
	FormatMarkdown = "md"
	FormatHTML     = "html"
)

var formatExt = map[string]string{
	FormatJSON:     ".json",
	FormatMarkdown: ".md",
	FormatHTML:     ".html",
}

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	ID     string // required
	Format string // "json" (default), "md" or "html"
	Path   string // optional, default: ~/.reel/exports/<title>-<timestamp>.<ext>
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Format     string `json:"format"`
	Bytes      int    `json:"bytes"`
	ExportedAt int64  `json:"exported_at"`
}

// Export writes a saved project to a file as JSON or as a rendered storyboard sheet.
func Export(ctx context.Context, database *sql.DB, cfg *config.Config, input ExportInput) (*ExportOutput, error) {
	format := strings.ToLower(strings.TrimSpace(input.Format))
	if format == "" {
		format = FormatJSON
	}
	ext, ok := formatExt[format]
	if !ok {
		return nil, errors.NewInvalidRequest("format must be one of: json, md, html")
	}

	p, err := findProject(database, input.ID)
	if err != nil {
		return nil, err
	}

	maxSeconds := config.DefaultConfig().MaxDurationSeconds
	if cfg != nil && cfg.MaxDurationSeconds > 0 {
		maxSeconds = cfg.MaxDurationSeconds
	}
	content, err := render(p, format, maxSeconds)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	exportPath := input.Path
	if exportPath == "" {
		exportPath, err = defaultExportPath(p.Title, ext, now)
		if err != nil {
			return nil, err
		}
	}

	// Default paths are validated too; the title is user input.
	if err := ValidateExportPath(exportPath, ext, cfg); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}

	if err := writeAtomic(exportPath, content); err != nil {
		return nil, err
	}

	return &ExportOutput{
		Path:       exportPath,
		Format:     format,
		Bytes:      len(content),
		ExportedAt: now.Unix(),
	}, nil
}

func render(p *project.Project, format string, maxSeconds float64) ([]byte, error) {
	switch format {
	case FormatMarkdown:
		return []byte(project.Markdown(p, maxSeconds)), nil
	case FormatHTML:
		html, err := project.HTML(p, maxSeconds)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		return []byte(html), nil
	default:
		data, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		return append(data, '\n'), nil
	}
}

// writeAtomic writes content to a temp file beside path, then renames it into place.
func writeAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := file.Write(content); err != nil {
		return errors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return errors.NewInternal(err)
	}
	if err := file.Close(); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename follows a symlinked destination
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInternal(fmt.Errorf("export path is a symlink"))
	}

	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(path); statErr == nil {
				return errors.NewInvalidRequest("export destination already exists; overwriting is not supported on Windows yet (choose a new path or delete the existing file)")
			}
		}
		return errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return nil
}

// defaultExportPath returns ~/.reel/exports/<title>-<timestamp><ext>.
func defaultExportPath(title, ext string, now time.Time) (string, error) {
	dir, err := DefaultExportsDir()
	if err != nil {
		return "", err
	}
	name := SanitizeForFilename(strings.ToLower(strings.Join(strings.Fields(title), "-")))
	filename := fmt.Sprintf("%s-%s%s", name, now.Format("2006-01-02T150405"), ext)
	return filepath.Join(dir, filename), nil
}
