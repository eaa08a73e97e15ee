package ops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hpungsan/reel/internal/config"
	"github.com/hpungsan/reel/internal/errors"
)

func TestValidateExportPath_TraversalRejected(t *testing.T) {
	cfg := config.DefaultConfig()

	tests := []struct {
		name string
		path string
	}{
		{"parent traversal", "../backup.json"},
		{"deep traversal", "../../etc/backup.json"},
		{"mid-path traversal", "/tmp/../etc/backup.json"},
		{"hidden in path", "/tmp/safe/../../../etc/shadow.json"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateExportPath(tc.path, ".json", cfg)
			if err == nil {
				t.Error("expected error for path traversal, got nil")
			}
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got: %v", err)
			}
		})
	}
}

func TestValidateExportPath_ExtensionRequired(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true // Allow any directory

	tests := []struct {
		name string
		path string
	}{
		{"no extension", "/tmp/backup"},
		{"wrong extension", "/tmp/backup.jsonl"},
		{"txt extension", "/tmp/backup.txt"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateExportPath(tc.path, ".json", cfg)
			if err == nil {
				t.Error("expected error for wrong extension, got nil")
			}
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got: %v", err)
			}
		})
	}
}

func TestValidateExportPath_DirectoryRestriction(t *testing.T) {
	cfg := config.DefaultConfig()
	// Default config: only ~/.reel/exports allowed

	// Path outside allowed directories should fail
	err := ValidateExportPath("/tmp/backup.json", ".json", cfg)
	if err == nil {
		t.Error("expected error for path outside allowed directories, got nil")
	}
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got: %v", err)
	}
}

func TestValidateExportPath_AllowUnsafePaths(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true

	// Existing export file
	testFile := filepath.Join(tmpDir, "test.json")
	if err := os.WriteFile(testFile, []byte("{}"), 0600); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	// Should allow paths outside ~/.reel/exports when AllowUnsafePaths=true
	err := ValidateExportPath(testFile, ".json", cfg)
	if err != nil {
		t.Errorf("expected success with AllowUnsafePaths=true, got: %v", err)
	}

	// New file in the same directory
	writePath := filepath.Join(tmpDir, "output.json")
	err = ValidateExportPath(writePath, ".json", cfg)
	if err != nil {
		t.Errorf("expected success for write with AllowUnsafePaths=true, got: %v", err)
	}
}

func TestValidateExportPath_AllowedPaths(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{tmpDir}

	// Existing export file
	testFile := filepath.Join(tmpDir, "test.json")
	if err := os.WriteFile(testFile, []byte("{}"), 0600); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	// Should allow overwriting in AllowedPaths
	err := ValidateExportPath(testFile, ".json", cfg)
	if err != nil {
		t.Errorf("expected success for path in AllowedPaths, got: %v", err)
	}

	// Path outside AllowedPaths (and not in ~/.reel/exports) should fail
	otherDir := t.TempDir()
	otherFile := filepath.Join(otherDir, "other.json")
	if err := os.WriteFile(otherFile, []byte("{}"), 0600); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	err = ValidateExportPath(otherFile, ".json", cfg)
	if err == nil {
		t.Error("expected error for path outside AllowedPaths, got nil")
	}
}

func TestValidateExportPath_SymlinkRejected_EvenWithUnsafePaths(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true

	// Create a target file
	targetFile := filepath.Join(tmpDir, "target.json")
	if err := os.WriteFile(targetFile, []byte("{}"), 0600); err != nil {
		t.Fatalf("failed to create target file: %v", err)
	}

	// Create a symlink
	symlink := filepath.Join(tmpDir, "link.json")
	if err := os.Symlink(targetFile, symlink); err != nil {
		t.Skipf("cannot create symlink: %v", err)
	}

	// Even with AllowUnsafePaths=true, symlinks should be rejected.
	// AllowUnsafePaths bypasses directory restrictions, NOT symlink restrictions.
	// O_NOFOLLOW is always used at open time, so validation should match.
	err := ValidateExportPath(symlink, ".json", cfg)
	if err == nil {
		t.Error("expected error for symlink even with AllowUnsafePaths=true, got nil")
	}
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got: %v", err)
	}
}

func TestValidateExportPath_NestedPathRejected_Write(t *testing.T) {
	allowedDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{allowedDir}

	// Create a subdirectory (nested paths are not allowed)
	subDir := filepath.Join(allowedDir, "subdir")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatalf("failed to create subdir: %v", err)
	}

	nestedPath := filepath.Join(subDir, "out.json")
	err := ValidateExportPath(nestedPath, ".json", cfg)
	if err == nil {
		t.Error("expected error for nested path, got nil")
	}
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got: %v", err)
	}
}

func TestValidateExportPath_SymlinkFileRejected_Write(t *testing.T) {
	allowedDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{allowedDir}

	otherDir := t.TempDir()
	targetFile := filepath.Join(otherDir, "secret.json")
	if err := os.WriteFile(targetFile, []byte("{}"), 0600); err != nil {
		t.Fatalf("failed to create target file: %v", err)
	}

	symlink := filepath.Join(allowedDir, "out.json")
	if err := os.Symlink(targetFile, symlink); err != nil {
		t.Skipf("cannot create symlink: %v", err)
	}

	err := ValidateExportPath(symlink, ".json", cfg)
	if err == nil {
		t.Error("expected error for symlink file write, got nil")
	}
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got: %v", err)
	}
}

func TestContainsTraversal(t *testing.T) {
	tests := []struct {
		path     string
		contains bool
	}{
		{"/home/user/file.txt", false},
		{"../file.txt", true},
		{"/home/../etc/passwd", true},
		{"./file.txt", false},
		{"/home/user/.hidden/file.txt", false},
		{"file..name.txt", false}, // .. not as path component
		{"/tmp/a/b/../c.json", true},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			result := containsTraversal(tc.path)
			if result != tc.contains {
				t.Errorf("containsTraversal(%q) = %v, want %v", tc.path, result, tc.contains)
			}
		})
	}
}

func TestSanitizeForFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple name", "myproject", "myproject"},
		{"with spaces", "my project", "my project"},
		{"forward slash", "path/to/file", "path-to-file"},
		{"backslash", "path\\to\\file", "path-to-file"},
		{"double dots", "foo..bar", "foo-bar"},
		{"traversal attempt", "../../../etc/passwd", "etc-passwd"},
		{"absolute path", "/tmp/evil", "tmp-evil"},
		{"mixed attack", "../foo/bar\\..\\baz", "foo-bar-baz"},
		{"null bytes", "foo\x00bar", "foobar"},
		{"control chars", "foo\x01\x02bar", "foobar"},
		{"empty after sanitize", "../../..", "unnamed"},
		{"only slashes", "///", "unnamed"},
		{"unicode preserved", "clip-\u4e2d\u6587", "clip-\u4e2d\u6587"},
		{"multiple dashes collapse", "a---b", "a-b"},
		{"leading dashes trimmed", "---foo", "foo"},
		{"trailing dashes trimmed", "foo---", "foo"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := SanitizeForFilename(tc.input)
			if result != tc.expected {
				t.Errorf("SanitizeForFilename(%q) = %q, want %q", tc.input, result, tc.expected)
			}
		})
	}
}
