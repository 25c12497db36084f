package scope

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Strategy selects how a project scope id is derived from the environment.
type Strategy string

const (
	// StrategyGitDirectory derives the scope id from the enclosing git
	// repository's root directory name.
	StrategyGitDirectory Strategy = "git-directory"
	// StrategyManual uses an explicitly configured scope id.
	StrategyManual Strategy = "manual"
	// StrategyHash derives the scope id from a hash of the git remote
	// URL, so the same remote yields the same scope id from any clone
	// path on disk.
	StrategyHash Strategy = "hash"
)

// Detector resolves the current project's scope id.
type Detector struct {
	Strategy Strategy
	ManualID string
	Prefix   string // default: "proj-"

	cacheDir string
	cacheID  string
}

// NewDetector creates a Detector for the given strategy.
func NewDetector(strategy Strategy) *Detector {
	return &Detector{Strategy: strategy, Prefix: "proj-"}
}

// DetectScopeID returns the scope id for the current working directory
// under the configured strategy.
func (d *Detector) DetectScopeID() string {
	switch d.Strategy {
	case StrategyManual:
		if d.ManualID != "" {
			return d.ManualID
		}
		return d.detectGitDirectory()
	case StrategyHash:
		return d.detectGitHash()
	case StrategyGitDirectory:
		fallthrough
	default:
		return d.detectGitDirectory()
	}
}

// detectGitDirectory derives a scope id from the git repository root's
// directory name, falling back to the current working directory's name
// outside a repository. Results are cached per working directory.
func (d *Detector) detectGitDirectory() string {
	cwd, _ := os.Getwd()
	if d.cacheDir == cwd && d.cacheID != "" {
		return d.cacheID
	}

	root := findGitRoot(cwd)
	if root == "" {
		root = cwd
	}
	d.cacheDir = cwd
	d.cacheID = d.Prefix + sanitizeDirectoryName(filepath.Base(root))
	return d.cacheID
}

// detectGitHash derives a scope id from a hash of the repository's
// configured remote URL, so it stays stable across clones at different
// paths. Falls back to detectGitDirectory when there is no git repository
// or no remote configured.
func (d *Detector) detectGitHash() string {
	cwd, _ := os.Getwd()
	root := findGitRoot(cwd)
	if root == "" {
		return d.detectGitDirectory()
	}

	cmd := exec.Command("git", "-C", root, "config", "--get", "remote.origin.url")
	output, err := cmd.Output()
	if err != nil {
		return d.detectGitDirectory()
	}

	remoteURL := strings.TrimSpace(string(output))
	if remoteURL == "" {
		return d.detectGitDirectory()
	}

	hash := sha256.Sum256([]byte(remoteURL))
	return d.Prefix + hex.EncodeToString(hash[:8])
}

// findGitRoot walks upward from startDir looking for a .git directory or
// file (the latter covers worktrees and submodules), returning "" if none
// is found before the filesystem root.
func findGitRoot(startDir string) string {
	dir := startDir
	for {
		gitPath := filepath.Join(dir, ".git")
		if _, err := os.Stat(gitPath); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// sanitizeDirectoryName lowercases a directory name and strips everything
// but alphanumerics, hyphens, and underscores, turning spaces and dots into
// hyphens.
func sanitizeDirectoryName(name string) string {
	var result strings.Builder
	for _, r := range name {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_':
			result.WriteRune(r)
		case r == ' ' || r == '.':
			result.WriteRune('-')
		}
	}
	return strings.ToLower(result.String())
}
