package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// ManifestName is the machine-readable run summary written into every
// run directory.
const ManifestName = "manifest.json"

// CommandRecord is one executed step in the manifest.
type CommandRecord struct {
	Name       string `json:"name"`
	Command    string `json:"command"`
	ExitCode   int    `json:"exit_code"`
	DurationMS int64  `json:"duration_ms"`
}

// Platform records where the run happened.
type Platform struct {
	OS             string `json:"os"`
	Arch           string `json:"arch"`
	ContainerImage string `json:"container_image"`
}

// Manifest is the durable record of a verification run.
type Manifest struct {
	RunID            string          `json:"run_id"`
	TimestampStart   time.Time       `json:"timestamp_start"`
	TimestampEnd     time.Time       `json:"timestamp_end"`
	CommitSHA        string          `json:"commit_sha"`
	Status           string          `json:"status"`
	CommandsExecuted []CommandRecord `json:"commands_executed"`
	Platform         Platform        `json:"platform"`
}

// WriteManifest persists the manifest into the run directory.
func WriteManifest(runDir string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, ManifestName), data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads a run's manifest.
func ReadManifest(runDir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(runDir, ManifestName))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

// CommitSHA resolves the repository's HEAD commit. Repositories
// without git history report "unknown".
func CommitSHA(ctx context.Context, repoDir string) string {
	cmd := exec.CommandContext(ctx, "git", "-C", repoDir, "rev-parse", "HEAD")
	out, err := cmd.Output()
	if err != nil {
		return "unknown"
	}
	sha := strings.TrimSpace(string(out))
	if sha == "" {
		return "unknown"
	}
	return sha
}

// HostPlatform fills the platform record for the current host.
func HostPlatform(image string) Platform {
	return Platform{OS: runtime.GOOS, Arch: runtime.GOARCH, ContainerImage: image}
}
