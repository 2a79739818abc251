package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Starter returns a commented-out-free starter configuration suitable
// for a Go project. `mend init` writes this when no mend.yaml exists.
func Starter() Config {
	cfg := Default()
	cfg.Verification = Verification{
		ContainerImage: "golang:1.24",
		Steps: []Step{
			{Name: "build", Command: "go build ./..."},
			{Name: "test", Command: "go test ./..."},
		},
	}
	return cfg
}

// WriteStarter marshals the starter config to mend.yaml at repoRoot.
// It refuses to overwrite an existing file.
func WriteStarter(repoRoot string) (string, error) {
	path := filepath.Join(repoRoot, FileName)

	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("%s already exists", path)
	}

	cfg := Starter()
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal starter config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
